package models

import (
	"time"

	"github.com/google/uuid"
)

// Position is a 1-indexed line and column in a SQL buffer.
type Position struct {
	Line   int `json:"line"`
	Column int `json:"column"`
}

// Cursor locates the point of interest in a buffer. Offset wins over
// Line/Column; when neither is set the cursor sits at the end of the buffer.
type Cursor struct {
	Line   int  `json:"line,omitempty"`
	Column int  `json:"column,omitempty"`
	Offset *int `json:"offset,omitempty"`
}

type AnalyzeRequest struct {
	SQL    string `json:"sql"`
	Vendor string `json:"vendor,omitempty"`
	Cursor
}

type ColumnsRequest struct {
	Table  string `json:"table"`
	SQL    string `json:"sql,omitempty"`
	Vendor string `json:"vendor,omitempty"`
	Cursor
}

type Column struct {
	Name            string `json:"name"`
	DataType        string `json:"data_type"`
	Nullable        bool   `json:"nullable"`
	IsPrimaryKey    bool   `json:"is_primary_key,omitempty"`
	IsForeignKey    bool   `json:"is_foreign_key,omitempty"`
	OrdinalPosition int    `json:"ordinal_position"`
}

// Object is a resolved relation: a catalog object, or a CTE, derived table
// or temp table known only from the buffer.
type Object struct {
	Name          string   `json:"name"`
	Schema        string   `json:"schema,omitempty"`
	Database      string   `json:"database,omitempty"`
	Kind          string   `json:"kind"`
	QualifiedName string   `json:"qualified_name"`
	Columns       []Column `json:"columns"`
}

// TableRef is one relation visible at the cursor and what it resolved to.
type TableRef struct {
	Name     string `json:"name"`
	Alias    string `json:"alias,omitempty"`
	Kind     string `json:"kind"`
	Object   string `json:"object,omitempty"`
	Resolved bool   `json:"resolved"`
}

// Scope summarizes the scope the cursor is in.
type Scope struct {
	Kind  string   `json:"kind"`
	Depth int      `json:"depth"`
	Start Position `json:"start"`
	End   Position `json:"end"`
}

type Analysis struct {
	RequestID   uuid.UUID         `json:"request_id"`
	Vendor      string            `json:"vendor,omitempty"`
	Parser      string            `json:"parser"`
	Degraded    bool              `json:"degraded"`
	ParseErrors bool              `json:"parse_errors"`
	Offset      int               `json:"offset"`
	Scope       Scope             `json:"scope"`
	Aliases     map[string]string `json:"aliases"`
	CTEs        []string          `json:"ctes"`
	Tables      []TableRef        `json:"tables"`
	Objects     []Object          `json:"objects"`
	CreatedAt   time.Time         `json:"created_at"`
}

type ColumnsResponse struct {
	RequestID uuid.UUID `json:"request_id"`
	Table     string    `json:"table"`
	Object    *Object   `json:"object"`
	Columns   []Column  `json:"columns"`
}
