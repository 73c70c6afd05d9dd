// Package catalog defines the contracts between the resolver and whatever
// serves database metadata: servers, databases, objects, column adapters and
// the metadata RPC of the connection service.
package catalog

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/maraichr/sqlscope/internal/ident"
	"github.com/maraichr/sqlscope/internal/parser"
)

// Kind is the kind of a catalog object.
type Kind string

const (
	KindTable     Kind = "table"
	KindView      Kind = "view"
	KindSynonym   Kind = "synonym"
	KindFunction  Kind = "function"
	KindTempTable Kind = "temp_table"
	KindCTE       Kind = "cte"
	KindSubquery  Kind = "subquery"
)

// Column is the single column shape every backend is mapped onto.
type Column struct {
	Name            string `json:"name" yaml:"name"`
	DataType        string `json:"data_type" yaml:"data_type"`
	Nullable        bool   `json:"nullable" yaml:"nullable"`
	IsPrimaryKey    bool   `json:"is_primary_key" yaml:"is_primary_key"`
	IsForeignKey    bool   `json:"is_foreign_key" yaml:"is_foreign_key"`
	OrdinalPosition int    `json:"ordinal_position" yaml:"ordinal_position"`
}

// ColumnsFunc loads an object's columns on demand.
type ColumnsFunc func(ctx context.Context) ([]Column, error)

// ResolveFunc follows a synonym one hop to the object it names.
type ResolveFunc func(ctx context.Context) (*Object, error)

// Object is a table, view, synonym or synthetic relation. Columns and
// Resolve are optional capabilities; Resolve is only set on synonyms.
type Object struct {
	Name     string
	Schema   string
	Database string
	Kind     Kind
	// Target is the synonym's base object reference as written in the catalog.
	Target string

	Columns ColumnsFunc
	Resolve ResolveFunc
}

// QualifiedName renders database.schema.name, leaving out empty parts.
func (o *Object) QualifiedName() string {
	return ident.QualifiedName{Database: o.Database, Schema: o.Schema, Name: o.Name}.String()
}

func (o *Object) String() string {
	if o == nil {
		return "<nil>"
	}
	return string(o.Kind) + " " + o.QualifiedName()
}

// IsSynonym reports whether o must be followed before use.
func (o *Object) IsSynonym() bool {
	return o != nil && o.Kind == KindSynonym
}

// Database is one catalog database. Collections may be empty until Load
// has run; Load must be idempotent.
type Database interface {
	Name() string
	IsLoaded() bool
	Load(ctx context.Context) error
	// Each lister returns objects of every schema when schema is empty.
	Tables(schema string) []*Object
	Views(schema string) []*Object
	Synonyms(schema string) []*Object
	Functions(schema string) []*Object
}

// Server is a database server reachable through a connection.
type Server interface {
	Name() string
	// Database returns the database with exactly this name, or nil.
	Database(name string) Database
	// FindDatabase looks name up case-insensitively, or returns nil.
	FindDatabase(name string) Database
	Vendor() string
	// Adapter may be nil when the server has no direct column query path.
	Adapter() Adapter
}

// Row is one result row of a metadata query with vendor-specific keys.
type Row map[string]any

// Adapter runs vendor-specific column queries against a live connection.
type Adapter interface {
	ColumnsQuery(database, schema, object string) string
	ParseColumns(rows []Row) []Column
	Execute(ctx context.Context, cfg Config, query string) ([]Row, error)
}

// Config is the raw connection configuration, passed through untouched.
type Config map[string]string

// Serialize renders cfg as JSON for the metadata RPC. encoding/json sorts
// map keys, so equal configs serialize identically.
func (c Config) Serialize() string {
	if len(c) == 0 {
		return "{}"
	}
	data, err := json.Marshal(map[string]string(c))
	if err != nil {
		return "{}"
	}
	return string(data)
}

const columnKeyPrefix = "sqlscope:columns:"

// ColumnCacheKey builds the column cache key
// sqlscope:columns:{server}:{database}:{schema}:{object}. Parts are
// lower-cased.
func ColumnCacheKey(server, database, schema, object string) string {
	parts := []string{server, database, schema, object}
	for i, p := range parts {
		parts[i] = strings.ToLower(p)
	}
	return columnKeyPrefix + strings.Join(parts, ":")
}

// RPCRequest is one call to the connection service's metadata endpoint.
type RPCRequest struct {
	Config string `json:"config"` // serialized connection config
	Method string `json:"method"` // "columns"
	Object string `json:"object"`
	Schema string `json:"schema"`
}

// MetadataRPC is the metadata endpoint of the external connection service.
type MetadataRPC interface {
	Call(ctx context.Context, req RPCRequest) ([]Row, error)
}

// RPCFunc adapts a function to MetadataRPC.
type RPCFunc func(ctx context.Context, req RPCRequest) ([]Row, error)

func (f RPCFunc) Call(ctx context.Context, req RPCRequest) ([]Row, error) { return f(ctx, req) }

// Connection is what the resolver is handed for one buffer. The resolver
// never mutates it beyond triggering database loads.
type Connection struct {
	Server   Server
	Database Database
	Config   Config
	RPC      MetadataRPC
}

// Vendor returns the connection's vendor, normalized.
func (c *Connection) Vendor() string {
	if c == nil || c.Server == nil {
		return ""
	}
	return NormalizeVendor(c.Server.Vendor())
}

// Vendors the resolver knows default schemas for.
const (
	VendorSQLServer = parser.VendorSQLServer
	VendorPostgres  = parser.VendorPostgres
	VendorMySQL     = parser.VendorMySQL
	VendorSQLite    = parser.VendorSQLite
)

// NormalizeVendor maps common vendor spellings onto the canonical names.
func NormalizeVendor(v string) string {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "sqlserver", "mssql", "tsql", "sql server", "azuresql":
		return VendorSQLServer
	case "postgres", "postgresql", "pg", "pgsql":
		return VendorPostgres
	case "mysql", "mariadb":
		return VendorMySQL
	case "sqlite", "sqlite3":
		return VendorSQLite
	}
	return strings.ToLower(strings.TrimSpace(v))
}

var defaultSchemas = map[string]string{
	VendorSQLServer: "dbo",
	VendorPostgres:  "public",
	VendorMySQL:     "",
	VendorSQLite:    "",
}

// KnownVendor reports whether v names one of the supported vendors.
func KnownVendor(v string) bool {
	_, ok := defaultSchemas[NormalizeVendor(v)]
	return ok
}

// DefaultSchema returns the schema unqualified names live in for vendor.
// overrides, keyed by canonical vendor, take precedence; an override may be
// the empty string to disable the default.
func DefaultSchema(vendor string, overrides map[string]string) string {
	v := NormalizeVendor(vendor)
	if s, ok := overrides[v]; ok {
		return s
	}
	return defaultSchemas[v]
}
