package tools

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/maraichr/sqlscope/internal/analysis"
	"github.com/maraichr/sqlscope/internal/mcp"
	"github.com/maraichr/sqlscope/internal/mcp/session"
	"github.com/maraichr/sqlscope/pkg/apierr"
	"github.com/maraichr/sqlscope/pkg/models"
)

// AnalyzeSQLParams are the parameters for the analyze_sql tool.
type AnalyzeSQLParams struct {
	SQL               string `json:"sql,omitempty"`
	Vendor            string `json:"vendor,omitempty"`
	Line              int    `json:"line,omitempty"`
	Column            int    `json:"column,omitempty"`
	Offset            *int   `json:"offset,omitempty"`
	Verbosity         string `json:"verbosity,omitempty"`
	MaxResponseTokens int    `json:"max_response_tokens,omitempty"`
	SessionID         string `json:"session_id,omitempty"`
}

// AnalyzeSQLHandler implements the analyze_sql MCP tool.
type AnalyzeSQLHandler struct {
	engine   *analysis.Engine
	sessions session.Store
	logger   *slog.Logger
}

// NewAnalyzeSQLHandler creates a new handler. sessions may be nil.
func NewAnalyzeSQLHandler(e *analysis.Engine, sessions session.Store, logger *slog.Logger) *AnalyzeSQLHandler {
	return &AnalyzeSQLHandler{engine: e, sessions: sessions, logger: logger}
}

// Handle reports the scope at the cursor and the relations visible there.
func (h *AnalyzeSQLHandler) Handle(ctx context.Context, params AnalyzeSQLParams) (string, error) {
	buf := openBuffer(ctx, h.sessions, params.SessionID, h.logger)
	sql, vendor, err := buf.sql(params.SQL, params.Vendor)
	if err != nil {
		return "", err
	}
	if len(sql) > analysis.MaxSQLBytes {
		return "", apierr.SQLTooLarge(analysis.MaxSQLBytes)
	}

	a, err := h.engine.Analyze(ctx, models.AnalyzeRequest{SQL: sql, Vendor: vendor, Cursor: cursor(params.Line, params.Column, params.Offset)})
	if err != nil {
		return "", toolError(err)
	}

	out := mcp.FormatAnalysis(a, mcp.ParseVerbosity(params.Verbosity), buf.session, params.MaxResponseTokens)
	if buf.session != nil {
		for _, o := range a.Objects {
			buf.session.MarkSeen(o.QualifiedName)
		}
	}
	buf.save(ctx, fmt.Sprintf("analyze_sql offset=%d tables=%d", a.Offset, len(a.Tables)))
	return out, nil
}
