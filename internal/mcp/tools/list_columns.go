package tools

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/maraichr/sqlscope/internal/analysis"
	"github.com/maraichr/sqlscope/internal/mcp"
	"github.com/maraichr/sqlscope/internal/mcp/session"
	"github.com/maraichr/sqlscope/pkg/apierr"
	"github.com/maraichr/sqlscope/pkg/models"
)

// ListColumnsParams are the parameters for the list_columns tool.
type ListColumnsParams struct {
	Table             string `json:"table"`
	SQL               string `json:"sql,omitempty"`
	Vendor            string `json:"vendor,omitempty"`
	Line              int    `json:"line,omitempty"`
	Column            int    `json:"column,omitempty"`
	Offset            *int   `json:"offset,omitempty"`
	MaxResponseTokens int    `json:"max_response_tokens,omitempty"`
	SessionID         string `json:"session_id,omitempty"`
}

// ListColumnsHandler implements the list_columns MCP tool.
type ListColumnsHandler struct {
	engine   *analysis.Engine
	sessions session.Store
	logger   *slog.Logger
}

// NewListColumnsHandler creates a new handler. sessions may be nil.
func NewListColumnsHandler(e *analysis.Engine, sessions session.Store, logger *slog.Logger) *ListColumnsHandler {
	return &ListColumnsHandler{engine: e, sessions: sessions, logger: logger}
}

// Handle lists the columns of a table, alias, CTE or temp table. The
// session buffer, when there is one, supplies the context for aliases.
func (h *ListColumnsHandler) Handle(ctx context.Context, params ListColumnsParams) (string, error) {
	table := strings.TrimSpace(params.Table)
	if table == "" {
		return "", apierr.TableRequired()
	}

	buf := openBuffer(ctx, h.sessions, params.SessionID, h.logger)
	sql, vendor, err := buf.sql(params.SQL, params.Vendor)
	if err != nil {
		// a bare catalog lookup needs no buffer
		sql, vendor = "", params.Vendor
	}

	resp, err := h.engine.Columns(ctx, models.ColumnsRequest{
		Table:  table,
		SQL:    sql,
		Vendor: vendor,
		Cursor: cursor(params.Line, params.Column, params.Offset),
	})
	if err != nil {
		return "", toolError(err)
	}
	if buf.session != nil && resp.Object != nil {
		buf.session.MarkSeen(resp.Object.QualifiedName)
	}
	buf.save(ctx, fmt.Sprintf("list_columns %s columns=%d", table, len(resp.Columns)))
	return mcp.FormatColumns(resp, params.MaxResponseTokens), nil
}
