package tools

import (
	"context"
	"log/slog"

	"github.com/maraichr/sqlscope/internal/analysis"
	"github.com/maraichr/sqlscope/internal/mcp"
	"github.com/maraichr/sqlscope/internal/mcp/session"
	"github.com/maraichr/sqlscope/pkg/apierr"
)

// GetScopeTreeParams are the parameters for the get_scope_tree tool.
type GetScopeTreeParams struct {
	SQL               string `json:"sql,omitempty"`
	Vendor            string `json:"vendor,omitempty"`
	MaxResponseTokens int    `json:"max_response_tokens,omitempty"`
	SessionID         string `json:"session_id,omitempty"`
}

// GetScopeTreeHandler implements the get_scope_tree MCP tool.
type GetScopeTreeHandler struct {
	engine   *analysis.Engine
	sessions session.Store
	logger   *slog.Logger
}

func NewGetScopeTreeHandler(e *analysis.Engine, sessions session.Store, logger *slog.Logger) *GetScopeTreeHandler {
	return &GetScopeTreeHandler{engine: e, sessions: sessions, logger: logger}
}

// Handle outlines every scope of the buffer with its aliases and CTEs.
func (h *GetScopeTreeHandler) Handle(ctx context.Context, params GetScopeTreeParams) (string, error) {
	buf := openBuffer(ctx, h.sessions, params.SessionID, h.logger)
	sql, vendor, err := buf.sql(params.SQL, params.Vendor)
	if err != nil {
		return "", err
	}
	if len(sql) > analysis.MaxSQLBytes {
		return "", apierr.SQLTooLarge(analysis.MaxSQLBytes)
	}

	tree := analysis.ScopeTree(h.engine.Tree(ctx, sql, vendor))
	buf.save(ctx, "get_scope_tree")
	return mcp.FormatScopeTree(tree, params.MaxResponseTokens), nil
}
