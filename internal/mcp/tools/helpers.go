package tools

import (
	"context"
	"errors"
	"log/slog"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/maraichr/sqlscope/internal/analysis"
	"github.com/maraichr/sqlscope/internal/mcp/session"
	"github.com/maraichr/sqlscope/pkg/apierr"
	"github.com/maraichr/sqlscope/pkg/models"
)

// ToolHandler is the interface that all tool handlers implement.
type ToolHandler[P any] interface {
	Handle(ctx context.Context, params P) (string, error)
}

// WrapHandler adapts a ToolHandler into the SDK's AddTool callback.
// It handles nil params by using a zero value and maps errors to CallToolResult.
func WrapHandler[P any](h ToolHandler[P]) func(context.Context, *sdkmcp.CallToolRequest, *P) (*sdkmcp.CallToolResult, any, error) {
	return func(ctx context.Context, req *sdkmcp.CallToolRequest, params *P) (*sdkmcp.CallToolResult, any, error) {
		if params == nil {
			params = new(P)
		}
		result, err := h.Handle(ctx, *params)
		if err != nil {
			return &sdkmcp.CallToolResult{
				IsError: true,
				Content: []sdkmcp.Content{&sdkmcp.TextContent{Text: err.Error()}},
			}, nil, nil
		}
		return &sdkmcp.CallToolResult{
			Content: []sdkmcp.Content{&sdkmcp.TextContent{Text: result}},
		}, nil, nil
	}
}

func cursor(line, column int, offset *int) models.Cursor {
	return models.Cursor{Line: line, Column: column, Offset: offset}
}

// buffer carries the session a tool call runs in, if any.
type buffer struct {
	store   session.Store
	session *session.Session
	logger  *slog.Logger
}

// openBuffer loads the session named id. Without a store or an id the
// call runs sessionless.
func openBuffer(ctx context.Context, store session.Store, id string, logger *slog.Logger) *buffer {
	b := &buffer{store: store, logger: logger}
	if store == nil || id == "" {
		return b
	}
	sess, err := store.Load(ctx, id)
	if err != nil {
		logger.Warn("load session", slog.String("session_id", id), slog.String("error", err.Error()))
		return b
	}
	b.session = sess
	return b
}

// sql returns the SQL to work on: the call's own text, else the session
// buffer. A call carrying SQL replaces the session buffer.
func (b *buffer) sql(sql, vendor string) (string, string, error) {
	if sql != "" {
		if b.session != nil {
			b.session.SetBuffer(sql, vendor)
		}
		return sql, vendor, nil
	}
	if b.session != nil && b.session.SQL != "" {
		if vendor == "" {
			vendor = b.session.Vendor
		}
		return b.session.SQL, vendor, nil
	}
	return "", "", apierr.SQLRequired()
}

// save records the call in the session history and persists it.
func (b *buffer) save(ctx context.Context, entry string) {
	if b.session == nil {
		return
	}
	b.session.AddHistory(entry)
	if err := b.store.Save(ctx, b.session); err != nil {
		b.logger.Warn("save session", slog.String("session_id", b.session.ID), slog.String("error", err.Error()))
	}
}

// toolError maps engine failures onto the API error codes, so agents see
// the same codes HTTP clients do.
func toolError(err error) error {
	if errors.Is(err, analysis.ErrInvalidCursor) {
		return apierr.InvalidCursor(err)
	}
	return apierr.From(err)
}
