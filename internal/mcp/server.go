package mcp

import (
	"log/slog"
	"net/http"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
)

// Server wraps the SDK server the SQL tools are registered on.
type Server struct {
	SDK    *sdkmcp.Server
	logger *slog.Logger
}

// NewServer creates a new MCP server instance.
func NewServer(version string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Server{
		SDK:    sdkmcp.NewServer(&sdkmcp.Implementation{Name: "sqlscope", Version: version}, nil),
		logger: logger,
	}
}

// Handler serves the server over Streamable HTTP.
//
// Stateless mode ignores stale transport session IDs after a restart; the
// SQL buffer lives in the app-level session named by the session_id tool
// parameter instead.
func (s *Server) Handler() http.Handler {
	return sdkmcp.NewStreamableHTTPHandler(
		func(*http.Request) *sdkmcp.Server { return s.SDK },
		&sdkmcp.StreamableHTTPOptions{Stateless: true},
	)
}
