package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/maraichr/sqlscope/internal/app"
	"github.com/maraichr/sqlscope/internal/config"
	"github.com/maraichr/sqlscope/internal/mcp"
	"github.com/maraichr/sqlscope/internal/mcp/session"
	"github.com/maraichr/sqlscope/internal/mcp/tools"
	"github.com/maraichr/sqlscope/internal/resolver"
	vk "github.com/maraichr/sqlscope/internal/store/valkey"
)

var version = "dev"

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	conn, closeCatalog, err := app.Connect(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to connect to catalog", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer closeCatalog()

	// Valkey (optional for sessions and the column cache). Without it,
	// sessions live in process memory.
	var (
		cache    resolver.ColumnCache
		sessions session.Store = session.NewMemory()
	)
	vkClient, err := vk.Connect(ctx, cfg.Valkey)
	if err != nil {
		logger.Warn("valkey unavailable, using in-memory sessions", slog.String("error", err.Error()))
	} else {
		defer vkClient.Close()
		cache = vk.NewColumnCache(vkClient, cfg.Valkey.TTL)
		sessions = session.NewManager(vkClient)
		logger.Info("connected to valkey")
	}

	engine := app.NewEngine(cfg, conn, cache, logger)

	// Tools are registered here to avoid the mcp <-> mcp/tools import cycle.
	server := mcp.NewServer(version, logger)
	tools.Register(server.SDK, engine, sessions, logger)

	handler := server.Handler()
	mux := http.NewServeMux()
	mux.Handle("/mcp", handler)
	// Also serve on root for clients configured without a path
	mux.Handle("/", handler)

	httpServer := &http.Server{Addr: cfg.MCP.Addr, Handler: mux}

	go func() {
		logger.Info("MCP server listening", slog.String("addr", cfg.MCP.Addr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("MCP HTTP server error", slog.String("error", err.Error()))
		}
	}()

	<-ctx.Done()
	logger.Info("MCP server shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("MCP HTTP shutdown", slog.String("error", err.Error()))
	}
	logger.Info("MCP server stopped")
}
