package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/maraichr/sqlscope/internal/api"
	"github.com/maraichr/sqlscope/internal/app"
	"github.com/maraichr/sqlscope/internal/config"
	"github.com/maraichr/sqlscope/internal/resolver"
	vk "github.com/maraichr/sqlscope/internal/store/valkey"
)

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

	// Catalog
	conn, closeCatalog, err := app.Connect(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to connect to catalog", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer closeCatalog()

	// Valkey is optional; it backs the column metadata cache
	var cache resolver.ColumnCache
	vkClient, err := vk.Connect(ctx, cfg.Valkey)
	if err != nil {
		logger.Warn("valkey connection failed, column cache disabled", slog.String("error", err.Error()))
	} else {
		cache = vk.NewColumnCache(vkClient, cfg.Valkey.TTL)
		defer vkClient.Close()
		logger.Info("connected to valkey")
	}

	engine := app.NewEngine(cfg, conn, cache, logger)
	router := api.NewRouter(logger, engine)

	srv := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.Info("starting API server", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", slog.String("error", err.Error()))
	}

	logger.Info("server stopped")
}
