package valkey

import (
	"context"
	"fmt"
	"time"

	"github.com/valkey-io/valkey-go"

	"github.com/maraichr/sqlscope/internal/config"
)

const (
	clientName  = "sqlscope"
	pingTimeout = 3 * time.Second
)

// Connect opens a client for the column cache and MCP sessions and checks
// that the server answers within pingTimeout. Callers treat an error as
// "run without Valkey".
func Connect(ctx context.Context, cfg config.ValkeyConfig) (valkey.Client, error) {
	client, err := valkey.NewClient(clientOptions(cfg))
	if err != nil {
		return nil, fmt.Errorf("valkey %s: %w", cfg.Addr, err)
	}

	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := client.Do(ctx, client.B().Ping().Build()).Error(); err != nil {
		client.Close()
		return nil, fmt.Errorf("valkey %s: ping: %w", cfg.Addr, err)
	}
	return client, nil
}

// clientOptions maps the config section onto client options. Cached
// columns and sessions are read once per request, so server-assisted
// client caching stays off.
func clientOptions(cfg config.ValkeyConfig) valkey.ClientOption {
	return valkey.ClientOption{
		InitAddress:  []string{cfg.Addr},
		Password:     cfg.Password,
		SelectDB:     cfg.DB,
		ClientName:   clientName,
		DisableCache: true,
	}
}
