// Package app wires configuration into a ready analysis engine. The api,
// mcp and CLI binaries all start here.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/maraichr/sqlscope/internal/analysis"
	"github.com/maraichr/sqlscope/internal/catalog"
	"github.com/maraichr/sqlscope/internal/catalog/memory"
	"github.com/maraichr/sqlscope/internal/catalog/snapshot"
	"github.com/maraichr/sqlscope/internal/catalog/sqlcat"
	"github.com/maraichr/sqlscope/internal/config"
	"github.com/maraichr/sqlscope/internal/parser"
	"github.com/maraichr/sqlscope/internal/parser/treesitter"
	"github.com/maraichr/sqlscope/internal/parser/tsql"
	"github.com/maraichr/sqlscope/internal/resolver"
	"github.com/maraichr/sqlscope/internal/scope"
	minioclient "github.com/maraichr/sqlscope/internal/store/minio"
)

// ErrNoDatabase is returned when the catalog holds no database to connect to.
var ErrNoDatabase = errors.New("catalog has no database")

// Parsers returns the structured parsers in preference order: the T-SQL
// structure parser, then tree-sitter. A registered name narrows the set to
// that parser; "regex" leaves it empty so every build takes the regex
// fallback.
func Parsers(name string, logger *slog.Logger) *parser.Registry {
	all := parser.NewRegistry(tsql.New(), treesitter.New(logger))
	switch name {
	case "", config.ParserAuto:
		return all
	case config.ParserRegex:
		return parser.NewRegistry()
	}
	if only := all.Only(name); only != nil {
		return only
	}
	logger.Warn("unknown parser, using all", slog.String("parser", name))
	return all
}

// ResolverOptions maps the resolver config section onto engine options.
func ResolverOptions(cfg config.ResolverConfig, cache resolver.ColumnCache) resolver.Options {
	return resolver.Options{
		Timeout:         cfg.Timeout,
		MaxSynonymDepth: cfg.MaxSynonymDepth,
		MaxParallel:     cfg.MaxParallel,
		DefaultSchemas:  cfg.DefaultSchemas,
		Cache:           cache,
	}
}

// NewEngine builds an analysis engine over conn. cache may be nil.
func NewEngine(cfg *config.Config, conn *catalog.Connection, cache resolver.ColumnCache, logger *slog.Logger) *analysis.Engine {
	return analysis.NewEngine(
		scope.NewBuilder(Parsers(cfg.Resolver.Parser, logger), logger),
		resolver.NewEngine(ResolverOptions(cfg.Resolver, cache), logger),
		conn,
		logger,
	)
}

// Connect opens the catalog named by cfg.Catalog. The returned close func
// releases whatever the source holds open and is never nil.
func Connect(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*catalog.Connection, func(), error) {
	noop := func() {}
	c := cfg.Catalog

	var (
		srv     *memory.Server
		rpc     catalog.MetadataRPC
		closeFn = noop
		err     error
	)
	switch c.Source {
	case config.CatalogFile:
		srv, err = snapshot.LoadFile(c.Path)
		if err != nil {
			return nil, noop, err
		}
	case config.CatalogMinIO:
		mc, err := minioclient.NewClient(cfg.MinIO)
		if err != nil {
			return nil, noop, err
		}
		srv, err = snapshot.LoadObject(ctx, mc, c.Path)
		if err != nil {
			return nil, noop, fmt.Errorf("load snapshot %s: %w", c.Path, err)
		}
	case config.CatalogSQL:
		db, err := sqlcat.Open(ctx, c.Driver, c.DSN)
		if err != nil {
			return nil, noop, err
		}
		vendor := c.Vendor
		if vendor == "" {
			vendor = sqlcat.DriverVendor(c.Driver)
		}
		cat, err := sqlcat.New(db, vendor, logger)
		if err != nil {
			db.Close()
			return nil, noop, err
		}
		if c.Database == "" {
			db.Close()
			return nil, noop, fmt.Errorf("CATALOG_DATABASE is required when CATALOG_SOURCE=sql")
		}
		srv = cat.Server(c.Server, c.Database)
		rpc = cat.RPC()
		closeFn = func() { db.Close() }
	default:
		return nil, noop, fmt.Errorf("unknown catalog source %q", c.Source)
	}

	conn, err := Connection(srv, c.Database)
	if err != nil {
		closeFn()
		return nil, noop, err
	}
	conn.RPC = rpc
	logger.Info("catalog connected",
		slog.String("source", c.Source),
		slog.String("server", srv.Name()),
		slog.String("database", conn.Database.Name()),
		slog.String("vendor", conn.Vendor()))
	return conn, closeFn, nil
}

// Connection points at database on srv, or at its first database when
// database is empty.
func Connection(srv *memory.Server, database string) (*catalog.Connection, error) {
	var db catalog.Database
	if database != "" {
		db = srv.FindDatabase(database)
		if db == nil {
			return nil, fmt.Errorf("database %s not in catalog %s", database, srv.Name())
		}
	} else {
		dbs := srv.Databases()
		if len(dbs) == 0 {
			return nil, ErrNoDatabase
		}
		db = dbs[0]
	}
	return &catalog.Connection{
		Server:   srv,
		Database: db,
		Config:   catalog.Config{"server": srv.Name(), "database": db.Name()},
	}, nil
}
