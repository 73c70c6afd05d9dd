package resolver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/maraichr/sqlscope/internal/catalog"
	"github.com/maraichr/sqlscope/internal/ident"
)

// Failure reasons. Synchronous lookups collapse all of them to a nil result;
// async callbacks receive them wrapped.
var (
	ErrTimeout    = errors.New("resolution timed out")
	ErrLoadFailed = errors.New("database load failed")
	ErrNotFound   = errors.New("object not found")
	ErrRPCFailed  = errors.New("metadata rpc failed")
)

const (
	DefaultTimeout         = 5 * time.Second
	DefaultMaxSynonymDepth = 10
	DefaultMaxParallel     = 8
)

// Options tune an Engine. Zero values take the defaults above.
type Options struct {
	// Timeout bounds each database load, column load and metadata RPC.
	Timeout         time.Duration
	MaxSynonymDepth int
	// MaxParallel caps concurrent resolutions during async pre-resolution.
	MaxParallel int
	// DefaultSchemas overrides the per-vendor default schema.
	DefaultSchemas map[string]string
	// Cache holds metadata RPC column results. Optional.
	Cache ColumnCache
}

// Engine resolves table references against a catalog connection. It holds
// no per-buffer state and is safe for concurrent use.
type Engine struct {
	opts   Options
	logger *slog.Logger
}

func NewEngine(opts Options, logger *slog.Logger) *Engine {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.MaxSynonymDepth <= 0 {
		opts.MaxSynonymDepth = DefaultMaxSynonymDepth
	}
	if opts.MaxParallel <= 0 {
		opts.MaxParallel = DefaultMaxParallel
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Engine{opts: opts, logger: logger}
}

// ResolveTable resolves ref, which may be an alias, a temp table or a one to
// four part name, to a concrete catalog object. Synonyms are followed to
// their base object. Any failure yields nil.
func (e *Engine) ResolveTable(ctx context.Context, ref string, conn *catalog.Connection, sctx *SQLContext) *catalog.Object {
	obj, err := e.resolveTable(ctx, ref, conn, sctx)
	if err != nil {
		e.logger.Debug("table not resolved",
			slog.String("ref", ref),
			slog.String("reason", err.Error()))
		return nil
	}
	return obj
}

func (e *Engine) resolveTable(ctx context.Context, ref string, conn *catalog.Connection, sctx *SQLContext) (obj *catalog.Object, err error) {
	defer func() {
		if r := recover(); r != nil {
			obj, err = nil, fmt.Errorf("resolve %s: panic: %v", ref, r)
		}
	}()

	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, fmt.Errorf("%w: empty reference", ErrNotFound)
	}
	if ident.IsTempTable(ref) {
		return e.resolveTemp(ctx, ref, conn, sctx)
	}

	// aliases are followed one hop only
	if target, ok := sctx.ResolveAlias(ref); ok {
		ref = target
		if ident.IsTempTable(ref) {
			return e.resolveTemp(ctx, ref, conn, sctx)
		}
	}
	if obj := sctx.TempTable(ref); obj != nil {
		return obj, nil
	}
	if conn == nil {
		return nil, fmt.Errorf("%w: no connection", ErrNotFound)
	}

	qn := ident.ParseQualifiedName(ref)
	db := conn.Database
	if qn.Database != "" {
		if conn.Server == nil {
			return nil, fmt.Errorf("%w: %s: no server to find database %s", ErrNotFound, ref, qn.Database)
		}
		db = conn.Server.FindDatabase(qn.Database)
		if db == nil {
			return nil, fmt.Errorf("%w: %s: unknown database %s", ErrNotFound, ref, qn.Database)
		}
	}
	if db == nil {
		return nil, fmt.Errorf("%w: %s: no database selected", ErrNotFound, ref)
	}
	if err := e.load(ctx, db); err != nil {
		return nil, err
	}

	defSchema := catalog.DefaultSchema(e.vendor(conn, sctx), e.opts.DefaultSchemas)
	found, rule := search(db, qn.Schema, qn.Name, defSchema)
	if found == nil {
		return nil, fmt.Errorf("%w: %s in %s", ErrNotFound, ref, db.Name())
	}
	e.logger.Debug("table matched",
		slog.String("ref", ref),
		slog.String("object", found.String()),
		slog.String("rule", rule))

	if found.IsSynonym() {
		return e.followSynonym(ctx, found)
	}
	return found, nil
}

// resolveTemp handles #local and ##global temp tables. Global temp tables
// live in tempdb.dbo; local ones are only known from the buffer.
func (e *Engine) resolveTemp(ctx context.Context, ref string, conn *catalog.Connection, sctx *SQLContext) (*catalog.Object, error) {
	if obj := sctx.TempTable(ref); obj != nil {
		return obj, nil
	}
	if !ident.IsGlobalTemp(ref) {
		return nil, fmt.Errorf("%w: local temp table %s needs buffer context", ErrNotFound, ref)
	}
	if conn == nil || conn.Server == nil {
		return nil, fmt.Errorf("%w: %s: no server", ErrNotFound, ref)
	}
	tempdb := conn.Server.FindDatabase("tempdb")
	if tempdb == nil {
		return nil, fmt.Errorf("%w: %s: server has no tempdb", ErrNotFound, ref)
	}
	if err := e.load(ctx, tempdb); err != nil {
		return nil, err
	}
	name := ident.ShortName(ref)
	for _, o := range tempdb.Tables("dbo") {
		if ident.Equal(o.Name, name) {
			return o, nil
		}
	}
	return nil, fmt.Errorf("%w: %s in tempdb", ErrNotFound, ref)
}

// followSynonym walks a synonym chain to the first non-synonym object. A
// chain longer than MaxSynonymDepth hops counts as unresolved.
func (e *Engine) followSynonym(ctx context.Context, syn *catalog.Object) (*catalog.Object, error) {
	cur := syn
	for hop := 0; hop < e.opts.MaxSynonymDepth; hop++ {
		if cur.Resolve == nil {
			return nil, fmt.Errorf("%w: synonym %s cannot be resolved", ErrNotFound, cur.QualifiedName())
		}
		next, err := cur.Resolve(ctx)
		if err != nil {
			return nil, fmt.Errorf("%w: synonym %s: %w", ErrNotFound, cur.QualifiedName(), err)
		}
		if next == nil {
			return nil, fmt.Errorf("%w: synonym %s has no target", ErrNotFound, cur.QualifiedName())
		}
		if !next.IsSynonym() {
			return next, nil
		}
		cur = next
	}
	return nil, fmt.Errorf("%w: synonym %s: chain longer than %d", ErrNotFound, syn.QualifiedName(), e.opts.MaxSynonymDepth)
}

// load triggers a database load bounded by the engine timeout.
func (e *Engine) load(ctx context.Context, db catalog.Database) error {
	if db.IsLoaded() {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, e.opts.Timeout)
	defer cancel()
	if err := db.Load(ctx); err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("%w: loading %s: %w", ErrTimeout, db.Name(), err)
		}
		return fmt.Errorf("%w: %s: %w", ErrLoadFailed, db.Name(), err)
	}
	return nil
}

func (e *Engine) vendor(conn *catalog.Connection, sctx *SQLContext) string {
	if v := conn.Vendor(); v != "" {
		return v
	}
	if sctx != nil {
		return catalog.NormalizeVendor(sctx.Vendor)
	}
	return ""
}
