// Package analysis answers cursor questions about a SQL buffer: which scope
// the cursor is in, which relations are visible there, what they resolve to
// in the catalog and which columns they carry.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/maraichr/sqlscope/internal/catalog"
	"github.com/maraichr/sqlscope/internal/ident"
	"github.com/maraichr/sqlscope/internal/resolver"
	"github.com/maraichr/sqlscope/internal/scope"
	"github.com/maraichr/sqlscope/pkg/models"
)

// ErrInvalidCursor is returned when the requested cursor lies outside the
// SQL text.
var ErrInvalidCursor = errors.New("cursor outside sql text")

// MaxSQLBytes caps the buffer size a single request may analyze.
const MaxSQLBytes = 1 << 20

// Engine ties the scope builder and the resolver to one catalog connection.
type Engine struct {
	builder  *scope.Builder
	resolver *resolver.Engine
	conn     *catalog.Connection
	logger   *slog.Logger
	parallel int
}

// NewEngine returns an engine resolving against conn, which may be nil when
// no catalog is configured.
func NewEngine(b *scope.Builder, r *resolver.Engine, conn *catalog.Connection, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Engine{builder: b, resolver: r, conn: conn, logger: logger, parallel: resolver.DefaultMaxParallel}
}

// Connection returns the catalog connection the engine resolves against.
func (e *Engine) Connection() *catalog.Connection { return e.conn }

// vendor picks the request's vendor, then the connection's.
func (e *Engine) vendor(requested string) string {
	if requested != "" {
		return catalog.NormalizeVendor(requested)
	}
	return e.conn.Vendor()
}

// Tree builds the scope tree of sql.
func (e *Engine) Tree(ctx context.Context, sql, vendor string) *scope.Tree {
	return e.builder.Build(ctx, sql, e.vendor(vendor))
}

// Analyze reports the scope at the request's cursor and resolves every
// relation visible there. Resolution misses are part of the result, not
// errors; only an invalid cursor or a cancelled ctx fail the call.
func (e *Engine) Analyze(ctx context.Context, req models.AnalyzeRequest) (*models.Analysis, error) {
	started := time.Now()
	tree := e.Tree(ctx, req.SQL, req.Vendor)
	offset, err := Offset(tree, req.Cursor)
	if err != nil {
		return nil, err
	}

	sctx := e.resolver.Context(ctx, tree, offset, e.conn)
	if err := e.preResolve(ctx, sctx); err != nil {
		return nil, err
	}

	objects := e.resolver.ResolveAllTablesInQuery(ctx, e.conn, sctx)
	out := &models.Analysis{
		RequestID:   uuid.New(),
		Vendor:      tree.Vendor,
		Parser:      tree.Parser,
		Degraded:    tree.Degraded,
		ParseErrors: tree.ParseErrors,
		Offset:      offset,
		Scope:       scopeSummary(tree.ScopeAt(offset)),
		Aliases:     sctx.Aliases,
		CTEs:        cteNames(tree.CTEsVisibleAt(offset)),
		Tables:      tableRefs(sctx),
		Objects:     e.objects(ctx, objects),
		CreatedAt:   time.Now().UTC(),
	}
	if out.Parser == "" {
		out.Parser = "regex"
	}

	e.logger.Debug("sql analyzed",
		slog.String("request_id", out.RequestID.String()),
		slog.String("scope", out.Scope.Kind),
		slog.Int("tables", len(out.Tables)),
		slog.Int("objects", len(out.Objects)),
		slog.Duration("elapsed", time.Since(started)))
	return out, nil
}

// preResolve fills sctx.Resolved concurrently and waits for the aggregate
// callback, or for ctx to end.
func (e *Engine) preResolve(ctx context.Context, sctx *resolver.SQLContext) error {
	done := make(chan struct{})
	e.resolver.PreResolveScopeAsync(ctx, sctx, e.conn, func(*resolver.ResolvedScope, error) {
		close(done)
	})
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("pre-resolve scope: %w", ctx.Err())
	}
}

// objects loads the columns of each resolved object, a few at a time.
func (e *Engine) objects(ctx context.Context, objs []*catalog.Object) []models.Object {
	out := make([]models.Object, len(objs))
	var g errgroup.Group
	g.SetLimit(e.parallel)
	for i, obj := range objs {
		g.Go(func() error {
			out[i] = objectDTO(obj, e.resolver.GetColumns(ctx, obj, e.conn))
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// Columns lists the columns of req.Table. With SQL attached, the reference
// is read in the buffer's context at the cursor, so aliases, CTEs, derived
// tables and temp tables declared there resolve too.
func (e *Engine) Columns(ctx context.Context, req models.ColumnsRequest) (*models.ColumnsResponse, error) {
	ref := strings.TrimSpace(req.Table)
	out := &models.ColumnsResponse{RequestID: uuid.New(), Table: ref, Columns: []models.Column{}}

	var sctx *resolver.SQLContext
	if req.SQL != "" {
		tree := e.Tree(ctx, req.SQL, req.Vendor)
		offset, err := Offset(tree, req.Cursor)
		if err != nil {
			return nil, err
		}
		sctx = e.resolver.Context(ctx, tree, offset, e.conn)
		if t, ok := syntheticRef(sctx, ref); ok {
			obj := resolver.Synthetic(t.Name, t.Kind, t.Columns)
			dto := objectDTO(obj, t.Columns)
			out.Object, out.Columns = &dto, dto.Columns
			return out, nil
		}
		if ident.IsTempTable(ref) {
			if obj := e.resolver.ResolveTempTable(ctx, tree, ref, offset, e.conn); obj != nil {
				dto := objectDTO(obj, e.resolver.GetColumns(ctx, obj, e.conn))
				out.Object, out.Columns = &dto, dto.Columns
				return out, nil
			}
		}
	}

	obj, err := e.resolveAsync(ctx, ref, sctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		e.logger.Debug("columns: table not resolved",
			slog.String("table", ref),
			slog.String("reason", err.Error()))
		return out, nil
	}
	cols, err := e.columnsAsync(ctx, obj)
	if err != nil && ctx.Err() != nil {
		return nil, err
	}
	dto := objectDTO(obj, cols)
	out.Object, out.Columns = &dto, dto.Columns
	return out, nil
}

func (e *Engine) resolveAsync(ctx context.Context, ref string, sctx *resolver.SQLContext) (*catalog.Object, error) {
	type result struct {
		obj *catalog.Object
		err error
	}
	ch := make(chan result, 1)
	e.resolver.ResolveTableAsync(ctx, ref, e.conn, sctx, func(obj *catalog.Object, err error) {
		ch <- result{obj, err}
	})
	select {
	case r := <-ch:
		return r.obj, r.err
	case <-ctx.Done():
		return nil, fmt.Errorf("resolve %s: %w", ref, ctx.Err())
	}
}

func (e *Engine) columnsAsync(ctx context.Context, obj *catalog.Object) ([]catalog.Column, error) {
	type result struct {
		cols []catalog.Column
		err  error
	}
	ch := make(chan result, 1)
	e.resolver.GetColumnsAsync(ctx, obj, e.conn, func(cols []catalog.Column, err error) {
		ch <- result{cols, err}
	})
	select {
	case r := <-ch:
		return r.cols, r.err
	case <-ctx.Done():
		return nil, fmt.Errorf("columns of %s: %w", obj.QualifiedName(), ctx.Err())
	}
}

// syntheticRef finds a CTE, derived table or temp table of sctx named or
// aliased ref.
func syntheticRef(sctx *resolver.SQLContext, ref string) (resolver.TableRef, bool) {
	for _, t := range sctx.Tables {
		if t.Synthetic() && (ident.Equal(t.Alias, ref) || ident.Equal(t.Name, ref)) {
			return t, true
		}
	}
	return resolver.TableRef{}, false
}

func tableRefs(sctx *resolver.SQLContext) []models.TableRef {
	out := make([]models.TableRef, 0, len(sctx.Tables))
	for _, t := range sctx.Tables {
		ref := models.TableRef{Name: t.Name, Alias: t.Alias, Kind: string(t.Kind)}
		if t.Synthetic() {
			ref.Object, ref.Resolved = t.Name, true
			out = append(out, ref)
			continue
		}
		obj := sctx.Resolved.Alias(t.Alias)
		if obj == nil {
			obj = sctx.Resolved.Table(t.Name)
		}
		if obj != nil {
			ref.Kind = string(obj.Kind)
			ref.Object, ref.Resolved = obj.QualifiedName(), true
		}
		out = append(out, ref)
	}
	return out
}

func cteNames(ctes map[string]*scope.CTEInfo) []string {
	out := make([]string, 0, len(ctes))
	for _, c := range ctes {
		out = append(out, c.Name)
	}
	sort.Strings(out)
	return out
}

func scopeSummary(n *scope.Node) models.Scope {
	if n == nil {
		return models.Scope{Kind: scope.Global.String()}
	}
	return models.Scope{
		Kind:  n.Kind.String(),
		Depth: len(n.Ancestors()) - 1,
		Start: models.Position{Line: n.Span.Start.Line, Column: n.Span.Start.Col},
		End:   models.Position{Line: n.Span.End.Line, Column: n.Span.End.Col},
	}
}

func objectDTO(obj *catalog.Object, cols []catalog.Column) models.Object {
	return models.Object{
		Name:          obj.Name,
		Schema:        obj.Schema,
		Database:      obj.Database,
		Kind:          string(obj.Kind),
		QualifiedName: obj.QualifiedName(),
		Columns:       columnDTOs(cols),
	}
}

func columnDTOs(cols []catalog.Column) []models.Column {
	out := make([]models.Column, len(cols))
	for i, c := range cols {
		out[i] = models.Column{
			Name:            c.Name,
			DataType:        c.DataType,
			Nullable:        c.Nullable,
			IsPrimaryKey:    c.IsPrimaryKey,
			IsForeignKey:    c.IsForeignKey,
			OrdinalPosition: c.OrdinalPosition,
		}
	}
	return out
}
