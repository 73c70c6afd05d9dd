package resolver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/maraichr/sqlscope/internal/catalog"
)

// completion hands a result to a callback at most once.
type completion[T any] struct {
	fired atomic.Bool
	fn    func(T, error)
}

func (c *completion[T]) deliver(v T, err error) bool {
	if !c.fired.CompareAndSwap(false, true) {
		return false
	}
	if c.fn != nil {
		c.fn(v, err)
	}
	return true
}

type outcome[T any] struct {
	v   T
	err error
}

// bounded runs work and waits for it at most timeout. Work that
// overruns is abandoned; its late result is dropped.
func bounded[T any](ctx context.Context, timeout time.Duration, work func(context.Context) (T, error)) (T, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan outcome[T], 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				var zero T
				done <- outcome[T]{zero, fmt.Errorf("panic: %v", r)}
			}
		}()
		v, err := work(ctx)
		done <- outcome[T]{v, err}
	}()

	select {
	case o := <-done:
		return o.v, o.err
	case <-ctx.Done():
		var zero T
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return zero, fmt.Errorf("%w after %s", ErrTimeout, timeout)
		}
		return zero, ctx.Err()
	}
}

// ResolveTableAsync resolves ref in the background. done is called exactly
// once, with the object or with the reason it could not be resolved.
func (e *Engine) ResolveTableAsync(ctx context.Context, ref string, conn *catalog.Connection, sctx *SQLContext, done func(*catalog.Object, error)) {
	c := &completion[*catalog.Object]{fn: done}
	go func() {
		obj, err := bounded(ctx, e.opts.Timeout, func(ctx context.Context) (*catalog.Object, error) {
			return e.resolveTable(ctx, ref, conn, sctx)
		})
		if err != nil {
			c.deliver(nil, err)
			return
		}
		c.deliver(obj, nil)
	}()
}

// GetColumnsAsync loads obj's columns in the background. done is called
// exactly once: with the columns, or with nil and the failure reason.
func (e *Engine) GetColumnsAsync(ctx context.Context, obj *catalog.Object, conn *catalog.Connection, done func([]catalog.Column, error)) {
	c := &completion[[]catalog.Column]{fn: done}
	go func() {
		cols, err := bounded(ctx, e.opts.Timeout, func(ctx context.Context) ([]catalog.Column, error) {
			return e.columns(ctx, obj, conn)
		})
		if err != nil {
			c.deliver(nil, err)
			return
		}
		c.deliver(cols, nil)
	}()
}

// PreResolveScope resolves every alias and table reference of sctx one
// after the other and memoizes the results in sctx.Resolved.
func (e *Engine) PreResolveScope(ctx context.Context, sctx *SQLContext, conn *catalog.Connection) *ResolvedScope {
	rs := e.resolvedScope(sctx)
	for _, t := range preResolveTargets(sctx) {
		obj, err := e.resolveTable(ctx, t.ref, conn, sctx)
		rs.record(Resolution{Ref: t.ref, Alias: t.alias, Object: obj, Err: err})
	}
	return rs
}

// PreResolveScopeAsync resolves every alias and table reference of sctx
// concurrently, at most MaxParallel at a time. done fires exactly once,
// after the last resolution has completed, with the memoized scope; the
// outcome of each reference is in its Results.
func (e *Engine) PreResolveScopeAsync(ctx context.Context, sctx *SQLContext, conn *catalog.Connection, done func(*ResolvedScope, error)) {
	rs := e.resolvedScope(sctx)
	agg := &completion[*ResolvedScope]{fn: done}
	targets := preResolveTargets(sctx)
	if len(targets) == 0 {
		go agg.deliver(rs, nil)
		return
	}

	var pending atomic.Int64
	pending.Store(int64(len(targets)))

	go func() {
		var g errgroup.Group
		g.SetLimit(e.opts.MaxParallel)
		for _, t := range targets {
			g.Go(func() error {
				obj, err := bounded(ctx, e.opts.Timeout, func(ctx context.Context) (*catalog.Object, error) {
					return e.resolveTable(ctx, t.ref, conn, sctx)
				})
				rs.record(Resolution{Ref: t.ref, Alias: t.alias, Object: obj, Err: err})
				if pending.Add(-1) == 0 {
					agg.deliver(rs, nil)
				}
				return nil
			})
		}
		_ = g.Wait()
		e.logger.Debug("scope pre-resolved",
			slog.String("scope", rs.ID.String()),
			slog.Int("references", len(targets)))
	}()
}

// resolvedScope returns the scope memo of sctx, creating it when missing.
func (e *Engine) resolvedScope(sctx *SQLContext) *ResolvedScope {
	if sctx == nil {
		return NewResolvedScope()
	}
	if sctx.Resolved == nil {
		sctx.Resolved = NewResolvedScope()
	}
	return sctx.Resolved
}
