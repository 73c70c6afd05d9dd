package resolver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/maraichr/sqlscope/internal/catalog"
	"github.com/maraichr/sqlscope/internal/ident"
)

// ColumnCache stores metadata RPC column results between calls.
type ColumnCache interface {
	GetColumns(ctx context.Context, key string) ([]catalog.Column, error)
	SetColumns(ctx context.Context, key string, cols []catalog.Column) error
}

// GetColumns returns obj's columns: from its own loader when that yields
// any, otherwise from the column cache, the metadata RPC and finally the
// server adapter. It never returns nil; failures give an empty list.
func (e *Engine) GetColumns(ctx context.Context, obj *catalog.Object, conn *catalog.Connection) []catalog.Column {
	cols, err := e.columns(ctx, obj, conn)
	if err != nil {
		e.logger.Debug("columns unavailable",
			slog.String("object", obj.String()),
			slog.String("reason", err.Error()))
	}
	if cols == nil {
		return []catalog.Column{}
	}
	return cols
}

func (e *Engine) columns(ctx context.Context, obj *catalog.Object, conn *catalog.Connection) (cols []catalog.Column, err error) {
	defer func() {
		if r := recover(); r != nil {
			cols, err = nil, fmt.Errorf("columns of %s: panic: %v", obj, r)
		}
	}()
	if obj == nil {
		return nil, fmt.Errorf("%w: no object", ErrNotFound)
	}

	if obj.Columns != nil {
		cols, err := e.objectColumns(ctx, obj)
		if err == nil && len(cols) > 0 {
			return cols, nil
		}
		if err != nil {
			e.logger.Debug("object column loader failed, falling back",
				slog.String("object", obj.String()),
				slog.String("error", err.Error()))
		}
	}
	switch obj.Kind {
	case catalog.KindCTE, catalog.KindSubquery, catalog.KindTempTable:
		// nothing outside the buffer knows these
		return nil, fmt.Errorf("%w: no inferred columns for %s", ErrNotFound, obj)
	}
	return e.remoteColumns(ctx, obj, conn)
}

func (e *Engine) objectColumns(ctx context.Context, obj *catalog.Object) (cols []catalog.Column, err error) {
	ctx, cancel := context.WithTimeout(ctx, e.opts.Timeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			cols, err = nil, fmt.Errorf("column loader panic: %v", r)
		}
	}()
	return obj.Columns(ctx)
}

// remoteColumns asks the connection service for columns, going through the
// cache when one is configured.
func (e *Engine) remoteColumns(ctx context.Context, obj *catalog.Object, conn *catalog.Connection) ([]catalog.Column, error) {
	if conn == nil {
		return nil, fmt.Errorf("%w: %s: no connection", ErrRPCFailed, obj)
	}
	key := e.cacheKey(obj, conn)
	if e.opts.Cache != nil {
		cols, err := e.opts.Cache.GetColumns(ctx, key)
		switch {
		case err != nil:
			e.logger.Debug("column cache read failed", slog.String("key", key), slog.String("error", err.Error()))
		case len(cols) > 0:
			return cols, nil
		}
	}

	var errs []error
	for _, fetch := range []func(context.Context, *catalog.Object, *catalog.Connection) ([]catalog.Column, error){
		e.rpcColumns,
		e.adapterColumns,
	} {
		cols, err := fetch(ctx, obj, conn)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if len(cols) == 0 {
			continue
		}
		if e.opts.Cache != nil {
			if err := e.opts.Cache.SetColumns(ctx, key, cols); err != nil {
				e.logger.Debug("column cache write failed", slog.String("key", key), slog.String("error", err.Error()))
			}
		}
		return cols, nil
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return nil, fmt.Errorf("%w: no columns for %s", ErrNotFound, obj)
}

func (e *Engine) rpcColumns(ctx context.Context, obj *catalog.Object, conn *catalog.Connection) ([]catalog.Column, error) {
	if conn.RPC == nil {
		return nil, nil
	}
	ctx, cancel := context.WithTimeout(ctx, e.opts.Timeout)
	defer cancel()

	rows, err := conn.RPC.Call(ctx, catalog.RPCRequest{
		Config: conn.Config.Serialize(),
		Method: "columns",
		Object: e.rpcObjectName(obj, conn),
		Schema: obj.Schema,
	})
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: columns of %s: %w", ErrTimeout, obj, err)
		}
		return nil, fmt.Errorf("%w: columns of %s: %w", ErrRPCFailed, obj, err)
	}
	return catalog.NormalizeColumns(rows), nil
}

func (e *Engine) adapterColumns(ctx context.Context, obj *catalog.Object, conn *catalog.Connection) ([]catalog.Column, error) {
	if conn.Server == nil || conn.Server.Adapter() == nil {
		return nil, nil
	}
	adapter := conn.Server.Adapter()
	ctx, cancel := context.WithTimeout(ctx, e.opts.Timeout)
	defer cancel()

	rows, err := adapter.Execute(ctx, conn.Config, adapter.ColumnsQuery(obj.Database, obj.Schema, obj.Name))
	if err != nil {
		return nil, fmt.Errorf("%w: adapter query for %s: %w", ErrRPCFailed, obj, err)
	}
	return adapter.ParseColumns(rows), nil
}

// rpcObjectName qualifies the object with its database when that is not
// the connection's own.
func (e *Engine) rpcObjectName(obj *catalog.Object, conn *catalog.Connection) string {
	if obj.Database == "" || conn.Database == nil || ident.Equal(obj.Database, conn.Database.Name()) {
		return obj.Name
	}
	return ident.QualifiedName{Database: obj.Database, Schema: obj.Schema, Name: obj.Name}.String()
}

func (e *Engine) cacheKey(obj *catalog.Object, conn *catalog.Connection) string {
	server := ""
	if conn.Server != nil {
		server = conn.Server.Name()
	}
	database := obj.Database
	if database == "" && conn.Database != nil {
		database = conn.Database.Name()
	}
	return catalog.ColumnCacheKey(server, database, obj.Schema, obj.Name)
}
