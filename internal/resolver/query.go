package resolver

import (
	"context"
	"sort"
	"strings"

	"github.com/maraichr/sqlscope/internal/catalog"
	"github.com/maraichr/sqlscope/internal/ident"
	"github.com/maraichr/sqlscope/internal/inference"
	"github.com/maraichr/sqlscope/internal/scope"
)

// Context gathers what is visible at offset in tree: aliases, the relations
// they name, and the inferred columns of every CTE, derived table and temp
// table among them. Catalog lookups needed for inference go through conn.
func (e *Engine) Context(ctx context.Context, tree *scope.Tree, offset int, conn *catalog.Connection) *SQLContext {
	sctx := &SQLContext{
		Aliases:  tree.AliasesVisibleAt(offset),
		Vendor:   tree.Vendor,
		Resolved: NewResolvedScope(),
	}
	ctes := tree.CTEsVisibleAt(offset)
	in := inference.New(e.sources(conn, sctx, tree, offset), ctes)

	aliases := make([]string, 0, len(sctx.Aliases))
	for a := range sctx.Aliases {
		aliases = append(aliases, a)
	}
	sort.Strings(aliases)

	for _, alias := range aliases {
		ref := sctx.Aliases[alias]
		t := TableRef{Name: ref, Alias: alias, Kind: catalog.KindTable}
		if c, ok := ctes[ident.Fold(ref)]; ok && !strings.Contains(ref, ".") {
			t.Kind = catalog.KindCTE
			t.Columns = in.CTE(ctx, c)
		} else if tt := tree.TempTable(ref, offset); tt != nil {
			t.Kind = catalog.KindTempTable
			t.Columns = in.TempTable(ctx, tt)
			sctx.addTemp(Synthetic(tt.Name, catalog.KindTempTable, t.Columns))
		}
		sctx.Tables = append(sctx.Tables, t)
	}

	derived := tree.DerivedVisibleAt(offset)
	names := make([]string, 0, len(derived))
	for alias := range derived {
		names = append(names, alias)
	}
	sort.Strings(names)
	for _, alias := range names {
		sctx.Tables = append(sctx.Tables, TableRef{
			Name:    alias,
			Alias:   alias,
			Kind:    catalog.KindSubquery,
			Columns: in.Projection(ctx, derived[alias], nil),
		})
	}
	return sctx
}

// sources lets inference look up real tables through the engine. Temp
// tables declared in the buffer are inferred from it; a temp table reading
// from itself yields nothing.
func (e *Engine) sources(conn *catalog.Connection, sctx *SQLContext, tree *scope.Tree, offset int) inference.Sources {
	active := make(map[string]bool)
	var src inference.SourcesFunc
	src = func(ctx context.Context, ref string) []catalog.Column {
		if tt := tree.TempTable(ref, offset); tt != nil {
			key := ident.Fold(ref)
			if active[key] {
				return nil
			}
			active[key] = true
			defer delete(active, key)
			return inference.New(src, tree.CTEsVisibleAt(offset)).TempTable(ctx, tt)
		}
		obj := e.ResolveTable(ctx, ref, conn, sctx)
		if obj == nil {
			return nil
		}
		return e.GetColumns(ctx, obj, conn)
	}
	return src
}

// ResolveAllTablesInQuery resolves every relation of sctx once, by
// lower-cased name. Buffer-only relations become synthetic objects carrying
// their inferred columns; the rest go through the pre-resolved scope first
// and ResolveTable second. Unresolvable references are left out.
func (e *Engine) ResolveAllTablesInQuery(ctx context.Context, conn *catalog.Connection, sctx *SQLContext) []*catalog.Object {
	if sctx == nil {
		return nil
	}
	var out []*catalog.Object
	seen := make(map[string]bool)
	for _, t := range sctx.Tables {
		key := ident.Fold(t.Name)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true

		if t.Synthetic() {
			out = append(out, Synthetic(t.Name, t.Kind, t.Columns))
			continue
		}
		obj := sctx.Resolved.Table(t.Name)
		if obj == nil && t.Alias != "" {
			obj = sctx.Resolved.Alias(t.Alias)
		}
		if obj == nil {
			obj = e.ResolveTable(ctx, t.Name, conn, sctx)
		}
		if obj != nil {
			out = append(out, obj)
		}
	}
	return out
}

// ResolveTempTable resolves a local temp table declared in tree before
// cursor to a synthetic object with inferred columns. Global temp tables
// are looked up in tempdb.
func (e *Engine) ResolveTempTable(ctx context.Context, tree *scope.Tree, name string, cursor int, conn *catalog.Connection) *catalog.Object {
	tt := tree.TempTable(name, cursor)
	if tt == nil {
		if ident.IsGlobalTemp(name) {
			return e.ResolveTable(ctx, name, conn, nil)
		}
		return nil
	}
	sctx := &SQLContext{Aliases: tree.AliasesVisibleAt(cursor), Vendor: tree.Vendor}
	in := inference.New(e.sources(conn, sctx, tree, cursor), tree.CTEsVisibleAt(cursor))
	return Synthetic(tt.Name, catalog.KindTempTable, in.TempTable(ctx, tt))
}
