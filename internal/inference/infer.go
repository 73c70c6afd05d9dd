// Package inference works out the column lists of relations that exist only
// in the SQL buffer: temp tables, CTEs and derived tables.
package inference

import (
	"context"
	"strconv"
	"strings"

	"github.com/maraichr/sqlscope/internal/catalog"
	"github.com/maraichr/sqlscope/internal/ident"
	"github.com/maraichr/sqlscope/internal/parser"
	"github.com/maraichr/sqlscope/internal/scope"
)

// DDLColumns maps CREATE TABLE column definitions onto catalog columns.
// A missing type becomes DefaultType; a column is nullable unless declared
// NOT NULL or part of the primary key.
func DDLColumns(defs []parser.ColumnDef) []catalog.Column {
	cols := make([]catalog.Column, 0, len(defs))
	for i, d := range defs {
		typ := strings.TrimSpace(d.Type)
		if typ == "" {
			typ = DefaultType
		}
		cols = append(cols, catalog.Column{
			Name:            ident.Normalize(d.Name),
			DataType:        typ,
			Nullable:        !d.NotNull && !d.PrimaryKey,
			IsPrimaryKey:    d.PrimaryKey,
			OrdinalPosition: i + 1,
		})
	}
	return cols
}

// Sources looks up the columns of a table reference as written in a FROM
// clause. Implementations return nil for anything they cannot resolve.
type Sources interface {
	Columns(ctx context.Context, ref string) []catalog.Column
}

// SourcesFunc adapts a function to Sources.
type SourcesFunc func(ctx context.Context, ref string) []catalog.Column

func (f SourcesFunc) Columns(ctx context.Context, ref string) []catalog.Column { return f(ctx, ref) }

// Inferrer derives column lists for one cursor position. It is not safe for
// concurrent use.
type Inferrer struct {
	sources Sources
	ctes    map[string]*scope.CTEInfo
	active  map[string]bool // CTEs whose inference is in progress
}

// New returns an inferrer. ctes are the CTEs visible at the cursor, keyed by
// folded name; sources may be nil when no catalog is available.
func New(sources Sources, ctes map[string]*scope.CTEInfo) *Inferrer {
	if sources == nil {
		sources = SourcesFunc(func(context.Context, string) []catalog.Column { return nil })
	}
	if ctes == nil {
		ctes = make(map[string]*scope.CTEInfo)
	}
	return &Inferrer{sources: sources, ctes: ctes, active: make(map[string]bool)}
}

// TempTable returns a temp table's columns: its DDL when it was created with
// a column list, its projection when it was filled by SELECT INTO, and
// nothing when only its name is known.
func (in *Inferrer) TempTable(ctx context.Context, t *scope.TempTable) []catalog.Column {
	switch {
	case t == nil:
		return nil
	case len(t.Columns) > 0:
		return DDLColumns(t.Columns)
	case t.Query != nil:
		return in.Projection(ctx, t.Query, t.Types)
	}
	return nil
}

// CTE returns a CTE's columns. A declared column list names the columns and
// the projection supplies their types when the counts agree.
func (in *Inferrer) CTE(ctx context.Context, c *scope.CTEInfo) []catalog.Column {
	if c == nil {
		return nil
	}
	key := ident.Fold(c.Name)
	if in.active[key] {
		return nil
	}
	in.active[key] = true
	defer delete(in.active, key)

	projected := in.Projection(ctx, c.Query, nil)
	if len(c.Columns) == 0 {
		return projected
	}

	cols := make([]catalog.Column, len(c.Columns))
	for i, name := range c.Columns {
		cols[i] = catalog.Column{Name: name, DataType: DefaultType, Nullable: true, OrdinalPosition: i + 1}
		if len(projected) == len(c.Columns) {
			cols[i].DataType = projected[i].DataType
			cols[i].Nullable = projected[i].Nullable
		}
	}
	return cols
}

// Projection returns the output columns of a SELECT, expanding * and
// alias.* against the projection's sources. types carries statically known
// column types keyed by lower-cased column name.
func (in *Inferrer) Projection(ctx context.Context, p *scope.Projection, types map[string]string) []catalog.Column {
	if p == nil {
		return nil
	}
	memo := make(map[int][]catalog.Column)
	sourceCols := func(i int) []catalog.Column {
		if cols, ok := memo[i]; ok {
			return cols
		}
		cols := in.source(ctx, p.Sources[i])
		memo[i] = cols
		return cols
	}

	var out []catalog.Column
	for _, item := range p.Items {
		if item.Star {
			out = append(out, in.expandStar(p, item, sourceCols)...)
			continue
		}
		out = append(out, in.item(p, item, types, sourceCols, len(out)))
	}
	for i := range out {
		out[i].OrdinalPosition = i + 1
	}
	return out
}

func (in *Inferrer) expandStar(p *scope.Projection, item parser.SelectItem, sourceCols func(int) []catalog.Column) []catalog.Column {
	var out []catalog.Column
	for i := range p.Sources {
		if item.Qualifier != "" && !matchesQualifier(p.Sources[i], item.Qualifier) {
			continue
		}
		for _, c := range sourceCols(i) {
			c.IsPrimaryKey, c.IsForeignKey = false, false
			out = append(out, c)
		}
		if item.Qualifier != "" {
			break
		}
	}
	return out
}

func (in *Inferrer) item(p *scope.Projection, item parser.SelectItem, types map[string]string, sourceCols func(int) []catalog.Column, pos int) catalog.Column {
	name, ok := ColumnName(item.Alias, item.Expr)
	if !ok {
		name = "column" + strconv.Itoa(pos+1)
	}
	col := catalog.Column{Name: name, DataType: DefaultType, Nullable: true}

	if qualifier, ref, ok := columnRef(item.Expr); ok {
		if src, found := lookupColumn(p, qualifier, ref, sourceCols); found {
			col.DataType = src.DataType
			col.Nullable = src.Nullable
			return col
		}
	}
	if t, ok := types[strings.ToLower(name)]; ok && t != "" {
		col.DataType = t
		return col
	}
	col.DataType = ExpressionType(item.Expr)
	return col
}

// lookupColumn finds a referenced column among the projection's sources:
// in the qualified source only, or in the first source that has it.
func lookupColumn(p *scope.Projection, qualifier, name string, sourceCols func(int) []catalog.Column) (catalog.Column, bool) {
	for i := range p.Sources {
		if qualifier != "" && !matchesQualifier(p.Sources[i], qualifier) {
			continue
		}
		for _, c := range sourceCols(i) {
			if ident.Equal(c.Name, name) {
				return c, true
			}
		}
		if qualifier != "" {
			break
		}
	}
	return catalog.Column{}, false
}

func matchesQualifier(s scope.Source, qualifier string) bool {
	switch {
	case ident.Equal(s.Alias, qualifier):
		return true
	case s.Table == "":
		return false
	case strings.Contains(qualifier, "."):
		return ident.Equal(s.Table, qualifier) || ident.Equal(ident.ShortName(s.Table), ident.ShortName(qualifier))
	}
	return ident.Equal(ident.ShortName(s.Table), qualifier)
}

// source returns the columns a FROM item contributes. Unqualified names are
// tried as visible CTEs before the catalog.
func (in *Inferrer) source(ctx context.Context, s scope.Source) []catalog.Column {
	if s.Derived != nil {
		return in.Projection(ctx, s.Derived, nil)
	}
	if s.Table == "" {
		return nil
	}
	if !strings.Contains(s.Table, ".") {
		if c, ok := in.ctes[ident.Fold(s.Table)]; ok {
			return in.CTE(ctx, c)
		}
	}
	return in.sources.Columns(ctx, s.Table)
}
