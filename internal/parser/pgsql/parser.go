// Package pgsql reads PostgreSQL temp-table declarations and projection
// types with pg_query_go, the real Postgres grammar. It supplements the
// structural parsers when the buffer is known to be Postgres.
package pgsql

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"

	pg_query "github.com/pganalyze/pg_query_go/v6"

	"github.com/maraichr/sqlscope/internal/parser"
)

// TempTable is a CREATE TEMP TABLE or SELECT ... INTO TEMP declaration.
type TempTable struct {
	Name    string
	Offset  int                // byte offset of the declaring statement
	Columns []parser.ColumnDef // explicit column list, if any
	Query   []Target           // projection for AS SELECT / INTO forms
}

// Target is one projected column of a SELECT.
type Target struct {
	Name   string // output name; empty when Postgres would call it ?column?
	Type   string // type known from the expression itself, or empty
	Source string // dotted column reference when the item is a plain column
	Star   bool
}

// TempTables parses src and returns its temporary table declarations in
// statement order. Permanent tables are ignored.
func TempTables(src string) ([]TempTable, error) {
	tree, err := pg_query.Parse(src)
	if err != nil {
		return nil, fmt.Errorf("pg_query parse: %w", err)
	}

	var out []TempTable
	for _, raw := range tree.Stmts {
		if raw.Stmt == nil {
			continue
		}
		offset := stmtOffset(src, int(raw.StmtLocation))
		node := raw.Stmt

		switch {
		case node.GetCreateStmt() != nil:
			stmt := node.GetCreateStmt()
			if !isTemp(stmt.Relation) {
				continue
			}
			out = append(out, TempTable{
				Name:    stmt.Relation.Relname,
				Offset:  offset,
				Columns: columnDefs(stmt.TableElts),
			})
		case node.GetCreateTableAsStmt() != nil:
			stmt := node.GetCreateTableAsStmt()
			if stmt.Into == nil || !isTemp(stmt.Into.Rel) {
				continue
			}
			t := TempTable{Name: stmt.Into.Rel.Relname, Offset: offset}
			if sel := stmt.Query.GetSelectStmt(); sel != nil {
				t.Query = selectTargets(sel)
			}
			out = append(out, t)
		case node.GetSelectStmt() != nil:
			sel := node.GetSelectStmt()
			if sel.IntoClause == nil || !isTemp(sel.IntoClause.Rel) {
				continue
			}
			out = append(out, TempTable{
				Name:   sel.IntoClause.Rel.Relname,
				Offset: offset,
				Query:  selectTargets(sel),
			})
		}
	}
	return out, nil
}

// Targets parses a single SELECT and describes its projection. For set
// operations the leftmost branch names the columns.
func Targets(selectSQL string) ([]Target, error) {
	tree, err := pg_query.Parse(selectSQL)
	if err != nil {
		return nil, fmt.Errorf("pg_query parse: %w", err)
	}
	if len(tree.Stmts) == 0 || tree.Stmts[0].Stmt == nil {
		return nil, nil
	}
	sel := tree.Stmts[0].Stmt.GetSelectStmt()
	if sel == nil {
		return nil, fmt.Errorf("not a SELECT statement")
	}
	return selectTargets(sel), nil
}

func isTemp(rv *pg_query.RangeVar) bool {
	return rv != nil && rv.Relpersistence == "t"
}

// stmtOffset skips the whitespace pg_query includes after the previous
// statement's semicolon.
func stmtOffset(src string, loc int) int {
	for loc < len(src) && unicode.IsSpace(rune(src[loc])) {
		loc++
	}
	return loc
}

func columnDefs(elts []*pg_query.Node) []parser.ColumnDef {
	var cols []parser.ColumnDef
	pk := make(map[string]bool)

	for _, elt := range elts {
		if c := elt.GetConstraint(); c != nil && c.Contype == pg_query.ConstrType_CONSTR_PRIMARY {
			for _, k := range c.Keys {
				if s := k.GetString_(); s != nil {
					pk[s.Sval] = true
				}
			}
		}
	}

	for _, elt := range elts {
		cd := elt.GetColumnDef()
		if cd == nil {
			continue
		}
		col := parser.ColumnDef{
			Name:       cd.Colname,
			NotNull:    cd.IsNotNull,
			PrimaryKey: pk[cd.Colname],
		}
		if cd.TypeName != nil {
			col.Type = typeNameToString(cd.TypeName)
		}
		for _, cn := range cd.Constraints {
			c := cn.GetConstraint()
			if c == nil {
				continue
			}
			switch c.Contype {
			case pg_query.ConstrType_CONSTR_NOTNULL:
				col.NotNull = true
			case pg_query.ConstrType_CONSTR_PRIMARY:
				col.PrimaryKey = true
			}
		}
		cols = append(cols, col)
	}
	return cols
}

func selectTargets(sel *pg_query.SelectStmt) []Target {
	for sel.Larg != nil {
		sel = sel.Larg
	}
	targets := make([]Target, 0, len(sel.TargetList))
	for _, node := range sel.TargetList {
		rt := node.GetResTarget()
		if rt == nil {
			continue
		}
		t := describe(rt.Val)
		if rt.Name != "" {
			t.Name = rt.Name
		}
		targets = append(targets, t)
	}
	return targets
}

// describe derives the default output name and static type of an expression
// the way Postgres does for the common cases.
func describe(node *pg_query.Node) Target {
	if node == nil {
		return Target{}
	}

	if cr := node.GetColumnRef(); cr != nil {
		parts := make([]string, 0, len(cr.Fields))
		for _, f := range cr.Fields {
			if f.GetAStar() != nil {
				return Target{Star: true, Source: strings.Join(parts, ".")}
			}
			if s := f.GetString_(); s != nil {
				parts = append(parts, s.Sval)
			}
		}
		if len(parts) == 0 {
			return Target{}
		}
		return Target{Name: parts[len(parts)-1], Source: strings.Join(parts, ".")}
	}

	if tc := node.GetTypeCast(); tc != nil {
		inner := describe(tc.Arg)
		if tc.TypeName != nil {
			inner.Type = typeNameToString(tc.TypeName)
		}
		return inner
	}

	if fc := node.GetFuncCall(); fc != nil {
		name := ""
		if len(fc.Funcname) > 0 {
			if s := fc.Funcname[len(fc.Funcname)-1].GetString_(); s != nil {
				name = s.Sval
			}
		}
		return Target{Name: name, Type: functionType(name)}
	}

	if ac := node.GetAConst(); ac != nil {
		switch {
		case ac.GetIval() != nil:
			return Target{Type: "integer"}
		case ac.GetFval() != nil:
			return Target{Type: "numeric"}
		case ac.GetBoolval() != nil:
			return Target{Type: "boolean"}
		case ac.GetSval() != nil:
			return Target{Type: "text"}
		}
		return Target{}
	}

	if node.GetCaseExpr() != nil {
		return Target{Name: "case"}
	}
	return Target{}
}

func functionType(name string) string {
	switch strings.ToLower(name) {
	case "count":
		return "bigint"
	case "sum", "avg":
		return "numeric"
	case "now", "current_timestamp":
		return "timestamp with time zone"
	case "lower", "upper", "concat", "substring", "trim", "string_agg":
		return "text"
	case "bool_and", "bool_or":
		return "boolean"
	}
	return ""
}

// internalTypes maps the catalog names pg_query emits back to SQL spellings.
var internalTypes = map[string]string{
	"int2":        "smallint",
	"int4":        "integer",
	"int8":        "bigint",
	"float4":      "real",
	"float8":      "double precision",
	"bool":        "boolean",
	"bpchar":      "char",
	"timestamptz": "timestamp with time zone",
	"timetz":      "time with time zone",
}

func typeNameToString(tn *pg_query.TypeName) string {
	parts := make([]string, 0, len(tn.Names))
	for _, n := range tn.Names {
		if s := n.GetString_(); s != nil {
			if s.Sval == "pg_catalog" {
				continue
			}
			parts = append(parts, s.Sval)
		}
	}
	name := strings.Join(parts, ".")
	if mapped, ok := internalTypes[name]; ok {
		name = mapped
	}

	var mods []string
	for _, m := range tn.Typmods {
		if ac := m.GetAConst(); ac != nil && ac.GetIval() != nil {
			mods = append(mods, strconv.Itoa(int(ac.GetIval().Ival)))
		}
	}
	if len(mods) > 0 {
		name += "(" + strings.Join(mods, ",") + ")"
	}
	if len(tn.ArrayBounds) > 0 {
		name += "[]"
	}
	return name
}
