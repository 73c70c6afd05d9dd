package scope

import (
	"context"
	"testing"

	"github.com/maraichr/sqlscope/internal/parser"
)

// fixedParser returns a hand-built tree, standing in for a grammar that
// produced error nodes.
type fixedParser struct{ prog *parser.Program }

func (f fixedParser) Available() bool { return true }
func (f fixedParser) Name() string { return "fixed" }
func (f fixedParser) Parse(context.Context, string) *parser.Program { return f.prog }

func span(start, end int) parser.Span {
	return parser.Span{
		Start:     parser.Position{Line: 1, Col: start + 1},
		End:       parser.Position{Line: 1, Col: end + 1},
		StartByte: start,
		EndByte:   end,
	}
}

func buildFixed(t *testing.T, src string, nodes ...parser.Node) *Tree {
	t.Helper()
	prog := &parser.Program{Loc: span(0, len(src)), Nodes: nodes}
	return NewBuilder(parser.NewRegistry(fixedParser{prog}), nil).Build(t.Context(), src, "sqlserver")
}

func TestRecoverBareSelectSynthesizesScope(t *testing.T) {
	src := "SELECT x.a FROM dbo.T x garbage"
	errNode := &parser.Error{
		Loc:  span(0, len(src)),
		Text: src,
		Nodes: []parser.Node{&parser.Error{Nodes: []parser.Node{
			&parser.Select{Loc: span(20, 25)}, // inner spans are not trusted
			&parser.From{Items: []parser.Node{&parser.Relation{Table: "dbo.T", Alias: "x"}}},
		}}},
	}
	tree := buildFixed(t, src, errNode)

	if !tree.ParseErrors {
		t.Error("expected ParseErrors")
	}
	if len(tree.Root.Children) != 1 {
		t.Fatalf("expected one synthesized scope, got %d", len(tree.Root.Children))
	}
	s := tree.Root.Children[0]
	if s.Kind != Main || s.Span != errNode.Loc {
		t.Errorf("synthesized scope = %v %+v", s.Kind, s.Span)
	}
	if s.Aliases["x"] != "dbo.T" {
		t.Errorf("aliases = %v", s.Aliases)
	}
}

func nestErrors(depth int, leaf parser.Node) *parser.Error {
	n := &parser.Error{Nodes: []parser.Node{leaf}}
	for i := 1; i < depth; i++ {
		n = &parser.Error{Nodes: []parser.Node{n}}
	}
	n.Loc = span(0, 20)
	return n
}

func TestRecoverSearchDepthCap(t *testing.T) {
	src := "xxxxxxxxxxxxxxxxxxxx"
	rel := &parser.Relation{Table: "deep"}

	shallow := buildFixed(t, src, nestErrors(10, rel))
	if len(shallow.Root.Children) != 1 || shallow.Root.Children[0].Aliases["deep"] != "deep" {
		t.Errorf("relation at depth 10 should be recovered")
	}

	deep := buildFixed(t, src, nestErrors(80, rel))
	if len(deep.Root.Children) != 0 {
		t.Errorf("relation at depth 80 should be out of reach")
	}
}

func TestRecoverUnrecognizableRegionUsesRegex(t *testing.T) {
	src := "SELEC * FROM sales.Orders o WHER"
	tree := buildFixed(t, src, &parser.Error{Loc: span(0, len(src)), Text: src})

	if len(tree.Root.Children) != 1 {
		t.Fatalf("expected a scope for the region")
	}
	if got := tree.Root.Children[0].Aliases["o"]; got != "sales.Orders" {
		t.Errorf("o -> %q", got)
	}
}

func TestRelationErrorStartingWithSelectStops(t *testing.T) {
	src := "SELECT * FROM a SELECT * FROM b, c"
	stmt := &parser.Statement{
		Loc: span(0, len(src)),
		Body: []parser.Node{
			&parser.Select{Loc: span(0, 8)},
			&parser.From{Loc: span(9, len(src)), Items: []parser.Node{
				&parser.Relation{Table: "a", Errors: []*parser.Error{{Text: "SELECT * FROM b"}}},
				&parser.Relation{Table: "c"},
			}},
		},
	}
	tree := buildFixed(t, src, stmt)

	main := tree.Root.Children[0]
	if main.Aliases["a"] != "a" {
		t.Errorf("a should be bound, got %v", main.Aliases)
	}
	if _, ok := main.Aliases["c"]; ok {
		t.Error("relations after the misattributed statement must be ignored")
	}
}

func TestSpanExtendsOverMisparsedClauses(t *testing.T) {
	src := "SELECT * FROM t\nWHERE t.id IN (SELECT id FROM u)\nORDER BY 1"
	where := at(t, src, "WHERE", 0)
	open := at(t, src, "(", 0)
	order := at(t, src, "ORDER", 0)

	stmt := &parser.Statement{
		Loc: span(0, 15),
		Body: []parser.Node{
			&parser.Select{Loc: span(0, 8)},
			&parser.From{Loc: span(9, 15), Items: []parser.Node{&parser.Relation{Table: "t"}}},
		},
	}
	whereErr := &parser.Error{
		Loc:  span(where, order-1),
		Text: src[where : order-1],
		Nodes: []parser.Node{&parser.Subquery{
			Loc:  span(open, order-1),
			Body: []parser.Node{&parser.From{Items: []parser.Node{&parser.Relation{Table: "u"}}}},
		}},
	}
	orderClause := &parser.Clause{Loc: span(order, len(src)), Keyword: "ORDER", Text: src[order:]}

	tree := buildFixed(t, src, stmt, whereErr, orderClause)

	if len(tree.Root.Children) != 1 {
		t.Fatalf("expected the clauses to join the statement, got %d scopes", len(tree.Root.Children))
	}
	main := tree.Root.Children[0]
	if main.Span.EndByte != len(src) {
		t.Errorf("main span ends at %d, want %d", main.Span.EndByte, len(src))
	}
	if len(main.Children) != 1 || main.Children[0].Kind != Subquery {
		t.Fatalf("expected the WHERE subquery under the statement")
	}
	visible := tree.AliasesVisibleAt(at(t, src, "id FROM u", 0))
	if visible["t"] != "t" || visible["u"] != "u" {
		t.Errorf("visible = %v", visible)
	}
	if s := tree.ScopeAt(len(src) - 1); s != main {
		t.Errorf("cursor in ORDER BY should be in the statement scope")
	}
}

func TestRecoverWithoutRelationUsesRegex(t *testing.T) {
	src := "SELECT a, FROM dbo.Foo f WHERE f."
	tree := buildFixed(t, src, &parser.Error{
		Loc:   span(0, len(src)),
		Text:  src,
		Nodes: []parser.Node{&parser.Select{Loc: span(0, 9)}},
	})

	if len(tree.Root.Children) != 1 {
		t.Fatalf("expected one synthesized scope, got %d", len(tree.Root.Children))
	}
	if got := tree.AliasesVisibleAt(len(src)); got["f"] != "dbo.Foo" {
		t.Errorf("visible = %v", got)
	}
}

func TestStatementWithErrorsUsesRegex(t *testing.T) {
	src := "SELECT a, FROM dbo.Foo f WHERE f."
	stmt := &parser.Statement{
		Loc: span(0, len(src)),
		Body: []parser.Node{
			&parser.Select{Loc: span(0, 9)},
			&parser.Error{Loc: span(8, 9), Text: ","},
		},
	}
	tree := buildFixed(t, src, stmt)

	main := tree.Root.Children[0]
	if main.Kind != Main || main.Aliases["f"] != "dbo.Foo" {
		t.Errorf("main = %v %v", main.Kind, main.Aliases)
	}
}

func TestStatementWithoutErrorsSkipsRegex(t *testing.T) {
	src := "SELECT 'FROM dbo.Foo f'"
	stmt := &parser.Statement{
		Loc:  span(0, len(src)),
		Body: []parser.Node{&parser.Select{Loc: span(0, len(src))}},
	}
	tree := buildFixed(t, src, stmt)

	if got := tree.Root.Children[0].Aliases; len(got) != 0 {
		t.Errorf("clean statement gained aliases %v", got)
	}
}
