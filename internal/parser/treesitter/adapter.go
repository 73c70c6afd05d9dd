// Package treesitter adapts the tree-sitter SQL grammar to the typed syntax
// tree. The grammar is best-effort: multi-statement scripts, GO separators and
// vendor extensions frequently come back as ERROR nodes, which are carried
// through as *parser.Error so the scope builder can search inside them.
package treesitter

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/sql"

	"github.com/maraichr/sqlscope/internal/parser"
	"github.com/maraichr/sqlscope/internal/parser/tsql"
)

// maxErrorDepth bounds the search for structure inside ERROR nodes.
const maxErrorDepth = 50

// Adapter implements parser.Parser with tree-sitter.
type Adapter struct {
	logger   *slog.Logger
	disabled bool

	checkOnce sync.Once
	available bool
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithDisabled makes the adapter report itself unavailable, forcing callers
// onto the fallback path.
func WithDisabled() Option {
	return func(a *Adapter) { a.disabled = true }
}

func New(logger *slog.Logger, opts ...Option) *Adapter {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	a := &Adapter{logger: logger}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *Adapter) Name() string { return "treesitter" }

// Available parses a trivial statement once and caches the outcome for the
// lifetime of the adapter.
func (a *Adapter) Available() bool {
	a.checkOnce.Do(func() {
		if a.disabled {
			return
		}
		a.available = a.selfCheck()
		a.logger.Debug("tree-sitter self-check", slog.Bool("available", a.available))
	})
	return a.available
}

func (a *Adapter) selfCheck() (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
		}
	}()
	p := sitter.NewParser()
	p.SetLanguage(sql.GetLanguage())
	tree, err := p.ParseCtx(context.Background(), nil, []byte("SELECT 1"))
	if err != nil || tree == nil {
		return false
	}
	defer tree.Close()
	return tree.RootNode() != nil
}

// Parse returns nil on any failure, including panics inside the binding.
func (a *Adapter) Parse(ctx context.Context, src string) (prog *parser.Program) {
	if !a.Available() {
		return nil
	}
	defer func() {
		if r := recover(); r != nil {
			a.logger.Debug("tree-sitter parse panicked", slog.Any("panic", r))
			prog = nil
		}
	}()

	// GO lines are blanked in place so offsets still match the caller's text
	masked := tsql.MaskBatchSeparators(src)
	batches := tsql.BatchRanges(src)
	if len(batches) <= 1 {
		return a.parseBatch(ctx, []byte(masked))
	}

	// the grammar wants ";" between statements, so each GO batch is parsed
	// on its own with the rest of the buffer blanked out
	for _, r := range batches {
		part := a.parseBatch(ctx, isolate(masked, r[0], r[1]))
		if part == nil {
			return nil
		}
		if prog == nil {
			prog = &parser.Program{Loc: part.Loc}
		} else {
			prog.Loc = prog.Loc.Extend(part.Loc)
		}
		prog.Nodes = append(prog.Nodes, part.Nodes...)
	}
	return prog
}

func (a *Adapter) parseBatch(ctx context.Context, src []byte) *parser.Program {
	// sitter.Parser is not safe for concurrent use; one per call
	p := sitter.NewParser()
	p.SetLanguage(sql.GetLanguage())
	tree, err := p.ParseCtx(ctx, nil, src)
	if err != nil || tree == nil {
		a.logger.Debug("tree-sitter parse failed", slog.Any("error", err))
		return nil
	}
	defer tree.Close()

	c := &converter{ctx: ctx, src: src}
	return c.program(tree.RootNode())
}

// isolate blanks everything outside [start, end) except line breaks, so
// positions inside the range are unchanged.
func isolate(src string, start, end int) []byte {
	out := []byte(src)
	for i := range out {
		if (i < start || i >= end) && out[i] != '\n' && out[i] != '\r' {
			out[i] = ' '
		}
	}
	return out
}

type converter struct {
	ctx context.Context
	src []byte
}

func (c *converter) text(n *sitter.Node) string {
	return n.Content(c.src)
}

func (c *converter) span(n *sitter.Node) parser.Span {
	start, end := n.StartPoint(), n.EndPoint()
	return parser.Span{
		Start:     parser.Position{Line: int(start.Row) + 1, Col: int(start.Column) + 1},
		End:       parser.Position{Line: int(end.Row) + 1, Col: int(end.Column) + 1},
		StartByte: int(n.StartByte()),
		EndByte:   int(n.EndByte()),
	}
}

func (c *converter) program(root *sitter.Node) *parser.Program {
	prog := &parser.Program{Loc: c.span(root)}
	for i := 0; i < int(root.ChildCount()); i++ {
		child := root.Child(i)
		switch t := child.Type(); {
		case t == "statement":
			prog.Nodes = append(prog.Nodes, c.statement(child))
		case t == "ERROR" || child.IsError():
			prog.Nodes = append(prog.Nodes, c.errorNode(child, 0))
		case strings.HasPrefix(t, "keyword_"):
			prog.Nodes = append(prog.Nodes, &parser.Clause{
				Loc:     c.span(child),
				Keyword: strings.ToUpper(c.text(child)),
				Text:    c.text(child),
			})
		}
	}
	// errors buried where the conversion reads text only still count
	if root.HasError() && !parser.HasErrors(prog) {
		prog.Nodes = append(prog.Nodes, &parser.Error{Loc: c.span(root)})
	}
	return prog
}

func (c *converter) statement(n *sitter.Node) *parser.Statement {
	stmt := &parser.Statement{Loc: c.span(n)}
	recursive := false
	for i := 0; i < int(n.ChildCount()); i++ {
		child := n.Child(i)
		switch child.Type() {
		case "keyword_with", ",", ";":
		case "keyword_recursive":
			recursive = true
		case "cte":
			stmt.CTEs = append(stmt.CTEs, c.cte(child, recursive))
		case "create_table":
			stmt.Body = append(stmt.Body, c.createTable(child))
		case "ERROR":
			e := c.errorNode(child, 0)
			if target := intoTarget(e.Text); target != "" {
				if sel, ok := lastSelect(stmt.Body); ok && sel.Into == "" {
					sel.Into = target
					continue
				}
			}
			stmt.Body = append(stmt.Body, e)
		default:
			stmt.Body = append(stmt.Body, c.queryParts(child)...)
		}
	}
	return stmt
}

// queryParts converts a clause-level node, or digs one level of wrapper
// nodes (insert, update, create_view, ...) for the queries they carry.
func (c *converter) queryParts(n *sitter.Node) []parser.Node {
	switch n.Type() {
	case "select":
		return []parser.Node{c.selectNode(n)}
	case "from":
		return []parser.Node{c.from(n)}
	case "set_operation":
		return []parser.Node{c.setOperation(n)}
	case "subquery":
		return []parser.Node{c.subquery(n)}
	case "statement":
		return []parser.Node{c.statement(n)}
	case "ERROR":
		return []parser.Node{c.errorNode(n, 0)}
	}
	var out []parser.Node
	for i := 0; i < int(n.ChildCount()); i++ {
		child := n.Child(i)
		if child.IsNamed() {
			out = append(out, c.queryParts(child)...)
		}
	}
	return out
}

func (c *converter) cte(n *sitter.Node, recursive bool) *parser.CTE {
	cte := &parser.CTE{Loc: c.span(n), Recursive: recursive}
	seenAs := false
	for i := 0; i < int(n.ChildCount()); i++ {
		child := n.Child(i)
		switch child.Type() {
		case "identifier":
			if cte.Name == "" {
				cte.Name = c.text(child)
			} else if !seenAs {
				cte.Columns = append(cte.Columns, c.text(child))
			}
		case "keyword_as":
			seenAs = true
		case "statement":
			cte.Text = strings.TrimSpace(c.text(child))
			inner := c.statement(child)
			cte.Body = inner.Body
		case "select", "from", "set_operation", "subquery":
			cte.Body = append(cte.Body, c.queryParts(child)...)
		}
	}
	if cte.Text == "" && len(cte.Body) > 0 {
		first, last := cte.Body[0].Range(), cte.Body[len(cte.Body)-1].Range()
		cte.Text = strings.TrimSpace(string(c.src[first.StartByte:last.EndByte]))
	}
	return cte
}

func (c *converter) selectNode(n *sitter.Node) *parser.Select {
	text := c.text(n)
	sel := &parser.Select{Loc: c.span(n), Text: text, Into: tsql.SelectInto(text)}
	for _, item := range tsql.SplitSelectList(text) {
		item.Loc = shift(item.Loc, sel.Loc)
		sel.Items = append(sel.Items, item)
	}
	sel.Nested = c.subqueriesIn(n, 0)
	return sel
}

func (c *converter) from(n *sitter.Node) *parser.From {
	from := &parser.From{Loc: c.span(n)}
	for i := 0; i < int(n.ChildCount()); i++ {
		child := n.Child(i)
		switch t := child.Type(); {
		case t == "relation":
			from.Items = append(from.Items, c.relation(child, false))
		case strings.HasSuffix(t, "join"):
			for j := 0; j < int(child.ChildCount()); j++ {
				if gc := child.Child(j); gc.Type() == "relation" {
					from.Items = append(from.Items, c.relation(gc, true))
				} else if gc.IsNamed() {
					from.Nested = append(from.Nested, c.subqueriesIn(gc, 0)...)
				}
			}
		case t == "ERROR":
			from.Items = append(from.Items, c.errorNode(child, 0))
		case child.IsNamed() && !strings.HasPrefix(t, "keyword_"):
			from.Nested = append(from.Nested, c.subqueriesIn(child, 0)...)
		}
	}
	return from
}

func (c *converter) relation(n *sitter.Node, join bool) *parser.Relation {
	rel := &parser.Relation{Loc: c.span(n), Join: join}
	if alias := n.ChildByFieldName("alias"); alias != nil {
		rel.Alias = c.text(alias)
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		child := n.Child(i)
		switch child.Type() {
		case "object_reference":
			rel.Table = c.text(child)
		case "invocation":
			if ref := findChild(child, "object_reference"); ref != nil {
				rel.Table = c.text(ref)
			}
		case "subquery":
			rel.Subquery = c.subquery(child)
		case "identifier":
			if rel.Alias == "" && (rel.Table != "" || rel.Subquery != nil) {
				rel.Alias = c.text(child)
			}
		case "ERROR":
			rel.Errors = append(rel.Errors, c.errorNode(child, 0))
		}
	}
	return rel
}

func (c *converter) subquery(n *sitter.Node) *parser.Subquery {
	sub := &parser.Subquery{Loc: c.span(n)}
	for i := 0; i < int(n.ChildCount()); i++ {
		child := n.Child(i)
		if !child.IsNamed() {
			continue
		}
		if child.Type() == "statement" {
			inner := c.statement(child)
			if len(inner.CTEs) > 0 {
				sub.Body = append(sub.Body, inner)
			} else {
				sub.Body = append(sub.Body, inner.Body...)
			}
			continue
		}
		sub.Body = append(sub.Body, c.queryParts(child)...)
	}
	return sub
}

func (c *converter) setOperation(n *sitter.Node) *parser.SetOperation {
	op := &parser.SetOperation{Loc: c.span(n)}
	for i := 0; i < int(n.ChildCount()); i++ {
		child := n.Child(i)
		switch t := child.Type(); t {
		case "keyword_union", "keyword_intersect", "keyword_except":
			op.Operators = append(op.Operators, strings.ToUpper(c.text(child)))
		case "keyword_all", "keyword_distinct":
			if len(op.Operators) > 0 {
				op.Operators[len(op.Operators)-1] += " " + strings.ToUpper(c.text(child))
			}
		case "set_operation":
			nested := c.setOperation(child)
			op.Operators = append(op.Operators, nested.Operators...)
			op.Parts = append(op.Parts, nested.Parts...)
		default:
			if child.IsNamed() {
				op.Parts = append(op.Parts, c.queryParts(child)...)
			}
		}
	}
	return op
}

// createTable re-reads the DDL text with the T-SQL reader, which understands
// column options and table constraints better than the grammar does.
func (c *converter) createTable(n *sitter.Node) *parser.CreateTable {
	ct := &parser.CreateTable{Loc: c.span(n)}
	if ref := findChild(n, "object_reference"); ref != nil {
		ct.Name = c.text(ref)
	}
	if findChild(n, "keyword_temporary") != nil || findChild(n, "keyword_temp") != nil {
		ct.Temporary = true
	}

	prog := tsql.New().Parse(c.ctx, c.text(n))
	if prog != nil {
		parser.Walk(prog, func(node parser.Node) bool {
			if parsed, ok := node.(*parser.CreateTable); ok {
				ct.Columns = parsed.Columns
				if ct.Name == "" {
					ct.Name = parsed.Name
				}
				ct.Temporary = ct.Temporary || parsed.Temporary
				return false
			}
			return true
		})
	}
	if strings.HasPrefix(ct.Name, "#") {
		ct.Temporary = true
	}
	return ct
}

// errorNode converts an ERROR node, keeping any recognizable structure found
// beneath it. Unknown wrappers are flattened.
func (c *converter) errorNode(n *sitter.Node, depth int) *parser.Error {
	e := &parser.Error{Loc: c.span(n), Text: c.text(n)}
	e.Nodes = c.recognizable(n, depth)
	return e
}

func (c *converter) recognizable(n *sitter.Node, depth int) []parser.Node {
	if depth >= maxErrorDepth {
		return nil
	}
	var out []parser.Node
	for i := 0; i < int(n.ChildCount()); i++ {
		child := n.Child(i)
		switch child.Type() {
		case "statement":
			out = append(out, c.statement(child))
		case "cte":
			out = append(out, c.cte(child, false))
		case "select", "from", "set_operation", "subquery":
			out = append(out, c.queryParts(child)...)
		case "relation":
			out = append(out, c.relation(child, false))
		case "ERROR":
			out = append(out, c.errorNode(child, depth+1))
		default:
			if child.IsNamed() && strings.HasSuffix(child.Type(), "join") {
				for j := 0; j < int(child.ChildCount()); j++ {
					if gc := child.Child(j); gc.Type() == "relation" {
						out = append(out, c.relation(gc, true))
					}
				}
				continue
			}
			if child.ChildCount() > 0 {
				out = append(out, c.recognizable(child, depth+1)...)
			}
		}
	}
	return out
}

// subqueriesIn collects subquery nodes under n without descending into them.
func (c *converter) subqueriesIn(n *sitter.Node, depth int) []*parser.Subquery {
	if depth >= maxErrorDepth {
		return nil
	}
	var out []*parser.Subquery
	for i := 0; i < int(n.ChildCount()); i++ {
		child := n.Child(i)
		if child.Type() == "subquery" {
			out = append(out, c.subquery(child))
			continue
		}
		out = append(out, c.subqueriesIn(child, depth+1)...)
	}
	return out
}

func findChild(n *sitter.Node, nodeType string) *sitter.Node {
	for i := 0; i < int(n.ChildCount()); i++ {
		if child := n.Child(i); child.Type() == nodeType {
			return child
		}
	}
	return nil
}

func lastSelect(nodes []parser.Node) (*parser.Select, bool) {
	for i := len(nodes) - 1; i >= 0; i-- {
		if sel, ok := nodes[i].(*parser.Select); ok {
			return sel, true
		}
	}
	return nil, false
}

// intoTarget reads "INTO name" at the start of an error region.
func intoTarget(text string) string {
	trimmed := strings.TrimSpace(text)
	if len(trimmed) < 5 || !strings.EqualFold(trimmed[:4], "INTO") {
		return ""
	}
	return tsql.SelectInto("SELECT 1 " + trimmed)
}

// shift moves a span computed relative to a node's text into buffer space.
func shift(s, base parser.Span) parser.Span {
	out := parser.Span{
		StartByte: base.StartByte + s.StartByte,
		EndByte:   base.StartByte + s.EndByte,
		Start:     s.Start,
		End:       s.End,
	}
	if s.Start.Line == 1 {
		out.Start.Col = base.Start.Col + s.Start.Col - 1
	}
	if s.End.Line == 1 {
		out.End.Col = base.Start.Col + s.End.Col - 1
	}
	out.Start.Line = base.Start.Line + s.Start.Line - 1
	out.End.Line = base.Start.Line + s.End.Line - 1
	return out
}
