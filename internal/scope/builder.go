package scope

import (
	"context"
	"log/slog"
	"sort"
	"strings"

	"github.com/maraichr/sqlscope/internal/ident"
	"github.com/maraichr/sqlscope/internal/parser"
	"github.com/maraichr/sqlscope/internal/parser/pgsql"
	"github.com/maraichr/sqlscope/internal/parser/sqlutil"
)

// Builder turns SQL text into a scope tree using the structured parsers of a
// registry, falling back to regex extraction when none of them produce a tree.
type Builder struct {
	parsers *parser.Registry
	logger  *slog.Logger
}

// NewBuilder returns a builder over the given parsers. A nil registry means
// every build takes the regex path.
func NewBuilder(parsers *parser.Registry, logger *slog.Logger) *Builder {
	if parsers == nil {
		parsers = parser.NewRegistry()
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Builder{parsers: parsers, logger: logger}
}

// Build returns the scope tree of src. vendor selects dialect-specific
// enrichment; when empty it is guessed from the text. Build never fails: the
// worst case is a single global scope filled by regex extraction.
func (b *Builder) Build(ctx context.Context, src, vendor string) *Tree {
	if vendor == "" {
		vendor = parser.DetectVendor(src)
	}
	tree := &Tree{
		Root:   newNode(Global, wholeBuffer(src), nil),
		Source: src,
		Vendor: vendor,
	}

	prog, name := b.parsers.Parse(ctx, src)
	if prog == nil {
		b.logger.Debug("structured parse unavailable, using regex fallback",
			slog.Int("bytes", len(src)))
		fallback(tree)
		return tree
	}
	tree.Parser = name
	tree.ParseErrors = parser.HasErrors(prog)

	w := &walker{tree: tree, logger: b.logger}
	w.nodes(tree.Root, prog.Nodes)
	w.regexTempTables()

	if vendor == parser.VendorPostgres {
		b.postgresTempTables(tree)
	}
	return tree
}

func wholeBuffer(src string) parser.Span {
	end := parser.Position{Line: 1 + strings.Count(src, "\n"), Col: 1}
	if nl := strings.LastIndexByte(src, '\n'); nl >= 0 {
		end.Col = len(src) - nl
	} else {
		end.Col = len(src) + 1
	}
	return parser.Span{
		Start:   parser.Position{Line: 1, Col: 1},
		End:     end,
		EndByte: len(src),
	}
}

// walker carries the tree being filled while the AST is visited.
type walker struct {
	tree   *Tree
	logger *slog.Logger
}

// extendKeywords are the clause keywords whose misparsed siblings still
// belong to the preceding statement.
var extendKeywords = []string{"WHERE", "GROUP", "ORDER", "HAVING", "LIMIT"}

// nodes visits a sibling list under parent. A statement absorbs the error
// and clause siblings that directly follow it when they open with one of
// the extendKeywords.
func (w *walker) nodes(parent *Node, list []parser.Node) {
	for i := 0; i < len(list); i++ {
		stmt, ok := list[i].(*parser.Statement)
		if !ok {
			w.node(parent, list[i])
			continue
		}
		last := w.statement(parent, stmt)
		for i+1 < len(list) && continuesStatement(list[i+1]) {
			i++
			if last == nil {
				w.node(parent, list[i])
				continue
			}
			last.Span = last.Span.Extend(list[i].Range())
			w.node(last, list[i])
		}
	}
}

func continuesStatement(n parser.Node) bool {
	switch v := n.(type) {
	case *parser.Error:
		return startsWithAny(v.Text, extendKeywords)
	case *parser.Clause:
		return startsWithAny(v.Keyword, extendKeywords) || startsWithAny(v.Text, extendKeywords)
	}
	return false
}

// node visits one non-statement node under scope.
func (w *walker) node(scope *Node, n parser.Node) {
	switch v := n.(type) {
	case *parser.Statement:
		w.statement(scope, v)
	case *parser.Select:
		w.selectClause(scope, v)
	case *parser.From:
		w.from(scope, v)
	case *parser.Clause:
		w.subqueries(scope, v.Nested)
	case *parser.Subquery:
		w.subquery(scope, v, Subquery)
	case *parser.SetOperation:
		w.setOperation(scope, v)
	case *parser.CreateTable:
		w.createTable(v)
	case *parser.CTE:
		w.cte(scope, v)
	case *parser.Relation:
		w.relation(scope, v)
	case *parser.Error:
		w.recover(scope, v)
	}
}

// statement registers the statement's CTEs in parent, then opens the scope(s)
// of its body. It returns the last body scope created, if any.
func (w *walker) statement(parent *Node, stmt *parser.Statement) *Node {
	for _, c := range stmt.CTEs {
		w.cte(parent, c)
	}
	if !hasQuery(stmt.Body) {
		for _, n := range stmt.Body {
			w.node(parent, n)
		}
		return nil
	}

	span := stmt.Loc
	if len(stmt.CTEs) > 0 && len(stmt.Body) > 0 {
		first := stmt.Body[0].Range()
		span.Start, span.StartByte = first.Start, first.StartByte
	}

	if set := findSetOperation(stmt.Body); set != nil {
		last := parent
		for _, branch := range splitBranches(set.Parts) {
			last = w.branch(parent, branch)
		}
		for _, n := range stmt.Body {
			if n != parser.Node(set) {
				w.node(last, n)
			}
		}
		return last
	}

	main := newNode(Main, span, parent)
	w.fill(main, stmt.Body)
	// a statement the parser stumbled over may still name its tables
	if parser.HasErrors(stmt) && !bindsAny([]*Node{main}) {
		addRegexAliases(main, w.text(stmt.Loc))
	}
	return main
}

// text returns the source covered by span, clamped to the buffer.
func (w *walker) text(span parser.Span) string {
	src := w.tree.Source
	start, end := max(span.StartByte, 0), min(span.EndByte, len(src))
	if start >= end {
		return ""
	}
	return src[start:end]
}

// hasQuery reports whether body holds anything that opens a query scope.
func hasQuery(body []parser.Node) bool {
	for _, n := range body {
		if _, ok := n.(*parser.CreateTable); !ok {
			return true
		}
	}
	return false
}

func findSetOperation(body []parser.Node) *parser.SetOperation {
	for _, n := range body {
		if s, ok := n.(*parser.SetOperation); ok {
			return s
		}
	}
	return nil
}

// splitBranches pairs each SELECT with the FROM and clauses that follow it.
func splitBranches(parts []parser.Node) [][]parser.Node {
	var branches [][]parser.Node
	for _, p := range parts {
		if _, ok := p.(*parser.Select); ok || len(branches) == 0 {
			branches = append(branches, nil)
		}
		branches[len(branches)-1] = append(branches[len(branches)-1], p)
	}
	return branches
}

func (w *walker) branch(parent *Node, parts []parser.Node) *Node {
	span := parts[0].Range()
	for _, p := range parts[1:] {
		span = span.Extend(p.Range())
	}
	s := newNode(Main, span, parent)
	w.fill(s, parts)
	return s
}

// query fills scope with a query body. A set operation splits into one Main
// child per branch and the scope's projection is the first branch's.
func (w *walker) query(scope *Node, body []parser.Node) {
	set := findSetOperation(body)
	if set == nil {
		w.fill(scope, body)
		return
	}
	for i, branch := range splitBranches(set.Parts) {
		b := w.branch(scope, branch)
		if i == 0 {
			scope.Query = b.Query
		}
	}
	for _, n := range body {
		if n != parser.Node(set) {
			w.node(scope, n)
		}
	}
}

func (w *walker) fill(scope *Node, body []parser.Node) {
	for _, n := range body {
		w.node(scope, n)
	}
}

func (w *walker) cte(parent *Node, c *parser.CTE) {
	if c.Name == "" {
		return
	}
	s := newNode(CTE, c.Loc, parent)
	w.query(s, c.Body)
	parent.CTEs[ident.Fold(c.Name)] = &CTEInfo{
		Name:      ident.Normalize(c.Name),
		Columns:   normalizeAll(c.Columns),
		Span:      c.Loc,
		Text:      c.Text,
		Recursive: c.Recursive,
		Query:     s.Query,
	}
}

func normalizeAll(names []string) []string {
	if len(names) == 0 {
		return nil
	}
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = ident.Normalize(n)
	}
	return out
}

func (w *walker) selectClause(scope *Node, sel *parser.Select) {
	scope.Query.Items = append(scope.Query.Items, sel.Items...)
	w.subqueries(scope, sel.Nested)
	if sel.Into != "" && ident.IsTempTable(sel.Into) {
		w.addTempTable(TempTable{
			Name:       ident.Normalize(sel.Into),
			DeclaredAt: sel.Loc.StartByte,
			Query:      scope.Query,
		})
	}
}

func (w *walker) from(scope *Node, f *parser.From) {
	for _, item := range f.Items {
		switch v := item.(type) {
		case *parser.Relation:
			if stop := w.relation(scope, v); stop {
				w.subqueries(scope, f.Nested)
				return
			}
		case *parser.Error:
			if startsWithAny(v.Text, []string{"SELECT"}) {
				w.subqueries(scope, f.Nested)
				return
			}
			w.recover(scope, v)
		}
	}
	w.subqueries(scope, f.Nested)
}

// relation binds one FROM/JOIN item. It reports true when an error inside
// the relation looks like the start of another statement, in which case the
// rest of the FROM clause is not trusted.
func (w *walker) relation(scope *Node, rel *parser.Relation) bool {
	switch {
	case rel.Subquery != nil:
		d := w.subquery(scope, rel.Subquery, DerivedTable)
		if rel.Alias != "" {
			scope.Derived[ident.Fold(rel.Alias)] = d.Query
			scope.Query.Sources = append(scope.Query.Sources, Source{Alias: ident.Normalize(rel.Alias), Derived: d.Query})
		}
	case rel.Table != "":
		alias := rel.Alias
		if alias == "" {
			alias = ident.ShortName(rel.Table)
		}
		scope.AddAlias(alias, rel.Table)
		scope.Query.Sources = append(scope.Query.Sources, Source{Alias: ident.Normalize(alias), Table: rel.Table})
	}

	for _, e := range rel.Errors {
		if startsWithAny(e.Text, []string{"SELECT"}) {
			return true
		}
		w.recover(scope, e)
	}
	return false
}

func (w *walker) subquery(parent *Node, sub *parser.Subquery, kind Kind) *Node {
	s := newNode(kind, sub.Loc, parent)
	// WITH inside the parentheses
	if len(sub.Body) == 1 {
		if stmt, ok := sub.Body[0].(*parser.Statement); ok {
			for _, c := range stmt.CTEs {
				w.cte(s, c)
			}
			w.query(s, stmt.Body)
			return s
		}
	}
	w.query(s, sub.Body)
	return s
}

func (w *walker) subqueries(scope *Node, subs []*parser.Subquery) {
	for _, sub := range subs {
		w.subquery(scope, sub, Subquery)
	}
}

func (w *walker) setOperation(scope *Node, set *parser.SetOperation) {
	for _, branch := range splitBranches(set.Parts) {
		w.branch(scope, branch)
	}
}

func (w *walker) createTable(ct *parser.CreateTable) {
	if !ct.Temporary && !ident.IsTempTable(ct.Name) {
		return
	}
	w.addTempTable(TempTable{
		Name:       ident.Normalize(ct.Name),
		DeclaredAt: ct.Loc.StartByte,
		Columns:    ct.Columns,
	})
}

// addTempTable records t unless the same name was already declared earlier.
func (w *walker) addTempTable(t TempTable) {
	for _, existing := range w.tree.TempTables {
		if ident.Equal(existing.Name, t.Name) {
			return
		}
	}
	w.tree.TempTables = append(w.tree.TempTables, t)
}

// regexTempTables adds declarations the structured pass did not see, with
// no column information.
func (w *walker) regexTempTables() {
	for _, ref := range sqlutil.ExtractTempTables(w.tree.Source) {
		if !ident.IsTempTable(ref.Name) {
			continue
		}
		w.addTempTable(TempTable{Name: ref.Name, DeclaredAt: ref.Offset})
	}
	sortTempTables(w.tree.TempTables)
}

// postgresTempTables reads CREATE TEMP TABLE and SELECT ... INTO TEMP through
// the Postgres grammar. DDL columns replace what the structural pass found;
// projection types are attached as static type hints.
func (b *Builder) postgresTempTables(tree *Tree) {
	found, err := pgsql.TempTables(tree.Source)
	if err != nil {
		b.logger.Debug("postgres temp table scan failed", slog.String("error", err.Error()))
		return
	}
	for _, pt := range found {
		t := TempTable{Name: pt.Name, DeclaredAt: pt.Offset, Columns: pt.Columns}
		if len(pt.Query) > 0 {
			if s := tree.ScopeAt(pt.Offset); s != nil && s.Kind != Global {
				t.Query = s.Query
			} else {
				t.Query = targetsProjection(pt.Query)
			}
			t.Types = make(map[string]string)
			for _, target := range pt.Query {
				if target.Name != "" && target.Type != "" {
					t.Types[strings.ToLower(target.Name)] = target.Type
				}
			}
		}
		replaced := false
		for i := range tree.TempTables {
			if ident.Equal(tree.TempTables[i].Name, t.Name) {
				if len(t.Columns) == 0 {
					t.Columns = tree.TempTables[i].Columns
				}
				tree.TempTables[i] = t
				replaced = true
				break
			}
		}
		if !replaced {
			tree.TempTables = append(tree.TempTables, t)
		}
	}
	sortTempTables(tree.TempTables)
}

func targetsProjection(targets []pgsql.Target) *Projection {
	p := &Projection{}
	for _, t := range targets {
		item := parser.SelectItem{Expr: t.Source, Alias: t.Name, Star: t.Star}
		if t.Star {
			item.Qualifier = t.Source
			item.Alias = ""
		}
		if item.Expr == "" {
			item.Expr = t.Name
		}
		p.Items = append(p.Items, item)
	}
	return p
}

func sortTempTables(ts []TempTable) {
	sort.SliceStable(ts, func(i, j int) bool { return ts[i].DeclaredAt < ts[j].DeclaredAt })
}

// startsWithAny reports whether text opens with one of the keywords as a
// whole word, ignoring leading whitespace and case.
func startsWithAny(text string, keywords []string) bool {
	t := strings.TrimLeft(text, " \t\r\n(")
	for _, kw := range keywords {
		if len(t) < len(kw) || !strings.EqualFold(t[:len(kw)], kw) {
			continue
		}
		if len(t) == len(kw) || !isIdentByte(t[len(kw)]) {
			return true
		}
	}
	return false
}

func isIdentByte(c byte) bool {
	return c == '_' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9'
}
