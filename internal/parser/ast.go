package parser

// Position is a 1-indexed line/column location in source text.
type Position struct {
	Line int `json:"line"`
	Col  int `json:"col"`
}

// Before reports whether p sits strictly before o.
func (p Position) Before(o Position) bool {
	if p.Line != o.Line {
		return p.Line < o.Line
	}
	return p.Col < o.Col
}

// Span is a half-open source range. Byte offsets are 0-indexed.
type Span struct {
	Start     Position `json:"start"`
	End       Position `json:"end"`
	StartByte int      `json:"start_byte"`
	EndByte   int      `json:"end_byte"`
}

// Contains reports whether offset falls inside the span, allowing the end to
// stretch by tolerance bytes for queries that are still being typed.
func (s Span) Contains(offset, tolerance int) bool {
	return offset >= s.StartByte && offset <= s.EndByte+tolerance
}

// Extend grows s so that it ends where o ends.
func (s Span) Extend(o Span) Span {
	if o.EndByte > s.EndByte {
		s.EndByte = o.EndByte
		s.End = o.End
	}
	return s
}

// Node is implemented by every typed AST node.
type Node interface {
	Range() Span
	Children() []Node
}

// Program is the root of a parsed buffer. Nodes holds *Statement, *Error and
// *Clause values in source order.
type Program struct {
	Loc   Span
	Nodes []Node
}

// Statement is one SQL statement with any leading WITH clause split out.
type Statement struct {
	Loc  Span
	CTEs []*CTE
	// Body holds clause-level nodes in source order: *Select, *From,
	// *SetOperation, *CreateTable, *Clause, *Subquery and *Error.
	Body []Node
}

// CTE is one WITH-clause definition.
type CTE struct {
	Loc       Span
	Name      string
	Columns   []string
	Recursive bool
	Body      []Node
	Text      string
}

// Select is the projection clause of a query.
type Select struct {
	Loc    Span
	Items  []SelectItem
	Into   string
	Nested []*Subquery
	Text   string
}

// SelectItem is one comma-separated projection expression.
type SelectItem struct {
	Loc       Span
	Expr      string
	Alias     string
	Star      bool
	Qualifier string // "e" for e.*
}

// From holds the relations of a FROM clause, joins included. Items are
// *Relation or *Error in source order.
type From struct {
	Loc    Span
	Items  []Node
	Nested []*Subquery
}

// Relation is a table reference or derived table inside FROM/JOIN.
type Relation struct {
	Loc      Span
	Table    string
	Alias    string
	Join     bool
	Subquery *Subquery
	Errors   []*Error
}

// Subquery is a parenthesized query.
type Subquery struct {
	Loc  Span
	Body []Node
}

// SetOperation is a UNION/INTERSECT/EXCEPT chain. Parts holds the *Select and
// *From clauses of every branch, flattened in source order.
type SetOperation struct {
	Loc       Span
	Operators []string
	Parts     []Node
}

// Clause is a trailing clause such as WHERE or ORDER BY.
type Clause struct {
	Loc     Span
	Keyword string
	Nested  []*Subquery
	Text    string
}

// CreateTable is a CREATE TABLE statement body.
type CreateTable struct {
	Loc       Span
	Name      string
	Temporary bool
	Columns   []ColumnDef
}

// ColumnDef is one column definition of a CREATE TABLE.
type ColumnDef struct {
	Name       string
	Type       string
	NotNull    bool
	PrimaryKey bool
}

// Error marks a region the parser could not make sense of. Nodes carries
// whatever recognizable structure was found inside it.
type Error struct {
	Loc   Span
	Text  string
	Nodes []Node
}

func (n *Program) Range() Span { return n.Loc }
func (n *Statement) Range() Span { return n.Loc }
func (n *CTE) Range() Span { return n.Loc }
func (n *Select) Range() Span { return n.Loc }
func (n *From) Range() Span { return n.Loc }
func (n *Relation) Range() Span { return n.Loc }
func (n *Subquery) Range() Span { return n.Loc }
func (n *SetOperation) Range() Span { return n.Loc }
func (n *Clause) Range() Span { return n.Loc }
func (n *CreateTable) Range() Span { return n.Loc }
func (n *Error) Range() Span { return n.Loc }

func (n *Program) Children() []Node { return n.Nodes }

func (n *Statement) Children() []Node {
	out := make([]Node, 0, len(n.CTEs)+len(n.Body))
	for _, c := range n.CTEs {
		out = append(out, c)
	}
	return append(out, n.Body...)
}

func (n *CTE) Children() []Node { return n.Body }

func (n *Select) Children() []Node { return subqueryNodes(n.Nested) }

func (n *From) Children() []Node {
	return append(append([]Node{}, n.Items...), subqueryNodes(n.Nested)...)
}

func (n *Relation) Children() []Node {
	var out []Node
	if n.Subquery != nil {
		out = append(out, n.Subquery)
	}
	for _, e := range n.Errors {
		out = append(out, e)
	}
	return out
}

func (n *Subquery) Children() []Node { return n.Body }
func (n *SetOperation) Children() []Node { return n.Parts }
func (n *Clause) Children() []Node { return subqueryNodes(n.Nested) }
func (n *CreateTable) Children() []Node { return nil }
func (n *Error) Children() []Node { return n.Nodes }

func subqueryNodes(subs []*Subquery) []Node {
	if len(subs) == 0 {
		return nil
	}
	out := make([]Node, len(subs))
	for i, s := range subs {
		out[i] = s
	}
	return out
}

// HasErrors reports whether n or any descendant is an *Error.
func HasErrors(n Node) bool {
	if n == nil {
		return false
	}
	if _, ok := n.(*Error); ok {
		return true
	}
	for _, c := range n.Children() {
		if HasErrors(c) {
			return true
		}
	}
	return false
}

// Walk visits n and its descendants depth-first until fn returns false.
func Walk(n Node, fn func(Node) bool) {
	if n == nil || !fn(n) {
		return
	}
	for _, c := range n.Children() {
		Walk(c, fn)
	}
}
