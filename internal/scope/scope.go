// Package scope builds the tree of lexical scopes of a SQL buffer and answers
// "what is visible at this cursor" questions against it.
package scope

import (
	"math"
	"strings"

	"github.com/maraichr/sqlscope/internal/ident"
	"github.com/maraichr/sqlscope/internal/parser"
)

// EndTolerance is how far past a scope's end a cursor may sit and still be
// considered inside it. Queries being typed rarely have a closed span.
const EndTolerance = 100

// Kind classifies a scope.
type Kind int

const (
	Global Kind = iota
	Main
	Subquery
	CTE
	DerivedTable
)

var kindNames = [...]string{"global", "main", "subquery", "cte", "derived_table"}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

func (k Kind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

// Node is one lexical scope. Parent is a back-reference; ownership flows
// from the root through Children.
type Node struct {
	Kind     Kind                   `json:"kind"`
	Span     parser.Span            `json:"span"`
	Aliases  map[string]string      `json:"aliases,omitempty"` // lower alias -> table reference
	CTEs     map[string]*CTEInfo    `json:"ctes,omitempty"`    // lower name -> definition
	Derived  map[string]*Projection `json:"derived,omitempty"` // lower alias -> derived table query
	Query    *Projection            `json:"query,omitempty"`
	Parent   *Node                  `json:"-"`
	Children []*Node                `json:"children,omitempty"`
}

func newNode(kind Kind, span parser.Span, parent *Node) *Node {
	n := &Node{
		Kind:    kind,
		Span:    span,
		Aliases: make(map[string]string),
		CTEs:    make(map[string]*CTEInfo),
		Derived: make(map[string]*Projection),
		Query:   &Projection{},
		Parent:  parent,
	}
	if parent != nil {
		parent.Children = append(parent.Children, n)
	}
	return n
}

// AddAlias binds alias to table in this scope. The last binding wins.
func (n *Node) AddAlias(alias, table string) {
	key := ident.Fold(alias)
	if key == "" || table == "" {
		return
	}
	n.Aliases[key] = table
}

// Ancestors returns n followed by each enclosing scope up to the root.
func (n *Node) Ancestors() []*Node {
	var out []*Node
	for s := n; s != nil; s = s.Parent {
		out = append(out, s)
	}
	return out
}

// Walk visits n and its descendants depth-first.
func (n *Node) Walk(fn func(*Node)) {
	fn(n)
	for _, c := range n.Children {
		c.Walk(fn)
	}
}

// CTEInfo describes one WITH-clause definition.
type CTEInfo struct {
	Name      string      `json:"name"`
	Columns   []string    `json:"columns,omitempty"` // declared column list
	Span      parser.Span `json:"span"`
	Text      string      `json:"text"`
	Recursive bool        `json:"recursive,omitempty"`
	Query     *Projection `json:"query,omitempty"`
}

// Projection is what a SELECT produces: its items and the relations they
// can draw from.
type Projection struct {
	Items   []parser.SelectItem `json:"items,omitempty"`
	Sources []Source            `json:"sources,omitempty"`
}

// Source is one relation of a FROM clause.
type Source struct {
	Alias   string      `json:"alias"`
	Table   string      `json:"table,omitempty"`
	Derived *Projection `json:"derived,omitempty"`
}

// SourceFor returns the source bound to qualifier, or nil. An empty
// qualifier never matches.
func (p *Projection) SourceFor(qualifier string) *Source {
	if p == nil || qualifier == "" {
		return nil
	}
	for i := range p.Sources {
		s := &p.Sources[i]
		if ident.Equal(s.Alias, qualifier) || (s.Table != "" && ident.Equal(ident.ShortName(s.Table), qualifier)) {
			return s
		}
	}
	return nil
}

// TempTable is a temp table declared in the buffer.
type TempTable struct {
	Name       string             `json:"name"`
	DeclaredAt int                `json:"declared_at"` // byte offset
	Columns    []parser.ColumnDef `json:"columns,omitempty"`
	Query      *Projection        `json:"query,omitempty"`
	// Types holds column types known statically, keyed by lower column name.
	Types map[string]string `json:"types,omitempty"`
}

// Tree is the scope tree of one buffer.
type Tree struct {
	Root        *Node       `json:"root"`
	Source      string      `json:"-"`
	Parser      string      `json:"parser"`       // backend that produced the AST, "regex" when degraded
	Degraded    bool        `json:"degraded"`     // regex fallback was used
	ParseErrors bool        `json:"parse_errors"` // the AST carried error nodes
	Vendor      string      `json:"vendor,omitempty"`
	TempTables  []TempTable `json:"temp_tables,omitempty"`
}

// ScopeAt returns the innermost scope containing offset. At each level the
// first child whose span contains the cursor wins. Children are tried
// without tolerance first so a neighbouring scope's tolerance window never
// shadows the scope the cursor is actually in. A child's tolerance window
// ends where the next sibling starts. A parenthesized scope that was
// closed, or a scope followed by a statement terminator, does not extend
// past its end.
func (t *Tree) ScopeAt(offset int) *Node {
	if t == nil || t.Root == nil {
		return nil
	}
	cur := t.Root
	for {
		next := t.childAt(cur, offset, false)
		if next == nil {
			next = t.childAt(cur, offset, true)
		}
		if next == nil {
			return cur
		}
		cur = next
	}
}

func (t *Tree) childAt(n *Node, offset int, tolerant bool) *Node {
	for _, c := range n.Children {
		if !tolerant {
			if c.Span.Contains(offset, 0) {
				return c
			}
			continue
		}
		if c.Span.Contains(offset, EndTolerance) && !t.closedBefore(c, offset) && offset < nextStart(n, c) {
			return c
		}
	}
	return nil
}

// nextStart returns the start of the first sibling of c that begins after
// it, or the largest int when c is last.
func nextStart(parent, c *Node) int {
	next := math.MaxInt
	for _, s := range parent.Children {
		if s != c && s.Span.StartByte > c.Span.StartByte && s.Span.StartByte < next {
			next = s.Span.StartByte
		}
	}
	return next
}

func (t *Tree) closedBefore(n *Node, offset int) bool {
	end := n.Span.EndByte
	if end <= 0 || end > len(t.Source) || offset > len(t.Source) || offset < end {
		return false
	}
	if strings.IndexByte(t.Source[end:offset], ';') >= 0 {
		return true
	}
	return n.Kind != Main && t.Source[end-1] == ')'
}

// AliasesVisibleAt merges alias maps from the scope at offset outwards. An
// inner binding shadows an outer one of the same name.
func (t *Tree) AliasesVisibleAt(offset int) map[string]string {
	out := make(map[string]string)
	s := t.ScopeAt(offset)
	if s == nil {
		return out
	}
	for _, n := range s.Ancestors() {
		for k, v := range n.Aliases {
			if _, seen := out[k]; !seen {
				out[k] = v
			}
		}
	}
	return out
}

// CTEsVisibleAt merges CTE definitions from the scope at offset outwards,
// keeping only those whose declaration starts before offset.
func (t *Tree) CTEsVisibleAt(offset int) map[string]*CTEInfo {
	out := make(map[string]*CTEInfo)
	s := t.ScopeAt(offset)
	if s == nil {
		return out
	}
	for _, n := range s.Ancestors() {
		for k, c := range n.CTEs {
			if c.Span.StartByte >= offset {
				continue
			}
			if _, seen := out[k]; !seen {
				out[k] = c
			}
		}
	}
	return out
}

// DerivedVisibleAt merges derived-table projections from the scope at offset
// outwards, inner first.
func (t *Tree) DerivedVisibleAt(offset int) map[string]*Projection {
	out := make(map[string]*Projection)
	s := t.ScopeAt(offset)
	if s == nil {
		return out
	}
	for _, n := range s.Ancestors() {
		for k, p := range n.Derived {
			if _, seen := out[k]; !seen {
				out[k] = p
			}
		}
	}
	return out
}

// TempTable returns the first declaration of name made before offset.
func (t *Tree) TempTable(name string, offset int) *TempTable {
	for i := range t.TempTables {
		tt := &t.TempTables[i]
		if tt.DeclaredAt < offset && ident.Equal(tt.Name, name) {
			return tt
		}
	}
	return nil
}

// Offset converts a 1-indexed line/column into a byte offset in the source.
// Positions past the end of a line clamp to its newline; positions past the
// end of the buffer clamp to its length.
func (t *Tree) Offset(line, col int) int {
	return offsetOf(t.Source, line, col)
}

func offsetOf(src string, line, col int) int {
	if line < 1 {
		return 0
	}
	off := 0
	for l := 1; l < line; l++ {
		nl := strings.IndexByte(src[off:], '\n')
		if nl < 0 {
			return len(src)
		}
		off += nl + 1
	}
	end := strings.IndexByte(src[off:], '\n')
	if end < 0 {
		end = len(src) - off
	}
	if col < 1 {
		col = 1
	}
	if col-1 > end {
		return off + end
	}
	return off + col - 1
}
