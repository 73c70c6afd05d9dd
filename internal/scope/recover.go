package scope

import (
	"github.com/maraichr/sqlscope/internal/parser"
	"github.com/maraichr/sqlscope/internal/parser/sqlutil"
)

// maxRecoveryDepth bounds the search inside error nodes.
const maxRecoveryDepth = 50

// recover searches inside an error node for structure the parser did
// recognize and feeds it to the builder. A bare SELECT with no enclosing
// statement gets a Main scope spanning the error node itself, since spans
// of nodes inside an error region are unreliable. When the structure found
// binds no relation, the region's text goes through regex extraction.
func (w *walker) recover(scope *Node, e *parser.Error) {
	found := recognizable(e, 0, nil)
	if len(found) == 0 {
		w.regexRegion(scope, e)
		return
	}

	before := len(scope.Children)
	target := scope
	if hasBareSelect(found) || (scope.Kind == Global && hasQueryPieces(found)) {
		target = newNode(Main, e.Loc, scope)
	}
	for _, n := range found {
		if stmt, ok := n.(*parser.Statement); ok {
			w.statement(scope, stmt)
			continue
		}
		w.node(target, n)
	}

	created := scope.Children[before:]
	if bindsAny(created) || (target == scope && bindsAny([]*Node{scope})) {
		return
	}
	switch {
	case target != scope:
		addRegexAliases(target, e.Text)
	case len(created) > 0:
		addRegexAliases(created[len(created)-1], e.Text)
	default:
		w.regexRegion(scope, e)
	}
}

// bindsAny reports whether any of the scopes, or their descendants, bind a
// table or derived table.
func bindsAny(scopes []*Node) bool {
	found := false
	for _, s := range scopes {
		s.Walk(func(n *Node) {
			if len(n.Aliases) > 0 || len(n.Derived) > 0 {
				found = true
			}
		})
	}
	return found
}

// addRegexAliases binds the aliases regex extraction finds in text without
// overwriting existing bindings.
func addRegexAliases(scope *Node, text string) {
	for alias, table := range sqlutil.ExtractAliases(text) {
		if _, exists := scope.Aliases[alias]; !exists {
			scope.AddAlias(alias, table)
		}
	}
}

// recognizable collects the nearest known substructures below n, looking
// through error nodes and unknown wrappers up to maxRecoveryDepth levels.
func recognizable(n parser.Node, depth int, out []parser.Node) []parser.Node {
	if depth > maxRecoveryDepth {
		return out
	}
	for _, c := range n.Children() {
		switch c.(type) {
		case *parser.Statement, *parser.CTE, *parser.Select, *parser.From, *parser.Relation,
			*parser.Subquery, *parser.SetOperation, *parser.CreateTable, *parser.Clause:
			out = append(out, c)
		default:
			out = recognizable(c, depth+1, out)
		}
	}
	return out
}

func hasBareSelect(nodes []parser.Node) bool {
	for _, n := range nodes {
		if _, ok := n.(*parser.Select); ok {
			return true
		}
	}
	return false
}

func hasQueryPieces(nodes []parser.Node) bool {
	for _, n := range nodes {
		switch n.(type) {
		case *parser.Select, *parser.From, *parser.Relation, *parser.SetOperation:
			return true
		}
	}
	return false
}

// regexRegion falls back to text extraction for an error region with no
// recognizable structure at all.
func (w *walker) regexRegion(scope *Node, e *parser.Error) {
	aliases := sqlutil.ExtractAliases(e.Text)
	if len(aliases) == 0 {
		return
	}
	target := scope
	if scope.Kind == Global {
		target = newNode(Main, e.Loc, scope)
	}
	addRegexAliases(target, e.Text)
}
