package analysis

import (
	"sort"

	"github.com/maraichr/sqlscope/internal/scope"
	"github.com/maraichr/sqlscope/pkg/models"
)

// ScopeTree converts a scope tree to its wire form.
func ScopeTree(tree *scope.Tree) models.ScopeTree {
	out := models.ScopeTree{
		Vendor:      tree.Vendor,
		Parser:      tree.Parser,
		Degraded:    tree.Degraded,
		ParseErrors: tree.ParseErrors,
	}
	if out.Parser == "" {
		out.Parser = "regex"
	}
	for _, t := range tree.TempTables {
		out.TempTables = append(out.TempTables, t.Name)
	}
	if tree.Root != nil {
		out.Root = scopeNode(tree.Root)
	}
	return out
}

func scopeNode(n *scope.Node) models.ScopeNode {
	out := models.ScopeNode{
		Kind:      n.Kind.String(),
		StartByte: n.Span.StartByte,
		EndByte:   n.Span.EndByte,
		Start:     models.Position{Line: n.Span.Start.Line, Column: n.Span.Start.Col},
		End:       models.Position{Line: n.Span.End.Line, Column: n.Span.End.Col},
	}
	if len(n.Aliases) > 0 {
		out.Aliases = make(map[string]string, len(n.Aliases))
		for k, v := range n.Aliases {
			out.Aliases[k] = v
		}
	}
	for _, c := range n.CTEs {
		out.CTEs = append(out.CTEs, c.Name)
	}
	sort.Strings(out.CTEs)
	for alias := range n.Derived {
		out.Derived = append(out.Derived, alias)
	}
	sort.Strings(out.Derived)
	for _, c := range n.Children {
		out.Children = append(out.Children, scopeNode(c))
	}
	return out
}
