package scope

import (
	"github.com/maraichr/sqlscope/internal/ident"
	"github.com/maraichr/sqlscope/internal/parser/sqlutil"
)

// fallback fills tree from regex extraction alone: one flat global scope,
// temp tables without columns.
func fallback(tree *Tree) {
	tree.Parser = "regex"
	tree.Degraded = true

	root := tree.Root
	for alias, table := range sqlutil.ExtractAliases(tree.Source) {
		root.AddAlias(alias, table)
	}
	// write targets are visible to the statement even without FROM
	for _, ref := range sqlutil.ExtractTableRefs(tree.Source) {
		if !ref.Writes() || ident.IsTempTable(ref.Name) {
			continue
		}
		key := ident.Fold(ident.ShortName(ref.Name))
		if _, ok := root.Aliases[key]; !ok {
			root.AddAlias(key, ref.Name)
		}
	}
	for _, ref := range sqlutil.ExtractTempTables(tree.Source) {
		tree.TempTables = append(tree.TempTables, TempTable{Name: ref.Name, DeclaredAt: ref.Offset})
	}
}
