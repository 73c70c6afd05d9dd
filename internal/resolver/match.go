package resolver

import (
	"github.com/maraichr/sqlscope/internal/catalog"
	"github.com/maraichr/sqlscope/internal/ident"
)

// matchRule is one step of the schema precedence applied to each object
// collection. Rules run in order; the first that applies and matches wins.
type matchRule struct {
	name    string
	applies func(schema, defSchema string) bool
	match   func(o *catalog.Object, schema, defSchema string) bool
}

var matchRules = []matchRule{
	{
		name:    "explicit_schema",
		applies: func(schema, _ string) bool { return schema != "" },
		match:   func(o *catalog.Object, schema, _ string) bool { return ident.Equal(o.Schema, schema) },
	},
	{
		name:    "default_schema",
		applies: func(schema, defSchema string) bool { return schema == "" && defSchema != "" },
		match:   func(o *catalog.Object, _, defSchema string) bool { return ident.Equal(o.Schema, defSchema) },
	},
	{
		name:    "first_match",
		applies: func(schema, defSchema string) bool { return schema == "" && defSchema == "" },
		match:   func(*catalog.Object, string, string) bool { return true },
	},
	// Schema-unsafe when several schemas hold the same name: the first one
	// listed wins.
	{
		name:    "any_schema",
		applies: func(schema, _ string) bool { return schema == "" },
		match:   func(*catalog.Object, string, string) bool { return true },
	},
}

// collections are searched in this order; tables shadow views and synonyms.
var collections = []struct {
	kind catalog.Kind
	list func(catalog.Database) []*catalog.Object
}{
	{catalog.KindTable, func(db catalog.Database) []*catalog.Object { return db.Tables("") }},
	{catalog.KindView, func(db catalog.Database) []*catalog.Object { return db.Views("") }},
	{catalog.KindSynonym, func(db catalog.Database) []*catalog.Object { return db.Synonyms("") }},
}

// search finds name in db and reports the rule that matched it.
func search(db catalog.Database, schema, name, defSchema string) (*catalog.Object, string) {
	for _, c := range collections {
		var candidates []*catalog.Object
		for _, o := range c.list(db) {
			if ident.Equal(o.Name, name) {
				candidates = append(candidates, o)
			}
		}
		if len(candidates) == 0 {
			continue
		}
		for _, rule := range matchRules {
			if !rule.applies(schema, defSchema) {
				continue
			}
			for _, o := range candidates {
				if rule.match(o, schema, defSchema) {
					return o, string(c.kind) + "/" + rule.name
				}
			}
		}
	}
	return nil, ""
}
