package resolver

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/maraichr/sqlscope/internal/catalog"
	"github.com/maraichr/sqlscope/internal/ident"
)

// TableRef is one relation in scope at the cursor. Synthetic kinds (CTE,
// subquery, temp table) carry their inferred columns.
type TableRef struct {
	Name    string           `json:"name"`
	Alias   string           `json:"alias,omitempty"`
	Kind    catalog.Kind     `json:"kind"`
	Columns []catalog.Column `json:"columns,omitempty"`
}

// Synthetic reports whether the relation exists only in the buffer.
func (t TableRef) Synthetic() bool {
	switch t.Kind {
	case catalog.KindCTE, catalog.KindSubquery, catalog.KindTempTable:
		return true
	}
	return false
}

// SQLContext is what is known about the cursor position of one buffer.
type SQLContext struct {
	// Aliases maps lower-cased alias to the table reference it names.
	Aliases map[string]string
	Tables  []TableRef
	// Vendor is used when the connection does not report one.
	Vendor   string
	Resolved *ResolvedScope

	temps map[string]*catalog.Object
}

// ResolveAlias returns the table reference alias stands for. The lookup is
// case-insensitive and does not follow alias chains.
func (c *SQLContext) ResolveAlias(alias string) (string, bool) {
	if c == nil {
		return "", false
	}
	table, ok := c.Aliases[ident.Fold(alias)]
	return table, ok && table != ""
}

// TempTable returns the buffer's temp table of that name, or nil.
func (c *SQLContext) TempTable(name string) *catalog.Object {
	if c == nil {
		return nil
	}
	return c.temps[ident.Fold(name)]
}

func (c *SQLContext) addTemp(obj *catalog.Object) {
	if c.temps == nil {
		c.temps = make(map[string]*catalog.Object)
	}
	c.temps[ident.Fold(obj.Name)] = obj
}

// Resolution is the outcome of one pre-resolution task.
type Resolution struct {
	Ref    string
	Alias  string
	Object *catalog.Object
	Err    error
}

// ResolvedScope memoizes the objects of one statement: lower-cased alias to
// object and lower-cased table reference to object. It is safe for
// concurrent use.
type ResolvedScope struct {
	ID uuid.UUID

	mu      sync.Mutex
	aliases map[string]*catalog.Object
	tables  map[string]*catalog.Object
	results []Resolution
}

func NewResolvedScope() *ResolvedScope {
	return &ResolvedScope{
		ID:      uuid.New(),
		aliases: make(map[string]*catalog.Object),
		tables:  make(map[string]*catalog.Object),
	}
}

// Alias returns the object memoized for alias, or nil.
func (s *ResolvedScope) Alias(alias string) *catalog.Object {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.aliases[ident.Fold(alias)]
}

// Table returns the object memoized for a table reference, or nil.
func (s *ResolvedScope) Table(ref string) *catalog.Object {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tables[ident.Fold(ref)]
}

func (s *ResolvedScope) record(r Resolution) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results = append(s.results, r)
	if r.Object == nil {
		return
	}
	if r.Alias != "" {
		s.aliases[ident.Fold(r.Alias)] = r.Object
	}
	s.tables[ident.Fold(r.Ref)] = r.Object
}

// Aliases returns a copy of the alias memo.
func (s *ResolvedScope) Aliases() map[string]*catalog.Object {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]*catalog.Object, len(s.aliases))
	for k, v := range s.aliases {
		out[k] = v
	}
	return out
}

// Tables returns a copy of the table memo.
func (s *ResolvedScope) Tables() map[string]*catalog.Object {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]*catalog.Object, len(s.tables))
	for k, v := range s.tables {
		out[k] = v
	}
	return out
}

// Results returns every recorded resolution, successful or not.
func (s *ResolvedScope) Results() []Resolution {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Resolution(nil), s.results...)
}

// Synthetic wraps a buffer-only relation in an object whose column loader
// returns cols.
func Synthetic(name string, kind catalog.Kind, cols []catalog.Column) *catalog.Object {
	cols = append([]catalog.Column(nil), cols...)
	return &catalog.Object{
		Name: name,
		Kind: kind,
		Columns: func(context.Context) ([]catalog.Column, error) {
			return append([]catalog.Column(nil), cols...), nil
		},
	}
}

// target is one reference pre-resolution works on.
type target struct {
	alias string
	ref   string
}

// preResolveTargets lists the aliases of c, sorted by alias, followed by
// ordinary table references not reachable through an alias.
func preResolveTargets(c *SQLContext) []target {
	if c == nil {
		return nil
	}
	var out []target
	seen := make(map[string]bool)
	aliases := make([]string, 0, len(c.Aliases))
	for a := range c.Aliases {
		aliases = append(aliases, a)
	}
	sort.Strings(aliases)
	for _, a := range aliases {
		ref := c.Aliases[a]
		if ref == "" || c.synthetic(ref) {
			continue
		}
		out = append(out, target{alias: a, ref: ref})
		seen[ident.Fold(ref)] = true
	}
	for _, t := range c.Tables {
		key := ident.Fold(t.Name)
		if t.Synthetic() || key == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, target{ref: t.Name})
	}
	return out
}

// synthetic reports whether ref names one of the buffer-only relations.
func (c *SQLContext) synthetic(ref string) bool {
	for _, t := range c.Tables {
		if t.Synthetic() && ident.Equal(t.Name, ref) {
			return true
		}
	}
	return false
}
