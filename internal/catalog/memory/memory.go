// Package memory is an in-process catalog: servers and databases whose
// objects are held in memory and optionally filled by a lazy loader.
package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"github.com/maraichr/sqlscope/internal/catalog"
	"github.com/maraichr/sqlscope/internal/ident"
)

// Server holds databases by name.
type Server struct {
	name    string
	vendor  string
	adapter catalog.Adapter

	mu  sync.RWMutex
	dbs []*Database
}

func NewServer(name, vendor string) *Server {
	return &Server{name: name, vendor: vendor}
}

func (s *Server) Name() string             { return s.name }
func (s *Server) Vendor() string           { return s.vendor }
func (s *Server) Adapter() catalog.Adapter { return s.adapter }

// SetAdapter sets the adapter used for direct column queries.
func (s *Server) SetAdapter(a catalog.Adapter) {
	s.adapter = a
}

// AddDatabase attaches db to the server and returns it.
func (s *Server) AddDatabase(db *Database) *Database {
	s.mu.Lock()
	defer s.mu.Unlock()
	db.server = s
	s.dbs = append(s.dbs, db)
	return db
}

// Database returns the database named exactly name.
func (s *Server) Database(name string) catalog.Database {
	if db := s.database(name, false); db != nil {
		return db
	}
	return nil
}

// FindDatabase returns the database whose name matches case-insensitively.
func (s *Server) FindDatabase(name string) catalog.Database {
	if db := s.database(name, true); db != nil {
		return db
	}
	return nil
}

func (s *Server) database(name string, fold bool) *Database {
	s.mu.RLock()
	defer s.mu.RUnlock()
	name = ident.Normalize(name)
	for _, db := range s.dbs {
		if db.name == name || fold && strings.EqualFold(db.name, name) {
			return db
		}
	}
	return nil
}

// Databases lists the attached databases in insertion order.
func (s *Server) Databases() []*Database {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]*Database(nil), s.dbs...)
}

// Loader fills db with objects. It is called at most once per successful
// load; a failed load may be retried by a later Load call.
type Loader func(ctx context.Context, db *Database) error

// Database is a catalog database whose objects live in memory.
type Database struct {
	name   string
	server *Server
	loader Loader

	loadGroup singleflight.Group
	loads     atomic.Int32
	loaded    atomic.Bool

	mu      sync.RWMutex
	objects map[catalog.Kind][]*catalog.Object
}

// NewDatabase returns a database. With a nil loader the database counts as
// loaded from the start.
func NewDatabase(name string, loader Loader) *Database {
	db := &Database{
		name:    name,
		loader:  loader,
		objects: make(map[catalog.Kind][]*catalog.Object),
	}
	if loader == nil {
		db.loaded.Store(true)
	}
	return db
}

func (d *Database) Name() string   { return d.name }
func (d *Database) IsLoaded() bool { return d.loaded.Load() }

// Loads reports how many times the loader has actually run.
func (d *Database) Loads() int { return int(d.loads.Load()) }

// Load runs the loader once. Concurrent callers share the in-flight load.
func (d *Database) Load(ctx context.Context) error {
	if d.loaded.Load() {
		return nil
	}
	_, err, _ := d.loadGroup.Do("load", func() (any, error) {
		if d.loaded.Load() {
			return nil, nil
		}
		d.loads.Add(1)
		if err := d.loader(ctx, d); err != nil {
			return nil, fmt.Errorf("load database %s: %w", d.name, err)
		}
		d.loaded.Store(true)
		return nil, nil
	})
	return err
}

func (d *Database) Tables(schema string) []*catalog.Object {
	return d.list(catalog.KindTable, schema)
}

func (d *Database) Views(schema string) []*catalog.Object {
	return d.list(catalog.KindView, schema)
}

func (d *Database) Synonyms(schema string) []*catalog.Object {
	return d.list(catalog.KindSynonym, schema)
}

func (d *Database) Functions(schema string) []*catalog.Object {
	return d.list(catalog.KindFunction, schema)
}

func (d *Database) list(kind catalog.Kind, schema string) []*catalog.Object {
	d.mu.RLock()
	defer d.mu.RUnlock()
	all := d.objects[kind]
	if schema == "" {
		return append([]*catalog.Object(nil), all...)
	}
	var out []*catalog.Object
	for _, o := range all {
		if ident.Equal(o.Schema, schema) {
			out = append(out, o)
		}
	}
	return out
}

// Add registers an object as-is.
func (d *Database) Add(o *catalog.Object) *catalog.Object {
	if o.Database == "" {
		o.Database = d.name
	}
	d.mu.Lock()
	d.objects[o.Kind] = append(d.objects[o.Kind], o)
	d.mu.Unlock()
	return o
}

// AddTable registers a table with a fixed column list.
func (d *Database) AddTable(schema, name string, cols ...catalog.Column) *catalog.Object {
	return d.Add(&catalog.Object{Name: name, Schema: schema, Kind: catalog.KindTable, Columns: StaticColumns(cols)})
}

// AddView registers a view with a fixed column list.
func (d *Database) AddView(schema, name string, cols ...catalog.Column) *catalog.Object {
	return d.Add(&catalog.Object{Name: name, Schema: schema, Kind: catalog.KindView, Columns: StaticColumns(cols)})
}

// AddFunction registers a function.
func (d *Database) AddFunction(schema, name string) *catalog.Object {
	return d.Add(&catalog.Object{Name: name, Schema: schema, Kind: catalog.KindFunction})
}

// AddSynonym registers a synonym for target. The target is looked up when
// the synonym is resolved, in the database it names or in d.
func (d *Database) AddSynonym(schema, name, target string) *catalog.Object {
	syn := &catalog.Object{Name: name, Schema: schema, Kind: catalog.KindSynonym, Target: target}
	syn.Resolve = func(ctx context.Context) (*catalog.Object, error) {
		return d.resolveTarget(ctx, target)
	}
	return d.Add(syn)
}

// resolveTarget finds the object a synonym names. The result may itself be
// a synonym; callers follow the chain.
func (d *Database) resolveTarget(ctx context.Context, target string) (*catalog.Object, error) {
	qn := ident.ParseQualifiedName(target)
	db := d
	if qn.Database != "" && !strings.EqualFold(qn.Database, d.name) {
		if d.server == nil {
			return nil, fmt.Errorf("synonym target %s: no server", target)
		}
		db = d.server.database(qn.Database, true)
		if db == nil {
			return nil, fmt.Errorf("synonym target %s: unknown database %s", target, qn.Database)
		}
	}
	if err := db.Load(ctx); err != nil {
		return nil, err
	}
	for _, kind := range []catalog.Kind{catalog.KindTable, catalog.KindView, catalog.KindSynonym} {
		for _, o := range db.list(kind, qn.Schema) {
			if ident.Equal(o.Name, qn.Name) {
				return o, nil
			}
		}
	}
	return nil, fmt.Errorf("synonym target %s: not found", target)
}

// StaticColumns returns a loader that hands out a copy of cols.
func StaticColumns(cols []catalog.Column) catalog.ColumnsFunc {
	if cols == nil {
		return nil
	}
	return func(context.Context) ([]catalog.Column, error) {
		return append([]catalog.Column(nil), cols...), nil
	}
}
