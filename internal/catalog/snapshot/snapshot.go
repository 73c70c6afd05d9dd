// Package snapshot reads catalog snapshot documents (YAML or JSON) and turns
// them into in-memory catalog servers.
package snapshot

import (
	"context"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/maraichr/sqlscope/internal/catalog"
	"github.com/maraichr/sqlscope/internal/catalog/memory"
)

// Document is the on-disk snapshot format.
type Document struct {
	Server    string     `yaml:"server" json:"server"`
	Vendor    string     `yaml:"vendor" json:"vendor"`
	Databases []Database `yaml:"databases" json:"databases"`
}

type Database struct {
	Name    string   `yaml:"name" json:"name"`
	Schemas []Schema `yaml:"schemas" json:"schemas"`
}

type Schema struct {
	Name      string    `yaml:"name" json:"name"`
	Tables    []Table   `yaml:"tables,omitempty" json:"tables,omitempty"`
	Views     []Table   `yaml:"views,omitempty" json:"views,omitempty"`
	Synonyms  []Synonym `yaml:"synonyms,omitempty" json:"synonyms,omitempty"`
	Functions []string  `yaml:"functions,omitempty" json:"functions,omitempty"`
}

type Table struct {
	Name    string           `yaml:"name" json:"name"`
	Columns []catalog.Column `yaml:"columns,omitempty" json:"columns,omitempty"`
}

type Synonym struct {
	Name   string `yaml:"name" json:"name"`
	Target string `yaml:"target" json:"target"`
}

// Decode reads a snapshot. JSON documents are valid YAML and decode the same way.
func Decode(r io.Reader) (*Document, error) {
	var doc Document
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	if doc.Server == "" {
		doc.Server = "default"
	}
	for i, db := range doc.Databases {
		if db.Name == "" {
			return nil, fmt.Errorf("decode snapshot: database %d has no name", i)
		}
	}
	for i := range doc.Databases {
		for j := range doc.Databases[i].Schemas {
			numberColumns(doc.Databases[i].Schemas[j].Tables)
			numberColumns(doc.Databases[i].Schemas[j].Views)
		}
	}
	return &doc, nil
}

// Encode writes doc as YAML.
func Encode(w io.Writer, doc *Document) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	return enc.Close()
}

// numberColumns fills missing ordinal positions from declaration order.
func numberColumns(tables []Table) {
	for _, t := range tables {
		for k := range t.Columns {
			if t.Columns[k].OrdinalPosition == 0 {
				t.Columns[k].OrdinalPosition = k + 1
			}
		}
	}
}

// Build turns doc into a server. Each database is filled lazily, on its
// first Load.
func Build(doc *Document) *memory.Server {
	srv := memory.NewServer(doc.Server, doc.Vendor)
	for _, d := range doc.Databases {
		schemas := d.Schemas
		srv.AddDatabase(memory.NewDatabase(d.Name, func(ctx context.Context, db *memory.Database) error {
			fill(db, schemas)
			return ctx.Err()
		}))
	}
	return srv
}

func fill(db *memory.Database, schemas []Schema) {
	for _, s := range schemas {
		for _, t := range s.Tables {
			db.AddTable(s.Name, t.Name, t.Columns...)
		}
		for _, v := range s.Views {
			db.AddView(s.Name, v.Name, v.Columns...)
		}
		for _, syn := range s.Synonyms {
			db.AddSynonym(s.Name, syn.Name, syn.Target)
		}
		for _, fn := range s.Functions {
			db.AddFunction(s.Name, fn)
		}
	}
}

// LoadFile decodes and builds the snapshot at path.
func LoadFile(path string) (*memory.Server, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open snapshot: %w", err)
	}
	defer f.Close()

	doc, err := Decode(f)
	if err != nil {
		return nil, err
	}
	return Build(doc), nil
}

// Opener fetches a stored snapshot by name.
type Opener interface {
	OpenSnapshot(ctx context.Context, name string) (io.ReadCloser, error)
}

// LoadObject decodes and builds a snapshot fetched through o.
func LoadObject(ctx context.Context, o Opener, name string) (*memory.Server, error) {
	rc, err := o.OpenSnapshot(ctx, name)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	doc, err := Decode(rc)
	if err != nil {
		return nil, err
	}
	return Build(doc), nil
}
