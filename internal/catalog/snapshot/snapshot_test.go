package snapshot

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/maraichr/sqlscope/internal/catalog"
)

const sample = `
server: prod
vendor: sqlserver
databases:
  - name: Sales
    schemas:
      - name: dbo
        tables:
          - name: Orders
            columns:
              - {name: id, data_type: int, is_primary_key: true}
              - {name: customer_id, data_type: int, nullable: true, is_foreign_key: true}
        views:
          - name: OpenOrders
        synonyms:
          - name: Staff
            target: HR.dbo.Employees
        functions: [fn_total]
  - name: HR
    schemas:
      - name: dbo
        tables:
          - name: Employees
`

func TestDecodeAndBuild(t *testing.T) {
	doc, err := Decode(strings.NewReader(sample))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	srv := Build(doc)
	if srv.Name() != "prod" || srv.Vendor() != "sqlserver" {
		t.Fatalf("server = %s/%s", srv.Name(), srv.Vendor())
	}

	db := srv.FindDatabase("sales")
	if db == nil {
		t.Fatal("database Sales not found")
	}
	if db.IsLoaded() || len(db.Tables("")) != 0 {
		t.Fatal("database filled before Load")
	}
	if err := db.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}

	tables := db.Tables("dbo")
	if len(tables) != 1 {
		t.Fatalf("tables = %v", tables)
	}
	cols, err := tables[0].Columns(context.Background())
	if err != nil {
		t.Fatalf("Columns: %v", err)
	}
	want := []catalog.Column{
		{Name: "id", DataType: "int", IsPrimaryKey: true, OrdinalPosition: 1},
		{Name: "customer_id", DataType: "int", Nullable: true, IsForeignKey: true, OrdinalPosition: 2},
	}
	if diff := cmp.Diff(want, cols); diff != "" {
		t.Errorf("columns mismatch (-want +got):\n%s", diff)
	}
	if len(db.Views("dbo")) != 1 || len(db.Functions("dbo")) != 1 {
		t.Error("views/functions missing")
	}

	syn := db.Synonyms("dbo")[0]
	target, err := syn.Resolve(context.Background())
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if target.QualifiedName() != "HR.dbo.Employees" {
		t.Errorf("synonym target = %s", target.QualifiedName())
	}
}

func TestDecodeJSON(t *testing.T) {
	doc, err := Decode(strings.NewReader(`{"vendor":"postgres","databases":[{"name":"app","schemas":[{"name":"public","tables":[{"name":"users"}]}]}]}`))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if doc.Server != "default" || doc.Vendor != "postgres" || len(doc.Databases) != 1 {
		t.Errorf("doc = %+v", doc)
	}
}

func TestDecodeRejectsUnnamedDatabase(t *testing.T) {
	if _, err := Decode(strings.NewReader("databases:\n  - schemas: []\n")); err == nil {
		t.Fatal("expected error")
	}
}

func TestEncodeRoundTrip(t *testing.T) {
	doc, err := Decode(strings.NewReader(sample))
	if err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	if err := Encode(&buf, doc); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	again, err := Decode(&buf)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if diff := cmp.Diff(doc, again); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	if err := os.WriteFile(path, []byte(sample), 0o600); err != nil {
		t.Fatal(err)
	}
	srv, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if srv.Database("HR") == nil {
		t.Error("HR database missing")
	}
	if _, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

type fakeOpener map[string]string

func (f fakeOpener) OpenSnapshot(_ context.Context, name string) (io.ReadCloser, error) {
	s, ok := f[name]
	if !ok {
		return nil, errors.New("no such key")
	}
	return io.NopCloser(strings.NewReader(s)), nil
}

func TestLoadObject(t *testing.T) {
	srv, err := LoadObject(context.Background(), fakeOpener{"prod": sample}, "prod")
	if err != nil {
		t.Fatalf("LoadObject: %v", err)
	}
	if srv.Name() != "prod" {
		t.Errorf("server = %s", srv.Name())
	}
	if _, err := LoadObject(context.Background(), fakeOpener{}, "prod"); err == nil {
		t.Error("expected error")
	}
}
