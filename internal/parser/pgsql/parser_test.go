package pgsql

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/maraichr/sqlscope/internal/parser"
)

func TestTempTablesCreate(t *testing.T) {
	src := `CREATE TABLE permanent (id int);
CREATE TEMP TABLE scratch (
    id int PRIMARY KEY,
    name varchar(50) NOT NULL,
    note text
);`
	tables, err := TempTables(src)
	if err != nil {
		t.Fatalf("TempTables: %v", err)
	}
	if len(tables) != 1 {
		t.Fatalf("expected 1 temp table, got %d", len(tables))
	}
	got := tables[0]
	if got.Name != "scratch" {
		t.Errorf("expected scratch, got %q", got.Name)
	}
	if want := strings.Index(src, "CREATE TEMP"); got.Offset != want {
		t.Errorf("offset = %d, want %d", got.Offset, want)
	}
	want := []parser.ColumnDef{
		{Name: "id", Type: "integer", PrimaryKey: true},
		{Name: "name", Type: "varchar(50)", NotNull: true},
		{Name: "note", Type: "text"},
	}
	if diff := cmp.Diff(want, got.Columns); diff != "" {
		t.Errorf("columns mismatch (-want +got):\n%s", diff)
	}
}

func TestTempTablesTableLevelPrimaryKey(t *testing.T) {
	tables, err := TempTables("CREATE TEMPORARY TABLE t (a bigint, b numeric(10,2), PRIMARY KEY (a))")
	if err != nil {
		t.Fatalf("TempTables: %v", err)
	}
	if len(tables) != 1 || len(tables[0].Columns) != 2 {
		t.Fatalf("unexpected result %+v", tables)
	}
	cols := tables[0].Columns
	if !cols[0].PrimaryKey || cols[0].Type != "bigint" {
		t.Errorf("column a = %+v", cols[0])
	}
	if cols[1].Type != "numeric(10,2)" || cols[1].PrimaryKey {
		t.Errorf("column b = %+v", cols[1])
	}
}

func TestTempTablesFromQuery(t *testing.T) {
	src := `SELECT id, name::text AS label INTO TEMP staged FROM users;
CREATE TEMP TABLE totals AS SELECT count(*) AS n FROM orders;`
	tables, err := TempTables(src)
	if err != nil {
		t.Fatalf("TempTables: %v", err)
	}
	if len(tables) != 2 {
		t.Fatalf("expected 2 temp tables, got %d", len(tables))
	}

	if tables[0].Name != "staged" || tables[0].Offset != 0 {
		t.Errorf("first = %+v", tables[0])
	}
	wantStaged := []Target{
		{Name: "id", Source: "id"},
		{Name: "label", Type: "text", Source: "name"},
	}
	if diff := cmp.Diff(wantStaged, tables[0].Query); diff != "" {
		t.Errorf("staged targets (-want +got):\n%s", diff)
	}

	if tables[1].Name != "totals" {
		t.Errorf("second = %+v", tables[1])
	}
	if diff := cmp.Diff([]Target{{Name: "n", Type: "bigint"}}, tables[1].Query); diff != "" {
		t.Errorf("totals targets (-want +got):\n%s", diff)
	}
}

func TestTempTablesSyntaxError(t *testing.T) {
	if _, err := TempTables("CREATE TEMP TABLE ("); err == nil {
		t.Error("expected a parse error")
	}
}

func TestTargets(t *testing.T) {
	got, err := Targets("SELECT u.id, count(*), 1 AS one, 'x'::varchar(10) v, price * 2, u.* FROM users u")
	if err != nil {
		t.Fatalf("Targets: %v", err)
	}
	want := []Target{
		{Name: "id", Source: "u.id"},
		{Name: "count", Type: "bigint"},
		{Name: "one", Type: "integer"},
		{Name: "v", Type: "varchar(10)"},
		{},
		{Star: true, Source: "u"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("targets mismatch (-want +got):\n%s", diff)
	}
}

func TestTargetsSetOperationUsesLeftBranch(t *testing.T) {
	got, err := Targets("SELECT a AS first FROM t1 UNION SELECT b FROM t2")
	if err != nil {
		t.Fatalf("Targets: %v", err)
	}
	if len(got) != 1 || got[0].Name != "first" {
		t.Errorf("unexpected %+v", got)
	}
}

func TestTargetsRejectsNonSelect(t *testing.T) {
	if _, err := Targets("DELETE FROM t"); err == nil {
		t.Error("expected an error for DELETE")
	}
}
