package analysis

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"

	"github.com/maraichr/sqlscope/internal/catalog"
	"github.com/maraichr/sqlscope/internal/catalog/memory"
	"github.com/maraichr/sqlscope/internal/parser"
	"github.com/maraichr/sqlscope/internal/parser/tsql"
	"github.com/maraichr/sqlscope/internal/resolver"
	"github.com/maraichr/sqlscope/internal/scope"
	"github.com/maraichr/sqlscope/pkg/models"
)

func testConnection() *catalog.Connection {
	srv := memory.NewServer("prod", "sqlserver")
	sales := srv.AddDatabase(memory.NewDatabase("Sales", nil))
	sales.AddTable("dbo", "Orders",
		catalog.Column{Name: "id", DataType: "int", IsPrimaryKey: true, OrdinalPosition: 1},
		catalog.Column{Name: "customer_id", DataType: "int", Nullable: true, OrdinalPosition: 2},
		catalog.Column{Name: "total", DataType: "money", OrdinalPosition: 3})
	sales.AddSynonym("dbo", "Staff", "HR.dbo.Employees")
	srv.AddDatabase(memory.NewDatabase("HR", func(_ context.Context, db *memory.Database) error {
		db.AddTable("dbo", "Employees", catalog.Column{Name: "emp_id", DataType: "int", OrdinalPosition: 1})
		return nil
	}))
	return &catalog.Connection{Server: srv, Database: sales}
}

func newEngine(structured bool) *Engine {
	var reg *parser.Registry
	if structured {
		reg = parser.NewRegistry(tsql.New())
	}
	return NewEngine(scope.NewBuilder(reg, nil), resolver.NewEngine(resolver.Options{}, nil), testConnection(), nil)
}

const joinSQL = "SELECT o.id, s.emp_id FROM dbo.Orders o JOIN Staff s ON s.emp_id = o.id WHERE "

func TestAnalyze(t *testing.T) {
	for _, structured := range []bool{true, false} {
		name := "regex"
		if structured {
			name = "structured"
		}
		t.Run(name, func(t *testing.T) {
			got, err := newEngine(structured).Analyze(context.Background(), models.AnalyzeRequest{SQL: joinSQL})
			if err != nil {
				t.Fatalf("Analyze: %v", err)
			}
			if got.RequestID == uuid.Nil {
				t.Error("missing request id")
			}
			if got.Degraded == structured {
				t.Errorf("degraded = %v", got.Degraded)
			}
			if got.Vendor != catalog.VendorSQLServer || got.Offset != len(joinSQL) {
				t.Errorf("vendor = %q, offset = %d", got.Vendor, got.Offset)
			}

			wantTables := []models.TableRef{
				{Name: "dbo.Orders", Alias: "o", Kind: "table", Object: "Sales.dbo.Orders", Resolved: true},
				{Name: "Staff", Alias: "s", Kind: "table", Object: "HR.dbo.Employees", Resolved: true},
			}
			if diff := cmp.Diff(wantTables, got.Tables); diff != "" {
				t.Errorf("tables mismatch (-want +got):\n%s", diff)
			}

			var objects []string
			var columns []int
			for _, o := range got.Objects {
				objects = append(objects, o.QualifiedName)
				columns = append(columns, len(o.Columns))
			}
			if diff := cmp.Diff([]string{"Sales.dbo.Orders", "HR.dbo.Employees"}, objects); diff != "" {
				t.Errorf("objects mismatch (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff([]int{3, 1}, columns); diff != "" {
				t.Errorf("column counts mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestAnalyzeUnresolvedTableIsNotAnError(t *testing.T) {
	got, err := newEngine(true).Analyze(context.Background(), models.AnalyzeRequest{SQL: "SELECT * FROM Nowhere n WHERE "})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	want := []models.TableRef{{Name: "Nowhere", Alias: "n", Kind: "table"}}
	if diff := cmp.Diff(want, got.Tables); diff != "" {
		t.Errorf("tables mismatch (-want +got):\n%s", diff)
	}
	if len(got.Objects) != 0 {
		t.Errorf("objects = %+v", got.Objects)
	}
}

func TestAnalyzeWithoutCatalog(t *testing.T) {
	e := NewEngine(scope.NewBuilder(nil, nil), resolver.NewEngine(resolver.Options{}, nil), nil, nil)
	got, err := e.Analyze(context.Background(), models.AnalyzeRequest{SQL: "SELECT * FROM dbo.Foo f"})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if got.Aliases["f"] != "dbo.Foo" || got.Parser != "regex" {
		t.Errorf("analysis = %+v", got)
	}
	if len(got.Tables) != 1 || got.Tables[0].Resolved {
		t.Errorf("tables = %+v", got.Tables)
	}
}

func TestAnalyzeInvalidCursor(t *testing.T) {
	off := 999
	_, err := newEngine(true).Analyze(context.Background(), models.AnalyzeRequest{
		SQL:    "SELECT 1",
		Cursor: models.Cursor{Offset: &off},
	})
	if !errors.Is(err, ErrInvalidCursor) {
		t.Errorf("err = %v, want ErrInvalidCursor", err)
	}
}

func TestColumns(t *testing.T) {
	e := newEngine(true)
	tempSQL := "CREATE TABLE #t (id int NOT NULL, name varchar(20));\nSELECT id INTO #copy FROM #t;"

	tests := []struct {
		name string
		req  models.ColumnsRequest
		want string // qualified name, "" when unresolved
		cols []models.Column
	}{
		{
			name: "catalog table",
			req:  models.ColumnsRequest{Table: "dbo.Orders"},
			want: "Sales.dbo.Orders",
			cols: []models.Column{
				{Name: "id", DataType: "int", IsPrimaryKey: true, OrdinalPosition: 1},
				{Name: "customer_id", DataType: "int", Nullable: true, OrdinalPosition: 2},
				{Name: "total", DataType: "money", OrdinalPosition: 3},
			},
		},
		{
			name: "synonym",
			req:  models.ColumnsRequest{Table: "Staff"},
			want: "HR.dbo.Employees",
			cols: []models.Column{{Name: "emp_id", DataType: "int", OrdinalPosition: 1}},
		},
		{
			name: "alias in buffer",
			req:  models.ColumnsRequest{Table: "s", SQL: joinSQL},
			want: "HR.dbo.Employees",
			cols: []models.Column{{Name: "emp_id", DataType: "int", OrdinalPosition: 1}},
		},
		{
			name: "temp table in buffer",
			req:  models.ColumnsRequest{Table: "#t", SQL: tempSQL},
			want: "#t",
			cols: []models.Column{
				{Name: "id", DataType: "int", OrdinalPosition: 1},
				{Name: "name", DataType: "varchar(20)", Nullable: true, OrdinalPosition: 2},
			},
		},
		{
			name: "unknown",
			req:  models.ColumnsRequest{Table: "Nowhere"},
			cols: []models.Column{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := e.Columns(context.Background(), tt.req)
			if err != nil {
				t.Fatalf("Columns: %v", err)
			}
			var name string
			if got.Object != nil {
				name = got.Object.QualifiedName
			}
			if name != tt.want {
				t.Errorf("object = %q, want %q", name, tt.want)
			}
			if diff := cmp.Diff(tt.cols, got.Columns); diff != "" {
				t.Errorf("columns mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestScopeTree(t *testing.T) {
	e := newEngine(true)
	tree := ScopeTree(e.Tree(context.Background(), "SELECT a FROM T1 UNION SELECT b FROM T2", ""))
	if tree.Parser == "regex" || tree.Degraded {
		t.Fatalf("tree = %+v", tree)
	}
	if tree.Root.Kind != "global" || len(tree.Root.Children) != 2 {
		t.Fatalf("root = %+v", tree.Root)
	}
	for i, want := range []string{"t1", "t2"} {
		c := tree.Root.Children[i]
		if c.Kind != "main" || len(c.Aliases) != 1 || c.Aliases[want] == "" {
			t.Errorf("branch %d = %+v", i, c)
		}
	}
}
