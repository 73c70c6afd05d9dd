package tools

import (
	"context"
	"log/slog"
	"strings"
	"testing"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/maraichr/sqlscope/internal/analysis"
	"github.com/maraichr/sqlscope/internal/catalog"
	"github.com/maraichr/sqlscope/internal/catalog/memory"
	"github.com/maraichr/sqlscope/internal/mcp/session"
	"github.com/maraichr/sqlscope/internal/parser"
	"github.com/maraichr/sqlscope/internal/parser/tsql"
	"github.com/maraichr/sqlscope/internal/resolver"
	"github.com/maraichr/sqlscope/internal/scope"
)

const ordersSQL = "SELECT o.id FROM dbo.Orders o WHERE "

func testEngine() *analysis.Engine {
	srv := memory.NewServer("prod", "sqlserver")
	sales := srv.AddDatabase(memory.NewDatabase("Sales", nil))
	sales.AddTable("dbo", "Orders",
		catalog.Column{Name: "id", DataType: "int", IsPrimaryKey: true, OrdinalPosition: 1},
		catalog.Column{Name: "total", DataType: "money", OrdinalPosition: 2})
	conn := &catalog.Connection{Server: srv, Database: sales}
	b := scope.NewBuilder(parser.NewRegistry(tsql.New()), nil)
	return analysis.NewEngine(b, resolver.NewEngine(resolver.Options{}, nil), conn, nil)
}

func discard() *slog.Logger { return slog.New(slog.DiscardHandler) }

func contains(t *testing.T, got string, want ...string) {
	t.Helper()
	for _, w := range want {
		if !strings.Contains(got, w) {
			t.Errorf("output missing %q:\n%s", w, got)
		}
	}
}

func TestAnalyzeSQL(t *testing.T) {
	h := NewAnalyzeSQLHandler(testEngine(), nil, discard())
	out, err := h.Handle(context.Background(), AnalyzeSQLParams{SQL: ordersSQL, Verbosity: "full"})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	contains(t, out,
		"- dbo.Orders AS o (table) -> `Sales.dbo.Orders`",
		"**Orders** (table)",
		"- `id` int NOT NULL PK")
}

func TestAnalyzeSQL_Errors(t *testing.T) {
	h := NewAnalyzeSQLHandler(testEngine(), nil, discard())
	off := 500
	tests := []struct {
		name   string
		params AnalyzeSQLParams
		want   string
	}{
		{"no sql", AnalyzeSQLParams{}, "sql is required"},
		{"bad cursor", AnalyzeSQLParams{SQL: "SELECT 1", Offset: &off}, "INVALID_CURSOR"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.Handle(context.Background(), tt.params)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("err = %v, want %q", err, tt.want)
			}
		})
	}
}

func TestSessionBuffer(t *testing.T) {
	ctx := context.Background()
	e := testEngine()
	store := session.NewMemory()
	analyze := NewAnalyzeSQLHandler(e, store, discard())
	columns := NewListColumnsHandler(e, store, discard())
	scopes := NewGetScopeTreeHandler(e, store, discard())

	if _, err := analyze.Handle(ctx, AnalyzeSQLParams{SQL: ordersSQL, SessionID: "s1"}); err != nil {
		t.Fatalf("analyze: %v", err)
	}

	// the second call has no sql; the alias resolves against the stored buffer
	out, err := columns.Handle(ctx, ListColumnsParams{Table: "o", SessionID: "s1"})
	if err != nil {
		t.Fatalf("list columns: %v", err)
	}
	contains(t, out, "**Sales.dbo.Orders** (table) | 2 columns", "- `total` money NOT NULL")

	out, err = scopes.Handle(ctx, GetScopeTreeParams{SessionID: "s1"})
	if err != nil {
		t.Fatalf("scope tree: %v", err)
	}
	contains(t, out, "aliases: o=dbo.Orders")

	sess, err := store.Load(ctx, "s1")
	if err != nil {
		t.Fatalf("load session: %v", err)
	}
	if sess.SQL != ordersSQL {
		t.Errorf("buffer = %q", sess.SQL)
	}
	if !sess.IsSeen("Sales.dbo.Orders") {
		t.Error("analyzed table should be marked seen")
	}
	if len(sess.History) != 3 {
		t.Errorf("history = %v", sess.History)
	}

	// a table already described is stubbed on the next analysis
	out, err = analyze.Handle(ctx, AnalyzeSQLParams{SessionID: "s1"})
	if err != nil {
		t.Fatalf("re-analyze: %v", err)
	}
	contains(t, out, "~Sales.dbo.Orders~ (table) already described")
}

func TestListColumns(t *testing.T) {
	h := NewListColumnsHandler(testEngine(), nil, discard())
	tests := []struct {
		name   string
		params ListColumnsParams
		want   string
	}{
		{"catalog table", ListColumnsParams{Table: "dbo.Orders"}, "| 2 columns"},
		{"unknown", ListColumnsParams{Table: "Nowhere"}, "Table `Nowhere` could not be resolved."},
		{"cte", ListColumnsParams{Table: "x", SQL: "WITH x (a, b) AS (SELECT 1, 2) SELECT * FROM x"}, "**x** (cte) | 2 columns"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := h.Handle(context.Background(), tt.params)
			if err != nil {
				t.Fatalf("Handle: %v", err)
			}
			contains(t, out, tt.want)
		})
	}

	if _, err := h.Handle(context.Background(), ListColumnsParams{}); err == nil {
		t.Error("empty table should be rejected")
	}
}

type echoHandler struct{}

type echoParams struct {
	Text string `json:"text"`
}

func (echoHandler) Handle(_ context.Context, p echoParams) (string, error) {
	if p.Text == "" {
		return "", context.Canceled
	}
	return p.Text, nil
}

func TestWrapHandler(t *testing.T) {
	fn := WrapHandler[echoParams](echoHandler{})

	res, _, err := fn(context.Background(), nil, &echoParams{Text: "hi"})
	if err != nil || res.IsError {
		t.Fatalf("result = %+v, err = %v", res, err)
	}
	if got := res.Content[0].(*sdkmcp.TextContent).Text; got != "hi" {
		t.Errorf("text = %q", got)
	}

	res, _, err = fn(context.Background(), nil, nil)
	if err != nil || !res.IsError {
		t.Errorf("nil params should produce a tool error, got %+v, %v", res, err)
	}
}
