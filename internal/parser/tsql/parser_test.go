package tsql

import (
	"context"
	"testing"

	"github.com/maraichr/sqlscope/internal/parser"
)

func parse(t *testing.T, input string) *parser.Program {
	t.Helper()
	prog := New().Parse(context.Background(), input)
	if prog == nil {
		t.Fatal("Parse returned nil")
	}
	return prog
}

func statementAt(t *testing.T, prog *parser.Program, i int) *parser.Statement {
	t.Helper()
	if len(prog.Nodes) <= i {
		t.Fatalf("expected at least %d nodes, got %d", i+1, len(prog.Nodes))
	}
	stmt, ok := prog.Nodes[i].(*parser.Statement)
	if !ok {
		t.Fatalf("node %d is %T, want *parser.Statement", i, prog.Nodes[i])
	}
	return stmt
}

func TestParseCreateTable(t *testing.T) {
	input := `
CREATE TABLE dbo.Users (
    UserID INT IDENTITY(1,1) PRIMARY KEY,
    Username NVARCHAR(50) NOT NULL,
    Email NVARCHAR(255) NOT NULL,
    CreatedAt DATETIME2 DEFAULT GETDATE()
);
GO
`
	stmt := statementAt(t, parse(t, input), 0)
	ct, ok := stmt.Body[0].(*parser.CreateTable)
	if !ok {
		t.Fatalf("expected CreateTable, got %T", stmt.Body[0])
	}
	if ct.Name != "dbo.Users" {
		t.Errorf("expected dbo.Users, got %s", ct.Name)
	}
	if ct.Temporary {
		t.Error("dbo.Users is not temporary")
	}
	if len(ct.Columns) != 4 {
		t.Fatalf("expected 4 columns, got %d: %+v", len(ct.Columns), ct.Columns)
	}
	if c := ct.Columns[0]; c.Name != "UserID" || c.Type != "INT" || !c.PrimaryKey || !c.NotNull {
		t.Errorf("unexpected UserID column: %+v", c)
	}
	if c := ct.Columns[1]; c.Type != "NVARCHAR(50)" || !c.NotNull {
		t.Errorf("unexpected Username column: %+v", c)
	}
	if c := ct.Columns[3]; c.Name != "CreatedAt" || c.Type != "DATETIME2" || c.NotNull {
		t.Errorf("unexpected CreatedAt column: %+v", c)
	}
}

func TestParseCreateTempTableConstraint(t *testing.T) {
	input := `CREATE TABLE #Work (Id int, Code varchar(10), CONSTRAINT PK_Work PRIMARY KEY (Id))`
	stmt := statementAt(t, parse(t, input), 0)
	ct := stmt.Body[0].(*parser.CreateTable)
	if !ct.Temporary || ct.Name != "#Work" {
		t.Errorf("unexpected table: %+v", ct)
	}
	if len(ct.Columns) != 2 {
		t.Fatalf("expected 2 columns, got %d", len(ct.Columns))
	}
	if !ct.Columns[0].PrimaryKey || !ct.Columns[0].NotNull {
		t.Errorf("Id should be a not-null primary key: %+v", ct.Columns[0])
	}
	if ct.Columns[1].PrimaryKey {
		t.Errorf("Code should not be a primary key")
	}
}

func TestParseProcedureBody(t *testing.T) {
	input := `
CREATE PROCEDURE dbo.GetUserOrders
    @UserID INT
AS
BEGIN
    SET NOCOUNT ON;

    SELECT o.OrderID, o.Total
    FROM dbo.Orders o
    WHERE o.UserID = @UserID;

    INSERT INTO dbo.AuditLog (Action, UserID)
    VALUES ('GetOrders', @UserID);
END
GO
`
	prog := parse(t, input)
	if len(prog.Nodes) != 1 {
		t.Fatalf("expected 1 statement, got %d", len(prog.Nodes))
	}
	stmt := statementAt(t, prog, 0)
	if len(stmt.Body) != 3 {
		t.Fatalf("expected select, from, where; got %d nodes", len(stmt.Body))
	}
	from := stmt.Body[1].(*parser.From)
	rel := from.Items[0].(*parser.Relation)
	if rel.Table != "dbo.Orders" || rel.Alias != "o" {
		t.Errorf("unexpected relation %+v", rel)
	}
	if stmt.Loc.Start.Line != 8 {
		t.Errorf("statement should start on line 8, got %d", stmt.Loc.Start.Line)
	}
}

func TestParseCTEAndSetOperation(t *testing.T) {
	input := `WITH recent AS (SELECT * FROM dbo.Orders WHERE d > 1),
totals (id, n) AS (SELECT id, COUNT(*) FROM recent GROUP BY id)
SELECT a FROM T1 UNION ALL SELECT b FROM T2 ORDER BY 1`

	stmt := statementAt(t, parse(t, input), 0)
	if len(stmt.CTEs) != 2 {
		t.Fatalf("expected 2 CTEs, got %d", len(stmt.CTEs))
	}
	if stmt.CTEs[0].Name != "recent" || stmt.CTEs[0].Text != "SELECT * FROM dbo.Orders WHERE d > 1" {
		t.Errorf("unexpected first CTE: %q %q", stmt.CTEs[0].Name, stmt.CTEs[0].Text)
	}
	if got := stmt.CTEs[1].Columns; len(got) != 2 || got[0] != "id" || got[1] != "n" {
		t.Errorf("unexpected CTE columns %v", got)
	}

	setOp, ok := stmt.Body[0].(*parser.SetOperation)
	if !ok {
		t.Fatalf("expected SetOperation, got %T", stmt.Body[0])
	}
	if len(setOp.Operators) != 1 || setOp.Operators[0] != "UNION ALL" {
		t.Errorf("unexpected operators %v", setOp.Operators)
	}
	if len(setOp.Parts) != 4 {
		t.Fatalf("expected 4 parts, got %d", len(setOp.Parts))
	}
	second := setOp.Parts[3].(*parser.From).Items[0].(*parser.Relation)
	if second.Table != "T2" {
		t.Errorf("expected T2, got %s", second.Table)
	}
	if len(stmt.Body) != 2 {
		t.Fatalf("expected trailing ORDER BY, got %d body nodes", len(stmt.Body))
	}
	if c := stmt.Body[1].(*parser.Clause); c.Keyword != "ORDER" {
		t.Errorf("expected ORDER clause, got %s", c.Keyword)
	}
}

func TestParseSelectInto(t *testing.T) {
	input := "SELECT o.Id, COUNT(*) AS cnt INTO #Totals FROM dbo.Orders o GROUP BY o.Id"
	stmt := statementAt(t, parse(t, input), 0)
	sel := stmt.Body[0].(*parser.Select)
	if sel.Into != "#Totals" {
		t.Errorf("expected INTO #Totals, got %q", sel.Into)
	}
	if len(sel.Items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(sel.Items))
	}
	if sel.Items[0].Expr != "o.Id" || sel.Items[0].Alias != "" {
		t.Errorf("unexpected first item %+v", sel.Items[0])
	}
	if sel.Items[1].Expr != "COUNT(*)" || sel.Items[1].Alias != "cnt" {
		t.Errorf("unexpected second item %+v", sel.Items[1])
	}
}

func TestParseDerivedTableAndJoin(t *testing.T) {
	input := "SELECT x.a FROM (SELECT a, id FROM T) x JOIN U u ON u.id = x.id"
	stmt := statementAt(t, parse(t, input), 0)
	from := stmt.Body[1].(*parser.From)
	if len(from.Items) != 2 {
		t.Fatalf("expected 2 relations, got %d", len(from.Items))
	}
	derived := from.Items[0].(*parser.Relation)
	if derived.Subquery == nil || derived.Alias != "x" {
		t.Errorf("expected derived table x, got %+v", derived)
	}
	joined := from.Items[1].(*parser.Relation)
	if joined.Table != "U" || joined.Alias != "u" || !joined.Join {
		t.Errorf("unexpected join relation %+v", joined)
	}
}

func TestParseNestedSubqueryInWhere(t *testing.T) {
	input := "SELECT * FROM A a WHERE a.id IN (SELECT b.id FROM B b)"
	stmt := statementAt(t, parse(t, input), 0)
	where := stmt.Body[2].(*parser.Clause)
	if len(where.Nested) != 1 {
		t.Fatalf("expected 1 nested subquery, got %d", len(where.Nested))
	}
	inner := where.Nested[0].Body[1].(*parser.From).Items[0].(*parser.Relation)
	if inner.Table != "B" || inner.Alias != "b" {
		t.Errorf("unexpected inner relation %+v", inner)
	}
}

func TestParseBatchesKeepLines(t *testing.T) {
	prog := parse(t, "SELECT 1\nGO\nSELECT a FROM t")
	if len(prog.Nodes) != 2 {
		t.Fatalf("expected 2 statements, got %d", len(prog.Nodes))
	}
	if line := statementAt(t, prog, 1).Loc.Start.Line; line != 3 {
		t.Errorf("second statement should start on line 3, got %d", line)
	}
}

func TestParseIncompleteQuery(t *testing.T) {
	stmt := statementAt(t, parse(t, "SELECT * FROM dbo.Orders o WHERE o."), 0)
	rel := stmt.Body[1].(*parser.From).Items[0].(*parser.Relation)
	if rel.Alias != "o" {
		t.Errorf("expected alias o, got %q", rel.Alias)
	}
}

func TestParseUpdateFrom(t *testing.T) {
	input := "UPDATE a SET a.x = 1 FROM dbo.Accounts a JOIN dbo.Owners w ON w.id = a.owner WHERE w.active = 1"
	stmt := statementAt(t, parse(t, input), 0)
	var from *parser.From
	for _, n := range stmt.Body {
		if f, ok := n.(*parser.From); ok {
			from = f
		}
	}
	if from == nil || len(from.Items) != 2 {
		t.Fatalf("expected FROM with 2 relations, got %+v", stmt.Body)
	}
}

func TestParseCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if New().Parse(ctx, "SELECT 1") != nil {
		t.Error("expected nil for cancelled context")
	}
}

func TestParseJoinGroup(t *testing.T) {
	stmt := statementAt(t, parse(t, "SELECT * FROM (a JOIN b ON a.id = b.id) WHERE a.x = 1"), 0)
	if parser.HasErrors(stmt) {
		t.Fatal("a closed join group is not an error")
	}
	from := stmt.Body[1].(*parser.From)
	var tables []string
	for _, item := range from.Items {
		tables = append(tables, item.(*parser.Relation).Table)
	}
	if len(tables) != 2 || tables[0] != "a" || tables[1] != "b" {
		t.Errorf("tables = %v", tables)
	}
}

func TestParseHintsStayClean(t *testing.T) {
	for _, input := range []string{
		"SELECT * FROM t (NOLOCK)",
		"SELECT * FROM t WITH (NOLOCK) JOIN u x ON x.id = t.id",
	} {
		if parser.HasErrors(parse(t, input)) {
			t.Errorf("%q should parse without errors", input)
		}
	}
}

func TestParseSkippedRegionsAreErrors(t *testing.T) {
	tests := []struct {
		input string
		text  string
	}{
		{"SELECT ) ) FROM ((( dbo.Foo f JOIN", "((( dbo.Foo f JOIN"},
		{"SELECT * FROM a, 42 b", "42"},
		{"Foo.bar SELECT 1", "Foo.bar"},
	}
	for _, tt := range tests {
		prog := parse(t, tt.input)
		var texts []string
		parser.Walk(prog, func(n parser.Node) bool {
			if e, ok := n.(*parser.Error); ok {
				texts = append(texts, e.Text)
			}
			return true
		})
		found := false
		for _, text := range texts {
			if text == tt.text {
				found = true
			}
		}
		if !found {
			t.Errorf("%q: errors %q, want one covering %q", tt.input, texts, tt.text)
		}
	}
}
