package tools

import (
	"log/slog"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/maraichr/sqlscope/internal/analysis"
	"github.com/maraichr/sqlscope/internal/mcp/session"
)

// Register adds every SQL tool to server.
func Register(server *sdkmcp.Server, e *analysis.Engine, sessions session.Store, logger *slog.Logger) {
	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "analyze_sql",
		Description: "Analyze a SQL buffer at a cursor position. Reports the enclosing scope, the tables, aliases, CTEs, derived tables and temp tables visible there, and what each resolves to in the catalog (following synonyms and cross-database references). Pass session_id to keep the buffer between calls.",
	}, WrapHandler[AnalyzeSQLParams](NewAnalyzeSQLHandler(e, sessions, logger)))

	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "list_columns",
		Description: "List the columns of a table, view, synonym, alias, CTE, derived table or temp table. With sql (or a session buffer) the name is read at the cursor, so aliases resolve.",
	}, WrapHandler[ListColumnsParams](NewListColumnsHandler(e, sessions, logger)))

	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "get_scope_tree",
		Description: "Outline every scope of a SQL buffer (statements, subqueries, CTE bodies, set operation branches) with the aliases and CTEs each one declares.",
	}, WrapHandler[GetScopeTreeParams](NewGetScopeTreeHandler(e, sessions, logger)))
}
