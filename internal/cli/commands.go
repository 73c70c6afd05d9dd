package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/maraichr/sqlscope/internal/analysis"
	"github.com/maraichr/sqlscope/internal/mcp"
	"github.com/maraichr/sqlscope/pkg/models"
)

// cursorOptions locate the cursor in the buffer.
type cursorOptions struct {
	Line   int
	Column int
	Offset int
}

func (o *cursorOptions) register(cmd *cobra.Command) {
	cmd.Flags().IntVar(&o.Line, "line", 0, "Cursor line (1-based)")
	cmd.Flags().IntVar(&o.Column, "column", 0, "Cursor column (1-based)")
	cmd.Flags().IntVar(&o.Offset, "offset", -1, "Cursor byte offset; wins over --line/--column (default: end of buffer)")
}

func (o *cursorOptions) cursor() models.Cursor {
	c := models.Cursor{Line: o.Line, Column: o.Column}
	if o.Offset >= 0 {
		off := o.Offset
		c.Offset = &off
	}
	return c
}

func newAnalyzeCommand(root *rootOptions) *cobra.Command {
	var (
		cur       cursorOptions
		verbosity string
	)
	cmd := &cobra.Command{
		Use:   "analyze [file]",
		Short: "Show the scope and visible tables at a cursor",
		Example: `  # Tables visible at the end of a query read from stdin
  echo "SELECT * FROM dbo.Orders o JOIN dbo.Customers c ON " | sqlscope analyze --catalog catalog.yaml

  # At line 12, column 8 of a script, as JSON
  sqlscope analyze report.sql --line 12 --column 8 -o json`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sql, err := readSQL(cmd, firstArg(args))
			if err != nil {
				return err
			}
			a, err := getEngine(cmd).Analyze(cmd.Context(), models.AnalyzeRequest{
				SQL:    sql,
				Vendor: root.Vendor,
				Cursor: cur.cursor(),
			})
			if err != nil {
				return err
			}
			if root.Output == "json" {
				return writeJSON(cmd.OutOrStdout(), a)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), mcp.FormatAnalysis(a, mcp.ParseVerbosity(verbosity), nil, 1<<20))
			return err
		},
	}
	cur.register(cmd)
	cmd.Flags().StringVar(&verbosity, "verbosity", "standard", "Table detail (summary|standard|full)")
	return cmd
}

func newScopesCommand(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "scopes [file]",
		Short: "Print the scope tree of a SQL buffer",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sql, err := readSQL(cmd, firstArg(args))
			if err != nil {
				return err
			}
			tree := analysis.ScopeTree(getEngine(cmd).Tree(cmd.Context(), sql, root.Vendor))
			if root.Output == "json" {
				return writeJSON(cmd.OutOrStdout(), tree)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), mcp.FormatScopeTree(tree, 1<<20))
			return err
		},
	}
}

func newColumnsCommand(root *rootOptions) *cobra.Command {
	var (
		cur  cursorOptions
		file string
	)
	cmd := &cobra.Command{
		Use:   "columns <table>",
		Short: "List the columns of a table, alias, CTE or temp table",
		Long: `List the columns of a catalog table, view or synonym. With --file the
name is read in that buffer at the cursor, so aliases, CTEs, derived tables
and temp tables declared there resolve too.`,
		Example: `  sqlscope columns dbo.Orders --catalog catalog.yaml
  sqlscope columns o --file report.sql --line 40`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := models.ColumnsRequest{Table: args[0], Vendor: root.Vendor, Cursor: cur.cursor()}
			if file != "" {
				sql, err := readSQL(cmd, file)
				if err != nil {
					return err
				}
				req.SQL = sql
			}
			resp, err := getEngine(cmd).Columns(cmd.Context(), req)
			if err != nil {
				return err
			}
			if root.Output == "json" {
				return writeJSON(cmd.OutOrStdout(), resp)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), mcp.FormatColumns(resp, 1<<20))
			return err
		},
	}
	cur.register(cmd)
	cmd.Flags().StringVarP(&file, "file", "f", "", "SQL buffer giving the name its context (- for stdin)")
	return cmd
}

func firstArg(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
