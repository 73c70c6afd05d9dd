// Package cli provides the sqlscope command-line interface.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/maraichr/sqlscope/internal/analysis"
	"github.com/maraichr/sqlscope/internal/app"
	"github.com/maraichr/sqlscope/internal/config"
)

// Version is set at build time.
var Version = "dev"

type engineKey struct{}

// rootOptions are the persistent flags shared by every command.
type rootOptions struct {
	Catalog  string
	Database string
	Vendor   string
	Parser   string
	Output   string
	Verbose  bool
}

// NewRootCmd creates the root command.
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}
	var closeCatalog func()

	rootCmd := &cobra.Command{
		Use:   "sqlscope",
		Short: "sqlscope - SQL scope and metadata resolver",
		Long: `sqlscope reads a SQL buffer, works out which tables, aliases, CTEs and
temp tables are visible at a cursor position, and resolves them against a
database catalog (following synonyms and cross-database references).

The catalog comes from the CATALOG_* environment (see .env) or from a
snapshot file passed with --catalog. Without a catalog, scopes and aliases
are still reported.`,
		Version: Version,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Name() == "help" || cmd.Name() == "completion" || cmd.Name() == "__complete" {
				return nil
			}
			logger := newLogger(cmd.ErrOrStderr(), opts.Verbose)

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			explicit := applyFlags(cfg, cmd.Root().PersistentFlags())
			if !config.ValidParser(cfg.Resolver.Parser) {
				return fmt.Errorf("--parser %q: want %s", cfg.Resolver.Parser, strings.Join(config.ParserNames, "|"))
			}

			conn, closeFn, err := app.Connect(cmd.Context(), cfg, logger)
			if err != nil {
				if explicit || cfg.Catalog.Source != config.CatalogFile || !errors.Is(err, os.ErrNotExist) {
					return fmt.Errorf("catalog: %w", err)
				}
				logger.Warn("no catalog snapshot, tables stay unresolved", slog.String("path", cfg.Catalog.Path))
			}
			closeCatalog = closeFn

			engine := app.NewEngine(cfg, conn, nil, logger)
			cmd.SetContext(context.WithValue(cmd.Context(), engineKey{}, engine))
			return nil
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if closeCatalog != nil {
				closeCatalog()
			}
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&opts.Catalog, "catalog", "", "Catalog snapshot file (YAML or JSON); overrides CATALOG_SOURCE")
	flags.StringVar(&opts.Database, "database", "", "Database to connect to (default: first in the catalog)")
	flags.StringVar(&opts.Vendor, "vendor", "", "SQL vendor (sqlserver|postgres|mysql|sqlite); guessed when empty")
	flags.StringVar(&opts.Parser, "parser", config.ParserAuto, "Parser to build scopes with (auto|tsql|treesitter|regex)")
	flags.StringVarP(&opts.Output, "output", "o", "text", "Output format (text|json)")
	flags.BoolVarP(&opts.Verbose, "verbose", "v", false, "Verbose output")

	_ = rootCmd.RegisterFlagCompletionFunc("output", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return []string{"text", "json"}, cobra.ShellCompDirectiveNoFileComp
	})
	_ = rootCmd.RegisterFlagCompletionFunc("vendor", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return []string{"sqlserver", "postgres", "mysql", "sqlite"}, cobra.ShellCompDirectiveNoFileComp
	})

	_ = rootCmd.RegisterFlagCompletionFunc("parser", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return config.ParserNames, cobra.ShellCompDirectiveNoFileComp
	})

	rootCmd.AddCommand(newAnalyzeCommand(opts))
	rootCmd.AddCommand(newScopesCommand(opts))
	rootCmd.AddCommand(newColumnsCommand(opts))

	return rootCmd
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}

// applyFlags overrides the catalog and parser config with the flags that
// were set and reports whether a catalog was named explicitly.
func applyFlags(cfg *config.Config, flags *pflag.FlagSet) bool {
	explicit := false
	if flags.Changed("catalog") {
		path, _ := flags.GetString("catalog")
		cfg.Catalog.Source = config.CatalogFile
		cfg.Catalog.Path = path
		explicit = true
	}
	if flags.Changed("database") {
		cfg.Catalog.Database, _ = flags.GetString("database")
	}
	if flags.Changed("vendor") {
		cfg.Catalog.Vendor, _ = flags.GetString("vendor")
	}
	if flags.Changed("parser") {
		name, _ := flags.GetString("parser")
		cfg.Resolver.Parser = strings.ToLower(name)
	}
	return explicit
}

func newLogger(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

func getEngine(cmd *cobra.Command) *analysis.Engine {
	if e, ok := cmd.Context().Value(engineKey{}).(*analysis.Engine); ok {
		return e
	}
	return nil
}

// readSQL reads the buffer from path, or from stdin when path is "" or "-".
func readSQL(cmd *cobra.Command, path string) (string, error) {
	var (
		data []byte
		err  error
	)
	if path == "" || path == "-" {
		data, err = io.ReadAll(io.LimitReader(cmd.InOrStdin(), analysis.MaxSQLBytes+1))
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return "", fmt.Errorf("read sql: %w", err)
	}
	if len(data) > analysis.MaxSQLBytes {
		return "", fmt.Errorf("sql exceeds %d bytes", analysis.MaxSQLBytes)
	}
	return string(data), nil
}
