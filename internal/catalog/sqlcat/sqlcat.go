// Package sqlcat serves catalog metadata from a live database through
// database/sql. Objects are loaded lazily per database and columns are
// queried on demand.
package sqlcat

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" driver
	_ "modernc.org/sqlite"             // registers the "sqlite" driver

	"github.com/maraichr/sqlscope/internal/catalog"
	"github.com/maraichr/sqlscope/internal/catalog/memory"
	"github.com/maraichr/sqlscope/internal/ident"
)

// Open opens a database/sql handle and checks it answers.
func Open(ctx context.Context, driver, dsn string) (*sql.DB, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}
	return db, nil
}

// DriverVendor maps a database/sql driver name onto a vendor.
func DriverVendor(driver string) string {
	switch driver {
	case "pgx", "postgres":
		return catalog.VendorPostgres
	case "sqlite", "sqlite3":
		return catalog.VendorSQLite
	case "sqlserver", "mssql":
		return catalog.VendorSQLServer
	case "mysql":
		return catalog.VendorMySQL
	}
	return ""
}

// Catalog runs vendor metadata queries over one database/sql handle. It
// implements catalog.Adapter.
type Catalog struct {
	db      *sql.DB
	dialect dialect
	logger  *slog.Logger
}

func New(db *sql.DB, vendor string, logger *slog.Logger) (*Catalog, error) {
	d, err := dialectFor(vendor)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Catalog{db: db, dialect: d, logger: logger}, nil
}

// Vendor is the canonical vendor the catalog queries for.
func (c *Catalog) Vendor() string { return c.dialect.vendor }

// Server returns an in-memory server whose databases load their objects
// from the live connection on first use. The catalog is set as its adapter.
func (c *Catalog) Server(name string, databases ...string) *memory.Server {
	srv := memory.NewServer(name, c.dialect.vendor)
	srv.SetAdapter(c)
	for _, dbName := range databases {
		srv.AddDatabase(memory.NewDatabase(dbName, c.loadObjects))
	}
	return srv
}

func (c *Catalog) loadObjects(ctx context.Context, db *memory.Database) error {
	rows, err := c.Execute(ctx, nil, c.dialect.objects(db.Name()))
	if err != nil {
		return fmt.Errorf("list objects of %s: %w", db.Name(), err)
	}
	for _, row := range rows {
		schema, name := asString(row["schema_name"]), asString(row["object_name"])
		if name == "" {
			continue
		}
		switch catalog.Kind(asString(row["kind"])) {
		case catalog.KindTable:
			db.Add(c.object(db.Name(), schema, name, catalog.KindTable))
		case catalog.KindView:
			db.Add(c.object(db.Name(), schema, name, catalog.KindView))
		case catalog.KindSynonym:
			db.AddSynonym(schema, name, asString(row["target"]))
		case catalog.KindFunction:
			db.AddFunction(schema, name)
		}
	}
	c.logger.Debug("catalog objects loaded",
		slog.String("database", db.Name()),
		slog.Int("objects", len(rows)))
	return nil
}

func (c *Catalog) object(database, schema, name string, kind catalog.Kind) *catalog.Object {
	o := &catalog.Object{Name: name, Schema: schema, Database: database, Kind: kind}
	o.Columns = func(ctx context.Context) ([]catalog.Column, error) {
		rows, err := c.Execute(ctx, nil, c.ColumnsQuery(database, schema, name))
		if err != nil {
			return nil, fmt.Errorf("columns of %s: %w", o.QualifiedName(), err)
		}
		return c.ParseColumns(rows), nil
	}
	return o
}

// ColumnsQuery returns the vendor query listing object's columns.
func (c *Catalog) ColumnsQuery(database, schema, object string) string {
	return c.dialect.columns(database, schema, object)
}

// ParseColumns maps column query rows onto catalog columns.
func (c *Catalog) ParseColumns(rows []catalog.Row) []catalog.Column {
	return catalog.NormalizeColumns(rows)
}

// Execute runs query and returns its rows keyed by column name. The
// connection configuration is ignored: the handle is already bound.
func (c *Catalog) Execute(ctx context.Context, _ catalog.Config, query string) ([]catalog.Row, error) {
	rows, err := c.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	names, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("columns: %w", err)
	}

	var out []catalog.Row
	for rows.Next() {
		values := make([]any, len(names))
		ptrs := make([]any, len(names))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		row := make(catalog.Row, len(names))
		for i, n := range names {
			if b, ok := values[i].([]byte); ok {
				row[n] = string(b)
				continue
			}
			row[n] = values[i]
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return out, nil
}

// RPC serves the metadata RPC contract from this catalog. The request's
// connection config may carry a "database" entry naming the database to
// query.
func (c *Catalog) RPC() catalog.MetadataRPC {
	return catalog.RPCFunc(func(ctx context.Context, req catalog.RPCRequest) ([]catalog.Row, error) {
		if req.Method != "columns" {
			return nil, fmt.Errorf("unsupported metadata method %q", req.Method)
		}
		qn := ident.ParseQualifiedName(req.Object)
		schema := req.Schema
		if schema == "" {
			schema = qn.Schema
		}
		database := qn.Database
		if database == "" {
			database = configValue(req.Config, "database")
		}
		return c.Execute(ctx, nil, c.ColumnsQuery(database, schema, qn.Name))
	})
}

func asString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []byte:
		return string(t)
	}
	return fmt.Sprint(v)
}

// configValue reads key from a serialized connection config.
func configValue(serialized, key string) string {
	var cfg map[string]string
	if err := json.Unmarshal([]byte(serialized), &cfg); err != nil {
		return ""
	}
	return cfg[key]
}
