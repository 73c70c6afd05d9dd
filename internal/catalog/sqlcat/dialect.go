package sqlcat

import (
	"fmt"
	"strings"

	"github.com/maraichr/sqlscope/internal/catalog"
)

// dialect holds the metadata queries of one vendor. Object queries return
// rows of (schema, name, kind, target); kind is one of table, view, synonym
// or function.
type dialect struct {
	vendor  string
	objects func(database string) string
	columns func(database, schema, object string) string
}

var dialects = map[string]dialect{
	catalog.VendorSQLServer: {
		vendor: catalog.VendorSQLServer,
		objects: func(database string) string {
			prefix := ""
			if database != "" {
				prefix = bracket(database) + "."
			}
			return fmt.Sprintf(`SELECT s.name AS schema_name, o.name AS object_name,
	CASE o.type WHEN 'U' THEN 'table' WHEN 'V' THEN 'view' WHEN 'SN' THEN 'synonym' ELSE 'function' END AS kind,
	COALESCE(sy.base_object_name, '') AS target
FROM %[1]ssys.objects o
JOIN %[1]ssys.schemas s ON s.schema_id = o.schema_id
LEFT JOIN %[1]ssys.synonyms sy ON sy.object_id = o.object_id
WHERE o.type IN ('U', 'V', 'SN', 'FN', 'IF', 'TF') AND o.is_ms_shipped = 0
ORDER BY s.name, o.name`, prefix)
		},
		columns: func(database, schema, object string) string {
			prefix := ""
			if database != "" {
				prefix = bracket(database) + "."
			}
			return fmt.Sprintf(`SELECT c.COLUMN_NAME AS column_name, c.DATA_TYPE AS data_type, c.IS_NULLABLE AS is_nullable,
	c.ORDINAL_POSITION AS ordinal_position,
	CASE WHEN k.COLUMN_NAME IS NULL THEN 0 ELSE 1 END AS is_primary_key
FROM %[1]sINFORMATION_SCHEMA.COLUMNS c
LEFT JOIN %[1]sINFORMATION_SCHEMA.KEY_COLUMN_USAGE k
	ON k.TABLE_SCHEMA = c.TABLE_SCHEMA AND k.TABLE_NAME = c.TABLE_NAME AND k.COLUMN_NAME = c.COLUMN_NAME
	AND OBJECTPROPERTY(OBJECT_ID(k.CONSTRAINT_SCHEMA + '.' + k.CONSTRAINT_NAME), 'IsPrimaryKey') = 1
WHERE c.TABLE_SCHEMA = %[2]s AND c.TABLE_NAME = %[3]s
ORDER BY c.ORDINAL_POSITION`, prefix, literal(schemaOr(schema, "dbo")), literal(object))
		},
	},
	catalog.VendorPostgres: {
		vendor: catalog.VendorPostgres,
		objects: func(string) string {
			return `SELECT table_schema AS schema_name, table_name AS object_name,
	CASE table_type WHEN 'VIEW' THEN 'view' ELSE 'table' END AS kind, '' AS target
FROM information_schema.tables
WHERE table_schema NOT IN ('pg_catalog', 'information_schema')
UNION ALL
SELECT DISTINCT routine_schema, routine_name, 'function', ''
FROM information_schema.routines
WHERE routine_schema NOT IN ('pg_catalog', 'information_schema')
ORDER BY 1, 2`
		},
		columns: func(_, schema, object string) string {
			return fmt.Sprintf(`SELECT column_name, data_type, is_nullable, ordinal_position
FROM information_schema.columns
WHERE table_schema = %s AND table_name = %s
ORDER BY ordinal_position`, literal(schemaOr(schema, "public")), literal(object))
		},
	},
	catalog.VendorMySQL: {
		vendor: catalog.VendorMySQL,
		objects: func(database string) string {
			return fmt.Sprintf(`SELECT table_schema AS schema_name, table_name AS object_name,
	CASE table_type WHEN 'VIEW' THEN 'view' ELSE 'table' END AS kind, '' AS target
FROM information_schema.tables
WHERE table_schema = %s
ORDER BY table_name`, schemaExpr(database))
		},
		columns: func(database, schema, object string) string {
			return fmt.Sprintf(`SELECT column_name, column_type AS data_type, is_nullable, ordinal_position, column_key
FROM information_schema.columns
WHERE table_schema = %s AND table_name = %s
ORDER BY ordinal_position`, schemaExpr(schemaOr(schema, database)), literal(object))
		},
	},
	catalog.VendorSQLite: {
		vendor: catalog.VendorSQLite,
		objects: func(string) string {
			return `SELECT 'main' AS schema_name, name AS object_name, type AS kind, '' AS target
FROM sqlite_master
WHERE type IN ('table', 'view') AND name NOT LIKE 'sqlite_%'
ORDER BY name`
		},
		columns: func(_, _, object string) string {
			return fmt.Sprintf(`SELECT cid + 1 AS ordinal_position, name, type, "notnull", pk FROM pragma_table_info(%s)`, literal(object))
		},
	},
}

func dialectFor(vendor string) (dialect, error) {
	d, ok := dialects[catalog.NormalizeVendor(vendor)]
	if !ok {
		return dialect{}, fmt.Errorf("no catalog queries for vendor %q", vendor)
	}
	return d, nil
}

// literal renders s as a single-quoted SQL string literal.
func literal(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// bracket renders s as a T-SQL bracketed identifier.
func bracket(s string) string {
	return "[" + strings.ReplaceAll(s, "]", "]]") + "]"
}

func schemaOr(schema, fallback string) string {
	if schema != "" {
		return schema
	}
	return fallback
}

func schemaExpr(name string) string {
	if name == "" {
		return "DATABASE()"
	}
	return literal(name)
}
