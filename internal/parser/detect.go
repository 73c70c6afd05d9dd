package parser

import (
	"strings"
)

// Vendor names as reported by catalog servers.
const (
	VendorSQLServer = "sqlserver"
	VendorPostgres  = "postgres"
	VendorMySQL     = "mysql"
	VendorSQLite    = "sqlite"
)

// DetectVendor guesses whether SQL text was written for SQL Server or
// PostgreSQL. Text with no markers for either returns "".
func DetectVendor(content string) string {
	text := strings.ToUpper(content)

	tsqlScore := 0
	pgsqlScore := 0

	if strings.Contains(text, "\nGO\n") || strings.Contains(text, "\nGO\r\n") || strings.HasSuffix(text, "\nGO") {
		tsqlScore += 10 // GO batch separator is definitive
	}
	for _, kw := range []string{"DECLARE @", "SET @", "NVARCHAR", "VARCHAR(MAX)", "IDENTITY(",
		"EXEC ", "EXECUTE ", "SP_", "NOCOUNT", "BEGIN TRY", "BEGIN CATCH",
		"@@ROWCOUNT", "@@ERROR", "@@IDENTITY", "GETDATE()", "ISNULL(",
		"CHARINDEX(", "TOP ", "WITH (NOLOCK)", "CROSS APPLY", "OUTER APPLY",
		"INTO #", "FROM #", "JOIN #", "TEMPDB", "[DBO]", "DBO."} {
		if strings.Contains(text, kw) {
			tsqlScore += 2
		}
	}

	for _, kw := range []string{"$$", "LANGUAGE PLPGSQL", "RETURNS SETOF",
		"CREATE EXTENSION", "SERIAL", "BIGSERIAL", "TIMESTAMPTZ", "JSONB",
		"::TEXT", "::INTEGER", "::UUID", "ILIKE", "SIMILAR TO",
		"CREATE TEMP TABLE", "CREATE TEMPORARY TABLE", "RAISE NOTICE",
		"PERFORM ", "LIMIT ", "PUBLIC.", "PG_CATALOG"} {
		if strings.Contains(text, kw) {
			pgsqlScore += 2
		}
	}

	switch {
	case tsqlScore > pgsqlScore:
		return VendorSQLServer
	case pgsqlScore > tsqlScore:
		return VendorPostgres
	}
	return ""
}
