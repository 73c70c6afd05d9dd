package apierr

// Code is a machine-readable error code returned in API responses.
type Code string

// Common errors.
const (
	CodeInvalidRequestBody Code = "INVALID_REQUEST_BODY"
	CodeInternalError      Code = "INTERNAL_ERROR"
)

// Analysis request errors.
const (
	CodeSQLRequired   Code = "SQL_REQUIRED"
	CodeSQLTooLarge   Code = "SQL_TOO_LARGE"
	CodeTableRequired Code = "TABLE_REQUIRED"
	CodeInvalidCursor Code = "INVALID_CURSOR"
	CodeInvalidVendor Code = "INVALID_VENDOR"
)

// Resolution errors.
const (
	CodeResolutionTimeout  Code = "RESOLUTION_TIMEOUT"
	CodeCatalogUnavailable Code = "CATALOG_UNAVAILABLE"
)
