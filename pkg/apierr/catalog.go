package apierr

import (
	"fmt"
	"net/http"
)

// --- Common ---

func InvalidRequestBody() *Error {
	return New(CodeInvalidRequestBody, http.StatusBadRequest, "Invalid request body")
}

func InternalError(cause error) *Error {
	return Wrap(CodeInternalError, http.StatusInternalServerError, "Internal server error", cause)
}

// --- Analysis requests ---

func SQLRequired() *Error {
	return New(CodeSQLRequired, http.StatusBadRequest, "sql is required")
}

func SQLTooLarge(limit int) *Error {
	return New(CodeSQLTooLarge, http.StatusRequestEntityTooLarge, fmt.Sprintf("sql must be %d bytes or fewer", limit))
}

func TableRequired() *Error {
	return New(CodeTableRequired, http.StatusBadRequest, "table is required")
}

func InvalidCursor(cause error) *Error {
	return Wrap(CodeInvalidCursor, http.StatusBadRequest, "Cursor is outside the SQL text", cause)
}

func InvalidVendor(vendor string) *Error {
	return New(CodeInvalidVendor, http.StatusBadRequest, "Unknown vendor "+vendor)
}

// --- Resolution ---

func ResolutionTimeout(cause error) *Error {
	return Wrap(CodeResolutionTimeout, http.StatusGatewayTimeout, "Metadata resolution timed out", cause)
}

func CatalogUnavailable(cause error) *Error {
	return Wrap(CodeCatalogUnavailable, http.StatusServiceUnavailable, "Catalog not available", cause)
}
