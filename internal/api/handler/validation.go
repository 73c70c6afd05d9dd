package handler

import (
	"strings"

	"github.com/maraichr/sqlscope/internal/analysis"
	"github.com/maraichr/sqlscope/internal/catalog"
	"github.com/maraichr/sqlscope/pkg/apierr"
)

// maxBodyBytes leaves room for JSON escaping around the largest SQL text.
const maxBodyBytes = 2*analysis.MaxSQLBytes + 4096

func validateSQL(sql string) *apierr.Error {
	if strings.TrimSpace(sql) == "" {
		return apierr.SQLRequired()
	}
	if len(sql) > analysis.MaxSQLBytes {
		return apierr.SQLTooLarge(analysis.MaxSQLBytes)
	}
	return nil
}

func validateVendor(vendor string) *apierr.Error {
	if vendor != "" && !catalog.KnownVendor(vendor) {
		return apierr.InvalidVendor(vendor)
	}
	return nil
}

func validateTable(table string) *apierr.Error {
	if strings.TrimSpace(table) == "" {
		return apierr.TableRequired()
	}
	return nil
}
