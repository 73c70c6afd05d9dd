package catalog

import (
	"fmt"
	"strconv"
	"strings"
)

// Field-name variants seen in adapter and RPC column rows, in lookup order.
var (
	nameKeys     = []string{"name", "column_name", "field", "col_name"}
	typeKeys     = []string{"data_type", "type", "column_type", "typname", "type_name"}
	nullableKeys = []string{"nullable", "is_nullable", "null"}
	notNullKeys  = []string{"notnull", "not_null"}
	pkKeys       = []string{"is_primary_key", "pk", "primary_key", "is_pk"}
	fkKeys       = []string{"is_foreign_key", "fk", "foreign_key", "is_fk"}
	ordinalKeys  = []string{"ordinal_position", "position", "column_id", "cid", "ordinal"}
)

// NormalizeColumns maps rows with vendor-varying field names onto Column.
// Rows without a usable name are skipped. A missing ordinal position is
// taken from the row's place in the result.
func NormalizeColumns(rows []Row) []Column {
	cols := make([]Column, 0, len(rows))
	for i, row := range rows {
		c, ok := NormalizeColumn(row)
		if !ok {
			continue
		}
		if c.OrdinalPosition == 0 {
			c.OrdinalPosition = i + 1
		}
		cols = append(cols, c)
	}
	return cols
}

// NormalizeColumn maps a single row. Keys are matched case-insensitively.
func NormalizeColumn(row Row) (Column, bool) {
	folded := make(map[string]any, len(row))
	for k, v := range row {
		folded[strings.ToLower(k)] = v
	}

	name, _ := lookup(folded, nameKeys)
	c := Column{Name: asString(name)}
	if c.Name == "" {
		return Column{}, false
	}

	if v, ok := lookup(folded, typeKeys); ok {
		c.DataType = asString(v)
	}

	c.Nullable = true
	if v, ok := lookup(folded, nullableKeys); ok {
		if b, ok := asBool(v); ok {
			c.Nullable = b
		}
	} else if v, ok := lookup(folded, notNullKeys); ok {
		if b, ok := asBool(v); ok {
			c.Nullable = !b
		}
	}

	if v, ok := lookup(folded, pkKeys); ok {
		c.IsPrimaryKey, _ = asBool(v)
	} else if v, ok := folded["column_key"]; ok {
		c.IsPrimaryKey = strings.EqualFold(asString(v), "PRI")
	}
	if v, ok := lookup(folded, fkKeys); ok {
		c.IsForeignKey, _ = asBool(v)
	} else if v, ok := folded["column_key"]; ok {
		c.IsForeignKey = strings.EqualFold(asString(v), "MUL")
	}
	if c.IsPrimaryKey {
		c.Nullable = false
	}

	if v, ok := lookup(folded, ordinalKeys); ok {
		if n, ok := asInt(v); ok {
			c.OrdinalPosition = n
		}
	}
	return c, true
}

func lookup(row map[string]any, keys []string) (any, bool) {
	for _, k := range keys {
		if v, ok := row[k]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
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

func asBool(v any) (bool, bool) {
	switch t := v.(type) {
	case bool:
		return t, true
	case int:
		return t != 0, true
	case int32:
		return t != 0, true
	case int64:
		return t != 0, true
	case float64:
		return t != 0, true
	}
	switch strings.ToLower(strings.TrimSpace(asString(v))) {
	case "yes", "y", "true", "t", "1":
		return true, true
	case "no", "n", "false", "f", "0":
		return false, true
	}
	return false, false
}

func asInt(v any) (int, bool) {
	switch t := v.(type) {
	case int:
		return t, true
	case int32:
		return int(t), true
	case int64:
		return int(t), true
	case float64:
		return int(t), true
	}
	n, err := strconv.Atoi(strings.TrimSpace(asString(v)))
	if err != nil {
		return 0, false
	}
	return n, true
}
