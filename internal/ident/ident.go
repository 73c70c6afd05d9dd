// Package ident normalizes SQL identifiers and splits qualified object names.
package ident

import "strings"

// Normalize strips one level of bracket, double-quote or backtick quoting.
// Case is preserved; callers fold case at comparison time.
func Normalize(s string) string {
	s = strings.TrimSpace(s)
	if len(s) < 2 {
		return s
	}
	switch {
	case s[0] == '[' && s[len(s)-1] == ']':
		return strings.ReplaceAll(s[1:len(s)-1], "]]", "]")
	case s[0] == '"' && s[len(s)-1] == '"':
		return strings.ReplaceAll(s[1:len(s)-1], `""`, `"`)
	case s[0] == '`' && s[len(s)-1] == '`':
		return strings.ReplaceAll(s[1:len(s)-1], "``", "`")
	}
	return s
}

// Fold returns the comparison key for an identifier: unquoted and lower-cased.
func Fold(s string) string {
	return strings.ToLower(Normalize(s))
}

// Equal compares two identifiers case-insensitively after unquoting.
func Equal(a, b string) bool {
	return strings.EqualFold(Normalize(a), Normalize(b))
}

// SplitParts splits a dotted name into its parts, honouring quoted segments
// so that [my.schema].[tbl] yields two parts. Each part is normalized.
func SplitParts(name string) []string {
	var parts []string
	var b strings.Builder
	var closer byte

	for i := 0; i < len(name); i++ {
		ch := name[i]
		if closer != 0 {
			b.WriteByte(ch)
			if ch == closer {
				// doubled closer is an escape inside the quoted segment
				if i+1 < len(name) && name[i+1] == closer {
					b.WriteByte(name[i+1])
					i++
					continue
				}
				closer = 0
			}
			continue
		}
		switch ch {
		case '[':
			closer = ']'
			b.WriteByte(ch)
		case '"', '`':
			closer = ch
			b.WriteByte(ch)
		case '.':
			parts = append(parts, Normalize(b.String()))
			b.Reset()
		default:
			b.WriteByte(ch)
		}
	}
	parts = append(parts, Normalize(b.String()))
	return parts
}

// QualifiedName is a parsed object reference.
type QualifiedName struct {
	Database string
	Schema   string
	Name     string
}

// ParseQualifiedName splits a reference into database, schema and object name.
// 1 part = name, 2 = schema.name, 3 = database.schema.name. Longer references
// keep only the last three parts, so server.db.schema.name drops the server.
func ParseQualifiedName(ref string) QualifiedName {
	parts := SplitParts(strings.TrimSpace(ref))
	if len(parts) > 3 {
		parts = parts[len(parts)-3:]
	}
	switch len(parts) {
	case 3:
		return QualifiedName{Database: parts[0], Schema: parts[1], Name: parts[2]}
	case 2:
		return QualifiedName{Schema: parts[0], Name: parts[1]}
	default:
		return QualifiedName{Name: parts[0]}
	}
}

// String renders the name in dotted form, omitting empty leading parts.
func (q QualifiedName) String() string {
	var parts []string
	if q.Database != "" {
		parts = append(parts, q.Database)
	}
	if q.Schema != "" || q.Database != "" {
		parts = append(parts, q.Schema)
	}
	parts = append(parts, q.Name)
	return strings.Join(parts, ".")
}

// IsTempTable reports whether name has the #local or ##global temp table form.
func IsTempTable(name string) bool {
	n := Normalize(strings.TrimSpace(name))
	return len(n) > 1 && n[0] == '#'
}

// IsGlobalTemp reports whether name is a ##global temp table.
func IsGlobalTemp(name string) bool {
	n := Normalize(strings.TrimSpace(name))
	return len(n) > 2 && strings.HasPrefix(n, "##")
}

// ShortName returns the last dotted part of a reference.
// e.g. "dbo.Customers" -> "Customers"
func ShortName(ref string) string {
	parts := SplitParts(ref)
	return parts[len(parts)-1]
}
