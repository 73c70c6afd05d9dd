// Package sqlutil extracts table references, aliases and temp-table
// declarations from raw SQL text with regular expressions. It is the safety
// net used when structured parsing is unavailable, not a parser.
package sqlutil

import (
	"regexp"
	"sort"
	"strings"

	"github.com/maraichr/sqlscope/internal/ident"
)

const (
	quotedPart = `\[[^\]]+\]|"[^"]+"|` + "`[^`]+`"
	refPattern = `((?:` + quotedPart + `|[#@]{0,2}[\w$]+)(?:\.(?:` + quotedPart + `|[\w$]*))*)`
	aliasPart  = `(` + quotedPart + `|[\w$#@]+)`
	clauseEnd  = `(?:$|;|\)|\b(?:where|group|order|having|limit|offset|union|intersect|except|join|inner|left|right|full|cross|outer|on|go)\b)`
)

// aliasPatterns are applied in order; an alias captured by an earlier
// pattern is never overwritten by a later one.
var aliasPatterns = []struct {
	re        *regexp.Regexp
	bareAlias bool // alias key is the table's own name
}{
	{re: regexp.MustCompile(`(?is)\bfrom\s+` + refPattern + `\s+as\s+` + aliasPart)},
	{re: regexp.MustCompile(`(?is)\bfrom\s+` + refPattern + `\s+` + aliasPart)},
	{re: regexp.MustCompile(`(?is)\bjoin\s+` + refPattern + `\s+as\s+` + aliasPart)},
	{re: regexp.MustCompile(`(?is)\bjoin\s+` + refPattern + `\s+` + aliasPart)},
	{re: regexp.MustCompile(`(?is)\bfrom\s+` + refPattern + `\s*` + clauseEnd), bareAlias: true},
	{re: regexp.MustCompile(`(?is)\bjoin\s+` + refPattern + `\s+on\b`), bareAlias: true},
}

// ExtractAliases returns lower-cased alias -> table reference pairs found after
// FROM and JOIN. Unaliased tables are keyed by their bare name.
func ExtractAliases(sql string) map[string]string {
	aliases := make(map[string]string)
	for _, p := range aliasPatterns {
		for _, m := range p.re.FindAllStringSubmatch(sql, -1) {
			table := strings.TrimSpace(m[1])
			if table == "" || IsSQLKeyword(table) {
				continue
			}
			var alias string
			if p.bareAlias {
				alias = ident.ShortName(table)
			} else {
				alias = ident.Normalize(m[2])
				if IsSQLKeyword(alias) {
					continue
				}
			}
			key := strings.ToLower(alias)
			if key == "" {
				continue
			}
			if _, exists := aliases[key]; !exists {
				aliases[key] = table
			}
		}
	}
	return aliases
}

// TableRef is a table name found after a data-access keyword.
type TableRef struct {
	Name    string
	Keyword string // FROM, JOIN, INTO, UPDATE, DELETE, MERGE
	Offset  int
}

// Writes reports whether the keyword puts data into the table.
func (r TableRef) Writes() bool {
	switch r.Keyword {
	case "INTO", "UPDATE", "DELETE", "MERGE":
		return true
	}
	return false
}

// ExtractTableRefs returns table names found after FROM, JOIN, INTO, UPDATE,
// DELETE and MERGE, ordered by position.
func ExtractTableRefs(sql string) []TableRef {
	var refs []TableRef
	upper := strings.ToUpper(sql)
	keywords := []string{"FROM", "JOIN", "INTO", "UPDATE", "DELETE", "MERGE"}

	for _, kw := range keywords {
		idx := 0
		for {
			pos := strings.Index(upper[idx:], kw)
			if pos < 0 {
				break
			}
			absPos := idx + pos
			idx = absPos + len(kw)
			if !wordBoundary(upper, absPos, len(kw)) {
				continue
			}
			rest := sql[idx:]
			trimmed := strings.TrimLeft(rest, " \t\r\n")
			if len(trimmed) == len(rest) {
				continue // keyword must be followed by whitespace
			}
			name := readRef(trimmed)
			if name != "" && !IsSQLKeyword(name) {
				refs = append(refs, TableRef{
					Name:    name,
					Keyword: kw,
					Offset:  idx + len(rest) - len(trimmed),
				})
			}
		}
	}
	sort.SliceStable(refs, func(i, j int) bool { return refs[i].Offset < refs[j].Offset })
	return refs
}

// readRef reads a possibly quoted, dotted object name at the start of s.
func readRef(s string) string {
	i := 0
	for i < len(s) {
		switch s[i] {
		case '[':
			end := strings.IndexByte(s[i:], ']')
			if end < 0 {
				return s[:i]
			}
			i += end + 1
		case '"', '`':
			end := strings.IndexByte(s[i+1:], s[i])
			if end < 0 {
				return s[:i]
			}
			i += end + 2
		default:
			if !isRefChar(s[i]) {
				return s[:i]
			}
			i++
		}
	}
	return s
}

func isRefChar(ch byte) bool {
	return ch == '.' || ch == '_' || ch == '#' || ch == '@' || ch == '$' ||
		(ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z') || (ch >= '0' && ch <= '9') || ch >= 0x80
}

// wordBoundary reports whether upper[pos:pos+n] is a whole word.
func wordBoundary(upper string, pos, n int) bool {
	if pos > 0 && isWordChar(upper[pos-1]) {
		return false
	}
	end := pos + n
	return end >= len(upper) || !isWordChar(upper[end])
}

func isWordChar(ch byte) bool {
	return ch >= 'A' && ch <= 'Z' || ch >= 'a' && ch <= 'z' || ch >= '0' && ch <= '9' || ch == '_' || ch == '#' || ch == '@'
}

// TempTableRef is a temp table declaration found in text.
type TempTableRef struct {
	Name   string
	Form   string // "select_into" or "create_table"
	Offset int
}

var (
	intoTempRe   = regexp.MustCompile(`(?i)\binto\s+(#{1,2}[\w$]+)`)
	createTempRe = regexp.MustCompile(`(?i)\bcreate\s+table\s+(#{1,2}[\w$]+)`)
	pgTempRe     = regexp.MustCompile(`(?i)\bcreate\s+(?:(?:global|local)\s+)?temp(?:orary)?\s+table\s+(?:if\s+not\s+exists\s+)?([\w$."]+)`)
)

// ExtractTempTables finds SELECT ... INTO #name, CREATE TABLE #name and
// CREATE TEMP TABLE name declarations, ordered by position. The first
// declaration of a name wins.
func ExtractTempTables(sql string) []TempTableRef {
	var out []TempTableRef
	seen := make(map[string]bool)
	add := func(re *regexp.Regexp, form string) {
		for _, loc := range re.FindAllStringSubmatchIndex(sql, -1) {
			name := sql[loc[2]:loc[3]]
			out = append(out, TempTableRef{Name: name, Form: form, Offset: loc[0]})
		}
	}
	add(intoTempRe, "select_into")
	add(createTempRe, "create_table")
	add(pgTempRe, "create_table")

	sort.SliceStable(out, func(i, j int) bool { return out[i].Offset < out[j].Offset })
	deduped := out[:0]
	for _, t := range out {
		key := strings.ToLower(t.Name)
		if seen[key] {
			continue
		}
		seen[key] = true
		deduped = append(deduped, t)
	}
	return deduped
}

var sqlKeywords = map[string]bool{
	"SELECT": true, "FROM": true, "WHERE": true, "AND": true,
	"OR": true, "SET": true, "VALUES": true, "AS": true,
	"ON": true, "IN": true, "NOT": true, "NULL": true,
	"INTO": true, "JOIN": true, "LEFT": true, "RIGHT": true,
	"INNER": true, "OUTER": true, "CROSS": true, "FULL": true,
	"GROUP": true, "ORDER": true, "BY": true, "HAVING": true,
	"UNION": true, "ALL": true, "EXISTS": true, "BETWEEN": true,
	"LIKE": true, "IS": true, "CASE": true, "WHEN": true,
	"THEN": true, "ELSE": true, "END": true, "BEGIN": true,
	"DECLARE": true, "TABLE": true, "WITH": true, "TOP": true,
	"DISTINCT": true, "INSERT": true, "UPDATE": true, "DELETE": true,
	"LIMIT": true, "OFFSET": true, "INTERSECT": true, "EXCEPT": true,
	"NATURAL": true, "USING": true, "APPLY": true, "GO": true,
	"WINDOW": true, "QUALIFY": true, "OPTION": true, "FOR": true,
	"LATERAL": true, "MERGE": true, "RETURNING": true,
}

// IsSQLKeyword reports whether s is a keyword that can never be a table
// name or alias in the extractor's view.
func IsSQLKeyword(s string) bool {
	return sqlKeywords[strings.ToUpper(s)]
}
