package inference

import (
	"strings"

	"github.com/maraichr/sqlscope/internal/parser/tsql"
)

// DefaultType is used whenever nothing better is known about a column.
const DefaultType = "varchar(max)"

var functionTypes = map[string]string{
	"COUNT":     "int",
	"COUNT_BIG": "bigint",
	"SUM":       "numeric",
	"AVG":       "numeric",
	"MAX":       DefaultType,
	"MIN":       DefaultType,

	"GETDATE":           "datetime",
	"GETUTCDATE":        "datetime",
	"CURRENT_TIMESTAMP": "datetime",
	"SYSDATETIME":       "datetime2",
	"SYSUTCDATETIME":    "datetime2",
	"SYSDATETIMEOFFSET": "datetimeoffset",

	"CONCAT":     DefaultType,
	"CONCAT_WS":  DefaultType,
	"SUBSTRING":  DefaultType,
	"UPPER":      DefaultType,
	"LOWER":      DefaultType,
	"TRIM":       DefaultType,
	"LTRIM":      DefaultType,
	"RTRIM":      DefaultType,
	"REPLACE":    DefaultType,
	"LEFT":       DefaultType,
	"RIGHT":      DefaultType,
	"STUFF":      DefaultType,
	"REVERSE":    DefaultType,
	"REPLICATE":  DefaultType,
	"FORMAT":     DefaultType,
	"STRING_AGG": DefaultType,
}

// ExpressionType guesses the type of a select-list expression from its
// shape: aggregate, date and string functions, CAST/CONVERT targets and
// literals. Anything else is DefaultType.
func ExpressionType(expr string) string {
	toks := significant(tsql.NewLexer(expr).Tokenize())
	if len(toks) == 0 {
		return DefaultType
	}

	if t, ok := literalType(toks); ok {
		return t
	}

	first := toks[0]
	if len(toks) == 1 && first.Type == tsql.TokenIdent && strings.EqualFold(first.Value, "CURRENT_TIMESTAMP") {
		return "datetime"
	}
	if len(toks) < 3 || !isPunct(toks[1], "(") || (first.Type != tsql.TokenIdent && first.Type != tsql.TokenKeyword) {
		return DefaultType
	}
	closing := matchParen(toks, 1)
	if closing < 0 || !callEndsExpression(toks, closing) {
		return DefaultType
	}

	name := strings.ToUpper(first.Value)
	switch name {
	case "CAST", "TRY_CAST":
		if t := castType(expr, toks, closing); t != "" {
			return t
		}
		return DefaultType
	case "CONVERT", "TRY_CONVERT":
		if t := convertType(expr, toks, closing); t != "" {
			return t
		}
		return DefaultType
	}
	if t, ok := functionTypes[name]; ok {
		return t
	}
	return DefaultType
}

func literalType(toks []tsql.Token) (string, bool) {
	if len(toks) == 2 && (isPunct(toks[0], "-") || isPunct(toks[0], "+")) {
		toks = toks[1:]
	}
	if len(toks) != 1 {
		return "", false
	}
	switch toks[0].Type {
	case tsql.TokenString:
		return DefaultType, true
	case tsql.TokenNumber:
		if strings.Contains(toks[0].Value, ".") {
			return "numeric", true
		}
		return "int", true
	}
	return "", false
}

// callEndsExpression reports whether the call closing at idx is the whole
// expression, optionally followed by an OVER (...) window.
func callEndsExpression(toks []tsql.Token, idx int) bool {
	rest := toks[idx+1:]
	if len(rest) == 0 {
		return true
	}
	if rest[0].Type != tsql.TokenKeyword || rest[0].Value != "OVER" || len(rest) < 2 || !isPunct(rest[1], "(") {
		return false
	}
	return matchParen(toks, idx+2) == len(toks)-1
}

// castType returns the text after the last top-level AS inside CAST(...).
func castType(expr string, toks []tsql.Token, closing int) string {
	depth, as := 0, -1
	for i := 2; i < closing; i++ {
		switch {
		case isPunct(toks[i], "("):
			depth++
		case isPunct(toks[i], ")"):
			depth--
		case depth == 0 && toks[i].Type == tsql.TokenKeyword && toks[i].Value == "AS":
			as = i
		}
	}
	if as < 0 || as+1 >= closing {
		return ""
	}
	return strings.TrimSpace(expr[toks[as+1].Offset:toks[closing].Offset])
}

// convertType returns the first argument of CONVERT(type, expr[, style]).
func convertType(expr string, toks []tsql.Token, closing int) string {
	depth := 0
	for i := 2; i < closing; i++ {
		switch {
		case isPunct(toks[i], "("):
			depth++
		case isPunct(toks[i], ")"):
			depth--
		case depth == 0 && isPunct(toks[i], ","):
			if i == 2 {
				return ""
			}
			return strings.TrimSpace(expr[toks[2].Offset:toks[i].Offset])
		}
	}
	return ""
}

// ColumnName derives the output name of a select-list item: its alias, or
// the trailing identifier of its expression. It reports false when the
// expression ends in anything else, such as a function call.
func ColumnName(alias, expr string) (string, bool) {
	if alias != "" {
		return unquote(alias), true
	}
	toks := significant(tsql.NewLexer(expr).Tokenize())
	if len(toks) == 0 {
		return "", false
	}
	last := toks[len(toks)-1]
	if last.Type != tsql.TokenIdent || strings.HasPrefix(last.Value, "@") {
		return "", false
	}
	return last.Value, true
}

// columnRef splits a plain column reference (a, t.a, dbo.t.a) into its
// qualifier and column name.
func columnRef(expr string) (qualifier, name string, ok bool) {
	toks := significant(tsql.NewLexer(expr).Tokenize())
	if len(toks) == 0 || len(toks)%2 == 0 {
		return "", "", false
	}
	parts := make([]string, 0, len(toks)/2+1)
	for i, t := range toks {
		if i%2 == 1 {
			if !isPunct(t, ".") {
				return "", "", false
			}
			continue
		}
		if t.Type != tsql.TokenIdent || strings.HasPrefix(t.Value, "@") {
			return "", "", false
		}
		parts = append(parts, t.Value)
	}
	return strings.Join(parts[:len(parts)-1], "."), parts[len(parts)-1], true
}

func significant(toks []tsql.Token) []tsql.Token {
	out := toks[:0:0]
	for _, t := range toks {
		switch t.Type {
		case tsql.TokenEOF, tsql.TokenComment, tsql.TokenNewline:
			continue
		}
		out = append(out, t)
	}
	return out
}

// matchParen returns the index of the parenthesis closing the one at open,
// or -1.
func matchParen(toks []tsql.Token, open int) int {
	depth := 0
	for i := open; i < len(toks); i++ {
		switch {
		case isPunct(toks[i], "("):
			depth++
		case isPunct(toks[i], ")"):
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

func isPunct(t tsql.Token, p string) bool {
	return t.Type == tsql.TokenPunctuation && t.Value == p
}

func unquote(s string) string {
	toks := significant(tsql.NewLexer(s).Tokenize())
	if len(toks) == 1 {
		switch toks[0].Type {
		case tsql.TokenIdent:
			return toks[0].Value
		case tsql.TokenString:
			// T-SQL accepts 'alias' as a column alias
			v := strings.TrimPrefix(toks[0].Value, "N")
			return strings.ReplaceAll(strings.Trim(v, "'"), "''", "'")
		}
	}
	return strings.TrimSpace(s)
}
