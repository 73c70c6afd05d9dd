package tsql

import (
	"strings"

	"github.com/maraichr/sqlscope/internal/parser"
)

// SplitSelectList splits the projection of a SELECT into items. text may start
// with the SELECT keyword; TOP/DISTINCT modifiers are skipped and scanning
// stops at a top-level FROM or INTO. Spans are relative to text.
func SplitSelectList(text string) []parser.SelectItem {
	tokens := significant(NewLexer(text).Tokenize())
	i := 0
	if i < len(tokens) && isKW(tokens[i], "SELECT") {
		i++
	}
	i = skipSelectModifiers(tokens, i)

	var items []parser.SelectItem
	var current []Token
	depth := 0
	for ; i < len(tokens); i++ {
		tok := tokens[i]
		if tok.Type == TokenEOF {
			break
		}
		if depth == 0 && (isKW(tok, "FROM") || isKW(tok, "INTO") || isPunct(tok, ";")) {
			break
		}
		switch {
		case isPunct(tok, "("):
			depth++
		case isPunct(tok, ")"):
			if depth == 0 {
				i = len(tokens)
				continue
			}
			depth--
		case depth == 0 && isPunct(tok, ","):
			if len(current) > 0 {
				items = append(items, classifySelectItem(text, current))
				current = nil
			}
			continue
		}
		current = append(current, tok)
	}
	if len(current) > 0 {
		items = append(items, classifySelectItem(text, current))
	}
	return items
}

// skipSelectModifiers steps over DISTINCT, ALL and TOP (n) [PERCENT] [WITH TIES].
func skipSelectModifiers(tokens []Token, i int) int {
	for i < len(tokens) {
		tok := tokens[i]
		switch {
		case isKW(tok, "DISTINCT"), isKW(tok, "ALL"):
			i++
		case isKW(tok, "TOP"):
			i++
			if i < len(tokens) && isPunct(tokens[i], "(") {
				i = skipBalanced(tokens, i)
			} else if i < len(tokens) {
				i++
			}
			if i < len(tokens) && strings.EqualFold(tokens[i].Value, "PERCENT") {
				i++
			}
			if i+1 < len(tokens) && isKW(tokens[i], "WITH") && strings.EqualFold(tokens[i+1].Value, "TIES") {
				i += 2
			}
		default:
			return i
		}
	}
	return i
}

// classifySelectItem derives the expression, alias and star form of one item.
func classifySelectItem(src string, tokens []Token) parser.SelectItem {
	first, last := tokens[0], tokens[len(tokens)-1]
	item := parser.SelectItem{Loc: tokenSpan(first, last)}

	switch {
	case len(tokens) == 1 && isPunct(first, "*"):
		item.Star = true
		item.Expr = "*"
		return item
	case len(tokens) >= 3 && isPunct(last, "*") && isPunct(tokens[len(tokens)-2], "."):
		item.Star = true
		item.Qualifier = qualifiedText(tokens[:len(tokens)-2])
		item.Expr = src[first.Offset:last.End]
		return item
	}

	exprTokens := tokens
	// T-SQL "alias = expr"
	if len(tokens) > 2 && (first.Type == TokenIdent) && isPunct(tokens[1], "=") {
		item.Alias = first.Value
		exprTokens = tokens[2:]
	} else if idx := lastTopLevelAS(tokens); idx > 0 && idx+1 < len(tokens) {
		item.Alias = tokens[idx+1].Value
		exprTokens = tokens[:idx]
	} else if len(tokens) >= 2 && last.Type == TokenIdent && impliesAlias(tokens[len(tokens)-2]) {
		item.Alias = last.Value
		exprTokens = tokens[:len(tokens)-1]
	}

	item.Expr = strings.TrimSpace(src[exprTokens[0].Offset:exprTokens[len(exprTokens)-1].End])
	return item
}

// impliesAlias reports whether a trailing identifier after prev is an alias
// rather than part of the expression.
func impliesAlias(prev Token) bool {
	switch prev.Type {
	case TokenIdent, TokenString, TokenNumber:
		return true
	case TokenKeyword:
		return prev.Value == "END" || prev.Value == "NULL"
	case TokenPunctuation:
		return prev.Value == ")"
	}
	return false
}

func lastTopLevelAS(tokens []Token) int {
	depth := 0
	found := -1
	for i, tok := range tokens {
		switch {
		case isPunct(tok, "("):
			depth++
		case isPunct(tok, ")"):
			depth--
		case depth == 0 && isKW(tok, "AS"):
			found = i
		}
	}
	return found
}

// qualifiedText joins ident . ident sequences from raw token text.
func qualifiedText(tokens []Token) string {
	var b strings.Builder
	for _, t := range tokens {
		b.WriteString(t.Raw)
	}
	return b.String()
}

func significant(tokens []Token) []Token {
	out := tokens[:0:0]
	for _, t := range tokens {
		if t.Type == TokenComment || t.Type == TokenNewline {
			continue
		}
		out = append(out, t)
	}
	return out
}

func skipBalanced(tokens []Token, i int) int {
	depth := 0
	for ; i < len(tokens); i++ {
		if isPunct(tokens[i], "(") {
			depth++
		} else if isPunct(tokens[i], ")") {
			depth--
			if depth == 0 {
				return i + 1
			}
		}
	}
	return i
}

func isKW(t Token, kw string) bool {
	return t.Type == TokenKeyword && t.Value == kw
}

func isPunct(t Token, p string) bool {
	return t.Type == TokenPunctuation && t.Value == p
}

func tokenSpan(first, last Token) parser.Span {
	endLine, endCol := last.Line, last.Col+len(last.Raw)
	if nl := strings.LastIndexByte(last.Raw, '\n'); nl >= 0 {
		endLine += strings.Count(last.Raw, "\n")
		endCol = len(last.Raw) - nl
	}
	return parser.Span{
		Start:     parser.Position{Line: first.Line, Col: first.Col},
		End:       parser.Position{Line: endLine, Col: endCol},
		StartByte: first.Offset,
		EndByte:   last.End,
	}
}

// SelectInto returns the target of a top-level SELECT ... INTO, or "".
func SelectInto(text string) string {
	tokens := significant(NewLexer(text).Tokenize())
	depth := 0
	for i, tok := range tokens {
		switch {
		case isPunct(tok, "("):
			depth++
		case isPunct(tok, ")"):
			depth--
		case depth == 0 && isKW(tok, "INTO") && i+1 < len(tokens):
			var b []Token
			for j := i + 1; j < len(tokens); j++ {
				t := tokens[j]
				if t.Type != TokenIdent && t.Type != TokenKeyword && !isPunct(t, ".") {
					break
				}
				if len(b) > 0 && !isPunct(t, ".") && !isPunct(b[len(b)-1], ".") {
					break
				}
				b = append(b, t)
			}
			return qualifiedText(b)
		case depth == 0 && isKW(tok, "FROM"):
			return ""
		}
	}
	return ""
}
