package tsql

import (
	"strings"
)

type TokenType int

const (
	TokenEOF TokenType = iota
	TokenKeyword
	TokenIdent
	TokenNumber
	TokenString
	TokenOperator
	TokenPunctuation
	TokenGO // batch separator
	TokenComment
	TokenNewline
)

// Token is one lexeme. Offset and End are byte offsets into the input and Raw
// is the exact source text, quoting included.
type Token struct {
	Type   TokenType
	Value  string
	Raw    string
	Line   int
	Col    int
	Offset int
	End    int
}

type Lexer struct {
	input  string
	pos    int
	line   int
	col    int
	tokens []Token
}

func NewLexer(input string) *Lexer {
	return &Lexer{input: input, line: 1, col: 1}
}

func (l *Lexer) Tokenize() []Token {
	for l.pos < len(l.input) {
		l.skipWhitespace()
		if l.pos >= len(l.input) {
			break
		}

		ch := l.input[l.pos]

		// Line comments
		if l.pos+1 < len(l.input) && l.input[l.pos:l.pos+2] == "--" {
			l.readLineComment()
			continue
		}

		// Block comments
		if l.pos+1 < len(l.input) && l.input[l.pos:l.pos+2] == "/*" {
			l.readBlockComment()
			continue
		}

		// N'unicode' literals
		if (ch == 'N' || ch == 'n') && l.pos+1 < len(l.input) && l.input[l.pos+1] == '\'' {
			l.readString(1)
			continue
		}

		if ch == '\'' {
			l.readString(0)
			continue
		}

		// Quoted identifiers
		switch ch {
		case '[':
			l.readQuotedIdent(']')
			continue
		case '"':
			l.readQuotedIdent('"')
			continue
		case '`':
			l.readQuotedIdent('`')
			continue
		}

		if ch >= '0' && ch <= '9' {
			l.readNumber()
			continue
		}

		if isIdentStart(ch) {
			l.readIdentOrKeyword()
			continue
		}

		// Newlines (for GO detection)
		if ch == '\n' || ch == '\r' {
			start := l.pos
			l.pos++
			if ch == '\r' && l.pos < len(l.input) && l.input[l.pos] == '\n' {
				l.pos++
			}
			l.emit(TokenNewline, "\n", start, l.line, l.col)
			l.line++
			l.col = 1
			continue
		}

		l.readOperatorOrPunct()
	}

	l.tokens = append(l.tokens, Token{Type: TokenEOF, Line: l.line, Col: l.col, Offset: l.pos, End: l.pos})

	l.detectGO()

	return l.tokens
}

func (l *Lexer) emit(typ TokenType, value string, start, line, col int) {
	l.tokens = append(l.tokens, Token{
		Type:   typ,
		Value:  value,
		Raw:    l.input[start:l.pos],
		Line:   line,
		Col:    col,
		Offset: start,
		End:    l.pos,
	})
}

// advance moves past one byte, keeping line/col current.
func (l *Lexer) advance() {
	if l.input[l.pos] == '\n' {
		l.line++
		l.col = 1
	} else {
		l.col++
	}
	l.pos++
}

func (l *Lexer) skipWhitespace() {
	for l.pos < len(l.input) {
		ch := l.input[l.pos]
		if ch == ' ' || ch == '\t' || ch == '\f' || ch == '\v' {
			l.pos++
			l.col++
		} else {
			break
		}
	}
}

func (l *Lexer) readLineComment() {
	start, line, col := l.pos, l.line, l.col
	for l.pos < len(l.input) && l.input[l.pos] != '\n' && l.input[l.pos] != '\r' {
		l.pos++
		l.col++
	}
	l.emit(TokenComment, l.input[start:l.pos], start, line, col)
}

func (l *Lexer) readBlockComment() {
	start, line, col := l.pos, l.line, l.col
	l.pos += 2
	l.col += 2
	for l.pos < len(l.input) {
		if l.pos+1 < len(l.input) && l.input[l.pos] == '*' && l.input[l.pos+1] == '/' {
			l.pos += 2
			l.col += 2
			break
		}
		l.advance()
	}
	l.emit(TokenComment, l.input[start:l.pos], start, line, col)
}

func (l *Lexer) readString(prefix int) {
	start, line, col := l.pos, l.line, l.col
	l.pos += prefix + 1 // skip prefix and opening quote
	l.col += prefix + 1
	for l.pos < len(l.input) {
		if l.input[l.pos] == '\'' {
			l.pos++
			l.col++
			if l.pos < len(l.input) && l.input[l.pos] == '\'' {
				l.pos++
				l.col++
				continue
			}
			break
		}
		l.advance()
	}
	l.emit(TokenString, l.input[start:l.pos], start, line, col)
}

func (l *Lexer) readQuotedIdent(closer byte) {
	start, line, col := l.pos, l.line, l.col
	l.pos++
	l.col++
	var b strings.Builder
	for l.pos < len(l.input) {
		ch := l.input[l.pos]
		if ch == closer {
			if l.pos+1 < len(l.input) && l.input[l.pos+1] == closer {
				b.WriteByte(ch)
				l.pos += 2
				l.col += 2
				continue
			}
			l.pos++
			l.col++
			break
		}
		b.WriteByte(ch)
		l.advance()
	}
	l.emit(TokenIdent, b.String(), start, line, col)
}

func (l *Lexer) readNumber() {
	start, line, col := l.pos, l.line, l.col
	for l.pos < len(l.input) && (l.input[l.pos] >= '0' && l.input[l.pos] <= '9' || l.input[l.pos] == '.') {
		l.pos++
		l.col++
	}
	l.emit(TokenNumber, l.input[start:l.pos], start, line, col)
}

func (l *Lexer) readIdentOrKeyword() {
	start, line, col := l.pos, l.line, l.col
	for l.pos < len(l.input) && isIdentPart(l.input[l.pos]) {
		l.pos++
		l.col++
	}
	val := l.input[start:l.pos]

	if isKeyword(val) {
		l.emit(TokenKeyword, strings.ToUpper(val), start, line, col)
	} else {
		l.emit(TokenIdent, val, start, line, col)
	}
}

func (l *Lexer) readOperatorOrPunct() {
	start, line, col := l.pos, l.line, l.col
	ch := l.input[l.pos]
	l.pos++
	l.col++

	switch ch {
	case '(', ')', ',', ';', '.', '=', '<', '>', '+', '-', '*', '/', '%', '!':
		l.emit(TokenPunctuation, string(ch), start, line, col)
	default:
		l.emit(TokenOperator, string(ch), start, line, col)
	}
}

// detectGO converts keyword GO standing alone on its line to TokenGO.
func (l *Lexer) detectGO() {
	for i := range l.tokens {
		if l.tokens[i].Type != TokenKeyword || l.tokens[i].Value != "GO" {
			continue
		}
		atLineStart := i == 0
		if !atLineStart {
			for j := i - 1; j >= 0; j-- {
				if l.tokens[j].Type == TokenNewline {
					atLineStart = true
					break
				}
				if l.tokens[j].Type != TokenComment {
					break
				}
			}
		}
		if !atLineStart {
			continue
		}
		// GO may be followed by a repeat count, a comment or the line end
		k := i + 1
		if k < len(l.tokens) && l.tokens[k].Type == TokenNumber {
			k++
		}
		if k < len(l.tokens) && l.tokens[k].Type == TokenComment {
			k++
		}
		if k >= len(l.tokens) || l.tokens[k].Type == TokenNewline || l.tokens[k].Type == TokenEOF {
			l.tokens[i].Type = TokenGO
		}
	}
}

func isIdentStart(ch byte) bool {
	return ch == '_' || ch == '#' || ch == '@' || (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z') || ch >= 0x80
}

func isIdentPart(ch byte) bool {
	return isIdentStart(ch) || (ch >= '0' && ch <= '9') || ch == '$'
}

func isKeyword(s string) bool {
	_, ok := tsqlKeywords[strings.ToUpper(s)]
	return ok
}

var tsqlKeywords = map[string]bool{
	"SELECT": true, "FROM": true, "WHERE": true, "INSERT": true, "INTO": true,
	"UPDATE": true, "DELETE": true, "CREATE": true, "ALTER": true, "DROP": true,
	"TABLE": true, "VIEW": true, "PROCEDURE": true, "PROC": true, "FUNCTION": true,
	"TRIGGER": true, "INDEX": true, "SCHEMA": true, "DATABASE": true,
	"BEGIN": true, "END": true, "IF": true, "ELSE": true, "WHILE": true,
	"RETURN": true, "RETURNS": true, "DECLARE": true, "SET": true,
	"EXEC": true, "EXECUTE": true, "GO": true, "USE": true,
	"AS": true, "ON": true, "AND": true, "OR": true, "NOT": true, "NULL": true,
	"IS": true, "IN": true, "EXISTS": true, "BETWEEN": true, "LIKE": true,
	"JOIN": true, "INNER": true, "LEFT": true, "RIGHT": true, "OUTER": true,
	"CROSS": true, "FULL": true, "APPLY": true, "NATURAL": true, "USING": true,
	"GROUP": true, "BY": true, "ORDER": true, "HAVING": true,
	"UNION": true, "ALL": true, "EXCEPT": true, "INTERSECT": true,
	"TOP": true, "DISTINCT": true, "WITH": true, "RECURSIVE": true,
	"LIMIT": true, "OFFSET": true, "WINDOW": true, "QUALIFY": true,
	"CASE": true, "WHEN": true, "THEN": true, "NOCOUNT": true,
	"PRIMARY": true, "KEY": true, "FOREIGN": true, "REFERENCES": true,
	"CONSTRAINT": true, "UNIQUE": true, "CHECK": true, "DEFAULT": true,
	"TEMP": true, "TEMPORARY": true,
	"IDENTITY": true, "OUTPUT": true,
	"FOR": true, "AFTER": true, "INSTEAD": true, "OF": true,
	"VALUES": true, "OVER": true, "PARTITION": true,
	"TRY": true, "CATCH": true, "THROW": true,
	"CURSOR": true, "FETCH": true, "NEXT": true,
	"OPEN": true, "CLOSE": true, "DEALLOCATE": true,
	"MERGE": true, "MATCHED": true, "TRUNCATE": true,
	"OPTION": true, "RECOMPILE": true,
}
