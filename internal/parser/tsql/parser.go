// Package tsql tokenizes T-SQL and reads it into the typed syntax tree. It is
// the deterministic structured backend: it never fails, it only recognizes
// less when the text gets unusual. Regions it steps over without a rule
// come back as *parser.Error nodes.
package tsql

import (
	"context"
	"strings"

	"github.com/maraichr/sqlscope/internal/parser"
)

// StructureParser implements parser.Parser on top of the T-SQL lexer.
type StructureParser struct{}

func New() *StructureParser {
	return &StructureParser{}
}

func (s *StructureParser) Name() string { return "tsql" }

func (s *StructureParser) Available() bool { return true }

// Parse reads src into a Program. It returns nil only if ctx is done or the
// reader panics on pathological input.
func (s *StructureParser) Parse(ctx context.Context, src string) (prog *parser.Program) {
	defer func() {
		if r := recover(); r != nil {
			prog = nil
		}
	}()
	p := &Parser{
		ctx:    ctx,
		src:    src,
		tokens: significantKeepGO(NewLexer(src).Tokenize()),
	}
	return p.parseProgram()
}

// Parser is a recursive-descent reader over one token stream.
type Parser struct {
	ctx    context.Context
	src    string
	tokens []Token
	pos    int
	last   Token
}

func (p *Parser) parseProgram() *parser.Program {
	eof := p.tokens[len(p.tokens)-1]
	prog := &parser.Program{Loc: parser.Span{
		Start:   parser.Position{Line: 1, Col: 1},
		End:     parser.Position{Line: eof.Line, Col: eof.Col},
		EndByte: len(p.src),
	}}

	for !p.atEOF() {
		if p.ctx != nil && p.ctx.Err() != nil {
			return nil
		}
		tok := p.current()
		switch {
		case tok.Type == TokenGO, p.matchPunct(";"):
			p.advance()
		case p.matchKeyword("WITH"), p.matchKeyword("SELECT"), p.startsParenQuery():
			prog.Nodes = append(prog.Nodes, p.parseQueryStatement())
		case p.matchKeyword("CREATE"):
			if stmt := p.parseCreate(); len(stmt.Body) > 0 {
				prog.Nodes = append(prog.Nodes, stmt)
			}
		case tok.Type != TokenKeyword:
			// no statement starts with a name, literal or stray punctuation
			stmt := p.parseGeneric(nil)
			prog.Nodes = append(prog.Nodes, &parser.Error{
				Loc:   stmt.Loc,
				Text:  p.src[stmt.Loc.StartByte:stmt.Loc.EndByte],
				Nodes: stmt.Body,
			})
		default:
			stmt := p.parseGeneric(nil)
			if len(stmt.Body) > 0 {
				prog.Nodes = append(prog.Nodes, stmt)
			}
		}
	}
	return prog
}

// parseQueryStatement reads [WITH cte, ...] followed by a query or DML body.
func (p *Parser) parseQueryStatement() *parser.Statement {
	start := p.current()
	stmt := &parser.Statement{}
	if p.matchKeyword("WITH") {
		stmt.CTEs = p.parseCTEs()
	}
	switch {
	case p.matchKeyword("SELECT"), p.startsParenQuery():
		stmt.Body = append(stmt.Body, p.parseQueryBody()...)
	case p.matchKeyword("INSERT"), p.matchKeyword("UPDATE"), p.matchKeyword("DELETE"), p.matchKeyword("MERGE"):
		p.parseGeneric(stmt)
	}
	stmt.Loc = p.spanFrom(start)
	return stmt
}

func (p *Parser) parseCTEs() []*parser.CTE {
	p.advance() // skip WITH
	recursive := false
	if p.matchKeyword("RECURSIVE") {
		recursive = true
		p.advance()
	}
	var ctes []*parser.CTE
	for !p.atEOF() {
		cte := p.parseCTE(recursive)
		if cte == nil {
			break
		}
		ctes = append(ctes, cte)
		if !p.matchPunct(",") {
			break
		}
		p.advance()
	}
	return ctes
}

func (p *Parser) parseCTE(recursive bool) *parser.CTE {
	start := p.current()
	if start.Type != TokenIdent && start.Type != TokenKeyword {
		return nil
	}
	cte := &parser.CTE{Name: start.Value, Recursive: recursive}
	p.advance()

	if p.matchPunct("(") {
		cte.Columns = p.readNameList()
	}
	if !p.matchKeyword("AS") {
		cte.Loc = p.spanFrom(start)
		return cte
	}
	p.advance()
	// Postgres [NOT] MATERIALIZED
	if p.matchKeyword("NOT") {
		p.advance()
	}
	if strings.EqualFold(p.current().Value, "MATERIALIZED") {
		p.advance()
	}
	if p.matchPunct("(") {
		sub := p.parseSubquery()
		cte.Body = sub.Body
		inner := sub.Loc
		// text between the parentheses
		if inner.EndByte-inner.StartByte >= 2 {
			cte.Text = strings.TrimSpace(p.src[inner.StartByte+1 : inner.EndByte-1])
		}
	}
	cte.Loc = p.spanFrom(start)
	return cte
}

// parseQueryBody reads one query, splitting set operations into branches.
func (p *Parser) parseQueryBody() []parser.Node {
	start := p.current()
	first := p.parseBranch()

	if !p.atSetOperator() {
		return first
	}

	setOp := &parser.SetOperation{Parts: branchParts(first)}
	var trailing []parser.Node
	for p.atSetOperator() {
		op := p.current().Value
		p.advance()
		if p.matchKeyword("ALL") || p.matchKeyword("DISTINCT") {
			op += " " + p.current().Value
			p.advance()
		}
		setOp.Operators = append(setOp.Operators, op)
		setOp.Parts = append(setOp.Parts, branchParts(p.parseBranch())...)
	}
	// ORDER BY / LIMIT after the last branch apply to the whole chain
	for len(setOp.Parts) > 0 {
		c, ok := setOp.Parts[len(setOp.Parts)-1].(*parser.Clause)
		if !ok || (c.Keyword != "ORDER" && c.Keyword != "LIMIT" && c.Keyword != "OFFSET" && c.Keyword != "OPTION") {
			break
		}
		trailing = append([]parser.Node{c}, trailing...)
		setOp.Parts = setOp.Parts[:len(setOp.Parts)-1]
	}
	setOp.Loc = p.spanFrom(start)
	return append([]parser.Node{setOp}, trailing...)
}

// branchParts unwraps a parenthesized branch so set operations always hold
// flat Select/From/Clause parts.
func branchParts(nodes []parser.Node) []parser.Node {
	if len(nodes) == 1 {
		if sub, ok := nodes[0].(*parser.Subquery); ok {
			return sub.Body
		}
	}
	return nodes
}

func (p *Parser) parseBranch() []parser.Node {
	if p.startsParenQuery() {
		return []parser.Node{p.parseSubquery()}
	}
	if !p.matchKeyword("SELECT") {
		return nil
	}
	return p.parseSelectCore()
}

func (p *Parser) parseSelectCore() []parser.Node {
	selTok := p.current()
	p.advance() // skip SELECT
	p.pos = skipSelectModifiers(p.tokens, p.pos)

	sel := &parser.Select{}
	itemStart := p.pos
	depth, caseDepth := 0, 0
	flush := func() {
		if p.pos > itemStart {
			sel.Items = append(sel.Items, classifySelectItem(p.src, p.tokens[itemStart:p.pos]))
		}
	}
	for !p.atEOF() {
		tok := p.current()
		if depth == 0 && (isPunct(tok, ")") || p.atSelectStop(caseDepth)) {
			break
		}
		switch {
		case p.startsParenQuery():
			sel.Nested = append(sel.Nested, p.parseSubquery())
			continue
		case isPunct(tok, "("):
			depth++
		case isPunct(tok, ")"):
			depth--
		case depth == 0 && isPunct(tok, ","):
			flush()
			p.advance()
			itemStart = p.pos
			continue
		case isKW(tok, "CASE"):
			caseDepth++
		case isKW(tok, "END") && caseDepth > 0:
			caseDepth--
		}
		p.advance()
	}
	flush()
	sel.Loc = p.spanFrom(selTok)
	sel.Text = p.src[sel.Loc.StartByte:sel.Loc.EndByte]

	if p.matchKeyword("INTO") {
		p.advance()
		sel.Into = p.readQualifiedName()
		sel.Loc = p.spanFrom(selTok)
	}

	nodes := []parser.Node{sel}
	if p.matchKeyword("FROM") {
		nodes = append(nodes, p.parseFrom())
	}
	for p.atClauseKeyword() {
		nodes = append(nodes, p.parseClause())
	}
	return nodes
}

// parseSubquery reads "( query )" starting at the open paren.
func (p *Parser) parseSubquery() *parser.Subquery {
	open := p.current()
	p.advance() // skip (
	sub := &parser.Subquery{}
	if p.matchKeyword("WITH") {
		sub.Body = append(sub.Body, p.parseQueryStatement())
	} else {
		sub.Body = p.parseQueryBody()
	}
	// skip whatever the query rules left, unterminated subqueries end at
	// the next statement boundary
	leftover := p.current()
	skipped := false
	depth := 0
	for !p.atEOF() && !(depth == 0 && p.matchPunct(")")) && !p.atStatementBoundary() {
		if p.matchPunct("(") {
			depth++
		} else if p.matchPunct(")") {
			depth--
		}
		p.advance()
		skipped = true
	}
	if skipped {
		sub.Body = append(sub.Body, p.errorFrom(leftover))
	}
	if p.matchPunct(")") {
		p.advance()
	}
	sub.Loc = p.spanFrom(open)
	return sub
}

func (p *Parser) parseFrom() *parser.From {
	fromTok := p.current()
	p.advance() // skip FROM
	from := &parser.From{}
	join := false
	// a relation may start here, so "(" opens a join group
	atItem := true
	// open join-grouping parentheses, outermost first
	var groups []Token
	// first and last token of a run nothing could read
	var (
		unread    *Token
		unreadEnd Token
	)
	flush := func() {
		if unread != nil {
			loc := tokenSpan(*unread, unreadEnd)
			from.Items = append(from.Items, &parser.Error{Loc: loc, Text: p.src[loc.StartByte:loc.EndByte]})
			unread = nil
		}
	}

	for !p.atEOF() {
		tok := p.current()
		if p.atClauseKeyword() || p.atSetOperator() || p.atStatementBoundary() || (isPunct(tok, ")") && len(groups) == 0) {
			break
		}
		switch {
		case atItem && isPunct(tok, "(") && !p.startsParenQuery() && !isKW(p.peek(1), "VALUES"):
			flush()
			groups = append(groups, tok)
			p.advance()
			continue
		case isPunct(tok, ")"):
			flush()
			groups = groups[:len(groups)-1]
			p.advance()
			continue
		case isPunct(tok, ","):
			flush()
			join, atItem = false, true
			p.advance()
			continue
		case p.atJoinKeyword():
			flush()
			for p.atJoinKeyword() {
				done := isKW(p.current(), "JOIN") || isKW(p.current(), "APPLY")
				p.advance()
				if done {
					break
				}
			}
			join, atItem = true, true
			continue
		case isKW(tok, "ON"), isKW(tok, "USING"):
			flush()
			p.advance()
			from.Nested = append(from.Nested, p.skipPredicate()...)
			continue
		}
		atItem = false
		rel := p.parseRelation(join)
		if rel == nil {
			if unread == nil {
				unread = &tok
			}
			unreadEnd = tok
			p.advance()
			continue
		}
		flush()
		from.Items = append(from.Items, rel)
	}
	flush()
	if len(groups) > 0 {
		// an unclosed group swallows the rest of the clause
		from.Items = append(from.Items, p.errorFrom(groups[0]))
	}
	from.Loc = p.spanFrom(fromTok)
	return from
}

func (p *Parser) parseRelation(join bool) *parser.Relation {
	start := p.current()
	rel := &parser.Relation{Join: join}

	switch {
	case p.startsParenQuery():
		rel.Subquery = p.parseSubquery()
	case p.matchPunct("("):
		p.skipParens()
	case start.Type == TokenIdent:
		rel.Table = p.readQualifiedName()
		if p.matchPunct("(") {
			p.skipParens() // table-valued function arguments
		}
	default:
		return nil
	}

	p.skipTableHints()
	if p.matchKeyword("AS") {
		p.advance()
		if tok := p.current(); tok.Type == TokenIdent || tok.Type == TokenKeyword {
			rel.Alias = tok.Value
			p.advance()
		}
	} else if tok := p.current(); tok.Type == TokenIdent {
		rel.Alias = tok.Value
		p.advance()
	}
	if rel.Subquery != nil && p.matchPunct("(") {
		p.skipParens() // derived column list
	}
	p.skipTableHints()

	rel.Loc = p.spanFrom(start)
	return rel
}

// skipTableHints steps over WITH (NOLOCK) style hints.
func (p *Parser) skipTableHints() {
	if p.matchKeyword("WITH") && p.peek(1).Type == TokenPunctuation && p.peek(1).Value == "(" {
		p.advance()
		p.skipParens()
	}
}

// skipPredicate consumes a join condition and returns subqueries inside it.
func (p *Parser) skipPredicate() []*parser.Subquery {
	var nested []*parser.Subquery
	depth, caseDepth := 0, 0
	for !p.atEOF() {
		tok := p.current()
		if depth == 0 {
			if isPunct(tok, ",") || isPunct(tok, ")") || p.atJoinKeyword() || p.atClauseKeyword() ||
				p.atSetOperator() || p.atBoundaryKeyword(caseDepth) {
				break
			}
		}
		switch {
		case p.startsParenQuery():
			nested = append(nested, p.parseSubquery())
			continue
		case isPunct(tok, "("):
			depth++
		case isPunct(tok, ")"):
			depth--
		case isKW(tok, "CASE"):
			caseDepth++
		case isKW(tok, "END") && caseDepth > 0:
			caseDepth--
		}
		p.advance()
	}
	return nested
}

func (p *Parser) parseClause() *parser.Clause {
	start := p.current()
	clause := &parser.Clause{Keyword: start.Value}
	p.advance()
	if p.matchKeyword("BY") {
		p.advance()
	}
	depth, caseDepth := 0, 0
	for !p.atEOF() {
		tok := p.current()
		if depth == 0 && (isPunct(tok, ")") || isKW(tok, "FROM") || p.atClauseKeyword() || p.atSetOperator() || p.atBoundaryKeyword(caseDepth)) {
			break
		}
		switch {
		case p.startsParenQuery():
			clause.Nested = append(clause.Nested, p.parseSubquery())
			continue
		case isPunct(tok, "("):
			depth++
		case isPunct(tok, ")"):
			depth--
		case isKW(tok, "CASE"):
			caseDepth++
		case isKW(tok, "END") && caseDepth > 0:
			caseDepth--
		}
		p.advance()
	}
	clause.Loc = p.spanFrom(start)
	clause.Text = p.src[clause.Loc.StartByte:clause.Loc.EndByte]
	return clause
}

func (p *Parser) parseCreate() *parser.Statement {
	start := p.current()
	saved := p.pos
	p.advance() // skip CREATE

	temporary := false
	for p.matchKeyword("TEMP") || p.matchKeyword("TEMPORARY") || strings.EqualFold(p.current().Value, "GLOBAL") ||
		strings.EqualFold(p.current().Value, "LOCAL") || strings.EqualFold(p.current().Value, "UNLOGGED") {
		if p.matchKeyword("TEMP") || p.matchKeyword("TEMPORARY") {
			temporary = true
		}
		p.advance()
	}
	if !p.matchKeyword("TABLE") {
		p.pos = saved // let the generic reader see CREATE again
		return p.parseGeneric(nil)
	}
	p.advance() // skip TABLE
	if p.matchKeyword("IF") { // IF NOT EXISTS
		for !p.atEOF() && !p.matchKeyword("EXISTS") {
			p.advance()
		}
		p.advance()
	}

	ct := &parser.CreateTable{Temporary: temporary}
	ct.Name = p.readQualifiedName()
	if strings.HasPrefix(ct.Name, "#") {
		ct.Temporary = true
	}
	stmt := &parser.Statement{}
	if p.matchPunct("(") {
		p.advance() // skip (
		ct.Columns = p.parseColumnDefs()
	}
	ct.Loc = p.spanFrom(start)
	stmt.Body = append(stmt.Body, ct)

	// CREATE TABLE x AS SELECT ...
	if p.matchKeyword("AS") && p.peek(1).Type == TokenKeyword && p.peek(1).Value == "SELECT" {
		p.advance()
		stmt.Body = append(stmt.Body, p.parseQueryBody()...)
	}
	stmt.Loc = p.spanFrom(start)
	return stmt
}

// parseColumnDefs reads column definitions up to the closing paren.
func (p *Parser) parseColumnDefs() []parser.ColumnDef {
	var cols []parser.ColumnDef
	var pkCols []string

	for !p.atEOF() {
		if p.matchPunct(")") {
			p.advance()
			break
		}
		if p.matchPunct(",") {
			p.advance()
			continue
		}
		tok := p.current()

		// table constraints
		if tok.Type == TokenKeyword && (tok.Value == "CONSTRAINT" || tok.Value == "PRIMARY" ||
			tok.Value == "FOREIGN" || tok.Value == "UNIQUE" || tok.Value == "CHECK" || tok.Value == "INDEX") {
			pkCols = append(pkCols, p.readTableConstraint()...)
			continue
		}

		if tok.Type != TokenIdent && tok.Type != TokenKeyword {
			p.advance()
			continue
		}
		col := parser.ColumnDef{Name: tok.Value}
		p.advance()

		typeStart := p.pos
		depth := 0
		for !p.atEOF() {
			t := p.current()
			if depth == 0 && (isPunct(t, ",") || isPunct(t, ")")) {
				break
			}
			if depth == 0 && t.Type == TokenKeyword && columnOptionKeywords[t.Value] {
				break
			}
			if isPunct(t, "(") {
				depth++
			} else if isPunct(t, ")") {
				depth--
			}
			p.advance()
		}
		if p.pos > typeStart {
			col.Type = strings.TrimSpace(p.src[p.tokens[typeStart].Offset:p.tokens[p.pos-1].End])
		}

		// column options up to the next comma or the closing paren
		depth = 0
		var prev Token
		for !p.atEOF() {
			t := p.current()
			if depth == 0 && (isPunct(t, ",") || isPunct(t, ")")) {
				break
			}
			switch {
			case isPunct(t, "("):
				depth++
			case isPunct(t, ")"):
				depth--
			case isKW(t, "NULL") && isKW(prev, "NOT"):
				col.NotNull = true
			case isKW(t, "KEY") && isKW(prev, "PRIMARY"):
				col.PrimaryKey = true
				col.NotNull = true
			}
			prev = t
			p.advance()
		}
		cols = append(cols, col)
	}

	for _, pk := range pkCols {
		for i := range cols {
			if strings.EqualFold(cols[i].Name, pk) {
				cols[i].PrimaryKey = true
				cols[i].NotNull = true
			}
		}
	}
	return cols
}

var columnOptionKeywords = map[string]bool{
	"NOT": true, "NULL": true, "PRIMARY": true, "DEFAULT": true, "IDENTITY": true,
	"CONSTRAINT": true, "REFERENCES": true, "UNIQUE": true, "CHECK": true,
}

// readTableConstraint skips one table-level constraint and returns the
// columns of a PRIMARY KEY, if that is what it was.
func (p *Parser) readTableConstraint() []string {
	var pk []string
	isPK := false
	var prev Token
	for !p.atEOF() {
		t := p.current()
		if isPunct(t, ",") || isPunct(t, ")") {
			break
		}
		if isKW(t, "KEY") && isKW(prev, "PRIMARY") {
			isPK = true
		}
		if isPunct(t, "(") {
			if isPK && pk == nil {
				pk = p.readNameList()
				prev = Token{}
				continue
			}
			p.skipParens()
			prev = Token{}
			continue
		}
		prev = t
		p.advance()
	}
	return pk
}

// parseGeneric reads a statement this reader has no dedicated rule for,
// keeping any FROM clauses, nested queries and INSERT ... SELECT bodies.
func (p *Parser) parseGeneric(stmt *parser.Statement) *parser.Statement {
	start := p.current()
	if stmt == nil {
		stmt = &parser.Statement{}
	}
	lead := start.Value
	p.advance()
	// INSERT ... SELECT and CREATE VIEW ... AS SELECT carry a query body
	allowSelect := lead == "INSERT" || lead == "CREATE" || lead == "ALTER"
	allowSet := lead == "UPDATE"

	for !p.atEOF() {
		tok := p.current()
		if tok.Type == TokenGO || isPunct(tok, ";") {
			break
		}
		switch {
		case isKW(tok, "FROM"):
			stmt.Body = append(stmt.Body, p.parseFrom())
			continue
		case isKW(tok, "WHERE"):
			stmt.Body = append(stmt.Body, p.parseClause())
			continue
		case isKW(tok, "SET") && allowSet:
			stmt.Body = append(stmt.Body, p.parseClause())
			allowSet = false
			continue
		case isKW(tok, "SELECT") && allowSelect:
			stmt.Body = append(stmt.Body, p.parseQueryBody()...)
			allowSelect = false
			continue
		case p.startsParenQuery():
			stmt.Body = append(stmt.Body, p.parseSubquery())
			continue
		case isKW(tok, "WITH") && allowSelect && p.peek(1).Type == TokenIdent:
			nested := p.parseQueryStatement()
			stmt.Body = append(stmt.Body, nested)
			allowSelect = false
			continue
		case statementStarters[tok.Value] && tok.Type == TokenKeyword:
			stmt.Loc = p.spanFrom(start)
			return stmt
		}
		p.advance()
	}
	stmt.Loc = p.spanFrom(start)
	return stmt
}

// Helper methods

func (p *Parser) current() Token {
	if p.pos >= len(p.tokens) {
		return p.tokens[len(p.tokens)-1]
	}
	return p.tokens[p.pos]
}

func (p *Parser) peek(n int) Token {
	if p.pos+n >= len(p.tokens) {
		return p.tokens[len(p.tokens)-1]
	}
	return p.tokens[p.pos+n]
}

func (p *Parser) advance() {
	if p.pos < len(p.tokens) {
		if p.tokens[p.pos].Type != TokenEOF {
			p.last = p.tokens[p.pos]
		}
		p.pos++
	}
}

func (p *Parser) atEOF() bool {
	return p.current().Type == TokenEOF
}

func (p *Parser) matchKeyword(kw string) bool {
	return isKW(p.current(), kw)
}

func (p *Parser) matchPunct(val string) bool {
	return isPunct(p.current(), val)
}

func (p *Parser) startsParenQuery() bool {
	if !p.matchPunct("(") {
		return false
	}
	next := p.peek(1)
	return isKW(next, "SELECT") || isKW(next, "WITH") || (isPunct(next, "(") && isKW(p.peek(2), "SELECT"))
}

func (p *Parser) atSetOperator() bool {
	return p.matchKeyword("UNION") || p.matchKeyword("INTERSECT") || p.matchKeyword("EXCEPT")
}

var clauseKeywords = map[string]bool{
	"WHERE": true, "GROUP": true, "HAVING": true, "ORDER": true, "LIMIT": true,
	"OFFSET": true, "OPTION": true, "WINDOW": true, "QUALIFY": true, "FOR": true,
}

func (p *Parser) atClauseKeyword() bool {
	tok := p.current()
	return tok.Type == TokenKeyword && clauseKeywords[tok.Value]
}

var joinKeywords = map[string]bool{
	"JOIN": true, "INNER": true, "LEFT": true, "RIGHT": true, "FULL": true,
	"OUTER": true, "CROSS": true, "NATURAL": true, "APPLY": true,
}

func (p *Parser) atJoinKeyword() bool {
	tok := p.current()
	if tok.Type != TokenKeyword || !joinKeywords[tok.Value] {
		return false
	}
	// LEFT(...) and RIGHT(...) are string functions
	if (tok.Value == "LEFT" || tok.Value == "RIGHT") && isPunct(p.peek(1), "(") {
		return false
	}
	return true
}

var statementStarters = map[string]bool{
	"SELECT": true, "INSERT": true, "UPDATE": true, "DELETE": true, "MERGE": true,
	"CREATE": true, "ALTER": true, "DROP": true, "DECLARE": true, "EXEC": true,
	"EXECUTE": true, "IF": true, "WHILE": true, "BEGIN": true, "END": true,
	"RETURN": true, "TRUNCATE": true, "USE": true, "SET": true, "ELSE": true,
	"FETCH": true, "OPEN": true, "CLOSE": true, "DEALLOCATE": true, "THROW": true,
}

// atBoundaryKeyword reports whether the current token starts a new statement.
// END closes a CASE while caseDepth > 0.
func (p *Parser) atBoundaryKeyword(caseDepth int) bool {
	tok := p.current()
	if tok.Type == TokenGO || isPunct(tok, ";") {
		return true
	}
	if tok.Type != TokenKeyword || !statementStarters[tok.Value] {
		return false
	}
	if (tok.Value == "END" || tok.Value == "ELSE") && caseDepth > 0 {
		return false
	}
	// SET inside UPDATE is consumed by the UPDATE rule before we get here
	return true
}

func (p *Parser) atStatementBoundary() bool {
	return p.atBoundaryKeyword(0)
}

func (p *Parser) atSelectStop(caseDepth int) bool {
	tok := p.current()
	if tok.Type == TokenKeyword {
		switch tok.Value {
		case "FROM", "INTO", "UNION", "INTERSECT", "EXCEPT":
			return true
		}
	}
	return p.atClauseKeyword() || p.atBoundaryKeyword(caseDepth)
}

func (p *Parser) readQualifiedName() string {
	tok := p.current()
	if tok.Type != TokenIdent && tok.Type != TokenKeyword {
		return ""
	}

	var b strings.Builder
	b.WriteString(tok.Raw)
	p.advance()

	for p.matchPunct(".") {
		b.WriteByte('.')
		p.advance() // skip .
		tok = p.current()
		if tok.Type == TokenIdent || tok.Type == TokenKeyword {
			b.WriteString(tok.Raw)
			p.advance()
		} else if !p.matchPunct(".") { // db..table keeps the empty schema
			break
		}
	}
	return b.String()
}

// readNameList reads "( a, b, c )" and returns the names.
func (p *Parser) readNameList() []string {
	var names []string
	p.advance() // skip (
	for !p.atEOF() && !p.matchPunct(")") {
		tok := p.current()
		if tok.Type == TokenIdent || tok.Type == TokenKeyword {
			names = append(names, tok.Value)
		}
		p.advance()
		// ASC/DESC and other modifiers are skipped with the rest
		for !p.atEOF() && !p.matchPunct(",") && !p.matchPunct(")") {
			p.advance()
		}
		if p.matchPunct(",") {
			p.advance()
		}
	}
	if p.matchPunct(")") {
		p.advance()
	}
	return names
}

func (p *Parser) skipParens() {
	depth := 1
	p.advance() // skip (
	for !p.atEOF() && depth > 0 {
		if p.matchPunct("(") {
			depth++
		} else if p.matchPunct(")") {
			depth--
		}
		p.advance()
	}
}

// errorFrom marks start through the last consumed token as a region no
// rule could read.
func (p *Parser) errorFrom(start Token) *parser.Error {
	loc := p.spanFrom(start)
	return &parser.Error{Loc: loc, Text: p.src[loc.StartByte:loc.EndByte]}
}

// spanFrom builds the span from start through the last consumed token.
func (p *Parser) spanFrom(start Token) parser.Span {
	end := p.last
	if end.End < start.Offset {
		end = start
	}
	return tokenSpan(start, end)
}

func significantKeepGO(tokens []Token) []Token {
	out := make([]Token, 0, len(tokens))
	for _, t := range tokens {
		if t.Type == TokenComment || t.Type == TokenNewline {
			continue
		}
		out = append(out, t)
	}
	return out
}
