package parser

import (
	"github.com/conduit-lang/pipegraph/internal/compiler/ast"
	"github.com/conduit-lang/pipegraph/internal/compiler/lexer"
)

// compoundKeywords open statements with an indented body
var compoundKeywords = map[string]bool{
	"if": true, "for": true, "while": true, "with": true, "try": true,
}

// continuationKeywords extend a compound statement with another clause
var continuationKeywords = map[string]bool{
	"elif": true, "else": true, "except": true, "finally": true,
}

// Parser transforms a stream of tokens into a syntax tree
type Parser struct {
	tokens  []lexer.Token
	current int
	errors  []ParseError
}

// New creates a new parser for the given token stream
func New(tokens []lexer.Token) *Parser {
	return &Parser{
		tokens:  tokens,
		current: 0,
		errors:  make([]ParseError, 0),
	}
}

// ParseSource lexes and parses source. Lexical errors are returned as parse
// errors and stop parsing.
func ParseSource(source string) (*ast.Module, []ParseError) {
	tokens, lexErrors := lexer.New(source).ScanTokens()
	if len(lexErrors) > 0 {
		errs := make([]ParseError, 0, len(lexErrors))
		for _, le := range lexErrors {
			errs = append(errs, fromLexError(le))
		}
		return &ast.Module{Source: source}, errs
	}

	module, errs := New(tokens).Parse()
	module.Source = source
	return module, errs
}

// CheckBlock parses text as a dedented block of statements and returns the
// first error, if any. Raw statements that do not form a statement count
// as errors here.
func CheckBlock(text string) *ParseError {
	module, errs := ParseSource(text)
	if len(errs) > 0 {
		return &errs[0]
	}
	if raw := FirstInvalidRaw(module.Statements); raw != nil {
		perr := NewParseError(raw.Problem, raw.ProblemToken)
		return &perr
	}
	return nil
}

// Parse parses the token stream and returns the syntax tree and any errors
func (p *Parser) Parse() (*ast.Module, []ParseError) {
	module := &ast.Module{
		Statements: p.parseStatements(false),
	}
	return module, p.errors
}

// parseStatements parses statements until EOF, or until the closing DEDENT
// of the current block when inBlock is set.
func (p *Parser) parseStatements(inBlock bool) []ast.StmtNode {
	stmts := make([]ast.StmtNode, 0)

	for !p.isAtEnd() {
		if p.check(lexer.TOKEN_DEDENT) {
			if inBlock {
				break
			}
			p.advance()
			continue
		}
		if p.match(lexer.TOKEN_NEWLINE) {
			continue
		}
		if p.check(lexer.TOKEN_INDENT) {
			p.error(p.peek(), "Unexpected indent")
			p.advance()
			p.skipBlock()
			continue
		}

		stmts = append(stmts, p.parseStatement()...)
	}

	return stmts
}

// parseStatement parses one logical line or compound statement
func (p *Parser) parseStatement() []ast.StmtNode {
	switch {
	case p.check(lexer.TOKEN_AT):
		return one(p.parseDecorated())
	case p.check(lexer.TOKEN_CLASS):
		return one(p.parseClass(nil, p.peek()))
	case p.check(lexer.TOKEN_DEF):
		return one(p.parseFunction(nil, p.peek()))
	case p.check(lexer.TOKEN_ASYNC) && p.checkNext(lexer.TOKEN_DEF):
		return one(p.parseFunction(nil, p.peek()))
	case p.check(lexer.TOKEN_ASYNC) && p.checkNext(lexer.TOKEN_KEYWORD):
		return one(p.parseCompound())
	case p.check(lexer.TOKEN_KEYWORD) && compoundKeywords[p.peek().Lexeme]:
		return one(p.parseCompound())
	}
	return p.parseSimpleStatements()
}

// one wraps a possibly nil statement into a slice
func one(stmt ast.StmtNode) []ast.StmtNode {
	if stmt == nil {
		return nil
	}
	return []ast.StmtNode{stmt}
}

// parseDecorated parses decorators followed by a class or function
func (p *Parser) parseDecorated() ast.StmtNode {
	start := p.peek()
	decorators := make([]ast.ExprNode, 0)

	for p.match(lexer.TOKEN_AT) {
		expr := p.parseNamedExpression()
		if expr == nil {
			p.recoverStatement()
			return nil
		}
		decorators = append(decorators, expr)
		if !p.match(lexer.TOKEN_NEWLINE) {
			p.error(p.peek(), "Expected newline after decorator")
			p.recoverStatement()
			return nil
		}
	}

	switch {
	case p.check(lexer.TOKEN_CLASS):
		return p.parseClass(decorators, start)
	case p.check(lexer.TOKEN_DEF), p.check(lexer.TOKEN_ASYNC):
		return p.parseFunction(decorators, start)
	}

	p.error(p.peek(), "Expected class or function definition after decorator")
	p.recoverStatement()
	return nil
}

// parseClass parses a class declaration
func (p *Parser) parseClass(decorators []ast.ExprNode, start lexer.Token) ast.StmtNode {
	p.advance() // class

	nameToken := p.consume(lexer.TOKEN_IDENTIFIER, "Expected class name")
	if nameToken.Type == lexer.TOKEN_ERROR {
		p.recoverStatement()
		return nil
	}

	class := &ast.ClassDef{
		Name:       nameToken.Lexeme,
		Bases:      make([]ast.ExprNode, 0),
		Keywords:   make([]*ast.Keyword, 0),
		Decorators: decorators,
		NameLoc:    ast.TokenLocation(nameToken),
	}

	if p.match(lexer.TOKEN_LPAREN) {
		args, keywords, ok := p.parseArguments()
		if !ok {
			p.recoverStatement()
			return nil
		}
		class.Bases = args
		class.Keywords = keywords
	}

	if p.consume(lexer.TOKEN_COLON, "Expected ':' after class header").Type == lexer.TOKEN_ERROR {
		p.recoverStatement()
		return nil
	}

	body, _, ok := p.parseBlock()
	if !ok {
		return nil
	}

	if len(body) > 0 {
		if stmt, isExpr := body[0].(*ast.ExprStmt); isExpr {
			if doc, isString := stmt.Expr.(*ast.StringLit); isString {
				class.Docstring = doc
				body = body[1:]
			}
		}
	}
	class.Body = body
	class.Pos = p.stmtPos(start)

	return class
}

// parseFunction parses a def or async def declaration
func (p *Parser) parseFunction(decorators []ast.ExprNode, start lexer.Token) ast.StmtNode {
	fn := &ast.FunctionDef{
		Params:     make([]*ast.Param, 0),
		Decorators: decorators,
	}

	if p.match(lexer.TOKEN_ASYNC) {
		fn.Async = true
	}
	if p.consume(lexer.TOKEN_DEF, "Expected 'def'").Type == lexer.TOKEN_ERROR {
		p.recoverStatement()
		return nil
	}

	nameToken := p.consume(lexer.TOKEN_IDENTIFIER, "Expected function name")
	if nameToken.Type == lexer.TOKEN_ERROR {
		p.recoverStatement()
		return nil
	}
	fn.Name = nameToken.Lexeme

	if p.consume(lexer.TOKEN_LPAREN, "Expected '(' after function name").Type == lexer.TOKEN_ERROR {
		p.recoverStatement()
		return nil
	}

	params, ok := p.parseParams(lexer.TOKEN_RPAREN, true)
	if !ok {
		p.recoverStatement()
		return nil
	}
	fn.Params = params
	p.advance() // )

	if p.match(lexer.TOKEN_ARROW) {
		fn.Returns = p.parseExpression()
		if fn.Returns == nil {
			p.recoverStatement()
			return nil
		}
	}

	if p.consume(lexer.TOKEN_COLON, "Expected ':' after function signature").Type == lexer.TOKEN_ERROR {
		p.recoverStatement()
		return nil
	}

	body, span, ok := p.parseBlock()
	if !ok {
		return nil
	}
	fn.Body = body
	fn.BodySpan = span
	fn.Pos = p.stmtPos(start)

	return fn
}

// parseParams parses a parameter list up to (not including) the closing
// token. Annotations are only allowed in def signatures.
func (p *Parser) parseParams(closing lexer.TokenType, annotated bool) ([]*ast.Param, bool) {
	params := make([]*ast.Param, 0)

	for !p.check(closing) && !p.isAtEnd() {
		// Positional-only and keyword-only markers
		if p.check(lexer.TOKEN_SLASH) {
			p.advance()
		} else if p.check(lexer.TOKEN_STAR) && (p.checkNext(lexer.TOKEN_COMMA) || p.checkNext(closing)) {
			p.advance()
		} else {
			param := &ast.Param{}
			if p.match(lexer.TOKEN_STAR) {
				param.Prefix = "*"
			} else if p.match(lexer.TOKEN_DOUBLE_STAR) {
				param.Prefix = "**"
			}

			nameToken := p.consume(lexer.TOKEN_IDENTIFIER, "Expected parameter name")
			if nameToken.Type == lexer.TOKEN_ERROR {
				return nil, false
			}
			param.Name = nameToken.Lexeme
			param.Loc = ast.TokenLocation(nameToken)

			if annotated && p.match(lexer.TOKEN_COLON) {
				param.Annotation = p.parseExpression()
				if param.Annotation == nil {
					return nil, false
				}
			}
			if p.match(lexer.TOKEN_EQUALS) {
				param.Default = p.parseExpression()
				if param.Default == nil {
					return nil, false
				}
			}
			params = append(params, param)
		}

		if !p.match(lexer.TOKEN_COMMA) {
			break
		}
	}

	if !p.check(closing) {
		p.error(p.peek(), "Expected ',' or closing delimiter in parameter list")
		return nil, false
	}
	return params, true
}

// parseCompound parses if/for/while/with/try statements with their
// continuation clauses
func (p *Parser) parseCompound() ast.StmtNode {
	start := p.peek()
	stmt := &ast.CompoundStmt{Clauses: make([]*ast.Clause, 0)}

	for {
		clauseToken := p.peek()
		if p.match(lexer.TOKEN_ASYNC) {
			clauseToken = p.peek()
		}
		p.advance() // keyword

		if !p.skipHeader() {
			p.recoverStatement()
			return nil
		}

		body, _, ok := p.parseBlock()
		if !ok {
			return nil
		}
		stmt.Clauses = append(stmt.Clauses, &ast.Clause{
			Keyword: clauseToken.Lexeme,
			Body:    body,
			Loc:     ast.TokenLocation(clauseToken),
		})

		if !p.check(lexer.TOKEN_KEYWORD) || !continuationKeywords[p.peek().Lexeme] {
			break
		}
	}

	stmt.Pos = p.stmtPos(start)
	return stmt
}

// skipHeader advances past a compound statement header up to and
// including its ':'
func (p *Parser) skipHeader() bool {
	depth := 0
	for !p.isAtEnd() && !p.check(lexer.TOKEN_NEWLINE) {
		tok := p.advance()
		switch tok.Type {
		case lexer.TOKEN_LPAREN, lexer.TOKEN_LBRACKET, lexer.TOKEN_LBRACE:
			depth++
		case lexer.TOKEN_RPAREN, lexer.TOKEN_RBRACKET, lexer.TOKEN_RBRACE:
			depth--
		case lexer.TOKEN_COLON:
			if depth == 0 {
				return true
			}
		}
	}
	p.error(p.peek(), "Expected ':' at end of statement header")
	return false
}

// parseBlock parses the body following a ':' either as an indented block
// or as simple statements on the same line
func (p *Parser) parseBlock() ([]ast.StmtNode, ast.Span, bool) {
	if !p.match(lexer.TOKEN_NEWLINE) {
		start := p.peek().Offset
		body := p.parseSimpleStatements()
		return body, ast.Span{Start: start, End: p.lastEnd()}, true
	}

	// The body starts on the line after the header so leading comments
	// are kept
	start := p.previous().End

	if !p.check(lexer.TOKEN_INDENT) {
		p.error(p.peek(), "Expected an indented block")
		return nil, ast.Span{}, false
	}
	p.advance()

	body := p.parseStatements(true)
	span := ast.Span{Start: start, End: p.lastEnd()}
	p.match(lexer.TOKEN_DEDENT)

	return body, span, true
}

// parseSimpleStatements parses `stmt (; stmt)* NEWLINE`
func (p *Parser) parseSimpleStatements() []ast.StmtNode {
	stmts := make([]ast.StmtNode, 0, 1)

	for {
		stmts = append(stmts, p.parseSimpleStatement())
		if !p.match(lexer.TOKEN_SEMICOLON) {
			break
		}
		if p.check(lexer.TOKEN_NEWLINE) || p.isAtEnd() {
			break
		}
	}

	// A raw statement may already have consumed its own indented block
	if p.previous().Type == lexer.TOKEN_DEDENT {
		return stmts
	}
	if !p.match(lexer.TOKEN_NEWLINE) && !p.isAtEnd() && !p.check(lexer.TOKEN_DEDENT) {
		p.error(p.peek(), "Expected end of statement")
		p.recoverStatement()
	}

	return stmts
}

// parseSimpleStatement parses one simple statement. Anything outside the
// modelled subset is rewound and kept as a RawStmt.
func (p *Parser) parseSimpleStatement() ast.StmtNode {
	start := p.current
	errCount := len(p.errors)

	stmt := p.trySimpleStatement()
	if stmt != nil && len(p.errors) == errCount && p.atStatementEnd() {
		return stmt
	}

	p.current = start
	p.errors = p.errors[:errCount]
	return p.parseRawStatement()
}

// trySimpleStatement attempts to parse a modelled simple statement
func (p *Parser) trySimpleStatement() ast.StmtNode {
	start := p.peek()

	switch {
	case p.match(lexer.TOKEN_PASS):
		return &ast.PassStmt{Pos: p.pos(start)}
	case p.match(lexer.TOKEN_RETURN):
		ret := &ast.ReturnStmt{}
		if !p.atStatementEnd() {
			ret.Value = p.parseExpressionList()
			if ret.Value == nil {
				return nil
			}
		}
		ret.Pos = p.pos(start)
		return ret
	case p.check(lexer.TOKEN_IMPORT):
		return p.parseImport()
	case p.check(lexer.TOKEN_FROM):
		return p.parseFromImport()
	case p.check(lexer.TOKEN_KEYWORD) && p.peek().Lexeme != "not" &&
		p.peek().Lexeme != "await" && p.peek().Lexeme != "lambda":
		// del, raise, assert, global, ... are kept verbatim
		return nil
	}

	expr := p.parseExpressionList()
	if expr == nil {
		return nil
	}

	if p.match(lexer.TOKEN_COLON) {
		ann := &ast.AnnAssignStmt{Target: expr}
		ann.Annotation = p.parseExpression()
		if ann.Annotation == nil {
			return nil
		}
		if p.match(lexer.TOKEN_EQUALS) {
			ann.Value = p.parseExpressionList()
			if ann.Value == nil {
				return nil
			}
		}
		ann.Pos = p.pos(start)
		return ann
	}

	if p.check(lexer.TOKEN_EQUALS) {
		targets := []ast.ExprNode{expr}
		var value ast.ExprNode
		for p.match(lexer.TOKEN_EQUALS) {
			value = p.parseExpressionList()
			if value == nil {
				return nil
			}
			targets = append(targets, value)
		}
		return &ast.AssignStmt{
			Targets: targets[:len(targets)-1],
			Value:   value,
			Pos:     p.pos(start),
		}
	}

	return &ast.ExprStmt{Expr: expr, Pos: p.pos(start)}
}

// parseImport parses `import a.b as c, d`
func (p *Parser) parseImport() ast.StmtNode {
	start := p.advance()
	stmt := &ast.ImportStmt{Names: make([]ast.ImportName, 0)}

	for {
		name, ok := p.parseDottedName()
		if !ok {
			return nil
		}
		imported := ast.ImportName{Name: name}
		if p.match(lexer.TOKEN_AS) {
			alias := p.consume(lexer.TOKEN_IDENTIFIER, "Expected alias after 'as'")
			if alias.Type == lexer.TOKEN_ERROR {
				return nil
			}
			imported.Alias = alias.Lexeme
		}
		stmt.Names = append(stmt.Names, imported)
		if !p.match(lexer.TOKEN_COMMA) {
			break
		}
	}

	stmt.Pos = p.pos(start)
	return stmt
}

// parseFromImport parses `from .mod import (a as b, c)` and star imports
func (p *Parser) parseFromImport() ast.StmtNode {
	start := p.advance()
	stmt := &ast.ImportStmt{From: true, Names: make([]ast.ImportName, 0)}

	module := ""
	for p.check(lexer.TOKEN_DOT) || p.check(lexer.TOKEN_ELLIPSIS) {
		module += p.advance().Lexeme
	}
	if p.check(lexer.TOKEN_IDENTIFIER) {
		name, ok := p.parseDottedName()
		if !ok {
			return nil
		}
		module += name
	}
	if module == "" {
		p.error(p.peek(), "Expected module name after 'from'")
		return nil
	}
	stmt.Module = module

	if p.consume(lexer.TOKEN_IMPORT, "Expected 'import'").Type == lexer.TOKEN_ERROR {
		return nil
	}

	if p.match(lexer.TOKEN_STAR) {
		stmt.Names = append(stmt.Names, ast.ImportName{Name: "*"})
		stmt.Pos = p.pos(start)
		return stmt
	}

	parenthesized := p.match(lexer.TOKEN_LPAREN)
	for {
		nameToken := p.consume(lexer.TOKEN_IDENTIFIER, "Expected imported name")
		if nameToken.Type == lexer.TOKEN_ERROR {
			return nil
		}
		imported := ast.ImportName{Name: nameToken.Lexeme}
		if p.match(lexer.TOKEN_AS) {
			alias := p.consume(lexer.TOKEN_IDENTIFIER, "Expected alias after 'as'")
			if alias.Type == lexer.TOKEN_ERROR {
				return nil
			}
			imported.Alias = alias.Lexeme
		}
		stmt.Names = append(stmt.Names, imported)

		if !p.match(lexer.TOKEN_COMMA) {
			break
		}
		if parenthesized && p.check(lexer.TOKEN_RPAREN) {
			break
		}
	}

	if parenthesized && p.consume(lexer.TOKEN_RPAREN, "Expected ')' after imported names").Type == lexer.TOKEN_ERROR {
		return nil
	}

	stmt.Pos = p.pos(start)
	return stmt
}

// parseDottedName parses `a.b.c`
func (p *Parser) parseDottedName() (string, bool) {
	first := p.consume(lexer.TOKEN_IDENTIFIER, "Expected module name")
	if first.Type == lexer.TOKEN_ERROR {
		return "", false
	}
	name := first.Lexeme
	for p.check(lexer.TOKEN_DOT) && p.checkNext(lexer.TOKEN_IDENTIFIER) {
		p.advance()
		name += "." + p.advance().Lexeme
	}
	return name, true
}

// parseRawStatement consumes the rest of the logical line, plus any
// indented block that follows it, as verbatim text
func (p *Parser) parseRawStatement() ast.StmtNode {
	start := p.peek()
	first := p.current

	for !p.isAtEnd() && !p.check(lexer.TOKEN_NEWLINE) {
		p.advance()
	}
	if p.check(lexer.TOKEN_NEWLINE) && p.checkNext(lexer.TOKEN_INDENT) {
		p.advance() // NEWLINE
		p.advance() // INDENT
		p.skipBlock()
	}

	raw := &ast.RawStmt{Pos: p.stmtPos(start)}
	if tok, problem := checkRawTokens(p.tokens[first:p.current]); problem != "" {
		raw.Problem = problem
		raw.ProblemToken = tok
	}
	return raw
}

// skipBlock skips tokens until the DEDENT matching an INDENT that was just
// consumed
func (p *Parser) skipBlock() {
	depth := 1
	for !p.isAtEnd() && depth > 0 {
		switch p.advance().Type {
		case lexer.TOKEN_INDENT:
			depth++
		case lexer.TOKEN_DEDENT:
			depth--
		}
	}
}

// recoverStatement discards the rest of a malformed statement, including
// its indented body
func (p *Parser) recoverStatement() {
	for !p.isAtEnd() && !p.check(lexer.TOKEN_NEWLINE) {
		p.advance()
	}
	p.match(lexer.TOKEN_NEWLINE)
	if p.match(lexer.TOKEN_INDENT) {
		p.skipBlock()
	}
}

// atStatementEnd reports whether the current token ends a simple statement
func (p *Parser) atStatementEnd() bool {
	return p.isAtEnd() ||
		p.check(lexer.TOKEN_NEWLINE) ||
		p.check(lexer.TOKEN_SEMICOLON) ||
		p.check(lexer.TOKEN_DEDENT)
}

// Positions

// pos builds a node position from start to the last consumed token
func (p *Parser) pos(start lexer.Token) ast.Pos {
	return ast.Pos{
		Loc:   ast.TokenLocation(start),
		Start: start.Offset,
		End:   p.previous().End,
	}
}

// stmtPos is like pos but ignores trailing structural tokens
func (p *Parser) stmtPos(start lexer.Token) ast.Pos {
	return ast.Pos{
		Loc:   ast.TokenLocation(start),
		Start: start.Offset,
		End:   p.lastEnd(),
	}
}

// lastEnd returns the end offset of the last consumed token that carries
// source text
func (p *Parser) lastEnd() int {
	for i := p.current - 1; i >= 0; i-- {
		switch p.tokens[i].Type {
		case lexer.TOKEN_NEWLINE, lexer.TOKEN_INDENT, lexer.TOKEN_DEDENT, lexer.TOKEN_EOF:
			continue
		}
		return p.tokens[i].End
	}
	return 0
}

// Token stream navigation

// peek returns the current token without advancing
func (p *Parser) peek() lexer.Token {
	if len(p.tokens) == 0 {
		return lexer.Token{Type: lexer.TOKEN_EOF}
	}
	if p.current >= len(p.tokens) {
		return p.tokens[len(p.tokens)-1]
	}
	return p.tokens[p.current]
}

// peekNext returns the token after the current one
func (p *Parser) peekNext() lexer.Token {
	if p.current+1 >= len(p.tokens) {
		return lexer.Token{Type: lexer.TOKEN_EOF}
	}
	return p.tokens[p.current+1]
}

// previous returns the most recently consumed token
func (p *Parser) previous() lexer.Token {
	if len(p.tokens) == 0 || p.current == 0 {
		return lexer.Token{Type: lexer.TOKEN_EOF}
	}
	return p.tokens[p.current-1]
}

// advance consumes the current token and returns it
func (p *Parser) advance() lexer.Token {
	if !p.isAtEnd() {
		p.current++
	}
	return p.previous()
}

// check returns true if the current token matches the given type
func (p *Parser) check(tokenType lexer.TokenType) bool {
	if p.isAtEnd() {
		return false
	}
	return p.peek().Type == tokenType
}

// checkNext returns true if the token after the current one matches
func (p *Parser) checkNext(tokenType lexer.TokenType) bool {
	return p.peekNext().Type == tokenType
}

// checkKeyword returns true if the current token is the reserved word
func (p *Parser) checkKeyword(word string) bool {
	return p.check(lexer.TOKEN_KEYWORD) && p.peek().Lexeme == word
}

// matchKeyword consumes the reserved word if present
func (p *Parser) matchKeyword(word string) bool {
	if p.checkKeyword(word) {
		p.advance()
		return true
	}
	return false
}

// match consumes the token if it matches any of the given types
func (p *Parser) match(types ...lexer.TokenType) bool {
	for _, t := range types {
		if p.check(t) {
			p.advance()
			return true
		}
	}
	return false
}

// consume advances if the next token matches, otherwise reports an error
func (p *Parser) consume(tokenType lexer.TokenType, message string) lexer.Token {
	if p.check(tokenType) {
		return p.advance()
	}

	p.error(p.peek(), message)
	return lexer.Token{Type: lexer.TOKEN_ERROR}
}

// isAtEnd returns true if we've reached the end of the token stream
func (p *Parser) isAtEnd() bool {
	return p.current >= len(p.tokens) || p.tokens[p.current].Type == lexer.TOKEN_EOF
}

// error records a parse error
func (p *Parser) error(token lexer.Token, message string) {
	p.errors = append(p.errors, NewParseError(message, token))
}
