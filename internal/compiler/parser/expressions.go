package parser

import (
	"github.com/conduit-lang/pipegraph/internal/compiler/ast"
	"github.com/conduit-lang/pipegraph/internal/compiler/lexer"
)

// Expression parsing by precedence climbing
//
// Expression grammar (from lowest to highest precedence):
// exprlist   → starred ( "," starred )* ","?
// expression → lambda | disjunction ( "if" disjunction "else" expression )?
// disjunction→ conjunction ( "or" conjunction )*
// conjunction→ inversion ( "and" inversion )*
// inversion  → "not" inversion | comparison
// comparison → bitor ( compop bitor )*
// bitor      → bitxor ( "|" bitxor )*
// bitxor     → bitand ( "^" bitand )*
// bitand     → shift ( "&" shift )*
// shift      → arith ( ( "<<" | ">>" ) arith )*
// arith      → term ( ( "+" | "-" ) term )*
// term       → factor ( ( "*" | "/" | "//" | "%" | "@" ) factor )*
// factor     → ( "+" | "-" | "~" ) factor | power
// power      → await ( "**" factor )?
// await      → "await" primary | primary
// primary    → atom ( "." NAME | "(" args ")" | "[" subscript "]" )*

// parseExpressionList parses a bare tuple or a single expression
func (p *Parser) parseExpressionList() ast.ExprNode {
	start := p.peek()
	first := p.parseStarredOrNamed()
	if first == nil {
		return nil
	}
	if !p.check(lexer.TOKEN_COMMA) {
		return first
	}

	elements := []ast.ExprNode{first}
	for p.match(lexer.TOKEN_COMMA) {
		if p.atExpressionListEnd() {
			break
		}
		elem := p.parseStarredOrNamed()
		if elem == nil {
			return nil
		}
		elements = append(elements, elem)
	}

	return &ast.TupleExpr{Elements: elements, Pos: p.pos(start)}
}

// atExpressionListEnd reports whether a trailing comma ended the list
func (p *Parser) atExpressionListEnd() bool {
	return p.atStatementEnd() ||
		p.check(lexer.TOKEN_EQUALS) ||
		p.check(lexer.TOKEN_COLON) ||
		p.check(lexer.TOKEN_RPAREN) ||
		p.check(lexer.TOKEN_RBRACKET) ||
		p.check(lexer.TOKEN_RBRACE)
}

// parseStarredOrNamed parses `*expr` or a (possibly walrus) expression
func (p *Parser) parseStarredOrNamed() ast.ExprNode {
	if p.check(lexer.TOKEN_STAR) {
		start := p.advance()
		value := p.parseBitOr()
		if value == nil {
			return nil
		}
		return &ast.StarredExpr{Prefix: "*", Value: value, Pos: p.pos(start)}
	}
	return p.parseNamedExpression()
}

// parseNamedExpression parses `name := expr` or a plain expression
func (p *Parser) parseNamedExpression() ast.ExprNode {
	expr := p.parseExpression()
	if expr == nil {
		return nil
	}
	if p.match(lexer.TOKEN_WALRUS) {
		value := p.parseExpression()
		if value == nil {
			return nil
		}
		return &ast.NamedExpr{Target: expr, Value: value, Pos: p.spanFrom(expr)}
	}
	return expr
}

// parseExpression is the entry point for a single expression
func (p *Parser) parseExpression() ast.ExprNode {
	if p.checkKeyword("lambda") {
		return p.parseLambda()
	}

	expr := p.parseOr()
	if expr == nil {
		return nil
	}

	if p.matchKeyword("if") {
		test := p.parseOr()
		if test == nil {
			return nil
		}
		if !p.matchKeyword("else") {
			p.error(p.peek(), "Expected 'else' in conditional expression")
			return nil
		}
		orElse := p.parseExpression()
		if orElse == nil {
			return nil
		}
		return &ast.IfExpr{Body: expr, Test: test, OrElse: orElse, Pos: p.spanFrom(expr)}
	}

	return expr
}

// parseLambda parses `lambda params: body`
func (p *Parser) parseLambda() ast.ExprNode {
	start := p.advance()
	params, ok := p.parseParams(lexer.TOKEN_COLON, false)
	if !ok {
		return nil
	}
	p.advance() // :
	body := p.parseExpression()
	if body == nil {
		return nil
	}
	return &ast.LambdaExpr{Params: params, Body: body, Pos: p.pos(start)}
}

// parseOr handles `or`
func (p *Parser) parseOr() ast.ExprNode {
	expr := p.parseAnd()
	for expr != nil && p.matchKeyword("or") {
		right := p.parseAnd()
		if right == nil {
			return nil
		}
		expr = &ast.BinaryExpr{Left: expr, Operator: "or", Right: right, Pos: p.spanFrom(expr)}
	}
	return expr
}

// parseAnd handles `and`
func (p *Parser) parseAnd() ast.ExprNode {
	expr := p.parseNot()
	for expr != nil && p.matchKeyword("and") {
		right := p.parseNot()
		if right == nil {
			return nil
		}
		expr = &ast.BinaryExpr{Left: expr, Operator: "and", Right: right, Pos: p.spanFrom(expr)}
	}
	return expr
}

// parseNot handles `not`
func (p *Parser) parseNot() ast.ExprNode {
	if p.checkKeyword("not") {
		start := p.advance()
		operand := p.parseNot()
		if operand == nil {
			return nil
		}
		return &ast.UnaryExpr{Operator: "not", Operand: operand, Pos: p.pos(start)}
	}
	return p.parseComparison()
}

// parseComparison handles comparison chains, `in`, `not in`, `is`, `is not`
func (p *Parser) parseComparison() ast.ExprNode {
	expr := p.parseBitOr()
	if expr == nil {
		return nil
	}

	for {
		operator := ""
		switch {
		case p.match(lexer.TOKEN_EQ, lexer.TOKEN_NEQ, lexer.TOKEN_LT, lexer.TOKEN_GT, lexer.TOKEN_LTE, lexer.TOKEN_GTE):
			operator = p.previous().Lexeme
		case p.matchKeyword("in"):
			operator = "in"
		case p.checkKeyword("not") && p.peekNext().Lexeme == "in":
			p.advance()
			p.advance()
			operator = "not in"
		case p.matchKeyword("is"):
			operator = "is"
			if p.matchKeyword("not") {
				operator = "is not"
			}
		default:
			return expr
		}

		right := p.parseBitOr()
		if right == nil {
			return nil
		}
		expr = &ast.BinaryExpr{Left: expr, Operator: operator, Right: right, Pos: p.spanFrom(expr)}
	}
}

// parseBinary parses a left-associative level of binary operators
func (p *Parser) parseBinary(next func() ast.ExprNode, operators ...lexer.TokenType) ast.ExprNode {
	expr := next()
	for expr != nil && p.match(operators...) {
		operator := p.previous().Lexeme
		right := next()
		if right == nil {
			return nil
		}
		expr = &ast.BinaryExpr{Left: expr, Operator: operator, Right: right, Pos: p.spanFrom(expr)}
	}
	return expr
}

func (p *Parser) parseBitOr() ast.ExprNode {
	return p.parseBinary(p.parseBitXor, lexer.TOKEN_PIPE)
}

func (p *Parser) parseBitXor() ast.ExprNode {
	return p.parseBinary(p.parseBitAnd, lexer.TOKEN_CARET)
}

func (p *Parser) parseBitAnd() ast.ExprNode {
	return p.parseBinary(p.parseShift, lexer.TOKEN_AMP)
}

func (p *Parser) parseShift() ast.ExprNode {
	return p.parseBinary(p.parseArith, lexer.TOKEN_SHIFT)
}

func (p *Parser) parseArith() ast.ExprNode {
	return p.parseBinary(p.parseTerm, lexer.TOKEN_PLUS, lexer.TOKEN_MINUS)
}

func (p *Parser) parseTerm() ast.ExprNode {
	return p.parseBinary(p.parseFactor,
		lexer.TOKEN_STAR, lexer.TOKEN_SLASH, lexer.TOKEN_DOUBLE_SLASH, lexer.TOKEN_PERCENT, lexer.TOKEN_AT)
}

// parseFactor handles unary +, - and ~
func (p *Parser) parseFactor() ast.ExprNode {
	if p.check(lexer.TOKEN_PLUS) || p.check(lexer.TOKEN_MINUS) || p.check(lexer.TOKEN_TILDE) {
		start := p.advance()
		operand := p.parseFactor()
		if operand == nil {
			return nil
		}
		return &ast.UnaryExpr{Operator: start.Lexeme, Operand: operand, Pos: p.pos(start)}
	}
	return p.parsePower()
}

// parsePower handles right-associative exponentiation
func (p *Parser) parsePower() ast.ExprNode {
	expr := p.parseAwait()
	if expr == nil {
		return nil
	}
	if p.match(lexer.TOKEN_DOUBLE_STAR) {
		right := p.parseFactor()
		if right == nil {
			return nil
		}
		return &ast.BinaryExpr{Left: expr, Operator: "**", Right: right, Pos: p.spanFrom(expr)}
	}
	return expr
}

// parseAwait handles `await`
func (p *Parser) parseAwait() ast.ExprNode {
	if p.checkKeyword("await") {
		start := p.advance()
		operand := p.parsePrimary()
		if operand == nil {
			return nil
		}
		return &ast.UnaryExpr{Operator: "await", Operand: operand, Pos: p.pos(start)}
	}
	return p.parsePrimary()
}

// parsePrimary handles attribute access, calls and subscripts
func (p *Parser) parsePrimary() ast.ExprNode {
	expr := p.parseAtom()

	for expr != nil {
		switch {
		case p.match(lexer.TOKEN_DOT):
			nameToken := p.consume(lexer.TOKEN_IDENTIFIER, "Expected attribute name after '.'")
			if nameToken.Type == lexer.TOKEN_ERROR {
				return nil
			}
			expr = &ast.Attribute{Value: expr, Attr: nameToken.Lexeme, Pos: p.spanFrom(expr)}
		case p.match(lexer.TOKEN_LPAREN):
			args, keywords, ok := p.parseArguments()
			if !ok {
				return nil
			}
			expr = &ast.Call{Func: expr, Args: args, Keywords: keywords, Pos: p.spanFrom(expr)}
		case p.match(lexer.TOKEN_LBRACKET):
			index := p.parseSubscript()
			if index == nil {
				return nil
			}
			expr = &ast.Subscript{Value: expr, Index: index, Pos: p.spanFrom(expr)}
		default:
			return expr
		}
	}

	return nil
}

// parseArguments parses call arguments after '(' through the closing ')'
func (p *Parser) parseArguments() ([]ast.ExprNode, []*ast.Keyword, bool) {
	args := make([]ast.ExprNode, 0)
	keywords := make([]*ast.Keyword, 0)

	for !p.check(lexer.TOKEN_RPAREN) && !p.isAtEnd() {
		switch {
		case p.check(lexer.TOKEN_DOUBLE_STAR):
			start := p.advance()
			value := p.parseExpression()
			if value == nil {
				return nil, nil, false
			}
			keywords = append(keywords, &ast.Keyword{Value: value, Loc: ast.TokenLocation(start)})
		case p.check(lexer.TOKEN_IDENTIFIER) && p.checkNext(lexer.TOKEN_EQUALS):
			nameToken := p.advance()
			p.advance() // =
			value := p.parseExpression()
			if value == nil {
				return nil, nil, false
			}
			keywords = append(keywords, &ast.Keyword{
				Name:  nameToken.Lexeme,
				Value: value,
				Loc:   ast.TokenLocation(nameToken),
			})
		default:
			arg := p.parseStarredOrNamed()
			if arg == nil {
				return nil, nil, false
			}
			if p.checkKeyword("for") || p.check(lexer.TOKEN_ASYNC) {
				arg = p.parseComprehension("generator", arg, nil, arg.Span().Start, arg.Location())
				if arg == nil {
					return nil, nil, false
				}
			}
			args = append(args, arg)
		}

		if !p.match(lexer.TOKEN_COMMA) {
			break
		}
	}

	if p.consume(lexer.TOKEN_RPAREN, "Expected ')' after arguments").Type == lexer.TOKEN_ERROR {
		return nil, nil, false
	}
	return args, keywords, true
}

// parseSubscript parses the index of a subscript through the closing ']'
func (p *Parser) parseSubscript() ast.ExprNode {
	start := p.peek()
	items := make([]ast.ExprNode, 0, 1)
	trailingComma := false

	for !p.check(lexer.TOKEN_RBRACKET) && !p.isAtEnd() {
		item := p.parseSliceItem()
		if item == nil {
			return nil
		}
		items = append(items, item)
		trailingComma = false
		if !p.match(lexer.TOKEN_COMMA) {
			break
		}
		trailingComma = true
	}

	if len(items) == 0 {
		p.error(p.peek(), "Expected subscript")
		return nil
	}

	var index ast.ExprNode = items[0]
	if len(items) > 1 || trailingComma {
		index = &ast.TupleExpr{Elements: items, Pos: p.pos(start)}
	}

	if p.consume(lexer.TOKEN_RBRACKET, "Expected ']' after subscript").Type == lexer.TOKEN_ERROR {
		return nil
	}
	return index
}

// parseSliceItem parses `expr` or `lower:upper:step`
func (p *Parser) parseSliceItem() ast.ExprNode {
	start := p.peek()
	var lower ast.ExprNode
	if !p.check(lexer.TOKEN_COLON) {
		lower = p.parseStarredOrNamed()
		if lower == nil {
			return nil
		}
		if !p.check(lexer.TOKEN_COLON) {
			return lower
		}
	}

	slice := &ast.SliceExpr{Lower: lower}
	p.advance() // :
	if !p.check(lexer.TOKEN_COLON) && !p.check(lexer.TOKEN_COMMA) && !p.check(lexer.TOKEN_RBRACKET) {
		slice.Upper = p.parseExpression()
		if slice.Upper == nil {
			return nil
		}
	}
	if p.match(lexer.TOKEN_COLON) && !p.check(lexer.TOKEN_COMMA) && !p.check(lexer.TOKEN_RBRACKET) {
		slice.Step = p.parseExpression()
		if slice.Step == nil {
			return nil
		}
	}
	slice.Pos = p.pos(start)
	return slice
}

// parseAtom parses literals, names and displays
//
//nolint:gocyclo // one case per atom kind
func (p *Parser) parseAtom() ast.ExprNode {
	token := p.peek()

	switch token.Type {
	case lexer.TOKEN_IDENTIFIER:
		p.advance()
		return &ast.Name{ID: token.Lexeme, Pos: p.pos(token)}
	case lexer.TOKEN_STRING_LITERAL:
		return p.parseStrings()
	case lexer.TOKEN_INT_LITERAL:
		p.advance()
		return &ast.NumberLit{Value: token.Literal, Pos: p.pos(token)}
	case lexer.TOKEN_FLOAT_LITERAL:
		p.advance()
		return &ast.NumberLit{Value: token.Literal, Float: true, Pos: p.pos(token)}
	case lexer.TOKEN_TRUE, lexer.TOKEN_FALSE:
		p.advance()
		return &ast.BoolLit{Value: token.Type == lexer.TOKEN_TRUE, Pos: p.pos(token)}
	case lexer.TOKEN_NONE:
		p.advance()
		return &ast.NoneLit{Pos: p.pos(token)}
	case lexer.TOKEN_ELLIPSIS:
		p.advance()
		return &ast.EllipsisLit{Pos: p.pos(token)}
	case lexer.TOKEN_LPAREN:
		return p.parseParenthesized()
	case lexer.TOKEN_LBRACKET:
		return p.parseList()
	case lexer.TOKEN_LBRACE:
		return p.parseBraces()
	}

	p.error(token, "Expected expression")
	return nil
}

// parseStrings concatenates adjacent string literals
func (p *Parser) parseStrings() ast.ExprNode {
	start := p.peek()
	lit := &ast.StringLit{Prefix: stringPrefix(start.Lexeme)}

	value := ""
	for p.check(lexer.TOKEN_STRING_LITERAL) {
		tok := p.advance()
		if s, ok := tok.Literal.(string); ok {
			value += s
		}
	}
	lit.Value = value
	lit.Pos = p.pos(start)
	return lit
}

// stringPrefix returns the prefix letters of a string lexeme
func stringPrefix(lexeme string) string {
	for i := 0; i < len(lexeme); i++ {
		if lexeme[i] == '"' || lexeme[i] == '\'' {
			return lexeme[:i]
		}
	}
	return ""
}

// parseParenthesized parses (), (expr), (a, b) and generator expressions
func (p *Parser) parseParenthesized() ast.ExprNode {
	start := p.advance()

	if p.match(lexer.TOKEN_RPAREN) {
		return &ast.TupleExpr{Elements: make([]ast.ExprNode, 0), Pos: p.pos(start)}
	}

	first := p.parseStarredOrNamed()
	if first == nil {
		return nil
	}

	if p.checkKeyword("for") || p.check(lexer.TOKEN_ASYNC) {
		comp := p.parseComprehension("generator", first, nil, start.Offset, ast.TokenLocation(start))
		if comp == nil {
			return nil
		}
		if p.consume(lexer.TOKEN_RPAREN, "Expected ')' after generator expression").Type == lexer.TOKEN_ERROR {
			return nil
		}
		comp.(*ast.ComprehensionExpr).End = p.previous().End
		return comp
	}

	if p.match(lexer.TOKEN_RPAREN) {
		return first
	}

	elements := []ast.ExprNode{first}
	for p.match(lexer.TOKEN_COMMA) {
		if p.check(lexer.TOKEN_RPAREN) {
			break
		}
		elem := p.parseStarredOrNamed()
		if elem == nil {
			return nil
		}
		elements = append(elements, elem)
	}

	if p.consume(lexer.TOKEN_RPAREN, "Expected ')' after tuple").Type == lexer.TOKEN_ERROR {
		return nil
	}
	return &ast.TupleExpr{Elements: elements, Pos: p.pos(start)}
}

// parseList parses list displays and list comprehensions
func (p *Parser) parseList() ast.ExprNode {
	start := p.advance()
	elements := make([]ast.ExprNode, 0)

	if !p.check(lexer.TOKEN_RBRACKET) {
		first := p.parseStarredOrNamed()
		if first == nil {
			return nil
		}
		if p.checkKeyword("for") || p.check(lexer.TOKEN_ASYNC) {
			comp := p.parseComprehension("list", first, nil, start.Offset, ast.TokenLocation(start))
			if comp == nil {
				return nil
			}
			if p.consume(lexer.TOKEN_RBRACKET, "Expected ']' after comprehension").Type == lexer.TOKEN_ERROR {
				return nil
			}
			comp.(*ast.ComprehensionExpr).End = p.previous().End
			return comp
		}
		elements = append(elements, first)
		for p.match(lexer.TOKEN_COMMA) {
			if p.check(lexer.TOKEN_RBRACKET) {
				break
			}
			elem := p.parseStarredOrNamed()
			if elem == nil {
				return nil
			}
			elements = append(elements, elem)
		}
	}

	if p.consume(lexer.TOKEN_RBRACKET, "Expected ']' after list elements").Type == lexer.TOKEN_ERROR {
		return nil
	}
	return &ast.ListExpr{Elements: elements, Pos: p.pos(start)}
}

// parseBraces parses dict and set displays and their comprehensions
func (p *Parser) parseBraces() ast.ExprNode {
	start := p.advance()

	if p.match(lexer.TOKEN_RBRACE) {
		return &ast.DictExpr{Keys: make([]ast.ExprNode, 0), Values: make([]ast.ExprNode, 0), Pos: p.pos(start)}
	}

	dict := &ast.DictExpr{Keys: make([]ast.ExprNode, 0), Values: make([]ast.ExprNode, 0)}
	set := &ast.SetExpr{Elements: make([]ast.ExprNode, 0)}
	isDict := false

	for i := 0; !p.check(lexer.TOKEN_RBRACE) && !p.isAtEnd(); i++ {
		if p.match(lexer.TOKEN_DOUBLE_STAR) {
			value := p.parseBitOr()
			if value == nil {
				return nil
			}
			isDict = true
			dict.Keys = append(dict.Keys, nil)
			dict.Values = append(dict.Values, value)
		} else {
			key := p.parseStarredOrNamed()
			if key == nil {
				return nil
			}
			if p.match(lexer.TOKEN_COLON) {
				isDict = true
				value := p.parseExpression()
				if value == nil {
					return nil
				}
				if i == 0 && (p.checkKeyword("for") || p.check(lexer.TOKEN_ASYNC)) {
					return p.finishBraceComprehension("dict", key, value, start)
				}
				dict.Keys = append(dict.Keys, key)
				dict.Values = append(dict.Values, value)
			} else {
				if i == 0 && (p.checkKeyword("for") || p.check(lexer.TOKEN_ASYNC)) {
					return p.finishBraceComprehension("set", key, nil, start)
				}
				set.Elements = append(set.Elements, key)
			}
		}

		if !p.match(lexer.TOKEN_COMMA) {
			break
		}
	}

	if p.consume(lexer.TOKEN_RBRACE, "Expected '}' after display").Type == lexer.TOKEN_ERROR {
		return nil
	}

	if isDict {
		if len(set.Elements) > 0 {
			p.error(p.previous(), "Cannot mix set elements and dict entries")
			return nil
		}
		dict.Pos = p.pos(start)
		return dict
	}
	set.Pos = p.pos(start)
	return set
}

// finishBraceComprehension parses the generators of a dict or set
// comprehension and the closing '}'
func (p *Parser) finishBraceComprehension(kind string, element, value ast.ExprNode, start lexer.Token) ast.ExprNode {
	comp := p.parseComprehension(kind, element, value, start.Offset, ast.TokenLocation(start))
	if comp == nil {
		return nil
	}
	if p.consume(lexer.TOKEN_RBRACE, "Expected '}' after comprehension").Type == lexer.TOKEN_ERROR {
		return nil
	}
	comp.(*ast.ComprehensionExpr).End = p.previous().End
	return comp
}

// parseComprehension parses one or more `for target in iter if cond`
// clauses following an element expression
func (p *Parser) parseComprehension(kind string, element, value ast.ExprNode, startOffset int, loc ast.SourceLocation) ast.ExprNode {
	comp := &ast.ComprehensionExpr{
		Kind:       kind,
		Element:    element,
		Value:      value,
		Generators: make([]*ast.Generator, 0, 1),
	}

	for p.checkKeyword("for") || p.check(lexer.TOKEN_ASYNC) {
		p.match(lexer.TOKEN_ASYNC)
		if !p.matchKeyword("for") {
			p.error(p.peek(), "Expected 'for' in comprehension")
			return nil
		}

		target := p.parseTargetList()
		if target == nil {
			return nil
		}
		if !p.matchKeyword("in") {
			p.error(p.peek(), "Expected 'in' in comprehension")
			return nil
		}
		iter := p.parseOr()
		if iter == nil {
			return nil
		}

		gen := &ast.Generator{Target: target, Iter: iter, Ifs: make([]ast.ExprNode, 0)}
		for p.matchKeyword("if") {
			cond := p.parseOr()
			if cond == nil {
				return nil
			}
			gen.Ifs = append(gen.Ifs, cond)
		}
		comp.Generators = append(comp.Generators, gen)
	}

	comp.Pos = ast.Pos{Loc: loc, Start: startOffset, End: p.previous().End}
	return comp
}

// parseTargetList parses the target of a for clause: `a` or `a, (b, c)`
func (p *Parser) parseTargetList() ast.ExprNode {
	start := p.peek()
	first := p.parseBitOr()
	if first == nil {
		return nil
	}
	if !p.check(lexer.TOKEN_COMMA) {
		return first
	}

	elements := []ast.ExprNode{first}
	for p.match(lexer.TOKEN_COMMA) {
		if p.checkKeyword("in") {
			break
		}
		elem := p.parseBitOr()
		if elem == nil {
			return nil
		}
		elements = append(elements, elem)
	}
	return &ast.TupleExpr{Elements: elements, Pos: p.pos(start)}
}

// spanFrom builds a position starting at an existing node and ending at
// the last consumed token
func (p *Parser) spanFrom(n ast.Node) ast.Pos {
	return ast.Pos{
		Loc:   n.Location(),
		Start: n.Span().Start,
		End:   p.previous().End,
	}
}
