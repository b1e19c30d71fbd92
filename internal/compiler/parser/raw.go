package parser

import (
	"fmt"

	"github.com/conduit-lang/pipegraph/internal/compiler/ast"
	"github.com/conduit-lang/pipegraph/internal/compiler/lexer"
)

// binaryOperators need an operand on their right
var binaryOperators = map[lexer.TokenType]bool{
	lexer.TOKEN_PLUS:         true,
	lexer.TOKEN_MINUS:        true,
	lexer.TOKEN_STAR:         true,
	lexer.TOKEN_SLASH:        true,
	lexer.TOKEN_PERCENT:      true,
	lexer.TOKEN_PIPE:         true,
	lexer.TOKEN_AMP:          true,
	lexer.TOKEN_CARET:        true,
	lexer.TOKEN_TILDE:        true,
	lexer.TOKEN_LT:           true,
	lexer.TOKEN_GT:           true,
	lexer.TOKEN_EQ:           true,
	lexer.TOKEN_NEQ:          true,
	lexer.TOKEN_LTE:          true,
	lexer.TOKEN_GTE:          true,
	lexer.TOKEN_DOUBLE_STAR:  true,
	lexer.TOKEN_DOUBLE_SLASH: true,
	lexer.TOKEN_SHIFT:        true,
	lexer.TOKEN_WALRUS:       true,
	lexer.TOKEN_DOT:          true,
}

// prefixOperators may also start an operand
var prefixOperators = map[lexer.TokenType]bool{
	lexer.TOKEN_PLUS:        true,
	lexer.TOKEN_MINUS:       true,
	lexer.TOKEN_TILDE:       true,
	lexer.TOKEN_STAR:        true,
	lexer.TOKEN_DOUBLE_STAR: true,
}

// operandEnds can close the left-hand side of an assignment
var operandEnds = map[lexer.TokenType]bool{
	lexer.TOKEN_IDENTIFIER:     true,
	lexer.TOKEN_INT_LITERAL:    true,
	lexer.TOKEN_FLOAT_LITERAL:  true,
	lexer.TOKEN_STRING_LITERAL: true,
	lexer.TOKEN_TRUE:           true,
	lexer.TOKEN_FALSE:          true,
	lexer.TOKEN_NONE:           true,
	lexer.TOKEN_ELLIPSIS:       true,
	lexer.TOKEN_RPAREN:         true,
	lexer.TOKEN_RBRACKET:       true,
	lexer.TOKEN_RBRACE:         true,
}

// cannotFollow lists tokens that never start the operand an assignment or
// operator needs
var cannotFollow = map[lexer.TokenType]bool{
	lexer.TOKEN_EQUALS:     true,
	lexer.TOKEN_AUG_ASSIGN: true,
	lexer.TOKEN_RPAREN:     true,
	lexer.TOKEN_RBRACKET:   true,
	lexer.TOKEN_RBRACE:     true,
	lexer.TOKEN_COMMA:      true,
	lexer.TOKEN_COLON:      true,
	lexer.TOKEN_ARROW:      true,
}

func endsSegment(t lexer.TokenType) bool {
	switch t {
	case lexer.TOKEN_NEWLINE, lexer.TOKEN_INDENT, lexer.TOKEN_DEDENT,
		lexer.TOKEN_SEMICOLON, lexer.TOKEN_EOF:
		return true
	}
	return false
}

// checkRawTokens checks the operator and assignment structure of tokens the
// parser keeps verbatim. It returns the offending token and a message, or
// an empty message when nothing is wrong.
func checkRawTokens(tokens []lexer.Token) (lexer.Token, string) {
	depth := 0
	for i, tok := range tokens {
		if endsSegment(tok.Type) {
			depth = 0
			continue
		}
		prev, hasPrev := neighbor(tokens, i-1)
		next, hasNext := neighbor(tokens, i+1)

		switch {
		case tok.Type == lexer.TOKEN_LPAREN || tok.Type == lexer.TOKEN_LBRACKET || tok.Type == lexer.TOKEN_LBRACE:
			depth++

		case tok.Type == lexer.TOKEN_RPAREN || tok.Type == lexer.TOKEN_RBRACKET || tok.Type == lexer.TOKEN_RBRACE:
			depth--

		case tok.Type == lexer.TOKEN_EQUALS || tok.Type == lexer.TOKEN_AUG_ASSIGN:
			unpacking := depth == 0 && hasPrev && prev.Type == lexer.TOKEN_COMMA
			if !hasPrev || (!operandEnds[prev.Type] && !unpacking) {
				return tok, fmt.Sprintf("Expected a target before '%s'", tok.Lexeme)
			}
			if !hasNext || cannotFollow[next.Type] || (binaryOperators[next.Type] && !prefixOperators[next.Type]) {
				return tok, fmt.Sprintf("Expected an expression after '%s'", tok.Lexeme)
			}

		case binaryOperators[tok.Type]:
			if !hasPrev && !prefixOperators[tok.Type] {
				return tok, fmt.Sprintf("Expected an operand before '%s'", tok.Lexeme)
			}
			if !hasNext {
				return tok, fmt.Sprintf("Expected an operand after '%s'", tok.Lexeme)
			}
			// `lambda *, key: ...` has a bare star
			if tok.Type == lexer.TOKEN_STAR && next.Type == lexer.TOKEN_COMMA {
				continue
			}
			if cannotFollow[next.Type] || (binaryOperators[next.Type] && !prefixOperators[next.Type]) {
				return tok, fmt.Sprintf("Expected an operand after '%s'", tok.Lexeme)
			}
		}
	}
	return lexer.Token{}, ""
}

// neighbor returns tokens[i] unless it is outside the current segment
func neighbor(tokens []lexer.Token, i int) (lexer.Token, bool) {
	if i < 0 || i >= len(tokens) || endsSegment(tokens[i].Type) {
		return lexer.Token{}, false
	}
	return tokens[i], true
}

// FirstInvalidRaw returns the first raw statement in stmts, nested bodies
// included, whose tokens do not form a statement
func FirstInvalidRaw(stmts []ast.StmtNode) *ast.RawStmt {
	var found *ast.RawStmt
	ast.Walk(stmts, func(s ast.StmtNode) bool {
		if found != nil {
			return false
		}
		if raw, ok := s.(*ast.RawStmt); ok && raw.Problem != "" {
			found = raw
		}
		return true
	})
	return found
}
