// Package parser turns pipeline source tokens into a syntax tree.
// It uses recursive descent parsing. Statements the parser cannot model are
// recovered as raw statements spanning their verbatim text instead of being
// reported as errors, so uncommon code never blocks an import.
package parser

import (
	"fmt"

	"github.com/conduit-lang/pipegraph/internal/compiler/ast"
	"github.com/conduit-lang/pipegraph/internal/compiler/lexer"
)

// ParseError represents an error encountered during parsing
type ParseError struct {
	Message  string
	Location ast.SourceLocation
	Token    lexer.Token
}

// Error implements the error interface
func (e *ParseError) Error() string {
	return fmt.Sprintf("Parse error at %d:%d: %s (near '%s')",
		e.Location.Line, e.Location.Column, e.Message, e.Token.Lexeme)
}

// NewParseError creates a new parse error
func NewParseError(message string, token lexer.Token) ParseError {
	return ParseError{
		Message: message,
		Location: ast.SourceLocation{
			Line:   token.Line,
			Column: token.Column,
		},
		Token: token,
	}
}

// fromLexError converts a lexical error into a parse error
func fromLexError(err lexer.LexError) ParseError {
	return ParseError{
		Message: err.Message,
		Location: ast.SourceLocation{
			Line:   err.Line,
			Column: err.Column,
		},
		Token: lexer.Token{Type: lexer.TOKEN_ERROR, Lexeme: err.Lexeme, Line: err.Line, Column: err.Column},
	}
}
