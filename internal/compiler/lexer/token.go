package lexer

import "fmt"

// TokenType represents the type of a token in pipeline source
type TokenType int

const (
	// TOKEN_EOF marks the end of the token stream.
	TOKEN_EOF TokenType = iota
	// TOKEN_ERROR represents a lexical error encountered during scanning.
	TOKEN_ERROR
	// TOKEN_NEWLINE ends a logical line.
	TOKEN_NEWLINE
	// TOKEN_INDENT opens an indented block.
	TOKEN_INDENT
	// TOKEN_DEDENT closes an indented block.
	TOKEN_DEDENT

	// Keywords - declarations
	TOKEN_CLASS  // class
	TOKEN_DEF    // def
	TOKEN_IMPORT // import
	TOKEN_FROM   // from
	TOKEN_AS     // as
	TOKEN_PASS   // pass
	TOKEN_ASYNC  // async
	TOKEN_RETURN // return

	// TOKEN_KEYWORD is any other reserved word (if, for, with, ...).
	TOKEN_KEYWORD

	// Literals
	TOKEN_IDENTIFIER     // task, Query, publish_work
	TOKEN_INT_LITERAL    // 42, 0x1f, 1_000
	TOKEN_FLOAT_LITERAL  // 3.14, 1e-3
	TOKEN_STRING_LITERAL // "text", '''doc''', f"{x}"
	TOKEN_TRUE           // True
	TOKEN_FALSE          // False
	TOKEN_NONE           // None
	TOKEN_ELLIPSIS       // ...

	// Operators - Single character
	TOKEN_LPAREN    // (
	TOKEN_RPAREN    // )
	TOKEN_LBRACKET  // [
	TOKEN_RBRACKET  // ]
	TOKEN_LBRACE    // {
	TOKEN_RBRACE    // }
	TOKEN_COMMA     // ,
	TOKEN_COLON     // :
	TOKEN_SEMICOLON // ;
	TOKEN_DOT       // .
	TOKEN_EQUALS    // =
	TOKEN_AT        // @
	TOKEN_PIPE      // |
	TOKEN_PLUS      // +
	TOKEN_MINUS     // -
	TOKEN_STAR      // *
	TOKEN_SLASH     // /
	TOKEN_PERCENT   // %
	TOKEN_LT        // <
	TOKEN_GT        // >
	TOKEN_AMP       // &
	TOKEN_CARET     // ^
	TOKEN_TILDE     // ~

	// Operators - Two or more characters
	TOKEN_ARROW        // ->
	TOKEN_EQ           // ==
	TOKEN_NEQ          // !=
	TOKEN_LTE          // <=
	TOKEN_GTE          // >=
	TOKEN_DOUBLE_STAR  // **
	TOKEN_DOUBLE_SLASH // //
	TOKEN_WALRUS       // :=
	TOKEN_AUG_ASSIGN   // +=, -=, *=, ...
	TOKEN_SHIFT        // <<, >>
)

// TokenTypeNames maps token types to their string representations
var TokenTypeNames = map[TokenType]string{
	TOKEN_EOF:            "EOF",
	TOKEN_ERROR:          "ERROR",
	TOKEN_NEWLINE:        "NEWLINE",
	TOKEN_INDENT:         "INDENT",
	TOKEN_DEDENT:         "DEDENT",
	TOKEN_CLASS:          "CLASS",
	TOKEN_DEF:            "DEF",
	TOKEN_IMPORT:         "IMPORT",
	TOKEN_FROM:           "FROM",
	TOKEN_AS:             "AS",
	TOKEN_PASS:           "PASS",
	TOKEN_ASYNC:          "ASYNC",
	TOKEN_RETURN:         "RETURN",
	TOKEN_KEYWORD:        "KEYWORD",
	TOKEN_IDENTIFIER:     "IDENTIFIER",
	TOKEN_INT_LITERAL:    "INT_LITERAL",
	TOKEN_FLOAT_LITERAL:  "FLOAT_LITERAL",
	TOKEN_STRING_LITERAL: "STRING_LITERAL",
	TOKEN_TRUE:           "TRUE",
	TOKEN_FALSE:          "FALSE",
	TOKEN_NONE:           "NONE",
	TOKEN_ELLIPSIS:       "ELLIPSIS",
	TOKEN_LPAREN:         "LPAREN",
	TOKEN_RPAREN:         "RPAREN",
	TOKEN_LBRACKET:       "LBRACKET",
	TOKEN_RBRACKET:       "RBRACKET",
	TOKEN_LBRACE:         "LBRACE",
	TOKEN_RBRACE:         "RBRACE",
	TOKEN_COMMA:          "COMMA",
	TOKEN_COLON:          "COLON",
	TOKEN_SEMICOLON:      "SEMICOLON",
	TOKEN_DOT:            "DOT",
	TOKEN_EQUALS:         "EQUALS",
	TOKEN_AT:             "AT",
	TOKEN_PIPE:           "PIPE",
	TOKEN_PLUS:           "PLUS",
	TOKEN_MINUS:          "MINUS",
	TOKEN_STAR:           "STAR",
	TOKEN_SLASH:          "SLASH",
	TOKEN_PERCENT:        "PERCENT",
	TOKEN_LT:             "LT",
	TOKEN_GT:             "GT",
	TOKEN_AMP:            "AMP",
	TOKEN_CARET:          "CARET",
	TOKEN_TILDE:          "TILDE",
	TOKEN_ARROW:          "ARROW",
	TOKEN_EQ:             "EQ",
	TOKEN_NEQ:            "NEQ",
	TOKEN_LTE:            "LTE",
	TOKEN_GTE:            "GTE",
	TOKEN_DOUBLE_STAR:    "DOUBLE_STAR",
	TOKEN_DOUBLE_SLASH:   "DOUBLE_SLASH",
	TOKEN_WALRUS:         "WALRUS",
	TOKEN_AUG_ASSIGN:     "AUG_ASSIGN",
	TOKEN_SHIFT:          "SHIFT",
}

// String returns the string representation of a TokenType
func (t TokenType) String() string {
	if name, ok := TokenTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("UNKNOWN(%d)", t)
}

// Token represents a single lexical token.
//
// Offset and End are byte offsets into the scanned source so callers can
// slice out verbatim text spanning several tokens.
type Token struct {
	Type    TokenType   // The type of the token
	Lexeme  string      // The raw text of the token
	Literal interface{} // The parsed value (for literals)
	Line    int         // Line number (1-indexed)
	Column  int         // Column number (1-indexed)
	Offset  int         // Byte offset of the first character
	End     int         // Byte offset one past the last character
}

// String returns a string representation of the token
func (t Token) String() string {
	if t.Literal != nil {
		return fmt.Sprintf("%s '%s' (%v) at %d:%d",
			t.Type.String(), t.Lexeme, t.Literal, t.Line, t.Column)
	}
	return fmt.Sprintf("%s '%s' at %d:%d",
		t.Type.String(), t.Lexeme, t.Line, t.Column)
}

// Keywords maps reserved words with dedicated token types
var Keywords = map[string]TokenType{
	"class":  TOKEN_CLASS,
	"def":    TOKEN_DEF,
	"import": TOKEN_IMPORT,
	"from":   TOKEN_FROM,
	"as":     TOKEN_AS,
	"pass":   TOKEN_PASS,
	"async":  TOKEN_ASYNC,
	"return": TOKEN_RETURN,
	"True":   TOKEN_TRUE,
	"False":  TOKEN_FALSE,
	"None":   TOKEN_NONE,
}

// reservedWords are the remaining keywords of the host grammar. They are
// emitted as TOKEN_KEYWORD and never treated as identifiers.
var reservedWords = map[string]bool{
	"and": true, "assert": true, "await": true, "break": true,
	"continue": true, "del": true, "elif": true, "else": true,
	"except": true, "finally": true, "for": true, "global": true,
	"if": true, "in": true, "is": true, "lambda": true,
	"nonlocal": true, "not": true, "or": true, "raise": true,
	"try": true, "while": true, "with": true, "yield": true,
}

// LexError represents an error encountered during lexical analysis
type LexError struct {
	Message string // Error message
	Line    int    // Line number where error occurred
	Column  int    // Column number where error occurred
	Lexeme  string // The problematic text
}

// Error implements the error interface
func (e LexError) Error() string {
	return fmt.Sprintf("Lexical error at %d:%d: %s (near '%s')",
		e.Line, e.Column, e.Message, e.Lexeme)
}
