// Package lexer provides lexical analysis for pipeline source files.
// It tokenizes the declarative subset of the host grammar into a stream of
// tokens for the parser, including the INDENT/DEDENT structure of blocks.
package lexer

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

const tabWidth = 8

// Lexer tokenizes pipeline source code.
//
// Thread Safety: Lexer instances are NOT thread-safe. Each goroutine must
// create its own Lexer instance via New().
type Lexer struct {
	source    string     // Source code to tokenize
	start     int        // Start position of current token
	current   int        // Current position in source
	line      int        // Current line number (1-indexed)
	lineStart int        // Byte offset of the first character of the current line
	tokens    []Token    // Collected tokens
	errors    []LexError // Collected errors

	indents     []int // Indentation stack, always starts with 0
	parenDepth  int   // Nesting depth of (), [] and {}
	atLineStart bool  // True when the next character begins a logical line
}

// New creates a new Lexer for the given source code
func New(source string) *Lexer {
	return &Lexer{
		source:      source,
		line:        1,
		tokens:      make([]Token, 0),
		errors:      make([]LexError, 0),
		indents:     []int{0},
		atLineStart: true,
	}
}

// ScanTokens tokenizes the entire source and returns tokens and errors
func (l *Lexer) ScanTokens() ([]Token, []LexError) {
	for !l.isAtEnd() {
		if l.atLineStart && l.parenDepth == 0 {
			l.indentation()
			if l.isAtEnd() {
				break
			}
		}
		l.start = l.current
		l.scanToken()
	}

	if l.parenDepth > 0 {
		l.start = l.current
		l.addError("Unexpected end of file: unclosed bracket")
	}

	l.start = l.current
	if len(l.tokens) > 0 && l.tokens[len(l.tokens)-1].Type != TOKEN_NEWLINE &&
		l.tokens[len(l.tokens)-1].Type != TOKEN_DEDENT {
		l.addSynthetic(TOKEN_NEWLINE)
	}
	for len(l.indents) > 1 {
		l.indents = l.indents[:len(l.indents)-1]
		l.addSynthetic(TOKEN_DEDENT)
	}

	l.tokens = append(l.tokens, Token{
		Type:   TOKEN_EOF,
		Lexeme: "",
		Line:   l.line,
		Column: l.current - l.lineStart + 1,
		Offset: l.current,
		End:    l.current,
	})

	return l.tokens, l.errors
}

// indentation measures the leading whitespace of a logical line and emits
// INDENT/DEDENT tokens. Blank and comment-only lines are skipped entirely.
func (l *Lexer) indentation() {
	for !l.isAtEnd() {
		width := 0
		for !l.isAtEnd() {
			c := l.peek()
			if c == ' ' {
				width++
			} else if c == '\t' {
				width = (width/tabWidth + 1) * tabWidth
			} else if c == '\f' {
				width = 0
			} else {
				break
			}
			l.current++
		}

		c := l.peek()
		if l.isAtEnd() {
			return
		}
		if c == '#' {
			l.skipComment()
			c = l.peek()
		}
		if c == '\r' {
			l.current++
			c = l.peek()
		}
		if c == '\n' {
			l.current++
			l.newLine()
			continue
		}
		if l.isAtEnd() {
			return
		}

		l.start = l.current
		top := l.indents[len(l.indents)-1]
		switch {
		case width > top:
			l.indents = append(l.indents, width)
			l.addSynthetic(TOKEN_INDENT)
		case width < top:
			for len(l.indents) > 1 && width < l.indents[len(l.indents)-1] {
				l.indents = l.indents[:len(l.indents)-1]
				l.addSynthetic(TOKEN_DEDENT)
			}
			if width != l.indents[len(l.indents)-1] {
				l.addError("Unindent does not match any outer indentation level")
			}
		}
		l.atLineStart = false
		return
	}
}

// scanToken processes the next token.
//
//nolint:gocyclo,cyclop // Lexer dispatch function - complexity is inherent to the pattern
func (l *Lexer) scanToken() {
	c := l.advance()

	switch {
	case c == '(' || c == '[' || c == '{':
		l.parenDepth++
		l.scanDelimiter(c)
	case c == ')' || c == ']' || c == '}':
		if l.parenDepth > 0 {
			l.parenDepth--
		}
		l.scanDelimiter(c)
	case c == ',' || c == ';' || c == '~':
		l.scanSimpleOperator(c)
	case strings.IndexByte("+-*/%<>=!:&|^@.", c) >= 0:
		l.scanCompoundOperator(c)
	case c == '#':
		l.skipComment()
	case c == '"' || c == '\'':
		l.string(c, "")
	case c == '\\':
		l.continuation()
	case c == ' ' || c == '\t' || c == '\r' || c == '\f':
		// Ignore whitespace
	case c == '\n':
		if l.parenDepth == 0 {
			l.addToken(TOKEN_NEWLINE)
			l.atLineStart = true
		}
		l.newLine()
	default:
		l.scanDefault(c)
	}
}

// scanDelimiter handles delimiter tokens: ( ) [ ] { }
func (l *Lexer) scanDelimiter(c byte) {
	switch c {
	case '(':
		l.addToken(TOKEN_LPAREN)
	case ')':
		l.addToken(TOKEN_RPAREN)
	case '[':
		l.addToken(TOKEN_LBRACKET)
	case ']':
		l.addToken(TOKEN_RBRACKET)
	case '{':
		l.addToken(TOKEN_LBRACE)
	case '}':
		l.addToken(TOKEN_RBRACE)
	}
}

// scanSimpleOperator handles single-character operators: , ; ~
func (l *Lexer) scanSimpleOperator(c byte) {
	switch c {
	case ',':
		l.addToken(TOKEN_COMMA)
	case ';':
		l.addToken(TOKEN_SEMICOLON)
	case '~':
		l.addToken(TOKEN_TILDE)
	}
}

// scanCompoundOperator dispatches to specific multi-character operator handlers
//
//nolint:gocyclo // one branch per operator family
func (l *Lexer) scanCompoundOperator(c byte) {
	switch c {
	case '+':
		l.augmentedOr(TOKEN_PLUS)
	case '-':
		if l.match('>') {
			l.addToken(TOKEN_ARROW)
		} else {
			l.augmentedOr(TOKEN_MINUS)
		}
	case '*':
		if l.match('*') {
			l.augmentedOr(TOKEN_DOUBLE_STAR)
		} else {
			l.augmentedOr(TOKEN_STAR)
		}
	case '/':
		if l.match('/') {
			l.augmentedOr(TOKEN_DOUBLE_SLASH)
		} else {
			l.augmentedOr(TOKEN_SLASH)
		}
	case '%':
		l.augmentedOr(TOKEN_PERCENT)
	case '&':
		l.augmentedOr(TOKEN_AMP)
	case '|':
		l.augmentedOr(TOKEN_PIPE)
	case '^':
		l.augmentedOr(TOKEN_CARET)
	case '@':
		l.augmentedOr(TOKEN_AT)
	case '<':
		if l.match('<') {
			l.augmentedOr(TOKEN_SHIFT)
		} else if l.match('=') {
			l.addToken(TOKEN_LTE)
		} else {
			l.addToken(TOKEN_LT)
		}
	case '>':
		if l.match('>') {
			l.augmentedOr(TOKEN_SHIFT)
		} else if l.match('=') {
			l.addToken(TOKEN_GTE)
		} else {
			l.addToken(TOKEN_GT)
		}
	case '=':
		if l.match('=') {
			l.addToken(TOKEN_EQ)
		} else {
			l.addToken(TOKEN_EQUALS)
		}
	case '!':
		if l.match('=') {
			l.addToken(TOKEN_NEQ)
		} else {
			l.addError("Unexpected character '!' (did you mean '!='?)")
		}
	case ':':
		if l.match('=') {
			l.addToken(TOKEN_WALRUS)
		} else {
			l.addToken(TOKEN_COLON)
		}
	case '.':
		l.scanDotToken()
	}
}

// augmentedOr emits an augmented assignment when '=' follows, otherwise t
func (l *Lexer) augmentedOr(t TokenType) {
	if l.match('=') {
		l.addToken(TOKEN_AUG_ASSIGN)
		return
	}
	l.addToken(t)
}

// scanDotToken handles ., ... and numbers starting with .
func (l *Lexer) scanDotToken() {
	if l.isDigit(l.peek()) {
		l.number()
		return
	}
	if l.peek() == '.' && l.peekNext() == '.' {
		l.current += 2
		l.addToken(TOKEN_ELLIPSIS)
		return
	}
	l.addToken(TOKEN_DOT)
}

// scanDefault handles the default case: numbers, identifiers, or errors
func (l *Lexer) scanDefault(c byte) {
	if l.isDigit(c) {
		l.number()
	} else if l.isAlpha(c) {
		l.identifier()
	} else {
		l.addError(fmt.Sprintf("Unexpected character: '%c'", c))
	}
}

// continuation handles an explicit backslash line join
func (l *Lexer) continuation() {
	l.match('\r')
	if !l.match('\n') {
		l.addError("Unexpected character after line continuation")
		return
	}
	l.newLine()
}

// skipComment consumes a comment up to (not including) the line break
func (l *Lexer) skipComment() {
	for l.peek() != '\n' && !l.isAtEnd() {
		l.current++
	}
}

// string handles single, double and triple quoted literals. prefix holds
// any r/b/u/f prefix letters already consumed.
func (l *Lexer) string(quote byte, prefix string) {
	startLine := l.line
	startColumn := l.start - l.lineStart + 1
	raw := strings.ContainsAny(prefix, "rR")
	triple := l.peek() == quote && l.peekNext() == quote
	if triple {
		l.current += 2
	}

	value := strings.Builder{}
	for {
		if l.isAtEnd() {
			l.errorAt(startLine, startColumn,
				fmt.Sprintf("Unterminated string starting at %d:%d", startLine, startColumn))
			return
		}

		c := l.peek()
		if c == quote {
			if !triple {
				l.current++
				break
			}
			if l.peekNext() == quote && l.peekNextNext() == quote {
				l.current += 3
				break
			}
			value.WriteByte(c)
			l.current++
			continue
		}

		if c == '\n' {
			if !triple {
				l.errorAt(startLine, startColumn,
					fmt.Sprintf("Unterminated string starting at %d:%d", startLine, startColumn))
				return
			}
			value.WriteByte('\n')
			l.current++
			l.newLine()
			continue
		}

		if c == '\\' {
			l.current++
			if l.isAtEnd() {
				continue
			}
			escaped := l.source[l.current]
			l.current++
			if escaped == '\n' {
				l.newLine()
			}
			if raw {
				value.WriteByte('\\')
				value.WriteByte(escaped)
				continue
			}
			switch escaped {
			case 'n':
				value.WriteByte('\n')
			case 't':
				value.WriteByte('\t')
			case 'r':
				value.WriteByte('\r')
			case '\\':
				value.WriteByte('\\')
			case '\'':
				value.WriteByte('\'')
			case '"':
				value.WriteByte('"')
			case '\n':
				// escaped line break joins lines
			default:
				// Unknown escape sequence - keep as-is
				value.WriteByte('\\')
				value.WriteByte(escaped)
			}
			continue
		}

		value.WriteByte(c)
		l.current++
	}

	l.tokens = append(l.tokens, Token{
		Type:    TOKEN_STRING_LITERAL,
		Lexeme:  l.source[l.start:l.current],
		Literal: value.String(),
		Line:    startLine,
		Column:  startColumn,
		Offset:  l.start,
		End:     l.current,
	})
}

// number handles integer and float literals
func (l *Lexer) number() {
	first := l.source[l.start]
	if first == '0' && strings.ContainsRune("xXoObB", rune(l.peek())) {
		l.current++
		for l.isHexDigit(l.peek()) || l.peek() == '_' {
			l.current++
		}
		lexeme := l.source[l.start:l.current]
		value, err := strconv.ParseInt(strings.ReplaceAll(lexeme, "_", ""), 0, 64)
		if err != nil {
			l.addError(fmt.Sprintf("Invalid integer literal: %s", lexeme))
			return
		}
		l.addTokenWithLiteral(TOKEN_INT_LITERAL, value)
		return
	}

	isFloat := first == '.'
	for l.isDigit(l.peek()) || l.peek() == '_' {
		l.current++
	}

	if !isFloat && l.peek() == '.' && l.peekNext() != '.' {
		isFloat = true
		l.current++
		for l.isDigit(l.peek()) || l.peek() == '_' {
			l.current++
		}
	}

	if l.peek() == 'e' || l.peek() == 'E' {
		isFloat = true
		l.current++
		if l.peek() == '+' || l.peek() == '-' {
			l.current++
		}
		if !l.isDigit(l.peek()) {
			l.addError("Invalid number: expected digits after exponent")
			return
		}
		for l.isDigit(l.peek()) {
			l.current++
		}
	}

	if l.peek() == 'j' || l.peek() == 'J' {
		l.current++
		l.addTokenWithLiteral(TOKEN_FLOAT_LITERAL, nil)
		return
	}

	lexeme := l.source[l.start:l.current]
	cleanLexeme := strings.ReplaceAll(lexeme, "_", "")

	if isFloat {
		value, err := strconv.ParseFloat(cleanLexeme, 64)
		if err != nil {
			l.addError(fmt.Sprintf("Invalid float literal: %s", lexeme))
			return
		}
		l.addTokenWithLiteral(TOKEN_FLOAT_LITERAL, value)
		return
	}

	value, err := strconv.ParseInt(cleanLexeme, 10, 64)
	if err != nil {
		// Arbitrary precision integers keep their lexeme only
		l.addTokenWithLiteral(TOKEN_INT_LITERAL, nil)
		return
	}
	l.addTokenWithLiteral(TOKEN_INT_LITERAL, value)
}

// identifier handles identifiers, keywords and prefixed strings
func (l *Lexer) identifier() {
	for l.isAlphaNumeric(l.peek()) {
		l.current++
	}

	text := l.source[l.start:l.current]

	if (l.peek() == '"' || l.peek() == '\'') && isStringPrefix(text) {
		quote := l.advance()
		l.string(quote, text)
		return
	}

	if tokenType, ok := Keywords[text]; ok {
		switch tokenType {
		case TOKEN_TRUE:
			l.addTokenWithLiteral(tokenType, true)
		case TOKEN_FALSE:
			l.addTokenWithLiteral(tokenType, false)
		default:
			l.addToken(tokenType)
		}
		return
	}

	if reservedWords[text] {
		l.addToken(TOKEN_KEYWORD)
		return
	}

	l.addToken(TOKEN_IDENTIFIER)
}

// isStringPrefix reports whether text is a valid string literal prefix
func isStringPrefix(text string) bool {
	switch strings.ToLower(text) {
	case "r", "u", "b", "f", "br", "rb", "fr", "rf":
		return true
	}
	return false
}

// Helper methods

// isAtEnd checks if we've reached the end of the source
func (l *Lexer) isAtEnd() bool {
	return l.current >= len(l.source)
}

// advance consumes and returns the current character
func (l *Lexer) advance() byte {
	if l.isAtEnd() {
		return 0
	}
	c := l.source[l.current]
	l.current++
	return c
}

// match checks if the current character matches expected and consumes it
func (l *Lexer) match(expected byte) bool {
	if l.isAtEnd() || l.source[l.current] != expected {
		return false
	}
	l.current++
	return true
}

// peek returns the current character without consuming it
func (l *Lexer) peek() byte {
	if l.isAtEnd() {
		return 0
	}
	return l.source[l.current]
}

// peekNext returns the next character without consuming
func (l *Lexer) peekNext() byte {
	if l.current+1 >= len(l.source) {
		return 0
	}
	return l.source[l.current+1]
}

// peekNextNext returns the character two positions ahead
func (l *Lexer) peekNextNext() byte {
	if l.current+2 >= len(l.source) {
		return 0
	}
	return l.source[l.current+2]
}

// newLine records that a line break was just consumed
func (l *Lexer) newLine() {
	l.line++
	l.lineStart = l.current
}

// isDigit checks if a character is a digit
func (l *Lexer) isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

// isHexDigit checks if a character can appear in a prefixed integer
func (l *Lexer) isHexDigit(c byte) bool {
	return l.isDigit(c) || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}

// isAlpha checks if a character can start an identifier. Bytes of
// multi-byte UTF-8 sequences are accepted as identifier characters.
func (l *Lexer) isAlpha(c byte) bool {
	return (c >= 'a' && c <= 'z') ||
		(c >= 'A' && c <= 'Z') ||
		c == '_' || c >= 0x80
}

// isAlphaNumeric checks if a character is alphanumeric or underscore
func (l *Lexer) isAlphaNumeric(c byte) bool {
	return l.isAlpha(c) || l.isDigit(c)
}

// addToken adds a token with the current lexeme
func (l *Lexer) addToken(tokenType TokenType) {
	l.addTokenWithLiteral(tokenType, nil)
}

// addTokenWithLiteral adds a token with a literal value
func (l *Lexer) addTokenWithLiteral(tokenType TokenType, literal interface{}) {
	l.tokens = append(l.tokens, Token{
		Type:    tokenType,
		Lexeme:  l.source[l.start:l.current],
		Literal: literal,
		Line:    l.line,
		Column:  l.start - l.lineStart + 1,
		Offset:  l.start,
		End:     l.current,
	})
}

// addSynthetic adds a zero-width structural token at the current position
func (l *Lexer) addSynthetic(tokenType TokenType) {
	l.tokens = append(l.tokens, Token{
		Type:   tokenType,
		Line:   l.line,
		Column: l.current - l.lineStart + 1,
		Offset: l.current,
		End:    l.current,
	})
}

// addError records a lexical error at the current token start
func (l *Lexer) addError(message string) {
	l.errorAt(l.line, l.start-l.lineStart+1, message)
}

// errorAt records a lexical error at an explicit position
func (l *Lexer) errorAt(line, column int, message string) {
	lexeme := ""
	if l.start < len(l.source) {
		end := l.current
		if end > l.start+20 {
			end = l.start + 20
		}
		lexeme = l.source[l.start:end]
	}

	l.errors = append(l.errors, LexError{
		Message: message,
		Line:    line,
		Column:  column,
		Lexeme:  lexeme,
	})
}

// IsKeyword checks if a string is a reserved word of the host grammar
func IsKeyword(s string) bool {
	_, ok := Keywords[s]
	return ok || reservedWords[s]
}

// IsValidIdentifier checks if a string is a valid identifier
func IsValidIdentifier(s string) bool {
	if s == "" {
		return false
	}

	for i, r := range s {
		if i == 0 && !unicode.IsLetter(r) && r != '_' {
			return false
		}
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_' {
			return false
		}
	}

	return !IsKeyword(s)
}
