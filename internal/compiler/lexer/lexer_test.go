package lexer

import (
	"strings"
	"testing"
)

// Helper function to create a lexer and scan tokens
func scanSource(source string) ([]Token, []LexError) {
	lexer := New(source)
	return lexer.ScanTokens()
}

// Helper to check if tokens match expected types
func checkTokenTypes(t *testing.T, tokens []Token, expected []TokenType) {
	t.Helper()

	// Remove EOF token for comparison
	actual := tokens
	if len(actual) > 0 && actual[len(actual)-1].Type == TOKEN_EOF {
		actual = actual[:len(actual)-1]
	}

	if len(actual) != len(expected) {
		t.Errorf("Expected %d tokens, got %d", len(expected), len(actual))
		t.Logf("Expected: %v", expected)
		t.Logf("Got: %v", tokensToTypes(actual))
		return
	}

	for i, token := range actual {
		if token.Type != expected[i] {
			t.Errorf("Token %d: expected %s, got %s", i, expected[i], token.Type)
		}
	}
}

func tokensToTypes(tokens []Token) []TokenType {
	types := make([]TokenType, len(tokens))
	for i, t := range tokens {
		types[i] = t.Type
	}
	return types
}

func TestLexer_SingleCharTokens(t *testing.T) {
	source := "(){}[],:;.=@|+-*/%<>&^~"
	tokens, errors := scanSource(source)

	if len(errors) > 0 {
		t.Errorf("Unexpected errors: %v", errors)
	}

	expected := []TokenType{
		TOKEN_LPAREN, TOKEN_RPAREN,
		TOKEN_LBRACE, TOKEN_RBRACE,
		TOKEN_LBRACKET, TOKEN_RBRACKET,
		TOKEN_COMMA, TOKEN_COLON, TOKEN_SEMICOLON,
		TOKEN_DOT, TOKEN_EQUALS, TOKEN_AT, TOKEN_PIPE,
		TOKEN_PLUS, TOKEN_MINUS, TOKEN_STAR, TOKEN_SLASH, TOKEN_PERCENT,
		TOKEN_LT, TOKEN_GT, TOKEN_AMP, TOKEN_CARET, TOKEN_TILDE,
		TOKEN_NEWLINE,
	}

	checkTokenTypes(t, tokens, expected)
}

func TestLexer_MultiCharOperators(t *testing.T) {
	source := "-> == != <= >= ** // := += -= **= << >> ..."
	tokens, errors := scanSource(source)

	if len(errors) > 0 {
		t.Errorf("Unexpected errors: %v", errors)
	}

	expected := []TokenType{
		TOKEN_ARROW, TOKEN_EQ, TOKEN_NEQ, TOKEN_LTE, TOKEN_GTE,
		TOKEN_DOUBLE_STAR, TOKEN_DOUBLE_SLASH, TOKEN_WALRUS,
		TOKEN_AUG_ASSIGN, TOKEN_AUG_ASSIGN, TOKEN_AUG_ASSIGN,
		TOKEN_SHIFT, TOKEN_SHIFT, TOKEN_ELLIPSIS,
		TOKEN_NEWLINE,
	}

	checkTokenTypes(t, tokens, expected)
}

func TestLexer_Keywords(t *testing.T) {
	source := "class def import from as pass async return True False None"
	tokens, _ := scanSource(source)

	expected := []TokenType{
		TOKEN_CLASS, TOKEN_DEF, TOKEN_IMPORT, TOKEN_FROM, TOKEN_AS,
		TOKEN_PASS, TOKEN_ASYNC, TOKEN_RETURN,
		TOKEN_TRUE, TOKEN_FALSE, TOKEN_NONE,
		TOKEN_NEWLINE,
	}

	checkTokenTypes(t, tokens, expected)

	if tokens[8].Literal != true || tokens[9].Literal != false {
		t.Errorf("Expected boolean literals, got %v and %v", tokens[8].Literal, tokens[9].Literal)
	}
}

func TestLexer_ReservedWords(t *testing.T) {
	source := "if x in items"
	tokens, _ := scanSource(source)

	expected := []TokenType{
		TOKEN_KEYWORD, TOKEN_IDENTIFIER, TOKEN_KEYWORD, TOKEN_IDENTIFIER,
		TOKEN_NEWLINE,
	}

	checkTokenTypes(t, tokens, expected)
}

func TestLexer_Identifiers(t *testing.T) {
	tests := []struct {
		source string
		lexeme string
	}{
		{"task", "task"},
		{"_private", "_private"},
		{"publish_work", "publish_work"},
		{"Query2", "Query2"},
		{"classify", "classify"},
	}

	for _, tt := range tests {
		t.Run(tt.source, func(t *testing.T) {
			tokens, errors := scanSource(tt.source)
			if len(errors) > 0 {
				t.Fatalf("Unexpected errors: %v", errors)
			}
			if tokens[0].Type != TOKEN_IDENTIFIER {
				t.Errorf("Expected IDENTIFIER, got %s", tokens[0].Type)
			}
			if tokens[0].Lexeme != tt.lexeme {
				t.Errorf("Expected lexeme %q, got %q", tt.lexeme, tokens[0].Lexeme)
			}
		})
	}
}

func TestLexer_IntegerLiterals(t *testing.T) {
	tests := []struct {
		source   string
		expected int64
	}{
		{"0", 0},
		{"42", 42},
		{"1_000_000", 1000000},
		{"0x1f", 31},
		{"0o17", 15},
		{"0b101", 5},
	}

	for _, tt := range tests {
		t.Run(tt.source, func(t *testing.T) {
			tokens, errors := scanSource(tt.source)
			if len(errors) > 0 {
				t.Fatalf("Unexpected errors: %v", errors)
			}
			if tokens[0].Type != TOKEN_INT_LITERAL {
				t.Fatalf("Expected INT_LITERAL, got %s", tokens[0].Type)
			}
			if tokens[0].Literal != tt.expected {
				t.Errorf("Expected %d, got %v", tt.expected, tokens[0].Literal)
			}
		})
	}
}

func TestLexer_FloatLiterals(t *testing.T) {
	tests := []struct {
		source   string
		expected float64
	}{
		{"3.14", 3.14},
		{"0.5", 0.5},
		{".25", 0.25},
		{"1e-3", 0.001},
		{"2.5E2", 250},
		{"1_0.5", 10.5},
	}

	for _, tt := range tests {
		t.Run(tt.source, func(t *testing.T) {
			tokens, errors := scanSource(tt.source)
			if len(errors) > 0 {
				t.Fatalf("Unexpected errors: %v", errors)
			}
			if tokens[0].Type != TOKEN_FLOAT_LITERAL {
				t.Fatalf("Expected FLOAT_LITERAL, got %s", tokens[0].Type)
			}
			if tokens[0].Literal != tt.expected {
				t.Errorf("Expected %v, got %v", tt.expected, tokens[0].Literal)
			}
		})
	}
}

func TestLexer_StringLiterals(t *testing.T) {
	tests := []struct {
		name     string
		source   string
		expected string
	}{
		{"double quoted", `"hello"`, "hello"},
		{"single quoted", `'hello'`, "hello"},
		{"escapes", `"a\tb\n"`, "a\tb\n"},
		{"escaped quote", `'it\'s'`, "it's"},
		{"raw", `r"\d+"`, `\d+`},
		{"f-string", `f"{name}!"`, "{name}!"},
		{"byte prefix", `b"data"`, "data"},
		{"unknown escape", `"\d"`, `\d`},
		{"empty", `""`, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tokens, errors := scanSource(tt.source)
			if len(errors) > 0 {
				t.Fatalf("Unexpected errors: %v", errors)
			}
			if tokens[0].Type != TOKEN_STRING_LITERAL {
				t.Fatalf("Expected STRING_LITERAL, got %s", tokens[0].Type)
			}
			if tokens[0].Literal != tt.expected {
				t.Errorf("Expected %q, got %q", tt.expected, tokens[0].Literal)
			}
			if tokens[0].Lexeme != tt.source {
				t.Errorf("Expected lexeme %q, got %q", tt.source, tokens[0].Lexeme)
			}
		})
	}
}

func TestLexer_TripleQuotedStrings(t *testing.T) {
	source := "\"\"\"First line\n\nA \"quoted\" word.\n\"\"\"\nx"
	tokens, errors := scanSource(source)

	if len(errors) > 0 {
		t.Fatalf("Unexpected errors: %v", errors)
	}

	expected := "First line\n\nA \"quoted\" word.\n"
	if tokens[0].Literal != expected {
		t.Errorf("Expected %q, got %q", expected, tokens[0].Literal)
	}
	if tokens[0].Line != 1 {
		t.Errorf("Expected string on line 1, got %d", tokens[0].Line)
	}

	checkTokenTypes(t, tokens, []TokenType{
		TOKEN_STRING_LITERAL, TOKEN_NEWLINE, TOKEN_IDENTIFIER, TOKEN_NEWLINE,
	})
	if tokens[2].Line != 5 {
		t.Errorf("Expected x on line 5, got %d", tokens[2].Line)
	}
}

func TestLexer_Comments(t *testing.T) {
	source := `# leading comment
x = 1  # trailing comment
# another
y = 2`

	tokens, errors := scanSource(source)
	if len(errors) > 0 {
		t.Errorf("Unexpected errors: %v", errors)
	}

	expected := []TokenType{
		TOKEN_IDENTIFIER, TOKEN_EQUALS, TOKEN_INT_LITERAL, TOKEN_NEWLINE,
		TOKEN_IDENTIFIER, TOKEN_EQUALS, TOKEN_INT_LITERAL, TOKEN_NEWLINE,
	}

	checkTokenTypes(t, tokens, expected)
}

func TestLexer_IndentedBlocks(t *testing.T) {
	source := `class Echo(TaskWorker):
    output_types: List[Type[Task]] = [Answer]

    def consume_work(self, task: Query):
        pass
graph = Graph(name="demo")
`

	tokens, errors := scanSource(source)
	if len(errors) > 0 {
		t.Fatalf("Unexpected errors: %v", errors)
	}

	expected := []TokenType{
		// class Echo(TaskWorker):
		TOKEN_CLASS, TOKEN_IDENTIFIER, TOKEN_LPAREN, TOKEN_IDENTIFIER, TOKEN_RPAREN, TOKEN_COLON, TOKEN_NEWLINE,
		// output_types: List[Type[Task]] = [Answer]
		TOKEN_INDENT, TOKEN_IDENTIFIER, TOKEN_COLON,
		TOKEN_IDENTIFIER, TOKEN_LBRACKET, TOKEN_IDENTIFIER, TOKEN_LBRACKET, TOKEN_IDENTIFIER, TOKEN_RBRACKET, TOKEN_RBRACKET,
		TOKEN_EQUALS, TOKEN_LBRACKET, TOKEN_IDENTIFIER, TOKEN_RBRACKET, TOKEN_NEWLINE,
		// def consume_work(self, task: Query):
		TOKEN_DEF, TOKEN_IDENTIFIER, TOKEN_LPAREN, TOKEN_IDENTIFIER, TOKEN_COMMA,
		TOKEN_IDENTIFIER, TOKEN_COLON, TOKEN_IDENTIFIER, TOKEN_RPAREN, TOKEN_COLON, TOKEN_NEWLINE,
		// pass
		TOKEN_INDENT, TOKEN_PASS, TOKEN_NEWLINE,
		TOKEN_DEDENT, TOKEN_DEDENT,
		// graph = Graph(name="demo")
		TOKEN_IDENTIFIER, TOKEN_EQUALS, TOKEN_IDENTIFIER, TOKEN_LPAREN,
		TOKEN_IDENTIFIER, TOKEN_EQUALS, TOKEN_STRING_LITERAL, TOKEN_RPAREN, TOKEN_NEWLINE,
	}

	checkTokenTypes(t, tokens, expected)
}

func TestLexer_DedentAtEOF(t *testing.T) {
	source := "class A:\n    x: int"
	tokens, errors := scanSource(source)
	if len(errors) > 0 {
		t.Fatalf("Unexpected errors: %v", errors)
	}

	expected := []TokenType{
		TOKEN_CLASS, TOKEN_IDENTIFIER, TOKEN_COLON, TOKEN_NEWLINE,
		TOKEN_INDENT, TOKEN_IDENTIFIER, TOKEN_COLON, TOKEN_IDENTIFIER, TOKEN_NEWLINE,
		TOKEN_DEDENT,
	}

	checkTokenTypes(t, tokens, expected)
}

func TestLexer_BlankLinesKeepIndentation(t *testing.T) {
	source := "class A:\n    x: int\n\n        \n    # note\n    y: str\n"
	tokens, errors := scanSource(source)
	if len(errors) > 0 {
		t.Fatalf("Unexpected errors: %v", errors)
	}

	expected := []TokenType{
		TOKEN_CLASS, TOKEN_IDENTIFIER, TOKEN_COLON, TOKEN_NEWLINE,
		TOKEN_INDENT,
		TOKEN_IDENTIFIER, TOKEN_COLON, TOKEN_IDENTIFIER, TOKEN_NEWLINE,
		TOKEN_IDENTIFIER, TOKEN_COLON, TOKEN_IDENTIFIER, TOKEN_NEWLINE,
		TOKEN_DEDENT,
	}

	checkTokenTypes(t, tokens, expected)
}

func TestLexer_ImplicitLineJoining(t *testing.T) {
	source := "graph.add_workers(\n    a,\n        b,\n)\n"
	tokens, errors := scanSource(source)
	if len(errors) > 0 {
		t.Fatalf("Unexpected errors: %v", errors)
	}

	expected := []TokenType{
		TOKEN_IDENTIFIER, TOKEN_DOT, TOKEN_IDENTIFIER, TOKEN_LPAREN,
		TOKEN_IDENTIFIER, TOKEN_COMMA, TOKEN_IDENTIFIER, TOKEN_COMMA,
		TOKEN_RPAREN, TOKEN_NEWLINE,
	}

	checkTokenTypes(t, tokens, expected)
}

func TestLexer_BackslashContinuation(t *testing.T) {
	source := "x = 1 + \\\n    2\n"
	tokens, errors := scanSource(source)
	if len(errors) > 0 {
		t.Fatalf("Unexpected errors: %v", errors)
	}

	checkTokenTypes(t, tokens, []TokenType{
		TOKEN_IDENTIFIER, TOKEN_EQUALS, TOKEN_INT_LITERAL, TOKEN_PLUS, TOKEN_INT_LITERAL, TOKEN_NEWLINE,
	})
}

func TestLexer_PositionTracking(t *testing.T) {
	source := `class Query(Task):
    text: str`

	tokens, _ := scanSource(source)

	if tokens[0].Line != 1 || tokens[0].Column != 1 {
		t.Errorf("Expected class at 1:1, got %d:%d", tokens[0].Line, tokens[0].Column)
	}
	if tokens[1].Column != 7 {
		t.Errorf("Expected Query at column 7, got %d", tokens[1].Column)
	}

	for _, token := range tokens {
		if token.Lexeme == "text" {
			if token.Line != 2 || token.Column != 5 {
				t.Errorf("Expected 'text' at 2:5, got %d:%d", token.Line, token.Column)
			}
			break
		}
	}
}

func TestLexer_ByteOffsets(t *testing.T) {
	source := `x = "hi"`
	tokens, _ := scanSource(source)

	str := tokens[2]
	if str.Offset != 4 || str.End != 8 {
		t.Errorf("Expected offsets 4..8, got %d..%d", str.Offset, str.End)
	}
	if source[str.Offset:str.End] != `"hi"` {
		t.Errorf("Offsets do not slice the lexeme: %q", source[str.Offset:str.End])
	}
}

// Test error cases
func TestLexer_UnterminatedString(t *testing.T) {
	source := `"unterminated string`
	_, errors := scanSource(source)

	if len(errors) == 0 {
		t.Fatal("Expected error for unterminated string")
	}

	if !strings.Contains(errors[0].Message, "Unterminated string") {
		t.Errorf("Wrong error message: %s", errors[0].Message)
	}
}

func TestLexer_UnterminatedStringAtLineEnd(t *testing.T) {
	source := "x = 'abc\ny = 1\n"
	_, errors := scanSource(source)

	if len(errors) == 0 {
		t.Fatal("Expected error for string broken by newline")
	}
	if errors[0].Line != 1 || errors[0].Column != 5 {
		t.Errorf("Expected error at 1:5, got %d:%d", errors[0].Line, errors[0].Column)
	}
}

func TestLexer_InvalidCharacter(t *testing.T) {
	source := `x = $`
	_, errors := scanSource(source)

	if len(errors) == 0 {
		t.Error("Expected error for invalid character")
	}
}

func TestLexer_InconsistentDedent(t *testing.T) {
	source := "class A:\n    x: int\n  y: int\n"
	_, errors := scanSource(source)

	if len(errors) == 0 {
		t.Fatal("Expected error for inconsistent dedent")
	}
	if !strings.Contains(errors[0].Message, "Unindent") {
		t.Errorf("Wrong error message: %s", errors[0].Message)
	}
}

func TestLexer_UnclosedBracket(t *testing.T) {
	source := "graph.add_workers(a, b"
	_, errors := scanSource(source)

	if len(errors) == 0 {
		t.Error("Expected error for unclosed bracket")
	}
}

func TestIsKeyword(t *testing.T) {
	tests := []struct {
		word     string
		expected bool
	}{
		{"class", true},
		{"None", true},
		{"lambda", true},
		{"yield", true},
		{"task", false},
		{"Task", false},
	}

	for _, tt := range tests {
		if got := IsKeyword(tt.word); got != tt.expected {
			t.Errorf("IsKeyword(%q) = %v, want %v", tt.word, got, tt.expected)
		}
	}
}

func TestIsValidIdentifier(t *testing.T) {
	tests := []struct {
		name     string
		expected bool
	}{
		{"Query", true},
		{"_hidden", true},
		{"name2", true},
		{"2name", false},
		{"with-dash", false},
		{"class", false},
		{"", false},
	}

	for _, tt := range tests {
		if got := IsValidIdentifier(tt.name); got != tt.expected {
			t.Errorf("IsValidIdentifier(%q) = %v, want %v", tt.name, got, tt.expected)
		}
	}
}
