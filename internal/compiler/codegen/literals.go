package codegen

import (
	"strings"

	"github.com/conduit-lang/pipegraph/internal/compiler/ast"
	"github.com/conduit-lang/pipegraph/internal/compiler/model"
	"github.com/conduit-lang/pipegraph/internal/compiler/parser"
)

// stringValue parses text as a single string literal expression
func stringValue(text string) (string, bool) {
	module, errs := parser.ParseSource(text)
	if len(errs) > 0 || len(module.Statements) != 1 {
		return "", false
	}
	stmt, ok := module.Statements[0].(*ast.ExprStmt)
	if !ok {
		return "", false
	}
	lit, ok := stmt.Expr.(*ast.StringLit)
	if !ok {
		return "", false
	}
	return lit.Value, true
}

// literalMatches reports whether literal still spells value
func literalMatches(literal, value string) bool {
	v, ok := stringValue(literal)
	return ok && v == value
}

// textLiteral renders a text constant. The source literal is reused until
// an edit changes the value.
func textLiteral(t *model.Text) string {
	if t.Literal != "" && literalMatches(t.Literal, t.Value) {
		return t.Literal
	}
	if strings.Contains(t.Value, "\n") {
		return tripleQuote(t.Value)
	}
	return quote(t.Value)
}

// docLiteral renders a docstring kept as source text
func docLiteral(doc string) string {
	if _, ok := stringValue(doc); ok {
		return doc
	}
	return tripleQuote(doc)
}

var quoteEscapes = strings.NewReplacer(
	`\`, `\\`,
	`"`, `\"`,
	"\n", `\n`,
	"\r", `\r`,
	"\t", `\t`,
)

// quote renders a double-quoted string using only the escapes the lexer
// decodes
func quote(s string) string {
	return `"` + quoteEscapes.Replace(s) + `"`
}

var tripleEscapes = strings.NewReplacer(
	`\`, `\\`,
	`"""`, `\"\"\"`,
	"\r", `\r`,
)

// tripleQuote renders a multi-line string
func tripleQuote(s string) string {
	tail := ""
	if strings.HasSuffix(s, `"`) {
		s, tail = s[:len(s)-1], `\"`
	}
	return `"""` + tripleEscapes.Replace(s) + tail + `"""`
}
