package model

import (
	"strings"

	"github.com/conduit-lang/pipegraph/internal/compiler/lexer"
)

// stringLines returns the 0-based indexes of lines that begin inside a
// multi-line string literal. Their leading whitespace is string content and
// must never be changed by re-indentation.
func stringLines(text string) map[int]bool {
	protected := make(map[int]bool)
	if !strings.Contains(text, `"""`) && !strings.Contains(text, "'''") {
		return protected
	}
	tokens, _ := lexer.New(text).ScanTokens()
	for _, tok := range tokens {
		if tok.Type != lexer.TOKEN_STRING_LITERAL {
			continue
		}
		breaks := strings.Count(text[tok.Offset:tok.End], "\n")
		for i := 1; i <= breaks; i++ {
			protected[tok.Line-1+i] = true
		}
	}
	return protected
}

// Dedent removes the common leading whitespace of a block of statements.
// Lines inside multi-line strings are left untouched.
func Dedent(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	lines := strings.Split(text, "\n")
	protected := stringLines(text)

	common := -1
	for i, line := range lines {
		trimmed := strings.TrimLeft(line, " \t")
		if trimmed == "" || protected[i] {
			continue
		}
		if n := len(line) - len(trimmed); common < 0 || n < common {
			common = n
		}
	}
	if common > 0 {
		for i, line := range lines {
			if protected[i] {
				continue
			}
			if len(line) >= common {
				lines[i] = line[common:]
			} else {
				lines[i] = strings.TrimLeft(line, " \t")
			}
		}
	}
	return trimBlock(lines, protected)
}

// Indent prefixes every non-blank statement line of text with prefix.
// Lines inside multi-line strings are left untouched.
func Indent(text, prefix string) string {
	lines := strings.Split(text, "\n")
	protected := stringLines(text)
	for i, line := range lines {
		switch {
		case protected[i]:
		case strings.TrimSpace(line) == "":
			lines[i] = ""
		default:
			lines[i] = prefix + line
		}
	}
	return strings.Join(lines, "\n")
}

// NormalizeBody trims trailing whitespace from statement lines and drops
// surrounding blank lines
func NormalizeBody(body string) string {
	body = strings.ReplaceAll(body, "\r\n", "\n")
	return trimBlock(strings.Split(body, "\n"), stringLines(body))
}

func trimBlock(lines []string, protected map[int]bool) string {
	for i, line := range lines {
		if !protected[i] {
			lines[i] = strings.TrimRight(line, " \t")
		}
	}
	return strings.Trim(strings.Join(lines, "\n"), "\n")
}
