package errors

import (
	"fmt"

	"github.com/conduit-lang/pipegraph/internal/compiler/ast"
)

// Syntax error codes (SYN001-099)
const (
	// ErrSyntax indicates source text that does not parse
	ErrSyntax ErrorCode = "SYN001"
	// ErrInvalidHookBody indicates a hook body that is not a valid block
	ErrInvalidHookBody ErrorCode = "SYN002"
)

// NewSyntaxError creates a SYN001 error
func NewSyntaxError(loc ast.SourceLocation, message string) *Diagnostic {
	return newDiagnostic(
		ErrSyntax,
		"syntax_error",
		CategorySyntax,
		SeverityError,
		message,
		loc,
	)
}

// NewInvalidHookBody creates a SYN002 error
func NewInvalidHookBody(loc ast.SourceLocation, stage, method, reason string) *Diagnostic {
	return newDiagnostic(
		ErrInvalidHookBody,
		"invalid_hook_body",
		CategorySyntax,
		SeverityError,
		fmt.Sprintf("Body of %s.%s is not a valid block: %s", stage, method, reason),
		loc,
	).WithNode(stage).
		WithSuggestion("Hook bodies must parse as an indented block of statements")
}
