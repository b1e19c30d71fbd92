package errors

import (
	"fmt"

	"github.com/conduit-lang/pipegraph/internal/compiler/ast"
)

// Type error codes (TYP100-199)
const (
	// ErrUndeclaredType indicates a reference to a type with no declaration
	ErrUndeclaredType ErrorCode = "TYP101"
	// ErrUnknownAnnotation indicates an annotation degraded to text
	ErrUnknownAnnotation ErrorCode = "TYP102"
	// ErrDuplicateField indicates a field declared twice in one record
	ErrDuplicateField ErrorCode = "TYP103"
	// ErrMissingInputType indicates a stage whose input type cannot be determined
	ErrMissingInputType ErrorCode = "TYP104"
)

// NewUnknownAnnotation creates a TYP102 warning
func NewUnknownAnnotation(loc ast.SourceLocation, record, field, annotation string) *Diagnostic {
	return newDiagnostic(
		ErrUnknownAnnotation,
		"unknown_annotation",
		CategoryType,
		SeverityWarning,
		fmt.Sprintf("Annotation '%s' of %s.%s is not recognized; treating it as text", annotation, record, field),
		loc,
	).WithNode(record).
		WithActual(annotation).
		WithSuggestion("Use str, int, float, bool, Literal[...], List[...], Optional[...] or a record type")
}
