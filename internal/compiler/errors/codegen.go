package errors

import (
	"fmt"

	"github.com/conduit-lang/pipegraph/internal/compiler/ast"
)

// Export error codes (GEN600-699)
const (
	// ErrExportFailed indicates a general export failure
	ErrExportFailed ErrorCode = "GEN600"
	// ErrMissingPrompt indicates a model-backed stage without prompt text
	ErrMissingPrompt ErrorCode = "GEN601"
	// ErrMissingConsume indicates a plain stage without a consume body
	ErrMissingConsume ErrorCode = "GEN602"
	// ErrMissingFactory indicates a subgraph stage without a factory
	ErrMissingFactory ErrorCode = "GEN603"
	// ErrDanglingTypeReference indicates a reference to a type that is not declared
	ErrDanglingTypeReference ErrorCode = "GEN604"
)

// NewExportRisk creates a warning for an imported node that is missing
// something export requires
func NewExportRisk(loc ast.SourceLocation, code ErrorCode, node, message string) *Diagnostic {
	return newDiagnostic(
		code,
		"export_risk",
		CategoryCodeGen,
		SeverityWarning,
		fmt.Sprintf("Stage %s cannot be exported: %s", node, message),
		loc,
	).WithNode(node)
}
