package errors

import (
	"fmt"

	"github.com/conduit-lang/pipegraph/internal/compiler/ast"
)

// Extraction warning codes (EXT300-399). None of these abort an import.
const (
	// ErrUnrecognizedDeclaration indicates a top-level statement kept verbatim
	ErrUnrecognizedDeclaration ErrorCode = "EXT301"
	// ErrManualEdgeRequired indicates a publish call whose type is not static
	ErrManualEdgeRequired ErrorCode = "EXT302"
	// ErrNoPublishCall indicates a stage that never publishes work
	ErrNoPublishCall ErrorCode = "EXT303"
	// ErrUnrecognizedAssembly indicates an assembly statement kept verbatim
	ErrUnrecognizedAssembly ErrorCode = "EXT304"
	// ErrPreservedMembers indicates stage members kept as an opaque blob
	ErrPreservedMembers ErrorCode = "EXT305"
	// ErrUnrecognizedConfig indicates a constructor argument that is not a scalar
	ErrUnrecognizedConfig ErrorCode = "EXT306"
	// ErrUnparseableStatement indicates verbatim text that does not parse
	ErrUnparseableStatement ErrorCode = "EXT307"
)

// NewUnrecognizedDeclaration creates an EXT301 warning
func NewUnrecognizedDeclaration(loc ast.SourceLocation, name, reason string) *Diagnostic {
	message := fmt.Sprintf("Declaration kept verbatim: %s", reason)
	if name != "" {
		message = fmt.Sprintf("Declaration '%s' kept verbatim: %s", name, reason)
	}
	return newDiagnostic(
		ErrUnrecognizedDeclaration,
		"unrecognized_declaration",
		CategoryExtraction,
		SeverityWarning,
		message,
		loc,
	).WithNode(name)
}

// NewManualEdgeRequired creates an EXT302 warning
func NewManualEdgeRequired(loc ast.SourceLocation, stage, expr string) *Diagnostic {
	return newDiagnostic(
		ErrManualEdgeRequired,
		"manual_edge_required",
		CategoryExtraction,
		SeverityWarning,
		fmt.Sprintf("Stage %s publishes '%s' whose type cannot be determined statically; connect it manually", stage, expr),
		loc,
	).WithNode(stage).
		WithSuggestion("Publish a constructor call such as self.publish_work(Result(...)) or add the edge in the editor")
}

// NewNoPublishCall creates an EXT303 warning
func NewNoPublishCall(loc ast.SourceLocation, stage string) *Diagnostic {
	return newDiagnostic(
		ErrNoPublishCall,
		"no_publish_call",
		CategoryExtraction,
		SeverityWarning,
		fmt.Sprintf("Stage %s never calls publish_work; no outgoing edges were inferred", stage),
		loc,
	).WithNode(stage)
}

// NewUnrecognizedAssembly creates an EXT304 warning
func NewUnrecognizedAssembly(loc ast.SourceLocation, text string) *Diagnostic {
	return newDiagnostic(
		ErrUnrecognizedAssembly,
		"unrecognized_assembly",
		CategoryExtraction,
		SeverityWarning,
		fmt.Sprintf("Assembly statement kept verbatim: %s", text),
		loc,
	)
}

// NewPreservedMembers creates an EXT305 info diagnostic
func NewPreservedMembers(loc ast.SourceLocation, stage string, members []string) *Diagnostic {
	return newDiagnostic(
		ErrPreservedMembers,
		"preserved_members",
		CategoryExtraction,
		SeverityInfo,
		fmt.Sprintf("Stage %s has %d unrecognized member(s) kept verbatim: %v", stage, len(members), members),
		loc,
	).WithNode(stage)
}

// NewUnrecognizedConfig creates an EXT306 warning
func NewUnrecognizedConfig(loc ast.SourceLocation, stage, key string) *Diagnostic {
	return newDiagnostic(
		ErrUnrecognizedConfig,
		"unrecognized_config",
		CategoryExtraction,
		SeverityWarning,
		fmt.Sprintf("Constructor argument %s of %s is not a literal or variable reference; it is kept as an expression", key, stage),
		loc,
	).WithNode(stage)
}

// NewUnparseableStatement creates an EXT307 warning for text kept verbatim
// although it does not parse. node names the enclosing declaration, if any.
func NewUnparseableStatement(loc ast.SourceLocation, node, reason string) *Diagnostic {
	message := fmt.Sprintf("Statement does not parse and is kept verbatim: %s", reason)
	if node != "" {
		message = fmt.Sprintf("Statement in %s does not parse and is kept verbatim: %s", node, reason)
	}
	return newDiagnostic(
		ErrUnparseableStatement,
		"unparseable_statement",
		CategoryExtraction,
		SeverityWarning,
		message,
		loc,
	).WithNode(node)
}
