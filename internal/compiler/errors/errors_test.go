package errors

import (
	"encoding/json"
	goerrors "errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conduit-lang/pipegraph/internal/compiler/ast"
)

func TestErrorCodeUniqueness(t *testing.T) {
	codes := []ErrorCode{
		ErrSyntax, ErrInvalidHookBody,
		ErrUndeclaredType, ErrUnknownAnnotation, ErrDuplicateField, ErrMissingInputType,
		ErrDuplicateName, ErrDanglingEdge, ErrCycle, ErrIncompatibleEdge,
		ErrInvalidJoinAnchor, ErrInvalidEntry, ErrInvalidNode,
		ErrUnrecognizedDeclaration, ErrManualEdgeRequired, ErrNoPublishCall,
		ErrUnrecognizedAssembly, ErrPreservedMembers, ErrUnrecognizedConfig,
		ErrUnparseableStatement,
		ErrExportFailed, ErrMissingPrompt, ErrMissingConsume, ErrMissingFactory,
		ErrDanglingTypeReference,
	}

	seen := make(map[ErrorCode]bool)
	for _, code := range codes {
		assert.False(t, seen[code], "duplicate error code %s", code)
		seen[code] = true
		assert.Len(t, string(code), 6)
	}
}

func TestTypedErrorsUnwrapToSentinels(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		sentinel error
		contains string
	}{
		{"parse", &ParseError{Message: "Expected ':'", Line: 3, Column: 7}, ErrParse, "3:7"},
		{"type", &TypeError{Message: "unknown type 'Foo'", TypeName: "Foo", NodeName: "Query"}, ErrType, "Query"},
		{"graph", &GraphError{Message: "cycle detected", Nodes: []string{"A", "B"}}, ErrGraph, "A, B"},
		{"export", &ExportError{Message: "missing prompt", NodeName: "Summarize"}, ErrExport, "Summarize"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wrapped := fmt.Errorf("import failed: %w", tt.err)
			assert.True(t, goerrors.Is(wrapped, tt.sentinel))
			assert.Contains(t, wrapped.Error(), tt.contains)
		})
	}
}

func TestToDiagnostic(t *testing.T) {
	graphErr := fmt.Errorf("build: %w", &GraphError{
		Code:    ErrIncompatibleEdge,
		Message: "Echo cannot consume Summary",
		Nodes:   []string{"Summarize", "Echo"},
	})

	d := ToDiagnostic(graphErr)
	assert.Equal(t, ErrIncompatibleEdge, d.Code)
	assert.Equal(t, CategoryGraph, d.Category)
	assert.Equal(t, "Summarize", d.Node)
	assert.True(t, d.IsError())

	parse := ToDiagnostic(&ParseError{Message: "bad", Line: 2, Column: 1})
	assert.Equal(t, ErrSyntax, parse.Code)
	assert.Equal(t, 2, parse.Location.Line)

	plain := ToDiagnostic(goerrors.New("boom"))
	assert.Equal(t, "boom", plain.Message)
	assert.Equal(t, SeverityError, plain.Severity)
}

func TestDiagnosticJSONSerialization(t *testing.T) {
	d := NewManualEdgeRequired(ast.SourceLocation{Line: 12, Column: 9}, "Echo", "result")

	jsonStr, err := d.ToJSON()
	require.NoError(t, err)

	var parsed map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(jsonStr), &parsed))

	assert.Equal(t, "EXT302", parsed["code"])
	assert.Equal(t, "warning", parsed["severity"])
	assert.Equal(t, "Echo", parsed["node"])
	assert.Equal(t, "extraction", parsed["category"])
}

func TestDiagnosticFormatting(t *testing.T) {
	source := "class Query(Task):\n    owner: Mystery\n    text: str\n"
	d := NewUnknownAnnotation(ast.SourceLocation{Line: 2, Column: 12}, "Query", "owner", "Mystery").
		WithFile("pipeline.py").
		WithSource(source)

	formatted := d.Format()
	assert.Contains(t, formatted, "Type Error in pipeline.py")
	assert.Contains(t, formatted, "Line 2, Column 12")
	assert.Contains(t, formatted, "Node: Query")
	assert.Contains(t, formatted, "owner: Mystery ← Annotation 'Mystery'")
	assert.Contains(t, formatted, "Actual:   Mystery")

	compact := FormatCompact(d)
	assert.Equal(t, "pipeline.py:2:12: warning: "+d.Message+" (Query) [TYP102]", compact)
}

func TestDiagnosticListPartition(t *testing.T) {
	list := DiagnosticList{
		NewNoPublishCall(ast.SourceLocation{Line: 1, Column: 1}, "Echo"),
		NewSyntaxError(ast.SourceLocation{Line: 4, Column: 2}, "Expected ':'"),
		NewPreservedMembers(ast.SourceLocation{Line: 9, Column: 5}, "Echo", []string{"helper"}),
	}

	errCount, warnCount, infoCount := list.ErrorCount()
	assert.Equal(t, 1, errCount)
	assert.Equal(t, 1, warnCount)
	assert.Equal(t, 1, infoCount)

	assert.True(t, list.HasErrors())
	assert.True(t, list.HasWarnings())
	assert.Len(t, list.Errors(), 1)
	assert.Len(t, list.Warnings(), 1)
	assert.Len(t, list.ByCode(ErrNoPublishCall), 1)

	formatted := list.Error()
	assert.True(t, strings.HasPrefix(formatted, "1 error(s), 1 warning(s), 1 info"))

	assert.Equal(t, "no errors", DiagnosticList{}.Error())
	assert.False(t, DiagnosticList{}.HasErrors())
}

func TestWithMethods(t *testing.T) {
	d := NewSyntaxError(ast.SourceLocation{Line: 1, Column: 1}, "bad").
		WithExpected("':'").
		WithActual("NEWLINE").
		WithSuggestion("Add a colon").
		WithNode("Echo")

	assert.Equal(t, "':'", d.Expected)
	assert.Equal(t, "NEWLINE", d.Actual)
	assert.Equal(t, "Add a colon", d.Suggestion)
	assert.Equal(t, "Echo", d.Node)
}
