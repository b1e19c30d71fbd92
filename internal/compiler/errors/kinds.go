package errors

import (
	goerrors "errors"
	"fmt"
	"strings"

	"github.com/conduit-lang/pipegraph/internal/compiler/ast"
)

// Sentinel errors for errors.Is checks against the typed errors below
var (
	ErrParse  = goerrors.New("parse error")
	ErrType   = goerrors.New("type error")
	ErrGraph  = goerrors.New("graph error")
	ErrExport = goerrors.New("export error")
)

// ParseError reports source text that is not valid in the host grammar
type ParseError struct {
	Message string
	Line    int
	Column  int
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error at %d:%d: %s", e.Line, e.Column, e.Message)
}

func (e *ParseError) Unwrap() error { return ErrParse }

// Diagnostic converts the error into a coded diagnostic
func (e *ParseError) Diagnostic() *Diagnostic {
	return NewSyntaxError(ast.SourceLocation{Line: e.Line, Column: e.Column}, e.Message)
}

// TypeError reports a reference to a type that is neither declared nor
// external
type TypeError struct {
	Code     ErrorCode
	Message  string
	TypeName string
	NodeName string
	Location ast.SourceLocation
}

func (e *TypeError) Error() string {
	if e.NodeName != "" {
		return fmt.Sprintf("type error in %s: %s", e.NodeName, e.Message)
	}
	return fmt.Sprintf("type error: %s", e.Message)
}

func (e *TypeError) Unwrap() error { return ErrType }

// Diagnostic converts the error into a coded diagnostic
func (e *TypeError) Diagnostic() *Diagnostic {
	code := e.Code
	if code == "" {
		code = ErrUndeclaredType
	}
	d := newDiagnostic(code, "type_error", CategoryType, SeverityError, e.Message, e.Location).
		WithNode(e.NodeName)
	if e.TypeName != "" {
		d.WithActual(e.TypeName)
	}
	return d
}

// GraphError reports a structural problem with the graph. Nodes lists every
// node involved, e.g. all members of a cycle or both ends of an edge.
type GraphError struct {
	Code    ErrorCode
	Message string
	Nodes   []string
}

func (e *GraphError) Error() string {
	if len(e.Nodes) == 0 {
		return fmt.Sprintf("graph error: %s", e.Message)
	}
	return fmt.Sprintf("graph error: %s (nodes: %s)", e.Message, strings.Join(e.Nodes, ", "))
}

func (e *GraphError) Unwrap() error { return ErrGraph }

// Diagnostic converts the error into a coded diagnostic
func (e *GraphError) Diagnostic() *Diagnostic {
	code := e.Code
	if code == "" {
		code = ErrDanglingEdge
	}
	d := newDiagnostic(code, "graph_error", CategoryGraph, SeverityError, e.Message, ast.SourceLocation{})
	if len(e.Nodes) > 0 {
		d.WithNode(e.Nodes[0])
	}
	return d
}

// ExportError reports a graph invariant violated at export time
type ExportError struct {
	Code     ErrorCode
	Message  string
	NodeName string
}

func (e *ExportError) Error() string {
	if e.NodeName != "" {
		return fmt.Sprintf("export error in %s: %s", e.NodeName, e.Message)
	}
	return fmt.Sprintf("export error: %s", e.Message)
}

func (e *ExportError) Unwrap() error { return ErrExport }

// Diagnostic converts the error into a coded diagnostic
func (e *ExportError) Diagnostic() *Diagnostic {
	code := e.Code
	if code == "" {
		code = ErrExportFailed
	}
	return newDiagnostic(code, "export_error", CategoryCodeGen, SeverityError, e.Message, ast.SourceLocation{}).
		WithNode(e.NodeName)
}

// ToDiagnostic converts any error returned by the engine into a diagnostic.
// Errors that are not engine errors become uncoded diagnostics.
func ToDiagnostic(err error) *Diagnostic {
	var (
		diag *Diagnostic
		pe   *ParseError
		te   *TypeError
		ge   *GraphError
		ee   *ExportError
	)
	switch {
	case goerrors.As(err, &diag):
		return diag
	case goerrors.As(err, &pe):
		return pe.Diagnostic()
	case goerrors.As(err, &te):
		return te.Diagnostic()
	case goerrors.As(err, &ge):
		return ge.Diagnostic()
	case goerrors.As(err, &ee):
		return ee.Diagnostic()
	}
	return &Diagnostic{Severity: SeverityError, Message: err.Error()}
}
