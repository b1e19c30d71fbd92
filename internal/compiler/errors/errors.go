// Package errors provides structured error handling for the pipeline
// translation engine. It defines the typed errors returned by import and
// export, and coded diagnostics with formatting for terminal output and
// JSON for editor collaborators.
package errors

import (
	"encoding/json"
	"strings"

	"github.com/conduit-lang/pipegraph/internal/compiler/ast"
)

// ErrorCode represents a unique diagnostic code
type ErrorCode string

// ErrorCategory represents the category of a diagnostic
type ErrorCategory string

const (
	// CategorySyntax represents syntax errors (SYN001-099)
	CategorySyntax ErrorCategory = "syntax"
	// CategoryType represents type errors (TYP100-199)
	CategoryType ErrorCategory = "type"
	// CategoryGraph represents graph structure errors (GRA200-299)
	CategoryGraph ErrorCategory = "graph"
	// CategoryExtraction represents extraction warnings (EXT300-399)
	CategoryExtraction ErrorCategory = "extraction"
	// CategoryCodeGen represents export errors (GEN600-699)
	CategoryCodeGen ErrorCategory = "codegen"
)

// ErrorSeverity indicates the severity level of a diagnostic
type ErrorSeverity string

const (
	// SeverityError indicates a problem that aborts import or export
	SeverityError ErrorSeverity = "error"
	// SeverityWarning indicates a problem that was worked around
	SeverityWarning ErrorSeverity = "warning"
	// SeverityInfo indicates informational messages
	SeverityInfo ErrorSeverity = "info"
)

// ErrorContext provides source code context for a diagnostic
type ErrorContext struct {
	// Current is the line of code where the problem occurred
	Current string `json:"current"`
	// SourceLines is a snippet of source code (before, error line, after)
	SourceLines []string `json:"source_lines"`
}

// Diagnostic is a structured message about a source program or graph.
// Diagnostics name the node that caused them whenever it is known.
type Diagnostic struct {
	// Code is the unique diagnostic code (e.g., "TYP101", "EXT302")
	Code ErrorCode `json:"code"`
	// Type is a machine-readable identifier
	Type string `json:"type"`
	// Category is the diagnostic category
	Category ErrorCategory `json:"category"`
	// Severity is the severity level
	Severity ErrorSeverity `json:"severity"`
	// Message is the primary message
	Message string `json:"message"`
	// Location is the source location, zero for graph-only problems
	Location ast.SourceLocation `json:"location"`
	// File is the source file name (optional)
	File string `json:"file,omitempty"`
	// Node is the name of the declaration or stage involved (optional)
	Node string `json:"node,omitempty"`
	// Context provides source code context
	Context *ErrorContext `json:"context,omitempty"`
	// Expected describes what was expected (optional)
	Expected string `json:"expected,omitempty"`
	// Actual describes what was actually found (optional)
	Actual string `json:"actual,omitempty"`
	// Suggestion provides a hint for fixing the problem (optional)
	Suggestion string `json:"suggestion,omitempty"`
}

// Error implements the error interface
func (d *Diagnostic) Error() string {
	return d.Format()
}

// Format returns a human-readable message for terminal output
func (d *Diagnostic) Format() string {
	return FormatDiagnostic(d)
}

// ToJSON returns the diagnostic as a JSON string
func (d *Diagnostic) ToJSON() (string, error) {
	bytes, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return "", err
	}
	return string(bytes), nil
}

// WithFile sets the source file name
func (d *Diagnostic) WithFile(file string) *Diagnostic {
	d.File = file
	return d
}

// WithNode sets the node the diagnostic refers to
func (d *Diagnostic) WithNode(node string) *Diagnostic {
	d.Node = node
	return d
}

// WithContext sets the source code context
func (d *Diagnostic) WithContext(current string, sourceLines []string) *Diagnostic {
	d.Context = &ErrorContext{
		Current:     current,
		SourceLines: sourceLines,
	}
	return d
}

// WithSource fills the context from the full source text, showing the
// lines around the diagnostic location
func (d *Diagnostic) WithSource(source string) *Diagnostic {
	if d.Location.Line < 1 {
		return d
	}
	lines := strings.Split(source, "\n")
	idx := d.Location.Line - 1
	if idx >= len(lines) {
		return d
	}

	snippet := make([]string, 0, 3)
	if idx > 0 {
		snippet = append(snippet, lines[idx-1])
	} else {
		snippet = append(snippet, "")
	}
	snippet = append(snippet, lines[idx])
	if idx+1 < len(lines) {
		snippet = append(snippet, lines[idx+1])
	}
	return d.WithContext(lines[idx], snippet)
}

// WithExpected sets the expected value
func (d *Diagnostic) WithExpected(expected string) *Diagnostic {
	d.Expected = expected
	return d
}

// WithActual sets the actual value
func (d *Diagnostic) WithActual(actual string) *Diagnostic {
	d.Actual = actual
	return d
}

// WithSuggestion sets a suggestion for fixing the problem
func (d *Diagnostic) WithSuggestion(suggestion string) *Diagnostic {
	d.Suggestion = suggestion
	return d
}

// IsError reports whether the diagnostic aborts the operation
func (d *Diagnostic) IsError() bool {
	return d.Severity == SeverityError
}

// DiagnosticList is a collection of diagnostics
type DiagnosticList []*Diagnostic

// Error implements the error interface
func (dl DiagnosticList) Error() string {
	if len(dl) == 0 {
		return "no errors"
	}
	return FormatDiagnosticList(dl)
}

// HasErrors returns true if the list contains any errors (excludes warnings/info)
func (dl DiagnosticList) HasErrors() bool {
	for _, d := range dl {
		if d.Severity == SeverityError {
			return true
		}
	}
	return false
}

// HasWarnings returns true if the list contains any warnings
func (dl DiagnosticList) HasWarnings() bool {
	for _, d := range dl {
		if d.Severity == SeverityWarning {
			return true
		}
	}
	return false
}

// Errors returns the import or export aborting diagnostics
func (dl DiagnosticList) Errors() DiagnosticList {
	return dl.filter(SeverityError)
}

// Warnings returns the ignorable diagnostics
func (dl DiagnosticList) Warnings() DiagnosticList {
	return dl.filter(SeverityWarning)
}

func (dl DiagnosticList) filter(severity ErrorSeverity) DiagnosticList {
	out := make(DiagnosticList, 0)
	for _, d := range dl {
		if d.Severity == severity {
			out = append(out, d)
		}
	}
	return out
}

// ByCode returns the diagnostics carrying the given code
func (dl DiagnosticList) ByCode(code ErrorCode) DiagnosticList {
	out := make(DiagnosticList, 0)
	for _, d := range dl {
		if d.Code == code {
			out = append(out, d)
		}
	}
	return out
}

// ToJSON returns all diagnostics as a JSON array
func (dl DiagnosticList) ToJSON() (string, error) {
	bytes, err := json.MarshalIndent(dl, "", "  ")
	if err != nil {
		return "", err
	}
	return string(bytes), nil
}

// ErrorCount returns the number of diagnostics by severity
func (dl DiagnosticList) ErrorCount() (errors, warnings, info int) {
	for _, d := range dl {
		switch d.Severity {
		case SeverityError:
			errors++
		case SeverityWarning:
			warnings++
		case SeverityInfo:
			info++
		}
	}
	return
}

// newDiagnostic creates a new Diagnostic with the given parameters
func newDiagnostic(
	code ErrorCode,
	typ string,
	category ErrorCategory,
	severity ErrorSeverity,
	message string,
	loc ast.SourceLocation,
) *Diagnostic {
	return &Diagnostic{
		Code:     code,
		Type:     typ,
		Category: category,
		Severity: severity,
		Message:  message,
		Location: loc,
	}
}
