package errors

import (
	"fmt"
	"strings"
)

// FormatDiagnostic returns a human-readable message for terminal output
func FormatDiagnostic(d *Diagnostic) string {
	var b strings.Builder

	file := d.File
	if file == "" {
		file = "<source>"
	}

	fmt.Fprintf(&b, "%s %s in %s\n", severityIcon(d.Severity), categoryDisplayName(d.Category), file)

	if d.Location.Line > 0 {
		fmt.Fprintf(&b, "Line %d, Column %d:\n", d.Location.Line, d.Location.Column)
	}
	if d.Node != "" {
		fmt.Fprintf(&b, "Node: %s\n", d.Node)
	}

	if d.Context != nil && len(d.Context.SourceLines) > 0 {
		for i, line := range d.Context.SourceLines {
			lineNum := d.Location.Line - 1 + i
			if i == 1 {
				fmt.Fprintf(&b, "%s  %s ← %s\n", formatLineNumber(lineNum), line, d.Message)
			} else if lineNum > 0 {
				fmt.Fprintf(&b, "%s  %s\n", formatLineNumber(lineNum), line)
			}
		}
	} else {
		fmt.Fprintf(&b, "  %s\n", d.Message)
	}

	if d.Expected != "" || d.Actual != "" {
		b.WriteString("\n")
		if d.Expected != "" {
			fmt.Fprintf(&b, "  Expected: %s\n", d.Expected)
		}
		if d.Actual != "" {
			fmt.Fprintf(&b, "  Actual:   %s\n", d.Actual)
		}
	}

	if d.Suggestion != "" {
		fmt.Fprintf(&b, "\n💡 %s\n", d.Suggestion)
	}

	return b.String()
}

// FormatDiagnosticList returns a formatted string of all diagnostics
func FormatDiagnosticList(list DiagnosticList) string {
	if len(list) == 0 {
		return "no errors"
	}

	var b strings.Builder

	errCount, warnCount, infoCount := list.ErrorCount()
	fmt.Fprintf(&b, "%d error(s), %d warning(s), %d info\n\n", errCount, warnCount, infoCount)

	for i, d := range list {
		if i > 0 {
			b.WriteString("\n" + strings.Repeat("-", 80) + "\n\n")
		}
		b.WriteString(d.Format())
	}

	return b.String()
}

// FormatCompact returns a compact one-line format
func FormatCompact(d *Diagnostic) string {
	file := d.File
	if file == "" {
		file = "<source>"
	}
	node := ""
	if d.Node != "" {
		node = " (" + d.Node + ")"
	}
	return fmt.Sprintf("%s:%d:%d: %s: %s%s [%s]",
		file, d.Location.Line, d.Location.Column,
		d.Severity, d.Message, node, d.Code)
}

// severityIcon returns the icon for a severity level
func severityIcon(severity ErrorSeverity) string {
	switch severity {
	case SeverityError:
		return "❌"
	case SeverityWarning:
		return "⚠️ "
	case SeverityInfo:
		return "ℹ️ "
	default:
		return "❓"
	}
}

// categoryDisplayName returns a human-readable category name
func categoryDisplayName(category ErrorCategory) string {
	switch category {
	case CategorySyntax:
		return "Syntax Error"
	case CategoryType:
		return "Type Error"
	case CategoryGraph:
		return "Graph Error"
	case CategoryExtraction:
		return "Extraction Warning"
	case CategoryCodeGen:
		return "Export Error"
	default:
		return "Error"
	}
}

// formatLineNumber formats a line number for display
func formatLineNumber(lineNum int) string {
	return fmt.Sprintf("%3d |", lineNum)
}
