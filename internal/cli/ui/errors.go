package ui

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"github.com/conduit-lang/pipegraph/internal/compiler/errors"
)

// ErrorLevel is the severity of a message
type ErrorLevel int

const (
	ErrorLevelError ErrorLevel = iota
	ErrorLevelWarning
	ErrorLevelInfo
)

// ErrorOptions configures FormatError
type ErrorOptions struct {
	Level        ErrorLevel
	Context      string
	Problem      string
	Suggestions  []string
	HelpCommands []string
	NoColor      bool
}

// FormatError renders a message with optional suggestions and help
// commands:
//
//	❌ STAGE NOT FOUND: Cannot find stage 'Sumary'.
//
//	   Did you mean: Summary?
//
//	   → List stages: pipegraph import pipeline.py
func FormatError(opts ErrorOptions) string {
	var b strings.Builder

	var header *color.Color
	var symbol string
	switch opts.Level {
	case ErrorLevelWarning:
		header = color.New(color.FgYellow, color.Bold)
		symbol = "⚠️"
	case ErrorLevelInfo:
		header = color.New(color.FgCyan, color.Bold)
		symbol = "ℹ️"
	default:
		header = color.New(color.FgRed, color.Bold)
		symbol = "❌"
	}
	yellow := color.New(color.FgYellow)
	cyan := color.New(color.FgCyan)
	if opts.NoColor {
		header.DisableColor()
		yellow.DisableColor()
		cyan.DisableColor()
	}

	if opts.Context != "" {
		header.Fprintf(&b, "%s %s: %s\n", symbol, strings.ToUpper(opts.Context), opts.Problem)
	} else {
		header.Fprintf(&b, "%s %s\n", symbol, opts.Problem)
	}
	if len(opts.Suggestions) > 0 {
		b.WriteString("\n")
		yellow.Fprintf(&b, "   Did you mean: %s?\n", strings.Join(opts.Suggestions, ", "))
	}
	if len(opts.HelpCommands) > 0 {
		b.WriteString("\n")
		for _, cmd := range opts.HelpCommands {
			cyan.Fprintf(&b, "   → %s\n", cmd)
		}
	}
	return b.String()
}

// FormatSuccess renders a success line
func FormatSuccess(message string, noColor bool) string {
	green := color.New(color.FgGreen, color.Bold)
	if noColor {
		green.DisableColor()
	}
	return green.Sprintf("✓ %s", message)
}

// WriteSuccess writes a success line
func WriteSuccess(w io.Writer, message string, noColor bool) {
	fmt.Fprintln(w, FormatSuccess(message, noColor))
}

// StageNotFoundError reports an unknown stage name with close matches
func StageNotFoundError(name string, stages []string, noColor bool) string {
	return FormatError(ErrorOptions{
		Context:     "stage not found",
		Problem:     fmt.Sprintf("Cannot find stage '%s'.", name),
		Suggestions: FindSimilar(name, stages, nil),
		HelpCommands: []string{
			"List stages: pipegraph import <file>",
		},
		NoColor: noColor,
	})
}

// WriteDiagnostics prints diagnostics in the compiler's terminal format.
// Warnings are yellow and errors red.
func WriteDiagnostics(w io.Writer, diags errors.DiagnosticList, noColor bool) {
	red := color.New(color.FgRed)
	yellow := color.New(color.FgYellow)
	if noColor {
		red.DisableColor()
		yellow.DisableColor()
	}
	for _, d := range diags {
		c := yellow
		if d.IsError() {
			c = red
		}
		c.Fprintln(w, strings.TrimRight(errors.FormatDiagnostic(d), "\n"))
	}
}

// WriteFailure prints an engine error as a red diagnostic
func WriteFailure(w io.Writer, file string, err error, noColor bool) {
	d := errors.ToDiagnostic(err)
	if file != "" && d.File == "" {
		d.WithFile(file)
	}
	WriteDiagnostics(w, errors.DiagnosticList{d}, noColor)
}
