package lsp

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"go.lsp.dev/jsonrpc2"
	"go.lsp.dev/protocol"
	"go.lsp.dev/uri"
	"go.uber.org/zap"

	"github.com/conduit-lang/pipegraph/internal/compiler/ast"
	"github.com/conduit-lang/pipegraph/internal/compiler/errors"
	"github.com/conduit-lang/pipegraph/internal/translate"
)

const diagnosticSource = "pipegraph"

func (s *Server) translateOptions(u uri.URI) []translate.Option {
	return []translate.Option{
		translate.WithKnownTypes(s.knownTypes...),
		translate.WithLogger(s.logger),
		translate.WithRenderConfig(s.render),
		translate.WithFile(u.Filename()),
	}
}

// analyze imports and exports text, converting every warning and the
// first error into LSP diagnostics
func (s *Server) analyze(u uri.URI, text string) []protocol.Diagnostic {
	out := make([]protocol.Diagnostic, 0)
	_, result, err := translate.Format(text, s.translateOptions(u)...)

	var locations map[string]ast.SourceLocation
	if result != nil {
		locations = result.Locations
		for _, d := range result.Diagnostics {
			out = append(out, convertDiagnostic(text, d, locations))
		}
	}
	if err != nil {
		out = append(out, convertDiagnostic(text, errors.ToDiagnostic(err), locations))
	}
	return out
}

// convertDiagnostic places d on its source line. Graph and export
// diagnostics carry no location and are placed on the declaration of the
// node they name.
func convertDiagnostic(text string, d *errors.Diagnostic, locations map[string]ast.SourceLocation) protocol.Diagnostic {
	loc := d.Location
	if loc.Line == 0 && d.Node != "" {
		loc = locations[d.Node]
	}
	out := protocol.Diagnostic{
		Range:    lineRange(text, loc),
		Severity: convertSeverity(d.Severity),
		Source:   diagnosticSource,
		Message:  d.Message,
	}
	if d.Code != "" {
		out.Code = string(d.Code)
	}
	if d.Suggestion != "" {
		out.Message = fmt.Sprintf("%s\n%s", d.Message, d.Suggestion)
	}
	return out
}

// lineRange spans from the location's column to the end of its line.
// Source locations are 1-indexed, LSP positions 0-indexed.
func lineRange(text string, loc ast.SourceLocation) protocol.Range {
	if loc.Line <= 0 {
		return protocol.Range{}
	}
	line := uint32(loc.Line - 1)
	start := uint32(0)
	if loc.Column > 0 {
		start = uint32(loc.Column - 1)
	}
	end := start
	lines := strings.Split(text, "\n")
	if int(line) < len(lines) {
		if n := uint32(len(lines[line])); n > end {
			end = n
		}
	}
	return protocol.Range{
		Start: protocol.Position{Line: line, Character: start},
		End:   protocol.Position{Line: line, Character: end},
	}
}

// convertSeverity converts diagnostic severity to LSP severity
func convertSeverity(severity errors.ErrorSeverity) protocol.DiagnosticSeverity {
	switch severity {
	case errors.SeverityWarning:
		return protocol.DiagnosticSeverityWarning
	case errors.SeverityInfo:
		return protocol.DiagnosticSeverityInformation
	default:
		return protocol.DiagnosticSeverityError
	}
}

func (s *Server) handleTextDocumentDocumentSymbol(ctx context.Context, reply jsonrpc2.Replier, req jsonrpc2.Request) error {
	var params protocol.DocumentSymbolParams
	if err := json.Unmarshal(req.Params(), &params); err != nil {
		return s.replyWithError(ctx, reply, jsonrpc2.InvalidParams, "Failed to parse document symbol params")
	}

	text, ok := s.document(params.TextDocument.URI)
	if !ok {
		return reply(ctx, []protocol.DocumentSymbol{}, nil)
	}
	return reply(ctx, s.documentSymbols(params.TextDocument.URI, text), nil)
}

// documentSymbols lists records, stages and probes in declaration order.
// A module that does not import yields no symbols.
func (s *Server) documentSymbols(u uri.URI, text string) []protocol.DocumentSymbol {
	symbols := make([]protocol.DocumentSymbol, 0)
	result, err := translate.Import(text, s.translateOptions(u)...)
	if err != nil {
		s.logger.Debug("no symbols", zap.String("uri", string(u)), zap.Error(err))
		return symbols
	}

	add := func(name, detail string, kind protocol.SymbolKind) {
		loc, ok := result.Locations[name]
		if !ok {
			return
		}
		r := lineRange(text, loc)
		symbols = append(symbols, protocol.DocumentSymbol{
			Name:           name,
			Detail:         detail,
			Kind:           kind,
			Range:          r,
			SelectionRange: r,
		})
	}

	g := result.Graph
	for _, rec := range g.Registry.Records() {
		add(rec.Name, fmt.Sprintf("%d fields", len(rec.Fields)), protocol.SymbolKindStruct)
	}
	for _, st := range g.Stages() {
		add(st.Name, fmt.Sprintf("%s: %s -> %s", st.Variant, st.InputType, strings.Join(st.OutputTypes, ", ")), protocol.SymbolKindClass)
	}
	for _, p := range g.Probes() {
		direction := "input"
		if p.Output {
			direction = "output"
		}
		add(p.Name, fmt.Sprintf("%s probe: %s", direction, p.TypeName), protocol.SymbolKindEvent)
	}

	sort.SliceStable(symbols, func(i, j int) bool {
		return symbols[i].Range.Start.Line < symbols[j].Range.Start.Line
	})
	return symbols
}

func (s *Server) handleTextDocumentFormatting(ctx context.Context, reply jsonrpc2.Replier, req jsonrpc2.Request) error {
	var params protocol.DocumentFormattingParams
	if err := json.Unmarshal(req.Params(), &params); err != nil {
		return s.replyWithError(ctx, reply, jsonrpc2.InvalidParams, "Failed to parse formatting params")
	}

	text, ok := s.document(params.TextDocument.URI)
	if !ok {
		return reply(ctx, []protocol.TextEdit{}, nil)
	}
	edits, err := s.formatEdits(params.TextDocument.URI, text)
	if err != nil {
		return s.replyWithError(ctx, reply, jsonrpc2.InternalError, err.Error())
	}
	return reply(ctx, edits, nil)
}

// formatEdits replaces the whole document with its export. An already
// formatted document yields no edits.
func (s *Server) formatEdits(u uri.URI, text string) ([]protocol.TextEdit, error) {
	formatted, _, err := translate.Format(text, s.translateOptions(u)...)
	if err != nil {
		return nil, err
	}
	if formatted == text {
		return []protocol.TextEdit{}, nil
	}

	lines := strings.Split(text, "\n")
	last := len(lines) - 1
	return []protocol.TextEdit{{
		Range: protocol.Range{
			Start: protocol.Position{},
			End:   protocol.Position{Line: uint32(last), Character: uint32(len(lines[last]))},
		},
		NewText: formatted,
	}}, nil
}
