package server

import (
	"encoding/json"
	goerrors "errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/conduit-lang/pipegraph/internal/compiler/codegen"
	"github.com/conduit-lang/pipegraph/internal/compiler/equivalence"
	"github.com/conduit-lang/pipegraph/internal/compiler/errors"
	"github.com/conduit-lang/pipegraph/internal/compiler/model"
	"github.com/conduit-lang/pipegraph/internal/compiler/snapshot"
	"github.com/conduit-lang/pipegraph/internal/compiler/visualize"
	"github.com/conduit-lang/pipegraph/internal/translate"
)

// ImportRequest carries a module to import
type ImportRequest struct {
	File   string `json:"file,omitempty"`
	Source string `json:"source"`
}

// ImportResponse is the imported graph with its warnings
type ImportResponse struct {
	Snapshot    *snapshot.Snapshot    `json:"snapshot"`
	Diagnostics errors.DiagnosticList `json:"diagnostics"`
}

// ExportRequest carries a graph snapshot to export
type ExportRequest struct {
	Snapshot json.RawMessage `json:"snapshot"`
}

// ExportResponse is the exported module
type ExportResponse struct {
	Source string `json:"source"`
}

// FormatResponse is the canonical text of a module
type FormatResponse struct {
	Source      string                `json:"source"`
	Changed     bool                  `json:"changed"`
	Diagnostics errors.DiagnosticList `json:"diagnostics"`
}

// EquivalentRequest carries two modules to compare
type EquivalentRequest struct {
	A string `json:"a"`
	B string `json:"b"`
}

// DotRequest carries either a module or a snapshot to render
type DotRequest struct {
	Source   string          `json:"source,omitempty"`
	Snapshot json.RawMessage `json:"snapshot,omitempty"`
}

// DotResponse is a Graphviz rendering
type DotResponse struct {
	DOT string `json:"dot"`
}

// ErrorPayload is the data of an error reply. Engine failures carry the
// diagnostic naming the offending node.
type ErrorPayload struct {
	Message    string             `json:"message"`
	Diagnostic *errors.Diagnostic `json:"diagnostic,omitempty"`
}

// requestError is a malformed request, as opposed to an engine failure
type requestError struct {
	id      string
	message string
	err     error
}

func (e *requestError) Error() string {
	if e.err != nil {
		return e.err.Error()
	}
	return e.message
}

func (e *requestError) Unwrap() error { return e.err }

func withID(err error, id string) error {
	var re *requestError
	if goerrors.As(err, &re) {
		if re.id == "" {
			re.id = id
		}
		return re
	}
	return &requestError{id: id, err: err}
}

func badRequest(format string, args ...interface{}) error {
	return &requestError{message: fmt.Sprintf(format, args...)}
}

// isEngineError reports whether err came from importing or exporting
func isEngineError(err error) bool {
	var d *errors.Diagnostic
	return goerrors.Is(err, errors.ErrParse) ||
		goerrors.Is(err, errors.ErrType) ||
		goerrors.Is(err, errors.ErrGraph) ||
		goerrors.Is(err, errors.ErrExport) ||
		goerrors.As(err, &d)
}

func errorPayload(err error) ErrorPayload {
	p := ErrorPayload{Message: err.Error()}
	if isEngineError(err) {
		p.Diagnostic = errors.ToDiagnostic(err)
	}
	return p
}

// operation decodes a request and runs it
type operation func(data json.RawMessage) (interface{}, error)

// engine runs translation requests with the server's settings
type engine struct {
	knownTypes []string
	render     *codegen.Config
	logger     *zap.Logger
}

func (e *engine) options(file string) []translate.Option {
	return []translate.Option{
		translate.WithKnownTypes(e.knownTypes...),
		translate.WithRenderConfig(e.render),
		translate.WithLogger(e.logger),
		translate.WithFile(file),
	}
}

// operations maps request names to their handlers
func (e *engine) operations() map[string]operation {
	return map[string]operation{
		"import": func(data json.RawMessage) (interface{}, error) {
			var req ImportRequest
			if err := decode(data, &req); err != nil {
				return nil, err
			}
			return e.importSource(req)
		},
		"export": func(data json.RawMessage) (interface{}, error) {
			var req ExportRequest
			if err := decode(data, &req); err != nil {
				return nil, err
			}
			return e.export(req)
		},
		"format": func(data json.RawMessage) (interface{}, error) {
			var req ImportRequest
			if err := decode(data, &req); err != nil {
				return nil, err
			}
			return e.format(req)
		},
		"equivalent": func(data json.RawMessage) (interface{}, error) {
			var req EquivalentRequest
			if err := decode(data, &req); err != nil {
				return nil, err
			}
			return e.equivalent(req)
		},
		"dot": func(data json.RawMessage) (interface{}, error) {
			var req DotRequest
			if err := decode(data, &req); err != nil {
				return nil, err
			}
			return e.dot(req)
		},
	}
}

func decode(data json.RawMessage, v interface{}) error {
	if len(data) == 0 {
		return badRequest("missing request data")
	}
	if err := json.Unmarshal(data, v); err != nil {
		return badRequest("invalid request data: %v", err)
	}
	return nil
}

func nonNil(diags errors.DiagnosticList) errors.DiagnosticList {
	if diags == nil {
		return errors.DiagnosticList{}
	}
	return diags
}

func (e *engine) importSource(req ImportRequest) (*ImportResponse, error) {
	if req.Source == "" {
		return nil, badRequest("source is required")
	}
	result, err := translate.Import(req.Source, e.options(req.File)...)
	if err != nil {
		return nil, err
	}
	return &ImportResponse{
		Snapshot:    snapshot.Encode(result.Graph),
		Diagnostics: nonNil(result.Diagnostics),
	}, nil
}

func (e *engine) decodeSnapshot(data json.RawMessage) (*model.Graph, error) {
	if len(data) == 0 || string(data) == "null" {
		return nil, badRequest("snapshot is required")
	}
	return snapshot.Unmarshal(data)
}

func (e *engine) export(req ExportRequest) (*ExportResponse, error) {
	g, err := e.decodeSnapshot(req.Snapshot)
	if err != nil {
		return nil, err
	}
	code, err := translate.Export(g, e.options("")...)
	if err != nil {
		return nil, err
	}
	return &ExportResponse{Source: code}, nil
}

func (e *engine) format(req ImportRequest) (*FormatResponse, error) {
	if req.Source == "" {
		return nil, badRequest("source is required")
	}
	code, result, err := translate.Format(req.Source, e.options(req.File)...)
	if err != nil {
		return nil, err
	}
	return &FormatResponse{
		Source:      code,
		Changed:     code != req.Source,
		Diagnostics: nonNil(result.Diagnostics),
	}, nil
}

func (e *engine) equivalent(req EquivalentRequest) (*equivalence.Result, error) {
	if req.A == "" || req.B == "" {
		return nil, badRequest("both programs are required")
	}
	result, err := translate.Equivalent(req.A, req.B, e.options("")...)
	if err != nil {
		return nil, err
	}
	return &result, nil
}

func (e *engine) dot(req DotRequest) (*DotResponse, error) {
	var g *model.Graph
	switch {
	case len(req.Snapshot) > 0:
		decoded, err := e.decodeSnapshot(req.Snapshot)
		if err != nil {
			return nil, err
		}
		g = decoded
	case req.Source != "":
		result, err := translate.Import(req.Source, e.options("")...)
		if err != nil {
			return nil, err
		}
		g = result.Graph
	default:
		return nil, badRequest("source or snapshot is required")
	}

	text, err := visualize.DOT(g)
	if err != nil {
		return nil, err
	}
	return &DotResponse{DOT: text}, nil
}
