// Package translate is the entry point of the engine. It imports pipeline
// source into an IR graph and exports graphs back to source.
package translate

import (
	"go.uber.org/zap"

	"github.com/conduit-lang/pipegraph/internal/compiler/ast"
	"github.com/conduit-lang/pipegraph/internal/compiler/builder"
	"github.com/conduit-lang/pipegraph/internal/compiler/codegen"
	"github.com/conduit-lang/pipegraph/internal/compiler/equivalence"
	"github.com/conduit-lang/pipegraph/internal/compiler/errors"
	"github.com/conduit-lang/pipegraph/internal/compiler/extractor"
	"github.com/conduit-lang/pipegraph/internal/compiler/model"
	"github.com/conduit-lang/pipegraph/internal/compiler/parser"
)

// Result is a successfully imported graph with the warnings raised while
// importing it
type Result struct {
	Graph       *model.Graph
	Diagnostics errors.DiagnosticList
	// Locations maps declared record, stage and probe names to their
	// position in the imported source
	Locations map[string]ast.SourceLocation
}

// Option configures Import and Export
type Option func(*options)

type options struct {
	knownTypes []string
	logger     *zap.Logger
	render     *codegen.Config
	file       string
}

func newOptions(opts []Option) *options {
	o := &options{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// WithKnownTypes declares record types defined outside the module, given
// as qualified names like "shared.models.Customer"
func WithKnownTypes(qualified ...string) Option {
	return func(o *options) {
		o.knownTypes = append(o.knownTypes, qualified...)
	}
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithRenderConfig sets the export layout
func WithRenderConfig(cfg *codegen.Config) Option {
	return func(o *options) {
		o.render = cfg
	}
}

// WithFile names the source file in diagnostics
func WithFile(name string) Option {
	return func(o *options) {
		o.file = name
	}
}

// Import parses source and builds its graph. Syntax, type and graph errors
// abort the import; declarations that could not be modelled are kept as raw
// text and reported in Result.Diagnostics.
func Import(source string, opts ...Option) (*Result, error) {
	o := newOptions(opts)
	x, err := extractor.ExtractSource(source, extractor.Options{KnownTypes: o.knownTypes})
	if err != nil {
		o.logger.Debug("import failed", zap.String("file", o.file), zap.Error(err))
		return nil, err
	}
	g, err := builder.Build(x)
	if err != nil {
		o.logger.Debug("graph rejected", zap.String("file", o.file), zap.Error(err))
		return nil, err
	}

	diags := make(errors.DiagnosticList, 0, len(x.Diagnostics))
	for _, d := range x.Diagnostics {
		if d.Context == nil {
			d.WithSource(source)
		}
		if o.file != "" {
			d.WithFile(o.file)
		}
		diags = append(diags, d)
	}

	o.logger.Debug("imported pipeline",
		zap.String("file", o.file),
		zap.String("graph", g.Name),
		zap.Int("records", len(g.Registry.Records())),
		zap.Int("stages", len(g.Stages())),
		zap.Int("edges", len(g.Edges())),
		zap.Int("warnings", len(diags)),
	)
	return &Result{Graph: g, Diagnostics: diags, Locations: x.Locations}, nil
}

// Export renders g as source. Violated export invariants are returned as
// *errors.ExportError naming the offending node.
func Export(g *model.Graph, opts ...Option) (string, error) {
	o := newOptions(opts)
	plan, err := codegen.NewPlanner().WithLogger(o.logger).Plan(g)
	if err != nil {
		o.logger.Debug("export rejected", zap.String("graph", g.Name), zap.Error(err))
		return "", err
	}
	return codegen.NewGenerator(o.render).Generate(plan)
}

// Format imports source and exports it again
func Format(source string, opts ...Option) (string, *Result, error) {
	result, err := Import(source, opts...)
	if err != nil {
		return "", nil, err
	}
	code, err := Export(result.Graph, opts...)
	if err != nil {
		return "", result, err
	}
	return code, result, nil
}

// Equivalent imports both programs and compares their graphs
func Equivalent(a, b string, opts ...Option) (equivalence.Result, error) {
	o := newOptions(opts)
	return equivalence.CompareSource(a, b, extractor.Options{KnownTypes: o.knownTypes})
}

// CheckBlock reports whether text parses as a block of statements. Common
// indentation is removed first. The first syntax error is returned as an
// *errors.ParseError.
func CheckBlock(text string) error {
	if perr := parser.CheckBlock(model.Dedent(text)); perr != nil {
		return &errors.ParseError{
			Message: perr.Message,
			Line:    perr.Location.Line,
			Column:  perr.Location.Column,
		}
	}
	return nil
}
