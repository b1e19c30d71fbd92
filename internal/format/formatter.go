// Package format rewrites pipeline source into its canonical layout by
// importing and re-exporting it.
package format

import (
	"go.uber.org/zap"

	"github.com/conduit-lang/pipegraph/internal/compiler/codegen"
	"github.com/conduit-lang/pipegraph/internal/translate"
)

// Formatter formats pipeline source
type Formatter struct {
	config     *codegen.Config
	knownTypes []string
	logger     *zap.Logger
}

// New creates a formatter. A nil config uses the defaults.
func New(config *codegen.Config, knownTypes []string, logger *zap.Logger) *Formatter {
	if config == nil {
		config = codegen.DefaultConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Formatter{config: config, knownTypes: knownTypes, logger: logger}
}

// Format returns the canonical text of source together with the import
// result, whose diagnostics carry the warnings raised on the way
func (f *Formatter) Format(file, source string) (string, *translate.Result, error) {
	return translate.Format(source,
		translate.WithFile(file),
		translate.WithKnownTypes(f.knownTypes...),
		translate.WithRenderConfig(f.config),
		translate.WithLogger(f.logger),
	)
}
