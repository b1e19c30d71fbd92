// Package codegen exports an IR graph as pipeline source. The planner
// checks export invariants and orders declarations; the generator lays the
// plan out as text.
package codegen

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/conduit-lang/pipegraph/internal/compiler/errors"
	"github.com/conduit-lang/pipegraph/internal/compiler/model"
	"github.com/conduit-lang/pipegraph/internal/compiler/parser"
)

// Generator renders a plan into source text
type Generator struct {
	buf    *bytes.Buffer
	indent int
	config *Config
}

// NewGenerator creates a generator. A nil config uses the defaults.
func NewGenerator(cfg *Config) *Generator {
	return &Generator{
		buf:    &bytes.Buffer{},
		indent: 0,
		config: cfg.normalized(),
	}
}

// Generate renders every declaration of the plan. Custom hook bodies that
// do not parse are rejected with an *errors.ExportError.
func (g *Generator) Generate(plan *Plan) (string, error) {
	chunks := make([]string, 0)
	chunks = append(chunks, plan.Header...)
	if len(plan.Imports) > 0 {
		chunks = append(chunks, strings.Join(plan.Imports, "\n"))
	}
	if len(plan.Config) > 0 {
		chunks = append(chunks, strings.Join(plan.Config, "\n"))
	}
	chunks = append(chunks, plan.Prelude...)

	for _, rec := range plan.Records {
		chunks = append(chunks, g.record(rec))
		chunks = append(chunks, rec.Trailing...)
	}
	for _, s := range plan.Stages {
		code, err := g.stage(s)
		if err != nil {
			return "", err
		}
		chunks = append(chunks, code)
		chunks = append(chunks, s.Trailing...)
	}
	if plan.Assembly != nil {
		chunks = append(chunks, g.assembly(plan.Assembly))
	}
	chunks = append(chunks, plan.Epilogue...)

	if len(chunks) == 0 {
		return "", nil
	}
	separator := strings.Repeat("\n", g.config.BlankLines+1)
	return strings.Join(chunks, separator) + "\n", nil
}

func (g *Generator) record(rec *RecordDecl) string {
	g.reset()
	g.writeLine("class %s(%s):", rec.Name, model.RecordBase)
	g.indent++

	parts := make([]func(), 0, 3)
	if rec.Doc != "" {
		parts = append(parts, func() { g.writeBlock(rec.Doc) })
	}
	if len(rec.Fields) > 0 {
		parts = append(parts, func() {
			for _, f := range rec.Fields {
				if f.Value != "" {
					g.writeLine("%s: %s = %s", f.Name, f.Annotation, f.Value)
				} else {
					g.writeLine("%s: %s", f.Name, f.Annotation)
				}
			}
		})
	}
	if rec.Members != "" {
		parts = append(parts, func() { g.writeBlock(rec.Members) })
	}
	g.writeParts(parts)

	g.indent--
	return g.String()
}

func (g *Generator) stage(s *StageDecl) (string, error) {
	for _, h := range s.Hooks {
		if perr := parser.CheckBlock(h.Body); perr != nil {
			return "", &errors.ExportError{
				Code:     errors.ErrExportFailed,
				Message:  fmt.Sprintf("%s body does not parse: %s (line %d)", h.Method, perr.Message, perr.Location.Line),
				NodeName: s.Stage.Name,
			}
		}
	}

	g.reset()
	g.writeLine("class %s(%s):", s.Stage.Name, s.Base)
	g.indent++

	parts := make([]func(), 0, len(s.Hooks)+3)
	if s.Doc != "" {
		parts = append(parts, func() { g.writeBlock(s.Doc) })
	}
	if len(s.Constants) > 0 {
		parts = append(parts, func() {
			for _, c := range s.Constants {
				if c.Annotation != "" {
					g.writeBlock(fmt.Sprintf("%s: %s = %s", c.Name, c.Annotation, c.Value))
				} else {
					g.writeBlock(fmt.Sprintf("%s = %s", c.Name, c.Value))
				}
			}
		})
	}
	for _, h := range s.Hooks {
		h := h
		parts = append(parts, func() { g.hook(h) })
	}
	if s.Members != "" {
		parts = append(parts, func() { g.writeBlock(s.Members) })
	}
	g.writeParts(parts)

	g.indent--
	return g.String(), nil
}

func (g *Generator) hook(h HookDecl) {
	prefix := ""
	if h.Async {
		prefix = "async "
	}
	returns := ""
	if h.Returns != "" {
		returns = " -> " + h.Returns
	}
	g.writeLine("%sdef %s(%s)%s:", prefix, h.Method, strings.Join(h.Params, ", "), returns)
	g.indent++
	g.writeBlock(h.Body)
	g.indent--
}

func (g *Generator) assembly(a *Assembly) string {
	g.reset()
	g.writeLine("%s = Graph(name=%s)", a.Var, quote(a.Name))
	for _, inst := range a.Instances {
		g.writeLine("%s = %s(%s)", inst.Var, inst.Ctor, strings.Join(inst.Args, ", "))
	}
	if len(a.Workers) > 0 {
		g.writeLine("%s.add_workers(%s)", a.Var, strings.Join(a.Workers, ", "))
	}
	for _, e := range a.Edges {
		g.writeLine("%s.set_dependency(%s, %s)", a.Var, e.Producer, e.Consumer)
	}
	if a.Entry != "" {
		g.writeLine("%s.set_entry(%s)", a.Var, a.Entry)
	}
	return g.String()
}

// writeParts writes class body sections separated by one blank line. An
// empty body gets pass.
func (g *Generator) writeParts(parts []func()) {
	if len(parts) == 0 {
		g.writeLine("pass")
		return
	}
	for i, part := range parts {
		if i > 0 {
			g.writeLine("")
		}
		part()
	}
}

// String returns the rendered text without the final newline
func (g *Generator) String() string {
	return strings.TrimRight(g.buf.String(), "\n")
}

func (g *Generator) reset() {
	g.buf.Reset()
	g.indent = 0
}

func (g *Generator) prefix() string {
	return strings.Repeat(" ", g.indent*g.config.IndentSize)
}

func (g *Generator) writeLine(format string, args ...interface{}) {
	if format == "" {
		g.buf.WriteString("\n")
		return
	}

	g.buf.WriteString(g.prefix())
	if len(args) > 0 {
		g.buf.WriteString(fmt.Sprintf(format, args...))
	} else {
		g.buf.WriteString(format)
	}
	g.buf.WriteString("\n")
}

// writeBlock writes dedented text at the current indentation. Lines inside
// multi-line strings keep their own whitespace.
func (g *Generator) writeBlock(text string) {
	g.buf.WriteString(model.Indent(text, g.prefix()))
	g.buf.WriteString("\n")
}
