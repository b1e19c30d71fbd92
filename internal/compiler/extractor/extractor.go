// Package extractor recognizes pipeline declarations in a parsed module:
// record types, stages, module statements and the assembly section. What it
// does not recognize is kept as raw text so nothing is lost on export.
package extractor

import (
	"fmt"
	"strings"

	"github.com/conduit-lang/pipegraph/internal/compiler/ast"
	"github.com/conduit-lang/pipegraph/internal/compiler/errors"
	"github.com/conduit-lang/pipegraph/internal/compiler/model"
	"github.com/conduit-lang/pipegraph/internal/compiler/parser"
	"github.com/conduit-lang/pipegraph/internal/compiler/registry"
)

// Options configures an extraction
type Options struct {
	// KnownTypes are qualified names of record types declared outside the
	// module, e.g. "shared.models.Customer"
	KnownTypes []string
}

// NameEdge is a producer -> consumer relation between declared names
type NameEdge struct {
	Producer string
	Consumer string
	Loc      ast.SourceLocation
}

// Extraction is everything recognized in one module
type Extraction struct {
	GraphName   string
	GraphVar    string
	HasAssembly bool

	Records    []*registry.RecordType
	Externals  []*registry.ExternalType
	Stages     []*model.StageNode
	Probes     []*model.ProbeNode
	Raw        []*model.RawNode
	Statements []*model.Statement
	Edges      []NameEdge
	Entry      string

	// Publishes maps stage names to the types their hooks publish literally
	Publishes map[string][]string
	// Locations maps declared names to where they were declared
	Locations map[string]ast.SourceLocation

	Diagnostics errors.DiagnosticList
}

type importedName struct {
	module string
	name   string
}

// Extractor walks the top-level statements of a module
type Extractor struct {
	module *ast.Module
	result *Extraction

	// Names declared by the module, collected before extraction
	recordNames map[string]bool
	stageNames  map[string]bool
	rawNames    map[string]bool
	imported    map[string]importedName
	known       map[string]*registry.ExternalType

	externals map[string]bool
	stages    map[string]*model.StageNode
	instances map[string]string // assembly variable -> declared name

	assemblyStart int
	lastDecl      string
	// started is set once an import, declaration or config statement is seen
	started bool
}

// ExtractSource parses and extracts source. The first syntax error is
// returned as an *errors.ParseError.
func ExtractSource(source string, opts Options) (*Extraction, error) {
	module, errs := parser.ParseSource(source)
	if len(errs) > 0 {
		first := errs[0]
		return nil, &errors.ParseError{
			Message: first.Message,
			Line:    first.Location.Line,
			Column:  first.Location.Column,
		}
	}
	return Extract(module, opts)
}

// Extract recognizes the declarations of a parsed module. Unknown
// declarations become raw nodes with a warning; a type reference that
// cannot be resolved aborts the extraction with an *errors.TypeError.
func Extract(module *ast.Module, opts Options) (*Extraction, error) {
	e := &Extractor{
		module: module,
		result: &Extraction{
			GraphVar:    model.DefaultGraphVar,
			Records:     make([]*registry.RecordType, 0),
			Externals:   make([]*registry.ExternalType, 0),
			Stages:      make([]*model.StageNode, 0),
			Probes:      make([]*model.ProbeNode, 0),
			Raw:         make([]*model.RawNode, 0),
			Statements:  make([]*model.Statement, 0),
			Edges:       make([]NameEdge, 0),
			Publishes:   make(map[string][]string),
			Locations:   make(map[string]ast.SourceLocation),
			Diagnostics: make(errors.DiagnosticList, 0),
		},
		recordNames:   make(map[string]bool),
		stageNames:    make(map[string]bool),
		rawNames:      make(map[string]bool),
		imported:      make(map[string]importedName),
		known:         make(map[string]*registry.ExternalType),
		externals:     make(map[string]bool),
		stages:        make(map[string]*model.StageNode),
		instances:     make(map[string]string),
		assemblyStart: -1,
	}
	for _, q := range opts.KnownTypes {
		ext := registry.ParseQualified(q)
		e.known[ext.Name] = ext
	}

	if err := e.run(); err != nil {
		return nil, err
	}
	return e.result, nil
}

func (e *Extractor) run() error {
	e.declare()

	assembly := make([]ast.StmtNode, 0)
	for i, stmt := range e.module.Statements {
		e.checkRaw(stmt)
		switch s := stmt.(type) {
		case *ast.ImportStmt:
			e.addStatement(model.StatementImport, stmt)
		case *ast.ClassDef:
			if err := e.classDecl(s); err != nil {
				return err
			}
		default:
			if e.assemblyStart >= 0 && i >= e.assemblyStart {
				assembly = append(assembly, stmt)
				continue
			}
			e.moduleStatement(stmt)
		}
	}

	for _, stmt := range assembly {
		e.assemblyStatement(stmt)
	}
	if !e.result.HasAssembly {
		e.inferEdges()
	}
	e.checkPrompts()
	return nil
}

// declare collects every name the module declares so references can be
// resolved regardless of declaration order
func (e *Extractor) declare() {
	for i, stmt := range e.module.Statements {
		switch s := stmt.(type) {
		case *ast.ImportStmt:
			for _, n := range s.Names {
				if n.Name == "*" {
					continue
				}
				if s.From {
					e.imported[n.Bound()] = importedName{module: s.Module, name: n.Name}
				} else {
					e.imported[n.Bound()] = importedName{module: n.Name}
				}
			}
		case *ast.ClassDef:
			switch e.classify(s) {
			case declRecord:
				e.recordNames[s.Name] = true
			case declStage:
				e.stageNames[s.Name] = true
			default:
				e.rawNames[s.Name] = true
			}
		case *ast.FunctionDef:
			e.rawNames[s.Name] = true
		case *ast.AssignStmt:
			if e.assemblyStart < 0 && isGraphConstructor(s.Value) {
				e.assemblyStart = i
			}
		}
	}
}

type declKind int

const (
	declRaw declKind = iota
	declRecord
	declStage
)

// classify matches a class against the recognized base identifiers
func (e *Extractor) classify(c *ast.ClassDef) declKind {
	if len(c.Decorators) > 0 || len(c.Keywords) > 0 || len(c.Bases) != 1 {
		return declRaw
	}
	base := ast.LastName(c.Bases[0])
	if base == model.RecordBase {
		return declRecord
	}
	if _, ok := model.BaseVariants[base]; ok {
		return declStage
	}
	return declRaw
}

func (e *Extractor) classDecl(c *ast.ClassDef) error {
	defer func() { e.started = true }()
	e.result.Locations[c.Name] = c.NameLoc
	switch e.classify(c) {
	case declRecord:
		if err := e.extractRecord(c); err != nil {
			return err
		}
	case declStage:
		ok, err := e.extractStage(c)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
	default:
		reason := "base class is not a recognized task or worker type"
		switch {
		case len(c.Decorators) > 0:
			reason = "decorated classes are not modelled"
		case len(c.Bases) != 1:
			reason = "classes must have exactly one recognized base"
		}
		e.warn(errors.NewUnrecognizedDeclaration(c.NameLoc, c.Name, reason))
		e.addRaw(c, c.Name, e.placement(c))
		return nil
	}
	e.lastDecl = c.Name
	return nil
}

// moduleStatement handles a top-level statement outside the assembly
// section. Assignments that only depend on imports and other configuration
// become hoisted configuration statements.
func (e *Extractor) moduleStatement(stmt ast.StmtNode) {
	switch s := stmt.(type) {
	case *ast.AssignStmt:
		if e.isConfig(s.Value) {
			e.addStatement(model.StatementConfig, stmt)
			return
		}
		for _, t := range s.Targets {
			if name := ast.DottedName(t); name != "" && !strings.Contains(name, ".") {
				e.rawNames[name] = true
			}
		}
		e.addRaw(stmt, "", model.Prelude)
	case *ast.AnnAssignStmt:
		if s.Value != nil && e.isConfig(s.Value) && e.isConfig(s.Annotation) {
			e.addStatement(model.StatementConfig, stmt)
			return
		}
		if name, ok := s.Target.(*ast.Name); ok {
			e.rawNames[name.ID] = true
		}
		e.addRaw(stmt, "", model.Prelude)
	case *ast.FunctionDef:
		e.addRaw(stmt, s.Name, model.Prelude)
	default:
		e.addRaw(stmt, "", model.Prelude)
	}
}

// checkRaw warns about verbatim statements in stmt, nested bodies
// included, that do not parse
func (e *Extractor) checkRaw(stmt ast.StmtNode) {
	name := ""
	switch s := stmt.(type) {
	case *ast.ClassDef:
		name = s.Name
	case *ast.FunctionDef:
		name = s.Name
	}
	ast.Walk([]ast.StmtNode{stmt}, func(n ast.StmtNode) bool {
		if raw, ok := n.(*ast.RawStmt); ok && raw.Problem != "" {
			e.warn(errors.NewUnparseableStatement(ast.TokenLocation(raw.ProblemToken), name, raw.Problem))
		}
		return true
	})
}

// isConfig reports whether an expression refers to no name the module
// declares itself
func (e *Extractor) isConfig(expr ast.ExprNode) bool {
	config := true
	ast.InspectExpr(expr, func(x ast.ExprNode) bool {
		if n, ok := x.(*ast.Name); ok {
			if e.recordNames[n.ID] || e.stageNames[n.ID] || e.rawNames[n.ID] {
				config = false
			}
		}
		return config
	})
	return config
}

func (e *Extractor) placement(stmt ast.StmtNode) model.Placement {
	if e.assemblyStart < 0 {
		return model.Prelude
	}
	for i, s := range e.module.Statements {
		if s == stmt {
			if i >= e.assemblyStart {
				return model.Epilogue
			}
			break
		}
	}
	return model.Prelude
}

func (e *Extractor) addStatement(kind model.StatementKind, stmt ast.StmtNode) {
	e.started = true
	text := e.module.Text(stmt)
	for _, existing := range e.result.Statements {
		if existing.Text == text {
			return
		}
	}
	e.result.Statements = append(e.result.Statements, &model.Statement{Kind: kind, Text: text})
}

func (e *Extractor) addRaw(stmt ast.StmtNode, name string, placement model.Placement) {
	raw := &model.RawNode{
		Name:      name,
		Text:      model.NormalizeBody(e.module.Segment(stmt.Span().Start, stmt.Span().End)),
		Placement: placement,
	}
	switch {
	case placement == model.Prelude && !e.started:
		raw.Placement = model.Header
	case placement == model.Prelude:
		raw.After = e.lastDecl
	}
	e.result.Raw = append(e.result.Raw, raw)
}

func (e *Extractor) warn(d *errors.Diagnostic) {
	e.result.Diagnostics = append(e.result.Diagnostics, d)
}

// resolveType maps a type name used by a declaration to a record or an
// external reference, registering externals on first use
func (e *Extractor) resolveType(name string, loc ast.SourceLocation, node string) error {
	if e.recordNames[name] || e.externals[name] {
		return nil
	}

	var ext *registry.ExternalType
	if imp, ok := e.imported[name]; ok && imp.name != "" {
		ext = &registry.ExternalType{Module: imp.module, Name: name, Imported: true}
		if imp.module == registry.FrameworkModule {
			ext.Implicit = isImplicit(name)
		}
	} else if known, ok := e.known[name]; ok {
		ext = &registry.ExternalType{Module: known.Module, Name: known.Name}
	} else if isImplicit(name) {
		ext = &registry.ExternalType{Module: registry.FrameworkModule, Name: name, Implicit: true}
	} else if e.rawNames[name] {
		ext = &registry.ExternalType{Name: name, Imported: true}
	}

	if ext == nil {
		return &errors.TypeError{
			Code:     errors.ErrUndeclaredType,
			Message:  fmt.Sprintf("type %s is neither declared in the module nor a known external type", name),
			TypeName: name,
			NodeName: node,
			Location: loc,
		}
	}
	e.externals[name] = true
	e.result.Externals = append(e.result.Externals, ext)
	return nil
}

func isImplicit(name string) bool {
	for _, ext := range registry.ImplicitExternals() {
		if ext.Name == name {
			return true
		}
	}
	return false
}
