// Package ast defines the syntax tree produced for pipeline source files.
// It covers the declarative subset of the host grammar: imports, class and
// function definitions, assignments and expression statements. Anything the
// parser does not model structurally is kept as a RawStmt spanning its
// verbatim source text.
package ast

import (
	"strings"

	"github.com/conduit-lang/pipegraph/internal/compiler/lexer"
)

// SourceLocation tracks the position of an AST node in source code
type SourceLocation struct {
	Line   int // Line number (1-indexed)
	Column int // Column number (1-indexed)
}

// Span is a half-open byte range into the parsed source
type Span struct {
	Start int
	End   int
}

// Pos is embedded by every node and records where it came from
type Pos struct {
	Loc   SourceLocation
	Start int // Byte offset of the first token
	End   int // Byte offset one past the last token
}

// Location returns the source location of the node.
func (p Pos) Location() SourceLocation {
	return p.Loc
}

// Span returns the byte range covered by the node.
func (p Pos) Span() Span {
	return Span{Start: p.Start, End: p.End}
}

// Node is the base interface for all AST nodes
type Node interface {
	Location() SourceLocation
	Span() Span
	node()
}

// StmtNode is implemented by all statement nodes
type StmtNode interface {
	Node
	stmtNode()
}

// Module is the root node of the AST
type Module struct {
	Source     string
	Statements []StmtNode
}

// Text returns the verbatim source covered by a node.
func (m *Module) Text(n Node) string {
	sp := n.Span()
	return m.Slice(sp.Start, sp.End)
}

// Slice returns source[start:end], clamped to the source bounds.
func (m *Module) Slice(start, end int) string {
	if start < 0 {
		start = 0
	}
	if end > len(m.Source) {
		end = len(m.Source)
	}
	if start >= end {
		return ""
	}
	return m.Source[start:end]
}

// Segment returns the source between start and end, widened to the start of
// the line when only whitespace precedes start on that line. This keeps the
// original indentation of block bodies and class members.
func (m *Module) Segment(start, end int) string {
	lineStart := strings.LastIndexByte(m.Slice(0, start), '\n') + 1
	if strings.TrimSpace(m.Slice(lineStart, start)) == "" {
		start = lineStart
	}
	return m.Slice(start, end)
}

// ImportName is one imported name with its optional alias
type ImportName struct {
	Name  string // Dotted name for plain imports, bare name for from-imports
	Alias string
}

// Bound returns the name the import binds in the module namespace.
func (n ImportName) Bound() string {
	if n.Alias != "" {
		return n.Alias
	}
	if i := strings.IndexByte(n.Name, '.'); i >= 0 {
		return n.Name[:i]
	}
	return n.Name
}

// ImportStmt represents `import a.b as c` or `from .mod import X, Y as Z`
type ImportStmt struct {
	From   bool         // true for from-imports
	Module string       // Source module of a from-import, including leading dots
	Names  []ImportName // Imported names; a single "*" for star imports
	Pos
}

func (*ImportStmt) node()     {}
func (*ImportStmt) stmtNode() {}

// ClassDef represents a class declaration
type ClassDef struct {
	Name       string
	Bases      []ExprNode
	Keywords   []*Keyword
	Decorators []ExprNode
	Docstring  *StringLit // First statement of the body when it is a string
	Body       []StmtNode // Body statements, docstring excluded
	NameLoc    SourceLocation
	Pos
}

func (*ClassDef) node()     {}
func (*ClassDef) stmtNode() {}

// Param is one function parameter
type Param struct {
	Name       string
	Prefix     string   // "", "*" or "**"
	Annotation ExprNode // May be nil
	Default    ExprNode // May be nil
	Loc        SourceLocation
}

// FunctionDef represents a `def` or `async def` declaration
type FunctionDef struct {
	Name       string
	Async      bool
	Params     []*Param
	Returns    ExprNode // Return annotation, may be nil
	Decorators []ExprNode
	Body       []StmtNode
	BodySpan   Span // Byte range of the body statements
	Pos
}

func (*FunctionDef) node()     {}
func (*FunctionDef) stmtNode() {}

// ParamNames returns the parameter names without prefixes.
func (f *FunctionDef) ParamNames() []string {
	names := make([]string, 0, len(f.Params))
	for _, p := range f.Params {
		names = append(names, p.Name)
	}
	return names
}

// AssignStmt represents `a = b = value`
type AssignStmt struct {
	Targets []ExprNode
	Value   ExprNode
	Pos
}

func (*AssignStmt) node()     {}
func (*AssignStmt) stmtNode() {}

// AnnAssignStmt represents `target: annotation [= value]`
type AnnAssignStmt struct {
	Target     ExprNode
	Annotation ExprNode
	Value      ExprNode // May be nil
	Pos
}

func (*AnnAssignStmt) node()     {}
func (*AnnAssignStmt) stmtNode() {}

// ExprStmt represents an expression evaluated for its effect
type ExprStmt struct {
	Expr ExprNode
	Pos
}

func (*ExprStmt) node()     {}
func (*ExprStmt) stmtNode() {}

// PassStmt represents `pass`
type PassStmt struct {
	Pos
}

func (*PassStmt) node()     {}
func (*PassStmt) stmtNode() {}

// ReturnStmt represents `return [value]`
type ReturnStmt struct {
	Value ExprNode // May be nil
	Pos
}

func (*ReturnStmt) node()     {}
func (*ReturnStmt) stmtNode() {}

// Clause is one header/body pair of a compound statement
type Clause struct {
	Keyword string // if, elif, else, for, while, with, try, except, finally
	Body    []StmtNode
	Loc     SourceLocation
}

// CompoundStmt represents if/for/while/with/try statements. Headers are not
// modelled; bodies are parsed so nested calls stay visible.
type CompoundStmt struct {
	Clauses []*Clause
	Pos
}

func (*CompoundStmt) node()     {}
func (*CompoundStmt) stmtNode() {}

// RawStmt is a statement kept only as verbatim text. Problem is set when
// its tokens do not form a statement, with ProblemToken marking where.
type RawStmt struct {
	Problem      string
	ProblemToken lexer.Token
	Pos
}

func (*RawStmt) node()     {}
func (*RawStmt) stmtNode() {}

// TokenLocation creates a SourceLocation from a lexer token
func TokenLocation(token lexer.Token) SourceLocation {
	return SourceLocation{
		Line:   token.Line,
		Column: token.Column,
	}
}

// Walk calls fn for every statement in stmts, descending into function,
// class and compound bodies. Returning false from fn skips the children.
func Walk(stmts []StmtNode, fn func(StmtNode) bool) {
	for _, s := range stmts {
		if !fn(s) {
			continue
		}
		switch n := s.(type) {
		case *ClassDef:
			Walk(n.Body, fn)
		case *FunctionDef:
			Walk(n.Body, fn)
		case *CompoundStmt:
			for _, c := range n.Clauses {
				Walk(c.Body, fn)
			}
		}
	}
}
