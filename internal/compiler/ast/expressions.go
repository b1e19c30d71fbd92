package ast

import "strings"

// ExprNode is implemented by all expression nodes
type ExprNode interface {
	Node
	exprNode()
}

// Name represents a bare identifier
type Name struct {
	ID string
	Pos
}

func (*Name) node()     {}
func (*Name) exprNode() {}

// Attribute represents `value.attr`
type Attribute struct {
	Value ExprNode
	Attr  string
	Pos
}

func (*Attribute) node()     {}
func (*Attribute) exprNode() {}

// Keyword is a keyword argument `name=value`; Name is empty for `**value`
type Keyword struct {
	Name  string
	Value ExprNode
	Loc   SourceLocation
}

// Call represents a call expression
type Call struct {
	Func     ExprNode
	Args     []ExprNode
	Keywords []*Keyword
	Pos
}

func (*Call) node()     {}
func (*Call) exprNode() {}

// Keyword returns the keyword argument with the given name, or nil.
func (c *Call) Keyword(name string) *Keyword {
	for _, kw := range c.Keywords {
		if kw.Name == name {
			return kw
		}
	}
	return nil
}

// Subscript represents `value[index]`
type Subscript struct {
	Value ExprNode
	Index ExprNode // A TupleExpr for `X[a, b]`
	Pos
}

func (*Subscript) node()     {}
func (*Subscript) exprNode() {}

// SliceExpr represents `lower:upper:step` inside a subscript
type SliceExpr struct {
	Lower ExprNode
	Upper ExprNode
	Step  ExprNode
	Pos
}

func (*SliceExpr) node()     {}
func (*SliceExpr) exprNode() {}

// StringLit represents one or more adjacent string literals
type StringLit struct {
	Value  string // Decoded and concatenated value
	Prefix string // Prefix letters of the first literal (r, f, b, ...)
	Pos
}

func (*StringLit) node()     {}
func (*StringLit) exprNode() {}

// NumberLit represents an integer or float literal
type NumberLit struct {
	Value interface{} // int64, float64, or nil when not representable
	Float bool
	Pos
}

func (*NumberLit) node()     {}
func (*NumberLit) exprNode() {}

// BoolLit represents True or False
type BoolLit struct {
	Value bool
	Pos
}

func (*BoolLit) node()     {}
func (*BoolLit) exprNode() {}

// NoneLit represents None
type NoneLit struct {
	Pos
}

func (*NoneLit) node()     {}
func (*NoneLit) exprNode() {}

// EllipsisLit represents `...`
type EllipsisLit struct {
	Pos
}

func (*EllipsisLit) node()     {}
func (*EllipsisLit) exprNode() {}

// ListExpr represents a list display [a, b]
type ListExpr struct {
	Elements []ExprNode
	Pos
}

func (*ListExpr) node()     {}
func (*ListExpr) exprNode() {}

// TupleExpr represents a tuple, parenthesized or bare
type TupleExpr struct {
	Elements []ExprNode
	Pos
}

func (*TupleExpr) node()     {}
func (*TupleExpr) exprNode() {}

// SetExpr represents a set display {a, b}
type SetExpr struct {
	Elements []ExprNode
	Pos
}

func (*SetExpr) node()     {}
func (*SetExpr) exprNode() {}

// DictExpr represents a dict display; a nil key marks a `**spread` entry
type DictExpr struct {
	Keys   []ExprNode
	Values []ExprNode
	Pos
}

func (*DictExpr) node()     {}
func (*DictExpr) exprNode() {}

// BinaryExpr represents binary, comparison and boolean operations
type BinaryExpr struct {
	Left     ExprNode
	Operator string // "+", "|", "and", "not in", "is not", ...
	Right    ExprNode
	Pos
}

func (*BinaryExpr) node()     {}
func (*BinaryExpr) exprNode() {}

// UnaryExpr represents -x, +x, ~x, not x and await x
type UnaryExpr struct {
	Operator string
	Operand  ExprNode
	Pos
}

func (*UnaryExpr) node()     {}
func (*UnaryExpr) exprNode() {}

// IfExpr represents `body if test else orelse`
type IfExpr struct {
	Body   ExprNode
	Test   ExprNode
	OrElse ExprNode
	Pos
}

func (*IfExpr) node()     {}
func (*IfExpr) exprNode() {}

// StarredExpr represents *value or **value in calls and displays
type StarredExpr struct {
	Prefix string
	Value  ExprNode
	Pos
}

func (*StarredExpr) node()     {}
func (*StarredExpr) exprNode() {}

// NamedExpr represents `target := value`
type NamedExpr struct {
	Target ExprNode
	Value  ExprNode
	Pos
}

func (*NamedExpr) node()     {}
func (*NamedExpr) exprNode() {}

// Generator is one `for target in iter if cond` clause
type Generator struct {
	Target ExprNode
	Iter   ExprNode
	Ifs    []ExprNode
}

// ComprehensionExpr represents list, set, dict and generator comprehensions
type ComprehensionExpr struct {
	Kind       string   // "list", "set", "dict" or "generator"
	Element    ExprNode // Key for dict comprehensions
	Value      ExprNode // Value for dict comprehensions
	Generators []*Generator
	Pos
}

func (*ComprehensionExpr) node()     {}
func (*ComprehensionExpr) exprNode() {}

// LambdaExpr represents `lambda params: body`
type LambdaExpr struct {
	Params []*Param
	Body   ExprNode
	Pos
}

func (*LambdaExpr) node()     {}
func (*LambdaExpr) exprNode() {}

// DottedName returns "a.b.c" for a Name/Attribute chain, or "" for any
// other expression.
func DottedName(e ExprNode) string {
	switch n := e.(type) {
	case *Name:
		return n.ID
	case *Attribute:
		prefix := DottedName(n.Value)
		if prefix == "" {
			return ""
		}
		return prefix + "." + n.Attr
	}
	return ""
}

// LastName returns the final identifier of a dotted name ("c" for a.b.c).
func LastName(e ExprNode) string {
	name := DottedName(e)
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		return name[i+1:]
	}
	return name
}

// InspectExpr traverses an expression tree depth first. If fn returns
// false the children of that node are skipped.
func InspectExpr(e ExprNode, fn func(ExprNode) bool) {
	if e == nil || !fn(e) {
		return
	}
	switch n := e.(type) {
	case *Attribute:
		InspectExpr(n.Value, fn)
	case *Call:
		InspectExpr(n.Func, fn)
		for _, a := range n.Args {
			InspectExpr(a, fn)
		}
		for _, kw := range n.Keywords {
			InspectExpr(kw.Value, fn)
		}
	case *Subscript:
		InspectExpr(n.Value, fn)
		InspectExpr(n.Index, fn)
	case *SliceExpr:
		InspectExpr(n.Lower, fn)
		InspectExpr(n.Upper, fn)
		InspectExpr(n.Step, fn)
	case *ListExpr:
		inspectAll(n.Elements, fn)
	case *TupleExpr:
		inspectAll(n.Elements, fn)
	case *SetExpr:
		inspectAll(n.Elements, fn)
	case *DictExpr:
		inspectAll(n.Keys, fn)
		inspectAll(n.Values, fn)
	case *BinaryExpr:
		InspectExpr(n.Left, fn)
		InspectExpr(n.Right, fn)
	case *UnaryExpr:
		InspectExpr(n.Operand, fn)
	case *IfExpr:
		InspectExpr(n.Body, fn)
		InspectExpr(n.Test, fn)
		InspectExpr(n.OrElse, fn)
	case *StarredExpr:
		InspectExpr(n.Value, fn)
	case *NamedExpr:
		InspectExpr(n.Target, fn)
		InspectExpr(n.Value, fn)
	case *ComprehensionExpr:
		InspectExpr(n.Element, fn)
		InspectExpr(n.Value, fn)
		for _, g := range n.Generators {
			InspectExpr(g.Target, fn)
			InspectExpr(g.Iter, fn)
			inspectAll(g.Ifs, fn)
		}
	case *LambdaExpr:
		InspectExpr(n.Body, fn)
	}
}

func inspectAll(exprs []ExprNode, fn func(ExprNode) bool) {
	for _, e := range exprs {
		if e != nil {
			InspectExpr(e, fn)
		}
	}
}

// StmtExprs returns the expressions directly owned by a statement.
func StmtExprs(s StmtNode) []ExprNode {
	switch n := s.(type) {
	case *ExprStmt:
		return []ExprNode{n.Expr}
	case *AssignStmt:
		return append(append([]ExprNode{}, n.Targets...), n.Value)
	case *AnnAssignStmt:
		out := []ExprNode{n.Target, n.Annotation}
		if n.Value != nil {
			out = append(out, n.Value)
		}
		return out
	case *ReturnStmt:
		if n.Value != nil {
			return []ExprNode{n.Value}
		}
	}
	return nil
}

// Calls returns every call expression reachable from stmts, in source order.
func Calls(stmts []StmtNode) []*Call {
	var calls []*Call
	Walk(stmts, func(s StmtNode) bool {
		for _, e := range StmtExprs(s) {
			InspectExpr(e, func(x ExprNode) bool {
				if c, ok := x.(*Call); ok {
					calls = append(calls, c)
				}
				return true
			})
		}
		return true
	})
	return calls
}
