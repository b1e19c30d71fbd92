package extractor

import (
	"strings"

	"github.com/conduit-lang/pipegraph/internal/compiler/ast"
	"github.com/conduit-lang/pipegraph/internal/compiler/errors"
	"github.com/conduit-lang/pipegraph/internal/compiler/model"
	"github.com/conduit-lang/pipegraph/internal/compiler/registry"
)

var builtinKinds = map[string]registry.ScalarKind{
	"str":   registry.KindText,
	"int":   registry.KindInteger,
	"float": registry.KindFloat,
	"bool":  registry.KindBoolean,
}

// Modules whose names are annotation vocabulary rather than record types
var annotationModules = map[string]bool{
	"typing":            true,
	"typing_extensions": true,
	"datetime":          true,
	"decimal":           true,
	"uuid":              true,
	"enum":              true,
	"pathlib":           true,
	"collections":       true,
	"collections.abc":   true,
	"pydantic":          true,
}

func (e *Extractor) extractRecord(c *ast.ClassDef) error {
	rec := registry.NewRecordType(c.Name)
	if c.Docstring != nil {
		rec.Doc = e.module.Text(c.Docstring)
	}

	members := make([]string, 0)
	for _, stmt := range c.Body {
		ann, ok := stmt.(*ast.AnnAssignStmt)
		if !ok {
			if !isPlaceholder(stmt) {
				members = append(members, e.memberText(stmt))
			}
			continue
		}
		target, ok := ann.Target.(*ast.Name)
		if !ok {
			members = append(members, e.memberText(stmt))
			continue
		}

		field, err := e.extractField(c.Name, target.ID, ann)
		if err != nil {
			return err
		}
		if err := rec.AddField(field); err != nil {
			if te, ok := err.(*errors.TypeError); ok {
				te.Location = ann.Location()
			}
			return err
		}
	}
	rec.Members = strings.Join(members, "\n\n")

	e.result.Records = append(e.result.Records, rec)
	return nil
}

func (e *Extractor) extractField(record, name string, ann *ast.AnnAssignStmt) (*registry.Field, error) {
	field := &registry.Field{Name: name, Required: true}
	a := &annotation{field: field, record: record, root: ann.Annotation}
	if err := e.translateAnnotation(a, ann.Annotation); err != nil {
		return nil, err
	}

	if ann.Value == nil {
		return field, nil
	}
	call, ok := ann.Value.(*ast.Call)
	if !ok || ast.LastName(call.Func) != "Field" || len(call.Args) > 1 {
		field.Default = e.module.Text(ann.Value)
		return field, nil
	}

	if len(call.Args) == 1 {
		field.Default = e.module.Text(call.Args[0])
	}
	extra := make([]string, 0)
	for _, kw := range call.Keywords {
		switch {
		case kw.Name == "default":
			field.Default = e.module.Text(kw.Value)
		case kw.Name == "description" && isPlainString(kw.Value):
			field.Description = kw.Value.(*ast.StringLit).Value
		case kw.Name == "":
			extra = append(extra, "**"+e.module.Text(kw.Value))
		default:
			extra = append(extra, kw.Name+"="+e.module.Text(kw.Value))
		}
	}
	field.Extra = strings.Join(extra, ", ")
	return field, nil
}

func isPlainString(expr ast.ExprNode) bool {
	s, ok := expr.(*ast.StringLit)
	return ok && !strings.ContainsAny(s.Prefix, "fFbB")
}

// annotation is the field annotation being translated
type annotation struct {
	field  *registry.Field
	record string
	root   ast.ExprNode
}

// translateAnnotation maps a field annotation onto the scalar-kind
// vocabulary. Shapes outside it degrade to text with a warning and keep the
// annotation verbatim.
func (e *Extractor) translateAnnotation(a *annotation, expr ast.ExprNode) error {
	field := a.field
	switch n := expr.(type) {
	case *ast.Name:
		return e.translateName(a, n.ID, expr)

	case *ast.StringLit:
		// Forward reference
		if n.Prefix == "" && !strings.ContainsAny(n.Value, " [].|,") {
			if err := e.translateName(a, n.Value, expr); err != nil {
				return err
			}
			field.RawAnnotation = e.module.Text(a.root)
			return nil
		}

	case *ast.Subscript:
		switch ast.LastName(n.Value) {
		case "List", "list", "Sequence":
			if !field.IsList {
				field.IsList = true
				return e.translateAnnotation(a, n.Index)
			}
		case "Optional":
			if field.Required {
				field.Required = false
				return e.translateAnnotation(a, n.Index)
			}
		case "Union":
			if inner, ok := optionalMember(tupleElements(n.Index)); ok && field.Required {
				field.Required = false
				return e.translateAnnotation(a, inner)
			}
		case "Literal":
			field.Kind = registry.KindEnum
			for _, el := range tupleElements(n.Index) {
				field.Literals = append(field.Literals, e.module.Text(el))
			}
			return nil
		}

	case *ast.BinaryExpr:
		if n.Operator == "|" && field.Required {
			if inner, ok := optionalMember([]ast.ExprNode{n.Left, n.Right}); ok {
				field.Required = false
				return e.translateAnnotation(a, inner)
			}
		}
	}

	return e.degrade(a, expr)
}

func (e *Extractor) translateName(a *annotation, name string, expr ast.ExprNode) error {
	if kind, ok := builtinKinds[name]; ok {
		a.field.Kind = kind
		return nil
	}
	if imp, ok := e.imported[name]; ok && annotationModules[imp.module] {
		return e.degrade(a, expr)
	}
	if !isTypeName(name) {
		return e.degrade(a, expr)
	}
	if err := e.resolveType(name, expr.Location(), a.record); err != nil {
		return err
	}
	a.field.Kind = registry.KindReference
	a.field.Reference = name
	return nil
}

// degrade keeps an annotation the vocabulary cannot express as text
func (e *Extractor) degrade(a *annotation, expr ast.ExprNode) error {
	e.warn(errors.NewUnknownAnnotation(expr.Location(), a.record, a.field.Name, e.module.Text(expr)))
	a.field.Kind = registry.KindText
	a.field.Reference = ""
	a.field.Literals = nil
	a.field.RawAnnotation = e.module.Text(a.root)
	return nil
}

// optionalMember returns X for a two-member union of X and None
func optionalMember(elements []ast.ExprNode) (ast.ExprNode, bool) {
	if len(elements) != 2 {
		return nil, false
	}
	if _, ok := elements[1].(*ast.NoneLit); ok {
		return elements[0], true
	}
	if _, ok := elements[0].(*ast.NoneLit); ok {
		return elements[1], true
	}
	return nil, false
}

func tupleElements(expr ast.ExprNode) []ast.ExprNode {
	if t, ok := expr.(*ast.TupleExpr); ok {
		return t.Elements
	}
	return []ast.ExprNode{expr}
}

// isTypeName reports whether a bare name looks like a class name
func isTypeName(name string) bool {
	return name != "" && name[0] >= 'A' && name[0] <= 'Z' && name != "Any"
}

// isPlaceholder reports whether a class body statement is only a
// placeholder (pass or ...)
func isPlaceholder(stmt ast.StmtNode) bool {
	switch s := stmt.(type) {
	case *ast.PassStmt:
		return true
	case *ast.ExprStmt:
		_, ok := s.Expr.(*ast.EllipsisLit)
		return ok
	}
	return false
}

// memberText returns a class member as dedented source text
func (e *Extractor) memberText(stmt ast.StmtNode) string {
	sp := stmt.Span()
	return model.Dedent(e.module.Segment(sp.Start, sp.End))
}
