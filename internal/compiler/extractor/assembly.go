package extractor

import (
	"github.com/conduit-lang/pipegraph/internal/compiler/ast"
	"github.com/conduit-lang/pipegraph/internal/compiler/errors"
	"github.com/conduit-lang/pipegraph/internal/compiler/model"
)

// isGraphConstructor reports whether expr is a Graph(...) call. The first
// assignment of one starts the assembly section.
func isGraphConstructor(expr ast.ExprNode) bool {
	call, ok := expr.(*ast.Call)
	return ok && ast.LastName(call.Func) == "Graph"
}

// assemblyStatement recognizes one statement of the assembly section.
// Anything it cannot model is kept as an epilogue raw node.
func (e *Extractor) assemblyStatement(stmt ast.StmtNode) {
	switch s := stmt.(type) {
	case *ast.AssignStmt:
		if e.assemblyAssign(s) {
			return
		}
	case *ast.ExprStmt:
		if call, ok := s.Expr.(*ast.Call); ok && e.graphCall(call) {
			return
		}
	case *ast.FunctionDef:
		e.addRaw(stmt, s.Name, model.Epilogue)
		return
	}

	e.warn(errors.NewUnrecognizedAssembly(stmt.Location(), firstLine(e.module.Text(stmt))))
	e.addRaw(stmt, "", model.Epilogue)
}

func (e *Extractor) assemblyAssign(s *ast.AssignStmt) bool {
	if len(s.Targets) != 1 {
		return false
	}
	target, ok := s.Targets[0].(*ast.Name)
	if !ok {
		return false
	}
	if _, taken := e.instances[target.ID]; taken {
		return false
	}

	call, ok := s.Value.(*ast.Call)
	if !ok {
		return e.assemblyConfig(s)
	}
	ctor := ast.DottedName(call.Func)

	switch {
	case isGraphConstructor(call):
		if e.result.HasAssembly {
			return false
		}
		e.result.HasAssembly = true
		e.result.GraphVar = target.ID
		if kw := call.Keyword("name"); kw != nil {
			if lit, ok := kw.Value.(*ast.StringLit); ok {
				e.result.GraphName = lit.Value
			}
		} else if len(call.Args) == 1 {
			if lit, ok := call.Args[0].(*ast.StringLit); ok {
				e.result.GraphName = lit.Value
			}
		}
		e.instances[target.ID] = ""
		return true

	case ctor == model.DataInputCtor || ctor == model.DataOutputCtor:
		return e.probe(target, call, ctor == model.DataOutputCtor)

	case e.stages[ctor] != nil:
		stage := e.stages[ctor]
		if e.instantiated(stage.Name) {
			return false
		}
		stage.Var = target.ID
		stage.Config = e.config(stage.Name, call)
		e.instances[target.ID] = stage.Name
		return true
	}
	return e.assemblyConfig(s)
}

// assemblyConfig hoists an assignment in the assembly section that depends
// on no declared name
func (e *Extractor) assemblyConfig(s *ast.AssignStmt) bool {
	if !e.isConfig(s.Value) {
		return false
	}
	for _, t := range s.Targets {
		n, ok := t.(*ast.Name)
		if !ok || e.instances[n.ID] != "" || n.ID == e.result.GraphVar {
			return false
		}
	}
	e.addStatement(model.StatementConfig, s)
	return true
}

func (e *Extractor) instantiated(name string) bool {
	for _, n := range e.instances {
		if n == name {
			return true
		}
	}
	return false
}

// probe records a DataInput/DataOutput instance
func (e *Extractor) probe(target *ast.Name, call *ast.Call, output bool) bool {
	var typeExpr ast.ExprNode
	if kw := call.Keyword("task_type"); kw != nil {
		typeExpr = kw.Value
	} else if len(call.Args) > 0 {
		typeExpr = call.Args[0]
	}
	typeName, ok := typeExpr.(*ast.Name)
	if !ok {
		return false
	}

	p := &model.ProbeNode{Name: target.ID, Output: output, TypeName: typeName.ID}
	expected := 1
	if kw := call.Keyword("task_type"); kw != nil {
		expected = 0
	}
	if !output {
		if kw := call.Keyword("data"); kw != nil {
			p.Data = e.module.Text(kw.Value)
		} else if len(call.Args) == expected+1 {
			p.Data = e.module.Text(call.Args[expected])
		}
	}
	if e.stageNames[p.Name] || e.recordNames[p.Name] {
		return false
	}
	if err := e.resolveType(typeName.ID, typeName.Location(), p.Name); err != nil {
		return false
	}

	e.result.Probes = append(e.result.Probes, p)
	e.result.Locations[p.Name] = target.Location()
	e.instances[target.ID] = p.Name
	return true
}

// config converts constructor arguments into configuration entries
func (e *Extractor) config(stage string, call *ast.Call) []model.ConfigEntry {
	entries := make([]model.ConfigEntry, 0, len(call.Args)+len(call.Keywords))
	for _, arg := range call.Args {
		entries = append(entries, model.ConfigEntry{Value: e.scalar(stage, "positional argument", arg)})
	}
	for _, kw := range call.Keywords {
		if kw.Name == "" {
			entries = append(entries, model.ConfigEntry{
				Value: model.ScalarValue{Kind: model.ScalarExpr, Literal: "**" + e.module.Text(kw.Value)},
			})
			continue
		}
		entries = append(entries, model.ConfigEntry{Key: kw.Name, Value: e.scalar(stage, kw.Name, kw.Value)})
	}
	return entries
}

func (e *Extractor) scalar(stage, key string, expr ast.ExprNode) model.ScalarValue {
	text := e.module.Text(expr)
	switch v := expr.(type) {
	case *ast.StringLit:
		return model.ScalarValue{Kind: model.ScalarString, Literal: text}
	case *ast.NumberLit:
		if v.Float {
			return model.ScalarValue{Kind: model.ScalarFloat, Literal: text}
		}
		return model.ScalarValue{Kind: model.ScalarInt, Literal: text}
	case *ast.BoolLit:
		return model.ScalarValue{Kind: model.ScalarBool, Literal: text}
	case *ast.NoneLit:
		return model.ScalarValue{Kind: model.ScalarNone, Literal: text}
	case *ast.UnaryExpr:
		if n, ok := v.Operand.(*ast.NumberLit); ok && v.Operator == "-" {
			if n.Float {
				return model.ScalarValue{Kind: model.ScalarFloat, Literal: text}
			}
			return model.ScalarValue{Kind: model.ScalarInt, Literal: text}
		}
	case *ast.Name, *ast.Attribute:
		if ast.DottedName(expr) != "" {
			return model.ScalarValue{Kind: model.ScalarVarRef, Literal: text}
		}
	}
	e.warn(errors.NewUnrecognizedConfig(expr.Location(), stage, key))
	return model.ScalarValue{Kind: model.ScalarExpr, Literal: text}
}

// graphCall recognizes add_workers, set_dependency chains and set_entry on
// the graph variable
func (e *Extractor) graphCall(call *ast.Call) bool {
	attr, ok := call.Func.(*ast.Attribute)
	if !ok {
		return false
	}

	if attr.Attr == "next" {
		chain, ok := e.dependencyChain(call)
		if !ok {
			return false
		}
		e.addChain(chain, call.Location())
		return true
	}

	if ast.DottedName(attr.Value) != e.result.GraphVar || !e.result.HasAssembly {
		return false
	}
	switch attr.Attr {
	case "add_workers":
		if len(call.Keywords) > 0 {
			return false
		}
		for _, arg := range call.Args {
			if _, ok := e.instanceName(arg); !ok {
				return false
			}
		}
		return true

	case "set_dependency":
		chain, ok := e.dependencyChain(call)
		if !ok {
			return false
		}
		e.addChain(chain, call.Location())
		return true

	case "set_entry":
		if len(call.Args) != 1 || len(call.Keywords) > 0 || e.result.Entry != "" {
			return false
		}
		name, ok := e.instanceName(call.Args[0])
		if !ok {
			return false
		}
		e.result.Entry = name
		return true
	}
	return false
}

// dependencyChain unwinds graph.set_dependency(a, b).next(c).next(d) into
// the declared names [a, b, c, d]
func (e *Extractor) dependencyChain(call *ast.Call) ([]string, bool) {
	attr, ok := call.Func.(*ast.Attribute)
	if !ok || len(call.Keywords) > 0 {
		return nil, false
	}

	switch attr.Attr {
	case "set_dependency":
		if ast.DottedName(attr.Value) != e.result.GraphVar || !e.result.HasAssembly || len(call.Args) != 2 {
			return nil, false
		}
		producer, ok := e.instanceName(call.Args[0])
		if !ok {
			return nil, false
		}
		consumer, ok := e.instanceName(call.Args[1])
		if !ok {
			return nil, false
		}
		return []string{producer, consumer}, true

	case "next":
		inner, ok := attr.Value.(*ast.Call)
		if !ok || len(call.Args) != 1 {
			return nil, false
		}
		chain, ok := e.dependencyChain(inner)
		if !ok {
			return nil, false
		}
		next, ok := e.instanceName(call.Args[0])
		if !ok {
			return nil, false
		}
		return append(chain, next), true
	}
	return nil, false
}

func (e *Extractor) addChain(chain []string, loc ast.SourceLocation) {
	for i := 0; i+1 < len(chain); i++ {
		e.result.Edges = append(e.result.Edges, NameEdge{Producer: chain[i], Consumer: chain[i+1], Loc: loc})
	}
}

// instanceName maps an assembly variable to the stage or probe it binds
func (e *Extractor) instanceName(expr ast.ExprNode) (string, bool) {
	n, ok := expr.(*ast.Name)
	if !ok {
		return "", false
	}
	name, ok := e.instances[n.ID]
	if !ok || name == "" {
		return "", false
	}
	return name, true
}

// inferEdges connects stages without an assembly section: a producer that
// publishes (or, for stages without user code, declares) the consumer's
// input type feeds it. Edges that would close a cycle are not inferred.
func (e *Extractor) inferEdges() {
	stages := e.result.Stages
	for _, producer := range stages {
		for _, consumer := range stages {
			if producer == consumer || !e.emits(producer, consumer.InputType) {
				continue
			}
			if e.reaches(consumer.Name, producer.Name) {
				continue
			}
			e.result.Edges = append(e.result.Edges, NameEdge{
				Producer: producer.Name,
				Consumer: consumer.Name,
				Loc:      e.result.Locations[producer.Name],
			})
		}
	}
}

func (e *Extractor) emits(s *model.StageNode, typeName string) bool {
	switch s.Variant {
	case model.Plain, model.FanIn:
		for _, t := range e.result.Publishes[s.Name] {
			if t == typeName {
				return true
			}
		}
		return false
	}
	return s.Produces(typeName)
}

// reaches reports whether to is reachable from from over inferred edges
func (e *Extractor) reaches(from, to string) bool {
	seen := map[string]bool{from: true}
	queue := []string{from}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		if current == to {
			return true
		}
		for _, edge := range e.result.Edges {
			if edge.Producer == current && !seen[edge.Consumer] {
				seen[edge.Consumer] = true
				queue = append(queue, edge.Consumer)
			}
		}
	}
	return false
}

func firstLine(text string) string {
	for i, r := range text {
		if r == '\n' {
			return text[:i] + " ..."
		}
	}
	return text
}
