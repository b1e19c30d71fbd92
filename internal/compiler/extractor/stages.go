package extractor

import (
	"fmt"
	"strings"

	"github.com/conduit-lang/pipegraph/internal/compiler/ast"
	"github.com/conduit-lang/pipegraph/internal/compiler/errors"
	"github.com/conduit-lang/pipegraph/internal/compiler/model"
)

// stageScan accumulates what the body of one stage class declares
type stageScan struct {
	stage       *model.StageNode
	class       *ast.ClassDef
	hookInputs  map[model.HookSlot]*ast.Name
	hookDefs    map[model.HookSlot]*ast.FunctionDef
	subgraphIn  *ast.Name
	members     []string
	memberNames []string
}

// extractStage builds a stage from a class with a recognized worker base.
// It reports false when the class was kept as a raw node instead.
func (e *Extractor) extractStage(c *ast.ClassDef) (bool, error) {
	info := model.BaseVariants[ast.LastName(c.Bases[0])]
	scan := &stageScan{
		stage: &model.StageNode{
			Name:        c.Name,
			Variant:     info.Variant,
			Cached:      info.Cached,
			OutputTypes: make([]string, 0),
			Var:         model.SnakeCase(c.Name),
		},
		class:      c,
		hookInputs: make(map[model.HookSlot]*ast.Name),
		hookDefs:   make(map[model.HookSlot]*ast.FunctionDef),
	}
	s := scan.stage
	if c.Docstring != nil {
		s.Doc = &model.Text{Value: c.Docstring.Value, Literal: e.module.Text(c.Docstring)}
	}

	for _, stmt := range c.Body {
		handled, err := e.stageMember(scan, stmt)
		if err != nil {
			return false, err
		}
		if !handled && !isPlaceholder(stmt) {
			scan.members = append(scan.members, e.memberText(stmt))
			scan.memberNames = append(scan.memberNames, memberName(stmt))
		}
	}
	s.Members = strings.Join(scan.members, "\n\n")

	input, err := e.resolveInput(scan)
	if err != nil {
		return false, err
	}
	if reason := missingRequirement(scan, input); reason != "" {
		e.warn(errors.NewUnrecognizedDeclaration(c.NameLoc, c.Name, reason))
		e.addRaw(c, c.Name, e.placement(c))
		e.rawNames[c.Name] = true
		delete(e.stageNames, c.Name)
		return false, nil
	}
	s.InputType = input

	switch s.Variant {
	case model.ModelBacked:
		if !s.Hooks[model.SlotConsume].Enabled() {
			s.Hooks[model.SlotConsume] = model.Hook{Mode: model.HookDefault}
		}
	case model.ChatEntry:
		if len(s.OutputTypes) == 0 {
			s.OutputTypes = append(s.OutputTypes, model.ChatOutputType)
		}
	}
	for _, t := range s.TypeRefs() {
		if err := e.resolveType(t, c.NameLoc, c.Name); err != nil {
			return false, err
		}
	}

	if len(scan.memberNames) > 0 {
		e.warn(errors.NewPreservedMembers(c.NameLoc, c.Name, scan.memberNames))
	}
	e.scanPublishes(scan)

	e.result.Stages = append(e.result.Stages, s)
	e.stages[s.Name] = s
	return true, nil
}

// stageMember recognizes class constants and hook methods
func (e *Extractor) stageMember(scan *stageScan, stmt ast.StmtNode) (bool, error) {
	switch m := stmt.(type) {
	case *ast.AssignStmt:
		if len(m.Targets) != 1 {
			return false, nil
		}
		if target, ok := m.Targets[0].(*ast.Name); ok {
			return e.stageConstant(scan, target.ID, m.Value)
		}
	case *ast.AnnAssignStmt:
		if target, ok := m.Target.(*ast.Name); ok && m.Value != nil {
			return e.stageConstant(scan, target.ID, m.Value)
		}
	case *ast.FunctionDef:
		return e.stageHook(scan, m), nil
	}
	return false, nil
}

// stageConstant records a recognized class-level constant. Unrecognized
// names and value shapes are left to the member blob.
func (e *Extractor) stageConstant(scan *stageScan, name string, value ast.ExprNode) (bool, error) {
	s := scan.stage
	llm := s.Variant == model.ModelBacked

	switch {
	case name == "output_types":
		var elements []ast.ExprNode
		switch v := value.(type) {
		case *ast.ListExpr:
			elements = v.Elements
		case *ast.TupleExpr:
			elements = v.Elements
		default:
			return false, nil
		}
		outputs := make([]string, 0, len(elements))
		for _, el := range elements {
			n, ok := el.(*ast.Name)
			if !ok {
				return false, nil
			}
			outputs = append(outputs, n.ID)
		}
		for _, t := range outputs {
			if err := e.resolveType(t, value.Location(), s.Name); err != nil {
				return false, err
			}
			s.AddOutput(t)
		}
		return true, nil

	case name == "llm_input_type" && llm, name == "llm_output_type" && llm:
		n, ok := value.(*ast.Name)
		if !ok {
			return false, nil
		}
		if err := e.resolveType(n.ID, n.Location(), s.Name); err != nil {
			return false, err
		}
		if name == "llm_input_type" {
			s.LLMInputType = n.ID
		} else {
			s.LLMOutputType = n.ID
		}
		return true, nil

	case name == "prompt" && llm, name == "system_prompt" && llm:
		lit, ok := value.(*ast.StringLit)
		if !ok {
			return false, nil
		}
		text := &model.Text{Value: lit.Value, Literal: e.module.Text(lit)}
		if name == "prompt" {
			s.Prompt = text
		} else {
			s.SystemPrompt = text
		}
		return true, nil

	case name == "use_xml" && llm, name == "debug_mode" && llm:
		b, ok := value.(*ast.BoolLit)
		if !ok {
			return false, nil
		}
		if name == "use_xml" {
			s.UseXML = b.Value
		} else {
			s.DebugMode = b.Value
		}
		return true, nil

	case name == "join_type" && s.Variant == model.FanIn:
		if ast.DottedName(value) == "" {
			return false, nil
		}
		s.JoinType = e.module.Text(value)
		return true, nil

	case name == "input_type" && s.Variant == model.Subgraph:
		n, ok := value.(*ast.Name)
		if !ok {
			return false, nil
		}
		scan.subgraphIn = n
		return true, nil

	case name == "factory" && s.Variant == model.Subgraph:
		s.Factory = e.module.Text(value)
		return true, nil

	case name == "factory_args" && s.Variant == model.Subgraph:
		s.FactoryArgs = e.module.Text(value)
		return true, nil
	}
	return false, nil
}

// stageHook records a method bound to a hook slot. Methods with decorators
// or a parameter list the slot cannot render are left to the member blob.
func (e *Extractor) stageHook(scan *stageScan, f *ast.FunctionDef) bool {
	s := scan.stage
	slot, ok := model.SlotForMethod(s.Variant, f.Name)
	if !ok || !slot.Applies(s.Variant) || len(f.Decorators) > 0 {
		return false
	}
	if _, seen := scan.hookDefs[slot]; seen {
		return false
	}
	if len(f.Params) != len(slot.DefaultParams(s.Variant)) {
		return false
	}
	for _, p := range f.Params {
		if p.Prefix != "" || p.Default != nil {
			return false
		}
	}

	params := f.ParamNames()
	body := model.Dedent(e.module.Segment(f.BodySpan.Start, f.BodySpan.End))
	s.Hooks[slot] = model.Hook{Mode: model.HookCustom, Body: body, Params: params, Async: f.Async}
	scan.hookDefs[slot] = f

	if input := hookInput(slot, s.Variant, f); input != nil {
		scan.hookInputs[slot] = input
	}
	return true
}

// hookInput returns the type annotation naming the stage's input in a
// hook signature
func hookInput(slot model.HookSlot, v model.Variant, f *ast.FunctionDef) *ast.Name {
	index := 1
	if slot == model.SlotPost || slot == model.SlotValidate {
		index = 2
	}
	if index >= len(f.Params) || f.Params[index].Annotation == nil {
		return nil
	}
	ann := f.Params[index].Annotation
	if slot == model.SlotConsume && v == model.FanIn {
		sub, ok := ann.(*ast.Subscript)
		if !ok {
			return nil
		}
		switch ast.LastName(sub.Value) {
		case "List", "list", "Sequence":
			ann = sub.Index
		default:
			return nil
		}
	}
	n, _ := ann.(*ast.Name)
	return n
}

// resolveInput picks the stage's input type: the consume hook annotation,
// then llm_input_type, then a subgraph input_type, then any other hook
// annotation, then the chat-entry default
func (e *Extractor) resolveInput(scan *stageScan) (string, error) {
	s := scan.stage
	n := scan.hookInputs[model.SlotConsume]
	if n == nil && s.LLMInputType != "" {
		return s.LLMInputType, nil
	}
	if n == nil {
		n = scan.subgraphIn
	}
	for _, slot := range model.AllSlots {
		if n == nil {
			n = scan.hookInputs[slot]
		}
	}
	if n == nil {
		if s.Variant == model.ChatEntry {
			return model.ChatInputType, nil
		}
		return "", nil
	}

	if err := e.resolveType(n.ID, n.Location(), s.Name); err != nil {
		return "", err
	}
	return n.ID, nil
}

// missingRequirement returns why a stage cannot be modelled, or ""
func missingRequirement(scan *stageScan, input string) string {
	s := scan.stage
	if input == "" {
		return fmt.Sprintf("no input type could be determined for %s stage", s.Variant)
	}
	switch s.Variant {
	case model.Plain:
		if !s.Hooks[model.SlotConsume].Enabled() {
			return "plain stage has no consume_work method"
		}
	case model.FanIn:
		if s.JoinType == "" {
			return "fan-in stage has no join_type"
		}
		if !s.Hooks[model.SlotConsume].Enabled() {
			return "fan-in stage has no consume_work_joined method"
		}
	}
	return ""
}

// scanPublishes finds self.publish_work(...) calls in the stage's hooks
// and records the types published by constructor calls
func (e *Extractor) scanPublishes(scan *stageScan) {
	s := scan.stage
	found := false
	for _, slot := range model.AllSlots {
		f := scan.hookDefs[slot]
		if f == nil {
			continue
		}
		for _, call := range ast.Calls(f.Body) {
			attr, ok := call.Func.(*ast.Attribute)
			if !ok || attr.Attr != "publish_work" || ast.DottedName(attr.Value) != "self" {
				continue
			}
			found = true

			arg := publishArgument(call)
			if arg == nil {
				e.warn(errors.NewManualEdgeRequired(call.Location(), s.Name, e.module.Text(call)))
				continue
			}
			ctor, ok := arg.(*ast.Call)
			typeName := ""
			if ok {
				typeName = ast.LastName(ctor.Func)
			}
			if !isTypeName(typeName) || e.stageNames[typeName] {
				e.warn(errors.NewManualEdgeRequired(arg.Location(), s.Name, e.module.Text(arg)))
				continue
			}
			if err := e.resolveType(typeName, arg.Location(), s.Name); err != nil {
				e.warn(errors.NewManualEdgeRequired(arg.Location(), s.Name, e.module.Text(arg)))
				continue
			}
			s.AddOutput(typeName)
			e.addPublish(s.Name, typeName)
		}
	}

	if !found && (s.Variant == model.Plain || s.Variant == model.FanIn) {
		e.warn(errors.NewNoPublishCall(scan.class.NameLoc, s.Name))
	}
}

func publishArgument(call *ast.Call) ast.ExprNode {
	if len(call.Args) > 0 {
		return call.Args[0]
	}
	if kw := call.Keyword("task"); kw != nil {
		return kw.Value
	}
	return nil
}

func (e *Extractor) addPublish(stage, typeName string) {
	for _, t := range e.result.Publishes[stage] {
		if t == typeName {
			return
		}
	}
	e.result.Publishes[stage] = append(e.result.Publishes[stage], typeName)
}

// checkPrompts warns about model-backed stages that have no prompt in the
// class or in their constructor call
func (e *Extractor) checkPrompts() {
	for _, s := range e.result.Stages {
		switch s.Variant {
		case model.ModelBacked:
			if !s.HasPrompt() {
				e.warn(errors.NewExportRisk(e.result.Locations[s.Name], errors.ErrMissingPrompt, s.Name, "no prompt text"))
			}
		case model.Subgraph:
			if !s.HasFactory() {
				e.warn(errors.NewExportRisk(e.result.Locations[s.Name], errors.ErrMissingFactory, s.Name, "no factory"))
			}
		}
	}
}

func memberName(stmt ast.StmtNode) string {
	switch m := stmt.(type) {
	case *ast.FunctionDef:
		return m.Name
	case *ast.ClassDef:
		return m.Name
	case *ast.AssignStmt:
		if len(m.Targets) > 0 {
			if name := ast.DottedName(m.Targets[0]); name != "" {
				return name
			}
		}
	case *ast.AnnAssignStmt:
		if name := ast.DottedName(m.Target); name != "" {
			return name
		}
	}
	return fmt.Sprintf("line %d", stmt.Location().Line)
}
