package codegen

import (
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/conduit-lang/pipegraph/internal/compiler/ast"
	"github.com/conduit-lang/pipegraph/internal/compiler/errors"
	"github.com/conduit-lang/pipegraph/internal/compiler/model"
	"github.com/conduit-lang/pipegraph/internal/compiler/parser"
	"github.com/conduit-lang/pipegraph/internal/compiler/registry"
)

// Plan is the ordered list of declarations an export renders. Every
// rendering decision is made here; the generator only lays out text.
type Plan struct {
	Header   []string
	Imports  []string
	Config   []string
	Prelude  []string
	Records  []*RecordDecl
	Stages   []*StageDecl
	Assembly *Assembly
	Epilogue []string
}

// RecordDecl is a record class with the raw text that follows it
type RecordDecl struct {
	Name     string
	Doc      string
	Fields   []FieldDecl
	Members  string
	Trailing []string
}

// FieldDecl is one annotated record field
type FieldDecl struct {
	Name       string
	Annotation string
	Value      string
}

// StageDecl is a stage class with the raw text that follows it
type StageDecl struct {
	Stage     *model.StageNode
	Base      string
	Doc       string
	Constants []Constant
	Hooks     []HookDecl
	Members   string
	Trailing  []string
}

// Constant is a class-level assignment. Annotation may be empty.
type Constant struct {
	Name       string
	Annotation string
	Value      string
}

// HookDecl is a rendered hook method
type HookDecl struct {
	Slot    model.HookSlot
	Method  string
	Params  []string
	Returns string
	Async   bool
	Body    string
}

// Assembly is the graph construction section
type Assembly struct {
	Var       string
	Name      string
	Instances []Instance
	Workers   []string
	Edges     []AssemblyEdge
	Entry     string
}

// Instance is one `var = Ctor(args)` line
type Instance struct {
	Var  string
	Ctor string
	Args []string
}

// AssemblyEdge connects two instance variables
type AssemblyEdge struct {
	Producer string
	Consumer string
}

// Framework modules whose imports are generated, in rendering order
var frameworkModules = []string{"typing", "pydantic", registry.FrameworkModule, "planai.editor"}

var frameworkSymbols = map[string]string{
	"List":               "typing",
	"Optional":           "typing",
	"Literal":            "typing",
	"Type":               "typing",
	"Field":              "pydantic",
	model.RecordBase:     registry.FrameworkModule,
	"TaskWorker":         registry.FrameworkModule,
	"Graph":              registry.FrameworkModule,
	model.EntrySentinel:  registry.FrameworkModule,
	model.DataInputCtor:  "planai.editor",
	model.DataOutputCtor: "planai.editor",
}

// frameworkModule returns the module a generated import takes name from
func frameworkModule(name string) (string, bool) {
	if module, ok := frameworkSymbols[name]; ok {
		return module, true
	}
	if _, ok := model.BaseVariants[name]; ok {
		return registry.FrameworkModule, true
	}
	return "", false
}

// Planner orders the declarations of a graph for rendering
type Planner struct {
	logger *zap.Logger
}

// NewPlanner creates a planner
func NewPlanner() *Planner {
	return &Planner{logger: zap.NewNop()}
}

// WithLogger sets the logger used for debug output
func (p *Planner) WithLogger(logger *zap.Logger) *Planner {
	if logger != nil {
		p.logger = logger
	}
	return p
}

// Plan checks the export invariants and orders the graph's declarations.
// Violations are returned as *errors.ExportError.
func (p *Planner) Plan(g *model.Graph) (*Plan, error) {
	if err := checkTypes(g); err != nil {
		return nil, err
	}
	if err := checkStages(g); err != nil {
		return nil, err
	}
	if err := checkStructure(g); err != nil {
		return nil, err
	}

	plan := &Plan{}
	stages := orderStages(g)

	trailing := make(map[string][]string)
	anchors := make(map[string]bool)
	for _, rec := range g.Registry.Records() {
		anchors[rec.Name] = true
	}
	for _, s := range stages {
		anchors[s.Name] = true
	}
	for _, r := range g.RawNodes() {
		switch {
		case r.Placement == model.Header:
			plan.Header = append(plan.Header, r.Text)
		case r.Placement == model.Epilogue:
			plan.Epilogue = append(plan.Epilogue, r.Text)
		case r.After != "" && anchors[r.After]:
			trailing[r.After] = append(trailing[r.After], r.Text)
		default:
			plan.Prelude = append(plan.Prelude, r.Text)
		}
	}

	for _, rec := range g.Registry.Records() {
		decl := planRecord(rec)
		decl.Trailing = trailing[rec.Name]
		plan.Records = append(plan.Records, decl)
	}
	for _, s := range stages {
		decl := planStage(s)
		decl.Trailing = trailing[s.Name]
		plan.Stages = append(plan.Stages, decl)
	}
	plan.Assembly = planAssembly(g, stages)

	for _, st := range g.Statements() {
		if st.Kind == model.StatementConfig {
			plan.Config = append(plan.Config, st.Text)
		}
	}
	plan.Imports = planImports(g, plan)

	order := make([]string, 0, len(stages))
	for _, s := range stages {
		order = append(order, s.Name)
	}
	p.logger.Debug("planned export",
		zap.Int("records", len(plan.Records)),
		zap.Int("stages", len(plan.Stages)),
		zap.Int("raw", len(plan.Header)+len(plan.Prelude)+len(plan.Epilogue)),
		zap.Strings("order", order),
	)
	return plan, nil
}

func exportError(code errors.ErrorCode, node, format string, args ...interface{}) error {
	return &errors.ExportError{Code: code, Message: fmt.Sprintf(format, args...), NodeName: node}
}

// checkTypes reports the first type reference with no declaration
func checkTypes(g *model.Graph) error {
	reg := g.Registry
	for _, rec := range reg.Records() {
		for _, f := range rec.Fields {
			if f.Kind == registry.KindReference && !reg.Has(f.Reference) {
				return exportError(errors.ErrDanglingTypeReference, rec.Name,
					"field %s references undeclared type %s", f.Name, f.Reference)
			}
		}
	}
	for _, s := range g.Stages() {
		for _, t := range s.TypeRefs() {
			if !reg.Has(t) {
				return exportError(errors.ErrDanglingTypeReference, s.Name, "stage references undeclared type %s", t)
			}
		}
	}
	for _, probe := range g.Probes() {
		if !reg.Has(probe.TypeName) {
			return exportError(errors.ErrDanglingTypeReference, probe.Name, "probe references undeclared type %s", probe.TypeName)
		}
	}
	for _, ext := range reg.Externals() {
		if ext.Module == "" && !ext.Imported && !ext.Implicit {
			return exportError(errors.ErrDanglingTypeReference, ext.Name,
				"external type %s has no module to import it from", ext.Name)
		}
	}
	return nil
}

// checkStages reports stages missing what their variant needs to render
func checkStages(g *model.Graph) error {
	for _, s := range g.Stages() {
		switch s.Variant {
		case model.ModelBacked:
			if !s.HasPrompt() {
				return exportError(errors.ErrMissingPrompt, s.Name, "model-backed stage has no prompt")
			}
		case model.Plain, model.FanIn:
			if !s.Hooks[model.SlotConsume].Enabled() {
				return exportError(errors.ErrMissingConsume, s.Name, "%s stage has no consume body", s.Variant)
			}
		case model.Subgraph:
			if !s.HasFactory() {
				return exportError(errors.ErrMissingFactory, s.Name, "subgraph stage has no factory")
			}
		}
		if err := s.Validate(); err != nil {
			return exportError(errors.ErrExportFailed, s.Name, "%v", err)
		}
	}
	return nil
}

// checkStructure rejects cycles, incompatible edges and a missing entry
func checkStructure(g *model.Graph) error {
	if cycle := g.FindCycle(); len(cycle) > 0 {
		return exportError(errors.ErrExportFailed, cycle[0], "dependency cycle through %s", strings.Join(cycle, " -> "))
	}
	for _, e := range g.Edges() {
		producer, consumer := g.Node(e.Producer), g.Node(e.Consumer)
		if producer == nil || consumer == nil {
			return exportError(errors.ErrExportFailed, g.NameOf(e.Producer),
				"edge %s -> %s references a missing node", g.NameOf(e.Producer), g.NameOf(e.Consumer))
		}
		if err := model.CheckEdge(producer, consumer); err != nil {
			return exportError(errors.ErrExportFailed, consumer.NodeName(), "%v", err)
		}
	}
	if g.Entry() != "" && g.EntryStage() == nil {
		return exportError(errors.ErrExportFailed, g.NameOf(g.Entry()), "entry is not a stage")
	}
	return nil
}

// orderStages sorts stages topologically over stage-to-stage edges and
// join anchors. Ties keep insertion order.
func orderStages(g *model.Graph) []*model.StageNode {
	stages := g.Stages()
	index := make(map[string]int, len(stages))
	for i, s := range stages {
		index[s.ID] = i
	}

	indegree := make([]int, len(stages))
	next := make([][]int, len(stages))
	depend := func(from, to int) {
		next[from] = append(next[from], to)
		indegree[to]++
	}
	for _, e := range g.Edges() {
		from, okFrom := index[e.Producer]
		to, okTo := index[e.Consumer]
		if okFrom && okTo && from != to {
			depend(from, to)
		}
	}
	for i, s := range stages {
		if s.Variant != model.FanIn {
			continue
		}
		if anchor := g.StageByName(s.JoinType); anchor != nil && anchor != s {
			depend(index[anchor.ID], i)
		}
	}

	done := make([]bool, len(stages))
	order := make([]*model.StageNode, 0, len(stages))
	for len(order) < len(stages) {
		pick := -1
		for i := range stages {
			if !done[i] && indegree[i] == 0 {
				pick = i
				break
			}
		}
		if pick < 0 {
			// Unreachable after validation; fall back to insertion order
			for i := range stages {
				if !done[i] {
					pick = i
					break
				}
			}
		}
		done[pick] = true
		order = append(order, stages[pick])
		for _, to := range next[pick] {
			indegree[to]--
		}
	}
	return order
}

func planRecord(rec *registry.RecordType) *RecordDecl {
	decl := &RecordDecl{Name: rec.Name, Members: rec.Members}
	if rec.Doc != "" {
		decl.Doc = docLiteral(rec.Doc)
	}
	for _, f := range rec.Fields {
		decl.Fields = append(decl.Fields, FieldDecl{
			Name:       f.Name,
			Annotation: f.Annotation(),
			Value:      fieldValue(f),
		})
	}
	return decl
}

func fieldValue(f *registry.Field) string {
	if f.Description == "" && f.Extra == "" {
		return f.Default
	}
	args := make([]string, 0, 3)
	if f.Default != "" {
		args = append(args, f.Default)
	}
	if f.Description != "" {
		args = append(args, "description="+quote(f.Description))
	}
	if f.Extra != "" {
		args = append(args, f.Extra)
	}
	return "Field(" + strings.Join(args, ", ") + ")"
}

func planStage(s *model.StageNode) *StageDecl {
	decl := &StageDecl{
		Stage:     s,
		Base:      s.Variant.Base(s.Cached),
		Constants: stageConstants(s),
		Hooks:     stageHooks(s),
		Members:   s.Members,
	}
	if s.Doc != nil {
		decl.Doc = s.Doc.Literal
		if decl.Doc == "" || !literalMatches(decl.Doc, s.Doc.Value) {
			decl.Doc = tripleQuote(s.Doc.Value)
		}
	}
	return decl
}

// stageConstants returns the class constants that differ from the
// variant defaults
func stageConstants(s *model.StageNode) []Constant {
	out := make([]Constant, 0)
	add := func(name, annotation, value string) {
		out = append(out, Constant{Name: name, Annotation: annotation, Value: value})
	}

	chatDefault := s.Variant == model.ChatEntry && len(s.OutputTypes) == 1 && s.OutputTypes[0] == model.ChatOutputType
	if len(s.OutputTypes) > 0 && !chatDefault {
		add("output_types", "List[Type[Task]]", "["+strings.Join(s.OutputTypes, ", ")+"]")
	}

	switch s.Variant {
	case model.ModelBacked:
		if s.LLMInputType != "" || !s.Hooks[model.SlotConsume].Enabled() {
			add("llm_input_type", "Type[Task]", s.EffectiveLLMInput())
		}
		if s.LLMOutputType != "" {
			add("llm_output_type", "Type[Task]", s.LLMOutputType)
		}
		if s.Prompt != nil {
			add("prompt", "str", textLiteral(s.Prompt))
		}
		if s.SystemPrompt != nil {
			add("system_prompt", "str", textLiteral(s.SystemPrompt))
		}
		if s.UseXML {
			add("use_xml", "bool", "True")
		}
		if s.DebugMode {
			add("debug_mode", "bool", "True")
		}
	case model.FanIn:
		add("join_type", "Type[TaskWorker]", s.JoinType)
	case model.Subgraph:
		add("input_type", "Type[Task]", s.InputType)
		if s.Factory != "" {
			add("factory", "", s.Factory)
		}
		if s.FactoryArgs != "" {
			add("factory_args", "", s.FactoryArgs)
		}
	}
	return out
}

// stageHooks returns the custom hooks in slot order. Default and disabled
// slots are left to the inherited method.
func stageHooks(s *model.StageNode) []HookDecl {
	out := make([]HookDecl, 0)
	for _, slot := range model.AllSlots {
		h := s.Hooks[slot]
		if !slot.Applies(s.Variant) || !h.Enabled() {
			continue
		}

		names := h.ParamsFor(slot, s.Variant)
		if len(names) != len(slot.DefaultParams(s.Variant)) {
			names = slot.DefaultParams(s.Variant)
		}
		decl := HookDecl{
			Slot:   slot,
			Method: slot.Method(s.Variant),
			Params: annotateParams(slot, s, names),
			Async:  h.Async,
		}
		if slot == model.SlotPrompt {
			decl.Returns = "str"
		}
		switch {
		case strings.TrimSpace(h.Body) == "":
			decl.Body = "pass"
		default:
			decl.Body = model.Dedent(h.Body)
		}
		out = append(out, decl)
	}
	return out
}

func annotateParams(slot model.HookSlot, s *model.StageNode, names []string) []string {
	params := append([]string(nil), names...)
	input := s.InputType
	switch slot {
	case model.SlotPost, model.SlotValidate:
		params[2] += ": " + input
	case model.SlotStatus:
		params[1] += ": " + input
		params[2] += ": str"
	case model.SlotConsume:
		if s.Variant == model.FanIn {
			params[1] += ": List[" + input + "]"
		} else {
			params[1] += ": " + input
		}
	default:
		params[1] += ": " + input
	}
	return params
}

// planAssembly builds the assembly section. It is omitted for graphs with
// no name and nothing to instantiate.
func planAssembly(g *model.Graph, stages []*model.StageNode) *Assembly {
	if g.Name == "" && len(stages) == 0 && len(g.Probes()) == 0 {
		return nil
	}

	a := &Assembly{Var: g.Var, Name: g.Name}
	if a.Var == "" {
		a.Var = model.DefaultGraphVar
	}

	position := make(map[string]int)
	vars := make(map[string]string)
	for _, s := range stages {
		v := s.Var
		if v == "" {
			v = model.SnakeCase(s.Name)
		}
		position[s.ID] = len(position)
		vars[s.ID] = v
		a.Instances = append(a.Instances, Instance{Var: v, Ctor: s.Name, Args: configArgs(s.Config)})
		a.Workers = append(a.Workers, v)
	}
	for _, probe := range g.Probes() {
		position[probe.ID] = len(position)
		vars[probe.ID] = probe.Name
		args := []string{"task_type=" + probe.TypeName}
		if !probe.Output && probe.Data != "" {
			args = append(args, "data="+probe.Data)
		}
		a.Instances = append(a.Instances, Instance{Var: probe.Name, Ctor: probe.Constructor(), Args: args})
		a.Workers = append(a.Workers, probe.Name)
	}

	edges := append([]model.Edge(nil), g.Edges()...)
	sort.SliceStable(edges, func(i, j int) bool {
		pi, pj := position[edges[i].Producer], position[edges[j].Producer]
		if pi != pj {
			return pi < pj
		}
		return position[edges[i].Consumer] < position[edges[j].Consumer]
	})
	for _, e := range edges {
		a.Edges = append(a.Edges, AssemblyEdge{Producer: vars[e.Producer], Consumer: vars[e.Consumer]})
	}
	if g.Entry() != "" {
		a.Entry = vars[g.Entry()]
	}
	return a
}

// configArgs renders constructor arguments, positional ones first
func configArgs(config []model.ConfigEntry) []string {
	args := make([]string, 0, len(config))
	for _, c := range config {
		if c.Key == "" {
			args = append(args, c.Value.Literal)
		}
	}
	for _, c := range config {
		if c.Key != "" {
			args = append(args, c.Key+"="+c.Value.Literal)
		}
	}
	return args
}

// planImports returns the import block: __future__ imports, the module's
// own imports, generated framework imports for symbols the module does not
// bind yet, then imports of external types
func planImports(g *model.Graph, plan *Plan) []string {
	future := make([]string, 0)
	own := make([]string, 0)
	bound := make(map[string]bool)
	starred := make(map[string]bool)
	for _, st := range g.Statements() {
		if st.Kind != model.StatementImport {
			continue
		}
		if strings.HasPrefix(st.Text, "from __future__") {
			future = append(future, st.Text)
		} else {
			own = append(own, st.Text)
		}
		bindImports(st.Text, bound, starred)
	}

	needed := make(map[string]map[string]bool)
	need := func(name string) {
		module, ok := frameworkModule(name)
		if !ok || bound[name] || starred[module] {
			return
		}
		if needed[module] == nil {
			needed[module] = make(map[string]bool)
		}
		needed[module][name] = true
	}
	needText := func(text string) {
		for _, id := range identifiers(text) {
			need(id)
		}
	}

	if len(plan.Records) > 0 {
		need(model.RecordBase)
	}
	for _, rec := range plan.Records {
		for _, f := range rec.Fields {
			needText(f.Annotation)
			if strings.HasPrefix(f.Value, "Field(") {
				need("Field")
			}
		}
	}
	for _, s := range plan.Stages {
		need(s.Base)
		for _, c := range s.Constants {
			needText(c.Annotation)
			if c.Name == "join_type" && c.Value == model.EntrySentinel {
				need(model.EntrySentinel)
			}
		}
		for _, h := range s.Hooks {
			for _, param := range h.Params {
				if i := strings.IndexByte(param, ':'); i >= 0 {
					needText(param[i+1:])
				}
			}
		}
	}
	if plan.Assembly != nil {
		need("Graph")
		for _, inst := range plan.Assembly.Instances {
			need(inst.Ctor)
		}
	}

	// Generated names join the module's own import of the same module when
	// there is one, and otherwise follow the module's own imports
	generated := make([]string, 0)
	for _, module := range frameworkModules {
		if len(needed[module]) == 0 {
			continue
		}
		names := make([]string, 0, len(needed[module]))
		for name := range needed[module] {
			names = append(names, name)
		}
		sort.Strings(names)
		if i := mergeableImport(own, module); i >= 0 {
			own[i] += ", " + strings.Join(names, ", ")
			continue
		}
		generated = append(generated, fmt.Sprintf("from %s import %s", module, strings.Join(names, ", ")))
	}
	lines := append([]string(nil), future...)
	lines = append(lines, own...)
	lines = append(lines, generated...)

	byModule := make(map[string][]string)
	modules := make([]string, 0)
	for _, ext := range g.Registry.Externals() {
		if ext.Implicit || ext.Imported || ext.Module == "" || bound[ext.Name] {
			continue
		}
		if _, seen := byModule[ext.Module]; !seen {
			modules = append(modules, ext.Module)
		}
		byModule[ext.Module] = append(byModule[ext.Module], ext.Name)
	}
	for _, module := range modules {
		lines = append(lines, fmt.Sprintf("from %s import %s", module, strings.Join(byModule[module], ", ")))
	}
	return lines
}

// mergeableImport returns the index of a single-line `from module import
// a, b` statement that more names can be appended to, or -1
func mergeableImport(own []string, module string) int {
	prefix := "from " + module + " import "
	for i, text := range own {
		if !strings.HasPrefix(text, prefix) {
			continue
		}
		names := strings.TrimPrefix(text, prefix)
		if strings.ContainsAny(names, "()*\\\n#") || strings.Contains(names, " as ") {
			continue
		}
		return i
	}
	return -1
}

// bindImports records the names an import statement binds. Star imports
// mark their whole module as bound.
func bindImports(text string, bound, starred map[string]bool) {
	module, errs := parser.ParseSource(text)
	if len(errs) > 0 {
		return
	}
	for _, stmt := range module.Statements {
		imp, ok := stmt.(*ast.ImportStmt)
		if !ok {
			continue
		}
		for _, n := range imp.Names {
			if n.Name == "*" {
				starred[imp.Module] = true
				continue
			}
			bound[n.Bound()] = true
		}
	}
}

// identifiers splits an annotation into its names
func identifiers(text string) []string {
	return strings.FieldsFunc(text, func(r rune) bool {
		return !(r == '_' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9')
	})
}
