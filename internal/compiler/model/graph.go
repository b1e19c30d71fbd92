package model

import (
	"fmt"

	"github.com/conduit-lang/pipegraph/internal/compiler/errors"
	"github.com/conduit-lang/pipegraph/internal/compiler/lexer"
	"github.com/conduit-lang/pipegraph/internal/compiler/parser"
	"github.com/conduit-lang/pipegraph/internal/compiler/registry"
)

// Graph is the IR of one pipeline module. It is owned by a single writer;
// callers serialize concurrent edits.
type Graph struct {
	// Name is the pipeline name passed to Graph(name=...)
	Name string
	// Var is the assembly variable bound to the graph
	Var string

	Registry *registry.Registry

	stages     []*StageNode
	probes     []*ProbeNode
	raws       []*RawNode
	statements []*Statement
	edges      []Edge
	entry      string

	nodes     map[string]Node   // id -> stage, probe or raw node
	typeIDs   map[string]string // type name -> record or external id
	names     map[string]string // declared name -> id, one namespace
	vars      map[string]string // instance variable -> id
	stmtTexts map[string]string // statement text -> id
	ids       *IDAllocator
}

// NewGraph creates an empty graph
func NewGraph(name string) *Graph {
	return &Graph{
		Name:       name,
		Var:        DefaultGraphVar,
		Registry:   registry.New(),
		stages:     make([]*StageNode, 0),
		probes:     make([]*ProbeNode, 0),
		raws:       make([]*RawNode, 0),
		statements: make([]*Statement, 0),
		edges:      make([]Edge, 0),
		nodes:      make(map[string]Node),
		typeIDs:    make(map[string]string),
		names:      make(map[string]string),
		vars:       make(map[string]string),
		stmtTexts:  make(map[string]string),
		ids:        NewIDAllocator(),
	}
}

func duplicateName(name string) error {
	return &errors.GraphError{
		Code:    errors.ErrDuplicateName,
		Message: fmt.Sprintf("name %s is already declared", name),
		Nodes:   []string{name},
	}
}

func (g *Graph) assignID(id *string, kind NodeKind, key string) error {
	if *id == "" {
		*id = g.ids.Next(string(kind), key)
		return nil
	}
	if !g.ids.Reserve(*id) {
		return &errors.GraphError{
			Code:    errors.ErrDuplicateName,
			Message: fmt.Sprintf("node id %s is already in use", *id),
			Nodes:   []string{key},
		}
	}
	return nil
}

// AddRecord registers a record type and returns its node id
func (g *Graph) AddRecord(rec *registry.RecordType) (string, error) {
	return g.AddRecordWithID("", rec)
}

// AddRecordWithID registers a record type under a known id
func (g *Graph) AddRecordWithID(id string, rec *registry.RecordType) (string, error) {
	if !lexer.IsValidIdentifier(rec.Name) {
		return "", &errors.GraphError{
			Code:    errors.ErrInvalidNode,
			Message: fmt.Sprintf("%q is not a valid record name", rec.Name),
			Nodes:   []string{rec.Name},
		}
	}
	if _, taken := g.names[rec.Name]; taken {
		return "", duplicateName(rec.Name)
	}
	if err := g.Registry.AddRecord(rec); err != nil {
		return "", err
	}
	if err := g.assignID(&id, KindRecord, rec.Name); err != nil {
		g.Registry.RemoveRecord(rec.Name)
		return "", err
	}
	g.typeIDs[rec.Name] = id
	g.names[rec.Name] = id
	return id, nil
}

// AddExternal registers an external type reference and returns its node
// id. Adding a reference that is already known returns the existing id.
func (g *Graph) AddExternal(ext *registry.ExternalType) (string, error) {
	return g.AddExternalWithID("", ext)
}

// AddExternalWithID registers an external type reference under a known id
func (g *Graph) AddExternalWithID(id string, ext *registry.ExternalType) (string, error) {
	if existing := g.Registry.External(ext.Name); existing != nil {
		if err := g.Registry.AddExternal(ext); err != nil {
			return "", err
		}
		return g.typeIDs[ext.Name], nil
	}
	if _, taken := g.names[ext.Name]; taken {
		return "", duplicateName(ext.Name)
	}
	if err := g.Registry.AddExternal(ext); err != nil {
		return "", err
	}
	if err := g.assignID(&id, KindExternal, ext.Qualified()); err != nil {
		return "", err
	}
	g.typeIDs[ext.Name] = id
	g.names[ext.Name] = id
	return id, nil
}

// AddStage validates and inserts a stage. Chat-entry stages pull in the
// implicit framework types they consume and produce.
func (g *Graph) AddStage(s *StageNode) (string, error) {
	if err := s.Validate(); err != nil {
		return "", err
	}
	if _, taken := g.names[s.Name]; taken {
		return "", duplicateName(s.Name)
	}
	if s.Var == "" {
		s.Var = SnakeCase(s.Name)
	}
	if _, taken := g.vars[s.Var]; taken {
		return "", duplicateName(s.Var)
	}
	if err := g.assignID(&s.ID, s.Kind(), s.Name); err != nil {
		return "", err
	}
	if s.Variant == ChatEntry {
		for _, ext := range registry.ImplicitExternals() {
			if !g.Registry.Has(ext.Name) {
				if _, err := g.AddExternal(ext); err != nil {
					return "", err
				}
			}
		}
	}
	g.stages = append(g.stages, s)
	g.nodes[s.ID] = s
	g.names[s.Name] = s.ID
	g.vars[s.Var] = s.ID
	return s.ID, nil
}

// AddProbe inserts a data-input or data-output probe
func (g *Graph) AddProbe(p *ProbeNode) (string, error) {
	if !lexer.IsValidIdentifier(p.Name) {
		return "", &errors.GraphError{
			Code:    errors.ErrInvalidNode,
			Message: fmt.Sprintf("%q is not a valid probe variable", p.Name),
			Nodes:   []string{p.Name},
		}
	}
	if p.TypeName == "" {
		return "", &errors.TypeError{
			Code:     errors.ErrMissingInputType,
			Message:  fmt.Sprintf("probe %s has no task type", p.Name),
			NodeName: p.Name,
		}
	}
	if _, taken := g.vars[p.Name]; taken {
		return "", duplicateName(p.Name)
	}
	if _, taken := g.names[p.Name]; taken {
		return "", duplicateName(p.Name)
	}
	if err := g.assignID(&p.ID, p.Kind(), p.Name); err != nil {
		return "", err
	}
	g.probes = append(g.probes, p)
	g.nodes[p.ID] = p
	g.vars[p.Name] = p.ID
	g.names[p.Name] = p.ID
	return p.ID, nil
}

// AddRaw inserts an opaque top-level text node
func (g *Graph) AddRaw(r *RawNode) (string, error) {
	if r.Placement == "" {
		r.Placement = Prelude
	}
	if err := g.assignID(&r.ID, KindRaw, r.Text); err != nil {
		return "", err
	}
	g.raws = append(g.raws, r)
	g.nodes[r.ID] = r
	return r.ID, nil
}

// AddStatement adds a module-level statement. Text that is already present
// is not added twice; the existing id is returned.
func (g *Graph) AddStatement(kind StatementKind, text string) string {
	return g.AddStatementWithID("", kind, text)
}

// AddStatementWithID adds a module-level statement under a known id
func (g *Graph) AddStatementWithID(id string, kind StatementKind, text string) string {
	if existing, ok := g.stmtTexts[text]; ok {
		return existing
	}
	if id == "" || !g.ids.Reserve(id) {
		id = g.ids.Next("stmt", text)
	}
	g.statements = append(g.statements, &Statement{ID: id, Kind: kind, Text: text})
	g.stmtTexts[text] = id
	return id
}

// Connect adds an edge from producer to consumer. Both ends must be stages
// or probes, the consumer must accept one of the producer's output types
// and the edge must not close a cycle. Connecting an existing edge is a
// no-op.
func (g *Graph) Connect(producerID, consumerID string) error {
	producer, consumer := g.nodes[producerID], g.nodes[consumerID]
	if producer == nil || consumer == nil {
		return g.danglingEdge(producerID, consumerID)
	}
	if g.HasEdge(producerID, consumerID) {
		return nil
	}
	if err := CheckEdge(producer, consumer); err != nil {
		return err
	}
	g.edges = append(g.edges, Edge{Producer: producerID, Consumer: consumerID})
	if cycle := g.FindCycle(); len(cycle) > 0 {
		g.edges = g.edges[:len(g.edges)-1]
		return cycleError(cycle)
	}
	return nil
}

// AddEdgeUnchecked appends an edge without validation. The builder uses it
// to report every problem at once in Validate.
func (g *Graph) AddEdgeUnchecked(producerID, consumerID string) {
	if !g.HasEdge(producerID, consumerID) {
		g.edges = append(g.edges, Edge{Producer: producerID, Consumer: consumerID})
	}
}

func (g *Graph) danglingEdge(producerID, consumerID string) error {
	return &errors.GraphError{
		Code:    errors.ErrDanglingEdge,
		Message: fmt.Sprintf("edge %s -> %s references a missing node", producerID, consumerID),
		Nodes:   []string{g.NameOf(producerID), g.NameOf(consumerID)},
	}
}

func cycleError(cycle []string) error {
	return &errors.GraphError{
		Code:    errors.ErrCycle,
		Message: "dependency cycle detected",
		Nodes:   cycle,
	}
}

// Disconnect removes an edge and reports whether it existed
func (g *Graph) Disconnect(producerID, consumerID string) bool {
	for i, e := range g.edges {
		if e.Producer == producerID && e.Consumer == consumerID {
			g.edges = append(g.edges[:i], g.edges[i+1:]...)
			return true
		}
	}
	return false
}

// HasEdge reports whether the edge exists
func (g *Graph) HasEdge(producerID, consumerID string) bool {
	for _, e := range g.edges {
		if e.Producer == producerID && e.Consumer == consumerID {
			return true
		}
	}
	return false
}

// RemoveNode deletes a node by id together with its edges. Removing a
// record leaves references to it for validation to report.
func (g *Graph) RemoveNode(id string) error {
	if name, ok := g.typeName(id); ok {
		if g.Registry.Record(name) != nil {
			g.Registry.RemoveRecord(name)
		} else {
			g.Registry.RemoveExternal(name)
		}
		delete(g.typeIDs, name)
		delete(g.names, name)
		g.ids.Release(id)
		return nil
	}
	for i, st := range g.statements {
		if st.ID == id {
			g.statements = append(g.statements[:i], g.statements[i+1:]...)
			delete(g.stmtTexts, st.Text)
			g.ids.Release(id)
			return nil
		}
	}

	node := g.nodes[id]
	if node == nil {
		return &errors.GraphError{
			Code:    errors.ErrDanglingEdge,
			Message: fmt.Sprintf("no node with id %s", id),
		}
	}
	switch n := node.(type) {
	case *StageNode:
		g.stages = removeItem(g.stages, n)
		delete(g.names, n.Name)
		delete(g.vars, n.Var)
		if g.entry == id {
			g.entry = ""
		}
	case *ProbeNode:
		g.probes = removeItem(g.probes, n)
		delete(g.names, n.Name)
		delete(g.vars, n.Name)
	case *RawNode:
		g.raws = removeItem(g.raws, n)
	}

	kept := g.edges[:0]
	for _, e := range g.edges {
		if e.Producer != id && e.Consumer != id {
			kept = append(kept, e)
		}
	}
	g.edges = kept
	delete(g.nodes, id)
	g.ids.Release(id)
	return nil
}

func removeItem[T comparable](items []T, item T) []T {
	for i, it := range items {
		if it == item {
			return append(items[:i], items[i+1:]...)
		}
	}
	return items
}

// RenameNode renames a record, external, stage or probe and rewrites every
// reference to the old name. Ids do not change.
func (g *Graph) RenameNode(id, newName string) error {
	if !lexer.IsValidIdentifier(newName) {
		return &errors.GraphError{
			Code:    errors.ErrInvalidNode,
			Message: fmt.Sprintf("%q is not a valid name", newName),
			Nodes:   []string{newName},
		}
	}
	oldName := g.NameOf(id)
	if oldName == newName {
		return nil
	}
	if _, taken := g.names[newName]; taken {
		return duplicateName(newName)
	}

	if _, ok := g.typeName(id); ok {
		if err := g.renameType(oldName, newName); err != nil {
			return err
		}
		delete(g.typeIDs, oldName)
		g.typeIDs[newName] = id
	} else {
		switch n := g.nodes[id].(type) {
		case *StageNode:
			n.Name = newName
			for _, other := range g.stages {
				if other.JoinType == oldName {
					other.JoinType = newName
				}
			}
		case *ProbeNode:
			if _, taken := g.vars[newName]; taken {
				return duplicateName(newName)
			}
			n.Name = newName
			delete(g.vars, oldName)
			g.vars[newName] = id
		default:
			return &errors.GraphError{
				Code:    errors.ErrInvalidNode,
				Message: fmt.Sprintf("node %s cannot be renamed", id),
			}
		}
	}
	delete(g.names, oldName)
	g.names[newName] = id
	return nil
}

func (g *Graph) renameType(oldName, newName string) error {
	if g.Registry.Record(oldName) != nil {
		if err := g.Registry.RenameRecord(oldName, newName); err != nil {
			return err
		}
	} else if err := g.Registry.RenameExternal(oldName, newName); err != nil {
		return err
	}
	swap := func(s string) string {
		if s == oldName {
			return newName
		}
		return s
	}
	for _, s := range g.stages {
		s.InputType = swap(s.InputType)
		s.LLMInputType = swap(s.LLMInputType)
		s.LLMOutputType = swap(s.LLMOutputType)
		for i, t := range s.OutputTypes {
			s.OutputTypes[i] = swap(t)
		}
	}
	for _, p := range g.probes {
		p.TypeName = swap(p.TypeName)
	}
	return nil
}

// SetHook replaces the state of a stage's hook slot. Custom bodies must
// parse as a block of statements.
func (g *Graph) SetHook(stageID string, slot HookSlot, hook Hook) error {
	s := g.Stage(stageID)
	if s == nil {
		return &errors.GraphError{
			Code:    errors.ErrDanglingEdge,
			Message: fmt.Sprintf("no stage with id %s", stageID),
		}
	}
	if !slot.Applies(s.Variant) && hook.Mode != HookDisabled {
		return &errors.GraphError{
			Code:    errors.ErrInvalidNode,
			Message: fmt.Sprintf("%s stages have no %s hook", s.Variant, slot),
			Nodes:   []string{s.Name},
		}
	}
	if hook.Mode == HookCustom {
		hook.Body = Dedent(hook.Body)
		if perr := parser.CheckBlock(hook.Body); perr != nil {
			return errors.NewInvalidHookBody(perr.Location, s.Name, slot.Method(s.Variant), perr.Message)
		}
	}
	if len(hook.Params) == 0 {
		hook.Params = s.Hooks[slot].Params
	}

	previous := s.Hooks[slot]
	s.Hooks[slot] = hook
	if err := s.Validate(); err != nil {
		s.Hooks[slot] = previous
		return err
	}
	return nil
}

// SetEntry designates the entry stage. An empty id clears it.
func (g *Graph) SetEntry(stageID string) error {
	if stageID == "" {
		g.entry = ""
		return nil
	}
	s := g.Stage(stageID)
	if s == nil {
		return &errors.GraphError{
			Code:    errors.ErrInvalidEntry,
			Message: fmt.Sprintf("entry %s is not a stage", g.NameOf(stageID)),
			Nodes:   []string{g.NameOf(stageID)},
		}
	}
	g.entry = stageID
	return nil
}

// Entry returns the id of the designated entry stage, or ""
func (g *Graph) Entry() string {
	return g.entry
}

// EntryStage returns the designated entry stage, or nil
func (g *Graph) EntryStage() *StageNode {
	return g.Stage(g.entry)
}

// Stages returns stages in insertion order
func (g *Graph) Stages() []*StageNode { return g.stages }

// Probes returns probes in insertion order
func (g *Graph) Probes() []*ProbeNode { return g.probes }

// RawNodes returns raw nodes in insertion order
func (g *Graph) RawNodes() []*RawNode { return g.raws }

// Statements returns module-level statements in insertion order
func (g *Graph) Statements() []*Statement { return g.statements }

// Edges returns edges in insertion order
func (g *Graph) Edges() []Edge { return g.edges }

// Records returns record nodes in registry order
func (g *Graph) Records() []*RecordNode {
	out := make([]*RecordNode, 0, len(g.Registry.Records()))
	for _, rec := range g.Registry.Records() {
		out = append(out, &RecordNode{ID: g.typeIDs[rec.Name], Record: rec})
	}
	return out
}

// Externals returns external type nodes in registry order
func (g *Graph) Externals() []*ExternalNode {
	out := make([]*ExternalNode, 0, len(g.Registry.Externals()))
	for _, ext := range g.Registry.Externals() {
		out = append(out, &ExternalNode{ID: g.typeIDs[ext.Name], Type: ext})
	}
	return out
}

// TypeID returns the node id of a record or external type
func (g *Graph) TypeID(name string) string {
	return g.typeIDs[name]
}

func (g *Graph) typeName(id string) (string, bool) {
	for name, tid := range g.typeIDs {
		if tid == id {
			return name, true
		}
	}
	return "", false
}

// Node returns the stage, probe or raw node with the given id
func (g *Graph) Node(id string) Node {
	return g.nodes[id]
}

// Stage returns the stage with the given id, or nil
func (g *Graph) Stage(id string) *StageNode {
	s, _ := g.nodes[id].(*StageNode)
	return s
}

// Lookup resolves a declared name to its id
func (g *Graph) Lookup(name string) (string, bool) {
	id, ok := g.names[name]
	return id, ok
}

// LookupVar resolves an instance variable to a stage or probe id
func (g *Graph) LookupVar(name string) (string, bool) {
	id, ok := g.vars[name]
	return id, ok
}

// StageByName returns the stage with the given name, or nil
func (g *Graph) StageByName(name string) *StageNode {
	return g.Stage(g.names[name])
}

// NameOf returns the display name of any node id, or the id itself when
// it is unknown
func (g *Graph) NameOf(id string) string {
	if n := g.nodes[id]; n != nil && n.NodeName() != "" {
		return n.NodeName()
	}
	if name, ok := g.typeName(id); ok {
		return name
	}
	return id
}

// Producers returns the ids feeding a node, in edge order
func (g *Graph) Producers(id string) []string {
	out := make([]string, 0)
	for _, e := range g.edges {
		if e.Consumer == id {
			out = append(out, e.Producer)
		}
	}
	return out
}

// Consumers returns the ids a node feeds, in edge order
func (g *Graph) Consumers(id string) []string {
	out := make([]string, 0)
	for _, e := range g.edges {
		if e.Producer == id {
			out = append(out, e.Consumer)
		}
	}
	return out
}

// CheckEdge checks that consumer can take work from producer. Fan-in
// stages accept any upstream type.
func CheckEdge(producer, consumer Node) error {
	var outputs []string
	switch p := producer.(type) {
	case *StageNode:
		outputs = p.OutputTypes
	case *ProbeNode:
		if p.Output {
			return incompatible(producer, consumer, "a data-output probe cannot produce work")
		}
		outputs = []string{p.TypeName}
	default:
		return incompatible(producer, consumer, "only stages and probes can be connected")
	}

	var input string
	switch c := consumer.(type) {
	case *StageNode:
		if c.Variant == FanIn {
			return nil
		}
		input = c.InputType
	case *ProbeNode:
		if !c.Output {
			return incompatible(producer, consumer, "a data-input probe cannot consume work")
		}
		input = c.TypeName
	default:
		return incompatible(producer, consumer, "only stages and probes can be connected")
	}

	for _, t := range outputs {
		if t == input {
			return nil
		}
	}
	return incompatible(producer, consumer,
		fmt.Sprintf("%s consumes %s but %s produces %v", consumer.NodeName(), input, producer.NodeName(), outputs))
}

func incompatible(producer, consumer Node, reason string) error {
	return &errors.GraphError{
		Code:    errors.ErrIncompatibleEdge,
		Message: reason,
		Nodes:   []string{producer.NodeName(), consumer.NodeName()},
	}
}

// FindCycle returns the names of the nodes on a dependency cycle in edge
// direction, or nil when the graph is acyclic
func (g *Graph) FindCycle() []string {
	const (
		white = iota
		grey
		black
	)
	color := make(map[string]int)
	stack := make([]string, 0)
	var cycle []string

	var visit func(id string) bool
	visit = func(id string) bool {
		color[id] = grey
		stack = append(stack, id)
		for _, next := range g.Consumers(id) {
			switch color[next] {
			case grey:
				for i, sid := range stack {
					if sid == next {
						for _, cid := range stack[i:] {
							cycle = append(cycle, g.NameOf(cid))
						}
						return true
					}
				}
			case white:
				if visit(next) {
					return true
				}
			}
		}
		stack = stack[:len(stack)-1]
		color[id] = black
		return false
	}

	for _, id := range g.nodeOrder() {
		if color[id] == white && visit(id) {
			return cycle
		}
	}
	return nil
}

// nodeOrder lists stage and probe ids in insertion order
func (g *Graph) nodeOrder() []string {
	ids := make([]string, 0, len(g.stages)+len(g.probes))
	for _, s := range g.stages {
		ids = append(ids, s.ID)
	}
	for _, p := range g.probes {
		ids = append(ids, p.ID)
	}
	return ids
}

// Clone returns a deep copy of the graph
func (g *Graph) Clone() *Graph {
	c := NewGraph(g.Name)
	c.Var = g.Var
	c.Registry = g.Registry.Clone()
	for name, id := range g.typeIDs {
		c.typeIDs[name] = id
		c.names[name] = id
		c.ids.Reserve(id)
	}
	for _, s := range g.stages {
		cp := s.Clone()
		c.stages = append(c.stages, cp)
		c.nodes[cp.ID] = cp
		c.names[cp.Name] = cp.ID
		c.vars[cp.Var] = cp.ID
		c.ids.Reserve(cp.ID)
	}
	for _, p := range g.probes {
		cp := *p
		c.probes = append(c.probes, &cp)
		c.nodes[cp.ID] = &cp
		c.names[cp.Name] = cp.ID
		c.vars[cp.Name] = cp.ID
		c.ids.Reserve(cp.ID)
	}
	for _, r := range g.raws {
		cp := *r
		c.raws = append(c.raws, &cp)
		c.nodes[cp.ID] = &cp
		c.ids.Reserve(cp.ID)
	}
	for _, st := range g.statements {
		c.AddStatementWithID(st.ID, st.Kind, st.Text)
	}
	c.edges = append(c.edges, g.edges...)
	c.entry = g.entry
	return c
}
