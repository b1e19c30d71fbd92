package snapshot

import (
	"encoding/json"
	"fmt"

	"github.com/conduit-lang/pipegraph/internal/compiler/builder"
	"github.com/conduit-lang/pipegraph/internal/compiler/errors"
	"github.com/conduit-lang/pipegraph/internal/compiler/model"
)

// Encode captures g. Nodes are listed records first, then externals,
// stages, probes and raw nodes, each in insertion order.
func Encode(g *model.Graph) *Snapshot {
	snap := &Snapshot{
		Version:    Version,
		Name:       g.Name,
		Var:        g.Var,
		Entry:      g.Entry(),
		Nodes:      make([]Node, 0),
		Edges:      append([]model.Edge{}, g.Edges()...),
		Statements: make([]*model.Statement, 0, len(g.Statements())),
	}

	for _, r := range g.Records() {
		snap.Nodes = append(snap.Nodes, Node{ID: r.ID, Kind: model.KindRecord, Name: r.Record.Name, Record: r.Record.Clone()})
	}
	for _, e := range g.Externals() {
		ext := *e.Type
		snap.Nodes = append(snap.Nodes, Node{ID: e.ID, Kind: model.KindExternal, Name: ext.Name, External: &ext})
	}
	for _, s := range g.Stages() {
		snap.Nodes = append(snap.Nodes, Node{
			ID:    s.ID,
			Kind:  s.Kind(),
			Name:  s.Name,
			Stage: s.Clone(),
			Hooks: encodeHooks(s),
		})
	}
	for _, p := range g.Probes() {
		cp := *p
		snap.Nodes = append(snap.Nodes, Node{ID: p.ID, Kind: p.Kind(), Name: p.Name, Probe: &cp})
	}
	for _, r := range g.RawNodes() {
		cp := *r
		snap.Nodes = append(snap.Nodes, Node{ID: r.ID, Kind: model.KindRaw, Name: r.Name, Raw: &cp})
	}
	for _, st := range g.Statements() {
		cp := *st
		snap.Statements = append(snap.Statements, &cp)
	}
	return snap
}

func encodeHooks(s *model.StageNode) map[string]Hook {
	hooks := make(map[string]Hook)
	for _, slot := range model.AllSlots {
		if !slot.Applies(s.Variant) {
			continue
		}
		h := s.Hooks[slot]
		hooks[slot.String()] = Hook{
			Mode:   h.Mode.String(),
			Body:   h.Body,
			Params: append([]string(nil), h.Params...),
			Async:  h.Async,
		}
	}
	return hooks
}

// Decode rebuilds a graph from a snapshot. Node ids are preserved. The
// result is validated the same way imported source is.
func Decode(snap *Snapshot) (*model.Graph, error) {
	if snap == nil {
		return nil, fmt.Errorf("snapshot cannot be nil")
	}
	if snap.Version != Version {
		return nil, fmt.Errorf("unsupported snapshot version %q", snap.Version)
	}

	g := model.NewGraph(snap.Name)
	if snap.Var != "" {
		g.Var = snap.Var
	}
	for _, st := range snap.Statements {
		g.AddStatementWithID(st.ID, st.Kind, st.Text)
	}
	for _, n := range snap.Nodes {
		if err := decodeNode(g, n); err != nil {
			return nil, err
		}
	}
	for _, e := range snap.Edges {
		if err := g.Connect(e.Producer, e.Consumer); err != nil {
			return nil, err
		}
	}
	if err := g.SetEntry(snap.Entry); err != nil {
		return nil, err
	}
	if err := builder.Validate(g); err != nil {
		return nil, err
	}
	return g, nil
}

func decodeNode(g *model.Graph, n Node) error {
	var err error
	switch n.Kind {
	case model.KindRecord:
		if n.Record == nil {
			return missingPayload(n)
		}
		_, err = g.AddRecordWithID(n.ID, n.Record.Clone())
	case model.KindExternal:
		if n.External == nil {
			return missingPayload(n)
		}
		ext := *n.External
		_, err = g.AddExternalWithID(n.ID, &ext)
	case model.KindDataInput, model.KindDataOutput:
		if n.Probe == nil {
			return missingPayload(n)
		}
		p := *n.Probe
		p.ID = n.ID
		p.Output = n.Kind == model.KindDataOutput
		_, err = g.AddProbe(&p)
	case model.KindRaw:
		if n.Raw == nil {
			return missingPayload(n)
		}
		r := *n.Raw
		r.ID = n.ID
		_, err = g.AddRaw(&r)
	default:
		variant, ok := model.VariantForKind(n.Kind)
		if !ok {
			return invalidNode(n, fmt.Sprintf("unknown node kind %q", n.Kind))
		}
		if n.Stage == nil {
			return missingPayload(n)
		}
		s := n.Stage.Clone()
		s.ID = n.ID
		s.Variant = variant
		if err := decodeHooks(s, n); err != nil {
			return err
		}
		_, err = g.AddStage(s)
	}
	return err
}

func decodeHooks(s *model.StageNode, n Node) error {
	for name, h := range n.Hooks {
		slot, ok := model.ParseSlot(name)
		if !ok {
			return invalidNode(n, fmt.Sprintf("unknown hook slot %q", name))
		}
		mode, ok := model.ParseHookMode(h.Mode)
		if !ok {
			return invalidNode(n, fmt.Sprintf("unknown hook mode %q", h.Mode))
		}
		s.Hooks[slot] = model.Hook{
			Mode:   mode,
			Body:   h.Body,
			Params: append([]string(nil), h.Params...),
			Async:  h.Async,
		}
	}
	return nil
}

func missingPayload(n Node) error {
	return invalidNode(n, fmt.Sprintf("%s node has no %s payload", n.Kind, payloadName(n.Kind)))
}

func payloadName(kind model.NodeKind) string {
	switch kind {
	case model.KindRecord, model.KindExternal, model.KindRaw:
		return string(kind)
	case model.KindDataInput, model.KindDataOutput:
		return "probe"
	}
	return "stage"
}

func invalidNode(n Node, message string) error {
	name := n.Name
	if name == "" {
		name = n.ID
	}
	return &errors.GraphError{
		Code:    errors.ErrInvalidNode,
		Message: message,
		Nodes:   []string{name},
	}
}

// Marshal encodes g as indented JSON. The output is deterministic.
func Marshal(g *model.Graph) ([]byte, error) {
	data, err := json.MarshalIndent(Encode(g), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to serialize graph: %w", err)
	}
	return data, nil
}

// Unmarshal decodes JSON produced by Marshal
func Unmarshal(data []byte) (*model.Graph, error) {
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to parse snapshot: %w", err)
	}
	return Decode(&snap)
}
