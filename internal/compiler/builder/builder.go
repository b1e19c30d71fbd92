// Package builder turns an extraction into a validated IR graph.
package builder

import (
	"fmt"

	"github.com/conduit-lang/pipegraph/internal/compiler/errors"
	"github.com/conduit-lang/pipegraph/internal/compiler/extractor"
	"github.com/conduit-lang/pipegraph/internal/compiler/model"
)

// Build inserts every extracted declaration into a fresh graph, resolves
// name edges to node ids and validates the result. Ids are derived from
// declaration names, so building the same extraction twice yields the
// same ids.
func Build(x *extractor.Extraction) (*model.Graph, error) {
	g := model.NewGraph(x.GraphName)
	if x.GraphVar != "" {
		g.Var = x.GraphVar
	}

	for _, st := range x.Statements {
		g.AddStatement(st.Kind, st.Text)
	}
	for _, rec := range x.Records {
		if _, err := g.AddRecord(rec); err != nil {
			return nil, err
		}
	}
	for _, ext := range x.Externals {
		if _, err := g.AddExternal(ext); err != nil {
			return nil, err
		}
	}
	for _, s := range x.Stages {
		if _, err := g.AddStage(s); err != nil {
			return nil, err
		}
	}
	for _, p := range x.Probes {
		if _, err := g.AddProbe(p); err != nil {
			return nil, err
		}
	}
	for _, r := range x.Raw {
		if _, err := g.AddRaw(r); err != nil {
			return nil, err
		}
	}

	for _, e := range x.Edges {
		producer, okP := g.Lookup(e.Producer)
		consumer, okC := g.Lookup(e.Consumer)
		if !okP || !okC {
			return nil, &errors.GraphError{
				Code:    errors.ErrDanglingEdge,
				Message: fmt.Sprintf("edge %s -> %s references an undeclared node", e.Producer, e.Consumer),
				Nodes:   []string{e.Producer, e.Consumer},
			}
		}
		g.AddEdgeUnchecked(producer, consumer)
	}

	if x.Entry != "" {
		id, ok := g.Lookup(x.Entry)
		if !ok {
			return nil, &errors.GraphError{
				Code:    errors.ErrInvalidEntry,
				Message: fmt.Sprintf("entry %s is not declared", x.Entry),
				Nodes:   []string{x.Entry},
			}
		}
		if err := g.SetEntry(id); err != nil {
			return nil, err
		}
	}

	if err := Validate(g); err != nil {
		return nil, err
	}
	return g, nil
}

// Validate checks the graph invariants in a fixed order: cycles, type
// references, edge compatibility, then join anchors. The first violation
// is returned.
func Validate(g *model.Graph) error {
	if cycle := g.FindCycle(); len(cycle) > 0 {
		return &errors.GraphError{
			Code:    errors.ErrCycle,
			Message: "dependency cycle detected",
			Nodes:   cycle,
		}
	}
	if err := checkTypes(g); err != nil {
		return err
	}
	for _, e := range g.Edges() {
		producer, consumer := g.Node(e.Producer), g.Node(e.Consumer)
		if producer == nil || consumer == nil {
			return &errors.GraphError{
				Code:    errors.ErrDanglingEdge,
				Message: fmt.Sprintf("edge %s -> %s references a missing node", e.Producer, e.Consumer),
				Nodes:   []string{g.NameOf(e.Producer), g.NameOf(e.Consumer)},
			}
		}
		if err := model.CheckEdge(producer, consumer); err != nil {
			return err
		}
	}
	return checkJoinAnchors(g)
}

func checkTypes(g *model.Graph) error {
	if err := g.Registry.Validate(); err != nil {
		return err
	}
	for _, s := range g.Stages() {
		for _, t := range s.TypeRefs() {
			if !g.Registry.Has(t) {
				return undeclared(t, s.Name)
			}
		}
	}
	for _, p := range g.Probes() {
		if !g.Registry.Has(p.TypeName) {
			return undeclared(p.TypeName, p.Name)
		}
	}
	return nil
}

func undeclared(typeName, node string) error {
	return &errors.TypeError{
		Code:     errors.ErrUndeclaredType,
		Message:  fmt.Sprintf("type %s is not declared", typeName),
		TypeName: typeName,
		NodeName: node,
	}
}

// checkJoinAnchors requires every fan-in stage to name the entry sentinel
// or another stage. When the fan-in stage has producers, a stage anchor
// must be upstream of it.
func checkJoinAnchors(g *model.Graph) error {
	for _, s := range g.Stages() {
		if s.Variant != model.FanIn || s.JoinType == model.EntrySentinel {
			continue
		}
		anchor := g.StageByName(s.JoinType)
		if anchor == nil || anchor == s {
			return &errors.GraphError{
				Code:    errors.ErrInvalidJoinAnchor,
				Message: fmt.Sprintf("join anchor %s of %s is not another stage or %s", s.JoinType, s.Name, model.EntrySentinel),
				Nodes:   []string{s.Name, s.JoinType},
			}
		}
		if len(g.Producers(s.ID)) > 0 && !upstream(g, anchor.ID, s.ID) {
			return &errors.GraphError{
				Code:    errors.ErrInvalidJoinAnchor,
				Message: fmt.Sprintf("join anchor %s is not upstream of %s", anchor.Name, s.Name),
				Nodes:   []string{s.Name, anchor.Name},
			}
		}
	}
	return nil
}

// upstream reports whether target is reachable from source
func upstream(g *model.Graph, source, target string) bool {
	seen := map[string]bool{source: true}
	queue := []string{source}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if id == target {
			return true
		}
		for _, next := range g.Consumers(id) {
			if !seen[next] {
				seen[next] = true
				queue = append(queue, next)
			}
		}
	}
	return false
}
