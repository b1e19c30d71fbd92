// Package visualize renders IR graphs as Graphviz DOT
package visualize

import (
	"fmt"
	"strconv"
	"strings"

	gographviz "github.com/awalterschulze/gographviz"

	"github.com/conduit-lang/pipegraph/internal/compiler/model"
)

var shapes = map[model.NodeKind]string{
	model.KindPlain:      "box",
	model.KindModel:      "box3d",
	model.KindFanIn:      "invtrapezium",
	model.KindSubgraph:   "component",
	model.KindChatEntry:  "cds",
	model.KindDataInput:  "invhouse",
	model.KindDataOutput: "house",
}

// DOT renders the stages and probes of g with their dependency edges. The
// entry stage is drawn bold. Stage labels carry the input and output types.
func DOT(g *model.Graph) (string, error) {
	name := g.Name
	if name == "" {
		name = "pipeline"
	}
	out := gographviz.NewGraph()
	if err := out.SetName(quoted(name)); err != nil {
		return "", err
	}
	if err := out.SetDir(true); err != nil {
		return "", err
	}
	if err := out.AddAttr(out.Name, "rankdir", "LR"); err != nil {
		return "", err
	}

	for _, s := range g.Stages() {
		attrs := map[string]string{
			"shape": shapes[s.Kind()],
			"label": quoted(stageLabel(s)),
		}
		if s.ID == g.Entry() {
			attrs["style"] = "bold"
		}
		if err := out.AddNode(out.Name, quoted(s.ID), attrs); err != nil {
			return "", fmt.Errorf("stage %s: %w", s.Name, err)
		}
	}
	for _, p := range g.Probes() {
		attrs := map[string]string{
			"shape": shapes[p.Kind()],
			"label": quoted(p.Name + "\n" + p.TypeName),
			"style": "dashed",
		}
		if err := out.AddNode(out.Name, quoted(p.ID), attrs); err != nil {
			return "", fmt.Errorf("probe %s: %w", p.Name, err)
		}
	}
	for _, e := range g.Edges() {
		if err := out.AddEdge(quoted(e.Producer), quoted(e.Consumer), true, nil); err != nil {
			return "", fmt.Errorf("edge %s -> %s: %w", g.NameOf(e.Producer), g.NameOf(e.Consumer), err)
		}
	}
	return out.String(), nil
}

func stageLabel(s *model.StageNode) string {
	label := s.Name + "\n" + s.InputType
	if len(s.OutputTypes) > 0 {
		label += " -> " + strings.Join(s.OutputTypes, ", ")
	}
	return label
}

func quoted(s string) string {
	return strconv.Quote(s)
}
