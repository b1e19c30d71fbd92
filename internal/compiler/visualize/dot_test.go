package visualize

import (
	"testing"

	gographviz "github.com/awalterschulze/gographviz"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conduit-lang/pipegraph/internal/compiler/model"
	"github.com/conduit-lang/pipegraph/internal/compiler/registry"
)

func TestDOT(t *testing.T) {
	g := model.NewGraph("Answers")
	_, err := g.AddRecord(registry.NewRecordType("Query"))
	require.NoError(t, err)
	_, err = g.AddRecord(registry.NewRecordType("Answer"))
	require.NoError(t, err)

	clean := model.NewStage("Clean", model.Plain, "Query")
	clean.AddOutput("Query")
	clean.Hooks[model.SlotConsume] = model.Custom("pass")
	cleanID, err := g.AddStage(clean)
	require.NoError(t, err)

	ask := model.NewStage("Ask", model.ModelBacked, "Query")
	ask.AddOutput("Answer")
	askID, err := g.AddStage(ask)
	require.NoError(t, err)

	seedID, err := g.AddProbe(&model.ProbeNode{Name: "seed", TypeName: "Query"})
	require.NoError(t, err)

	require.NoError(t, g.Connect(seedID, cleanID))
	require.NoError(t, g.Connect(cleanID, askID))
	require.NoError(t, g.SetEntry(cleanID))

	dot, err := DOT(g)
	require.NoError(t, err)
	assert.Contains(t, dot, "digraph")
	assert.Contains(t, dot, `"Ask\nQuery -> Answer"`)
	assert.Contains(t, dot, "box3d")
	assert.Contains(t, dot, "bold")

	parsed, err := gographviz.Read([]byte(dot))
	require.NoError(t, err)
	assert.Len(t, parsed.Nodes.Nodes, 3)
	assert.Len(t, parsed.Edges.Edges, 2)
}

func TestDOTEmptyGraph(t *testing.T) {
	dot, err := DOT(model.NewGraph(""))
	require.NoError(t, err)
	assert.Contains(t, dot, `"pipeline"`)
}
