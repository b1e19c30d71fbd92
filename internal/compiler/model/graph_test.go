package model

import (
	goerrors "errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conduit-lang/pipegraph/internal/compiler/errors"
	"github.com/conduit-lang/pipegraph/internal/compiler/registry"
)

// newPipeline builds Query -> Echo -> Result -> Summarize -> Summary
func newPipeline(t *testing.T) (*Graph, string, string) {
	t.Helper()
	g := NewGraph("Pipeline")
	for _, name := range []string{"Query", "Result", "Summary"} {
		_, err := g.AddRecord(registry.NewRecordType(name))
		require.NoError(t, err)
	}

	echo := NewStage("Echo", Plain, "Query")
	echo.AddOutput("Result")
	echo.Hooks[SlotConsume] = Custom("self.publish_work(Result(text=task.text), input_task=task)")
	echoID, err := g.AddStage(echo)
	require.NoError(t, err)

	summarize := NewStage("Summarize", ModelBacked, "Result")
	summarize.AddOutput("Summary")
	summarize.Prompt = NewText("Summarize the text")
	sumID, err := g.AddStage(summarize)
	require.NoError(t, err)

	require.NoError(t, g.Connect(echoID, sumID))
	return g, echoID, sumID
}

func TestIDsAreDeterministic(t *testing.T) {
	a, echoA, _ := newPipeline(t)
	b, echoB, _ := newPipeline(t)

	assert.Equal(t, echoA, echoB)
	assert.Equal(t, a.TypeID("Query"), b.TypeID("Query"))
	assert.True(t, strings.HasPrefix(echoA, "plain-"))
	assert.Len(t, strings.TrimPrefix(echoA, "plain-"), 10)
	assert.Equal(t, HashID("record", "Query"), a.TypeID("Query"))
}

func TestIDCollisionsGetSuffix(t *testing.T) {
	ids := NewIDAllocator()
	first := ids.Next("raw", "x = 1")
	second := ids.Next("raw", "x = 1")
	third := ids.Next("raw", "x = 1")

	assert.Equal(t, HashID("raw", "x = 1"), first)
	assert.Equal(t, first+"-2", second)
	assert.Equal(t, first+"-3", third)

	assert.False(t, ids.Reserve(second))
	ids.Release(second)
	assert.True(t, ids.Reserve(second))
}

func TestDuplicateNamesShareOneNamespace(t *testing.T) {
	g, _, _ := newPipeline(t)

	_, err := g.AddStage(NewStage("Query", Plain, "Query"))
	require.Error(t, err)
	var graphErr *errors.GraphError
	require.True(t, goerrors.As(err, &graphErr))
	assert.Equal(t, errors.ErrDuplicateName, graphErr.Code)
	assert.Equal(t, []string{"Query"}, graphErr.Nodes)

	_, err = g.AddRecord(registry.NewRecordType("Echo"))
	assert.Error(t, err)

	_, err = g.AddProbe(&ProbeNode{Name: "echo", TypeName: "Query"})
	assert.Error(t, err)
}

func TestConnectRejectsIncompatibleTypes(t *testing.T) {
	g, echoID, sumID := newPipeline(t)

	report := NewStage("Report", Plain, "Query")
	reportID, err := g.AddStage(report)
	require.NoError(t, err)

	err = g.Connect(sumID, reportID)
	require.Error(t, err)
	var graphErr *errors.GraphError
	require.True(t, goerrors.As(err, &graphErr))
	assert.Equal(t, errors.ErrIncompatibleEdge, graphErr.Code)
	assert.Equal(t, []string{"Summarize", "Report"}, graphErr.Nodes)

	// Re-connecting an existing edge is a no-op
	require.NoError(t, g.Connect(echoID, sumID))
	assert.Len(t, g.Edges(), 1)

	err = g.Connect(echoID, "plain-missing")
	require.True(t, goerrors.As(err, &graphErr))
	assert.Equal(t, errors.ErrDanglingEdge, graphErr.Code)
}

func TestFanInAcceptsAnyUpstream(t *testing.T) {
	g, echoID, sumID := newPipeline(t)

	join := NewStage("Collect", FanIn, "Summary")
	join.JoinType = EntrySentinel
	joinID, err := g.AddStage(join)
	require.NoError(t, err)

	require.NoError(t, g.Connect(sumID, joinID))
	require.NoError(t, g.Connect(echoID, joinID))
	assert.Equal(t, []string{sumID, echoID}, g.Producers(joinID))
}

func TestConnectRejectsCycles(t *testing.T) {
	g := NewGraph("Loop")
	_, err := g.AddRecord(registry.NewRecordType("Item"))
	require.NoError(t, err)

	a := NewStage("A", Plain, "Item")
	a.AddOutput("Item")
	b := NewStage("B", Plain, "Item")
	b.AddOutput("Item")
	aID, err := g.AddStage(a)
	require.NoError(t, err)
	bID, err := g.AddStage(b)
	require.NoError(t, err)

	require.NoError(t, g.Connect(aID, bID))
	err = g.Connect(bID, aID)
	require.Error(t, err)

	var graphErr *errors.GraphError
	require.True(t, goerrors.As(err, &graphErr))
	assert.Equal(t, errors.ErrCycle, graphErr.Code)
	assert.ElementsMatch(t, []string{"A", "B"}, graphErr.Nodes)
	assert.Len(t, g.Edges(), 1)

	g.AddEdgeUnchecked(bID, aID)
	assert.ElementsMatch(t, []string{"A", "B"}, g.FindCycle())
}

func TestProbes(t *testing.T) {
	g, echoID, sumID := newPipeline(t)

	seedID, err := g.AddProbe(&ProbeNode{Name: "seed", TypeName: "Query", Data: `{"text": "hi"}`})
	require.NoError(t, err)
	outID, err := g.AddProbe(&ProbeNode{Name: "out", TypeName: "Summary", Output: true})
	require.NoError(t, err)

	require.NoError(t, g.Connect(seedID, echoID))
	require.NoError(t, g.Connect(sumID, outID))
	assert.Error(t, g.Connect(outID, echoID))
	assert.Error(t, g.Connect(echoID, seedID))

	assert.Equal(t, KindDataInput, g.Node(seedID).Kind())
	assert.Equal(t, "DataOutput", g.Node(outID).(*ProbeNode).Constructor())
}

func TestRemoveNodeDropsEdges(t *testing.T) {
	g, echoID, sumID := newPipeline(t)
	require.NoError(t, g.SetEntry(echoID))

	require.NoError(t, g.RemoveNode(echoID))
	assert.Empty(t, g.Edges())
	assert.Empty(t, g.Entry())
	assert.Nil(t, g.StageByName("Echo"))
	assert.Len(t, g.Stages(), 1)

	// The name is free again
	_, err := g.AddStage(NewStage("Echo", Plain, "Query"))
	assert.NoError(t, err)

	require.NoError(t, g.RemoveNode(g.TypeID("Summary")))
	assert.Nil(t, g.Registry.Record("Summary"))
	assert.Equal(t, sumID, g.StageByName("Summarize").ID)

	assert.Error(t, g.RemoveNode("plain-0000000000"))
}

func TestRenameNode(t *testing.T) {
	g, echoID, _ := newPipeline(t)

	join := NewStage("Collect", FanIn, "Summary")
	join.JoinType = "Echo"
	_, err := g.AddStage(join)
	require.NoError(t, err)

	require.NoError(t, g.RenameNode(echoID, "Repeat"))
	assert.Equal(t, "Repeat", g.Stage(echoID).Name)
	assert.Equal(t, "Repeat", g.StageByName("Collect").JoinType)
	assert.Equal(t, "echo", g.Stage(echoID).Var)

	queryID := g.TypeID("Query")
	require.NoError(t, g.RenameNode(queryID, "Request"))
	assert.Equal(t, "Request", g.Stage(echoID).InputType)
	assert.Equal(t, queryID, g.TypeID("Request"))
	assert.NotNil(t, g.Registry.Record("Request"))

	assert.Error(t, g.RenameNode(echoID, "Summarize"))
	assert.Error(t, g.RenameNode(echoID, "not valid"))
}

func TestSetHook(t *testing.T) {
	g, echoID, sumID := newPipeline(t)

	require.NoError(t, g.SetHook(sumID, SlotPrompt, Custom("    return f\"Summarize {task.text}\"\n")))
	assert.Equal(t, "return f\"Summarize {task.text}\"", g.Stage(sumID).Hook(SlotPrompt).Body)

	err := g.SetHook(echoID, SlotConsume, Custom("if task:\nreturn"))
	require.Error(t, err)
	assert.Equal(t, errors.ErrInvalidHookBody, errors.ToDiagnostic(err).Code)

	err = g.SetHook(echoID, SlotConsume, Custom("total = = 1"))
	require.Error(t, err)
	assert.Equal(t, errors.ErrInvalidHookBody, errors.ToDiagnostic(err).Code)

	err = g.SetHook(echoID, SlotPrompt, Hook{Mode: HookDefault})
	assert.Error(t, err)

	summarize := g.Stage(sumID)
	summarize.LLMInputType = "Query"
	require.NoError(t, g.SetHook(sumID, SlotConsume, Custom("return super().consume_work(task)")))
	err = g.SetHook(sumID, SlotConsume, Hook{Mode: HookDefault})
	assert.Error(t, err)
	assert.Equal(t, HookCustom, summarize.Hook(SlotConsume).Mode)

	summarize.LLMInputType = ""
	require.NoError(t, g.SetHook(sumID, SlotConsume, Hook{Mode: HookDefault}))
	assert.False(t, summarize.Hook(SlotConsume).Enabled())

	require.NoError(t, g.SetHook(sumID, SlotPrompt, Hook{Mode: HookDisabled}))
	assert.False(t, g.Stage(sumID).Hook(SlotPrompt).Enabled())
}

func TestSetEntry(t *testing.T) {
	g, echoID, _ := newPipeline(t)

	require.NoError(t, g.SetEntry(echoID))
	assert.Equal(t, "Echo", g.EntryStage().Name)

	err := g.SetEntry(g.TypeID("Query"))
	var graphErr *errors.GraphError
	require.True(t, goerrors.As(err, &graphErr))
	assert.Equal(t, errors.ErrInvalidEntry, graphErr.Code)

	require.NoError(t, g.SetEntry(""))
	assert.Nil(t, g.EntryStage())
}

func TestStatementsAreDeduplicated(t *testing.T) {
	g := NewGraph("")
	first := g.AddStatement(StatementImport, "import os")
	second := g.AddStatement(StatementImport, "import os")
	g.AddStatement(StatementConfig, "llm = llm_from_config()")

	assert.Equal(t, first, second)
	assert.Len(t, g.Statements(), 2)

	require.NoError(t, g.RemoveNode(first))
	assert.Len(t, g.Statements(), 1)
}

func TestChatStageAddsImplicitExternals(t *testing.T) {
	g := NewGraph("Chat")
	_, err := g.AddStage(NewStage("Assistant", ChatEntry, ""))
	require.NoError(t, err)

	for _, name := range []string{ChatInputType, ChatOutputType} {
		ext := g.Registry.External(name)
		require.NotNil(t, ext, name)
		assert.True(t, ext.Implicit)
		assert.NotEmpty(t, g.TypeID(name))
	}
}

func TestCloneIsIndependent(t *testing.T) {
	g, echoID, sumID := newPipeline(t)
	require.NoError(t, g.SetEntry(echoID))

	c := g.Clone()
	require.NoError(t, c.RenameNode(echoID, "Other"))
	c.Disconnect(echoID, sumID)

	assert.Equal(t, "Echo", g.Stage(echoID).Name)
	assert.Len(t, g.Edges(), 1)
	assert.Equal(t, echoID, c.Entry())
	assert.Equal(t, g.TypeID("Query"), c.TypeID("Query"))
}
