package builder

import (
	goerrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conduit-lang/pipegraph/internal/compiler/errors"
	"github.com/conduit-lang/pipegraph/internal/compiler/extractor"
	"github.com/conduit-lang/pipegraph/internal/compiler/model"
	"github.com/conduit-lang/pipegraph/internal/compiler/registry"
)

const records = `class Item(Task):
    value: int


class Query(Task):
    text: str


class Result(Task):
    text: str
`

func build(t *testing.T, source string) (*model.Graph, error) {
	t.Helper()
	x, err := extractor.ExtractSource(source, extractor.Options{})
	require.NoError(t, err)
	return Build(x)
}

func graphError(t *testing.T, err error) *errors.GraphError {
	t.Helper()
	require.Error(t, err)
	var graphErr *errors.GraphError
	require.True(t, goerrors.As(err, &graphErr), "expected a graph error, got %v", err)
	return graphErr
}

func TestBuildPipeline(t *testing.T) {
	source := records + `

class Echo(TaskWorker):
    def consume_work(self, task: Query):
        self.publish_work(Result(text=task.text), input_task=task)


class Shout(TaskWorker):
    def consume_work(self, task: Result):
        self.publish_work(Result(text=task.text.upper()), input_task=task)


graph = Graph(name="Echoes")
echo = Echo()
shout = Shout()
graph.add_workers(echo, shout)
graph.set_dependency(echo, shout)
graph.set_entry(echo)
`
	g, err := build(t, source)
	require.NoError(t, err)

	assert.Equal(t, "Echoes", g.Name)
	assert.Len(t, g.Records(), 3)
	require.Len(t, g.Stages(), 2)
	require.Len(t, g.Edges(), 1)

	echo := g.StageByName("Echo")
	shout := g.StageByName("Shout")
	assert.Equal(t, model.Edge{Producer: echo.ID, Consumer: shout.ID}, g.Edges()[0])
	assert.Equal(t, echo.ID, g.Entry())

	// Same source, same ids
	again, err := build(t, source)
	require.NoError(t, err)
	assert.Equal(t, echo.ID, again.StageByName("Echo").ID)
	assert.Equal(t, g.TypeID("Query"), again.TypeID("Query"))
}

func TestIncompatibleEdgeNamesBothStages(t *testing.T) {
	source := records + `

class Echo(TaskWorker):
    def consume_work(self, task: Query):
        self.publish_work(Result(text=task.text), input_task=task)


class Count(TaskWorker):
    def consume_work(self, task: Item):
        self.publish_work(Item(value=task.value + 1), input_task=task)


graph = Graph(name="Mismatch")
echo = Echo()
count = Count()
graph.set_dependency(echo, count)
`
	_, err := build(t, source)
	graphErr := graphError(t, err)
	assert.Equal(t, errors.ErrIncompatibleEdge, graphErr.Code)
	assert.Equal(t, []string{"Echo", "Count"}, graphErr.Nodes)
}

func TestCycleNamesParticipants(t *testing.T) {
	source := records + `

class A(TaskWorker):
    def consume_work(self, task: Item):
        self.publish_work(Item(value=task.value), input_task=task)


class B(TaskWorker):
    def consume_work(self, task: Item):
        self.publish_work(Item(value=task.value), input_task=task)


graph = Graph(name="Loop")
a = A()
b = B()
graph.set_dependency(a, b)
graph.set_dependency(b, a)
`
	_, err := build(t, source)
	graphErr := graphError(t, err)
	assert.Equal(t, errors.ErrCycle, graphErr.Code)
	assert.ElementsMatch(t, []string{"A", "B"}, graphErr.Nodes)
}

func TestJoinAnchors(t *testing.T) {
	stages := records + `

class InitialStage(TaskWorker):
    def consume_work(self, task: Item):
        self.publish_work(Item(value=task.value), input_task=task)


class Double(TaskWorker):
    def consume_work(self, task: Item):
        self.publish_work(Item(value=task.value * 2), input_task=task)


class Sum(JoinedTaskWorker):
    join_type = %s

    def consume_work_joined(self, tasks: List[Item]):
        self.publish_work(Item(value=len(tasks)), input_task=tasks[0])
`
	tests := []struct {
		name   string
		anchor string
		ok     bool
	}{
		{"upstream stage", "InitialStage", true},
		{"entry sentinel", "InitialTaskWorker", true},
		{"unknown stage", "Missing", false},
		{"itself", "Sum", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, err := build(t, fmt.Sprintf(stages, tt.anchor))
			if tt.ok {
				require.NoError(t, err)
				join := g.StageByName("Sum")
				assert.Equal(t, tt.anchor, join.JoinType)
				assert.Len(t, g.Producers(join.ID), 2)
				return
			}
			graphErr := graphError(t, err)
			assert.Equal(t, errors.ErrInvalidJoinAnchor, graphErr.Code)
			assert.Equal(t, "Sum", graphErr.Nodes[0])
		})
	}
}

func TestJoinAnchorMustBeUpstream(t *testing.T) {
	source := records + `

class Side(TaskWorker):
    def consume_work(self, task: Query):
        self.publish_work(Query(text=task.text), input_task=task)


class Source(TaskWorker):
    def consume_work(self, task: Item):
        self.publish_work(Item(value=task.value), input_task=task)


class Sum(JoinedTaskWorker):
    join_type = Side

    def consume_work_joined(self, tasks: List[Item]):
        self.publish_work(Result(text=str(len(tasks))), input_task=tasks[0])


graph = Graph(name="Join")
side = Side()
source = Source()
total = Sum()
graph.set_dependency(source, total)
`
	_, err := build(t, source)
	graphErr := graphError(t, err)
	assert.Equal(t, errors.ErrInvalidJoinAnchor, graphErr.Code)
	assert.Equal(t, []string{"Sum", "Side"}, graphErr.Nodes)
}

func TestDanglingAndDuplicateNames(t *testing.T) {
	x := &extractor.Extraction{
		Records: []*registry.RecordType{registry.NewRecordType("Item")},
		Stages:  []*model.StageNode{model.NewStage("Item", model.ModelBacked, "Item")},
	}
	_, err := Build(x)
	assert.Equal(t, errors.ErrDuplicateName, graphError(t, err).Code)

	x = &extractor.Extraction{
		Records: []*registry.RecordType{registry.NewRecordType("Item")},
		Stages:  []*model.StageNode{model.NewStage("Count", model.ModelBacked, "Item")},
		Edges:   []extractor.NameEdge{{Producer: "Count", Consumer: "Ghost"}},
	}
	_, err = Build(x)
	graphErr := graphError(t, err)
	assert.Equal(t, errors.ErrDanglingEdge, graphErr.Code)
	assert.Equal(t, []string{"Count", "Ghost"}, graphErr.Nodes)
}

func TestUndeclaredStageType(t *testing.T) {
	stage := model.NewStage("Count", model.ModelBacked, "Item")
	stage.AddOutput("Ghost")
	x := &extractor.Extraction{
		Records: []*registry.RecordType{registry.NewRecordType("Item")},
		Stages:  []*model.StageNode{stage},
	}

	_, err := Build(x)
	require.Error(t, err)
	var typeErr *errors.TypeError
	require.True(t, goerrors.As(err, &typeErr))
	assert.Equal(t, "Ghost", typeErr.TypeName)
	assert.Equal(t, "Count", typeErr.NodeName)
}

func TestValidateAfterEdits(t *testing.T) {
	g, err := build(t, records+`

class Echo(TaskWorker):
    def consume_work(self, task: Query):
        self.publish_work(Result(text=task.text), input_task=task)
`)
	require.NoError(t, err)
	require.NoError(t, Validate(g))

	require.NoError(t, g.RemoveNode(g.TypeID("Result")))
	err = Validate(g)
	require.Error(t, err)
	assert.True(t, goerrors.Is(err, errors.ErrType))
}
