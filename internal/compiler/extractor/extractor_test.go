package extractor

import (
	goerrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conduit-lang/pipegraph/internal/compiler/errors"
	"github.com/conduit-lang/pipegraph/internal/compiler/model"
	"github.com/conduit-lang/pipegraph/internal/compiler/registry"
)

func extract(t *testing.T, source string, known ...string) *Extraction {
	t.Helper()
	result, err := ExtractSource(source, Options{KnownTypes: known})
	require.NoError(t, err)
	return result
}

func stageNamed(x *Extraction, name string) *model.StageNode {
	for _, s := range x.Stages {
		if s.Name == name {
			return s
		}
	}
	return nil
}

func recordNamed(x *Extraction, name string) *registry.RecordType {
	for _, r := range x.Records {
		if r.Name == name {
			return r
		}
	}
	return nil
}

func TestStageWithoutPublishCall(t *testing.T) {
	source := `from planai import Task, TaskWorker


class Query(Task):
    text: str


class Result(Task):
    text: str


class Echo(TaskWorker):
    output_types = [Result]

    def consume_work(self, task: Query):
        result = Result(text=task.text)
`
	x := extract(t, source)

	assert.Len(t, x.Records, 2)
	require.Len(t, x.Stages, 1)
	assert.Empty(t, x.Edges)

	echo := x.Stages[0]
	assert.Equal(t, model.Plain, echo.Variant)
	assert.Equal(t, "Query", echo.InputType)
	assert.Equal(t, []string{"Result"}, echo.OutputTypes)
	assert.Equal(t, model.HookCustom, echo.Hook(model.SlotConsume).Mode)
	assert.Equal(t, "result = Result(text=task.text)", echo.Hook(model.SlotConsume).Body)

	assert.False(t, x.Diagnostics.HasErrors())
	assert.Len(t, x.Diagnostics.ByCode(errors.ErrNoPublishCall), 1)
}

const pipelineSource = `from typing import List, Literal, Optional, Type
from pydantic import Field
from planai import Graph, Task, TaskWorker, LLMTaskWorker, JoinedTaskWorker, InitialTaskWorker
from planai.editor import DataInput, DataOutput

llm = llm_from_config(provider="openai", model_name="gpt-4o")


class Query(Task):
    """A user question."""
    text: str = Field(description="user text")
    tags: List[str] = []
    mode: Literal["fast", "slow"]
    owner: Optional[Customer] = None


class Result(Task):
    text: str


class Summary(Task):
    text: str
    score: float = 0.0


class Report(Task):
    count: int


class Echo(TaskWorker):
    output_types: List[Type[Task]] = [Result]

    def consume_work(self, task: Query):
        self.publish_work(Result(text=task.text), input_task=task)


class Summarize(LLMTaskWorker):
    output_types: List[Type[Task]] = [Summary]
    llm_input_type: Type[Task] = Result
    prompt: str = "Summarize the text"
    system_prompt: str = "You are terse."
    use_xml: bool = True

    def format_prompt(self, task: Result) -> str:
        return super().format_prompt(task)


class Collect(JoinedTaskWorker):
    output_types: List[Type[Task]] = [Report]
    join_type: Type[TaskWorker] = InitialTaskWorker

    def consume_work_joined(self, tasks: List[Summary]):
        self.publish_work(Report(count=len(tasks)), input_task=tasks[0])


graph = Graph(name="Pipeline")
echo = Echo()
summarize = Summarize(llm=llm, temperature=0.2, retries=-1, label=make_label())
collect = Collect()
seed = DataInput(task_type=Query, data={"text": "hi"})
report_out = DataOutput(task_type=Report)
graph.add_workers(echo, summarize, collect)
graph.set_dependency(seed, echo)
graph.set_dependency(echo, summarize).next(collect)
graph.set_dependency(collect, report_out)
graph.set_entry(echo)

if __name__ == "__main__":
    graph.run(initial_tasks=[])
`

func TestExtractPipeline(t *testing.T) {
	x := extract(t, pipelineSource, "shared.models.Customer")

	assert.True(t, x.HasAssembly)
	assert.Equal(t, "Pipeline", x.GraphName)
	assert.Equal(t, "graph", x.GraphVar)
	assert.Equal(t, "Echo", x.Entry)

	assert.Len(t, x.Records, 4)
	require.Len(t, x.Stages, 3)
	require.Len(t, x.Probes, 2)

	assert.Equal(t, []NameEdge{
		{Producer: "seed", Consumer: "Echo"},
		{Producer: "Echo", Consumer: "Summarize"},
		{Producer: "Summarize", Consumer: "Collect"},
		{Producer: "Collect", Consumer: "report_out"},
	}, withoutLocations(x.Edges))

	kinds := make([]model.StatementKind, 0)
	for _, s := range x.Statements {
		kinds = append(kinds, s.Kind)
	}
	assert.Equal(t, []model.StatementKind{
		model.StatementImport, model.StatementImport, model.StatementImport,
		model.StatementImport, model.StatementConfig,
	}, kinds)
	assert.Equal(t, `llm = llm_from_config(provider="openai", model_name="gpt-4o")`, x.Statements[4].Text)

	require.Len(t, x.Raw, 1)
	assert.Equal(t, model.Epilogue, x.Raw[0].Placement)
	assert.Contains(t, x.Raw[0].Text, `if __name__ == "__main__":`)
}

func withoutLocations(edges []NameEdge) []NameEdge {
	out := make([]NameEdge, 0, len(edges))
	for _, e := range edges {
		out = append(out, NameEdge{Producer: e.Producer, Consumer: e.Consumer})
	}
	return out
}

func TestExtractRecords(t *testing.T) {
	x := extract(t, pipelineSource, "shared.models.Customer")

	query := recordNamed(x, "Query")
	require.NotNil(t, query)
	assert.Equal(t, `"""A user question."""`, query.Doc)
	require.Len(t, query.Fields, 4)

	text := query.Field("text")
	assert.Equal(t, registry.KindText, text.Kind)
	assert.Equal(t, "user text", text.Description)
	assert.True(t, text.Required)

	tags := query.Field("tags")
	assert.True(t, tags.IsList)
	assert.Equal(t, "[]", tags.Default)

	mode := query.Field("mode")
	assert.Equal(t, registry.KindEnum, mode.Kind)
	assert.Equal(t, []string{`"fast"`, `"slow"`}, mode.Literals)

	owner := query.Field("owner")
	assert.Equal(t, registry.KindReference, owner.Kind)
	assert.Equal(t, "Customer", owner.Reference)
	assert.False(t, owner.Required)
	assert.Equal(t, "None", owner.Default)

	var customer *registry.ExternalType
	for _, ext := range x.Externals {
		if ext.Name == "Customer" {
			customer = ext
		}
	}
	require.NotNil(t, customer)
	assert.Equal(t, "shared.models", customer.Module)
	assert.False(t, customer.Imported)
}

func TestExtractStages(t *testing.T) {
	x := extract(t, pipelineSource, "shared.models.Customer")

	summarize := stageNamed(x, "Summarize")
	require.NotNil(t, summarize)
	assert.Equal(t, model.ModelBacked, summarize.Variant)
	assert.Equal(t, "Result", summarize.InputType)
	assert.Equal(t, "Result", summarize.LLMInputType)
	assert.Equal(t, "Summarize the text", summarize.Prompt.Value)
	assert.Equal(t, `"Summarize the text"`, summarize.Prompt.Literal)
	assert.Equal(t, "You are terse.", summarize.SystemPrompt.Value)
	assert.True(t, summarize.UseXML)
	assert.Equal(t, model.HookDefault, summarize.Hook(model.SlotConsume).Mode)
	assert.Equal(t, model.HookCustom, summarize.Hook(model.SlotPrompt).Mode)
	assert.Equal(t, "return super().format_prompt(task)", summarize.Hook(model.SlotPrompt).Body)
	assert.Equal(t, "summarize", summarize.Var)

	assert.Equal(t, []model.ConfigEntry{
		{Key: "llm", Value: model.ScalarValue{Kind: model.ScalarVarRef, Literal: "llm"}},
		{Key: "temperature", Value: model.ScalarValue{Kind: model.ScalarFloat, Literal: "0.2"}},
		{Key: "retries", Value: model.ScalarValue{Kind: model.ScalarInt, Literal: "-1"}},
		{Key: "label", Value: model.ScalarValue{Kind: model.ScalarExpr, Literal: "make_label()"}},
	}, summarize.Config)
	assert.Len(t, x.Diagnostics.ByCode(errors.ErrUnrecognizedConfig), 1)

	collect := stageNamed(x, "Collect")
	require.NotNil(t, collect)
	assert.Equal(t, model.FanIn, collect.Variant)
	assert.Equal(t, "Summary", collect.InputType)
	assert.Equal(t, model.EntrySentinel, collect.JoinType)
	assert.Equal(t, []string{"tasks"}, collect.Hook(model.SlotConsume).Params[1:])
	assert.Equal(t, []string{"Report"}, x.Publishes["Collect"])

	seed := x.Probes[0]
	assert.Equal(t, "seed", seed.Name)
	assert.False(t, seed.Output)
	assert.Equal(t, "Query", seed.TypeName)
	assert.Equal(t, `{"text": "hi"}`, seed.Data)
	assert.True(t, x.Probes[1].Output)
}

func TestFanInKeepsJoinAnchor(t *testing.T) {
	source := `class Item(Task):
    value: int


class Total(Task):
    value: int


class InitialStage(TaskWorker):
    def consume_work(self, task: Item):
        self.publish_work(Item(value=task.value), input_task=task)


class Double(TaskWorker):
    def consume_work(self, task: Item):
        self.publish_work(Item(value=task.value * 2), input_task=task)


class Sum(JoinedTaskWorker):
    join_type = InitialStage

    def consume_work_joined(self, tasks: List[Item]):
        self.publish_work(Total(value=len(tasks)), input_task=tasks[0])
`
	x := extract(t, source)
	join := stageNamed(x, "Sum")
	require.NotNil(t, join)
	assert.Equal(t, "InitialStage", join.JoinType)
	assert.Equal(t, "Item", join.InputType)
	assert.Equal(t, []string{"Total"}, join.OutputTypes)

	// Without an assembly section edges come from literal publish calls
	assert.Equal(t, []NameEdge{
		{Producer: "InitialStage", Consumer: "Double"},
		{Producer: "InitialStage", Consumer: "Sum"},
		{Producer: "Double", Consumer: "Sum"},
	}, withoutLocations(x.Edges))
}

func TestUnrecognizedDeclarationsBecomeRaw(t *testing.T) {
	source := `import os


class Query(Task):
    text: str


class Helper(object):
    def run(self):
        return os.getcwd()


def build_prompt(task):
    return task.text


prompt_builder = build_prompt


class Echo(TaskWorker):
    def consume_work(self, task: Query):
        self.publish_work(Query(text=build_prompt(task)), input_task=task)
`
	x := extract(t, source)
	require.Len(t, x.Raw, 3)

	assert.Equal(t, "Helper", x.Raw[0].Name)
	assert.Equal(t, model.Prelude, x.Raw[0].Placement)
	assert.Equal(t, "Query", x.Raw[0].After)
	assert.Equal(t, "build_prompt", x.Raw[1].Name)
	assert.Equal(t, "prompt_builder = build_prompt", x.Raw[2].Text)

	require.Len(t, x.Diagnostics.ByCode(errors.ErrUnrecognizedDeclaration), 1)
	assert.Equal(t, "Helper", x.Diagnostics.ByCode(errors.ErrUnrecognizedDeclaration)[0].Node)
	assert.Len(t, x.Stages, 1)
}

func TestUnparseableStatementsAreReported(t *testing.T) {
	source := `from planai import Task, TaskWorker

limit = = 3


class Query(Task):
    text: str


class Echo(TaskWorker):
    def consume_work(self, task: Query):
        total = task.text +
        self.publish_work(Query(text=task.text), input_task=task)
`
	x := extract(t, source)

	unparseable := x.Diagnostics.ByCode(errors.ErrUnparseableStatement)
	require.Len(t, unparseable, 2)
	assert.Equal(t, 3, unparseable[0].Location.Line)
	assert.Empty(t, unparseable[0].Node)
	assert.Equal(t, 12, unparseable[1].Location.Line)
	assert.Equal(t, "Echo", unparseable[1].Node)

	require.Len(t, x.Raw, 1)
	assert.Equal(t, "limit = = 3", x.Raw[0].Text)
	echo := stageNamed(x, "Echo")
	require.NotNil(t, echo)
	assert.Contains(t, echo.Hook(model.SlotConsume).Body, "total = task.text +")
}

func TestUndeclaredTypeAbortsImport(t *testing.T) {
	source := `class Echo(TaskWorker):
    def consume_work(self, task: Missing):
        self.publish_work(task, input_task=task)
`
	_, err := ExtractSource(source, Options{})
	require.Error(t, err)

	var typeErr *errors.TypeError
	require.True(t, goerrors.As(err, &typeErr))
	assert.Equal(t, "Missing", typeErr.TypeName)
	assert.Equal(t, "Echo", typeErr.NodeName)
	assert.True(t, goerrors.Is(err, errors.ErrType))
}

func TestUnknownAnnotationDegradesToText(t *testing.T) {
	source := `from datetime import datetime


class Event(Task):
    created: datetime
    payload: Dict[str, int] = {}
`
	x := extract(t, source)
	event := recordNamed(x, "Event")
	require.NotNil(t, event)

	created := event.Field("created")
	assert.Equal(t, registry.KindText, created.Kind)
	assert.Equal(t, "datetime", created.RawAnnotation)

	payload := event.Field("payload")
	assert.Equal(t, "Dict[str, int]", payload.RawAnnotation)
	assert.Equal(t, "{}", payload.Default)

	assert.Len(t, x.Diagnostics.ByCode(errors.ErrUnknownAnnotation), 2)
	assert.False(t, x.Diagnostics.HasErrors())
}

func TestDynamicPublishNeedsManualEdge(t *testing.T) {
	source := `class Query(Task):
    text: str


class Router(TaskWorker):
    def consume_work(self, task: Query):
        for out in self.route(task):
            self.publish_work(out, input_task=task)

    def route(self, task):
        return [task]
`
	x := extract(t, source)
	router := stageNamed(x, "Router")
	require.NotNil(t, router)

	assert.Empty(t, router.OutputTypes)
	assert.Len(t, x.Diagnostics.ByCode(errors.ErrManualEdgeRequired), 1)
	assert.Contains(t, router.Members, "def route(self, task):")
	assert.Len(t, x.Diagnostics.ByCode(errors.ErrPreservedMembers), 1)
}

func TestStageWithoutInputStaysRaw(t *testing.T) {
	source := `class Loose(TaskWorker):
    def helper(self):
        pass
`
	x := extract(t, source)
	assert.Empty(t, x.Stages)
	require.Len(t, x.Raw, 1)
	assert.Equal(t, "Loose", x.Raw[0].Name)
	assert.Len(t, x.Diagnostics.ByCode(errors.ErrUnrecognizedDeclaration), 1)
}

func TestChatEntryDefaults(t *testing.T) {
	x := extract(t, "class Assistant(ChatTaskWorker):\n    pass\n")
	require.Len(t, x.Stages, 1)
	assistant := x.Stages[0]
	assert.Equal(t, model.ChatEntry, assistant.Variant)
	assert.Equal(t, model.ChatInputType, assistant.InputType)
	assert.Equal(t, []string{model.ChatOutputType}, assistant.OutputTypes)

	for _, ext := range x.Externals {
		assert.True(t, ext.Implicit, ext.Name)
	}
}

func TestParseErrorCarriesPosition(t *testing.T) {
	_, err := ExtractSource("class Query(Task):\n    text: str\n\nclass Broken(Task)\n    x: int\n", Options{})
	require.Error(t, err)

	var parseErr *errors.ParseError
	require.True(t, goerrors.As(err, &parseErr))
	assert.Equal(t, 4, parseErr.Line)
	assert.NotEmpty(t, parseErr.Message)
}

func TestUnrecognizedAssemblyIsKept(t *testing.T) {
	source := `class Query(Task):
    text: str


class Echo(TaskWorker):
    def consume_work(self, task: Query):
        self.publish_work(Query(text=task.text), input_task=task)


graph = Graph(name="Loop")
echo = Echo()
graph.add_workers(echo)
graph.set_sink(echo, Query)
`
	x := extract(t, source)
	assert.Empty(t, x.Edges)
	require.Len(t, x.Raw, 1)
	assert.Equal(t, "graph.set_sink(echo, Query)", x.Raw[0].Text)
	assert.Equal(t, model.Epilogue, x.Raw[0].Placement)
	assert.Len(t, x.Diagnostics.ByCode(errors.ErrUnrecognizedAssembly), 1)
}
