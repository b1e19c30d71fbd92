package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conduit-lang/pipegraph/internal/compiler/ast"
)

// Helper function to parse source and fail on any error
func parseSource(t *testing.T, source string) *ast.Module {
	t.Helper()

	module, errors := ParseSource(source)
	require.Empty(t, errors, "unexpected parse errors")
	return module
}

func TestParseImports(t *testing.T) {
	source := `import os
import numpy as np, json
from typing import List, Optional as Opt
from .models import (
    Query,
    Answer,
)
from planai import *
`
	module := parseSource(t, source)
	require.Len(t, module.Statements, 5)

	plain := module.Statements[0].(*ast.ImportStmt)
	assert.False(t, plain.From)
	assert.Equal(t, "os", plain.Names[0].Name)

	aliased := module.Statements[1].(*ast.ImportStmt)
	require.Len(t, aliased.Names, 2)
	assert.Equal(t, "np", aliased.Names[0].Bound())
	assert.Equal(t, "json", aliased.Names[1].Bound())

	from := module.Statements[2].(*ast.ImportStmt)
	assert.True(t, from.From)
	assert.Equal(t, "typing", from.Module)
	assert.Equal(t, "Opt", from.Names[1].Bound())

	relative := module.Statements[3].(*ast.ImportStmt)
	assert.Equal(t, ".models", relative.Module)
	assert.Len(t, relative.Names, 2)
	assert.Equal(t, "from .models import (\n    Query,\n    Answer,\n)", module.Text(relative))

	star := module.Statements[4].(*ast.ImportStmt)
	assert.Equal(t, "*", star.Names[0].Name)
}

func TestParseRecordClass(t *testing.T) {
	source := `class Query(Task):
    """A user question."""
    text: str = Field(description="The question")
    tags: List[str] = []
    owner: Optional[Customer] = None
    mode: Literal["fast", "slow"]
`
	module := parseSource(t, source)
	require.Len(t, module.Statements, 1)

	class, ok := module.Statements[0].(*ast.ClassDef)
	require.True(t, ok)
	assert.Equal(t, "Query", class.Name)
	require.Len(t, class.Bases, 1)
	assert.Equal(t, "Task", ast.DottedName(class.Bases[0]))
	require.NotNil(t, class.Docstring)
	assert.Equal(t, "A user question.", class.Docstring.Value)
	require.Len(t, class.Body, 4)

	text := class.Body[0].(*ast.AnnAssignStmt)
	assert.Equal(t, "text", ast.DottedName(text.Target))
	assert.Equal(t, "str", module.Text(text.Annotation))
	call := text.Value.(*ast.Call)
	assert.Equal(t, "Field", ast.DottedName(call.Func))
	require.NotNil(t, call.Keyword("description"))
	assert.Equal(t, "The question", call.Keyword("description").Value.(*ast.StringLit).Value)

	tags := class.Body[1].(*ast.AnnAssignStmt)
	sub := tags.Annotation.(*ast.Subscript)
	assert.Equal(t, "List", ast.DottedName(sub.Value))
	assert.IsType(t, &ast.ListExpr{}, tags.Value)

	owner := class.Body[2].(*ast.AnnAssignStmt)
	assert.Equal(t, "Optional[Customer]", module.Text(owner.Annotation))
	assert.IsType(t, &ast.NoneLit{}, owner.Value)

	mode := class.Body[3].(*ast.AnnAssignStmt)
	assert.Nil(t, mode.Value)
	literal := mode.Annotation.(*ast.Subscript)
	values := literal.Index.(*ast.TupleExpr)
	assert.Len(t, values.Elements, 2)
}

func TestParseStageMethods(t *testing.T) {
	source := `class Echo(TaskWorker):
    output_types: List[Type[Task]] = [Answer]

    def consume_work(self, task: Query):
        # forward the text
        if task.text:
            self.publish_work(Answer(text=task.text), input_task=task)
        else:
            print("empty")

    async def notify_status(self, task, message: str = "") -> None: pass
`
	module := parseSource(t, source)
	class := module.Statements[0].(*ast.ClassDef)
	require.Len(t, class.Body, 3)

	consume := class.Body[1].(*ast.FunctionDef)
	assert.Equal(t, "consume_work", consume.Name)
	assert.Equal(t, []string{"self", "task"}, consume.ParamNames())
	assert.Equal(t, "Query", module.Text(consume.Params[1].Annotation))

	body := module.Segment(consume.BodySpan.Start, consume.BodySpan.End)
	assert.Equal(t, `        # forward the text
        if task.text:
            self.publish_work(Answer(text=task.text), input_task=task)
        else:
            print("empty")`, body)

	calls := ast.Calls(consume.Body)
	require.NotEmpty(t, calls)
	assert.Equal(t, "self.publish_work", ast.DottedName(calls[0].Func))
	assert.Equal(t, "Answer", ast.DottedName(calls[0].Args[0].(*ast.Call).Func))

	status := class.Body[2].(*ast.FunctionDef)
	assert.True(t, status.Async)
	assert.Equal(t, []string{"self", "task", "message"}, status.ParamNames())
	assert.NotNil(t, status.Returns)
	assert.Equal(t, "pass", module.Segment(status.BodySpan.Start, status.BodySpan.End))
}

func TestParseAssemblySection(t *testing.T) {
	source := `graph = Graph(name="Pipeline")
echo = Echo(llm=llm, retries=-1, ratio=0.5)
graph.add_workers(echo, summarize)
graph.set_dependency(echo, summarize).next(collect)
graph.set_entry(echo)
`
	module := parseSource(t, source)
	require.Len(t, module.Statements, 5)

	assign := module.Statements[1].(*ast.AssignStmt)
	assert.Equal(t, "echo", ast.DottedName(assign.Targets[0]))
	ctor := assign.Value.(*ast.Call)
	require.Len(t, ctor.Keywords, 3)
	assert.Equal(t, "-1", module.Text(ctor.Keywords[1].Value))

	chain := module.Statements[3].(*ast.ExprStmt).Expr.(*ast.Call)
	next := chain.Func.(*ast.Attribute)
	assert.Equal(t, "next", next.Attr)
	inner := next.Value.(*ast.Call)
	assert.Equal(t, "graph.set_dependency", ast.DottedName(inner.Func))
}

func TestParseExpressions(t *testing.T) {
	tests := []struct {
		name   string
		source string
		check  func(t *testing.T, e ast.ExprNode)
	}{
		{"union annotation", "x: int | None", nil},
		{"conditional", "y = a if b else c", func(t *testing.T, e ast.ExprNode) {
			assert.IsType(t, &ast.IfExpr{}, e)
		}},
		{"comprehension", "z = [t.name for t in tasks if t.ok]", func(t *testing.T, e ast.ExprNode) {
			comp := e.(*ast.ComprehensionExpr)
			assert.Equal(t, "list", comp.Kind)
			assert.Len(t, comp.Generators, 1)
		}},
		{"dict comprehension", "d = {k: v for k, v in items}", func(t *testing.T, e ast.ExprNode) {
			assert.Equal(t, "dict", e.(*ast.ComprehensionExpr).Kind)
		}},
		{"set", "s = {1, 2}", func(t *testing.T, e ast.ExprNode) {
			assert.IsType(t, &ast.SetExpr{}, e)
		}},
		{"lambda", "f = lambda x, y=1: x + y", func(t *testing.T, e ast.ExprNode) {
			assert.Len(t, e.(*ast.LambdaExpr).Params, 2)
		}},
		{"slice", "w = items[1:-1]", func(t *testing.T, e ast.ExprNode) {
			assert.IsType(t, &ast.SliceExpr{}, e.(*ast.Subscript).Index)
		}},
		{"comparison", "b = x not in y and z is not None", func(t *testing.T, e ast.ExprNode) {
			assert.Equal(t, "and", e.(*ast.BinaryExpr).Operator)
		}},
		{"implicit concat", `p = "a" "b"`, func(t *testing.T, e ast.ExprNode) {
			assert.Equal(t, "ab", e.(*ast.StringLit).Value)
		}},
		{"generator argument", "n = sum(x for x in xs)", func(t *testing.T, e ast.ExprNode) {
			assert.IsType(t, &ast.ComprehensionExpr{}, e.(*ast.Call).Args[0])
		}},
		{"power and unary", "v = -2 ** 3", func(t *testing.T, e ast.ExprNode) {
			assert.Equal(t, "-", e.(*ast.UnaryExpr).Operator)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			module := parseSource(t, tt.source)
			require.Len(t, module.Statements, 1)
			if tt.check == nil {
				return
			}
			assign := module.Statements[0].(*ast.AssignStmt)
			tt.check(t, assign.Value)
		})
	}
}

func TestParseRawStatements(t *testing.T) {
	source := `counter += 1
del cache[key]
match command:
    case "go":
        run()
x = 1
`
	module := parseSource(t, source)
	require.Len(t, module.Statements, 4)

	assert.IsType(t, &ast.RawStmt{}, module.Statements[0])
	assert.Equal(t, "counter += 1", module.Text(module.Statements[0]))
	assert.IsType(t, &ast.RawStmt{}, module.Statements[1])

	match := module.Statements[2]
	assert.IsType(t, &ast.RawStmt{}, match)
	assert.Equal(t, "match command:\n    case \"go\":\n        run()", module.Text(match))

	assert.IsType(t, &ast.AssignStmt{}, module.Statements[3])
}

func TestCheckBlockRejectsMalformedRawStatements(t *testing.T) {
	valid := []string{
		"counter += 1",
		"counter -= -1",
		"del cache[key]",
		"first, *rest = items",
		"print(*args, sep='', **kwargs)",
		"raise ValueError(text) from err",
		"match command:\n    case \"go\":\n        run()",
	}
	for _, text := range valid {
		assert.Nil(t, CheckBlock(text), text)
	}

	tests := []struct {
		text    string
		message string
		line    int
		column  int
	}{
		{"x = = 1", "Expected an expression after '='", 1, 3},
		{"x = 1 +", "Expected an operand after '+'", 1, 7},
		{"counter +=", "Expected an expression after '+='", 1, 9},
		{"del cache[key] +", "Expected an operand after '+'", 1, 16},
		{"if ok:\n    send(to=)", "Expected an expression after '='", 2, 12},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			perr := CheckBlock(tt.text)
			require.NotNil(t, perr)
			assert.Equal(t, tt.message, perr.Message)
			assert.Equal(t, tt.line, perr.Location.Line)
			assert.Equal(t, tt.column, perr.Location.Column)
		})
	}

	module := parseSource(t, "x = = 1\n")
	raw, ok := module.Statements[0].(*ast.RawStmt)
	require.True(t, ok)
	assert.Equal(t, "Expected an expression after '='", raw.Problem)
	assert.Same(t, raw, FirstInvalidRaw(module.Statements))
}

func TestParseCompoundStatement(t *testing.T) {
	source := `try:
    import fast_json as json
except ImportError:
    import json
finally:
    pass
`
	module := parseSource(t, source)
	require.Len(t, module.Statements, 1)

	compound := module.Statements[0].(*ast.CompoundStmt)
	require.Len(t, compound.Clauses, 3)
	assert.Equal(t, "try", compound.Clauses[0].Keyword)
	assert.Equal(t, "except", compound.Clauses[1].Keyword)
	assert.Equal(t, "finally", compound.Clauses[2].Keyword)
	assert.Equal(t, source[:len(source)-1], module.Text(compound))
}

func TestParseDecorated(t *testing.T) {
	source := `class Stage(TaskWorker):
    @property
    def name(self):
        return "stage"
`
	module := parseSource(t, source)
	class := module.Statements[0].(*ast.ClassDef)
	require.Len(t, class.Body, 1)

	fn := class.Body[0].(*ast.FunctionDef)
	require.Len(t, fn.Decorators, 1)
	assert.Equal(t, "    @property\n    def name(self):\n        return \"stage\"",
		module.Segment(fn.Start, fn.End))
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name   string
		source string
		line   int
	}{
		{"missing colon", "class A(Task)\n    x: int\n", 1},
		{"missing block", "class A(Task):\nx = 1\n", 2},
		{"bad indent", "x = 1\n    y = 2\n", 2},
		{"unterminated string", "x = 'abc\n", 1},
		{"bad def", "def (self):\n    pass\n", 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, errors := ParseSource(tt.source)
			require.NotEmpty(t, errors)
			assert.Equal(t, tt.line, errors[0].Location.Line)
			assert.Contains(t, errors[0].Error(), "Parse error")
		})
	}
}
