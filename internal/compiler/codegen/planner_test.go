package codegen

import (
	goerrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conduit-lang/pipegraph/internal/compiler/errors"
	"github.com/conduit-lang/pipegraph/internal/compiler/model"
	"github.com/conduit-lang/pipegraph/internal/compiler/registry"
)

func TestExportErrors(t *testing.T) {
	tests := []struct {
		name  string
		stage func() *model.StageNode
		code  errors.ErrorCode
	}{
		{
			name: "model-backed stage without prompt",
			stage: func() *model.StageNode {
				return model.NewStage("Ask", model.ModelBacked, "Item")
			},
			code: errors.ErrMissingPrompt,
		},
		{
			name: "plain stage without consume body",
			stage: func() *model.StageNode {
				return model.NewStage("Echo", model.Plain, "Item")
			},
			code: errors.ErrMissingConsume,
		},
		{
			name: "subgraph without factory",
			stage: func() *model.StageNode {
				return model.NewStage("Nested", model.Subgraph, "Item")
			},
			code: errors.ErrMissingFactory,
		},
		{
			name: "undeclared output type",
			stage: func() *model.StageNode {
				s := model.NewStage("Echo", model.Plain, "Item")
				s.Hooks[model.SlotConsume] = model.Custom("pass")
				s.AddOutput("Ghost")
				return s
			},
			code: errors.ErrDanglingTypeReference,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := model.NewGraph("Errors")
			_, err := g.AddRecord(registry.NewRecordType("Item"))
			require.NoError(t, err)
			s := tt.stage()
			_, err = g.AddStage(s)
			require.NoError(t, err)

			_, err = NewPlanner().Plan(g)
			require.Error(t, err)
			var exportErr *errors.ExportError
			require.True(t, goerrors.As(err, &exportErr))
			assert.Equal(t, tt.code, exportErr.Code)
			assert.Equal(t, s.Name, exportErr.NodeName)
			assert.True(t, goerrors.Is(err, errors.ErrExport))
		})
	}
}

func TestPromptFromConfigSatisfiesExport(t *testing.T) {
	g := model.NewGraph("Ask")
	_, err := g.AddRecord(registry.NewRecordType("Item"))
	require.NoError(t, err)
	ask := model.NewStage("Ask", model.ModelBacked, "Item")
	ask.SetConfig("prompt", model.ScalarValue{Kind: model.ScalarVarRef, Literal: "PROMPT"})
	_, err = g.AddStage(ask)
	require.NoError(t, err)

	plan, err := NewPlanner().Plan(g)
	require.NoError(t, err)
	require.NotNil(t, plan.Assembly)
	assert.Equal(t, []string{"prompt=PROMPT"}, plan.Assembly.Instances[0].Args)
}

func TestDanglingFieldReference(t *testing.T) {
	g := model.NewGraph("")
	rec := registry.NewRecordType("Order")
	require.NoError(t, rec.AddField(&registry.Field{Name: "customer", Kind: registry.KindReference, Reference: "Customer", Required: true}))
	_, err := g.AddRecord(rec)
	require.NoError(t, err)

	_, err = NewPlanner().Plan(g)
	var exportErr *errors.ExportError
	require.True(t, goerrors.As(err, &exportErr))
	assert.Equal(t, errors.ErrDanglingTypeReference, exportErr.Code)
	assert.Equal(t, "Order", exportErr.NodeName)
}

func TestExternalWithoutModule(t *testing.T) {
	g := model.NewGraph("")
	_, err := g.AddExternal(&registry.ExternalType{Name: "Customer"})
	require.NoError(t, err)

	_, err = NewPlanner().Plan(g)
	var exportErr *errors.ExportError
	require.True(t, goerrors.As(err, &exportErr))
	assert.Equal(t, errors.ErrDanglingTypeReference, exportErr.Code)
	assert.Equal(t, "Customer", exportErr.NodeName)
}

func plainStage(t *testing.T, g *model.Graph, name, in, out string) string {
	t.Helper()
	s := model.NewStage(name, model.Plain, in)
	s.AddOutput(out)
	s.Hooks[model.SlotConsume] = model.Custom("pass")
	id, err := g.AddStage(s)
	require.NoError(t, err)
	return id
}

func TestStagesAreOrderedTopologically(t *testing.T) {
	g := model.NewGraph("Order")
	_, err := g.AddRecord(registry.NewRecordType("Item"))
	require.NoError(t, err)

	last := plainStage(t, g, "Last", "Item", "Item")
	first := plainStage(t, g, "First", "Item", "Item")
	middle := plainStage(t, g, "Middle", "Item", "Item")
	plainStage(t, g, "Other", "Item", "Item")
	require.NoError(t, g.Connect(middle, last))
	require.NoError(t, g.Connect(first, middle))

	plan, err := NewPlanner().Plan(g)
	require.NoError(t, err)

	names := make([]string, 0, len(plan.Stages))
	for _, s := range plan.Stages {
		names = append(names, s.Stage.Name)
	}
	assert.Equal(t, []string{"First", "Middle", "Last", "Other"}, names)

	// Edges follow the planned declaration order
	assert.Equal(t, []AssemblyEdge{
		{Producer: "first", Consumer: "middle"},
		{Producer: "middle", Consumer: "last"},
	}, plan.Assembly.Edges)
}

func TestImportsAreNotDuplicated(t *testing.T) {
	g := model.NewGraph("")
	g.AddStatement(model.StatementImport, "from planai import *")
	g.AddStatement(model.StatementImport, "from typing import List as L")
	g.AddStatement(model.StatementImport, "from __future__ import annotations")
	rec := registry.NewRecordType("Batch")
	require.NoError(t, rec.AddField(&registry.Field{Name: "items", Kind: registry.KindText, IsList: true, Required: true}))
	_, err := g.AddRecord(rec)
	require.NoError(t, err)

	plan, err := NewPlanner().Plan(g)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"from __future__ import annotations",
		"from planai import *",
		"from typing import List as L",
		"from typing import List",
	}, plan.Imports)
}

func TestGeneratedImportsFollowOwnImports(t *testing.T) {
	g := model.NewGraph("")
	g.AddStatement(model.StatementImport, "from typing import Optional")
	g.AddStatement(model.StatementImport, "import json")
	rec := registry.NewRecordType("Batch")
	require.NoError(t, rec.AddField(&registry.Field{Name: "items", Kind: registry.KindText, IsList: true, Required: true}))
	_, err := g.AddRecord(rec)
	require.NoError(t, err)

	plan, err := NewPlanner().Plan(g)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"from typing import Optional, List",
		"import json",
		"from planai import Task",
	}, plan.Imports)
}

func TestTextLiterals(t *testing.T) {
	tests := []struct {
		name string
		text *model.Text
		want string
	}{
		{"source literal kept", &model.Text{Value: "hi", Literal: "'hi'"}, "'hi'"},
		{"stale literal replaced", &model.Text{Value: "bye", Literal: "'hi'"}, `"bye"`},
		{"escapes", model.NewText("a\tb \"c\" \\"), `"a\tb \"c\" \\"`},
		{"multi-line", model.NewText("one\ntwo"), "\"\"\"one\ntwo\"\"\""},
		{"trailing quote", model.NewText("say\n\"hi\""), "\"\"\"say\n\"hi\\\"\"\"\""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := textLiteral(tt.text)
			assert.Equal(t, tt.want, got)
			value, ok := stringValue(got)
			require.True(t, ok)
			assert.Equal(t, tt.text.Value, value)
		})
	}
}
