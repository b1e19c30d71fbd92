package model

import (
	goerrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conduit-lang/pipegraph/internal/compiler/errors"
)

func TestSnakeCase(t *testing.T) {
	tests := map[string]string{
		"Echo":          "echo",
		"SummarizeText": "summarize_text",
		"LLMStage":      "llm_stage",
		"Step2Worker":   "step2_worker",
		"Pass":          "pass_",
		"already_snake": "already_snake",
	}
	for in, want := range tests {
		assert.Equal(t, want, SnakeCase(in), in)
	}
}

func TestVariantBases(t *testing.T) {
	for base, info := range BaseVariants {
		assert.Equal(t, base, info.Variant.Base(info.Cached))
	}
	assert.True(t, Plain.SupportsCache())
	assert.False(t, FanIn.SupportsCache())

	v, ok := VariantForKind(KindFanIn)
	require.True(t, ok)
	assert.Equal(t, FanIn, v)
	_, ok = VariantForKind(KindRecord)
	assert.False(t, ok)
}

func TestNewStageDefaults(t *testing.T) {
	chat := NewStage("Assistant", ChatEntry, "")
	assert.Equal(t, ChatInputType, chat.InputType)
	assert.Equal(t, []string{ChatOutputType}, chat.OutputTypes)
	assert.Equal(t, "assistant", chat.Var)

	llm := NewStage("Summarize", ModelBacked, "Query")
	assert.Equal(t, HookDefault, llm.Hook(SlotConsume).Mode)
	assert.Equal(t, HookDisabled, llm.Hook(SlotPrompt).Mode)
}

func TestStageValidate(t *testing.T) {
	tests := []struct {
		name  string
		stage func() *StageNode
		code  errors.ErrorCode
	}{
		{"missing input", func() *StageNode { return NewStage("Echo", Plain, "") }, errors.ErrMissingInputType},
		{"bad name", func() *StageNode { return NewStage("not valid", Plain, "Query") }, errors.ErrInvalidNode},
		{"cached fan-in", func() *StageNode {
			s := NewStage("Join", FanIn, "Query")
			s.JoinType = EntrySentinel
			s.Cached = true
			return s
		}, errors.ErrInvalidNode},
		{"fan-in without anchor", func() *StageNode { return NewStage("Join", FanIn, "Query") }, errors.ErrInvalidNode},
		{"model-backed input not carried", func() *StageNode {
			s := NewStage("Summarize", ModelBacked, "Query")
			s.LLMInputType = "Result"
			return s
		}, errors.ErrInvalidNode},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.stage().Validate()
			require.Error(t, err)
			assert.Equal(t, tt.code, errors.ToDiagnostic(err).Code)
		})
	}

	assert.NoError(t, NewStage("Echo", Plain, "Query").Validate())
}

func TestStageOutputsAndConfig(t *testing.T) {
	s := NewStage("Echo", Plain, "Query")
	s.AddOutput("Result")
	s.AddOutput("Audit")
	s.AddOutput("Result")
	assert.Equal(t, []string{"Result", "Audit"}, s.OutputTypes)
	assert.True(t, s.Produces("Audit"))

	s.SetConfig("llm", ScalarValue{Kind: ScalarVarRef, Literal: "llm"})
	s.SetConfig("llm", ScalarValue{Kind: ScalarVarRef, Literal: "other"})
	v, ok := s.ConfigValue("llm")
	require.True(t, ok)
	assert.Equal(t, "other", v.Literal)
	assert.Len(t, s.Config, 1)

	c := s.Clone()
	c.OutputTypes[0] = "Changed"
	c.Config[0].Value.Literal = "x"
	assert.Equal(t, "Result", s.OutputTypes[0])
	assert.Equal(t, "other", s.Config[0].Value.Literal)
}

func TestHookSlots(t *testing.T) {
	assert.Equal(t, "consume_work_joined", SlotConsume.Method(FanIn))
	assert.Equal(t, "consume_work", SlotConsume.Method(Plain))

	slot, ok := SlotForMethod(ModelBacked, "format_prompt")
	require.True(t, ok)
	assert.Equal(t, SlotPrompt, slot)

	_, ok = SlotForMethod(FanIn, "consume_work")
	assert.False(t, ok)

	assert.True(t, SlotPrompt.Applies(ModelBacked))
	assert.False(t, SlotPrompt.Applies(Plain))
	assert.False(t, SlotConsume.Applies(Subgraph))
	assert.False(t, SlotPre.Applies(ChatEntry))

	parsed, ok := ParseSlot("validate")
	require.True(t, ok)
	assert.Equal(t, SlotValidate, parsed)
}

func TestEffectiveLLMInput(t *testing.T) {
	s := NewStage("Summarize", ModelBacked, "Query")
	assert.Equal(t, "Query", s.EffectiveLLMInput())

	s.LLMInputType = "Result"
	assert.Equal(t, "Result", s.EffectiveLLMInput())
}

func TestHookEqual(t *testing.T) {
	a := Hook{Mode: HookCustom, Body: "x = 1\nreturn x", Params: []string{"self", "task"}}
	b := Hook{Mode: HookCustom, Body: "x = 1\nreturn x  \n", Params: []string{"self", "t"}}
	assert.True(t, a.Equal(b))

	b.Body = "x = 2\nreturn x"
	assert.False(t, a.Equal(b))
	assert.False(t, a.Equal(Hook{Mode: HookDefault}))
	assert.True(t, Hook{Mode: HookDefault, Params: []string{"self", "a"}}.Equal(Hook{Mode: HookDefault}))
	assert.True(t, Hook{Mode: HookDefault}.Equal(Hook{Mode: HookDisabled}))
	assert.False(t, Custom("pass").Equal(Hook{Mode: HookDefault}))
}

func TestDedentAndIndent(t *testing.T) {
	body := "        if task.text:\n            self.publish_work(task)\n\n        return None\n"
	dedented := Dedent(body)
	assert.Equal(t, "if task.text:\n    self.publish_work(task)\n\nreturn None", dedented)
	assert.Equal(t, "    if task.text:\n        self.publish_work(task)\n\n    return None", Indent(dedented, "    "))
}

func TestDedentKeepsStringContent(t *testing.T) {
	body := "        text = \"\"\"\nSummarize:\n    {task.text}\n\"\"\"\n        return text"
	dedented := Dedent(body)
	assert.Equal(t, "text = \"\"\"\nSummarize:\n    {task.text}\n\"\"\"\nreturn text", dedented)

	indented := Indent(dedented, "        ")
	assert.Equal(t, body, indented)
	assert.Equal(t, dedented, Dedent(indented))
}

func TestTypeErrorsUnwrap(t *testing.T) {
	err := NewStage("Echo", Plain, "").Validate()
	assert.True(t, goerrors.Is(err, errors.ErrType))
}
