// Package model defines the IR graph that source programs are imported
// into and exported from: typed nodes, typed edges, module statements and
// the type registry they share.
package model

import (
	"fmt"
	"strings"

	"github.com/conduit-lang/pipegraph/internal/compiler/errors"
	"github.com/conduit-lang/pipegraph/internal/compiler/lexer"
	"github.com/conduit-lang/pipegraph/internal/compiler/registry"
)

// NodeKind discriminates node variants in snapshots and ids
type NodeKind string

const (
	KindRecord     NodeKind = "record"
	KindExternal   NodeKind = "external"
	KindPlain      NodeKind = "plain"
	KindModel      NodeKind = "model"
	KindFanIn      NodeKind = "fanin"
	KindSubgraph   NodeKind = "subgraph"
	KindChatEntry  NodeKind = "chat"
	KindDataInput  NodeKind = "data_input"
	KindDataOutput NodeKind = "data_output"
	KindRaw        NodeKind = "raw"
)

// Node is implemented by every graph element with an id
type Node interface {
	NodeID() string
	NodeName() string
	Kind() NodeKind
}

// Variant is the kind of a stage
type Variant int

const (
	// Plain stages run user code in consume_work
	Plain Variant = iota
	// ModelBacked stages call a language model with a prompt
	ModelBacked
	// FanIn stages join every task produced under an anchor stage
	FanIn
	// Subgraph stages delegate to a nested graph built by a factory
	Subgraph
	// ChatEntry stages receive chat tasks from the framework
	ChatEntry
)

var variantKinds = map[Variant]NodeKind{
	Plain:       KindPlain,
	ModelBacked: KindModel,
	FanIn:       KindFanIn,
	Subgraph:    KindSubgraph,
	ChatEntry:   KindChatEntry,
}

// String returns the variant's kind name
func (v Variant) String() string {
	return string(v.Kind())
}

// Kind returns the node kind of stages of this variant
func (v Variant) Kind() NodeKind {
	if k, ok := variantKinds[v]; ok {
		return k
	}
	return NodeKind(fmt.Sprintf("variant(%d)", int(v)))
}

// VariantForKind returns the variant for a stage node kind
func VariantForKind(kind NodeKind) (Variant, bool) {
	for v, k := range variantKinds {
		if k == kind {
			return v, true
		}
	}
	return 0, false
}

// Base returns the framework base class for the variant
func (v Variant) Base(cached bool) string {
	switch v {
	case ModelBacked:
		if cached {
			return "CachedLLMTaskWorker"
		}
		return "LLMTaskWorker"
	case FanIn:
		return "JoinedTaskWorker"
	case Subgraph:
		return "SubGraphWorker"
	case ChatEntry:
		return "ChatTaskWorker"
	default:
		if cached {
			return "CachedTaskWorker"
		}
		return "TaskWorker"
	}
}

// SupportsCache reports whether the variant has a cached base
func (v Variant) SupportsCache() bool {
	return v == Plain || v == ModelBacked
}

// Recognized base identifiers
const (
	RecordBase      = "Task"
	EntrySentinel   = "InitialTaskWorker"
	ChatInputType   = "ChatTask"
	ChatOutputType  = "ChatMessage"
	DataInputCtor   = "DataInput"
	DataOutputCtor  = "DataOutput"
	DefaultGraphVar = "graph"
)

// BaseVariants maps stage base identifiers to their variant and cached flag
var BaseVariants = map[string]struct {
	Variant Variant
	Cached  bool
}{
	"TaskWorker":          {Plain, false},
	"CachedTaskWorker":    {Plain, true},
	"LLMTaskWorker":       {ModelBacked, false},
	"CachedLLMTaskWorker": {ModelBacked, true},
	"JoinedTaskWorker":    {FanIn, false},
	"SubGraphWorker":      {Subgraph, false},
	"ChatTaskWorker":      {ChatEntry, false},
}

// Text is a string constant with the literal it was written as. Literal is
// rendered as-is when set; editors clear it when they change Value.
type Text struct {
	Value   string `json:"value"`
	Literal string `json:"literal,omitempty"`
}

// NewText creates a text with no source literal
func NewText(value string) *Text {
	return &Text{Value: value}
}

// ScalarKind is the kind of a configuration value
type ScalarKind string

const (
	ScalarString ScalarKind = "string"
	ScalarInt    ScalarKind = "int"
	ScalarFloat  ScalarKind = "float"
	ScalarBool   ScalarKind = "bool"
	ScalarNone   ScalarKind = "none"
	ScalarVarRef ScalarKind = "var"
	// ScalarExpr is any other expression, kept verbatim
	ScalarExpr ScalarKind = "expr"
)

// ScalarValue is a configuration value as written in source
type ScalarValue struct {
	Kind    ScalarKind `json:"kind"`
	Literal string     `json:"literal"`
}

// ConfigEntry is one constructor keyword argument. An empty Key marks a
// positional argument.
type ConfigEntry struct {
	Key   string      `json:"key,omitempty"`
	Value ScalarValue `json:"value"`
}

// StageNode is a stage of the pipeline. Exactly one input type; the output
// set keeps first-seen order.
type StageNode struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Variant     Variant  `json:"-"`
	Cached      bool     `json:"cached,omitempty"`
	InputType   string   `json:"input_type"`
	OutputTypes []string `json:"output_types"`

	Hooks [SlotCount]Hook `json:"-"`

	// Var is the assembly variable bound to the stage instance
	Var    string        `json:"var"`
	Config []ConfigEntry `json:"config,omitempty"`

	Doc *Text `json:"doc,omitempty"`

	// Model-backed constants
	LLMInputType  string `json:"llm_input_type,omitempty"`
	LLMOutputType string `json:"llm_output_type,omitempty"`
	Prompt        *Text  `json:"prompt,omitempty"`
	SystemPrompt  *Text  `json:"system_prompt,omitempty"`
	UseXML        bool   `json:"use_xml,omitempty"`
	DebugMode     bool   `json:"debug_mode,omitempty"`

	// JoinType is the fan-in anchor exactly as written
	JoinType string `json:"join_type,omitempty"`

	// Subgraph constants, kept as expression text
	Factory     string `json:"factory,omitempty"`
	FactoryArgs string `json:"factory_args,omitempty"`

	// Members holds unrecognized class members, appended verbatim on export
	Members string `json:"members,omitempty"`
}

// NodeID implements Node
func (s *StageNode) NodeID() string { return s.ID }

// NodeName implements Node
func (s *StageNode) NodeName() string { return s.Name }

// Kind implements Node
func (s *StageNode) Kind() NodeKind { return s.Variant.Kind() }

// NewStage creates a stage with variant defaults applied: every hook
// disabled, the chat-entry input and output types, and a snake_case
// instance variable.
func NewStage(name string, variant Variant, inputType string) *StageNode {
	s := &StageNode{
		Name:        name,
		Variant:     variant,
		InputType:   inputType,
		OutputTypes: make([]string, 0),
		Var:         SnakeCase(name),
	}
	if variant == ChatEntry {
		if s.InputType == "" {
			s.InputType = ChatInputType
		}
		s.OutputTypes = []string{ChatOutputType}
	}
	if variant == ModelBacked {
		s.Hooks[SlotConsume] = Hook{Mode: HookDefault}
	}
	return s
}

// Hook returns the state of a hook slot
func (s *StageNode) Hook(slot HookSlot) Hook {
	return s.Hooks[slot]
}

// Produces reports whether typeName is in the output set
func (s *StageNode) Produces(typeName string) bool {
	for _, t := range s.OutputTypes {
		if t == typeName {
			return true
		}
	}
	return false
}

// AddOutput adds a type to the output set, keeping first-seen order
func (s *StageNode) AddOutput(typeName string) {
	if !s.Produces(typeName) {
		s.OutputTypes = append(s.OutputTypes, typeName)
	}
}

// ConfigValue returns the configuration value for key
func (s *StageNode) ConfigValue(key string) (ScalarValue, bool) {
	for _, c := range s.Config {
		if c.Key == key {
			return c.Value, true
		}
	}
	return ScalarValue{}, false
}

// SetConfig sets or replaces a configuration value
func (s *StageNode) SetConfig(key string, value ScalarValue) {
	for i, c := range s.Config {
		if c.Key == key && key != "" {
			s.Config[i].Value = value
			return
		}
	}
	s.Config = append(s.Config, ConfigEntry{Key: key, Value: value})
}

// TypeRefs returns every type name the stage references
func (s *StageNode) TypeRefs() []string {
	refs := make([]string, 0, len(s.OutputTypes)+3)
	if s.InputType != "" {
		refs = append(refs, s.InputType)
	}
	refs = append(refs, s.OutputTypes...)
	if s.LLMInputType != "" {
		refs = append(refs, s.LLMInputType)
	}
	if s.LLMOutputType != "" {
		refs = append(refs, s.LLMOutputType)
	}
	return refs
}

// EffectiveLLMInput returns the type handed to the model. An unset
// llm_input_type falls back to the input type.
func (s *StageNode) EffectiveLLMInput() string {
	if s.LLMInputType != "" {
		return s.LLMInputType
	}
	return s.InputType
}

// HasPrompt reports whether a model-backed stage has prompt text, either
// as a constant, a constructor argument or a custom format_prompt hook
func (s *StageNode) HasPrompt() bool {
	if s.Prompt != nil || s.Hooks[SlotPrompt].Mode == HookCustom {
		return true
	}
	_, ok := s.ConfigValue("prompt")
	return ok
}

// HasFactory reports whether a subgraph stage names its graph factory
func (s *StageNode) HasFactory() bool {
	if s.Factory != "" {
		return true
	}
	_, ok := s.ConfigValue("factory")
	return ok
}

// Validate checks the attributes every stage of the variant must carry
func (s *StageNode) Validate() error {
	if !lexer.IsValidIdentifier(s.Name) {
		return s.invalid(fmt.Sprintf("%q is not a valid stage name", s.Name))
	}
	if s.InputType == "" {
		return &errors.TypeError{
			Code:     errors.ErrMissingInputType,
			Message:  fmt.Sprintf("stage %s has no input type", s.Name),
			NodeName: s.Name,
		}
	}
	if s.Var != "" && !lexer.IsValidIdentifier(s.Var) {
		return s.invalid(fmt.Sprintf("%q is not a valid instance variable", s.Var))
	}
	if s.Cached && !s.Variant.SupportsCache() {
		return s.invalid(fmt.Sprintf("%s stages cannot be cached", s.Variant))
	}
	if s.Variant == FanIn && s.JoinType == "" {
		return s.invalid("fan-in stage needs a join anchor")
	}
	if s.Variant == ModelBacked && !s.Hooks[SlotConsume].Enabled() && s.LLMInputType != "" && s.LLMInputType != s.InputType {
		return s.invalid(fmt.Sprintf("llm_input_type %s differs from input type %s, so consume_work must be overridden", s.LLMInputType, s.InputType))
	}
	return nil
}

func (s *StageNode) invalid(message string) error {
	return &errors.GraphError{Code: errors.ErrInvalidNode, Message: message, Nodes: []string{s.Name}}
}

// Clone returns a deep copy of the stage
func (s *StageNode) Clone() *StageNode {
	c := *s
	c.OutputTypes = append([]string(nil), s.OutputTypes...)
	c.Config = append([]ConfigEntry(nil), s.Config...)
	for i := range c.Hooks {
		c.Hooks[i].Params = append([]string(nil), s.Hooks[i].Params...)
	}
	c.Doc = cloneText(s.Doc)
	c.Prompt = cloneText(s.Prompt)
	c.SystemPrompt = cloneText(s.SystemPrompt)
	return &c
}

func cloneText(t *Text) *Text {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}

// ProbeNode is a data-input or data-output probe attached to the graph
type ProbeNode struct {
	ID       string `json:"id"`
	Name     string `json:"name"` // Assembly variable
	Output   bool   `json:"output"`
	TypeName string `json:"type"`
	// Data is the literal payload of an input probe, as written
	Data string `json:"data,omitempty"`
}

// NodeID implements Node
func (p *ProbeNode) NodeID() string { return p.ID }

// NodeName implements Node
func (p *ProbeNode) NodeName() string { return p.Name }

// Kind implements Node
func (p *ProbeNode) Kind() NodeKind {
	if p.Output {
		return KindDataOutput
	}
	return KindDataInput
}

// Constructor returns the probe's constructor identifier
func (p *ProbeNode) Constructor() string {
	if p.Output {
		return DataOutputCtor
	}
	return DataInputCtor
}

// Placement says where a raw node is emitted relative to the assembly
type Placement string

const (
	// Header nodes precede every import, e.g. a module docstring
	Header   Placement = "header"
	Prelude  Placement = "prelude"
	Epilogue Placement = "epilogue"
)

// RawNode is top-level text the extractor did not recognize. Prelude nodes
// are emitted right after the declaration named by After, or ahead of all
// declarations when After is empty.
type RawNode struct {
	ID        string    `json:"id"`
	Name      string    `json:"name,omitempty"` // Declared name, if any
	Text      string    `json:"text"`
	Placement Placement `json:"placement"`
	After     string    `json:"after,omitempty"`
}

// NodeID implements Node
func (r *RawNode) NodeID() string { return r.ID }

// NodeName implements Node
func (r *RawNode) NodeName() string { return r.Name }

// Kind implements Node
func (r *RawNode) Kind() NodeKind { return KindRaw }

// RecordNode exposes a registry record as a graph node
type RecordNode struct {
	ID     string
	Record *registry.RecordType
}

// NodeID implements Node
func (r *RecordNode) NodeID() string { return r.ID }

// NodeName implements Node
func (r *RecordNode) NodeName() string { return r.Record.Name }

// Kind implements Node
func (r *RecordNode) Kind() NodeKind { return KindRecord }

// ExternalNode exposes an external type reference as a graph node
type ExternalNode struct {
	ID   string
	Type *registry.ExternalType
}

// NodeID implements Node
func (e *ExternalNode) NodeID() string { return e.ID }

// NodeName implements Node
func (e *ExternalNode) NodeName() string { return e.Type.Name }

// Kind implements Node
func (e *ExternalNode) Kind() NodeKind { return KindExternal }

// StatementKind separates import statements from configuration objects
type StatementKind string

const (
	StatementImport StatementKind = "import"
	StatementConfig StatementKind = "config"
)

// Statement is module-level text hoisted above all declarations
type Statement struct {
	ID   string        `json:"id"`
	Kind StatementKind `json:"kind"`
	Text string        `json:"text"`
}

// Edge connects a producer to a consumer by node id
type Edge struct {
	Producer string `json:"producer"`
	Consumer string `json:"consumer"`
}

// SnakeCase converts a class name to a variable name: SummarizeText ->
// summarize_text, LLMStage -> llm_stage.
func SnakeCase(name string) string {
	var b strings.Builder
	runes := []rune(name)
	for i, r := range runes {
		upper := r >= 'A' && r <= 'Z'
		if upper && i > 0 {
			prevLower := runes[i-1] >= 'a' && runes[i-1] <= 'z' || runes[i-1] >= '0' && runes[i-1] <= '9'
			nextLower := i+1 < len(runes) && runes[i+1] >= 'a' && runes[i+1] <= 'z'
			if prevLower || (nextLower && runes[i-1] != '_') {
				b.WriteByte('_')
			}
		}
		if upper {
			r += 'a' - 'A'
		}
		b.WriteRune(r)
	}
	out := b.String()
	if lexer.IsKeyword(out) {
		out += "_"
	}
	return out
}
