// Package equivalence decides whether two pipeline graphs describe the same
// topology, types and configuration. Formatting, declaration order and
// node ids are not part of the comparison.
package equivalence

import (
	"fmt"
	"sort"
	"strings"

	"github.com/conduit-lang/pipegraph/internal/compiler/builder"
	"github.com/conduit-lang/pipegraph/internal/compiler/extractor"
	"github.com/conduit-lang/pipegraph/internal/compiler/model"
	"github.com/conduit-lang/pipegraph/internal/compiler/registry"
)

// Difference is one mismatch between two graphs
type Difference struct {
	// Kind is "record", "stage" or "edge"
	Kind    string `json:"kind"`
	Name    string `json:"name"`
	Message string `json:"message"`
}

func (d Difference) String() string {
	return fmt.Sprintf("%s %s: %s", d.Kind, d.Name, d.Message)
}

// Result is the outcome of a comparison
type Result struct {
	Equivalent  bool         `json:"equivalent"`
	Differences []Difference `json:"differences"`
}

type comparison struct {
	diffs []Difference
}

func (c *comparison) add(kind, name, format string, args ...interface{}) {
	c.diffs = append(c.diffs, Difference{Kind: kind, Name: name, Message: fmt.Sprintf(format, args...)})
}

// Compare reports every difference between a and b. Differences are
// ordered by kind, then name.
func Compare(a, b *model.Graph) Result {
	c := &comparison{diffs: make([]Difference, 0)}
	c.records(a.Registry, b.Registry)
	c.stages(a, b)
	c.edges(a, b)
	return Result{Equivalent: len(c.diffs) == 0, Differences: c.diffs}
}

// CompareSource imports both programs and compares the resulting graphs.
// Import failures are returned as errors.
func CompareSource(a, b string, opts extractor.Options) (Result, error) {
	ga, err := importSource(a, opts)
	if err != nil {
		return Result{}, fmt.Errorf("first program: %w", err)
	}
	gb, err := importSource(b, opts)
	if err != nil {
		return Result{}, fmt.Errorf("second program: %w", err)
	}
	return Compare(ga, gb), nil
}

func importSource(source string, opts extractor.Options) (*model.Graph, error) {
	x, err := extractor.ExtractSource(source, opts)
	if err != nil {
		return nil, err
	}
	return builder.Build(x)
}

func (c *comparison) records(a, b *registry.Registry) {
	for _, name := range unionNames(recordNames(a), recordNames(b)) {
		ra, rb := a.Record(name), b.Record(name)
		switch {
		case ra == nil:
			c.add("record", name, "only in second graph")
		case rb == nil:
			c.add("record", name, "only in first graph")
		default:
			c.fields(ra, rb)
		}
	}
}

func recordNames(r *registry.Registry) []string {
	names := make([]string, 0, len(r.Records()))
	for _, rec := range r.Records() {
		names = append(names, rec.Name)
	}
	return names
}

func (c *comparison) fields(a, b *registry.RecordType) {
	names := func(r *registry.RecordType) []string {
		out := make([]string, 0, len(r.Fields))
		for _, f := range r.Fields {
			out = append(out, f.Name)
		}
		return out
	}
	for _, name := range unionNames(names(a), names(b)) {
		fa, fb := a.Field(name), b.Field(name)
		switch {
		case fa == nil:
			c.add("record", a.Name, "field %s only in second graph", name)
		case fb == nil:
			c.add("record", a.Name, "field %s only in first graph", name)
		default:
			if sa, sb := fieldShape(fa), fieldShape(fb); sa != sb {
				c.add("record", a.Name, "field %s differs: %s vs %s", name, sa, sb)
			}
		}
	}
}

// fieldShape summarizes the compared attributes of a field. Enum literals
// compare as a set.
func fieldShape(f *registry.Field) string {
	literals := make([]string, 0, len(f.Literals))
	for _, lit := range f.Literals {
		literals = append(literals, unquote(lit))
	}
	sort.Strings(literals)
	return fmt.Sprintf("%s ref=%s list=%t required=%t literals=[%s]",
		f.Kind, f.Reference, f.IsList, f.Required, strings.Join(literals, ","))
}

// unquote drops the quote style of a simple string literal
func unquote(lit string) string {
	if len(lit) >= 2 && (lit[0] == '"' || lit[0] == '\'') && lit[len(lit)-1] == lit[0] {
		return lit[1 : len(lit)-1]
	}
	return lit
}

func (c *comparison) stages(a, b *model.Graph) {
	names := func(g *model.Graph) []string {
		out := make([]string, 0, len(g.Stages()))
		for _, s := range g.Stages() {
			out = append(out, s.Name)
		}
		return out
	}
	for _, name := range unionNames(names(a), names(b)) {
		sa, sb := a.StageByName(name), b.StageByName(name)
		switch {
		case sa == nil:
			c.add("stage", name, "only in second graph")
		case sb == nil:
			c.add("stage", name, "only in first graph")
		default:
			c.stage(sa, sb)
		}
	}
}

func (c *comparison) stage(a, b *model.StageNode) {
	if a.Variant != b.Variant {
		c.add("stage", a.Name, "variant %s vs %s", a.Variant, b.Variant)
		return
	}
	if a.Cached != b.Cached {
		c.add("stage", a.Name, "cached %t vs %t", a.Cached, b.Cached)
	}
	if a.InputType != b.InputType {
		c.add("stage", a.Name, "input type %s vs %s", a.InputType, b.InputType)
	}
	if oa, ob := sortedCopy(a.OutputTypes), sortedCopy(b.OutputTypes); strings.Join(oa, ",") != strings.Join(ob, ",") {
		c.add("stage", a.Name, "output types %v vs %v", oa, ob)
	}
	if a.JoinType != b.JoinType {
		c.add("stage", a.Name, "join anchor %s vs %s", a.JoinType, b.JoinType)
	}
	for _, slot := range model.AllSlots {
		ha, hb := a.Hooks[slot], b.Hooks[slot]
		if ha.Equal(hb) {
			continue
		}
		if ha.Enabled() != hb.Enabled() {
			c.add("stage", a.Name, "%s hook %s vs %s", slot, overrideState(ha), overrideState(hb))
		} else {
			c.add("stage", a.Name, "%s hook body differs", slot)
		}
	}
	if ca, cb := constants(a), constants(b); !sameMap(ca, cb) {
		c.add("stage", a.Name, "constants %v vs %v", ca, cb)
	}
	if ca, cb := configMap(a), configMap(b); !sameMap(ca, cb) {
		c.add("stage", a.Name, "configuration %v vs %v", ca, cb)
	}
}

func overrideState(h model.Hook) string {
	if h.Enabled() {
		return "overridden"
	}
	return "inherited"
}

// constants collects the class-level settings of a stage. Text compares by
// value, not by how it was quoted.
func constants(s *model.StageNode) map[string]string {
	out := make(map[string]string)
	set := func(key, value string) {
		if value != "" {
			out[key] = value
		}
	}
	text := func(t *model.Text) string {
		if t == nil {
			return ""
		}
		return t.Value
	}
	if s.Variant == model.ModelBacked {
		set("llm_input_type", s.EffectiveLLMInput())
	}
	set("llm_output_type", s.LLMOutputType)
	set("prompt", text(s.Prompt))
	set("system_prompt", text(s.SystemPrompt))
	set("factory", s.Factory)
	set("factory_args", s.FactoryArgs)
	if s.UseXML {
		out["use_xml"] = "True"
	}
	if s.DebugMode {
		out["debug_mode"] = "True"
	}
	return out
}

// configMap keys positional arguments by their index
func configMap(s *model.StageNode) map[string]string {
	out := make(map[string]string, len(s.Config))
	position := 0
	for _, entry := range s.Config {
		key := entry.Key
		if key == "" {
			key = fmt.Sprintf("#%d", position)
			position++
		}
		out[key] = entry.Value.Literal
	}
	return out
}

func sameMap(a, b map[string]string) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if other, ok := b[k]; !ok || other != v {
			return false
		}
	}
	return true
}

func (c *comparison) edges(a, b *model.Graph) {
	ea, eb := edgeSet(a), edgeSet(b)
	for _, key := range unionNames(setKeys(ea), setKeys(eb)) {
		switch {
		case !ea[key]:
			c.add("edge", key, "only in second graph")
		case !eb[key]:
			c.add("edge", key, "only in first graph")
		}
	}
}

// edgeSet names edges "producer -> consumer"
func edgeSet(g *model.Graph) map[string]bool {
	out := make(map[string]bool, len(g.Edges()))
	for _, e := range g.Edges() {
		out[g.NameOf(e.Producer)+" -> "+g.NameOf(e.Consumer)] = true
	}
	return out
}

func setKeys(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	return out
}

// unionNames returns the sorted union of two name lists
func unionNames(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, list := range [][]string{a, b} {
		for _, name := range list {
			if !seen[name] {
				seen[name] = true
				out = append(out, name)
			}
		}
	}
	sort.Strings(out)
	return out
}

func sortedCopy(items []string) []string {
	out := append([]string(nil), items...)
	sort.Strings(out)
	return out
}
