package model

import "fmt"

// HookSlot identifies one of the user-code extension points of a stage
type HookSlot int

const (
	SlotPre HookSlot = iota
	SlotConsume
	SlotPost
	SlotPrompt
	SlotValidate
	SlotStatus

	// SlotCount is the number of hook slots
	SlotCount
)

var slotNames = [SlotCount]string{"pre", "consume", "post", "prompt", "validate", "status"}

// AllSlots lists the hook slots in rendering order
var AllSlots = []HookSlot{SlotPre, SlotConsume, SlotPost, SlotPrompt, SlotValidate, SlotStatus}

// String returns the slot name
func (s HookSlot) String() string {
	if s >= 0 && s < SlotCount {
		return slotNames[s]
	}
	return fmt.Sprintf("slot(%d)", int(s))
}

// ParseSlot returns the slot with the given name
func ParseSlot(name string) (HookSlot, bool) {
	for i, n := range slotNames {
		if n == name {
			return HookSlot(i), true
		}
	}
	return 0, false
}

// Method returns the host method name bound to the slot
func (s HookSlot) Method(v Variant) string {
	switch s {
	case SlotPre:
		return "pre_consume_work"
	case SlotConsume:
		if v == FanIn {
			return "consume_work_joined"
		}
		return "consume_work"
	case SlotPost:
		return "post_process"
	case SlotPrompt:
		return "format_prompt"
	case SlotValidate:
		return "extra_validation"
	case SlotStatus:
		return "notify_status"
	}
	return ""
}

// SlotForMethod maps a method name to its hook slot for the variant
func SlotForMethod(v Variant, method string) (HookSlot, bool) {
	for _, s := range AllSlots {
		if s.Method(v) == method {
			return s, true
		}
	}
	return 0, false
}

// Applies reports whether the slot exists on stages of the variant.
// Subgraph and chat-entry stages own no hooks.
func (s HookSlot) Applies(v Variant) bool {
	switch v {
	case Subgraph, ChatEntry:
		return false
	}
	switch s {
	case SlotPrompt, SlotPost, SlotValidate:
		return v == ModelBacked
	}
	return true
}

// DefaultParams returns the parameter list used when a hook has none
// recorded from source
func (s HookSlot) DefaultParams(v Variant) []string {
	switch s {
	case SlotConsume:
		if v == FanIn {
			return []string{"self", "tasks"}
		}
		return []string{"self", "task"}
	case SlotPost, SlotValidate:
		return []string{"self", "response", "input_task"}
	case SlotStatus:
		return []string{"self", "task", "message"}
	}
	return []string{"self", "task"}
}

// HookMode is the state of a hook slot
type HookMode int

const (
	HookDisabled HookMode = iota
	HookDefault
	HookCustom
)

var modeNames = map[HookMode]string{
	HookDisabled: "disabled",
	HookDefault:  "default",
	HookCustom:   "custom",
}

// String returns the mode name
func (m HookMode) String() string {
	if name, ok := modeNames[m]; ok {
		return name
	}
	return fmt.Sprintf("mode(%d)", int(m))
}

// ParseHookMode returns the mode with the given name
func ParseHookMode(name string) (HookMode, bool) {
	for m, n := range modeNames {
		if n == name {
			return m, true
		}
	}
	return 0, false
}

// Hook is the state of one hook slot. HookDisabled and HookDefault both
// omit the override so the stage inherits the framework method; HookDefault
// records that the stage relies on it. Body is the dedented method body and
// is only meaningful for HookCustom. Params keeps the source parameter
// names, self included.
type Hook struct {
	Mode   HookMode
	Body   string
	Params []string
	Async  bool
}

// Custom creates a custom hook with the given body
func Custom(body string) Hook {
	return Hook{Mode: HookCustom, Body: body}
}

// Enabled reports whether the hook is rendered as an overriding method
func (h Hook) Enabled() bool {
	return h.Mode == HookCustom
}

// ParamsFor returns the hook's parameter names, falling back to the slot
// defaults
func (h Hook) ParamsFor(s HookSlot, v Variant) []string {
	if len(h.Params) > 0 {
		return h.Params
	}
	return s.DefaultParams(v)
}

// Equal compares the rendered override. Hooks without one are equal
// whatever their mode. Parameter names do not change behavior and are
// ignored.
func (h Hook) Equal(other Hook) bool {
	if h.Enabled() != other.Enabled() {
		return false
	}
	if !h.Enabled() {
		return true
	}
	return h.Async == other.Async && NormalizeBody(h.Body) == NormalizeBody(other.Body)
}

