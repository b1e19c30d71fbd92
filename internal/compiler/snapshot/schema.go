// Package snapshot converts IR graphs to and from the JSON documents
// exchanged with editors and the websocket transport.
package snapshot

import (
	"github.com/conduit-lang/pipegraph/internal/compiler/model"
	"github.com/conduit-lang/pipegraph/internal/compiler/registry"
)

// Version is the snapshot format version written by Encode
const Version = "1"

// Snapshot is the complete serialized form of a graph
type Snapshot struct {
	Version    string             `json:"version"`
	Name       string             `json:"name"`
	Var        string             `json:"var,omitempty"`
	Entry      string             `json:"entry,omitempty"` // Stage id
	Nodes      []Node             `json:"nodes"`
	Edges      []model.Edge       `json:"edges"`
	Statements []*model.Statement `json:"statements"`
}

// Node is one graph element. Kind selects which of the payload fields is
// set: record, external, a stage kind, data_input/data_output or raw.
type Node struct {
	ID   string         `json:"id"`
	Kind model.NodeKind `json:"kind"`
	Name string         `json:"name"`

	Record   *registry.RecordType   `json:"record,omitempty"`
	External *registry.ExternalType `json:"external,omitempty"`
	Stage    *model.StageNode       `json:"stage,omitempty"`
	Hooks    map[string]Hook        `json:"hooks,omitempty"`
	Probe    *model.ProbeNode       `json:"probe,omitempty"`
	Raw      *model.RawNode         `json:"raw,omitempty"`
}

// Hook is the serialized state of one hook slot
type Hook struct {
	Mode   string   `json:"mode"`
	Body   string   `json:"body,omitempty"`
	Params []string `json:"params,omitempty"`
	Async  bool     `json:"async,omitempty"`
}
