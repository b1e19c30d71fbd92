// Package registry holds the record types and external type references a
// pipeline graph can use as stage inputs, outputs and field types.
package registry

import (
	"fmt"
	"strings"

	"github.com/conduit-lang/pipegraph/internal/compiler/errors"
)

// ScalarKind is the vocabulary field annotations are translated into
type ScalarKind int

const (
	// KindText is a string field
	KindText ScalarKind = iota
	// KindInteger is an int field
	KindInteger
	// KindFloat is a float field
	KindFloat
	// KindBoolean is a bool field
	KindBoolean
	// KindEnum is a Literal[...] field with a fixed value set
	KindEnum
	// KindReference is a field typed by another record or external type
	KindReference
)

var kindNames = map[ScalarKind]string{
	KindText:      "text",
	KindInteger:   "integer",
	KindFloat:     "float",
	KindBoolean:   "boolean",
	KindEnum:      "enum",
	KindReference: "reference",
}

// String returns the name of the kind
func (k ScalarKind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// MarshalText implements encoding.TextMarshaler
func (k ScalarKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (k *ScalarKind) UnmarshalText(text []byte) error {
	for kind, name := range kindNames {
		if name == string(text) {
			*k = kind
			return nil
		}
	}
	return fmt.Errorf("unknown scalar kind %q", string(text))
}

// Annotation returns the host annotation for the kind when it maps to a
// builtin type
func (k ScalarKind) Annotation() string {
	switch k {
	case KindInteger:
		return "int"
	case KindFloat:
		return "float"
	case KindBoolean:
		return "bool"
	default:
		return "str"
	}
}

// Field is one field of a record type
type Field struct {
	Name        string     `json:"name"`
	Kind        ScalarKind `json:"kind"`
	Reference   string     `json:"reference,omitempty"` // Target type for KindReference
	Literals    []string   `json:"literals,omitempty"`  // Literal source text for KindEnum
	IsList      bool       `json:"is_list,omitempty"`
	Required    bool       `json:"required"`
	Description string     `json:"description,omitempty"`
	// Default is the default value expression as written, empty for none
	Default string `json:"default,omitempty"`
	// Extra holds other Field(...) keyword arguments as written
	Extra string `json:"extra,omitempty"`
	// RawAnnotation keeps an annotation that degraded to text so it can be
	// written back unchanged
	RawAnnotation string `json:"raw_annotation,omitempty"`
}

// Annotation renders the field's type annotation
func (f *Field) Annotation() string {
	if f.RawAnnotation != "" {
		return f.RawAnnotation
	}

	var base string
	switch f.Kind {
	case KindEnum:
		base = "Literal[" + strings.Join(f.Literals, ", ") + "]"
	case KindReference:
		base = f.Reference
	default:
		base = f.Kind.Annotation()
	}

	if f.IsList {
		base = "List[" + base + "]"
	}
	if !f.Required {
		base = "Optional[" + base + "]"
	}
	return base
}

// Clone returns a deep copy of the field
func (f *Field) Clone() *Field {
	c := *f
	c.Literals = append([]string(nil), f.Literals...)
	return &c
}

// RecordType is a named record with ordered fields
type RecordType struct {
	Name   string   `json:"name"`
	Fields []*Field `json:"fields"`
	Doc    string   `json:"doc,omitempty"`
	// Members holds class members other than fields, kept verbatim
	Members string `json:"members,omitempty"`
}

// NewRecordType creates an empty record type
func NewRecordType(name string) *RecordType {
	return &RecordType{Name: name, Fields: make([]*Field, 0)}
}

// Field returns the field with the given name, or nil
func (r *RecordType) Field(name string) *Field {
	for _, f := range r.Fields {
		if f.Name == name {
			return f
		}
	}
	return nil
}

// AddField appends a field, rejecting duplicate names
func (r *RecordType) AddField(f *Field) error {
	if r.Field(f.Name) != nil {
		return &errors.TypeError{
			Code:     errors.ErrDuplicateField,
			Message:  fmt.Sprintf("field %s is declared more than once", f.Name),
			TypeName: r.Name,
			NodeName: r.Name,
		}
	}
	r.Fields = append(r.Fields, f)
	return nil
}

// Clone returns a deep copy of the record type
func (r *RecordType) Clone() *RecordType {
	c := *r
	c.Fields = make([]*Field, len(r.Fields))
	for i, f := range r.Fields {
		c.Fields[i] = f.Clone()
	}
	return &c
}

// ExternalType references a record declared outside the module
type ExternalType struct {
	Module string `json:"module"`
	Name   string `json:"name"`
	// Implicit marks framework-injected types whose import is never rendered
	Implicit bool `json:"implicit,omitempty"`
	// Imported marks types already brought in by a module statement
	Imported bool `json:"imported,omitempty"`
}

// Qualified returns "module.Name"
func (e *ExternalType) Qualified() string {
	if e.Module == "" {
		return e.Name
	}
	return e.Module + "." + e.Name
}

// ParseQualified splits "pkg.mod.Name" into an external type reference
func ParseQualified(qualified string) *ExternalType {
	i := strings.LastIndexByte(qualified, '.')
	if i < 0 {
		return &ExternalType{Name: qualified}
	}
	return &ExternalType{Module: qualified[:i], Name: qualified[i+1:]}
}

// Registry is the set of types visible to a graph. Records keep their
// insertion order.
type Registry struct {
	records   []*RecordType
	byName    map[string]*RecordType
	externals []*ExternalType
	extByName map[string]*ExternalType
}

// New creates an empty registry
func New() *Registry {
	return &Registry{
		records:   make([]*RecordType, 0),
		byName:    make(map[string]*RecordType),
		externals: make([]*ExternalType, 0),
		extByName: make(map[string]*ExternalType),
	}
}

// AddRecord registers a record type
func (r *Registry) AddRecord(rec *RecordType) error {
	if r.Has(rec.Name) {
		return &errors.GraphError{
			Code:    errors.ErrDuplicateName,
			Message: fmt.Sprintf("type %s is declared more than once", rec.Name),
			Nodes:   []string{rec.Name},
		}
	}
	r.records = append(r.records, rec)
	r.byName[rec.Name] = rec
	return nil
}

// AddExternal registers an external type reference. Registering the same
// qualified name twice is a no-op.
func (r *Registry) AddExternal(ext *ExternalType) error {
	if existing, ok := r.extByName[ext.Name]; ok {
		if existing.Qualified() == ext.Qualified() || ext.Module == "" {
			existing.Imported = existing.Imported || ext.Imported
			return nil
		}
		if existing.Module == "" {
			existing.Module = ext.Module
			return nil
		}
	}
	if r.Has(ext.Name) {
		return &errors.GraphError{
			Code:    errors.ErrDuplicateName,
			Message: fmt.Sprintf("type %s is declared more than once", ext.Name),
			Nodes:   []string{ext.Name},
		}
	}
	r.externals = append(r.externals, ext)
	r.extByName[ext.Name] = ext
	return nil
}

// Record returns the record type with the given name, or nil
func (r *Registry) Record(name string) *RecordType {
	return r.byName[name]
}

// External returns the external type with the given name, or nil
func (r *Registry) External(name string) *ExternalType {
	return r.extByName[name]
}

// Has reports whether name resolves to a record or external type
func (r *Registry) Has(name string) bool {
	_, rec := r.byName[name]
	_, ext := r.extByName[name]
	return rec || ext
}

// Records returns record types in insertion order
func (r *Registry) Records() []*RecordType {
	return r.records
}

// Externals returns external types in insertion order
func (r *Registry) Externals() []*ExternalType {
	return r.externals
}

// RemoveRecord deletes a record type. Fields referencing it are left for
// Validate to report.
func (r *Registry) RemoveRecord(name string) bool {
	if _, ok := r.byName[name]; !ok {
		return false
	}
	delete(r.byName, name)
	for i, rec := range r.records {
		if rec.Name == name {
			r.records = append(r.records[:i], r.records[i+1:]...)
			break
		}
	}
	return true
}

// RemoveExternal deletes an external type reference
func (r *Registry) RemoveExternal(name string) bool {
	if _, ok := r.extByName[name]; !ok {
		return false
	}
	delete(r.extByName, name)
	for i, ext := range r.externals {
		if ext.Name == name {
			r.externals = append(r.externals[:i], r.externals[i+1:]...)
			break
		}
	}
	return true
}

// RenameExternal changes the local name of an external type reference and
// rewrites field references to it
func (r *Registry) RenameExternal(oldName, newName string) error {
	ext := r.extByName[oldName]
	if ext == nil {
		return fmt.Errorf("rename %s: %w", oldName, &errors.TypeError{
			Message:  fmt.Sprintf("unknown type %s", oldName),
			TypeName: oldName,
		})
	}
	if r.Has(newName) {
		return &errors.GraphError{
			Code:    errors.ErrDuplicateName,
			Message: fmt.Sprintf("type %s already exists", newName),
			Nodes:   []string{newName},
		}
	}
	delete(r.extByName, oldName)
	ext.Name = newName
	r.extByName[newName] = ext
	r.rewriteReferences(oldName, newName)
	return nil
}

func (r *Registry) rewriteReferences(oldName, newName string) {
	for _, rec := range r.records {
		for _, f := range rec.Fields {
			if f.Kind == KindReference && f.Reference == oldName {
				f.Reference = newName
			}
		}
	}
}

// RenameRecord renames a record type and rewrites field references to it
func (r *Registry) RenameRecord(oldName, newName string) error {
	rec := r.byName[oldName]
	if rec == nil {
		return fmt.Errorf("rename %s: %w", oldName, &errors.TypeError{
			Message:  fmt.Sprintf("unknown type %s", oldName),
			TypeName: oldName,
		})
	}
	if r.Has(newName) {
		return &errors.GraphError{
			Code:    errors.ErrDuplicateName,
			Message: fmt.Sprintf("type %s already exists", newName),
			Nodes:   []string{newName},
		}
	}

	delete(r.byName, oldName)
	rec.Name = newName
	r.byName[newName] = rec
	r.rewriteReferences(oldName, newName)
	return nil
}

// Validate checks that every reference field names a known type
func (r *Registry) Validate() error {
	for _, rec := range r.records {
		for _, f := range rec.Fields {
			if f.Kind == KindReference && !r.Has(f.Reference) {
				return &errors.TypeError{
					Message:  fmt.Sprintf("field %s.%s references unknown type %s", rec.Name, f.Name, f.Reference),
					TypeName: f.Reference,
					NodeName: rec.Name,
				}
			}
		}
	}
	return nil
}

// Clone returns a deep copy of the registry
func (r *Registry) Clone() *Registry {
	c := New()
	for _, rec := range r.records {
		cp := rec.Clone()
		c.records = append(c.records, cp)
		c.byName[cp.Name] = cp
	}
	for _, ext := range r.externals {
		cp := *ext
		c.externals = append(c.externals, &cp)
		c.extByName[cp.Name] = &cp
	}
	return c
}

// FrameworkModule is the module the recognized base identifiers come from
const FrameworkModule = "planai"

// ImplicitExternals returns the framework-injected types available to
// chat-entry stages without an import
func ImplicitExternals() []*ExternalType {
	return []*ExternalType{
		{Module: FrameworkModule, Name: "ChatTask", Implicit: true},
		{Module: FrameworkModule, Name: "ChatMessage", Implicit: true},
	}
}
