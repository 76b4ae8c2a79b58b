// Package ir defines the descriptor model shared by the schema generator,
// the service description assembler and the envelope codec.
//
// Descriptors are derived from Go types at registration time and are
// read-only once published. Cross references between complex types are
// expressed through [TypeTable] lookups keyed by reflect.Type, never by
// embedding descriptors in one another, so self-referential graphs need no
// special handling.
package ir

import (
	"reflect"
	"strings"
)

// ArrayPrefix is prepended to a field's wire name to form the name of the
// element wrapping an array's items.
const ArrayPrefix = "ArrayOf"

// TypeDescriptor describes the wire shape of a complex (struct) type.
type TypeDescriptor struct {
	// Name is the simple Go type name, used as the complex type name on the wire.
	Name string

	// Type is the struct type this descriptor was built from. It is the
	// identity key in a [TypeTable].
	Type reflect.Type

	// Fields are the wire-visible members in emission order.
	Fields []FieldDescriptor
}

// Choice reports whether the type is emitted as a choice group.
// Every field must be a choice member; partial marking yields a sequence.
func (d *TypeDescriptor) Choice() bool {
	if len(d.Fields) == 0 {
		return false
	}
	for i := range d.Fields {
		if !d.Fields[i].ChoiceMember {
			return false
		}
	}
	return true
}

// Field returns the field whose element name on the wire is name.
// Array fields are matched on their wrapper element name (ArrayOf<WireName>).
func (d *TypeDescriptor) Field(name string) (*FieldDescriptor, bool) {
	for i := range d.Fields {
		f := &d.Fields[i]
		if f.ElementName() == name {
			return f, true
		}
	}
	if base, ok := strings.CutPrefix(name, ArrayPrefix); ok {
		for i := range d.Fields {
			f := &d.Fields[i]
			if f.IsArray && f.WireName == base {
				return f, true
			}
		}
	}
	return nil, false
}

// FieldDescriptor describes a single wire-visible member of a complex type.
type FieldDescriptor struct {
	// Name is the Go field or accessor property name.
	Name string

	// WireName is the element name. Defaults to Name.
	WireName string

	// WireType is the qualified schema type: "xs:<builtin>" for scalars,
	// "<TypesPrefix>:<Type>" for complex values and
	// "<TypesPrefix>:ArrayOf<WireName>Type" for arrays.
	WireType string

	// IsArray is true for slice and array fields other than []byte.
	IsArray bool

	// IsComplex is true when the value (or array item) is a struct with its
	// own descriptor.
	IsComplex bool

	// ArrayItemType is the qualified schema type of each item.
	// Set iff IsArray.
	ArrayItemType string

	// ChoiceMember marks the field as part of a mutually exclusive group.
	ChoiceMember bool

	// Order is the sequencing rank; 0 means unordered.
	Order int

	// Occurs holds minOccurs, maxOccurs and nillable in declaration order.
	Occurs Facets

	// Restrictions holds value facets in declaration order.
	Restrictions Facets

	// Type is the declared Go type, possibly a pointer, slice or array.
	Type reflect.Type

	// Target is Type with pointers, slices and arrays stripped: the struct
	// type of a complex value or item, or the scalar Go type.
	Target reflect.Type

	// Scalar classifies Target when the field (or its items) is not complex.
	Scalar ScalarKind

	// Access is the resolved read/write strategy.
	Access Accessor
}

// ElementName is the name of the element the field is carried in.
func (f *FieldDescriptor) ElementName() string {
	if f.IsArray {
		return ArrayPrefix + f.WireName
	}
	return f.WireName
}

// WrapperTypeName is the local name of the synthesized array container type.
func (f *FieldDescriptor) WrapperTypeName() string {
	return ArrayPrefix + f.WireName + "Type"
}

// Accessor is the resolved strategy for reading and writing a field value.
// Method indexes refer to the method set of the pointer to the owning struct.
// A getter or setter, when present, takes precedence over direct field access.
type Accessor struct {
	Getter     int // -1 when absent
	Setter     int // -1 when absent
	FieldIndex []int
}

// NoAccessor is an Accessor with nothing resolved.
var NoAccessor = Accessor{Getter: -1, Setter: -1}

// CanRead reports whether the value can be read.
func (a Accessor) CanRead() bool { return a.Getter >= 0 || a.FieldIndex != nil }

// CanWrite reports whether the value can be written.
func (a Accessor) CanWrite() bool { return a.Setter >= 0 || a.FieldIndex != nil }

// TypeTable maps struct types to their descriptors.
type TypeTable map[reflect.Type]*TypeDescriptor

// Lookup returns the descriptor for t, dereferencing pointers.
func (t TypeTable) Lookup(typ reflect.Type) (*TypeDescriptor, bool) {
	for typ != nil && typ.Kind() == reflect.Pointer {
		typ = typ.Elem()
	}
	d, ok := t[typ]
	return d, ok
}

// Clone returns a shallow copy of the table. Descriptors are shared.
func (t TypeTable) Clone() TypeTable {
	c := make(TypeTable, len(t)+4)
	for k, v := range t {
		c[k] = v
	}
	return c
}
