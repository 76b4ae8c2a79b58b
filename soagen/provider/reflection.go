// Package provider builds descriptors from Go types using runtime reflection.
//
// A struct contributes a field to its descriptor when it declares a paired
// accessor (X() T on the value or pointer, SetX(T) on the pointer) or when an
// exported field carries an xsd tag with at least one option:
//
//	type Echo struct {
//	    Name  string `xsd:"order:1;maxLength:10"`
//	    Count int    `xsd:"order:2"`
//	}
//
// Metadata for accessor properties comes from [TagProvider].
package provider

import (
	"context"
	"fmt"
	"reflect"
	"sort"

	"github.com/broady/soagw/soagen/ir"
)

var (
	contextType = reflect.TypeFor[context.Context]()
	errorType   = reflect.TypeFor[error]()
)

// Methods that are part of the request contract or metadata hooks and never
// count as accessors.
var reservedMethods = map[string]bool{
	"Response": true,
	"XSDTags":  true,
}

// Builder derives descriptors, registering each struct type exactly once in
// its type table. A Builder is not safe for concurrent use, and its table
// must be discarded after a failed build.
type Builder struct {
	types ir.TypeTable
	names map[string]reflect.Type
}

// NewBuilder returns a builder whose table starts as a copy of seed.
// Types already in seed are returned as-is and never rebuilt.
func NewBuilder(seed ir.TypeTable) *Builder {
	b := &Builder{
		types: seed.Clone(),
		names: make(map[string]reflect.Type, len(seed)),
	}
	for t, d := range b.types {
		b.names[d.Name] = t
	}
	return b
}

// Types returns the builder's table, including everything built so far.
func (b *Builder) Types() ir.TypeTable {
	return b.types
}

// Build returns the descriptor of t, building it and every complex type
// reachable from it.
func (b *Builder) Build(t reflect.Type) (*ir.TypeDescriptor, error) {
	return b.complex(deref(t))
}

// BuildOperation validates the request contract of t and builds the
// descriptors of its request and response types.
func (b *Builder) BuildOperation(name string, t reflect.Type) (*ir.Operation, error) {
	t = deref(t)
	if t.Kind() != reflect.Struct || t.Name() == "" {
		return nil, fmt.Errorf("%w: %s is not a named struct", ErrInvalidRequestType, t)
	}
	if field, ok := promotedResponse(t); ok {
		return nil, fmt.Errorf("%w: %s: Response is promoted from embedded field %s", ErrInvalidRequestType, t, field)
	}
	pt := reflect.PointerTo(t)
	m, ok := pt.MethodByName("Response")
	if !ok {
		return nil, fmt.Errorf("%w: %s has no Response method", ErrInvalidRequestType, t)
	}
	mt := m.Type
	if mt.NumIn() != 2 || mt.In(1) != contextType || mt.NumOut() != 2 || mt.Out(1) != errorType {
		return nil, fmt.Errorf("%w: %s.Response must have signature func(context.Context) (R, error), got %s",
			ErrInvalidRequestType, t, mt)
	}

	req, err := b.Build(t)
	if err != nil {
		return nil, err
	}

	rt := mt.Out(0)
	base := deref(rt)
	op := &ir.Operation{
		Name:         name,
		Request:      req,
		Method:       m.Index,
		Response:     rt,
		ResponseName: base.Name(),
	}
	switch k := ir.ScalarOf(base); {
	case k != ir.NotScalar:
		op.ResponseScalar = k
		if base.PkgPath() == "" {
			// Predeclared types are named after their wire builtin.
			op.ResponseName = k.Builtin()
		}
	case base.Kind() == reflect.Struct && base.Name() != "":
		d, err := b.complex(base)
		if err != nil {
			return nil, fmt.Errorf("response of %s: %w", t.Name(), err)
		}
		op.ResponseType = d
	default:
		return nil, fmt.Errorf("%w: %s.Response returns unsupported type %s", ErrInvalidRequestType, t, rt)
	}
	return op, nil
}

// promotedResponse reports an embedded field that supplies a Response method.
// The request contract must be declared on the request type itself.
func promotedResponse(t reflect.Type) (string, bool) {
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		if !sf.Anonymous {
			continue
		}
		et := deref(sf.Type)
		if et.Kind() == reflect.Interface {
			if _, ok := et.MethodByName("Response"); ok {
				return sf.Name, true
			}
			continue
		}
		if _, ok := reflect.PointerTo(et).MethodByName("Response"); ok {
			return sf.Name, true
		}
	}
	return "", false
}

// complex checks that t can be described as a complex type and builds it.
func (b *Builder) complex(t reflect.Type) (*ir.TypeDescriptor, error) {
	switch t.Kind() {
	case reflect.Struct:
		if t.Name() == "" {
			return nil, fmt.Errorf("%w: anonymous struct %s must be declared as a named type", ErrNotConstructible, t)
		}
		return b.build(t)
	case reflect.Interface:
		return nil, fmt.Errorf("%w: interface %s", ErrNotConstructible, t)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, t)
	}
}

func (b *Builder) build(t reflect.Type) (*ir.TypeDescriptor, error) {
	if d, ok := b.types[t]; ok {
		return d, nil
	}
	if other, ok := b.names[t.Name()]; ok && other != t {
		return nil, fmt.Errorf("%w: %s and %s", ErrNameConflict, other, t)
	}

	// Registered before its fields so that self references resolve to it.
	d := &ir.TypeDescriptor{Name: t.Name(), Type: t}
	b.types[t] = d
	b.names[d.Name] = t

	fields, err := b.fields(t)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", t.Name(), err)
	}
	d.Fields = fields
	return d, nil
}

// fields collects accessor properties (method order) then tagged fields
// (declaration order), and stable-sorts them by rank.
func (b *Builder) fields(t reflect.Type) ([]ir.FieldDescriptor, error) {
	pt := reflect.PointerTo(t)
	props := propertyTags(t)
	used := make(map[string]bool, len(props))

	var out []ir.FieldDescriptor
	for i := 0; i < pt.NumMethod(); i++ {
		m := pt.Method(i)
		if reservedMethods[m.Name] {
			continue
		}
		setter, ok := setterFor(pt, m.Name, m.Type)
		if !ok {
			continue
		}
		used[m.Name] = true
		spec, err := parseTag(props[m.Name])
		if err != nil {
			return nil, fmt.Errorf("property %s: %w", m.Name, err)
		}
		f, err := b.field(m.Name, m.Type.Out(0), spec, ir.Accessor{Getter: m.Index, Setter: setter})
		if err != nil {
			return nil, fmt.Errorf("property %s: %w", m.Name, err)
		}
		out = append(out, f)
	}
	for name := range props {
		if !used[name] {
			return nil, fmt.Errorf("%w: metadata for %s names no accessor pair", ErrInvalidTag, name)
		}
	}

	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		tag, ok := sf.Tag.Lookup(TagName)
		if !ok || tag == "-" || !sf.IsExported() {
			continue
		}
		spec, err := parseTag(tag)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", sf.Name, err)
		}
		if spec.empty() {
			continue
		}
		access := ir.Accessor{Getter: -1, Setter: -1, FieldIndex: sf.Index}
		if idx, ok := setterFor(pt, sf.Name, nil); ok {
			if pt.Method(idx).Type.In(1) == sf.Type {
				access.Setter = idx
			}
		}
		f, err := b.field(sf.Name, sf.Type, spec, access)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", sf.Name, err)
		}
		out = append(out, f)
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out, nil
}

// setterFor finds SetName(v) on pt. When getter is non-nil it must be a
// no-argument method returning the setter's parameter type.
func setterFor(pt reflect.Type, name string, getter reflect.Type) (int, bool) {
	if getter != nil && (getter.NumIn() != 1 || getter.NumOut() != 1) {
		return -1, false
	}
	m, ok := pt.MethodByName("Set" + name)
	if !ok {
		return -1, false
	}
	if m.Type.NumIn() != 2 || m.Type.NumOut() != 0 {
		return -1, false
	}
	if getter != nil && m.Type.In(1) != getter.Out(0) {
		return -1, false
	}
	return m.Index, true
}

// propertyTags returns the metadata a type declares for its accessors.
func propertyTags(t reflect.Type) map[string]string {
	if p, ok := reflect.New(t).Interface().(TagProvider); ok {
		return p.XSDTags()
	}
	return nil
}

func (b *Builder) field(name string, typ reflect.Type, spec tagSpec, access ir.Accessor) (ir.FieldDescriptor, error) {
	f := ir.FieldDescriptor{
		Name:         name,
		WireName:     name,
		Type:         typ,
		Order:        spec.opts.Order,
		ChoiceMember: spec.opts.Choice,
		Occurs:       spec.occurs(),
		Restrictions: spec.restrictions(),
		Access:       access,
	}
	if spec.opts.Name != "" {
		f.WireName = spec.opts.Name
	}

	base := deref(typ)
	switch k := ir.ScalarOf(base); {
	case k != ir.NotScalar:
		f.Scalar = k
		f.Target = base
		f.WireType = k.WireType()
	case base.Kind() == reflect.Slice || base.Kind() == reflect.Array:
		item := deref(base.Elem())
		f.IsArray = true
		f.Target = item
		f.WireType = ir.TypesPrefix + ":" + f.WrapperTypeName()
		if k := ir.ScalarOf(item); k != ir.NotScalar {
			f.Scalar = k
			f.ArrayItemType = k.WireType()
			break
		}
		if item.Kind() == reflect.Slice || item.Kind() == reflect.Array {
			return f, fmt.Errorf("%w: nested array %s", ErrUnsupportedType, typ)
		}
		d, err := b.complex(item)
		if err != nil {
			return f, err
		}
		f.IsComplex = true
		f.ArrayItemType = ir.TypesPrefix + ":" + d.Name
	default:
		d, err := b.complex(base)
		if err != nil {
			return f, err
		}
		f.IsComplex = true
		f.Target = base
		f.WireType = ir.TypesPrefix + ":" + d.Name
	}

	if spec.opts.Type != "" {
		if f.IsComplex {
			return f, fmt.Errorf("%w: type override on complex field", ErrInvalidTag)
		}
		if f.IsArray {
			f.ArrayItemType = spec.opts.Type
		} else {
			f.WireType = spec.opts.Type
		}
	}
	if f.IsComplex && len(f.Restrictions) > 0 {
		return f, fmt.Errorf("%w: restrictions on complex field", ErrInvalidTag)
	}
	return f, nil
}

func deref(t reflect.Type) reflect.Type {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t
}
