// Package codec converts between Go values and envelope payload elements.
//
// Encoding and decoding share the descriptor model and the scalar format
// table, so decoding an encoded value reproduces it for every field the
// schema can express. Date-times travel at second resolution in UTC.
package codec

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/beevik/etree"

	"github.com/broady/soagw/soagen/ir"
)

var (
	// ErrUnknownElement is returned when a payload element matches no field.
	ErrUnknownElement = errors.New("unknown element")

	// ErrInvalidValue is returned for scalar text that cannot be parsed.
	ErrInvalidValue = errors.New("invalid value")

	// ErrTooManyItems is returned when a fixed-size array receives more
	// items than it can hold.
	ErrTooManyItems = errors.New("too many items")

	// ErrNoDescriptor is returned for complex values whose type has no descriptor.
	ErrNoDescriptor = errors.New("no descriptor")

	// ErrTooDeep is returned when encoding a value graph nests beyond maxDepth,
	// which only happens for cyclic pointer graphs.
	ErrTooDeep = errors.New("value nested too deeply")
)

const maxDepth = 128

// DecodeError reports where in the payload decoding failed.
type DecodeError struct {
	Path string
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("%s: %v", e.Path, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Codec encodes and decodes values of the types in its table.
type Codec struct {
	types ir.TypeTable
}

// New returns a codec for the given descriptors.
func New(types ir.TypeTable) *Codec {
	return &Codec{types: types}
}

// Encode returns an unqualified element named name carrying v.
// Complex values are expanded field by field; scalars become text content.
func (c *Codec) Encode(name string, v any) (*etree.Element, error) {
	el := etree.NewElement(name)
	rv := reflect.ValueOf(v)
	if !rv.IsValid() || isNil(rv) {
		return el, nil
	}
	if k := ir.ScalarOf(rv.Type()); k != ir.NotScalar {
		text, err := formatScalar(rv, k, k.WireType())
		if err != nil {
			return nil, err
		}
		el.SetText(text)
		return el, nil
	}
	if err := c.encodeComplex(el, rv, 0); err != nil {
		return nil, err
	}
	return el, nil
}

func (c *Codec) encodeComplex(el *etree.Element, v reflect.Value, depth int) error {
	if depth > maxDepth {
		return ErrTooDeep
	}
	v = indirect(v)
	d, ok := c.types.Lookup(v.Type())
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoDescriptor, v.Type())
	}
	var ptr reflect.Value
	if v.CanAddr() {
		ptr = v.Addr()
	} else {
		ptr = reflect.New(v.Type())
		ptr.Elem().Set(v)
	}
	return c.encodeFields(el, d, ptr, depth)
}

func (c *Codec) encodeFields(el *etree.Element, d *ir.TypeDescriptor, ptr reflect.Value, depth int) error {
	for i := range d.Fields {
		f := &d.Fields[i]
		v, err := read(ptr, f)
		if err != nil {
			return fmt.Errorf("%s.%s: %w", d.Name, f.Name, err)
		}
		if !v.IsValid() || isNil(v) {
			continue
		}
		switch {
		case f.IsArray:
			wrap := el.CreateElement(f.ElementName())
			v = indirect(v)
			for j := 0; j < v.Len(); j++ {
				item := v.Index(j)
				if isNil(item) {
					continue
				}
				child := wrap.CreateElement(f.WireName)
				if err := c.encodeValue(child, f, f.ArrayItemType, item, depth); err != nil {
					return fmt.Errorf("%s.%s[%d]: %w", d.Name, f.Name, j, err)
				}
			}
		default:
			child := el.CreateElement(f.WireName)
			if err := c.encodeValue(child, f, f.WireType, v, depth); err != nil {
				return fmt.Errorf("%s.%s: %w", d.Name, f.Name, err)
			}
		}
	}
	return nil
}

func (c *Codec) encodeValue(el *etree.Element, f *ir.FieldDescriptor, wireType string, v reflect.Value, depth int) error {
	if f.IsComplex {
		return c.encodeComplex(el, v, depth+1)
	}
	text, err := formatScalar(v, f.Scalar, wireType)
	if err != nil {
		return err
	}
	el.SetText(text)
	return nil
}

// read resolves a field value through its getter, falling back to the field.
func read(ptr reflect.Value, f *ir.FieldDescriptor) (reflect.Value, error) {
	if f.Access.Getter >= 0 {
		return ptr.Method(f.Access.Getter).Call(nil)[0], nil
	}
	if f.Access.FieldIndex != nil {
		return ptr.Elem().FieldByIndexErr(f.Access.FieldIndex)
	}
	return reflect.Value{}, errors.New("no readable accessor")
}

// Decode returns a pointer to a new value of type t populated from el.
func (c *Codec) Decode(el *etree.Element, t reflect.Type) (reflect.Value, error) {
	t = deref(t)
	d, ok := c.types.Lookup(t)
	if !ok {
		return reflect.Value{}, fmt.Errorf("%w: %s", ErrNoDescriptor, t)
	}
	p := reflect.New(t)
	if err := c.decodeFields(el, d, p, "/"+el.Tag); err != nil {
		return reflect.Value{}, err
	}
	return p, nil
}

func (c *Codec) decodeFields(el *etree.Element, d *ir.TypeDescriptor, p reflect.Value, path string) error {
	for _, child := range el.ChildElements() {
		cpath := path + "/" + child.Tag
		f, ok := d.Field(child.Tag)
		if !ok {
			return &DecodeError{Path: cpath, Err: ErrUnknownElement}
		}
		if isXSINil(child) {
			continue
		}
		var (
			v   reflect.Value
			err error
		)
		switch {
		case f.IsArray:
			v, err = c.decodeArray(child, f, cpath)
		default:
			v, err = c.decodeValue(child, f, f.WireType, cpath)
		}
		if err != nil {
			return err
		}
		if err := write(p, f, v); err != nil {
			return &DecodeError{Path: cpath, Err: err}
		}
	}
	return nil
}

// decodeValue decodes a single complex or scalar occurrence.
// Complex results are pointers; scalar results have the target type.
func (c *Codec) decodeValue(el *etree.Element, f *ir.FieldDescriptor, wireType, path string) (reflect.Value, error) {
	if f.IsComplex {
		d, ok := c.types.Lookup(f.Target)
		if !ok {
			return reflect.Value{}, &DecodeError{Path: path, Err: fmt.Errorf("%w: %s", ErrNoDescriptor, f.Target)}
		}
		p := reflect.New(f.Target)
		if err := c.decodeFields(el, d, p, path); err != nil {
			return reflect.Value{}, err
		}
		return p, nil
	}
	v, err := parseScalar(el.Text(), f.Scalar, wireType, f.Target)
	if err != nil {
		return reflect.Value{}, &DecodeError{Path: path, Err: err}
	}
	return v, nil
}

// decodeArray collects the items of an ArrayOf container into the declared
// slice or fixed-size array type. An empty container yields an empty slice.
func (c *Codec) decodeArray(el *etree.Element, f *ir.FieldDescriptor, path string) (reflect.Value, error) {
	base := deref(f.Type)
	items := el.ChildElements()
	var out reflect.Value
	if base.Kind() == reflect.Array {
		if len(items) > base.Len() {
			return reflect.Value{}, &DecodeError{Path: path, Err: fmt.Errorf("%w: %d > %d", ErrTooManyItems, len(items), base.Len())}
		}
		out = reflect.New(base).Elem()
	} else {
		out = reflect.MakeSlice(base, 0, len(items))
	}
	for i, item := range items {
		ipath := fmt.Sprintf("%s/%s[%d]", path, item.Tag, i+1)
		if item.Tag != f.WireName {
			return reflect.Value{}, &DecodeError{Path: ipath, Err: ErrUnknownElement}
		}
		var v reflect.Value
		if isXSINil(item) {
			v = reflect.Zero(base.Elem())
		} else {
			var err error
			v, err = c.decodeValue(item, f, f.ArrayItemType, ipath)
			if err != nil {
				return reflect.Value{}, err
			}
			v = fit(v, base.Elem())
		}
		if base.Kind() == reflect.Array {
			out.Index(i).Set(v)
		} else {
			out = reflect.Append(out, v)
		}
	}
	return out, nil
}

// write stores v through the setter, falling back to the field.
func write(p reflect.Value, f *ir.FieldDescriptor, v reflect.Value) error {
	if f.Access.Setter >= 0 {
		m := p.Method(f.Access.Setter)
		m.Call([]reflect.Value{fit(v, m.Type().In(0))})
		return nil
	}
	if f.Access.FieldIndex != nil {
		fv, err := p.Elem().FieldByIndexErr(f.Access.FieldIndex)
		if err != nil {
			return err
		}
		fv.Set(fit(v, fv.Type()))
		return nil
	}
	return errors.New("no writable accessor")
}

// fit adapts v to want by adding or removing pointer indirections and
// converting between named and underlying scalar types.
func fit(v reflect.Value, want reflect.Type) reflect.Value {
	switch {
	case v.Type() == want:
		return v
	case v.Kind() == reflect.Pointer && want.Kind() != reflect.Pointer:
		return fit(v.Elem(), want)
	case want.Kind() == reflect.Pointer:
		p := reflect.New(want.Elem())
		p.Elem().Set(fit(v, want.Elem()))
		return p
	}
	return v.Convert(want)
}

func isXSINil(el *etree.Element) bool {
	for _, a := range el.Attr {
		if a.Key == "nil" && a.NamespaceURI() == ir.XMLSchemaInstanceNS {
			return strings.TrimSpace(a.Value) == "true" || strings.TrimSpace(a.Value) == "1"
		}
	}
	return false
}

func isNil(v reflect.Value) bool {
	switch v.Kind() {
	case reflect.Pointer, reflect.Slice, reflect.Map, reflect.Interface:
		return v.IsNil()
	}
	return false
}

func indirect(v reflect.Value) reflect.Value {
	for v.Kind() == reflect.Pointer || v.Kind() == reflect.Interface {
		v = v.Elem()
	}
	return v
}

func deref(t reflect.Type) reflect.Type {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t
}
