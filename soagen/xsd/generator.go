// Package xsd generates XML Schema documents from descriptors.
//
// Generation state (the set of complex types already emitted) belongs to a
// single [Generator] and is never shared, so concurrent generations for
// different operations cannot interfere.
package xsd

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/beevik/etree"

	"github.com/broady/soagw/soagen/ir"
)

var (
	// ErrMissingDescriptor is returned when a complex field refers to a type
	// with no descriptor in the table.
	ErrMissingDescriptor = errors.New("no descriptor for complex type")

	// ErrWrapperConflict is returned when two array fields synthesize
	// wrapper types with the same name but different item declarations.
	ErrWrapperConflict = errors.New("conflicting array wrapper types")

	// ErrTypeConflict is returned when two distinct types would be emitted
	// under the same complex type name.
	ErrTypeConflict = errors.New("conflicting complex type names")
)

// Generator emits complex type definitions into one schema element.
type Generator struct {
	types      ir.TypeTable
	root       *etree.Element
	emitted    map[string]string // complex type name -> signature
	inProgress map[reflect.Type]bool
}

// New returns a generator that appends definitions to root.
func New(types ir.TypeTable, root *etree.Element) *Generator {
	return &Generator{
		types:      types,
		root:       root,
		emitted:    make(map[string]string),
		inProgress: make(map[reflect.Type]bool),
	}
}

// NewDocument returns a document whose root is an empty schema for namespace.
func NewDocument(namespace string) *etree.Document {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)
	root := doc.CreateElement(ir.SchemaPrefix + ":schema")
	SetSchemaAttrs(root, namespace)
	return doc
}

// SetSchemaAttrs sets the namespace declarations and defaults of a schema element.
func SetSchemaAttrs(schema *etree.Element, namespace string) {
	schema.CreateAttr("targetNamespace", namespace)
	schema.CreateAttr("xmlns:"+ir.SchemaPrefix, ir.XMLSchemaNS)
	schema.CreateAttr("xmlns:"+ir.TypesPrefix, namespace)
	schema.CreateAttr("elementFormDefault", "qualified")
}

// Schema generates the request schema of an operation: one top-level element
// named after the request type, declared with an anonymous complex type.
func Schema(namespace string, types ir.TypeTable, op *ir.Operation) (*etree.Document, error) {
	doc := NewDocument(namespace)
	if err := New(types, doc.Root()).Element(op.RequestName(), op.Request); err != nil {
		return nil, fmt.Errorf("schema for %s: %w", op.Name, err)
	}
	doc.Indent(2)
	return doc, nil
}

// TypeSchema generates a schema with t as its top-level element.
func TypeSchema(namespace string, types ir.TypeTable, t reflect.Type) (*etree.Document, error) {
	d, ok := types.Lookup(t)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMissingDescriptor, t)
	}
	doc := NewDocument(namespace)
	if err := New(types, doc.Root()).Element(d.Name, d); err != nil {
		return nil, err
	}
	doc.Indent(2)
	return doc, nil
}

// Element appends a top-level element named name with d expanded as an
// anonymous complex type. The anonymous expansion is never deduplicated.
func (g *Generator) Element(name string, d *ir.TypeDescriptor) error {
	ct, err := g.complexType(d, true)
	if err != nil {
		return err
	}
	el := etree.NewElement(ir.SchemaPrefix + ":element")
	el.CreateAttr("name", name)
	el.AddChild(ct)
	g.root.AddChild(el)
	return nil
}

// ScalarElement appends a top-level element of a simple type.
func (g *Generator) ScalarElement(name, wireType string) {
	el := g.root.CreateElement(ir.SchemaPrefix + ":element")
	el.CreateAttr("name", name)
	el.CreateAttr("type", wireType)
}

func (g *Generator) complexType(d *ir.TypeDescriptor, anonymous bool) (*etree.Element, error) {
	ct := etree.NewElement(ir.SchemaPrefix + ":complexType")
	if !anonymous {
		ct.CreateAttr("name", d.Name)
	}
	group := "sequence"
	if d.Choice() {
		group = "choice"
	}
	grp := ct.CreateElement(ir.SchemaPrefix + ":" + group)
	for i := range d.Fields {
		f := &d.Fields[i]
		el, err := g.element(f)
		if err != nil {
			return nil, fmt.Errorf("%s.%s: %w", d.Name, f.Name, err)
		}
		grp.AddChild(el)
	}
	return ct, nil
}

// named emits the named complex type for t unless it was already emitted
// in this generation or is being emitted further up the stack.
func (g *Generator) named(t reflect.Type) error {
	d, ok := g.types.Lookup(t)
	if !ok {
		return fmt.Errorf("%w: %s", ErrMissingDescriptor, t)
	}
	sig := d.Type.PkgPath() + "." + d.Type.Name()
	if prev, ok := g.emitted[d.Name]; ok {
		if prev != sig {
			return fmt.Errorf("%w: %s", ErrTypeConflict, d.Name)
		}
		return nil
	}
	if g.inProgress[d.Type] {
		return nil
	}
	g.inProgress[d.Type] = true
	defer delete(g.inProgress, d.Type)

	ct, err := g.complexType(d, false)
	if err != nil {
		return err
	}
	g.root.AddChild(ct)
	g.emitted[d.Name] = sig
	return nil
}

func (g *Generator) element(f *ir.FieldDescriptor) (*etree.Element, error) {
	el := etree.NewElement(ir.SchemaPrefix + ":element")
	el.CreateAttr("name", f.ElementName())
	if f.IsArray {
		return el, g.array(el, f)
	}

	switch {
	case f.IsComplex:
		el.CreateAttr("type", f.WireType)
		if err := g.named(f.Target); err != nil {
			return nil, err
		}
	case len(f.Restrictions) > 0:
		el.AddChild(restrictedType(f.WireType, f.Restrictions))
	default:
		el.CreateAttr("type", f.WireType)
	}
	for _, a := range f.Occurs {
		el.CreateAttr(a.Name, a.Value)
	}
	return el, nil
}

// array declares el as an ArrayOf<Name> container and emits its wrapper type.
// minOccurs=0 makes the container optional; every other occurrence attribute
// applies to the item, whose maxOccurs defaults to unbounded.
func (g *Generator) array(el *etree.Element, f *ir.FieldDescriptor) error {
	el.CreateAttr("type", f.WireType)

	item := etree.NewElement(ir.SchemaPrefix + ":element")
	item.CreateAttr("name", f.WireName)
	switch {
	case f.IsComplex:
		item.CreateAttr("type", f.ArrayItemType)
		if err := g.named(f.Target); err != nil {
			return err
		}
	case len(f.Restrictions) > 0:
		item.AddChild(restrictedType(f.ArrayItemType, f.Restrictions))
	default:
		item.CreateAttr("type", f.ArrayItemType)
	}

	for _, a := range f.Occurs {
		if a.Name == ir.MinOccurs && a.Value == "0" {
			el.CreateAttr(a.Name, a.Value)
			continue
		}
		item.CreateAttr(a.Name, a.Value)
	}
	if !f.Occurs.Has(ir.MaxOccurs) {
		item.CreateAttr(ir.MaxOccurs, ir.Unbounded)
	}

	name := f.WrapperTypeName()
	sig := "wrapper:" + render(item)
	if prev, ok := g.emitted[name]; ok {
		if prev != sig {
			return fmt.Errorf("%w: %s", ErrWrapperConflict, name)
		}
		return nil
	}
	ct := etree.NewElement(ir.SchemaPrefix + ":complexType")
	ct.CreateAttr("name", name)
	ct.CreateElement(ir.SchemaPrefix + ":sequence").AddChild(item)
	g.root.AddChild(ct)
	g.emitted[name] = sig
	return nil
}

// restrictedType returns an anonymous simple type restricting base.
// Enumeration values are stored comma separated and emitted one per facet.
func restrictedType(base string, facets ir.Facets) *etree.Element {
	st := etree.NewElement(ir.SchemaPrefix + ":simpleType")
	r := st.CreateElement(ir.SchemaPrefix + ":restriction")
	r.CreateAttr("base", base)
	for _, fc := range facets {
		if fc.Name == ir.Enumeration {
			for _, v := range strings.Split(fc.Value, ",") {
				r.CreateElement(ir.SchemaPrefix+":enumeration").CreateAttr("value", v)
			}
			continue
		}
		r.CreateElement(ir.SchemaPrefix+":"+fc.Name).CreateAttr("value", fc.Value)
	}
	return st
}

func render(el *etree.Element) string {
	doc := etree.NewDocument()
	doc.SetRoot(el.Copy())
	s, _ := doc.WriteToString()
	return s
}

