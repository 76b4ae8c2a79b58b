// Package xsdvalid compiles the XML Schema subset produced by the schema
// generator and validates instance documents against it.
//
// Validation reports every problem it finds instead of stopping at the first
// one. Messages follow the wording of the common Java schema validators so
// that existing clients can match on them.
package xsdvalid

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/beevik/etree"

	"github.com/broady/soagw/soagen/ir"
)

// ErrCompile is returned for schemas that cannot be compiled.
var ErrCompile = errors.New("schema compile error")

const unbounded = -1

type qname struct {
	ns, local string
}

func (q qname) String() string {
	if q.ns == "" {
		return q.local
	}
	return fmt.Sprintf("%q:%s", q.ns, q.local)
}

// elementDecl is a global or local element declaration.
type elementDecl struct {
	name      qname
	typeName  qname
	complex   *complexType
	simple    *simpleType
	minOccurs int
	maxOccurs int
	nillable  bool
}

// complexType has element-only content described by one model group.
// A nil group means empty content.
type complexType struct {
	name  string
	group *modelGroup
}

type modelGroup struct {
	choice    bool
	particles []*elementDecl
}

// Validator validates documents against one compiled schema.
// It is safe for concurrent use.
type Validator struct {
	targetNS string
	elements map[string]*elementDecl
	complex  map[string]*complexType
	simple   map[string]*simpleType
}

// Compile compiles a schema document. The document is serialized and parsed
// again so the result does not share nodes with doc.
func Compile(doc *etree.Document) (*Validator, error) {
	b, err := doc.WriteToBytes()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCompile, err)
	}
	return CompileBytes(b)
}

// CompileBytes compiles a schema held in memory.
func CompileBytes(b []byte) (*Validator, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(b); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCompile, err)
	}
	root := doc.Root()
	if root == nil || root.Tag != "schema" || root.NamespaceURI() != ir.XMLSchemaNS {
		return nil, fmt.Errorf("%w: root element is not an XML Schema", ErrCompile)
	}
	c := &compiler{
		v: &Validator{
			targetNS: root.SelectAttrValue("targetNamespace", ""),
			elements: make(map[string]*elementDecl),
			complex:  make(map[string]*complexType),
			simple:   make(map[string]*simpleType),
		},
		qualified: root.SelectAttrValue("elementFormDefault", "unqualified") == "qualified",
	}
	if err := c.schema(root); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCompile, err)
	}
	if err := c.link(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCompile, err)
	}
	return c.v, nil
}

type compiler struct {
	v         *Validator
	qualified bool
	decls     []*elementDecl
	// Simple types whose base is resolved after all globals are known.
	pending []pendingBase
}

type pendingBase struct {
	st   *simpleType
	base qname
	el   *etree.Element
}

func (c *compiler) schema(root *etree.Element) error {
	for _, child := range root.ChildElements() {
		if child.NamespaceURI() != ir.XMLSchemaNS {
			return fmt.Errorf("s4s-elt-invalid: element %s is not allowed in a schema", child.FullTag())
		}
		name := child.SelectAttrValue("name", "")
		switch child.Tag {
		case "element":
			d, err := c.element(child, true)
			if err != nil {
				return err
			}
			if _, dup := c.v.elements[name]; dup {
				return fmt.Errorf("sch-props-correct.2: duplicate element declaration '%s'", name)
			}
			c.v.elements[name] = d
		case "complexType":
			if _, dup := c.v.complex[name]; dup {
				return fmt.Errorf("sch-props-correct.2: duplicate type definition '%s'", name)
			}
			ct, err := c.complexType(child)
			if err != nil {
				return err
			}
			c.v.complex[name] = ct
		case "simpleType":
			if _, dup := c.v.simple[name]; dup {
				return fmt.Errorf("sch-props-correct.2: duplicate type definition '%s'", name)
			}
			st, err := c.simpleType(child)
			if err != nil {
				return err
			}
			c.v.simple[name] = st
		case "annotation", "import", "include":
		default:
			return fmt.Errorf("s4s-elt-invalid: unsupported schema component %s", child.Tag)
		}
	}
	return nil
}

func (c *compiler) element(el *etree.Element, global bool) (*elementDecl, error) {
	name := el.SelectAttrValue("name", "")
	if name == "" {
		return nil, errors.New("s4s-att-must-appear: element declaration without a name")
	}
	d := &elementDecl{name: qname{local: name}, minOccurs: 1, maxOccurs: 1}
	if global || c.qualified {
		d.name.ns = c.v.targetNS
	}
	var err error
	if d.minOccurs, err = occurs(el, "minOccurs"); err != nil {
		return nil, err
	}
	if d.maxOccurs, err = occurs(el, "maxOccurs"); err != nil {
		return nil, err
	}
	if d.maxOccurs != unbounded && d.minOccurs > d.maxOccurs {
		return nil, fmt.Errorf("p-props-correct.2.1: minOccurs greater than maxOccurs on '%s'", name)
	}
	switch v := el.SelectAttrValue("nillable", "false"); v {
	case "true", "1":
		d.nillable = true
	case "false", "0":
	default:
		return nil, fmt.Errorf("s4s-att-invalid-value: invalid nillable '%s' on '%s'", v, name)
	}

	if t := el.SelectAttr("type"); t != nil {
		d.typeName, err = resolveQName(el, t.Value)
		if err != nil {
			return nil, err
		}
		c.decls = append(c.decls, d)
	}
	for _, child := range el.ChildElements() {
		switch child.Tag {
		case "complexType":
			d.complex, err = c.complexType(child)
		case "simpleType":
			d.simple, err = c.simpleType(child)
		case "annotation":
		default:
			err = fmt.Errorf("s4s-elt-invalid-content: %s is not allowed in element '%s'", child.Tag, name)
		}
		if err != nil {
			return nil, err
		}
	}
	if d.typeName.local == "" && d.complex == nil && d.simple == nil {
		d.simple = builtinTypes["anySimpleType"]
	}
	return d, nil
}

func occurs(el *etree.Element, attr string) (int, error) {
	v := el.SelectAttrValue(attr, "1")
	if attr == "maxOccurs" && v == ir.Unbounded {
		return unbounded, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("s4s-att-invalid-value: invalid %s '%s'", attr, v)
	}
	return n, nil
}

func (c *compiler) complexType(el *etree.Element) (*complexType, error) {
	ct := &complexType{name: el.SelectAttrValue("name", "")}
	if ct.name == "" {
		ct.name = anonName(el)
	}
	for _, child := range el.ChildElements() {
		switch child.Tag {
		case "sequence", "choice":
			if ct.group != nil {
				return nil, fmt.Errorf("s4s-elt-invalid-content: more than one model group in type '%s'", ct.name)
			}
			g := &modelGroup{choice: child.Tag == "choice"}
			for _, p := range child.ChildElements() {
				if p.Tag != "element" {
					return nil, fmt.Errorf("s4s-elt-invalid-content: unsupported particle %s in type '%s'", p.Tag, ct.name)
				}
				d, err := c.element(p, false)
				if err != nil {
					return nil, err
				}
				g.particles = append(g.particles, d)
			}
			ct.group = g
		case "annotation":
		default:
			return nil, fmt.Errorf("s4s-elt-invalid-content: unsupported content %s in type '%s'", child.Tag, ct.name)
		}
	}
	return ct, nil
}

func (c *compiler) simpleType(el *etree.Element) (*simpleType, error) {
	st := &simpleType{name: el.SelectAttrValue("name", ""), minLength: -1, maxLength: -1}
	if st.name == "" {
		st.name = anonName(el)
	}
	r := el.SelectElement("restriction")
	if r == nil {
		return nil, fmt.Errorf("s4s-elt-must-match: simple type '%s' is not a restriction", st.name)
	}
	base, err := resolveQName(r, r.SelectAttrValue("base", ""))
	if err != nil {
		return nil, err
	}
	c.pending = append(c.pending, pendingBase{st: st, base: base, el: r})
	return st, nil
}

// anonName names an anonymous type after the name attributes of its ancestors.
func anonName(el *etree.Element) string {
	var b strings.Builder
	b.WriteString("#AnonType_")
	for p := el.Parent(); p != nil && p.Parent() != nil && p.Parent().Parent() != nil; p = p.Parent() {
		b.WriteString(p.SelectAttrValue("name", ""))
	}
	return b.String()
}

// resolveQName resolves a prefixed name against the declarations in scope at el.
func resolveQName(el *etree.Element, s string) (qname, error) {
	prefix, local, ok := strings.Cut(s, ":")
	if !ok {
		prefix, local = "", s
	}
	if local == "" {
		return qname{}, fmt.Errorf("s4s-att-invalid-value: '%s' is not a valid QName", s)
	}
	for e := el; e != nil; e = e.Parent() {
		for _, a := range e.Attr {
			if (prefix == "" && a.Space == "" && a.Key == "xmlns") || (prefix != "" && a.Space == "xmlns" && a.Key == prefix) {
				return qname{ns: a.Value, local: local}, nil
			}
		}
	}
	if prefix == "" {
		return qname{local: local}, nil
	}
	return qname{}, fmt.Errorf("src-resolve.4.1: prefix '%s' of '%s' is not bound", prefix, s)
}

func (c *compiler) link() error {
	// Restrictions of global simple types resolve once their base has.
	for len(c.pending) > 0 {
		var rest []pendingBase
		for _, p := range c.pending {
			base, err := c.lookupSimple(p.base)
			if err != nil {
				return err
			}
			if base.builtin == nil {
				rest = append(rest, p)
				continue
			}
			if err := c.restrict(p.st, base, p.el); err != nil {
				return err
			}
		}
		if len(rest) == len(c.pending) {
			return fmt.Errorf("st-props-correct.2: circular definition of simple type '%s'", rest[0].st.name)
		}
		c.pending = rest
	}
	for _, d := range c.decls {
		if d.typeName.ns == ir.XMLSchemaNS {
			st, err := c.lookupSimple(d.typeName)
			if err != nil {
				return err
			}
			d.simple = st
			continue
		}
		if ct, ok := c.v.complex[d.typeName.local]; ok && d.typeName.ns == c.v.targetNS {
			d.complex = ct
			continue
		}
		st, err := c.lookupSimple(d.typeName)
		if err != nil {
			return err
		}
		d.simple = st
	}
	return nil
}

// lookupSimple finds a builtin or a global simple type. Unknown names in the
// XML Schema namespace are treated as anySimpleType.
func (c *compiler) lookupSimple(q qname) (*simpleType, error) {
	if q.ns == ir.XMLSchemaNS {
		if st, ok := builtinTypes[q.local]; ok {
			return st, nil
		}
		return builtinTypes["anySimpleType"], nil
	}
	if st, ok := c.v.simple[q.local]; ok && q.ns == c.v.targetNS {
		return st, nil
	}
	return nil, fmt.Errorf("src-resolve: Cannot resolve the name '%s' to a(n) 'type definition' component.", q.local)
}

func (c *compiler) restrict(st, base *simpleType, r *etree.Element) error {
	st.base = base
	st.builtin = base.builtin
	b := st.builtin
	for _, f := range r.ChildElements() {
		val := f.SelectAttrValue("value", "")
		switch f.Tag {
		case "pattern":
			p, err := compilePattern(val)
			if err != nil {
				return err
			}
			st.patterns = append(st.patterns, p)
		case "enumeration":
			if _, ok := b.parse(normalize(val, b.ws)); !ok {
				return fmt.Errorf("enumeration-valid-restriction: '%s' is not a valid value for '%s'", val, b.name)
			}
			st.enums = append(st.enums, normalize(val, b.ws))
		case "minLength", "maxLength":
			if !b.hasLength() {
				return fmt.Errorf("cos-applicable-facets: Facet '%s' is not allowed by type %s.", f.Tag, b.name)
			}
			n, err := strconv.Atoi(val)
			if err != nil || n < 0 {
				return fmt.Errorf("s4s-att-invalid-value: invalid %s '%s'", f.Tag, val)
			}
			if f.Tag == "minLength" {
				st.minLength = n
			} else {
				st.maxLength = n
			}
		case minInclusive, maxInclusive, minExclusive, maxExclusive:
			if !b.ordered() {
				return fmt.Errorf("cos-applicable-facets: Facet '%s' is not allowed by type %s.", f.Tag, b.name)
			}
			v, ok := b.parse(normalize(val, b.ws))
			if !ok {
				return fmt.Errorf("s4s-att-invalid-value: '%s' is not a valid value of %s '%s'", val, f.Tag, b.name)
			}
			st.bounds = append(st.bounds, bound{facet: f.Tag, raw: val, val: v})
		case "annotation":
		default:
			return fmt.Errorf("cos-applicable-facets: Facet '%s' is not supported.", f.Tag)
		}
	}
	if st.minLength >= 0 && st.maxLength >= 0 && st.minLength > st.maxLength {
		return fmt.Errorf("minLength-less-than-equal-to-maxLength: minLength %d > maxLength %d in type '%s'", st.minLength, st.maxLength, st.name)
	}
	return nil
}
