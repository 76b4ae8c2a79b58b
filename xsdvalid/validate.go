package xsdvalid

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/beevik/etree"

	"github.com/broady/soagw/soagen/ir"
)

// Severity classifies a validation failure.
type Severity int

const (
	Warning Severity = iota
	Error
	FatalError
)

func (s Severity) String() string {
	switch s {
	case Warning:
		return "warning"
	case Error:
		return "error"
	case FatalError:
		return "fatal"
	}
	return "severity(" + strconv.Itoa(int(s)) + ")"
}

// Failure is one validation problem.
type Failure struct {
	Severity Severity
	// Path locates the offending element, e.g. /Echo/Name or /Order/Line[2].
	Path    string
	Message string
}

func (f Failure) String() string {
	return fmt.Sprintf("%s %s: %s", f.Severity, f.Path, f.Message)
}

// Messages returns the message of each failure.
func Messages(failures []Failure) []string {
	out := make([]string, len(failures))
	for i, f := range failures {
		out[i] = f.Message
	}
	return out
}

// Validate validates the document rooted at root and returns every failure
// in document order. A nil result means the document is valid.
func (v *Validator) Validate(root *etree.Element) []Failure {
	r := &run{v: v}
	path := "/" + root.Tag
	decl, ok := v.elements[root.Tag]
	if !ok || root.NamespaceURI() != decl.name.ns {
		r.fail(path, "cvc-elt.1.a: Cannot find the declaration of element '%s'.", root.FullTag())
		return r.failures
	}
	r.element(root, decl, path)
	return r.failures
}

// ValidateDocument validates the root element of doc.
func (v *Validator) ValidateDocument(doc *etree.Document) []Failure {
	root := doc.Root()
	if root == nil {
		return []Failure{{Severity: FatalError, Path: "/", Message: "Premature end of file."}}
	}
	return v.Validate(root)
}

type run struct {
	v        *Validator
	failures []Failure
}

func (r *run) fail(path, format string, args ...any) {
	r.failures = append(r.failures, Failure{Severity: Error, Path: path, Message: fmt.Sprintf(format, args...)})
}

func (r *run) element(el *etree.Element, d *elementDecl, path string) {
	name := el.FullTag()
	nilled := false
	for _, a := range el.Attr {
		if a.Space == "xmlns" || (a.Space == "" && a.Key == "xmlns") {
			continue
		}
		if a.NamespaceURI() == ir.XMLSchemaInstanceNS {
			switch a.Key {
			case "nil":
				nilled = strings.TrimSpace(a.Value) == "true" || strings.TrimSpace(a.Value) == "1"
				if !d.nillable {
					r.fail(path, "cvc-elt.3.1: Attribute '%s,nil' must not appear on element '%s', because the {nillable} property of '%s' is false.",
						ir.XMLSchemaInstanceNS, name, name)
					nilled = false
				}
				continue
			case "type", "schemaLocation", "noNamespaceSchemaLocation":
				continue
			}
		}
		if d.simple != nil {
			r.fail(path, "cvc-type.3.1.1: Element '%s' is a simple type, so it cannot have attributes, excepting those whose namespace name is identical to '%s' and whose [local name] is one of 'type', 'nil', 'schemaLocation' or 'noNamespaceSchemaLocation'. However, the attribute, '%s' was found.",
				name, ir.XMLSchemaInstanceNS, a.FullKey())
		} else {
			r.fail(path, "cvc-complex-type.3.2.2: Attribute '%s' is not allowed to appear in element '%s'.", a.FullKey(), name)
		}
	}

	if nilled {
		if hasContent(el) {
			r.fail(path, "cvc-elt.3.2.1: Element '%s' cannot have character or element information [children], because '%s,nil' is specified.",
				name, ir.XMLSchemaInstanceNS)
		}
		return
	}

	if d.simple != nil {
		if len(el.ChildElements()) > 0 {
			r.fail(path, "cvc-type.3.1.2: Element '%s' is a simple type, so it must have no element information item [children].", name)
			return
		}
		if msg := d.simple.check(text(el)); msg != "" {
			r.fail(path, "%s", msg)
		}
		return
	}
	r.content(el, d.complex, path)
}

// content checks the children of an element with complex type ct.
func (r *run) content(el *etree.Element, ct *complexType, path string) {
	name := el.FullTag()
	m := newMatcher(ct.group)
	textReported := false
	seen := make(map[string]int)
	for _, tok := range el.Child {
		switch t := tok.(type) {
		case *etree.CharData:
			if !textReported && strings.TrimSpace(t.Data) != "" {
				r.fail(path, "cvc-complex-type.2.3: Element '%s' cannot have character [children], because the type's content type is element-only.", name)
				textReported = true
			}
		case *etree.Element:
			seen[t.Tag]++
			cpath := path + "/" + t.Tag
			if n := seen[t.Tag]; n > 1 {
				cpath += "[" + strconv.Itoa(n) + "]"
			}
			q := qname{ns: t.NamespaceURI(), local: t.Tag}
			if m.broken {
				// After a content error, children are still checked against
				// any particle with the same name.
				if p := m.byName(q); p != nil {
					r.element(t, p, cpath)
				}
				continue
			}
			p, expected := m.next(q)
			if p == nil {
				m.broken = true
				if len(expected) == 0 {
					r.fail(cpath, "cvc-complex-type.2.4.d: Invalid content was found starting with element '%s'. No child element is expected at this point.", t.FullTag())
				} else {
					r.fail(cpath, "cvc-complex-type.2.4.a: Invalid content was found starting with element '%s'. One of '%s' is expected.", t.FullTag(), formatExpected(expected))
				}
				continue
			}
			r.element(t, p, cpath)
		}
	}
	if !m.broken {
		if expected := m.missing(); len(expected) > 0 {
			r.fail(path, "cvc-complex-type.2.4.b: The content of element '%s' is not complete. One of '%s' is expected.", name, formatExpected(expected))
		}
	}
}

func formatExpected(ps []*elementDecl) string {
	names := make([]string, len(ps))
	for i, p := range ps {
		names[i] = p.name.String()
	}
	return "{" + strings.Join(names, ", ") + "}"
}

func hasContent(el *etree.Element) bool {
	for _, tok := range el.Child {
		switch t := tok.(type) {
		case *etree.Element:
			return true
		case *etree.CharData:
			if t.Data != "" {
				return true
			}
		}
	}
	return false
}

// text concatenates the character data of a simple element.
func text(el *etree.Element) string {
	var b strings.Builder
	for _, tok := range el.Child {
		if cd, ok := tok.(*etree.CharData); ok {
			b.WriteString(cd.Data)
		}
	}
	return b.String()
}

// matcher walks a sequence or choice one child element at a time.
type matcher struct {
	g      *modelGroup
	pos    int // current particle; for a choice, the chosen particle or -1
	count  int // occurrences of the current particle
	broken bool
}

func newMatcher(g *modelGroup) *matcher {
	m := &matcher{g: g}
	if g != nil && g.choice {
		m.pos = -1
	}
	return m
}

func (m *matcher) byName(q qname) *elementDecl {
	if m.g == nil {
		return nil
	}
	for _, p := range m.g.particles {
		if p.name == q {
			return p
		}
	}
	return nil
}

func below(count, max int) bool { return max == unbounded || count < max }

// next consumes one child. It returns the matching particle, or nil and the
// particles that would have been accepted.
func (m *matcher) next(q qname) (*elementDecl, []*elementDecl) {
	if m.g == nil {
		return nil, nil
	}
	ps := m.g.particles
	if m.g.choice {
		if m.pos < 0 {
			for i, p := range ps {
				if p.name == q && p.maxOccurs != 0 {
					m.pos, m.count = i, 1
					return p, nil
				}
			}
			return nil, m.expected()
		}
		p := ps[m.pos]
		if p.name == q && below(m.count, p.maxOccurs) {
			m.count++
			return p, nil
		}
		return nil, m.expected()
	}

	start, startCount := m.pos, m.count
	for m.pos < len(ps) {
		p := ps[m.pos]
		if p.name == q && below(m.count, p.maxOccurs) {
			m.count++
			return p, nil
		}
		if m.count < p.minOccurs {
			break
		}
		m.pos++
		m.count = 0
	}
	m.pos, m.count = start, startCount
	return nil, m.expected()
}

// expected lists the particles acceptable in the current state.
func (m *matcher) expected() []*elementDecl {
	ps := m.g.particles
	var out []*elementDecl
	if m.g.choice {
		if m.pos < 0 {
			for _, p := range ps {
				if p.maxOccurs != 0 {
					out = append(out, p)
				}
			}
			return out
		}
		if p := ps[m.pos]; below(m.count, p.maxOccurs) {
			out = append(out, p)
		}
		return out
	}
	count := m.count
	for i := m.pos; i < len(ps); i++ {
		p := ps[i]
		if below(count, p.maxOccurs) {
			out = append(out, p)
		}
		if count < p.minOccurs {
			break
		}
		count = 0
	}
	return out
}

// missing returns the expected particles when the content ends before every
// required particle has appeared.
func (m *matcher) missing() []*elementDecl {
	if m.g == nil {
		return nil
	}
	ps := m.g.particles
	if m.g.choice {
		if m.pos < 0 {
			for _, p := range ps {
				if p.minOccurs == 0 {
					return nil
				}
			}
			if len(ps) == 0 {
				return nil
			}
			return m.expected()
		}
		if m.count < ps[m.pos].minOccurs {
			return m.expected()
		}
		return nil
	}
	count := m.count
	for i := m.pos; i < len(ps); i++ {
		if count < ps[i].minOccurs {
			return m.expected()
		}
		count = 0
	}
	return nil
}
