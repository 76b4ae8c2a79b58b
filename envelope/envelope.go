// Package envelope parses and renders SOAP 1.1 envelopes.
//
// Only the envelope frame is handled here: payload elements are produced
// and consumed by the codec package.
package envelope

import (
	"errors"
	"fmt"

	"github.com/beevik/etree"
)

// NS is the SOAP 1.1 envelope namespace.
const NS = "http://schemas.xmlsoap.org/soap/envelope/"

// Prefix is the prefix bound to NS in rendered envelopes.
const Prefix = "SOAP-ENV"

// ErrMalformed is returned when a message is not a well-formed SOAP 1.1 envelope.
var ErrMalformed = errors.New("malformed envelope")

// Code is a SOAP 1.1 fault code.
type Code string

const (
	// Client faults report a problem with the inbound message.
	Client Code = "Client"
	// Server faults report a failure while processing a valid message.
	Server Code = "Server"
)

// Envelope is a parsed inbound envelope.
type Envelope struct {
	header  *etree.Element
	body    *etree.Element
	payload *etree.Element
}

// ParseBytes parses an envelope held in memory.
func ParseBytes(b []byte) (*Envelope, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(b); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	return FromDocument(doc)
}

// FromDocument checks the envelope frame of doc. The envelope must contain an
// optional Header followed by a Body holding exactly one payload element.
func FromDocument(doc *etree.Document) (*Envelope, error) {
	root := doc.Root()
	if root == nil {
		return nil, fmt.Errorf("%w: no root element", ErrMalformed)
	}
	if !isSOAP(root, "Envelope") {
		return nil, fmt.Errorf("%w: root element {%s}%s is not a SOAP 1.1 Envelope", ErrMalformed, root.NamespaceURI(), root.Tag)
	}
	env := &Envelope{}
	for i, child := range root.ChildElements() {
		switch {
		case isSOAP(child, "Header") && i == 0:
			env.header = child
		case isSOAP(child, "Body") && env.body == nil:
			env.body = child
		default:
			return nil, fmt.Errorf("%w: unexpected element %s in Envelope", ErrMalformed, child.FullTag())
		}
	}
	if env.body == nil {
		return nil, fmt.Errorf("%w: missing Body", ErrMalformed)
	}
	content := env.body.ChildElements()
	switch len(content) {
	case 0:
		return nil, fmt.Errorf("%w: empty Body", ErrMalformed)
	case 1:
		env.payload = content[0]
	default:
		return nil, fmt.Errorf("%w: Body holds %d elements, want 1", ErrMalformed, len(content))
	}
	return env, nil
}

func isSOAP(el *etree.Element, local string) bool {
	return el.Tag == local && el.NamespaceURI() == NS
}

// Payload returns the single element inside Body.
func (e *Envelope) Payload() *etree.Element { return e.payload }

// PayloadDocument returns a standalone copy of the payload. Namespace
// declarations in scope from the envelope are copied onto the new root.
func (e *Envelope) PayloadDocument() *etree.Document {
	el := e.payload.Copy()
	declared := make(map[string]bool)
	for _, a := range el.Attr {
		if prefix, ok := nsDecl(a); ok {
			declared[prefix] = true
		}
	}
	for p := e.payload.Parent(); p != nil; p = p.Parent() {
		for _, a := range p.Attr {
			prefix, ok := nsDecl(a)
			if !ok || declared[prefix] {
				continue
			}
			declared[prefix] = true
			el.CreateAttr(a.FullKey(), a.Value)
		}
	}
	doc := etree.NewDocument()
	doc.SetRoot(el)
	return doc
}

// nsDecl reports whether a declares a namespace, and the prefix it binds.
func nsDecl(a etree.Attr) (string, bool) {
	switch {
	case a.Space == "xmlns":
		return a.Key, true
	case a.Space == "" && a.Key == "xmlns":
		return "", true
	}
	return "", false
}

// Fault returns the fault carried in the Body, if any.
func (e *Envelope) Fault() (*Fault, bool) {
	if !isSOAP(e.payload, "Fault") {
		return nil, false
	}
	f := &Fault{}
	if el := e.payload.SelectElement("faultcode"); el != nil {
		code := el.Text()
		for i := len(code) - 1; i >= 0; i-- {
			if code[i] == ':' {
				code = code[i+1:]
				break
			}
		}
		f.Code = Code(code)
	}
	if el := e.payload.SelectElement("faultstring"); el != nil {
		f.String = el.Text()
	}
	if el := e.payload.SelectElement("detail"); el != nil {
		f.Detail = el.Text()
	}
	return f, true
}

// New returns an envelope document with payload as the Body content and no
// Header. When namespace is not empty the envelope declares it under the
// types prefix and it becomes the default namespace of the payload.
func New(namespace, typesPrefix string, payload *etree.Element) *etree.Document {
	doc, body := frame()
	if namespace != "" {
		doc.Root().CreateAttr("xmlns:"+typesPrefix, namespace)
		if payload.SelectAttr("xmlns") == nil {
			payload.CreateAttr("xmlns", namespace)
		}
	}
	body.AddChild(payload)
	return doc
}

// Fault is the content of a SOAP 1.1 fault.
type Fault struct {
	Code   Code
	String string
	Detail string
}

func (f *Fault) Error() string {
	return fmt.Sprintf("%s: %s", f.Code, f.String)
}

// FaultDocument renders f as a complete envelope.
func FaultDocument(f *Fault) *etree.Document {
	doc, body := frame()
	fault := body.CreateElement(Prefix + ":Fault")
	fault.CreateElement("faultcode").SetText(Prefix + ":" + string(f.Code))
	fault.CreateElement("faultstring").SetText(f.String)
	if f.Detail != "" {
		fault.CreateElement("detail").SetText(f.Detail)
	}
	return doc
}

func frame() (*etree.Document, *etree.Element) {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)
	root := doc.CreateElement(Prefix + ":Envelope")
	root.CreateAttr("xmlns:"+Prefix, NS)
	return doc, root.CreateElement(Prefix + ":Body")
}
