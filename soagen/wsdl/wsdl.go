// Package wsdl assembles WSDL 1.1 service descriptions for single operations.
package wsdl

import (
	"fmt"

	"github.com/beevik/etree"

	"github.com/broady/soagw/soagen/ir"
	"github.com/broady/soagw/soagen/xsd"
)

// Namespaces of WSDL 1.1 and its SOAP binding.
const (
	NS            = "http://schemas.xmlsoap.org/wsdl/"
	SOAPNS        = "http://schemas.xmlsoap.org/wsdl/soap/"
	HTTPTransport = "http://schemas.xmlsoap.org/soap/http"
)

// Fixed component names. Each description carries exactly one of each.
const (
	InputMessage  = "Input"
	OutputMessage = "Output"
	PortType      = "PortType"
	ServiceName   = "Service"
	PortName      = "Port"
)

// DescriptionNamespace returns the target namespace of descriptions for
// types in namespace.
func DescriptionNamespace(namespace string) string {
	return namespace + ".wsdl"
}

// BindingName returns the binding name of an operation.
func BindingName(op string) string {
	return op + "Binding"
}

// Description builds the document/literal description of op served at endpoint.
// The embedded schema declares the request element and the response element;
// a complex response is expanded anonymously and a scalar response is typed
// with its builtin.
func Description(namespace string, types ir.TypeTable, op *ir.Operation, endpoint string) (*etree.Document, error) {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)
	root := doc.CreateElement("wsdl:definitions")
	root.CreateAttr("xmlns:wsdl", NS)
	root.CreateAttr("xmlns:soap", SOAPNS)
	root.CreateAttr("xmlns:"+ir.TypesPrefix, namespace)
	root.CreateAttr("xmlns:tns", DescriptionNamespace(namespace))
	root.CreateAttr("targetNamespace", DescriptionNamespace(namespace))

	schema := root.CreateElement("wsdl:types").CreateElement(ir.SchemaPrefix + ":schema")
	xsd.SetSchemaAttrs(schema, namespace)
	g := xsd.New(types, schema)
	if err := g.Element(op.RequestName(), op.Request); err != nil {
		return nil, fmt.Errorf("description for %s: %w", op.Name, err)
	}
	switch {
	case op.ResponseType == op.Request:
		// The request element already declares the response.
	case op.ResponseType != nil:
		if err := g.Element(op.ResponseName, op.ResponseType); err != nil {
			return nil, fmt.Errorf("description for %s: %w", op.Name, err)
		}
	default:
		g.ScalarElement(op.ResponseName, op.ResponseScalar.WireType())
	}

	message(root, InputMessage, op.RequestName())
	message(root, OutputMessage, op.ResponseName)

	pt := root.CreateElement("wsdl:portType")
	pt.CreateAttr("name", PortType)
	ptOp := pt.CreateElement("wsdl:operation")
	ptOp.CreateAttr("name", op.Name)
	ptOp.CreateElement("wsdl:input").CreateAttr("message", "tns:"+InputMessage)
	ptOp.CreateElement("wsdl:output").CreateAttr("message", "tns:"+OutputMessage)

	binding := root.CreateElement("wsdl:binding")
	binding.CreateAttr("name", BindingName(op.Name))
	binding.CreateAttr("type", "tns:"+PortType)
	sb := binding.CreateElement("soap:binding")
	sb.CreateAttr("style", "document")
	sb.CreateAttr("transport", HTTPTransport)
	bOp := binding.CreateElement("wsdl:operation")
	bOp.CreateAttr("name", op.Name)
	bOp.CreateElement("soap:operation").CreateAttr("soapAction", op.Name)
	bOp.CreateElement("wsdl:input").CreateElement("soap:body").CreateAttr("use", "literal")
	bOp.CreateElement("wsdl:output").CreateElement("soap:body").CreateAttr("use", "literal")

	svc := root.CreateElement("wsdl:service")
	svc.CreateAttr("name", ServiceName)
	port := svc.CreateElement("wsdl:port")
	port.CreateAttr("name", PortName)
	port.CreateAttr("binding", "tns:"+BindingName(op.Name))
	port.CreateElement("soap:address").CreateAttr("location", endpoint)

	doc.Indent(2)
	return doc, nil
}

func message(root *etree.Element, name, element string) {
	m := root.CreateElement("wsdl:message")
	m.CreateAttr("name", name)
	part := m.CreateElement("wsdl:part")
	part.CreateAttr("name", "body")
	part.CreateAttr("element", ir.TypesPrefix+":"+element)
}
