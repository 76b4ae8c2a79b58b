package xsdvalid

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/beevik/etree"
	"github.com/google/go-cmp/cmp"

	"github.com/broady/soagw/soagen/provider"
	"github.com/broady/soagw/soagen/xsd"
)

const testNS = "urn:test"

type Echo struct {
	Name  string `xsd:"order:1;maxLength:10"`
	Count int    `xsd:"order:2"`
}

func (e *Echo) Response(context.Context) (string, error) { return e.Name, nil }

type OneOf struct {
	A string `xsd:"choice"`
	B string `xsd:"choice"`
}

type Address struct {
	Street string `xsd:"order:1"`
}

type Lists struct {
	Tags    []string  `xsd:"order:1;minOccurs:0"`
	Codes   []string  `xsd:"order:2;maxOccurs:3;enumeration:X,Y"`
	Parcels []Address `xsd:"order:3"`
}

func generated(t *testing.T, typ reflect.Type) *Validator {
	t.Helper()
	b := provider.NewBuilder(nil)
	if _, err := b.Build(typ); err != nil {
		t.Fatalf("Build(%v) error = %v", typ, err)
	}
	doc, err := xsd.TypeSchema(testNS, b.Types(), typ)
	if err != nil {
		t.Fatalf("TypeSchema(%v) error = %v", typ, err)
	}
	v, err := Compile(doc)
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}
	return v
}

func validate(t *testing.T, v *Validator, instance string) []Failure {
	t.Helper()
	doc := etree.NewDocument()
	if err := doc.ReadFromString(instance); err != nil {
		t.Fatalf("ReadFromString() error = %v", err)
	}
	return v.ValidateDocument(doc)
}

func TestValidate_Echo(t *testing.T) {
	v := generated(t, reflect.TypeFor[Echo]())
	tests := []struct {
		name     string
		instance string
		want     []Failure
	}{
		{
			name:     "valid",
			instance: `<t:Echo xmlns:t="urn:test"><t:Name>hi</t:Name><t:Count>3</t:Count></t:Echo>`,
		},
		{
			name:     "default namespace",
			instance: `<Echo xmlns="urn:test"><Name>hi</Name><Count>-3</Count></Echo>`,
		},
		{
			name:     "name too long",
			instance: `<t:Echo xmlns:t="urn:test"><t:Name>abcdefghijk</t:Name><t:Count>3</t:Count></t:Echo>`,
			want: []Failure{{Error, "/Echo/Name",
				"cvc-maxLength-valid: Value 'abcdefghijk' with length = '11' is not facet-valid with respect to maxLength '10' for type '#AnonType_NameEcho'."}},
		},
		{
			name:     "bad integer",
			instance: `<t:Echo xmlns:t="urn:test"><t:Name>hi</t:Name><t:Count>abc</t:Count></t:Echo>`,
			want:     []Failure{{Error, "/Echo/Count", "cvc-datatype-valid.1.2.1: 'abc' is not a valid value for 'integer'."}},
		},
		{
			name:     "failures in document order",
			instance: `<t:Echo xmlns:t="urn:test"><t:Name>abcdefghijk</t:Name><t:Count>x</t:Count></t:Echo>`,
			want: []Failure{
				{Error, "/Echo/Name", "cvc-maxLength-valid: Value 'abcdefghijk' with length = '11' is not facet-valid with respect to maxLength '10' for type '#AnonType_NameEcho'."},
				{Error, "/Echo/Count", "cvc-datatype-valid.1.2.1: 'x' is not a valid value for 'integer'."},
			},
		},
		{
			name:     "incomplete",
			instance: `<t:Echo xmlns:t="urn:test"><t:Name>hi</t:Name></t:Echo>`,
			want:     []Failure{{Error, "/Echo", `cvc-complex-type.2.4.b: The content of element 't:Echo' is not complete. One of '{"urn:test":Count}' is expected.`}},
		},
		{
			name:     "unexpected element",
			instance: `<t:Echo xmlns:t="urn:test"><t:Bogus/><t:Name>hi</t:Name><t:Count>1</t:Count></t:Echo>`,
			want:     []Failure{{Error, "/Echo/Bogus", `cvc-complex-type.2.4.a: Invalid content was found starting with element 't:Bogus'. One of '{"urn:test":Name}' is expected.`}},
		},
		{
			name:     "unqualified child",
			instance: `<t:Echo xmlns:t="urn:test"><Name>hi</Name><t:Count>1</t:Count></t:Echo>`,
			want:     []Failure{{Error, "/Echo/Name", `cvc-complex-type.2.4.a: Invalid content was found starting with element 'Name'. One of '{"urn:test":Name}' is expected.`}},
		},
		{
			name:     "trailing element",
			instance: `<t:Echo xmlns:t="urn:test"><t:Name>hi</t:Name><t:Count>1</t:Count><t:Count>2</t:Count></t:Echo>`,
			want:     []Failure{{Error, "/Echo/Count[2]", "cvc-complex-type.2.4.d: Invalid content was found starting with element 't:Count'. No child element is expected at this point."}},
		},
		{
			name:     "text in element-only content",
			instance: `<t:Echo xmlns:t="urn:test">oops<t:Name>hi</t:Name><t:Count>1</t:Count></t:Echo>`,
			want:     []Failure{{Error, "/Echo", "cvc-complex-type.2.3: Element 't:Echo' cannot have character [children], because the type's content type is element-only."}},
		},
		{
			name:     "unknown root",
			instance: `<t:Other xmlns:t="urn:test"/>`,
			want:     []Failure{{Error, "/Other", "cvc-elt.1.a: Cannot find the declaration of element 't:Other'."}},
		},
		{
			name:     "root outside target namespace",
			instance: `<Echo><Name>hi</Name><Count>1</Count></Echo>`,
			want:     []Failure{{Error, "/Echo", "cvc-elt.1.a: Cannot find the declaration of element 'Echo'."}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := validate(t, v, tt.instance)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Validate() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestValidate_Choice(t *testing.T) {
	v := generated(t, reflect.TypeFor[OneOf]())
	tests := []struct {
		instance string
		want     string
	}{
		{`<OneOf xmlns="urn:test"><A>x</A></OneOf>`, ""},
		{`<OneOf xmlns="urn:test"><B>x</B></OneOf>`, ""},
		{`<OneOf xmlns="urn:test"><A>x</A><B>y</B></OneOf>`,
			"cvc-complex-type.2.4.d: Invalid content was found starting with element 'B'. No child element is expected at this point."},
		{`<OneOf xmlns="urn:test"/>`,
			`cvc-complex-type.2.4.b: The content of element 'OneOf' is not complete. One of '{"urn:test":A, "urn:test":B}' is expected.`},
	}
	for _, tt := range tests {
		got := strings.Join(Messages(validate(t, v, tt.instance)), "\n")
		if got != tt.want {
			t.Errorf("Validate(%s) = %q, want %q", tt.instance, got, tt.want)
		}
	}
}

func TestValidate_Arrays(t *testing.T) {
	v := generated(t, reflect.TypeFor[Lists]())
	tests := []struct {
		name     string
		instance string
		want     []string
	}{
		{
			name:     "valid without optional container",
			instance: `<Lists xmlns="urn:test"><ArrayOfCodes><Codes>X</Codes></ArrayOfCodes><ArrayOfParcels><Parcels><Street>Main</Street></Parcels></ArrayOfParcels></Lists>`,
		},
		{
			name: "valid with many items",
			instance: `<Lists xmlns="urn:test"><ArrayOfTags><Tags>a</Tags><Tags>b</Tags><Tags>c</Tags><Tags>d</Tags></ArrayOfTags>` +
				`<ArrayOfCodes><Codes>X</Codes><Codes>Y</Codes><Codes>X</Codes></ArrayOfCodes><ArrayOfParcels><Parcels><Street>Main</Street></Parcels></ArrayOfParcels></Lists>`,
		},
		{
			name:     "too many items",
			instance: `<Lists xmlns="urn:test"><ArrayOfCodes><Codes>X</Codes><Codes>X</Codes><Codes>X</Codes><Codes>X</Codes></ArrayOfCodes><ArrayOfParcels><Parcels><Street>Main</Street></Parcels></ArrayOfParcels></Lists>`,
			want:     []string{"cvc-complex-type.2.4.d: Invalid content was found starting with element 'Codes'. No child element is expected at this point."},
		},
		{
			name:     "item facet",
			instance: `<Lists xmlns="urn:test"><ArrayOfCodes><Codes>Z</Codes></ArrayOfCodes><ArrayOfParcels><Parcels><Street>Main</Street></Parcels></ArrayOfParcels></Lists>`,
			want:     []string{"cvc-enumeration-valid: Value 'Z' is not facet-valid with respect to enumeration '[X, Y]'. It must be a value from the enumeration."},
		},
		{
			name:     "bare item outside container",
			instance: `<Lists xmlns="urn:test"><Codes>X</Codes></Lists>`,
			want:     []string{`cvc-complex-type.2.4.a: Invalid content was found starting with element 'Codes'. One of '{"urn:test":ArrayOfTags, "urn:test":ArrayOfCodes}' is expected.`},
		},
		{
			name:     "nested complex item",
			instance: `<Lists xmlns="urn:test"><ArrayOfCodes><Codes>X</Codes></ArrayOfCodes><ArrayOfParcels><Parcels/></ArrayOfParcels></Lists>`,
			want:     []string{`cvc-complex-type.2.4.b: The content of element 'Parcels' is not complete. One of '{"urn:test":Street}' is expected.`},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Messages(validate(t, v, tt.instance))
			if len(got) == 0 {
				got = nil
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Validate() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

const builtinSchema = `<?xml version="1.0" encoding="UTF-8"?>
<xs:schema xmlns:xs="http://www.w3.org/2001/XMLSchema" xmlns:b="urn:b" targetNamespace="urn:b" elementFormDefault="qualified">
  <xs:simpleType name="Code">
    <xs:restriction base="xs:string">
      <xs:pattern value="[A-Z]{3}"/>
      <xs:pattern value="[0-9]{3}"/>
    </xs:restriction>
  </xs:simpleType>
  <xs:simpleType name="ShortCode">
    <xs:restriction base="b:Code">
      <xs:maxLength value="3"/>
    </xs:restriction>
  </xs:simpleType>
  <xs:element name="T">
    <xs:complexType>
      <xs:sequence>
        <xs:element name="I" type="xs:integer" minOccurs="0"/>
        <xs:element name="By" type="xs:byte" minOccurs="0"/>
        <xs:element name="D" type="xs:decimal" minOccurs="0"/>
        <xs:element name="B" type="xs:boolean" minOccurs="0"/>
        <xs:element name="Dt" type="xs:date" minOccurs="0"/>
        <xs:element name="Ts" type="xs:dateTime" minOccurs="0"/>
        <xs:element name="Bin" type="xs:base64Binary" minOccurs="0"/>
        <xs:element name="F" type="xs:double" minOccurs="0"/>
        <xs:element name="C" type="b:ShortCode" minOccurs="0"/>
        <xs:element name="E" minOccurs="0">
          <xs:simpleType>
            <xs:restriction base="xs:string">
              <xs:enumeration value="X"/>
              <xs:enumeration value="Y"/>
            </xs:restriction>
          </xs:simpleType>
        </xs:element>
        <xs:element name="R" minOccurs="0">
          <xs:simpleType>
            <xs:restriction base="xs:integer">
              <xs:minInclusive value="1"/>
              <xs:maxExclusive value="10"/>
            </xs:restriction>
          </xs:simpleType>
        </xs:element>
        <xs:element name="S" minOccurs="0">
          <xs:simpleType>
            <xs:restriction base="xs:string">
              <xs:minLength value="2"/>
            </xs:restriction>
          </xs:simpleType>
        </xs:element>
        <xs:element name="N" type="xs:string" minOccurs="0" nillable="true"/>
        <xs:element name="U" type="xs:duration" minOccurs="0"/>
      </xs:sequence>
    </xs:complexType>
  </xs:element>
</xs:schema>`

func TestValidate_Builtins(t *testing.T) {
	v, err := CompileBytes([]byte(builtinSchema))
	if err != nil {
		t.Fatalf("CompileBytes() error = %v", err)
	}
	tests := []struct {
		field string
		want  string
	}{
		{`<b:I>+12</b:I>`, ""},
		{`<b:I> 12 </b:I>`, ""},
		{`<b:I>1.5</b:I>`, "cvc-datatype-valid.1.2.1: '1.5' is not a valid value for 'integer'."},
		{`<b:I>99999999999999999999999</b:I>`, ""},
		{`<b:By>-128</b:By>`, ""},
		{`<b:By>200</b:By>`, "cvc-maxInclusive-valid: Value '200' is not facet-valid with respect to maxInclusive '127' for type 'byte'."},
		{`<b:D>.5</b:D>`, ""},
		{`<b:D>-3.</b:D>`, ""},
		{`<b:D>1e3</b:D>`, "cvc-datatype-valid.1.2.1: '1e3' is not a valid value for 'decimal'."},
		{`<b:B>1</b:B>`, ""},
		{`<b:B>yes</b:B>`, "cvc-datatype-valid.1.2.1: 'yes' is not a valid value for 'boolean'."},
		{`<b:Dt>2024-02-29Z</b:Dt>`, ""},
		{`<b:Dt>2023-02-29</b:Dt>`, "cvc-datatype-valid.1.2.1: '2023-02-29' is not a valid value for 'date'."},
		{`<b:Ts>2024-01-01T10:00:00.5+02:00</b:Ts>`, ""},
		{`<b:Ts>2024-01-01 10:00</b:Ts>`, "cvc-datatype-valid.1.2.1: '2024-01-01 10:00' is not a valid value for 'dateTime'."},
		{`<b:Bin>AAEC+g==</b:Bin>`, ""},
		{`<b:Bin>!!</b:Bin>`, "cvc-datatype-valid.1.2.1: '!!' is not a valid value for 'base64Binary'."},
		{`<b:F>-INF</b:F>`, ""},
		{`<b:F>1e5</b:F>`, ""},
		{`<b:F>abc</b:F>`, "cvc-datatype-valid.1.2.1: 'abc' is not a valid value for 'double'."},
		{`<b:C>ABC</b:C>`, ""},
		{`<b:C>123</b:C>`, ""},
		{`<b:C>AB1</b:C>`, "cvc-pattern-valid: Value 'AB1' is not facet-valid with respect to pattern '[A-Z]{3}' for type 'Code'."},
		{`<b:C>ABCD</b:C>`, "cvc-pattern-valid: Value 'ABCD' is not facet-valid with respect to pattern '[A-Z]{3}' for type 'Code'."},
		{`<b:E>Y</b:E>`, ""},
		{`<b:E>Z</b:E>`, "cvc-enumeration-valid: Value 'Z' is not facet-valid with respect to enumeration '[X, Y]'. It must be a value from the enumeration."},
		{`<b:R> 5 </b:R>`, ""},
		{`<b:R>10</b:R>`, "cvc-maxExclusive-valid: Value '10' is not facet-valid with respect to maxExclusive '10' for type '#AnonType_RT'."},
		{`<b:R>0</b:R>`, "cvc-minInclusive-valid: Value '0' is not facet-valid with respect to minInclusive '1' for type '#AnonType_RT'."},
		{`<b:S>a</b:S>`, "cvc-minLength-valid: Value 'a' with length = '1' is not facet-valid with respect to minLength '2' for type '#AnonType_ST'."},
		{`<b:S>éé</b:S>`, ""},
		{`<b:N xsi:nil="true"/>`, ""},
		{`<b:N xsi:nil="true">x</b:N>`, "cvc-elt.3.2.1: Element 'b:N' cannot have character or element information [children], because 'http://www.w3.org/2001/XMLSchema-instance,nil' is specified."},
		{`<b:I xsi:nil="true"/>`, "cvc-elt.3.1: Attribute 'http://www.w3.org/2001/XMLSchema-instance,nil' must not appear on element 'b:I', because the {nillable} property of 'b:I' is false.\n" +
			"cvc-datatype-valid.1.2.1: '' is not a valid value for 'integer'."},
		{`<b:I><b:X/></b:I>`, "cvc-type.3.1.2: Element 'b:I' is a simple type, so it must have no element information item [children]."},
		{`<b:I foo="1">1</b:I>`, "cvc-type.3.1.1: Element 'b:I' is a simple type, so it cannot have attributes, excepting those whose namespace name is identical to 'http://www.w3.org/2001/XMLSchema-instance' and whose [local name] is one of 'type', 'nil', 'schemaLocation' or 'noNamespaceSchemaLocation'. However, the attribute, 'foo' was found."},
		{`<b:U>anything goes</b:U>`, ""},
	}
	for _, tt := range tests {
		t.Run(tt.field, func(t *testing.T) {
			instance := `<b:T xmlns:b="urn:b" xmlns:xsi="http://www.w3.org/2001/XMLSchema-instance">` + tt.field + `</b:T>`
			got := strings.Join(Messages(validate(t, v, instance)), "\n")
			if got != tt.want {
				t.Errorf("Validate() =\n%s\nwant:\n%s", got, tt.want)
			}
		})
	}
}

func TestValidate_AttributeOnComplex(t *testing.T) {
	v := generated(t, reflect.TypeFor[Echo]())
	got := validate(t, v, `<Echo xmlns="urn:test" id="1"><Name>a</Name><Count>1</Count></Echo>`)
	want := []Failure{{Error, "/Echo", "cvc-complex-type.3.2.2: Attribute 'id' is not allowed to appear in element 'Echo'."}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Validate() mismatch (-want +got):\n%s", diff)
	}
}

func TestCompile_Errors(t *testing.T) {
	schema := func(body string) string {
		return `<xs:schema xmlns:xs="http://www.w3.org/2001/XMLSchema" xmlns:b="urn:b" targetNamespace="urn:b">` + body + `</xs:schema>`
	}
	tests := []struct {
		name   string
		schema string
	}{
		{"not a schema", `<schema/>`},
		{"not xml", `<xs:schema`},
		{"unresolved type", schema(`<xs:element name="A" type="b:Missing"/>`)},
		{"unbound prefix", schema(`<xs:element name="A" type="q:Missing"/>`)},
		{"length on integer", schema(`<xs:element name="A"><xs:simpleType><xs:restriction base="xs:integer"><xs:maxLength value="2"/></xs:restriction></xs:simpleType></xs:element>`)},
		{"bound on string", schema(`<xs:element name="A"><xs:simpleType><xs:restriction base="xs:string"><xs:minInclusive value="2"/></xs:restriction></xs:simpleType></xs:element>`)},
		{"bad pattern", schema(`<xs:element name="A"><xs:simpleType><xs:restriction base="xs:string"><xs:pattern value="("/></xs:restriction></xs:simpleType></xs:element>`)},
		{"bad occurs", schema(`<xs:element name="A"><xs:complexType><xs:sequence><xs:element name="B" type="xs:string" minOccurs="x"/></xs:sequence></xs:complexType></xs:element>`)},
		{"min above max", schema(`<xs:element name="A"><xs:complexType><xs:sequence><xs:element name="B" type="xs:string" minOccurs="3" maxOccurs="2"/></xs:sequence></xs:complexType></xs:element>`)},
		{"circular simple types", schema(`<xs:simpleType name="X"><xs:restriction base="b:Y"/></xs:simpleType><xs:simpleType name="Y"><xs:restriction base="b:X"/></xs:simpleType>`)},
		{"duplicate element", schema(`<xs:element name="A" type="xs:string"/><xs:element name="A" type="xs:int"/>`)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := CompileBytes([]byte(tt.schema)); !errors.Is(err, ErrCompile) {
				t.Errorf("CompileBytes() error = %v, want ErrCompile", err)
			}
		})
	}
}

func TestCompile_DoesNotShareNodes(t *testing.T) {
	b := provider.NewBuilder(nil)
	if _, err := b.Build(reflect.TypeFor[Echo]()); err != nil {
		t.Fatal(err)
	}
	doc, err := xsd.TypeSchema(testNS, b.Types(), reflect.TypeFor[Echo]())
	if err != nil {
		t.Fatal(err)
	}
	v, err := Compile(doc)
	if err != nil {
		t.Fatal(err)
	}
	doc.FindElement("//xs:maxLength").CreateAttr("value", "1")
	if got := validate(t, v, `<Echo xmlns="urn:test"><Name>abc</Name><Count>1</Count></Echo>`); got != nil {
		t.Errorf("compiled validator changed with its source document: %v", got)
	}
}
