package ir

import (
	"reflect"
	"time"
)

// Namespaces used by generated documents.
const (
	XMLSchemaNS         = "http://www.w3.org/2001/XMLSchema"
	XMLSchemaInstanceNS = "http://www.w3.org/2001/XMLSchema-instance"
)

// Prefixes used by generated documents. SchemaPrefix binds the XML Schema
// namespace and TypesPrefix binds the gateway's target namespace.
const (
	SchemaPrefix = "xs"
	TypesPrefix  = "soar"
)

// ScalarKind classifies simple (non-complex) values.
type ScalarKind int

const (
	NotScalar ScalarKind = iota
	String
	Boolean
	Integer
	Decimal
	DateOnly
	DateTime
	Base64
)

var scalarWireNames = [...]string{
	NotScalar: "",
	String:    "string",
	Boolean:   "boolean",
	Integer:   "integer",
	Decimal:   "decimal",
	DateOnly:  "date",
	DateTime:  "dateTime",
	Base64:    "base64Binary",
}

// Builtin returns the XML Schema builtin name, e.g. "integer".
func (k ScalarKind) Builtin() string {
	if k < 0 || int(k) >= len(scalarWireNames) {
		return ""
	}
	return scalarWireNames[k]
}

// WireType returns the prefixed builtin, e.g. "xs:integer".
func (k ScalarKind) WireType() string {
	if k == NotScalar {
		return ""
	}
	return SchemaPrefix + ":" + k.Builtin()
}

func (k ScalarKind) String() string {
	if k == NotScalar {
		return "complex"
	}
	return k.Builtin()
}

// Date is a calendar date carried on the wire as xs:date.
// The time of day and location are not transmitted.
type Date struct {
	time.Time
}

// DateLayout and DateTimeLayout are the wire formats of xs:date and xs:dateTime values.
const (
	DateLayout     = "2006-01-02"
	DateTimeLayout = "2006-01-02T15:04:05"
)

// NewDate returns the date at midnight UTC.
func NewDate(year int, month time.Month, day int) Date {
	return Date{time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

func (d Date) String() string { return d.Format(DateLayout) }

var (
	timeType  = reflect.TypeFor[time.Time]()
	dateType  = reflect.TypeFor[Date]()
	bytesType = reflect.TypeFor[[]byte]()
)

// ScalarOf classifies t, dereferencing pointers.
// Named types with a scalar underlying kind are scalars.
func ScalarOf(t reflect.Type) ScalarKind {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	switch t {
	case timeType:
		return DateTime
	case dateType:
		return DateOnly
	}
	switch t.Kind() {
	case reflect.Bool:
		return Boolean
	case reflect.String:
		return String
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return Integer
	case reflect.Float32, reflect.Float64:
		return Decimal
	case reflect.Slice:
		if isBytes(t) {
			return Base64
		}
	}
	return NotScalar
}

// ScalarFromWireType maps a prefixed builtin back to its kind.
// Unknown builtins and non-schema types map to String.
func ScalarFromWireType(wireType string) ScalarKind {
	local := wireType
	for i := len(wireType) - 1; i >= 0; i-- {
		if wireType[i] == ':' {
			local = wireType[i+1:]
			break
		}
	}
	for k, name := range scalarWireNames {
		if k != int(NotScalar) && name == local {
			return ScalarKind(k)
		}
	}
	return String
}

// isBytes reports whether t is a byte slice, which is a scalar rather than an array.
func isBytes(t reflect.Type) bool {
	return t == bytesType || (t.Kind() == reflect.Slice && t.Elem().Kind() == reflect.Uint8)
}
