package ir

import "reflect"

// Operation is a registered operation: a name bound to a request type whose
// Response method produces the result.
type Operation struct {
	// Name is the registry key, matched case-sensitively against the action
	// supplied with each call.
	Name string

	// Request describes the request type.
	Request *TypeDescriptor

	// Method is the index of the Response method in the method set of the
	// pointer to the request type.
	Method int

	// Response is the declared result type of the Response method.
	Response reflect.Type

	// ResponseName is the element name of the success payload: the simple
	// name of the result type with pointers removed. Predeclared scalar
	// types use their builtin name, e.g. "boolean" for bool.
	ResponseName string

	// ResponseScalar is the scalar kind of the result, or NotScalar when the
	// result is a complex type described by ResponseType.
	ResponseScalar ScalarKind

	// ResponseType describes a complex result. Nil for scalar results.
	ResponseType *TypeDescriptor
}

// RequestName is the element name of the request payload.
func (op *Operation) RequestName() string {
	return op.Request.Name
}
