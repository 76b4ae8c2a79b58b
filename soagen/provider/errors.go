package provider

import "errors"

// Registration errors. Each is wrapped with the offending type or field.
var (
	// ErrInvalidRequestType is returned for a request type that does not
	// declare Response(context.Context) (R, error) directly on itself.
	ErrInvalidRequestType = errors.New("invalid request type")

	// ErrNotConstructible is returned for complex types that cannot be
	// instantiated from their descriptor: interfaces and anonymous structs.
	ErrNotConstructible = errors.New("type is not constructible")

	// ErrUnsupportedType is returned for kinds with no wire representation.
	ErrUnsupportedType = errors.New("unsupported type")

	// ErrInvalidTag is returned for malformed structural metadata.
	ErrInvalidTag = errors.New("invalid xsd tag")

	// ErrNameConflict is returned when two distinct types share a simple name.
	ErrNameConflict = errors.New("complex type name conflict")
)
