package soagw

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/beevik/etree"
	"github.com/go-playground/validator/v10"

	"github.com/broady/soagw/envelope"
	"github.com/broady/soagw/soagen"
	"github.com/broady/soagw/soagen/provider"
)

// FaultCode is the SOAP 1.1 fault code of a Fault.
type FaultCode = envelope.Code

const (
	// CodeClient reports a problem with the inbound message.
	CodeClient FaultCode = envelope.Client
	// CodeServer reports a failure while processing a valid message.
	CodeServer FaultCode = envelope.Server
)

// Registration and lookup errors.
var (
	ErrUnrecognizedOperation = soagen.ErrUnrecognizedOperation
	ErrInvalidRequestType    = provider.ErrInvalidRequestType
	ErrNotConstructible      = provider.ErrNotConstructible
	ErrUnsupportedType       = provider.ErrUnsupportedType
	ErrInvalidTag            = provider.ErrInvalidTag
	ErrNameConflict          = provider.ErrNameConflict
)

// Fault is the outbound error value of a call. Operations may return a
// *Fault to control the fault code and string sent to the caller.
type Fault struct {
	Code    FaultCode
	String  string
	Details map[string]any
}

func (f *Fault) Error() string {
	return fmt.Sprintf("%s: %s", f.Code, f.String)
}

// NewFault creates a new fault.
func NewFault(code FaultCode, s string) *Fault {
	return &Fault{Code: code, String: s}
}

// Faultf creates a new fault with a formatted string.
func Faultf(code FaultCode, format string, args ...any) *Fault {
	return &Fault{Code: code, String: fmt.Sprintf(format, args...)}
}

// WithDetail returns a new Fault with the key-value pair added to details.
func (f *Fault) WithDetail(key string, value any) *Fault {
	details := make(map[string]any, len(f.Details)+1)
	for k, v := range f.Details {
		details[k] = v
	}
	details[key] = value
	return &Fault{Code: f.Code, String: f.String, Details: details}
}

// document renders the fault as a complete envelope. Details become child
// elements of the detail element in key order.
func (f *Fault) document() *etree.Document {
	doc := envelope.FaultDocument(&envelope.Fault{Code: f.Code, String: f.String})
	if len(f.Details) == 0 {
		return doc
	}
	keys := make([]string, 0, len(f.Details))
	for k := range f.Details {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	detail := doc.FindElement("//" + envelope.Prefix + ":Fault").CreateElement("detail")
	for _, k := range keys {
		detail.CreateElement(k).SetText(fmt.Sprint(f.Details[k]))
	}
	return doc
}

// ErrorTransformer maps an invocation error to a fault.
// If it returns nil, DefaultErrorTransformer is applied.
type ErrorTransformer func(error) *Fault

// DefaultErrorTransformer maps operation errors to Server faults rendered as
// "<Kind> : <message>", where Kind is the name of the first named error type
// in the error's chain.
func DefaultErrorTransformer(err error) *Fault {
	if err == nil {
		return nil
	}

	var f *Fault
	if errors.As(err, &f) {
		return f
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return kindFault(CodeServer, "DeadlineExceeded", err)
	case errors.Is(err, context.Canceled):
		return kindFault(CodeServer, "Canceled", err)
	}

	var valErrs validator.ValidationErrors
	if errors.As(err, &valErrs) {
		details := make(map[string]any, len(valErrs))
		msgs := make([]string, 0, len(valErrs))
		for _, ve := range valErrs {
			details[ve.Field()] = ve.Tag()
			msgs = append(msgs, ve.Field()+": failed "+ve.Tag()+" validation")
		}
		return &Fault{
			Code:    CodeClient,
			String:  "ValidationErrors : " + strings.Join(msgs, "\n"),
			Details: details,
		}
	}

	return kindFault(CodeServer, errorKind(err), err)
}

func kindFault(code FaultCode, kind string, err error) *Fault {
	return &Fault{Code: code, String: kind + " : " + err.Error()}
}

// errorKind names the first exported error type in err's chain, so wrapped
// errors report the type the caller chose rather than the wrapper.
func errorKind(err error) string {
	for e := err; e != nil; e = errors.Unwrap(e) {
		t := reflect.TypeOf(e)
		for t.Kind() == reflect.Pointer {
			t = t.Elem()
		}
		if name := t.Name(); name != "" && name[0] >= 'A' && name[0] <= 'Z' {
			return name
		}
	}
	return "Error"
}
