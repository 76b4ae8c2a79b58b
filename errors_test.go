package soagw

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/beevik/etree"
	"github.com/go-playground/validator/v10"
	"github.com/google/go-cmp/cmp"
	"github.com/jackc/pgx/v5/pgconn"
)

type QuotaError struct {
	Limit int
}

func (e *QuotaError) Error() string { return fmt.Sprintf("quota of %d exceeded", e.Limit) }

type Lookup struct {
	ID int `xsd:"order:1"`
}

func (l *Lookup) Response(ctx context.Context) (*ErrorResponse, error) {
	return NewErrorResponse("0", fmt.Sprintf("no record %d", l.ID)), nil
}

func TestFault(t *testing.T) {
	f := Faultf(CodeClient, "bad %s", "input")
	if f.Code != CodeClient || f.String != "bad input" {
		t.Errorf("Faultf() = %+v", f)
	}
	if got := f.Error(); got != "Client: bad input" {
		t.Errorf("Error() = %q", got)
	}

	d := f.WithDetail("field", "Name")
	if f.Details != nil {
		t.Error("WithDetail must not modify the receiver")
	}
	if d.Details["field"] != "Name" {
		t.Errorf("Details = %v", d.Details)
	}
}

func TestFault_Document(t *testing.T) {
	f := NewFault(CodeServer, "boom").WithDetail("b", 2).WithDetail("a", "x")
	doc := f.document()
	fault := doc.FindElement("//SOAP-ENV:Fault")
	if fault == nil {
		t.Fatal("no Fault element")
	}
	if got := fault.SelectElement("faultcode").Text(); got != "SOAP-ENV:Server" {
		t.Errorf("faultcode = %q", got)
	}
	var keys []string
	for _, el := range fault.SelectElement("detail").ChildElements() {
		keys = append(keys, el.Tag+"="+el.Text())
	}
	if diff := cmp.Diff([]string{"a=x", "b=2"}, keys); diff != "" {
		t.Errorf("detail mismatch (-want +got):\n%s", diff)
	}

	plain := NewFault(CodeClient, "x").document()
	if plain.FindElement("//detail") != nil {
		t.Error("a fault without details must not render a detail element")
	}
}

func TestDefaultErrorTransformer(t *testing.T) {
	type fieldCheck struct {
		Name string `validate:"required"`
	}
	valErr := validator.New().Struct(fieldCheck{})

	tests := []struct {
		name     string
		input    error
		wantCode FaultCode
		wantStr  string
	}{
		{"fault passthrough", NewFault(CodeClient, "no"), CodeClient, "no"},
		{"wrapped fault", fmt.Errorf("op: %w", NewFault(CodeClient, "no")), CodeClient, "no"},
		{"plain error", errors.New("boom"), CodeServer, "Error : boom"},
		{"typed error", &QuotaError{Limit: 3}, CodeServer, "QuotaError : quota of 3 exceeded"},
		{"wrapped typed error", fmt.Errorf("charge: %w", &QuotaError{Limit: 1}), CodeServer, "QuotaError : charge: quota of 1 exceeded"},
		{"panic", &PanicError{Value: "nil map"}, CodeServer, "PanicError : nil map"},
		{"deadline", fmt.Errorf("query: %w", context.DeadlineExceeded), CodeServer, "DeadlineExceeded : query: context deadline exceeded"},
		{"canceled", context.Canceled, CodeServer, "Canceled : context canceled"},
		{"postgres", &pgconn.PgError{Severity: "ERROR", Code: "23505", Message: "duplicate key"}, CodeServer, "PgError : ERROR: duplicate key (SQLSTATE 23505)"},
		{"validation", valErr, CodeClient, "ValidationErrors : Name: failed required validation"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := DefaultErrorTransformer(tt.input)
			if f.Code != tt.wantCode {
				t.Errorf("Code = %s, want %s", f.Code, tt.wantCode)
			}
			if f.String != tt.wantStr {
				t.Errorf("String = %q, want %q", f.String, tt.wantStr)
			}
		})
	}

	if DefaultErrorTransformer(nil) != nil {
		t.Error("expected nil fault for nil error")
	}
}

func TestErrorResponseFrom(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want *ErrorResponse
	}{
		{"nil", nil, nil},
		{"plain", errors.New("disk full"), &ErrorResponse{ErrorCode: "0", ErrorMessage: "disk full"}},
		{
			"raised by application",
			fmt.Errorf("call: %w", &pgconn.PgError{Code: "P0001", Message: " account is locked "}),
			&ErrorResponse{ErrorCode: "P0001", ErrorMessage: "account is locked"},
		},
		{
			"constraint",
			&pgconn.PgError{Code: "23505", Message: "duplicate key value", Detail: "DETAIL: Key (id)=(1) already exists."},
			&ErrorResponse{ErrorCode: "23505", ErrorMessage: "duplicate key value Key (id)=(1) already exists."},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, ErrorResponseFrom(tt.err)); diff != "" {
				t.Errorf("ErrorResponseFrom() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestNewErrorResponse_Truncates(t *testing.T) {
	r := NewErrorResponse("ABCDEFGHIJKL", strings.Repeat("é", 1200))
	if r.ErrorCode != "ABCDEFGHIJ" {
		t.Errorf("ErrorCode = %q", r.ErrorCode)
	}
	if n := len([]rune(r.ErrorMessage)); n != 1000 {
		t.Errorf("ErrorMessage has %d runes, want 1000", n)
	}
}

func TestErrorResponse_Registers(t *testing.T) {
	gw := New("urn:test")
	if err := gw.Register("Lookup", Lookup{}); err != nil {
		t.Fatal(err)
	}
	s, err := gw.Schema("Lookup")
	if err != nil {
		t.Fatal(err)
	}
	doc := etree.NewDocument()
	if err := doc.ReadFromString(s); err != nil {
		t.Fatal(err)
	}
	if doc.FindElement("//xs:element[@name='Lookup']") == nil {
		t.Errorf("schema does not declare Lookup:\n%s", s)
	}
	desc, err := gw.Description("Lookup", "http://x/soap")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(desc, `name="ErrorResponse"`) || !strings.Contains(desc, `value="1000"`) {
		t.Errorf("description does not carry ErrorResponse restrictions:\n%s", desc)
	}
}
