package soagw

import (
	"context"
	"errors"
	"net/http"
	"reflect"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/broady/soagw/envelope"
	"github.com/broady/soagw/soagen/sink"
	"github.com/broady/soagw/testutil"
)

func TestHandler_Dispatch(t *testing.T) {
	h := newTestGateway(t).Handler()

	w := testutil.NewRequest().
		POST("/soap").
		WithAction("Echo").
		WithEnvelope(`<Echo xmlns="urn:test"><Name>ok</Name><Count>3</Count></Echo>`).
		Serve(h)

	testutil.AssertStatus(t, w, http.StatusOK)
	testutil.AssertHeader(t, w, "Content-Type", "text/xml; charset=utf-8")
	testutil.AssertHeader(t, w, "Pragma", "no-cache")
	testutil.AssertHeader(t, w, "Expires", "-1")
	payload := testutil.AssertPayload(t, w, "Echo")
	if got := payload.SelectElement("Name").Text(); got != "okokok" {
		t.Errorf("Name = %q", got)
	}
}

func TestHandler_UnquotedAction(t *testing.T) {
	w := testutil.NewRequest().
		POST("/soap").
		WithHeader("SOAPAction", "Echo").
		WithEnvelope(`<Echo xmlns="urn:test"><Name>a</Name><Count>1</Count></Echo>`).
		Serve(newTestGateway(t).Handler())
	testutil.AssertPayload(t, w, "Echo")
}

func TestHandler_FaultsAreOK(t *testing.T) {
	w := testutil.NewRequest().
		POST("/soap").
		WithAction("Echo").
		WithEnvelope(`<Echo xmlns="urn:test"><Name>TooLongValueHere</Name><Count>1</Count></Echo>`).
		Serve(newTestGateway(t).Handler())

	testutil.AssertStatus(t, w, http.StatusOK)
	f := testutil.AssertFault(t, w, envelope.Client)
	if !strings.Contains(f.String, "maxLength '10'") {
		t.Errorf("fault string = %q", f.String)
	}
}

func TestHandler_RequestIsExecContext(t *testing.T) {
	w := testutil.NewRequest().
		POST("/soap").
		WithAction("Whoami").
		WithHeader("X-User", "alice").
		WithEnvelope(`<Whoami xmlns="urn:test"/>`).
		Serve(newTestGateway(t).Handler())

	if got := testutil.AssertPayload(t, w, "string").Text(); got != "alice" {
		t.Errorf("payload = %q", got)
	}
}

func TestHandler_MiddlewareExecContext(t *testing.T) {
	gw := newTestGateway(t).WithMiddleware(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(WithExecContext(r.Context(), "tenant-1")))
		})
	})
	w := testutil.NewRequest().
		POST("/soap").
		WithAction("Whoami").
		WithEnvelope(`<Whoami xmlns="urn:test"/>`).
		Serve(gw.Handler())

	if got := testutil.AssertPayload(t, w, "string").Text(); got != "tenant-1" {
		t.Errorf("payload = %q", got)
	}
}

func TestHandler_MiddlewareOrder(t *testing.T) {
	var order []string
	mw := func(name string) func(http.Handler) http.Handler {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}
	h := newTestGateway(t).WithMiddleware(mw("outer")).WithMiddleware(mw("inner")).Handler()
	testutil.NewRequest().GET("/soap").Serve(h)

	if diff := cmp.Diff([]string{"outer", "inner"}, order); diff != "" {
		t.Errorf("middleware order mismatch (-want +got):\n%s", diff)
	}
}

func TestHandler_BodyLimit(t *testing.T) {
	gw := newTestGateway(t).WithMaxRequestBodySize(64)
	w := testutil.NewRequest().
		POST("/soap").
		WithAction("Echo").
		WithEnvelope(`<Echo xmlns="urn:test"><Name>ok</Name><Count>3</Count></Echo>`).
		Serve(gw.Handler())

	f := testutil.AssertFault(t, w, envelope.Client)
	if !strings.HasPrefix(f.String, "MalformedEnvelope : ") || !strings.Contains(f.String, "too large") {
		t.Errorf("fault string = %q", f.String)
	}
}

func TestHandler_MethodNotAllowed(t *testing.T) {
	req, w := testutil.NewRequest().GET("/soap").Build()
	req.Method = http.MethodPut
	newTestGateway(t).Handler().ServeHTTP(w, req)

	testutil.AssertStatus(t, w, http.StatusMethodNotAllowed)
	testutil.AssertHeader(t, w, "Allow", "GET, HEAD, POST")
}

func TestHandler_Discovery(t *testing.T) {
	h := newTestGateway(t).Handler()

	tests := []struct {
		name        string
		key, value  string
		header      map[string]string
		status      int
		contentType string
		contains    []string
	}{
		{
			name:        "index",
			status:      http.StatusOK,
			contentType: "text/html; charset=utf-8",
			contains: []string{
				"<title>soagw</title>",
				"<p>WSDLs :</p>",
				"<p><a href='?wsdl=Echo'>Echo</a></p>",
				"<p><a href='?wsdl=Whoami'>Whoami</a></p>",
			},
		},
		{
			name:        "schema",
			key:         "xsd",
			value:       "Echo",
			status:      http.StatusOK,
			contentType: "text/xml; charset=utf-8",
			contains:    []string{`<xs:element name="Echo">`, `<xs:maxLength value="10"/>`},
		},
		{
			name:        "description",
			key:         "wsdl",
			value:       "Fail",
			status:      http.StatusOK,
			contentType: "text/xml; charset=utf-8",
			contains: []string{
				`<soap:operation soapAction="Fail"/>`,
				`<xs:element name="boolean" type="xs:boolean"/>`,
				`location="http://example.com/soap"`,
			},
		},
		{
			name:        "forwarded description",
			key:         "wsdl",
			value:       "Whoami",
			header:      map[string]string{"X-Forwarded-Proto": "https"},
			status:      http.StatusOK,
			contentType: "text/xml; charset=utf-8",
			contains:    []string{`location="https://example.com/soap"`},
		},
		{
			name:     "unknown operation",
			key:      "wsdl",
			value:    "Nope",
			status:   http.StatusNotFound,
			contains: []string{"Nope"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := testutil.NewRequest().GET("/soap")
			if tt.key != "" {
				b.WithQuery(tt.key, tt.value)
			}
			for k, v := range tt.header {
				b.WithHeader(k, v)
			}
			w := b.Serve(h)

			testutil.AssertStatus(t, w, tt.status)
			if tt.contentType != "" {
				testutil.AssertHeader(t, w, "Content-Type", tt.contentType)
			}
			for _, s := range tt.contains {
				if !strings.Contains(w.Body.String(), s) {
					t.Errorf("body does not contain %q:\n%s", s, w.Body.String())
				}
			}
		})
	}
}

func TestGateway_Defaults(t *testing.T) {
	gw := New("")
	if gw.Namespace() != DefaultNamespace {
		t.Errorf("Namespace() = %q, want %q", gw.Namespace(), DefaultNamespace)
	}
	if gw.maxRequestBodySize != 1<<20 {
		t.Errorf("maxRequestBodySize = %d", gw.maxRequestBodySize)
	}
}

type NoResponse struct {
	Name string
}

func TestGateway_RegisterErrors(t *testing.T) {
	gw := New(testNS)
	if err := gw.Register("Nil", nil); !errors.Is(err, ErrInvalidRequestType) {
		t.Errorf("Register(nil) error = %v, want ErrInvalidRequestType", err)
	}
	if err := gw.Register("NoResponse", NoResponse{}); !errors.Is(err, ErrInvalidRequestType) {
		t.Errorf("Register(NoResponse) error = %v, want ErrInvalidRequestType", err)
	}
	if ops := gw.Operations(); len(ops) != 0 {
		t.Errorf("failed registrations left operations %v", ops)
	}
	if _, err := gw.Schema("NoResponse"); !errors.Is(err, ErrUnrecognizedOperation) {
		t.Errorf("Schema() error = %v", err)
	}
}

func TestGateway_Reset(t *testing.T) {
	gw := newTestGateway(t)
	if diff := cmp.Diff([]string{"Echo", "Fail", "Whoami"}, gw.Operations()); diff != "" {
		t.Errorf("Operations() mismatch (-want +got):\n%s", diff)
	}
	gw.Reset()
	if ops := gw.Operations(); len(ops) != 0 {
		t.Errorf("Operations() after Reset = %v", ops)
	}
	f := mustFault(t, callOp(t, gw, context.Background(), "Echo", `<Echo xmlns="urn:test"/>`), CodeClient)
	if f.String != "UnrecognizedOperation : Echo" {
		t.Errorf("fault string = %q", f.String)
	}
}

func TestGateway_ExportOperations(t *testing.T) {
	ops := newTestGateway(t).ExportOperations()
	if len(ops) != 3 {
		t.Fatalf("got %d operations, want 3", len(ops))
	}
	echo := ops[0]
	if echo.Name != "Echo" || echo.SOAPAction != "Echo" {
		t.Errorf("unexpected operation %+v", echo)
	}
	if echo.Request != reflect.TypeFor[Echo]() || echo.Response != reflect.TypeFor[*Echo]() {
		t.Errorf("Request = %v, Response = %v", echo.Request, echo.Response)
	}
}

func TestGateway_Export(t *testing.T) {
	gw := newTestGateway(t)
	mem := sink.NewMemory()
	if err := gw.Export(context.Background(), mem, "https://svc.example/soap"); err != nil {
		t.Fatal(err)
	}
	want := []string{"Echo.wsdl", "Echo.xsd", "Fail.wsdl", "Fail.xsd", "Whoami.wsdl", "Whoami.xsd"}
	if diff := cmp.Diff(want, mem.Paths()); diff != "" {
		t.Errorf("exported paths mismatch (-want +got):\n%s", diff)
	}
	if got := string(mem.Get("Echo.wsdl")); !strings.Contains(got, `location="https://svc.example/soap"`) {
		t.Errorf("Echo.wsdl does not carry the endpoint:\n%s", got)
	}
	if got := string(mem.Get("Fail.xsd")); !strings.Contains(got, `<xs:element name="Fail">`) {
		t.Errorf("Fail.xsd does not declare Fail:\n%s", got)
	}

	desc, err := gw.Description("Echo", "http://first/soap")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(desc, `location="http://first/soap"`) {
		t.Errorf("export must not populate the description cache:\n%s", desc)
	}
}
