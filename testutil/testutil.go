// Package testutil provides helpers for testing SOAP HTTP handlers.
// It depends only on the envelope package and can be used from any package.
package testutil

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/beevik/etree"

	"github.com/broady/soagw/envelope"
)

// Envelope wraps payload, an XML fragment, in a SOAP 1.1 envelope.
func Envelope(payload string) string {
	return `<?xml version="1.0" encoding="UTF-8"?>` +
		`<SOAP-ENV:Envelope xmlns:SOAP-ENV="` + envelope.NS + `">` +
		`<SOAP-ENV:Header/><SOAP-ENV:Body>` + payload + `</SOAP-ENV:Body></SOAP-ENV:Envelope>`
}

// RequestBuilder helps construct test HTTP requests with a fluent API.
type RequestBuilder struct {
	method  string
	path    string
	body    []byte
	headers map[string]string
	query   url.Values
}

// NewRequest creates a new request builder for GET /.
func NewRequest() *RequestBuilder {
	return &RequestBuilder{
		method:  http.MethodGet,
		path:    "/",
		headers: make(map[string]string),
		query:   make(url.Values),
	}
}

// GET sets the HTTP method to GET.
func (b *RequestBuilder) GET(path string) *RequestBuilder {
	b.method = http.MethodGet
	b.path = path
	return b
}

// POST sets the HTTP method to POST.
func (b *RequestBuilder) POST(path string) *RequestBuilder {
	b.method = http.MethodPost
	b.path = path
	return b
}

// WithAction sets the SOAPAction header, quoted as SOAP clients send it.
func (b *RequestBuilder) WithAction(operation string) *RequestBuilder {
	b.headers["SOAPAction"] = `"` + operation + `"`
	return b
}

// WithEnvelope sets the body to payload wrapped in a SOAP envelope.
func (b *RequestBuilder) WithEnvelope(payload string) *RequestBuilder {
	b.body = []byte(Envelope(payload))
	b.headers["Content-Type"] = "text/xml; charset=utf-8"
	return b
}

// WithBody sets the raw request body.
func (b *RequestBuilder) WithBody(body string) *RequestBuilder {
	b.body = []byte(body)
	return b
}

// WithHeader adds a header to the request.
func (b *RequestBuilder) WithHeader(key, value string) *RequestBuilder {
	b.headers[key] = value
	return b
}

// WithQuery adds a query parameter.
func (b *RequestBuilder) WithQuery(key, value string) *RequestBuilder {
	b.query.Add(key, value)
	return b
}

// Build creates the HTTP request and a ResponseRecorder.
func (b *RequestBuilder) Build() (*http.Request, *httptest.ResponseRecorder) {
	target := b.path
	if len(b.query) > 0 {
		target += "?" + b.query.Encode()
	}
	req := httptest.NewRequest(b.method, target, bytes.NewReader(b.body))
	for k, v := range b.headers {
		req.Header.Set(k, v)
	}
	return req, httptest.NewRecorder()
}

// Serve builds the request and serves it with h.
func (b *RequestBuilder) Serve(h http.Handler) *httptest.ResponseRecorder {
	req, w := b.Build()
	h.ServeHTTP(w, req)
	return w
}

// AssertStatus checks that the response has the expected status code.
func AssertStatus(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int) {
	t.Helper()
	if w.Code != expectedStatus {
		t.Errorf("expected status %d, got %d\nBody: %s", expectedStatus, w.Code, w.Body.String())
	}
}

// AssertHeader checks that a response header has the expected value.
func AssertHeader(t *testing.T, w *httptest.ResponseRecorder, key, expectedValue string) {
	t.Helper()
	if actual := w.Header().Get(key); actual != expectedValue {
		t.Errorf("expected header %s=%s, got %s", key, expectedValue, actual)
	}
}

// ParseEnvelope parses the response body as a SOAP envelope.
func ParseEnvelope(t *testing.T, w *httptest.ResponseRecorder) *envelope.Envelope {
	t.Helper()
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/xml") {
		t.Errorf("expected Content-Type text/xml, got %s", ct)
	}
	env, err := envelope.ParseBytes(w.Body.Bytes())
	if err != nil {
		t.Fatalf("failed to parse envelope: %v\nBody: %s", err, w.Body.String())
	}
	return env
}

// AssertPayload checks that the response is a success envelope and returns
// its payload element.
func AssertPayload(t *testing.T, w *httptest.ResponseRecorder, expectedName string) *etree.Element {
	t.Helper()
	env := ParseEnvelope(t, w)
	if f, ok := env.Fault(); ok {
		t.Fatalf("expected %s payload, got fault %s: %s", expectedName, f.Code, f.String)
	}
	if got := env.Payload().Tag; got != expectedName {
		t.Errorf("expected payload %s, got %s", expectedName, got)
	}
	return env.Payload()
}

// AssertFault checks that the response carries a fault with the expected
// code and returns it.
func AssertFault(t *testing.T, w *httptest.ResponseRecorder, expectedCode envelope.Code) *envelope.Fault {
	t.Helper()
	f, ok := ParseEnvelope(t, w).Fault()
	if !ok {
		t.Fatalf("expected %s fault\nBody: %s", expectedCode, w.Body.String())
	}
	if f.Code != expectedCode {
		t.Errorf("expected fault code %s, got %s (string: %s)", expectedCode, f.Code, f.String)
	}
	return f
}
