// Package soagw serves Go operations over SOAP 1.1 document/literal.
//
// Each operation is a named request type whose Response method produces the
// result. The gateway derives an XML Schema and a WSDL description from the
// request and response types at registration, validates every inbound
// envelope against that schema, and converts envelopes to Go values and back.
//
//	gw := soagw.New("urn:orders")
//	gw.Register("Quote", Quote{})
//	http.ListenAndServe(":8080", gw.Handler())
package soagw

import (
	"fmt"
	"log/slog"
	"net/http"
	"reflect"
	"time"

	"github.com/beevik/etree"

	"github.com/broady/soagw/soagen"
	"github.com/broady/soagw/soagen/ir"
)

// DefaultNamespace is the target namespace used when none is configured.
const DefaultNamespace = "http://soa.rapid-is.co.uk"

// Date is a calendar date without time of day, carried as xs:date.
type Date = ir.Date

// NewDate returns the date of year, month and day.
func NewDate(year int, month time.Month, day int) Date {
	return ir.NewDate(year, month, day)
}

// Gateway serves registered operations over SOAP 1.1 document/literal.
// Use Handler() to get an http.Handler, or Dispatch to serve envelopes
// from another transport.
type Gateway struct {
	registry           *soagen.Registry
	errorTransformer   ErrorTransformer
	maskInternalErrors bool
	interceptors       []UnaryInterceptor
	middlewares        []func(http.Handler) http.Handler
	hook               DispatchHook
	logger             *slog.Logger
	maxRequestBodySize uint64
}

// New returns a gateway publishing types in namespace. An empty namespace
// selects DefaultNamespace.
func New(namespace string) *Gateway {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	return &Gateway{
		registry:           soagen.NewRegistry(namespace),
		maxRequestBodySize: 1 << 20, // 1MB default
	}
}

// WithErrorTransformer adds a custom error transformer for operation errors.
// It returns the gateway for chaining.
func (g *Gateway) WithErrorTransformer(fn ErrorTransformer) *Gateway {
	g.errorTransformer = fn
	return g
}

// WithMaskInternalErrors replaces the string of every Server fault with a
// generic message. The original error is still logged.
func (g *Gateway) WithMaskInternalErrors() *Gateway {
	g.maskInternalErrors = true
	return g
}

// WithUnaryInterceptor adds an interceptor around every invocation.
// Interceptors execute in the order they were added.
func (g *Gateway) WithUnaryInterceptor(i UnaryInterceptor) *Gateway {
	g.interceptors = append(g.interceptors, i)
	return g
}

// WithMiddleware adds an HTTP middleware to wrap the gateway.
// Middleware is applied in the order added (first added is outermost).
func (g *Gateway) WithMiddleware(mw func(http.Handler) http.Handler) *Gateway {
	g.middlewares = append(g.middlewares, mw)
	return g
}

// WithDispatchHook sets the hook observing every dispatch.
func (g *Gateway) WithDispatchHook(h DispatchHook) *Gateway {
	g.hook = h
	return g
}

// WithLogger sets a custom logger for the gateway.
// If not set, slog.Default() will be used.
func (g *Gateway) WithLogger(logger *slog.Logger) *Gateway {
	g.logger = logger
	g.registry.WithLogger(logger)
	return g
}

// WithMaxRequestBodySize sets the maximum size of inbound envelopes served
// over HTTP. A value of 0 means no limit. Default is 1MB (1 << 20).
func (g *Gateway) WithMaxRequestBodySize(size uint64) *Gateway {
	g.maxRequestBodySize = size
	return g
}

func (g *Gateway) log() *slog.Logger {
	if g.logger == nil {
		return slog.Default()
	}
	return g.logger
}

// Namespace returns the target namespace of published documents.
func (g *Gateway) Namespace() string { return g.registry.Namespace() }

// Register binds name to the request type of sample, which may be a value
// or a pointer. The type must declare Response(context.Context) (R, error)
// on its pointer receiver.
//
// Registering an existing name replaces the operation and logs a warning.
// A failed registration leaves the gateway unchanged.
func (g *Gateway) Register(name string, sample any) error {
	return g.RegisterType(name, reflect.TypeOf(sample))
}

// RegisterType is Register for a reflect.Type.
func (g *Gateway) RegisterType(name string, t reflect.Type) error {
	if t == nil {
		return fmt.Errorf("register %s: %w: nil type", name, ErrInvalidRequestType)
	}
	op, err := g.registry.Register(name, t)
	if err != nil {
		return err
	}
	g.log().Debug("operation registered",
		slog.String("operation", name),
		slog.String("request", op.RequestName()),
		slog.String("response", op.ResponseName))
	return nil
}

// Reset removes every operation, descriptor, and cached document.
func (g *Gateway) Reset() {
	g.registry.Reset()
}

// Operations returns the registered operation names in sorted order.
func (g *Gateway) Operations() []string {
	ops := g.registry.Operations()
	names := make([]string, len(ops))
	for i, op := range ops {
		names[i] = op.Name
	}
	return names
}

// Schema returns the request schema of an operation as text.
func (g *Gateway) Schema(name string) (string, error) {
	doc, err := g.registry.Schema(name)
	if err != nil {
		return "", err
	}
	return render(doc)
}

// Description returns the WSDL of an operation served at endpoint, as text.
// Descriptions are cached per operation: the endpoint of the first request
// is the one every later request sees.
func (g *Gateway) Description(name, endpoint string) (string, error) {
	doc, err := g.registry.Description(name, endpoint)
	if err != nil {
		return "", err
	}
	return render(doc)
}

// Handler returns an http.Handler serving discovery and dispatch requests.
// The returned handler includes all configured middleware.
//
//	gz, err := middleware.Gzip(middleware.DefaultGzipMinSize)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	gw := soagw.New("urn:example").WithMiddleware(gz)
//	http.ListenAndServe(":8080", gw.Handler())
func (g *Gateway) Handler() http.Handler {
	var h http.Handler = http.HandlerFunc(g.serveHTTP)
	// Apply middleware in reverse order so first added is outermost
	for i := len(g.middlewares) - 1; i >= 0; i-- {
		h = g.middlewares[i](h)
	}
	return h
}

func render(doc *etree.Document) (string, error) {
	doc.Indent(2)
	return doc.WriteToString()
}
