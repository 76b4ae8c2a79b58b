// Package soagen owns the descriptor registry: the type table, the operation
// table, and the per-operation schema, description and validator caches.
//
// The registry is an immutable snapshot swapped atomically on every write.
// Readers take one snapshot per call and never block writers.
package soagen

import (
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"slices"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/beevik/etree"

	"github.com/broady/soagw/codec"
	"github.com/broady/soagw/soagen/ir"
	"github.com/broady/soagw/soagen/provider"
	"github.com/broady/soagw/soagen/wsdl"
	"github.com/broady/soagw/soagen/xsd"
	"github.com/broady/soagw/xsdvalid"
)

// ErrUnrecognizedOperation is returned for operation names that are not registered.
var ErrUnrecognizedOperation = errors.New("unrecognized operation")

// Registry maps operation names to operations and caches their documents.
type Registry struct {
	namespace string
	logger    *slog.Logger

	mu    sync.Mutex // serializes writers
	state atomic.Pointer[Snapshot]
}

// NewRegistry returns an empty registry for types in namespace.
func NewRegistry(namespace string) *Registry {
	r := &Registry{namespace: namespace}
	r.state.Store(r.empty())
	return r
}

// WithLogger sets the logger used for registration warnings.
// If not set, slog.Default() will be used.
func (r *Registry) WithLogger(logger *slog.Logger) *Registry {
	r.logger = logger
	return r
}

func (r *Registry) log() *slog.Logger {
	if r.logger == nil {
		return slog.Default()
	}
	return r.logger
}

func (r *Registry) empty() *Snapshot {
	return &Snapshot{
		namespace: r.namespace,
		types:     make(ir.TypeTable),
		ops:       make(map[string]*entry),
		codec:     codec.New(nil),
	}
}

// Namespace returns the target namespace of generated documents.
func (r *Registry) Namespace() string { return r.namespace }

// Register binds name to the request type t. The request schema is generated
// and compiled before the operation becomes visible, so types whose schema
// cannot be built are rejected here. A failed registration leaves the
// registry unchanged.
//
// Registering an existing name replaces the operation, drops its cached
// documents, and logs a warning. Types already described keep their
// descriptors.
func (r *Registry) Register(name string, t reflect.Type) (*ir.Operation, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: empty operation name", provider.ErrInvalidRequestType)
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	cur := r.state.Load()
	b := provider.NewBuilder(cur.types)
	op, err := b.BuildOperation(name, t)
	if err != nil {
		return nil, fmt.Errorf("register %s: %w", name, err)
	}
	types := b.Types()
	e := &entry{op: op}
	if _, _, err := e.compiled(r.namespace, types); err != nil {
		return nil, fmt.Errorf("register %s: %w", name, err)
	}

	if _, exists := cur.ops[name]; exists {
		r.log().Warn("duplicate operation registration",
			slog.String("operation", name),
			slog.String("type", op.Request.Type.String()))
	}
	ops := make(map[string]*entry, len(cur.ops)+1)
	for k, v := range cur.ops {
		ops[k] = v
	}
	ops[name] = e
	r.state.Store(&Snapshot{
		namespace: r.namespace,
		types:     types,
		ops:       ops,
		codec:     codec.New(types),
	})
	return op, nil
}

// Reset removes every operation, descriptor, and cached document.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state.Store(r.empty())
}

// Snapshot returns the current registry state.
func (r *Registry) Snapshot() *Snapshot { return r.state.Load() }

// Operation returns the operation registered under name.
func (r *Registry) Operation(name string) (*ir.Operation, bool) {
	return r.Snapshot().Operation(name)
}

// Operations returns the registered operations sorted by name.
func (r *Registry) Operations() []*ir.Operation { return r.Snapshot().Operations() }

// Schema returns the request schema of an operation.
func (r *Registry) Schema(name string) (*etree.Document, error) { return r.Snapshot().Schema(name) }

// Description returns the service description of an operation.
func (r *Registry) Description(name, endpoint string) (*etree.Document, error) {
	return r.Snapshot().Description(name, endpoint)
}

// Validate validates a request payload against the schema of an operation.
func (r *Registry) Validate(name string, payload *etree.Element) ([]xsdvalid.Failure, error) {
	return r.Snapshot().Validate(name, payload)
}

// Snapshot is one immutable state of a registry.
type Snapshot struct {
	namespace string
	types     ir.TypeTable
	ops       map[string]*entry
	codec     *codec.Codec
}

// entry holds an operation and its lazily built documents.
type entry struct {
	op *ir.Operation

	mu          sync.Mutex
	schema      *etree.Document
	validator   *xsdvalid.Validator
	description *etree.Document
}

func (e *entry) compiled(namespace string, types ir.TypeTable) (*etree.Document, *xsdvalid.Validator, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.schema != nil {
		return e.schema, e.validator, nil
	}
	doc, err := xsd.Schema(namespace, types, e.op)
	if err != nil {
		return nil, nil, err
	}
	v, err := xsdvalid.Compile(doc)
	if err != nil {
		return nil, nil, fmt.Errorf("schema for %s: %w", e.op.Name, err)
	}
	e.schema, e.validator = doc, v
	return doc, v, nil
}

func (s *Snapshot) entry(name string) (*entry, error) {
	e, ok := s.ops[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnrecognizedOperation, name)
	}
	return e, nil
}

// Namespace returns the target namespace of generated documents.
func (s *Snapshot) Namespace() string { return s.namespace }

// Types returns the descriptor table. Callers must not modify it.
func (s *Snapshot) Types() ir.TypeTable { return s.types }

// Codec returns a codec over the snapshot's descriptors.
func (s *Snapshot) Codec() *codec.Codec { return s.codec }

// Operation returns the operation registered under name.
func (s *Snapshot) Operation(name string) (*ir.Operation, bool) {
	e, ok := s.ops[name]
	if !ok {
		return nil, false
	}
	return e.op, true
}

// Operations returns the registered operations sorted by name.
func (s *Snapshot) Operations() []*ir.Operation {
	ops := make([]*ir.Operation, 0, len(s.ops))
	for _, e := range s.ops {
		ops = append(ops, e.op)
	}
	slices.SortFunc(ops, func(a, b *ir.Operation) int { return strings.Compare(a.Name, b.Name) })
	return ops
}

// Schema returns a copy of the cached request schema of an operation.
func (s *Snapshot) Schema(name string) (*etree.Document, error) {
	e, err := s.entry(name)
	if err != nil {
		return nil, err
	}
	doc, _, err := e.compiled(s.namespace, s.types)
	if err != nil {
		return nil, err
	}
	return doc.Copy(), nil
}

// Description returns a copy of the service description of an operation.
// The description is built on first use and cached per operation, so the
// endpoint of the first call is the one every later call sees.
func (s *Snapshot) Description(name, endpoint string) (*etree.Document, error) {
	e, err := s.entry(name)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.description == nil {
		doc, err := wsdl.Description(s.namespace, s.types, e.op, endpoint)
		if err != nil {
			return nil, err
		}
		e.description = doc
	}
	return e.description.Copy(), nil
}

// Validate validates a request payload and returns every failure in document
// order. Errors are returned only when the schema cannot be built.
func (s *Snapshot) Validate(name string, payload *etree.Element) ([]xsdvalid.Failure, error) {
	e, err := s.entry(name)
	if err != nil {
		return nil, err
	}
	_, v, err := e.compiled(s.namespace, s.types)
	if err != nil {
		return nil, err
	}
	return v.Validate(payload), nil
}
