package soagw

import (
	"context"
	"net/http"
)

type contextKey struct {
	name string
}

var (
	execKey    = &contextKey{"exec"}
	requestKey = &contextKey{"request"}
	callKey    = &contextKey{"call"}
)

// WithExecContext returns a context carrying v as the execution context of
// the call. The value is opaque to the gateway and reaches the operation
// unmodified.
func WithExecContext(ctx context.Context, v any) context.Context {
	return context.WithValue(ctx, execKey, v)
}

// ExecContext returns the execution context set with WithExecContext.
// Calls served over HTTP carry the *http.Request unless a middleware set
// another value.
func ExecContext(ctx context.Context) any {
	return ctx.Value(execKey)
}

// RequestFromContext returns the HTTP request of the call, if any.
func RequestFromContext(ctx context.Context) *http.Request {
	if r, ok := ctx.Value(requestKey).(*http.Request); ok {
		return r
	}
	return nil
}

// OperationFromContext returns the name of the operation being invoked.
func OperationFromContext(ctx context.Context) (string, bool) {
	if c, ok := CallFromContext(ctx); ok {
		return c.Operation(), true
	}
	return "", false
}

func withRequest(ctx context.Context, r *http.Request) context.Context {
	ctx = context.WithValue(ctx, requestKey, r)
	if ctx.Value(execKey) == nil {
		ctx = WithExecContext(ctx, r)
	}
	return ctx
}
