package soagw

import (
	"context"
)

// Call is the context passed to interceptors. It carries the metadata of
// the operation being invoked.
type Call struct {
	context.Context
	operation string
	request   any
}

// Operation returns the name of the operation being invoked.
func (c *Call) Operation() string { return c.operation }

// Request returns the decoded request, a pointer to the request type.
func (c *Call) Request() any { return c.request }

// CallFromContext returns the Call of the current invocation.
func CallFromContext(ctx context.Context) (*Call, bool) {
	if c, ok := ctx.(*Call); ok {
		return c, true
	}
	c, ok := ctx.Value(callKey).(*Call)
	return c, ok
}

func newCall(ctx context.Context, operation string, req any) *Call {
	c := &Call{operation: operation, request: req}
	c.Context = context.WithValue(ctx, callKey, c)
	return c
}

// HandlerFunc represents the next handler in an interceptor chain.
type HandlerFunc func(ctx context.Context, req any) (res any, err error)

// UnaryInterceptor wraps the invocation of an operation.
//
//	func timing(ctx *soagw.Call, req any, next soagw.HandlerFunc) (any, error) {
//	    start := time.Now()
//	    res, err := next(ctx, req)
//	    log.Printf("%s took %v", ctx.Operation(), time.Since(start))
//	    return res, err
//	}
//
// Interceptors run after the request has been validated and decoded, so
// req is always a pointer to the operation's request type. An interceptor
// may short-circuit by returning an error without calling next; the error is
// rendered as a fault like any operation error.
type UnaryInterceptor func(ctx *Call, req any, next HandlerFunc) (res any, err error)

// chainInterceptors combines multiple interceptors into a single one.
// The first interceptor in the slice is the outer-most one.
func chainInterceptors(interceptors []UnaryInterceptor) UnaryInterceptor {
	switch len(interceptors) {
	case 0:
		return nil
	case 1:
		return interceptors[0]
	}
	return func(call *Call, req any, handler HandlerFunc) (any, error) {
		chain := handler
		for i := len(interceptors) - 1; i >= 0; i-- {
			current, next := interceptors[i], chain
			chain = func(ctx context.Context, req any) (any, error) {
				c, ok := ctx.(*Call)
				if !ok {
					// An interceptor derived a new context; keep the call
					// metadata on top of it.
					c = &Call{Context: ctx, operation: call.operation, request: req}
				}
				return current(c, req, next)
			}
		}
		return chain(call, req)
	}
}
