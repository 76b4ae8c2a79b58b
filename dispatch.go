package soagw

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"reflect"
	"runtime/debug"
	"strings"

	"github.com/beevik/etree"

	"github.com/broady/soagw/envelope"
	"github.com/broady/soagw/soagen"
	"github.com/broady/soagw/soagen/ir"
	"github.com/broady/soagw/xsdvalid"
)

const maskedFaultString = "internal server error"

// PanicError is the error reported for an operation that panicked.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("%v", e.Value)
}

// Dispatch serves one envelope read from body for the operation named by
// action and returns the rendered outbound envelope. The result is always a
// single envelope: a success payload or a fault.
func (g *Gateway) Dispatch(ctx context.Context, action string, body io.Reader) []byte {
	raw, err := io.ReadAll(body)
	if err != nil {
		d := g.newDispatch(action, raw, nil)
		ctx = d.start(ctx)
		return d.finish(ctx, nil, &Fault{Code: CodeClient, String: "MalformedEnvelope : " + err.Error()}, err)
	}
	return g.dispatch(ctx, action, raw, nil)
}

func (g *Gateway) dispatch(ctx context.Context, action string, raw []byte, transport map[string]string) []byte {
	d := g.newDispatch(action, raw, transport)
	ctx = d.start(ctx)
	payload, fault, cause := d.safeRun(ctx)
	return d.finish(ctx, payload, fault, cause)
}

// dispatch is the state of one call. It is owned by the goroutine serving
// the call.
type dispatch struct {
	g     *Gateway
	snap  *soagen.Snapshot
	info  DispatchInfo
	raw   []byte
	token HookToken
}

func (g *Gateway) newDispatch(action string, raw []byte, transport map[string]string) *dispatch {
	return &dispatch{
		g:    g,
		snap: g.registry.Snapshot(),
		raw:  raw,
		info: DispatchInfo{
			Operation:         action,
			State:             StateReceived,
			RequestBytes:      len(raw),
			TransportMetadata: transport,
		},
	}
}

func (d *dispatch) start(ctx context.Context) context.Context {
	log := d.g.log()
	if log.Enabled(ctx, slog.LevelDebug) {
		log.DebugContext(ctx, "soap request",
			slog.String("operation", d.info.Operation),
			slog.String("envelope", string(d.raw)))
	}
	if d.g.hook != nil {
		ctx, d.token = d.g.hook.OnDispatchStart(ctx, d.info)
	}
	return ctx
}

// run advances the call from Received to Encoded. It returns the response
// payload, or the fault that ended the call together with its cause.
func (d *dispatch) run(ctx context.Context) (*etree.Element, *Fault, error) {
	op, ok := d.snap.Operation(d.info.Operation)
	if !ok {
		err := fmt.Errorf("%w: %q", ErrUnrecognizedOperation, d.info.Operation)
		return nil, &Fault{Code: CodeClient, String: "UnrecognizedOperation : " + d.info.Operation}, err
	}
	d.info.State = StateResolved

	env, err := envelope.ParseBytes(d.raw)
	if err != nil {
		return nil, &Fault{Code: CodeClient, String: "MalformedEnvelope : " + err.Error()}, err
	}
	payload := env.PayloadDocument().Root()

	failures, err := d.snap.Validate(op.Name, payload)
	if err != nil {
		return nil, &Fault{Code: CodeServer, String: "SchemaError : " + err.Error()}, err
	}
	if len(failures) > 0 {
		return nil, &Fault{Code: CodeClient, String: strings.Join(xsdvalid.Messages(failures), "\n")},
			fmt.Errorf("%d validation failures", len(failures))
	}
	d.info.State = StateValidated

	req, err := d.snap.Codec().Decode(payload, op.Request.Type)
	if err != nil {
		return nil, &Fault{Code: CodeClient, String: "DecodeError : " + err.Error()}, err
	}
	d.info.State = StateDecoded

	res, err := d.invoke(ctx, op, req)
	if err != nil {
		return nil, d.transform(err), err
	}
	d.info.State = StateInvoked

	el, err := d.snap.Codec().Encode(op.ResponseName, res)
	if err != nil {
		return nil, &Fault{Code: CodeServer, String: "EncodeError : " + err.Error()}, err
	}
	d.info.State = StateEncoded
	return el, nil, nil
}

// safeRun runs the call and turns any panic into a Server fault at the
// current state.
func (d *dispatch) safeRun(ctx context.Context) (payload *etree.Element, fault *Fault, cause error) {
	defer func() {
		if rec := recover(); rec != nil {
			d.g.log().ErrorContext(ctx, "dispatch panicked",
				slog.String("operation", d.info.Operation),
				slog.String("state", d.info.State.String()),
				slog.Any("panic", rec),
				slog.String("stack", string(debug.Stack())))
			cause = &PanicError{Value: rec}
			payload, fault = nil, d.transform(cause)
		}
	}()
	return d.run(ctx)
}

func (d *dispatch) invoke(ctx context.Context, op *ir.Operation, req reflect.Value) (any, error) {
	final := func(ctx context.Context, r any) (res any, err error) {
		rv := reflect.ValueOf(r)
		if !rv.IsValid() || rv.Type() != req.Type() || rv.IsNil() {
			return nil, Faultf(CodeServer, "InterceptorError : request replaced with %T", r)
		}
		defer func() {
			if rec := recover(); rec != nil {
				d.g.log().ErrorContext(ctx, "operation panicked",
					slog.String("operation", op.Name),
					slog.Any("panic", rec),
					slog.String("stack", string(debug.Stack())))
				res, err = nil, &PanicError{Value: rec}
			}
		}()
		out := rv.Method(op.Method).Call([]reflect.Value{reflect.ValueOf(ctx)})
		if e := out[1].Interface(); e != nil {
			return nil, e.(error)
		}
		return out[0].Interface(), nil
	}

	call := newCall(ctx, op.Name, req.Interface())
	if chain := chainInterceptors(d.g.interceptors); chain != nil {
		return chain(call, req.Interface(), final)
	}
	return final(call, req.Interface())
}

func (d *dispatch) transform(err error) *Fault {
	var f *Fault
	if d.g.errorTransformer != nil {
		f = d.g.errorTransformer(err)
	}
	if f == nil {
		f = DefaultErrorTransformer(err)
	}
	return f
}

// finish renders the outbound envelope, logs it, and reports the end of the
// call to the hook.
func (d *dispatch) finish(ctx context.Context, payload *etree.Element, fault *Fault, cause error) []byte {
	log := d.g.log()
	var doc *etree.Document
	if fault != nil {
		d.info.FaultedAt = d.info.State
		d.info.State = StateFaulted
		if d.g.maskInternalErrors && fault.Code == CodeServer {
			fault = &Fault{Code: CodeServer, String: maskedFaultString}
		}
		doc = fault.document()
	} else {
		doc = envelope.New(d.snap.Namespace(), ir.TypesPrefix, payload)
		d.info.State = StateSent
	}

	out, err := doc.WriteToBytes()
	if err != nil {
		// Writing to memory only fails for unserializable tokens.
		log.ErrorContext(ctx, "failed to render envelope", slog.Any("error", err))
		if fault == nil {
			d.info.FaultedAt, d.info.State = StateEncoded, StateFaulted
			cause = err
		}
		fault = &Fault{Code: CodeServer, String: maskedFaultString}
		out, _ = fault.document().WriteToBytes()
	}
	d.info.ResponseBytes = len(out)

	if fault != nil {
		log.ErrorContext(ctx, "soap fault",
			slog.String("operation", d.info.Operation),
			slog.String("state", d.info.FaultedAt.String()),
			slog.String("code", string(fault.Code)),
			slog.Any("error", cause),
			slog.String("envelope", string(out)))
	} else if log.Enabled(ctx, slog.LevelDebug) {
		log.DebugContext(ctx, "soap response",
			slog.String("operation", d.info.Operation),
			slog.String("envelope", string(out)))
	}

	if d.g.hook != nil {
		d.g.hook.OnDispatchEnd(ctx, d.token, d.info, fault)
	}
	return out
}

// IsFault reports whether an outbound envelope carries a fault, and returns it.
func IsFault(out []byte) (*envelope.Fault, bool) {
	env, err := envelope.ParseBytes(out)
	if err != nil {
		return nil, false
	}
	return env.Fault()
}
