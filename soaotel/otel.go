// Package soaotel provides OpenTelemetry instrumentation for soagw gateways.
// It implements the [soagw.DispatchHook] interface to add distributed tracing
// and metrics to every call.
//
// Usage:
//
//	gw := soagw.New(namespace)
//	// ... register operations ...
//	soaotel.InstrumentGateway(gw, soaotel.DefaultConfig())
package soaotel

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/broady/soagw"
)

const (
	instrumentationName = "github.com/broady/soagw"
	rpcSystem           = "soap"
)

// Config configures OpenTelemetry instrumentation for a gateway.
type Config struct {
	// TracerProvider supplies the tracer. Defaults to otel.GetTracerProvider().
	TracerProvider trace.TracerProvider
	// MeterProvider supplies the meter. Defaults to otel.GetMeterProvider().
	MeterProvider metric.MeterProvider
	// Propagator extracts trace context from transport metadata.
	// Defaults to otel.GetTextMapPropagator().
	Propagator propagation.TextMapPropagator
	// EnableTracing enables span creation.
	EnableTracing bool
	// EnableMetrics enables counter and histogram recording.
	EnableMetrics bool
	// ServiceName is the rpc.service attribute value.
	// Defaults to the gateway namespace.
	ServiceName string
	// CustomAttributes are added to every span.
	CustomAttributes []attribute.KeyValue
}

// DefaultConfig returns a Config with tracing and metrics enabled.
// Providers and the propagator are resolved from the global OTel SDK at
// instrumentation time.
func DefaultConfig() Config {
	return Config{
		EnableTracing: true,
		EnableMetrics: true,
	}
}

// InstrumentGateway attaches OpenTelemetry instrumentation to gw.
// The hook is installed with [soagw.Gateway.WithDispatchHook].
func InstrumentGateway(gw *soagw.Gateway, cfg Config) {
	if cfg.ServiceName == "" {
		cfg.ServiceName = gw.Namespace()
	}
	gw.WithDispatchHook(NewHook(cfg))
}

// NewHook returns a dispatch hook recording spans and metrics as configured.
func NewHook(cfg Config) soagw.DispatchHook {
	if cfg.TracerProvider == nil {
		cfg.TracerProvider = otel.GetTracerProvider()
	}
	if cfg.MeterProvider == nil {
		cfg.MeterProvider = otel.GetMeterProvider()
	}
	if cfg.Propagator == nil {
		cfg.Propagator = otel.GetTextMapPropagator()
	}

	h := &hook{
		cfg:    cfg,
		tracer: cfg.TracerProvider.Tracer(instrumentationName),
	}
	if cfg.EnableMetrics {
		meter := cfg.MeterProvider.Meter(instrumentationName)
		h.requests, _ = meter.Int64Counter("rpc.server.requests",
			metric.WithUnit("{request}"),
			metric.WithDescription("Number of SOAP calls"),
		)
		h.duration, _ = meter.Float64Histogram("rpc.server.duration",
			metric.WithUnit("s"),
			metric.WithDescription("Duration of SOAP calls"),
		)
		h.requestSize, _ = meter.Int64Histogram("rpc.server.request.size",
			metric.WithUnit("By"),
			metric.WithDescription("Size of inbound envelopes"),
		)
	}
	return h
}

type hook struct {
	cfg         Config
	tracer      trace.Tracer
	requests    metric.Int64Counter
	duration    metric.Float64Histogram
	requestSize metric.Int64Histogram
}

// unrecognizedMethod names calls that never resolved to an operation.
const unrecognizedMethod = "unrecognized"

func methodName(info soagw.DispatchInfo) string {
	if info.State == soagw.StateFaulted && info.FaultedAt == soagw.StateReceived {
		return unrecognizedMethod
	}
	return info.Operation
}

// spanToken is the HookToken returned by OnDispatchStart.
type spanToken struct {
	span  trace.Span
	start time.Time
}

func (h *hook) OnDispatchStart(ctx context.Context, info soagw.DispatchInfo) (context.Context, soagw.HookToken) {
	if h.cfg.Propagator != nil && info.TransportMetadata != nil {
		ctx = h.cfg.Propagator.Extract(ctx, propagation.MapCarrier(info.TransportMetadata))
	}
	if !h.cfg.EnableTracing {
		return ctx, &spanToken{start: time.Now()}
	}

	attrs := []attribute.KeyValue{
		attribute.String("rpc.system", rpcSystem),
		attribute.String("rpc.service", h.cfg.ServiceName),
		attribute.String("rpc.method", info.Operation),
		attribute.Int("rpc.soap.request_bytes", info.RequestBytes),
	}
	attrs = append(attrs, h.cfg.CustomAttributes...)
	if v := info.TransportMetadata["remote_addr"]; v != "" {
		attrs = append(attrs, attribute.String("net.peer.ip", v))
	}
	if v := info.TransportMetadata["user_agent"]; v != "" {
		attrs = append(attrs, attribute.String("user_agent.original", v))
	}

	ctx, span := h.tracer.Start(ctx, "soap/"+info.Operation,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(attrs...),
	)
	return ctx, &spanToken{span: span, start: time.Now()}
}

func (h *hook) OnDispatchEnd(ctx context.Context, token soagw.HookToken, info soagw.DispatchInfo, fault *soagw.Fault) {
	st, ok := token.(*spanToken)
	if !ok {
		return
	}

	status := "ok"
	if fault != nil {
		status = "fault"
	}

	method := methodName(info)
	if h.cfg.EnableMetrics {
		attrs := []attribute.KeyValue{
			attribute.String("rpc.system", rpcSystem),
			attribute.String("rpc.service", h.cfg.ServiceName),
			attribute.String("rpc.method", method),
			attribute.String("status", status),
		}
		if fault != nil {
			attrs = append(attrs, attribute.String("rpc.soap.fault_code", string(fault.Code)))
		}
		opt := metric.WithAttributes(attrs...)
		if h.requests != nil {
			h.requests.Add(ctx, 1, opt)
		}
		if h.duration != nil {
			h.duration.Record(ctx, time.Since(st.start).Seconds(), opt)
		}
		if h.requestSize != nil {
			h.requestSize.Record(ctx, int64(info.RequestBytes), opt)
		}
	}

	if st.span == nil || !st.span.IsRecording() {
		return
	}
	if method != info.Operation {
		st.span.SetName("soap/" + method)
	}
	st.span.SetAttributes(
		attribute.String("rpc.method", method),
		attribute.String("rpc.soap.state", info.State.String()),
		attribute.Int("rpc.soap.response_bytes", info.ResponseBytes),
	)
	if fault != nil {
		st.span.SetAttributes(
			attribute.String("rpc.soap.fault_code", string(fault.Code)),
			attribute.String("rpc.soap.faulted_at", info.FaultedAt.String()),
		)
		st.span.SetStatus(codes.Error, fault.String)
		st.span.RecordError(fault)
	} else {
		st.span.SetStatus(codes.Ok, "")
	}
	st.span.End()
}
