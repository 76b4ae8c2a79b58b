package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/broady/soagw"
	"github.com/broady/soagw/internal/config"
	"github.com/broady/soagw/middleware"
	"github.com/broady/soagw/soaotel"
)

type ServeCmd struct {
	Listen string `help:"Listen address; overrides the config file." short:"l"`
}

func (c *ServeCmd) Run(g *Globals) error {
	cfg, gw, err := g.gateway(os.Stderr)
	if err != nil {
		return err
	}
	if c.Listen != "" {
		cfg.Listen = c.Listen
	}
	logger := cfg.Log.Logger(os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Telemetry.Enabled {
		shutdown, err := setupTelemetry(os.Stderr)
		if err != nil {
			return err
		}
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(sctx); err != nil {
				logger.Error("telemetry shutdown", slog.Any("error", err))
			}
		}()
		soaotel.InstrumentGateway(gw, soaotel.DefaultConfig())
	}

	if err := configureHTTP(gw, cfg, logger); err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           gw.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(sctx)
	}()

	logger.Info("soagw listening",
		slog.String("addr", cfg.Listen),
		slog.String("namespace", gw.Namespace()),
		slog.Any("operations", gw.Operations()))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve: %w", err)
	}
	return nil
}

// configureHTTP installs the interceptors and middleware the config asks for.
func configureHTTP(gw *soagw.Gateway, cfg *config.Config, logger *slog.Logger) error {
	gw.WithUnaryInterceptor(middleware.LoggingInterceptor(logger))
	if len(cfg.CORS.AllowOrigins) > 0 {
		gw.WithMiddleware(middleware.CORS(&middleware.CORSConfig{
			AllowedOrigins: cfg.CORS.AllowOrigins,
		}))
	}
	if cfg.Gzip {
		gz, err := middleware.Gzip(0)
		if err != nil {
			return err
		}
		gw.WithMiddleware(gz)
	}
	return nil
}

// setupTelemetry installs global tracer and meter providers exporting to w.
func setupTelemetry(w io.Writer) (func(context.Context) error, error) {
	traceExp, err := stdouttrace.New(stdouttrace.WithWriter(w))
	if err != nil {
		return nil, fmt.Errorf("trace exporter: %w", err)
	}
	metricExp, err := stdoutmetric.New(stdoutmetric.WithWriter(w))
	if err != nil {
		return nil, fmt.Errorf("metric exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(traceExp))
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExp)))
	otel.SetTracerProvider(tp)
	otel.SetMeterProvider(mp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return func(ctx context.Context) error {
		return errors.Join(tp.Shutdown(ctx), mp.Shutdown(ctx))
	}, nil
}
