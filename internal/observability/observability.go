// Package observability configures process-wide structured logging.
//
// Logs always go to stderr in text or JSON. Optionally they are also exported
// through the OpenTelemetry logs SDK to stdout or an OTLP collector; OTLP
// endpoints and headers come from the standard OTEL_EXPORTER_OTLP_* variables.
package observability

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/contrib/processors/minsev"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutlog"
	"go.opentelemetry.io/otel/log/global"
	sdklog "go.opentelemetry.io/otel/sdk/log"
)

const instrumentationName = "github.com/florianilch/ratemeter"

// Exporter names accepted by Options.Exporter.
const (
	ExporterNone     = "none"
	ExporterStdout   = "stdout"
	ExporterOTLPHTTP = "otlp-http"
	ExporterOTLPGRPC = "otlp-grpc"
)

// Options configures Instrument.
type Options struct {
	Level    slog.Level
	Format   string // text or json
	Exporter string // none, stdout, otlp-http or otlp-grpc

	// Output for console logs, stderr if nil.
	Output io.Writer
}

// ShutdownFunc flushes and stops exporters.
type ShutdownFunc func(context.Context) error

// Instrument installs the default slog logger and returns a function that
// flushes pending exports. It must be called once, before any logging.
func Instrument(ctx context.Context, opts Options) (ShutdownFunc, error) {
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}

	handlerOpts := &slog.HandlerOptions{Level: opts.Level}
	var console slog.Handler
	switch opts.Format {
	case "", "text":
		console = slog.NewTextHandler(out, handlerOpts)
	case "json":
		console = slog.NewJSONHandler(out, handlerOpts)
	default:
		return nil, fmt.Errorf("unsupported log format: %s", opts.Format)
	}
	console = traceHandler{console}

	provider, err := newLoggerProvider(ctx, opts.Exporter, opts.Level)
	if err != nil {
		return nil, err
	}
	if provider == nil {
		slog.SetDefault(slog.New(console))
		return func(context.Context) error { return nil }, nil
	}

	global.SetLoggerProvider(provider)
	exported := otelslog.NewHandler(instrumentationName, otelslog.WithLoggerProvider(provider))
	slog.SetDefault(slog.New(fanout{console, exported}))

	return func(ctx context.Context) error {
		return errors.Join(provider.ForceFlush(ctx), provider.Shutdown(ctx))
	}, nil
}

// newLoggerProvider returns nil when export is disabled.
func newLoggerProvider(ctx context.Context, exporter string, level slog.Level) (*sdklog.LoggerProvider, error) {
	var (
		exp sdklog.Exporter
		err error
	)
	switch exporter {
	case "", ExporterNone:
		return nil, nil
	case ExporterStdout:
		exp, err = stdoutlog.New()
	case ExporterOTLPHTTP:
		exp, err = otlploghttp.New(ctx)
	case ExporterOTLPGRPC:
		exp, err = otlploggrpc.New(ctx)
	default:
		return nil, fmt.Errorf("unsupported telemetry exporter: %s", exporter)
	}
	if err != nil {
		return nil, fmt.Errorf("creating %s log exporter: %w", exporter, err)
	}

	// The bridge hands every record to the SDK, so the level filter is repeated here
	processor := minsev.NewLogProcessor(sdklog.NewBatchProcessor(exp), severity(level))
	return sdklog.NewLoggerProvider(sdklog.WithProcessor(processor)), nil
}

func severity(level slog.Level) minsev.Severity {
	switch {
	case level <= slog.LevelDebug:
		return minsev.SeverityDebug
	case level <= slog.LevelInfo:
		return minsev.SeverityInfo
	case level <= slog.LevelWarn:
		return minsev.SeverityWarn
	default:
		return minsev.SeverityError
	}
}
