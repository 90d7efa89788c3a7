// Package tracing wraps OpenTelemetry so the kernel can emit one span per
// system call. Spans are no-ops until Init or InitWithExporter installs a
// provider.
package tracing

import "context"
import "io"
import "os"
import "sync"

import "go.opentelemetry.io/otel"
import "go.opentelemetry.io/otel/attribute"
import "go.opentelemetry.io/otel/codes"
import "go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
import "go.opentelemetry.io/otel/sdk/resource"
import sdktrace "go.opentelemetry.io/otel/sdk/trace"
import "go.opentelemetry.io/otel/trace"

const tracername = "github.com/canliroc/CS371"

// installs the stdout exporter writing to outputFile, or to stderr if
// outputFile is empty. the first successful call wins. the file is closed
// by Shutdown.
func Init(service, instance, outputFile string) error {
	if outputFile == "" {
		return InitWriter(service, instance, os.Stderr)
	}
	f, err := os.Create(outputFile)
	if err != nil {
		return err
	}
	exporter, err := stdouttrace.New(stdouttrace.WithWriter(f))
	if err != nil {
		f.Close()
		return err
	}
	did, err := install(service, instance, exporter)
	if err != nil || !did {
		f.Close()
		return err
	}
	tracemu.Lock()
	tracefile = f
	tracemu.Unlock()
	return nil
}

// installs the stdout exporter writing to w
func InitWriter(service, instance string, w io.Writer) error {
	exporter, err := stdouttrace.New(stdouttrace.WithWriter(w))
	if err != nil {
		return err
	}
	return InitWithExporter(service, instance, exporter)
}

var (
	providerOnce sync.Once
	providerErr  error
	provider     *sdktrace.TracerProvider

	tracemu   sync.Mutex
	tracefile *os.File
)

func InitWithExporter(service, instance string, exporter sdktrace.SpanExporter) error {
	if exporter == nil {
		return nil
	}
	_, err := install(service, instance, exporter)
	return err
}

// reports whether this call installed the provider
func install(service, instance string, exporter sdktrace.SpanExporter) (bool, error) {
	did := false
	providerOnce.Do(func() {
		did = true
		res, err := resource.New(context.Background(),
			resource.WithAttributes(
				attribute.String("service.name", service),
				attribute.String("service.instance.id", instance),
			),
		)
		if err != nil {
			providerErr = err
			return
		}
		provider = sdktrace.NewTracerProvider(
			sdktrace.WithSpanProcessor(sdktrace.NewSimpleSpanProcessor(exporter)),
			sdktrace.WithResource(res),
		)
		otel.SetTracerProvider(provider)
	})
	return did, providerErr
}

// flushes and stops the installed provider, if any, then closes the trace
// file Init opened
func Shutdown(ctx context.Context) error {
	var err error
	if provider != nil {
		err = provider.Shutdown(ctx)
	}
	tracemu.Lock()
	f := tracefile
	tracefile = nil
	tracemu.Unlock()
	if f != nil {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

type Span struct {
	span trace.Span
}

func (s *Span) SetInt(k string, v int) *Span {
	if s == nil {
		return s
	}
	s.span.SetAttributes(attribute.Int(k, v))
	return s
}

func (s *Span) SetString(k, v string) *Span {
	if s == nil {
		return s
	}
	s.span.SetAttributes(attribute.String(k, v))
	return s
}

// records err on the span, or an OK status if err is nil
func (s *Span) SetStatus(err error) {
	if s == nil {
		return
	}
	if err != nil {
		s.span.RecordError(err)
		s.span.SetStatus(codes.Error, err.Error())
	} else {
		s.span.SetStatus(codes.Ok, "")
	}
}

func StartSpan(ctx context.Context, name string) (context.Context, *Span) {
	ctx, span := otel.Tracer(tracername).Start(ctx, name,
		trace.WithSpanKind(trace.SpanKindInternal))
	return ctx, &Span{span: span}
}

func EndSpan(sp *Span, err error) {
	if sp == nil {
		return
	}
	sp.SetStatus(err)
	sp.span.End()
}
