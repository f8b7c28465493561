package observe

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// withTestTracer swaps the global tracer provider for one feeding recorder,
// restoring the previous provider on cleanup. Tests using it must not run in
// parallel.
func withTestTracer(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))

	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(prev)
		_ = tp.Shutdown(context.Background())
	})
	return recorder
}

func TestStartSpan_RecordsSpan(t *testing.T) {
	recorder := withTestTracer(t)

	ctx, span := StartSpan(context.Background(), "pipeline.run")
	if !span.SpanContext().IsValid() {
		t.Fatal("StartSpan returned an invalid span context")
	}

	_, child := StartSpan(ctx, "pipeline.decode_segment")
	child.End()
	span.End()

	ended := recorder.Ended()
	if len(ended) != 2 {
		t.Fatalf("recorded %d spans, want 2", len(ended))
	}
	if ended[0].Name() != "pipeline.decode_segment" || ended[1].Name() != "pipeline.run" {
		t.Errorf("span names = %q, %q", ended[0].Name(), ended[1].Name())
	}
	if ended[0].Parent().SpanID() != span.SpanContext().SpanID() {
		t.Error("child span is not parented to the run span")
	}
}

func TestLogger_AddsTraceContext(t *testing.T) {
	withTestTracer(t)

	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })

	ctx, span := StartSpan(context.Background(), "notes.generate")
	defer span.End()

	Logger(ctx).Info("generated")
	out := buf.String()
	if !strings.Contains(out, "trace_id="+span.SpanContext().TraceID().String()) {
		t.Errorf("log line missing trace_id: %s", out)
	}
	if !strings.Contains(out, "span_id=") {
		t.Errorf("log line missing span_id: %s", out)
	}

	buf.Reset()
	Logger(context.Background()).Info("no span")
	if strings.Contains(buf.String(), "trace_id=") {
		t.Errorf("log line without a span should carry no trace_id: %s", buf.String())
	}
}
