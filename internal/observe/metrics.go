// Package observe provides application-wide observability primitives for
// memovox: OpenTelemetry metrics, tracing helpers, and the SDK provider
// setup that bridges metrics to a Prometheus /metrics endpoint.
//
// A package-level default [Metrics] instance ([DefaultMetrics]) is provided
// for convenience; tests should use [NewMetrics] with a custom
// [metric.MeterProvider] to avoid cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// meterName is the instrumentation scope name used for all memovox metrics.
const meterName = "github.com/hwidmann/memovox"

// Attribute keys used with the counters below.
const (
	// AttrReason labels SegmentsDiscarded: "short" (below the minimum
	// net-speech length) or "decoder" (transcription failed).
	AttrReason = "reason"
)

// Metrics holds all OpenTelemetry metric instruments for the pipeline.
// All fields are safe for concurrent use; the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// FramesCaptured counts frames produced by the capture source.
	FramesCaptured metric.Int64Counter

	// SpeechFrames counts frames classified as speech.
	SpeechFrames metric.Int64Counter

	// SegmentsEmitted counts segments closed and handed to the transcriber.
	SegmentsEmitted metric.Int64Counter

	// SegmentsDiscarded counts segments that never reached the transcript.
	// Use with attribute.String(AttrReason, ...).
	SegmentsDiscarded metric.Int64Counter

	// DecodeDuration tracks per-segment decoder latency (open → finalize).
	DecodeDuration metric.Float64Histogram

	// NoteDuration tracks note-generation (LLM summarization) latency.
	NoteDuration metric.Float64Histogram

	// ActiveRuns tracks the number of live recording runs.
	ActiveRuns metric.Int64UpDownCounter

	// FrameQueueDepth and SegmentQueueDepth report the fill level of the
	// bounded channels between pipeline stages. Fed by the callback
	// registered with [Metrics.ObserveQueueDepths].
	FrameQueueDepth   metric.Int64ObservableGauge
	SegmentQueueDepth metric.Int64ObservableGauge

	meter metric.Meter
}

// latencyBuckets defines histogram bucket boundaries (in seconds) optimised
// for decode and summarization latencies.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.FramesCaptured, err = m.Int64Counter("memovox.frames.captured",
		metric.WithDescription("Frames produced by the capture source."),
	); err != nil {
		return nil, err
	}
	if met.SpeechFrames, err = m.Int64Counter("memovox.frames.speech",
		metric.WithDescription("Frames classified as speech."),
	); err != nil {
		return nil, err
	}
	if met.SegmentsEmitted, err = m.Int64Counter("memovox.segments.emitted",
		metric.WithDescription("Speech segments handed to the transcriber."),
	); err != nil {
		return nil, err
	}
	if met.SegmentsDiscarded, err = m.Int64Counter("memovox.segments.discarded",
		metric.WithDescription("Segments discarded before reaching the transcript."),
	); err != nil {
		return nil, err
	}
	if met.DecodeDuration, err = m.Float64Histogram("memovox.decode.duration",
		metric.WithDescription("Per-segment decoder latency."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.NoteDuration, err = m.Float64Histogram("memovox.note.duration",
		metric.WithDescription("Note generation latency."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ActiveRuns, err = m.Int64UpDownCounter("memovox.runs.active",
		metric.WithDescription("Live recording runs."),
	); err != nil {
		return nil, err
	}
	if met.FrameQueueDepth, err = m.Int64ObservableGauge("memovox.queue.frames",
		metric.WithDescription("Frames buffered between capture and segmentation."),
	); err != nil {
		return nil, err
	}
	if met.SegmentQueueDepth, err = m.Int64ObservableGauge("memovox.queue.segments",
		metric.WithDescription("Segments buffered between segmentation and transcription."),
	); err != nil {
		return nil, err
	}
	met.meter = m
	return met, nil
}

// ObserveQueueDepths registers a collection callback reporting the pipeline's
// queue fill levels. The caller must Unregister the returned registration
// when the run ends.
func (m *Metrics) ObserveQueueDepths(frames, segments func() int) (metric.Registration, error) {
	return m.meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		o.ObserveInt64(m.FrameQueueDepth, int64(frames()))
		o.ObserveInt64(m.SegmentQueueDepth, int64(segments()))
		return nil
	}, m.FrameQueueDepth, m.SegmentQueueDepth)
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the process-wide [Metrics] instance backed by the
// global OTel meter provider. Initialised lazily; instrument creation
// errors fall back to a no-op meter provider and are not surfaced.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		m, err := NewMetrics(otel.GetMeterProvider())
		if err != nil {
			m, _ = NewMetrics(noop.NewMeterProvider())
		}
		defaultMetrics = m
	})
	return defaultMetrics
}
