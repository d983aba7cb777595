package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MeterName is the meter used for service instruments.
const MeterName = "docs-service"

// Storage operation outcomes.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// StorageMetrics records storage router and backend activity:
//
//	docs.storage.operations  counter   backend, operation, outcome[, error_kind]
//	docs.storage.fallbacks   counter   operation
//	docs.storage.duration    histogram backend, operation, outcome (seconds)
//	docs.pipeline.stages     counter   stage, outcome
type StorageMetrics struct {
	operations *Counter
	fallbacks  *Counter
	duration   *Histogram
	stages     *Counter
}

// NewStorageMetrics registers the storage instruments on meter.
func NewStorageMetrics(meter metric.Meter) (*StorageMetrics, error) {
	operations, err := NewCounter(meter, "docs.storage.operations", "Storage backend operations", "{operation}")
	if err != nil {
		return nil, err
	}
	fallbacks, err := NewCounter(meter, "docs.storage.fallbacks", "Stores that fell back to the object store", "{fallback}")
	if err != nil {
		return nil, err
	}
	duration, err := NewHistogram(meter, HistogramOpts{
		Name:        "docs.storage.duration",
		Description: "Storage backend operation latency",
		Unit:        "s",
		Boundaries:  StorageDurationBuckets,
	})
	if err != nil {
		return nil, err
	}
	stages, err := NewCounter(meter, "docs.pipeline.stages", "Document pipeline stage results", "{stage}")
	if err != nil {
		return nil, err
	}
	return &StorageMetrics{
		operations: operations,
		fallbacks:  fallbacks,
		duration:   duration,
		stages:     stages,
	}, nil
}

// RecordOperation counts one backend call and its latency. errKind is
// only attached on failure.
func (m *StorageMetrics) RecordOperation(ctx context.Context, backend, operation string, d time.Duration, errKind string) {
	if m == nil {
		return
	}
	outcome := OutcomeSuccess
	if errKind != "" {
		outcome = OutcomeFailure
	}
	attrs := []attribute.KeyValue{
		AttrBackend.String(backend),
		AttrOperation.String(operation),
		AttrOutcome.String(outcome),
	}
	m.duration.RecordDuration(ctx, d, attrs...)
	if errKind != "" {
		attrs = append(attrs, AttrErrorKind.String(errKind))
	}
	m.operations.Inc(ctx, attrs...)
}

// RecordFallback counts a write that moved from the remote backend to the
// object store.
func (m *StorageMetrics) RecordFallback(ctx context.Context, operation string) {
	if m == nil {
		return
	}
	m.fallbacks.Inc(ctx, AttrOperation.String(operation))
}

// RecordStage counts one pipeline stage result.
func (m *StorageMetrics) RecordStage(ctx context.Context, stage string, ok bool) {
	if m == nil {
		return
	}
	outcome := OutcomeSuccess
	if !ok {
		outcome = OutcomeFailure
	}
	m.stages.Inc(ctx, AttrStage.String(stage), AttrOutcome.String(outcome))
}
