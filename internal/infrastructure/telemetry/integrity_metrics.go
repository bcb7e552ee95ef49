package telemetry

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// ErrMeterNil is returned when a metrics set is built without a meter.
var ErrMeterNil = errors.New("meter cannot be nil")

// Metric attribute keys
var (
	AttrFindingKind = attribute.Key("kind")
	AttrStatus      = attribute.Key("status")
	AttrOperation   = attribute.Key("operation")
)

// IntegrityMetrics holds the reconciliation counters. All recorders are
// safe to call on a nil receiver.
type IntegrityMetrics struct {
	findings  *Counter
	fixes     *Counter
	rollbacks *Counter
	duration  *Histogram
}

// NewIntegrityMetrics registers the integrity instruments on meter.
func NewIntegrityMetrics(meter metric.Meter) (*IntegrityMetrics, error) {
	if meter == nil {
		return nil, ErrMeterNil
	}

	findings, err := NewCounter(meter, "integrity_findings_total", "Findings produced by detection runs", "{finding}")
	if err != nil {
		return nil, err
	}
	fixes, err := NewCounter(meter, "integrity_fixes_total", "Fix outcomes by finding kind and status", "{fix}")
	if err != nil {
		return nil, err
	}
	rollbacks, err := NewCounter(meter, "integrity_rollbacks_total", "Rollback outcomes by status", "{rollback}")
	if err != nil {
		return nil, err
	}
	duration, err := NewHistogram(meter, "integrity_operation_duration_seconds", "Duration of reconciliation operations", "s",
		[]float64{0.01, 0.05, 0.1, 0.5, 1, 5, 30, 120})
	if err != nil {
		return nil, err
	}

	return &IntegrityMetrics{findings: findings, fixes: fixes, rollbacks: rollbacks, duration: duration}, nil
}

// RecordFindings counts n findings of kind.
func (m *IntegrityMetrics) RecordFindings(ctx context.Context, kind string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.findings.Add(ctx, int64(n), AttrFindingKind.String(kind))
}

// RecordFix counts one fix outcome.
func (m *IntegrityMetrics) RecordFix(ctx context.Context, kind, status string) {
	if m == nil {
		return
	}
	m.fixes.Inc(ctx, AttrFindingKind.String(kind), AttrStatus.String(status))
}

// RecordRollback counts one rollback outcome.
func (m *IntegrityMetrics) RecordRollback(ctx context.Context, status string) {
	if m == nil {
		return
	}
	m.rollbacks.Inc(ctx, AttrStatus.String(status))
}

// RecordDuration records how long operation took.
func (m *IntegrityMetrics) RecordDuration(ctx context.Context, operation string, d time.Duration) {
	if m == nil {
		return
	}
	m.duration.RecordDuration(ctx, d, AttrOperation.String(operation))
}
