// Package observability records coordinator lifecycle metrics through
// OpenTelemetry. Register MetricsExtension on the hooks registry; with no
// MeterProvider installed the instruments are noops and the extension adds
// zero overhead.
package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/blockweave/blockweave/hooks"
	"github.com/blockweave/blockweave/state"
)

// meterName is the instrumentation scope name for coordinator metrics.
const meterName = "github.com/blockweave/blockweave"

// Compile-time interface checks.
var (
	_ hooks.Extension         = (*MetricsExtension)(nil)
	_ hooks.WorkflowStarted   = (*MetricsExtension)(nil)
	_ hooks.StageCompleted    = (*MetricsExtension)(nil)
	_ hooks.WorkflowCompleted = (*MetricsExtension)(nil)
	_ hooks.WorkflowFailed    = (*MetricsExtension)(nil)
	_ hooks.CleanupOutcome    = (*MetricsExtension)(nil)
)

// MetricsExtension counts workflow starts, stage completions, terminal
// outcomes, and rejection cleanup results.
type MetricsExtension struct {
	started   metric.Int64Counter
	stages    metric.Int64Counter
	completed metric.Int64Counter
	failed    metric.Int64Counter
	cleanups  metric.Int64Counter
	durations metric.Float64Histogram
}

// NewMetricsExtension creates a MetricsExtension on the global MeterProvider.
func NewMetricsExtension() *MetricsExtension {
	return NewMetricsExtensionWithMeter(otel.Meter(meterName))
}

// NewMetricsExtensionWithMeter creates a MetricsExtension with the provided
// meter. This variant allows injecting a specific MeterProvider for testing.
func NewMetricsExtensionWithMeter(meter metric.Meter) *MetricsExtension {
	// Instrument creation errors fall back to noops per the OTel API
	// contract, so they are deliberately ignored.
	started, _ := meter.Int64Counter(
		"blockweave.workflow.started",
		metric.WithDescription("Workflows started"),
		metric.WithUnit("{workflow}"),
	)
	stages, _ := meter.Int64Counter(
		"blockweave.workflow.stage.completed",
		metric.WithDescription("Workflow stages completed"),
		metric.WithUnit("{stage}"),
	)
	completed, _ := meter.Int64Counter(
		"blockweave.workflow.completed",
		metric.WithDescription("Workflows that reached preview"),
		metric.WithUnit("{workflow}"),
	)
	failed, _ := meter.Int64Counter(
		"blockweave.workflow.failed",
		metric.WithDescription("Workflows that ended in error"),
		metric.WithUnit("{workflow}"),
	)
	cleanups, _ := meter.Int64Counter(
		"blockweave.rejection.cleanup",
		metric.WithDescription("Best-effort rejection cleanup outcomes"),
		metric.WithUnit("{cleanup}"),
	)
	durations, _ := meter.Float64Histogram(
		"blockweave.workflow.duration",
		metric.WithDescription("Workflow wall time in seconds"),
		metric.WithUnit("s"),
	)

	return &MetricsExtension{
		started:   started,
		stages:    stages,
		completed: completed,
		failed:    failed,
		cleanups:  cleanups,
		durations: durations,
	}
}

// Name implements hooks.Extension.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// OnWorkflowStarted implements hooks.WorkflowStarted.
func (m *MetricsExtension) OnWorkflowStarted(ctx context.Context, _ string) error {
	m.started.Add(ctx, 1)
	return nil
}

// OnStageCompleted implements hooks.StageCompleted.
func (m *MetricsExtension) OnStageCompleted(ctx context.Context, _ string, stage state.Stage, _ time.Duration) error {
	m.stages.Add(ctx, 1, metric.WithAttributes(
		attribute.String("stage", string(stage)),
	))
	return nil
}

// OnWorkflowCompleted implements hooks.WorkflowCompleted.
func (m *MetricsExtension) OnWorkflowCompleted(ctx context.Context, _ string, _ *state.PreviewData, elapsed time.Duration) error {
	m.completed.Add(ctx, 1)
	m.durations.Record(ctx, elapsed.Seconds(), metric.WithAttributes(
		attribute.String("status", "ok"),
	))
	return nil
}

// OnWorkflowFailed implements hooks.WorkflowFailed.
func (m *MetricsExtension) OnWorkflowFailed(ctx context.Context, _ string, _ error) error {
	m.failed.Add(ctx, 1)
	return nil
}

// OnCleanupOutcome implements hooks.CleanupOutcome.
func (m *MetricsExtension) OnCleanupOutcome(ctx context.Context, _ string, cleanupErr error) error {
	status := "ok"
	if cleanupErr != nil {
		status = "error"
	}
	m.cleanups.Add(ctx, 1, metric.WithAttributes(
		attribute.String("status", status),
	))
	return nil
}
