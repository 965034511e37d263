package observability_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/blockweave/blockweave/observability"
	"github.com/blockweave/blockweave/state"
)

// With no MeterProvider installed the global meter is a noop; every hook
// must still be callable without panicking.
func TestNoopMeterIsSafe(t *testing.T) {
	m := observability.NewMetricsExtension()
	if m.Name() != "observability-metrics" {
		t.Errorf("Name() = %q", m.Name())
	}

	ctx := context.Background()
	if err := m.OnWorkflowStarted(ctx, "a1b2c3d4"); err != nil {
		t.Errorf("OnWorkflowStarted: %v", err)
	}
	if err := m.OnStageCompleted(ctx, "a1b2c3d4", state.StageGenerate, time.Second); err != nil {
		t.Errorf("OnStageCompleted: %v", err)
	}
	if err := m.OnWorkflowCompleted(ctx, "a1b2c3d4", &state.PreviewData{}, time.Minute); err != nil {
		t.Errorf("OnWorkflowCompleted: %v", err)
	}
	if err := m.OnWorkflowFailed(ctx, "a1b2c3d4", errors.New("boom")); err != nil {
		t.Errorf("OnWorkflowFailed: %v", err)
	}
	if err := m.OnCleanupOutcome(ctx, "a1b2c3d4", nil); err != nil {
		t.Errorf("OnCleanupOutcome: %v", err)
	}
	if err := m.OnCleanupOutcome(ctx, "a1b2c3d4", errors.New("cleanup failed")); err != nil {
		t.Errorf("OnCleanupOutcome(err): %v", err)
	}
}
