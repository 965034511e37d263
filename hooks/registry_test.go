package hooks_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/blockweave/blockweave/hooks"
	"github.com/blockweave/blockweave/state"
)

// allHooksExt implements every lifecycle hook for testing.
type allHooksExt struct {
	calls []string
}

func (e *allHooksExt) Name() string { return "all-hooks" }

func (e *allHooksExt) OnWorkflowStarted(_ context.Context, _ string) error {
	e.calls = append(e.calls, "OnWorkflowStarted")
	return nil
}

func (e *allHooksExt) OnStageActive(_ context.Context, _ string, _ state.Stage) error {
	e.calls = append(e.calls, "OnStageActive")
	return nil
}

func (e *allHooksExt) OnStageCompleted(_ context.Context, _ string, _ state.Stage, _ time.Duration) error {
	e.calls = append(e.calls, "OnStageCompleted")
	return nil
}

func (e *allHooksExt) OnWorkflowCompleted(_ context.Context, _ string, _ *state.PreviewData, _ time.Duration) error {
	e.calls = append(e.calls, "OnWorkflowCompleted")
	return nil
}

func (e *allHooksExt) OnWorkflowFailed(_ context.Context, _ string, _ error) error {
	e.calls = append(e.calls, "OnWorkflowFailed")
	return nil
}

func (e *allHooksExt) OnSelectionEvent(_ context.Context, _ string, _ []byte) error {
	e.calls = append(e.calls, "OnSelectionEvent")
	return nil
}

func (e *allHooksExt) OnCleanupOutcome(_ context.Context, _ string, _ error) error {
	e.calls = append(e.calls, "OnCleanupOutcome")
	return nil
}

func (e *allHooksExt) OnShutdown(_ context.Context) error {
	e.calls = append(e.calls, "OnShutdown")
	return nil
}

// startedOnlyExt implements only WorkflowStarted.
type startedOnlyExt struct {
	started int
}

func (e *startedOnlyExt) Name() string { return "started-only" }

func (e *startedOnlyExt) OnWorkflowStarted(_ context.Context, _ string) error {
	e.started++
	return nil
}

// failingExt returns an error from every hook it implements.
type failingExt struct{}

func (e *failingExt) Name() string { return "failing" }

func (e *failingExt) OnWorkflowFailed(_ context.Context, _ string, _ error) error {
	return errors.New("hook exploded")
}

func TestRegistryDispatchesAllHooks(t *testing.T) {
	r := hooks.NewRegistry(slog.Default())
	ext := &allHooksExt{}
	r.Register(ext)

	ctx := context.Background()
	r.EmitWorkflowStarted(ctx, "a1b2c3d4")
	r.EmitStageActive(ctx, "a1b2c3d4", state.StageScreenshot)
	r.EmitStageCompleted(ctx, "a1b2c3d4", state.StageScreenshot, time.Second)
	r.EmitWorkflowCompleted(ctx, "a1b2c3d4", &state.PreviewData{}, time.Minute)
	r.EmitWorkflowFailed(ctx, "a1b2c3d4", errors.New("boom"))
	r.EmitSelectionEvent(ctx, "ELEMENT_SELECTED", []byte(`{}`))
	r.EmitCleanupOutcome(ctx, "a1b2c3d4", nil)
	r.EmitShutdown(ctx)

	want := []string{
		"OnWorkflowStarted",
		"OnStageActive",
		"OnStageCompleted",
		"OnWorkflowCompleted",
		"OnWorkflowFailed",
		"OnSelectionEvent",
		"OnCleanupOutcome",
		"OnShutdown",
	}
	if len(ext.calls) != len(want) {
		t.Fatalf("calls = %v, want %v", ext.calls, want)
	}
	for i := range want {
		if ext.calls[i] != want[i] {
			t.Errorf("call[%d] = %q, want %q", i, ext.calls[i], want[i])
		}
	}
}

func TestRegistryOnlyNotifiesImplementers(t *testing.T) {
	r := hooks.NewRegistry(slog.Default())
	ext := &startedOnlyExt{}
	r.Register(ext)

	ctx := context.Background()
	r.EmitWorkflowStarted(ctx, "s1")
	r.EmitWorkflowStarted(ctx, "s2")
	r.EmitWorkflowFailed(ctx, "s1", errors.New("boom"))
	r.EmitShutdown(ctx)

	if ext.started != 2 {
		t.Errorf("started = %d, want 2", ext.started)
	}
}

func TestHookErrorsDoNotPropagate(t *testing.T) {
	r := hooks.NewRegistry(slog.Default())
	r.Register(&failingExt{})
	after := &startedOnlyExt{}
	r.Register(after)

	// Must not panic, and later extensions still run.
	r.EmitWorkflowFailed(context.Background(), "s1", errors.New("boom"))
	r.EmitWorkflowStarted(context.Background(), "s1")
	if after.started != 1 {
		t.Errorf("later extension skipped after failing hook")
	}
}

func TestExtensionsAccessor(t *testing.T) {
	r := hooks.NewRegistry(slog.Default())
	r.Register(&allHooksExt{})
	r.Register(&startedOnlyExt{})
	if n := len(r.Extensions()); n != 2 {
		t.Errorf("Extensions() = %d, want 2", n)
	}
}
