package hooks

import (
	"context"
	"log/slog"
	"time"

	"github.com/blockweave/blockweave/state"
)

// Named entry types pair a hook implementation with the extension name
// captured at registration time. This avoids type-asserting back to
// Extension inside the emit methods.
type workflowStartedEntry struct {
	name string
	hook WorkflowStarted
}

type stageActiveEntry struct {
	name string
	hook StageActive
}

type stageCompletedEntry struct {
	name string
	hook StageCompleted
}

type workflowCompletedEntry struct {
	name string
	hook WorkflowCompleted
}

type workflowFailedEntry struct {
	name string
	hook WorkflowFailed
}

type selectionEventEntry struct {
	name string
	hook SelectionEvent
}

type cleanupOutcomeEntry struct {
	name string
	hook CleanupOutcome
}

type shutdownEntry struct {
	name string
	hook Shutdown
}

// Registry holds registered extensions and dispatches lifecycle events
// to them. It type-caches extensions at registration time so emit calls
// iterate only over extensions that implement the relevant hook.
type Registry struct {
	extensions []Extension
	logger     *slog.Logger

	workflowStarted   []workflowStartedEntry
	stageActive       []stageActiveEntry
	stageCompleted    []stageCompletedEntry
	workflowCompleted []workflowCompletedEntry
	workflowFailed    []workflowFailedEntry
	selectionEvent    []selectionEventEntry
	cleanupOutcome    []cleanupOutcomeEntry
	shutdown          []shutdownEntry
}

// NewRegistry creates an extension registry with the given logger.
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{logger: logger}
}

// Register adds an extension and type-asserts it into all applicable
// hook caches. Extensions are notified in registration order.
func (r *Registry) Register(e Extension) {
	r.extensions = append(r.extensions, e)
	name := e.Name()

	if h, ok := e.(WorkflowStarted); ok {
		r.workflowStarted = append(r.workflowStarted, workflowStartedEntry{name, h})
	}
	if h, ok := e.(StageActive); ok {
		r.stageActive = append(r.stageActive, stageActiveEntry{name, h})
	}
	if h, ok := e.(StageCompleted); ok {
		r.stageCompleted = append(r.stageCompleted, stageCompletedEntry{name, h})
	}
	if h, ok := e.(WorkflowCompleted); ok {
		r.workflowCompleted = append(r.workflowCompleted, workflowCompletedEntry{name, h})
	}
	if h, ok := e.(WorkflowFailed); ok {
		r.workflowFailed = append(r.workflowFailed, workflowFailedEntry{name, h})
	}
	if h, ok := e.(SelectionEvent); ok {
		r.selectionEvent = append(r.selectionEvent, selectionEventEntry{name, h})
	}
	if h, ok := e.(CleanupOutcome); ok {
		r.cleanupOutcome = append(r.cleanupOutcome, cleanupOutcomeEntry{name, h})
	}
	if h, ok := e.(Shutdown); ok {
		r.shutdown = append(r.shutdown, shutdownEntry{name, h})
	}
}

// Extensions returns all registered extensions.
func (r *Registry) Extensions() []Extension { return r.extensions }

// EmitWorkflowStarted notifies all extensions that implement WorkflowStarted.
func (r *Registry) EmitWorkflowStarted(ctx context.Context, sessionID string) {
	for _, e := range r.workflowStarted {
		if err := e.hook.OnWorkflowStarted(ctx, sessionID); err != nil {
			r.logHookError("OnWorkflowStarted", e.name, err)
		}
	}
}

// EmitStageActive notifies all extensions that implement StageActive.
func (r *Registry) EmitStageActive(ctx context.Context, sessionID string, stage state.Stage) {
	for _, e := range r.stageActive {
		if err := e.hook.OnStageActive(ctx, sessionID, stage); err != nil {
			r.logHookError("OnStageActive", e.name, err)
		}
	}
}

// EmitStageCompleted notifies all extensions that implement StageCompleted.
func (r *Registry) EmitStageCompleted(ctx context.Context, sessionID string, stage state.Stage, elapsed time.Duration) {
	for _, e := range r.stageCompleted {
		if err := e.hook.OnStageCompleted(ctx, sessionID, stage, elapsed); err != nil {
			r.logHookError("OnStageCompleted", e.name, err)
		}
	}
}

// EmitWorkflowCompleted notifies all extensions that implement
// WorkflowCompleted.
func (r *Registry) EmitWorkflowCompleted(ctx context.Context, sessionID string, preview *state.PreviewData, elapsed time.Duration) {
	for _, e := range r.workflowCompleted {
		if err := e.hook.OnWorkflowCompleted(ctx, sessionID, preview, elapsed); err != nil {
			r.logHookError("OnWorkflowCompleted", e.name, err)
		}
	}
}

// EmitWorkflowFailed notifies all extensions that implement WorkflowFailed.
func (r *Registry) EmitWorkflowFailed(ctx context.Context, sessionID string, wfErr error) {
	for _, e := range r.workflowFailed {
		if err := e.hook.OnWorkflowFailed(ctx, sessionID, wfErr); err != nil {
			r.logHookError("OnWorkflowFailed", e.name, err)
		}
	}
}

// EmitSelectionEvent notifies all extensions that implement SelectionEvent.
func (r *Registry) EmitSelectionEvent(ctx context.Context, eventType string, payload []byte) {
	for _, e := range r.selectionEvent {
		if err := e.hook.OnSelectionEvent(ctx, eventType, payload); err != nil {
			r.logHookError("OnSelectionEvent", e.name, err)
		}
	}
}

// EmitCleanupOutcome notifies all extensions that implement CleanupOutcome.
func (r *Registry) EmitCleanupOutcome(ctx context.Context, sessionID string, cleanupErr error) {
	for _, e := range r.cleanupOutcome {
		if err := e.hook.OnCleanupOutcome(ctx, sessionID, cleanupErr); err != nil {
			r.logHookError("OnCleanupOutcome", e.name, err)
		}
	}
}

// EmitShutdown notifies all extensions that implement Shutdown.
func (r *Registry) EmitShutdown(ctx context.Context) {
	for _, e := range r.shutdown {
		if err := e.hook.OnShutdown(ctx); err != nil {
			r.logHookError("OnShutdown", e.name, err)
		}
	}
}

// logHookError logs a hook failure. Hook errors never propagate to the
// workflow; a broken extension must not break the coordinator.
func (r *Registry) logHookError(hook, extension string, err error) {
	r.logger.Error("extension hook failed",
		"hook", hook,
		"extension", extension,
		"error", err,
	)
}
