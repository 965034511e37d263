// Package hooks defines the extension system for the coordinator.
// Extensions are notified of workflow lifecycle events (started, stage
// transitions, completed, failed) and can react to them — logging, metrics,
// forwarding to listeners.
//
// Each lifecycle hook is a separate interface so extensions opt in only
// to the events they care about.
package hooks

import (
	"context"
	"time"

	"github.com/blockweave/blockweave/state"
)

// Extension is the base interface all extensions must implement.
type Extension interface {
	// Name returns a unique human-readable name for the extension.
	Name() string
}

// WorkflowStarted is called when a generation workflow begins, after the
// fresh state record has been persisted.
type WorkflowStarted interface {
	OnWorkflowStarted(ctx context.Context, sessionID string) error
}

// StageActive is called when a workflow stage transitions to active. The
// persisted record already reflects the transition.
type StageActive interface {
	OnStageActive(ctx context.Context, sessionID string, stage state.Stage) error
}

// StageCompleted is called after a workflow stage completes.
type StageCompleted interface {
	OnStageCompleted(ctx context.Context, sessionID string, stage state.Stage, elapsed time.Duration) error
}

// WorkflowCompleted is called after a workflow reaches preview.
type WorkflowCompleted interface {
	OnWorkflowCompleted(ctx context.Context, sessionID string, preview *state.PreviewData, elapsed time.Duration) error
}

// WorkflowFailed is called when a workflow fails terminally. The persisted
// record already carries status error and the failure message.
type WorkflowFailed interface {
	OnWorkflowFailed(ctx context.Context, sessionID string, err error) error
}

// SelectionEvent is called when the page agent pushes a selection event
// (element selected, section selected, cancelled) to be forwarded to
// listeners.
type SelectionEvent interface {
	OnSelectionEvent(ctx context.Context, eventType string, payload []byte) error
}

// CleanupOutcome is called after a best-effort rejection finishes, carrying
// the downstream cleanup result that the caller never sees.
type CleanupOutcome interface {
	OnCleanupOutcome(ctx context.Context, sessionID string, cleanupErr error) error
}

// Shutdown is called during graceful shutdown.
type Shutdown interface {
	OnShutdown(ctx context.Context) error
}
