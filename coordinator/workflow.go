package coordinator

import (
	"context"
	"fmt"
	"time"

	"github.com/blockweave/blockweave"
	"github.com/blockweave/blockweave/id"
	"github.com/blockweave/blockweave/remote"
	"github.com/blockweave/blockweave/state"
)

// handleStartSelection installs the page agent into the deterministically
// chosen target and opens it in element or section mode. The workflow
// record moves to selecting with a fresh session before the caller is
// answered.
func (c *Coordinator) handleStartSelection(ctx context.Context, sectionMode bool) *Response {
	if c.bridge == nil {
		return fail(blockweave.ErrNoTargetPage)
	}

	target, err := c.bridge.PickTarget(ctx)
	if err != nil {
		return fail(err)
	}
	if err := c.bridge.Install(ctx, target, c.agentStyle, c.agentBehavior); err != nil {
		return fail(err)
	}

	open := c.bridge.Open
	if sectionMode {
		open = c.bridge.EnterSectionMode
	}
	if err := open(ctx); err != nil {
		return fail(err)
	}

	sessionID := id.NewSessionID()
	ws := state.NewWorkflowState(state.StatusSelecting, sessionID)
	if _, err := c.store.PatchState(ctx, &state.Patch{Replace: ws}); err != nil {
		return fail(err)
	}

	c.logger.Info("selection started", "session", sessionID, "url", target.URL, "sectionMode", sectionMode)
	return ok(map[string]any{"sessionId": sessionID})
}

// handleCancelSelection dismisses the agent overlay and resets the record
// to idle. A failing cancel message is logged, not surfaced; the reset
// happens regardless.
func (c *Coordinator) handleCancelSelection(ctx context.Context) *Response {
	if c.bridge != nil {
		if err := c.bridge.Cancel(ctx); err != nil {
			c.logger.Warn("cancel message not delivered", "error", err)
		}
	}
	if _, err := c.store.PatchState(ctx, &state.Patch{Replace: state.Idle()}); err != nil {
		return fail(err)
	}
	return ok(nil)
}

// handleOpenSidebar installs the agent and opens its panel without touching
// the workflow record.
func (c *Coordinator) handleOpenSidebar(ctx context.Context) *Response {
	if c.bridge == nil {
		return fail(blockweave.ErrNoTargetPage)
	}
	target, err := c.bridge.PickTarget(ctx)
	if err != nil {
		return fail(err)
	}
	if err := c.bridge.Install(ctx, target, c.agentStyle, c.agentBehavior); err != nil {
		return fail(err)
	}
	if err := c.bridge.Open(ctx); err != nil {
		return fail(err)
	}
	return ok(nil)
}

// handleGetBlocks lists artifacts already in the configured repository.
func (c *Coordinator) handleGetBlocks(ctx context.Context) *Response {
	cfg, err := c.Config(ctx)
	if err != nil {
		return fail(err)
	}
	if c.blocks == nil {
		return ok([]any{})
	}
	entries, err := c.blocks.ListBlocks(ctx, cfg.RepositoryRef)
	if err != nil {
		return fail(err)
	}
	return ok(entries)
}

// handleGenerate runs the single-element generation workflow:
// screenshot → html → generate → preview. The liveness signal is held from
// before the first remote call and released on every exit path.
func (c *Coordinator) handleGenerate(ctx context.Context, r *GenerateBlock) *Response {
	cfg, err := c.Config(ctx)
	if err != nil {
		return fail(err)
	}

	sessionID := r.SessionID
	switch {
	case sessionID == "":
		// An element selection continues the workflow that opened the
		// agent: the selecting record already carries the session handed
		// to the caller, so adopt it rather than splitting one workflow
		// across two sessions. Direct generation entry mints fresh.
		if cur, gErr := c.store.GetState(ctx); gErr == nil && cur.Status == state.StatusSelecting && cur.SessionID != "" {
			sessionID = cur.SessionID
		} else {
			sessionID = id.NewSessionID()
		}
	case r.RefinementCount > 0:
		// Refinements run under an iteration-suffixed session: progress
		// never regresses within one session, and each pass gets its own
		// preview lineage. The suffix stays subdomain-safe.
		sessionID = fmt.Sprintf("%sr%d", sessionID, r.RefinementCount)
	}

	// Replace, never merge: a new workflow starts from a clean record.
	ws := state.NewWorkflowState(state.StatusGenerating, sessionID)
	if _, err := c.store.PatchState(ctx, &state.Patch{Replace: ws}); err != nil {
		return fail(err)
	}
	c.registry.EmitWorkflowStarted(ctx, sessionID)

	c.keeper.Start()
	defer c.keeper.Stop()

	started := time.Now()
	preview, err := c.runGeneration(ctx, cfg, sessionID, r)
	if err != nil {
		c.failWorkflow(ctx, sessionID, err)
		return fail(err)
	}

	c.registry.EmitWorkflowCompleted(ctx, sessionID, preview, time.Since(started))
	c.logger.Info("generation complete",
		"session", sessionID,
		"artifact", preview.ArtifactName,
		"previewUrl", preview.PreviewURL)
	return ok(preview)
}

// runGeneration executes the stage graph. Each transition is persisted
// before listeners are notified.
func (c *Coordinator) runGeneration(ctx context.Context, cfg *state.Config, sessionID string, r *GenerateBlock) (*state.PreviewData, error) {
	client := c.serviceClient(cfg)

	// screenshot
	screenshot, err := withStage(c, ctx, sessionID, state.StageScreenshot, func() ([]byte, error) {
		if c.bridge == nil {
			return nil, blockweave.ErrCaptureFailed
		}
		return c.bridge.CaptureScreenshot(ctx, r.Bounds)
	})
	if err != nil {
		return nil, err
	}

	// html: the selection already carries the source markup; the stage
	// exists so restarts can tell captured-but-not-sent from sent.
	markup, err := withStage(c, ctx, sessionID, state.StageHTML, func() (string, error) {
		return r.Markup, nil
	})
	if err != nil {
		return nil, err
	}

	// generate
	artifact, err := withStage(c, ctx, sessionID, state.StageGenerate, func() (*remote.GenerateResult, error) {
		return client.Generate(ctx, &remote.GenerateRequest{
			URL:                 r.URL,
			Screenshot:          screenshot,
			XPath:               r.XPath,
			Markup:              markup,
			BackgroundImageRefs: r.BackgroundImageRefs,
			RefinementCount:     r.RefinementCount,
		})
	})
	if err != nil {
		return nil, err
	}

	// preview
	pushed, err := withStage(c, ctx, sessionID, state.StagePreview, func() (*remote.PushPreviewResult, error) {
		return client.PushPreview(ctx, &remote.PushPreviewRequest{
			SessionID:     sessionID,
			ArtifactName:  artifact.ArtifactName,
			Markup:        artifact.Markup,
			Style:         artifact.Style,
			Behavior:      artifact.Behavior,
			RepositoryRef: cfg.RepositoryRef,
			ContentOrg:    cfg.ContentOrg,
			ContentSite:   cfg.ContentSite,
			Iteration:     r.RefinementCount,
		})
	})
	if err != nil {
		return nil, err
	}

	preview := &state.PreviewData{
		ArtifactName: artifact.ArtifactName,
		Markup:       artifact.Markup,
		Style:        artifact.Style,
		Behavior:     artifact.Behavior,
		PreviewURL:   pushed.Variant.PreviewURL,
		BranchRef:    pushed.Variant.BranchRef,
	}

	status := state.StatusPreview
	_, err = c.store.PatchState(ctx, &state.Patch{
		Status:  &status,
		Preview: &preview,
	})
	if err != nil {
		return nil, err
	}
	return preview, nil
}

// withStage brackets fn with persisted active/complete transitions and the
// corresponding hook emissions.
func withStage[T any](c *Coordinator, ctx context.Context, sessionID string, stage state.Stage, fn func() (T, error)) (T, error) {
	var zero T
	if err := c.setStage(ctx, sessionID, stage, state.StageActive); err != nil {
		return zero, err
	}
	started := time.Now()

	out, err := fn()
	if err != nil {
		return zero, err
	}

	if err := c.setStage(ctx, sessionID, stage, state.StageComplete); err != nil {
		return zero, err
	}
	c.registry.EmitStageCompleted(ctx, sessionID, stage, time.Since(started))
	return out, nil
}

// setStage persists one progress transition, then notifies listeners.
func (c *Coordinator) setStage(ctx context.Context, sessionID string, stage state.Stage, ss state.StageState) error {
	_, err := c.store.PatchState(ctx, &state.Patch{
		Progress: map[state.Stage]state.StageState{stage: ss},
	})
	if err != nil {
		return err
	}
	if ss == state.StageActive {
		c.registry.EmitStageActive(ctx, sessionID, stage)
	}
	return nil
}

// failWorkflow records a terminal failure: status error, message set,
// preview cleared. Persisted before the failure event goes out.
func (c *Coordinator) failWorkflow(ctx context.Context, sessionID string, wfErr error) {
	status := state.StatusError
	msg := wfErr.Error()
	patch := &state.Patch{
		Status:  &status,
		Error:   &msg,
		Preview: state.ClearPreview(),
	}
	if _, err := c.store.PatchState(ctx, patch); err != nil {
		c.logger.Error("failed to persist workflow failure", "session", sessionID, "error", err)
	}
	c.registry.EmitWorkflowFailed(ctx, sessionID, wfErr)
	c.logger.Warn("workflow failed", "session", sessionID, "error", wfErr)
}

// handleAccept finalizes the previewed artifact. Acceptance is terminal and
// out-of-band: the workflow record is left untouched.
func (c *Coordinator) handleAccept(ctx context.Context, r *AcceptBlock) *Response {
	cfg, err := c.Config(ctx)
	if err != nil {
		return fail(err)
	}

	c.keeper.Start()
	defer c.keeper.Stop()

	winner := remote.FirstOfOneSelector([]remote.Variant{{BranchRef: r.BranchRef}})
	res, err := c.serviceClient(cfg).Finalize(ctx, &remote.FinalizeRequest{
		SessionID:      r.SessionID,
		ArtifactName:   r.ArtifactName,
		WinnerSelector: winner,
		RepositoryRef:  cfg.RepositoryRef,
		ContentOrg:     cfg.ContentOrg,
		ContentSite:    cfg.ContentSite,
	})
	if err != nil {
		return fail(err)
	}
	return ok(res)
}

// handleReject is best-effort: the downstream cleanup call runs, its
// outcome goes to the hooks, and the caller always gets success. Cleanup
// failures must never block the user-visible flow.
func (c *Coordinator) handleReject(ctx context.Context, sessionID string) *Response {
	var cleanupErr error
	cfg, err := c.Config(ctx)
	if err != nil {
		cleanupErr = err
	} else {
		cleanupErr = c.serviceClient(cfg).RejectBlock(ctx, sessionID, cfg.RepositoryRef)
	}

	if cleanupErr != nil {
		c.logger.Warn("rejection cleanup failed", "session", sessionID, "error", cleanupErr)
	}
	c.registry.EmitCleanupOutcome(ctx, sessionID, cleanupErr)
	return ok(nil)
}
