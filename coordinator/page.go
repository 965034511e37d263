package coordinator

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/blockweave/blockweave/id"
	"github.com/blockweave/blockweave/remote"
	"github.com/blockweave/blockweave/state"
)

// sectionConcurrency caps parallel per-section generations.
const sectionConcurrency = 4

// handleAnalyzePage asks the service for the page's section breakdown.
func (c *Coordinator) handleAnalyzePage(ctx context.Context, r *AnalyzePage) *Response {
	cfg, err := c.Config(ctx)
	if err != nil {
		return fail(err)
	}

	c.keeper.Start()
	defer c.keeper.Stop()

	res, err := c.serviceClient(cfg).AnalyzePage(ctx, r.URL)
	if err != nil {
		return fail(err)
	}
	return ok(res)
}

// SectionResult pairs a generated artifact with its preview variant. Each
// section carries its own session so concurrent generations never share
// the current-workflow record.
type SectionResult struct {
	SectionIndex int                    `json:"sectionIndex"`
	SessionID    string                 `json:"sessionId"`
	Artifact     *remote.GenerateResult `json:"artifact"`
	Variant      remote.Variant         `json:"variant"`
}

// handleGenerateForSection generates and preview-pushes one section. It
// deliberately never touches the shared workflow record.
func (c *Coordinator) handleGenerateForSection(ctx context.Context, r *GenerateBlockForSection) *Response {
	cfg, err := c.Config(ctx)
	if err != nil {
		return fail(err)
	}

	c.keeper.Start()
	defer c.keeper.Stop()

	res, err := c.generateSection(ctx, cfg, r)
	if err != nil {
		return fail(err)
	}
	return ok(res)
}

func (c *Coordinator) generateSection(ctx context.Context, cfg *state.Config, r *GenerateBlockForSection) (*SectionResult, error) {
	client := c.serviceClient(cfg)

	sessionID := r.SessionID
	if sessionID == "" {
		sessionID = id.NewSessionID()
	}

	artifact, err := client.GenerateForSection(ctx, &remote.GenerateForSectionRequest{
		URL:          r.URL,
		SectionIndex: r.SectionIndex,
		SectionName:  r.SectionName,
		Markup:       r.Markup,
		SessionID:    sessionID,
	})
	if err != nil {
		return nil, err
	}

	pushed, err := client.PushPreview(ctx, &remote.PushPreviewRequest{
		SessionID:     sessionID,
		ArtifactName:  artifact.ArtifactName,
		Markup:        artifact.Markup,
		Style:         artifact.Style,
		Behavior:      artifact.Behavior,
		RepositoryRef: cfg.RepositoryRef,
		ContentOrg:    cfg.ContentOrg,
		ContentSite:   cfg.ContentSite,
	})
	if err != nil {
		return nil, err
	}

	return &SectionResult{
		SectionIndex: r.SectionIndex,
		SessionID:    sessionID,
		Artifact:     artifact,
		Variant:      pushed.Variant,
	}, nil
}

// GenerateSections fans out per-section generation across the given
// descriptors, bounded by sectionConcurrency. The first failure cancels
// the remaining sections; completed results are still returned.
func (c *Coordinator) GenerateSections(ctx context.Context, url string, sections []remote.PageBlock) ([]*SectionResult, error) {
	cfg, err := c.Config(ctx)
	if err != nil {
		return nil, err
	}

	c.keeper.Start()
	defer c.keeper.Stop()

	var mu sync.Mutex
	results := make([]*SectionResult, 0, len(sections))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(sectionConcurrency)
	for _, s := range sections {
		g.Go(func() error {
			res, err := c.generateSection(gctx, cfg, &GenerateBlockForSection{
				URL:          url,
				SectionIndex: s.Index,
				SectionName:  s.Name,
				Markup:       s.Markup,
			})
			if err != nil {
				return err
			}
			mu.Lock()
			results = append(results, res)
			mu.Unlock()
			return nil
		})
	}

	err = g.Wait()
	return results, err
}

// handleComposePage issues one compose call assembling previously accepted
// artifacts into a page.
func (c *Coordinator) handleComposePage(ctx context.Context, r *ComposePage) *Response {
	cfg, err := c.Config(ctx)
	if err != nil {
		return fail(err)
	}

	c.keeper.Start()
	defer c.keeper.Stop()

	sessionID := r.SessionID
	if sessionID == "" {
		sessionID = id.NewSessionID()
	}

	res, err := c.serviceClient(cfg).ComposePage(ctx, &remote.ComposePageRequest{
		URL:               r.URL,
		Title:             r.Title,
		SessionID:         sessionID,
		Sections:          r.Sections,
		AcceptedArtifacts: r.AcceptedArtifacts,
		RepositoryRef:     cfg.RepositoryRef,
		ContentOrg:        cfg.ContentOrg,
		ContentSite:       cfg.ContentSite,
	})
	if err != nil {
		return fail(err)
	}
	return ok(res)
}

// handleFinalizePage merges a composed page keyed by branch ref.
func (c *Coordinator) handleFinalizePage(ctx context.Context, r *FinalizePage) *Response {
	cfg, err := c.Config(ctx)
	if err != nil {
		return fail(err)
	}

	c.keeper.Start()
	defer c.keeper.Stop()

	res, err := c.serviceClient(cfg).FinalizePage(ctx, &remote.PageRefRequest{
		BranchRef:     r.BranchRef,
		RepositoryRef: cfg.RepositoryRef,
	})
	if err != nil {
		return fail(err)
	}
	return ok(res)
}

// handleRejectPage is best-effort like block rejection: the cleanup result
// goes to the hooks and the caller always gets success.
func (c *Coordinator) handleRejectPage(ctx context.Context, r *RejectPage) *Response {
	var cleanupErr error
	cfg, err := c.Config(ctx)
	if err != nil {
		cleanupErr = err
	} else {
		cleanupErr = c.serviceClient(cfg).RejectPage(ctx, &remote.PageRefRequest{
			BranchRef:     r.BranchRef,
			RepositoryRef: cfg.RepositoryRef,
		})
	}

	if cleanupErr != nil {
		c.logger.Warn("page rejection cleanup failed", "branch", r.BranchRef, "error", cleanupErr)
	}
	c.registry.EmitCleanupOutcome(ctx, r.BranchRef, cleanupErr)
	return ok(nil)
}
