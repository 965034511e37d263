package coordinator

import (
	"context"
	"sort"

	"github.com/blockweave/blockweave/id"
	"github.com/blockweave/blockweave/remote"
)

// TokenPair is the uniform presentation shape for a design token.
type TokenPair struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// DesignSystemResult is the normalized import response.
type DesignSystemResult struct {
	SessionID string      `json:"sessionId"`
	Colors    []TokenPair `json:"colors"`
	Fonts     []TokenPair `json:"fonts"`
	Preview   any         `json:"preview,omitempty"`
	GitHub    any         `json:"github,omitempty"`
}

// handleImportDesignSystem extracts raw design tokens from a page and
// normalizes them into token pairs.
func (c *Coordinator) handleImportDesignSystem(ctx context.Context, r *ImportDesignSystem) *Response {
	cfg, err := c.Config(ctx)
	if err != nil {
		return fail(err)
	}

	c.keeper.Start()
	defer c.keeper.Stop()

	sessionID := id.NewSessionID()
	res, err := c.serviceClient(cfg).ImportDesignSystem(ctx, &remote.ImportDesignSystemRequest{
		URL:           r.URL,
		SessionID:     sessionID,
		RepositoryRef: cfg.RepositoryRef,
		ContentOrg:    cfg.ContentOrg,
		ContentSite:   cfg.ContentSite,
	})
	if err != nil {
		return fail(err)
	}

	out := &DesignSystemResult{
		SessionID: sessionID,
		Colors:    NormalizeColors(res.ExtractedDesign.Colors),
		Fonts:     NormalizeFonts(res.ExtractedDesign.Fonts, res.ExtractedDesign.Typography),
	}
	if len(res.Preview) > 0 {
		out.Preview = res.Preview
	}
	if len(res.GitHub) > 0 {
		out.GitHub = res.GitHub
	}
	return ok(out)
}

// handleFinalizeDesignSystem merges the imported design system's preview
// branch, reusing the finalize call with a fixed artifact name.
func (c *Coordinator) handleFinalizeDesignSystem(ctx context.Context, r *FinalizeDesignSystem) *Response {
	cfg, err := c.Config(ctx)
	if err != nil {
		return fail(err)
	}

	c.keeper.Start()
	defer c.keeper.Stop()

	res, err := c.serviceClient(cfg).Finalize(ctx, &remote.FinalizeRequest{
		SessionID:      r.SessionID,
		ArtifactName:   "design-system",
		WinnerSelector: "first",
		RepositoryRef:  cfg.RepositoryRef,
		ContentOrg:     cfg.ContentOrg,
		ContentSite:    cfg.ContentSite,
	})
	if err != nil {
		return fail(err)
	}
	return ok(res)
}

// NormalizeColors turns the raw name→value color map into sorted token
// pairs, dropping entries with empty values.
func NormalizeColors(colors map[string]string) []TokenPair {
	pairs := make([]TokenPair, 0, len(colors))
	for name, value := range colors {
		if value == "" {
			continue
		}
		pairs = append(pairs, TokenPair{Name: name, Value: value})
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].Name < pairs[j].Name })
	return pairs
}

// NormalizeFonts turns extracted font assets into token pairs. When the
// page yielded no concrete font assets, the declared body/heading families
// stand in; a heading identical to the body is folded into one entry.
func NormalizeFonts(fonts []remote.FontAsset, typ remote.Typography) []TokenPair {
	if len(fonts) > 0 {
		seen := make(map[string]bool, len(fonts))
		pairs := make([]TokenPair, 0, len(fonts))
		for _, f := range fonts {
			if f.Family == "" || seen[f.Family] {
				continue
			}
			seen[f.Family] = true
			pairs = append(pairs, TokenPair{Name: f.Family, Value: f.Family})
		}
		return pairs
	}

	var pairs []TokenPair
	if typ.BodyFont != "" {
		pairs = append(pairs, TokenPair{Name: "Body", Value: typ.BodyFont})
	}
	if typ.HeadingFont != "" && typ.HeadingFont != typ.BodyFont {
		pairs = append(pairs, TokenPair{Name: "Heading", Value: typ.HeadingFont})
	}
	return pairs
}
