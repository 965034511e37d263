package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Generate produces an artifact triple from a cropped screenshot and the
// source element's location. Screenshot travels as a multipart file part;
// optional fields are omitted when empty.
func (c *Client) Generate(ctx context.Context, req *GenerateRequest) (*GenerateResult, error) {
	fields := []multipartField{
		{"url", req.URL},
		{"xpath", req.XPath},
		{"markup", req.Markup},
		{"refinementCount", strconv.Itoa(req.RefinementCount)},
	}
	if len(req.BackgroundImageRefs) > 0 {
		refs, err := json.Marshal(req.BackgroundImageRefs)
		if err != nil {
			return nil, fmt.Errorf("blockweave/remote: generate: encode image refs: %w", err)
		}
		fields = append(fields, multipartField{"backgroundImages", string(refs)})
	}

	var out GenerateResult
	if err := c.postMultipart(ctx, "generate", "/api/generate", req.Screenshot, fields, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// PushPreview deploys an artifact to a session-scoped preview branch and
// returns the variant's preview URL and branch ref.
func (c *Client) PushPreview(ctx context.Context, req *PushPreviewRequest) (*PushPreviewResult, error) {
	var out PushPreviewResult
	if err := c.postJSON(ctx, "pushPreview", "/api/preview", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Finalize merges the winning variant of a session into the content tree.
func (c *Client) Finalize(ctx context.Context, req *FinalizeRequest) (*FinalizeResult, error) {
	var out FinalizeResult
	if err := c.postJSON(ctx, "finalize", "/api/finalize", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SelectWinner asks the service to pick among candidate variants given the
// original screenshot.
func (c *Client) SelectWinner(ctx context.Context, screenshot []byte, variants []Variant) (*SelectWinnerResult, error) {
	raw, err := json.Marshal(variants)
	if err != nil {
		return nil, fmt.Errorf("blockweave/remote: selectWinner: encode variants: %w", err)
	}
	fields := []multipartField{{"variants", string(raw)}}

	var out SelectWinnerResult
	if err := c.postMultipart(ctx, "selectWinner", "/api/select-winner", screenshot, fields, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ImportDesignSystem extracts raw design tokens from a page. The result is
// unnormalized; see the coordinator for the token-pair transformation.
func (c *Client) ImportDesignSystem(ctx context.Context, req *ImportDesignSystemRequest) (*ImportDesignSystemResult, error) {
	var out ImportDesignSystemResult
	if err := c.postJSON(ctx, "importDesignSystem", "/api/import-design-system", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// AnalyzePage breaks a page into recognizable sections.
func (c *Client) AnalyzePage(ctx context.Context, url string) (*AnalyzePageResult, error) {
	var out AnalyzePageResult
	body := struct {
		URL string `json:"url"`
	}{URL: url}
	if err := c.postJSON(ctx, "analyzePage", "/api/analyze-page", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GenerateForSection generates an artifact for one analyzed section, keyed
// by (url, sectionIndex) rather than a pixel selection.
func (c *Client) GenerateForSection(ctx context.Context, req *GenerateForSectionRequest) (*GenerateResult, error) {
	var out GenerateResult
	if err := c.postJSON(ctx, "generateForSection", "/api/generate-section", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ComposePage assembles accepted artifacts into one composed page preview.
func (c *Client) ComposePage(ctx context.Context, req *ComposePageRequest) (*ComposePageResult, error) {
	var out ComposePageResult
	if err := c.postJSON(ctx, "composePage", "/api/compose-page", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// FinalizePage merges a composed page's branch into the content tree.
func (c *Client) FinalizePage(ctx context.Context, req *PageRefRequest) (*FinalizeResult, error) {
	var out FinalizeResult
	if err := c.postJSON(ctx, "finalizePage", "/api/finalize-page", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// RejectPage discards a composed page's preview branch.
func (c *Client) RejectPage(ctx context.Context, req *PageRefRequest) error {
	return c.postJSON(ctx, "rejectPage", "/api/reject-page", req, nil)
}

// RejectBlock discards a session's preview branch.
func (c *Client) RejectBlock(ctx context.Context, sessionID, repositoryRef string) error {
	body := struct {
		SessionID     string `json:"sessionId"`
		RepositoryRef string `json:"repo"`
	}{SessionID: sessionID, RepositoryRef: repositoryRef}
	return c.postJSON(ctx, "rejectBlock", "/api/reject", body, nil)
}

// FirstOfOneSelector is the deterministic winner selector used when a
// session produced exactly one variant.
func FirstOfOneSelector(variants []Variant) string {
	if len(variants) == 0 {
		return ""
	}
	if opt := strings.TrimSpace(variants[0].Option); opt != "" {
		return opt
	}
	return "first"
}
