package remote

import "encoding/json"

// GenerateRequest describes one block generation call. Screenshot is the
// cropped PNG of the selected region; XPath and Markup locate the source
// element. RefinementCount is zero for the first pass and increments on each
// regeneration of the same session.
type GenerateRequest struct {
	URL                 string
	Screenshot          []byte
	XPath               string
	Markup              string
	BackgroundImageRefs []string
	RefinementCount     int
}

// GenerateResult is the artifact triple returned by the generation service.
type GenerateResult struct {
	Success      bool   `json:"success"`
	ArtifactName string `json:"blockName"`
	Markup       string `json:"markup"`
	Style        string `json:"style"`
	Behavior     string `json:"behavior"`
}

// PushPreviewRequest pushes a generated artifact to a preview branch.
type PushPreviewRequest struct {
	SessionID     string `json:"sessionId"`
	ArtifactName  string `json:"blockName"`
	Markup        string `json:"markup"`
	Style         string `json:"style"`
	Behavior      string `json:"behavior"`
	RepositoryRef string `json:"repo"`
	ContentOrg    string `json:"org"`
	ContentSite   string `json:"site"`
	Option        string `json:"option,omitempty"`
	Iteration     int    `json:"iteration"`
}

// Variant is one preview deployment of an artifact.
type Variant struct {
	PreviewURL string `json:"previewUrl"`
	BranchRef  string `json:"branchRef"`
	Option     string `json:"option,omitempty"`
}

// PushPreviewResult wraps the deployed variant.
type PushPreviewResult struct {
	Success bool    `json:"success"`
	Variant Variant `json:"variant"`
}

// FinalizeRequest merges a preview branch into the main content tree.
// WinnerSelector identifies which variant won; a single-variant workflow
// passes the deterministic first-of-one selector.
type FinalizeRequest struct {
	SessionID      string `json:"sessionId"`
	ArtifactName   string `json:"blockName"`
	WinnerSelector string `json:"winner"`
	RepositoryRef  string `json:"repo"`
	ContentOrg     string `json:"org"`
	ContentSite    string `json:"site"`
}

// FinalizeResult reports the merge outcome.
type FinalizeResult struct {
	Success bool   `json:"success"`
	URL     string `json:"url,omitempty"`
}

// SelectWinnerResult carries the service's pick among candidate variants.
type SelectWinnerResult struct {
	Success bool   `json:"success"`
	Winner  string `json:"winner"`
	Reason  string `json:"reason,omitempty"`
}

// ImportDesignSystemRequest extracts design tokens from a page.
type ImportDesignSystemRequest struct {
	URL           string `json:"url"`
	SessionID     string `json:"sessionId"`
	RepositoryRef string `json:"repo"`
	ContentOrg    string `json:"org"`
	ContentSite   string `json:"site"`
}

// Typography is the declared font roles of an extracted design.
type Typography struct {
	BodyFont    string `json:"bodyFont,omitempty"`
	HeadingFont string `json:"headingFont,omitempty"`
}

// FontAsset is one concrete font family found on the page.
type FontAsset struct {
	Family string `json:"family"`
	Source string `json:"source,omitempty"`
}

// ExtractedDesign is the raw token payload before normalization.
type ExtractedDesign struct {
	Colors     map[string]string `json:"colors"`
	Typography Typography        `json:"typography"`
	Fonts      []FontAsset       `json:"fonts"`
}

// ImportDesignSystemResult is the raw import response. Preview and GitHub
// are passed through to the caller untouched.
type ImportDesignSystemResult struct {
	Success         bool            `json:"success"`
	ExtractedDesign ExtractedDesign `json:"extractedDesign"`
	Preview         json.RawMessage `json:"preview,omitempty"`
	GitHub          json.RawMessage `json:"github,omitempty"`
}

// PageBlock is one recognized section of an analyzed page.
type PageBlock struct {
	Index  int    `json:"index"`
	Name   string `json:"name"`
	Markup string `json:"markup,omitempty"`
}

// AnalyzePageResult is the structural breakdown of a page.
type AnalyzePageResult struct {
	Success    bool        `json:"success"`
	Title      string      `json:"title"`
	Screenshot string      `json:"screenshot,omitempty"`
	Blocks     []PageBlock `json:"blocks"`
}

// GenerateForSectionRequest generates a block for one analyzed section.
// No local screenshot is taken; the section descriptor already carries the
// markup snippet.
type GenerateForSectionRequest struct {
	URL          string `json:"url"`
	SectionIndex int    `json:"sectionIndex"`
	SectionName  string `json:"sectionName,omitempty"`
	Markup       string `json:"markup"`
	SessionID    string `json:"sessionId"`
}

// VerticalRange bounds a section on the analyzed page, in CSS pixels from
// the top of the document.
type VerticalRange struct {
	Top    int `json:"top"`
	Bottom int `json:"bottom"`
}

// SectionDescriptor describes one section of a composed page and the
// accepted artifact filling it, when one exists.
type SectionDescriptor struct {
	Index         int           `json:"index"`
	Name          string        `json:"name"`
	Description   string        `json:"description,omitempty"`
	Type          string        `json:"type,omitempty"`
	MarkupSnippet string        `json:"markupSnippet,omitempty"`
	VerticalRange VerticalRange `json:"verticalRange"`
	ArtifactName  string        `json:"blockName,omitempty"`
}

// ComposePageRequest assembles accepted artifacts into one page.
type ComposePageRequest struct {
	URL               string              `json:"url"`
	Title             string              `json:"title"`
	SessionID         string              `json:"sessionId"`
	Sections          []SectionDescriptor `json:"sections"`
	AcceptedArtifacts map[int]string      `json:"acceptedBlocks"`
	RepositoryRef     string              `json:"repo"`
	ContentOrg        string              `json:"org"`
	ContentSite       string              `json:"site"`
}

// ComposePageResult reports where the composed page previews and how many
// sections were generated.
type ComposePageResult struct {
	Success       bool   `json:"success"`
	PreviewURL    string `json:"previewUrl"`
	BranchRef     string `json:"branchRef"`
	SectionsBuilt int    `json:"sectionsGenerated"`
}

// PageRefRequest keys finalize/reject of a composed page by branch.
type PageRefRequest struct {
	BranchRef     string `json:"branchRef"`
	RepositoryRef string `json:"repo"`
}
