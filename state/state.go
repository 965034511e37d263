// Package state defines the two durable records the coordinator persists —
// the user-provided Config and the WorkflowState progress projection — and
// the Store interface that backends implement.
package state

import "time"

// Status is the lifecycle state of the current workflow.
type Status string

const (
	// StatusIdle means no workflow is active.
	StatusIdle Status = "idle"
	// StatusSelecting means the page agent is open and awaiting a selection.
	StatusSelecting Status = "selecting"
	// StatusGenerating means remote generation is in flight.
	StatusGenerating Status = "generating"
	// StatusPreview means a preview branch exists and awaits accept/reject.
	StatusPreview Status = "preview"
	// StatusError means the workflow failed terminally.
	StatusError Status = "error"
)

// Stage names the steps of a generation workflow, in execution order.
type Stage string

const (
	StageScreenshot Stage = "screenshot"
	StageHTML       Stage = "html"
	StageGenerate   Stage = "generate"
	StagePreview    Stage = "preview"
)

// Stages lists all workflow stages in execution order.
var Stages = []Stage{StageScreenshot, StageHTML, StageGenerate, StagePreview}

// StageState is the progress marker for a single stage.
type StageState string

const (
	StagePending  StageState = "pending"
	StageActive   StageState = "active"
	StageComplete StageState = "complete"
)

// Config is the durable user-provided target configuration. It is created
// or overwritten wholesale by user action, never partially mutated
// mid-workflow.
type Config struct {
	// RepositoryRef names the content repository previews are pushed to.
	RepositoryRef string `json:"repository_ref"`

	// ContentOrg is the organization segment of preview hostnames.
	ContentOrg string `json:"content_org"`

	// ContentSite is the site segment of preview hostnames.
	ContentSite string `json:"content_site"`

	// ServiceEndpointOverride, when set, replaces the default generation
	// service base URL.
	ServiceEndpointOverride string `json:"service_endpoint_override,omitempty"`
}

// Complete reports whether the config carries enough to run a workflow.
func (c *Config) Complete() bool {
	return c != nil && c.RepositoryRef != "" && c.ContentOrg != "" && c.ContentSite != ""
}

// PreviewData describes the generated artifact once a preview exists.
// Present if and only if Status == StatusPreview.
type PreviewData struct {
	ArtifactName string `json:"artifact_name"`
	Markup       string `json:"markup"`
	Style        string `json:"style"`
	Behavior     string `json:"behavior"`
	PreviewURL   string `json:"preview_url"`
	BranchRef    string `json:"branch_ref"`
}

// WorkflowState is the single durable progress record for the most recent
// workflow. The coordinator is its only writer; it is a projection for the
// "current" workflow, not a concurrency primitive — independent callers
// (e.g., concurrent per-section generations) must track their own session
// IDs instead of polling this record.
type WorkflowState struct {
	Status    Status               `json:"status"`
	SessionID string               `json:"session_id,omitempty"`
	Progress  map[Stage]StageState `json:"progress,omitempty"`
	Preview   *PreviewData         `json:"preview,omitempty"`
	Error     string               `json:"error,omitempty"`
	UpdatedAt time.Time            `json:"updated_at"`
}

// NewWorkflowState returns a fresh record for a workflow that just began:
// the given status, a new all-pending progress map, and no preview or error
// carried over from any prior workflow.
func NewWorkflowState(status Status, sessionID string) *WorkflowState {
	progress := make(map[Stage]StageState, len(Stages))
	for _, s := range Stages {
		progress[s] = StagePending
	}
	return &WorkflowState{
		Status:    status,
		SessionID: sessionID,
		Progress:  progress,
	}
}

// Idle returns the quiescent state record.
func Idle() *WorkflowState {
	return &WorkflowState{Status: StatusIdle}
}

// Clone returns a deep copy of the state.
func (s *WorkflowState) Clone() *WorkflowState {
	if s == nil {
		return nil
	}
	cp := *s
	if s.Progress != nil {
		cp.Progress = make(map[Stage]StageState, len(s.Progress))
		for k, v := range s.Progress {
			cp.Progress[k] = v
		}
	}
	if s.Preview != nil {
		p := *s.Preview
		cp.Preview = &p
	}
	return &cp
}

// Patch carries a shallow merge into the persisted WorkflowState. Nil
// fields are left untouched; non-nil fields replace the stored value
// wholesale. Replace discards the stored record entirely first — the
// semantics of starting a new workflow.
type Patch struct {
	// Replace, when non-nil, substitutes the whole record before the
	// remaining fields apply. Used when a new workflow begins.
	Replace *WorkflowState

	Status    *Status
	SessionID *string
	Progress  map[Stage]StageState // merged per stage key
	Preview   **PreviewData        // outer nil: untouched; inner nil: cleared
	Error     *string
}

// Apply merges the patch into dst and returns dst. UpdatedAt is stamped by
// the store, not here, so backends control their own clocks.
func (p *Patch) Apply(dst *WorkflowState) *WorkflowState {
	if p.Replace != nil {
		replaced := p.Replace.Clone()
		replaced.UpdatedAt = dst.UpdatedAt
		*dst = *replaced
	}
	if p.Status != nil {
		dst.Status = *p.Status
	}
	if p.SessionID != nil {
		dst.SessionID = *p.SessionID
	}
	if len(p.Progress) > 0 {
		if dst.Progress == nil {
			dst.Progress = make(map[Stage]StageState, len(p.Progress))
		}
		for k, v := range p.Progress {
			dst.Progress[k] = v
		}
	}
	if p.Preview != nil {
		dst.Preview = *p.Preview
	}
	if p.Error != nil {
		dst.Error = *p.Error
	}
	return dst
}

// Helper constructors for pointer-typed patch fields.

// StatusOf returns a pointer suitable for Patch.Status.
func StatusOf(s Status) *Status { return &s }

// StringOf returns a pointer suitable for Patch.SessionID / Patch.Error.
func StringOf(s string) *string { return &s }

// PreviewOf returns a Patch.Preview value that sets the preview data.
func PreviewOf(p *PreviewData) **PreviewData { return &p }

// ClearPreview returns a Patch.Preview value that clears the preview data.
func ClearPreview() **PreviewData {
	var p *PreviewData
	return &p
}
