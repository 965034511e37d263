package coordinator

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/blockweave/blockweave/agent"
	"github.com/blockweave/blockweave/remote"
)

// ErrUnknownMessageType is returned for type tags outside the protocol.
// Its text is the exact string callers of the message surface expect.
var ErrUnknownMessageType = errors.New("Unknown message type")

// Message type tags of the inbound protocol.
const (
	TypeStartSelection          = "START_SELECTION"
	TypeCancelSelection         = "CANCEL_SELECTION"
	TypeStartSectionSelection   = "START_SECTION_SELECTION"
	TypeCancelSectionSelection  = "CANCEL_SECTION_SELECTION"
	TypeSectionSelected         = "SECTION_SELECTED"
	TypeElementSelected         = "ELEMENT_SELECTED"
	TypeGenerateBlock           = "GENERATE_BLOCK"
	TypeAcceptBlock             = "ACCEPT_BLOCK"
	TypeRejectBlock             = "REJECT_BLOCK"
	TypeImportDesignSystem      = "IMPORT_DESIGN_SYSTEM"
	TypeFinalizeDesignSystem    = "FINALIZE_DESIGN_SYSTEM"
	TypeRejectDesignSystem      = "REJECT_DESIGN_SYSTEM"
	TypeAnalyzePage             = "ANALYZE_PAGE"
	TypeGenerateBlockForSection = "GENERATE_BLOCK_FOR_SECTION"
	TypeComposePage             = "COMPOSE_PAGE"
	TypeFinalizePage            = "FINALIZE_PAGE"
	TypeRejectPage              = "REJECT_PAGE"
	TypeOpenSidebar             = "OPEN_SIDEBAR"
	TypeGetBlocks               = "GET_BLOCKS"
)

// Request is the closed set of inbound messages. Variants live in this
// package only; Handle switches over them exhaustively.
type Request interface {
	isRequest()
}

// Selection locates the user-selected element and its pixel bounds.
type Selection struct {
	URL                 string       `json:"url"`
	XPath               string       `json:"xpath,omitempty"`
	Markup              string       `json:"markup,omitempty"`
	Bounds              agent.Bounds `json:"bounds"`
	BackgroundImageRefs []string     `json:"backgroundImages,omitempty"`
}

// StartSelection installs the page agent and opens its selection overlay.
type StartSelection struct{}

// CancelSelection dismisses the overlay and resets the workflow to idle.
type CancelSelection struct{}

// StartSectionSelection installs the agent in whole-section mode.
type StartSectionSelection struct{}

// CancelSectionSelection dismisses section mode and resets to idle.
type CancelSectionSelection struct{}

// SectionSelected is a page-agent event forwarded verbatim to listeners.
type SectionSelected struct {
	Payload json.RawMessage `json:"payload"`
}

// ElementSelected is pushed by the page agent when the user confirms a
// selection; it begins a generation workflow.
type ElementSelected struct {
	Selection
}

// GenerateBlock begins a generation workflow from an explicit selection.
// RefinementCount is non-zero when regenerating within the same session.
type GenerateBlock struct {
	Selection
	SessionID       string `json:"sessionId,omitempty"`
	RefinementCount int    `json:"refinementCount,omitempty"`
}

// AcceptBlock finalizes the previewed artifact into the content tree.
type AcceptBlock struct {
	SessionID    string `json:"sessionId"`
	ArtifactName string `json:"blockName"`
	BranchRef    string `json:"branchRef"`
}

// RejectBlock discards the previewed artifact. Cleanup is best-effort.
type RejectBlock struct {
	SessionID string `json:"sessionId"`
	BranchRef string `json:"branchRef,omitempty"`
}

// ImportDesignSystem extracts and normalizes design tokens from a page.
type ImportDesignSystem struct {
	URL string `json:"url"`
}

// FinalizeDesignSystem merges an imported design system's preview branch.
type FinalizeDesignSystem struct {
	SessionID string `json:"sessionId"`
}

// RejectDesignSystem discards an imported design system. Best-effort.
type RejectDesignSystem struct {
	SessionID string `json:"sessionId"`
}

// AnalyzePage breaks a page into recognizable sections.
type AnalyzePage struct {
	URL string `json:"url"`
}

// GenerateBlockForSection generates an artifact for one analyzed section.
type GenerateBlockForSection struct {
	URL          string `json:"url"`
	SectionIndex int    `json:"sectionIndex"`
	SectionName  string `json:"sectionName,omitempty"`
	Markup       string `json:"markup"`
	SessionID    string `json:"sessionId"`
}

// ComposePage assembles previously accepted artifacts into one page.
type ComposePage struct {
	URL               string                     `json:"url"`
	Title             string                     `json:"title"`
	SessionID         string                     `json:"sessionId,omitempty"`
	Sections          []remote.SectionDescriptor `json:"sections"`
	AcceptedArtifacts map[int]string             `json:"acceptedBlocks"`
}

// FinalizePage merges a composed page's branch into the content tree.
type FinalizePage struct {
	BranchRef string `json:"branchRef"`
}

// RejectPage discards a composed page's preview branch. Best-effort.
type RejectPage struct {
	BranchRef string `json:"branchRef"`
}

// OpenSidebar installs the agent and opens its panel without starting a
// selection.
type OpenSidebar struct{}

// GetBlocks lists artifacts already present in the source repository.
type GetBlocks struct{}

func (StartSelection) isRequest()          {}
func (CancelSelection) isRequest()         {}
func (StartSectionSelection) isRequest()   {}
func (CancelSectionSelection) isRequest()  {}
func (SectionSelected) isRequest()         {}
func (ElementSelected) isRequest()         {}
func (GenerateBlock) isRequest()           {}
func (AcceptBlock) isRequest()             {}
func (RejectBlock) isRequest()             {}
func (ImportDesignSystem) isRequest()      {}
func (FinalizeDesignSystem) isRequest()    {}
func (RejectDesignSystem) isRequest()      {}
func (AnalyzePage) isRequest()             {}
func (GenerateBlockForSection) isRequest() {}
func (ComposePage) isRequest()             {}
func (FinalizePage) isRequest()            {}
func (RejectPage) isRequest()              {}
func (OpenSidebar) isRequest()             {}
func (GetBlocks) isRequest()               {}

// Response is the uniform reply of every operation. Failures carry the
// error string the caller should surface; Data holds operation-specific
// results.
type Response struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
	Data    any    `json:"data,omitempty"`
}

func ok(data any) *Response {
	return &Response{Success: true, Data: data}
}

func fail(err error) *Response {
	return &Response{Success: false, Error: err.Error()}
}

// ParseRequest decodes a type-tagged message into its request variant.
// Unknown tags produce an error; the transport turns it into the standard
// failure payload.
func ParseRequest(msgType string, payload json.RawMessage) (Request, error) {
	var req Request
	switch msgType {
	case TypeStartSelection:
		req = &StartSelection{}
	case TypeCancelSelection:
		req = &CancelSelection{}
	case TypeStartSectionSelection:
		req = &StartSectionSelection{}
	case TypeCancelSectionSelection:
		req = &CancelSectionSelection{}
	case TypeSectionSelected:
		req = &SectionSelected{}
	case TypeElementSelected:
		req = &ElementSelected{}
	case TypeGenerateBlock:
		req = &GenerateBlock{}
	case TypeAcceptBlock:
		req = &AcceptBlock{}
	case TypeRejectBlock:
		req = &RejectBlock{}
	case TypeImportDesignSystem:
		req = &ImportDesignSystem{}
	case TypeFinalizeDesignSystem:
		req = &FinalizeDesignSystem{}
	case TypeRejectDesignSystem:
		req = &RejectDesignSystem{}
	case TypeAnalyzePage:
		req = &AnalyzePage{}
	case TypeGenerateBlockForSection:
		req = &GenerateBlockForSection{}
	case TypeComposePage:
		req = &ComposePage{}
	case TypeFinalizePage:
		req = &FinalizePage{}
	case TypeRejectPage:
		req = &RejectPage{}
	case TypeOpenSidebar:
		req = &OpenSidebar{}
	case TypeGetBlocks:
		req = &GetBlocks{}
	default:
		return nil, ErrUnknownMessageType
	}

	if len(payload) > 0 {
		if err := json.Unmarshal(payload, req); err != nil {
			return nil, fmt.Errorf("decode %s payload: %w", msgType, err)
		}
	}
	return req, nil
}
