package agent

import (
	"context"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/blockweave/blockweave"
)

// Target describes one open page known to the browser.
type Target struct {
	ID           string
	Type         string
	URL          string
	Title        string
	Focused      bool
	LastAccessed time.Time
}

// internalSchemes are runtimes' own surfaces; never inject into these.
var internalSchemes = map[string]bool{
	"devtools":             true,
	"chrome":               true,
	"chrome-extension":     true,
	"chrome-untrusted":     true,
	"edge":                 true,
	"about":                true,
	"view-source":          true,
	"moz-extension":        true,
	"chrome-error":         true,
	"chrome-search":        true,
	"safari-web-extension": true,
}

// IsOrdinaryPage reports whether t is a regular content page the agent may
// be installed into.
func IsOrdinaryPage(t Target) bool {
	if t.Type != "page" {
		return false
	}
	u, err := url.Parse(t.URL)
	if err != nil || u.Scheme == "" {
		return false
	}
	scheme := strings.ToLower(u.Scheme)
	if internalSchemes[scheme] {
		return false
	}
	return scheme == "http" || scheme == "https" || scheme == "file"
}

// SelectTarget picks the page to inject into: the focused ordinary page if
// one exists, otherwise the most recently accessed ordinary page. Returns
// ErrNoTargetPage when no ordinary page is open.
func SelectTarget(targets []Target) (*Target, error) {
	var ordinary []Target
	for _, t := range targets {
		if IsOrdinaryPage(t) {
			ordinary = append(ordinary, t)
		}
	}
	if len(ordinary) == 0 {
		return nil, blockweave.ErrNoTargetPage
	}

	for i := range ordinary {
		if ordinary[i].Focused {
			return &ordinary[i], nil
		}
	}

	sort.SliceStable(ordinary, func(i, j int) bool {
		return ordinary[i].LastAccessed.After(ordinary[j].LastAccessed)
	})
	return &ordinary[0], nil
}

// targetInfo is the browser protocol's own target shape.
type targetInfo struct {
	TargetID string `json:"targetId"`
	Type     string `json:"type"`
	Title    string `json:"title"`
	URL      string `json:"url"`
	Attached bool   `json:"attached"`
	// lastAccessed is reported as milliseconds since epoch by browsers that
	// support it; zero otherwise.
	LastAccessed float64 `json:"lastAccessed,omitempty"`
	Focused      bool    `json:"focused,omitempty"`
}

// ListTargets queries the browser for its open targets.
func (b *Bridge) ListTargets(ctx context.Context) ([]Target, error) {
	var res struct {
		TargetInfos []targetInfo `json:"targetInfos"`
	}
	if err := b.call(ctx, "", "Target.getTargets", nil, &res); err != nil {
		return nil, err
	}

	targets := make([]Target, 0, len(res.TargetInfos))
	for _, ti := range res.TargetInfos {
		t := Target{
			ID:      ti.TargetID,
			Type:    ti.Type,
			URL:     ti.URL,
			Title:   ti.Title,
			Focused: ti.Focused,
		}
		if ti.LastAccessed > 0 {
			t.LastAccessed = time.UnixMilli(int64(ti.LastAccessed))
		}
		targets = append(targets, t)
	}
	return targets, nil
}

// PickTarget lists open pages and applies the deterministic selection rule.
func (b *Bridge) PickTarget(ctx context.Context) (*Target, error) {
	targets, err := b.ListTargets(ctx)
	if err != nil {
		return nil, err
	}
	return SelectTarget(targets)
}
