package coordinator_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"pgregory.net/rapid"

	"github.com/blockweave/blockweave/coordinator"
	"github.com/blockweave/blockweave/hooks"
	"github.com/blockweave/blockweave/remote"
	"github.com/blockweave/blockweave/state"
	"github.com/blockweave/blockweave/store/memory"
)

// Terminal-state invariants must hold no matter where a workflow fails:
// the record ends in preview or error, preview data exists exactly in the
// preview case, the error message exactly in the error case, and the
// liveness keeper is balanced either way.
func TestWorkflowTerminalInvariants(t *testing.T) {
	var mu sync.Mutex
	failPoint := "none"
	failMsg := ""

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		fp, msg := failPoint, failMsg
		mu.Unlock()

		switch r.URL.Path {
		case "/api/generate":
			if fp == "generate" {
				w.WriteHeader(http.StatusBadRequest)
				json.NewEncoder(w).Encode(map[string]any{"success": false, "error": msg})
				return
			}
			json.NewEncoder(w).Encode(remote.GenerateResult{Success: true, ArtifactName: "hero"})
		case "/api/preview":
			if fp == "preview" {
				w.WriteHeader(http.StatusBadGateway)
				json.NewEncoder(w).Encode(map[string]any{"success": false, "error": msg})
				return
			}
			json.NewEncoder(w).Encode(remote.PushPreviewResult{
				Success: true,
				Variant: remote.Variant{PreviewURL: "https://p.example/", BranchRef: "preview-x"},
			})
		}
	}))
	defer srv.Close()

	rapid.Check(t, func(rt *rapid.T) {
		fp := rapid.SampledFrom([]string{"none", "capture", "generate", "preview"}).Draw(rt, "failPoint")
		msg := rapid.StringMatching(`[a-z]{1,12}( [a-z]{1,12}){0,3}`).Draw(rt, "failMsg")

		mu.Lock()
		failPoint, failMsg = fp, msg
		mu.Unlock()

		store := memory.New()
		store.SetConfig(context.Background(), testConfig())
		keeper := &countingKeeper{}
		bridge := &fakeBridge{}
		if fp == "capture" {
			bridge.captureErr = errors.New(msg)
		}

		coord := coordinator.New(store, remote.New(srv.URL),
			coordinator.WithKeeper(keeper),
			coordinator.WithBridge(bridge),
			coordinator.WithHooks(hooks.NewRegistry(testLogger())),
			coordinator.WithLogger(testLogger()),
		)

		resp := coord.Handle(context.Background(), &coordinator.GenerateBlock{
			Selection: coordinator.Selection{URL: "https://example.com", Markup: "<div/>"},
		})

		ws, err := store.GetState(context.Background())
		if err != nil {
			rt.Fatalf("GetState: %v", err)
		}

		if fp == "none" {
			if !resp.Success {
				rt.Fatalf("expected success, got %q", resp.Error)
			}
			if ws.Status != state.StatusPreview {
				rt.Fatalf("status = %q, want preview", ws.Status)
			}
		} else {
			if resp.Success {
				rt.Fatalf("expected failure at %s", fp)
			}
			if ws.Status != state.StatusError {
				rt.Fatalf("status = %q, want error", ws.Status)
			}
		}

		// Preview data present iff status is preview.
		if (ws.Preview != nil) != (ws.Status == state.StatusPreview) {
			rt.Fatalf("preview presence inconsistent: status=%q preview=%v", ws.Status, ws.Preview)
		}
		// Error message present iff status is error.
		if (ws.Error != "") != (ws.Status == state.StatusError) {
			rt.Fatalf("error presence inconsistent: status=%q error=%q", ws.Status, ws.Error)
		}
		if ws.Status == state.StatusError && ws.Error != msg {
			rt.Fatalf("error = %q, want %q", ws.Error, msg)
		}

		if s, p := keeper.starts.Load(), keeper.stops.Load(); s != p || s != 1 {
			rt.Fatalf("keeper starts=%d stops=%d, want 1/1", s, p)
		}

		// No stage beyond the failure point ever left pending state.
		if fp == "capture" {
			for _, stage := range []state.Stage{state.StageHTML, state.StageGenerate, state.StagePreview} {
				if ws.Progress[stage] != state.StagePending {
					rt.Fatalf("stage %s = %q after capture failure", stage, ws.Progress[stage])
				}
			}
		}
	})
}

// Repeated workflow starts never share a session.
func TestSessionsAreFreshPerWorkflow(t *testing.T) {
	f := newFixture(t, generationStub(t))
	ctx := context.Background()

	rapid.Check(t, func(rt *rapid.T) {
		n := rapid.IntRange(2, 5).Draw(rt, "runs")
		seen := make(map[string]bool, n)
		for i := 0; i < n; i++ {
			resp := f.coord.Handle(ctx, &coordinator.GenerateBlock{
				Selection: coordinator.Selection{URL: fmt.Sprintf("https://example.com/%d", i)},
			})
			if !resp.Success {
				rt.Fatalf("run %d failed: %s", i, resp.Error)
			}
			ws, _ := f.store.GetState(ctx)
			if seen[ws.SessionID] {
				rt.Fatalf("session %q reused", ws.SessionID)
			}
			seen[ws.SessionID] = true
		}
	})
}
