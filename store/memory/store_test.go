package memory_test

import (
	"context"
	"testing"
	"time"

	"github.com/blockweave/blockweave/state"
	"github.com/blockweave/blockweave/store/memory"
)

func TestConfigRoundTrip(t *testing.T) {
	s := memory.New()
	ctx := context.Background()

	got, err := s.GetConfig(ctx)
	if err != nil {
		t.Fatalf("GetConfig: %v", err)
	}
	if got != nil {
		t.Fatalf("fresh store returned config %+v, want nil", got)
	}

	cfg := &state.Config{RepositoryRef: "repo", ContentOrg: "org", ContentSite: "site"}
	if err := s.SetConfig(ctx, cfg); err != nil {
		t.Fatalf("SetConfig: %v", err)
	}

	got, err = s.GetConfig(ctx)
	if err != nil {
		t.Fatalf("GetConfig: %v", err)
	}
	if got.RepositoryRef != "repo" || got.ContentOrg != "org" || got.ContentSite != "site" {
		t.Errorf("config = %+v", got)
	}

	// Overwrite is wholesale, not a merge.
	if err := s.SetConfig(ctx, &state.Config{RepositoryRef: "repo2"}); err != nil {
		t.Fatalf("SetConfig: %v", err)
	}
	got, _ = s.GetConfig(ctx)
	if got.ContentOrg != "" {
		t.Errorf("overwrite kept ContentOrg %q, want empty", got.ContentOrg)
	}
}

func TestGetState_DefaultsToIdle(t *testing.T) {
	s := memory.New()

	got, err := s.GetState(context.Background())
	if err != nil {
		t.Fatalf("GetState: %v", err)
	}
	if got == nil {
		t.Fatal("GetState returned nil")
	}
	if got.Status != state.StatusIdle {
		t.Errorf("status = %q, want idle", got.Status)
	}
}

func TestPatchState_StampsUpdatedAt(t *testing.T) {
	stamp := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s := memory.New(memory.WithClock(func() time.Time { return stamp }))

	got, err := s.PatchState(context.Background(), &state.Patch{
		Status: state.StatusOf(state.StatusGenerating),
	})
	if err != nil {
		t.Fatalf("PatchState: %v", err)
	}
	if !got.UpdatedAt.Equal(stamp) {
		t.Errorf("UpdatedAt = %v, want %v", got.UpdatedAt, stamp)
	}
	if got.Status != state.StatusGenerating {
		t.Errorf("status = %q", got.Status)
	}
}

func TestPatchState_MergeThenReplace(t *testing.T) {
	s := memory.New()
	ctx := context.Background()

	_, err := s.PatchState(ctx, &state.Patch{Replace: state.NewWorkflowState(state.StatusGenerating, "sessiona")})
	if err != nil {
		t.Fatalf("PatchState replace: %v", err)
	}

	_, err = s.PatchState(ctx, &state.Patch{
		Progress: map[state.Stage]state.StageState{state.StageScreenshot: state.StageComplete},
	})
	if err != nil {
		t.Fatalf("PatchState merge: %v", err)
	}

	got, _ := s.GetState(ctx)
	if got.Progress[state.StageScreenshot] != state.StageComplete {
		t.Errorf("screenshot stage = %q", got.Progress[state.StageScreenshot])
	}
	if got.SessionID != "sessiona" {
		t.Errorf("session = %q", got.SessionID)
	}

	// A new workflow replaces the record outright.
	_, err = s.PatchState(ctx, &state.Patch{Replace: state.NewWorkflowState(state.StatusSelecting, "sessionb")})
	if err != nil {
		t.Fatalf("PatchState replace: %v", err)
	}
	got, _ = s.GetState(ctx)
	if got.SessionID != "sessionb" {
		t.Errorf("session = %q, want sessionb", got.SessionID)
	}
	if got.Progress[state.StageScreenshot] != state.StagePending {
		t.Errorf("screenshot stage = %q, want pending after replace", got.Progress[state.StageScreenshot])
	}
}

func TestReturnedStateIsACopy(t *testing.T) {
	s := memory.New()
	ctx := context.Background()

	_, err := s.PatchState(ctx, &state.Patch{Replace: state.NewWorkflowState(state.StatusGenerating, "sessionx")})
	if err != nil {
		t.Fatalf("PatchState: %v", err)
	}

	got, _ := s.GetState(ctx)
	got.Progress[state.StageGenerate] = state.StageComplete

	again, _ := s.GetState(ctx)
	if again.Progress[state.StageGenerate] != state.StagePending {
		t.Error("mutating a returned state leaked into the store")
	}
}
