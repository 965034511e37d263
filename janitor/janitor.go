// Package janitor reclaims workflows that died without reaching a terminal
// state. A coordinator process can crash mid-generation, leaving the durable
// record stuck at "generating" forever; the janitor sweeps on a cron schedule
// and fails any record that has gone too long without a state write.
package janitor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	cronlib "github.com/robfig/cron/v3"

	"github.com/blockweave/blockweave/hooks"
	"github.com/blockweave/blockweave/state"
)

// DefaultSchedule is how often the janitor sweeps.
const DefaultSchedule = "@every 30s"

// Option configures a Janitor.
type Option func(*Janitor)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(j *Janitor) { j.logger = logger }
}

// WithSchedule sets the sweep schedule. Standard 5-field cron expressions
// and descriptors like "@every 30s" are accepted.
func WithSchedule(expr string) Option {
	return func(j *Janitor) { j.schedule = expr }
}

// WithHooks sets the registry notified when a stale workflow is failed.
func WithHooks(registry *hooks.Registry) Option {
	return func(j *Janitor) { j.registry = registry }
}

// WithClock overrides the time source. Used by tests.
func WithClock(now func() time.Time) Option {
	return func(j *Janitor) { j.now = now }
}

// Janitor fails workflows stuck in "generating" past the staleness
// threshold. Only in-flight generation is swept: "selecting" waits on the
// user indefinitely and "preview" is a stable resting state.
type Janitor struct {
	store     state.Store
	threshold time.Duration
	schedule  string
	registry  *hooks.Registry
	logger    *slog.Logger
	now       func() time.Time

	cron *cronlib.Cron
}

// New creates a Janitor sweeping the given store. Workflows older than
// threshold are marked failed.
func New(store state.Store, threshold time.Duration, opts ...Option) *Janitor {
	j := &Janitor{
		store:     store,
		threshold: threshold,
		schedule:  DefaultSchedule,
		logger:    slog.Default(),
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

// Start schedules the sweep and launches the cron runner.
func (j *Janitor) Start() error {
	c := cronlib.New()
	if _, err := c.AddFunc(j.schedule, func() { j.Sweep(context.Background()) }); err != nil {
		return fmt.Errorf("blockweave/janitor: invalid schedule %q: %w", j.schedule, err)
	}
	j.cron = c
	c.Start()
	j.logger.Info("janitor started",
		slog.String("schedule", j.schedule),
		slog.Duration("threshold", j.threshold),
	)
	return nil
}

// Stop halts the cron runner and waits for an in-flight sweep to finish.
func (j *Janitor) Stop() {
	if j.cron == nil {
		return
	}
	<-j.cron.Stop().Done()
	j.logger.Info("janitor stopped")
}

// Sweep runs one pass: if the stored workflow has sat in "generating"
// longer than the threshold, it is failed in place. Exported so hosts can
// sweep once at startup before accepting traffic.
func (j *Janitor) Sweep(ctx context.Context) {
	st, err := j.store.GetState(ctx)
	if err != nil {
		j.logger.Error("janitor state read failed", slog.String("error", err.Error()))
		return
	}
	if st.Status != state.StatusGenerating {
		return
	}

	age := j.now().Sub(st.UpdatedAt)
	if age < j.threshold {
		return
	}

	msg := fmt.Sprintf("generation stalled: no progress for %s", age.Round(time.Second))
	_, err = j.store.PatchState(ctx, &state.Patch{
		Status:  state.StatusOf(state.StatusError),
		Error:   state.StringOf(msg),
		Preview: state.ClearPreview(),
	})
	if err != nil {
		j.logger.Error("janitor state patch failed",
			slog.String("session_id", st.SessionID),
			slog.String("error", err.Error()),
		)
		return
	}

	if j.registry != nil {
		j.registry.EmitWorkflowFailed(ctx, st.SessionID, fmt.Errorf("blockweave/janitor: %s", msg))
	}
	j.logger.Warn("stale workflow failed",
		slog.String("session_id", st.SessionID),
		slog.Duration("age", age),
	)
}
