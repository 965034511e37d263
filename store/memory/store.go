// Package memory provides a fully in-memory state.Store. Safe for
// concurrent access. Intended for unit testing and development.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/blockweave/blockweave/state"
)

// Compile-time interface checks.
var (
	_ state.Store     = (*Store)(nil)
	_ state.Lifecycle = (*Store)(nil)
)

// Store is an in-memory implementation of state.Store.
type Store struct {
	mu     sync.RWMutex
	config *state.Config
	state  *state.WorkflowState

	// now is swappable for tests that assert UpdatedAt stamping.
	now func() time.Time
}

// Option configures the Store.
type Option func(*Store)

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New returns a new empty Store.
func New(opts ...Option) *Store {
	s := &Store{now: func() time.Time { return time.Now().UTC() }}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Migrate is a no-op for the memory store.
func (s *Store) Migrate(_ context.Context) error { return nil }

// Ping always succeeds for the memory store.
func (s *Store) Ping(_ context.Context) error { return nil }

// Close is a no-op for the memory store.
func (s *Store) Close() error { return nil }

// GetConfig retrieves the stored Config, or nil if none was saved.
func (s *Store) GetConfig(_ context.Context) (*state.Config, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.config == nil {
		return nil, nil
	}
	cp := *s.config
	return &cp, nil
}

// SetConfig overwrites the stored Config wholesale.
func (s *Store) SetConfig(_ context.Context, cfg *state.Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *cfg
	s.config = &cp
	return nil
}

// GetState retrieves the current WorkflowState, defaulting to idle.
func (s *Store) GetState(_ context.Context) (*state.WorkflowState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.state == nil {
		return state.Idle(), nil
	}
	return s.state.Clone(), nil
}

// PatchState shallow-merges the patch into the stored WorkflowState,
// stamps UpdatedAt, and returns the merged record.
func (s *Store) PatchState(_ context.Context, patch *state.Patch) (*state.WorkflowState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == nil {
		s.state = state.Idle()
	}
	patch.Apply(s.state)
	s.state.UpdatedAt = s.now()
	return s.state.Clone(), nil
}
