package state

import "context"

// Store defines the persistence contract for the coordinator's two durable
// records. Single-key writes are applied before the call returns; there is
// no transaction spanning config and state, and callers must not assume
// ordering beyond that.
type Store interface {
	// GetConfig retrieves the stored Config, or nil if none was saved.
	GetConfig(ctx context.Context) (*Config, error)

	// SetConfig overwrites the stored Config wholesale.
	SetConfig(ctx context.Context, cfg *Config) error

	// GetState retrieves the current WorkflowState. When nothing was ever
	// stored it returns the idle state, never nil.
	GetState(ctx context.Context) (*WorkflowState, error)

	// PatchState shallow-merges the patch into the stored WorkflowState,
	// stamps UpdatedAt, and returns the merged record.
	PatchState(ctx context.Context, patch *Patch) (*WorkflowState, error)
}

// Lifecycle is the optional management surface a backend may implement in
// addition to Store. The daemon calls these when present.
type Lifecycle interface {
	// Migrate runs any schema migrations.
	Migrate(ctx context.Context) error

	// Ping checks backend connectivity.
	Ping(ctx context.Context) error

	// Close releases backend resources.
	Close() error
}
