// Package bunstore implements state.Store on the Bun ORM (PostgreSQL
// dialect). It persists the same two records as the pgx backend but goes
// through bun models, which is convenient for applications already carrying
// a *bun.DB.
package bunstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/uptrace/bun"

	"github.com/blockweave/blockweave/state"
)

// Ensure Store implements the store interfaces at compile time.
var (
	_ state.Store     = (*Store)(nil)
	_ state.Lifecycle = (*Store)(nil)
)

const (
	keyConfig = "config"
	keyState  = "state"
)

type recordModel struct {
	bun.BaseModel `bun:"table:blockweave_records"`

	Key       string    `bun:"key,pk"`
	Value     []byte    `bun:"value,notnull,type:jsonb"`
	UpdatedAt time.Time `bun:"updated_at,notnull,default:current_timestamp"`
}

// Store is a Bun ORM implementation of state.Store.
// The caller owns the *bun.DB lifecycle; Store never closes it.
type Store struct {
	db     *bun.DB
	logger *slog.Logger
}

// Option configures the Store.
type Option func(*Store)

// WithLogger sets the logger for the store.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// New creates a new Bun store. The caller owns the db lifecycle — the Store
// will not close it on Close().
func New(db *bun.DB, opts ...Option) *Store {
	s := &Store{
		db:     db,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DB returns the underlying *bun.DB for advanced usage.
func (s *Store) DB() *bun.DB {
	return s.db
}

// Migrate creates the records table if it does not exist.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.db.NewCreateTable().
		Model((*recordModel)(nil)).
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("blockweave/bun: create records table: %w", err)
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close is a no-op; the caller owns the *bun.DB.
func (s *Store) Close() error {
	return nil
}

func (s *Store) getRecord(ctx context.Context, key string, dst any) (bool, error) {
	m := new(recordModel)
	err := s.db.NewSelect().
		Model(m).
		Where("key = ?", key).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("blockweave/bun: get %s: %w", key, err)
	}
	if err := json.Unmarshal(m.Value, dst); err != nil {
		return false, fmt.Errorf("blockweave/bun: decode %s: %w", key, err)
	}
	return true, nil
}

func (s *Store) putRecord(ctx context.Context, key string, value any, updatedAt time.Time) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("blockweave/bun: encode %s: %w", key, err)
	}
	m := &recordModel{Key: key, Value: raw, UpdatedAt: updatedAt}
	_, err = s.db.NewInsert().
		Model(m).
		On("CONFLICT (key) DO UPDATE").
		Set("value = EXCLUDED.value").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("blockweave/bun: put %s: %w", key, err)
	}
	return nil
}

// GetConfig retrieves the stored Config, or nil if none was saved.
func (s *Store) GetConfig(ctx context.Context) (*state.Config, error) {
	var cfg state.Config
	ok, err := s.getRecord(ctx, keyConfig, &cfg)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return &cfg, nil
}

// SetConfig overwrites the stored Config wholesale.
func (s *Store) SetConfig(ctx context.Context, cfg *state.Config) error {
	return s.putRecord(ctx, keyConfig, cfg, time.Now().UTC())
}

// GetState retrieves the current WorkflowState, defaulting to idle.
func (s *Store) GetState(ctx context.Context) (*state.WorkflowState, error) {
	var ws state.WorkflowState
	ok, err := s.getRecord(ctx, keyState, &ws)
	if err != nil {
		return nil, err
	}
	if !ok {
		return state.Idle(), nil
	}
	return &ws, nil
}

// PatchState shallow-merges the patch into the stored WorkflowState,
// stamps UpdatedAt, and returns the merged record.
func (s *Store) PatchState(ctx context.Context, patch *state.Patch) (*state.WorkflowState, error) {
	ws, err := s.GetState(ctx)
	if err != nil {
		return nil, err
	}

	patch.Apply(ws)
	ws.UpdatedAt = time.Now().UTC()

	if err := s.putRecord(ctx, keyState, ws, ws.UpdatedAt); err != nil {
		return nil, err
	}
	return ws, nil
}
