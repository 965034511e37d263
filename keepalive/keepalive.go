// Package keepalive holds a periodic liveness signal for the duration of a
// workflow. Hosts that reclaim idle processes treat the ping as activity,
// so a workflow that outlives the idle window must hold the signal from
// before its first remote call until its final exit path.
package keepalive

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Pinger receives the periodic liveness signal. Implementations must be
// cheap and safe to call repeatedly; errors are logged, never fatal.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingerFunc adapts a function to the Pinger interface.
type PingerFunc func(ctx context.Context) error

func (f PingerFunc) Ping(ctx context.Context) error { return f(ctx) }

// Keeper reference-counts liveness holders. The first Start spawns the
// ticker goroutine; the matching final Stop tears it down. Start and Stop
// must be balanced per holder; Stop with no matching Start is a no-op.
type Keeper struct {
	interval time.Duration
	pinger   Pinger
	logger   *slog.Logger

	mu     sync.Mutex
	holds  int
	cancel context.CancelFunc
	done   chan struct{}
}

// Option configures the Keeper.
type Option func(*Keeper)

// WithLogger sets the logger for the keeper.
func WithLogger(logger *slog.Logger) Option {
	return func(k *Keeper) { k.logger = logger }
}

// New creates a Keeper pinging p every interval.
func New(p Pinger, interval time.Duration, opts ...Option) *Keeper {
	k := &Keeper{
		interval: interval,
		pinger:   p,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(k)
	}
	return k
}

// Start acquires one hold on the liveness signal. The ticker runs until all
// holds are released.
func (k *Keeper) Start() {
	k.mu.Lock()
	defer k.mu.Unlock()

	k.holds++
	if k.holds > 1 {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	k.cancel = cancel
	k.done = make(chan struct{})
	go k.run(ctx, k.done)
}

// Stop releases one hold. When the last hold goes, the ticker goroutine is
// stopped and waited for.
func (k *Keeper) Stop() {
	k.mu.Lock()
	if k.holds == 0 {
		k.mu.Unlock()
		return
	}
	k.holds--
	if k.holds > 0 {
		k.mu.Unlock()
		return
	}
	cancel, done := k.cancel, k.done
	k.cancel, k.done = nil, nil
	k.mu.Unlock()

	cancel()
	<-done
}

// Holds returns the current number of outstanding holds.
func (k *Keeper) Holds() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.holds
}

func (k *Keeper) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	t := time.NewTicker(k.interval)
	defer t.Stop()

	// Ping immediately so short workflows still register at least once.
	k.ping(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			k.ping(ctx)
		}
	}
}

func (k *Keeper) ping(ctx context.Context) {
	if err := k.pinger.Ping(ctx); err != nil && ctx.Err() == nil {
		k.logger.Warn("liveness ping failed", "error", err)
	}
}
