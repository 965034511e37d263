package blockweave

import "time"

// Config holds runtime configuration for the coordinator host.
type Config struct {
	// HeartbeatInterval is how often an in-flight workflow signals liveness
	// to the host while remote calls are pending.
	HeartbeatInterval time.Duration

	// StaleStateThreshold is how long a workflow may sit in "generating"
	// without a state write before the janitor marks it failed.
	StaleStateThreshold time.Duration

	// RemoteTimeout bounds each individual remote service call.
	RemoteTimeout time.Duration

	// ShutdownTimeout is the maximum time to wait for graceful shutdown.
	ShutdownTimeout time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		HeartbeatInterval:   20 * time.Second,
		StaleStateThreshold: 5 * time.Minute,
		RemoteTimeout:       120 * time.Second,
		ShutdownTimeout:     30 * time.Second,
	}
}
