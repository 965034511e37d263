// Command blockweaved hosts the block generation coordinator: it connects
// to a running browser over the DevTools protocol, persists workflow state
// in the configured store, and serves the wire protocol to listeners.
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	"github.com/blockweave/blockweave"
	"github.com/blockweave/blockweave/agent"
	"github.com/blockweave/blockweave/assets"
	"github.com/blockweave/blockweave/backoff"
	"github.com/blockweave/blockweave/coordinator"
	"github.com/blockweave/blockweave/hooks"
	"github.com/blockweave/blockweave/id"
	"github.com/blockweave/blockweave/janitor"
	"github.com/blockweave/blockweave/keepalive"
	"github.com/blockweave/blockweave/observability"
	"github.com/blockweave/blockweave/remote"
	"github.com/blockweave/blockweave/state"
	bunstore "github.com/blockweave/blockweave/store/bun"
	"github.com/blockweave/blockweave/store/memory"
	"github.com/blockweave/blockweave/store/postgres"
	redisstore "github.com/blockweave/blockweave/store/redis"
	"github.com/blockweave/blockweave/wire"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:   "blockweaved",
		Short: "Block generation coordinator daemon",
		Long: `blockweaved turns a user-selected web page region into generated
presentational code. It drives the in-page selection agent over the browser
DevTools protocol, calls the remote generation service, and exposes workflow
state and events over WebSocket and HTTP.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), v)
		},
	}

	flags := cmd.Flags()
	flags.String("listen", ":8420", "wire protocol listen address")
	flags.String("auth-token", "", "shared bearer token for the wire endpoints (empty disables auth)")
	flags.String("store", "memory", "state store driver (memory|redis|postgres|bun)")
	flags.String("store-dsn", "", "connection string for redis/postgres/bun stores")
	flags.String("remote-endpoint", remote.DefaultEndpoint, "generation service base URL")
	flags.Float64("remote-rate", 0, "generation service request rate limit (0 disables)")
	flags.String("browser-url", "", "browser DevTools WebSocket URL (empty runs without an agent)")
	flags.String("github-token", "", "token for listing repository block assets")
	flags.String("agent-style", "", "path to the agent stylesheet to inject")
	flags.String("agent-behavior", "", "path to the agent script to inject")
	flags.Duration("heartbeat-interval", blockweave.DefaultConfig().HeartbeatInterval, "liveness signal interval during generation")
	flags.Duration("stale-threshold", blockweave.DefaultConfig().StaleStateThreshold, "age at which a stuck workflow is failed")
	flags.Duration("remote-timeout", blockweave.DefaultConfig().RemoteTimeout, "per-call remote service timeout")
	flags.Duration("shutdown-timeout", blockweave.DefaultConfig().ShutdownTimeout, "graceful shutdown budget")
	flags.String("log-level", "info", "log level (debug|info|warn|error)")
	flags.String("log-format", "text", "log format (text|json)")

	_ = v.BindPFlags(flags)
	v.SetEnvPrefix("BLOCKWEAVE")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	return cmd
}

func run(ctx context.Context, v *viper.Viper) error {
	logger, err := newLogger(v.GetString("log-level"), v.GetString("log-format"))
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	cfg := blockweave.Config{
		HeartbeatInterval:   v.GetDuration("heartbeat-interval"),
		StaleStateThreshold: v.GetDuration("stale-threshold"),
		RemoteTimeout:       v.GetDuration("remote-timeout"),
		ShutdownTimeout:     v.GetDuration("shutdown-timeout"),
	}

	instanceID := id.NewCoordinatorID()
	logger = logger.With(slog.String("instance", instanceID.String()))

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, v.GetString("store"), v.GetString("store-dsn"), logger)
	if err != nil {
		return err
	}
	if lc, ok := store.(state.Lifecycle); ok {
		if err := lc.Migrate(ctx); err != nil {
			return fmt.Errorf("store migrate: %w", err)
		}
		defer lc.Close()
	}

	var remoteOpts []remote.Option
	remoteOpts = append(remoteOpts,
		remote.WithLogger(logger),
		remote.WithTimeout(cfg.RemoteTimeout),
	)
	if rps := v.GetFloat64("remote-rate"); rps > 0 {
		remoteOpts = append(remoteOpts, remote.WithRateLimit(rps, 1))
	}
	client := remote.New(v.GetString("remote-endpoint"), remoteOpts...)

	registry := hooks.NewRegistry(logger)
	registry.Register(observability.NewMetricsExtension())

	coordOpts := []coordinator.Option{
		coordinator.WithLogger(logger),
		coordinator.WithHooks(registry),
		coordinator.WithBlockLister(assets.New("",
			assets.WithLogger(logger),
			assets.WithToken(v.GetString("github-token")))),
	}

	style, behavior, err := loadAgentAssets(v.GetString("agent-style"), v.GetString("agent-behavior"))
	if err != nil {
		return err
	}
	if style != "" || behavior != "" {
		coordOpts = append(coordOpts, coordinator.WithAgentAssets(style, behavior))
	}

	var bridge *agent.Bridge
	if url := v.GetString("browser-url"); url != "" {
		bridge, err = dialBrowser(ctx, url, logger)
		if err != nil {
			return fmt.Errorf("browser dial: %w", err)
		}
		defer bridge.Close()

		keeper := keepalive.New(keepalive.PingerFunc(func(ctx context.Context) error {
			_, err := bridge.ListTargets(ctx)
			return err
		}), cfg.HeartbeatInterval, keepalive.WithLogger(logger))

		coordOpts = append(coordOpts,
			coordinator.WithBridge(bridge),
			coordinator.WithKeeper(keeper),
		)
	} else {
		logger.Warn("no browser url configured, selection workflows disabled")
	}

	coord := coordinator.New(store, client, coordOpts...)

	wireServer := wire.NewServer(coord,
		wire.WithLogger(logger),
		wire.WithAuthToken(v.GetString("auth-token")),
	)
	registry.Register(wireServer)

	sweeper := janitor.New(store, cfg.StaleStateThreshold,
		janitor.WithLogger(logger),
		janitor.WithHooks(registry),
	)
	sweeper.Sweep(ctx)
	if err := sweeper.Start(); err != nil {
		return err
	}
	defer sweeper.Stop()

	if bridge != nil {
		go forwardAgentEvents(ctx, bridge, coord, logger)
	}

	httpServer := &http.Server{
		Addr:    v.GetString("listen"),
		Handler: wireServer.Handler(),
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("wire server listening", slog.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down", slog.Duration("budget", cfg.ShutdownTimeout))
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	registry.EmitShutdown(shutdownCtx)
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}

// dialBrowser retries the DevTools connection with backoff so the daemon can
// start before the browser finishes launching.
func dialBrowser(ctx context.Context, url string, logger *slog.Logger) (*agent.Bridge, error) {
	const maxAttempts = 8
	strategy := backoff.DefaultStrategy()

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		bridge, err := agent.Dial(ctx, url, agent.WithLogger(logger))
		if err == nil {
			return bridge, nil
		}
		lastErr = err

		delay := strategy.Delay(attempt)
		logger.Warn("browser dial failed, retrying",
			slog.Int("attempt", attempt),
			slog.Duration("delay", delay),
			slog.String("error", err.Error()),
		)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}
	return nil, lastErr
}

// forwardAgentEvents pumps selection events from the in-page agent into the
// coordinator until the bridge or the context closes.
func forwardAgentEvents(ctx context.Context, bridge *agent.Bridge, coord *coordinator.Coordinator, logger *slog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-bridge.Events():
			if !ok {
				logger.Warn("browser connection closed")
				return
			}
			resp := coord.HandleMessage(ctx, ev.Type, ev.Payload)
			if !resp.Success {
				logger.Error("agent event rejected",
					slog.String("type", ev.Type),
					slog.String("error", resp.Error),
				)
			}
		}
	}
}

func openStore(ctx context.Context, driver, dsn string, logger *slog.Logger) (state.Store, error) {
	switch driver {
	case "memory":
		return memory.New(), nil
	case "redis":
		opts, err := redis.ParseURL(dsn)
		if err != nil {
			return nil, fmt.Errorf("redis dsn: %w", err)
		}
		return redisstore.New(redis.NewClient(opts), redisstore.WithLogger(logger)), nil
	case "postgres":
		return postgres.New(ctx, dsn, postgres.WithLogger(logger))
	case "bun":
		sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
		db := bun.NewDB(sqldb, pgdialect.New())
		return bunstore.New(db, bunstore.WithLogger(logger)), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", driver)
	}
}

func loadAgentAssets(stylePath, behaviorPath string) (style, behavior string, err error) {
	if stylePath != "" {
		data, err := os.ReadFile(stylePath)
		if err != nil {
			return "", "", fmt.Errorf("agent style: %w", err)
		}
		style = string(data)
	}
	if behaviorPath != "" {
		data, err := os.ReadFile(behaviorPath)
		if err != nil {
			return "", "", fmt.Errorf("agent behavior: %w", err)
		}
		behavior = string(data)
	}
	return style, behavior, nil
}

func newLogger(level, format string) (*slog.Logger, error) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "info":
		lvl = slog.LevelInfo
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		return nil, fmt.Errorf("unknown log level %q", level)
	}

	opts := &slog.HandlerOptions{Level: lvl}
	var handler slog.Handler
	switch format {
	case "text":
		handler = slog.NewTextHandler(os.Stderr, opts)
	case "json":
		handler = slog.NewJSONHandler(os.Stderr, opts)
	default:
		return nil, fmt.Errorf("unknown log format %q", format)
	}
	return slog.New(handler), nil
}
