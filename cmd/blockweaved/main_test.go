package main

import (
	"context"
	"log/slog"
	"testing"
)

func TestRootCmdFlagDefaults(t *testing.T) {
	cmd := newRootCmd()

	for flag, want := range map[string]string{
		"listen":     ":8420",
		"store":      "memory",
		"log-level":  "info",
		"log-format": "text",
	} {
		got, err := cmd.Flags().GetString(flag)
		if err != nil {
			t.Fatalf("flag %q: %v", flag, err)
		}
		if got != want {
			t.Errorf("flag %q = %q, want %q", flag, got, want)
		}
	}
}

func TestNewLoggerRejectsUnknownLevel(t *testing.T) {
	if _, err := newLogger("verbose", "text"); err == nil {
		t.Error("expected error for unknown level")
	}
	if _, err := newLogger("info", "xml"); err == nil {
		t.Error("expected error for unknown format")
	}
	if _, err := newLogger("debug", "json"); err != nil {
		t.Errorf("debug/json should be accepted: %v", err)
	}
}

func TestOpenStoreUnknownDriver(t *testing.T) {
	if _, err := openStore(context.Background(), "cassandra", "", slog.Default()); err == nil {
		t.Error("expected error for unknown driver")
	}
}

func TestOpenStoreMemory(t *testing.T) {
	store, err := openStore(context.Background(), "memory", "", slog.Default())
	if err != nil {
		t.Fatalf("openStore: %v", err)
	}
	if store == nil {
		t.Fatal("nil store")
	}
}

func TestOpenStoreBadRedisDSN(t *testing.T) {
	if _, err := openStore(context.Background(), "redis", "not-a-url", slog.Default()); err == nil {
		t.Error("expected error for malformed redis dsn")
	}
}
