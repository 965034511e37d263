package id_test

import (
	"strings"
	"testing"

	"github.com/blockweave/blockweave/id"
)

func TestConstructors(t *testing.T) {
	tests := []struct {
		name   string
		newFn  func() id.ID
		prefix string
	}{
		{"CoordinatorID", id.NewCoordinatorID, "coord_"},
		{"ConnectionID", id.NewConnectionID, "conn_"},
		{"EventID", id.NewEventID, "evt_"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.newFn().String()
			if !strings.HasPrefix(got, tt.prefix) {
				t.Errorf("expected prefix %q, got %q", tt.prefix, got)
			}
		})
	}
}

func TestParseRoundTrip(t *testing.T) {
	tests := []struct {
		name    string
		newFn   func() id.ID
		parseFn func(string) (id.ID, error)
	}{
		{"CoordinatorID", id.NewCoordinatorID, id.ParseCoordinatorID},
		{"ConnectionID", id.NewConnectionID, id.ParseConnectionID},
		{"EventID", id.NewEventID, id.ParseEventID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			original := tt.newFn()
			parsed, err := tt.parseFn(original.String())
			if err != nil {
				t.Fatalf("parse failed: %v", err)
			}
			if parsed.String() != original.String() {
				t.Errorf("round-trip mismatch: %q != %q", parsed.String(), original.String())
			}
		})
	}
}

func TestCrossTypeRejection(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		parseFn func(string) (id.ID, error)
	}{
		{"ParseCoordinatorID rejects conn_", id.NewConnectionID().String(), id.ParseCoordinatorID},
		{"ParseConnectionID rejects evt_", id.NewEventID().String(), id.ParseConnectionID},
		{"ParseEventID rejects coord_", id.NewCoordinatorID().String(), id.ParseEventID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.parseFn(tt.input)
			if err == nil {
				t.Errorf("expected error for cross-type parse of %q, got nil", tt.input)
			}
		})
	}
}

func TestNilID(t *testing.T) {
	if !id.Nil.IsNil() {
		t.Error("Nil.IsNil() = false, want true")
	}
	if id.Nil.String() != "" {
		t.Errorf("Nil.String() = %q, want empty", id.Nil.String())
	}
	if _, err := id.Parse(""); err == nil {
		t.Error("Parse(\"\") succeeded, want error")
	}
}

func TestNewSessionID(t *testing.T) {
	seen := make(map[string]bool)
	for range 100 {
		s := id.NewSessionID()
		if len(s) != id.SessionIDLength {
			t.Fatalf("session ID %q has length %d, want %d", s, len(s), id.SessionIDLength)
		}
		if !id.ValidSessionID(s) {
			t.Fatalf("generated session ID %q is not subdomain-safe", s)
		}
		if seen[s] {
			t.Fatalf("duplicate session ID %q in 100 draws", s)
		}
		seen[s] = true
	}
}

func TestValidSessionID(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"abc123", true},
		{"a", true},
		{"", false},
		{"ABC123", false},
		{"has_underscore", false},
		{"has-hyphen", false},
		{strings.Repeat("a", 64), false},
		{strings.Repeat("a", 63), true},
	}

	for _, tt := range tests {
		if got := id.ValidSessionID(tt.in); got != tt.want {
			t.Errorf("ValidSessionID(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
