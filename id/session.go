package id

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"regexp"
)

// sessionAlphabet is lowercase base36. Session IDs are embedded as DNS
// labels in preview hostnames (session--site--org), so uppercase,
// underscores, and leading hyphens are all off the table.
const sessionAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

// SessionIDLength is the number of characters in a generated session ID.
// 8 base36 characters give ~41 bits, plenty for concurrent workflows
// from a single user while keeping preview subdomains short.
const SessionIDLength = 8

var sessionIDPattern = regexp.MustCompile(`^[a-z0-9]+$`)

// NewSessionID generates a short, subdomain-safe session identifier.
// Unlike entity IDs, session IDs carry no prefix: they name a preview
// branch lineage, not a stored entity.
func NewSessionID() string {
	buf := make([]byte, SessionIDLength)
	max := big.NewInt(int64(len(sessionAlphabet)))
	for i := range buf {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			panic(fmt.Sprintf("id: session entropy unavailable: %v", err))
		}
		buf[i] = sessionAlphabet[n.Int64()]
	}
	return string(buf)
}

// ValidSessionID reports whether s is a well-formed session identifier:
// non-empty, subdomain-safe, and at most 63 characters (DNS label limit).
func ValidSessionID(s string) bool {
	if s == "" || len(s) > 63 {
		return false
	}
	return sessionIDPattern.MatchString(s)
}
