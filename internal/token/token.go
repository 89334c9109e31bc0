// Package token issues and checks opaque ingestion tokens of the form
// <prefix>_<base36 unix millis>_<32 hex chars>. A well-formed token grants
// nothing by itself; callers must verify its digest against the token store.
package token

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const (
	// Prefix identifies ingestion tokens.
	Prefix = "scr"

	randomBytes = 16
	separator   = "_"
)

var formatPattern = regexp.MustCompile(`^` + Prefix + `_[0-9a-z]+_[0-9a-f]{32}$`)

var randReader io.Reader = rand.Reader

// Generate returns a new token stamped with now.
func Generate(now time.Time) (string, error) {
	buf := make([]byte, randomBytes)
	if _, err := io.ReadFull(randReader, buf); err != nil {
		return "", fmt.Errorf("failed to read token entropy: %w", err)
	}

	timestamp := strconv.FormatInt(now.UTC().UnixMilli(), 36)
	return strings.Join([]string{Prefix, timestamp, hex.EncodeToString(buf)}, separator), nil
}

// ValidateFormat reports whether s has the exact token structure.
func ValidateFormat(s string) bool {
	return formatPattern.MatchString(s)
}

// CreatedAt decodes the timestamp embedded in a well-formed token.
func CreatedAt(s string) (time.Time, bool) {
	if !ValidateFormat(s) {
		return time.Time{}, false
	}

	parts := strings.Split(s, separator)
	millis, err := strconv.ParseInt(parts[1], 36, 64)
	if err != nil {
		return time.Time{}, false
	}
	return time.UnixMilli(millis).UTC(), true
}

// Hash returns the hex sha256 digest of secret. Hashing an empty secret is a
// programming error.
func Hash(secret string) string {
	if secret == "" {
		panic("token: hash of empty secret")
	}
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}

// ConstantTimeEquals compares a and b without an early exit on the first
// differing byte. Length is not treated as secret.
func ConstantTimeEquals(a, b string) bool {
	if len(a) != len(b) {
		return false
	}

	var diff byte
	for i := 0; i < len(a); i++ {
		diff |= a[i] ^ b[i]
	}
	return diff == 0
}
