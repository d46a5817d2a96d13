package tip

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// DefaultKey is the partition key for requests that do not pin a tip
const DefaultKey = "_latest"

// HashLength is the byte length of an index block hash
const HashLength = 32

// Normalize strips an optional 0x prefix and lowercases the reference
func Normalize(ref string) string {
	ref = strings.TrimSpace(ref)
	if len(ref) >= 2 && ref[0] == '0' && (ref[1] == 'x' || ref[1] == 'X') {
		ref = ref[2:]
	}
	return strings.ToLower(ref)
}

// Key returns the partition key for an optional tip reference.
// Two references that normalize to the same hash share a key.
func Key(ref string) string {
	n := Normalize(ref)
	if n == "" {
		return DefaultKey
	}
	return n
}

// IsDefault returns true if key is the shared default partition
func IsDefault(key string) bool {
	return key == DefaultKey
}

// WireTip returns the tip to send on the wire for a partition key.
// The default partition sends no tip.
func WireTip(key string) string {
	if IsDefault(key) {
		return ""
	}
	return key
}

// Validate checks that a non-empty reference is a 32-byte hex hash
func Validate(ref string) error {
	n := Normalize(ref)
	if n == "" {
		return nil
	}
	b, err := hex.DecodeString(n)
	if err != nil {
		return fmt.Errorf("invalid index block hash %q: %w", ref, err)
	}
	if len(b) != HashLength {
		return fmt.Errorf("invalid index block hash %q: expected %d bytes, got %d", ref, HashLength, len(b))
	}
	return nil
}
