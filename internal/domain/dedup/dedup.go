// Package dedup defines the content deduplication ledger entry.
package dedup

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// Entry is one content-hash ledger row. A hash present in the ledger
// short-circuits reprocessing of identical payloads regardless of task
// identity.
type Entry struct {
	ContentHash string    `json:"content_hash"`
	FirstSeen   time.Time `json:"first_seen"`
	RefCount    int       `json:"ref_count"`
}

// HashContent normalizes content and returns its SHA-256 hex digest.
// Normalization: trim, lowercase, collapse runs of whitespace. Two
// payloads differing only in casing or spacing dedup to the same hash.
func HashContent(content string) string {
	normalized := strings.ToLower(strings.TrimSpace(content))
	normalized = strings.Join(strings.Fields(normalized), " ")
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}
