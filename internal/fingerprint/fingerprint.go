// Package fingerprint computes stable content hashes for change detection.
//
// The hash gates all reprocessing: an article whose fingerprint matches the
// hash stored on its row has not changed since its last successful run and
// must be skipped before any provider call is made.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Compute returns the hex-encoded SHA-256 digest of the canonical
// title+content concatenation. Leading/trailing whitespace is stripped so
// crawler-side formatting churn does not force a re-embed.
func Compute(title, content string) string {
	canonical := strings.TrimSpace(title) + "\n" + strings.TrimSpace(content)
	sum := sha256.Sum256([]byte(canonical))
	return hex.EncodeToString(sum[:])
}
