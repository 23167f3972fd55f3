package core

import (
	"crypto/sha256"
	"encoding/hex"
)

// Fingerprint maps a filing identity to its deduplication key: a sha256
// digest (64 hex characters) over the three identity fields joined with a
// fixed delimiter. Deterministic, no side effects.
func Fingerprint(source, fileNumber, filingDate string) string {
	sum := sha256.Sum256([]byte(source + "-" + fileNumber + "-" + filingDate))
	return hex.EncodeToString(sum[:])
}
