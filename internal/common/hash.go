package common

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Digest hashes the parts joined by "|" and returns lowercase hex. It keeps
// user-supplied values such as idempotency keys and webhook bodies out of
// Redis key names.
func Digest(parts ...string) string {
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])
}
