// Package auth checks the API bearer token.
package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strings"
)

// HashKey returns a SHA-256 hash of the key. Surrounding whitespace is
// ignored.
func HashKey(key string) string {
	key = strings.TrimSpace(key)

	hash := sha256.Sum256([]byte(key))
	return hex.EncodeToString(hash[:])
}

// ParseBearer extracts the token from an "Authorization: Bearer <token>"
// header value.
func ParseBearer(header string) (string, bool) {
	parts := strings.Split(header, " ")
	if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

// TokenMatches reports whether presented hashes to wantHash. The comparison
// runs in constant time.
func TokenMatches(presented, wantHash string) bool {
	got := HashKey(presented)
	return subtle.ConstantTimeCompare([]byte(got), []byte(wantHash)) == 1
}
