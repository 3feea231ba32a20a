package token

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
)

// Sign returns HMAC-SHA256(secret, message).
func Sign(secret []byte, message string) []byte {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(message))
	return mac.Sum(nil)
}

// Equal reports whether a and b hold the same non-empty digest. Lengths are
// compared first; equal-length inputs are compared in full regardless of
// where they first differ.
func Equal(a, b []byte) bool {
	if len(a) == 0 || len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare(a, b) == 1
}
