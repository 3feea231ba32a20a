package token

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/jmcleod/pushlog/internal/util"
)

// DefaultTTL is the lifetime of an issued token (30 days).
const DefaultTTL = 30 * 24 * time.Hour

var (
	ErrMalformed = errors.New("token malformed")
	ErrExpired   = errors.New("token expired")
	ErrSignature = errors.New("token signature mismatch")
	ErrNoSecret  = errors.New("token signing secret is empty")
)

// Claims is the JSON payload of a token.
type Claims struct {
	// Exp is the expiry as Unix milliseconds.
	Exp int64 `json:"exp"`
}

// ExpiresAt returns Exp as a time.Time.
func (c Claims) ExpiresAt() time.Time {
	return time.UnixMilli(c.Exp)
}

// Issue builds a token that expires ttl after now. The caller must make sure
// secret is non-empty; Verify rejects every token under an empty secret.
func Issue(secret []byte, now time.Time, ttl time.Duration) string {
	payload, _ := json.Marshal(Claims{Exp: now.UnixMilli() + ttl.Milliseconds()})
	payloadB64 := util.Base64URLEncode(payload)
	return payloadB64 + "." + util.Base64URLEncode(Sign(secret, payloadB64))
}

// Verify reports whether tok is well formed, unexpired at now and signed
// with secret. It never panics and does not say why a token was rejected.
func Verify(secret []byte, tok string, now time.Time) bool {
	_, err := Parse(secret, tok, now)
	return err == nil
}

// Parse validates tok like Verify and returns its claims. The error wraps
// one of ErrMalformed, ErrExpired, ErrSignature or ErrNoSecret.
func Parse(secret []byte, tok string, now time.Time) (Claims, error) {
	if tok == "" {
		return Claims{}, fmt.Errorf("%w: empty", ErrMalformed)
	}
	payloadB64, sigB64, ok := strings.Cut(tok, ".")
	if !ok || payloadB64 == "" || sigB64 == "" {
		return Claims{}, fmt.Errorf("%w: want <payload>.<signature>", ErrMalformed)
	}

	claims, err := decodeClaims(payloadB64)
	if err != nil {
		return Claims{}, err
	}
	if now.UnixMilli() >= claims.Exp {
		return Claims{}, ErrExpired
	}

	if len(secret) == 0 {
		return Claims{}, ErrNoSecret
	}
	expected := Sign(secret, payloadB64)
	given, err := util.Base64URLDecode(sigB64)
	if err != nil {
		return Claims{}, fmt.Errorf("%w: signature: %v", ErrMalformed, err)
	}
	if !Equal(given, expected) {
		return Claims{}, ErrSignature
	}
	return claims, nil
}

func decodeClaims(payloadB64 string) (Claims, error) {
	data, err := util.Base64URLDecode(payloadB64)
	if err != nil {
		return Claims{}, fmt.Errorf("%w: payload: %v", ErrMalformed, err)
	}

	var raw struct {
		Exp json.RawMessage `json:"exp"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return Claims{}, fmt.Errorf("%w: payload json: %v", ErrMalformed, err)
	}
	if len(raw.Exp) == 0 {
		return Claims{}, fmt.Errorf("%w: missing exp", ErrMalformed)
	}

	var exp float64
	if err := json.Unmarshal(raw.Exp, &exp); err != nil {
		return Claims{}, fmt.Errorf("%w: exp is not a number", ErrMalformed)
	}
	if exp <= 0 {
		return Claims{}, fmt.Errorf("%w: exp must be positive", ErrMalformed)
	}
	if exp >= math.MaxInt64 {
		return Claims{Exp: math.MaxInt64}, nil
	}
	// Round up so a fractional exp is never treated as earlier than it is.
	return Claims{Exp: int64(math.Ceil(exp))}, nil
}
