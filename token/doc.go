// Package token implements the stateless session token carried in the
// pushup_auth cookie.
//
// A token is
//
//	base64url(`{"exp":<unix ms>}`) "." base64url(HMAC-SHA256(secret, payload_b64))
//
// The MAC covers the encoded payload string exactly as it travels, so issue
// and verify never need to agree on a JSON canonical form. Nothing is stored
// server-side: a token is valid while its exp lies in the future and its
// signature recomputes under the current secret.
//
// Two tokens issued in the same millisecond under the same secret are
// byte-identical. Tokens are never tracked, so this is accepted.
package token
