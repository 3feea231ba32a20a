package api

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/jmcleod/pushlog/internal/util"
	"github.com/jmcleod/pushlog/token"
)

// errTrailingData is returned when a request body holds more than one JSON value.
var errTrailingData = errors.New("unexpected data after JSON value")

// decodeJSON reads a single JSON value of at most maxBodyBytes into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return errTrailingData
	}
	return nil
}

// Auth checks the submitted passcode and, on success, issues a session
// cookie valid for token.DefaultTTL.
func (a *API) Auth(w http.ResponseWriter, r *http.Request) {
	if !a.cfg.HasPasscode() {
		writeError(w, ErrMissingPasscode)
		return
	}
	if !a.cfg.CookieSecret.IsSet() {
		writeError(w, ErrMissingCookieSecret)
		return
	}

	var req AuthRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, ErrInvalidJSON)
		return
	}

	ok, err := a.passcodeMatches(passcodeString(req.Passcode))
	if err != nil {
		slog.Error("passcode comparison failed", "error", err)
		writeError(w, ErrInternal)
		return
	}
	if !ok {
		a.audit.logFailure(AuditLoginFailure, r, "passcode mismatch")
		writeError(w, ErrPasscodeMismatch)
		return
	}

	var tok string
	if err := a.cfg.CookieSecret.Use(func(secret []byte) error {
		tok = token.Issue(secret, a.now(), token.DefaultTTL)
		return nil
	}); err != nil {
		slog.Error("issuing session token failed", "error", err)
		writeError(w, ErrInternal)
		return
	}

	writeSessionCookie(w, tok)
	a.audit.log(AuditLoginSuccess, r)
	writeJSON(w, http.StatusOK, OKResponse{OK: true})
}

// Logout tells the client to drop its session cookie. The token itself
// stays valid until it expires.
func (a *API) Logout(w http.ResponseWriter, r *http.Request) {
	clearSessionCookie(w)
	a.audit.log(AuditLogout, r)
	writeJSON(w, http.StatusOK, OKResponse{OK: true})
}

// AuthStatus reports whether the request carries a valid session.
func (a *API) AuthStatus(w http.ResponseWriter, r *http.Request) {
	if !a.cfg.CookieSecret.IsSet() {
		writeError(w, ErrMissingCookieSecret)
		return
	}

	claims, err := a.sessionClaims(r)
	if err != nil {
		slog.ErrorContext(r.Context(), "verifying session failed", "error", err)
		writeError(w, ErrInternal)
		return
	}
	resp := AuthStatusResponse{OK: true}
	if claims != nil {
		resp.Authenticated = true
		resp.ExpiresAt = claims.ExpiresAt().UTC().Format(time.RFC3339)
	}
	writeJSON(w, http.StatusOK, resp)
}

// passcodeMatches compares candidate with the configured passcode. An
// argon2id hash takes precedence over a plain passcode.
func (a *API) passcodeMatches(candidate string) (bool, error) {
	var ok bool
	if a.cfg.PasscodeHash.IsSet() {
		err := a.cfg.PasscodeHash.Use(func(encoded []byte) error {
			var err error
			ok, err = util.VerifyArgon2idHash(candidate, string(encoded))
			return err
		})
		return ok, err
	}
	err := a.cfg.Passcode.Use(func(want []byte) error {
		ok = passcodeEqual([]byte(candidate), want)
		return nil
	})
	return ok, err
}

// passcodeEqual compares SHA-256 digests in constant time so that the
// passcode length does not leak.
func passcodeEqual(candidate, want []byte) bool {
	a := sha256.Sum256(candidate)
	b := sha256.Sum256(want)
	return subtle.ConstantTimeCompare(a[:], b[:]) == 1
}

// passcodeString coerces the submitted passcode the way loosely typed
// clients send it. Missing, null, false, zero and non-scalar values are "".
func passcodeString(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case float64:
		if x != 0 {
			return strconv.FormatFloat(x, 'f', -1, 64)
		}
	case bool:
		if x {
			return "true"
		}
	}
	return ""
}
