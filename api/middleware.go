package api

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/jmcleod/pushlog/token"
)

const (
	// SessionCookieName is the cookie carrying the signed session token.
	SessionCookieName = "pushup_auth"

	// maxBodyBytes bounds JSON request bodies.
	maxBodyBytes = 64 << 10
)

var sessionCookieMaxAge = int(token.DefaultTTL / time.Second)

// sessionClaims returns the claims of the request's session token, or nil
// when the request carries no valid session. An error means the cookie
// secret could not be opened.
func (a *API) sessionClaims(r *http.Request) (*token.Claims, error) {
	cookie, err := r.Cookie(SessionCookieName)
	if err != nil || cookie.Value == "" {
		return nil, nil
	}
	var claims *token.Claims
	err = a.cfg.CookieSecret.Use(func(secret []byte) error {
		if c, err := token.Parse(secret, cookie.Value, a.now()); err == nil {
			claims = &c
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claims, nil
}

// authorize writes the appropriate error and returns false unless the
// request carries a valid session.
func (a *API) authorize(w http.ResponseWriter, r *http.Request) bool {
	if !a.cfg.CookieSecret.IsSet() {
		writeError(w, ErrMissingCookieSecret)
		return false
	}
	claims, err := a.sessionClaims(r)
	if err != nil {
		slog.ErrorContext(r.Context(), "verifying session failed", "error", err)
		writeError(w, ErrInternal)
		return false
	}
	if claims == nil {
		a.audit.logFailure(AuditUnauthorized, r, "missing or invalid session cookie")
		writeError(w, ErrUnauthorized)
		return false
	}
	return true
}

// RequireSession rejects requests without a valid session cookie.
func (a *API) RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.authorize(w, r) {
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeSessionCookie(w http.ResponseWriter, value string) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   sessionCookieMaxAge,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteStrictMode,
	})
}

func clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteStrictMode,
	})
}

func requestIsSecure(r *http.Request) bool {
	if r.TLS != nil {
		return true
	}
	if strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https") {
		return true
	}
	return strings.Contains(strings.ToLower(r.Header.Get("Forwarded")), "proto=https")
}

// RequestLogger logs one line per request with method, path, status,
// duration and request ID. Bodies and cookies are never logged.
func RequestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			attrs := []slog.Attr{
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", status),
				slog.Int("bytes", ww.BytesWritten()),
				slog.Duration("duration", time.Since(start)),
				slog.String("remote_addr", r.RemoteAddr),
			}
			if id := middleware.GetReqID(r.Context()); id != "" {
				attrs = append(attrs, slog.String("request_id", id))
			}

			level := slog.LevelInfo
			switch {
			case status >= 500:
				level = slog.LevelError
			case status >= 400:
				level = slog.LevelWarn
			}
			logger.LogAttrs(r.Context(), level, "request", attrs...)
		})
	}
}
