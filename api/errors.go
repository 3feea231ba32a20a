package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/jmcleod/pushlog/relay"
)

// ErrorKind is the machine-readable error code returned to clients.
type ErrorKind string

const (
	ErrInvalidJSON         ErrorKind = "INVALID_JSON"
	ErrPasscodeMismatch    ErrorKind = "PASSCODE_MISMATCH"
	ErrUnauthorized        ErrorKind = "UNAUTHORIZED"
	ErrLedgerDisabled      ErrorKind = "LEDGER_DISABLED"
	ErrMissingPasscode     ErrorKind = "MISSING_PASSCODE"
	ErrMissingCookieSecret ErrorKind = "MISSING_COOKIE_SECRET"
	ErrMissingWebhookURL   ErrorKind = "MISSING_WEBHOOK_URL"
	ErrInternal            ErrorKind = "INTERNAL_ERROR"
)

// Status returns the HTTP status code for k.
func (k ErrorKind) Status() int {
	switch k {
	case ErrInvalidJSON:
		return http.StatusBadRequest
	case ErrPasscodeMismatch, ErrUnauthorized:
		return http.StatusUnauthorized
	case ErrLedgerDisabled:
		return http.StatusNotFound
	case ErrorKind(relay.KindFetchFailed), ErrorKind(relay.KindTimeout), ErrorKind(relay.KindUpstreamError),
		ErrorKind(relay.KindNotOK), ErrorKind(relay.KindInvalidResponse):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, kind ErrorKind) {
	writeJSON(w, kind.Status(), ErrorResponse{Error: kind})
}

// writeRelayError reports a failed relay. Anything else is an internal error.
func writeRelayError(w http.ResponseWriter, err error) {
	var re *relay.Error
	if !errors.As(err, &re) {
		slog.Error("relay failed with unexpected error", "error", err)
		writeError(w, ErrInternal)
		return
	}
	kind := ErrorKind(re.Kind)
	resp := ErrorResponse{
		Error:    kind,
		Status:   re.Status,
		Upstream: relay.Truncate(re.Upstream, relay.DefaultTruncateLimit),
	}
	if re.Err != nil {
		resp.Detail = transportDetail(re)
	}
	writeJSON(w, kind.Status(), resp)
}

// transportDetail describes a transport failure without echoing the webhook
// URL, which may embed deployment secrets.
func transportDetail(re *relay.Error) string {
	if re.Kind == relay.KindTimeout {
		return "upstream did not answer in time"
	}
	err := re.Err
	var ue interface{ Unwrap() error }
	// *url.Error carries the URL in its message; report only the cause.
	for errors.As(err, &ue) {
		inner := ue.Unwrap()
		if inner == nil {
			break
		}
		err = inner
	}
	return err.Error()
}
