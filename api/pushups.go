package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/jmcleod/pushlog/relay"
)

// SubmitPushups relays a JSON submission.
func (a *API) SubmitPushups(w http.ResponseWriter, r *http.Request) {
	if !a.relayReady(w, r) {
		return
	}
	var raw map[string]any
	if err := decodeJSON(w, r, &raw); err != nil {
		writeError(w, ErrInvalidJSON)
		return
	}
	a.relaySubmission(w, r, raw)
}

// SubmitPushupsQuery relays a submission whose fields are query parameters.
func (a *API) SubmitPushupsQuery(w http.ResponseWriter, r *http.Request) {
	if !a.relayReady(w, r) {
		return
	}
	a.relaySubmission(w, r, relay.FromQuery(r.URL.Query()))
}

// relayReady checks configuration, then the session, in that order.
func (a *API) relayReady(w http.ResponseWriter, r *http.Request) bool {
	if a.relay == nil {
		writeError(w, ErrMissingWebhookURL)
		return false
	}
	return a.authorize(w, r)
}

func (a *API) relaySubmission(w http.ResponseWriter, r *http.Request, raw map[string]any) {
	p := relay.Normalize(raw, a.now())

	res, err := a.relay.Forward(r.Context(), p)
	if err != nil {
		kind, status := string(ErrInternal), 0
		var re *relay.Error
		if errors.As(err, &re) {
			kind, status = string(re.Kind), re.Status
		}
		a.audit.write(r, auditEntry{Event: AuditSubmissionFailed, Reason: kind, UpstreamStatus: status})
		a.record(r, p, OutcomeFailed, kind, status)
		writeRelayError(w, err)
		return
	}

	a.audit.write(r, auditEntry{Event: AuditSubmissionRelayed, UpstreamStatus: res.Status})
	a.record(r, p, OutcomeRelayed, "", res.Status)
	writeJSON(w, http.StatusOK, RelayResponse{OK: true, Upstream: res.Upstream})
}

// record appends to the ledger when one is configured. Ledger failures are
// logged and never change the response.
func (a *API) record(r *http.Request, p relay.Payload, outcome, errKind string, status int) {
	if a.ledger == nil {
		return
	}
	if _, err := a.ledger.Append(p, outcome, errKind, status); err != nil {
		slog.ErrorContext(r.Context(), "ledger append failed", "error", err)
	}
}

// ListSubmissions returns ledger entries, newest first.
func (a *API) ListSubmissions(w http.ResponseWriter, r *http.Request) {
	if a.ledger == nil {
		writeError(w, ErrLedgerDisabled)
		return
	}
	entries, meta, err := a.ledger.Page(parsePageRequest(r.URL.Query()))
	if err != nil {
		slog.ErrorContext(r.Context(), "listing ledger failed", "error", err)
		writeError(w, ErrInternal)
		return
	}
	writeJSON(w, http.StatusOK, ListSubmissionsResponse{
		OK:             true,
		Entries:        entries,
		PaginationMeta: meta,
	})
}
