package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
)

// AuditEvent identifies the type of security-relevant action being logged.
type AuditEvent string

const (
	AuditLoginSuccess      AuditEvent = "login_success"
	AuditLoginFailure      AuditEvent = "login_failure"
	AuditLogout            AuditEvent = "logout"
	AuditUnauthorized      AuditEvent = "unauthorized"
	AuditSubmissionRelayed AuditEvent = "submission_relayed"
	AuditSubmissionFailed  AuditEvent = "submission_failed"
	AuditAlert             AuditEvent = "alert"
)

// auditEntry carries the optional details of an audit event.
type auditEntry struct {
	Event          AuditEvent
	Reason         string
	UpstreamStatus int
	Alert          *AlertEvent
}

// auditLogger writes audit events to the structured log, counts them for
// alerting and mirrors them to the audit webhook when one is configured.
type auditLogger struct {
	logger  *slog.Logger
	metrics *metricsCollector
	webhook *auditWebhook
	now     func() time.Time
}

func newAuditLogger(logger *slog.Logger) *auditLogger {
	return &auditLogger{
		logger: logger.With("component", "audit"),
		now:    time.Now,
	}
}

// write records e. r is nil for events not tied to a request, such as alerts.
func (al *auditLogger) write(r *http.Request, e auditEntry) {
	evt := webhookEvent{
		Event:          e.Event,
		Timestamp:      al.now().UTC().Format(time.RFC3339),
		Reason:         e.Reason,
		UpstreamStatus: e.UpstreamStatus,
		Alert:          e.Alert,
	}
	ctx := context.Background()
	if r != nil {
		ctx = r.Context()
		evt.RemoteAddr = r.RemoteAddr
		evt.RequestID = middleware.GetReqID(ctx)
	}

	level := slog.LevelInfo
	if e.Event == AuditAlert {
		level = slog.LevelWarn
	}
	al.logger.LogAttrs(ctx, level, "audit", evt.attrs()...)

	if al.webhook != nil {
		al.webhook.enqueue(evt)
	}
	al.metrics.recordEvent(e.Event)
}

func (al *auditLogger) log(event AuditEvent, r *http.Request) {
	al.write(r, auditEntry{Event: event})
}

func (al *auditLogger) logFailure(event AuditEvent, r *http.Request, reason string) {
	al.write(r, auditEntry{Event: event, Reason: reason})
}

// logAlert records an anomaly raised by the metrics collector.
func (al *auditLogger) logAlert(a AlertEvent) {
	al.write(nil, auditEntry{Event: AuditAlert, Reason: a.Message, Alert: &a})
}

// attrs renders evt for the structured log. Empty fields are omitted.
func (evt webhookEvent) attrs() []slog.Attr {
	attrs := []slog.Attr{
		slog.String("event", string(evt.Event)),
		slog.String("timestamp", evt.Timestamp),
	}
	if evt.RemoteAddr != "" {
		attrs = append(attrs, slog.String("remote_addr", evt.RemoteAddr))
	}
	if evt.RequestID != "" {
		attrs = append(attrs, slog.String("request_id", evt.RequestID))
	}
	if evt.Reason != "" {
		attrs = append(attrs, slog.String("reason", evt.Reason))
	}
	if evt.UpstreamStatus != 0 {
		attrs = append(attrs, slog.Int("upstream_status", evt.UpstreamStatus))
	}
	if a := evt.Alert; a != nil {
		attrs = append(attrs,
			slog.String("alert_type", string(a.Type)),
			slog.Int("count", a.Count),
			slog.Int("threshold", a.Threshold),
		)
	}
	return attrs
}
