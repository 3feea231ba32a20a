// Package api implements the pushlog HTTP API: passcode login issuing a
// signed session cookie, and authenticated relay of pushup submissions to
// the configured webhook.
package api

import (
	_ "embed"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-openapi/runtime/middleware"

	"github.com/jmcleod/pushlog/config"
	"github.com/jmcleod/pushlog/relay"
)

// API holds the dependencies needed by the REST handlers. Every handler is a
// function of the request, the configuration and the clock; the only shared
// state is the optional ledger and the audit machinery.
type API struct {
	cfg     *config.Config
	relay   *relay.Client
	ledger  *Ledger
	audit   *auditLogger
	webhook *auditWebhook
	alertFn AlertFunc
	now     func() time.Time
}

//go:embed openapi.yaml
var openapiSpec []byte

// Option configures the API instance.
type Option func(*API)

// WithLogger sets the structured logger for audit events.
// If not set, a default JSON logger writing to stderr is used.
func WithLogger(logger *slog.Logger) Option {
	return func(a *API) {
		a.audit = newAuditLogger(logger)
	}
}

// WithLedger records every relay attempt in l and enables GET /submissions.
func WithLedger(l *Ledger) Option {
	return func(a *API) {
		a.ledger = l
	}
}

// WithRelay replaces the relay client built from the configuration.
func WithRelay(c *relay.Client) Option {
	return func(a *API) {
		a.relay = c
	}
}

// WithClock overrides the time source used for tokens and defaults.
func WithClock(now func() time.Time) Option {
	return func(a *API) {
		a.now = now
	}
}

// WithAlertFunc registers a callback for anomaly alerts, in addition to the
// audit log entry every alert produces.
func WithAlertFunc(fn AlertFunc) Option {
	return func(a *API) {
		a.alertFn = fn
	}
}

// New creates a new API instance. A nil relay is left in place when the
// configuration names no webhook, so submissions report MISSING_WEBHOOK_URL.
func New(cfg *config.Config, opts ...Option) *API {
	a := &API{
		cfg: cfg,
		now: time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.audit == nil {
		a.audit = newAuditLogger(slog.New(slog.NewJSONHandler(os.Stderr, nil)))
	}
	a.audit.now = a.now
	a.audit.metrics = newMetricsCollector(a.onAlert)
	a.audit.metrics.now = a.now

	if a.relay == nil && cfg.WebhookURL != "" {
		a.relay = relay.New(cfg.WebhookURL,
			relay.WithMethod(cfg.WebhookMethod),
			relay.WithTimeout(cfg.WebhookTimeout),
			relay.WithRequireJSON(cfg.WebhookRequireJSON),
			relay.WithMaxBodySize(cfg.WebhookMaxResponseBytes),
			relay.WithClock(a.now),
		)
	}
	if cfg.AuditWebhookURL != "" {
		a.webhook = newAuditWebhook(cfg.AuditWebhookURL, cfg.AuditWebhookAuthHeader, a.audit.logger)
		a.audit.webhook = a.webhook
	}
	if a.ledger != nil {
		a.ledger.now = a.now
	}
	return a
}

// Close flushes pending audit webhook deliveries. It does not close the
// ledger, which the caller owns.
func (a *API) Close() {
	if a.webhook != nil {
		a.webhook.close()
	}
}

func (a *API) onAlert(e AlertEvent) {
	a.audit.logAlert(e)
	if a.alertFn != nil {
		a.alertFn(e)
	}
}

// Router returns a chi.Router with all API routes mounted. It is meant to be
// mounted under /api.
func (a *API) Router() chi.Router {
	r := chi.NewRouter()

	r.Get("/openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/yaml")
		w.Write(openapiSpec)
	})

	r.Handle("/docs*", middleware.SwaggerUI(middleware.SwaggerUIOpts{
		SpecURL: "/api/openapi.yaml",
		Path:    "api/docs",
	}, nil))

	r.Handle("/redoc*", middleware.Redoc(middleware.RedocOpts{
		SpecURL: "/api/openapi.yaml",
		Path:    "api/redoc",
	}, nil))

	r.Group(func(r chi.Router) {
		r.Use(SecurityHeaders)

		r.Post("/auth", a.Auth)
		r.Post("/auth/logout", a.Logout)
		r.Get("/auth/status", a.AuthStatus)

		r.Post("/pushups", a.SubmitPushups)
		r.Get("/pushups", a.SubmitPushupsQuery)

		r.With(a.RequireSession).Get("/submissions", a.ListSubmissions)
	})

	return r
}
