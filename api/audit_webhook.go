package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"
)

const (
	webhookQueueSize   = 1024
	webhookAttempts    = 2
	webhookTimeout     = 10 * time.Second
	webhookRetryDelay  = time.Second
	webhookUserAgent   = "Pushlog-Audit-Webhook/1.0"
	webhookContentType = "application/json"
)

// webhookEvent is the JSON document POSTed for every audit event.
type webhookEvent struct {
	Event          AuditEvent  `json:"event"`
	Timestamp      string      `json:"timestamp"`
	RequestID      string      `json:"request_id,omitempty"`
	RemoteAddr     string      `json:"remote_addr,omitempty"`
	Reason         string      `json:"reason,omitempty"`
	UpstreamStatus int         `json:"upstream_status,omitempty"`
	Alert          *AlertEvent `json:"alert,omitempty"`
}

// auditWebhook mirrors audit events to an HTTP endpoint from a single
// background goroutine. Enqueueing never blocks request handlers: when the
// queue is full the event is dropped.
type auditWebhook struct {
	url         string
	headerName  string
	headerValue string
	client      *http.Client
	logger      *slog.Logger
	retryDelay  time.Duration

	queue chan webhookEvent
	done  chan struct{}

	mu     sync.RWMutex
	closed bool
}

// newAuditWebhook starts a dispatcher for url. authHeader is optional and
// has the form "Name: value".
func newAuditWebhook(url, authHeader string, logger *slog.Logger) *auditWebhook {
	w := &auditWebhook{
		url:        url,
		client:     &http.Client{Timeout: webhookTimeout},
		logger:     logger.With("sink", "webhook"),
		retryDelay: webhookRetryDelay,
		queue:      make(chan webhookEvent, webhookQueueSize),
		done:       make(chan struct{}),
	}
	if name, value, ok := strings.Cut(authHeader, ":"); ok {
		w.headerName, w.headerValue = strings.TrimSpace(name), strings.TrimSpace(value)
	}
	go w.run()
	return w
}

func (w *auditWebhook) enqueue(evt webhookEvent) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		return
	}
	select {
	case w.queue <- evt:
	default:
		w.logger.Warn("queue full, dropping event", "event", evt.Event)
	}
}

// close stops accepting events and blocks until the queue is drained.
func (w *auditWebhook) close() {
	w.mu.Lock()
	if !w.closed {
		w.closed = true
		close(w.queue)
	}
	w.mu.Unlock()
	<-w.done
}

func (w *auditWebhook) run() {
	defer close(w.done)
	for evt := range w.queue {
		if err := w.deliver(evt); err != nil {
			w.logger.Warn("delivery failed", "event", evt.Event, "error", err)
		}
	}
}

// deliver POSTs evt, retrying once after a transport error or a 5xx.
func (w *auditWebhook) deliver(evt webhookEvent) error {
	body, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("encoding event: %w", err)
	}
	var lastErr error
	for attempt := 1; attempt <= webhookAttempts; attempt++ {
		if attempt > 1 {
			time.Sleep(w.retryDelay)
		}
		retry, err := w.post(body)
		if err == nil {
			return nil
		}
		lastErr = fmt.Errorf("attempt %d: %w", attempt, err)
		if !retry {
			break
		}
	}
	return lastErr
}

func (w *auditWebhook) post(body []byte) (retry bool, err error) {
	ctx, cancel := context.WithTimeout(context.Background(), webhookTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return false, err
	}
	req.Header.Set("Content-Type", webhookContentType)
	req.Header.Set("User-Agent", webhookUserAgent)
	if w.headerName != "" {
		req.Header.Set(w.headerName, w.headerValue)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return true, err
	}
	resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return false, nil
	case resp.StatusCode >= 500:
		return true, fmt.Errorf("server error: %s", resp.Status)
	default:
		return false, fmt.Errorf("rejected: %s", resp.Status)
	}
}
