package api

import (
	"sync"
	"time"
)

// AlertType identifies the kind of anomaly detected.
type AlertType string

const (
	AlertPasscodeMismatchSpike AlertType = "passcode_mismatch_spike"
	AlertRelayFailureSpike     AlertType = "relay_failure_spike"
)

// AlertEvent describes an anomaly that triggered an alert.
type AlertEvent struct {
	Type      AlertType `json:"type"`
	Message   string    `json:"message"`
	Count     int       `json:"count"`
	Threshold int       `json:"threshold"`
	Timestamp time.Time `json:"timestamp"`
}

// AlertFunc is the callback invoked when an anomaly is detected.
type AlertFunc func(AlertEvent)

const (
	defaultMismatchWindow     = 1 * time.Minute
	defaultMismatchThreshold  = 20
	defaultRelayFailureWindow = 5 * time.Minute
	defaultRelayFailThreshold = 5
)

// slidingWindow counts hits within a trailing window.
type slidingWindow struct {
	hits      []time.Time
	window    time.Duration
	threshold int
}

// add records a hit at now and reports the count in the window and whether
// it exceeds the threshold. The window is reset after firing so a single
// spike raises one alert.
func (s *slidingWindow) add(now time.Time) (int, bool) {
	s.hits = append(s.hits, now)
	s.hits = trimWindow(s.hits, now, s.window)
	n := len(s.hits)
	if n > s.threshold {
		s.hits = s.hits[:0]
		return n, true
	}
	return n, false
}

// metricsCollector tracks sliding window counters for anomaly detection.
// It observes and never throttles.
type metricsCollector struct {
	mu sync.Mutex

	mismatches    slidingWindow
	relayFailures slidingWindow

	alertFn AlertFunc
	now     func() time.Time
}

func newMetricsCollector(alertFn AlertFunc) *metricsCollector {
	return &metricsCollector{
		mismatches:    slidingWindow{window: defaultMismatchWindow, threshold: defaultMismatchThreshold},
		relayFailures: slidingWindow{window: defaultRelayFailureWindow, threshold: defaultRelayFailThreshold},
		alertFn:       alertFn,
		now:           time.Now,
	}
}

// recordEvent inspects an audit event and updates the relevant counters.
func (m *metricsCollector) recordEvent(event AuditEvent) {
	if m == nil || m.alertFn == nil {
		return
	}
	var alert *AlertEvent
	switch event {
	case AuditLoginFailure:
		alert = m.record(&m.mismatches, AlertPasscodeMismatchSpike, "passcode mismatch rate exceeds threshold")
	case AuditSubmissionFailed:
		alert = m.record(&m.relayFailures, AlertRelayFailureSpike, "relay failure rate exceeds threshold")
	}
	// Called outside the lock: the callback logs, which may re-enter recordEvent.
	if alert != nil {
		m.alertFn(*alert)
	}
}

func (m *metricsCollector) record(w *slidingWindow, typ AlertType, msg string) *AlertEvent {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	count, fire := w.add(now)
	if !fire {
		return nil
	}
	return &AlertEvent{
		Type:      typ,
		Message:   msg,
		Count:     count,
		Threshold: w.threshold,
		Timestamp: now,
	}
}

// trimWindow removes entries older than (now - window) from the sorted slice.
func trimWindow(times []time.Time, now time.Time, window time.Duration) []time.Time {
	cutoff := now.Add(-window)
	start := 0
	for start < len(times) && times[start].Before(cutoff) {
		start++
	}
	return times[start:]
}
