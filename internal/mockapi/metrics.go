package mockapi

import (
	"sync"
	"time"
)

// AlertType identifies the kind of anomaly detected.
type AlertType string

const (
	AlertLoginFailureSpike AlertType = "login_failure_spike"
	AlertOTPFailureSpike   AlertType = "otp_failure_spike"
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

// slidingCounter counts events inside a trailing window.
type slidingCounter struct {
	events    []time.Time
	window    time.Duration
	threshold int
}

// metricsCollector tracks failure rates across all accounts. The per-account
// rate limiter cannot see an attacker spreading guesses over many accounts.
type metricsCollector struct {
	mu      sync.Mutex
	login   slidingCounter
	otp     slidingCounter
	alertFn AlertFunc
	now     func() time.Time
}

const (
	defaultLoginFailureWindow    = 1 * time.Minute
	defaultLoginFailureThreshold = 50
	defaultOTPFailureWindow      = 5 * time.Minute
	defaultOTPFailureThreshold   = 20
)

func newMetricsCollector(alertFn AlertFunc) *metricsCollector {
	return &metricsCollector{
		login:   slidingCounter{window: defaultLoginFailureWindow, threshold: defaultLoginFailureThreshold},
		otp:     slidingCounter{window: defaultOTPFailureWindow, threshold: defaultOTPFailureThreshold},
		alertFn: alertFn,
		now:     time.Now,
	}
}

// recordEvent inspects an audit event and updates the relevant counters.
func (m *metricsCollector) recordEvent(event AuditEvent) {
	if m == nil || m.alertFn == nil {
		return
	}
	switch event {
	case AuditLoginFailure:
		m.record(&m.login, AlertLoginFailureSpike, "login failure rate exceeds threshold")
	case AuditOTPFailure:
		m.record(&m.otp, AlertOTPFailureSpike, "verification code failure rate exceeds threshold")
	}
}

func (m *metricsCollector) record(c *slidingCounter, kind AlertType, msg string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	c.events = append(c.events, now)
	c.events = trimWindow(c.events, now, c.window)

	if len(c.events) >= c.threshold {
		m.alertFn(AlertEvent{
			Type:      kind,
			Message:   msg,
			Count:     len(c.events),
			Threshold: c.threshold,
			Timestamp: now,
		})
		// Reset to avoid repeated alerts within the same spike.
		c.events = c.events[:0]
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
