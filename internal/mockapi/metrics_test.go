package mockapi

import (
	"log/slog"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type alertRecorder struct {
	mu     sync.Mutex
	alerts []AlertEvent
}

func (r *alertRecorder) record(e AlertEvent) {
	r.mu.Lock()
	r.alerts = append(r.alerts, e)
	r.mu.Unlock()
}

func (r *alertRecorder) all() []AlertEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]AlertEvent(nil), r.alerts...)
}

func TestLoginFailureSpikeAlert(t *testing.T) {
	rec := &alertRecorder{}
	collector := newMetricsCollector(rec.record)
	collector.login.threshold = 5

	for i := 0; i < 4; i++ {
		collector.recordEvent(AuditLoginFailure)
	}
	assert.Empty(t, rec.all(), "no alert below threshold")

	collector.recordEvent(AuditLoginFailure)
	alerts := rec.all()
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertLoginFailureSpike, alerts[0].Type)
	assert.Equal(t, 5, alerts[0].Count)
	assert.Equal(t, 5, alerts[0].Threshold)

	// The counter restarts after an alert.
	collector.recordEvent(AuditLoginFailure)
	assert.Len(t, rec.all(), 1)
}

func TestOTPFailureSpikeAlert(t *testing.T) {
	rec := &alertRecorder{}
	collector := newMetricsCollector(rec.record)
	collector.otp.threshold = 3

	collector.recordEvent(AuditOTPFailure)
	collector.recordEvent(AuditLoginFailure)
	collector.recordEvent(AuditOTPFailure)
	assert.Empty(t, rec.all())

	collector.recordEvent(AuditOTPFailure)
	alerts := rec.all()
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertOTPFailureSpike, alerts[0].Type)
}

func TestMetricsIgnoresOtherEvents(t *testing.T) {
	rec := &alertRecorder{}
	collector := newMetricsCollector(rec.record)
	collector.login.threshold = 1

	collector.recordEvent(AuditRegister)
	collector.recordEvent(AuditLogout)
	assert.Empty(t, rec.all())
}

func TestMetricsNoAlertWithoutCallback(t *testing.T) {
	collector := newMetricsCollector(nil)
	collector.recordEvent(AuditLoginFailure)
}

func TestMetricsNilCollector(t *testing.T) {
	var collector *metricsCollector
	collector.recordEvent(AuditLoginFailure)
}

func TestMetricsSlidingWindowExpiry(t *testing.T) {
	rec := &alertRecorder{}
	now := time.Now()
	collector := newMetricsCollector(rec.record)
	collector.now = func() time.Time { return now }
	collector.login.threshold = 3

	collector.recordEvent(AuditLoginFailure)
	collector.recordEvent(AuditLoginFailure)

	// Both earlier failures fall out of the window.
	now = now.Add(defaultLoginFailureWindow + time.Second)
	collector.recordEvent(AuditLoginFailure)
	assert.Empty(t, rec.all())
}

func TestAuditFeedsMetrics(t *testing.T) {
	rec := &alertRecorder{}
	a := New(WithLogger(slog.New(slog.DiscardHandler)), WithAlertFunc(rec.record))
	defer a.Close()
	a.audit.metrics.login.threshold = 2

	r := httptest.NewRequest("POST", "/api/auth/login", nil)
	a.audit.logFailure(AuditLoginFailure, r, "invalid credentials")
	a.audit.logFailure(AuditLoginFailure, r, "invalid credentials")

	alerts := rec.all()
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertLoginFailureSpike, alerts[0].Type)
}
