package mockapi

import (
	"log/slog"
	"net/http"
	"time"
)

// AuditEvent identifies the type of security-relevant action being logged.
type AuditEvent string

const (
	AuditRegister          AuditEvent = "register"
	AuditLoginChallenge    AuditEvent = "login_challenge"
	AuditLoginFailure      AuditEvent = "login_failure"
	AuditLoginRateLimited  AuditEvent = "login_rate_limited"
	AuditOTPIssued         AuditEvent = "otp_issued"
	AuditOTPVerified       AuditEvent = "otp_verified"
	AuditOTPFailure        AuditEvent = "otp_failure"
	AuditPasswordReset     AuditEvent = "password_reset"
	AuditSessionRefreshed  AuditEvent = "session_refreshed"
	AuditRefreshFailure    AuditEvent = "refresh_failure"
	AuditLogout            AuditEvent = "logout"
	AuditCSRFRejected      AuditEvent = "csrf_rejected"
	AuditPasswordResetFail AuditEvent = "password_reset_failure"
)

// auditLogger wraps slog.Logger for structured security audit logging.
// Every entry is also fed to the metrics collector.
type auditLogger struct {
	logger  *slog.Logger
	metrics *metricsCollector
}

func newAuditLogger(logger *slog.Logger) *auditLogger {
	return &auditLogger{
		logger: logger.With("component", "audit"),
	}
}

// log writes a structured audit log entry.
func (al *auditLogger) log(event AuditEvent, r *http.Request, attrs ...slog.Attr) {
	baseAttrs := []slog.Attr{
		slog.String("event", string(event)),
		slog.String("remote_addr", r.RemoteAddr),
		slog.String("timestamp", time.Now().UTC().Format(time.RFC3339)),
	}
	if id := r.Header.Get("X-Request-ID"); id != "" {
		baseAttrs = append(baseAttrs, slog.String("request_id", id))
	}
	baseAttrs = append(baseAttrs, attrs...)
	al.logger.LogAttrs(r.Context(), slog.LevelInfo, "audit", baseAttrs...)
	al.metrics.recordEvent(event)
}

// alert logs an anomaly. It is the alert function used when none is
// configured.
func (al *auditLogger) alert(e AlertEvent) {
	al.logger.Warn("anomaly detected",
		slog.String("alert", string(e.Type)),
		slog.String("message", e.Message),
		slog.Int("count", e.Count),
		slog.Int("threshold", e.Threshold),
	)
}

// logEvent is a convenience for events tied to an account. Only the
// normalized email is logged, never a secret.
func (al *auditLogger) logEvent(event AuditEvent, r *http.Request, email string, extra ...slog.Attr) {
	attrs := []slog.Attr{
		slog.String("account", accountKey(email)),
	}
	attrs = append(attrs, extra...)
	al.log(event, r, attrs...)
}

// logFailure logs a failed attempt.
func (al *auditLogger) logFailure(event AuditEvent, r *http.Request, reason string, extra ...slog.Attr) {
	attrs := []slog.Attr{
		slog.String("reason", reason),
	}
	attrs = append(attrs, extra...)
	al.log(event, r, attrs...)
}
