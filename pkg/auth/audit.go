package auth

import (
	"net"
	"net/http"
	"strings"

	"github.com/platinummonkey/larder/pkg/observability"
)

// Audit actions
const (
	ActionLogin         = "auth.login"
	ActionLoginFailure  = "auth.login_failure"
	ActionRefresh       = "auth.refresh"
	ActionRefreshDenied = "auth.refresh_denied"
	ActionLogout        = "auth.logout"
)

// AuditEvent is one security-relevant authentication event
type AuditEvent struct {
	Action    string
	UserID    int64
	Provider  string
	IPAddress string
	UserAgent string
	Err       error
}

// AuditLogger writes authentication events to the structured log
type AuditLogger struct{}

// NewAuditLogger creates an audit logger
func NewAuditLogger() *AuditLogger {
	return &AuditLogger{}
}

// Log emits event on the request logger
func (al *AuditLogger) Log(r *http.Request, event AuditEvent) {
	event.IPAddress = getClientIP(r)
	event.UserAgent = r.UserAgent()

	fields := map[string]interface{}{
		"audit":      true,
		"action":     event.Action,
		"ip_address": event.IPAddress,
		"user_agent": event.UserAgent,
	}
	if event.UserID != 0 {
		fields["user_id"] = event.UserID
	}
	if event.Provider != "" {
		fields["provider"] = event.Provider
	}

	logger := observability.FromContext(r.Context()).WithFields(fields)
	if event.Err != nil {
		logger.WithError(event.Err).Warn("Authentication event")
		return
	}
	logger.Info("Authentication event")
}

func getClientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		return strings.TrimSpace(strings.Split(forwarded, ",")[0])
	}
	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return realIP
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
