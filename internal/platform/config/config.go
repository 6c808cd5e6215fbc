package config

import (
	"os"
	"strings"
	"time"
)

// ShutdownTimeout bounds the best-effort retry queue drain on termination.
var ShutdownTimeout = 15 * time.Second

// Server captures process-level configuration.
type Server struct {
	Addr          string
	JWTSigningKey string

	// Event hub connection. An empty ConnectionString leaves the audit
	// pipeline disabled.
	EventHubBrokers          []string
	EventHubClientID         string
	EventHubConnectionString string
	EventHubTopic            string

	// Audit route and field lists. Empty lists fall back to the built-in
	// defaults.
	AuditExcludedRoutes  []string
	AuditHipaaRoutes     []string
	AuditSensitiveFields []string
}

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() Server {
	addr := os.Getenv("MS_SECURITY_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	jwtSigningKey := os.Getenv("JWT_SIGNING_KEY")
	if jwtSigningKey == "" {
		// Use a default for development - should be overridden in production
		jwtSigningKey = "dev-secret-key-change-in-production"
	}

	return Server{
		Addr:          addr,
		JWTSigningKey: jwtSigningKey,

		EventHubBrokers:          splitList(os.Getenv("AUDIT_EVENT_HUB_BROKERS")),
		EventHubClientID:         os.Getenv("AUDIT_EVENT_HUB_CLIENT_ID"),
		EventHubConnectionString: os.Getenv("AUDIT_EVENT_HUB_CONNECTION_STRING"),
		EventHubTopic:            os.Getenv("AUDIT_EVENT_HUB_TOPIC"),

		AuditExcludedRoutes:  splitList(os.Getenv("AUDIT_EXCLUDED_ROUTES")),
		AuditHipaaRoutes:     splitList(os.Getenv("AUDIT_HIPAA_ROUTES")),
		AuditSensitiveFields: splitList(os.Getenv("AUDIT_SENSITIVE_FIELDS")),
	}
}

func splitList(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
