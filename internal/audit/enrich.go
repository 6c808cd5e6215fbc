package audit

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// defaultAccessReason is recorded when the caller supplies no explicit
// justification for touching a sensitive resource.
const defaultAccessReason = "SYSTEM_ACCESS"

const maxRawErrorLen = 256

// RequestInfo is the request-side snapshot the Interceptor hands to the
// Enricher once the response is finalized.
type RequestInfo struct {
	Method     string
	Path       string
	Query      url.Values
	Params     map[string]string
	Body       map[string]any
	Header     http.Header
	RemoteAddr string

	// Principal context, zero-valued when unauthenticated.
	UserID    string
	UserRole  string
	SessionID string
}

// ResponseInfo is the response-side snapshot.
type ResponseInfo struct {
	StatusCode   int
	Body         []byte
	Header       http.Header
	ResponseSize int64
}

// Enricher assembles complete audit events from request/response snapshots.
type Enricher struct {
	redactor    *Redactor
	hipaaRoutes []string
	source      string
}

// NewEnricher builds an Enricher. An empty HIPAA route list falls back to the
// default sensitive-route set.
func NewEnricher(redactor *Redactor, hipaaRoutes []string) *Enricher {
	if len(hipaaRoutes) == 0 {
		hipaaRoutes = DefaultHipaaRoutes
	}
	return &Enricher{
		redactor:    redactor,
		hipaaRoutes: hipaaRoutes,
		source:      Source,
	}
}

// Enrich classifies the call and builds the full audit record. It never
// mutates the snapshots it is given.
func (e *Enricher) Enrich(req RequestInfo, resp ResponseInfo, duration time.Duration) Event {
	eventType := Classify(req.Method, req.Path, resp.StatusCode)
	success := resp.StatusCode >= 200 && resp.StatusCode < 300
	cfg := ConfigFor(eventType, req.Method, req.Path, success)

	severity := cfg.Severity
	if resp.StatusCode >= 500 {
		severity = SeverityCritical
	}

	event := Event{
		EventID:        uuid.NewString(),
		EventType:      eventType,
		Action:         cfg.Action,
		SeverityLevel:  severity,
		Description:    cfg.Description,
		ResourceType:   resourceTypeFor(req.Path),
		ResourceID:     extractResourceID(req),
		TargetUserID:   req.Params["userId"],
		UserID:         req.UserID,
		UserRole:       NormalizeRole(req.UserRole),
		SessionID:      req.SessionID,
		HipaaCompliant: e.isHipaaRoute(req.Path),
		Success:        success,
		StatusCode:     resp.StatusCode,
		Timestamp:      time.Now().UTC(),
		Source:         e.source,
		Metadata: Metadata{
			Method:       req.Method,
			Path:         req.Path,
			Query:        req.Query.Encode(),
			Body:         e.redactor.Redact(req.Body),
			DurationMs:   duration.Milliseconds(),
			RequestSize:  contentLength(req.Header),
			ResponseSize: responseSize(resp),
			IPAddress:    clientIP(req),
			UserAgent:    req.Header.Get("User-Agent"),
			AccessReason: accessReason(req),
			ContentType:  resp.Header.Get("Content-Type"),
		},
	}

	if event.UserID == "" {
		event.UserID = AnonymousUser
	}
	if !success {
		event.ErrorMessage = extractErrorMessage(resp.Body)
	}
	return event
}

// NormalizeRole maps a raw role string onto the closed role enumeration.
// Anything outside the set, including the empty string, becomes UNKNOWN.
func NormalizeRole(raw string) UserRole {
	role := UserRole(strings.ToUpper(strings.TrimSpace(raw)))
	if _, ok := knownRoles[role]; ok {
		return role
	}
	return RoleUnknown
}

func resourceTypeFor(path string) ResourceType {
	p := strings.ToLower(path)
	switch {
	case strings.Contains(p, "/patient"):
		return ResourcePatientRecord
	case strings.Contains(p, "/user"), strings.Contains(p, "/auth"):
		return ResourceUserAccount
	case strings.Contains(p, "/admin"), strings.Contains(p, "/config"):
		return ResourceSystemConfig
	}
	return ""
}

// extractResourceID checks, in order: path param "id", path param "patientId",
// body field "userId", query param "id". First present wins.
func extractResourceID(req RequestInfo) string {
	if id := req.Params["id"]; id != "" {
		return id
	}
	if id := req.Params["patientId"]; id != "" {
		return id
	}
	switch id := req.Body["userId"].(type) {
	case string:
		if id != "" {
			return id
		}
	case float64:
		// JSON numbers decode as float64; render integral ids without a
		// fractional part.
		return strconv.FormatFloat(id, 'f', -1, 64)
	}
	return req.Query.Get("id")
}

func (e *Enricher) isHipaaRoute(path string) bool {
	p := strings.ToLower(path)
	for _, route := range e.hipaaRoutes {
		if strings.Contains(p, strings.ToLower(route)) {
			return true
		}
	}
	return false
}

// clientIP prefers the direct connection address, then the first
// X-Forwarded-For entry, then X-Real-IP.
func clientIP(req RequestInfo) string {
	if addr := req.RemoteAddr; addr != "" {
		// RemoteAddr is host:port; [::1]:port for IPv6.
		if idx := strings.LastIndex(addr, ":"); idx != -1 {
			return strings.Trim(addr[:idx], "[]")
		}
		return addr
	}
	if xff := req.Header.Get("X-Forwarded-For"); xff != "" {
		if idx := strings.Index(xff, ","); idx != -1 {
			return strings.TrimSpace(xff[:idx])
		}
		return strings.TrimSpace(xff)
	}
	if xri := req.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}
	return "unknown"
}

// accessReason checks the X-Access-Reason header, then the request body, then
// the query string.
func accessReason(req RequestInfo) string {
	if reason := req.Header.Get("X-Access-Reason"); reason != "" {
		return reason
	}
	if reason, ok := req.Body["accessReason"].(string); ok && reason != "" {
		return reason
	}
	if reason := req.Query.Get("accessReason"); reason != "" {
		return reason
	}
	return defaultAccessReason
}

func contentLength(h http.Header) int64 {
	n, err := strconv.ParseInt(h.Get("Content-Length"), 10, 64)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

func responseSize(resp ResponseInfo) int64 {
	if resp.ResponseSize > 0 {
		return resp.ResponseSize
	}
	return contentLength(resp.Header)
}

// extractErrorMessage pulls a human-readable error out of a failed response
// body. JSON bodies are probed for conventional keys; anything else is kept
// raw, truncated.
func extractErrorMessage(body []byte) string {
	if len(body) == 0 {
		return ""
	}
	var parsed map[string]any
	if err := json.Unmarshal(body, &parsed); err == nil {
		for _, key := range []string{"message", "error", "error_description"} {
			if msg, ok := parsed[key].(string); ok && msg != "" {
				return msg
			}
		}
	}
	raw := strings.TrimSpace(string(body))
	if len(raw) > maxRawErrorLen {
		raw = raw[:maxRawErrorLen]
	}
	return raw
}
