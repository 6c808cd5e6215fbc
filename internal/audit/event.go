// Package audit classifies HTTP traffic into structured compliance events and
// redacts/enriches them before delivery. It never feeds anything back into the
// request/response cycle: the host's responses are observed, not altered.
package audit

import "time"

// Source identifies this service in every emitted event.
const Source = "ms-security"

// AnonymousUser is recorded when no authenticated principal is attached.
const AnonymousUser = "anonymous"

// Metadata carries the request/response details attached to an event. Body is
// always the redacted copy, never the raw request body.
type Metadata struct {
	Method       string         `json:"method"`
	Path         string         `json:"path"`
	Query        string         `json:"query,omitempty"`
	Body         map[string]any `json:"body,omitempty"`
	DurationMs   int64          `json:"durationMs"`
	RequestSize  int64          `json:"requestSize"`
	ResponseSize int64          `json:"responseSize"`
	IPAddress    string         `json:"ipAddress"`
	UserAgent    string         `json:"userAgent,omitempty"`
	AccessReason string         `json:"accessReason,omitempty"`
	ContentType  string         `json:"contentType,omitempty"`
}

// Event is a single audit record. Immutable once built by the Enricher.
type Event struct {
	EventID        string       `json:"eventId"`
	EventType      EventType    `json:"eventType"`
	Action         Action       `json:"action"`
	SeverityLevel  Severity     `json:"severityLevel"`
	Description    string       `json:"description,omitempty"`
	ResourceType   ResourceType `json:"resourceType,omitempty"`
	ResourceID     string       `json:"resourceId,omitempty"`
	TargetUserID   string       `json:"targetUserId,omitempty"`
	UserID         string       `json:"userId"`
	UserRole       UserRole     `json:"userRole"`
	SessionID      string       `json:"sessionId,omitempty"`
	HipaaCompliant bool         `json:"hipaaCompliant"`
	Success        bool         `json:"success"`
	StatusCode     int          `json:"statusCode"`
	ErrorMessage   string       `json:"errorMessage,omitempty"`
	Metadata       Metadata     `json:"metadata"`
	Timestamp      time.Time    `json:"timestamp"`
	Source         string       `json:"source"`
}
