package audit

import "regexp"

// EventType classifies what happened. The set is closed except for the
// HTTP_<METHOD>_REQUEST fallbacks, which are derived from the request method.
type EventType string

const (
	EventUserLogin           EventType = "USER_LOGIN"
	EventUserLogout          EventType = "USER_LOGOUT"
	EventUserLoginFailed     EventType = "USER_LOGIN_FAILED"
	EventUserCreated         EventType = "USER_CREATED"
	EventUserUpdated         EventType = "USER_UPDATED"
	EventUserDeactivated     EventType = "USER_DEACTIVATED"
	EventUserPasswordChanged EventType = "USER_PASSWORD_CHANGED"
	EventUserRoleChanged     EventType = "USER_ROLE_CHANGED"
	EventPatientCreated      EventType = "PATIENT_CREATED"
	EventPatientAccessed     EventType = "PATIENT_ACCESSED"
	EventPatientSearched     EventType = "PATIENT_SEARCHED"
	EventDocumentUploaded    EventType = "DOCUMENT_UPLOADED"
	EventDocumentAccessed    EventType = "DOCUMENT_ACCESSED"
	EventSystemError         EventType = "SYSTEM_ERROR"
	EventSecurityViolation   EventType = "SECURITY_VIOLATION"
	EventUnauthorizedAccess  EventType = "UNAUTHORIZED_ACCESS_ATTEMPT"
)

// Action is the generic operation an event represents.
type Action string

const (
	ActionCreate    Action = "CREATE"
	ActionRead      Action = "READ"
	ActionUpdate    Action = "UPDATE"
	ActionDelete    Action = "DELETE"
	ActionLogin     Action = "LOGIN"
	ActionLogout    Action = "LOGOUT"
	ActionAccess    Action = "ACCESS"
	ActionSearch    Action = "SEARCH"
	ActionExport    Action = "EXPORT"
	ActionUpload    Action = "UPLOAD"
	ActionError     Action = "ERROR"
	ActionViolation Action = "VIOLATION"
)

// Severity orders events by urgency, INFO lowest.
type Severity string

const (
	SeverityInfo     Severity = "INFO"
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

var severityRank = map[Severity]int{
	SeverityInfo:     0,
	SeverityLow:      1,
	SeverityMedium:   2,
	SeverityHigh:     3,
	SeverityCritical: 4,
}

// Rank returns the ordinal position of the severity, INFO being 0.
// Unknown severities rank below INFO.
func (s Severity) Rank() int {
	if r, ok := severityRank[s]; ok {
		return r
	}
	return -1
}

// AtLeast reports whether s is as urgent as other.
func (s Severity) AtLeast(other Severity) bool {
	return s.Rank() >= other.Rank()
}

// ResourceType names the kind of resource an event touched.
type ResourceType string

const (
	ResourcePatientRecord ResourceType = "PATIENT_RECORD"
	ResourceUserAccount   ResourceType = "USER_ACCOUNT"
	ResourceSystemConfig  ResourceType = "SYSTEM_CONFIG"
	ResourceAuditLog      ResourceType = "AUDIT_LOG"
)

// UserRole is the closed role set of the staff-management domain.
type UserRole string

const (
	RoleAdministrador UserRole = "ADMINISTRADOR"
	RoleMedico        UserRole = "MEDICO"
	RoleEnfermera     UserRole = "ENFERMERA"
	RolePaciente      UserRole = "PACIENTE"
	RoleSistema       UserRole = "SISTEMA"
	RoleUnknown       UserRole = "UNKNOWN"
)

var knownRoles = map[UserRole]struct{}{
	RoleAdministrador: {},
	RoleMedico:        {},
	RoleEnfermera:     {},
	RolePaciente:      {},
	RoleSistema:       {},
}

// EventConfig is the taxonomy's default severity, action, and description for
// an event type.
type EventConfig struct {
	Severity    Severity
	Action      Action
	Description string
}

var eventConfigs = map[EventType]EventConfig{
	EventUserLogin:           {SeverityInfo, ActionLogin, "User login attempt successful"},
	EventUserLogout:          {SeverityInfo, ActionLogout, "User logged out"},
	EventUserLoginFailed:     {SeverityMedium, ActionLogin, "Failed login attempt"},
	EventUserCreated:         {SeverityLow, ActionCreate, "New user account created"},
	EventUserUpdated:         {SeverityLow, ActionUpdate, "User account updated"},
	EventUserDeactivated:     {SeverityMedium, ActionUpdate, "User account deactivated"},
	EventUserPasswordChanged: {SeverityMedium, ActionUpdate, "User password changed"},
	EventUserRoleChanged:     {SeverityHigh, ActionUpdate, "User role modified"},
	EventPatientCreated:      {SeverityLow, ActionCreate, "New patient record created"},
	EventPatientAccessed:     {SeverityMedium, ActionAccess, "Patient record accessed"},
	EventPatientSearched:     {SeverityLow, ActionSearch, "Patient records searched"},
	EventDocumentUploaded:    {SeverityLow, ActionUpload, "Document uploaded"},
	EventDocumentAccessed:    {SeverityMedium, ActionAccess, "Document accessed"},
	EventSystemError:         {SeverityHigh, ActionError, "System error occurred"},
	EventSecurityViolation:   {SeverityCritical, ActionViolation, "Security violation detected"},
	EventUnauthorizedAccess:  {SeverityCritical, ActionViolation, "Unauthorized access attempt"},

	// HTTP fallbacks carry no description; one is generated per request.
	"HTTP_POST_REQUEST":   {SeverityInfo, ActionCreate, ""},
	"HTTP_GET_REQUEST":    {SeverityInfo, ActionRead, ""},
	"HTTP_PUT_REQUEST":    {SeverityInfo, ActionUpdate, ""},
	"HTTP_DELETE_REQUEST": {SeverityLow, ActionDelete, ""},
	"HTTP_PATCH_REQUEST":  {SeverityInfo, ActionUpdate, ""},
}

// eventMapping resolves a matched route rule into an event type, either
// unconditionally or by response outcome.
type eventMapping interface {
	resolve(success bool) EventType
}

type singleEvent EventType

func (e singleEvent) resolve(bool) EventType { return EventType(e) }

type successFailure struct {
	success EventType
	failure EventType
}

func (p successFailure) resolve(success bool) EventType {
	if success {
		return p.success
	}
	return p.failure
}

// routeRule matches a path (and optionally a method set) to an event mapping.
type routeRule struct {
	pattern *regexp.Regexp
	methods []string
	mapping eventMapping
}

func (r routeRule) matches(method, path string) bool {
	if !r.pattern.MatchString(path) {
		return false
	}
	if len(r.methods) == 0 {
		return true
	}
	for _, m := range r.methods {
		if m == method {
			return true
		}
	}
	return false
}

// routeRules is evaluated in order and the first match wins. Order matters:
// the search rules must precede the broader /patients/.+ and /users/.+ rules,
// and the method-filtered rules must precede their unfiltered fallbacks.
var routeRules = []routeRule{
	{pattern: regexp.MustCompile(`(?i)/auth/sign-in`), mapping: successFailure{EventUserLogin, EventUserLoginFailed}},
	{pattern: regexp.MustCompile(`(?i)/auth/sign-up`), mapping: singleEvent(EventUserCreated)},
	{pattern: regexp.MustCompile(`(?i)/auth/logout`), mapping: singleEvent(EventUserLogout)},
	{pattern: regexp.MustCompile(`(?i)/auth/verify-email`), mapping: singleEvent(EventUserUpdated)},
	{pattern: regexp.MustCompile(`(?i)/users/.*/password`), mapping: singleEvent(EventUserPasswordChanged)},
	{pattern: regexp.MustCompile(`(?i)/users/.*/role`), mapping: singleEvent(EventUserRoleChanged)},
	{pattern: regexp.MustCompile(`(?i)/users/.*/status`), mapping: singleEvent(EventUserDeactivated)},
	{pattern: regexp.MustCompile(`(?i)/(users|patients)/search`), mapping: singleEvent(EventPatientSearched)},
	{pattern: regexp.MustCompile(`(?i)/admin/bulk-upload`), mapping: singleEvent(EventDocumentUploaded)},
	{pattern: regexp.MustCompile(`(?i)/patients/.+`), methods: []string{"GET"}, mapping: singleEvent(EventPatientAccessed)},
	{pattern: regexp.MustCompile(`(?i)/users/.+`), methods: []string{"GET"}, mapping: singleEvent(EventPatientAccessed)},
	{pattern: regexp.MustCompile(`(?i)/patients`), methods: []string{"POST"}, mapping: singleEvent(EventPatientCreated)},
	{pattern: regexp.MustCompile(`(?i)/users`), methods: []string{"POST"}, mapping: singleEvent(EventUserCreated)},
	{pattern: regexp.MustCompile(`(?i)/users`), methods: []string{"PUT", "PATCH"}, mapping: singleEvent(EventUserUpdated)},
}

// DefaultHipaaRoutes flags traffic that must be marked for compliance-grade
// handling; matching is by path substring.
var DefaultHipaaRoutes = []string{"/patients"}

// DefaultSensitiveFields are the top-level body keys the Redactor masks.
var DefaultSensitiveFields = []string{
	"password",
	"current_password",
	"new_password",
	"confirmPassword",
	"token",
	"accessToken",
	"refreshToken",
	"verificationCode",
	"creditCard",
}
