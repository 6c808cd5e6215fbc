package audit

import (
	"fmt"
	"strings"
)

// Classify maps a finished request to an event type.
//
// Server errors short-circuit everything: any status >= 500 is SYSTEM_ERROR
// regardless of route. Otherwise the ordered route rules are evaluated and
// the first match wins. With no match, 401/403 become
// UNAUTHORIZED_ACCESS_ATTEMPT and anything else falls back to
// HTTP_<METHOD>_REQUEST.
func Classify(method, path string, statusCode int) EventType {
	method = strings.ToUpper(method)
	path = strings.ToLower(path)

	if statusCode >= 500 {
		return EventSystemError
	}

	success := statusCode >= 200 && statusCode < 300
	for _, rule := range routeRules {
		if rule.matches(method, path) {
			return rule.mapping.resolve(success)
		}
	}

	if statusCode == 401 || statusCode == 403 {
		return EventUnauthorizedAccess
	}

	return EventType("HTTP_" + method + "_REQUEST")
}

// ConfigFor looks up the taxonomy defaults for an event type. Unknown event
// types, and known ones without a canned description, get a generated
// description; unknown ones additionally default to INFO/ACCESS.
func ConfigFor(eventType EventType, method, path string, success bool) EventConfig {
	cfg, ok := eventConfigs[eventType]
	if !ok {
		return EventConfig{
			Severity:    SeverityInfo,
			Action:      ActionAccess,
			Description: describeRequest(method, path, success),
		}
	}
	if cfg.Description == "" {
		cfg.Description = describeRequest(method, path, success)
	}
	return cfg
}

func describeRequest(method, path string, success bool) string {
	outcome := "failed"
	if success {
		outcome = "successful"
	}
	return fmt.Sprintf("%s request to %s %s", method, path, outcome)
}
