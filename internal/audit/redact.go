package audit

// RedactedPlaceholder replaces sensitive values before an event leaves the
// process.
const RedactedPlaceholder = "***REDACTED***"

// Redactor masks configured sensitive field names in request bodies.
//
// Masking is deliberately shallow: only top-level keys are inspected, nested
// objects and arrays pass through untouched. That is the contract boundary of
// this component, not an oversight; deep scanning would require schema
// knowledge this subsystem does not have.
type Redactor struct {
	fields map[string]struct{}
}

// NewRedactor builds a Redactor for the given field names. An empty list
// falls back to the default sensitive-field set.
func NewRedactor(fields []string) *Redactor {
	if len(fields) == 0 {
		fields = DefaultSensitiveFields
	}
	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		set[f] = struct{}{}
	}
	return &Redactor{fields: set}
}

// Redact returns a shallow copy of body with every configured sensitive key
// replaced by RedactedPlaceholder. A nil body yields an empty map. Redaction
// is idempotent: redacting a redacted body changes nothing.
func (r *Redactor) Redact(body map[string]any) map[string]any {
	sanitized := make(map[string]any, len(body))
	for k, v := range body {
		if _, sensitive := r.fields[k]; sensitive && v != nil {
			sanitized[k] = RedactedPlaceholder
			continue
		}
		sanitized[k] = v
	}
	return sanitized
}
