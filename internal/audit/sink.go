package audit

import "context"

//go:generate mockgen -destination=mocks/mocks.go -package=mocks ms-security/internal/audit Sink

// Sink delivers one event to the audit backend. Send reports success instead
// of returning an error: delivery is best-effort and callers only need to
// know whether to queue a retry.
type Sink interface {
	Send(ctx context.Context, event Event) bool
}
