package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"ms-security/pkg/requestcontext"
)

// principalClaims are the token claims this service consumes. Token issuance
// and enforcement belong to the auth service; here we only surface the
// authenticated principal to downstream consumers such as the audit pipeline.
type principalClaims struct {
	Role      string `json:"role"`
	SessionID string `json:"sid"`
	jwt.RegisteredClaims
}

// Principal extracts the authenticated principal from a Bearer token and
// attaches it to the request context. Requests without a valid token pass
// through unauthenticated; handlers decide whether that is acceptable.
func Principal(signingKey string, logger *slog.Logger) func(http.Handler) http.Handler {
	keyFunc := func(*jwt.Token) (any, error) { return []byte(signingKey), nil }

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || token == "" {
				next.ServeHTTP(w, r)
				return
			}

			claims := &principalClaims{}
			parsed, err := jwt.ParseWithClaims(token, claims, keyFunc,
				jwt.WithValidMethods([]string{"HS256"}))
			if err != nil || !parsed.Valid {
				logger.DebugContext(r.Context(), "bearer token not usable for principal context", "error", err)
				next.ServeHTTP(w, r)
				return
			}

			ctx := requestcontext.WithPrincipal(r.Context(), claims.Subject, claims.Role, claims.SessionID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
