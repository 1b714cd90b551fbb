package auth

import (
	"context"
	"fmt"
	"net/http"

	"ms-gigs/internal/logger"
)

type contextKey string

const operatorKey contextKey = "operator"

// Middleware requires a valid HS256 bearer token on every request. With an empty
// secret it lets everything through, which is how local runs work.
func Middleware(secret, issuer string, log *logger.Logger) func(http.Handler) http.Handler {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return func(next http.Handler) http.Handler {
		if secret == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rawToken, err := ExtractTokenFromRequest(r)
			if err != nil {
				log.LogSecurity("AUTH_MISSING", fmt.Sprintf("%s %s: %v", r.Method, r.URL.Path, err))
				http.Error(w, err.Error(), http.StatusUnauthorized)
				return
			}

			subject, err := ParseToken(rawToken, secret, issuer)
			if err != nil {
				log.LogSecurity("AUTH_INVALID", fmt.Sprintf("%s %s: %v", r.Method, r.URL.Path, err))
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), operatorKey, subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// Operator returns the authenticated subject, or "" on unauthenticated routes.
func Operator(ctx context.Context) string {
	if sub, ok := ctx.Value(operatorKey).(string); ok {
		return sub
	}
	return ""
}
