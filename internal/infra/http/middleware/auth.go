package middleware

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/SSC-ICT-Innovatie/nl-kat-coordination/pkg/apierror"
	"github.com/SSC-ICT-Innovatie/nl-kat-coordination/pkg/capability"
)

const claimsKey contextKey = "capability_claims"

// bearerToken extracts the bearer token from the Authorization header.
func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if !strings.HasPrefix(auth, "Bearer ") {
		return ""
	}
	return strings.TrimPrefix(auth, "Bearer ")
}

// OperatorAuth authenticates operator clients with a static bearer token.
// An empty configured token closes the operator surface entirely.
func OperatorAuth(apiToken string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if apiToken == "" || token == "" ||
				subtle.ConstantTimeCompare([]byte(token), []byte(apiToken)) != 1 {
				apierror.Unauthorized("").WriteJSON(w)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// CapabilityAuth authenticates sandboxed plugins with their per-task
// capability token and requires the given action to be granted. The
// verified claims land in the request context for the handler.
func CapabilityAuth(issuer *capability.Issuer, action string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				apierror.Unauthorized("").WriteJSON(w)
				return
			}

			claims, err := issuer.VerifyAction(token, action, "")
			if err != nil {
				apierror.Unauthorized(err.Error()).WriteJSON(w)
				return
			}

			ctx := context.WithValue(r.Context(), claimsKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetClaims extracts the verified capability claims from context.
func GetClaims(ctx context.Context) (*capability.Claims, bool) {
	claims, ok := ctx.Value(claimsKey).(*capability.Claims)
	return claims, ok
}
