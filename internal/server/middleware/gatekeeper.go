package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/wardenhq/warden/internal/authz"
	"github.com/wardenhq/warden/internal/model"
	"github.com/wardenhq/warden/internal/service"
)

type contextKeyAuth string

// AuthPrincipalKey is the context key for the authenticated principal.
const AuthPrincipalKey contextKeyAuth = "auth_principal"

// Principal represents the authenticated identity making the request.
type Principal struct {
	Role    model.Role
	Subject string
}

// Gatekeeper returns the HTTP middleware every request passes through
// before any handler runs. It classifies the route and then either lets it
// through (public, CORS preflight), hands it to the webhook pipeline
// (signature-authenticated ingress), or requires a valid bearer token and
// an authorizing role. Authentication is always decided before the body is
// read, so a request with a bad token and a bad body reports 401, not 400.
func Gatekeeper(authSvc *service.AuthService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if authz.SkipMethod(r.Method) {
				next.ServeHTTP(w, r)
				return
			}

			switch authz.Classify(r.Method, r.URL.Path) {
			case authz.Public, authz.WebhookBypass, authz.WebSocketUpgrade:
				next.ServeHTTP(w, r)
				return
			}

			token := bearerToken(r)
			if token == "" {
				writeAuthError(w, http.StatusUnauthorized, "authentication required")
				return
			}
			md, err := authSvc.Validate(token)
			if err != nil {
				writeAuthError(w, http.StatusUnauthorized, "invalid or expired token")
				return
			}

			if err := authz.Authorize(md.Role, r.Method, r.URL.Path); err != nil {
				writeAuthError(w, http.StatusForbidden, err.Error())
				return
			}

			ctx := context.WithValue(r.Context(), AuthPrincipalKey, &Principal{
				Role:    md.Role,
				Subject: md.Subject,
			})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetPrincipal extracts the authenticated principal from the context.
// Returns nil if no principal is present (i.e., public request).
func GetPrincipal(ctx context.Context) *Principal {
	if p, ok := ctx.Value(AuthPrincipalKey).(*Principal); ok {
		return p
	}
	return nil
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}

func writeAuthError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(model.ErrorResponse{
		Error: model.ErrorDetail{
			Code:    status,
			Message: message,
		},
	})
}
