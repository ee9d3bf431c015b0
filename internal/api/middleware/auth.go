// Package middleware provides HTTP middleware for Steward.
package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/d9705996/steward/internal/access"
	"github.com/d9705996/steward/internal/api/jsonapi"
	"github.com/d9705996/steward/internal/auth"
	"github.com/d9705996/steward/internal/policy"
)

type contextKey string

const (
	claimsKey contextKey = "auth_claims"
	roleKey   contextKey = "company_role"
)

// CompanyParam is the path wildcard carrying the company ID.
const CompanyParam = "companyID"

// RequireAuth validates the Bearer JWT in the Authorization header.
// On success it injects *auth.Claims into the request context.
// On failure it writes a 401 JSON:API error response.
func RequireAuth(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := extractBearerToken(r)
			if token == "" {
				jsonapi.RenderError(w, http.StatusUnauthorized,
					"missing_token", "Unauthorized", "Authorization header is required")
				return
			}

			claims, err := auth.ParseAccessToken(token, secret)
			if err != nil {
				jsonapi.RenderError(w, http.StatusUnauthorized,
					"invalid_token", "Unauthorized", "access token is invalid or expired")
				return
			}

			ctx := context.WithValue(r.Context(), claimsKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ClaimsFromContext extracts Claims from the request context.
// Returns nil if not present.
func ClaimsFromContext(ctx context.Context) *auth.Claims {
	c, _ := ctx.Value(claimsKey).(*auth.Claims)
	return c
}

// ActorFromContext returns the authenticated user ID, or "" when the request
// did not pass RequireAuth.
func ActorFromContext(ctx context.Context) string {
	if c := ClaimsFromContext(ctx); c != nil {
		return c.UserID
	}
	return ""
}

// RoleFromContext returns the actor's role in the path company as resolved
// by RequireMember or RequireAction.
func RoleFromContext(ctx context.Context) policy.Role {
	r, _ := ctx.Value(roleKey).(policy.Role)
	return r
}

// RoleLookup resolves a user's role in a company.
type RoleLookup interface {
	Role(ctx context.Context, actorID, companyID string) (policy.Role, error)
}

// RequireMember admits active members of the company named by the
// {companyID} path wildcard. Must be chained after RequireAuth.
func RequireMember(roles RoleLookup) func(http.Handler) http.Handler {
	return companyGate(roles, func(policy.Role) error { return nil })
}

// RequireAction admits members whose role grants action in the company named
// by the {companyID} path wildcard. Must be chained after RequireAuth.
func RequireAction(roles RoleLookup, action policy.Action) func(http.Handler) http.Handler {
	return companyGate(roles, func(role policy.Role) error {
		if !policy.CanPerform(role, action) {
			return access.ErrForbidden
		}
		return nil
	})
}

func companyGate(roles RoleLookup, check func(policy.Role) error) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor := ActorFromContext(r.Context())
			if actor == "" {
				jsonapi.RenderError(w, http.StatusUnauthorized,
					"missing_token", "Unauthorized", "authentication required")
				return
			}
			role, err := roles.Role(r.Context(), actor, r.PathValue(CompanyParam))
			if err != nil {
				jsonapi.RenderDomainError(w, err)
				return
			}
			if role == policy.RoleNone {
				jsonapi.RenderDomainError(w, access.ErrNotMember)
				return
			}
			if err := check(role); err != nil {
				jsonapi.RenderDomainError(w, err)
				return
			}
			ctx := context.WithValue(r.Context(), roleKey, role)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func extractBearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if h == "" {
		return ""
	}
	parts := strings.SplitN(h, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}
	return parts[1]
}
