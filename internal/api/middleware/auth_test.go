package middleware_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/d9705996/steward/internal/api/middleware"
	"github.com/d9705996/steward/internal/auth"
	"github.com/d9705996/steward/internal/policy"
	"github.com/stretchr/testify/assert"
)

const secret = "test-secret-at-least-32-bytes!!!"

func issueToken(t *testing.T, userID string) string {
	t.Helper()
	tok, err := auth.IssueAccessToken(userID, userID+"@example.com", secret, 15*time.Minute)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return tok
}

// roles maps "user/company" to a role.
type roles map[string]policy.Role

func (r roles) Role(_ context.Context, actorID, companyID string) (policy.Role, error) {
	if actorID == "broken" {
		return policy.RoleNone, errors.New("db down")
	}
	return r[actorID+"/"+companyID], nil
}

func ok(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) }

func serve(t *testing.T, h http.Handler, userID, companyID string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/companies/"+companyID+"/test", http.NoBody)
	req.SetPathValue(middleware.CompanyParam, companyID)
	if userID != "" {
		req.Header.Set("Authorization", "Bearer "+issueToken(t, userID))
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestRequireAuth_MissingHeader(t *testing.T) {
	handler := middleware.RequireAuth(secret)(http.HandlerFunc(ok))

	req := httptest.NewRequest(http.MethodGet, "/test", http.NoBody)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRequireAuth_ValidToken(t *testing.T) {
	handler := middleware.RequireAuth(secret)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims := middleware.ClaimsFromContext(r.Context())
		assert.NotNil(t, claims)
		assert.Equal(t, "user-1", claims.UserID)
		assert.Equal(t, "user-1", middleware.ActorFromContext(r.Context()))
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/test", http.NoBody)
	req.Header.Set("Authorization", "Bearer "+issueToken(t, "user-1"))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRequireAuth_InvalidToken(t *testing.T) {
	handler := middleware.RequireAuth(secret)(http.HandlerFunc(ok))

	req := httptest.NewRequest(http.MethodGet, "/test", http.NoBody)
	req.Header.Set("Authorization", "Bearer this.is.garbage")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestActorFromContext_Empty(t *testing.T) {
	assert.Empty(t, middleware.ActorFromContext(context.Background()))
	assert.Equal(t, policy.RoleNone, middleware.RoleFromContext(context.Background()))
}

func TestRequireMember(t *testing.T) {
	lookup := roles{"alice/c1": policy.RoleViewer}
	h := middleware.RequireAuth(secret)(middleware.RequireMember(lookup)(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, policy.RoleViewer, middleware.RoleFromContext(r.Context()))
			w.WriteHeader(http.StatusOK)
		}),
	))

	assert.Equal(t, http.StatusOK, serve(t, h, "alice", "c1").Code)
	assert.Equal(t, http.StatusForbidden, serve(t, h, "alice", "c2").Code)
	assert.Equal(t, http.StatusForbidden, serve(t, h, "bob", "c1").Code)
	assert.Equal(t, http.StatusInternalServerError, serve(t, h, "broken", "c1").Code)
	assert.Equal(t, http.StatusUnauthorized, serve(t, h, "", "c1").Code)
}

func TestRequireAction(t *testing.T) {
	lookup := roles{
		"admin/c1":   policy.RoleAdmin,
		"manager/c1": policy.RoleManager,
		"member/c1":  policy.RoleMember,
	}
	tests := []struct {
		action policy.Action
		user   string
		want   int
	}{
		{policy.ManageLocations, "admin", http.StatusOK},
		{policy.ManageLocations, "manager", http.StatusOK},
		{policy.ManageLocations, "member", http.StatusForbidden},
		{policy.DeleteLocation, "manager", http.StatusForbidden},
		{policy.DeleteLocation, "admin", http.StatusOK},
		{policy.ManageUsers, "outsider", http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(string(tt.action)+"/"+tt.user, func(t *testing.T) {
			h := middleware.RequireAuth(secret)(middleware.RequireAction(lookup, tt.action)(http.HandlerFunc(ok)))
			assert.Equal(t, tt.want, serve(t, h, tt.user, "c1").Code)
		})
	}
}
