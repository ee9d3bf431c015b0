package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/d9705996/steward/internal/account"
	"github.com/d9705996/steward/internal/api/jsonapi"
	"github.com/d9705996/steward/internal/auth"
	"github.com/d9705996/steward/internal/model"
	"golang.org/x/crypto/bcrypt"
)

// AuthHandler handles /api/v1/auth/* routes.
type AuthHandler struct {
	accounts  *account.Service
	refresh   *auth.RefreshStore
	jwtSecret string
	accessTTL time.Duration
}

// NewAuthHandler creates an AuthHandler.
func NewAuthHandler(accounts *account.Service, refresh *auth.RefreshStore, jwtSecret string, accessTTL time.Duration) *AuthHandler {
	return &AuthHandler{
		accounts:  accounts,
		refresh:   refresh,
		jwtSecret: jwtSecret,
		accessTTL: accessTTL,
	}
}

// loginRequest holds the credentials submitted via POST /api/v1/auth/login.
// The password is unexported and decoded by hand to keep secrets out of
// exported struct fields.
type loginRequest struct {
	Email string
	pass  string
}

func (r *loginRequest) UnmarshalJSON(data []byte) error {
	obj := make(map[string]json.RawMessage)
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	if v, ok := obj["email"]; ok {
		if err := json.Unmarshal(v, &r.Email); err != nil {
			return err
		}
	}
	if v, ok := obj["password"]; ok {
		if err := json.Unmarshal(v, &r.pass); err != nil {
			return err
		}
	}
	return nil
}

// tokenAttrs are the JSON attributes returned in successful auth responses.
type tokenAttrs struct {
	accessToken  string
	refreshToken string
	TokenType    string
	ExpiresIn    int
}

func (t tokenAttrs) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]any{
		"access_token":  t.accessToken,
		"refresh_token": t.refreshToken,
		"token_type":    t.TokenType,
		"expires_in":    t.ExpiresIn,
	})
}

// Login handles POST /api/v1/auth/login.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonapi.RenderError(w, http.StatusBadRequest, "invalid_body", "Bad Request", "request body must be valid JSON")
		return
	}
	if req.Email == "" || req.pass == "" {
		jsonapi.RenderError(w, http.StatusUnprocessableEntity, "missing_field", "Unprocessable Entity", "email and password are required")
		return
	}

	ctx := r.Context()
	u, err := h.accounts.GetByEmail(ctx, req.Email)
	if err != nil && !errors.Is(err, account.ErrUserNotFound) {
		renderErr(w, err)
		return
	}
	if u == nil || u.DeactivatedAt != nil ||
		bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(req.pass)) != nil {
		jsonapi.RenderError(w, http.StatusUnauthorized, "invalid_credentials", "Unauthorized", "email or password is incorrect")
		return
	}

	refreshToken, err := h.refresh.Issue(ctx, u.ID)
	if err != nil {
		jsonapi.RenderError(w, http.StatusInternalServerError, "token_error", "Internal Server Error", "failed to issue refresh token")
		return
	}
	h.renderTokens(w, u, refreshToken)
}

// refreshRequest holds the token submitted via POST /api/v1/auth/refresh and
// /api/v1/auth/logout. All is only honoured by logout.
type refreshRequest struct {
	token string
	All   bool
}

func (r *refreshRequest) UnmarshalJSON(data []byte) error {
	obj := make(map[string]json.RawMessage)
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	if v, ok := obj["refresh_token"]; ok {
		if err := json.Unmarshal(v, &r.token); err != nil {
			return err
		}
	}
	if v, ok := obj["all"]; ok {
		if err := json.Unmarshal(v, &r.All); err != nil {
			return err
		}
	}
	return nil
}

// Refresh handles POST /api/v1/auth/refresh.
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.token == "" {
		jsonapi.RenderError(w, http.StatusBadRequest, "invalid_body", "Bad Request", "refresh_token is required")
		return
	}

	ctx := r.Context()
	newRefresh, userID, err := h.refresh.Rotate(ctx, req.token)
	if err != nil {
		jsonapi.RenderError(w, http.StatusUnauthorized, "invalid_token", "Unauthorized", "refresh token is invalid or expired")
		return
	}

	u, err := h.accounts.Get(ctx, userID)
	if err != nil || u.DeactivatedAt != nil {
		jsonapi.RenderError(w, http.StatusUnauthorized, "user_not_found", "Unauthorized", "user account does not exist")
		return
	}
	h.renderTokens(w, u, newRefresh)
}

func (h *AuthHandler) renderTokens(w http.ResponseWriter, u *model.User, refreshToken string) {
	accessToken, err := auth.IssueAccessToken(u.ID, u.Email, h.jwtSecret, h.accessTTL)
	if err != nil {
		jsonapi.RenderError(w, http.StatusInternalServerError, "token_error", "Internal Server Error", "failed to issue access token")
		return
	}
	jsonapi.RenderOne(w, http.StatusOK, jsonapi.ResourceObject{
		Type: "auth_token",
		ID:   u.ID,
		Attributes: tokenAttrs{
			accessToken:  accessToken,
			refreshToken: refreshToken,
			TokenType:    "Bearer",
			ExpiresIn:    int(h.accessTTL.Seconds()),
		},
	})
}

// Logout handles POST /api/v1/auth/logout. With "all": true every session of
// the caller is revoked; otherwise only the given refresh token.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || (req.token == "" && !req.All) {
		jsonapi.RenderError(w, http.StatusBadRequest, "invalid_body", "Bad Request", "refresh_token is required")
		return
	}
	if req.All {
		if err := h.refresh.RevokeAll(r.Context(), actor(r)); err != nil {
			renderErr(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
		return
	}
	// Unknown tokens still get a 204 so logout does not reveal which tokens exist.
	_ = h.refresh.Revoke(r.Context(), req.token)
	w.WriteHeader(http.StatusNoContent)
}
