package handler

import (
	"net/http"
	"strings"

	"github.com/d9705996/steward/internal/account"
	"github.com/d9705996/steward/internal/api/jsonapi"
	"github.com/d9705996/steward/internal/apperr"
	"github.com/d9705996/steward/internal/membership"
	"github.com/d9705996/steward/internal/model"
	"github.com/d9705996/steward/internal/policy"
)

// MemberHandler handles /api/v1/companies/{companyID}/members routes.
type MemberHandler struct {
	members  *membership.Store
	accounts *account.Service
}

// NewMemberHandler creates a MemberHandler.
func NewMemberHandler(members *membership.Store, accounts *account.Service) *MemberHandler {
	return &MemberHandler{members: members, accounts: accounts}
}

// List handles GET .../members. With ?role= only active members holding that
// role are returned; otherwise every membership row, active or not.
func (h *MemberHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if q := r.URL.Query().Get("role"); q != "" {
		role, ok := policy.ParseRole(q)
		if !ok {
			renderErr(w, membership.ErrInvalidRole)
			return
		}
		users, err := h.members.ListByRole(ctx, companyID(r), role)
		if err != nil {
			renderErr(w, err)
			return
		}
		jsonapi.RenderList(w, http.StatusOK, list(users, userResource), nil)
		return
	}

	ms, err := h.members.Members(ctx, companyID(r))
	if err != nil {
		renderErr(w, err)
		return
	}
	jsonapi.RenderList(w, http.StatusOK, list(ms, memberResource), nil)
}

type addMemberRequest struct {
	UserID string      `json:"user_id"`
	Email  string      `json:"email"`
	Role   policy.Role `json:"role"`
}

// Add handles POST .../members. The user is identified by user_id or email.
func (h *MemberHandler) Add(w http.ResponseWriter, r *http.Request) {
	var req addMemberRequest
	if !decode(w, r, &req) {
		return
	}
	ctx := r.Context()

	var (
		u   *model.User
		err error
	)
	switch {
	case req.UserID != "":
		u, err = h.accounts.Get(ctx, req.UserID)
	case strings.TrimSpace(req.Email) != "":
		u, err = h.accounts.GetByEmail(ctx, req.Email)
	default:
		err = apperr.InvalidField("user_id", "user_id or email is required")
	}
	if err != nil {
		renderErr(w, err)
		return
	}

	m, err := h.members.AddMember(ctx, u.ID, companyID(r), req.Role)
	if err != nil {
		renderErr(w, err)
		return
	}
	jsonapi.RenderOne(w, http.StatusCreated, memberResource(membership.Member{
		UserID:   u.ID,
		Email:    u.Email,
		Name:     u.Name,
		Role:     m.Role,
		IsActive: m.IsActive,
		JoinedAt: m.JoinedAt,
	}))
}

type updateMemberRequest struct {
	Role     *policy.Role `json:"role"`
	IsActive *bool        `json:"is_active"`
}

// Update handles PATCH .../members/{userID}: role change, suspension or
// resumption.
func (h *MemberHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req updateMemberRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Role == nil && req.IsActive == nil {
		renderErr(w, apperr.InvalidField("role", "role or is_active is required"))
		return
	}
	ctx := r.Context()
	userID, cid := r.PathValue(ParamUser), companyID(r)

	if req.IsActive != nil && *req.IsActive {
		if err := h.members.SetActive(ctx, userID, cid, true); err != nil {
			renderErr(w, err)
			return
		}
	}
	if req.Role != nil {
		if err := h.members.UpdateRole(ctx, userID, cid, *req.Role); err != nil {
			renderErr(w, err)
			return
		}
	}
	if req.IsActive != nil && !*req.IsActive {
		if err := h.members.SetActive(ctx, userID, cid, false); err != nil {
			renderErr(w, err)
			return
		}
	}

	ms, err := h.members.Members(ctx, cid)
	if err != nil {
		renderErr(w, err)
		return
	}
	// Prefer the active row; suspended users only have inactive ones.
	var found *membership.Member
	for i := range ms {
		if ms[i].UserID != userID {
			continue
		}
		if found == nil || (ms[i].IsActive && !found.IsActive) {
			found = &ms[i]
		}
	}
	if found == nil {
		renderErr(w, membership.ErrNotAMember)
		return
	}
	jsonapi.RenderOne(w, http.StatusOK, memberResource(*found))
}

// Remove handles DELETE .../members/{userID}.
func (h *MemberHandler) Remove(w http.ResponseWriter, r *http.Request) {
	if err := h.members.RemoveMember(r.Context(), r.PathValue(ParamUser), companyID(r)); err != nil {
		renderErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
