package handler

import (
	"net/http"

	"github.com/d9705996/steward/internal/api/jsonapi"
	"github.com/d9705996/steward/internal/company"
	"github.com/d9705996/steward/internal/location"
	"github.com/d9705996/steward/internal/policy"
)

// CompanyHandler handles /api/v1/companies and /api/v1/me routes.
type CompanyHandler struct {
	companies *company.Service
	locations *location.Manager
}

// NewCompanyHandler creates a CompanyHandler.
func NewCompanyHandler(companies *company.Service, locations *location.Manager) *CompanyHandler {
	return &CompanyHandler{companies: companies, locations: locations}
}

type companyRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Website     string `json:"website"`
	Address     string `json:"address"`
	Phone       string `json:"phone"`
	Email       string `json:"email"`
}

// Create handles POST /api/v1/companies. The caller becomes its admin.
func (h *CompanyHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req companyRequest
	if !decode(w, r, &req) {
		return
	}
	c, err := h.companies.Create(r.Context(), actor(r), company.Input(req))
	if err != nil {
		renderErr(w, err)
		return
	}
	jsonapi.RenderOne(w, http.StatusCreated, companyResource(*c, policy.RoleAdmin))
}

// Delete handles DELETE /api/v1/companies/{companyID}.
func (h *CompanyHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.companies.Delete(r.Context(), companyID(r)); err != nil {
		renderErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// MyCompanies handles GET /api/v1/me/companies.
func (h *CompanyHandler) MyCompanies(w http.ResponseWriter, r *http.Request) {
	ms, err := h.companies.ListForUser(r.Context(), actor(r))
	if err != nil {
		renderErr(w, err)
		return
	}
	jsonapi.RenderList(w, http.StatusOK, list(ms, companyMembershipResource), nil)
}

// MyPrimaryLocation handles GET /api/v1/me/primary-location. Data is null when
// the caller has no primary location.
func (h *CompanyHandler) MyPrimaryLocation(w http.ResponseWriter, r *http.Request) {
	l, err := h.locations.GetPrimary(r.Context(), actor(r))
	if err != nil {
		renderErr(w, err)
		return
	}
	if l == nil {
		jsonapi.RenderOne(w, http.StatusOK, nil)
		return
	}
	jsonapi.RenderOne(w, http.StatusOK, locationResource(*l))
}
