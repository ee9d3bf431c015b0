package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/d9705996/steward/internal/api/jsonapi"
	"github.com/d9705996/steward/internal/apperr"
	"github.com/d9705996/steward/internal/location"
	"github.com/d9705996/steward/internal/model"
	"github.com/d9705996/steward/internal/policy"
	"github.com/d9705996/steward/internal/worker"
)

// Enqueuer schedules notification dispatch.
type Enqueuer interface {
	EnqueueDispatch(ctx context.Context, args worker.DispatchArgs) error
}

// Permissions checks a company action for an explicit actor.
type Permissions interface {
	Require(ctx context.Context, actorID, companyID string, action policy.Action) error
}

// LocationHandler handles /api/v1/companies/{companyID}/locations routes.
type LocationHandler struct {
	locations *location.Manager
	members   location.MembershipChecker
	perms     Permissions
	queue     Enqueuer
	log       *slog.Logger
}

// NewLocationHandler creates a LocationHandler.
func NewLocationHandler(
	locations *location.Manager, members location.MembershipChecker,
	perms Permissions, queue Enqueuer, log *slog.Logger,
) *LocationHandler {
	return &LocationHandler{locations: locations, members: members, perms: perms, queue: queue, log: log}
}

type locationRequest struct {
	Name          *string  `json:"name"`
	StreetAddress *string  `json:"street_address"`
	City          *string  `json:"city"`
	State         *string  `json:"state"`
	PostalCode    *string  `json:"postal_code"`
	Country       *string  `json:"country"`
	Phone         *string  `json:"phone"`
	Email         *string  `json:"email"`
	Description   *string  `json:"description"`
	IsActive      *bool    `json:"is_active"`
	Latitude      *float64 `json:"latitude"`
	Longitude     *float64 `json:"longitude"`
}

// inCompany loads the path location and hides locations of other companies.
func (h *LocationHandler) inCompany(r *http.Request) (*model.Location, error) {
	l, err := h.locations.Get(r.Context(), r.PathValue(ParamLocation))
	if err != nil {
		return nil, err
	}
	if l.CompanyID != companyID(r) {
		return nil, location.ErrLocationNotFound
	}
	return l, nil
}

// List handles GET .../locations[?active_only=true].
func (h *LocationHandler) List(w http.ResponseWriter, r *http.Request) {
	activeOnly, _ := strconv.ParseBool(r.URL.Query().Get("active_only"))
	ls, err := h.locations.ListForCompany(r.Context(), companyID(r), activeOnly)
	if err != nil {
		renderErr(w, err)
		return
	}
	jsonapi.RenderList(w, http.StatusOK, list(ls, locationResource), nil)
}

// Create handles POST .../locations.
func (h *LocationHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req locationRequest
	if !decode(w, r, &req) {
		return
	}
	l, err := h.locations.Create(r.Context(), companyID(r), location.Input(req))
	if err != nil {
		renderErr(w, err)
		return
	}
	jsonapi.RenderOne(w, http.StatusCreated, locationResource(*l))
}

// Get handles GET .../locations/{locationID}.
func (h *LocationHandler) Get(w http.ResponseWriter, r *http.Request) {
	l, err := h.inCompany(r)
	if err != nil {
		renderErr(w, err)
		return
	}
	jsonapi.RenderOne(w, http.StatusOK, locationResource(*l))
}

// Update handles PATCH .../locations/{locationID}.
func (h *LocationHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req locationRequest
	if !decode(w, r, &req) {
		return
	}
	if _, err := h.inCompany(r); err != nil {
		renderErr(w, err)
		return
	}
	l, err := h.locations.Update(r.Context(), r.PathValue(ParamLocation), location.Input(req))
	if err != nil {
		renderErr(w, err)
		return
	}
	jsonapi.RenderOne(w, http.StatusOK, locationResource(*l))
}

// Stats handles GET .../locations/stats.
func (h *LocationHandler) Stats(w http.ResponseWriter, r *http.Request) {
	s, err := h.locations.Stats(r.Context(), companyID(r))
	if err != nil {
		renderErr(w, err)
		return
	}
	jsonapi.RenderOne(w, http.StatusOK, locationStatsResource(companyID(r), s))
}

// Delete handles DELETE .../locations/{locationID}.
func (h *LocationHandler) Delete(w http.ResponseWriter, r *http.Request) {
	l, err := h.inCompany(r)
	if err != nil {
		renderErr(w, err)
		return
	}
	if err := h.locations.Delete(r.Context(), l.ID); err != nil {
		renderErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type assignRequest struct {
	UserIDs    []string `json:"user_ids"`
	SetPrimary bool     `json:"set_primary"`
}

// Assign handles POST .../locations/{locationID}/assignments. Every user must
// be an active member of the company before any assignment is made. Each
// assigned user receives a location_assignment notification.
func (h *LocationHandler) Assign(w http.ResponseWriter, r *http.Request) {
	var req assignRequest
	if !decode(w, r, &req) {
		return
	}
	if len(req.UserIDs) == 0 {
		renderErr(w, apperr.InvalidField("user_ids", "at least one user is required"))
		return
	}
	l, err := h.inCompany(r)
	if err != nil {
		renderErr(w, err)
		return
	}

	ctx := r.Context()
	for _, uid := range req.UserIDs {
		ok, err := h.members.IsMember(ctx, uid, l.CompanyID)
		if err != nil {
			renderErr(w, err)
			return
		}
		if !ok {
			renderErr(w, apperr.InvalidField("user_ids", "user "+uid+" does not belong to this company"))
			return
		}
	}

	out := make([]model.LocationAssignment, 0, len(req.UserIDs))
	for _, uid := range req.UserIDs {
		a, err := h.locations.Assign(ctx, uid, l.ID, req.SetPrimary)
		if err != nil {
			renderErr(w, err)
			return
		}
		out = append(out, *a)
		err = h.queue.EnqueueDispatch(ctx, worker.DispatchArgs{
			Type:       model.TypeLocationAssignment,
			UserID:     uid,
			LocationID: l.ID,
		})
		if err != nil {
			h.log.Error("enqueue location assignment notification", "user_id", uid, "location_id", l.ID, "err", err)
		}
	}
	jsonapi.RenderList(w, http.StatusCreated, list(out, assignmentResource), nil)
}

// Assignments handles GET .../locations/{locationID}/assignments.
func (h *LocationHandler) Assignments(w http.ResponseWriter, r *http.Request) {
	l, err := h.inCompany(r)
	if err != nil {
		renderErr(w, err)
		return
	}
	as, err := h.locations.Assignments(r.Context(), l.ID)
	if err != nil {
		renderErr(w, err)
		return
	}
	jsonapi.RenderList(w, http.StatusOK, list(as, assignmentResource), nil)
}

// Unassign handles DELETE .../locations/{locationID}/assignments/{userID}.
func (h *LocationHandler) Unassign(w http.ResponseWriter, r *http.Request) {
	l, err := h.inCompany(r)
	if err != nil {
		renderErr(w, err)
		return
	}
	if err := h.locations.Unassign(r.Context(), r.PathValue(ParamUser), l.ID); err != nil {
		renderErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type primaryRequest struct {
	UserID string `json:"user_id"`
}

// SetPrimary handles PUT .../locations/{locationID}/primary. Members may set
// their own primary location; setting it for someone else needs
// manage_locations.
func (h *LocationHandler) SetPrimary(w http.ResponseWriter, r *http.Request) {
	var req primaryRequest
	if !decode(w, r, &req) {
		return
	}
	ctx := r.Context()
	target := req.UserID
	if target == "" {
		target = actor(r)
	}
	if target != actor(r) {
		if err := h.perms.Require(ctx, actor(r), companyID(r), policy.ManageLocations); err != nil {
			renderErr(w, err)
			return
		}
	}

	l, err := h.inCompany(r)
	if err != nil {
		renderErr(w, err)
		return
	}
	ok, err := h.members.IsMember(ctx, target, l.CompanyID)
	if err != nil {
		renderErr(w, err)
		return
	}
	if !ok {
		renderErr(w, location.ErrNotCompanyMember)
		return
	}
	if err := h.locations.SetPrimary(ctx, target, l.ID); err != nil {
		renderErr(w, err)
		return
	}
	jsonapi.RenderOne(w, http.StatusOK, locationResource(*l))
}
