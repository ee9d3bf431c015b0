package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/d9705996/steward/internal/api/jsonapi"
	"github.com/d9705996/steward/internal/apperr"
	"github.com/d9705996/steward/internal/model"
	"github.com/d9705996/steward/internal/notify"
	"github.com/d9705996/steward/internal/preference"
)

// PreferenceHandler handles .../notification-preferences routes.
type PreferenceHandler struct {
	prefs *preference.Resolver
}

// NewPreferenceHandler creates a PreferenceHandler.
func NewPreferenceHandler(prefs *preference.Resolver) *PreferenceHandler {
	return &PreferenceHandler{prefs: prefs}
}

// List handles GET .../notification-preferences: effective settings for
// every notification type, defaults included.
func (h *PreferenceHandler) List(w http.ResponseWriter, r *http.Request) {
	ts, err := h.prefs.ListForCompany(r.Context(), actor(r), companyID(r))
	if err != nil {
		renderErr(w, err)
		return
	}
	jsonapi.RenderList(w, http.StatusOK, list(ts, preferenceResource), nil)
}

type preferenceRequest struct {
	EmailEnabled *bool `json:"email_enabled"`
	InAppEnabled *bool `json:"in_app_enabled"`
	PushEnabled  *bool `json:"push_enabled"`
}

// Update handles PATCH .../notification-preferences/{type}.
func (h *PreferenceHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req preferenceRequest
	if !decode(w, r, &req) {
		return
	}
	typ := model.NotificationType(r.PathValue(ParamType))
	s, err := h.prefs.Upsert(r.Context(), actor(r), companyID(r), typ, preference.Patch{
		Email: req.EmailEnabled,
		InApp: req.InAppEnabled,
		Push:  req.PushEnabled,
	})
	if err != nil {
		renderErr(w, err)
		return
	}
	jsonapi.RenderOne(w, http.StatusOK, preferenceResource(preference.TypeSettings{Type: typ, Settings: s}))
}

type bulkPreferenceRequest struct {
	Preferences []struct {
		Type model.NotificationType `json:"type"`
		preferenceRequest
	} `json:"preferences"`
}

// BulkUpdate handles PATCH .../notification-preferences: several types in one
// request, applied together or not at all.
func (h *PreferenceHandler) BulkUpdate(w http.ResponseWriter, r *http.Request) {
	var req bulkPreferenceRequest
	if !decode(w, r, &req) {
		return
	}
	patches := make([]preference.TypePatch, 0, len(req.Preferences))
	for _, p := range req.Preferences {
		patches = append(patches, preference.TypePatch{
			Type: p.Type,
			Patch: preference.Patch{
				Email: p.EmailEnabled,
				InApp: p.InAppEnabled,
				Push:  p.PushEnabled,
			},
		})
	}
	ts, err := h.prefs.UpsertMany(r.Context(), actor(r), companyID(r), patches)
	if err != nil {
		renderErr(w, err)
		return
	}
	jsonapi.RenderList(w, http.StatusOK, list(ts, preferenceResource), nil)
}

// NotificationHandler handles .../notifications routes.
type NotificationHandler struct {
	notifications *notify.Service
}

// NewNotificationHandler creates a NotificationHandler.
func NewNotificationHandler(notifications *notify.Service) *NotificationHandler {
	return &NotificationHandler{notifications: notifications}
}

// List handles GET .../notifications[?status=&type=&limit=].
func (h *NotificationHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := notify.Filter{
		Status: model.NotificationStatus(q.Get("status")),
		Type:   model.NotificationType(q.Get("type")),
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			renderErr(w, apperr.InvalidField("limit", "must be a positive integer"))
			return
		}
		f.Limit = n
	}
	ns, err := h.notifications.List(r.Context(), actor(r), companyID(r), f)
	if err != nil {
		renderErr(w, err)
		return
	}
	jsonapi.RenderList(w, http.StatusOK, list(ns, notificationResource), nil)
}

// UnreadCount handles GET .../notifications/unread-count.
func (h *NotificationHandler) UnreadCount(w http.ResponseWriter, r *http.Request) {
	n, err := h.notifications.UnreadCount(r.Context(), actor(r), companyID(r))
	if err != nil {
		renderErr(w, err)
		return
	}
	jsonapi.Render(w, http.StatusOK, jsonapi.Document{Data: nil, Meta: jsonapi.Meta{"unread_count": n}})
}

// ReadAll handles POST .../notifications/read-all. Every unread notification
// of the caller is marked read, in every company.
func (h *NotificationHandler) ReadAll(w http.ResponseWriter, r *http.Request) {
	n, err := h.notifications.MarkAllAsRead(r.Context(), actor(r))
	if err != nil {
		renderErr(w, err)
		return
	}
	jsonapi.Render(w, http.StatusOK, jsonapi.Document{Data: nil, Meta: jsonapi.Meta{"updated": n}})
}

// MarkRead handles POST .../notifications/{notificationID}/read.
func (h *NotificationHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.notifications.MarkAsRead)
}

// MarkUnread handles POST .../notifications/{notificationID}/unread.
func (h *NotificationHandler) MarkUnread(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.notifications.MarkAsUnread)
}

// Dismiss handles POST .../notifications/{notificationID}/dismiss.
func (h *NotificationHandler) Dismiss(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.notifications.Dismiss)
}

func (h *NotificationHandler) transition(
	w http.ResponseWriter, r *http.Request,
	move func(ctx context.Context, actorID, id string) (*model.Notification, error),
) {
	ctx := r.Context()
	id := r.PathValue(ParamNotification)
	n, err := h.notifications.Get(ctx, actor(r), id)
	if err != nil {
		renderErr(w, err)
		return
	}
	if n.CompanyID != companyID(r) {
		renderErr(w, notify.ErrNotificationNotFound)
		return
	}
	n, err = move(ctx, actor(r), id)
	if err != nil {
		renderErr(w, err)
		return
	}
	jsonapi.RenderOne(w, http.StatusOK, notificationResource(*n))
}

// Stats handles GET .../notifications/stats.
func (h *NotificationHandler) Stats(w http.ResponseWriter, r *http.Request) {
	s, err := h.notifications.CompanyStats(r.Context(), companyID(r))
	if err != nil {
		renderErr(w, err)
		return
	}
	jsonapi.RenderOne(w, http.StatusOK, notificationStatsResource(companyID(r), s))
}

type cleanupRequest struct {
	Days *int `json:"days"`
}

// Cleanup handles POST .../notifications/cleanup. Only notifications of the
// path company are purged; days defaults to the configured retention.
func (h *NotificationHandler) Cleanup(defaultDays int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req cleanupRequest
		if !decode(w, r, &req) {
			return
		}
		days := defaultDays
		if req.Days != nil {
			days = *req.Days
		}
		n, err := h.notifications.CleanupCompany(r.Context(), companyID(r), days)
		if err != nil {
			renderErr(w, err)
			return
		}
		jsonapi.Render(w, http.StatusOK, jsonapi.Document{Data: nil, Meta: jsonapi.Meta{"deleted": n, "days": days}})
	}
}
