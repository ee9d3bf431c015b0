// Package api wires all API routes onto the provided ServeMux.
package api

import (
	"net/http"

	"github.com/d9705996/steward/internal/api/handler"
	"github.com/d9705996/steward/internal/api/middleware"
	"github.com/d9705996/steward/internal/health"
	"github.com/d9705996/steward/internal/policy"
)

// Handlers groups every resource handler served by the API.
type Handlers struct {
	Health        *health.Handler
	Auth          *handler.AuthHandler
	Companies     *handler.CompanyHandler
	Members       *handler.MemberHandler
	Locations     *handler.LocationHandler
	Preferences   *handler.PreferenceHandler
	Notifications *handler.NotificationHandler
	Events        *handler.EventHandler
	Metrics       http.Handler // optional

	// RetentionDays is the default for POST .../notifications/cleanup.
	RetentionDays int
}

// RegisterRoutes registers all application routes on mux. roles resolves the
// caller's company role for the per-company gates.
func RegisterRoutes(mux *http.ServeMux, h *Handlers, roles middleware.RoleLookup, jwtSecret string) {
	// Public endpoints
	mux.HandleFunc("GET /api/v1/health", h.Health.ServeHealth)
	mux.HandleFunc("GET /api/v1/ready", h.Health.ServeReady)
	mux.HandleFunc("POST /api/v1/auth/login", h.Auth.Login)
	mux.HandleFunc("POST /api/v1/auth/refresh", h.Auth.Refresh)
	if h.Metrics != nil {
		mux.Handle("GET /metrics", h.Metrics)
	}

	authed := middleware.RequireAuth(jwtSecret)
	handle := func(pattern string, fn http.HandlerFunc) {
		mux.Handle(pattern, authed(fn))
	}
	member := func(pattern string, fn http.HandlerFunc) {
		mux.Handle(pattern, authed(middleware.RequireMember(roles)(fn)))
	}
	can := func(action policy.Action, pattern string, fn http.HandlerFunc) {
		mux.Handle(pattern, authed(middleware.RequireAction(roles, action)(fn)))
	}

	handle("POST /api/v1/auth/logout", h.Auth.Logout)
	handle("GET /api/v1/me/companies", h.Companies.MyCompanies)
	handle("GET /api/v1/me/primary-location", h.Companies.MyPrimaryLocation)
	handle("POST /api/v1/companies", h.Companies.Create)

	const c = "/api/v1/companies/{" + middleware.CompanyParam + "}"
	can(policy.ManageCompanySettings, "DELETE "+c, h.Companies.Delete)

	// Members
	member("GET "+c+"/members", h.Members.List)
	can(policy.ManageUsers, "POST "+c+"/members", h.Members.Add)
	can(policy.ManageUsers, "PATCH "+c+"/members/{userID}", h.Members.Update)
	can(policy.ManageUsers, "DELETE "+c+"/members/{userID}", h.Members.Remove)

	// Locations
	member("GET "+c+"/locations", h.Locations.List)
	can(policy.ManageLocations, "POST "+c+"/locations", h.Locations.Create)
	member("GET "+c+"/locations/stats", h.Locations.Stats)
	member("GET "+c+"/locations/{locationID}", h.Locations.Get)
	can(policy.ManageLocations, "PATCH "+c+"/locations/{locationID}", h.Locations.Update)
	can(policy.DeleteLocation, "DELETE "+c+"/locations/{locationID}", h.Locations.Delete)
	member("GET "+c+"/locations/{locationID}/assignments", h.Locations.Assignments)
	can(policy.ManageLocations, "POST "+c+"/locations/{locationID}/assignments", h.Locations.Assign)
	can(policy.ManageLocations, "DELETE "+c+"/locations/{locationID}/assignments/{userID}", h.Locations.Unassign)
	member("PUT "+c+"/locations/{locationID}/primary", h.Locations.SetPrimary)

	// Notification preferences
	member("GET "+c+"/notification-preferences", h.Preferences.List)
	member("PATCH "+c+"/notification-preferences", h.Preferences.BulkUpdate)
	member("PATCH "+c+"/notification-preferences/{type}", h.Preferences.Update)

	// Notifications
	member("GET "+c+"/notifications", h.Notifications.List)
	member("GET "+c+"/notifications/unread-count", h.Notifications.UnreadCount)
	member("POST "+c+"/notifications/read-all", h.Notifications.ReadAll)
	member("POST "+c+"/notifications/{notificationID}/read", h.Notifications.MarkRead)
	member("POST "+c+"/notifications/{notificationID}/unread", h.Notifications.MarkUnread)
	member("POST "+c+"/notifications/{notificationID}/dismiss", h.Notifications.Dismiss)
	can(policy.ViewAnalytics, "GET "+c+"/notifications/stats", h.Notifications.Stats)
	can(policy.ManageCompanySettings, "POST "+c+"/notifications/cleanup", h.Notifications.Cleanup(h.RetentionDays))

	// Domain events from collaborating services
	can(policy.ManageSurveys, "POST "+c+"/events/survey-available", h.Events.SurveyAvailable)
	can(policy.CreateAnnouncement, "POST "+c+"/events/announcement", h.Events.Announcement)
	can(policy.ManageCompanySettings, "POST "+c+"/events/goal-update", h.Events.GoalUpdate)

	// Catch-all 404
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
}
