// Package health exposes the /api/v1/health and /api/v1/ready HTTP handlers.
package health

import (
	"context"
	"net/http"
	"time"

	"github.com/d9705996/steward/internal/api/jsonapi"
	"github.com/d9705996/steward/internal/version"
)

// Pinger is implemented by anything that can check a downstream dependency.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Check is a named readiness dependency.
type Check struct {
	Name   string
	Pinger Pinger
}

// Handler holds dependencies for the health and ready endpoints.
type Handler struct {
	checks    []Check
	startTime time.Time
}

// New creates a Handler. /ready reports 503 until every check passes; a
// check with a nil Pinger counts as not yet initialised.
func New(checks ...Check) *Handler {
	return &Handler{checks: checks, startTime: time.Now()}
}

// healthAttrs is the JSON:API attributes payload for the health response.
type healthAttrs struct {
	Status        string `json:"status"`
	Version       string `json:"version"`
	Commit        string `json:"commit"`
	BuildDate     string `json:"build_date"`
	UptimeSeconds int64  `json:"uptime_seconds"`
}

// ServeHealth handles GET /api/v1/health.
func (h *Handler) ServeHealth(w http.ResponseWriter, _ *http.Request) {
	jsonapi.RenderOne(w, http.StatusOK, jsonapi.ResourceObject{
		Type: "health",
		ID:   "1",
		Attributes: healthAttrs{
			Status:        "ok",
			Version:       version.Version,
			Commit:        version.Commit,
			BuildDate:     version.Date,
			UptimeSeconds: int64(time.Since(h.startTime).Seconds()),
		},
	})
}

// ServeReady handles GET /api/v1/ready.
func (h *Handler) ServeReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	var errs []jsonapi.ErrorObject
	for _, c := range h.checks {
		detail := ""
		if c.Pinger == nil {
			detail = c.Name + " is not initialised"
		} else if err := c.Pinger.Ping(ctx); err != nil {
			detail = c.Name + " is unreachable: " + err.Error()
		}
		if detail != "" {
			errs = append(errs, jsonapi.ErrorObject{
				Status: http.StatusText(http.StatusServiceUnavailable),
				Code:   "dependency_unavailable",
				Title:  "Service Unavailable",
				Detail: detail,
				Source: &jsonapi.ErrorSource{Parameter: c.Name},
			})
		}
	}
	if len(h.checks) == 0 {
		errs = append(errs, jsonapi.ErrorObject{
			Status: http.StatusText(http.StatusServiceUnavailable),
			Code:   "dependency_unavailable",
			Title:  "Service Unavailable",
			Detail: "no readiness checks are registered",
		})
	}
	if len(errs) > 0 {
		jsonapi.RenderErrors(w, http.StatusServiceUnavailable, errs)
		return
	}

	jsonapi.RenderOne(w, http.StatusOK, jsonapi.ResourceObject{
		Type:       "ready",
		ID:         "1",
		Attributes: map[string]string{"status": "ok"},
	})
}
