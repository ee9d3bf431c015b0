package handler

import (
	"net/http"
	"strings"

	"github.com/d9705996/steward/internal/api/jsonapi"
	"github.com/d9705996/steward/internal/apperr"
	"github.com/d9705996/steward/internal/model"
	"github.com/d9705996/steward/internal/notify"
	"github.com/d9705996/steward/internal/worker"
)

// EventHandler accepts domain events from collaborating services (surveys,
// announcements, goals) and queues their notification fan-out.
type EventHandler struct {
	queue Enqueuer
}

// NewEventHandler creates an EventHandler.
func NewEventHandler(queue Enqueuer) *EventHandler {
	return &EventHandler{queue: queue}
}

type eventRequest struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

func (e eventRequest) validate() error {
	fields := map[string]string{}
	if strings.TrimSpace(e.ID) == "" {
		fields["id"] = "is required"
	}
	if strings.TrimSpace(e.Title) == "" {
		fields["title"] = "is required"
	}
	if len(fields) > 0 {
		return apperr.Validation(fields)
	}
	return nil
}

// SurveyAvailable handles POST .../events/survey-available.
func (h *EventHandler) SurveyAvailable(w http.ResponseWriter, r *http.Request) {
	h.accept(w, r, func(e eventRequest) worker.DispatchArgs {
		return worker.DispatchArgs{
			Type:   model.TypeSurveyAvailable,
			Survey: &notify.Survey{ID: e.ID, CompanyID: companyID(r), Title: e.Title},
		}
	})
}

// Announcement handles POST .../events/announcement.
func (h *EventHandler) Announcement(w http.ResponseWriter, r *http.Request) {
	h.accept(w, r, func(e eventRequest) worker.DispatchArgs {
		return worker.DispatchArgs{
			Type:         model.TypeAnnouncement,
			Announcement: &notify.Announcement{ID: e.ID, CompanyID: companyID(r), Title: e.Title},
		}
	})
}

// GoalUpdate handles POST .../events/goal-update.
func (h *EventHandler) GoalUpdate(w http.ResponseWriter, r *http.Request) {
	h.accept(w, r, func(e eventRequest) worker.DispatchArgs {
		return worker.DispatchArgs{
			Type: model.TypeGoalUpdate,
			Goal: &notify.Goal{ID: e.ID, CompanyID: companyID(r), Title: e.Title},
		}
	})
}

func (h *EventHandler) accept(w http.ResponseWriter, r *http.Request, build func(eventRequest) worker.DispatchArgs) {
	var req eventRequest
	if !decode(w, r, &req) {
		return
	}
	if err := req.validate(); err != nil {
		renderErr(w, err)
		return
	}
	args := build(req)
	if err := h.queue.EnqueueDispatch(r.Context(), args); err != nil {
		renderErr(w, err)
		return
	}
	jsonapi.Render(w, http.StatusAccepted, jsonapi.Document{
		Data: nil,
		Meta: jsonapi.Meta{"type": args.Type, "event_id": req.ID},
	})
}
