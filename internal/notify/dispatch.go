// Package notify turns domain events into in-app notifications and manages
// the notification lifecycle.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/d9705996/steward/internal/apperr"
	"github.com/d9705996/steward/internal/model"
	"github.com/d9705996/steward/internal/preference"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const instrumentationName = "github.com/d9705996/steward/internal/notify"

// Lookup errors returned before any notification is created.
var (
	ErrCompanyNotFound  = apperr.New(apperr.ErrNotFound, "company not found")
	ErrLocationNotFound = apperr.New(apperr.ErrNotFound, "location not found")
)

// Survey is the slice of a survey the dispatcher needs.
type Survey struct {
	ID        string `json:"id"`
	CompanyID string `json:"company_id"`
	Title     string `json:"title"`
}

// Announcement is the slice of an announcement the dispatcher needs.
type Announcement struct {
	ID        string `json:"id"`
	CompanyID string `json:"company_id"`
	Title     string `json:"title"`
}

// Goal is the slice of a company goal the dispatcher needs.
type Goal struct {
	ID        string `json:"id"`
	CompanyID string `json:"company_id"`
	Title     string `json:"title"`
}

// Result counts the outcome of one dispatch.
type Result struct {
	Created int
	Skipped int // recipient opted out of in-app delivery
	Failed  int
}

// Audience enumerates the active members of a company.
type Audience interface {
	ActiveMembers(ctx context.Context, companyID string) ([]model.User, error)
}

// Preferences decides whether a channel should fire.
type Preferences interface {
	IsEnabled(ctx context.Context, userID, companyID string, typ model.NotificationType, ch preference.Channel) (bool, error)
}

// Dispatcher creates notifications for domain events. Delivery is best
// effort: a failure for one recipient is logged and counted, and the rest of
// the audience is still processed.
type Dispatcher struct {
	db       *gorm.DB
	audience Audience
	prefs    Preferences
	log      *slog.Logger
	tracer   trace.Tracer
	created  metric.Int64Counter
	skipped  metric.Int64Counter
	failed   metric.Int64Counter
}

// NewDispatcher wires a Dispatcher. Instruments come from the global OTel
// providers installed by package observability.
func NewDispatcher(gdb *gorm.DB, audience Audience, prefs Preferences, log *slog.Logger) (*Dispatcher, error) {
	meter := otel.Meter(instrumentationName)
	created, err := meter.Int64Counter("steward.notifications.created",
		metric.WithDescription("Notifications created by dispatch"))
	if err != nil {
		return nil, fmt.Errorf("create counter: %w", err)
	}
	skipped, err := meter.Int64Counter("steward.notifications.skipped",
		metric.WithDescription("Recipients skipped because in-app delivery is disabled"))
	if err != nil {
		return nil, fmt.Errorf("create counter: %w", err)
	}
	failed, err := meter.Int64Counter("steward.notifications.failed",
		metric.WithDescription("Recipients for which dispatch failed"))
	if err != nil {
		return nil, fmt.Errorf("create counter: %w", err)
	}
	return &Dispatcher{
		db:       gdb,
		audience: audience,
		prefs:    prefs,
		log:      log,
		tracer:   otel.Tracer(instrumentationName),
		created:  created,
		skipped:  skipped,
		failed:   failed,
	}, nil
}

// DispatchSurveyAvailable notifies every active member of the survey's company.
func (d *Dispatcher) DispatchSurveyAvailable(ctx context.Context, s Survey) (Result, error) {
	company, err := d.company(ctx, s.CompanyID)
	if err != nil {
		return Result{}, err
	}
	return d.toCompany(ctx, company, SurveyAvailable(s, company.Name))
}

// DispatchAnnouncement notifies every active member of the announcement's company.
func (d *Dispatcher) DispatchAnnouncement(ctx context.Context, a Announcement) (Result, error) {
	company, err := d.company(ctx, a.CompanyID)
	if err != nil {
		return Result{}, err
	}
	return d.toCompany(ctx, company, AnnouncementPosted(a, company.Name))
}

// DispatchGoalUpdate notifies every active member of the goal's company.
func (d *Dispatcher) DispatchGoalUpdate(ctx context.Context, g Goal) (Result, error) {
	company, err := d.company(ctx, g.CompanyID)
	if err != nil {
		return Result{}, err
	}
	return d.toCompany(ctx, company, GoalUpdated(g, company.Name))
}

// DispatchLocationAssignment notifies a single user about a new assignment.
func (d *Dispatcher) DispatchLocationAssignment(ctx context.Context, userID, locationID string) (Result, error) {
	var loc model.Location
	err := d.db.WithContext(ctx).First(&loc, "id = ?", locationID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Result{}, ErrLocationNotFound
	}
	if err != nil {
		return Result{}, fmt.Errorf("load location: %w", err)
	}
	company, err := d.company(ctx, loc.CompanyID)
	if err != nil {
		return Result{}, err
	}
	msg := LocationAssigned(loc, company.Name)
	return d.deliver(ctx, company.ID, msg, []string{userID}), nil
}

func (d *Dispatcher) company(ctx context.Context, id string) (*model.Company, error) {
	var c model.Company
	err := d.db.WithContext(ctx).First(&c, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrCompanyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load company: %w", err)
	}
	return &c, nil
}

func (d *Dispatcher) toCompany(ctx context.Context, company *model.Company, msg Message) (Result, error) {
	users, err := d.audience.ActiveMembers(ctx, company.ID)
	if err != nil {
		return Result{}, fmt.Errorf("list audience: %w", err)
	}
	ids := make([]string, len(users))
	for i := range users {
		ids[i] = users[i].ID
	}
	return d.deliver(ctx, company.ID, msg, ids), nil
}

func (d *Dispatcher) deliver(ctx context.Context, companyID string, msg Message, userIDs []string) Result {
	ctx, span := d.tracer.Start(ctx, "notify.dispatch", trace.WithAttributes(
		attribute.String("notification.type", string(msg.Type)),
		attribute.String("company.id", companyID),
		attribute.Int("audience.size", len(userIDs)),
	))
	defer span.End()

	typeAttr := metric.WithAttributes(attribute.String("type", string(msg.Type)))
	var res Result
	for _, uid := range userIDs {
		ok, err := d.prefs.IsEnabled(ctx, uid, companyID, msg.Type, preference.ChannelInApp)
		if err != nil {
			res.Failed++
			d.failed.Add(ctx, 1, typeAttr)
			d.log.Error("resolve notification preference", "user_id", uid, "company_id", companyID, "type", msg.Type, "err", err)
			continue
		}
		if !ok {
			res.Skipped++
			d.skipped.Add(ctx, 1, typeAttr)
			continue
		}
		n := &model.Notification{
			UserID:    uid,
			CompanyID: companyID,
			Type:      msg.Type,
			Title:     msg.Title,
			Message:   msg.Body,
			Data:      msg.Data,
			Status:    model.StatusUnread,
		}
		if err := d.db.WithContext(ctx).Create(n).Error; err != nil {
			res.Failed++
			d.failed.Add(ctx, 1, typeAttr)
			d.log.Error("create notification", "user_id", uid, "company_id", companyID, "type", msg.Type, "err", err)
			continue
		}
		res.Created++
		d.created.Add(ctx, 1, typeAttr)
	}

	span.SetAttributes(
		attribute.Int("notifications.created", res.Created),
		attribute.Int("notifications.skipped", res.Skipped),
		attribute.Int("notifications.failed", res.Failed),
	)
	if res.Failed > 0 {
		span.SetStatus(codes.Error, "partial dispatch failure")
	}
	d.log.Info("notifications dispatched",
		"type", msg.Type, "company_id", companyID,
		"created", res.Created, "skipped", res.Skipped, "failed", res.Failed)
	return res
}

// Message is a rendered notification template.
type Message struct {
	Type  model.NotificationType
	Title string
	Body  string
	Data  datatypes.JSONMap
}

// SurveyAvailable renders the survey_available template.
func SurveyAvailable(s Survey, companyName string) Message {
	return Message{
		Type:  model.TypeSurveyAvailable,
		Title: "New Survey Available",
		Body:  fmt.Sprintf("A new survey '%s' is now available in %s. Please take a moment to complete it.", s.Title, companyName),
		Data: datatypes.JSONMap{
			"survey_id":    s.ID,
			"survey_title": s.Title,
			"company_name": companyName,
		},
	}
}

// AnnouncementPosted renders the announcement template.
func AnnouncementPosted(a Announcement, companyName string) Message {
	return Message{
		Type:  model.TypeAnnouncement,
		Title: "New Announcement",
		Body:  "New announcement: " + a.Title,
		Data: datatypes.JSONMap{
			"announcement_id":    a.ID,
			"announcement_title": a.Title,
			"company_name":       companyName,
		},
	}
}

// LocationAssigned renders the location_assignment template.
func LocationAssigned(l model.Location, companyName string) Message {
	return Message{
		Type:  model.TypeLocationAssignment,
		Title: "Location Assignment",
		Body:  fmt.Sprintf("You have been assigned to %s in %s.", l.Name, companyName),
		Data: datatypes.JSONMap{
			"location_id":   l.ID,
			"location_name": l.Name,
			"company_name":  companyName,
		},
	}
}

// GoalUpdated renders the goal_update template.
func GoalUpdated(g Goal, companyName string) Message {
	return Message{
		Type:  model.TypeGoalUpdate,
		Title: "Goal Update",
		Body:  fmt.Sprintf("Goal '%s' has been updated in %s.", g.Title, companyName),
		Data: datatypes.JSONMap{
			"goal_id":      g.ID,
			"goal_title":   g.Title,
			"company_name": companyName,
		},
	}
}
