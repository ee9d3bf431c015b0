// Package preference resolves per-user, per-company notification channel
// settings. It is the single place that knows the channel defaults.
package preference

import (
	"context"
	"errors"
	"fmt"

	"github.com/d9705996/steward/internal/apperr"
	"github.com/d9705996/steward/internal/db"
	"github.com/d9705996/steward/internal/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Channel is a notification delivery mode.
type Channel string

// Delivery channels.
const (
	ChannelInApp Channel = "in_app"
	ChannelEmail Channel = "email"
	ChannelPush  Channel = "push"
)

// ErrUnknownType is returned for notification types outside model.NotificationTypes.
var ErrUnknownType = apperr.InvalidField("notification_type", "must be one of survey_available, announcement, location_assignment, goal_update")

// Settings is the effective channel configuration for one notification type.
type Settings struct {
	Email bool
	InApp bool
	Push  bool
}

// Defaults apply whenever no preference row exists.
var Defaults = Settings{Email: true, InApp: true, Push: false}

// Enabled reports the setting for ch. Unknown channels are disabled.
func (s Settings) Enabled(ch Channel) bool {
	switch ch {
	case ChannelInApp:
		return s.InApp
	case ChannelEmail:
		return s.Email
	case ChannelPush:
		return s.Push
	}
	return false
}

// Patch is a partial update; nil fields are left alone.
type Patch struct {
	Email *bool
	InApp *bool
	Push  *bool
}

// TypeSettings pairs a notification type's display text with its settings.
type TypeSettings struct {
	Type        model.NotificationType
	Label       string
	Description string
	Settings
}

var descriptions = map[model.NotificationType][2]string{
	model.TypeSurveyAvailable:    {"New Surveys", "Get notified when new surveys are available"},
	model.TypeAnnouncement:       {"Announcements", "Get notified about company announcements"},
	model.TypeLocationAssignment: {"Location Assignments", "Get notified when you are assigned to a location"},
	model.TypeGoalUpdate:         {"Goal Updates", "Get notified when company goals are updated"},
}

// Resolver reads and writes notification preferences.
type Resolver struct {
	db *gorm.DB
}

// NewResolver returns a Resolver backed by gdb.
func NewResolver(gdb *gorm.DB) *Resolver {
	return &Resolver{db: gdb}
}

// IsEnabled reports whether ch should fire for the user, company and type.
// A stored row is binding for every channel; without one the defaults apply.
func (r *Resolver) IsEnabled(ctx context.Context, userID, companyID string, typ model.NotificationType, ch Channel) (bool, error) {
	s, err := r.GetOrDefault(ctx, userID, companyID, typ)
	if err != nil {
		return false, err
	}
	return s.Enabled(ch), nil
}

// GetOrDefault returns the stored settings or the defaults. It never writes.
func (r *Resolver) GetOrDefault(ctx context.Context, userID, companyID string, typ model.NotificationType) (Settings, error) {
	if !typ.Valid() {
		return Settings{}, ErrUnknownType
	}
	p, err := r.find(r.db.WithContext(ctx), userID, companyID, typ)
	if err != nil {
		return Settings{}, err
	}
	if p == nil {
		return Defaults, nil
	}
	return fromRow(p), nil
}

// Upsert creates or updates the preference row in a single statement. Fields
// missing from the patch keep their stored value, or the default on insert.
func (r *Resolver) Upsert(ctx context.Context, userID, companyID string, typ model.NotificationType, patch Patch) (Settings, error) {
	if !typ.Valid() {
		return Settings{}, ErrUnknownType
	}
	return r.upsert(r.db.WithContext(ctx), userID, companyID, typ, patch)
}

// TypePatch is a Patch for one notification type.
type TypePatch struct {
	Type model.NotificationType
	Patch
}

// UpsertMany applies every patch in one transaction. An unknown type rejects
// the whole batch before anything is written.
func (r *Resolver) UpsertMany(ctx context.Context, userID, companyID string, patches []TypePatch) ([]TypeSettings, error) {
	if len(patches) == 0 {
		return nil, apperr.InvalidField("preferences", "at least one preference is required")
	}
	for _, p := range patches {
		if !p.Type.Valid() {
			return nil, ErrUnknownType
		}
	}
	out := make([]TypeSettings, 0, len(patches))
	err := db.Transaction(ctx, r.db, func(tx *gorm.DB) error {
		for _, p := range patches {
			s, err := r.upsert(tx, userID, companyID, p.Type, p.Patch)
			if err != nil {
				return err
			}
			out = append(out, describe(p.Type, s))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *Resolver) upsert(tx *gorm.DB, userID, companyID string, typ model.NotificationType, patch Patch) (Settings, error) {
	row := &model.NotificationPreference{
		UserID:           userID,
		CompanyID:        companyID,
		NotificationType: typ,
		EmailEnabled:     Defaults.Email,
		InAppEnabled:     Defaults.InApp,
		PushEnabled:      Defaults.Push,
	}
	var cols []string
	if patch.Email != nil {
		row.EmailEnabled = *patch.Email
		cols = append(cols, "email_enabled")
	}
	if patch.InApp != nil {
		row.InAppEnabled = *patch.InApp
		cols = append(cols, "in_app_enabled")
	}
	if patch.Push != nil {
		row.PushEnabled = *patch.Push
		cols = append(cols, "push_enabled")
	}

	onConflict := clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}, {Name: "company_id"}, {Name: "notification_type"}},
	}
	if len(cols) == 0 {
		onConflict.DoNothing = true
	} else {
		onConflict.DoUpdates = clause.AssignmentColumns(append(cols, "updated_at"))
	}

	if err := tx.Clauses(onConflict).Create(row).Error; err != nil {
		return Settings{}, fmt.Errorf("upsert preference: %w", err)
	}
	stored, err := r.find(tx, userID, companyID, typ)
	if err != nil {
		return Settings{}, err
	}
	if stored == nil {
		return Settings{}, errors.New("upsert preference: row missing after write")
	}
	return fromRow(stored), nil
}

// ListForCompany returns the effective settings for every notification type.
func (r *Resolver) ListForCompany(ctx context.Context, userID, companyID string) ([]TypeSettings, error) {
	var rows []model.NotificationPreference
	if err := r.db.WithContext(ctx).
		Where("user_id = ? AND company_id = ?", userID, companyID).
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list preferences: %w", err)
	}
	stored := make(map[model.NotificationType]Settings, len(rows))
	for i := range rows {
		stored[rows[i].NotificationType] = fromRow(&rows[i])
	}

	out := make([]TypeSettings, 0, len(descriptions))
	for _, typ := range model.NotificationTypes() {
		s, ok := stored[typ]
		if !ok {
			s = Defaults
		}
		out = append(out, describe(typ, s))
	}
	return out, nil
}

func describe(typ model.NotificationType, s Settings) TypeSettings {
	d := descriptions[typ]
	return TypeSettings{Type: typ, Label: d[0], Description: d[1], Settings: s}
}

func (r *Resolver) find(tx *gorm.DB, userID, companyID string, typ model.NotificationType) (*model.NotificationPreference, error) {
	var p model.NotificationPreference
	err := tx.Where("user_id = ? AND company_id = ? AND notification_type = ?", userID, companyID, typ).
		Take(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get preference: %w", err)
	}
	return &p, nil
}

func fromRow(p *model.NotificationPreference) Settings {
	return Settings{Email: p.EmailEnabled, InApp: p.InAppEnabled, Push: p.PushEnabled}
}
