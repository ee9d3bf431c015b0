// Package model contains GORM model definitions shared across packages.
// All models are driver-agnostic: they work with both PostgreSQL and SQLite.
// Postgres schema lives in internal/db/migrations and must be kept in sync.
package model

import (
	"time"

	"github.com/d9705996/steward/internal/policy"
	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

func newID(id *string) {
	if *id == "" {
		*id = uuid.New().String()
	}
}

// User is an identity. Deleting one cascades through account.Service.Delete.
type User struct {
	ID            string `gorm:"type:text;primaryKey"`
	Email         string `gorm:"type:text;not null;uniqueIndex"`
	Name          string `gorm:"type:text;not null;default:''"`
	PasswordHash  string `gorm:"type:text;not null;default:''"`
	DeactivatedAt *time.Time
	CreatedAt     time.Time `gorm:"not null"`
	UpdatedAt     time.Time `gorm:"not null"`
}

// BeforeCreate generates a UUID primary key if not set.
func (u *User) BeforeCreate(_ *gorm.DB) error {
	newID(&u.ID)
	return nil
}

// Company is the tenant boundary.
type Company struct {
	ID          string    `gorm:"type:text;primaryKey"`
	Name        string    `gorm:"type:text;not null"`
	Description string    `gorm:"type:text;not null;default:''"`
	Website     string    `gorm:"type:text;not null;default:''"`
	Address     string    `gorm:"type:text;not null;default:''"`
	Phone       string    `gorm:"type:text;not null;default:''"`
	Email       string    `gorm:"type:text;not null;default:''"`
	CreatedAt   time.Time `gorm:"not null"`
	UpdatedAt   time.Time `gorm:"not null"`
}

// BeforeCreate generates a UUID primary key if not set.
func (c *Company) BeforeCreate(_ *gorm.DB) error {
	newID(&c.ID)
	return nil
}

// Membership is the user<->company pairing. At most one active row exists per
// (user, company); the partial unique index backs that up under concurrency.
type Membership struct {
	ID        string      `gorm:"type:text;primaryKey"`
	UserID    string      `gorm:"type:text;not null;uniqueIndex:idx_memberships_active,where:is_active = true;index"`
	CompanyID string      `gorm:"type:text;not null;uniqueIndex:idx_memberships_active,where:is_active = true;index"`
	Role      policy.Role `gorm:"type:text;not null"`
	IsActive  bool        `gorm:"not null"`
	JoinedAt  time.Time   `gorm:"not null"`
	UpdatedAt time.Time   `gorm:"not null"`
}

// BeforeCreate generates a UUID primary key if not set.
func (m *Membership) BeforeCreate(_ *gorm.DB) error {
	newID(&m.ID)
	return nil
}

// Location belongs to exactly one company.
type Location struct {
	ID            string   `gorm:"type:text;primaryKey"`
	CompanyID     string   `gorm:"type:text;not null;index"`
	Name          string   `gorm:"type:text;not null"`
	StreetAddress string   `gorm:"type:text;not null;default:''"`
	City          string   `gorm:"type:text;not null;default:''"`
	State         string   `gorm:"type:text;not null;default:''"`
	PostalCode    string   `gorm:"type:text;not null;default:''"`
	Country       string   `gorm:"type:text;not null;default:''"`
	Phone         string   `gorm:"type:text;not null;default:''"`
	Email         string   `gorm:"type:text;not null;default:''"`
	Description   string   `gorm:"type:text;not null;default:''"`
	IsActive      bool     `gorm:"not null"`
	Latitude      *float64 `gorm:"type:numeric"`
	Longitude     *float64 `gorm:"type:numeric"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// BeforeCreate generates a UUID primary key if not set.
func (l *Location) BeforeCreate(_ *gorm.DB) error {
	newID(&l.ID)
	return nil
}

// LocationAssignment pairs a user with a location. A user holds at most one
// primary assignment across all companies.
type LocationAssignment struct {
	ID         string    `gorm:"type:text;primaryKey"`
	UserID     string    `gorm:"type:text;not null;uniqueIndex:idx_assignments_user_location;uniqueIndex:idx_assignments_one_primary,where:is_primary = true"`
	LocationID string    `gorm:"type:text;not null;uniqueIndex:idx_assignments_user_location;index"`
	IsPrimary  bool      `gorm:"not null;default:false"`
	AssignedAt time.Time `gorm:"not null"`
}

// BeforeCreate generates a UUID primary key if not set.
func (a *LocationAssignment) BeforeCreate(_ *gorm.DB) error {
	newID(&a.ID)
	return nil
}

// NotificationType identifies the domain event a notification is about.
type NotificationType string

// Notification types.
const (
	TypeSurveyAvailable    NotificationType = "survey_available"
	TypeAnnouncement       NotificationType = "announcement"
	TypeLocationAssignment NotificationType = "location_assignment"
	TypeGoalUpdate         NotificationType = "goal_update"
)

// NotificationTypes returns every notification type in display order.
func NotificationTypes() []NotificationType {
	return []NotificationType{TypeSurveyAvailable, TypeAnnouncement, TypeLocationAssignment, TypeGoalUpdate}
}

// Valid reports whether t is a known notification type.
func (t NotificationType) Valid() bool {
	switch t {
	case TypeSurveyAvailable, TypeAnnouncement, TypeLocationAssignment, TypeGoalUpdate:
		return true
	}
	return false
}

// NotificationPreference stores per-channel opt-ins. A missing row means
// "use channel defaults", see package preference.
type NotificationPreference struct {
	ID               string           `gorm:"type:text;primaryKey"`
	UserID           string           `gorm:"type:text;not null;uniqueIndex:idx_preferences_user_company_type"`
	CompanyID        string           `gorm:"type:text;not null;uniqueIndex:idx_preferences_user_company_type"`
	NotificationType NotificationType `gorm:"type:text;not null;uniqueIndex:idx_preferences_user_company_type"`
	EmailEnabled     bool             `gorm:"not null"`
	InAppEnabled     bool             `gorm:"not null"`
	PushEnabled      bool             `gorm:"not null"`
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// BeforeCreate generates a UUID primary key if not set.
func (p *NotificationPreference) BeforeCreate(_ *gorm.DB) error {
	newID(&p.ID)
	return nil
}

// NotificationStatus is the lifecycle state of a notification.
type NotificationStatus string

// Notification statuses.
const (
	StatusUnread    NotificationStatus = "unread"
	StatusRead      NotificationStatus = "read"
	StatusDismissed NotificationStatus = "dismissed"
)

// Valid reports whether s is a known status.
func (s NotificationStatus) Valid() bool {
	switch s {
	case StatusUnread, StatusRead, StatusDismissed:
		return true
	}
	return false
}

// Notification is an in-app message for one user in one company.
type Notification struct {
	ID          string             `gorm:"type:text;primaryKey"`
	UserID      string             `gorm:"type:text;not null;index:idx_notifications_user_status"`
	CompanyID   string             `gorm:"type:text;not null;index:idx_notifications_company_type"`
	Type        NotificationType   `gorm:"type:text;not null;index:idx_notifications_company_type"`
	Title       string             `gorm:"type:text;not null"`
	Message     string             `gorm:"type:text;not null"`
	Data        datatypes.JSONMap
	Status      NotificationStatus `gorm:"type:text;not null;default:'unread';index:idx_notifications_user_status"`
	ReadAt      *time.Time
	DismissedAt *time.Time
	CreatedAt   time.Time `gorm:"not null;index"`
	UpdatedAt   time.Time `gorm:"not null"`
}

// BeforeCreate generates a UUID primary key if not set.
func (n *Notification) BeforeCreate(_ *gorm.DB) error {
	newID(&n.ID)
	return nil
}

// RefreshToken is the GORM model for the refresh_tokens table.
type RefreshToken struct {
	ID        string    `gorm:"type:text;primaryKey"`
	UserID    string    `gorm:"type:text;not null;index"`
	TokenHash string    `gorm:"type:text;not null;uniqueIndex"`
	ExpiresAt time.Time `gorm:"not null"`
	RevokedAt *time.Time
	CreatedAt time.Time `gorm:"not null"`
}

// BeforeCreate generates a UUID primary key if not set.
func (rt *RefreshToken) BeforeCreate(_ *gorm.DB) error {
	newID(&rt.ID)
	return nil
}

// All returns every model in migration order.
func All() []any {
	return []any{
		&User{},
		&Company{},
		&Membership{},
		&Location{},
		&LocationAssignment{},
		&NotificationPreference{},
		&Notification{},
		&RefreshToken{},
	}
}
