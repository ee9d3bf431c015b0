package handler

import (
	"time"

	"github.com/d9705996/steward/internal/api/jsonapi"
	"github.com/d9705996/steward/internal/company"
	"github.com/d9705996/steward/internal/location"
	"github.com/d9705996/steward/internal/membership"
	"github.com/d9705996/steward/internal/model"
	"github.com/d9705996/steward/internal/notify"
	"github.com/d9705996/steward/internal/policy"
	"github.com/d9705996/steward/internal/preference"
)

type companyAttrs struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Website     string      `json:"website"`
	Address     string      `json:"address"`
	Phone       string      `json:"phone"`
	Email       string      `json:"email"`
	Role        policy.Role `json:"role,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
}

func companyResource(c model.Company, role policy.Role) jsonapi.ResourceObject {
	return jsonapi.ResourceObject{
		Type: "companies",
		ID:   c.ID,
		Attributes: companyAttrs{
			Name:        c.Name,
			Description: c.Description,
			Website:     c.Website,
			Address:     c.Address,
			Phone:       c.Phone,
			Email:       c.Email,
			Role:        role,
			CreatedAt:   c.CreatedAt,
		},
	}
}

func companyMembershipResource(m company.Membership) jsonapi.ResourceObject {
	return companyResource(m.Company, m.Role)
}

type memberAttrs struct {
	Email    string      `json:"email"`
	Name     string      `json:"name"`
	Role     policy.Role `json:"role"`
	IsActive bool        `json:"is_active"`
	JoinedAt time.Time   `json:"joined_at"`
}

func memberResource(m membership.Member) jsonapi.ResourceObject {
	return jsonapi.ResourceObject{
		Type: "members",
		ID:   m.UserID,
		Attributes: memberAttrs{
			Email:    m.Email,
			Name:     m.Name,
			Role:     m.Role,
			IsActive: m.IsActive,
			JoinedAt: m.JoinedAt,
		},
	}
}

type userAttrs struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

func userResource(u model.User) jsonapi.ResourceObject {
	return jsonapi.ResourceObject{Type: "users", ID: u.ID, Attributes: userAttrs{Email: u.Email, Name: u.Name}}
}

type locationAttrs struct {
	CompanyID     string    `json:"company_id"`
	Name          string    `json:"name"`
	StreetAddress string    `json:"street_address"`
	City          string    `json:"city"`
	State         string    `json:"state"`
	PostalCode    string    `json:"postal_code"`
	Country       string    `json:"country"`
	Phone         string    `json:"phone"`
	Email         string    `json:"email"`
	Description   string    `json:"description"`
	IsActive      bool      `json:"is_active"`
	Latitude      *float64  `json:"latitude"`
	Longitude     *float64  `json:"longitude"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func locationResource(l model.Location) jsonapi.ResourceObject {
	return jsonapi.ResourceObject{
		Type: "locations",
		ID:   l.ID,
		Attributes: locationAttrs{
			CompanyID:     l.CompanyID,
			Name:          l.Name,
			StreetAddress: l.StreetAddress,
			City:          l.City,
			State:         l.State,
			PostalCode:    l.PostalCode,
			Country:       l.Country,
			Phone:         l.Phone,
			Email:         l.Email,
			Description:   l.Description,
			IsActive:      l.IsActive,
			Latitude:      l.Latitude,
			Longitude:     l.Longitude,
			CreatedAt:     l.CreatedAt,
			UpdatedAt:     l.UpdatedAt,
		},
	}
}

type assignmentAttrs struct {
	UserID     string    `json:"user_id"`
	LocationID string    `json:"location_id"`
	IsPrimary  bool      `json:"is_primary"`
	AssignedAt time.Time `json:"assigned_at"`
}

func assignmentResource(a model.LocationAssignment) jsonapi.ResourceObject {
	return jsonapi.ResourceObject{
		Type: "location_assignments",
		ID:   a.ID,
		Attributes: assignmentAttrs{
			UserID:     a.UserID,
			LocationID: a.LocationID,
			IsPrimary:  a.IsPrimary,
			AssignedAt: a.AssignedAt,
		},
	}
}

type locationStatsAttrs struct {
	TotalLocations          int64   `json:"total_locations"`
	ActiveLocations         int64   `json:"active_locations"`
	InactiveLocations       int64   `json:"inactive_locations"`
	LocationsWithUsers      int64   `json:"locations_with_users"`
	LocationsWithoutUsers   int64   `json:"locations_without_users"`
	TotalUsersAssigned      int64   `json:"total_users_assigned"`
	AverageUsersPerLocation float64 `json:"average_users_per_location"`
}

func locationStatsResource(companyID string, s location.Stats) jsonapi.ResourceObject {
	return jsonapi.ResourceObject{
		Type:       "location_stats",
		ID:         companyID,
		Attributes: locationStatsAttrs(s),
	}
}

type preferenceAttrs struct {
	NotificationType model.NotificationType `json:"notification_type"`
	Label            string                 `json:"label,omitempty"`
	Description      string                 `json:"description,omitempty"`
	EmailEnabled     bool                   `json:"email_enabled"`
	InAppEnabled     bool                   `json:"in_app_enabled"`
	PushEnabled      bool                   `json:"push_enabled"`
}

func preferenceResource(ts preference.TypeSettings) jsonapi.ResourceObject {
	return jsonapi.ResourceObject{
		Type: "notification_preferences",
		ID:   string(ts.Type),
		Attributes: preferenceAttrs{
			NotificationType: ts.Type,
			Label:            ts.Label,
			Description:      ts.Description,
			EmailEnabled:     ts.Email,
			InAppEnabled:     ts.InApp,
			PushEnabled:      ts.Push,
		},
	}
}

type notificationAttrs struct {
	CompanyID   string                   `json:"company_id"`
	Type        model.NotificationType   `json:"type"`
	Title       string                   `json:"title"`
	Message     string                   `json:"message"`
	Data        map[string]any           `json:"data,omitempty"`
	Status      model.NotificationStatus `json:"status"`
	ReadAt      *time.Time               `json:"read_at"`
	DismissedAt *time.Time               `json:"dismissed_at"`
	CreatedAt   time.Time                `json:"created_at"`
}

func notificationResource(n model.Notification) jsonapi.ResourceObject {
	return jsonapi.ResourceObject{
		Type: "notifications",
		ID:   n.ID,
		Attributes: notificationAttrs{
			CompanyID:   n.CompanyID,
			Type:        n.Type,
			Title:       n.Title,
			Message:     n.Message,
			Data:        n.Data,
			Status:      n.Status,
			ReadAt:      n.ReadAt,
			DismissedAt: n.DismissedAt,
			CreatedAt:   n.CreatedAt,
		},
	}
}

type notificationStatsAttrs struct {
	Total     int64                            `json:"total"`
	Unread    int64                            `json:"unread"`
	Read      int64                            `json:"read"`
	Dismissed int64                            `json:"dismissed"`
	Recent    int64                            `json:"recent"`
	ByType    map[model.NotificationType]int64 `json:"by_type,omitempty"`
}

func notificationStatsResource(companyID string, s notify.Stats) jsonapi.ResourceObject {
	return jsonapi.ResourceObject{
		Type:       "notification_stats",
		ID:         companyID,
		Attributes: notificationStatsAttrs(s),
	}
}
