// Package company is the tenant registry.
package company

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/d9705996/steward/internal/apperr"
	"github.com/d9705996/steward/internal/db"
	"github.com/d9705996/steward/internal/model"
	"github.com/d9705996/steward/internal/policy"
	"gorm.io/gorm"
)

// ErrCompanyNotFound is returned when no company has the requested ID.
var ErrCompanyNotFound = apperr.New(apperr.ErrNotFound, "company not found")

// Input carries the writable company fields.
type Input struct {
	Name        string
	Description string
	Website     string
	Address     string
	Phone       string
	Email       string
}

// Service creates, lists and deletes companies.
type Service struct {
	db *gorm.DB
}

// NewService returns a Service backed by gdb.
func NewService(gdb *gorm.DB) *Service {
	return &Service{db: gdb}
}

// Create registers a company and makes creatorID its first admin.
func (s *Service) Create(ctx context.Context, creatorID string, in Input) (*model.Company, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, apperr.InvalidField("name", "is required")
	}
	c := &model.Company{
		Name:        name,
		Description: in.Description,
		Website:     in.Website,
		Address:     in.Address,
		Phone:       in.Phone,
		Email:       in.Email,
	}
	err := db.Transaction(ctx, s.db, func(tx *gorm.DB) error {
		if err := tx.Create(c).Error; err != nil {
			return fmt.Errorf("insert company: %w", err)
		}
		m := &model.Membership{
			UserID:    creatorID,
			CompanyID: c.ID,
			Role:      policy.RoleAdmin,
			IsActive:  true,
			JoinedAt:  time.Now().UTC(),
		}
		if err := tx.Create(m).Error; err != nil {
			return fmt.Errorf("insert creator membership: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Get returns the company by ID.
func (s *Service) Get(ctx context.Context, id string) (*model.Company, error) {
	var c model.Company
	err := s.db.WithContext(ctx).First(&c, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrCompanyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get company: %w", err)
	}
	return &c, nil
}

// Membership pairs a company with the caller's role in it.
type Membership struct {
	Company model.Company
	Role    policy.Role
}

// ListForUser returns the companies the user is an active member of.
func (s *Service) ListForUser(ctx context.Context, userID string) ([]Membership, error) {
	var rows []struct {
		model.Company
		Role policy.Role
	}
	err := s.db.WithContext(ctx).Model(&model.Company{}).
		Select("companies.*, memberships.role AS role").
		Joins("JOIN memberships ON memberships.company_id = companies.id").
		Where("memberships.user_id = ? AND memberships.is_active = ?", userID, true).
		Order("companies.name ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list companies: %w", err)
	}
	out := make([]Membership, len(rows))
	for i, r := range rows {
		out[i] = Membership{Company: r.Company, Role: r.Role}
	}
	return out, nil
}

// Delete removes the company and everything it owns in one transaction:
// notifications, preferences, location assignments, locations, memberships.
func (s *Service) Delete(ctx context.Context, id string) error {
	return db.Transaction(ctx, s.db, func(tx *gorm.DB) error {
		locations := tx.Model(&model.Location{}).Select("id").Where("company_id = ?", id)
		steps := []struct {
			what  string
			query *gorm.DB
			model any
		}{
			{"notifications", tx.Where("company_id = ?", id), &model.Notification{}},
			{"preferences", tx.Where("company_id = ?", id), &model.NotificationPreference{}},
			{"location assignments", tx.Where("location_id IN (?)", locations), &model.LocationAssignment{}},
			{"locations", tx.Where("company_id = ?", id), &model.Location{}},
			{"memberships", tx.Where("company_id = ?", id), &model.Membership{}},
		}
		for _, st := range steps {
			if err := st.query.Delete(st.model).Error; err != nil {
				return fmt.Errorf("delete company %s: %w", st.what, err)
			}
		}
		res := tx.Where("id = ?", id).Delete(&model.Company{})
		if res.Error != nil {
			return fmt.Errorf("delete company: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrCompanyNotFound
		}
		return nil
	})
}
