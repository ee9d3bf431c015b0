// Package membership holds the many-to-many user<->company relation with a
// role and an active flag per pairing.
package membership

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/d9705996/steward/internal/apperr"
	"github.com/d9705996/steward/internal/db"
	"github.com/d9705996/steward/internal/model"
	"github.com/d9705996/steward/internal/policy"
	"gorm.io/gorm"
)

// Domain errors returned by the Store.
var (
	ErrAlreadyMember      = apperr.New(apperr.ErrAlreadyExists, "user is already an active member of this company")
	ErrNotAMember         = apperr.New(apperr.ErrNotFound, "user is not a member of this company")
	ErrMembershipConflict = apperr.New(apperr.ErrInvariantViolation, "concurrent membership change for this user and company")
	ErrInvalidRole        = apperr.InvalidField("role", "must be one of admin, manager, member, viewer")
)

// Store persists memberships. All mutations that check-then-write run in a
// single transaction; the partial unique index on active rows is the backstop.
type Store struct {
	db  *gorm.DB
	now func() time.Time
}

// NewStore creates a Store backed by the given GORM DB.
func NewStore(gdb *gorm.DB) *Store {
	return &Store{db: gdb, now: func() time.Time { return time.Now().UTC() }}
}

// AddMember creates an active membership for the user in the company.
func (s *Store) AddMember(ctx context.Context, userID, companyID string, role policy.Role) (*model.Membership, error) {
	if !role.Valid() {
		return nil, ErrInvalidRole
	}
	m := &model.Membership{
		UserID:    userID,
		CompanyID: companyID,
		Role:      role,
		IsActive:  true,
		JoinedAt:  s.now(),
	}
	err := db.Transaction(ctx, s.db, func(tx *gorm.DB) error {
		exists, err := activeExists(tx, userID, companyID)
		if err != nil {
			return err
		}
		if exists {
			return ErrAlreadyMember
		}
		return tx.Create(m).Error
	})
	switch {
	case err == nil:
		return m, nil
	case errors.Is(err, ErrAlreadyMember):
		return nil, err
	case db.IsUniqueViolation(err):
		return nil, ErrMembershipConflict
	default:
		return nil, fmt.Errorf("add member: %w", err)
	}
}

// RemoveMember detaches the user from the company by deleting the row.
func (s *Store) RemoveMember(ctx context.Context, userID, companyID string) error {
	res := s.db.WithContext(ctx).
		Where("user_id = ? AND company_id = ?", userID, companyID).
		Delete(&model.Membership{})
	if res.Error != nil {
		return fmt.Errorf("remove member: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotAMember
	}
	return nil
}

// UpdateRole changes the role of an active membership in place. joined_at is
// preserved.
func (s *Store) UpdateRole(ctx context.Context, userID, companyID string, role policy.Role) error {
	if !role.Valid() {
		return ErrInvalidRole
	}
	res := s.db.WithContext(ctx).Model(&model.Membership{}).
		Where("user_id = ? AND company_id = ? AND is_active = ?", userID, companyID, true).
		Updates(map[string]any{"role": role, "updated_at": s.now()})
	if res.Error != nil {
		return fmt.Errorf("update role: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotAMember
	}
	return nil
}

// SetActive suspends or resumes a membership. Resuming fails with
// ErrAlreadyMember when another active row already exists for the pair.
func (s *Store) SetActive(ctx context.Context, userID, companyID string, active bool) error {
	err := db.Transaction(ctx, s.db, func(tx *gorm.DB) error {
		var m model.Membership
		q := tx.Where("user_id = ? AND company_id = ?", userID, companyID)
		if active {
			exists, err := activeExists(tx, userID, companyID)
			if err != nil {
				return err
			}
			if exists {
				return ErrAlreadyMember
			}
			q = q.Where("is_active = ?", false)
		} else {
			q = q.Where("is_active = ?", true)
		}
		if err := q.Order("joined_at DESC").First(&m).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotAMember
			}
			return err
		}
		return tx.Model(&m).Updates(map[string]any{"is_active": active, "updated_at": s.now()}).Error
	})
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrAlreadyMember), errors.Is(err, ErrNotAMember):
		return err
	case db.IsUniqueViolation(err):
		return ErrMembershipConflict
	default:
		return fmt.Errorf("set membership active: %w", err)
	}
}

// GetRole returns the role of the user's active membership in the company.
// ok is false when the user is not an active member.
func (s *Store) GetRole(ctx context.Context, userID, companyID string) (role policy.Role, ok bool, err error) {
	var m model.Membership
	err = s.db.WithContext(ctx).
		Where("user_id = ? AND company_id = ? AND is_active = ?", userID, companyID, true).
		Order("joined_at ASC").
		First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return policy.RoleNone, false, nil
	}
	if err != nil {
		return policy.RoleNone, false, fmt.Errorf("get role: %w", err)
	}
	return m.Role, true, nil
}

// IsMember reports whether the user holds an active membership in the company.
func (s *Store) IsMember(ctx context.Context, userID, companyID string) (bool, error) {
	exists, err := activeExists(s.db.WithContext(ctx), userID, companyID)
	if err != nil {
		return false, fmt.Errorf("is member: %w", err)
	}
	return exists, nil
}

// ListByRole returns the active members of the company holding exactly role.
func (s *Store) ListByRole(ctx context.Context, companyID string, role policy.Role) ([]model.User, error) {
	if !role.Valid() {
		return nil, ErrInvalidRole
	}
	return s.members(ctx, companyID, &role)
}

// ActiveMembers returns every active member of the company.
func (s *Store) ActiveMembers(ctx context.Context, companyID string) ([]model.User, error) {
	return s.members(ctx, companyID, nil)
}

func (s *Store) members(ctx context.Context, companyID string, role *policy.Role) ([]model.User, error) {
	q := s.db.WithContext(ctx).Model(&model.User{}).
		Joins("JOIN memberships ON memberships.user_id = users.id").
		Where("memberships.company_id = ? AND memberships.is_active = ?", companyID, true)
	if role != nil {
		q = q.Where("memberships.role = ?", *role)
	}
	var users []model.User
	if err := q.Order("users.email ASC").Find(&users).Error; err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	return users, nil
}

// ListForUser returns every membership held by the user, active or not.
func (s *Store) ListForUser(ctx context.Context, userID string) ([]model.Membership, error) {
	var ms []model.Membership
	if err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("joined_at ASC").
		Find(&ms).Error; err != nil {
		return nil, fmt.Errorf("list memberships: %w", err)
	}
	return ms, nil
}

// Members returns the company's memberships joined with their users, for
// display.
func (s *Store) Members(ctx context.Context, companyID string) ([]Member, error) {
	var rows []Member
	err := s.db.WithContext(ctx).Model(&model.Membership{}).
		Select("memberships.user_id, users.email, users.name, memberships.role, memberships.is_active, memberships.joined_at").
		Joins("JOIN users ON users.id = memberships.user_id").
		Where("memberships.company_id = ?", companyID).
		Order("users.email ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list company members: %w", err)
	}
	return rows, nil
}

// Member is a membership row flattened with user details.
type Member struct {
	UserID   string
	Email    string
	Name     string
	Role     policy.Role
	IsActive bool
	JoinedAt time.Time
}

func activeExists(tx *gorm.DB, userID, companyID string) (bool, error) {
	var n int64
	err := tx.Model(&model.Membership{}).
		Where("user_id = ? AND company_id = ? AND is_active = ?", userID, companyID, true).
		Count(&n).Error
	return n > 0, err
}
