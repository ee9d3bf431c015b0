// Package location manages company locations and the user<->location
// assignments, including the per-user primary location.
package location

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/mail"
	"strings"
	"time"

	"github.com/d9705996/steward/internal/apperr"
	"github.com/d9705996/steward/internal/db"
	"github.com/d9705996/steward/internal/model"
	"gorm.io/gorm"
)

// Domain errors returned by the Manager.
var (
	ErrLocationNotFound = apperr.New(apperr.ErrNotFound, "location not found")
	ErrNotCompanyMember = apperr.New(apperr.ErrNotFound, "user is not an active member of the location's company")
	ErrAlreadyAssigned  = apperr.New(apperr.ErrAlreadyExists, "user is already assigned to this location")
	ErrNotAssigned      = apperr.New(apperr.ErrNotFound, "user is not assigned to this location")
	ErrLocationHasUsers = apperr.New(apperr.ErrInvariantViolation, "cannot delete location with assigned users; reassign users first")
	ErrPrimaryConflict  = apperr.New(apperr.ErrInvariantViolation, "concurrent primary location change for this user")
)

// MembershipChecker reports active company membership.
type MembershipChecker interface {
	IsMember(ctx context.Context, userID, companyID string) (bool, error)
}

// Manager owns locations and their assignments.
type Manager struct {
	db      *gorm.DB
	members MembershipChecker
	now     func() time.Time
}

// NewManager returns a Manager. members is consulted by Assign.
func NewManager(gdb *gorm.DB, members MembershipChecker) *Manager {
	return &Manager{db: gdb, members: members, now: func() time.Time { return time.Now().UTC() }}
}

// Input carries the writable location fields. Nil pointers leave the current
// value unchanged on Update.
type Input struct {
	Name          *string
	StreetAddress *string
	City          *string
	State         *string
	PostalCode    *string
	Country       *string
	Phone         *string
	Email         *string
	Description   *string
	IsActive      *bool
	Latitude      *float64
	Longitude     *float64
}

func (in Input) validate(creating bool) error {
	fields := map[string]string{}
	if creating && in.Name == nil {
		fields["name"] = "is required"
	}
	if in.Name != nil {
		switch n := strings.TrimSpace(*in.Name); {
		case n == "":
			fields["name"] = "is required"
		case len(n) > 255:
			fields["name"] = "must be at most 255 characters"
		}
	}
	if in.Email != nil && *in.Email != "" {
		if _, err := mail.ParseAddress(*in.Email); err != nil {
			fields["email"] = "must be a valid email address"
		}
	}
	if in.Latitude != nil && (math.IsNaN(*in.Latitude) || *in.Latitude < -90 || *in.Latitude > 90) {
		fields["latitude"] = "must be between -90 and 90"
	}
	if in.Longitude != nil && (math.IsNaN(*in.Longitude) || *in.Longitude < -180 || *in.Longitude > 180) {
		fields["longitude"] = "must be between -180 and 180"
	}
	if len(fields) > 0 {
		return apperr.Validation(fields)
	}
	return nil
}

func (in Input) apply(l *model.Location) {
	set := func(dst *string, src *string) {
		if src != nil {
			*dst = strings.TrimSpace(*src)
		}
	}
	set(&l.Name, in.Name)
	set(&l.StreetAddress, in.StreetAddress)
	set(&l.City, in.City)
	set(&l.State, in.State)
	set(&l.PostalCode, in.PostalCode)
	set(&l.Country, in.Country)
	set(&l.Phone, in.Phone)
	set(&l.Email, in.Email)
	set(&l.Description, in.Description)
	if in.IsActive != nil {
		l.IsActive = *in.IsActive
	}
	if in.Latitude != nil {
		l.Latitude = in.Latitude
	}
	if in.Longitude != nil {
		l.Longitude = in.Longitude
	}
}

// Create adds a location to the company. Locations are active unless the
// input says otherwise.
func (m *Manager) Create(ctx context.Context, companyID string, in Input) (*model.Location, error) {
	if err := in.validate(true); err != nil {
		return nil, err
	}
	l := &model.Location{CompanyID: companyID, IsActive: true}
	in.apply(l)
	if err := m.db.WithContext(ctx).Create(l).Error; err != nil {
		return nil, fmt.Errorf("create location: %w", err)
	}
	return l, nil
}

// Update applies the non-nil fields of in to the location.
func (m *Manager) Update(ctx context.Context, locationID string, in Input) (*model.Location, error) {
	if err := in.validate(false); err != nil {
		return nil, err
	}
	l, err := m.Get(ctx, locationID)
	if err != nil {
		return nil, err
	}
	in.apply(l)
	if err := m.db.WithContext(ctx).Save(l).Error; err != nil {
		return nil, fmt.Errorf("update location: %w", err)
	}
	return l, nil
}

// Get returns the location by ID.
func (m *Manager) Get(ctx context.Context, locationID string) (*model.Location, error) {
	var l model.Location
	err := m.db.WithContext(ctx).First(&l, "id = ?", locationID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrLocationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get location: %w", err)
	}
	return &l, nil
}

// ListForCompany returns the company's locations ordered by name.
func (m *Manager) ListForCompany(ctx context.Context, companyID string, activeOnly bool) ([]model.Location, error) {
	q := m.db.WithContext(ctx).Where("company_id = ?", companyID)
	if activeOnly {
		q = q.Where("is_active = ?", true)
	}
	var ls []model.Location
	if err := q.Order("name ASC").Find(&ls).Error; err != nil {
		return nil, fmt.Errorf("list locations: %w", err)
	}
	return ls, nil
}

// Assign attaches the user to the location. With isPrimary the user's other
// assignments lose their primary flag in the same transaction.
func (m *Manager) Assign(ctx context.Context, userID, locationID string, isPrimary bool) (*model.LocationAssignment, error) {
	l, err := m.Get(ctx, locationID)
	if err != nil {
		return nil, err
	}
	ok, err := m.members.IsMember(ctx, userID, l.CompanyID)
	if err != nil {
		return nil, fmt.Errorf("check membership: %w", err)
	}
	if !ok {
		return nil, ErrNotCompanyMember
	}

	a := &model.LocationAssignment{
		UserID:     userID,
		LocationID: locationID,
		IsPrimary:  isPrimary,
		AssignedAt: m.now(),
	}
	err = db.Transaction(ctx, m.db, func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&model.LocationAssignment{}).
			Where("user_id = ? AND location_id = ?", userID, locationID).
			Count(&n).Error; err != nil {
			return err
		}
		if n > 0 {
			return ErrAlreadyAssigned
		}
		if isPrimary {
			if err := clearPrimary(tx, userID); err != nil {
				return err
			}
		}
		return tx.Create(a).Error
	})
	switch {
	case err == nil:
		return a, nil
	case errors.Is(err, ErrAlreadyAssigned):
		return nil, err
	case db.IsUniqueViolation(err):
		if isPrimary {
			return nil, ErrPrimaryConflict
		}
		return nil, ErrAlreadyAssigned
	default:
		return nil, fmt.Errorf("assign location: %w", err)
	}
}

// Unassign detaches the user from the location. Removing the primary
// assignment leaves the user without a primary location.
func (m *Manager) Unassign(ctx context.Context, userID, locationID string) error {
	res := m.db.WithContext(ctx).
		Where("user_id = ? AND location_id = ?", userID, locationID).
		Delete(&model.LocationAssignment{})
	if res.Error != nil {
		return fmt.Errorf("unassign location: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotAssigned
	}
	return nil
}

// SetPrimary makes the location the user's single primary location.
func (m *Manager) SetPrimary(ctx context.Context, userID, locationID string) error {
	err := db.Transaction(ctx, m.db, func(tx *gorm.DB) error {
		var a model.LocationAssignment
		err := tx.Where("user_id = ? AND location_id = ?", userID, locationID).First(&a).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotAssigned
		}
		if err != nil {
			return err
		}
		if err := clearPrimary(tx, userID); err != nil {
			return err
		}
		return tx.Model(&model.LocationAssignment{}).
			Where("id = ?", a.ID).
			Update("is_primary", true).Error
	})
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrNotAssigned):
		return err
	case db.IsUniqueViolation(err):
		return ErrPrimaryConflict
	default:
		return fmt.Errorf("set primary location: %w", err)
	}
}

// GetPrimary returns the user's primary location, or nil when there is none.
func (m *Manager) GetPrimary(ctx context.Context, userID string) (*model.Location, error) {
	var l model.Location
	err := m.db.WithContext(ctx).
		Joins("JOIN location_assignments ON location_assignments.location_id = locations.id").
		Where("location_assignments.user_id = ? AND location_assignments.is_primary = ?", userID, true).
		First(&l).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get primary location: %w", err)
	}
	return &l, nil
}

// Assignments returns the location's assignments ordered by assignment time.
func (m *Manager) Assignments(ctx context.Context, locationID string) ([]model.LocationAssignment, error) {
	var as []model.LocationAssignment
	if err := m.db.WithContext(ctx).
		Where("location_id = ?", locationID).
		Order("assigned_at ASC").
		Find(&as).Error; err != nil {
		return nil, fmt.Errorf("list assignments: %w", err)
	}
	return as, nil
}

// Delete removes a location that has no assigned users.
func (m *Manager) Delete(ctx context.Context, locationID string) error {
	return db.Transaction(ctx, m.db, func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&model.LocationAssignment{}).
			Where("location_id = ?", locationID).
			Count(&n).Error; err != nil {
			return fmt.Errorf("count assignments: %w", err)
		}
		if n > 0 {
			return ErrLocationHasUsers
		}
		res := tx.Where("id = ?", locationID).Delete(&model.Location{})
		if res.Error != nil {
			return fmt.Errorf("delete location: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrLocationNotFound
		}
		return nil
	})
}

// Stats summarises a company's locations.
type Stats struct {
	TotalLocations          int64
	ActiveLocations         int64
	InactiveLocations       int64
	LocationsWithUsers      int64
	LocationsWithoutUsers   int64
	TotalUsersAssigned      int64
	AverageUsersPerLocation float64
}

// Stats computes location statistics for the company.
func (m *Manager) Stats(ctx context.Context, companyID string) (Stats, error) {
	var s Stats
	q := m.db.WithContext(ctx)
	if err := q.Model(&model.Location{}).Where("company_id = ?", companyID).
		Count(&s.TotalLocations).Error; err != nil {
		return Stats{}, fmt.Errorf("count locations: %w", err)
	}
	if err := q.Model(&model.Location{}).Where("company_id = ? AND is_active = ?", companyID, true).
		Count(&s.ActiveLocations).Error; err != nil {
		return Stats{}, fmt.Errorf("count active locations: %w", err)
	}
	assigned := q.Model(&model.LocationAssignment{}).
		Joins("JOIN locations ON locations.id = location_assignments.location_id").
		Where("locations.company_id = ?", companyID)
	if err := assigned.Session(&gorm.Session{}).
		Distinct("location_assignments.location_id").
		Count(&s.LocationsWithUsers).Error; err != nil {
		return Stats{}, fmt.Errorf("count occupied locations: %w", err)
	}
	if err := assigned.Session(&gorm.Session{}).
		Count(&s.TotalUsersAssigned).Error; err != nil {
		return Stats{}, fmt.Errorf("count assignments: %w", err)
	}
	s.InactiveLocations = s.TotalLocations - s.ActiveLocations
	s.LocationsWithoutUsers = s.TotalLocations - s.LocationsWithUsers
	if s.TotalLocations > 0 {
		s.AverageUsersPerLocation = math.Round(float64(s.TotalUsersAssigned)/float64(s.TotalLocations)*100) / 100
	}
	return s, nil
}

func clearPrimary(tx *gorm.DB, userID string) error {
	return tx.Model(&model.LocationAssignment{}).
		Where("user_id = ? AND is_primary = ?", userID, true).
		Update("is_primary", false).Error
}
