// Package account creates, looks up and deletes user identities.
package account

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"github.com/d9705996/steward/internal/apperr"
	"github.com/d9705996/steward/internal/db"
	"github.com/d9705996/steward/internal/model"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// Domain errors.
var (
	ErrUserNotFound = apperr.New(apperr.ErrNotFound, "user not found")
	ErrEmailTaken   = apperr.New(apperr.ErrAlreadyExists, "a user with this email already exists")
)

const minPasswordLen = 8

// NewUser is the input to Create.
type NewUser struct {
	Email    string
	Name     string
	Password string
}

// Service manages users.
type Service struct {
	db *gorm.DB
}

// NewService returns a Service backed by gdb.
func NewService(gdb *gorm.DB) *Service {
	return &Service{db: gdb}
}

// Create validates the input, hashes the password with bcrypt and inserts the
// user.
func (s *Service) Create(ctx context.Context, in NewUser) (*model.User, error) {
	email := strings.ToLower(strings.TrimSpace(in.Email))
	fields := map[string]string{}
	if _, err := mail.ParseAddress(email); err != nil {
		fields["email"] = "must be a valid email address"
	}
	if len(in.Password) < minPasswordLen {
		fields["password"] = fmt.Sprintf("must be at least %d characters", minPasswordLen)
	}
	if len(fields) > 0 {
		return nil, apperr.Validation(fields)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	u := &model.User{
		Email:        email,
		Name:         strings.TrimSpace(in.Name),
		PasswordHash: string(hash),
	}
	if err := s.db.WithContext(ctx).Create(u).Error; err != nil {
		if db.IsUniqueViolation(err) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("insert user: %w", err)
	}
	return u, nil
}

// Get returns the user by ID.
func (s *Service) Get(ctx context.Context, id string) (*model.User, error) {
	return s.first(ctx, "id = ?", id)
}

// GetByEmail returns the user with the given email, case-insensitively.
func (s *Service) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	return s.first(ctx, "email = ?", strings.ToLower(strings.TrimSpace(email)))
}

func (s *Service) first(ctx context.Context, where string, arg string) (*model.User, error) {
	var u model.User
	err := s.db.WithContext(ctx).Where(where, arg).First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &u, nil
}

// Delete removes the user and everything they own in one transaction:
// notifications, preferences, location assignments, memberships, refresh
// tokens.
func (s *Service) Delete(ctx context.Context, id string) error {
	return db.Transaction(ctx, s.db, func(tx *gorm.DB) error {
		for _, m := range []any{
			&model.Notification{},
			&model.NotificationPreference{},
			&model.LocationAssignment{},
			&model.Membership{},
			&model.RefreshToken{},
		} {
			if err := tx.Where("user_id = ?", id).Delete(m).Error; err != nil {
				return fmt.Errorf("delete user data: %w", err)
			}
		}
		res := tx.Where("id = ?", id).Delete(&model.User{})
		if res.Error != nil {
			return fmt.Errorf("delete user: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrUserNotFound
		}
		return nil
	})
}
