package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/d9705996/steward/internal/apperr"
	"github.com/d9705996/steward/internal/db"
	"github.com/d9705996/steward/internal/model"
	"gorm.io/gorm"
)

// ErrInvalidRefreshToken covers unknown, revoked and expired refresh tokens.
// Callers get no hint which one applied.
var ErrInvalidRefreshToken = apperr.New(apperr.ErrUnauthorized, "refresh token is invalid or expired")

// RefreshStore manages refresh token persistence via GORM. Only the SHA-256
// hash of a token is stored.
type RefreshStore struct {
	db  *gorm.DB
	ttl time.Duration
}

// NewRefreshStore creates a RefreshStore whose tokens live for ttl.
func NewRefreshStore(gdb *gorm.DB, ttl time.Duration) *RefreshStore {
	return &RefreshStore{db: gdb, ttl: ttl}
}

// Issue generates a secure random token for the user, stores its hash and
// returns the plaintext.
func (s *RefreshStore) Issue(ctx context.Context, userID string) (string, error) {
	return s.issue(s.db.WithContext(ctx), userID)
}

func (s *RefreshStore) issue(tx *gorm.DB, userID string) (string, error) {
	raw, err := generateToken()
	if err != nil {
		return "", fmt.Errorf("generate refresh token: %w", err)
	}
	rt := &model.RefreshToken{
		UserID:    userID,
		TokenHash: hashToken(raw),
		ExpiresAt: time.Now().UTC().Add(s.ttl),
	}
	if err := tx.Create(rt).Error; err != nil {
		return "", fmt.Errorf("store refresh token: %w", err)
	}
	return raw, nil
}

// Rotate revokes rawToken and issues its replacement in one transaction.
// A token can be rotated at most once.
func (s *RefreshStore) Rotate(ctx context.Context, rawToken string) (token, userID string, err error) {
	err = db.Transaction(ctx, s.db, func(tx *gorm.DB) error {
		var rt model.RefreshToken
		if err := tx.Where("token_hash = ?", hashToken(rawToken)).First(&rt).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrInvalidRefreshToken
			}
			return fmt.Errorf("load refresh token: %w", err)
		}
		now := time.Now().UTC()
		if rt.RevokedAt != nil || now.After(rt.ExpiresAt) {
			return ErrInvalidRefreshToken
		}
		res := tx.Model(&model.RefreshToken{}).
			Where("id = ? AND revoked_at IS NULL", rt.ID).
			Update("revoked_at", now)
		if res.Error != nil {
			return fmt.Errorf("revoke old refresh token: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrInvalidRefreshToken
		}
		next, ierr := s.issue(tx, rt.UserID)
		if ierr != nil {
			return ierr
		}
		token, userID = next, rt.UserID
		return nil
	})
	if err != nil {
		return "", "", err
	}
	return token, userID, nil
}

// Revoke marks rawToken as revoked. Unknown tokens are ignored.
func (s *RefreshStore) Revoke(ctx context.Context, rawToken string) error {
	return s.db.WithContext(ctx).Model(&model.RefreshToken{}).
		Where("token_hash = ? AND revoked_at IS NULL", hashToken(rawToken)).
		Update("revoked_at", time.Now().UTC()).Error
}

// RevokeAll revokes every live refresh token of the user.
func (s *RefreshStore) RevokeAll(ctx context.Context, userID string) error {
	return s.db.WithContext(ctx).Model(&model.RefreshToken{}).
		Where("user_id = ? AND revoked_at IS NULL", userID).
		Update("revoked_at", time.Now().UTC()).Error
}

func generateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

func hashToken(raw string) string {
	h := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(h[:])
}
