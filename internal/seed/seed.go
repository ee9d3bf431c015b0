// Package seed bootstraps an empty database with an admin user who owns a
// default company.
package seed

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"

	"github.com/d9705996/steward/internal/account"
	"github.com/d9705996/steward/internal/company"
	"github.com/d9705996/steward/internal/model"
	"gorm.io/gorm"
)

// AdminOptions configures the seed admin user.
type AdminOptions struct {
	Email       string
	Password    string // if empty, a random password is generated
	CompanyName string
	// Out receives the generated password when one is generated. Defaults to
	// discarding it.
	Out io.Writer
}

// EnsureAdmin creates a seed admin and a company they administer when no
// users exist. It is idempotent and safe to call on every startup.
func EnsureAdmin(ctx context.Context, gdb *gorm.DB, opts AdminOptions, log *slog.Logger) error {
	var count int64
	if err := gdb.WithContext(ctx).Model(&model.User{}).Count(&count).Error; err != nil {
		return fmt.Errorf("count users: %w", err)
	}
	if count > 0 {
		log.Info("seed admin already exists")
		return nil
	}

	password := opts.Password
	if password == "" {
		var err error
		password, err = generatePassword()
		if err != nil {
			return fmt.Errorf("generate seed password: %w", err)
		}
		out := opts.Out
		if out == nil {
			out = io.Discard
		}
		// Printed exactly once; it is not recoverable afterwards.
		fmt.Fprintf(out, "[steward] seed admin password: %s\n", password)
	}

	u, err := account.NewService(gdb).Create(ctx, account.NewUser{
		Email:    opts.Email,
		Name:     "Seed Admin",
		Password: password,
	})
	if err != nil {
		return fmt.Errorf("create seed admin: %w", err)
	}
	c, err := company.NewService(gdb).Create(ctx, u.ID, company.Input{Name: opts.CompanyName})
	if err != nil {
		return fmt.Errorf("create seed company: %w", err)
	}

	log.Info("seed admin created", "email", u.Email, "company_id", c.ID)
	return nil
}

func generatePassword() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
