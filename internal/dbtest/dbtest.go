// Package dbtest opens throwaway SQLite databases for package tests.
package dbtest

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/d9705996/steward/internal/config"
	"github.com/d9705996/steward/internal/db"
	"github.com/d9705996/steward/internal/model"
	"github.com/d9705996/steward/internal/policy"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// Open returns a migrated SQLite database stored in t.TempDir().
func Open(t *testing.T) *gorm.DB {
	t.Helper()
	gdb, _, err := db.New(context.Background(), &config.DBConfig{
		Driver: "sqlite",
		File:   filepath.Join(t.TempDir(), "steward_test.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := gdb.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return gdb
}

// User inserts a user with the given email.
func User(t *testing.T, gdb *gorm.DB, email string) *model.User {
	t.Helper()
	u := &model.User{Email: email, Name: email}
	require.NoError(t, gdb.Create(u).Error)
	return u
}

// Company inserts a company with the given name.
func Company(t *testing.T, gdb *gorm.DB, name string) *model.Company {
	t.Helper()
	c := &model.Company{Name: name}
	require.NoError(t, gdb.Create(c).Error)
	return c
}

// Member inserts an active membership directly, bypassing membership.Store.
func Member(t *testing.T, gdb *gorm.DB, userID, companyID string, role policy.Role) *model.Membership {
	t.Helper()
	m := &model.Membership{UserID: userID, CompanyID: companyID, Role: role, IsActive: true, JoinedAt: time.Now()}
	require.NoError(t, gdb.Create(m).Error)
	return m
}

// Location inserts an active location for the company.
func Location(t *testing.T, gdb *gorm.DB, companyID, name string) *model.Location {
	t.Helper()
	l := &model.Location{CompanyID: companyID, Name: name, IsActive: true}
	require.NoError(t, gdb.Create(l).Error)
	return l
}
