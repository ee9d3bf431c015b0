package account_test

import (
	"context"
	"testing"

	"github.com/d9705996/steward/internal/account"
	"github.com/d9705996/steward/internal/apperr"
	"github.com/d9705996/steward/internal/dbtest"
	"github.com/d9705996/steward/internal/model"
	"github.com/d9705996/steward/internal/policy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestCreate(t *testing.T) {
	gdb := dbtest.Open(t)
	svc := account.NewService(gdb)
	ctx := context.Background()

	u, err := svc.Create(ctx, account.NewUser{Email: " Alice@Example.com ", Name: "Alice", Password: "correct horse"})
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", u.Email)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte("correct horse")))

	got, err := svc.GetByEmail(ctx, "ALICE@example.com")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)

	_, err = svc.Create(ctx, account.NewUser{Email: "alice@example.com", Password: "another-password"})
	require.ErrorIs(t, err, account.ErrEmailTaken)
	assert.ErrorIs(t, err, apperr.ErrAlreadyExists)
}

func TestCreate_Validation(t *testing.T) {
	svc := account.NewService(dbtest.Open(t))

	_, err := svc.Create(context.Background(), account.NewUser{Email: "nope", Password: "short"})
	require.ErrorIs(t, err, apperr.ErrValidation)
	fields := apperr.FieldsOf(err)
	assert.Contains(t, fields, "email")
	assert.Contains(t, fields, "password")
}

func TestDelete_Cascades(t *testing.T) {
	gdb := dbtest.Open(t)
	svc := account.NewService(gdb)
	ctx := context.Background()
	doomed := dbtest.User(t, gdb, "doomed@example.com")
	kept := dbtest.User(t, gdb, "kept@example.com")
	c := dbtest.Company(t, gdb, "Acme")
	l := dbtest.Location(t, gdb, c.ID, "HQ")
	for _, u := range []*model.User{doomed, kept} {
		dbtest.Member(t, gdb, u.ID, c.ID, policy.RoleMember)
		require.NoError(t, gdb.Create(&model.LocationAssignment{UserID: u.ID, LocationID: l.ID}).Error)
		require.NoError(t, gdb.Create(&model.NotificationPreference{
			UserID: u.ID, CompanyID: c.ID, NotificationType: model.TypeGoalUpdate, InAppEnabled: true,
		}).Error)
		require.NoError(t, gdb.Create(&model.Notification{
			UserID: u.ID, CompanyID: c.ID, Type: model.TypeGoalUpdate, Title: "t", Message: "m", Status: model.StatusRead,
		}).Error)
		require.NoError(t, gdb.Create(&model.RefreshToken{UserID: u.ID, TokenHash: "hash-" + u.ID}).Error)
	}

	require.NoError(t, svc.Delete(ctx, doomed.ID))

	for _, m := range []any{
		&model.User{}, &model.Membership{}, &model.LocationAssignment{},
		&model.NotificationPreference{}, &model.Notification{}, &model.RefreshToken{},
	} {
		var n int64
		require.NoError(t, gdb.Model(m).Count(&n).Error)
		assert.Equal(t, int64(1), n, "%T rows left", m)
	}
	var companies int64
	require.NoError(t, gdb.Model(&model.Company{}).Count(&companies).Error)
	assert.Equal(t, int64(1), companies)

	_, err := svc.Get(ctx, doomed.ID)
	assert.ErrorIs(t, err, account.ErrUserNotFound)
	assert.ErrorIs(t, svc.Delete(ctx, doomed.ID), account.ErrUserNotFound)
}
