package company_test

import (
	"context"
	"testing"

	"github.com/d9705996/steward/internal/apperr"
	"github.com/d9705996/steward/internal/company"
	"github.com/d9705996/steward/internal/dbtest"
	"github.com/d9705996/steward/internal/location"
	"github.com/d9705996/steward/internal/membership"
	"github.com/d9705996/steward/internal/model"
	"github.com/d9705996/steward/internal/policy"
	"github.com/d9705996/steward/internal/preference"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func count(t *testing.T, gdb *gorm.DB, m any) int64 {
	t.Helper()
	var n int64
	require.NoError(t, gdb.Model(m).Count(&n).Error)
	return n
}

func TestCreate_CreatorBecomesAdmin(t *testing.T) {
	gdb := dbtest.Open(t)
	svc := company.NewService(gdb)
	ctx := context.Background()
	u := dbtest.User(t, gdb, "founder@example.com")

	c, err := svc.Create(ctx, u.ID, company.Input{Name: " Acme ", Website: "https://acme.test"})
	require.NoError(t, err)
	assert.Equal(t, "Acme", c.Name)

	role, ok, err := membership.NewStore(gdb).GetRole(ctx, u.ID, c.ID)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, policy.RoleAdmin, role)

	_, err = svc.Create(ctx, u.ID, company.Input{Name: "  "})
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestListForUser(t *testing.T) {
	gdb := dbtest.Open(t)
	svc := company.NewService(gdb)
	ctx := context.Background()
	u := dbtest.User(t, gdb, "u@example.com")
	b := dbtest.Company(t, gdb, "Bravo")
	a := dbtest.Company(t, gdb, "Alpha")
	dbtest.Company(t, gdb, "Unrelated")
	dbtest.Member(t, gdb, u.ID, b.ID, policy.RoleViewer)
	dbtest.Member(t, gdb, u.ID, a.ID, policy.RoleManager)

	list, err := svc.ListForUser(ctx, u.ID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "Alpha", list[0].Company.Name)
	assert.Equal(t, policy.RoleManager, list[0].Role)
	assert.Equal(t, b.ID, list[1].Company.ID)
	assert.Equal(t, policy.RoleViewer, list[1].Role)
}

func TestDelete_Cascades(t *testing.T) {
	gdb := dbtest.Open(t)
	svc := company.NewService(gdb)
	ctx := context.Background()
	u := dbtest.User(t, gdb, "u@example.com")
	doomed := dbtest.Company(t, gdb, "Doomed")
	kept := dbtest.Company(t, gdb, "Kept")
	for _, c := range []*model.Company{doomed, kept} {
		dbtest.Member(t, gdb, u.ID, c.ID, policy.RoleMember)
		l := dbtest.Location(t, gdb, c.ID, "HQ")
		_, err := location.NewManager(gdb, membership.NewStore(gdb)).Assign(ctx, u.ID, l.ID, false)
		require.NoError(t, err)
		off := false
		_, err = preference.NewResolver(gdb).Upsert(ctx, u.ID, c.ID, model.TypeAnnouncement, preference.Patch{Push: &off})
		require.NoError(t, err)
		require.NoError(t, gdb.Create(&model.Notification{
			UserID: u.ID, CompanyID: c.ID, Type: model.TypeAnnouncement, Title: "t", Message: "m", Status: model.StatusUnread,
		}).Error)
	}

	require.NoError(t, svc.Delete(ctx, doomed.ID))

	for _, m := range []any{
		&model.Company{}, &model.Membership{}, &model.Location{},
		&model.LocationAssignment{}, &model.NotificationPreference{}, &model.Notification{},
	} {
		assert.Equal(t, int64(1), count(t, gdb, m), "%T rows left", m)
	}
	assert.Equal(t, int64(1), count(t, gdb, &model.User{}), "users are not owned by companies")

	_, err := svc.Get(ctx, doomed.ID)
	assert.ErrorIs(t, err, company.ErrCompanyNotFound)
	assert.ErrorIs(t, svc.Delete(ctx, doomed.ID), company.ErrCompanyNotFound)
}
