package membership_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/d9705996/steward/internal/apperr"
	"github.com/d9705996/steward/internal/dbtest"
	"github.com/d9705996/steward/internal/membership"
	"github.com/d9705996/steward/internal/model"
	"github.com/d9705996/steward/internal/policy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddMember(t *testing.T) {
	gdb := dbtest.Open(t)
	s := membership.NewStore(gdb)
	ctx := context.Background()
	u := dbtest.User(t, gdb, "u@example.com")
	c := dbtest.Company(t, gdb, "Acme")

	m, err := s.AddMember(ctx, u.ID, c.ID, policy.RoleMember)
	require.NoError(t, err)
	assert.True(t, m.IsActive)
	assert.False(t, m.JoinedAt.IsZero())

	ok, err := s.IsMember(ctx, u.ID, c.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	role, ok, err := s.GetRole(ctx, u.ID, c.ID)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, policy.RoleMember, role)
}

func TestAddMember_AlreadyMember(t *testing.T) {
	gdb := dbtest.Open(t)
	s := membership.NewStore(gdb)
	ctx := context.Background()
	u := dbtest.User(t, gdb, "u@example.com")
	c := dbtest.Company(t, gdb, "Acme")

	_, err := s.AddMember(ctx, u.ID, c.ID, policy.RoleMember)
	require.NoError(t, err)

	_, err = s.AddMember(ctx, u.ID, c.ID, policy.RoleAdmin)
	require.ErrorIs(t, err, membership.ErrAlreadyMember)
	assert.ErrorIs(t, err, apperr.ErrAlreadyExists)
}

func TestAddMember_InvalidRole(t *testing.T) {
	gdb := dbtest.Open(t)
	s := membership.NewStore(gdb)
	u := dbtest.User(t, gdb, "u@example.com")
	c := dbtest.Company(t, gdb, "Acme")

	_, err := s.AddMember(context.Background(), u.ID, c.ID, policy.Role("owner"))
	require.ErrorIs(t, err, apperr.ErrValidation)
	assert.Contains(t, apperr.FieldsOf(err), "role")
}

func TestAddMember_ConcurrentAtMostOneActive(t *testing.T) {
	gdb := dbtest.Open(t)
	s := membership.NewStore(gdb)
	ctx := context.Background()
	u := dbtest.User(t, gdb, "u@example.com")
	c := dbtest.Company(t, gdb, "Acme")

	const n = 8
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := range n {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = s.AddMember(ctx, u.ID, c.ID, policy.RoleMember)
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, membership.ErrAlreadyMember), errors.Is(err, membership.ErrMembershipConflict):
		default:
			// SQLite may report lock contention instead of a conflict.
			t.Logf("concurrent add: %v", err)
		}
	}
	assert.Equal(t, 1, succeeded)

	var active int64
	require.NoError(t, gdb.Model(&model.Membership{}).
		Where("user_id = ? AND company_id = ? AND is_active = ?", u.ID, c.ID, true).
		Count(&active).Error)
	assert.Equal(t, int64(1), active)
}

func TestRemoveMember(t *testing.T) {
	gdb := dbtest.Open(t)
	s := membership.NewStore(gdb)
	ctx := context.Background()
	u := dbtest.User(t, gdb, "u@example.com")
	c := dbtest.Company(t, gdb, "Acme")
	dbtest.Member(t, gdb, u.ID, c.ID, policy.RoleViewer)

	require.NoError(t, s.RemoveMember(ctx, u.ID, c.ID))

	var rows int64
	require.NoError(t, gdb.Model(&model.Membership{}).Where("user_id = ?", u.ID).Count(&rows).Error)
	assert.Zero(t, rows, "removal is a hard delete")

	err := s.RemoveMember(ctx, u.ID, c.ID)
	assert.ErrorIs(t, err, membership.ErrNotAMember)
}

func TestUpdateRole_PreservesJoinedAt(t *testing.T) {
	gdb := dbtest.Open(t)
	s := membership.NewStore(gdb)
	ctx := context.Background()
	u := dbtest.User(t, gdb, "u@example.com")
	c := dbtest.Company(t, gdb, "Acme")
	orig := dbtest.Member(t, gdb, u.ID, c.ID, policy.RoleMember)

	require.NoError(t, s.UpdateRole(ctx, u.ID, c.ID, policy.RoleManager))

	var got model.Membership
	require.NoError(t, gdb.First(&got, "id = ?", orig.ID).Error)
	assert.Equal(t, policy.RoleManager, got.Role)
	assert.True(t, orig.JoinedAt.Equal(got.JoinedAt))
}

func TestUpdateRole_NotAMember(t *testing.T) {
	gdb := dbtest.Open(t)
	s := membership.NewStore(gdb)
	u := dbtest.User(t, gdb, "u@example.com")
	c := dbtest.Company(t, gdb, "Acme")

	err := s.UpdateRole(context.Background(), u.ID, c.ID, policy.RoleAdmin)
	require.ErrorIs(t, err, membership.ErrNotAMember)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestGetRole_InactiveIsNotAMember(t *testing.T) {
	gdb := dbtest.Open(t)
	s := membership.NewStore(gdb)
	ctx := context.Background()
	u := dbtest.User(t, gdb, "u@example.com")
	c := dbtest.Company(t, gdb, "Acme")
	dbtest.Member(t, gdb, u.ID, c.ID, policy.RoleAdmin)

	require.NoError(t, s.SetActive(ctx, u.ID, c.ID, false))

	role, ok, err := s.GetRole(ctx, u.ID, c.ID)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, policy.RoleNone, role)

	member, err := s.IsMember(ctx, u.ID, c.ID)
	require.NoError(t, err)
	assert.False(t, member)
}

func TestSetActive_Resume(t *testing.T) {
	gdb := dbtest.Open(t)
	s := membership.NewStore(gdb)
	ctx := context.Background()
	u := dbtest.User(t, gdb, "u@example.com")
	c := dbtest.Company(t, gdb, "Acme")
	dbtest.Member(t, gdb, u.ID, c.ID, policy.RoleMember)

	require.NoError(t, s.SetActive(ctx, u.ID, c.ID, false))
	assert.ErrorIs(t, s.SetActive(ctx, u.ID, c.ID, false), membership.ErrNotAMember)

	// A fresh membership may be added while the old one is suspended.
	_, err := s.AddMember(ctx, u.ID, c.ID, policy.RoleViewer)
	require.NoError(t, err)

	// The suspended row cannot be resumed alongside it.
	assert.ErrorIs(t, s.SetActive(ctx, u.ID, c.ID, true), membership.ErrAlreadyMember)

	require.NoError(t, s.RemoveMember(ctx, u.ID, c.ID))
	assert.ErrorIs(t, s.SetActive(ctx, u.ID, c.ID, true), membership.ErrNotAMember)
}

func TestListByRole(t *testing.T) {
	gdb := dbtest.Open(t)
	s := membership.NewStore(gdb)
	ctx := context.Background()
	c := dbtest.Company(t, gdb, "Acme")
	other := dbtest.Company(t, gdb, "Other")
	admin := dbtest.User(t, gdb, "admin@example.com")
	m1 := dbtest.User(t, gdb, "m1@example.com")
	m2 := dbtest.User(t, gdb, "m2@example.com")
	suspended := dbtest.User(t, gdb, "s@example.com")

	dbtest.Member(t, gdb, admin.ID, c.ID, policy.RoleAdmin)
	dbtest.Member(t, gdb, m1.ID, c.ID, policy.RoleMember)
	dbtest.Member(t, gdb, m2.ID, c.ID, policy.RoleMember)
	dbtest.Member(t, gdb, m2.ID, other.ID, policy.RoleAdmin)
	dbtest.Member(t, gdb, suspended.ID, c.ID, policy.RoleMember)
	require.NoError(t, s.SetActive(ctx, suspended.ID, c.ID, false))

	members, err := s.ListByRole(ctx, c.ID, policy.RoleMember)
	require.NoError(t, err)
	require.Len(t, members, 2)
	assert.Equal(t, "m1@example.com", members[0].Email)
	assert.Equal(t, "m2@example.com", members[1].Email)

	admins, err := s.ListByRole(ctx, c.ID, policy.RoleAdmin)
	require.NoError(t, err)
	require.Len(t, admins, 1)
	assert.Equal(t, admin.ID, admins[0].ID)

	all, err := s.ActiveMembers(ctx, c.ID)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	rows, err := s.Members(ctx, c.ID)
	require.NoError(t, err)
	assert.Len(t, rows, 4, "display listing includes suspended members")
}

func TestListForUser(t *testing.T) {
	gdb := dbtest.Open(t)
	s := membership.NewStore(gdb)
	u := dbtest.User(t, gdb, "u@example.com")
	a := dbtest.Company(t, gdb, "A")
	b := dbtest.Company(t, gdb, "B")
	dbtest.Member(t, gdb, u.ID, a.ID, policy.RoleAdmin)
	dbtest.Member(t, gdb, u.ID, b.ID, policy.RoleViewer)

	ms, err := s.ListForUser(context.Background(), u.ID)
	require.NoError(t, err)
	assert.Len(t, ms, 2)
}

func TestMemberRole_CannotManageUsers(t *testing.T) {
	gdb := dbtest.Open(t)
	s := membership.NewStore(gdb)
	ctx := context.Background()
	u := dbtest.User(t, gdb, "u@example.com")
	c := dbtest.Company(t, gdb, "Acme")

	_, err := s.AddMember(ctx, u.ID, c.ID, policy.RoleMember)
	require.NoError(t, err)

	role, _, err := s.GetRole(ctx, u.ID, c.ID)
	require.NoError(t, err)
	assert.False(t, policy.CanPerform(role, policy.ManageUsers))
	assert.True(t, policy.CanPerform(policy.RoleAdmin, policy.ManageUsers))
}
