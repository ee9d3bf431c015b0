package access_test

import (
	"context"
	"errors"
	"testing"

	"github.com/d9705996/steward/internal/access"
	"github.com/d9705996/steward/internal/apperr"
	"github.com/d9705996/steward/internal/dbtest"
	"github.com/d9705996/steward/internal/membership"
	"github.com/d9705996/steward/internal/policy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubRoles struct {
	role policy.Role
	ok   bool
	err  error
}

func (s stubRoles) GetRole(context.Context, string, string) (policy.Role, bool, error) {
	return s.role, s.ok, s.err
}

func TestRequire(t *testing.T) {
	tests := []struct {
		name    string
		roles   stubRoles
		action  policy.Action
		wantErr error
	}{
		{"admin manages users", stubRoles{policy.RoleAdmin, true, nil}, policy.ManageUsers, nil},
		{"manager manages locations", stubRoles{policy.RoleManager, true, nil}, policy.ManageLocations, nil},
		{"manager cannot delete location", stubRoles{policy.RoleManager, true, nil}, policy.DeleteLocation, access.ErrForbidden},
		{"viewer cannot create survey", stubRoles{policy.RoleViewer, true, nil}, policy.CreateSurvey, access.ErrForbidden},
		{"non-member denied", stubRoles{}, policy.ViewAnalytics, access.ErrNotMember},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := access.New(tt.roles).Require(context.Background(), "u", "c", tt.action)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
			assert.ErrorIs(t, err, apperr.ErrUnauthorized)
		})
	}
}

func TestRequire_LookupError(t *testing.T) {
	boom := errors.New("boom")
	err := access.New(stubRoles{err: boom}).Require(context.Background(), "u", "c", policy.ManageUsers)
	require.ErrorIs(t, err, boom)
	assert.Nil(t, apperr.KindOf(err))
}

func TestRequireMember_WithStore(t *testing.T) {
	gdb := dbtest.Open(t)
	store := membership.NewStore(gdb)
	authz := access.New(store)
	ctx := context.Background()
	c := dbtest.Company(t, gdb, "Acme")
	member := dbtest.User(t, gdb, "m@example.com")
	outsider := dbtest.User(t, gdb, "o@example.com")
	dbtest.Member(t, gdb, member.ID, c.ID, policy.RoleViewer)

	assert.NoError(t, authz.RequireMember(ctx, member.ID, c.ID))
	assert.ErrorIs(t, authz.RequireMember(ctx, outsider.ID, c.ID), access.ErrNotMember)

	role, err := authz.Role(ctx, outsider.ID, c.ID)
	require.NoError(t, err)
	assert.Equal(t, policy.RoleNone, role)

	require.NoError(t, store.UpdateRole(ctx, member.ID, c.ID, policy.RoleManager))
	assert.NoError(t, authz.Require(ctx, member.ID, c.ID, policy.ViewAnalytics))
}
