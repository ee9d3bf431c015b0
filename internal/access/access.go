// Package access answers "may this user do that in this company" by resolving
// the actor's company role from the membership store and consulting the
// policy table.
package access

import (
	"context"
	"fmt"

	"github.com/d9705996/steward/internal/apperr"
	"github.com/d9705996/steward/internal/policy"
)

// Errors returned by the Authorizer.
var (
	ErrNotMember = apperr.New(apperr.ErrUnauthorized, "not a member of this company")
	ErrForbidden = apperr.New(apperr.ErrUnauthorized, "your role does not permit this action")
)

// RoleResolver looks up a user's active role in a company.
type RoleResolver interface {
	GetRole(ctx context.Context, userID, companyID string) (policy.Role, bool, error)
}

// Authorizer composes role resolution with the policy table. The acting user
// is always passed explicitly.
type Authorizer struct {
	roles RoleResolver
}

// New returns an Authorizer backed by roles.
func New(roles RoleResolver) *Authorizer {
	return &Authorizer{roles: roles}
}

// Role returns the actor's role in the company, or policy.RoleNone.
func (a *Authorizer) Role(ctx context.Context, actorID, companyID string) (policy.Role, error) {
	role, ok, err := a.roles.GetRole(ctx, actorID, companyID)
	if err != nil {
		return policy.RoleNone, fmt.Errorf("resolve role: %w", err)
	}
	if !ok {
		return policy.RoleNone, nil
	}
	return role, nil
}

// Require returns nil when the actor may perform action in the company.
func (a *Authorizer) Require(ctx context.Context, actorID, companyID string, action policy.Action) error {
	role, err := a.Role(ctx, actorID, companyID)
	if err != nil {
		return err
	}
	if role == policy.RoleNone {
		return ErrNotMember
	}
	if !policy.CanPerform(role, action) {
		return ErrForbidden
	}
	return nil
}

// RequireMember returns nil when the actor is an active member of the company.
func (a *Authorizer) RequireMember(ctx context.Context, actorID, companyID string) error {
	role, err := a.Role(ctx, actorID, companyID)
	if err != nil {
		return err
	}
	if role == policy.RoleNone {
		return ErrNotMember
	}
	return nil
}
