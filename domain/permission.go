package domain

import (
	"context"

	"github.com/samber/lo"
)

// PermissionRule is one gate of a room's access policy.
type PermissionRule interface {
	Allows(ctx context.Context, user User) (bool, error)
}

// RoleSet admits users whose role is listed. A non-nil empty set admits nobody.
type RoleSet Set

func NewRoleSet(roles ...string) RoleSet {
	return lo.SliceToMap(roles, func(role string) (string, struct{}) {
		return role, struct{}{}
	})
}

func (s RoleSet) Allows(_ context.Context, user User) (bool, error) {
	_, ok := s[user.Role]
	return ok, nil
}

// UserSet admits explicitly listed users. A non-nil empty set admits nobody.
type UserSet Set

func NewUserSet(userIDs ...string) UserSet {
	return lo.SliceToMap(userIDs, func(id string) (string, struct{}) {
		return id, struct{}{}
	})
}

func (s UserSet) Allows(_ context.Context, user User) (bool, error) {
	_, ok := s[user.ID]
	return ok, nil
}

// Predicate is a caller supplied check, typically a lookup such as
// "does this user's merchant own the branch". It may block on I/O.
type Predicate func(ctx context.Context, user User) (bool, error)

func (p Predicate) Allows(ctx context.Context, user User) (bool, error) {
	return p(ctx, user)
}

// Permissions is a room access policy. A nil field means the gate is absent.
type Permissions struct {
	Roles RoleSet
	Users UserSet
	Check Predicate
}

// Rules returns the present gates in evaluation order: roles, users, then the
// predicate. The predicate comes last so its answer is final once the cheaper
// gates pass.
func (p *Permissions) Rules() []PermissionRule {
	if p == nil {
		return nil
	}
	var rules []PermissionRule
	if p.Roles != nil {
		rules = append(rules, p.Roles)
	}
	if p.Users != nil {
		rules = append(rules, p.Users)
	}
	if p.Check != nil {
		rules = append(rules, p.Check)
	}
	return rules
}
