package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/iota-uz/member-import/modules/members/domain/aggregates/member"
	"github.com/iota-uz/member-import/modules/members/domain/entities/group"
	"github.com/iota-uz/member-import/modules/members/domain/entities/membership"
)

type ErrorKind int

const (
	MissingParameter ErrorKind = iota + 1
	EntityNotFound
)

// BrickError is returned by the add/remove workflow steps.
type BrickError struct {
	Kind   ErrorKind
	Param  string
	Entity string
	ID     string
}

func (e *BrickError) Error() string {
	switch e.Kind {
	case MissingParameter:
		return fmt.Sprintf("missing parameter: %s", e.Param)
	case EntityNotFound:
		return fmt.Sprintf("%s not found: %s", e.Entity, e.ID)
	default:
		return "workflow step failed"
	}
}

type GroupMembershipService struct {
	members     member.Repository
	groups      group.Repository
	memberships membership.Repository
	now         func() time.Time
}

func NewGroupMembershipService(
	members member.Repository,
	groups group.Repository,
	memberships membership.Repository,
) *GroupMembershipService {
	return &GroupMembershipService{members: members, groups: groups, memberships: memberships, now: time.Now}
}

// AddToGroup makes the member a direct, currently valid member of the group.
func (s *GroupMembershipService) AddToGroup(ctx context.Context, memberID, groupID uuid.UUID) (membership.Membership, error) {
	if err := s.check(ctx, memberID, groupID); err != nil {
		return membership.Membership{}, err
	}

	existing, err := s.memberships.Find(ctx, memberID, groupID)
	switch {
	case err == nil:
		if existing.ValidTo().IsZero() && existing.IsValidAt(s.now()) {
			return existing, nil
		}
		return s.memberships.Update(ctx, existing.MakeValid())
	case errors.Is(err, membership.ErrNotFound):
		y, m, d := s.now().UTC().Date()
		return s.memberships.Create(ctx, membership.New(memberID, groupID, time.Date(y, m, d, 0, 0, 0, 0, time.UTC), time.Time{}))
	default:
		return membership.Membership{}, err
	}
}

// RemoveFromGroup ends the member's membership in the group at at. A direct
// membership is invalidated itself. An inherited one is ended by invalidating
// the direct memberships in the groups below, one second earlier.
func (s *GroupMembershipService) RemoveFromGroup(ctx context.Context, memberID, groupID uuid.UUID, at time.Time) ([]membership.Membership, error) {
	if err := s.check(ctx, memberID, groupID); err != nil {
		return nil, err
	}

	direct, err := s.memberships.Find(ctx, memberID, groupID)
	if err == nil {
		updated, err := s.memberships.Update(ctx, direct.Invalidate(at))
		if err != nil {
			return nil, err
		}
		return []membership.Membership{updated}, nil
	}
	if !errors.Is(err, membership.ErrNotFound) {
		return nil, err
	}

	below, err := s.groups.Descendants(ctx, groupID)
	if err != nil {
		return nil, err
	}
	scope := make(map[uuid.UUID]struct{}, len(below))
	for _, g := range below {
		scope[g.ID()] = struct{}{}
	}
	all, err := s.memberships.ListByMember(ctx, memberID)
	if err != nil {
		return nil, err
	}

	var out []membership.Membership
	for _, m := range all {
		if _, ok := scope[m.GroupID()]; !ok || !m.IsValidAt(at) {
			continue
		}
		updated, err := s.memberships.Update(ctx, m.Invalidate(at.Add(-time.Second)))
		if err != nil {
			return nil, err
		}
		out = append(out, updated)
	}
	return out, nil
}

func (s *GroupMembershipService) check(ctx context.Context, memberID, groupID uuid.UUID) error {
	if memberID == uuid.Nil {
		return &BrickError{Kind: MissingParameter, Param: "member_id"}
	}
	if groupID == uuid.Nil {
		return &BrickError{Kind: MissingParameter, Param: "group_id"}
	}
	if _, err := s.members.GetByID(ctx, memberID); err != nil {
		if errors.Is(err, member.ErrNotFound) {
			return &BrickError{Kind: EntityNotFound, Entity: "member", ID: memberID.String()}
		}
		return err
	}
	if _, err := s.groups.GetByID(ctx, groupID); err != nil {
		if errors.Is(err, group.ErrNotFound) {
			return &BrickError{Kind: EntityNotFound, Entity: "group", ID: groupID.String()}
		}
		return err
	}
	return nil
}
