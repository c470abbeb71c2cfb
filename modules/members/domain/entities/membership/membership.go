package membership

import (
	"time"

	"github.com/google/uuid"
)

// Membership is a direct membership of a member in a group. Memberships in
// ancestor groups are implied through the group tree and never stored.
type Membership struct {
	id        uuid.UUID
	memberID  uuid.UUID
	groupID   uuid.UUID
	validFrom time.Time
	validTo   time.Time
}

func New(memberID, groupID uuid.UUID, validFrom, validTo time.Time) Membership {
	return Membership{
		memberID:  memberID,
		groupID:   groupID,
		validFrom: validFrom,
		validTo:   validTo,
	}
}

func Hydrate(id, memberID, groupID uuid.UUID, validFrom, validTo time.Time) Membership {
	m := New(memberID, groupID, validFrom, validTo)
	m.id = id
	return m
}

func (m Membership) ID() uuid.UUID        { return m.id }
func (m Membership) MemberID() uuid.UUID  { return m.memberID }
func (m Membership) GroupID() uuid.UUID   { return m.groupID }
func (m Membership) ValidFrom() time.Time { return m.validFrom }
func (m Membership) ValidTo() time.Time   { return m.validTo }

func (m Membership) WithID(id uuid.UUID) Membership {
	m.id = id
	return m
}

func (m Membership) WithValidity(from, to time.Time) Membership {
	m.validFrom = from
	m.validTo = to
	return m
}

func (m Membership) SameValidity(from, to time.Time) bool {
	return m.validFrom.Equal(from) && m.validTo.Equal(to)
}

// IsValidAt reports whether the membership is in force at t. A zero validTo
// means open-ended.
func (m Membership) IsValidAt(t time.Time) bool {
	if !m.validFrom.IsZero() && t.Before(m.validFrom) {
		return false
	}
	return m.validTo.IsZero() || t.Before(m.validTo)
}

func (m Membership) Invalidate(at time.Time) Membership {
	m.validTo = at
	return m
}

func (m Membership) MakeValid() Membership {
	m.validTo = time.Time{}
	return m
}
