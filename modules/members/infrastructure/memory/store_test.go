package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/iota-uz/member-import/modules/members/domain/aggregates/member"
	"github.com/iota-uz/member-import/modules/members/domain/entities/group"
	"github.com/iota-uz/member-import/modules/members/domain/entities/membership"
	"github.com/iota-uz/member-import/modules/members/domain/entities/profilefield"
)

func TestMemberRepo_SaveAndLookup(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	s := New(WithClock(func() time.Time { return now }))
	repo := s.Members()

	saved, err := repo.Save(ctx, member.New("W100").WithName("Karl", "Barth").WithEmail("KB@example.org"))
	require.NoError(t, err)
	require.False(t, saved.IsNew())
	require.Equal(t, now, saved.CreatedAt())

	got, err := repo.GetByExternalID(ctx, "W100")
	require.NoError(t, err)
	require.Equal(t, saved.ID(), got.ID())

	byEmail, err := repo.GetByEmail(ctx, "kb@EXAMPLE.org")
	require.NoError(t, err)
	require.Equal(t, saved.ID(), byEmail.ID())

	_, err = repo.GetByExternalID(ctx, "W999")
	require.ErrorIs(t, err, member.ErrNotFound)
}

func TestMemberRepo_EnforcesUniqueness(t *testing.T) {
	ctx := context.Background()
	repo := New().Members()

	_, err := repo.Save(ctx, member.New("W100").WithEmail("x@y.com"))
	require.NoError(t, err)

	_, err = repo.Save(ctx, member.New("W100"))
	require.ErrorIs(t, err, member.ErrDuplicateExternalID)

	_, err = repo.Save(ctx, member.New("W200").WithEmail("X@Y.com"))
	require.ErrorIs(t, err, member.ErrDuplicateEmail)
}

func TestMemberRepo_SetTimestampsKeepsZeroFields(t *testing.T) {
	ctx := context.Background()
	s := New()
	m, err := s.Members().Save(ctx, member.New("W1"))
	require.NoError(t, err)

	created := time.Date(2001, 1, 2, 3, 4, 5, 0, time.UTC)
	require.NoError(t, s.Members().SetTimestamps(ctx, m.ID(), created, time.Time{}))

	got, err := s.Members().GetByID(ctx, m.ID())
	require.NoError(t, err)
	require.Equal(t, created, got.CreatedAt())
	require.Equal(t, m.UpdatedAt(), got.UpdatedAt())
}

func TestGroupRepo_DescendantMembers(t *testing.T) {
	ctx := context.Background()
	s := New()
	groups := s.Groups()

	corp, err := groups.Save(ctx, group.New("Erlanger Wingolf", group.KindCorporation, group.WithToken("E")))
	require.NoError(t, err)
	status, err := groups.Save(ctx, group.New("Aktive", group.KindStatus, group.WithParent(corp.ID())))
	require.NoError(t, err)
	other, err := groups.Save(ctx, group.New("Hallenser Wingolf", group.KindCorporation, group.WithToken("H")))
	require.NoError(t, err)

	m, err := s.Members().Save(ctx, member.New("W1"))
	require.NoError(t, err)
	_, err = s.Memberships().Create(ctx, membership.New(m.ID(), status.ID(), time.Time{}, time.Time{}))
	require.NoError(t, err)

	ids, err := groups.DescendantMembers(ctx, corp.ID())
	require.NoError(t, err)
	require.Equal(t, []uuid.UUID{m.ID()}, ids, "membership in a status group reaches the corporation")

	ids, err = groups.DescendantMembers(ctx, other.ID())
	require.NoError(t, err)
	require.Empty(t, ids)

	desc, err := groups.Descendants(ctx, corp.ID())
	require.NoError(t, err)
	require.Len(t, desc, 1)
	require.Equal(t, status.ID(), desc[0].ID())

	_, err = groups.Save(ctx, group.New("Duplicate", group.KindCorporation, group.WithToken("E")))
	require.ErrorIs(t, err, group.ErrDuplicateToken)
}

func TestMembershipRepo_RejectsDuplicates(t *testing.T) {
	ctx := context.Background()
	s := New()
	g, err := s.Groups().Save(ctx, group.New("E", group.KindCorporation, group.WithToken("E")))
	require.NoError(t, err)
	m, err := s.Members().Save(ctx, member.New("W1"))
	require.NoError(t, err)

	_, err = s.Memberships().Create(ctx, membership.New(m.ID(), g.ID(), time.Time{}, time.Time{}))
	require.NoError(t, err)
	_, err = s.Memberships().Create(ctx, membership.New(m.ID(), g.ID(), time.Time{}, time.Time{}))
	require.ErrorIs(t, err, membership.ErrDuplicate)

	_, err = s.Memberships().Create(ctx, membership.New(uuid.New(), g.ID(), time.Time{}, time.Time{}))
	require.ErrorIs(t, err, member.ErrNotFound)
}

func TestFieldRepo_UpsertIsKeyedBySlot(t *testing.T) {
	ctx := context.Background()
	s := New()
	m, err := s.Members().Save(ctx, member.New("W1"))
	require.NoError(t, err)

	first, err := s.ProfileFields().Upsert(ctx, profilefield.New(m.ID(), profilefield.GroupContact, "phone", "1"))
	require.NoError(t, err)
	second, err := s.ProfileFields().Upsert(ctx, profilefield.New(m.ID(), profilefield.GroupContact, "phone", "2"))
	require.NoError(t, err)
	require.Equal(t, first.ID(), second.ID())

	fields, err := s.ProfileFields().ListByMember(ctx, m.ID())
	require.NoError(t, err)
	require.Len(t, fields, 1)
	require.Equal(t, "2", fields[0].Value())
}

func TestStore_InTxRestoresOnError(t *testing.T) {
	ctx := context.Background()
	s := New()
	boom := errors.New("boom")

	err := s.InTx(ctx, func(ctx context.Context) error {
		_, err := s.Members().Save(ctx, member.New("W1"))
		require.NoError(t, err)
		return boom
	})
	require.ErrorIs(t, err, boom)

	members, _, _ := s.Stats()
	require.Zero(t, members)

	require.NoError(t, s.InTx(ctx, func(ctx context.Context) error {
		_, err := s.Members().Save(ctx, member.New("W1"))
		return err
	}))
	members, _, _ = s.Stats()
	require.Equal(t, 1, members)
}
