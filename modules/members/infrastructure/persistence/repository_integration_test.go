package persistence

import (
	"context"
	"errors"
	"net"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"

	"github.com/iota-uz/member-import/modules/members/domain/aggregates/member"
	"github.com/iota-uz/member-import/modules/members/domain/entities/group"
	"github.com/iota-uz/member-import/modules/members/domain/entities/membership"
	"github.com/iota-uz/member-import/modules/members/domain/entities/profilefield"
	"github.com/iota-uz/member-import/pkg/composables"
	"github.com/iota-uz/member-import/pkg/configuration"
)

func TestRepositories_Postgres(t *testing.T) {
	ctx := setupTxContext(t)

	members := NewMemberRepository()

	m, err := members.Save(ctx, member.New("ZZ-W100").WithName("Karl", "Barth").WithEmail("KB@example.org"))
	require.NoError(t, err)
	require.False(t, m.IsNew())

	byEmail, err := members.GetByEmail(ctx, "kb@example.org")
	require.NoError(t, err)
	require.Equal(t, m.ID(), byEmail.ID())

	// a unique violation aborts the transaction, so it comes last
	_, err = members.Save(ctx, member.New("ZZ-W200").WithEmail("kb@EXAMPLE.org"))
	require.ErrorIs(t, err, member.ErrDuplicateEmail)
}

func TestRepositories_PostgresMembershipClosure(t *testing.T) {
	ctx := setupTxContext(t)

	members := NewMemberRepository()
	groups := NewGroupRepository()
	memberships := NewMembershipRepository()
	fields := NewProfileFieldRepository()

	corp, err := groups.Save(ctx, group.New("Hallenser Wingolf", group.KindCorporation, group.WithToken("ZZ-H")))
	require.NoError(t, err)
	status, err := groups.Save(ctx, group.New("Philister", group.KindStatus, group.WithParent(corp.ID())))
	require.NoError(t, err)

	m, err := members.Save(ctx, member.New("ZZ-W300"))
	require.NoError(t, err)

	from := time.Date(2008, 5, 1, 0, 0, 0, 0, time.UTC)
	created, err := memberships.Create(ctx, membership.New(m.ID(), status.ID(), from, time.Time{}))
	require.NoError(t, err)
	require.Equal(t, from, created.ValidFrom())

	ids, err := groups.DescendantMembers(ctx, corp.ID())
	require.NoError(t, err)
	require.Contains(t, ids, m.ID())

	desc, err := groups.Descendants(ctx, corp.ID())
	require.NoError(t, err)
	require.Len(t, desc, 1)

	_, err = fields.Upsert(ctx, profilefield.New(m.ID(), profilefield.GroupBank, "iban", "DE00"))
	require.NoError(t, err)
	_, err = fields.Upsert(ctx, profilefield.New(m.ID(), profilefield.GroupBank, "iban", "DE01"))
	require.NoError(t, err)
	list, err := fields.ListByMember(ctx, m.ID())
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, "DE01", list[0].Value())

	created2 := time.Date(2001, 2, 3, 4, 5, 6, 0, time.UTC)
	require.NoError(t, members.SetTimestamps(ctx, m.ID(), created2, time.Time{}))
	got, err := members.GetByID(ctx, m.ID())
	require.NoError(t, err)
	require.True(t, got.CreatedAt().Equal(created2))

	_, err = memberships.Create(ctx, membership.New(m.ID(), status.ID(), from, time.Time{}))
	require.ErrorIs(t, err, membership.ErrDuplicate)
}

func TestTransactor_RollsBackOnlyTheFailedRecord(t *testing.T) {
	ctx := setupTxContext(t)
	members := NewMemberRepository()
	boom := errors.New("boom")

	err := Transactor{}.InTx(ctx, func(ctx context.Context) error {
		_, err := members.Save(ctx, member.New("ZZ-W400"))
		require.NoError(t, err)
		return boom
	})
	require.ErrorIs(t, err, boom)

	require.NoError(t, Transactor{}.InTx(ctx, func(ctx context.Context) error {
		_, err := members.Save(ctx, member.New("ZZ-W401"))
		return err
	}))

	_, err = members.GetByExternalID(ctx, "ZZ-W400")
	require.ErrorIs(t, err, member.ErrNotFound)
	_, err = members.GetByExternalID(ctx, "ZZ-W401")
	require.NoError(t, err)
}

func setupTxContext(tb testing.TB) context.Context {
	tb.Helper()

	isCI := strings.TrimSpace(os.Getenv("CI")) != ""
	if !canDialPostgres(tb) {
		if isCI {
			tb.Fatalf("postgres is not reachable (DB_HOST/DB_PORT).")
		}
		tb.Skip("postgres is not reachable; skipping member persistence integration test")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, configuration.Use().Database.Opts)
	require.NoError(tb, err)
	tb.Cleanup(pool.Close)

	_, err = Migrate(ctx, pool)
	require.NoError(tb, err)

	tx, err := pool.Begin(ctx)
	require.NoError(tb, err)
	tb.Cleanup(func() { _ = tx.Rollback(context.Background()) })

	return composables.WithTx(composables.WithPool(ctx, pool), tx)
}

func canDialPostgres(tb testing.TB) bool {
	tb.Helper()

	cfg := configuration.Use()
	host := strings.TrimSpace(cfg.Database.Host)
	if host == "" {
		host = "localhost"
	}
	port := strings.TrimSpace(cfg.Database.Port)
	if port == "" {
		port = "5432"
	}
	addr := net.JoinHostPort(host, port)

	dialer := &net.Dialer{Timeout: 250 * time.Millisecond}
	ctx, cancel := context.WithTimeout(context.Background(), 250*time.Millisecond)
	defer cancel()

	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}
