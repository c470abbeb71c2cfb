package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	importersvc "github.com/iota-uz/member-import/modules/importer/services"
	"github.com/iota-uz/member-import/modules/members/domain/aggregates/member"
	"github.com/iota-uz/member-import/modules/members/domain/entities/group"
	"github.com/iota-uz/member-import/modules/members/domain/entities/membership"
	"github.com/iota-uz/member-import/modules/members/domain/entities/profilefield"
	"github.com/iota-uz/member-import/modules/members/infrastructure/memory"
	"github.com/iota-uz/member-import/modules/members/infrastructure/persistence"
	membersvc "github.com/iota-uz/member-import/modules/members/services"
	"github.com/iota-uz/member-import/pkg/composables"
	"github.com/iota-uz/member-import/pkg/configuration"
)

const (
	backendMemory   = "memory"
	backendPostgres = "postgres"
)

// backend is the member store an import writes to.
type backend struct {
	members     member.Repository
	groups      group.Repository
	memberships membership.Repository
	fields      profilefield.Repository
	tx          importersvc.Transactor
	close       func()
}

func connectDB(ctx context.Context) (*pgxpool.Pool, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	pool, err := pgxpool.New(ctx, configuration.Use().Database.Opts)
	if err != nil {
		return nil, fmt.Errorf("db connect failed: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("db connect failed: %w", err)
	}
	return pool, nil
}

// openBackend returns the context the repositories must be called with; for
// postgres it carries the pool.
func openBackend(ctx context.Context, kind string) (context.Context, *backend, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case backendMemory:
		s := memory.New()
		return ctx, &backend{
			members:     s.Members(),
			groups:      s.Groups(),
			memberships: s.Memberships(),
			fields:      s.ProfileFields(),
			tx:          s,
			close:       func() {},
		}, nil
	case backendPostgres:
		pool, err := connectDB(ctx)
		if err != nil {
			return nil, nil, withCode(exitDB, err)
		}
		return composables.WithPool(ctx, pool), &backend{
			members:     persistence.NewMemberRepository(),
			groups:      persistence.NewGroupRepository(),
			memberships: persistence.NewMembershipRepository(),
			fields:      persistence.NewProfileFieldRepository(),
			tx:          persistence.Transactor{},
			close:       pool.Close,
		}, nil
	default:
		return nil, nil, withCode(exitUsage, fmt.Errorf("invalid --backend=%q (expected memory|postgres)", kind))
	}
}

func seedGroups(ctx context.Context, b *backend, path string, log logrus.FieldLogger) error {
	if strings.TrimSpace(path) == "" {
		return nil
	}
	seeds, err := membersvc.LoadGroupSeedFile(path)
	if err != nil {
		return withCode(exitInput, fmt.Errorf("groups %s: %w", path, err))
	}
	var stats membersvc.SeedStats
	err = b.tx.InTx(ctx, func(ctx context.Context) error {
		var err error
		stats, err = membersvc.NewGroupSeeder(b.groups).Seed(ctx, seeds)
		return err
	})
	if err != nil {
		return withCode(exitDB, fmt.Errorf("seed groups: %w", err))
	}
	log.WithFields(logrus.Fields{"created": stats.Created, "existing": stats.Existing}).Info("groups seeded")
	return nil
}
