package persistence

import (
	"context"

	gerrors "github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/iota-uz/member-import/modules/members/domain/entities/profilefield"
	"github.com/iota-uz/member-import/pkg/composables"
)

type ProfileFieldRepository struct{}

func NewProfileFieldRepository() profilefield.Repository {
	return &ProfileFieldRepository{}
}

func (r *ProfileFieldRepository) ListByMember(ctx context.Context, memberID uuid.UUID) ([]profilefield.Field, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := tx.Query(ctx,
		`SELECT id, member_id, grp, label, value FROM profile_fields WHERE member_id = $1 ORDER BY grp, label`,
		pgUUIDFromUUID(memberID),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []profilefield.Field
	for rows.Next() {
		var (
			id, owner pgtype.UUID
			grp       string
			label     string
			value     string
		)
		if err := rows.Scan(&id, &owner, &grp, &label, &value); err != nil {
			return nil, err
		}
		out = append(out, profilefield.Hydrate(uuidFromPg(id), uuidFromPg(owner), profilefield.Group(grp), label, value))
	}
	return out, rows.Err()
}

func (r *ProfileFieldRepository) Upsert(ctx context.Context, f profilefield.Field) (profilefield.Field, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return profilefield.Field{}, err
	}
	var id pgtype.UUID
	err = tx.QueryRow(ctx, `
INSERT INTO profile_fields (id, member_id, grp, label, value)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (member_id, grp, label) DO UPDATE SET value = excluded.value
RETURNING id`,
		pgUUIDFromUUID(uuid.New()), pgUUIDFromUUID(f.MemberID()), string(f.Group()), f.Label(), f.Value(),
	).Scan(&id)
	if err != nil {
		return profilefield.Field{}, gerrors.Wrapf(err, "upsert profile field %s", f.Key())
	}
	return f.WithID(uuidFromPg(id)), nil
}
