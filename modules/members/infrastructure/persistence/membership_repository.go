package persistence

import (
	"context"
	"errors"

	gerrors "github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/iota-uz/member-import/modules/members/domain/entities/membership"
	"github.com/iota-uz/member-import/pkg/composables"
)

const membershipColumns = `id, member_id, group_id, valid_from, valid_to`

type MembershipRepository struct{}

func NewMembershipRepository() membership.Repository {
	return &MembershipRepository{}
}

func (r *MembershipRepository) Find(ctx context.Context, memberID, groupID uuid.UUID) (membership.Membership, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return membership.Membership{}, err
	}
	m, err := scanMembership(tx.QueryRow(ctx,
		`SELECT `+membershipColumns+` FROM memberships WHERE member_id = $1 AND group_id = $2`,
		pgUUIDFromUUID(memberID), pgUUIDFromUUID(groupID),
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return membership.Membership{}, membership.ErrNotFound
		}
		return membership.Membership{}, err
	}
	return m, nil
}

func (r *MembershipRepository) ListByMember(ctx context.Context, memberID uuid.UUID) ([]membership.Membership, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := tx.Query(ctx,
		`SELECT `+membershipColumns+` FROM memberships WHERE member_id = $1 ORDER BY valid_from NULLS FIRST, group_id`,
		pgUUIDFromUUID(memberID),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []membership.Membership
	for rows.Next() {
		m, err := scanMembership(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (r *MembershipRepository) Create(ctx context.Context, m membership.Membership) (membership.Membership, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return membership.Membership{}, err
	}
	created, err := scanMembership(tx.QueryRow(ctx, `
INSERT INTO memberships (id, member_id, group_id, valid_from, valid_to)
VALUES ($1, $2, $3, $4, $5)
RETURNING `+membershipColumns,
		pgUUIDFromUUID(uuid.New()), pgUUIDFromUUID(m.MemberID()), pgUUIDFromUUID(m.GroupID()),
		pgDate(m.ValidFrom()), pgDate(m.ValidTo()),
	))
	if err != nil {
		if _, ok := uniqueViolation(err); ok {
			return membership.Membership{}, membership.ErrDuplicate
		}
		return membership.Membership{}, gerrors.Wrap(err, "create membership")
	}
	return created, nil
}

func (r *MembershipRepository) Update(ctx context.Context, m membership.Membership) (membership.Membership, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return membership.Membership{}, err
	}
	updated, err := scanMembership(tx.QueryRow(ctx, `
UPDATE memberships SET valid_from = $2, valid_to = $3
WHERE id = $1
RETURNING `+membershipColumns,
		pgUUIDFromUUID(m.ID()), pgDate(m.ValidFrom()), pgDate(m.ValidTo()),
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return membership.Membership{}, membership.ErrNotFound
		}
		return membership.Membership{}, gerrors.Wrap(err, "update membership")
	}
	return updated, nil
}

func scanMembership(row pgx.Row) (membership.Membership, error) {
	var (
		id, memberID, groupID pgtype.UUID
		validFrom, validTo    pgtype.Date
	)
	if err := row.Scan(&id, &memberID, &groupID, &validFrom, &validTo); err != nil {
		return membership.Membership{}, err
	}
	return membership.Hydrate(
		uuidFromPg(id), uuidFromPg(memberID), uuidFromPg(groupID),
		dateFromPg(validFrom), dateFromPg(validTo),
	), nil
}
