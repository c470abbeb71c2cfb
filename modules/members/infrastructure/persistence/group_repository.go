package persistence

import (
	"context"
	"errors"
	"strings"

	gerrors "github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/iota-uz/member-import/modules/members/domain/entities/group"
	"github.com/iota-uz/member-import/pkg/composables"
)

const groupColumns = `id, token, name, kind, parent_id`

type GroupRepository struct{}

func NewGroupRepository() group.Repository {
	return &GroupRepository{}
}

func (r *GroupRepository) GetByID(ctx context.Context, id uuid.UUID) (group.Group, error) {
	return r.getOne(ctx, `SELECT `+groupColumns+` FROM groups WHERE id = $1`, pgUUIDFromUUID(id))
}

func (r *GroupRepository) GetByToken(ctx context.Context, token string) (group.Group, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return group.Group{}, group.ErrNotFound
	}
	return r.getOne(ctx, `SELECT `+groupColumns+` FROM groups WHERE token = $1`, token)
}

func (r *GroupRepository) Children(ctx context.Context, parentID uuid.UUID) ([]group.Group, error) {
	return r.list(ctx, `
SELECT `+groupColumns+` FROM groups
WHERE parent_id = $1
ORDER BY COALESCE(token, name)`, pgUUIDFromUUID(parentID))
}

func (r *GroupRepository) Descendants(ctx context.Context, id uuid.UUID) ([]group.Group, error) {
	return r.list(ctx, `
WITH RECURSIVE tree AS (
    SELECT g.id, 1 AS depth FROM groups g WHERE g.parent_id = $1
    UNION ALL
    SELECT g.id, t.depth + 1 FROM groups g JOIN tree t ON g.parent_id = t.id
)
SELECT g.id, g.token, g.name, g.kind, g.parent_id
FROM groups g JOIN tree t ON t.id = g.id
ORDER BY t.depth, COALESCE(g.token, g.name)`, pgUUIDFromUUID(id))
}

func (r *GroupRepository) DescendantMembers(ctx context.Context, id uuid.UUID) ([]uuid.UUID, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := tx.Query(ctx, `
WITH RECURSIVE tree AS (
    SELECT id FROM groups WHERE id = $1
    UNION ALL
    SELECT g.id FROM groups g JOIN tree t ON g.parent_id = t.id
)
SELECT DISTINCT m.member_id
FROM memberships m JOIN tree t ON m.group_id = t.id`, pgUUIDFromUUID(id))
	if err != nil {
		return nil, gerrors.Wrap(err, "descendant members")
	}
	defer rows.Close()

	var out []uuid.UUID
	for rows.Next() {
		var memberID pgtype.UUID
		if err := rows.Scan(&memberID); err != nil {
			return nil, err
		}
		out = append(out, uuidFromPg(memberID))
	}
	return out, rows.Err()
}

func (r *GroupRepository) Save(ctx context.Context, g group.Group) (group.Group, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return group.Group{}, err
	}

	id := g.ID()
	if id == uuid.Nil {
		id = uuid.New()
	}
	row := tx.QueryRow(ctx, `
INSERT INTO groups (id, token, name, kind, parent_id)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (id) DO UPDATE SET token = excluded.token, name = excluded.name, kind = excluded.kind, parent_id = excluded.parent_id
RETURNING `+groupColumns,
		pgUUIDFromUUID(id), pgText(g.Token()), g.Name(), string(g.Kind()), pgNullableUUID(g.ParentID()),
	)
	saved, err := scanGroup(row)
	if err != nil {
		if constraint, ok := uniqueViolation(err); ok && constraint == "groups_token_key" {
			return group.Group{}, group.ErrDuplicateToken
		}
		return group.Group{}, gerrors.Wrapf(err, "save group %s", g.Label())
	}
	return saved, nil
}

func (r *GroupRepository) getOne(ctx context.Context, query string, args ...any) (group.Group, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return group.Group{}, err
	}
	g, err := scanGroup(tx.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return group.Group{}, group.ErrNotFound
		}
		return group.Group{}, err
	}
	return g, nil
}

func (r *GroupRepository) list(ctx context.Context, query string, args ...any) ([]group.Group, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := tx.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []group.Group
	for rows.Next() {
		g, err := scanGroup(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

func scanGroup(row pgx.Row) (group.Group, error) {
	var (
		id       pgtype.UUID
		token    pgtype.Text
		name     string
		kind     string
		parentID pgtype.UUID
	)
	if err := row.Scan(&id, &token, &name, &kind, &parentID); err != nil {
		return group.Group{}, err
	}
	return group.New(name, group.Kind(kind),
		group.WithID(uuidFromPg(id)),
		group.WithToken(token.String),
		group.WithParent(uuidFromPg(parentID)),
	), nil
}
