package persistence

import (
	"context"
	"errors"
	"strings"
	"time"

	gerrors "github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/iota-uz/member-import/modules/members/domain/aggregates/member"
	"github.com/iota-uz/member-import/pkg/composables"
)

const memberColumns = `id, external_id, first_name, last_name, email, date_of_birth, hidden, created_at, updated_at`

type MemberRepository struct{}

func NewMemberRepository() member.Repository {
	return &MemberRepository{}
}

func (r *MemberRepository) GetByID(ctx context.Context, id uuid.UUID) (member.Member, error) {
	return r.getOne(ctx, `SELECT `+memberColumns+` FROM members WHERE id = $1`, pgUUIDFromUUID(id))
}

func (r *MemberRepository) GetByExternalID(ctx context.Context, externalID string) (member.Member, error) {
	return r.getOne(ctx, `SELECT `+memberColumns+` FROM members WHERE external_id = $1`, strings.TrimSpace(externalID))
}

func (r *MemberRepository) GetByEmail(ctx context.Context, email string) (member.Member, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return member.Member{}, member.ErrNotFound
	}
	return r.getOne(ctx, `SELECT `+memberColumns+` FROM members WHERE lower(email) = lower($1) LIMIT 1`, email)
}

func (r *MemberRepository) Save(ctx context.Context, m member.Member) (member.Member, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return member.Member{}, err
	}

	var row pgx.Row
	if m.IsNew() {
		row = tx.QueryRow(ctx, `
INSERT INTO members (id, external_id, first_name, last_name, email, date_of_birth, hidden)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING `+memberColumns,
			pgUUIDFromUUID(uuid.New()), m.ExternalID(), m.FirstName(), m.LastName(),
			pgText(m.Email()), pgDate(m.DateOfBirth()), m.Hidden(),
		)
	} else {
		row = tx.QueryRow(ctx, `
UPDATE members
SET external_id = $2, first_name = $3, last_name = $4, email = $5, date_of_birth = $6, hidden = $7, updated_at = now()
WHERE id = $1
RETURNING `+memberColumns,
			pgUUIDFromUUID(m.ID()), m.ExternalID(), m.FirstName(), m.LastName(),
			pgText(m.Email()), pgDate(m.DateOfBirth()), m.Hidden(),
		)
	}

	saved, err := scanMember(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return member.Member{}, member.ErrNotFound
		}
		if constraint, ok := uniqueViolation(err); ok {
			switch constraint {
			case "members_external_id_key":
				return member.Member{}, member.ErrDuplicateExternalID
			case "members_email_lower_key":
				return member.Member{}, member.ErrDuplicateEmail
			}
		}
		return member.Member{}, gerrors.Wrapf(err, "save member %s", m.ExternalID())
	}
	return saved, nil
}

func (r *MemberRepository) SetTimestamps(ctx context.Context, id uuid.UUID, createdAt, updatedAt time.Time) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}
	tag, err := tx.Exec(ctx, `
UPDATE members
SET created_at = COALESCE($2, created_at), updated_at = COALESCE($3, updated_at)
WHERE id = $1`,
		pgUUIDFromUUID(id), pgTimestamptz(createdAt), pgTimestamptz(updatedAt),
	)
	if err != nil {
		return gerrors.Wrap(err, "set member timestamps")
	}
	if tag.RowsAffected() == 0 {
		return member.ErrNotFound
	}
	return nil
}

func (r *MemberRepository) getOne(ctx context.Context, query string, args ...any) (member.Member, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return member.Member{}, err
	}
	m, err := scanMember(tx.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return member.Member{}, member.ErrNotFound
		}
		return member.Member{}, err
	}
	return m, nil
}

func scanMember(row pgx.Row) (member.Member, error) {
	var (
		id          pgtype.UUID
		externalID  string
		firstName   string
		lastName    string
		email       pgtype.Text
		dateOfBirth pgtype.Date
		hidden      bool
		createdAt   time.Time
		updatedAt   time.Time
	)
	if err := row.Scan(&id, &externalID, &firstName, &lastName, &email, &dateOfBirth, &hidden, &createdAt, &updatedAt); err != nil {
		return member.Member{}, err
	}
	return member.Hydrate(
		uuidFromPg(id),
		externalID,
		firstName,
		lastName,
		email.String,
		dateFromPg(dateOfBirth),
		hidden,
		createdAt.UTC(),
		updatedAt.UTC(),
	), nil
}
