package member

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound            = errors.New("member not found")
	ErrDuplicateExternalID = errors.New("external id already taken")
	ErrDuplicateEmail      = errors.New("email already taken")
)

type Repository interface {
	GetByID(ctx context.Context, id uuid.UUID) (Member, error)
	GetByExternalID(ctx context.Context, externalID string) (Member, error)
	// GetByEmail matches case-insensitively.
	GetByEmail(ctx context.Context, email string) (Member, error)
	// Save inserts members without an id and updates the rest, bumping updated_at.
	Save(ctx context.Context, m Member) (Member, error)
	// SetTimestamps overwrites created_at/updated_at. Zero values are left unchanged.
	SetTimestamps(ctx context.Context, id uuid.UUID, createdAt, updatedAt time.Time) error
}
