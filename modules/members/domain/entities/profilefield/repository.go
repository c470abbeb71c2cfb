package profilefield

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	ListByMember(ctx context.Context, memberID uuid.UUID) ([]Field, error)
	// Upsert writes the value of the (member, group, label) slot, creating it when absent.
	Upsert(ctx context.Context, f Field) (Field, error)
}
