package membership

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	ErrNotFound  = errors.New("membership not found")
	ErrDuplicate = errors.New("membership already exists")
)

type Repository interface {
	Find(ctx context.Context, memberID, groupID uuid.UUID) (Membership, error)
	ListByMember(ctx context.Context, memberID uuid.UUID) ([]Membership, error)
	Create(ctx context.Context, m Membership) (Membership, error)
	Update(ctx context.Context, m Membership) (Membership, error)
}
