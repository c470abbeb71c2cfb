package group

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	ErrNotFound       = errors.New("group not found")
	ErrDuplicateToken = errors.New("group token already taken")
)

type Repository interface {
	GetByID(ctx context.Context, id uuid.UUID) (Group, error)
	GetByToken(ctx context.Context, token string) (Group, error)
	Children(ctx context.Context, parentID uuid.UUID) ([]Group, error)
	// Descendants returns every group below id, excluding id itself.
	Descendants(ctx context.Context, id uuid.UUID) ([]Group, error)
	// DescendantMembers returns the ids of members holding a membership in
	// the group or in any group below it.
	DescendantMembers(ctx context.Context, id uuid.UUID) ([]uuid.UUID, error)
	Save(ctx context.Context, g Group) (Group, error)
}
