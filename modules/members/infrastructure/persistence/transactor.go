package persistence

import (
	"context"

	"github.com/iota-uz/member-import/pkg/composables"
)

// Transactor opens a pgx transaction per call using the pool carried in ctx,
// or a savepoint when ctx is already inside one.
type Transactor struct{}

func (Transactor) InTx(ctx context.Context, fn func(context.Context) error) error {
	return composables.InTx(ctx, fn)
}
