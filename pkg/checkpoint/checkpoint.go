// Package checkpoint persists the external id of the last eligible record an
// import has started, so an interrupted run can be resumed.
//
// A checkpoint C means every record with id < C has been fully processed. The
// record with id C itself may have been interrupted, so resuming reprocesses it.
package checkpoint

import (
	"context"
	"strings"

	gerrors "github.com/go-faster/errors"
)

type Store interface {
	// Load returns the stored id. ok is false when nothing has been stored.
	Load(ctx context.Context) (id string, ok bool, err error)
	Save(ctx context.Context, id string) error
}

type ModeKind int

const (
	Disabled ModeKind = iota
	Named
	Auto
)

// Mode selects where a run continues from.
type Mode struct {
	Kind ModeKind
	ID   string
}

// ParseMode maps the --continue-with flag value to a Mode:
// "" disables continuation, "auto" or "last" resumes from the store, anything
// else is taken as an explicit external id.
func ParseMode(v string) Mode {
	v = strings.TrimSpace(v)
	switch strings.ToLower(v) {
	case "":
		return Mode{Kind: Disabled}
	case "auto", "last", "last_user":
		return Mode{Kind: Auto}
	default:
		return Mode{Kind: Named, ID: v}
	}
}

func (m Mode) String() string {
	switch m.Kind {
	case Named:
		return m.ID
	case Auto:
		return "auto"
	default:
		return "disabled"
	}
}

// Resolve returns the id to continue from, if any.
func Resolve(ctx context.Context, store Store, mode Mode) (string, bool, error) {
	switch mode.Kind {
	case Named:
		return mode.ID, mode.ID != "", nil
	case Auto:
		if store == nil {
			return "", false, nil
		}
		id, ok, err := store.Load(ctx)
		if err != nil {
			return "", false, gerrors.Wrap(err, "load checkpoint")
		}
		return id, ok && id != "", nil
	default:
		return "", false, nil
	}
}

// Nop discards checkpoints. Used when no checkpoint location is configured.
type Nop struct{}

func (Nop) Load(context.Context) (string, bool, error) { return "", false, nil }
func (Nop) Save(context.Context, string) error         { return nil }
