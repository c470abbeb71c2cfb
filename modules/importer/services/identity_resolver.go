package services

import (
	"context"
	"strings"

	gerrors "github.com/go-faster/errors"
	"github.com/lithammer/fuzzysearch/fuzzy"

	"github.com/iota-uz/member-import/modules/importer/progress"
	"github.com/iota-uz/member-import/modules/members/domain/aggregates/member"
	"github.com/iota-uz/member-import/modules/netenv/domain/record"
)

// Decision carries what the resolver decided about a record's identity
// fields into the upsert.
type Decision struct {
	SuppressEmail bool
}

// IdentityResolver keeps emails unique. The member that holds an address
// first keeps it; later records are imported without one.
type IdentityResolver struct {
	members member.Repository
}

func NewIdentityResolver(members member.Repository) *IdentityResolver {
	return &IdentityResolver{members: members}
}

func (r *IdentityResolver) Resolve(ctx context.Context, rec record.Record) (Decision, []progress.Detail, error) {
	email := strings.TrimSpace(rec.Email)
	if email == "" {
		return Decision{}, nil, nil
	}

	var (
		dec     Decision
		details []progress.Detail
	)

	holder, err := r.members.GetByEmail(ctx, email)
	switch {
	case err == nil:
		if holder.ExternalID() != rec.ExternalID {
			dec.SuppressEmail = true
			details = append(details, progress.NewDetail(
				"email_duplicate", "email already belongs to another member; imported without email",
				"external_id", rec.ExternalID,
				"name", rec.Name(),
				"email", email,
				"holder_external_id", holder.ExternalID(),
				"holder_name", holder.Name(),
				"names_similar", namesSimilar(rec.Name(), holder.Name()),
			))
		}
	case gerrors.Is(err, member.ErrNotFound):
	default:
		return Decision{}, nil, gerrors.Wrap(err, "lookup email holder")
	}

	if !strings.Contains(email, "@") || !strings.Contains(email, ".") {
		dec.SuppressEmail = true
		details = append(details, progress.NewDetail(
			"malformed_email", "email is not importable",
			"external_id", rec.ExternalID,
			"name", rec.Name(),
			"email", email,
		))
	}
	return dec, details, nil
}

func namesSimilar(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	return fuzzy.MatchNormalizedFold(a, b) || fuzzy.MatchNormalizedFold(b, a)
}
