package services

import (
	"context"
	"strings"
	"time"

	gerrors "github.com/go-faster/errors"
	"github.com/google/uuid"

	"github.com/iota-uz/member-import/modules/importer/progress"
	"github.com/iota-uz/member-import/modules/members/domain/aggregates/member"
	"github.com/iota-uz/member-import/modules/members/domain/entities/group"
	"github.com/iota-uz/member-import/modules/members/domain/entities/membership"
	"github.com/iota-uz/member-import/modules/netenv/domain/record"
)

// MembershipImporter makes the stored memberships match a record's declarations.
type MembershipImporter interface {
	Import(ctx context.Context, m member.Member, rec record.Record) ([]Finding, error)
}

// DirectMembershipImporter creates or updates one direct membership per
// declaration. Unknown organizations are left to the completeness check.
type DirectMembershipImporter struct {
	groups      group.Repository
	memberships membership.Repository
}

func NewDirectMembershipImporter(groups group.Repository, memberships membership.Repository) *DirectMembershipImporter {
	return &DirectMembershipImporter{groups: groups, memberships: memberships}
}

func (i *DirectMembershipImporter) Import(ctx context.Context, m member.Member, rec record.Record) ([]Finding, error) {
	var findings []Finding
	for _, decl := range rec.Memberships {
		org, err := i.groups.GetByToken(ctx, decl.Organization)
		if gerrors.Is(err, group.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, gerrors.Wrapf(err, "lookup organization %s", decl.Organization)
		}

		target := org
		if decl.Status != "" {
			status, found, err := i.statusGroup(ctx, org, decl.Status)
			if err != nil {
				return nil, err
			}
			if found {
				target = status
			} else {
				findings = append(findings, warningFinding(progress.NewDetail(
					"unknown_status_group", "status group not found; membership assigned to the organization",
					"external_id", rec.ExternalID,
					"organization", decl.Organization,
					"status", decl.Status,
				)))
			}
		}

		if err := ensureMembership(ctx, i.memberships, m.ID(), target.ID(), decl.ValidFrom, decl.ValidTo); err != nil {
			return nil, gerrors.Wrapf(err, "membership %s", decl)
		}
	}
	return findings, nil
}

func (i *DirectMembershipImporter) statusGroup(ctx context.Context, org group.Group, name string) (group.Group, bool, error) {
	children, err := i.groups.Children(ctx, org.ID())
	if err != nil {
		return group.Group{}, false, err
	}
	for _, c := range children {
		if c.Kind() == group.KindStatus && strings.EqualFold(c.Name(), name) {
			return c, true, nil
		}
	}
	return group.Group{}, false, nil
}

func ensureMembership(ctx context.Context, repo membership.Repository, memberID, groupID uuid.UUID, from, to time.Time) error {
	existing, err := repo.Find(ctx, memberID, groupID)
	switch {
	case gerrors.Is(err, membership.ErrNotFound):
		_, err = repo.Create(ctx, membership.New(memberID, groupID, from, to))
		return err
	case err != nil:
		return err
	case existing.SameValidity(from, to):
		return nil
	default:
		_, err = repo.Update(ctx, existing.WithValidity(from, to))
		return err
	}
}

// RegionalImporter assigns the member to its regional group (BV).
type RegionalImporter struct {
	groups      group.Repository
	memberships membership.Repository
}

func NewRegionalImporter(groups group.Repository, memberships membership.Repository) *RegionalImporter {
	return &RegionalImporter{groups: groups, memberships: memberships}
}

func (i *RegionalImporter) Import(ctx context.Context, m member.Member, rec record.Record) ([]Finding, error) {
	token := strings.TrimSpace(rec.RegionalGroup)
	if token == "" {
		return nil, nil
	}
	g, err := i.groups.GetByToken(ctx, token)
	if gerrors.Is(err, group.ErrNotFound) {
		return []Finding{warningFinding(progress.NewDetail(
			"unknown_regional_group", "regional group not found",
			"external_id", rec.ExternalID,
			"regional_group", token,
		))}, nil
	}
	if err != nil {
		return nil, err
	}
	return nil, ensureMembership(ctx, i.memberships, m.ID(), g.ID(), time.Time{}, time.Time{})
}
