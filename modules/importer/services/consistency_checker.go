package services

import (
	"context"
	"slices"
	"strings"
	"time"

	gerrors "github.com/go-faster/errors"
	"github.com/google/uuid"

	"github.com/iota-uz/member-import/modules/importer/progress"
	"github.com/iota-uz/member-import/modules/members/domain/aggregates/member"
	"github.com/iota-uz/member-import/modules/members/domain/entities/group"
	"github.com/iota-uz/member-import/modules/members/domain/value_objects/summary"
	"github.com/iota-uz/member-import/modules/netenv/domain/record"
)

// SummaryValuer derives a member's summary value from stored memberships.
type SummaryValuer interface {
	SummaryValue(ctx context.Context, memberID uuid.UUID) (string, error)
}

type ConsistencyChecker struct {
	members member.Repository
	groups  group.Repository
	summary SummaryValuer
	now     func() time.Time
}

func NewConsistencyChecker(
	members member.Repository,
	groups group.Repository,
	summaryValuer SummaryValuer,
	now func() time.Time,
) *ConsistencyChecker {
	if now == nil {
		now = time.Now
	}
	return &ConsistencyChecker{members: members, groups: groups, summary: summaryValuer, now: now}
}

// PreCheck validates the dates a record declares. Only a missing joining
// date is a failure; everything else is advisory.
func (c *ConsistencyChecker) PreCheck(rec record.Record) []Finding {
	var findings []Finding

	joined := rec.JoiningDate()
	if joined.IsZero() {
		findings = append(findings, failureFinding(progress.NewDetail(
			"missing_joining_date", "record has no joining date",
			"external_id", rec.ExternalID,
			"name", rec.Name(),
		)))
	}

	if !rec.JoinedFederationOn.IsZero() && !rec.JoinedPrimaryOn.IsZero() && !rec.JoinedFederationOn.Equal(rec.JoinedPrimaryOn) {
		findings = append(findings, warningFinding(progress.NewDetail(
			"joining_date_mismatch", "federation and primary organization joining dates differ",
			"external_id", rec.ExternalID,
			"joined_federation_on", rec.JoinedFederationOn.Format(time.DateOnly),
			"joined_primary_on", rec.JoinedPrimaryOn.Format(time.DateOnly),
			"primary_organization", rec.PrimaryOrganization(),
		)))
	}

	if !joined.IsZero() && strings.TrimSpace(rec.SummaryValue) != "" {
		value, err := summary.Parse(rec.SummaryValue)
		switch {
		case err != nil:
			findings = append(findings, warningFinding(progress.NewDetail(
				"summary_value_invalid", err.Error(),
				"external_id", rec.ExternalID,
				"summary_value", rec.SummaryValue,
			)))
		case len(value) > 0 && value[0].FullYear(c.now()) != joined.Year():
			findings = append(findings, warningFinding(progress.NewDetail(
				"summary_value_year_mismatch", "joining year differs from the summary value",
				"external_id", rec.ExternalID,
				"joined_on", joined.Format(time.DateOnly),
				"summary_value", rec.SummaryValue,
				"former_summary_value", rec.FormerSummaryValue,
			)))
		}
	}

	if !rec.ReceivedOn.IsZero() && !rec.GraduatedOn.IsZero() && rec.GraduatedOn.Before(rec.ReceivedOn) {
		findings = append(findings, warningFinding(progress.NewDetail(
			"lifecycle_date_order", "graduated before being received",
			"external_id", rec.ExternalID,
			"received_on", rec.ReceivedOn.Format(time.DateOnly),
			"graduated_on", rec.GraduatedOn.Format(time.DateOnly),
		)))
	}
	return findings
}

// PostCheck reloads the member and verifies the imported memberships: the
// summary value must be reproducible and every declared organization must
// reach the member.
func (c *ConsistencyChecker) PostCheck(ctx context.Context, rec record.Record, memberID uuid.UUID) ([]Finding, error) {
	m, err := c.members.GetByID(ctx, memberID)
	if err != nil {
		return nil, gerrors.Wrap(err, "reload member")
	}

	var findings []Finding

	reconstructed, err := c.summary.SummaryValue(ctx, m.ID())
	if err != nil {
		return nil, gerrors.Wrap(err, "recompute summary value")
	}
	if strings.TrimSpace(reconstructed) != strings.TrimSpace(rec.SummaryValue) {
		findings = append(findings, failureFinding(progress.NewDetail(
			"summary_value_mismatch", "imported memberships do not reproduce the summary value",
			"external_id", rec.ExternalID,
			"name", rec.Name(),
			"declared", rec.SummaryValue,
			"reconstructed", reconstructed,
		)))
	}

	for _, token := range rec.Organizations() {
		reached, err := c.reaches(ctx, token, m.ID())
		if err != nil {
			return nil, err
		}
		if !reached {
			findings = append(findings, failureFinding(progress.NewDetail(
				"membership_missing", "member is not reachable from a declared organization",
				"external_id", rec.ExternalID,
				"name", rec.Name(),
				"organization", token,
			)))
		}
	}
	return findings, nil
}

func (c *ConsistencyChecker) reaches(ctx context.Context, token string, memberID uuid.UUID) (bool, error) {
	g, err := c.groups.GetByToken(ctx, token)
	if gerrors.Is(err, group.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, gerrors.Wrapf(err, "lookup organization %s", token)
	}
	ids, err := c.groups.DescendantMembers(ctx, g.ID())
	if err != nil {
		return false, gerrors.Wrapf(err, "descendant members of %s", token)
	}
	return slices.Contains(ids, memberID), nil
}
