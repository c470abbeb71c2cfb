package services

import (
	"context"
	"slices"
	"strings"
	"time"

	gerrors "github.com/go-faster/errors"
	"github.com/google/uuid"

	"github.com/iota-uz/member-import/modules/members/domain/entities/group"
	"github.com/iota-uz/member-import/modules/members/domain/entities/membership"
	"github.com/iota-uz/member-import/modules/members/domain/value_objects/summary"
)

// SummaryValueService derives a member's Aktivitätszahl from stored
// memberships: for every corporation reached, the year of the earliest
// membership in it or any group below it, ordered by that date.
type SummaryValueService struct {
	groups      group.Repository
	memberships membership.Repository
}

func NewSummaryValueService(groups group.Repository, memberships membership.Repository) *SummaryValueService {
	return &SummaryValueService{groups: groups, memberships: memberships}
}

func (s *SummaryValueService) SummaryValue(ctx context.Context, memberID uuid.UUID) (string, error) {
	list, err := s.memberships.ListByMember(ctx, memberID)
	if err != nil {
		return "", gerrors.Wrap(err, "list memberships")
	}

	earliest := make(map[string]time.Time)
	corporations := make(map[uuid.UUID]group.Group)
	for _, m := range list {
		if m.ValidFrom().IsZero() {
			continue
		}
		corp, ok, err := s.corporationOf(ctx, m.GroupID(), corporations)
		if err != nil {
			return "", err
		}
		if !ok {
			continue
		}
		if t, seen := earliest[corp.Token()]; !seen || m.ValidFrom().Before(t) {
			earliest[corp.Token()] = m.ValidFrom()
		}
	}

	tokens := make([]string, 0, len(earliest))
	for token := range earliest {
		tokens = append(tokens, token)
	}
	slices.SortFunc(tokens, func(a, b string) int {
		if c := earliest[a].Compare(earliest[b]); c != 0 {
			return c
		}
		return strings.Compare(a, b)
	})

	value := make(summary.Value, 0, len(tokens))
	for _, token := range tokens {
		value = append(value, summary.Entry{Token: token, YY: earliest[token].Year() % 100})
	}
	return value.String(), nil
}

// corporationOf walks up from groupID to the nearest corporation.
func (s *SummaryValueService) corporationOf(ctx context.Context, groupID uuid.UUID, cache map[uuid.UUID]group.Group) (group.Group, bool, error) {
	if corp, ok := cache[groupID]; ok {
		return corp, corp.ID() != uuid.Nil, nil
	}
	visited := make(map[uuid.UUID]struct{})
	for id := groupID; id != uuid.Nil; {
		if _, loop := visited[id]; loop {
			break
		}
		visited[id] = struct{}{}
		g, err := s.groups.GetByID(ctx, id)
		if err != nil {
			return group.Group{}, false, gerrors.Wrapf(err, "load group %s", id)
		}
		if g.Kind() == group.KindCorporation {
			cache[groupID] = g
			return g, true, nil
		}
		id = g.ParentID()
	}
	cache[groupID] = group.Group{}
	return group.Group{}, false, nil
}
