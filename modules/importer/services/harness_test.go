package services

import (
	"context"
	"iter"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/iota-uz/member-import/modules/importer/progress"
	"github.com/iota-uz/member-import/modules/members/domain/entities/group"
	"github.com/iota-uz/member-import/modules/members/infrastructure/memory"
	membersvc "github.com/iota-uz/member-import/modules/members/services"
	"github.com/iota-uz/member-import/modules/netenv/domain/record"
	"github.com/iota-uz/member-import/pkg/checkpoint"
	"github.com/iota-uz/member-import/pkg/logging"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

type harness struct {
	t          *testing.T
	store      *memory.Store
	checkpoint *checkpoint.FileStore
	// memberships replaces the membership importer when set.
	memberships func(def MembershipImporter) MembershipImporter
	profiles    []ProfileImporter
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	store := memory.New(memory.WithClock(func() time.Time { return testNow }))
	_, err := membersvc.NewGroupSeeder(store.Groups()).Seed(context.Background(), []membersvc.GroupSeed{
		{Token: "E", Name: "Erlanger Wingolf", Kind: group.KindCorporation, Children: []membersvc.GroupSeed{
			{Name: "Aktive", Kind: group.KindStatus},
			{Name: "Philister", Kind: group.KindStatus},
		}},
		{Token: "H", Name: "Hallenser Wingolf", Kind: group.KindCorporation},
		{Token: "G", Name: "Göttinger Wingolf", Kind: group.KindCorporation},
		{Token: "BV 01", Name: "Bezirksverband 01", Kind: group.KindRegional},
	})
	require.NoError(t, err)
	return &harness{
		t:          t,
		store:      store,
		checkpoint: checkpoint.NewFileStore(filepath.Join(t.TempDir(), "import.continue")),
	}
}

func (h *harness) pipeline(reporter *progress.Reporter) *Pipeline {
	s := h.store
	var memberships MembershipImporter = NewDirectMembershipImporter(s.Groups(), s.Memberships())
	if h.memberships != nil {
		memberships = h.memberships(memberships)
	}
	profiles := h.profiles
	if profiles == nil {
		profiles = NewProfileImporters(s.ProfileFields())
	}
	engine := NewUpsertEngine(UpsertDeps{
		Tx:          s,
		Members:     s.Members(),
		Profiles:    profiles,
		Templates:   NewTemplateImporter(s.ProfileFields()),
		Memberships: memberships,
		Regional:    NewRegionalImporter(s.Groups(), s.Memberships()),
		Checker: NewConsistencyChecker(s.Members(), s.Groups(),
			membersvc.NewSummaryValueService(s.Groups(), s.Memberships()),
			func() time.Time { return testNow }),
		Logger: logging.Discard(),
	})
	return NewPipeline(NewIdentityResolver(s.Members()), engine, h.checkpoint, reporter,
		WithLogger(logging.Discard()))
}

func (h *harness) run(opts RunOptions, recs ...record.Record) (*progress.Reporter, RunStats) {
	h.t.Helper()
	reporter := progress.NewReporter(nil)
	stats, err := h.pipeline(reporter).Run(context.Background(), seq(recs...), opts)
	require.NoError(h.t, err)
	return reporter, stats
}

func seq(recs ...record.Record) iter.Seq2[record.Record, error] {
	return func(yield func(record.Record, error) bool) {
		for _, r := range recs {
			if !yield(r, nil) {
				return
			}
		}
	}
}

// validRecord is consistent with itself: an Aktive membership in E since 2006
// and the summary value "E 06".
func validRecord(id string) record.Record {
	return record.Record{
		ExternalID:      id,
		FirstName:       "Max",
		LastName:        "Muster" + id,
		Email:           "m" + id + "@example.org",
		DateOfBirth:     date(1986, 3, 4),
		SummaryValue:    "E 06",
		JoinedPrimaryOn: date(2006, 5, 1),
		Memberships: []record.MembershipDeclaration{
			{Organization: "E", Status: "Aktive", ValidFrom: date(2006, 5, 1)},
		},
		CreatedAt: time.Date(2010, 1, 2, 3, 4, 5, 0, time.UTC),
		UpdatedAt: time.Date(2020, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func kinds(details []progress.Detail) []string {
	out := make([]string, 0, len(details))
	for _, d := range details {
		out = append(out, d.Kind)
	}
	return out
}

func field(t *testing.T, d progress.Detail, key string) any {
	t.Helper()
	v, ok := d.Get(key)
	require.True(t, ok, "detail %s has no field %s", d.Kind, key)
	return v
}
