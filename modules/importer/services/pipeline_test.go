package services

import (
	"context"
	"errors"
	"os"
	"slices"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/iota-uz/member-import/modules/importer/progress"
	"github.com/iota-uz/member-import/modules/members/domain/aggregates/member"
	"github.com/iota-uz/member-import/modules/members/domain/entities/profilefield"
	"github.com/iota-uz/member-import/modules/netenv/domain/record"
	"github.com/iota-uz/member-import/pkg/checkpoint"
)

func TestPipeline_ReimportIsIdempotent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	second := validRecord("200")
	second.Memberships = append(second.Memberships, record.MembershipDeclaration{Organization: "H", ValidFrom: date(2008, 10, 1)})
	second.SummaryValue = "E 06 H 08"
	second.RegionalGroup = "BV 01"
	second.Hidden = true
	second.Profile = map[profilefield.Group][]record.ProfileValue{
		profilefield.GroupBank:    {{Label: "iban", Value: "de00 1234 5678"}},
		profilefield.GroupContact: {{Label: "phone", Value: " 0123   456 "}},
	}
	recs := []record.Record{validRecord("100"), second, validRecord("300")}

	first, _ := h.run(RunOptions{}, recs...)
	require.Equal(t, 3, first.Counts()[progress.Created])
	require.Empty(t, first.Details(progress.Warning))
	require.Empty(t, first.Details(progress.Failure))

	members, memberships, fields := h.store.Stats()
	before, err := h.store.Members().GetByExternalID(ctx, "200")
	require.NoError(t, err)

	again, _ := h.run(RunOptions{}, recs...)
	counts := again.Counts()
	require.Zero(t, counts[progress.Created])
	require.Equal(t, 3, counts[progress.Updated])
	require.Empty(t, again.Details(progress.Warning))
	require.Empty(t, again.Details(progress.Failure))

	members2, memberships2, fields2 := h.store.Stats()
	require.Equal(t, members, members2)
	require.Equal(t, memberships, memberships2)
	require.Equal(t, fields, fields2)

	after, err := h.store.Members().GetByExternalID(ctx, "200")
	require.NoError(t, err)
	require.Equal(t, before.ID(), after.ID())
	require.Equal(t, before.Name(), after.Name())
	require.Equal(t, before.Email(), after.Email())
	require.True(t, after.Hidden())
	require.True(t, after.CreatedAt().Equal(second.CreatedAt))
	require.True(t, after.UpdatedAt().Equal(second.UpdatedAt))

	list, err := h.store.ProfileFields().ListByMember(ctx, after.ID())
	require.NoError(t, err)
	values := map[string]string{}
	for _, f := range list {
		values[f.Key()] = f.Value()
	}
	require.Equal(t, "DE0012345678", values["bank.iban"])
	require.Equal(t, "0123 456", values["contact.phone"])
	require.Contains(t, values, "general.title", "template slots exist")
}

func TestPipeline_BlankProfileCellKeepsStoredValue(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	r := validRecord("100")
	r.Profile = map[profilefield.Group][]record.ProfileValue{
		profilefield.GroupContact: {{Label: "phone", Value: "0123 456"}},
	}
	h.run(RunOptions{}, r)

	r.Profile = map[profilefield.Group][]record.ProfileValue{
		profilefield.GroupContact: {{Label: "phone", Value: "   "}},
	}
	reporter, _ := h.run(RunOptions{}, r)
	require.Equal(t, 1, reporter.Counts()[progress.Updated])

	m, err := h.store.Members().GetByExternalID(ctx, "100")
	require.NoError(t, err)
	list, err := h.store.ProfileFields().ListByMember(ctx, m.ID())
	require.NoError(t, err)
	values := map[string]string{}
	for _, f := range list {
		values[f.Key()] = f.Value()
	}
	require.Equal(t, "0123 456", values["contact.phone"])
}

func TestPipeline_CheckpointSplitsRunWithoutOverlap(t *testing.T) {
	ids := []string{"100", "200", "300", "400", "500"}
	recs := make([]record.Record, 0, len(ids))
	for _, id := range ids {
		recs = append(recs, validRecord(id))
	}

	full := newHarness(t)
	whole, _ := full.run(RunOptions{}, recs...)

	h := newHarness(t)
	auto := checkpoint.Mode{Kind: checkpoint.Auto}

	part1, stats1 := h.run(RunOptions{Continuation: auto, Limit: 2}, recs...)
	require.True(t, stats1.Stopped)
	require.Equal(t, 2, stats1.Processed)
	raw, err := os.ReadFile(h.checkpoint.Path())
	require.NoError(t, err)
	require.Equal(t, "300", string(raw), "checkpoint points at the first record not yet processed")

	part2, stats2 := h.run(RunOptions{Continuation: auto}, recs...)
	require.True(t, stats2.Resumed)
	require.Equal(t, "300", stats2.ContinueFrom)
	require.Equal(t, 3, stats2.Processed)
	require.Equal(t, 2, part2.Counts()[progress.Skip])

	created := part1.Counts()[progress.Created] + part2.Counts()[progress.Created]
	require.Equal(t, whole.Counts()[progress.Created], created)
	require.Zero(t, part2.Counts()[progress.Updated], "no record of the first run is processed again")

	m1, ms1, f1 := full.store.Stats()
	m2, ms2, f2 := h.store.Stats()
	require.Equal(t, []int{m1, ms1, f1}, []int{m2, ms2, f2})
}

func TestPipeline_FirstEmailHolderWins(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	r1, r2 := validRecord("100"), validRecord("200")
	r1.Email, r2.Email = "x@y.com", "x@y.com"

	reporter, _ := h.run(RunOptions{}, r1, r2)

	m1, err := h.store.Members().GetByExternalID(ctx, "100")
	require.NoError(t, err)
	m2, err := h.store.Members().GetByExternalID(ctx, "200")
	require.NoError(t, err)
	require.Equal(t, "x@y.com", m1.Email())
	require.Empty(t, m2.Email())

	warnings := reporter.Details(progress.Warning)
	require.Len(t, warnings, 1)
	require.Equal(t, "email_duplicate", warnings[0].Kind)
	require.Equal(t, "200", field(t, warnings[0], "external_id"))
	require.Equal(t, "100", field(t, warnings[0], "holder_external_id"))
	require.Equal(t, 2, reporter.Counts()[progress.Created])
}

func TestPipeline_MalformedEmailIsNeverImported(t *testing.T) {
	h := newHarness(t)
	r := validRecord("100")
	r.Email = "not-an-email"

	reporter, _ := h.run(RunOptions{}, r)

	m, err := h.store.Members().GetByExternalID(context.Background(), "100")
	require.NoError(t, err)
	require.Empty(t, m.Email())
	require.Equal(t, []string{"malformed_email"}, kinds(reporter.Details(progress.Warning)))
}

func TestPipeline_SummaryValueMismatchFailsButSaves(t *testing.T) {
	h := newHarness(t)
	r := validRecord("100")
	r.SummaryValue = "E 05"

	reporter, _ := h.run(RunOptions{}, r)

	failures := reporter.Details(progress.Failure)
	require.Equal(t, []string{"summary_value_mismatch"}, kinds(failures))
	require.Equal(t, "E 05", field(t, failures[0], "declared"))
	require.Equal(t, "E 06", field(t, failures[0], "reconstructed"))
	require.Contains(t, kinds(reporter.Details(progress.Warning)), "summary_value_year_mismatch")

	m, err := h.store.Members().GetByExternalID(context.Background(), "100")
	require.NoError(t, err)
	list, err := h.store.Memberships().ListByMember(context.Background(), m.ID())
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, 1, reporter.Counts()[progress.Created])
}

func TestPipeline_GatekeeperFirstMatchWins(t *testing.T) {
	h := newHarness(t)
	r := validRecord("100")
	r.Dummy = true
	r.Duplicate = true
	r.Deleted = true

	reporter, stats := h.run(RunOptions{}, r)

	ignored := reporter.Details(progress.Ignore)
	require.Equal(t, []string{"dummy"}, kinds(ignored))
	require.Equal(t, "E 06", field(t, ignored[0], "summary_value"))
	require.Zero(t, stats.Processed)
	members, _, _ := h.store.Stats()
	require.Zero(t, members)
}

type droppingImporter struct {
	next MembershipImporter
	drop string
}

func (d droppingImporter) Import(ctx context.Context, m member.Member, rec record.Record) ([]Finding, error) {
	rec.Memberships = slices.DeleteFunc(slices.Clone(rec.Memberships), func(decl record.MembershipDeclaration) bool {
		return decl.Organization == d.drop
	})
	return d.next.Import(ctx, m, rec)
}

func TestPipeline_MissingMembershipIsReported(t *testing.T) {
	h := newHarness(t)
	h.memberships = func(def MembershipImporter) MembershipImporter {
		return droppingImporter{next: def, drop: "G"}
	}
	r := validRecord("100")
	r.Memberships = append(r.Memberships, record.MembershipDeclaration{Organization: "G"})

	reporter, _ := h.run(RunOptions{}, r)

	failures := reporter.Details(progress.Failure)
	require.Len(t, failures, 1)
	require.Equal(t, "membership_missing", failures[0].Kind)
	require.Equal(t, "G", field(t, failures[0], "organization"))
}

type failingProfile struct{ group profilefield.Group }

func (f failingProfile) Group() profilefield.Group { return f.group }

func (f failingProfile) Import(context.Context, uuid.UUID, record.Record) error {
	return errors.New("disk full")
}

func TestPipeline_StageFailureRollsBackRecord(t *testing.T) {
	h := newHarness(t)
	h.profiles = append(NewProfileImporters(h.store.ProfileFields()), failingProfile{group: profilefield.GroupBank})

	reporter, stats := h.run(RunOptions{}, validRecord("100"))

	require.Equal(t, 1, stats.Processed)
	failures := reporter.Details(progress.Failure)
	require.Equal(t, []string{"upsert_failed"}, kinds(failures))
	require.Equal(t, "profile.bank", field(t, failures[0], "stage"))
	require.Zero(t, reporter.Counts()[progress.Created])

	members, _, fields := h.store.Stats()
	require.Zero(t, members)
	require.Zero(t, fields)
}

func TestPipeline_RowErrorsAreFailures(t *testing.T) {
	h := newHarness(t)
	records := func(yield func(record.Record, error) bool) {
		if !yield(record.Record{Line: 2}, &record.RowError{Line: 2, ExternalID: "W1", Err: errors.New("bad date")}) {
			return
		}
		yield(validRecord("200"), nil)
	}

	reporter := progress.NewReporter(nil)
	_, err := h.pipeline(reporter).Run(context.Background(), records, RunOptions{})
	require.NoError(t, err)

	failures := reporter.Details(progress.Failure)
	require.Equal(t, []string{"row_invalid"}, kinds(failures))
	require.Equal(t, 2, field(t, failures[0], "line"))
	require.Equal(t, 1, reporter.Counts()[progress.Created])
}

func TestPipeline_ResumeSkipsBrokenRowsBeforeCheckpoint(t *testing.T) {
	records := func(yield func(record.Record, error) bool) {
		if !yield(validRecord("100"), nil) {
			return
		}
		if !yield(record.Record{Line: 3}, &record.RowError{Line: 3, ExternalID: "150", Err: errors.New("bad date")}) {
			return
		}
		for _, id := range []string{"200", "300"} {
			if !yield(validRecord(id), nil) {
				return
			}
		}
	}
	run := func(h *harness, opts RunOptions) *progress.Reporter {
		reporter := progress.NewReporter(nil)
		_, err := h.pipeline(reporter).Run(context.Background(), records, opts)
		require.NoError(t, err)
		return reporter
	}

	whole := run(newHarness(t), RunOptions{})
	require.Equal(t, 1, whole.Counts()[progress.Failure])

	h := newHarness(t)
	auto := checkpoint.Mode{Kind: checkpoint.Auto}
	part1 := run(h, RunOptions{Continuation: auto, Limit: 2})
	part2 := run(h, RunOptions{Continuation: auto})

	require.Equal(t, 1, part1.Counts()[progress.Failure])
	require.Zero(t, part2.Counts()[progress.Failure], "a broken row before the checkpoint is skipped on resume")
	require.Equal(t, 3, part2.Counts()[progress.Skip], "100, the broken 150 and 200")
	for _, c := range []progress.Category{progress.Created, progress.Failure} {
		require.Equal(t, whole.Counts()[c], part1.Counts()[c]+part2.Counts()[c], string(c))
	}
}

type brokenCheckpoint struct{}

func (brokenCheckpoint) Load(context.Context) (string, bool, error) { return "", false, nil }
func (brokenCheckpoint) Save(context.Context, string) error         { return errors.New("read-only fs") }

func TestPipeline_CheckpointWriteFailureIsFatal(t *testing.T) {
	h := newHarness(t)
	p := h.pipeline(progress.NewReporter(nil))
	p.checkpoint = brokenCheckpoint{}

	_, err := p.Run(context.Background(), seq(validRecord("100")), RunOptions{})
	require.ErrorIs(t, err, ErrCheckpoint)
	require.EqualError(t, err, "checkpoint: save: read-only fs")
	members, _, _ := h.store.Stats()
	require.Zero(t, members)
}

func TestPipeline_StopsAfterCancellation(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	records := func(yield func(record.Record, error) bool) {
		if !yield(validRecord("100"), nil) {
			return
		}
		cancel()
		if !yield(validRecord("200"), nil) {
			return
		}
		yield(validRecord("300"), nil)
	}

	stats, err := h.pipeline(progress.NewReporter(nil)).Run(ctx, records, RunOptions{})
	require.NoError(t, err)
	require.True(t, stats.Stopped)
	require.Equal(t, 1, stats.Processed)
	require.Equal(t, "200", stats.LastID)

	id, ok, err := h.checkpoint.Load(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "200", id)
}

func TestPipeline_FilterExcludesSilently(t *testing.T) {
	h := newHarness(t)
	filter, err := CompileFilter(`r.external_id != "200"`, nil)
	require.NoError(t, err)

	reporter, stats := h.run(RunOptions{Filter: filter}, validRecord("100"), validRecord("200"))
	require.Equal(t, 1, stats.Processed)
	require.Equal(t, 1, reporter.Counts().Total())
}
