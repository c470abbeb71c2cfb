package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/iota-uz/member-import/modules/importer/progress"
	"github.com/iota-uz/member-import/modules/netenv/domain/record"
)

func precheck(rec record.Record) []Finding {
	c := NewConsistencyChecker(nil, nil, nil, func() time.Time { return testNow })
	return c.PreCheck(rec)
}

func findingKinds(findings []Finding, c progress.Category) []string {
	var out []string
	for _, f := range findings {
		if f.Category == c {
			out = append(out, f.Detail.Kind)
		}
	}
	return out
}

func TestPreCheck_ConsistentRecordIsSilent(t *testing.T) {
	require.Empty(t, precheck(validRecord("W1")))
}

func TestPreCheck_MissingJoiningDateFails(t *testing.T) {
	rec := validRecord("W1")
	rec.JoinedPrimaryOn = time.Time{}

	findings := precheck(rec)
	require.Equal(t, []string{"missing_joining_date"}, findingKinds(findings, progress.Failure))
	require.Empty(t, findingKinds(findings, progress.Warning), "year check needs a declared date")
}

func TestPreCheck_Warnings(t *testing.T) {
	rec := validRecord("W1")
	rec.JoinedFederationOn = date(2005, 11, 1)
	rec.SummaryValue = "E 07"
	rec.ReceivedOn = date(2007, 1, 1)
	rec.GraduatedOn = date(2006, 1, 1)

	findings := precheck(rec)
	require.Empty(t, findingKinds(findings, progress.Failure))
	require.Equal(t, []string{
		"joining_date_mismatch",
		"summary_value_year_mismatch",
		"lifecycle_date_order",
	}, findingKinds(findings, progress.Warning))

	mismatch := findings[0].Detail
	require.Equal(t, "E", field(t, mismatch, "primary_organization"))
	require.Equal(t, "2005-11-01", field(t, mismatch, "joined_federation_on"))
}

func TestPreCheck_UsesCenturyPivot(t *testing.T) {
	rec := validRecord("W1")
	rec.JoinedPrimaryOn = date(1987, 10, 1)
	rec.SummaryValue = "E 87"
	require.Empty(t, precheck(rec))

	rec.SummaryValue = "E 87 H 12"
	require.Empty(t, precheck(rec))
}

func TestPreCheck_UnparsableSummaryValue(t *testing.T) {
	rec := validRecord("W1")
	rec.SummaryValue = "E 2006"
	require.Equal(t, []string{"summary_value_invalid"}, findingKinds(precheck(rec), progress.Warning))
}
