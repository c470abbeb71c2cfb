package services

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/iota-uz/member-import/modules/netenv/domain/record"
	"github.com/iota-uz/member-import/pkg/logging"
)

func TestCompileFilter(t *testing.T) {
	f, err := CompileFilter(`"H" in r.organizations && !r.hidden`, logging.Discard())
	require.NoError(t, err)

	in := record.Record{ExternalID: "W1", Memberships: []record.MembershipDeclaration{{Organization: "E"}, {Organization: "H"}}}
	require.True(t, f.Match(in))

	in.Hidden = true
	require.False(t, f.Match(in))
	require.False(t, f.Match(record.Record{ExternalID: "W2"}))
}

func TestCompileFilter_Rejects(t *testing.T) {
	for _, expr := range []string{"", "r.external_id +", `"not a bool"`, "1 + 2"} {
		_, err := CompileFilter(expr, nil)
		require.Error(t, err, expr)
	}
}

func TestCELFilter_RuntimeErrorIsMismatch(t *testing.T) {
	f, err := CompileFilter(`r.no_such_field == "x"`, logging.Discard())
	require.NoError(t, err)
	require.False(t, f.Match(record.Record{ExternalID: "W1"}))

	f, err = CompileFilter(`r.last_name`, logging.Discard())
	require.NoError(t, err)
	require.False(t, f.Match(record.Record{ExternalID: "W1", LastName: "Barth"}), "non-bool result")
}
