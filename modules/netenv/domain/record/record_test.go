package record

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRecord_Organizations(t *testing.T) {
	r := Record{Memberships: []MembershipDeclaration{
		{Organization: "E", Status: "Aktive"},
		{Organization: "H"},
		{Organization: "E", Status: "Philister"},
	}}
	require.Equal(t, []string{"E", "H"}, r.Organizations())
	require.Equal(t, "E", r.PrimaryOrganization())
	require.Empty(t, Record{}.PrimaryOrganization())
}

func TestRecord_JoiningDatePrefersPrimary(t *testing.T) {
	fed := time.Date(2006, 1, 1, 0, 0, 0, 0, time.UTC)
	primary := time.Date(2006, 5, 1, 0, 0, 0, 0, time.UTC)

	require.Equal(t, fed, Record{JoinedFederationOn: fed}.JoiningDate())
	require.Equal(t, primary, Record{JoinedFederationOn: fed, JoinedPrimaryOn: primary}.JoiningDate())
}

func TestRecord_FilterVars(t *testing.T) {
	r := Record{
		ExternalID:  "W64",
		FirstName:   "Max",
		LastName:    "Mustermann",
		DateOfBirth: time.Date(1986, 3, 4, 0, 0, 0, 0, time.UTC),
		Memberships: []MembershipDeclaration{{Organization: "E"}},
		Dummy:       true,
	}
	vars := r.FilterVars()
	require.Equal(t, "Max Mustermann", vars["name"])
	require.Equal(t, "1986-03-04", vars["date_of_birth"])
	require.Equal(t, "", vars["joined_on"])
	require.Equal(t, []string{"E"}, vars["organizations"])
	require.Equal(t, true, vars["dummy"])
}

func TestMembershipDeclaration_String(t *testing.T) {
	d := MembershipDeclaration{
		Organization: "E",
		Status:       "Philister",
		ValidFrom:    time.Date(2006, 5, 1, 0, 0, 0, 0, time.UTC),
	}
	require.Equal(t, "E/Philister:2006-05-01", d.String())
}

func TestRowError_Unwraps(t *testing.T) {
	cause := errors.New("bad date")
	err := error(&RowError{Line: 7, ExternalID: "W1", Err: cause})
	require.ErrorIs(t, err, cause)
	require.Equal(t, "line 7 (W1): bad date", err.Error())
}
