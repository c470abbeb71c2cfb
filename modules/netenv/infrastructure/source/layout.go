package source

import (
	"fmt"
	"strings"
	"time"

	gerrors "github.com/go-faster/errors"
	"github.com/go-playground/validator/v10"
	"golang.org/x/text/unicode/norm"

	"github.com/iota-uz/member-import/modules/members/domain/entities/profilefield"
	"github.com/iota-uz/member-import/modules/netenv/domain/record"
	"github.com/iota-uz/member-import/pkg/constants"
)

const (
	colExternalID         = "external_id"
	colFirstName          = "first_name"
	colLastName           = "last_name"
	colEmail              = "email"
	colDateOfBirth        = "date_of_birth"
	colSummaryValue       = "summary_value"
	colFormerSummaryValue = "former_summary_value"
	colJoinedFederationOn = "joined_federation_on"
	colJoinedPrimaryOn    = "joined_primary_on"
	colReceivedOn         = "received_on"
	colGraduatedOn        = "graduated_on"
	colMemberships        = "memberships"
	colRegionalGroup      = "regional_group"
	colHidden             = "hidden"
	colDeleted            = "deleted"
	colDummy              = "dummy"
	colDuplicate          = "duplicate"
	colCreatedAt          = "created_at"
	colUpdatedAt          = "updated_at"
)

var requiredColumns = []string{colExternalID, colLastName}

var allowedColumns = []string{
	colExternalID, colFirstName, colLastName, colEmail, colDateOfBirth,
	colSummaryValue, colFormerSummaryValue,
	colJoinedFederationOn, colJoinedPrimaryOn, colReceivedOn, colGraduatedOn,
	colMemberships, colRegionalGroup,
	colHidden, colDeleted, colDummy, colDuplicate,
	colCreatedAt, colUpdatedAt,
}

type profileColumn struct {
	index int
	group profilefield.Group
	label string
}

type layout struct {
	header  []string
	index   map[string]int
	profile []profileColumn
}

func newLayout(raw []string) (layout, error) {
	header := make([]string, len(raw))
	for i, h := range raw {
		header[i] = strings.ToLower(strings.TrimSpace(h))
	}

	allowed := make(map[string]struct{}, len(allowedColumns))
	for _, c := range allowedColumns {
		allowed[c] = struct{}{}
	}

	l := layout{header: header, index: make(map[string]int, len(header))}
	for i, h := range header {
		if _, dup := l.index[h]; dup {
			return layout{}, gerrors.Errorf("duplicate header column: %s", h)
		}
		l.index[h] = i
		if _, ok := allowed[h]; ok {
			continue
		}
		col, ok := parseProfileColumn(i, h)
		if !ok {
			return layout{}, gerrors.Errorf("unexpected header column: %s", h)
		}
		l.profile = append(l.profile, col)
	}
	for _, req := range requiredColumns {
		if _, ok := l.index[req]; !ok {
			return layout{}, gerrors.Errorf("missing required header column: %s", req)
		}
	}
	return l, nil
}

// parseProfileColumn accepts "<group>.<label>" for one of the closed profile groups.
func parseProfileColumn(index int, name string) (profileColumn, bool) {
	groupName, label, ok := strings.Cut(name, ".")
	if !ok || label == "" {
		return profileColumn{}, false
	}
	g, ok := profilefield.ParseGroup(groupName)
	if !ok {
		return profileColumn{}, false
	}
	return profileColumn{index: index, group: g, label: label}, true
}

func (l layout) decode(line int, row []string) (record.Record, error) {
	get := func(name string) string {
		i, ok := l.index[name]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	rec := record.Record{
		Line:               line,
		ExternalID:         get(colExternalID),
		FirstName:          norm.NFC.String(get(colFirstName)),
		LastName:           norm.NFC.String(get(colLastName)),
		Email:              get(colEmail),
		SummaryValue:       get(colSummaryValue),
		FormerSummaryValue: get(colFormerSummaryValue),
		RegionalGroup:      get(colRegionalGroup),
	}
	fail := func(err error) (record.Record, error) {
		return record.Record{Line: line, ExternalID: rec.ExternalID}, &record.RowError{Line: line, ExternalID: rec.ExternalID, Err: err}
	}

	dates := []struct {
		col string
		dst *time.Time
	}{
		{colDateOfBirth, &rec.DateOfBirth},
		{colJoinedFederationOn, &rec.JoinedFederationOn},
		{colJoinedPrimaryOn, &rec.JoinedPrimaryOn},
		{colReceivedOn, &rec.ReceivedOn},
		{colGraduatedOn, &rec.GraduatedOn},
		{colCreatedAt, &rec.CreatedAt},
		{colUpdatedAt, &rec.UpdatedAt},
	}
	for _, d := range dates {
		t, err := ParseTime(get(d.col))
		if err != nil {
			return fail(gerrors.Wrap(err, d.col))
		}
		*d.dst = t
	}

	flags := []struct {
		col string
		dst *bool
	}{
		{colHidden, &rec.Hidden},
		{colDeleted, &rec.Deleted},
		{colDummy, &rec.Dummy},
		{colDuplicate, &rec.Duplicate},
	}
	for _, f := range flags {
		v, err := parseBool(get(f.col))
		if err != nil {
			return fail(gerrors.Wrap(err, f.col))
		}
		*f.dst = v
	}

	memberships, err := parseMemberships(get(colMemberships))
	if err != nil {
		return fail(gerrors.Wrap(err, colMemberships))
	}
	rec.Memberships = memberships

	for _, col := range l.profile {
		if col.index >= len(row) {
			continue
		}
		v := strings.TrimSpace(row[col.index])
		if v == "" {
			continue
		}
		if rec.Profile == nil {
			rec.Profile = make(map[profilefield.Group][]record.ProfileValue)
		}
		rec.Profile[col.group] = append(rec.Profile[col.group], record.ProfileValue{Label: col.label, Value: v})
	}

	if err := constants.Validate.Struct(rec); err != nil {
		return fail(validationError(err))
	}
	return rec, nil
}

func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !gerrors.As(err, &verrs) {
		return err
	}
	missing := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		missing = append(missing, fmt.Sprintf("%s %s", fe.Field(), fe.Tag()))
	}
	return gerrors.Errorf("invalid record: %s", strings.Join(missing, ", "))
}
