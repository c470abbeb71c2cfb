// Package record holds the typed rows of a netenv member export.
package record

import (
	"fmt"
	"strings"
	"time"

	"github.com/iota-uz/member-import/modules/members/domain/entities/profilefield"
)

// MembershipDeclaration is one organization a record claims, optionally
// narrowed to a status group below it.
type MembershipDeclaration struct {
	Organization string
	Status       string
	ValidFrom    time.Time
	ValidTo      time.Time
}

func (d MembershipDeclaration) String() string {
	var b strings.Builder
	b.WriteString(d.Organization)
	if d.Status != "" {
		b.WriteString("/")
		b.WriteString(d.Status)
	}
	if !d.ValidFrom.IsZero() {
		b.WriteString(":")
		b.WriteString(d.ValidFrom.Format(time.DateOnly))
	}
	if !d.ValidTo.IsZero() {
		b.WriteString(":")
		b.WriteString(d.ValidTo.Format(time.DateOnly))
	}
	return b.String()
}

type ProfileValue struct {
	Label string
	Value string
}

// Record is read-only once decoded.
type Record struct {
	Line int

	ExternalID  string `validate:"required"`
	FirstName   string
	LastName    string `validate:"required"`
	Email       string
	DateOfBirth time.Time

	SummaryValue       string
	FormerSummaryValue string

	JoinedFederationOn time.Time
	JoinedPrimaryOn    time.Time
	ReceivedOn         time.Time
	GraduatedOn        time.Time

	Memberships   []MembershipDeclaration
	RegionalGroup string
	Profile       map[profilefield.Group][]ProfileValue

	Hidden    bool
	Deleted   bool
	Dummy     bool
	Duplicate bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (r Record) Name() string {
	return strings.TrimSpace(r.FirstName + " " + r.LastName)
}

// JoiningDate prefers the primary organization's date over the federation's.
func (r Record) JoiningDate() time.Time {
	if !r.JoinedPrimaryOn.IsZero() {
		return r.JoinedPrimaryOn
	}
	return r.JoinedFederationOn
}

// Organizations returns the distinct declared organization tokens in
// declaration order.
func (r Record) Organizations() []string {
	seen := make(map[string]struct{}, len(r.Memberships))
	out := make([]string, 0, len(r.Memberships))
	for _, d := range r.Memberships {
		if _, ok := seen[d.Organization]; ok {
			continue
		}
		seen[d.Organization] = struct{}{}
		out = append(out, d.Organization)
	}
	return out
}

func (r Record) PrimaryOrganization() string {
	if len(r.Memberships) == 0 {
		return ""
	}
	return r.Memberships[0].Organization
}

// FilterVars exposes the record to filter expressions.
func (r Record) FilterVars() map[string]any {
	return map[string]any{
		"external_id":          r.ExternalID,
		"first_name":           r.FirstName,
		"last_name":            r.LastName,
		"name":                 r.Name(),
		"email":                r.Email,
		"summary_value":        r.SummaryValue,
		"former_summary_value": r.FormerSummaryValue,
		"regional_group":       r.RegionalGroup,
		"organizations":        r.Organizations(),
		"primary_organization": r.PrimaryOrganization(),
		"date_of_birth":        formatDate(r.DateOfBirth),
		"joined_on":            formatDate(r.JoiningDate()),
		"hidden":               r.Hidden,
		"deleted":              r.Deleted,
		"dummy":                r.Dummy,
		"duplicate":            r.Duplicate,
	}
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.DateOnly)
}

// RowError is a row of the export that could not be turned into a Record.
type RowError struct {
	Line       int
	ExternalID string
	Err        error
}

func (e *RowError) Error() string {
	if e.ExternalID != "" {
		return fmt.Sprintf("line %d (%s): %v", e.Line, e.ExternalID, e.Err)
	}
	return fmt.Sprintf("line %d: %v", e.Line, e.Err)
}

func (e *RowError) Unwrap() error { return e.Err }
