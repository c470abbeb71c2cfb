package profilefield

import (
	"strings"

	"github.com/google/uuid"
)

// Group is one of the closed set of profile sections.
type Group string

const (
	GroupGeneral       Group = "general"
	GroupContact       Group = "contact"
	GroupStudy         Group = "study"
	GroupProfessional  Group = "professional"
	GroupAboutMe       Group = "about_me"
	GroupBank          Group = "bank"
	GroupCommunication Group = "communication"
)

var allGroups = []Group{
	GroupGeneral,
	GroupContact,
	GroupStudy,
	GroupProfessional,
	GroupAboutMe,
	GroupBank,
	GroupCommunication,
}

// AllGroups returns the groups in import order.
func AllGroups() []Group {
	out := make([]Group, len(allGroups))
	copy(out, allGroups)
	return out
}

func ParseGroup(v string) (Group, bool) {
	g := Group(strings.ToLower(strings.TrimSpace(v)))
	for _, known := range allGroups {
		if g == known {
			return g, true
		}
	}
	return "", false
}

// Templates lists the labels every member carries, even when empty.
var Templates = map[Group][]string{
	GroupGeneral:       {"title", "academic_degree", "personal_title"},
	GroupContact:       {"home_address", "work_address", "phone", "mobile", "fax"},
	GroupStudy:         {"university", "subject", "specialization"},
	GroupProfessional:  {"employer", "occupation", "position"},
	GroupAboutMe:       {"about_me"},
	GroupBank:          {"account_holder", "iban", "bic"},
	GroupCommunication: {"newsletter", "journal_delivery"},
}

type Field struct {
	id       uuid.UUID
	memberID uuid.UUID
	group    Group
	label    string
	value    string
}

func New(memberID uuid.UUID, group Group, label, value string) Field {
	return Field{
		memberID: memberID,
		group:    group,
		label:    strings.TrimSpace(label),
		value:    value,
	}
}

func Hydrate(id, memberID uuid.UUID, group Group, label, value string) Field {
	f := New(memberID, group, label, value)
	f.id = id
	return f
}

func (f Field) ID() uuid.UUID       { return f.id }
func (f Field) MemberID() uuid.UUID { return f.memberID }
func (f Field) Group() Group        { return f.group }
func (f Field) Label() string       { return f.label }
func (f Field) Value() string       { return f.value }

// Key identifies the slot a field occupies on a member.
func (f Field) Key() string { return string(f.group) + "." + f.label }

func (f Field) WithID(id uuid.UUID) Field {
	f.id = id
	return f
}
