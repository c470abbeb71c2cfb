package member

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

type Member struct {
	id          uuid.UUID
	externalID  string
	firstName   string
	lastName    string
	email       string
	dateOfBirth time.Time
	hidden      bool
	createdAt   time.Time
	updatedAt   time.Time
}

func New(externalID string) Member {
	return Member{externalID: strings.TrimSpace(externalID)}
}

func Hydrate(
	id uuid.UUID,
	externalID string,
	firstName string,
	lastName string,
	email string,
	dateOfBirth time.Time,
	hidden bool,
	createdAt time.Time,
	updatedAt time.Time,
) Member {
	return Member{
		id:          id,
		externalID:  strings.TrimSpace(externalID),
		firstName:   firstName,
		lastName:    lastName,
		email:       email,
		dateOfBirth: dateOfBirth,
		hidden:      hidden,
		createdAt:   createdAt,
		updatedAt:   updatedAt,
	}
}

func (m Member) ID() uuid.UUID          { return m.id }
func (m Member) ExternalID() string     { return m.externalID }
func (m Member) FirstName() string      { return m.firstName }
func (m Member) LastName() string       { return m.lastName }
func (m Member) Email() string          { return m.email }
func (m Member) DateOfBirth() time.Time { return m.dateOfBirth }
func (m Member) Hidden() bool           { return m.hidden }
func (m Member) CreatedAt() time.Time   { return m.createdAt }
func (m Member) UpdatedAt() time.Time   { return m.updatedAt }
func (m Member) IsNew() bool            { return m.id == uuid.Nil }

// Name is the display name, "first last".
func (m Member) Name() string {
	return strings.TrimSpace(m.firstName + " " + m.lastName)
}

func (m Member) WithID(id uuid.UUID) Member {
	m.id = id
	return m
}

func (m Member) WithName(first, last string) Member {
	m.firstName = strings.TrimSpace(first)
	m.lastName = strings.TrimSpace(last)
	return m
}

// WithEmail sets the email. An empty value clears it.
func (m Member) WithEmail(email string) Member {
	m.email = strings.TrimSpace(email)
	return m
}

func (m Member) WithDateOfBirth(t time.Time) Member {
	m.dateOfBirth = t
	return m
}

func (m Member) WithHidden(hidden bool) Member {
	m.hidden = hidden
	return m
}

func (m Member) WithTimestamps(createdAt, updatedAt time.Time) Member {
	m.createdAt = createdAt
	m.updatedAt = updatedAt
	return m
}
