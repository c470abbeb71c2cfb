package group

import (
	"strings"

	"github.com/google/uuid"
)

type Kind string

const (
	KindCorporation Kind = "corporation"
	KindStatus      Kind = "status"
	KindRegional    Kind = "regional"
	KindCategory    Kind = "category"
)

func (k Kind) IsValid() bool {
	switch k {
	case KindCorporation, KindStatus, KindRegional, KindCategory:
		return true
	}
	return false
}

type Group struct {
	id       uuid.UUID
	token    string
	name     string
	kind     Kind
	parentID uuid.UUID
}

type Option func(*Group)

func WithID(id uuid.UUID) Option {
	return func(g *Group) {
		g.id = id
	}
}

func WithToken(token string) Option {
	return func(g *Group) {
		g.token = strings.TrimSpace(token)
	}
}

func WithParent(parentID uuid.UUID) Option {
	return func(g *Group) {
		g.parentID = parentID
	}
}

func New(name string, kind Kind, opts ...Option) Group {
	g := Group{
		name: strings.TrimSpace(name),
		kind: kind,
	}
	for _, opt := range opts {
		opt(&g)
	}
	return g
}

func (g Group) ID() uuid.UUID       { return g.id }
func (g Group) Token() string       { return g.token }
func (g Group) Name() string        { return g.name }
func (g Group) Kind() Kind          { return g.kind }
func (g Group) ParentID() uuid.UUID { return g.parentID }
func (g Group) IsRoot() bool        { return g.parentID == uuid.Nil }

// Label is the token when the group has one, its name otherwise.
func (g Group) Label() string {
	if g.token != "" {
		return g.token
	}
	return g.name
}
