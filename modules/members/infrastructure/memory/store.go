// Package memory is an in-process target store. It backs dry runs and tests
// and mirrors the constraints the Postgres schema enforces.
package memory

import (
	"context"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/iota-uz/member-import/modules/members/domain/aggregates/member"
	"github.com/iota-uz/member-import/modules/members/domain/entities/group"
	"github.com/iota-uz/member-import/modules/members/domain/entities/membership"
	"github.com/iota-uz/member-import/modules/members/domain/entities/profilefield"
)

type Option func(*Store)

// WithClock replaces time.Now for updated_at bookkeeping.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

type Store struct {
	mu  sync.RWMutex
	now func() time.Time

	members     map[uuid.UUID]member.Member
	groups      map[uuid.UUID]group.Group
	memberships map[uuid.UUID]membership.Membership
	fields      map[uuid.UUID]profilefield.Field
}

func New(opts ...Option) *Store {
	s := &Store{
		now:         time.Now,
		members:     make(map[uuid.UUID]member.Member),
		groups:      make(map[uuid.UUID]group.Group),
		memberships: make(map[uuid.UUID]membership.Membership),
		fields:      make(map[uuid.UUID]profilefield.Field),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) Members() member.Repository             { return memberRepo{s} }
func (s *Store) Groups() group.Repository               { return groupRepo{s} }
func (s *Store) Memberships() membership.Repository     { return membershipRepo{s} }
func (s *Store) ProfileFields() profilefield.Repository { return fieldRepo{s} }

type snapshot struct {
	members     map[uuid.UUID]member.Member
	groups      map[uuid.UUID]group.Group
	memberships map[uuid.UUID]membership.Membership
	fields      map[uuid.UUID]profilefield.Field
}

// InTx runs fn and restores the prior state when it fails. Calls are not
// isolated from each other; the importer runs records one at a time.
func (s *Store) InTx(ctx context.Context, fn func(context.Context) error) error {
	s.mu.RLock()
	snap := snapshot{
		members:     maps.Clone(s.members),
		groups:      maps.Clone(s.groups),
		memberships: maps.Clone(s.memberships),
		fields:      maps.Clone(s.fields),
	}
	s.mu.RUnlock()

	if err := fn(ctx); err != nil {
		s.mu.Lock()
		s.members = snap.members
		s.groups = snap.groups
		s.memberships = snap.memberships
		s.fields = snap.fields
		s.mu.Unlock()
		return err
	}
	return nil
}

// Stats returns row counts, for reports and tests.
func (s *Store) Stats() (members, memberships, fields int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.members), len(s.memberships), len(s.fields)
}

type memberRepo struct{ s *Store }

func (r memberRepo) GetByID(_ context.Context, id uuid.UUID) (member.Member, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	m, ok := r.s.members[id]
	if !ok {
		return member.Member{}, member.ErrNotFound
	}
	return m, nil
}

func (r memberRepo) GetByExternalID(_ context.Context, externalID string) (member.Member, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, m := range r.s.members {
		if m.ExternalID() == externalID {
			return m, nil
		}
	}
	return member.Member{}, member.ErrNotFound
}

func (r memberRepo) GetByEmail(_ context.Context, email string) (member.Member, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return member.Member{}, member.ErrNotFound
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, m := range r.s.members {
		if strings.EqualFold(m.Email(), email) {
			return m, nil
		}
	}
	return member.Member{}, member.ErrNotFound
}

func (r memberRepo) Save(_ context.Context, m member.Member) (member.Member, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for id, other := range r.s.members {
		if id == m.ID() {
			continue
		}
		if other.ExternalID() == m.ExternalID() {
			return member.Member{}, member.ErrDuplicateExternalID
		}
		if m.Email() != "" && strings.EqualFold(other.Email(), m.Email()) {
			return member.Member{}, member.ErrDuplicateEmail
		}
	}

	now := r.s.now().UTC()
	if m.IsNew() {
		m = m.WithID(uuid.New()).WithTimestamps(now, now)
	} else {
		prev, ok := r.s.members[m.ID()]
		if !ok {
			return member.Member{}, member.ErrNotFound
		}
		m = m.WithTimestamps(prev.CreatedAt(), now)
	}
	r.s.members[m.ID()] = m
	return m, nil
}

func (r memberRepo) SetTimestamps(_ context.Context, id uuid.UUID, createdAt, updatedAt time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	m, ok := r.s.members[id]
	if !ok {
		return member.ErrNotFound
	}
	if createdAt.IsZero() {
		createdAt = m.CreatedAt()
	}
	if updatedAt.IsZero() {
		updatedAt = m.UpdatedAt()
	}
	r.s.members[id] = m.WithTimestamps(createdAt, updatedAt)
	return nil
}

type groupRepo struct{ s *Store }

func (r groupRepo) GetByID(_ context.Context, id uuid.UUID) (group.Group, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	g, ok := r.s.groups[id]
	if !ok {
		return group.Group{}, group.ErrNotFound
	}
	return g, nil
}

func (r groupRepo) GetByToken(_ context.Context, token string) (group.Group, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return group.Group{}, group.ErrNotFound
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, g := range r.s.groups {
		if g.Token() == token {
			return g, nil
		}
	}
	return group.Group{}, group.ErrNotFound
}

func (r groupRepo) Children(_ context.Context, parentID uuid.UUID) ([]group.Group, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return r.s.childrenLocked(parentID), nil
}

func (r groupRepo) Descendants(_ context.Context, id uuid.UUID) ([]group.Group, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return r.s.descendantsLocked(id), nil
}

func (r groupRepo) DescendantMembers(_ context.Context, id uuid.UUID) ([]uuid.UUID, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	scope := map[uuid.UUID]struct{}{id: {}}
	for _, g := range r.s.descendantsLocked(id) {
		scope[g.ID()] = struct{}{}
	}
	seen := make(map[uuid.UUID]struct{})
	var out []uuid.UUID
	for _, m := range r.s.memberships {
		if _, ok := scope[m.GroupID()]; !ok {
			continue
		}
		if _, dup := seen[m.MemberID()]; dup {
			continue
		}
		seen[m.MemberID()] = struct{}{}
		out = append(out, m.MemberID())
	}
	return out, nil
}

func (r groupRepo) Save(_ context.Context, g group.Group) (group.Group, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if g.Token() != "" {
		for id, other := range r.s.groups {
			if id != g.ID() && other.Token() == g.Token() {
				return group.Group{}, group.ErrDuplicateToken
			}
		}
	}
	if g.ParentID() != uuid.Nil {
		if _, ok := r.s.groups[g.ParentID()]; !ok {
			return group.Group{}, group.ErrNotFound
		}
	}
	if g.ID() == uuid.Nil {
		g = group.New(g.Name(), g.Kind(), group.WithID(uuid.New()), group.WithToken(g.Token()), group.WithParent(g.ParentID()))
	}
	r.s.groups[g.ID()] = g
	return g, nil
}

func (s *Store) childrenLocked(parentID uuid.UUID) []group.Group {
	var out []group.Group
	for _, g := range s.groups {
		if g.ParentID() == parentID && g.ID() != parentID {
			out = append(out, g)
		}
	}
	slices.SortFunc(out, func(a, b group.Group) int { return strings.Compare(a.Label(), b.Label()) })
	return out
}

func (s *Store) descendantsLocked(id uuid.UUID) []group.Group {
	var out []group.Group
	queue := []uuid.UUID{id}
	visited := map[uuid.UUID]struct{}{id: {}}
	for len(queue) > 0 {
		next := queue[0]
		queue = queue[1:]
		for _, child := range s.childrenLocked(next) {
			if _, ok := visited[child.ID()]; ok {
				continue
			}
			visited[child.ID()] = struct{}{}
			out = append(out, child)
			queue = append(queue, child.ID())
		}
	}
	return out
}

type membershipRepo struct{ s *Store }

func (r membershipRepo) Find(_ context.Context, memberID, groupID uuid.UUID) (membership.Membership, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, m := range r.s.memberships {
		if m.MemberID() == memberID && m.GroupID() == groupID {
			return m, nil
		}
	}
	return membership.Membership{}, membership.ErrNotFound
}

func (r membershipRepo) ListByMember(_ context.Context, memberID uuid.UUID) ([]membership.Membership, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []membership.Membership
	for _, m := range r.s.memberships {
		if m.MemberID() == memberID {
			out = append(out, m)
		}
	}
	slices.SortFunc(out, func(a, b membership.Membership) int {
		if c := a.ValidFrom().Compare(b.ValidFrom()); c != 0 {
			return c
		}
		return strings.Compare(a.GroupID().String(), b.GroupID().String())
	})
	return out, nil
}

func (r membershipRepo) Create(_ context.Context, m membership.Membership) (membership.Membership, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.members[m.MemberID()]; !ok {
		return membership.Membership{}, member.ErrNotFound
	}
	if _, ok := r.s.groups[m.GroupID()]; !ok {
		return membership.Membership{}, group.ErrNotFound
	}
	for _, other := range r.s.memberships {
		if other.MemberID() == m.MemberID() && other.GroupID() == m.GroupID() {
			return membership.Membership{}, membership.ErrDuplicate
		}
	}
	m = m.WithID(uuid.New())
	r.s.memberships[m.ID()] = m
	return m, nil
}

func (r membershipRepo) Update(_ context.Context, m membership.Membership) (membership.Membership, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.memberships[m.ID()]; !ok {
		return membership.Membership{}, membership.ErrNotFound
	}
	r.s.memberships[m.ID()] = m
	return m, nil
}

type fieldRepo struct{ s *Store }

func (r fieldRepo) ListByMember(_ context.Context, memberID uuid.UUID) ([]profilefield.Field, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []profilefield.Field
	for _, f := range r.s.fields {
		if f.MemberID() == memberID {
			out = append(out, f)
		}
	}
	slices.SortFunc(out, func(a, b profilefield.Field) int { return strings.Compare(a.Key(), b.Key()) })
	return out, nil
}

func (r fieldRepo) Upsert(_ context.Context, f profilefield.Field) (profilefield.Field, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.members[f.MemberID()]; !ok {
		return profilefield.Field{}, member.ErrNotFound
	}
	for id, existing := range r.s.fields {
		if existing.MemberID() == f.MemberID() && existing.Key() == f.Key() {
			f = f.WithID(id)
			r.s.fields[id] = f
			return f, nil
		}
	}
	f = f.WithID(uuid.New())
	r.s.fields[f.ID()] = f
	return f, nil
}
