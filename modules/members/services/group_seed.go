package services

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	gerrors "github.com/go-faster/errors"
	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/iota-uz/member-import/modules/members/domain/entities/group"
)

// GroupSeed is one node of the group tree file.
type GroupSeed struct {
	Token    string      `yaml:"token"`
	Name     string      `yaml:"name"`
	Kind     group.Kind  `yaml:"kind"`
	Children []GroupSeed `yaml:"children"`
}

type groupSeedFile struct {
	Groups []GroupSeed `yaml:"groups"`
}

func LoadGroupSeedFile(path string) ([]GroupSeed, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ParseGroupSeed(f)
}

func ParseGroupSeed(r io.Reader) ([]GroupSeed, error) {
	var file groupSeedFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		if gerrors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, gerrors.Wrap(err, "decode group seed")
	}
	if err := validateSeeds(file.Groups, "", map[string]struct{}{}); err != nil {
		return nil, err
	}
	return file.Groups, nil
}

func validateSeeds(seeds []GroupSeed, path string, tokens map[string]struct{}) error {
	for i, s := range seeds {
		at := fmt.Sprintf("%sgroups[%d]", path, i)
		if strings.TrimSpace(s.Name) == "" {
			return gerrors.Errorf("%s: name is required", at)
		}
		if !s.Kind.IsValid() {
			return gerrors.Errorf("%s: invalid kind %q", at, s.Kind)
		}
		if s.Token != "" {
			if _, dup := tokens[s.Token]; dup {
				return gerrors.Errorf("%s: duplicate token %q", at, s.Token)
			}
			tokens[s.Token] = struct{}{}
		}
		if err := validateSeeds(s.Children, at+".children.", tokens); err != nil {
			return err
		}
	}
	return nil
}

type SeedStats struct {
	Created  int
	Existing int
}

// GroupSeeder writes a group tree into a repository. Groups are matched by
// token, or by name below the same parent when they have none, so seeding is
// repeatable.
type GroupSeeder struct {
	groups group.Repository
}

func NewGroupSeeder(groups group.Repository) *GroupSeeder {
	return &GroupSeeder{groups: groups}
}

func (s *GroupSeeder) Seed(ctx context.Context, seeds []GroupSeed) (SeedStats, error) {
	var stats SeedStats
	if err := s.seed(ctx, seeds, uuid.Nil, &stats); err != nil {
		return stats, err
	}
	return stats, nil
}

func (s *GroupSeeder) seed(ctx context.Context, seeds []GroupSeed, parentID uuid.UUID, stats *SeedStats) error {
	for _, seed := range seeds {
		g, found, err := s.existing(ctx, seed, parentID)
		if err != nil {
			return err
		}
		if found {
			stats.Existing++
		} else {
			opts := []group.Option{group.WithParent(parentID)}
			if seed.Token != "" {
				opts = append(opts, group.WithToken(seed.Token))
			}
			g, err = s.groups.Save(ctx, group.New(seed.Name, seed.Kind, opts...))
			if err != nil {
				return gerrors.Wrapf(err, "save group %q", seed.Name)
			}
			stats.Created++
		}
		if err := s.seed(ctx, seed.Children, g.ID(), stats); err != nil {
			return err
		}
	}
	return nil
}

func (s *GroupSeeder) existing(ctx context.Context, seed GroupSeed, parentID uuid.UUID) (group.Group, bool, error) {
	if seed.Token != "" {
		g, err := s.groups.GetByToken(ctx, seed.Token)
		if err == nil {
			return g, true, nil
		}
		if !gerrors.Is(err, group.ErrNotFound) {
			return group.Group{}, false, err
		}
		return group.Group{}, false, nil
	}
	if parentID == uuid.Nil {
		return group.Group{}, false, nil
	}
	siblings, err := s.groups.Children(ctx, parentID)
	if err != nil {
		return group.Group{}, false, err
	}
	for _, g := range siblings {
		if g.Name() == seed.Name {
			return g, true, nil
		}
	}
	return group.Group{}, false, nil
}
