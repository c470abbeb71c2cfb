package services

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/iota-uz/member-import/modules/members/domain/entities/profilefield"
	"github.com/iota-uz/member-import/modules/netenv/domain/record"
)

// ProfileImporter writes one profile group of a record. Running it twice
// updates values in place.
type ProfileImporter interface {
	Group() profilefield.Group
	Import(ctx context.Context, memberID uuid.UUID, rec record.Record) error
}

type normalizer func(label, value string) string

type groupImporter struct {
	group     profilefield.Group
	fields    profilefield.Repository
	normalize normalizer
}

// NewProfileImporters returns one importer per profile group, in import order.
func NewProfileImporters(fields profilefield.Repository) []ProfileImporter {
	normalizers := map[profilefield.Group]normalizer{
		profilefield.GroupContact:       collapseSpaces,
		profilefield.GroupBank:          normalizeBank,
		profilefield.GroupCommunication: lowerValue,
	}
	groups := profilefield.AllGroups()
	out := make([]ProfileImporter, 0, len(groups))
	for _, g := range groups {
		n := normalizers[g]
		if n == nil {
			n = trimValue
		}
		out = append(out, &groupImporter{group: g, fields: fields, normalize: n})
	}
	return out
}

func (i *groupImporter) Group() profilefield.Group { return i.group }

func (i *groupImporter) Import(ctx context.Context, memberID uuid.UUID, rec record.Record) error {
	for _, v := range rec.Profile[i.group] {
		value := i.normalize(v.Label, v.Value)
		// a blank cell never clears a populated slot
		if value == "" {
			continue
		}
		if _, err := i.fields.Upsert(ctx, profilefield.New(memberID, i.group, v.Label, value)); err != nil {
			return err
		}
	}
	return nil
}

func trimValue(_, v string) string { return strings.TrimSpace(v) }

func lowerValue(_, v string) string { return strings.ToLower(strings.TrimSpace(v)) }

func collapseSpaces(_, v string) string { return strings.Join(strings.Fields(v), " ") }

func normalizeBank(label, v string) string {
	switch label {
	case "iban", "bic":
		return strings.ToUpper(strings.Join(strings.Fields(v), ""))
	default:
		return strings.TrimSpace(v)
	}
}

// TemplateImporter creates every expected profile slot that a member lacks.
// Existing values are never touched.
type TemplateImporter struct {
	fields profilefield.Repository
}

func NewTemplateImporter(fields profilefield.Repository) *TemplateImporter {
	return &TemplateImporter{fields: fields}
}

func (t *TemplateImporter) Import(ctx context.Context, memberID uuid.UUID) error {
	existing, err := t.fields.ListByMember(ctx, memberID)
	if err != nil {
		return err
	}
	have := make(map[string]struct{}, len(existing))
	for _, f := range existing {
		have[f.Key()] = struct{}{}
	}
	for _, g := range profilefield.AllGroups() {
		for _, label := range profilefield.Templates[g] {
			slot := profilefield.New(memberID, g, label, "")
			if _, ok := have[slot.Key()]; ok {
				continue
			}
			if _, err := t.fields.Upsert(ctx, slot); err != nil {
				return err
			}
		}
	}
	return nil
}
