package source

import (
	"strings"
	"time"

	gerrors "github.com/go-faster/errors"

	"github.com/iota-uz/member-import/modules/netenv/domain/record"
)

// ParseTime accepts RFC 3339 timestamps and the dates found in legacy
// exports (2006-01-02, 02.01.2006). Blank input is the zero time.
func ParseTime(v string) (time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
		return t.UTC(), nil
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t.UTC(), nil
	}
	return parseDate(v)
}

func parseDate(v string) (time.Time, error) {
	if t, err := time.ParseInLocation("2006-01-02", v, time.UTC); err == nil {
		return t, nil
	}
	if t, err := time.ParseInLocation("02.01.2006", v, time.UTC); err == nil {
		return t, nil
	}
	return time.Time{}, gerrors.Errorf("invalid time: %s", v)
}

func parseBool(v string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "", "0", "false", "nein", "no", "n":
		return false, nil
	case "1", "true", "ja", "yes", "y", "x":
		return true, nil
	default:
		return false, gerrors.Errorf("invalid boolean: %s", v)
	}
}

// parseMemberships reads "TOKEN[/Status][:FROM[:TO]]" entries separated by ";".
func parseMemberships(v string) ([]record.MembershipDeclaration, error) {
	if strings.TrimSpace(v) == "" {
		return nil, nil
	}
	var out []record.MembershipDeclaration
	for _, entry := range strings.Split(v, ";") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.Split(entry, ":")
		if len(parts) > 3 {
			return nil, gerrors.Errorf("invalid membership %q", entry)
		}
		org, status, _ := strings.Cut(strings.TrimSpace(parts[0]), "/")
		d := record.MembershipDeclaration{
			Organization: strings.TrimSpace(org),
			Status:       strings.TrimSpace(status),
		}
		if d.Organization == "" {
			return nil, gerrors.Errorf("invalid membership %q: missing organization", entry)
		}
		if len(parts) > 1 && strings.TrimSpace(parts[1]) != "" {
			t, err := parseDate(strings.TrimSpace(parts[1]))
			if err != nil {
				return nil, gerrors.Wrapf(err, "invalid membership %q", entry)
			}
			d.ValidFrom = t
		}
		if len(parts) > 2 && strings.TrimSpace(parts[2]) != "" {
			t, err := parseDate(strings.TrimSpace(parts[2]))
			if err != nil {
				return nil, gerrors.Wrapf(err, "invalid membership %q", entry)
			}
			d.ValidTo = t
		}
		out = append(out, d)
	}
	return out, nil
}
