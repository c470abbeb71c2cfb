// Package summary parses and formats the Aktivitätszahl, the summary value of a
// member's corporation history: corporation tokens each followed by the
// two-digit joining year, in joining order, e.g. "E 06 H 08".
package summary

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"
)

type Entry struct {
	Token string
	// YY is the two-digit year as written.
	YY int
}

func (e Entry) String() string {
	return fmt.Sprintf("%s %02d", e.Token, e.YY)
}

// FullYear expands YY against now: years not after now's two-digit year are
// taken as this century, the rest as the previous one.
func (e Entry) FullYear(now time.Time) int {
	century := now.Year() / 100 * 100
	if e.YY <= now.Year()%100 {
		return century + e.YY
	}
	return century - 100 + e.YY
}

type Value []Entry

func (v Value) String() string {
	parts := make([]string, len(v))
	for i, e := range v {
		parts[i] = e.String()
	}
	return strings.Join(parts, " ")
}

func (v Value) Tokens() []string {
	out := make([]string, len(v))
	for i, e := range v {
		out[i] = e.Token
	}
	return out
}

// Parse reads a summary value. Tokens and years may be separated by spaces or
// written together ("E06 H08").
func Parse(s string) (Value, error) {
	fields := strings.Fields(s)
	var out Value
	for i := 0; i < len(fields); i++ {
		token, digits := splitTrailingDigits(fields[i])
		if token == "" {
			return nil, fmt.Errorf("summary value %q: expected token at %q", s, fields[i])
		}
		if digits == "" {
			if i+1 >= len(fields) {
				return nil, fmt.Errorf("summary value %q: token %s has no year", s, token)
			}
			i++
			digits = fields[i]
		}
		yy, err := strconv.Atoi(digits)
		if err != nil || len(digits) != 2 {
			return nil, fmt.Errorf("summary value %q: invalid year %q for %s", s, digits, token)
		}
		out = append(out, Entry{Token: token, YY: yy})
	}
	return out, nil
}

func splitTrailingDigits(s string) (string, string) {
	i := len(s)
	for i > 0 && unicode.IsDigit(rune(s[i-1])) {
		i--
	}
	return s[:i], s[i:]
}
