package services

import (
	"github.com/iota-uz/member-import/modules/importer/progress"
	"github.com/iota-uz/member-import/modules/netenv/domain/record"
)

type VerdictKind int

const (
	Eligible VerdictKind = iota
	Skipped
	Filtered
	Ignored
)

type Verdict struct {
	Kind   VerdictKind
	Detail progress.Detail
}

// Gatekeeper classifies records before anything is written. The first
// matching rule wins: continuation, filter, dummy, duplicate, deleted.
type Gatekeeper struct {
	continueFrom string
	resume       bool
	filter       Filter
}

// NewGatekeeper skips every id below continueFrom when resume is set. A nil
// filter matches everything.
func NewGatekeeper(continueFrom string, resume bool, filter Filter) *Gatekeeper {
	return &Gatekeeper{continueFrom: continueFrom, resume: resume, filter: filter}
}

// SkipsID reports whether id lies before the continuation point. Rows that
// failed to decode are held to the same rule when their id is known.
func (g *Gatekeeper) SkipsID(id string) bool {
	return g.resume && id != "" && id < g.continueFrom
}

func (g *Gatekeeper) Classify(rec record.Record) Verdict {
	if g.SkipsID(rec.ExternalID) {
		return Verdict{Kind: Skipped}
	}
	if g.filter != nil && !g.filter.Match(rec) {
		return Verdict{Kind: Filtered}
	}
	switch {
	case rec.Dummy:
		return ignored("dummy", "known test record", rec, true)
	case rec.Duplicate:
		return ignored("duplicate", "known duplicate or mistaken record", rec, true)
	case rec.Deleted:
		return ignored("deleted", "deleted in the legacy system", rec, false)
	}
	return Verdict{Kind: Eligible}
}

func ignored(kind, message string, rec record.Record, withSummary bool) Verdict {
	d := progress.NewDetail(kind, message, "external_id", rec.ExternalID, "name", rec.Name())
	if withSummary {
		d = d.With("summary_value", rec.SummaryValue)
	}
	return Verdict{Kind: Ignored, Detail: d}
}
