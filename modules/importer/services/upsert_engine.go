package services

import (
	"context"
	"encoding/json"
	"time"

	gerrors "github.com/go-faster/errors"
	"github.com/sirupsen/logrus"
	"github.com/wI2L/jsondiff"

	"github.com/iota-uz/member-import/modules/members/domain/aggregates/member"
	"github.com/iota-uz/member-import/modules/netenv/domain/record"
)

// Transactor runs fn so that its writes are kept only when it succeeds.
type Transactor interface {
	InTx(ctx context.Context, fn func(context.Context) error) error
}

type Result struct {
	Member    member.Member
	WasUpdate bool
	Findings  []Finding
}

type UpsertEngine struct {
	tx          Transactor
	members     member.Repository
	profiles    []ProfileImporter
	templates   *TemplateImporter
	memberships MembershipImporter
	regional    *RegionalImporter
	checker     *ConsistencyChecker
	log         logrus.FieldLogger
}

type UpsertDeps struct {
	Tx          Transactor
	Members     member.Repository
	Profiles    []ProfileImporter
	Templates   *TemplateImporter
	Memberships MembershipImporter
	Regional    *RegionalImporter
	Checker     *ConsistencyChecker
	Logger      logrus.FieldLogger
}

func NewUpsertEngine(deps UpsertDeps) *UpsertEngine {
	log := deps.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &UpsertEngine{
		tx:          deps.Tx,
		members:     deps.Members,
		profiles:    deps.Profiles,
		templates:   deps.Templates,
		memberships: deps.Memberships,
		regional:    deps.Regional,
		checker:     deps.Checker,
		log:         log,
	}
}

// Upsert finds or creates the member for rec and applies every stage in
// order. Any error rolls the whole record back and comes as a *StageError.
func (e *UpsertEngine) Upsert(ctx context.Context, rec record.Record, dec Decision) (Result, error) {
	var res Result
	err := e.tx.InTx(ctx, func(ctx context.Context) error {
		res = Result{}
		return e.upsert(ctx, rec, dec, &res)
	})
	if err != nil {
		return Result{}, err
	}
	return res, nil
}

func (e *UpsertEngine) upsert(ctx context.Context, rec record.Record, dec Decision, res *Result) error {
	log := e.log.WithField("external_id", rec.ExternalID)

	existing, err := e.members.GetByExternalID(ctx, rec.ExternalID)
	switch {
	case err == nil:
		res.WasUpdate = true
	case gerrors.Is(err, member.ErrNotFound):
	default:
		return stageErr(StageFind, err)
	}

	m := existing
	if !res.WasUpdate {
		m = member.New(rec.ExternalID)
	}
	if m.ExternalID() != rec.ExternalID {
		return stageErr(StageBuild, gerrors.Errorf("external id %q resolved to member %q", rec.ExternalID, m.ExternalID()))
	}

	email := rec.Email
	if dec.SuppressEmail {
		email = ""
	}
	m = m.WithName(rec.FirstName, rec.LastName).WithEmail(email).WithDateOfBirth(rec.DateOfBirth)
	saved, err := e.members.Save(ctx, m)
	if err != nil {
		return stageErr(StageBasic, err)
	}
	if res.WasUpdate {
		e.audit(log, existing, saved)
	}
	m = saved

	for _, p := range e.profiles {
		if err := p.Import(ctx, m.ID(), rec); err != nil {
			return stageErr(ProfileStage(p.Group()), err)
		}
	}
	if e.templates != nil {
		if err := e.templates.Import(ctx, m.ID()); err != nil {
			return stageErr(StageTemplates, err)
		}
	}

	if e.checker != nil {
		res.Findings = append(res.Findings, e.checker.PreCheck(rec)...)
	}

	findings, err := e.memberships.Import(ctx, m, rec)
	if err != nil {
		return stageErr(StageMemberships, err)
	}
	res.Findings = append(res.Findings, findings...)

	if e.checker != nil {
		findings, err := e.checker.PostCheck(ctx, rec, m.ID())
		if err != nil {
			return stageErr(StagePostcheck, err)
		}
		res.Findings = append(res.Findings, findings...)
	}

	if e.regional != nil {
		findings, err := e.regional.Import(ctx, m, rec)
		if err != nil {
			return stageErr(StageRegional, err)
		}
		res.Findings = append(res.Findings, findings...)
	}

	if m.Hidden() != rec.Hidden {
		if m, err = e.members.Save(ctx, m.WithHidden(rec.Hidden)); err != nil {
			return stageErr(StageHidden, err)
		}
	}

	if err := e.members.SetTimestamps(ctx, m.ID(), rec.CreatedAt, rec.UpdatedAt); err != nil {
		return stageErr(StageTimestamps, err)
	}
	if m, err = e.members.GetByID(ctx, m.ID()); err != nil {
		return stageErr(StageTimestamps, err)
	}
	res.Member = m
	return nil
}

type memberView struct {
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	Email       string `json:"email"`
	DateOfBirth string `json:"date_of_birth"`
	Hidden      bool   `json:"hidden"`
}

func viewOf(m member.Member) memberView {
	v := memberView{
		FirstName: m.FirstName(),
		LastName:  m.LastName(),
		Email:     m.Email(),
		Hidden:    m.Hidden(),
	}
	if !m.DateOfBirth().IsZero() {
		v.DateOfBirth = m.DateOfBirth().Format(time.DateOnly)
	}
	return v
}

// audit logs the basic attribute changes of an update at debug level.
func (e *UpsertEngine) audit(log logrus.FieldLogger, before, after member.Member) {
	patch, err := jsondiff.Compare(viewOf(before), viewOf(after))
	if err != nil {
		log.WithError(err).Debug("diff basic attributes")
		return
	}
	if len(patch) == 0 {
		return
	}
	b, err := json.Marshal(patch)
	if err != nil {
		return
	}
	log.WithField("changes", string(b)).Debug("basic attributes changed")
}
