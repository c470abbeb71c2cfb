package services

import (
	"fmt"

	"github.com/iota-uz/member-import/modules/importer/progress"
	"github.com/iota-uz/member-import/modules/members/domain/entities/profilefield"
)

const (
	StageIdentity    = "identity"
	StageFind        = "find"
	StageBuild       = "build"
	StageBasic       = "basic"
	StageTemplates   = "profile.templates"
	StagePrecheck    = "precheck"
	StageMemberships = "memberships"
	StagePostcheck   = "postcheck"
	StageRegional    = "regional"
	StageHidden      = "hidden"
	StageTimestamps  = "timestamps"
)

func ProfileStage(g profilefield.Group) string {
	return "profile." + string(g)
}

// StageError names the upsert stage that failed.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

func stageErr(stage string, err error) error {
	if err == nil {
		return nil
	}
	return &StageError{Stage: stage, Err: err}
}

// Finding is an outcome produced while a record is processed.
type Finding struct {
	Category progress.Category
	Detail   progress.Detail
}

func warningFinding(d progress.Detail) Finding {
	return Finding{Category: progress.Warning, Detail: d}
}

func failureFinding(d progress.Detail) Finding {
	return Finding{Category: progress.Failure, Detail: d}
}
