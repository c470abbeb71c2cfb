package services

import (
	"reflect"
	"strings"

	gerrors "github.com/go-faster/errors"
	"github.com/google/cel-go/cel"
	"github.com/sirupsen/logrus"

	"github.com/iota-uz/member-import/modules/netenv/domain/record"
)

// Filter decides which records an import run looks at.
type Filter interface {
	Match(rec record.Record) bool
}

// CELFilter evaluates a CEL expression against the record, bound as "r".
//
//	r.regional_group == "BV 01" && "E" in r.organizations
type CELFilter struct {
	expr string
	prg  cel.Program
	log  logrus.FieldLogger
}

func CompileFilter(expr string, log logrus.FieldLogger) (*CELFilter, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, gerrors.New("empty filter expression")
	}
	env, err := cel.NewEnv(cel.Variable("r", cel.MapType(cel.StringType, cel.DynType)))
	if err != nil {
		return nil, err
	}
	ast, iss := env.Compile(expr)
	if iss.Err() != nil {
		return nil, gerrors.Wrap(iss.Err(), "compile filter")
	}
	if out := ast.OutputType(); !reflect.DeepEqual(out, cel.BoolType) && !reflect.DeepEqual(out, cel.DynType) {
		return nil, gerrors.Errorf("filter must evaluate to bool, got %s", out)
	}
	prg, err := env.Program(ast)
	if err != nil {
		return nil, gerrors.Wrap(err, "build filter")
	}
	return &CELFilter{expr: expr, prg: prg, log: log}, nil
}

func (f *CELFilter) String() string { return f.expr }

// Match treats evaluation errors and non-bool results as a mismatch.
func (f *CELFilter) Match(rec record.Record) bool {
	out, _, err := f.prg.Eval(map[string]any{"r": rec.FilterVars()})
	if err != nil {
		f.warn(rec, err)
		return false
	}
	ok, isBool := out.Value().(bool)
	if !isBool {
		f.warn(rec, gerrors.Errorf("filter returned %T", out.Value()))
		return false
	}
	return ok
}

func (f *CELFilter) warn(rec record.Record, err error) {
	if f.log == nil {
		return
	}
	f.log.WithFields(logrus.Fields{
		"external_id": rec.ExternalID,
		"line":        rec.Line,
		"filter":      f.expr,
	}).WithError(err).Warn("filter evaluation failed")
}
