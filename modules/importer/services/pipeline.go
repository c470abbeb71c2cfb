package services

import (
	"context"
	"iter"
	"time"

	gerrors "github.com/go-faster/errors"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/iota-uz/member-import/modules/importer/progress"
	"github.com/iota-uz/member-import/modules/netenv/domain/record"
	"github.com/iota-uz/member-import/pkg/checkpoint"
	"github.com/iota-uz/member-import/pkg/metrics"
)

// ErrCheckpoint marks failures to read or write the checkpoint. They end the run.
var ErrCheckpoint = gerrors.New("checkpoint")

type checkpointError struct {
	op  string
	err error
}

func (e *checkpointError) Error() string        { return "checkpoint: " + e.op + ": " + e.err.Error() }
func (e *checkpointError) Unwrap() error        { return e.err }
func (e *checkpointError) Is(target error) bool { return target == ErrCheckpoint }

type RunOptions struct {
	Continuation checkpoint.Mode
	// Limit stops the run after that many eligible records; zero means no limit.
	Limit  int
	Filter Filter
}

type RunStats struct {
	ContinueFrom string
	Resumed      bool
	Processed    int
	LastID       string
	Stopped      bool
}

type Pipeline struct {
	resolver   *IdentityResolver
	engine     *UpsertEngine
	checkpoint checkpoint.Store
	reporter   *progress.Reporter
	metrics    *metrics.ImportMetrics
	tracer     trace.Tracer
	log        logrus.FieldLogger
}

type PipelineOption func(*Pipeline)

func WithMetrics(m *metrics.ImportMetrics) PipelineOption {
	return func(p *Pipeline) { p.metrics = m }
}

func WithTracer(t trace.Tracer) PipelineOption {
	return func(p *Pipeline) { p.tracer = t }
}

func WithLogger(l logrus.FieldLogger) PipelineOption {
	return func(p *Pipeline) { p.log = l }
}

func NewPipeline(
	resolver *IdentityResolver,
	engine *UpsertEngine,
	store checkpoint.Store,
	reporter *progress.Reporter,
	opts ...PipelineOption,
) *Pipeline {
	p := &Pipeline{
		resolver:   resolver,
		engine:     engine,
		checkpoint: store,
		reporter:   reporter,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.checkpoint == nil {
		p.checkpoint = checkpoint.Nop{}
	}
	if p.metrics == nil {
		p.metrics = metrics.NewImportMetrics()
	}
	if p.tracer == nil {
		p.tracer = otel.Tracer("github.com/iota-uz/member-import/modules/importer")
	}
	if p.log == nil {
		p.log = logrus.StandardLogger()
	}
	return p
}

// Run processes records one at a time in source order. Per-record problems
// end up in the reporter; only checkpoint and read errors end the run early.
//
// The checkpoint is written with each eligible record's id before the record
// is touched, and a stop (limit or cancellation) happens right after that
// write, so the stored id is always the first record not yet completed.
func (p *Pipeline) Run(ctx context.Context, records iter.Seq2[record.Record, error], opts RunOptions) (RunStats, error) {
	var stats RunStats

	from, resume, err := checkpoint.Resolve(ctx, p.checkpoint, opts.Continuation)
	if err != nil {
		return stats, &checkpointError{op: "resolve continuation", err: err}
	}
	stats.ContinueFrom, stats.Resumed = from, resume
	if resume {
		p.log.WithField("continue_from", from).Info("resuming import")
	}

	ctx, span := p.tracer.Start(ctx, "import.run", trace.WithAttributes(
		attribute.String("continuation", opts.Continuation.String()),
		attribute.Int("limit", opts.Limit),
	))
	defer span.End()

	gate := NewGatekeeper(from, resume, opts.Filter)
	var highest string
	for rec, err := range records {
		if err != nil {
			var rowErr *record.RowError
			if gerrors.As(err, &rowErr) {
				if gate.SkipsID(rowErr.ExternalID) {
					p.reporter.Skip()
					p.metrics.Outcome(string(progress.Skip))
					continue
				}
				p.fail(progress.NewDetail("row_invalid", "row could not be decoded",
					"line", rowErr.Line,
					"external_id", rowErr.ExternalID,
					"error", rowErr.Err.Error(),
				), "decode")
				continue
			}
			span.RecordError(err)
			return stats, err
		}

		if highest != "" && rec.ExternalID < highest {
			p.log.WithFields(logrus.Fields{
				"external_id": rec.ExternalID,
				"previous":    highest,
				"line":        rec.Line,
			}).Warn("records are not in ascending id order; continuation may skip records")
		} else {
			highest = rec.ExternalID
		}

		verdict := gate.Classify(rec)
		switch verdict.Kind {
		case Skipped:
			p.reporter.Skip()
			p.metrics.Outcome(string(progress.Skip))
			continue
		case Filtered:
			continue
		case Ignored:
			p.reporter.Ignore(verdict.Detail)
			p.metrics.Outcome(string(progress.Ignore))
			continue
		}

		if err := p.checkpoint.Save(ctx, rec.ExternalID); err != nil {
			span.RecordError(err)
			return stats, &checkpointError{op: "save", err: err}
		}
		stats.LastID = rec.ExternalID

		if ctx.Err() != nil || (opts.Limit > 0 && stats.Processed >= opts.Limit) {
			stats.Stopped = true
			break
		}

		p.process(ctx, rec)
		stats.Processed++
	}
	if ctx.Err() != nil {
		stats.Stopped = true
	}

	p.metrics.Finish(time.Now())
	span.SetAttributes(attribute.Int("processed", stats.Processed))
	return stats, nil
}

func (p *Pipeline) process(ctx context.Context, rec record.Record) {
	start := time.Now()
	ctx, span := p.tracer.Start(ctx, "import.record", trace.WithAttributes(
		attribute.String("external_id", rec.ExternalID),
		attribute.Int("line", rec.Line),
	))
	defer span.End()
	defer func() { p.metrics.ObserveRecord(time.Since(start)) }()

	dec, details, err := p.resolver.Resolve(ctx, rec)
	if err != nil {
		p.upsertFailed(span, rec, stageErr(StageIdentity, err))
		return
	}
	for _, d := range details {
		p.warn(d)
	}

	res, err := p.engine.Upsert(ctx, rec, dec)
	if err != nil {
		p.upsertFailed(span, rec, err)
		return
	}
	for _, f := range res.Findings {
		switch f.Category {
		case progress.Failure:
			p.fail(f.Detail, "")
		default:
			p.warn(f.Detail)
		}
	}
	p.reporter.Success(res.WasUpdate)
	if res.WasUpdate {
		p.metrics.Outcome(string(progress.Updated))
	} else {
		p.metrics.Outcome(string(progress.Created))
	}
}

func (p *Pipeline) upsertFailed(span trace.Span, rec record.Record, err error) {
	stage := "unknown"
	var se *StageError
	if gerrors.As(err, &se) {
		stage = se.Stage
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, stage)
	p.log.WithFields(logrus.Fields{
		"external_id": rec.ExternalID,
		"line":        rec.Line,
		"stage":       stage,
	}).WithError(err).Error("record import failed")
	p.fail(progress.NewDetail("upsert_failed", "record was not imported",
		"external_id", rec.ExternalID,
		"name", rec.Name(),
		"stage", stage,
		"error", err.Error(),
	), stage)
}

func (p *Pipeline) warn(d progress.Detail) {
	p.reporter.Warn(d)
	p.metrics.Outcome(string(progress.Warning))
}

func (p *Pipeline) fail(d progress.Detail, stage string) {
	p.reporter.Fail(d)
	p.metrics.Outcome(string(progress.Failure))
	if stage != "" {
		p.metrics.StageFailure(stage)
	}
}
