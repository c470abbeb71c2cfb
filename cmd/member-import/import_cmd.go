package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"

	"github.com/iota-uz/member-import/modules/importer/progress"
	importersvc "github.com/iota-uz/member-import/modules/importer/services"
	membersvc "github.com/iota-uz/member-import/modules/members/services"
	"github.com/iota-uz/member-import/modules/netenv/infrastructure/source"
	"github.com/iota-uz/member-import/pkg/checkpoint"
	"github.com/iota-uz/member-import/pkg/configuration"
	"github.com/iota-uz/member-import/pkg/metrics"
	"github.com/iota-uz/member-import/pkg/tracing"
)

type importOptions struct {
	input           string
	resultsLog      string
	filter          string
	continueWith    string
	checkpointFile  string
	backend         string
	groupsFile      string
	format          string
	encoding        string
	sheet           string
	limit           int
	metricsTextfile string
}

func newImportCmd() *cobra.Command {
	var opts importOptions

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import a netenv member export",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(cmd, opts)
		},
	}

	cfg := configuration.Use()
	cmd.Flags().StringVar(&opts.input, "input", "", "Export file, CSV or XLSX (required)")
	cmd.Flags().StringVar(&opts.resultsLog, "results-log", "", "Write warnings, failures and ignored records as YAML to this path")
	cmd.Flags().StringVar(&opts.filter, "filter", "", `CEL expression over the record "r", e.g. '"E" in r.organizations'`)
	cmd.Flags().StringVar(&opts.continueWith, "continue-with", "", `Resume: "" (start over), "auto"/"last" (from the checkpoint) or an external id`)
	cmd.Flags().StringVar(&opts.checkpointFile, "checkpoint-file", cfg.Import.CheckpointFile, "Checkpoint file")
	cmd.Flags().StringVar(&opts.backend, "backend", cfg.Import.Backend, "Member store: memory|postgres")
	cmd.Flags().StringVar(&opts.groupsFile, "groups", cfg.Import.GroupsFile, "Group tree YAML seeded before the import")
	cmd.Flags().StringVar(&opts.format, "format", "auto", "Input format: auto|csv|xlsx")
	cmd.Flags().StringVar(&opts.encoding, "encoding", cfg.Import.InputEncoding, "CSV encoding: auto|utf-8|windows-1252|latin1")
	cmd.Flags().StringVar(&opts.sheet, "sheet", "", "XLSX sheet (default: first)")
	cmd.Flags().IntVar(&opts.limit, "limit", 0, "Stop after this many eligible records (0: no limit)")
	cmd.Flags().StringVar(&opts.metricsTextfile, "metrics-textfile", cfg.Prometheus.Textfile, "Write Prometheus metrics to this file when done")

	_ = cmd.MarkFlagRequired("input")
	return cmd
}

func runImport(cmd *cobra.Command, opts importOptions) error {
	cfg := configuration.Use()
	log := cfg.Logger()

	format, err := source.ParseFormat(opts.format)
	if err != nil {
		return withCode(exitUsage, err)
	}
	encoding, err := source.ParseEncoding(opts.encoding)
	if err != nil {
		return withCode(exitUsage, err)
	}
	if opts.limit < 0 {
		return withCode(exitUsage, fmt.Errorf("--limit must not be negative"))
	}
	var filter importersvc.Filter
	if strings.TrimSpace(opts.filter) != "" {
		f, err := importersvc.CompileFilter(opts.filter, log)
		if err != nil {
			return withCode(exitUsage, fmt.Errorf("--filter: %w", err))
		}
		filter = f
	}
	mode := checkpoint.ParseMode(opts.continueWith)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdown, err := tracing.Setup(ctx, cfg.OpenTelemetry)
	if err != nil {
		return withCode(exitUsage, fmt.Errorf("tracing: %w", err))
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(sctx); err != nil {
			log.WithError(err).Warn("tracing shutdown")
		}
	}()

	store, closeStore, err := openCheckpoint(ctx, cfg, opts.checkpointFile)
	if err != nil {
		return withCode(exitCheckpoint, err)
	}
	defer closeStore()

	src, err := source.Open(opts.input, source.Options{Format: format, Encoding: encoding, Sheet: opts.sheet})
	if err != nil {
		return withCode(exitInput, fmt.Errorf("open input: %w", err))
	}
	defer func() { _ = src.Close() }()

	ctx, b, err := openBackend(ctx, opts.backend)
	if err != nil {
		return err
	}
	defer b.close()
	if err := seedGroups(ctx, b, opts.groupsFile, log); err != nil {
		return err
	}

	importMetrics := metrics.NewImportMetrics()
	reporter := progress.NewReporter(cmd.ErrOrStderr())
	pipeline := newPipeline(b, store, reporter, importMetrics, log)

	log.WithFields(logrus.Fields{
		"input":        opts.input,
		"format":       src.Format(),
		"backend":      opts.backend,
		"continuation": mode.String(),
	}).Info("import started")

	stats, err := pipeline.Run(ctx, src.Records(ctx), importersvc.RunOptions{
		Continuation: mode,
		Limit:        opts.limit,
		Filter:       filter,
	})
	if err != nil {
		if errors.Is(err, importersvc.ErrCheckpoint) {
			return withCode(exitCheckpoint, err)
		}
		return withCode(exitInput, err)
	}

	if err := reporter.WriteReport(cmd.OutOrStdout()); err != nil {
		return withCode(exitReport, fmt.Errorf("write report: %w", err))
	}
	if opts.resultsLog != "" {
		if err := reporter.WriteResultsLog(opts.resultsLog); err != nil {
			return withCode(exitReport, fmt.Errorf("write results log: %w", err))
		}
	}
	if opts.metricsTextfile != "" {
		if err := importMetrics.WriteTextfile(opts.metricsTextfile); err != nil {
			return withCode(exitReport, fmt.Errorf("write metrics: %w", err))
		}
	}

	summary := reporter.Summary()
	if stats.Stopped {
		summary.Status = "stopped"
	}
	log.WithFields(logrus.Fields{
		"processed": stats.Processed,
		"last_id":   stats.LastID,
		"stopped":   stats.Stopped,
	}).Info("import finished")
	return writeJSONLine(cmd.OutOrStdout(), summary)
}

func newPipeline(
	b *backend,
	store checkpoint.Store,
	reporter *progress.Reporter,
	importMetrics *metrics.ImportMetrics,
	log logrus.FieldLogger,
) *importersvc.Pipeline {
	engine := importersvc.NewUpsertEngine(importersvc.UpsertDeps{
		Tx:          b.tx,
		Members:     b.members,
		Profiles:    importersvc.NewProfileImporters(b.fields),
		Templates:   importersvc.NewTemplateImporter(b.fields),
		Memberships: importersvc.NewDirectMembershipImporter(b.groups, b.memberships),
		Regional:    importersvc.NewRegionalImporter(b.groups, b.memberships),
		Checker: importersvc.NewConsistencyChecker(
			b.members,
			b.groups,
			membersvc.NewSummaryValueService(b.groups, b.memberships),
			time.Now,
		),
		Logger: log,
	})
	return importersvc.NewPipeline(
		importersvc.NewIdentityResolver(b.members),
		engine,
		store,
		reporter,
		importersvc.WithMetrics(importMetrics),
		importersvc.WithTracer(otel.Tracer("github.com/iota-uz/member-import/cmd/member-import")),
		importersvc.WithLogger(log),
	)
}

func openCheckpoint(ctx context.Context, cfg *configuration.Configuration, path string) (checkpoint.Store, func(), error) {
	if cfg.Import.CheckpointBackend == "redis" {
		store, err := checkpoint.DialRedis(ctx, cfg.RedisURL, cfg.Import.CheckpointKey)
		if err != nil {
			return nil, nil, fmt.Errorf("checkpoint: %w", err)
		}
		return store, func() { _ = store.Close() }, nil
	}
	if strings.TrimSpace(path) == "" {
		return checkpoint.Nop{}, func() {}, nil
	}
	store := checkpoint.NewFileStore(path)
	if err := store.Probe(ctx); err != nil {
		return nil, nil, fmt.Errorf("checkpoint %s: %w", path, err)
	}
	return store, func() {}, nil
}
