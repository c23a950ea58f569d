// Package orchestrator drives every subject of a cohort through the ordered
// stages on a bounded worker pool.
package orchestrator

import (
	"context"

	"github.com/nsafar1/vbmgrid/internal/ctxlog"
	"github.com/nsafar1/vbmgrid/internal/model"
	"github.com/nsafar1/vbmgrid/internal/outcomestore"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

const tracerName = "github.com/nsafar1/vbmgrid/internal/orchestrator"

// cancelledDetail is the failure detail of work that never started because
// the run was cancelled.
const cancelledDetail = "run cancelled"

// StageRunner applies one stage to one subject.
type StageRunner interface {
	Run(ctx context.Context, subject model.SubjectID, stage *model.StageSpec, upstream map[string]model.Status) model.Outcome
}

// Options tune an Orchestrator.
type Options struct {
	// Workers bounds the number of subjects processed at once. Values
	// below one mean sequential processing.
	Workers int
	// Tracer defaults to the global tracer provider.
	Tracer trace.Tracer
}

// Orchestrator runs the configured stages over a subject list.
type Orchestrator struct {
	stages  []*model.StageSpec
	runner  StageRunner
	workers int
	tracer  trace.Tracer
}

// New creates an Orchestrator. stages must be in execution order and are
// never modified.
func New(stages []*model.StageSpec, runner StageRunner, opts Options) *Orchestrator {
	workers := opts.Workers
	if workers < 1 {
		workers = 1
	}
	tracer := opts.Tracer
	if tracer == nil {
		tracer = otel.Tracer(tracerName)
	}
	return &Orchestrator{stages: stages, runner: runner, workers: workers, tracer: tracer}
}

// RunAll processes every subject occurrence and returns a report holding
// exactly one outcome per (occurrence, stage). Occurrences of the same ID
// are processed one after another by the same task, so no two workers ever
// write the same output path. When ctx is cancelled, work that has not
// started is reported as failed and ctx's error is returned with the
// complete report.
func (o *Orchestrator) RunAll(ctx context.Context, subjects []model.SubjectID) (*Report, error) {
	logger := ctxlog.FromContext(ctx)
	stageNames := make([]string, len(o.stages))
	for i, s := range o.stages {
		stageNames[i] = s.Name
	}
	logger.Info("Processing cohort.", "subjects", len(subjects), "stages", stageNames, "workers", o.workers)

	store := outcomestore.New()
	var g errgroup.Group
	g.SetLimit(o.workers)
	for _, positions := range groupByID(subjects) {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			o.runTask(ctx, subjects, positions, store)
			return nil
		})
	}
	_ = g.Wait()

	for pos, subject := range subjects {
		for _, stage := range o.stages {
			if _, ok := store.Get(pos, stage.Name); ok {
				continue
			}
			out := model.Failed(subject, stage.Name, cancelledDetail)
			out.Position = pos
			o.record(ctx, store, out)
		}
	}

	report := &Report{
		Subjects: subjects,
		Stages:   stageNames,
		Entries:  store.Ordered(len(subjects), stageNames),
	}
	return report, ctx.Err()
}

// runTask processes the given occurrences of one subject ID in order.
func (o *Orchestrator) runTask(ctx context.Context, subjects []model.SubjectID, positions []int, store *outcomestore.Store) {
	for _, pos := range positions {
		subject := subjects[pos]
		upstream := make(map[string]model.Status, len(o.stages))
		for _, stage := range o.stages {
			var out model.Outcome
			if ctx.Err() != nil {
				out = model.Failed(subject, stage.Name, cancelledDetail)
			} else {
				out = o.runStage(ctx, subject, pos, stage, upstream)
			}
			out.Position = pos
			upstream[stage.Name] = out.Status
			o.record(ctx, store, out)
		}
	}
}

func (o *Orchestrator) runStage(ctx context.Context, subject model.SubjectID, pos int, stage *model.StageSpec, upstream map[string]model.Status) model.Outcome {
	ctx, span := o.tracer.Start(ctx, "stage."+stage.Name,
		trace.WithAttributes(
			attribute.String("subject", string(subject)),
			attribute.Int("position", pos),
			attribute.String("stage", stage.Name),
			attribute.String("operation", stage.Operation),
		),
	)
	defer span.End()

	out := o.runner.Run(ctx, subject, stage, upstream)

	span.SetAttributes(attribute.String("status", out.Status.String()))
	switch out.Status {
	case model.StatusFailed:
		span.SetStatus(codes.Error, out.Detail)
	case model.StatusSkippedMissingInput:
		span.SetAttributes(attribute.String("missing_role", out.MissingRole))
	}
	return out
}

func (o *Orchestrator) record(ctx context.Context, store *outcomestore.Store, out model.Outcome) {
	if err := store.Record(out); err != nil {
		ctxlog.FromContext(ctx).Error("Dropping outcome.", "error", err)
	}
}

// groupByID returns the positions of each distinct ID, in order of first
// occurrence.
func groupByID(subjects []model.SubjectID) [][]int {
	index := make(map[model.SubjectID]int, len(subjects))
	var groups [][]int
	for pos, id := range subjects {
		i, ok := index[id]
		if !ok {
			i = len(groups)
			index[id] = i
			groups = append(groups, nil)
		}
		groups[i] = append(groups[i], pos)
	}
	return groups
}
