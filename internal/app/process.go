package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/nsafar1/vbmgrid/internal/config"
	"github.com/nsafar1/vbmgrid/internal/ctxlog"
	"github.com/nsafar1/vbmgrid/internal/model"
	"github.com/nsafar1/vbmgrid/internal/orchestrator"
	"github.com/nsafar1/vbmgrid/internal/stagerunner"
	"github.com/nsafar1/vbmgrid/internal/subjects"
	"github.com/nsafar1/vbmgrid/internal/toolexec"
	"go.opentelemetry.io/otel/trace"
)

// UnmatchedFile is written to the output directory when a match list is
// configured.
const UnmatchedFile = "unmatched_subjects.txt"

// placeholderSubject stands in for a real subject when a command template is
// evaluated at startup to find the tool it invokes.
const placeholderSubject model.SubjectID = "SUBJECT"

// Cohort is the subject list a run works on.
type Cohort struct {
	Subjects []model.SubjectID
	// Unmatched lists the match-list IDs absent from the subject list.
	Unmatched []model.SubjectID
}

// prepareOutput creates the output directory.
func (a *App) prepareOutput() error {
	if err := os.MkdirAll(a.config.Pipeline.OutputDir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	return nil
}

// loadCohort reads the subject list and, when configured, intersects it
// with the match list. The unmatched report is written only when write is
// set.
func (a *App) loadCohort(ctx context.Context, write bool) (*Cohort, error) {
	logger := ctxlog.FromContext(ctx)

	ids, err := subjects.Load(ctx, a.config.Pipeline.SubjectList)
	if err != nil {
		return nil, err
	}
	cohort := &Cohort{Subjects: ids}
	if a.config.Pipeline.MatchList == "" {
		logger.Info("Subject list loaded.", "subjects", len(ids))
		return cohort, nil
	}

	reference, err := subjects.Load(ctx, a.config.Pipeline.MatchList)
	if err != nil {
		return nil, err
	}
	cohort.Subjects, cohort.Unmatched = subjects.Match(ids, reference)
	logger.Info("Subject lists matched.", "subjects", len(ids), "matched", len(cohort.Subjects), "unmatched", len(cohort.Unmatched))

	if write {
		path := filepath.Join(a.config.Pipeline.OutputDir, UnmatchedFile)
		if err := subjects.WriteList(path, "Unmatched IDs:", cohort.Unmatched); err != nil {
			return nil, err
		}
	}
	return cohort, nil
}

// checkTools verifies that the program each stage's command template starts
// is installed. The template is evaluated for a placeholder subject.
func (a *App) checkTools(ctx context.Context) error {
	logger := ctxlog.FromContext(ctx)
	for _, stage := range a.config.Stages {
		if !stage.HasCommand() {
			continue
		}
		vars := config.CommandVars{
			Subject: placeholderSubject,
			Inputs:  make(map[string]string, len(stage.Inputs)),
			Params:  stage.Params,
		}
		for _, in := range stage.Inputs {
			path, err := a.resolver.Resolve(placeholderSubject, stage.Name, in.Role)
			if err != nil {
				return err
			}
			vars.Inputs[in.Role] = path
		}
		output, err := a.resolver.Resolve(placeholderSubject, stage.Name, model.RoleOutput)
		if err != nil {
			return err
		}
		vars.Output = output

		argv, err := a.converter.EvalCommand(ctx, stage.Command, vars)
		if err != nil {
			return fmt.Errorf("stage %q: %w", stage.Name, err)
		}
		if err := toolexec.CheckInstalled(argv[0], stage.Env); err != nil {
			return fmt.Errorf("stage %q: %w", stage.Name, err)
		}
		logger.Debug("External tool found.", "stage", stage.Name, "tool", argv[0])
	}
	return nil
}

// Process drives every subject through the configured stages. Per-subject
// problems are recorded in the report, never returned.
func (a *App) Process(ctx context.Context, cohort *Cohort, tracer trace.Tracer) (*orchestrator.Report, error) {
	logger := ctxlog.FromContext(ctx)
	if len(a.config.Stages) == 0 {
		logger.Warn("No stages configured, nothing to process.")
		return &orchestrator.Report{Subjects: cohort.Subjects}, nil
	}

	runner := stagerunner.New(stagerunner.Deps{
		Resolver:  a.resolver,
		Bindings:  a.bindings,
		Converter: a.converter,
		Tools:     a.tools,
		Observer:  a.metrics,
	})
	orch := orchestrator.New(a.config.Stages, runner, orchestrator.Options{
		Workers: a.workers(),
		Tracer:  tracer,
	})

	logger.Info("🚀 Starting cohort processing...")
	report, err := orch.RunAll(ctx, cohort.Subjects)
	if err != nil {
		return report, fmt.Errorf("processing interrupted: %w", err)
	}
	logger.Info("🏁 Cohort processing finished.")
	return report, nil
}
