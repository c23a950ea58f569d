package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nsafar1/vbmgrid/internal/ctxlog"
	"github.com/nsafar1/vbmgrid/internal/ledger"
	"github.com/nsafar1/vbmgrid/internal/lut"
	"github.com/nsafar1/vbmgrid/internal/orchestrator"
	"github.com/nsafar1/vbmgrid/internal/phenotype"
	"github.com/nsafar1/vbmgrid/internal/telemetry"
	"go.opentelemetry.io/otel/trace"
)

// Result is everything a run produced. Fields are nil for the steps the
// command did not perform or that were never reached.
type Result struct {
	RunID       string
	Command     string
	Cohort      *Cohort
	Report      *orchestrator.Report
	Aggregation *AggregateResult
}

// Run executes the configured command. The returned error is nil when every
// step completed, even if individual subjects were skipped or failed; those
// are reported in the result.
func (a *App) Run(ctx context.Context) (*Result, error) {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	result := &Result{RunID: uuid.NewString(), Command: a.appConfig.Command}
	ctx = ctxlog.With(ctx, "run_id", result.RunID)
	logger := ctxlog.FromContext(ctx)
	logger.Debug("App.Run method started.", "command", result.Command)

	if result.Command == CommandValidate {
		return result, a.Validate(ctx)
	}

	a.healthCheckServer()

	tp, err := telemetry.Setup(ctx, telemetry.Config{TraceFile: a.appConfig.TraceFile, Version: a.appConfig.Version})
	if err != nil {
		return result, err
	}
	defer func() {
		if err := tp.Shutdown(context.Background()); err != nil {
			logger.Error("Failed to flush traces.", "error", err)
		}
	}()

	var led *ledger.Ledger
	startedAt := time.Now()
	if a.appConfig.LedgerPath != "" {
		led, err = ledger.Open(ctx, a.appConfig.LedgerPath)
		if err != nil {
			return result, err
		}
		defer led.Close()
		if err := led.StartRun(ctx, ledger.Run{
			ID:         result.RunID,
			ConfigPath: a.config.Path,
			Command:    result.Command,
			StartedAt:  startedAt,
		}); err != nil {
			return result, err
		}
	}

	runErr := a.execute(ctx, result, tp.Tracer())
	finishedAt := time.Now()

	if led != nil {
		if err := a.recordLedger(ctx, led, result, finishedAt, runErr); err != nil {
			logger.Error("Failed to update run ledger.", "error", err)
		}
	}
	if result.Cohort != nil {
		if err := a.writeSummary(result, startedAt, finishedAt, runErr); err != nil {
			logger.Error("Failed to write run summary.", "error", err)
		}
	}

	logger.Debug("App.Run method finished.", "error", runErr)
	return result, runErr
}

func (a *App) execute(ctx context.Context, result *Result, tracer trace.Tracer) error {
	logger := ctxlog.FromContext(ctx)
	command := result.Command
	process := command == CommandRun || command == CommandProcess

	if process {
		if err := a.checkTools(ctx); err != nil {
			return err
		}
	}
	if err := a.prepareOutput(); err != nil {
		return err
	}
	cohort, err := a.loadCohort(ctx, true)
	if err != nil {
		return err
	}
	result.Cohort = cohort

	if process {
		report, err := a.Process(ctx, cohort, tracer)
		result.Report = report
		if err != nil {
			return err
		}
	}

	switch {
	case command == CommandAggregate, command == CommandRun && a.config.Aggregate != nil:
		agg, err := a.Aggregate(ctx, cohort, result.Report)
		result.Aggregation = agg
		return err
	case command == CommandRun:
		logger.Info("No aggregate block configured, skipping aggregation.")
	}
	return nil
}

func (a *App) recordLedger(ctx context.Context, led *ledger.Ledger, result *Result, finishedAt time.Time, runErr error) error {
	var errs []error
	if result.Report != nil {
		errs = append(errs, led.RecordOutcomes(ctx, result.RunID, result.Report.Entries))
	}
	if result.Aggregation != nil {
		errs = append(errs, led.RecordRejections(ctx, result.RunID, result.Aggregation.Rejections))
	}
	errs = append(errs, led.FinishRun(ctx, result.RunID, finishedAt, runErr))
	return errors.Join(errs...)
}

// Validate checks everything a run would check at startup without touching
// any subject: tools, subject lists, and the aggregation inputs that are
// shared by the whole cohort.
func (a *App) Validate(ctx context.Context) error {
	logger := ctxlog.FromContext(ctx)
	if err := a.checkTools(ctx); err != nil {
		return err
	}
	cohort, err := a.loadCohort(ctx, false)
	if err != nil {
		return err
	}
	if agg := a.config.Aggregate; agg != nil {
		if _, err := phenotype.Load(agg.Phenotype.Path, agg.Phenotype); err != nil {
			return err
		}
		if agg.LUT != nil {
			lookup, err := lut.Load(ctx, agg.LUT.Path)
			if err != nil {
				return err
			}
			if _, err := lookup.Names(agg.LUT.Labels); err != nil {
				return fmt.Errorf("look-up table %s: %w", agg.LUT.Path, err)
			}
		}
	}
	logger.Info("Configuration is valid.", "stages", a.config.StageNames(), "subjects", len(cohort.Subjects))
	return nil
}
