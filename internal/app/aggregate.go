package app

import (
	"context"
	"fmt"

	"github.com/nsafar1/vbmgrid/internal/artifact"
	"github.com/nsafar1/vbmgrid/internal/ctxlog"
	"github.com/nsafar1/vbmgrid/internal/lut"
	"github.com/nsafar1/vbmgrid/internal/matrix"
	"github.com/nsafar1/vbmgrid/internal/model"
	"github.com/nsafar1/vbmgrid/internal/orchestrator"
	"github.com/nsafar1/vbmgrid/internal/phenotype"
	"github.com/nsafar1/vbmgrid/internal/publish"
)

// AggregateResult describes a completed aggregation.
type AggregateResult struct {
	Accepted     []model.SubjectID
	Rejections   []matrix.Rejection
	DisplayRange float64
	ArtifactPath string
	Uploaded     bool
}

// Aggregate stacks the cohort's matrices, joins them with the phenotype
// table and writes the artifact. report is the processing report of the
// same run, or nil when aggregating the outputs of an earlier run; when
// present, matrices produced by a stage are only read for subjects whose
// stage succeeded. Rejected matrices are logged and skipped; a phenotype
// mismatch or an empty tensor is fatal and no artifact is written.
func (a *App) Aggregate(ctx context.Context, cohort *Cohort, report *orchestrator.Report) (*AggregateResult, error) {
	logger := ctxlog.FromContext(ctx)
	agg := a.config.Aggregate
	if agg == nil {
		return nil, fmt.Errorf("pipeline file %s has no aggregate block", a.config.Path)
	}

	entries, err := a.matrixEntries(cohort, report)
	if err != nil {
		return nil, err
	}
	opts := matrix.LoadOptions{HeaderRows: agg.HeaderRows, IndexColumns: agg.IndexColumns}
	tensor, _, rejections := matrix.Aggregate(ctx, entries, agg.Dimension, opts)
	a.metrics.ObserveAggregation(tensor.Depth(), rejections)

	result := &AggregateResult{Accepted: tensor.Subjects, Rejections: rejections}

	table, err := phenotype.Load(agg.Phenotype.Path, agg.Phenotype)
	if err != nil {
		return result, err
	}
	dataset, err := phenotype.Align(tensor, table)
	if err != nil {
		return result, err
	}
	mean, displayRange, err := matrix.Summarize(tensor)
	if err != nil {
		return result, err
	}
	result.DisplayRange = displayRange

	var regions *artifact.Regions
	if agg.LUT != nil {
		lookup, err := lut.Load(ctx, agg.LUT.Path)
		if err != nil {
			return result, err
		}
		names, err := lookup.Names(agg.LUT.Labels)
		if err != nil {
			return result, fmt.Errorf("look-up table %s: %w", agg.LUT.Path, err)
		}
		regions = &artifact.Regions{Labels: agg.LUT.Labels, Names: names}
	}

	bundle := artifact.New(dataset, mean, displayRange, rejections, regions)
	if err := artifact.Write(agg.ArtifactPath, bundle); err != nil {
		return result, err
	}
	result.ArtifactPath = agg.ArtifactPath
	logger.Info("Artifact written.", "path", agg.ArtifactPath, "depth", tensor.Depth(), "display_range", displayRange)

	if agg.UploadURL != "" {
		if err := publish.New(nil).Upload(ctx, agg.ArtifactPath, agg.UploadURL); err != nil {
			return result, err
		}
		result.Uploaded = true
	}
	return result, nil
}

// matrixEntries lists one tensor candidate per subject occurrence.
func (a *App) matrixEntries(cohort *Cohort, report *orchestrator.Report) ([]matrix.Entry, error) {
	spec := a.config.Aggregate.Matrix
	var upstream map[int]model.Status
	if spec.IsUpstream() && report != nil {
		upstream = make(map[int]model.Status, len(cohort.Subjects))
		for _, o := range report.ForStage(spec.FromStage) {
			upstream[o.Position] = o.Status
		}
	}

	entries := make([]matrix.Entry, len(cohort.Subjects))
	for i, subject := range cohort.Subjects {
		path, err := a.resolver.Resolve(subject, model.AggregateStage, model.RoleMatrix)
		if err != nil {
			return nil, err
		}
		entries[i] = matrix.Entry{Subject: subject, Path: path}
		if upstream == nil {
			continue
		}
		if status, ok := upstream[i]; !ok || status != model.StatusSuccess {
			entries[i].Err = &matrix.ValidationFailure{
				Path:   path,
				Kind:   matrix.KindUpstream,
				Reason: fmt.Sprintf("stage %s did not succeed", spec.FromStage),
			}
		}
	}
	return entries, nil
}
