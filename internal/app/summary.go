package app

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// SummaryFile is the machine-readable run summary in the output directory.
const SummaryFile = "run-summary.yaml"

type runSummary struct {
	RunID      string            `yaml:"run_id"`
	Command    string            `yaml:"command"`
	Pipeline   string            `yaml:"pipeline"`
	StartedAt  time.Time         `yaml:"started_at"`
	FinishedAt time.Time         `yaml:"finished_at"`
	Error      string            `yaml:"error,omitempty"`
	Subjects   int               `yaml:"subjects"`
	Unmatched  []string          `yaml:"unmatched,omitempty"`
	Stages     []stageSummary    `yaml:"stages,omitempty"`
	Problems   []problemSummary  `yaml:"problems,omitempty"`
	Aggregate  *aggregateSummary `yaml:"aggregate,omitempty"`
}

type stageSummary struct {
	Name      string `yaml:"name"`
	Succeeded int    `yaml:"succeeded"`
	Skipped   int    `yaml:"skipped"`
	Failed    int    `yaml:"failed"`
}

// problemSummary is one outcome that did not succeed.
type problemSummary struct {
	Position int    `yaml:"position"`
	Subject  string `yaml:"subject"`
	Stage    string `yaml:"stage"`
	Status   string `yaml:"status"`
	Role     string `yaml:"role,omitempty"`
	Path     string `yaml:"path,omitempty"`
	Detail   string `yaml:"detail,omitempty"`
}

type aggregateSummary struct {
	Accepted     int                `yaml:"accepted"`
	Rejected     []rejectionSummary `yaml:"rejected,omitempty"`
	DisplayRange float64            `yaml:"display_range"`
	Artifact     string             `yaml:"artifact,omitempty"`
	Uploaded     bool               `yaml:"uploaded"`
}

type rejectionSummary struct {
	Subject string `yaml:"subject"`
	Kind    string `yaml:"kind"`
	Reason  string `yaml:"reason"`
}

func (a *App) writeSummary(result *Result, startedAt, finishedAt time.Time, runErr error) error {
	s := runSummary{
		RunID:      result.RunID,
		Command:    result.Command,
		Pipeline:   a.config.Path,
		StartedAt:  startedAt.UTC(),
		FinishedAt: finishedAt.UTC(),
		Subjects:   len(result.Cohort.Subjects),
	}
	if runErr != nil {
		s.Error = runErr.Error()
	}
	for _, id := range result.Cohort.Unmatched {
		s.Unmatched = append(s.Unmatched, string(id))
	}
	if result.Report != nil {
		for _, c := range result.Report.Counts() {
			s.Stages = append(s.Stages, stageSummary{Name: c.Stage, Succeeded: c.Succeeded, Skipped: c.Skipped, Failed: c.Failed})
		}
		for _, o := range result.Report.Entries {
			if o.Succeeded() {
				continue
			}
			s.Problems = append(s.Problems, problemSummary{
				Position: o.Position,
				Subject:  string(o.Subject),
				Stage:    o.Stage,
				Status:   o.Status.String(),
				Role:     o.MissingRole,
				Path:     o.MissingPath,
				Detail:   o.Detail,
			})
		}
	}
	if agg := result.Aggregation; agg != nil {
		as := &aggregateSummary{
			Accepted:     len(agg.Accepted),
			DisplayRange: agg.DisplayRange,
			Artifact:     agg.ArtifactPath,
			Uploaded:     agg.Uploaded,
		}
		for _, r := range agg.Rejections {
			as.Rejected = append(as.Rejected, rejectionSummary{Subject: string(r.Subject), Kind: string(r.Kind), Reason: r.Reason})
		}
		s.Aggregate = as
	}

	data, err := yaml.Marshal(&s)
	if err != nil {
		return fmt.Errorf("failed to encode run summary: %w", err)
	}
	path := filepath.Join(a.config.Pipeline.OutputDir, SummaryFile)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write run summary: %w", err)
	}
	return nil
}
