package orchestrator

import "github.com/nsafar1/vbmgrid/internal/model"

// Report is the complete result of a run, in subject list order.
type Report struct {
	Subjects []model.SubjectID
	Stages   []string
	// Entries holds one outcome per (occurrence, stage), occurrence major.
	Entries []model.Outcome
}

// StageCounts tallies the outcomes of one stage.
type StageCounts struct {
	Stage     string
	Succeeded int
	Skipped   int
	Failed    int
}

// Total returns the number of outcomes counted.
func (c StageCounts) Total() int {
	return c.Succeeded + c.Skipped + c.Failed
}

// Counts returns the per-stage tallies in stage order.
func (r *Report) Counts() []StageCounts {
	byStage := make(map[string]*StageCounts, len(r.Stages))
	counts := make([]StageCounts, len(r.Stages))
	for i, name := range r.Stages {
		counts[i].Stage = name
		byStage[name] = &counts[i]
	}
	for _, o := range r.Entries {
		c, ok := byStage[o.Stage]
		if !ok {
			continue
		}
		switch o.Status {
		case model.StatusSuccess:
			c.Succeeded++
		case model.StatusSkippedMissingInput:
			c.Skipped++
		case model.StatusFailed:
			c.Failed++
		}
	}
	return counts
}

// ForStage returns the outcomes of one stage in subject list order.
func (r *Report) ForStage(stage string) []model.Outcome {
	var out []model.Outcome
	for _, o := range r.Entries {
		if o.Stage == stage {
			out = append(out, o)
		}
	}
	return out
}
