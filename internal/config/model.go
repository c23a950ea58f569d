package config

import "github.com/nsafar1/vbmgrid/internal/model"

// Model is the unified, format-agnostic representation of a pipeline file.
type Model struct {
	// Path is the file the model was loaded from.
	Path      string
	Pipeline  *Pipeline
	Stages    []*model.StageSpec
	Aggregate *Aggregate // nil when the file has no aggregate block
}

// Pipeline holds the run-wide settings.
type Pipeline struct {
	SubjectList string
	// MatchList is an optional second list; only subjects present in both
	// lists are processed.
	MatchList string
	OutputDir string
	// Workers is 0 when the file does not set it.
	Workers int
}

// Aggregate describes the matrix aggregation step.
type Aggregate struct {
	Dimension    int
	ArtifactPath string
	UploadURL    string
	Matrix       *model.InputSpec
	HeaderRows   int
	IndexColumns int
	Phenotype    *Phenotype
	LUT          *LUT // nil when no look-up table is configured
}

// Phenotype describes the phenotype table and the columns taken from it.
type Phenotype struct {
	Path          string
	SubjectColumn string // empty: rows align by position
	GroupColumn   string
	SexColumn     string
	AgeColumn     string
	VolumeColumn  string
	SexCodes      map[string]int
}

// LUT points at a FreeSurfer colour look-up table and selects the labels,
// in matrix axis order, that name the tensor's rows and columns.
type LUT struct {
	Path   string
	Labels []int
}

// StageNames returns the stage names in execution order.
func (m *Model) StageNames() []string {
	names := make([]string, len(m.Stages))
	for i, s := range m.Stages {
		names[i] = s.Name
	}
	return names
}
