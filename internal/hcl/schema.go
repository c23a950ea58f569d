package hcl

import "github.com/hashicorp/hcl/v2"

// fileRoot is the top-level structure of a pipeline file. There is no remain
// field, so unknown blocks and attributes are reported as errors.
type fileRoot struct {
	Pipeline  *pipelineBlock  `hcl:"pipeline,block"`
	Stages    []*stageBlock   `hcl:"stage,block"`
	Aggregate *aggregateBlock `hcl:"aggregate,block"`
}

type pipelineBlock struct {
	Subjects  string `hcl:"subjects"`
	MatchList string `hcl:"match_list,optional"`
	OutputDir string `hcl:"output_dir"`
	Workers   int    `hcl:"workers,optional"`
}

// stageBlock represents a `stage "name" {}` block.
type stageBlock struct {
	Name         string            `hcl:"name,label"`
	Operation    string            `hcl:"operation"`
	OutputPrefix string            `hcl:"output_prefix"`
	Timeout      string            `hcl:"timeout,optional"`
	Exclusive    bool              `hcl:"exclusive,optional"`
	Command      hcl.Expression    `hcl:"command,optional"`
	Env          map[string]string `hcl:"env,optional"`
	Inputs       []*inputBlock     `hcl:"input,block"`
	Params       *paramsBlock      `hcl:"params,block"`
}

type inputBlock struct {
	Role      string `hcl:"role,label"`
	Dir       string `hcl:"dir,optional"`
	Prefix    string `hcl:"prefix,optional"`
	Suffix    string `hcl:"suffix,optional"`
	FromStage string `hcl:"from_stage,optional"`
}

// paramsBlock keeps the raw body; parameters are typed by the operation that
// consumes them, not by the file schema.
type paramsBlock struct {
	Body hcl.Body `hcl:",remain"`
}

type aggregateBlock struct {
	Dimension int             `hcl:"dimension"`
	Artifact  string          `hcl:"artifact"`
	UploadURL string          `hcl:"upload_url,optional"`
	Matrix    *matrixBlock    `hcl:"matrix,block"`
	Phenotype *phenotypeBlock `hcl:"phenotype,block"`
	LUT       *lutBlock       `hcl:"lut,block"`
}

type matrixBlock struct {
	Dir          string `hcl:"dir,optional"`
	Prefix       string `hcl:"prefix,optional"`
	Suffix       string `hcl:"suffix,optional"`
	FromStage    string `hcl:"from_stage,optional"`
	HeaderRows   *int   `hcl:"header_rows,optional"`
	IndexColumns *int   `hcl:"index_columns,optional"`
}

type phenotypeBlock struct {
	Path          string         `hcl:"path"`
	SubjectColumn string         `hcl:"subject_column,optional"`
	GroupColumn   string         `hcl:"group_column"`
	SexColumn     string         `hcl:"sex_column"`
	AgeColumn     string         `hcl:"age_column"`
	VolumeColumn  string         `hcl:"volume_column"`
	SexCodes      map[string]int `hcl:"sex_codes,optional"`
}

type lutBlock struct {
	Path   string `hcl:"path"`
	Labels []int  `hcl:"labels"`
}
