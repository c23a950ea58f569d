package hcl

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/hashicorp/hcl/v2"
	"github.com/nsafar1/vbmgrid/internal/config"
	"github.com/nsafar1/vbmgrid/internal/ctxlog"
	"github.com/nsafar1/vbmgrid/internal/model"
	"github.com/zclconf/go-cty/cty"
)

// Variable roots visible to a command template.
const (
	varSubject = "subject"
	varInputs  = "inputs"
	varOutput  = "output"
	varParams  = "params"
)

const defaultHeaderRows = 1

// translator converts the decoded schema into the agnostic model.
type translator struct {
	baseDir string
}

func (t *translator) translate(ctx context.Context, root *fileRoot) (*config.Model, error) {
	if root.Pipeline == nil {
		return nil, errors.New("a pipeline block is required")
	}
	if root.Pipeline.Workers < 0 {
		return nil, fmt.Errorf("pipeline.workers must not be negative, got %d", root.Pipeline.Workers)
	}

	m := &config.Model{
		Pipeline: &config.Pipeline{
			SubjectList: t.path(root.Pipeline.Subjects),
			MatchList:   t.path(root.Pipeline.MatchList),
			OutputDir:   t.path(root.Pipeline.OutputDir),
			Workers:     root.Pipeline.Workers,
		},
	}

	for _, s := range root.Stages {
		stage, err := t.translateStage(ctx, s)
		if err != nil {
			return nil, fmt.Errorf("stage %q: %w", s.Name, err)
		}
		m.Stages = append(m.Stages, stage)
	}

	if root.Aggregate != nil {
		agg, err := t.translateAggregate(root.Aggregate)
		if err != nil {
			return nil, fmt.Errorf("aggregate: %w", err)
		}
		m.Aggregate = agg
	}
	return m, nil
}

func (t *translator) translateStage(ctx context.Context, s *stageBlock) (*model.StageSpec, error) {
	logger := ctxlog.FromContext(ctx)

	stage := &model.StageSpec{
		Name:         s.Name,
		Operation:    s.Operation,
		OutputPrefix: s.OutputPrefix,
		Command:      s.Command,
		Env:          s.Env,
		Exclusive:    s.Exclusive,
		Params:       map[string]cty.Value{},
	}
	if s.Timeout != "" {
		d, err := time.ParseDuration(s.Timeout)
		if err != nil {
			return nil, fmt.Errorf("invalid timeout %q: %w", s.Timeout, err)
		}
		if d <= 0 {
			return nil, fmt.Errorf("timeout must be positive, got %s", s.Timeout)
		}
		stage.Timeout = d
	}
	for _, in := range s.Inputs {
		stage.Inputs = append(stage.Inputs, t.translateInput(in.Role, in.Dir, in.Prefix, in.Suffix, in.FromStage))
	}

	if s.Params != nil {
		attrs, diags := s.Params.Body.JustAttributes()
		if diags.HasErrors() {
			return nil, fmt.Errorf("invalid params block: %w", diags)
		}
		for name, attr := range attrs {
			val, diags := attr.Expr.Value(nil)
			if diags.HasErrors() {
				return nil, fmt.Errorf("param %q must be a constant: %w", name, diags)
			}
			stage.Params[name] = val
		}
	}

	if err := checkCommandRefs(stage); err != nil {
		return nil, err
	}
	logger.Debug("Translated stage.", "stage", stage.Name, "operation", stage.Operation, "inputs", len(stage.Inputs), "params", len(stage.Params))
	return stage, nil
}

func (t *translator) translateInput(role, dir, prefix, suffix, fromStage string) *model.InputSpec {
	in := &model.InputSpec{Role: role, FromStage: fromStage, Prefix: prefix, Suffix: suffix}
	if fromStage == "" {
		in.Dir = t.path(dir)
		if dir == "" {
			in.Dir = t.baseDir
		}
	} else {
		// Kept verbatim so the resolver can reject a mixed declaration.
		in.Dir = dir
	}
	return in
}

func (t *translator) translateAggregate(a *aggregateBlock) (*config.Aggregate, error) {
	if a.Dimension <= 0 {
		return nil, fmt.Errorf("dimension must be positive, got %d", a.Dimension)
	}
	if a.Matrix == nil {
		return nil, errors.New("a matrix block is required")
	}
	if a.Phenotype == nil {
		return nil, errors.New("a phenotype block is required")
	}

	agg := &config.Aggregate{
		Dimension:    a.Dimension,
		ArtifactPath: t.path(a.Artifact),
		UploadURL:    a.UploadURL,
		Matrix:       t.translateInput(model.RoleMatrix, a.Matrix.Dir, a.Matrix.Prefix, a.Matrix.Suffix, a.Matrix.FromStage),
		HeaderRows:   defaultHeaderRows,
	}
	if a.Matrix.HeaderRows != nil {
		agg.HeaderRows = *a.Matrix.HeaderRows
	}
	if a.Matrix.IndexColumns != nil {
		agg.IndexColumns = *a.Matrix.IndexColumns
	}
	if agg.HeaderRows < 0 || agg.IndexColumns < 0 {
		return nil, errors.New("matrix header_rows and index_columns must not be negative")
	}

	p := a.Phenotype
	agg.Phenotype = &config.Phenotype{
		Path:          t.path(p.Path),
		SubjectColumn: p.SubjectColumn,
		GroupColumn:   p.GroupColumn,
		SexColumn:     p.SexColumn,
		AgeColumn:     p.AgeColumn,
		VolumeColumn:  p.VolumeColumn,
		SexCodes:      p.SexCodes,
	}
	for code, v := range p.SexCodes {
		if v != 0 && v != 1 {
			return nil, fmt.Errorf("sex code %q must map to 0 or 1, got %d", code, v)
		}
	}

	if a.LUT != nil {
		if len(a.LUT.Labels) != a.Dimension {
			return nil, fmt.Errorf("lut lists %d labels but dimension is %d", len(a.LUT.Labels), a.Dimension)
		}
		agg.LUT = &config.LUT{Path: t.path(a.LUT.Path), Labels: a.LUT.Labels}
	}
	return agg, nil
}

// path resolves p against the pipeline file's directory. Empty stays empty.
func (t *translator) path(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(t.baseDir, p)
}

// checkCommandRefs rejects command templates that reference variables a
// subject can never provide, so the mistake surfaces at startup rather than
// as one failure per subject.
func checkCommandRefs(stage *model.StageSpec) error {
	if stage.Command == nil {
		return nil
	}
	var problems []string
	for _, traversal := range stage.Command.Variables() {
		root := traversal.RootName()
		switch root {
		case varSubject, varOutput:
		case varInputs:
			if name, ok := attrName(traversal); ok {
				if _, declared := stage.Input(name); !declared {
					problems = append(problems, fmt.Sprintf("inputs.%s is not a declared input", name))
				}
			}
		case varParams:
			if name, ok := attrName(traversal); ok {
				if _, declared := stage.Params[name]; !declared {
					problems = append(problems, fmt.Sprintf("params.%s is not a declared parameter", name))
				}
			}
		default:
			problems = append(problems, fmt.Sprintf("unknown variable %q", root))
		}
	}
	if len(problems) == 0 {
		return nil
	}
	sort.Strings(problems)
	return fmt.Errorf("invalid command template: %s", strings.Join(problems, "; "))
}

func attrName(traversal hcl.Traversal) (string, bool) {
	if len(traversal) < 2 {
		return "", false
	}
	if attr, ok := traversal[1].(hcl.TraverseAttr); ok {
		return attr.Name, true
	}
	return "", false
}
