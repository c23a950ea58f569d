// Package paths maps (subject, stage, role) triples to file paths using the
// naming conventions declared in the pipeline file. It performs no I/O.
package paths

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/nsafar1/vbmgrid/internal/model"
)

// UnknownRoleError reports a (stage, role) pair that the configuration does
// not declare. It is a configuration error, never a per-subject condition.
type UnknownRoleError struct {
	Stage string
	Role  string
}

func (e *UnknownRoleError) Error() string {
	return fmt.Sprintf("no naming convention for role %q of stage %q", e.Role, e.Stage)
}

// ConfigError reports an inconsistent naming configuration.
type ConfigError struct {
	Stage  string
	Role   string
	Reason string
}

func (e *ConfigError) Error() string {
	if e.Role == "" {
		return fmt.Sprintf("stage %q: %s", e.Stage, e.Reason)
	}
	return fmt.Sprintf("stage %q, input %q: %s", e.Stage, e.Role, e.Reason)
}

// Resolver resolves file paths for every stage of a pipeline.
type Resolver struct {
	outputDir string
	stages    map[string]*model.StageSpec
	matrix    *model.InputSpec
}

// New validates the naming configuration and returns a Resolver. Stages must
// be given in execution order so that upstream references can be checked.
// matrix may be nil when the pipeline has no aggregation step.
func New(outputDir string, stages []*model.StageSpec, matrix *model.InputSpec) (*Resolver, error) {
	r := &Resolver{
		outputDir: outputDir,
		stages:    make(map[string]*model.StageSpec, len(stages)),
		matrix:    matrix,
	}

	for _, stage := range stages {
		if _, dup := r.stages[stage.Name]; dup {
			return nil, &ConfigError{Stage: stage.Name, Reason: "declared more than once"}
		}
		if stage.Name == model.AggregateStage {
			return nil, &ConfigError{Stage: stage.Name, Reason: "name is reserved"}
		}
		if strings.ContainsAny(stage.OutputPrefix, `/\`) {
			return nil, &ConfigError{Stage: stage.Name, Reason: "output_prefix cannot contain a path separator"}
		}
		if len(stage.Inputs) == 0 {
			return nil, &ConfigError{Stage: stage.Name, Reason: "at least one input is required"}
		}
		roles := make(map[string]struct{}, len(stage.Inputs))
		for _, in := range stage.Inputs {
			if in.Role == model.RoleOutput {
				return nil, &ConfigError{Stage: stage.Name, Role: in.Role, Reason: "role name is reserved"}
			}
			if _, dup := roles[in.Role]; dup {
				return nil, &ConfigError{Stage: stage.Name, Role: in.Role, Reason: "declared more than once"}
			}
			roles[in.Role] = struct{}{}

			if err := checkInput(stage.Name, in); err != nil {
				return nil, err
			}
			// Only stages seen so far are eligible, which also rules out
			// self references and cycles.
			if in.IsUpstream() {
				if _, ok := r.stages[in.FromStage]; !ok {
					return nil, &ConfigError{Stage: stage.Name, Role: in.Role, Reason: fmt.Sprintf("from_stage %q is not an earlier stage", in.FromStage)}
				}
			}
		}
		r.stages[stage.Name] = stage
	}

	if matrix != nil {
		if err := checkInput(model.AggregateStage, matrix); err != nil {
			return nil, err
		}
		if matrix.IsUpstream() {
			if _, ok := r.stages[matrix.FromStage]; !ok {
				return nil, &ConfigError{Stage: model.AggregateStage, Role: matrix.Role, Reason: fmt.Sprintf("from_stage %q is not a declared stage", matrix.FromStage)}
			}
		}
	}
	return r, nil
}

func checkInput(stage string, in *model.InputSpec) error {
	if in.IsUpstream() {
		if in.Dir != "" || in.Prefix != "" || in.Suffix != "" {
			return &ConfigError{Stage: stage, Role: in.Role, Reason: "from_stage cannot be combined with dir, prefix or suffix"}
		}
		return nil
	}
	if in.Prefix == "" && in.Suffix == "" {
		return &ConfigError{Stage: stage, Role: in.Role, Reason: "prefix or suffix is required"}
	}
	if strings.ContainsAny(in.Prefix+in.Suffix, `/\`) {
		return &ConfigError{Stage: stage, Role: in.Role, Reason: "prefix and suffix cannot contain a path separator, use dir"}
	}
	return nil
}

// OutputDir returns the directory stage outputs are written to.
func (r *Resolver) OutputDir() string {
	return r.outputDir
}

// Resolve returns the path of a role for a subject.
func (r *Resolver) Resolve(subject model.SubjectID, stage, role string) (string, error) {
	if err := subject.Validate(); err != nil {
		return "", err
	}
	if stage == model.AggregateStage {
		if r.matrix == nil || role != model.RoleMatrix {
			return "", &UnknownRoleError{Stage: stage, Role: role}
		}
		return r.resolveInput(subject, r.matrix)
	}

	spec, ok := r.stages[stage]
	if !ok {
		return "", &UnknownRoleError{Stage: stage, Role: role}
	}
	if role == model.RoleOutput {
		primary, err := r.resolveInput(subject, spec.Primary())
		if err != nil {
			return "", err
		}
		return filepath.Join(r.outputDir, spec.OutputPrefix+filepath.Base(primary)), nil
	}
	in, ok := spec.Input(role)
	if !ok {
		return "", &UnknownRoleError{Stage: stage, Role: role}
	}
	return r.resolveInput(subject, in)
}

func (r *Resolver) resolveInput(subject model.SubjectID, in *model.InputSpec) (string, error) {
	if in.IsUpstream() {
		return r.Resolve(subject, in.FromStage, model.RoleOutput)
	}
	return filepath.Join(in.Dir, in.Prefix+string(subject)+in.Suffix), nil
}
