// SPDX-License-Identifier: MIT
//
// This file defines the immutable description of a transform stage.
package model

import (
	"sort"
	"time"

	"github.com/hashicorp/hcl/v2"
	"github.com/zclconf/go-cty/cty"
)

const (
	// RoleOutput is the pseudo-role naming a stage's own output file.
	RoleOutput = "output"
	// AggregateStage is the pseudo-stage owning the per-subject matrix files.
	AggregateStage = "aggregate"
	// RoleMatrix is the only role of AggregateStage.
	RoleMatrix = "matrix"
)

// InputSpec describes where one input role of a stage comes from. Exactly one
// of the two forms is used: a file naming convention ({Dir}/{Prefix}{id}{Suffix})
// or a reference to the output of an earlier stage.
type InputSpec struct {
	Role      string
	Dir       string
	Prefix    string
	Suffix    string
	FromStage string
}

// IsUpstream reports whether the input is produced by an earlier stage.
func (in *InputSpec) IsUpstream() bool {
	return in.FromStage != ""
}

// StageSpec is one named transform step. It is built once at load time and
// must not be mutated afterwards.
type StageSpec struct {
	Name         string
	Operation    string
	OutputPrefix string

	// Inputs are ordered as declared; the first one is the primary input
	// whose base name the output file inherits.
	Inputs []*InputSpec

	// Params are the numeric settings forwarded to the external tool
	// (kernel width, interpolation order, bounding box...).
	Params map[string]cty.Value

	// Command is the argv template evaluated per subject. It evaluates to
	// null when the stage declares no command.
	Command hcl.Expression
	Env     map[string]string
	Timeout time.Duration
	// Exclusive forbids concurrent invocations of this stage's operation.
	Exclusive bool
}

// Primary returns the first declared input, or nil for a stage without inputs.
func (s *StageSpec) Primary() *InputSpec {
	if len(s.Inputs) == 0 {
		return nil
	}
	return s.Inputs[0]
}

// Input looks up an input role by name.
func (s *StageSpec) Input(role string) (*InputSpec, bool) {
	for _, in := range s.Inputs {
		if in.Role == role {
			return in, true
		}
	}
	return nil, false
}

// HasCommand reports whether a command template was configured.
func (s *StageSpec) HasCommand() bool {
	if s.Command == nil {
		return false
	}
	val, diags := s.Command.Value(nil)
	if diags.HasErrors() {
		// References to per-subject variables cannot be evaluated without
		// a context, which means a template is present.
		return true
	}
	return !val.IsNull()
}

// UnusedParams lists, in sorted order, the configured params that the
// command template never references. A reference to the whole params object
// counts as using all of them.
func (s *StageSpec) UnusedParams() []string {
	if !s.HasCommand() || len(s.Params) == 0 {
		return nil
	}
	used := make(map[string]bool, len(s.Params))
	for _, traversal := range s.Command.Variables() {
		if traversal.RootName() != "params" {
			continue
		}
		if len(traversal) < 2 {
			return nil
		}
		switch step := traversal[1].(type) {
		case hcl.TraverseAttr:
			used[step.Name] = true
		case hcl.TraverseIndex:
			if step.Key.Type() == cty.String && step.Key.IsKnown() && !step.Key.IsNull() {
				used[step.Key.AsString()] = true
			} else {
				return nil
			}
		default:
			return nil
		}
	}
	var unused []string
	for name := range s.Params {
		if !used[name] {
			unused = append(unused, name)
		}
	}
	sort.Strings(unused)
	return unused
}
