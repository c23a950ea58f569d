package config

import (
	"context"

	"github.com/hashicorp/hcl/v2"
	"github.com/nsafar1/vbmgrid/internal/model"
	"github.com/zclconf/go-cty/cty"
)

// Loader is the interface for a format-specific configuration loader.
type Loader interface {
	// Load reads the pipeline file at path, translates it into the
	// format-agnostic model, and returns a matching Converter.
	Load(ctx context.Context, path string) (*Model, Converter, error)
}

// Converter is the interface for a format-specific data binding and type
// conversion implementation. It acts as the bridge between the raw
// configuration and the Go types used by operations.
type Converter interface {
	// DecodeParams decodes a stage's raw parameters into a target Go struct
	// whose fields carry `param` tags, rejecting missing required and
	// unknown parameters.
	DecodeParams(ctx context.Context, target any, params map[string]cty.Value) error

	// EvalCommand evaluates a stage's command template for one subject and
	// returns the resulting argv.
	EvalCommand(ctx context.Context, expr hcl.Expression, vars CommandVars) ([]string, error)
}

// CommandVars are the per-subject variables visible to a command template.
type CommandVars struct {
	Subject model.SubjectID
	Inputs  map[string]string
	Output  string
	Params  map[string]cty.Value
}
