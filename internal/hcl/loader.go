package hcl

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/nsafar1/vbmgrid/internal/config"
	"github.com/nsafar1/vbmgrid/internal/ctxlog"
)

// Loader is the HCL-specific implementation of the config.Loader interface.
type Loader struct{}

// NewLoader creates a new HCL configuration loader.
func NewLoader() *Loader {
	return &Loader{}
}

// Load parses a single pipeline file and translates it into the agnostic
// model. Relative paths inside the file are resolved against the file's
// directory.
func (l *Loader) Load(ctx context.Context, path string) (*config.Model, config.Converter, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("HCL loader started.", "path", path)

	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil, fmt.Errorf("pipeline file not found: %s", path)
		}
		return nil, nil, fmt.Errorf("error accessing pipeline file %s: %w", path, err)
	}

	parser := hclparse.NewParser()
	hclFile, diags := parser.ParseHCLFile(path)
	if diags.HasErrors() {
		return nil, nil, fmt.Errorf("failed to parse HCL file %s: %w", path, diags)
	}

	var root fileRoot
	diags = gohcl.DecodeBody(hclFile.Body, nil, &root)
	if diags.HasErrors() {
		return nil, nil, fmt.Errorf("failed to decode HCL file %s: %w", path, diags)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to resolve %s: %w", path, err)
	}
	t := &translator{baseDir: filepath.Dir(abs)}
	model, err := t.translate(ctx, &root)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid pipeline file %s: %w", path, err)
	}
	model.Path = abs

	logger.Debug("HCL loading complete.", "stages", len(model.Stages), "aggregate", model.Aggregate != nil)
	return model, NewConverter(), nil
}
