// Package smooth provides isotropic Gaussian smoothing of a volume.
package smooth

import (
	"context"
	"fmt"

	"github.com/nsafar1/vbmgrid/internal/ctxlog"
	"github.com/nsafar1/vbmgrid/internal/registry"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// Params defines the kernel of the smoothing.
type Params struct {
	// FWHM is the full width at half maximum of the kernel in mm.
	FWHM float64 `param:"fwhm"`
}

// Validate implements registry.Validator.
func (p *Params) Validate() error {
	if p.FWHM <= 0 {
		return fmt.Errorf("fwhm must be positive, got %g", p.FWHM)
	}
	return nil
}

// OnRunSmooth hands the smoothing to the external tool.
func OnRunSmooth(ctx context.Context, req *registry.Request) error {
	p := req.Params.(*Params)
	ctxlog.FromContext(ctx).Debug("Smoothing volume.", "subject", req.Subject, "fwhm", p.FWHM)
	return req.Tools.Run(ctx, req.Argv, req.Env)
}

// Register registers the operation with the registry.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterOperation("smooth", &registry.RegisteredOperation{
		NewParams:       func() any { return new(Params) },
		Fn:              OnRunSmooth,
		RequiresCommand: true,
	})
}
