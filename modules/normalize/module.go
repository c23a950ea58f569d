// Package normalize provides the spatial normalization operation: resampling
// a segmented volume into a reference space through a deformation field.
package normalize

import (
	"context"
	"errors"
	"fmt"

	"github.com/nsafar1/vbmgrid/internal/ctxlog"
	"github.com/nsafar1/vbmgrid/internal/registry"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// Params defines the numeric settings of the resampling.
type Params struct {
	// BoundingBox is [[xmin, ymin, zmin], [xmax, ymax, zmax]] in mm.
	BoundingBox   [][]float64 `param:"bounding_box"`
	VoxelSize     []float64   `param:"voxel_size"`
	Interpolation int         `param:"interpolation"`
}

// Validate implements registry.Validator.
func (p *Params) Validate() error {
	var errs []error
	if len(p.BoundingBox) != 2 || len(p.BoundingBox[0]) != 3 || len(p.BoundingBox[1]) != 3 {
		errs = append(errs, errors.New("bounding_box must be a 2x3 list"))
	} else {
		for axis := 0; axis < 3; axis++ {
			if p.BoundingBox[0][axis] >= p.BoundingBox[1][axis] {
				errs = append(errs, fmt.Errorf("bounding_box axis %d is empty", axis))
			}
		}
	}
	if len(p.VoxelSize) != 3 {
		errs = append(errs, errors.New("voxel_size must have 3 elements"))
	} else {
		for _, v := range p.VoxelSize {
			if v <= 0 {
				errs = append(errs, fmt.Errorf("voxel_size must be positive, got %g", v))
				break
			}
		}
	}
	// 0 is nearest neighbour, 1 trilinear, 2-7 B-spline degree.
	if p.Interpolation < 0 || p.Interpolation > 7 {
		errs = append(errs, fmt.Errorf("interpolation must be between 0 and 7, got %d", p.Interpolation))
	}
	return errors.Join(errs...)
}

// OnRunNormalize hands the resampling to the external tool.
func OnRunNormalize(ctx context.Context, req *registry.Request) error {
	p := req.Params.(*Params)
	ctxlog.FromContext(ctx).Debug("Resampling to reference space.",
		"subject", req.Subject,
		"bounding_box", p.BoundingBox,
		"voxel_size", p.VoxelSize,
		"interpolation", p.Interpolation,
	)
	return req.Tools.Run(ctx, req.Argv, req.Env)
}

// Register registers the operation with the registry.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterOperation("normalize", &registry.RegisteredOperation{
		NewParams:       func() any { return new(Params) },
		Fn:              OnRunNormalize,
		RequiresCommand: true,
	})
}
