// Package command provides a generic operation that runs the stage's command
// template as is. Its params are passed to the template without checks.
package command

import (
	"context"

	"github.com/nsafar1/vbmgrid/internal/registry"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// OnRunCommand runs the evaluated command.
func OnRunCommand(ctx context.Context, req *registry.Request) error {
	return req.Tools.Run(ctx, req.Argv, req.Env)
}

// Register registers the operation with the registry.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterOperation("command", &registry.RegisteredOperation{
		Fn:              OnRunCommand,
		RequiresCommand: true,
		FreeParams:      true,
	})
}
