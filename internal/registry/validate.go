package registry

import (
	"context"
	"fmt"
	"strings"

	"github.com/nsafar1/vbmgrid/internal/config"
	"github.com/nsafar1/vbmgrid/internal/ctxlog"
	"github.com/nsafar1/vbmgrid/internal/model"
)

// Binding ties a stage to its operation and decoded parameters. Bindings are
// built once and shared read-only by all workers.
type Binding struct {
	Stage     *model.StageSpec
	Operation *RegisteredOperation
	Params    any
}

// Bind resolves the operation of every stage and decodes its parameters. All
// problems are collected and reported together.
func (r *Registry) Bind(ctx context.Context, stages []*model.StageSpec, conv config.Converter) (map[string]*Binding, error) {
	logger := ctxlog.FromContext(ctx)
	var errs []string
	bindings := make(map[string]*Binding, len(stages))

	for _, stage := range stages {
		op, ok := r.operations[stage.Operation]
		if !ok {
			errs = append(errs, fmt.Sprintf("stage '%s': unknown operation '%s' (known: %s)", stage.Name, stage.Operation, strings.Join(r.Names(), ", ")))
			continue
		}
		if op.RequiresCommand && !stage.HasCommand() {
			errs = append(errs, fmt.Sprintf("stage '%s': operation '%s' requires a command", stage.Name, stage.Operation))
		}

		var params any
		switch {
		case op.FreeParams:
		case op.NewParams != nil:
			params = op.NewParams()
			if err := conv.DecodeParams(ctx, params, stage.Params); err != nil {
				errs = append(errs, fmt.Sprintf("stage '%s': %v", stage.Name, err))
				continue
			}
			if v, ok := params.(Validator); ok {
				if err := v.Validate(); err != nil {
					errs = append(errs, fmt.Sprintf("stage '%s': invalid params: %v", stage.Name, err))
					continue
				}
			}
			if unused := stage.UnusedParams(); len(unused) > 0 {
				errs = append(errs, fmt.Sprintf("stage '%s': params not referenced by the command: %s", stage.Name, strings.Join(unused, ", ")))
				continue
			}
		case len(stage.Params) > 0:
			errs = append(errs, fmt.Sprintf("stage '%s': operation '%s' takes no params", stage.Name, stage.Operation))
			continue
		}

		bindings[stage.Name] = &Binding{Stage: stage, Operation: op, Params: params}
		logger.Debug("Bound stage to operation.", "stage", stage.Name, "operation", stage.Operation)
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("registry validation failed:\n- %s", strings.Join(errs, "\n- "))
	}
	return bindings, nil
}
