// Package stagerunner applies one stage to one subject and turns every
// per-subject problem into a typed outcome.
package stagerunner

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nsafar1/vbmgrid/internal/config"
	"github.com/nsafar1/vbmgrid/internal/ctxlog"
	"github.com/nsafar1/vbmgrid/internal/model"
	"github.com/nsafar1/vbmgrid/internal/paths"
	"github.com/nsafar1/vbmgrid/internal/registry"
	"github.com/nsafar1/vbmgrid/internal/toolexec"
)

// Observer receives every outcome the runner produces.
type Observer interface {
	ObserveOutcome(o model.Outcome)
}

// Deps are the collaborators of a Runner. Observer may be nil.
type Deps struct {
	Resolver  *paths.Resolver
	Bindings  map[string]*registry.Binding
	Converter config.Converter
	Tools     toolexec.Runner
	Observer  Observer
}

// Runner is safe for concurrent use; all of its state is read-only after New
// except the exclusive-operation locks.
type Runner struct {
	deps  Deps
	locks map[string]*sync.Mutex
}

// New creates a Runner.
func New(deps Deps) *Runner {
	locks := make(map[string]*sync.Mutex)
	for _, b := range deps.Bindings {
		if _, ok := locks[b.Stage.Operation]; !ok {
			locks[b.Stage.Operation] = &sync.Mutex{}
		}
	}
	return &Runner{deps: deps, locks: locks}
}

// Run applies stage to subject. upstream holds the statuses of the earlier
// stages for this subject in the current run. It never returns an error and
// writes at most one file, the stage output, and only on success.
func (r *Runner) Run(ctx context.Context, subject model.SubjectID, stage *model.StageSpec, upstream map[string]model.Status) model.Outcome {
	ctx, logger := ctxlog.ForStage(ctx, string(subject), stage.Name)
	start := time.Now()
	out := r.run(ctx, subject, stage, upstream)
	out.Duration = time.Since(start)

	switch out.Status {
	case model.StatusSuccess:
		logger.Info("Stage completed.", "output", out.OutputPath, "duration", out.Duration)
	case model.StatusSkippedMissingInput:
		if out.MissingPath == "" {
			logger.Warn("Upstream stage did not succeed, skipping.", "role", out.MissingRole)
		} else {
			logger.Warn("Required input missing, skipping.", "role", out.MissingRole, "path", out.MissingPath)
		}
	case model.StatusFailed:
		logger.Error("Stage failed.", "detail", out.Detail)
	}
	if r.deps.Observer != nil {
		r.deps.Observer.ObserveOutcome(out)
	}
	return out
}

func (r *Runner) run(ctx context.Context, subject model.SubjectID, stage *model.StageSpec, upstream map[string]model.Status) model.Outcome {
	binding, ok := r.deps.Bindings[stage.Name]
	if !ok {
		return model.Failed(subject, stage.Name, "stage has no bound operation")
	}

	inputs := make(map[string]string, len(stage.Inputs))
	for _, in := range stage.Inputs {
		// A failed or skipped upstream stage may have left an output from an
		// earlier run behind; it must not be consumed.
		if in.IsUpstream() {
			if status, ok := upstream[in.FromStage]; !ok || status != model.StatusSuccess {
				return model.SkippedMissingInput(subject, stage.Name, in.Role, "")
			}
		}
		path, err := r.deps.Resolver.Resolve(subject, stage.Name, in.Role)
		if err != nil {
			return model.Failed(subject, stage.Name, err.Error())
		}
		info, err := os.Stat(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			return model.SkippedMissingInput(subject, stage.Name, in.Role, path)
		case err != nil:
			return model.Failed(subject, stage.Name, fmt.Sprintf("cannot access input %s: %v", in.Role, err))
		case info.IsDir():
			return model.SkippedMissingInput(subject, stage.Name, in.Role, path)
		}
		inputs[in.Role] = path
	}

	output, err := r.deps.Resolver.Resolve(subject, stage.Name, model.RoleOutput)
	if err != nil {
		return model.Failed(subject, stage.Name, err.Error())
	}
	if err := os.MkdirAll(filepath.Dir(output), 0o755); err != nil {
		return model.Failed(subject, stage.Name, fmt.Sprintf("cannot create output directory: %v", err))
	}
	partial := partialPath(output)

	req := &registry.Request{
		Subject: subject,
		Stage:   stage.Name,
		Inputs:  inputs,
		Output:  partial,
		Env:     stage.Env,
		Params:  binding.Params,
		Tools:   r.deps.Tools,
	}
	if stage.HasCommand() {
		argv, err := r.deps.Converter.EvalCommand(ctx, stage.Command, config.CommandVars{
			Subject: subject,
			Inputs:  inputs,
			Output:  partial,
			Params:  stage.Params,
		})
		if err != nil {
			return model.Failed(subject, stage.Name, err.Error())
		}
		req.Argv = argv
	}

	if err := r.invoke(ctx, binding, stage, req); err != nil {
		_ = os.Remove(partial)
		return model.Failed(subject, stage.Name, err.Error())
	}

	info, err := os.Stat(partial)
	if err != nil || !info.Mode().IsRegular() {
		_ = os.Remove(partial)
		return model.Failed(subject, stage.Name, "operation reported success but wrote no output")
	}
	if err := os.Rename(partial, output); err != nil {
		_ = os.Remove(partial)
		return model.Failed(subject, stage.Name, fmt.Sprintf("cannot move output into place: %v", err))
	}
	return model.Success(subject, stage.Name, output)
}

// invoke calls the operation under the stage timeout and, when required,
// the operation's lock. A panic is reported as an error.
func (r *Runner) invoke(ctx context.Context, binding *registry.Binding, stage *model.StageSpec, req *registry.Request) (err error) {
	opCtx := ctx
	if stage.Timeout > 0 {
		var cancel context.CancelFunc
		opCtx, cancel = context.WithTimeout(ctx, stage.Timeout)
		defer cancel()
	}

	if binding.Operation.Exclusive || stage.Exclusive {
		mu := r.locks[stage.Operation]
		mu.Lock()
		defer mu.Unlock()
	}

	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("operation %s panicked: %v", stage.Operation, p)
		}
	}()

	err = binding.Operation.Fn(opCtx, req)
	if err != nil && ctx.Err() == nil && errors.Is(opCtx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("timed out after %s: %w", stage.Timeout, err)
	}
	return err
}

// partialPath returns a hidden sibling of output that keeps its extension,
// since imaging tools pick the file format from it.
func partialPath(output string) string {
	return filepath.Join(filepath.Dir(output), ".partial-"+uuid.NewString()+"-"+filepath.Base(output))
}
