package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/nsafar1/vbmgrid/internal/config"
	"github.com/nsafar1/vbmgrid/internal/ctxlog"
	"github.com/nsafar1/vbmgrid/internal/metrics"
	"github.com/nsafar1/vbmgrid/internal/model"
	"github.com/nsafar1/vbmgrid/internal/paths"
	"github.com/nsafar1/vbmgrid/internal/registry"
	"github.com/nsafar1/vbmgrid/internal/toolexec"
)

// App encapsulates the application's dependencies, configuration, and lifecycle.
type App struct {
	outW      io.Writer
	logger    *slog.Logger
	logCloser io.Closer

	appConfig *Config
	config    *config.Model
	converter config.Converter
	registry  *registry.Registry
	bindings  map[string]*registry.Binding
	resolver  *paths.Resolver
	metrics   *metrics.Metrics
	tools     toolexec.Runner

	httpServer *http.Server
}

// NewApp is the constructor for the main application. It loads and
// validates the pipeline file and binds every stage to its operation. Any
// problem found here is a fatal startup error.
func NewApp(outW io.Writer, appConfig *Config, loader config.Loader, modules ...registry.Module) (*App, error) {
	logger, logCloser, err := newLogger(appConfig.LogLevel, appConfig.LogFormat, appConfig.LogFile, outW)
	if err != nil {
		return nil, err
	}
	ctx := ctxlog.WithLogger(context.Background(), logger)
	logger.Debug("Logger configured successfully.")

	a, err := build(ctx, appConfig, loader, modules)
	if err != nil {
		logCloser.Close()
		return nil, err
	}
	a.outW = outW
	a.logger = logger
	a.logCloser = logCloser
	return a, nil
}

func build(ctx context.Context, appConfig *Config, loader config.Loader, modules []registry.Module) (*App, error) {
	logger := ctxlog.FromContext(ctx)

	cfgModel, converter, err := loader.Load(ctx, appConfig.PipelinePath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	logger.Debug("Configuration loaded and translated into unified model.", "stages", cfgModel.StageNames())

	reg := registry.New()
	if len(modules) == 0 {
		modules = coreModules
	}
	for _, mod := range modules {
		mod.Register(reg)
	}
	logger.Debug("All Go modules registered.", "count", len(modules), "operations", reg.Names())

	bindings, err := reg.Bind(ctx, cfgModel.Stages, converter)
	if err != nil {
		return nil, err
	}
	logger.Debug("Registry validation passed.")

	var matrixSpec *model.InputSpec
	if cfgModel.Aggregate != nil {
		matrixSpec = cfgModel.Aggregate.Matrix
	}
	resolver, err := paths.New(cfgModel.Pipeline.OutputDir, cfgModel.Stages, matrixSpec)
	if err != nil {
		return nil, err
	}

	return &App{
		appConfig: appConfig,
		config:    cfgModel,
		converter: converter,
		registry:  reg,
		bindings:  bindings,
		resolver:  resolver,
		metrics:   metrics.New(),
		tools:     toolexec.New(),
	}, nil
}

// Registry returns the application's registry. This is primarily for testing.
func (a *App) Registry() *registry.Registry {
	return a.registry
}

// Metrics returns the application's metrics.
func (a *App) Metrics() *metrics.Metrics {
	return a.metrics
}

// Close releases the resources held by the app.
func (a *App) Close() error {
	return errors.Join(a.closeHealthCheckServer(), a.logCloser.Close())
}

// workers returns the effective worker count: the CLI value, then the
// pipeline file's, then one.
func (a *App) workers() int {
	if a.appConfig.Workers > 0 {
		return a.appConfig.Workers
	}
	if a.config.Pipeline.Workers > 0 {
		return a.config.Pipeline.Workers
	}
	return 1
}
