// Package app implements the application layer for kiln.
package app

import (
	"context"
	"errors"
	"io"

	"go.trai.ch/kiln/internal/core/domain"
	"go.trai.ch/kiln/internal/core/ports"
	"go.trai.ch/kiln/internal/engine/pipeline"
	"go.trai.ch/kiln/internal/engine/resolver"
	"golang.org/x/sync/errgroup"
)

// App represents the main application logic.
type App struct {
	configLoader ports.ConfigLoader
	pipeline     *pipeline.Pipeline
	images       ports.ImageStore
	launcher     ports.Launcher
	renderer     ports.Renderer
	logger       ports.Logger
}

// New creates a new App instance.
func New(
	loader ports.ConfigLoader,
	p *pipeline.Pipeline,
	images ports.ImageStore,
	launcher ports.Launcher,
	renderer ports.Renderer,
	log ports.Logger,
) *App {
	return &App{
		configLoader: loader,
		pipeline:     p,
		images:       images,
		launcher:     launcher,
		renderer:     renderer,
		logger:       log,
	}
}

// BuildOptions configuration for the Build method. Empty fields keep the configured value.
type BuildOptions struct {
	ConfigPath string
	AppVersion string
	Output     string
	Base       string
}

// ResolveOptions configuration for the Resolve method.
type ResolveOptions struct {
	ConfigPath string
	// Output is the file the requirement list is written to. Empty skips writing.
	Output string
}

// LaunchOptions configuration for the Launch method.
type LaunchOptions struct {
	Layout  string
	WorkDir string
	TTY     bool
}

func (a *App) loadConfig(path string) (*domain.BuildConfig, error) {
	if path == "" {
		path = domain.ConfigFileName
	}
	return a.configLoader.Load(path)
}

// Build loads the configuration, applies the overrides and runs the build pipeline.
// A failed build is reported through the logger and returned wrapped in domain.ErrBuildFailed.
func (a *App) Build(ctx context.Context, opts BuildOptions) (*domain.BuildResult, error) {
	cfg, err := a.loadConfig(opts.ConfigPath)
	if err != nil {
		return nil, err
	}
	if opts.AppVersion != "" {
		cfg.AppVersion = opts.AppVersion
	}
	if opts.Output != "" {
		cfg.Image.Output = opts.Output
	}
	if opts.Base != "" {
		cfg.Image.Base = opts.Base
	}

	var result *domain.BuildResult
	err = a.withRenderer(ctx, func(ctx context.Context) error {
		var runErr error
		result, runErr = a.pipeline.Run(ctx, cfg)
		return runErr
	})
	if err != nil {
		if errors.Is(err, domain.ErrBuildFailed) {
			a.logger.Error(err)
		}
		return nil, err
	}
	return result, nil
}

// Resolve projects the lockfile into the requirement list and optionally writes it to a file.
func (a *App) Resolve(ctx context.Context, opts ResolveOptions) (*domain.RequirementList, error) {
	cfg, err := a.loadConfig(opts.ConfigPath)
	if err != nil {
		return nil, err
	}

	var list *domain.RequirementList
	err = a.withRenderer(ctx, func(ctx context.Context) error {
		var runErr error
		list, runErr = a.pipeline.Resolve(ctx, cfg)
		return runErr
	})
	if err != nil {
		if errors.Is(err, domain.ErrBuildFailed) {
			a.logger.Error(err)
		}
		return nil, err
	}

	if opts.Output != "" {
		if err := resolver.WriteRequirements(opts.Output, list); err != nil {
			return nil, err
		}
	}
	return list, nil
}

// Launch runs the process encoded in a built image layout on the host.
func (a *App) Launch(ctx context.Context, opts LaunchOptions, stdout, stderr io.Writer) error {
	spec, err := a.images.ReadLaunchSpec(opts.Layout)
	if err != nil {
		return err
	}
	return a.launcher.Launch(ctx, spec, domain.LaunchOptions{WorkingDir: opts.WorkDir, TTY: opts.TTY}, stdout, stderr)
}

// withRenderer runs fn while the renderer is active and stops the renderer once fn returns.
func (a *App) withRenderer(ctx context.Context, fn func(context.Context) error) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := a.renderer.Start(ctx); err != nil {
			return err
		}
		return a.renderer.Wait()
	})

	g.Go(func() error {
		defer func() { _ = a.renderer.Stop() }()
		return fn(ctx)
	})

	return g.Wait()
}
