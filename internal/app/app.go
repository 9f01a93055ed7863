// Package app implements the application layer for crate.
package app

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"go.trai.ch/crate/internal/adapters/manifest" //nolint:depguard // Wired in app layer
	"go.trai.ch/crate/internal/adapters/paths"    //nolint:depguard // Wired in app layer
	"go.trai.ch/crate/internal/adapters/provider" //nolint:depguard // Wired in app layer
	"go.trai.ch/crate/internal/adapters/template" //nolint:depguard // Wired in app layer
	"go.trai.ch/crate/internal/core/ports"
	"go.trai.ch/crate/internal/engine/builder"
	"go.trai.ch/zerr"
)

// DefaultTemplate is the stack file read when no template flag is given.
const DefaultTemplate = "crate.yaml"

// Runner executes one orchestrated build. Implemented by builder.Builder.
type Runner interface {
	Run(ctx context.Context, targets ports.TargetProvider, store ports.GraphStore, template ports.TemplateWriter, opts builder.Options) (*builder.Result, error)
}

// RunOptions carries the CLI-level knobs for one build invocation.
type RunOptions struct {
	TemplatePath    string
	BuildDir        string
	CacheDir        string
	Cached          bool
	Parallel        bool
	Workers         int
	Sandboxed       bool
	SandboxImages   map[string]string
	DependencyLayer bool
	Resource        string
	Env             map[string]string

	// EnvFile names a JSON document with additional env overlays: the
	// "Parameters" table applies to every target, any other top-level key
	// to the target of that name.
	EnvFile string
}

// App represents the main application logic.
type App struct {
	runner Runner
	logger ports.Logger
}

// New creates a new App instance.
func New(runner Runner, logger ports.Logger) *App {
	return &App{
		runner: runner,
		logger: logger,
	}
}

// Run executes the build process for the application stack.
func (a *App) Run(ctx context.Context, opts RunOptions) error {
	templatePath := opts.TemplatePath
	if templatePath == "" {
		templatePath = DefaultTemplate
	}
	templatePath, err := filepath.Abs(templatePath)
	if err != nil {
		return zerr.Wrap(err, "failed to resolve template path")
	}

	buildDir := opts.BuildDir
	if buildDir == "" {
		buildDir = paths.DefaultBuildDir(filepath.Dir(templatePath))
	}
	cacheDir := opts.CacheDir
	if cacheDir == "" {
		cacheDir = paths.ArtifactCache()
	}

	targets, err := provider.Load(templatePath)
	if err != nil {
		return zerr.Wrap(err, "failed to load application template")
	}

	store := manifest.NewStore(paths.ManifestFile(buildDir))

	globalEnv, targetEnv, err := loadEnvFile(opts.EnvFile)
	if err != nil {
		return err
	}
	for k, v := range opts.Env {
		if globalEnv == nil {
			globalEnv = make(map[string]string)
		}
		globalEnv[k] = v
	}

	result, err := a.runner.Run(ctx, targets, store, template.NewWriter(), builder.Options{
		TemplatePath:    templatePath,
		BuildDir:        buildDir,
		CacheDir:        cacheDir,
		Cached:          opts.Cached,
		Parallel:        opts.Parallel,
		Workers:         opts.Workers,
		Sandboxed:       opts.Sandboxed,
		SandboxImages:   opts.SandboxImages,
		DependencyLayer: opts.DependencyLayer,
		Resource:        opts.Resource,
		GlobalEnv:       globalEnv,
		TargetEnv:       targetEnv,
	})
	if err != nil {
		return err
	}

	a.summarize(result)
	return nil
}

// envFileGlobalKey names the env-file table applied to every target.
const envFileGlobalKey = "Parameters"

// loadEnvFile reads the optional env overlay document.
func loadEnvFile(path string) (global map[string]string, perTarget map[string]map[string]string, err error) {
	if path == "" {
		return nil, nil, nil
	}

	raw, err := os.ReadFile(path) //nolint:gosec // path is a user-supplied flag
	if err != nil {
		return nil, nil, zerr.Wrap(err, "failed to read env file")
	}

	var doc map[string]map[string]string
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, nil, zerr.Wrap(err, "failed to parse env file")
	}

	global = doc[envFileGlobalKey]
	delete(doc, envFileGlobalKey)
	if len(doc) > 0 {
		perTarget = doc
	}
	return global, perTarget, nil
}

// summarize reports where the build landed.
func (a *App) summarize(result *builder.Result) {
	a.logger.Info(fmt.Sprintf("built %d artifacts", len(result.Artifacts)))
	for name, location := range result.Artifacts {
		a.logger.Info("  " + name + " -> " + location)
	}
	for _, layer := range result.GeneratedLayers {
		a.logger.Info("  " + layer.Name + " -> " + layer.ContentDir + " (dependency layer)")
	}
	if result.TemplatePath != "" {
		a.logger.Info("template written to " + result.TemplatePath)
	}
	if result.LayerStackPath != "" {
		a.logger.Info("layer stack written to " + result.LayerStackPath)
	}
}
