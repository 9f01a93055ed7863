// Package builder implements the top-level build orchestrator: it reads
// targets from the provider, assembles the fingerprint graph, selects a
// build strategy, executes it, and rewrites the deployable template to
// reference the produced artifacts.
package builder

import (
	"context"
	"errors"
	"os"
	"path/filepath"

	"go.trai.ch/crate/internal/core/domain"
	"go.trai.ch/crate/internal/core/ports"
	"go.trai.ch/crate/internal/engine/layers"
	"go.trai.ch/crate/internal/engine/strategy"
	"go.trai.ch/zerr"
)

// SandboxFactory creates a sandboxed build engine for one run. The returned
// cleanup releases the sandbox runtime connection and is called exactly once.
type SandboxFactory func(ctx context.Context, images map[string]string) (ports.BuildEngine, func() error, error)

// Options configures one build run.
type Options struct {
	// TemplatePath is the application template the targets were read from.
	TemplatePath string

	// BuildDir receives per-target artifact directories and the rewritten
	// template.
	BuildDir string

	// CacheDir holds cached definition artifacts across runs.
	CacheDir string

	// Cached enables artifact caching and incremental dependency fetching.
	Cached bool

	// Parallel builds unique definitions concurrently; Workers bounds the
	// concurrency when positive.
	Parallel bool
	Workers  int

	// Sandboxed runs every build engine invocation inside a container.
	Sandboxed bool

	// SandboxImages overrides the build image per language family.
	SandboxImages map[string]string

	// DependencyLayer materializes shared dependency layers after the build.
	DependencyLayer bool

	// Resource restricts the run to one named function or layer. Empty
	// means a full-application run.
	Resource string

	// GlobalEnv and TargetEnv overlay environment variables onto every
	// target and onto named targets respectively.
	GlobalEnv map[string]string
	TargetEnv map[string]map[string]string
}

// Result is the outcome of a successful run.
type Result struct {
	// Artifacts maps each built target name to its artifact location.
	Artifacts domain.ArtifactMap

	// Graph is the fingerprint graph of the run, for downstream consumers.
	Graph *domain.Graph

	// GeneratedLayers lists the materialized dependency layers, if any.
	GeneratedLayers []domain.GeneratedLayer

	// TemplatePath is the rewritten template inside the build directory.
	// LayerStackPath is the auxiliary layer stack, empty when no layer was
	// generated.
	TemplatePath   string
	LayerStackPath string
}

// Builder orchestrates one application build end to end.
type Builder struct {
	engine  ports.BuildEngine
	sandbox SandboxFactory
	copier  ports.ArtifactCopier
	hasher  ports.SourceHasher
	tracer  ports.Tracer
	logger  ports.Logger

	layers *layers.Materializer
}

// New creates a builder running engines on the host. The sandbox factory may
// be nil when sandboxed runs are never requested.
func New(engine ports.BuildEngine, sandbox SandboxFactory, copier ports.ArtifactCopier, hasher ports.SourceHasher, tracer ports.Tracer, logger ports.Logger) *Builder {
	return &Builder{
		engine:  engine,
		sandbox: sandbox,
		copier:  copier,
		hasher:  hasher,
		tracer:  tracer,
		logger:  logger,
		layers:  layers.NewMaterializer(copier, logger),
	}
}

// Run executes one build: graph assembly, strategy execution, optional layer
// materialization, and template rewriting.
func (b *Builder) Run(ctx context.Context, provider ports.TargetProvider, store ports.GraphStore, template ports.TemplateWriter, opts Options) (*Result, error) {
	functions, buildLayers, err := selectTargets(provider, opts.Resource)
	if err != nil {
		return nil, err
	}
	if err := validateTargets(functions, buildLayers); err != nil {
		return nil, err
	}

	g, err := b.assembleGraph(store, functions, buildLayers, opts)
	if err != nil {
		return nil, err
	}

	scratch := filepath.Join(opts.BuildDir, "scratch")
	if err := os.MkdirAll(scratch, 0o750); err != nil {
		return nil, zerr.Wrap(err, "failed to create build directories")
	}

	engine, cleanup, err := b.selectEngine(ctx, opts)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := cleanup(); cerr != nil {
			b.logger.Warn("sandbox cleanup failed: " + cerr.Error())
		}
	}()

	fullRun := opts.Resource == ""
	sel := strategy.NewSelect(engine, b.copier, b.hasher, store, b.tracer, b.logger,
		strategy.Config{
			BuildDir:             opts.BuildDir,
			CacheDir:             opts.CacheDir,
			ScratchDir:           scratch,
			SeparateDependencies: opts.DependencyLayer,
		},
		strategy.Options{
			CacheEnabled: opts.Cached,
			Parallel:     opts.Parallel,
			Workers:      opts.Workers,
			Sandboxed:    opts.Sandboxed,
			FullRun:      fullRun,
		})

	artifacts, err := sel.Build(ctx, g)
	if err != nil {
		return nil, errors.Join(domain.ErrEngineFailure, err)
	}

	result := &Result{Artifacts: artifacts, Graph: g}

	if opts.DependencyLayer {
		generated, err := b.layers.Materialize(g, artifacts, opts.BuildDir)
		if err != nil {
			return nil, err
		}
		result.GeneratedLayers = generated
	}

	if opts.Cached && fullRun {
		if err := store.Persist(g); err != nil {
			return nil, zerr.Wrap(err, "failed to persist build manifest")
		}
	}

	if err := b.writeTemplates(template, provider, result, opts); err != nil {
		return nil, err
	}
	return result, nil
}

// selectTargets gathers the run's buildable targets, narrowed to one
// resource when requested. Pre-packaged and skip-flagged targets are
// excluded here so they never enter the graph.
func selectTargets(provider ports.TargetProvider, resource string) ([]*domain.Function, []*domain.Layer, error) {
	if resource != "" {
		if f := provider.Function(resource); f != nil {
			return buildableFunctions([]*domain.Function{f}), nil, nil
		}
		if l := provider.Layer(resource); l != nil {
			return nil, buildableLayers([]*domain.Layer{l}), nil
		}
		return nil, nil, zerr.With(domain.ErrTargetNotFound, "resource", resource)
	}
	return buildableFunctions(provider.Functions()), buildableLayers(provider.Layers()), nil
}

func buildableFunctions(all []*domain.Function) []*domain.Function {
	out := make([]*domain.Function, 0, len(all))
	for _, f := range all {
		if !f.SkipBuild {
			out = append(out, f)
		}
	}
	return out
}

func buildableLayers(all []*domain.Layer) []*domain.Layer {
	out := make([]*domain.Layer, 0, len(all))
	for _, l := range all {
		if !l.SkipBuild {
			out = append(out, l)
		}
	}
	return out
}

// validateTargets rejects configurations that would only fail later inside
// an engine: unknown runtimes and image targets without Dockerfile metadata.
func validateTargets(functions []*domain.Function, buildLayers []*domain.Layer) error {
	for _, f := range functions {
		if !domain.SupportedRuntime(f.BuildMethod()) {
			err := zerr.With(domain.ErrUnsupportedRuntime, "function", f.Name)
			return zerr.With(err, "runtime", f.Runtime)
		}
		if f.PackageType == domain.PackageImage && f.Metadata[domain.MetadataDockerfile] == "" {
			return zerr.With(domain.ErrMissingImageMetadata, "function", f.Name)
		}
	}
	for _, l := range buildLayers {
		if m := l.BuildMethod(); m != "" && !domain.SupportedRuntime(m) {
			err := zerr.With(domain.ErrUnsupportedRuntime, "layer", l.Name)
			return zerr.With(err, "method", m)
		}
	}
	return nil
}

// assembleGraph restores persisted definitions when caching is on, then puts
// every target with its environment overlay applied and compacts away
// definitions no live target references.
func (b *Builder) assembleGraph(store ports.GraphStore, functions []*domain.Function, buildLayers []*domain.Layer, opts Options) (*domain.Graph, error) {
	g := domain.NewGraph()

	if opts.Cached {
		fns, lys, err := store.Load()
		if err != nil {
			return nil, zerr.Wrap(err, "failed to load build manifest")
		}
		g.Restore(fns, lys)
	}

	for _, f := range functions {
		fn := *f
		fn.Env = overlayEnv(f.Env, opts.GlobalEnv, opts.TargetEnv[f.Name])
		g.PutFunction(&fn)
	}
	for _, l := range buildLayers {
		ly := *l
		ly.Env = overlayEnv(l.Env, opts.GlobalEnv, opts.TargetEnv[l.Name])
		g.PutLayer(&ly)
	}

	g.Compact()
	return g, nil
}

// selectEngine returns the host engine, or a sandboxed one when requested.
func (b *Builder) selectEngine(ctx context.Context, opts Options) (ports.BuildEngine, func() error, error) {
	if !opts.Sandboxed {
		return b.engine, func() error { return nil }, nil
	}
	if b.sandbox == nil {
		return nil, nil, zerr.New("sandboxed build requested but no sandbox runtime is configured")
	}
	return b.sandbox(ctx, opts.SandboxImages)
}

// writeTemplates emits the rewritten application template and, when layers
// were generated, the auxiliary layer stack, both into the build directory.
func (b *Builder) writeTemplates(template ports.TemplateWriter, provider ports.TargetProvider, result *Result, opts Options) error {
	if opts.TemplatePath == "" {
		return nil
	}

	result.TemplatePath = filepath.Join(opts.BuildDir, filepath.Base(opts.TemplatePath))
	if err := template.Write(opts.TemplatePath, result.TemplatePath, result.Artifacts, provider); err != nil {
		return zerr.Wrap(err, "failed to write built template")
	}

	if len(result.GeneratedLayers) > 0 {
		result.LayerStackPath = filepath.Join(opts.BuildDir, "layers.yaml")
		if err := template.WriteLayerStack(result.LayerStackPath, result.GeneratedLayers); err != nil {
			return zerr.Wrap(err, "failed to write layer stack")
		}
	}
	return nil
}

// overlayEnv merges environment sources, most specific last.
func overlayEnv(base, global, target map[string]string) map[string]string {
	if len(global) == 0 && len(target) == 0 {
		return base
	}

	merged := make(map[string]string, len(base)+len(global)+len(target))
	for k, v := range global {
		merged[k] = v
	}
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range target {
		merged[k] = v
	}
	return merged
}
