package strategy

import (
	"context"
	"path/filepath"
	"strings"

	"go.trai.ch/crate/internal/core/domain"
	"go.trai.ch/crate/internal/core/ports"
)

// executor holds the collaborators shared by the sequential strategies and
// implements the span-wrapped engine invocation plus sibling fan-out.
type executor struct {
	engine ports.BuildEngine
	copier ports.ArtifactCopier
	tracer ports.Tracer
	logger ports.Logger
	cfg    Config
}

// Default builds every definition unconditionally: one engine invocation per
// definition, artifacts fanned out to all member targets.
type Default struct {
	executor
}

var _ Strategy = (*Default)(nil)
var _ singleBuilder = (*Default)(nil)

// NewDefault creates the unconditional build strategy.
func NewDefault(engine ports.BuildEngine, copier ports.ArtifactCopier, tracer ports.Tracer, logger ports.Logger, cfg Config) *Default {
	return &Default{executor{
		engine: engine,
		copier: copier,
		tracer: tracer,
		logger: logger,
		cfg:    cfg,
	}}
}

// Build executes every definition in the graph.
func (s *Default) Build(ctx context.Context, g *domain.Graph) (domain.ArtifactMap, error) {
	s.tracer.EmitPlan(ctx, planLabels(g))
	return runAll(ctx, g, s)
}

func (s *Default) buildFunction(ctx context.Context, def *domain.FunctionDefinition) (domain.ArtifactMap, error) {
	req, err := s.functionRequest(def)
	if err != nil {
		return nil, err
	}
	return s.runFunction(ctx, def, req)
}

func (s *Default) buildLayer(ctx context.Context, def *domain.LayerDefinition) (domain.ArtifactMap, error) {
	req, err := s.layerRequest(def)
	if err != nil {
		return nil, err
	}
	return s.runLayer(ctx, def, req)
}

// runFunction performs the single physical build for a function definition
// and distributes the result to every member target.
func (e *executor) runFunction(ctx context.Context, def *domain.FunctionDefinition, req *ports.BuildRequest) (domain.ArtifactMap, error) {
	rep, err := def.Representative()
	if err != nil {
		return nil, err
	}

	ctx, span := e.tracer.Start(ctx, rep.Name)
	req.Output = span
	location, err := e.engine.Build(ctx, req)
	span.End(err)
	if err != nil {
		return nil, err
	}
	if req.DependenciesDir != "" {
		def.DependenciesDir = req.DependenciesDir
	}

	artifacts := domain.ArtifactMap{rep.Name: location}
	for _, fn := range def.Functions[1:] {
		loc, err := e.fanOut(fn.Name, location, def.PackageType())
		if err != nil {
			return nil, err
		}
		artifacts[fn.Name] = loc
	}

	e.logger.Info("built " + rep.Name)
	return artifacts, nil
}

// runLayer performs the single physical build for a layer definition.
func (e *executor) runLayer(ctx context.Context, def *domain.LayerDefinition, req *ports.BuildRequest) (domain.ArtifactMap, error) {
	rep, err := def.Representative()
	if err != nil {
		return nil, err
	}

	ctx, span := e.tracer.Start(ctx, rep.Name)
	req.Output = span
	location, err := e.engine.Build(ctx, req)
	span.End(err)
	if err != nil {
		return nil, err
	}

	artifacts := domain.ArtifactMap{rep.Name: location}
	for _, l := range def.Layers[1:] {
		loc, err := e.fanOut(l.Name, location, def.PackageType())
		if err != nil {
			return nil, err
		}
		artifacts[l.Name] = loc
	}

	e.logger.Info("built " + rep.Name)
	return artifacts, nil
}

// fanOut gives a sibling target its own copy of the built artifact. Image
// references are shared as-is; archive trees are copied so each target owns
// an independent directory.
func (e *executor) fanOut(name, location string, pt domain.PackageType) (string, error) {
	if pt == domain.PackageImage {
		return location, nil
	}
	dst := filepath.Join(e.cfg.BuildDir, name)
	if err := e.copier.ReplaceDir(location, dst); err != nil {
		return "", err
	}
	return dst, nil
}

// functionRequest assembles the engine request for a function definition.
func (e *executor) functionRequest(def *domain.FunctionDefinition) (*ports.BuildRequest, error) {
	rep, err := def.Representative()
	if err != nil {
		return nil, err
	}

	req := &ports.BuildRequest{
		SourceDir:            def.CodeDir(),
		ArtifactsDir:         filepath.Join(e.cfg.BuildDir, rep.Name),
		ScratchDir:           e.cfg.ScratchDir,
		ManifestPath:         manifestPath(def.CodeDir(), def.Method()),
		Runtime:              rep.Runtime,
		Method:               def.Method(),
		Handler:              rep.Handler,
		Architecture:         def.Architecture(),
		PackageType:          def.PackageType(),
		Options:              buildOptions(def.Metadata(), def.PackageType(), rep.Name),
		Env:                  def.Env(),
		DownloadDependencies: true,
		CombineDependencies:  !e.cfg.SeparateDependencies,
	}

	// With separated dependencies every route must hand the engine a
	// dependency directory, or the packages land nowhere at all. The
	// incremental strategy later reuses the same per-token location.
	if e.cfg.SeparateDependencies && req.ManifestPath != "" && req.PackageType != domain.PackageImage {
		req.DependenciesDir = filepath.Join(e.cfg.CacheDir, depsSubdir, def.Token())
	}
	return req, nil
}

// layerRequest assembles the engine request for a layer definition.
func (e *executor) layerRequest(def *domain.LayerDefinition) (*ports.BuildRequest, error) {
	rep, err := def.Representative()
	if err != nil {
		return nil, err
	}

	req := &ports.BuildRequest{
		SourceDir:            def.CodeDir(),
		ArtifactsDir:         filepath.Join(e.cfg.BuildDir, rep.Name),
		ScratchDir:           e.cfg.ScratchDir,
		ManifestPath:         manifestPath(def.CodeDir(), def.Method()),
		Runtime:              def.Method(),
		Method:               def.Method(),
		Architecture:         def.Architecture(),
		PackageType:          def.PackageType(),
		Options:              buildOptions(def.Metadata(), def.PackageType(), rep.Name),
		Env:                  def.Env(),
		DownloadDependencies: true,
		CombineDependencies:  true,
		IsLayer:              true,
	}
	return req, nil
}

// manifestPath locates the dependency manifest next to the sources, or ""
// when the method's family has none.
func manifestPath(codeDir, method string) string {
	name := domain.ManifestName(method)
	if name == "" {
		return ""
	}
	return filepath.Join(codeDir, name)
}

// buildOptions merges metadata into the engine options, adding the image tag
// for image-package builds.
func buildOptions(metadata map[string]string, pt domain.PackageType, name string) map[string]string {
	if pt != domain.PackageImage && len(metadata) == 0 {
		return nil
	}

	options := make(map[string]string, len(metadata)+1)
	for k, v := range metadata {
		options[k] = v
	}
	if pt == domain.PackageImage {
		options[ports.OptionImageTag] = "crate-" + strings.ToLower(name) + ":latest"
	}
	return options
}
