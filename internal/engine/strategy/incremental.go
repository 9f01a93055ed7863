package strategy

import (
	"context"
	"os"
	"path/filepath"

	"go.trai.ch/crate/internal/core/domain"
	"go.trai.ch/crate/internal/core/ports"
)

// Incremental builds definitions with a persistent dependency directory:
// dependencies are re-fetched only when the manifest file changed, while
// application sources are always rebuilt. It applies to language families
// whose engines keep dependencies separable from sources.
type Incremental struct {
	executor
	hasher ports.SourceHasher

	// depsRoot holds per-definition dependency directories, keyed by token.
	depsRoot string
}

var _ Strategy = (*Incremental)(nil)
var _ singleBuilder = (*Incremental)(nil)

// NewIncremental creates the manifest-incremental strategy.
func NewIncremental(engine ports.BuildEngine, copier ports.ArtifactCopier, hasher ports.SourceHasher, tracer ports.Tracer, logger ports.Logger, cfg Config) *Incremental {
	return &Incremental{
		executor: executor{
			engine: engine,
			copier: copier,
			tracer: tracer,
			logger: logger,
			cfg:    cfg,
		},
		hasher:   hasher,
		depsRoot: filepath.Join(cfg.CacheDir, depsSubdir),
	}
}

// Build executes the graph incrementally.
func (s *Incremental) Build(ctx context.Context, g *domain.Graph) (domain.ArtifactMap, error) {
	s.tracer.EmitPlan(ctx, planLabels(g))
	return runAll(ctx, g, s)
}

func (s *Incremental) buildFunction(ctx context.Context, def *domain.FunctionDefinition) (domain.ArtifactMap, error) {
	req, err := s.functionRequest(def)
	if err != nil {
		return nil, err
	}

	manifestHash, download, depsDir, err := s.planDependencies(req.ManifestPath, def.Token(), def.ManifestHash)
	if err != nil {
		return nil, err
	}
	req.DependenciesDir = depsDir
	req.DownloadDependencies = download

	artifacts, err := s.runFunction(ctx, def, req)
	if err != nil {
		return nil, err
	}

	def.ManifestHash = manifestHash
	def.DependenciesDir = depsDir
	return artifacts, nil
}

func (s *Incremental) buildLayer(ctx context.Context, def *domain.LayerDefinition) (domain.ArtifactMap, error) {
	req, err := s.layerRequest(def)
	if err != nil {
		return nil, err
	}

	manifestHash, download, depsDir, err := s.planDependencies(req.ManifestPath, def.Token(), def.ManifestHash)
	if err != nil {
		return nil, err
	}
	req.DependenciesDir = depsDir
	req.DownloadDependencies = download

	artifacts, err := s.runLayer(ctx, def, req)
	if err != nil {
		return nil, err
	}

	def.ManifestHash = manifestHash
	def.DependenciesDir = depsDir
	return artifacts, nil
}

// planDependencies decides whether this build must re-fetch dependencies: a
// missing or changed manifest forces a download, as does a missing dependency
// directory regardless of the hash.
func (s *Incremental) planDependencies(manifestPath, token, recordedHash string) (hash string, download bool, depsDir string, err error) {
	depsDir = filepath.Join(s.depsRoot, token)

	hash, err = s.hasher.HashFile(manifestPath)
	if err != nil {
		return "", false, "", err
	}

	download = hash == "" || hash != recordedHash || !dirExists(depsDir)
	return hash, download, depsDir, nil
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
