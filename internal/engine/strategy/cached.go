package strategy

import (
	"context"
	"os"
	"path/filepath"

	"go.trai.ch/crate/internal/core/domain"
	"go.trai.ch/crate/internal/core/ports"
	"go.trai.ch/zerr"
)

// completeMarkerSuffix marks a cache entry whose artifact copy finished. An
// entry without its marker was interrupted mid-copy and is treated as a miss.
const completeMarkerSuffix = ".complete"

// depsSubdir is the cache subdirectory holding per-definition dependency
// directories. It is managed by the incremental strategy and exempt from
// artifact pruning.
const depsSubdir = "deps"

// Cached wraps a build strategy with a content-hash artifact cache keyed by
// definition identity token. A definition whose source tree hashes to the
// recorded value is restored from cache instead of rebuilt.
type Cached struct {
	delegate singleBuilder
	hasher   ports.SourceHasher
	copier   ports.ArtifactCopier
	tracer   ports.Tracer
	logger   ports.Logger
	cfg      Config
}

var _ Strategy = (*Cached)(nil)
var _ singleBuilder = (*Cached)(nil)

// NewCached creates the caching strategy around a delegate.
func NewCached(delegate singleBuilder, hasher ports.SourceHasher, copier ports.ArtifactCopier, tracer ports.Tracer, logger ports.Logger, cfg Config) *Cached {
	return &Cached{
		delegate: delegate,
		hasher:   hasher,
		copier:   copier,
		tracer:   tracer,
		logger:   logger,
		cfg:      cfg,
	}
}

// Build executes the graph with cache lookups.
func (s *Cached) Build(ctx context.Context, g *domain.Graph) (domain.ArtifactMap, error) {
	s.tracer.EmitPlan(ctx, planLabels(g))
	return runAll(ctx, g, s)
}

func (s *Cached) buildFunction(ctx context.Context, def *domain.FunctionDefinition) (domain.ArtifactMap, error) {
	// Image builds produce no artifact directory to cache; the container
	// engine keeps its own layer cache.
	if def.PackageType() == domain.PackageImage {
		return s.delegate.buildFunction(ctx, def)
	}

	names := make([]string, 0, len(def.Functions))
	for _, fn := range def.Functions {
		names = append(names, fn.Name)
	}

	depsDir := ""
	if s.cfg.SeparateDependencies {
		depsDir = filepath.Join(s.cfg.CacheDir, depsSubdir, def.Token())
	}

	artifacts, err := s.buildOrRestore(ctx, def.Token(), def.CodeDir(), names, depsDir, &def.SourceHash, func() (domain.ArtifactMap, error) {
		return s.delegate.buildFunction(ctx, def)
	})
	if err != nil {
		return nil, err
	}
	if depsDir != "" && dirExists(depsDir) {
		def.DependenciesDir = depsDir
	}
	return artifacts, nil
}

func (s *Cached) buildLayer(ctx context.Context, def *domain.LayerDefinition) (domain.ArtifactMap, error) {
	if def.PackageType() == domain.PackageImage {
		return s.delegate.buildLayer(ctx, def)
	}

	names := make([]string, 0, len(def.Layers))
	for _, l := range def.Layers {
		names = append(names, l.Name)
	}

	// Layers always combine their dependencies into the artifact tree, so
	// no separate dependency directory takes part in cache validity.
	return s.buildOrRestore(ctx, def.Token(), def.CodeDir(), names, "", &def.SourceHash, func() (domain.ArtifactMap, error) {
		return s.delegate.buildLayer(ctx, def)
	})
}

// buildOrRestore is the cache core: hash the source tree, restore on a hit,
// delegate and refresh the cache on a miss. The recorded hash is updated in
// place so the run's teardown can persist it. When depsDir is non-empty the
// separated dependency directory is part of the snapshot: a missing one
// invalidates the entry even with a matching hash.
func (s *Cached) buildOrRestore(ctx context.Context, token, codeDir string, names []string, depsDir string, recordedHash *string, build func() (domain.ArtifactMap, error)) (domain.ArtifactMap, error) {
	hash, err := s.hasher.HashDir(codeDir)
	if err != nil {
		return nil, err
	}

	cacheDir := filepath.Join(s.cfg.CacheDir, token)

	if hash != "" && hash == *recordedHash && s.cacheComplete(cacheDir) && (depsDir == "" || dirExists(depsDir)) {
		artifacts, err := s.restore(ctx, cacheDir, names)
		if err == nil {
			return artifacts, nil
		}
		// A corrupt cache entry falls through to a rebuild.
		s.logger.Warn("cache restore failed, rebuilding " + names[0])
	}

	artifacts, err := build()
	if err != nil {
		return nil, err
	}

	if err := s.refresh(cacheDir, filepath.Join(s.cfg.BuildDir, names[0])); err != nil {
		return nil, err
	}
	*recordedHash = hash

	return artifacts, nil
}

// restore copies the cached artifact tree to every member target, marking the
// span as a cache hit.
func (s *Cached) restore(ctx context.Context, cacheDir string, names []string) (domain.ArtifactMap, error) {
	_, span := s.tracer.Start(ctx, names[0])
	span.Cached()

	artifacts := make(domain.ArtifactMap, len(names))
	for _, name := range names {
		dst := filepath.Join(s.cfg.BuildDir, name)
		if err := s.copier.ReplaceDir(cacheDir, dst); err != nil {
			span.End(err)
			return nil, err
		}
		artifacts[name] = dst
	}

	span.End(nil)
	s.logger.Info("cache hit for " + names[0])
	return artifacts, nil
}

// refresh replaces the cache entry with the freshly built artifact tree and
// writes the completion marker last.
func (s *Cached) refresh(cacheDir, builtDir string) error {
	if err := os.Remove(cacheDir + completeMarkerSuffix); err != nil && !os.IsNotExist(err) {
		return zerr.Wrap(err, "failed to invalidate cache marker")
	}
	if err := s.copier.ReplaceDir(builtDir, cacheDir); err != nil {
		return err
	}
	if err := os.WriteFile(cacheDir+completeMarkerSuffix, nil, 0o644); err != nil {
		return zerr.Wrap(err, "failed to write cache marker")
	}
	return nil
}

// cacheComplete reports whether a cache entry exists and finished its copy.
func (s *Cached) cacheComplete(cacheDir string) bool {
	if _, err := os.Stat(cacheDir); err != nil {
		return false
	}
	_, err := os.Stat(cacheDir + completeMarkerSuffix)
	return err == nil
}

// Prune removes cache entries no definition in the graph claims.
func (s *Cached) Prune(liveTokens map[string]bool) error {
	entries, err := os.ReadDir(s.cfg.CacheDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return zerr.Wrap(err, "failed to read cache directory")
	}

	for _, entry := range entries {
		name := entry.Name()
		if name == depsSubdir {
			continue
		}
		token := name
		if !entry.IsDir() {
			if filepath.Ext(name) != completeMarkerSuffix {
				continue
			}
			token = name[:len(name)-len(completeMarkerSuffix)]
		}
		if liveTokens[token] {
			continue
		}
		if err := os.RemoveAll(filepath.Join(s.cfg.CacheDir, name)); err != nil {
			return zerr.Wrap(err, "failed to prune cache entry")
		}
		s.logger.Info("pruned stale cache entry " + token)
	}

	return s.pruneDeps(liveTokens)
}

// pruneDeps removes dependency directories of definitions that left the
// graph.
func (s *Cached) pruneDeps(liveTokens map[string]bool) error {
	depsRoot := filepath.Join(s.cfg.CacheDir, depsSubdir)
	entries, err := os.ReadDir(depsRoot)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return zerr.Wrap(err, "failed to read dependency cache directory")
	}

	for _, entry := range entries {
		if liveTokens[entry.Name()] {
			continue
		}
		if err := os.RemoveAll(filepath.Join(depsRoot, entry.Name())); err != nil {
			return zerr.Wrap(err, "failed to prune dependency cache entry")
		}
	}

	return nil
}
