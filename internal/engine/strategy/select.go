package strategy

import (
	"context"

	"go.trai.ch/crate/internal/core/domain"
	"go.trai.ch/crate/internal/core/ports"
)

// Options selects the strategy composition for one run.
type Options struct {
	// CacheEnabled turns on artifact caching and incremental dependency
	// fetching.
	CacheEnabled bool

	// Parallel fans builds out across goroutines.
	Parallel bool

	// Workers bounds parallel builds; <= 0 means unbounded.
	Workers int

	// Sandboxed marks runs whose engine executes inside containers. The
	// incremental dependency directory lives on the host and cannot be
	// shared into the sandbox, so such runs fall back to plain caching.
	Sandboxed bool

	// FullRun marks whole-application runs, the only ones allowed to prune
	// cache entries; a single-target run sees a partial graph and would
	// evict every other definition.
	FullRun bool
}

// Select routes each definition to the strategy its build method supports
// and performs the run's teardown: recording fresh hashes and pruning stale
// cache entries.
type Select struct {
	standard    *Default
	cached      *Cached
	incremental *Incremental
	store       ports.GraphStore
	tracer      ports.Tracer
	logger      ports.Logger
	opts        Options
}

var _ Strategy = (*Select)(nil)
var _ singleBuilder = (*Select)(nil)

// NewSelect composes the full strategy stack for one run.
func NewSelect(engine ports.BuildEngine, copier ports.ArtifactCopier, hasher ports.SourceHasher, store ports.GraphStore, tracer ports.Tracer, logger ports.Logger, cfg Config, opts Options) *Select {
	standard := NewDefault(engine, copier, tracer, logger, cfg)
	return &Select{
		standard:    standard,
		cached:      NewCached(standard, hasher, copier, tracer, logger, cfg),
		incremental: NewIncremental(engine, copier, hasher, tracer, logger, cfg),
		store:       store,
		tracer:      tracer,
		logger:      logger,
		opts:        opts,
	}
}

// Build executes the graph and records the run's hashes on success.
func (s *Select) Build(ctx context.Context, g *domain.Graph) (domain.ArtifactMap, error) {
	s.tracer.EmitPlan(ctx, planLabels(g))

	var artifacts domain.ArtifactMap
	var err error
	if s.opts.Parallel {
		artifacts, err = NewParallel(s, s.opts.Workers).Build(ctx, g)
	} else {
		artifacts, err = runAll(ctx, g, s)
	}
	if err != nil {
		return artifacts, err
	}

	if s.opts.CacheEnabled {
		if err := s.recordHashes(g); err != nil {
			return artifacts, err
		}
		if s.opts.FullRun {
			if err := s.cached.Prune(g.Tokens()); err != nil {
				return artifacts, err
			}
		}
	}

	return artifacts, nil
}

func (s *Select) buildFunction(ctx context.Context, def *domain.FunctionDefinition) (domain.ArtifactMap, error) {
	return s.route(def.Method()).buildFunction(ctx, def)
}

func (s *Select) buildLayer(ctx context.Context, def *domain.LayerDefinition) (domain.ArtifactMap, error) {
	return s.route(def.Method()).buildLayer(ctx, def)
}

// route picks the strategy for one build method. User-supplied build
// commands are always built fresh: their side effects are invisible to the
// source hash.
func (s *Select) route(method string) singleBuilder {
	if !s.opts.CacheEnabled {
		return s.standard
	}
	if domain.MethodCapabilityOf(method) == domain.CapabilityCustom {
		return s.standard
	}
	if domain.IncrementalCapable(method) && !s.opts.Sandboxed {
		return s.incremental
	}
	return s.cached
}

// recordHashes persists the hashes the strategies updated on the graph's
// definitions during this run.
func (s *Select) recordHashes(g *domain.Graph) error {
	sourceHashes := make(map[string]string)
	manifestHashes := make(map[string]string)

	for _, def := range g.FunctionDefinitions() {
		if def.SourceHash != "" {
			sourceHashes[def.Token()] = def.SourceHash
		}
		if def.ManifestHash != "" {
			manifestHashes[def.Token()] = def.ManifestHash
		}
	}
	for _, def := range g.LayerDefinitions() {
		if def.SourceHash != "" {
			sourceHashes[def.Token()] = def.SourceHash
		}
		if def.ManifestHash != "" {
			manifestHashes[def.Token()] = def.ManifestHash
		}
	}

	if len(sourceHashes) == 0 && len(manifestHashes) == 0 {
		return nil
	}
	return s.store.UpdateHashes(g, sourceHashes, manifestHashes)
}
