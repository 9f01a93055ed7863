package strategy

import (
	"context"
	"sync"

	"go.trai.ch/crate/internal/core/domain"
	"golang.org/x/sync/errgroup"
)

// Parallel fans a sequential strategy's per-definition builds out across
// goroutines. Functions complete before any layer starts, preserving the
// sequential ordering contract. A failing definition does not cancel its
// siblings: every started build runs to completion, the first error is
// returned, and artifacts of successful definitions are retained.
type Parallel struct {
	inner   singleBuilder
	workers int
}

var _ Strategy = (*Parallel)(nil)

// NewParallel wraps a sequential strategy. workers <= 0 means unbounded.
func NewParallel(inner singleBuilder, workers int) *Parallel {
	return &Parallel{inner: inner, workers: workers}
}

// Build executes the graph with per-definition concurrency.
func (s *Parallel) Build(ctx context.Context, g *domain.Graph) (domain.ArtifactMap, error) {
	if err := validateLayers(g); err != nil {
		return nil, err
	}

	artifacts := make(domain.ArtifactMap)
	var mu sync.Mutex

	collect := func(built domain.ArtifactMap) {
		mu.Lock()
		defer mu.Unlock()
		artifacts.Merge(built)
	}

	// A plain errgroup.Group is deliberate: the context-cancelling variant
	// would abort siblings on the first failure, losing their artifacts.
	var fnGroup errgroup.Group
	if s.workers > 0 {
		fnGroup.SetLimit(s.workers)
	}
	for _, def := range g.FunctionDefinitions() {
		fnGroup.Go(func() error {
			built, err := s.inner.buildFunction(ctx, def)
			if err != nil {
				return err
			}
			collect(built)
			return nil
		})
	}
	if err := fnGroup.Wait(); err != nil {
		return artifacts, err
	}

	var layerGroup errgroup.Group
	if s.workers > 0 {
		layerGroup.SetLimit(s.workers)
	}
	for _, def := range g.LayerDefinitions() {
		layerGroup.Go(func() error {
			built, err := s.inner.buildLayer(ctx, def)
			if err != nil {
				return err
			}
			collect(built)
			return nil
		})
	}
	if err := layerGroup.Wait(); err != nil {
		return artifacts, err
	}

	return artifacts, nil
}
