// Package strategy implements the build execution strategies: the plain
// per-definition build, the content-hash cache, the manifest-incremental
// variant, the parallel wrapper, and the router composing them.
package strategy

import (
	"context"

	"go.trai.ch/crate/internal/core/domain"
	"go.trai.ch/zerr"
)

// Strategy executes all builds of a fingerprint graph and returns the
// per-target artifact locations.
type Strategy interface {
	Build(ctx context.Context, g *domain.Graph) (domain.ArtifactMap, error)
}

// Config carries the workspace directories every strategy needs.
type Config struct {
	// BuildDir receives the per-target artifact directories.
	BuildDir string

	// CacheDir holds per-definition cached artifacts, keyed by identity
	// token.
	CacheDir string

	// ScratchDir is the engines' temporary workspace.
	ScratchDir string

	// SeparateDependencies keeps resolved dependencies out of function
	// artifact trees, so a shared dependency layer can carry them instead.
	SeparateDependencies bool
}

// singleBuilder is the unit every sequential strategy implements: building
// one definition. The parallel wrapper fans these out; the router composes
// them.
type singleBuilder interface {
	buildFunction(ctx context.Context, def *domain.FunctionDefinition) (domain.ArtifactMap, error)
	buildLayer(ctx context.Context, def *domain.LayerDefinition) (domain.ArtifactMap, error)
}

// runAll drives a singleBuilder across the whole graph: functions first, then
// layers. Layer definitions without a build method abort the run before any
// layer is built.
func runAll(ctx context.Context, g *domain.Graph, b singleBuilder) (domain.ArtifactMap, error) {
	if err := validateLayers(g); err != nil {
		return nil, err
	}

	artifacts := make(domain.ArtifactMap)

	for _, def := range g.FunctionDefinitions() {
		built, err := b.buildFunction(ctx, def)
		if err != nil {
			return nil, err
		}
		artifacts.Merge(built)
	}

	for _, def := range g.LayerDefinitions() {
		built, err := b.buildLayer(ctx, def)
		if err != nil {
			return nil, err
		}
		artifacts.Merge(built)
	}

	return artifacts, nil
}

// validateLayers rejects layer definitions that never resolved a build
// method. Functions fall back to their runtime; layers have nothing to fall
// back to.
func validateLayers(g *domain.Graph) error {
	for _, def := range g.LayerDefinitions() {
		if def.Method() != "" {
			continue
		}
		rep, err := def.Representative()
		if err != nil {
			return err
		}
		return zerr.With(domain.ErrMissingBuildMethod, "layer", rep.Name)
	}
	return nil
}

// definitionLabel names a definition for spans and logs: the first member
// target's name.
func definitionLabel(def interface{ Token() string }) string {
	switch d := def.(type) {
	case *domain.FunctionDefinition:
		if rep, err := d.Representative(); err == nil {
			return rep.Name
		}
	case *domain.LayerDefinition:
		if rep, err := d.Representative(); err == nil {
			return rep.Name
		}
	}
	return def.Token()
}

// planLabels lists the labels of every definition in graph order, for the
// tracer's plan emission.
func planLabels(g *domain.Graph) []string {
	labels := make([]string, 0, len(g.FunctionDefinitions())+len(g.LayerDefinitions()))
	for _, def := range g.FunctionDefinitions() {
		labels = append(labels, definitionLabel(def))
	}
	for _, def := range g.LayerDefinitions() {
		labels = append(labels, definitionLabel(def))
	}
	return labels
}
