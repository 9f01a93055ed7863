// Package layers materializes shared dependency layers from the dependency
// directories produced by incremental builds, so functions deploy without
// re-bundling their third-party packages.
package layers

import (
	"os"
	"path/filepath"

	"go.trai.ch/crate/internal/core/domain"
	"go.trai.ch/crate/internal/core/ports"
	"go.trai.ch/zerr"
)

// Materializer turns per-definition dependency directories into layer
// artifact trees laid out the way the platform expects.
type Materializer struct {
	copier ports.ArtifactCopier
	logger ports.Logger
}

// NewMaterializer creates a dependency layer materializer.
func NewMaterializer(copier ports.ArtifactCopier, logger ports.Logger) *Materializer {
	return &Materializer{copier: copier, logger: logger}
}

// Materialize produces one generated layer per function definition that
// qualifies: its artifacts were built this run, its dependencies landed in a
// separate directory, and its runtime family defines a layer layout. A
// function without a runtime cannot be qualified at all and aborts the run.
func (m *Materializer) Materialize(g *domain.Graph, artifacts domain.ArtifactMap, buildDir string) ([]domain.GeneratedLayer, error) {
	var generated []domain.GeneratedLayer

	for _, def := range g.FunctionDefinitions() {
		rep, err := def.Representative()
		if err != nil {
			return nil, err
		}

		if rep.Runtime == "" {
			return nil, zerr.With(domain.ErrMissingRuntime, "function", rep.Name)
		}

		layout, ok := domain.LayerLayout(rep.Runtime)
		if !ok {
			m.logger.Warn("no dependency layer support for " + rep.Runtime + ", skipping " + rep.Name)
			continue
		}

		// No recorded directory, or one the engine never populated because
		// the target has no dependency manifest: nothing to lift into a
		// layer.
		if def.DependenciesDir == "" || !dirExists(def.DependenciesDir) {
			continue
		}
		if !allBuilt(def, artifacts) {
			continue
		}

		layerName := rep.Name + "-deps"
		layerDir := filepath.Join(buildDir, layerName)

		// The dependency directory stays in place so the next incremental
		// run can reuse it; the layer gets its own copy under the platform
		// layout.
		if err := m.copier.ReplaceDir(def.DependenciesDir, filepath.Join(layerDir, layout)); err != nil {
			return nil, err
		}

		names := make([]string, 0, len(def.Functions))
		for _, fn := range def.Functions {
			names = append(names, fn.Name)
		}

		generated = append(generated, domain.GeneratedLayer{
			Name:               layerName,
			ContentDir:         layerDir,
			CompatibleRuntimes: []string{rep.Runtime},
			Functions:          names,
		})
		m.logger.Info("materialized dependency layer " + layerName)
	}

	return generated, nil
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func allBuilt(def *domain.FunctionDefinition, artifacts domain.ArtifactMap) bool {
	for _, fn := range def.Functions {
		if _, ok := artifacts[fn.Name]; !ok {
			return false
		}
	}
	return true
}
