package strategy_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/crate/internal/adapters/fs"
	"go.trai.ch/crate/internal/adapters/telemetry"
	"go.trai.ch/crate/internal/core/domain"
	"go.trai.ch/crate/internal/core/ports"
	"go.trai.ch/crate/internal/core/ports/mocks"
	"go.trai.ch/crate/internal/engine/strategy"
	"go.uber.org/mock/gomock"
)

type noopLogger struct{}

func (noopLogger) Info(string) {}
func (noopLogger) Warn(string) {}
func (noopLogger) Error(error) {}

// buildToDir stands in for the external engine: it materializes a marker file
// in the artifacts dir and returns it.
func buildToDir(_ context.Context, req *ports.BuildRequest) (string, error) {
	if err := os.MkdirAll(req.ArtifactsDir, 0o750); err != nil {
		return "", err
	}
	if err := os.WriteFile(filepath.Join(req.ArtifactsDir, "artifact.bin"), []byte("built"), 0o644); err != nil {
		return "", err
	}
	return req.ArtifactsDir, nil
}

func writeSource(t *testing.T, dir string, files map[string]string) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o750))
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}
	return dir
}

func testConfig(t *testing.T) strategy.Config {
	t.Helper()
	root := t.TempDir()
	return strategy.Config{
		BuildDir:   filepath.Join(root, "build"),
		CacheDir:   filepath.Join(root, "cache"),
		ScratchDir: filepath.Join(root, "scratch"),
	}
}

func pythonFunction(name, codeDir string) *domain.Function {
	return &domain.Function{
		Name:        name,
		FullPath:    name,
		Runtime:     "python3.12",
		Handler:     "app.handler",
		CodeDir:     codeDir,
		PackageType: domain.PackageArchive,
	}
}

func TestDefaultDeduplicatesEqualFingerprints(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	cfg := testConfig(t)
	src := writeSource(t, filepath.Join(t.TempDir(), "src"), map[string]string{"app.py": "x"})

	g := domain.NewGraph()
	g.PutFunction(pythonFunction("alpha", src))
	g.PutFunction(pythonFunction("beta", src))
	require.Len(t, g.FunctionDefinitions(), 1)

	engine := mocks.NewMockBuildEngine(ctrl)
	engine.EXPECT().Build(gomock.Any(), gomock.Any()).DoAndReturn(buildToDir).Times(1)

	s := strategy.NewDefault(engine, fs.NewCopier(), telemetry.NewNoOpTracer(), noopLogger{}, cfg)
	artifacts, err := s.Build(context.Background(), g)
	require.NoError(t, err)

	require.Len(t, artifacts, 2)
	assert.Equal(t, filepath.Join(cfg.BuildDir, "alpha"), artifacts["alpha"])
	assert.Equal(t, filepath.Join(cfg.BuildDir, "beta"), artifacts["beta"])
	assert.FileExists(t, filepath.Join(cfg.BuildDir, "beta", "artifact.bin"))
}

func TestDefaultSharesImageReference(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	cfg := testConfig(t)

	image := func(name string) *domain.Function {
		return &domain.Function{
			Name:        name,
			FullPath:    name,
			Runtime:     "python3.12",
			Handler:     "app.handler",
			PackageType: domain.PackageImage,
			Metadata:    map[string]string{domain.MetadataDockerfile: "Dockerfile"},
		}
	}

	g := domain.NewGraph()
	g.PutFunction(image("one"))
	g.PutFunction(image("two"))
	require.Len(t, g.FunctionDefinitions(), 1)

	engine := mocks.NewMockBuildEngine(ctrl)
	engine.EXPECT().Build(gomock.Any(), gomock.Any()).Return("crate-one:latest", nil).Times(1)

	s := strategy.NewDefault(engine, fs.NewCopier(), telemetry.NewNoOpTracer(), noopLogger{}, cfg)
	artifacts, err := s.Build(context.Background(), g)
	require.NoError(t, err)

	assert.Equal(t, "crate-one:latest", artifacts["one"])
	assert.Equal(t, "crate-one:latest", artifacts["two"])
}

func TestLayerWithoutMethodFailsBeforeBuilding(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	g := domain.NewGraph()
	g.PutLayer(&domain.Layer{Name: "bad", FullPath: "bad", CodeDir: "/tmp/x"})

	engine := mocks.NewMockBuildEngine(ctrl)

	s := strategy.NewDefault(engine, fs.NewCopier(), telemetry.NewNoOpTracer(), noopLogger{}, testConfig(t))
	_, err := s.Build(context.Background(), g)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrMissingBuildMethod)
}

func TestCachedSkipsUnchangedSource(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	cfg := testConfig(t)
	src := writeSource(t, filepath.Join(t.TempDir(), "src"), map[string]string{"app.py": "v1"})

	engine := mocks.NewMockBuildEngine(ctrl)
	engine.EXPECT().Build(gomock.Any(), gomock.Any()).DoAndReturn(buildToDir).Times(1)

	hasher := fs.NewHasher(fs.NewWalker())
	newCached := func() strategy.Strategy {
		inner := strategy.NewDefault(engine, fs.NewCopier(), telemetry.NewNoOpTracer(), noopLogger{}, cfg)
		return strategy.NewCached(inner, hasher, fs.NewCopier(), telemetry.NewNoOpTracer(), noopLogger{}, cfg)
	}

	g := domain.NewGraph()
	def := g.PutFunction(pythonFunction("alpha", src))

	_, err := newCached().Build(context.Background(), g)
	require.NoError(t, err)
	require.NotEmpty(t, def.SourceHash)

	// Second run with the recorded hash restores from cache; the engine
	// expectation above allows exactly one call.
	artifacts, err := newCached().Build(context.Background(), g)
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(artifacts["alpha"], "artifact.bin"))
}

func TestCachedRestoresMissingSiblingDir(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	cfg := testConfig(t)
	src := writeSource(t, filepath.Join(t.TempDir(), "src"), map[string]string{"app.py": "v1"})

	engine := mocks.NewMockBuildEngine(ctrl)
	engine.EXPECT().Build(gomock.Any(), gomock.Any()).DoAndReturn(buildToDir).Times(1)

	hasher := fs.NewHasher(fs.NewWalker())
	inner := strategy.NewDefault(engine, fs.NewCopier(), telemetry.NewNoOpTracer(), noopLogger{}, cfg)
	cached := strategy.NewCached(inner, hasher, fs.NewCopier(), telemetry.NewNoOpTracer(), noopLogger{}, cfg)

	g := domain.NewGraph()
	g.PutFunction(pythonFunction("alpha", src))
	g.PutFunction(pythonFunction("beta", src))
	require.Len(t, g.FunctionDefinitions(), 1)

	_, err := cached.Build(context.Background(), g)
	require.NoError(t, err)

	// One sibling's artifact directory disappears between runs; the cache
	// hit must still give it a fresh copy.
	require.NoError(t, os.RemoveAll(filepath.Join(cfg.BuildDir, "beta")))

	artifacts, err := cached.Build(context.Background(), g)
	require.NoError(t, err)
	require.Len(t, artifacts, 2)
	assert.FileExists(t, filepath.Join(cfg.BuildDir, "alpha", "artifact.bin"))
	assert.FileExists(t, filepath.Join(cfg.BuildDir, "beta", "artifact.bin"))
}

func TestCachedSeparatedDependencies(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	cfg := testConfig(t)
	cfg.SeparateDependencies = true
	src := writeSource(t, filepath.Join(t.TempDir(), "src"), map[string]string{
		"app.py":           "v1",
		"requirements.txt": "requests==2.31.0",
	})

	engine := mocks.NewMockBuildEngine(ctrl)
	engine.EXPECT().Build(gomock.Any(), gomock.Any()).DoAndReturn(
		func(ctx context.Context, req *ports.BuildRequest) (string, error) {
			require.NotEmpty(t, req.DependenciesDir)
			assert.False(t, req.CombineDependencies)
			if err := os.MkdirAll(req.DependenciesDir, 0o750); err != nil {
				return "", err
			}
			return buildToDir(ctx, req)
		},
	).Times(2)

	hasher := fs.NewHasher(fs.NewWalker())
	inner := strategy.NewDefault(engine, fs.NewCopier(), telemetry.NewNoOpTracer(), noopLogger{}, cfg)
	cached := strategy.NewCached(inner, hasher, fs.NewCopier(), telemetry.NewNoOpTracer(), noopLogger{}, cfg)

	g := domain.NewGraph()
	def := g.PutFunction(pythonFunction("alpha", src))

	_, err := cached.Build(context.Background(), g)
	require.NoError(t, err)
	require.NotEmpty(t, def.DependenciesDir)

	// A hit restores the artifacts and still reports the dependency
	// directory, so the layer materializer sees it on cached runs too.
	def.DependenciesDir = ""
	_, err = cached.Build(context.Background(), g)
	require.NoError(t, err)
	assert.NotEmpty(t, def.DependenciesDir)

	// A pruned dependency directory invalidates the hit outright; the
	// second engine expectation above covers the rebuild.
	require.NoError(t, os.RemoveAll(def.DependenciesDir))
	_, err = cached.Build(context.Background(), g)
	require.NoError(t, err)
	assert.DirExists(t, def.DependenciesDir)
}

func TestCachedRebuildsOnSourceChange(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	cfg := testConfig(t)
	src := writeSource(t, filepath.Join(t.TempDir(), "src"), map[string]string{"app.py": "v1"})

	engine := mocks.NewMockBuildEngine(ctrl)
	engine.EXPECT().Build(gomock.Any(), gomock.Any()).DoAndReturn(buildToDir).Times(2)

	hasher := fs.NewHasher(fs.NewWalker())
	inner := strategy.NewDefault(engine, fs.NewCopier(), telemetry.NewNoOpTracer(), noopLogger{}, cfg)
	cached := strategy.NewCached(inner, hasher, fs.NewCopier(), telemetry.NewNoOpTracer(), noopLogger{}, cfg)

	g := domain.NewGraph()
	g.PutFunction(pythonFunction("alpha", src))

	_, err := cached.Build(context.Background(), g)
	require.NoError(t, err)

	writeSource(t, src, map[string]string{"app.py": "v2"})

	_, err = cached.Build(context.Background(), g)
	require.NoError(t, err)
}

func TestIncrementalDownloadDecision(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	cfg := testConfig(t)
	src := writeSource(t, filepath.Join(t.TempDir(), "src"), map[string]string{
		"app.py":           "v1",
		"requirements.txt": "requests==2.31.0",
	})

	var requests []*ports.BuildRequest
	engine := mocks.NewMockBuildEngine(ctrl)
	engine.EXPECT().Build(gomock.Any(), gomock.Any()).DoAndReturn(
		func(ctx context.Context, req *ports.BuildRequest) (string, error) {
			requests = append(requests, req)
			require.NoError(t, os.MkdirAll(req.DependenciesDir, 0o750))
			return buildToDir(ctx, req)
		},
	).Times(3)

	hasher := fs.NewHasher(fs.NewWalker())
	incr := strategy.NewIncremental(engine, fs.NewCopier(), hasher, telemetry.NewNoOpTracer(), noopLogger{}, cfg)

	g := domain.NewGraph()
	g.PutFunction(pythonFunction("alpha", src))

	// First run: no recorded manifest hash, must download.
	_, err := incr.Build(context.Background(), g)
	require.NoError(t, err)
	assert.True(t, requests[0].DownloadDependencies)

	// Unchanged manifest and existing dependency dir: reuse.
	_, err = incr.Build(context.Background(), g)
	require.NoError(t, err)
	assert.False(t, requests[1].DownloadDependencies)

	// Changed manifest: re-fetch.
	writeSource(t, src, map[string]string{"requirements.txt": "requests==2.32.0"})
	_, err = incr.Build(context.Background(), g)
	require.NoError(t, err)
	assert.True(t, requests[2].DownloadDependencies)
}

func TestParallelMatchesSequentialResults(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	cfg := testConfig(t)
	srcA := writeSource(t, filepath.Join(t.TempDir(), "a"), map[string]string{"app.py": "a"})
	srcB := writeSource(t, filepath.Join(t.TempDir(), "b"), map[string]string{"app.py": "b"})

	g := domain.NewGraph()
	g.PutFunction(pythonFunction("alpha", srcA))
	g.PutFunction(pythonFunction("beta", srcB))

	engine := mocks.NewMockBuildEngine(ctrl)
	engine.EXPECT().Build(gomock.Any(), gomock.Any()).DoAndReturn(buildToDir).Times(2)

	inner := strategy.NewDefault(engine, fs.NewCopier(), telemetry.NewNoOpTracer(), noopLogger{}, cfg)
	artifacts, err := strategy.NewParallel(inner, 4).Build(context.Background(), g)
	require.NoError(t, err)
	require.Len(t, artifacts, 2)
	assert.FileExists(t, filepath.Join(artifacts["alpha"], "artifact.bin"))
	assert.FileExists(t, filepath.Join(artifacts["beta"], "artifact.bin"))
}

func TestParallelRetainsSiblingArtifactsOnFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	cfg := testConfig(t)
	srcGood := writeSource(t, filepath.Join(t.TempDir(), "good"), map[string]string{"app.py": "g"})
	srcBad := writeSource(t, filepath.Join(t.TempDir(), "bad"), map[string]string{"app.py": "b"})

	g := domain.NewGraph()
	g.PutFunction(pythonFunction("good", srcGood))
	g.PutFunction(pythonFunction("bad", srcBad))

	boom := errors.New("compile error")
	engine := mocks.NewMockBuildEngine(ctrl)
	engine.EXPECT().Build(gomock.Any(), gomock.Any()).DoAndReturn(
		func(ctx context.Context, req *ports.BuildRequest) (string, error) {
			if req.SourceDir == srcBad {
				return "", boom
			}
			return buildToDir(ctx, req)
		},
	).Times(2)

	inner := strategy.NewDefault(engine, fs.NewCopier(), telemetry.NewNoOpTracer(), noopLogger{}, cfg)
	artifacts, err := strategy.NewParallel(inner, 2).Build(context.Background(), g)
	require.ErrorIs(t, err, boom)
	assert.Contains(t, artifacts, "good")
	assert.NotContains(t, artifacts, "bad")
}

func TestSelectRecordsHashesAndPrunes(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	cfg := testConfig(t)
	src := writeSource(t, filepath.Join(t.TempDir(), "src"), map[string]string{
		"app.py":           "v1",
		"requirements.txt": "requests==2.31.0",
	})

	// A stale cache entry from a definition no longer in the graph.
	staleDir := filepath.Join(cfg.CacheDir, "deadbeefdeadbeef")
	require.NoError(t, os.MkdirAll(staleDir, 0o750))

	g := domain.NewGraph()
	g.PutFunction(pythonFunction("alpha", src))

	engine := mocks.NewMockBuildEngine(ctrl)
	engine.EXPECT().Build(gomock.Any(), gomock.Any()).DoAndReturn(
		func(ctx context.Context, req *ports.BuildRequest) (string, error) {
			if req.DependenciesDir != "" {
				require.NoError(t, os.MkdirAll(req.DependenciesDir, 0o750))
			}
			return buildToDir(ctx, req)
		},
	).AnyTimes()

	store := mocks.NewMockGraphStore(ctrl)
	store.EXPECT().UpdateHashes(gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(
		func(g *domain.Graph, sourceHashes, manifestHashes map[string]string) error {
			assert.NotEmpty(t, manifestHashes)
			return nil
		},
	).Times(1)

	hasher := fs.NewHasher(fs.NewWalker())
	s := strategy.NewSelect(engine, fs.NewCopier(), hasher, store, telemetry.NewNoOpTracer(), noopLogger{}, cfg, strategy.Options{
		CacheEnabled: true,
		FullRun:      true,
	})

	_, err := s.Build(context.Background(), g)
	require.NoError(t, err)

	assert.NoDirExists(t, staleDir)
}

func TestSelectCustomMethodNeverCached(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	cfg := testConfig(t)
	src := writeSource(t, filepath.Join(t.TempDir(), "src"), map[string]string{"Makefile": "build:"})

	fn := pythonFunction("custom", src)
	fn.Metadata = map[string]string{domain.MetadataBuildMethod: "makefile"}

	engine := mocks.NewMockBuildEngine(ctrl)
	engine.EXPECT().Build(gomock.Any(), gomock.Any()).DoAndReturn(buildToDir).Times(2)

	store := mocks.NewMockGraphStore(ctrl)

	hasher := fs.NewHasher(fs.NewWalker())
	s := strategy.NewSelect(engine, fs.NewCopier(), hasher, store, telemetry.NewNoOpTracer(), noopLogger{}, cfg, strategy.Options{
		CacheEnabled: true,
	})

	for range 2 {
		g := domain.NewGraph()
		g.PutFunction(fn)
		_, err := s.Build(context.Background(), g)
		require.NoError(t, err)
	}
}

func TestSelectWithoutCacheUsesPlainBuilds(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	cfg := testConfig(t)
	src := writeSource(t, filepath.Join(t.TempDir(), "src"), map[string]string{"app.py": "v1"})

	g := domain.NewGraph()
	def := g.PutFunction(pythonFunction("alpha", src))

	engine := mocks.NewMockBuildEngine(ctrl)
	engine.EXPECT().Build(gomock.Any(), gomock.Any()).DoAndReturn(buildToDir).Times(1)

	store := mocks.NewMockGraphStore(ctrl)

	hasher := fs.NewHasher(fs.NewWalker())
	s := strategy.NewSelect(engine, fs.NewCopier(), hasher, store, telemetry.NewNoOpTracer(), noopLogger{}, cfg, strategy.Options{})

	_, err := s.Build(context.Background(), g)
	require.NoError(t, err)
	assert.Empty(t, def.SourceHash)
}
