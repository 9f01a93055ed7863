package builder_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/crate/internal/adapters/fs"
	"go.trai.ch/crate/internal/adapters/manifest"
	"go.trai.ch/crate/internal/adapters/telemetry"
	"go.trai.ch/crate/internal/core/domain"
	"go.trai.ch/crate/internal/core/ports"
	"go.trai.ch/crate/internal/core/ports/mocks"
	"go.trai.ch/crate/internal/engine/builder"
	"go.uber.org/mock/gomock"
)

type noopLogger struct{}

func (noopLogger) Info(string) {}
func (noopLogger) Warn(string) {}
func (noopLogger) Error(error) {}

func newBuilder(engine ports.BuildEngine) *builder.Builder {
	return builder.New(engine, nil, fs.NewCopier(), fs.NewHasher(fs.NewWalker()), telemetry.NewNoOpTracer(), noopLogger{})
}

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

func pythonFunction(t *testing.T, root, name string) *domain.Function {
	t.Helper()
	codeDir := filepath.Join(root, "src-"+name)
	require.NoError(t, os.MkdirAll(codeDir, 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(codeDir, "app.py"), []byte(name), 0o644))
	return &domain.Function{
		Name:        name,
		FullPath:    name,
		Runtime:     "python3.12",
		Handler:     "app.handler",
		CodeDir:     codeDir,
		PackageType: domain.PackageArchive,
	}
}

func stubProvider(ctrl *gomock.Controller, functions []*domain.Function, layers []*domain.Layer) *mocks.MockTargetProvider {
	p := mocks.NewMockTargetProvider(ctrl)
	p.EXPECT().Functions().Return(functions).AnyTimes()
	p.EXPECT().Layers().Return(layers).AnyTimes()
	return p
}

func TestRunBuildsAllTargets(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	root := t.TempDir()
	fnA := pythonFunction(t, root, "alpha")
	fnB := pythonFunction(t, root, "beta")

	engine := mocks.NewMockBuildEngine(ctrl)
	engine.EXPECT().Build(gomock.Any(), gomock.Any()).DoAndReturn(buildToDir).Times(2)

	provider := stubProvider(ctrl, []*domain.Function{fnA, fnB}, nil)
	store := mocks.NewMockGraphStore(ctrl)

	result, err := newBuilder(engine).Run(context.Background(), provider, store, nil, builder.Options{
		BuildDir: filepath.Join(root, "build"),
		CacheDir: filepath.Join(root, "cache"),
	})
	require.NoError(t, err)
	assert.Contains(t, result.Artifacts, "alpha")
	assert.Contains(t, result.Artifacts, "beta")
	assert.FileExists(t, filepath.Join(result.Artifacts["alpha"], "artifact.bin"))
}

func TestRunDeduplicatesSharedSources(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	root := t.TempDir()
	fnA := pythonFunction(t, root, "alpha")
	fnB := *fnA
	fnB.Name = "beta"
	fnB.FullPath = "beta"

	engine := mocks.NewMockBuildEngine(ctrl)
	engine.EXPECT().Build(gomock.Any(), gomock.Any()).DoAndReturn(buildToDir).Times(1)

	provider := stubProvider(ctrl, []*domain.Function{fnA, &fnB}, nil)
	store := mocks.NewMockGraphStore(ctrl)

	result, err := newBuilder(engine).Run(context.Background(), provider, store, nil, builder.Options{
		BuildDir: filepath.Join(root, "build"),
		CacheDir: filepath.Join(root, "cache"),
	})
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(result.Artifacts["beta"], "artifact.bin"))
}

func TestRunExcludesSkippedTargets(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	root := t.TempDir()
	fn := pythonFunction(t, root, "alpha")
	skipped := pythonFunction(t, root, "prebuilt")
	skipped.SkipBuild = true

	engine := mocks.NewMockBuildEngine(ctrl)
	engine.EXPECT().Build(gomock.Any(), gomock.Any()).DoAndReturn(buildToDir).Times(1)

	provider := stubProvider(ctrl, []*domain.Function{fn, skipped}, nil)
	store := mocks.NewMockGraphStore(ctrl)

	result, err := newBuilder(engine).Run(context.Background(), provider, store, nil, builder.Options{
		BuildDir: filepath.Join(root, "build"),
		CacheDir: filepath.Join(root, "cache"),
	})
	require.NoError(t, err)
	assert.NotContains(t, result.Artifacts, "prebuilt")
}

func TestRunSingleResource(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	root := t.TempDir()
	fn := pythonFunction(t, root, "beta")

	engine := mocks.NewMockBuildEngine(ctrl)
	engine.EXPECT().Build(gomock.Any(), gomock.Any()).DoAndReturn(buildToDir).Times(1)

	provider := mocks.NewMockTargetProvider(ctrl)
	provider.EXPECT().Function("beta").Return(fn)
	store := mocks.NewMockGraphStore(ctrl)

	result, err := newBuilder(engine).Run(context.Background(), provider, store, nil, builder.Options{
		BuildDir: filepath.Join(root, "build"),
		CacheDir: filepath.Join(root, "cache"),
		Resource: "beta",
	})
	require.NoError(t, err)
	assert.Len(t, result.Artifacts, 1)
}

func TestRunUnknownResource(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	engine := mocks.NewMockBuildEngine(ctrl)
	provider := mocks.NewMockTargetProvider(ctrl)
	provider.EXPECT().Function("ghost").Return(nil)
	provider.EXPECT().Layer("ghost").Return(nil)
	store := mocks.NewMockGraphStore(ctrl)

	_, err := newBuilder(engine).Run(context.Background(), provider, store, nil, builder.Options{
		BuildDir: t.TempDir(),
		Resource: "ghost",
	})
	assert.ErrorIs(t, err, domain.ErrTargetNotFound)
}

func TestRunRejectsUnsupportedRuntime(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	root := t.TempDir()
	fn := pythonFunction(t, root, "legacy")
	fn.Runtime = "cobol85"

	engine := mocks.NewMockBuildEngine(ctrl)
	provider := stubProvider(ctrl, []*domain.Function{fn}, nil)
	store := mocks.NewMockGraphStore(ctrl)

	_, err := newBuilder(engine).Run(context.Background(), provider, store, nil, builder.Options{
		BuildDir: filepath.Join(root, "build"),
	})
	assert.ErrorIs(t, err, domain.ErrUnsupportedRuntime)
}

func TestRunRejectsImageWithoutDockerfile(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	root := t.TempDir()
	fn := pythonFunction(t, root, "imaged")
	fn.PackageType = domain.PackageImage

	engine := mocks.NewMockBuildEngine(ctrl)
	provider := stubProvider(ctrl, []*domain.Function{fn}, nil)
	store := mocks.NewMockGraphStore(ctrl)

	_, err := newBuilder(engine).Run(context.Background(), provider, store, nil, builder.Options{
		BuildDir: filepath.Join(root, "build"),
	})
	assert.ErrorIs(t, err, domain.ErrMissingImageMetadata)
}

func TestRunAppliesEnvOverlays(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	root := t.TempDir()
	fn := pythonFunction(t, root, "alpha")
	fn.Env = map[string]string{"LOCAL": "1"}

	var captured map[string]string
	engine := mocks.NewMockBuildEngine(ctrl)
	engine.EXPECT().Build(gomock.Any(), gomock.Any()).DoAndReturn(
		func(ctx context.Context, req *ports.BuildRequest) (string, error) {
			captured = req.Env
			return buildToDir(ctx, req)
		})

	provider := stubProvider(ctrl, []*domain.Function{fn}, nil)
	store := mocks.NewMockGraphStore(ctrl)

	_, err := newBuilder(engine).Run(context.Background(), provider, store, nil, builder.Options{
		BuildDir:  filepath.Join(root, "build"),
		GlobalEnv: map[string]string{"STAGE": "prod", "LOCAL": "global"},
		TargetEnv: map[string]map[string]string{"alpha": {"DEBUG": "1"}},
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"LOCAL": "1", "STAGE": "prod", "DEBUG": "1"}, captured)
}

func TestRunWritesTemplate(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	root := t.TempDir()
	fn := pythonFunction(t, root, "alpha")
	buildDir := filepath.Join(root, "build")
	templatePath := filepath.Join(root, "crate.yaml")

	engine := mocks.NewMockBuildEngine(ctrl)
	engine.EXPECT().Build(gomock.Any(), gomock.Any()).DoAndReturn(buildToDir)

	provider := stubProvider(ctrl, []*domain.Function{fn}, nil)
	store := mocks.NewMockGraphStore(ctrl)

	template := mocks.NewMockTemplateWriter(ctrl)
	template.EXPECT().
		Write(templatePath, filepath.Join(buildDir, "crate.yaml"), gomock.Any(), provider).
		Return(nil)

	result, err := newBuilder(engine).Run(context.Background(), provider, store, template, builder.Options{
		TemplatePath: templatePath,
		BuildDir:     buildDir,
	})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(buildDir, "crate.yaml"), result.TemplatePath)
	assert.Empty(t, result.LayerStackPath)
}

func TestRunCachedPersistsManifest(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	root := t.TempDir()
	fn := pythonFunction(t, root, "alpha")
	require.NoError(t, os.WriteFile(filepath.Join(fn.CodeDir, "requirements.txt"), []byte("requests"), 0o644))

	engine := mocks.NewMockBuildEngine(ctrl)
	engine.EXPECT().Build(gomock.Any(), gomock.Any()).DoAndReturn(buildToDir)

	provider := stubProvider(ctrl, []*domain.Function{fn}, nil)
	store := mocks.NewMockGraphStore(ctrl)
	store.EXPECT().Load().Return(nil, nil, nil)
	store.EXPECT().UpdateHashes(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil)
	store.EXPECT().Persist(gomock.Any()).Return(nil)

	_, err := newBuilder(engine).Run(context.Background(), provider, store, nil, builder.Options{
		BuildDir: filepath.Join(root, "build"),
		CacheDir: filepath.Join(root, "cache"),
		Cached:   true,
	})
	require.NoError(t, err)
}

func TestRunDependencyLayer(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	root := t.TempDir()
	fn := pythonFunction(t, root, "alpha")
	require.NoError(t, os.WriteFile(filepath.Join(fn.CodeDir, "requirements.txt"), []byte("requests"), 0o644))
	buildDir := filepath.Join(root, "build")

	engine := mocks.NewMockBuildEngine(ctrl)
	engine.EXPECT().Build(gomock.Any(), gomock.Any()).DoAndReturn(
		func(ctx context.Context, req *ports.BuildRequest) (string, error) {
			assert.False(t, req.CombineDependencies)
			require.NotEmpty(t, req.DependenciesDir)
			if err := os.MkdirAll(req.DependenciesDir, 0o750); err != nil {
				return "", err
			}
			if err := os.WriteFile(filepath.Join(req.DependenciesDir, "requests.py"), []byte("pkg"), 0o644); err != nil {
				return "", err
			}
			return buildToDir(ctx, req)
		})

	provider := stubProvider(ctrl, []*domain.Function{fn}, nil)
	store := mocks.NewMockGraphStore(ctrl)
	store.EXPECT().Load().Return(nil, nil, nil)
	store.EXPECT().UpdateHashes(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil)
	store.EXPECT().Persist(gomock.Any()).Return(nil)

	result, err := newBuilder(engine).Run(context.Background(), provider, store, nil, builder.Options{
		BuildDir:        buildDir,
		CacheDir:        filepath.Join(root, "cache"),
		Cached:          true,
		DependencyLayer: true,
	})
	require.NoError(t, err)
	require.Len(t, result.GeneratedLayers, 1)
	layer := result.GeneratedLayers[0]
	assert.Equal(t, "alpha-deps", layer.Name)
	assert.FileExists(t, filepath.Join(layer.ContentDir, "python", "requests.py"))
}

func TestRunDependencyLayerWithoutCache(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	root := t.TempDir()
	fn := pythonFunction(t, root, "alpha")
	require.NoError(t, os.WriteFile(filepath.Join(fn.CodeDir, "requirements.txt"), []byte("requests"), 0o644))
	buildDir := filepath.Join(root, "build")

	// Without caching the plain strategy runs; the engine must still get a
	// dependency directory, or the excluded packages would land nowhere.
	engine := mocks.NewMockBuildEngine(ctrl)
	engine.EXPECT().Build(gomock.Any(), gomock.Any()).DoAndReturn(
		func(ctx context.Context, req *ports.BuildRequest) (string, error) {
			assert.False(t, req.CombineDependencies)
			require.NotEmpty(t, req.DependenciesDir)
			if err := os.MkdirAll(req.DependenciesDir, 0o750); err != nil {
				return "", err
			}
			if err := os.WriteFile(filepath.Join(req.DependenciesDir, "requests.py"), []byte("pkg"), 0o644); err != nil {
				return "", err
			}
			return buildToDir(ctx, req)
		})

	provider := stubProvider(ctrl, []*domain.Function{fn}, nil)
	store := mocks.NewMockGraphStore(ctrl)

	result, err := newBuilder(engine).Run(context.Background(), provider, store, nil, builder.Options{
		BuildDir:        buildDir,
		CacheDir:        filepath.Join(root, "cache"),
		DependencyLayer: true,
	})
	require.NoError(t, err)
	require.Len(t, result.GeneratedLayers, 1)
	assert.FileExists(t, filepath.Join(result.GeneratedLayers[0].ContentDir, "python", "requests.py"))
}

func TestRunSingleResourceCachedRecordsHashes(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	root := t.TempDir()
	fn := pythonFunction(t, root, "orders")
	require.NoError(t, os.WriteFile(filepath.Join(fn.CodeDir, "requirements.txt"), []byte("requests"), 0o644))

	engine := mocks.NewMockBuildEngine(ctrl)
	engine.EXPECT().Build(gomock.Any(), gomock.Any()).DoAndReturn(
		func(ctx context.Context, req *ports.BuildRequest) (string, error) {
			if req.DependenciesDir != "" {
				require.NoError(t, os.MkdirAll(req.DependenciesDir, 0o750))
			}
			return buildToDir(ctx, req)
		})

	provider := mocks.NewMockTargetProvider(ctrl)
	provider.EXPECT().Function("orders").Return(fn)

	// A real store on a fresh project: the single-target run must still
	// leave a manifest behind so the next run can hit the cache.
	store := manifest.NewStore(filepath.Join(root, "build", "manifest.json"))

	_, err := newBuilder(engine).Run(context.Background(), provider, store, nil, builder.Options{
		BuildDir: filepath.Join(root, "build"),
		CacheDir: filepath.Join(root, "cache"),
		Cached:   true,
		Resource: "orders",
	})
	require.NoError(t, err)

	functions, _, err := store.Load()
	require.NoError(t, err)
	require.Len(t, functions, 1)
	assert.NotEmpty(t, functions[0].ManifestHash)
}

func TestRunSandboxedWithoutRuntime(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	root := t.TempDir()
	fn := pythonFunction(t, root, "alpha")

	engine := mocks.NewMockBuildEngine(ctrl)
	provider := stubProvider(ctrl, []*domain.Function{fn}, nil)
	store := mocks.NewMockGraphStore(ctrl)

	_, err := newBuilder(engine).Run(context.Background(), provider, store, nil, builder.Options{
		BuildDir:  filepath.Join(root, "build"),
		Sandboxed: true,
	})
	assert.ErrorContains(t, err, "no sandbox runtime")
}
