// Package engine provides the in-process build engine adapter, shelling out
// to the language-specific builder tooling on the host.
package engine

import (
	"context"
	"io"
	"os"
	"os/exec"
	"slices"
	"strings"

	"go.trai.ch/crate/internal/core/domain"
	"go.trai.ch/crate/internal/core/ports"
	"go.trai.ch/zerr"
)

// DefaultBuilderBinary is the host tool invoked for archive builds.
const DefaultBuilderBinary = "crate-builder"

var _ ports.BuildEngine = (*Executor)(nil)

// Executor implements ports.BuildEngine using os/exec on the host.
type Executor struct {
	logger ports.Logger
	binary string
}

// NewExecutor creates an executor invoking the default builder binary.
func NewExecutor(logger ports.Logger) *Executor {
	return &Executor{logger: logger, binary: DefaultBuilderBinary}
}

// NewExecutorWithBinary creates an executor invoking the given builder binary.
func NewExecutorWithBinary(logger ports.Logger, binary string) *Executor {
	return &Executor{logger: logger, binary: binary}
}

// Build runs one engine invocation. Archive packages shell out to the builder
// binary; image packages shell out to docker build and return the tag.
func (e *Executor) Build(ctx context.Context, req *ports.BuildRequest) (string, error) {
	if req.PackageType == domain.PackageImage {
		return e.buildImage(ctx, req)
	}
	return e.buildArchive(ctx, req)
}

func (e *Executor) buildArchive(ctx context.Context, req *ports.BuildRequest) (string, error) {
	if err := os.MkdirAll(req.ArtifactsDir, 0o750); err != nil {
		return "", zerr.Wrap(err, "failed to create artifacts directory")
	}

	args := []string{
		"--source", req.SourceDir,
		"--artifacts", req.ArtifactsDir,
		"--scratch", req.ScratchDir,
		"--runtime", req.Runtime,
		"--method", req.Method,
	}
	if req.ManifestPath != "" {
		args = append(args, "--manifest", req.ManifestPath)
	}
	if req.Handler != "" {
		args = append(args, "--handler", req.Handler)
	}
	if req.Architecture != "" {
		args = append(args, "--architecture", req.Architecture)
	}
	if req.DependenciesDir != "" {
		args = append(args, "--dependencies", req.DependenciesDir)
	}
	if req.DownloadDependencies {
		args = append(args, "--download-dependencies")
	}
	if req.CombineDependencies {
		args = append(args, "--combine-dependencies")
	}
	if req.IsLayer {
		args = append(args, "--layer")
	}
	for _, p := range req.SearchPaths {
		args = append(args, "--search-path", p)
	}
	for _, k := range sortedKeys(req.Options) {
		args = append(args, "--option", k+"="+req.Options[k])
	}

	if err := e.run(ctx, req.SourceDir, e.binary, args, req.Env, req.Output); err != nil {
		return "", err
	}
	return req.ArtifactsDir, nil
}

func (e *Executor) buildImage(ctx context.Context, req *ports.BuildRequest) (string, error) {
	tag := req.Options[ports.OptionImageTag]
	if tag == "" {
		return "", zerr.New("image build is missing a tag")
	}

	dockerfile := req.Options[domain.MetadataDockerfile]
	if dockerfile == "" {
		dockerfile = "Dockerfile"
	}
	context := req.Options[domain.MetadataDockerContext]
	if context == "" {
		context = req.SourceDir
	}

	args := []string{"build", "-t", tag, "-f", dockerfile}
	for _, k := range sortedKeys(req.Env) {
		args = append(args, "--build-arg", k+"="+req.Env[k])
	}
	args = append(args, context)

	if err := e.run(ctx, req.SourceDir, "docker", args, nil, req.Output); err != nil {
		return "", err
	}
	return tag, nil
}

func (e *Executor) run(ctx context.Context, dir, name string, args []string, env map[string]string, output io.Writer) error {
	cmd := exec.CommandContext(ctx, name, args...) //nolint:gosec // tool and args come from the build plan
	cmd.Dir = dir
	cmd.Env = mergeEnviron(os.Environ(), env)
	if output != nil {
		cmd.Stdout = output
		cmd.Stderr = output
	} else {
		cmd.Stdout = &logWriter{logger: e.logger, level: "info"}
		cmd.Stderr = &logWriter{logger: e.logger, level: "error"}
	}

	if err := cmd.Run(); err != nil {
		exitCode := -1
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		}
		err = zerr.With(zerr.Wrap(err, "build command failed"), "exit_code", exitCode)
		return zerr.With(err, "command", name)
	}
	return nil
}

// logWriter forwards command output lines to the logger.
type logWriter struct {
	logger ports.Logger
	level  string
}

func (w *logWriter) Write(p []byte) (n int, err error) {
	lines := strings.Split(strings.TrimSuffix(string(p), "\n"), "\n")
	for _, line := range lines {
		if w.level == "info" {
			w.logger.Info(line)
		} else {
			w.logger.Error(zerr.New(line))
		}
	}
	return len(p), nil
}

// mergeEnviron overlays the request env onto the process environment.
func mergeEnviron(sysEnv []string, env map[string]string) []string {
	if len(env) == 0 {
		return sysEnv
	}

	envMap := make(map[string]string, len(sysEnv)+len(env))
	for _, entry := range sysEnv {
		if k, v, ok := strings.Cut(entry, "="); ok {
			envMap[k] = v
		}
	}
	for k, v := range env {
		envMap[k] = v
	}

	result := make([]string, 0, len(envMap))
	for _, k := range sortedKeys(envMap) {
		result = append(result, k+"="+envMap[k])
	}
	return result
}

// sortedKeys keeps command lines and environments stable across runs.
func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
