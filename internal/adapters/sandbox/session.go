package sandbox

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"sync/atomic"

	"go.trai.ch/crate/internal/core/domain"
	"go.trai.ch/crate/internal/core/ports"
	"go.trai.ch/zerr"
)

// In-container paths the build session lays out before invoking the builder.
const (
	containerSourceDir    = "/crate/source"
	containerArtifactsDir = "/crate/artifacts"
	containerScratchDir   = "/crate/scratch"
	containerManifestDir  = "/crate/manifest"

	// builderEntrypoint is the builder binary every sandbox image ships.
	builderEntrypoint = "/usr/local/bin/crate-builder"
)

// Sequence counter for container IDs, so concurrent sessions never collide.
var sessionSeq uint64

var _ ports.BuildEngine = (*Session)(nil)

// Session implements ports.BuildEngine by running each build inside a fresh
// container. Images are selected per build method; the source tree and
// manifest are copied in, the builder invoked, and the artifacts copied back
// out.
type Session struct {
	runtime *Runtime
	logger  ports.Logger
	stderr  io.Writer

	// images maps a runtime family to the build image tag. Missing entries
	// fall back to the published default for the family.
	images map[string]string
}

// NewSession creates a sandboxed build engine. The images map may be nil;
// stderr receives the builder's live diagnostic stream and may be nil.
func NewSession(rt *Runtime, logger ports.Logger, images map[string]string, stderr io.Writer) *Session {
	return &Session{
		runtime: rt,
		logger:  logger,
		stderr:  stderr,
		images:  images,
	}
}

// Build runs one engine invocation inside a container. Methods without a
// published build image are rejected before any container work starts.
func (s *Session) Build(ctx context.Context, req *ports.BuildRequest) (string, error) {
	ok, reason := domain.SandboxSupported(req.Method)
	if !ok {
		err := zerr.Wrap(domain.ErrSandboxUnsupported, reason)
		return "", zerr.With(err, "method", req.Method)
	}

	image := s.imageFor(req.Method)
	if err := s.runtime.EnsureImage(ctx, image); err != nil {
		return "", err
	}

	id := fmt.Sprintf("crate-build-%d", atomic.AddUint64(&sessionSeq, 1))
	ctr, err := s.runtime.StartContainer(ctx, image, id)
	if err != nil {
		return "", err
	}
	defer ctr.Destroy(ctx)

	if err := s.stage(ctx, ctr, req); err != nil {
		return "", err
	}

	stdout, err := s.invoke(ctx, ctr, req, image)
	if err != nil {
		return "", err
	}

	resp, err := ParseResponse(stdout, image)
	if err != nil {
		return "", err
	}

	if err := ctr.CopyDirFrom(ctx, resp.Result.ArtifactsDir, req.ArtifactsDir); err != nil {
		return "", err
	}

	s.logger.Info("sandbox build finished: " + filepath.Base(req.SourceDir))
	return req.ArtifactsDir, nil
}

// stage copies the source tree and, when present, the dependency manifest
// into the container.
func (s *Session) stage(ctx context.Context, ctr *Container, req *ports.BuildRequest) error {
	if err := ctr.CopyDirTo(ctx, req.SourceDir, containerSourceDir); err != nil {
		return err
	}
	if err := ctr.MkdirAll(ctx, containerArtifactsDir); err != nil {
		return err
	}
	if err := ctr.MkdirAll(ctx, containerScratchDir); err != nil {
		return err
	}
	if req.ManifestPath != "" {
		name := filepath.Base(req.ManifestPath)
		if err := ctr.CopyFileTo(ctx, req.ManifestPath, containerManifestDir, name); err != nil {
			return err
		}
	}
	return nil
}

// invoke runs the builder entrypoint with the request JSON as its single
// argument. Stdout is buffered for response parsing; stderr streams live.
func (s *Session) invoke(ctx context.Context, ctr *Container, req *ports.BuildRequest, image string) ([]byte, error) {
	payload, err := json.Marshal(s.containerRequest(req))
	if err != nil {
		return nil, zerr.Wrap(err, "failed to marshal build request")
	}

	var stdout bytes.Buffer
	stderr := s.stderr
	if req.Output != nil {
		stderr = req.Output
	}
	if stderr == nil {
		stderr = io.Discard
	}

	env := make([]string, 0, len(req.Env))
	for k, v := range req.Env {
		env = append(env, k+"="+v)
	}

	exitCode, err := ctr.execCommand(ctx, nil, &stdout, stderr, env, containerSourceDir,
		builderEntrypoint, string(payload))
	if err != nil {
		return nil, err
	}
	// A non-zero exit still carries a response object on stdout; the builder
	// reports failures through the protocol, not the exit code.
	_ = exitCode

	return stdout.Bytes(), nil
}

// containerRequest rewrites host paths to the in-container layout.
func (s *Session) containerRequest(req *ports.BuildRequest) *Request {
	r := &Request{
		SourceDir:            containerSourceDir,
		ArtifactsDir:         containerArtifactsDir,
		ScratchDir:           containerScratchDir,
		Runtime:              req.Runtime,
		Method:               req.Method,
		Handler:              req.Handler,
		Architecture:         req.Architecture,
		Options:              req.Options,
		Env:                  req.Env,
		DownloadDependencies: req.DownloadDependencies,
		CombineDependencies:  req.CombineDependencies,
		IsLayer:              req.IsLayer,
	}
	if req.ManifestPath != "" {
		r.ManifestPath = filepath.Join(containerManifestDir, filepath.Base(req.ManifestPath))
	}
	return r
}

// imageFor picks the build image for a method, preferring configured
// overrides.
func (s *Session) imageFor(method string) string {
	family := domain.RuntimeFamily(method)
	if tag, ok := s.images[family]; ok && tag != "" {
		return tag
	}
	return "ghcr.io/trai/crate-build-" + family + ":latest"
}
