// Package ports defines the core interfaces for the application.
package ports

import (
	"context"
	"io"

	"go.trai.ch/crate/internal/core/domain"
)

// OptionImageTag names the request option carrying the tag for image builds.
const OptionImageTag = "imageTag"

// BuildRequest carries the parameters of one build engine invocation.
type BuildRequest struct {
	SourceDir    string
	ArtifactsDir string
	ScratchDir   string
	ManifestPath string

	Runtime      string
	Method       string
	Handler      string
	Architecture string
	PackageType  domain.PackageType

	SearchPaths []string
	Options     map[string]string
	Env         map[string]string

	// DependenciesDir, when set, receives the resolved third-party
	// dependencies separately from the artifact tree.
	DependenciesDir string

	// DownloadDependencies tells the engine whether to re-fetch dependencies
	// or reuse the existing DependenciesDir contents.
	DownloadDependencies bool

	// CombineDependencies controls whether dependencies are also merged into
	// the artifact tree (false when a shared dependency layer is built).
	CombineDependencies bool

	IsLayer bool

	// Output, when set, receives the engine's log stream for this build.
	Output io.Writer
}

// BuildEngine is the external, language-specific tool that performs the
// actual source-to-artifact packaging. Implementations run in-process (via
// the shell adapter) or inside a sandbox container.
//
//go:generate go run go.uber.org/mock/mockgen -source=engine.go -destination=mocks/mock_engine.go -package=mocks
type BuildEngine interface {
	// Build packages req.SourceDir into req.ArtifactsDir and returns the
	// artifact location: req.ArtifactsDir for archive packages, an image
	// reference for image packages.
	Build(ctx context.Context, req *BuildRequest) (string, error)
}
