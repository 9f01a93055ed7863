// Package domain contains the core domain models for the build fingerprint graph.
package domain

// PackageType describes the artifact kind a target is packaged as.
type PackageType string

const (
	// PackageArchive targets produce a directory (later zipped) of built sources.
	PackageArchive PackageType = "archive"
	// PackageImage targets produce a container image reference.
	PackageImage PackageType = "image"
)

// Metadata keys recognized on targets.
const (
	// MetadataBuildMethod overrides the runtime as the build method.
	MetadataBuildMethod = "buildMethod"
	// MetadataDockerfile names the Dockerfile for image-package targets.
	MetadataDockerfile = "dockerfile"
	// MetadataDockerContext names the build context for image-package targets.
	MetadataDockerContext = "dockerContext"
)

// Function is a normalized function build target, supplied by the target
// provider and read-only to the build subsystem.
type Function struct {
	Name         string
	FullPath     string
	Runtime      string
	Handler      string
	CodeDir      string
	PackageType  PackageType
	Architecture string
	Metadata     map[string]string
	Env          map[string]string
	Layers       []string

	// SkipBuild marks targets the provider excluded from building, either
	// explicitly or because the source is already a packaged archive.
	SkipBuild bool
}

// BuildMethod returns the method used to build this function: the metadata
// override when present, otherwise the runtime.
func (f *Function) BuildMethod() string {
	if m, ok := f.Metadata[MetadataBuildMethod]; ok && m != "" {
		return m
	}
	return f.Runtime
}

// Layer is a normalized layer build target.
type Layer struct {
	Name               string
	FullPath           string
	Method             string
	CodeDir            string
	PackageType        PackageType
	Architecture       string
	Metadata           map[string]string
	Env                map[string]string
	CompatibleRuntimes []string

	SkipBuild bool
}

// BuildMethod returns the layer's build method. Layers have no runtime to
// fall back to; an empty method is a configuration error caught before any
// engine invocation.
func (l *Layer) BuildMethod() string {
	if m, ok := l.Metadata[MetadataBuildMethod]; ok && m != "" {
		return m
	}
	return l.Method
}
