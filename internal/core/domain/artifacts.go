package domain

import "maps"

// ArtifactMap maps a target name to the filesystem location of its built
// artifact, or to an image reference for image-package targets.
type ArtifactMap map[string]string

// Merge copies all entries of other into the map.
func (m ArtifactMap) Merge(other ArtifactMap) {
	maps.Copy(m, other)
}

// GeneratedLayer describes a dependency layer synthesized from a function's
// downloaded dependencies, to be attached to the function instead of bundling
// the dependencies into its artifact.
type GeneratedLayer struct {
	Name               string
	ContentDir         string
	CompatibleRuntimes []string

	// Functions lists the targets the layer must be attached to.
	Functions []string
}
