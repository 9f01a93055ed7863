// Package paths centralizes filesystem locations used across the tool.
package paths

import (
	"path/filepath"

	"github.com/adrg/xdg"
)

// Name used for directory and file naming.
const toolName = "crate"

// Path to the per-user cache root for reusable build artifacts.
//
//	Linux:   ~/.cache/crate
//	macOS:   ~/Library/Caches/crate
func CacheRoot() string {
	return filepath.Join(xdg.CacheHome, toolName)
}

// Default directory for cached definition artifacts, keyed by identity token
// underneath it.
func ArtifactCache() string {
	return filepath.Join(CacheRoot(), "artifacts")
}

// Default build output directory, relative to the project being built.
func DefaultBuildDir(projectDir string) string {
	return filepath.Join(projectDir, ".crate", "build")
}

// Path of the build manifest recording definitions and hashes for a build
// directory.
func ManifestFile(buildDir string) string {
	return filepath.Join(buildDir, "manifest.json")
}
