package domain

import "strings"

// MethodCapability classifies a build method for strategy selection. The
// class is computed once per definition instead of scattering string
// comparisons across the strategies.
type MethodCapability int

const (
	// CapabilityStandard methods build one artifact per source directory.
	CapabilityStandard MethodCapability = iota
	// CapabilityBundler methods produce one bundle per entry point, so the
	// handler participates in fingerprint equality.
	CapabilityBundler
	// CapabilityCustom methods run a user-supplied command whose side effects
	// the graph cannot reason about; such targets are never deduplicated.
	CapabilityCustom
)

// runtimeFamilies maps runtime/method prefixes to a language family.
var runtimeFamilies = []struct {
	prefix string
	family string
}{
	{"python", "python"},
	{"nodejs", "nodejs"},
	{"ruby", "ruby"},
	{"go", "go"},
	{"java", "java"},
	{"dotnet", "dotnet"},
	{"rust", "rust"},
	{"provided", "provided"},
}

// manifestNames maps a language family to its dependency-manifest file name.
var manifestNames = map[string]string{
	"python": "requirements.txt",
	"nodejs": "package.json",
	"ruby":   "Gemfile",
	"go":     "go.mod",
	"java":   "pom.xml",
	"rust":   "Cargo.toml",
}

// incrementalFamilies lists families whose engines keep a separate
// dependency directory and can skip re-fetching when the manifest is
// unchanged.
var incrementalFamilies = map[string]bool{
	"python": true,
	"nodejs": true,
	"ruby":   true,
}

// sandboxFamilies lists families with a published sandbox build image.
var sandboxFamilies = map[string]bool{
	"python": true,
	"nodejs": true,
	"ruby":   true,
	"go":     true,
	"java":   true,
	"rust":   true,
}

// layerFamilies maps families that support shared dependency layers to the
// subfolder layout the platform expects inside a layer archive.
var layerFamilies = map[string]string{
	"python": "python",
	"nodejs": "nodejs/node_modules",
}

// MethodCapabilityOf classifies a build method string.
func MethodCapabilityOf(method string) MethodCapability {
	switch {
	case method == "esbuild":
		return CapabilityBundler
	case method == "makefile" || strings.HasPrefix(method, "custom"):
		return CapabilityCustom
	default:
		return CapabilityStandard
	}
}

// RuntimeFamily returns the language family of a runtime or build method,
// or "" when unknown.
func RuntimeFamily(method string) string {
	for _, rf := range runtimeFamilies {
		if strings.HasPrefix(method, rf.prefix) {
			return rf.family
		}
	}
	return ""
}

// SupportedRuntime reports whether the build subsystem knows the runtime at
// all. Unknown runtimes fail before any engine is invoked.
func SupportedRuntime(method string) bool {
	if MethodCapabilityOf(method) != CapabilityStandard {
		return true
	}
	return RuntimeFamily(method) != ""
}

// ManifestName returns the dependency-manifest file name for a build method,
// or "" when the family has none.
func ManifestName(method string) string {
	if MethodCapabilityOf(method) == CapabilityBundler {
		return manifestNames["nodejs"]
	}
	return manifestNames[RuntimeFamily(method)]
}

// IncrementalCapable reports whether a build method supports
// manifest-incremental dependency fetching.
func IncrementalCapable(method string) bool {
	if MethodCapabilityOf(method) != CapabilityStandard {
		return false
	}
	return incrementalFamilies[RuntimeFamily(method)]
}

// SandboxSupported reports whether a build method can run inside a sandbox
// container. The reason is human-readable and surfaced verbatim when the
// combination is rejected.
func SandboxSupported(method string) (bool, string) {
	if MethodCapabilityOf(method) == CapabilityCustom {
		return false, "user-defined build commands must run on the host"
	}
	family := RuntimeFamily(method)
	if family == "" {
		return false, "unknown runtime " + method
	}
	if !sandboxFamilies[family] {
		return false, "no sandbox build image published for " + family
	}
	return true, ""
}

// LayerLayout returns the in-layer subfolder layout for a runtime, and
// whether the runtime family supports shared dependency layers.
func LayerLayout(runtime string) (string, bool) {
	layout, ok := layerFamilies[RuntimeFamily(runtime)]
	return layout, ok
}
