package domain

import (
	"fmt"
	"maps"
	"sort"

	"github.com/cespare/xxhash/v2"
)

// Metadata keys that are bookkeeping noise and must not influence
// fingerprint equality. They are stripped once at construction.
var volatileMetadataKeys = map[string]bool{
	"normalized": true,
	"resourceId": true,
	"skipBuild":  true,
}

// Fingerprint is the canonical, pre-normalized identity of a build recipe.
// Two targets whose fingerprints are equal share one build definition.
type Fingerprint struct {
	Method       string
	CodeDir      string
	PackageType  PackageType
	Architecture string

	// Handler is set only for bundler-class methods, where each entry point
	// produces a distinct bundle.
	Handler string

	// OwnerPath is set only for custom-command methods, so that no two
	// targets ever compare equal.
	OwnerPath string

	Metadata map[string]string
	Env      map[string]string
}

// NewFunctionFingerprint derives the fingerprint for a function target.
func NewFunctionFingerprint(f *Function) Fingerprint {
	fp := Fingerprint{
		Method:       f.BuildMethod(),
		CodeDir:      f.CodeDir,
		PackageType:  f.PackageType,
		Architecture: f.Architecture,
		Metadata:     normalizeMetadata(f.Metadata),
		Env:          maps.Clone(f.Env),
	}
	switch MethodCapabilityOf(fp.Method) {
	case CapabilityBundler:
		fp.Handler = f.Handler
	case CapabilityCustom:
		fp.OwnerPath = f.FullPath
	}
	return fp
}

// NewLayerFingerprint derives the fingerprint for a layer target.
func NewLayerFingerprint(l *Layer) Fingerprint {
	fp := Fingerprint{
		Method:       l.BuildMethod(),
		CodeDir:      l.CodeDir,
		PackageType:  l.PackageType,
		Architecture: l.Architecture,
		Metadata:     normalizeMetadata(l.Metadata),
		Env:          maps.Clone(l.Env),
	}
	if MethodCapabilityOf(fp.Method) == CapabilityCustom {
		fp.OwnerPath = l.FullPath
	}
	return fp
}

// Equal reports structural equality of two fingerprints.
func (fp Fingerprint) Equal(other Fingerprint) bool {
	return fp.Method == other.Method &&
		fp.CodeDir == other.CodeDir &&
		fp.PackageType == other.PackageType &&
		fp.Architecture == other.Architecture &&
		fp.Handler == other.Handler &&
		fp.OwnerPath == other.OwnerPath &&
		maps.Equal(fp.Metadata, other.Metadata) &&
		maps.Equal(fp.Env, other.Env)
}

// Token returns the definition identity token: the hex digest of the
// canonical fingerprint serialization. Equal fingerprints re-derive equal
// tokens across process invocations, which is what lets a persisted manifest
// entry re-associate with freshly read targets.
func (fp Fingerprint) Token() string {
	h := xxhash.New()

	writeField := func(s string) {
		_, _ = h.WriteString(s)
		_, _ = h.Write([]byte{0})
	}

	writeField(fp.Method)
	writeField(fp.CodeDir)
	writeField(string(fp.PackageType))
	writeField(fp.Architecture)
	writeField(fp.Handler)
	writeField(fp.OwnerPath)
	writeMap(h, fp.Metadata)
	writeMap(h, fp.Env)

	return fmt.Sprintf("%016x", h.Sum64())
}

// writeMap hashes a string map in deterministic key order.
func writeMap(h *xxhash.Digest, m map[string]string) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		_, _ = h.WriteString(k)
		_, _ = h.Write([]byte{'='})
		_, _ = h.WriteString(m[k])
		_, _ = h.Write([]byte{0})
	}
	_, _ = h.Write([]byte{0})
}

// normalizeMetadata strips volatile bookkeeping keys, returning nil for an
// empty result so map equality treats absent and empty alike.
func normalizeMetadata(md map[string]string) map[string]string {
	if len(md) == 0 {
		return nil
	}
	out := make(map[string]string, len(md))
	for k, v := range md {
		if volatileMetadataKeys[k] {
			continue
		}
		out[k] = v
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
