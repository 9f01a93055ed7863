package domain

import "go.trai.ch/zerr"

// definition holds the state shared by function and layer build definitions:
// the immutable fingerprint and identity token, plus the two mutable hashes
// recorded after successful builds.
type definition struct {
	fp    Fingerprint
	token string

	// SourceHash is the recursive content hash of the source directory as of
	// the last successful build.
	SourceHash string

	// ManifestHash is the hash of the dependency-manifest file as of the
	// last successful dependency fetch.
	ManifestHash string

	// DependenciesDir is the side-channel path of the resolved dependency
	// directory, set by the strategy that populated it.
	DependenciesDir string
}

// Fingerprint returns the definition's canonical fingerprint.
func (d *definition) Fingerprint() Fingerprint { return d.fp }

// Token returns the definition's identity token, used as its cache and
// directory key.
func (d *definition) Token() string { return d.token }

// Method returns the build method shared by all member targets.
func (d *definition) Method() string { return d.fp.Method }

// CodeDir returns the source directory shared by all member targets.
func (d *definition) CodeDir() string { return d.fp.CodeDir }

// PackageType returns the package type shared by all member targets.
func (d *definition) PackageType() PackageType { return d.fp.PackageType }

// Architecture returns the CPU architecture shared by all member targets.
func (d *definition) Architecture() string { return d.fp.Architecture }

// Env returns the environment overrides shared by all member targets.
func (d *definition) Env() map[string]string { return d.fp.Env }

// Metadata returns the normalized metadata shared by all member targets.
func (d *definition) Metadata() map[string]string { return d.fp.Metadata }

// FunctionDefinition is the deduplicated build recipe for one or more
// function targets sharing a fingerprint.
type FunctionDefinition struct {
	definition
	Functions []*Function
}

// NewFunctionDefinition creates a definition seeded with its first member.
func NewFunctionDefinition(f *Function) *FunctionDefinition {
	fp := NewFunctionFingerprint(f)
	return &FunctionDefinition{
		definition: definition{fp: fp, token: fp.Token()},
		Functions:  []*Function{f},
	}
}

// RestoreFunctionDefinition re-hydrates a persisted definition with an empty
// member list; targets are re-associated by the graph on the next run.
func RestoreFunctionDefinition(fp Fingerprint, sourceHash, manifestHash string) *FunctionDefinition {
	return &FunctionDefinition{
		definition: definition{
			fp:           fp,
			token:        fp.Token(),
			SourceHash:   sourceHash,
			ManifestHash: manifestHash,
		},
	}
}

// Append adds a target to the definition. Adding the same target twice is a
// no-op, keeping graph insertion idempotent.
func (d *FunctionDefinition) Append(f *Function) {
	for _, existing := range d.Functions {
		if existing.Name == f.Name {
			return
		}
	}
	d.Functions = append(d.Functions, f)
}

// HasTargets reports whether any live target references this definition.
func (d *FunctionDefinition) HasTargets() bool { return len(d.Functions) > 0 }

// Representative returns the member target whose parameters drive the single
// physical build. Querying an empty definition is an invariant violation.
func (d *FunctionDefinition) Representative() (*Function, error) {
	if len(d.Functions) == 0 {
		return nil, zerr.With(ErrInvalidGraph, "token", d.token)
	}
	return d.Functions[0], nil
}

// Handler returns the handler string used for bundler-class builds.
func (d *FunctionDefinition) Handler() (string, error) {
	rep, err := d.Representative()
	if err != nil {
		return "", err
	}
	return rep.Handler, nil
}

// LayerDefinition is the deduplicated build recipe for one or more layer
// targets sharing a fingerprint.
type LayerDefinition struct {
	definition
	Layers []*Layer
}

// NewLayerDefinition creates a definition seeded with its first member.
func NewLayerDefinition(l *Layer) *LayerDefinition {
	fp := NewLayerFingerprint(l)
	return &LayerDefinition{
		definition: definition{fp: fp, token: fp.Token()},
		Layers:     []*Layer{l},
	}
}

// RestoreLayerDefinition re-hydrates a persisted layer definition with an
// empty member list.
func RestoreLayerDefinition(fp Fingerprint, sourceHash, manifestHash string) *LayerDefinition {
	return &LayerDefinition{
		definition: definition{
			fp:           fp,
			token:        fp.Token(),
			SourceHash:   sourceHash,
			ManifestHash: manifestHash,
		},
	}
}

// Append adds a target to the definition, idempotently.
func (d *LayerDefinition) Append(l *Layer) {
	for _, existing := range d.Layers {
		if existing.Name == l.Name {
			return
		}
	}
	d.Layers = append(d.Layers, l)
}

// HasTargets reports whether any live target references this definition.
func (d *LayerDefinition) HasTargets() bool { return len(d.Layers) > 0 }

// Representative returns the member target whose parameters drive the single
// physical build.
func (d *LayerDefinition) Representative() (*Layer, error) {
	if len(d.Layers) == 0 {
		return nil, zerr.With(ErrInvalidGraph, "token", d.token)
	}
	return d.Layers[0], nil
}

// CompatibleRuntimes returns the compatible-runtimes list of the
// representative layer.
func (d *LayerDefinition) CompatibleRuntimes() ([]string, error) {
	rep, err := d.Representative()
	if err != nil {
		return nil, err
	}
	return rep.CompatibleRuntimes, nil
}
