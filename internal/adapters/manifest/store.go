// Package manifest implements the build-manifest file store: the persisted
// record of build definitions and their hashes across process invocations.
package manifest

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"go.trai.ch/crate/internal/core/domain"
	"go.trai.ch/crate/internal/core/ports"
	"go.trai.ch/zerr"
)

var _ ports.GraphStore = (*Store)(nil)

// storedDefinition is the on-disk shape of one build definition. Member
// targets are stored by name only; full target bodies come from the
// provider on every run.
type storedDefinition struct {
	Method             string            `json:"method"`
	CodeDir            string            `json:"code_dir"`
	PackageType        string            `json:"package_type"`
	Architecture       string            `json:"architecture,omitempty"`
	Handler            string            `json:"handler,omitempty"`
	OwnerPath          string            `json:"owner_path,omitempty"`
	Metadata           map[string]string `json:"metadata,omitempty"`
	Env                map[string]string `json:"env,omitempty"`
	CompatibleRuntimes []string          `json:"compatible_runtimes,omitempty"`
	Targets            []string          `json:"targets"`
	SourceHash         string            `json:"source_hash,omitempty"`
	ManifestHash       string            `json:"manifest_hash,omitempty"`
}

// manifestFile is the top-level document, keyed by definition identity token.
type manifestFile struct {
	FunctionDefinitions map[string]storedDefinition `json:"function_build_definitions"`
	LayerDefinitions    map[string]storedDefinition `json:"layer_build_definitions"`
}

// Store implements ports.GraphStore using a flat JSON file located next to
// the build output directory.
type Store struct {
	path string
	mu   sync.Mutex
}

// NewStore creates a store backed by the file at the given path.
func NewStore(path string) *Store {
	return &Store{path: filepath.Clean(path)}
}

// Load re-hydrates persisted definitions with empty target lists. A missing
// or unreadable file means no prior cache, never an error.
func (s *Store) Load() ([]*domain.FunctionDefinition, []*domain.LayerDefinition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.read()
	if err != nil {
		return nil, nil, nil
	}

	functions := make([]*domain.FunctionDefinition, 0, len(doc.FunctionDefinitions))
	for _, stored := range doc.FunctionDefinitions {
		functions = append(functions, domain.RestoreFunctionDefinition(
			stored.fingerprint(), stored.SourceHash, stored.ManifestHash))
	}

	layers := make([]*domain.LayerDefinition, 0, len(doc.LayerDefinitions))
	for _, stored := range doc.LayerDefinitions {
		layers = append(layers, domain.RestoreLayerDefinition(
			stored.fingerprint(), stored.SourceHash, stored.ManifestHash))
	}

	return functions, layers, nil
}

// Persist replaces the manifest with the graph's surviving definitions.
func (s *Store) Persist(g *domain.Graph) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc := manifestFile{
		FunctionDefinitions: make(map[string]storedDefinition),
		LayerDefinitions:    make(map[string]storedDefinition),
	}

	for _, def := range g.FunctionDefinitions() {
		stored := fromFingerprint(def.Fingerprint(), def.SourceHash, def.ManifestHash)
		for _, fn := range def.Functions {
			stored.Targets = append(stored.Targets, fn.Name)
		}
		doc.FunctionDefinitions[def.Token()] = stored
	}

	for _, def := range g.LayerDefinitions() {
		stored := fromFingerprint(def.Fingerprint(), def.SourceHash, def.ManifestHash)
		for _, l := range def.Layers {
			stored.Targets = append(stored.Targets, l.Name)
			stored.CompatibleRuntimes = l.CompatibleRuntimes
		}
		doc.LayerDefinitions[def.Token()] = stored
	}

	return s.write(&doc)
}

// UpdateHashes patches the hash fields of definitions the manifest already
// records and inserts the graph's definitions it has never seen. Other
// entries are left untouched, so a single-target run still caches its
// definition without evicting the rest.
func (s *Store) UpdateHashes(g *domain.Graph, sourceHashes, manifestHashes map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.read()
	if err != nil {
		// Nothing persisted yet; start an empty manifest.
		doc = &manifestFile{
			FunctionDefinitions: make(map[string]storedDefinition),
			LayerDefinitions:    make(map[string]storedDefinition),
		}
	}

	for _, def := range g.FunctionDefinitions() {
		if _, ok := doc.FunctionDefinitions[def.Token()]; ok {
			continue
		}
		stored := fromFingerprint(def.Fingerprint(), "", "")
		for _, fn := range def.Functions {
			stored.Targets = append(stored.Targets, fn.Name)
		}
		doc.FunctionDefinitions[def.Token()] = stored
	}
	for _, def := range g.LayerDefinitions() {
		if _, ok := doc.LayerDefinitions[def.Token()]; ok {
			continue
		}
		stored := fromFingerprint(def.Fingerprint(), "", "")
		for _, l := range def.Layers {
			stored.Targets = append(stored.Targets, l.Name)
			stored.CompatibleRuntimes = l.CompatibleRuntimes
		}
		doc.LayerDefinitions[def.Token()] = stored
	}

	patch := func(table map[string]storedDefinition) {
		for token, stored := range table {
			if h, ok := sourceHashes[token]; ok {
				stored.SourceHash = h
			}
			if h, ok := manifestHashes[token]; ok {
				stored.ManifestHash = h
			}
			table[token] = stored
		}
	}
	patch(doc.FunctionDefinitions)
	patch(doc.LayerDefinitions)

	return s.write(doc)
}

func (s *Store) read() (*manifestFile, error) {
	//nolint:gosec // Path is cleaned and provided by trusted caller
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, zerr.Wrap(err, "failed to read build manifest")
		}
		return nil, err
	}

	var doc manifestFile
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, zerr.Wrap(err, "failed to unmarshal build manifest")
	}
	if doc.FunctionDefinitions == nil {
		doc.FunctionDefinitions = make(map[string]storedDefinition)
	}
	if doc.LayerDefinitions == nil {
		doc.LayerDefinitions = make(map[string]storedDefinition)
	}
	return &doc, nil
}

func (s *Store) write(doc *manifestFile) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return zerr.Wrap(err, "failed to marshal build manifest")
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o750); err != nil {
		return zerr.Wrap(err, "failed to create directory for build manifest")
	}

	//nolint:gosec // Path is cleaned and provided by trusted caller
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return zerr.Wrap(err, "failed to write build manifest")
	}

	return nil
}

func (d storedDefinition) fingerprint() domain.Fingerprint {
	return domain.Fingerprint{
		Method:       d.Method,
		CodeDir:      d.CodeDir,
		PackageType:  domain.PackageType(d.PackageType),
		Architecture: d.Architecture,
		Handler:      d.Handler,
		OwnerPath:    d.OwnerPath,
		Metadata:     d.Metadata,
		Env:          d.Env,
	}
}

func fromFingerprint(fp domain.Fingerprint, sourceHash, manifestHash string) storedDefinition {
	return storedDefinition{
		Method:       fp.Method,
		CodeDir:      fp.CodeDir,
		PackageType:  string(fp.PackageType),
		Architecture: fp.Architecture,
		Handler:      fp.Handler,
		OwnerPath:    fp.OwnerPath,
		Metadata:     fp.Metadata,
		Env:          fp.Env,
		SourceHash:   sourceHash,
		ManifestHash: manifestHash,
	}
}
