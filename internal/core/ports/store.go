package ports

import "go.trai.ch/crate/internal/core/domain"

// GraphStore persists build definitions across process invocations. The
// lifecycle is explicit: Load at startup, Persist or UpdateHashes at
// teardown, never during the parallel build phase.
//
//go:generate go run go.uber.org/mock/mockgen -source=store.go -destination=mocks/mock_store.go -package=mocks
type GraphStore interface {
	// Load re-hydrates persisted definitions with empty target lists. A
	// missing or unreadable manifest file is not an error; it means no
	// prior cache.
	Load() ([]*domain.FunctionDefinition, []*domain.LayerDefinition, error)

	// Persist serializes all definitions currently in the graph, including
	// member target names and hashes, replacing the previous manifest.
	Persist(g *domain.Graph) error

	// UpdateHashes upserts hash records for the graph's definitions: hash
	// fields of known tokens are patched in place, definitions the manifest
	// has never seen are inserted whole. Unlike Persist it never drops
	// other entries, so a partial-graph run cannot evict them.
	UpdateHashes(g *domain.Graph, sourceHashes, manifestHashes map[string]string) error
}
