package fs

import (
	"context"

	"github.com/grindlemire/graft"
	"go.trai.ch/crate/internal/core/ports"
)

// NodeID is the unique identifier for the source hasher Graft node.
const NodeID graft.ID = "adapter.source_hasher"

// CopierNodeID is the unique identifier for the artifact copier Graft node.
const CopierNodeID graft.ID = "adapter.artifact_copier"

func init() {
	graft.Register(graft.Node[ports.SourceHasher]{
		ID:        NodeID,
		Cacheable: true,
		Run: func(_ context.Context) (ports.SourceHasher, error) {
			return NewHasher(NewWalker()), nil
		},
	})

	graft.Register(graft.Node[ports.ArtifactCopier]{
		ID:        CopierNodeID,
		Cacheable: true,
		Run: func(_ context.Context) (ports.ArtifactCopier, error) {
			return NewCopier(), nil
		},
	})
}
