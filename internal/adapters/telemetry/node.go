package telemetry

import (
	"context"
	"os"

	"github.com/grindlemire/graft"
	"go.trai.ch/crate/internal/core/ports"
)

// NodeID is the unique identifier for the telemetry adapter node.
const NodeID graft.ID = "adapter.telemetry"

func init() {
	graft.Register(graft.Node[ports.Tracer]{
		ID:        NodeID,
		Cacheable: true,
		Run: func(_ context.Context) (ports.Tracer, error) {
			// The rendered progress tape takes over the terminal, so it is
			// opt-in.
			if os.Getenv("CRATE_PROGRESS") != "" {
				return NewRecorder(), nil
			}
			return NewNoOpTracer(), nil
		},
	})
}
