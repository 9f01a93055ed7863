package ports

import (
	"context"
	"io"
)

//go:generate go run go.uber.org/mock/mockgen -source=telemetry.go -destination=mocks/mock_telemetry.go -package=mocks

// Tracer is the entry point for recording per-definition build progress.
type Tracer interface {
	// Start begins a new span for one unit of work.
	Start(ctx context.Context, name string) (context.Context, Span)

	// EmitPlan signals the set of definitions scheduled for this run.
	EmitPlan(ctx context.Context, names []string)

	// Close flushes and closes the recording session.
	Close() error
}

// Span represents one unit of work. Writes carry engine log output.
type Span interface {
	io.Writer

	// End completes the span, recording err when non-nil.
	End(err error)

	// Cached marks the span's work as skipped due to a cache hit.
	Cached()
}
