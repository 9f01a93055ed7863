package telemetry

import (
	"context"
	"io"

	"github.com/opencontainers/go-digest"
	"github.com/vito/progrock"
	"go.trai.ch/crate/internal/core/ports"
)

// Recorder implements ports.Tracer using the progrock library, rendering one
// vertex per build definition.
type Recorder struct {
	w   progrock.Writer
	rec *progrock.Recorder
}

// NewRecorder creates a Recorder with a default tape.
func NewRecorder() *Recorder {
	return NewRecorderWithWriter(progrock.NewTape())
}

// NewRecorderWithWriter creates a Recorder with the given writer.
func NewRecorderWithWriter(w progrock.Writer) *Recorder {
	return &Recorder{
		w:   w,
		rec: progrock.NewRecorder(w),
	}
}

// Start begins recording a new vertex named by the unit of work.
func (r *Recorder) Start(ctx context.Context, name string) (context.Context, ports.Span) {
	d := digest.FromString(name)
	v := r.rec.Vertex(d, name)
	return ctx, &vertexSpan{vertex: v}
}

// EmitPlan records the set of scheduled definitions as a group of pending
// vertices so the renderer shows the whole plan up front.
func (r *Recorder) EmitPlan(_ context.Context, names []string) {
	for _, name := range names {
		r.rec.Vertex(digest.FromString(name), name)
	}
}

// Close flushes and closes the recording session.
func (r *Recorder) Close() error {
	if c, ok := r.w.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}

// vertexSpan implements ports.Span wrapping *progrock.VertexRecorder.
type vertexSpan struct {
	vertex *progrock.VertexRecorder
}

// Write forwards engine output to the vertex's stdout stream.
func (s *vertexSpan) Write(p []byte) (int, error) {
	return s.vertex.Stdout().Write(p)
}

// End marks the vertex as finished, recording err when non-nil.
func (s *vertexSpan) End(err error) {
	s.vertex.Done(err)
}

// Cached marks the vertex as a cache hit.
func (s *vertexSpan) Cached() {
	s.vertex.Cached()
}

var _ ports.Tracer = (*Recorder)(nil)
var _ io.Writer = (*vertexSpan)(nil)
