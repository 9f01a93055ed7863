package domain

import "go.trai.ch/zerr"

var (
	// ErrInvalidGraph is returned when a build definition is queried for
	// build parameters while it has no member targets.
	ErrInvalidGraph = zerr.New("build definition has no member targets")

	// ErrMissingBuildMethod is returned for a layer without a build method.
	ErrMissingBuildMethod = zerr.New("missing build method")

	// ErrUnsupportedRuntime is returned before any engine invocation when a
	// target declares a runtime the subsystem does not know.
	ErrUnsupportedRuntime = zerr.New("unsupported runtime")

	// ErrMissingImageMetadata is returned when an image-package target lacks
	// Dockerfile or context metadata.
	ErrMissingImageMetadata = zerr.New("missing image build metadata")

	// ErrMissingRuntime is returned when a function qualifying for the
	// dependency layer has no runtime set.
	ErrMissingRuntime = zerr.New("function runtime is not set")

	// ErrTargetNotFound is returned in single-resource mode when the named
	// target does not exist.
	ErrTargetNotFound = zerr.New("target not found")

	// ErrEngineFailure wraps errors raised by the external build engine.
	ErrEngineFailure = zerr.New("build engine failure")

	// ErrSandboxUnsupported is returned when a build method cannot run
	// inside a sandbox container.
	ErrSandboxUnsupported = zerr.New("container build not supported")

	// ErrSandboxCrash is returned when the sandbox exits without producing a
	// parseable response.
	ErrSandboxCrash = zerr.New("sandbox build crashed")

	// ErrSandboxUserError is returned when the sandboxed engine reports a
	// build error caused by the user's source or configuration.
	ErrSandboxUserError = zerr.New("build failed inside sandbox")

	// ErrProtocolMismatch is returned when the sandbox image speaks an
	// incompatible engine protocol version.
	ErrProtocolMismatch = zerr.New("sandbox image protocol mismatch")
)
