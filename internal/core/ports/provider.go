package ports

import "go.trai.ch/crate/internal/core/domain"

// TargetProvider yields the normalized build targets of the application
// being packaged. It is an external collaborator: parsing the declarative
// application template is out of scope for the build subsystem.
//
// Providers must mark targets that are pre-packaged archives or explicitly
// flagged skip-build, so the orchestrator excludes them from the graph.
//
//go:generate go run go.uber.org/mock/mockgen -source=provider.go -destination=mocks/mock_provider.go -package=mocks
type TargetProvider interface {
	// Functions returns all function targets.
	Functions() []*domain.Function

	// Layers returns all layer targets.
	Layers() []*domain.Layer

	// Function returns the named function target, or nil when absent.
	Function(name string) *domain.Function

	// Layer returns the named layer target, or nil when absent.
	Layer(name string) *domain.Layer
}
