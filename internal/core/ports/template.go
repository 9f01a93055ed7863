package ports

import "go.trai.ch/crate/internal/core/domain"

// TemplateWriter rewrites the deployable application template after a build,
// pointing each resource at its produced artifact.
//
//go:generate go run go.uber.org/mock/mockgen -source=template.go -destination=mocks/mock_template.go -package=mocks
type TemplateWriter interface {
	// Write copies the template at srcPath to dstPath, replacing each built
	// target's source reference with its artifact location: a path for
	// archive targets, an image reference for image targets.
	Write(srcPath, dstPath string, artifacts domain.ArtifactMap, targets TargetProvider) error

	// WriteLayerStack emits the auxiliary stack fragment describing the
	// generated shared dependency layers.
	WriteLayerStack(dstPath string, layers []domain.GeneratedLayer) error
}
