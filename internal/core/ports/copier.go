package ports

// ArtifactCopier moves built artifact trees between workspace locations:
// cache restores, sibling fan-out, and dependency-layer extraction.
type ArtifactCopier interface {
	// CopyDir recursively copies src into dst, overwriting existing files.
	CopyDir(src, dst string) error

	// ReplaceDir removes dst and copies src in its place.
	ReplaceDir(src, dst string) error

	// MoveDir renames src to dst, falling back to copy-and-remove across
	// filesystems.
	MoveDir(src, dst string) error
}
