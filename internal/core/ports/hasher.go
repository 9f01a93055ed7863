package ports

// SourceHasher computes content hashes used for cache validity decisions.
//
//go:generate go run go.uber.org/mock/mockgen -source=hasher.go -destination=mocks/mock_hasher.go -package=mocks
type SourceHasher interface {
	// HashDir computes a recursive content hash of a directory tree.
	HashDir(root string) (string, error)

	// HashFile computes the content hash of a single file. A missing file
	// hashes to the empty string without error, so callers can treat
	// "no manifest" as "always changed".
	HashFile(path string) (string, error)
}
