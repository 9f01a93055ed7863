package fs

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	iofs "io/fs"
	"os"
	"path/filepath"

	"github.com/cespare/xxhash/v2"
	"go.trai.ch/crate/internal/core/ports"
	"go.trai.ch/zerr"
)

var _ ports.SourceHasher = (*Hasher)(nil)

// Hasher computes recursive directory hashes and single-file hashes for
// cache validity decisions.
type Hasher struct {
	walker *Walker
}

// NewHasher creates a new Hasher.
func NewHasher(walker *Walker) *Hasher {
	return &Hasher{walker: walker}
}

// HashDir computes a recursive content hash of the directory tree at root.
// File paths are hashed relative to root so the result is stable across
// checkouts at different locations. A missing or unreadable tree is an
// error: the hash gates cache validity and must never mistake an absent
// tree for an empty one.
func (h *Hasher) HashDir(root string) (string, error) {
	hasher := xxhash.New()

	for path, walkErr := range h.walker.WalkFiles(root, nil) {
		if walkErr != nil {
			return "", zerr.Wrap(walkErr, "failed to walk source tree")
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			rel = path
		}
		_, _ = hasher.WriteString(filepath.ToSlash(rel))
		_, _ = hasher.Write([]byte{0})

		fileHash, err := h.hashFileContent(path)
		if err != nil {
			return "", err
		}
		if err := binary.Write(hasher, binary.LittleEndian, fileHash); err != nil {
			return "", zerr.Wrap(err, "failed to write hash to digest")
		}
	}

	return fmt.Sprintf("%016x", hasher.Sum64()), nil
}

// HashFile computes the content hash of a single file. A missing file
// hashes to "" so callers can treat absence as "always changed".
func (h *Hasher) HashFile(path string) (string, error) {
	sum, err := h.hashFileContent(path)
	if err != nil {
		if errors.Is(err, iofs.ErrNotExist) {
			return "", nil
		}
		return "", err
	}
	return fmt.Sprintf("%016x", sum), nil
}

func (h *Hasher) hashFileContent(path string) (uint64, error) {
	f, err := os.Open(path) //nolint:gosec // Path is controlled by caller
	if err != nil {
		if errors.Is(err, iofs.ErrNotExist) {
			return 0, err
		}
		return 0, zerr.With(zerr.Wrap(err, "failed to open file"), "path", path)
	}
	defer f.Close() //nolint:errcheck // Best effort close in defer

	hasher := xxhash.New()
	if _, err := io.Copy(hasher, f); err != nil {
		return 0, zerr.With(zerr.Wrap(err, "failed to hash file content"), "path", path)
	}

	return hasher.Sum64(), nil
}
