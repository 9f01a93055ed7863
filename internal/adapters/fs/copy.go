package fs

import (
	"io"
	"os"
	"path/filepath"

	"go.trai.ch/zerr"
)

// Copier implements ports.ArtifactCopier on the local filesystem.
type Copier struct{}

// NewCopier creates a filesystem artifact copier.
func NewCopier() *Copier { return &Copier{} }

// CopyDir recursively copies src into dst.
func (*Copier) CopyDir(src, dst string) error { return CopyDir(src, dst) }

// ReplaceDir removes dst and copies src in its place.
func (*Copier) ReplaceDir(src, dst string) error { return ReplaceDir(src, dst) }

// MoveDir relocates src to dst.
func (*Copier) MoveDir(src, dst string) error { return MoveDir(src, dst) }

// CopyDir replicates the contents of src into dst, creating dst if needed.
// Existing files in dst are overwritten; extra files are left in place.
// Symlinks are followed, matching how artifact trees are materialized.
func CopyDir(src, dst string) error {
	if err := os.MkdirAll(dst, 0o750); err != nil {
		return zerr.With(zerr.Wrap(err, "failed to create destination"), "path", dst)
	}

	entries, err := os.ReadDir(src)
	if err != nil {
		return zerr.With(zerr.Wrap(err, "failed to read source directory"), "path", src)
	}

	for _, entry := range entries {
		srcPath := filepath.Join(src, entry.Name())
		dstPath := filepath.Join(dst, entry.Name())

		info, err := os.Stat(srcPath)
		if err != nil {
			return zerr.With(zerr.Wrap(err, "failed to stat source entry"), "path", srcPath)
		}

		if info.IsDir() {
			if err := CopyDir(srcPath, dstPath); err != nil {
				return err
			}
			continue
		}

		if err := copyFile(srcPath, dstPath, info.Mode()); err != nil {
			return err
		}
	}

	return nil
}

// ReplaceDir atomically-ish replaces the contents of dst with those of src:
// the old tree is removed first, then src is copied in.
func ReplaceDir(src, dst string) error {
	if err := os.RemoveAll(dst); err != nil {
		return zerr.With(zerr.Wrap(err, "failed to clear destination"), "path", dst)
	}
	return CopyDir(src, dst)
}

// MoveDir relocates src to dst, falling back to copy-and-remove when the
// two live on different filesystems.
func MoveDir(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o750); err != nil {
		return zerr.With(zerr.Wrap(err, "failed to create destination parent"), "path", dst)
	}
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	if err := CopyDir(src, dst); err != nil {
		return err
	}
	return os.RemoveAll(src)
}

func copyFile(src, dst string, mode os.FileMode) error {
	in, err := os.Open(src) //nolint:gosec // Path is controlled by caller
	if err != nil {
		return zerr.With(zerr.Wrap(err, "failed to open source file"), "path", src)
	}
	defer in.Close() //nolint:errcheck // Best effort close in defer

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode) //nolint:gosec // Path is controlled by caller
	if err != nil {
		return zerr.With(zerr.Wrap(err, "failed to create destination file"), "path", dst)
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close() //nolint:errcheck,gosec // Copy error takes precedence
		return zerr.With(zerr.Wrap(err, "failed to copy file"), "path", dst)
	}

	return out.Close()
}
