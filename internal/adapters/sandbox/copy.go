package sandbox

import (
	"archive/tar"
	"context"
	"io"
	"os"
	"path/filepath"

	"go.trai.ch/zerr"
)

// MkdirAll creates a directory inside the container, including parents.
func (c *Container) MkdirAll(ctx context.Context, path string) error {
	return c.mustExec(ctx, "mkdir", nil, nil, "mkdir", "-p", path)
}

// CopyDirTo copies the contents of a host directory into destDir inside the
// container, creating destDir first. The transfer is a tar stream piped to
// "tar xf -" inside the container.
func (c *Container) CopyDirTo(ctx context.Context, hostDir, destDir string) error {
	if err := c.MkdirAll(ctx, destDir); err != nil {
		return err
	}

	pr, pw := io.Pipe()

	go func() {
		tw := tar.NewWriter(pw)
		err := writeDirToTar(tw, hostDir, ".")
		_ = tw.Close()
		pw.CloseWithError(err)
	}()

	return c.mustExec(ctx, "tar extract", pr, nil, "tar", "xf", "-", "-C", destDir)
}

// CopyFileTo copies a single host file into the container under destDir with
// the given name.
func (c *Container) CopyFileTo(ctx context.Context, hostPath, destDir, name string) error {
	if err := c.MkdirAll(ctx, destDir); err != nil {
		return err
	}

	pr, pw := io.Pipe()

	go func() {
		tw := tar.NewWriter(pw)
		err := writeFileToTar(tw, hostPath, name)
		_ = tw.Close()
		pw.CloseWithError(err)
	}()

	return c.mustExec(ctx, "tar extract", pr, nil, "tar", "xf", "-", "-C", destDir)
}

// CopyDirFrom copies the contents of a container directory into hostDir,
// which is created if missing. The container side archives with "tar cf - -C
// dir ." so the directory itself is not nested into the destination.
func (c *Container) CopyDirFrom(ctx context.Context, srcDir, hostDir string) error {
	if err := os.MkdirAll(hostDir, 0o750); err != nil {
		return zerr.Wrap(err, "failed to create host destination")
	}

	pr, pw := io.Pipe()

	errc := make(chan error, 1)
	go func() {
		errc <- c.mustExec(ctx, "tar archive", nil, pw, "tar", "cf", "-", "-C", srcDir, ".")
		_ = pw.Close()
	}()

	if err := extractTar(pr, hostDir); err != nil {
		return err
	}
	return <-errc
}

// mustExec runs a command inside the container, returning an error that
// includes desc if the process exits with a non-zero code.
func (c *Container) mustExec(ctx context.Context, desc string, stdin io.Reader, stdout io.Writer, args ...string) error {
	exitCode, err := c.execCommand(ctx, stdin, stdout, nil, nil, "", args...)
	if err != nil {
		return err
	}
	if exitCode != 0 {
		err := zerr.With(zerr.New(desc+" failed inside sandbox"), "exit_code", exitCode)
		return zerr.With(err, "container", c.id)
	}
	return nil
}

// writeFileToTar writes a single file to a tar writer with the given archive
// name.
func writeFileToTar(tw *tar.Writer, hostPath, name string) error {
	info, err := os.Stat(hostPath)
	if err != nil {
		return err
	}

	header, err := tar.FileInfoHeader(info, "")
	if err != nil {
		return err
	}
	header.Name = name

	if err := tw.WriteHeader(header); err != nil {
		return err
	}

	f, err := os.Open(hostPath) //nolint:gosec // path comes from the build plan
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = io.Copy(tw, f)
	return err
}

// writeDirToTar writes a directory tree to a tar writer rooted at the given
// archive prefix.
func writeDirToTar(tw *tar.Writer, hostDir, prefix string) error {
	return filepath.WalkDir(hostDir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}

		relPath, err := filepath.Rel(hostDir, path)
		if err != nil {
			return err
		}
		if relPath == "." {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}

		header, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return err
		}
		header.Name = filepath.ToSlash(filepath.Join(prefix, relPath))

		if err := tw.WriteHeader(header); err != nil {
			return err
		}

		if info.Mode().IsRegular() {
			f, err := os.Open(path) //nolint:gosec // path comes from the walked tree
			if err != nil {
				return err
			}
			defer f.Close()
			_, err = io.Copy(tw, f)
			return err
		}

		return nil
	})
}

// extractTar unpacks a tar stream into hostDir. Entries escaping the
// destination are rejected.
func extractTar(r io.Reader, hostDir string) error {
	tr := tar.NewReader(r)
	for {
		header, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return zerr.Wrap(err, "failed to read artifact archive")
		}

		target := filepath.Join(hostDir, filepath.Clean("/"+header.Name))

		switch header.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o750); err != nil {
				return zerr.Wrap(err, "failed to create artifact directory")
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0o750); err != nil {
				return zerr.Wrap(err, "failed to create artifact directory")
			}
			//nolint:gosec // target is confined to hostDir above
			f, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, os.FileMode(header.Mode)&0o777)
			if err != nil {
				return zerr.Wrap(err, "failed to create artifact file")
			}
			//nolint:gosec // archive is produced by our own tar invocation
			if _, err := io.Copy(f, tr); err != nil {
				_ = f.Close()
				return zerr.Wrap(err, "failed to extract artifact file")
			}
			if err := f.Close(); err != nil {
				return zerr.Wrap(err, "failed to finish artifact file")
			}
		default:
			// Symlinks and special files are skipped; build artifacts are
			// plain files and directories.
		}
	}
}
