// Package sandbox runs build engine invocations inside containers, isolating
// the language tooling from the host.
package sandbox

import (
	"context"
	"os"
	goruntime "runtime"

	containerd "github.com/containerd/containerd/v2/client"
	"github.com/containerd/containerd/v2/core/images"
	"github.com/containerd/errdefs"
	"github.com/containerd/platforms"
	"go.trai.ch/zerr"
)

const (

	// DefaultAddress is the containerd socket used when none is configured.
	DefaultAddress = "/run/containerd/containerd.sock"

	// DefaultNamespace scopes all containerd operations for this tool.
	DefaultNamespace = "crate"

	// Snapshotter used for container filesystems. fuse-overlayfs provides
	// overlay semantics without requiring root privileges, allowing builds to
	// run as a regular user.
	snapshotter = "fuse-overlayfs"

	// OCI runtime shim for running containers.
	ociRuntime = "io.containerd.runc.v2"
)

var errSandboxRuntime = zerr.New("sandbox runtime error")

// Runtime manages the containerd client and provides image and container
// operations for build sandboxes.
type Runtime struct {
	client *containerd.Client
}

// NewRuntime connects to the containerd socket at the given address. The
// namespace scopes all operations; the runtime must be closed when no longer
// needed.
func NewRuntime(address, namespace string) (*Runtime, error) {
	client, err := containerd.New(address, containerd.WithDefaultNamespace(namespace))
	if err != nil {
		return nil, zerr.Wrap(err, errSandboxRuntime.Error())
	}
	return &Runtime{client: client}, nil
}

// Close closes the containerd client connection.
func (rt *Runtime) Close() error {
	return rt.client.Close()
}

// StartContainer starts a build container from a previously pulled image tag.
// Any stale container with the same ID is cleaned up first. The container
// runs detached with a long-running task so Exec calls have a running process
// to attach to.
func (rt *Runtime) StartContainer(ctx context.Context, tag, id string) (*Container, error) {
	platform := defaultPlatform()

	c := &Container{
		client:   rt.client,
		id:       id,
		platform: platform,
	}

	c.remove(ctx)

	image, err := rt.resolveImage(ctx, tag, platform)
	if err != nil {
		return nil, zerr.Wrap(err, errSandboxRuntime.Error())
	}

	ctr, err := c.create(ctx, image)
	if err != nil {
		return nil, zerr.Wrap(err, errSandboxRuntime.Error())
	}

	if err := c.startTask(ctx, ctr); err != nil {
		_ = ctr.Delete(ctx, containerd.WithSnapshotCleanup)
		return nil, zerr.Wrap(err, errSandboxRuntime.Error())
	}

	return c, nil
}

// EnsureImage verifies the tag is present and unpacked for the host platform.
func (rt *Runtime) EnsureImage(ctx context.Context, tag string) error {
	image, err := rt.resolveImage(ctx, tag, defaultPlatform())
	if err != nil {
		if errdefs.IsNotFound(err) {
			return zerr.With(zerr.New("sandbox image not found"), "image", tag)
		}
		return zerr.Wrap(err, errSandboxRuntime.Error())
	}

	if err := image.Unpack(ctx, snapshotter); err != nil {
		return zerr.Wrap(err, errSandboxRuntime.Error())
	}
	return nil
}

// ImportImage imports an OCI archive into the content store, tags it, and
// unpacks it for the host platform. The archive must contain exactly one
// image.
func (rt *Runtime) ImportImage(ctx context.Context, path, tag string) error {
	source, err := rt.importArchive(ctx, path)
	if err != nil {
		return zerr.Wrap(err, errSandboxRuntime.Error())
	}

	if err := rt.tagImage(ctx, source, tag); err != nil {
		return zerr.Wrap(err, errSandboxRuntime.Error())
	}

	return rt.EnsureImage(ctx, tag)
}

func (rt *Runtime) importArchive(ctx context.Context, path string) (images.Image, error) {
	fh, err := os.Open(path) //nolint:gosec // path is provided by user
	if err != nil {
		return images.Image{}, err
	}
	defer fh.Close()

	imported, err := rt.client.Import(ctx, fh)
	if err != nil {
		return images.Image{}, err
	}

	// Import returns one record per image in the archive's index.json. A
	// multi-platform archive still has a single entry; platform selection
	// happens later via resolveImage.
	if len(imported) == 0 {
		return images.Image{}, zerr.New("image archive is empty")
	} else if len(imported) > 1 {
		return images.Image{}, zerr.New("image archive contains multiple images")
	}

	return imported[0], nil
}

// tagImage tags an imported image under a deterministic name, updating the
// tag if it already exists.
func (rt *Runtime) tagImage(ctx context.Context, source images.Image, tag string) error {
	is := rt.client.ImageService()

	img := images.Image{
		Name:   tag,
		Target: source.Target,
	}

	if _, err := is.Create(ctx, img); err != nil {
		if !errdefs.IsAlreadyExists(err) {
			return err
		}
		if _, err := is.Update(ctx, img, "target"); err != nil {
			return err
		}
	}

	if source.Name != tag {
		_ = is.Delete(ctx, source.Name)
	}

	return nil
}

// resolveImage looks up a tagged image and selects the manifest for the given
// platform.
func (rt *Runtime) resolveImage(ctx context.Context, tag, platform string) (containerd.Image, error) {
	p, err := platforms.Parse(platform)
	if err != nil {
		return nil, err
	}

	img, err := rt.client.ImageService().Get(ctx, tag)
	if err != nil {
		return nil, err
	}

	return containerd.NewImageWithPlatform(rt.client, img, platforms.Only(p)), nil
}

func defaultPlatform() string {
	return "linux/" + goruntime.GOARCH
}
