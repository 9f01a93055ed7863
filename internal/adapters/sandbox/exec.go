package sandbox

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync/atomic"

	containerd "github.com/containerd/containerd/v2/client"
	"github.com/containerd/containerd/v2/pkg/cio"
	specs "github.com/opencontainers/runtime-spec/specs-go"
	"go.trai.ch/zerr"
)

// Sequence counter for generating unique exec process identifiers.
var execSeq uint64

func nextExecID() string {
	return fmt.Sprintf("exec-%d", atomic.AddUint64(&execSeq, 1))
}

// buildProcessSpec builds an OCI process spec for running a command inside
// the container. The base values are copied from the container's own spec,
// then env and workdir are overridden when provided.
func (c *Container) buildProcessSpec(ctx context.Context, env []string, workdir string, args ...string) (*specs.Process, error) {
	ctr, err := c.client.LoadContainer(ctx, c.id)
	if err != nil {
		return nil, err
	}

	spec, err := ctr.Spec(ctx)
	if err != nil {
		return nil, err
	}

	pspec := *spec.Process
	pspec.Terminal = false
	pspec.Args = args

	if len(env) > 0 {
		pspec.Env = mergeEnv(pspec.Env, env)
	}
	if workdir != "" {
		pspec.Cwd = workdir
	}

	return &pspec, nil
}

// mergeEnv overlays override env vars on top of a base env slice.
func mergeEnv(base, overrides []string) []string {
	merged := make(map[string]string, len(base)+len(overrides))
	for _, entry := range base {
		if k, v, ok := strings.Cut(entry, "="); ok {
			merged[k] = v
		}
	}
	for _, entry := range overrides {
		if k, v, ok := strings.Cut(entry, "="); ok {
			merged[k] = v
		}
	}

	result := make([]string, 0, len(merged))
	for k, v := range merged {
		result = append(result, k+"="+v)
	}
	return result
}

// execCommand runs a command inside the container, returning the exit code.
// A non-zero exit code is not treated as an error; the caller decides.
func (c *Container) execCommand(ctx context.Context, stdin io.Reader, stdout, stderr io.Writer, env []string, workdir string, args ...string) (int, error) {
	pspec, err := c.buildProcessSpec(ctx, env, workdir, args...)
	if err != nil {
		return 0, zerr.Wrap(err, errSandboxRuntime.Error())
	}

	return c.execProcess(ctx, pspec, stdin, stdout, stderr)
}

// execProcess starts a process inside the container's running task, waits for
// it to exit, and returns the exit code.
//
// The process is attached to the task as an additional exec, not as the
// primary process, so the task must already be running. When stdin is
// provided, the container's stdin is explicitly closed after the reader
// returns EOF so the exec process receives the EOF signal; the containerd
// shim holds both ends of the stdin FIFO open and will not propagate EOF on
// its own.
func (c *Container) execProcess(ctx context.Context, pspec *specs.Process, stdin io.Reader, stdout, stderr io.Writer) (int, error) {
	task, err := c.loadTask(ctx)
	if err != nil {
		return 0, zerr.Wrap(err, errSandboxRuntime.Error())
	}

	if stdout == nil {
		stdout = io.Discard
	}
	if stderr == nil {
		stderr = io.Discard
	}

	var stdinDone <-chan struct{}
	if stdin != nil {
		dr := newDoneReader(stdin)
		stdin = dr
		stdinDone = dr.done
	}

	process, err := task.Exec(ctx, nextExecID(), pspec, cio.NewCreator(
		cio.WithStreams(stdin, stdout, stderr),
	))
	if err != nil {
		return 0, zerr.Wrap(err, errSandboxRuntime.Error())
	}

	return awaitProcess(ctx, process, stdinDone)
}

// awaitProcess starts the exec process, blocks until it exits, and returns
// the exit code. The process is always deleted before returning.
func awaitProcess(ctx context.Context, process containerd.Process, stdinDone <-chan struct{}) (int, error) {
	statusC, err := process.Wait(ctx)
	if err != nil {
		_, _ = process.Delete(ctx)
		return 0, zerr.Wrap(err, errSandboxRuntime.Error())
	}

	if err := process.Start(ctx); err != nil {
		_, _ = process.Delete(ctx)
		return 0, zerr.Wrap(err, errSandboxRuntime.Error())
	}

	if stdinDone != nil {
		go func() {
			<-stdinDone
			_ = process.CloseIO(ctx, containerd.WithStdinCloser)
		}()
	}

	exitStatus := <-statusC
	_, _ = process.Delete(ctx)

	code, _, err := exitStatus.Result()
	if err != nil {
		return 0, zerr.Wrap(err, errSandboxRuntime.Error())
	}

	return int(code), nil
}
