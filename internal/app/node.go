package app

import (
	"context"
	"os"

	"github.com/grindlemire/graft"
	"go.trai.ch/crate/internal/adapters/engine"    //nolint:depguard // Wired in app layer
	"go.trai.ch/crate/internal/adapters/fs"        //nolint:depguard // Wired in app layer
	"go.trai.ch/crate/internal/adapters/logger"    //nolint:depguard // Wired in app layer
	"go.trai.ch/crate/internal/adapters/sandbox"   //nolint:depguard // Wired in app layer
	"go.trai.ch/crate/internal/adapters/telemetry" //nolint:depguard // Wired in app layer
	"go.trai.ch/crate/internal/core/ports"
	"go.trai.ch/crate/internal/engine/builder"
)

const (
	// AppNodeID is the unique identifier for the main App Graft node.
	AppNodeID graft.ID = "app.main"
	// ComponentsNodeID is the unique identifier for the App components Graft node.
	ComponentsNodeID graft.ID = "app.components"
)

func init() {
	// App Node
	graft.Register(graft.Node[*App]{
		ID:        AppNodeID,
		Cacheable: true,
		DependsOn: []graft.ID{
			engine.NodeID,
			fs.NodeID,
			fs.CopierNodeID,
			telemetry.NodeID,
			logger.NodeID,
		},
		Run: func(ctx context.Context) (*App, error) {
			buildEngine, err := graft.Dep[ports.BuildEngine](ctx)
			if err != nil {
				return nil, err
			}

			hasher, err := graft.Dep[ports.SourceHasher](ctx)
			if err != nil {
				return nil, err
			}

			copier, err := graft.Dep[ports.ArtifactCopier](ctx)
			if err != nil {
				return nil, err
			}

			tracer, err := graft.Dep[ports.Tracer](ctx)
			if err != nil {
				return nil, err
			}

			log, err := graft.Dep[ports.Logger](ctx)
			if err != nil {
				return nil, err
			}

			runner := builder.New(buildEngine, sandboxFactory(log), copier, hasher, tracer, log)
			return New(runner, log), nil
		},
	})

	// Components Node
	graft.Register(graft.Node[*Components]{
		ID:        ComponentsNodeID,
		Cacheable: true,
		DependsOn: []graft.ID{
			AppNodeID,
			logger.NodeID,
			telemetry.NodeID,
		},
		Run: runComponentsNode,
	})
}

func runComponentsNode(ctx context.Context) (*Components, error) {
	application, err := graft.Dep[*App](ctx)
	if err != nil {
		return nil, err
	}

	log, err := graft.Dep[ports.Logger](ctx)
	if err != nil {
		return nil, err
	}

	tracer, err := graft.Dep[ports.Tracer](ctx)
	if err != nil {
		return nil, err
	}

	return &Components{
		App:    application,
		Logger: log,
		Tracer: tracer,
	}, nil
}

// sandboxFactory connects to the local container runtime on demand, so host
// builds never require containerd to be running.
func sandboxFactory(log ports.Logger) builder.SandboxFactory {
	return func(_ context.Context, images map[string]string) (ports.BuildEngine, func() error, error) {
		rt, err := sandbox.NewRuntime(sandbox.DefaultAddress, sandbox.DefaultNamespace)
		if err != nil {
			return nil, nil, err
		}
		return sandbox.NewSession(rt, log, images, os.Stderr), rt.Close, nil
	}
}
