package commands

import (
	"strings"

	"github.com/spf13/cobra"
	"go.trai.ch/crate/internal/app"
	"go.trai.ch/zerr"
)

func (c *CLI) newBuildCmd() *cobra.Command {
	var opts app.RunOptions
	var env []string
	var buildImages []string

	cmd := &cobra.Command{
		Use:   "build [resource]",
		Short: "Build all functions and layers of the application stack",
		Long: `Build packages every function and layer declared in the stack template
into deployable artifacts, deduplicating targets that share identical
sources and settings. Passing a resource name builds only that target.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				opts.Resource = args[0]
			}
			parsed, err := parsePairs(env)
			if err != nil {
				return err
			}
			opts.Env = parsed
			images, err := parsePairs(buildImages)
			if err != nil {
				return err
			}
			opts.SandboxImages = images
			return c.app.Run(cmd.Context(), opts)
		},
	}

	cmd.Flags().StringVarP(&opts.TemplatePath, "template", "t", "", "Stack template to build (default \""+app.DefaultTemplate+"\")")
	cmd.Flags().StringVarP(&opts.BuildDir, "build-dir", "b", "", "Directory for built artifacts (default .crate/build next to the template)")
	cmd.Flags().StringVar(&opts.CacheDir, "cache-dir", "", "Directory for the reusable artifact cache")
	cmd.Flags().BoolVarP(&opts.Cached, "cached", "c", false, "Reuse cached artifacts when sources are unchanged")
	cmd.Flags().BoolVarP(&opts.Parallel, "parallel", "p", false, "Build independent targets concurrently")
	cmd.Flags().IntVar(&opts.Workers, "workers", 0, "Bound concurrent builds (0 = unbounded)")
	cmd.Flags().BoolVarP(&opts.Sandboxed, "use-container", "u", false, "Run each build inside a sandbox container")
	cmd.Flags().BoolVar(&opts.DependencyLayer, "dependency-layer", false, "Materialize shared dependency layers after the build")
	cmd.Flags().StringArrayVar(&env, "env", nil, "Environment variable overlay for builds (KEY=VALUE, repeatable)")
	cmd.Flags().StringVar(&opts.EnvFile, "env-file", "", "JSON file with global (\"Parameters\") and per-target env overlays")
	cmd.Flags().StringArrayVar(&buildImages, "build-image", nil, "Sandbox image override per language family (FAMILY=IMAGE, repeatable)")

	return cmd
}

// parsePairs turns repeated KEY=VALUE flags into a map.
func parsePairs(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}

	out := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		k, v, ok := strings.Cut(pair, "=")
		if !ok || k == "" {
			return nil, zerr.With(zerr.New("invalid flag value, expected KEY=VALUE"), "value", pair)
		}
		out[k] = v
	}
	return out, nil
}
