// Package commands implements the CLI commands for the crate build tool.
package commands

import (
	"context"

	"github.com/spf13/cobra"
	"go.trai.ch/crate/internal/app"
	"go.trai.ch/crate/internal/build"
)

// Runner is the application entry point the commands drive.
type Runner interface {
	Run(ctx context.Context, opts app.RunOptions) error
}

// CLI represents the command line interface for crate.
type CLI struct {
	app     Runner
	rootCmd *cobra.Command
}

// New creates a new CLI instance with the given app.
func New(a Runner) *CLI {
	rootCmd := &cobra.Command{
		Use:           "crate",
		Short:         "Build and package serverless applications",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       build.Version,
	}

	rootCmd.InitDefaultVersionFlag()
	rootCmd.Flags().Lookup("version").Usage = "Print the application version"

	rootCmd.InitDefaultHelpFlag()
	rootCmd.Flags().Lookup("help").Usage = "Show help for command"

	c := &CLI{
		app:     a,
		rootCmd: rootCmd,
	}

	rootCmd.AddCommand(c.newBuildCmd())
	rootCmd.AddCommand(c.newVersionCmd())

	return c
}

// Execute runs the root command with the given context.
func (c *CLI) Execute(ctx context.Context) error {
	c.rootCmd.SetContext(ctx)
	return c.rootCmd.Execute()
}

// SetArgs sets the arguments for the root command. Used for testing.
func (c *CLI) SetArgs(args []string) {
	c.rootCmd.SetArgs(args)
}
