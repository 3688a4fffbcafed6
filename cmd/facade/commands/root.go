package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	verbose    bool
	jsonOutput bool
)

// Execute runs the root command
func Execute(ctx context.Context, version, commit, buildDate string) error {
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "facade",
		Short: "OpenFacade - Deployment Configuration Resolver",
		Long: `OpenFacade turns a small set of deployment flags into a complete,
validated plan of cloud resource descriptors for a serverless container
deployment: container registry, compute function, public endpoint, and the
optional CDN, WAF, and CI trust layers on top.

Features:
  - Typed intent files via CUE, with optional Starlark env scripts
  - Ordered cross-flag validation with stable constraint names
  - Deterministic descriptor graph with dependency ordering
  - Secret-aware emission: redacted by default, opt-in machine output
  - Policy enforcement (OPA/rego) over redacted plans
  - Local SQLite resolution history`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
	}

	// Persistent flags available to all commands
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")

	// Add subcommands
	rootCmd.AddCommand(newResolveCommand())
	rootCmd.AddCommand(newValidateCommand())
	rootCmd.AddCommand(newHistoryCommand())
	rootCmd.AddCommand(newPoliciesCommand())

	return rootCmd
}
