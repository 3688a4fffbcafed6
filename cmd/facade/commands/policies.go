package commands

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/openfacade/openfacade/pkg/policy"
)

func newPoliciesCommand() *cobra.Command {
	var policyPaths []string

	cmd := &cobra.Command{
		Use:   "policies",
		Short: "List plan policies",
		Long: `List the built-in plan policies plus any loaded from files.

Policies evaluate the redacted plan document; error and critical severities
block a plan, warnings are reported but do not.`,
		Example: `  # Built-in policies
  facade policies

  # Include policies from a directory
  facade policies --policy ./policies`,
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := policy.NewEngine(log.Logger)
			if err != nil {
				return err
			}
			if len(policyPaths) > 0 {
				if err := engine.LoadPolicies(cmd.Context(), policyPaths); err != nil {
					return err
				}
			}

			policies := engine.ListPolicies()

			if jsonOutput {
				out, err := json.MarshalIndent(policies, "", "  ")
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), string(out))
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tSEVERITY\tENABLED\tDESCRIPTION")
			for _, p := range policies {
				fmt.Fprintf(w, "%s\t%s\t%t\t%s\n", p.Name, p.Severity, p.Enabled, p.Description)
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringSliceVar(&policyPaths, "policy", nil, "policy files or directories (.rego, .json)")

	return cmd
}
