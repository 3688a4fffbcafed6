package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/openfacade/openfacade/pkg/stores"
)

func newHistoryCommand() *cobra.Command {
	var dbPath string

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect resolution history",
		Long: `Inspect the local resolution history.

Stored plans are always the redacted rendering; secret material never reaches
the history database.`,
	}

	cmd.PersistentFlags().StringVar(&dbPath, "db", "history.db", "SQLite history database path")

	cmd.AddCommand(newHistoryListCommand(&dbPath))
	cmd.AddCommand(newHistoryShowCommand(&dbPath))
	cmd.AddCommand(newHistoryDeleteCommand(&dbPath))

	return cmd
}

// openHistoryStore opens an existing history database.
func openHistoryStore(ctx context.Context, path string) (*stores.SQLiteStore, error) {
	store, err := stores.NewSQLiteStore(stores.Config{Path: path})
	if err != nil {
		return nil, err
	}
	if err := store.Init(ctx); err != nil {
		return nil, err
	}
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, err
	}
	return store, nil
}

func newHistoryListCommand(dbPath *string) *cobra.Command {
	var (
		app    string
		limit  int
		offset int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored resolutions",
		Example: `  # Most recent resolutions
  facade history list --db history.db

  # Resolutions for one application
  facade history list --app metrics-dashboard`,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openHistoryStore(cmd.Context(), *dbPath)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			var appFilter *string
			if app != "" {
				appFilter = &app
			}
			resolutions, err := store.ListResolutions(cmd.Context(), appFilter, limit, offset)
			if err != nil {
				return err
			}

			if jsonOutput {
				out, err := json.MarshalIndent(resolutions, "", "  ")
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), string(out))
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tAPP\tDESCRIPTORS\tSECRET\tPOLICY\tCREATED")
			for _, r := range resolutions {
				policy := "-"
				if r.PolicyAllowed != nil {
					policy = "blocked"
					if *r.PolicyAllowed {
						policy = "allowed"
					}
				}
				fmt.Fprintf(w, "%s\t%s\t%d\t%t\t%s\t%s\n",
					r.ID, r.AppName, r.DescriptorCount, r.SecretGenerated,
					policy, r.CreatedAt.Format("2006-01-02 15:04:05"))
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&app, "app", "", "filter by application name")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum resolutions to list")
	cmd.Flags().IntVar(&offset, "offset", 0, "pagination offset")

	return cmd
}

func newHistoryShowCommand(dbPath *string) *cobra.Command {
	var withEvents bool

	cmd := &cobra.Command{
		Use:   "show <plan-id>",
		Short: "Show one stored resolution",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openHistoryStore(cmd.Context(), *dbPath)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			resolution, err := store.GetResolution(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			if jsonOutput {
				out, err := json.MarshalIndent(resolution, "", "  ")
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), string(out))
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), resolution.Plan)
			}

			if !withEvents {
				return nil
			}
			events, err := store.GetEvents(cmd.Context(), &resolution.ID, nil, 100, 0)
			if err != nil {
				return err
			}
			for _, e := range events {
				fmt.Fprintf(cmd.OutOrStdout(), "[%s] %s %s\n",
					e.Timestamp.Format("2006-01-02 15:04:05"), e.Level, e.Message)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&withEvents, "events", false, "include the resolution's event log")

	return cmd
}

func newHistoryDeleteCommand(dbPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <plan-id>",
		Short: "Delete a stored resolution",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openHistoryStore(cmd.Context(), *dbPath)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			if err := store.DeleteResolution(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted resolution %s\n", args[0])
			return nil
		},
	}
}
