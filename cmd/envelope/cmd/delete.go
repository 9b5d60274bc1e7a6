package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <key>",
		Short: "Delete a key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ok, err := a.cache.Delete(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("delete %s: %w", args[0], err)
			}
			if !ok {
				fmt.Fprintf(cmd.OutOrStdout(), "Key '%s' not found\n", args[0])
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted key '%s'\n", args[0])
			return nil
		},
	}
}

func newPurgeCmd(a *app) *cobra.Command {
	var expired bool
	cmd := &cobra.Command{
		Use:   "purge [pattern]",
		Short: "Delete every key matching a pattern",
		Long: `Delete every key in the namespace matching a glob pattern
(default "*"). With --expired, only sweep entries whose TTL has passed.

Example:
  envelope purge 'session:*'
  envelope purge --expired`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if expired {
				n, err := a.cache.PurgeExpired(cmd.Context())
				if err != nil {
					return fmt.Errorf("purge expired: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Purged %d expired entries\n", n)
				return nil
			}
			pattern := "*"
			if len(args) == 1 {
				pattern = args[0]
			}
			n, err := a.cache.DeleteAll(cmd.Context(), pattern)
			if err != nil {
				return fmt.Errorf("purge %s: %w", pattern, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d keys\n", n)
			return nil
		},
	}
	cmd.Flags().BoolVar(&expired, "expired", false, "only remove expired entries")
	return cmd
}
