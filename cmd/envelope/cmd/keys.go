package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newKeysCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "keys [pattern]",
		Short: "List keys in the namespace",
		Long: `List keys matching a glob pattern (default "*"), without the
namespace prefix.

Example:
  envelope keys 'user:*'`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pattern := "*"
			if len(args) == 1 {
				pattern = args[0]
			}
			keys, err := a.cache.Keys(cmd.Context(), pattern)
			if err != nil {
				return fmt.Errorf("keys %s: %w", pattern, err)
			}
			for _, k := range keys {
				fmt.Fprintln(cmd.OutOrStdout(), k)
			}
			return nil
		},
	}
}
