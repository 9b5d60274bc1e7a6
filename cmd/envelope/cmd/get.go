package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func newGetCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get <key>",
		Short: "Print a cached value as JSON",
		Long: `Decode the envelope stored under key and print its value as JSON.

Example:
  envelope get user:42 --compress`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var v any
			if _, err := a.cache.Get(cmd.Context(), args[0], &v); err != nil {
				return fmt.Errorf("get %s: %w", args[0], err)
			}
			out, err := json.MarshalIndent(v, "", "  ")
			if err != nil {
				return fmt.Errorf("render %s: %w", args[0], err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		},
	}
	cmd.Flags().Bool("compress", false, "payload is compressed (overrides config)")
	return cmd
}
