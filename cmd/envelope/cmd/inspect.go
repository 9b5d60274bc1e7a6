package cmd

import (
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

func newInspectCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <key>",
		Short: "Show the envelope header of a key",
		Long: `Read the version and timestamp of the envelope stored under key
without decoding its payload.

Example:
  envelope inspect user:42`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := a.cache.Inspect(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("inspect %s: %w", args[0], err)
			}
			label := color.New(color.FgCyan).SprintFunc()
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "%s %s\n", label("key:      "), a.cache.MakeKey(args[0]))
			fmt.Fprintf(w, "%s %s\n", label("version:  "), m.Version)
			fmt.Fprintf(w, "%s %f\n", label("timestamp:"), m.Timestamp)
			if !m.Time.IsZero() {
				fmt.Fprintf(w, "%s %s\n", label("written:  "), m.Time.UTC().Format(time.RFC3339Nano))
			}
			fmt.Fprintf(w, "%s %d bytes\n", label("size:     "), m.Size)
			return nil
		},
	}
}
