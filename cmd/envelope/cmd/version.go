package cmd

import (
	"fmt"

	"github.com/AndrewDonelson/envelope"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build and wire-format versions",
		Args:  cobra.NoArgs,
		// No cache is needed.
		PersistentPreRunE:  func(*cobra.Command, []string) error { return nil },
		PersistentPostRunE: func(*cobra.Command, []string) error { return nil },
		Run: func(cmd *cobra.Command, args []string) {
			bold := color.New(color.Bold).SprintFunc()
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", bold("envelope"), envelope.BuildVersion())
			fmt.Fprintf(cmd.OutOrStdout(), "wire format: %s (header %d bytes)\n",
				color.GreenString(envelope.Current.String()), envelope.HeaderSize)
		},
	}
}
