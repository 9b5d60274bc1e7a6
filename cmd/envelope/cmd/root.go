// Package cmd implements the envelope command line tool for inspecting and
// maintaining a cache from outside the application that writes it.
package cmd

import (
	"fmt"
	"os"

	"github.com/AndrewDonelson/envelope"
	"github.com/spf13/cobra"
)

type options struct {
	configPath string
	redisAddr  string
	namespace  string
	diskDir    string
}

// app carries the flags and the cache opened for the running command.
type app struct {
	opts  options
	cache *envelope.Cache
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "envelope",
		Short: "envelope - inspect and maintain an envelope cache",
		Long: `envelope opens the cache described by a config file or flags and
reads, lists or removes entries in one namespace.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.open(cmd)
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if a.cache == nil {
				return nil
			}
			return a.cache.Close()
		},
	}

	f := root.PersistentFlags()
	f.StringVarP(&a.opts.configPath, "config", "c", "", "YAML config file")
	f.StringVar(&a.opts.redisAddr, "redis", "", "Redis address (host:port)")
	f.StringVarP(&a.opts.namespace, "namespace", "n", "", "key namespace")
	f.StringVar(&a.opts.diskDir, "disk", "", "pebble data directory")

	root.AddCommand(
		newGetCmd(a),
		newInspectCmd(a),
		newKeysCmd(a),
		newDeleteCmd(a),
		newPurgeCmd(a),
		newVersionCmd(),
	)
	return root
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func (a *app) open(cmd *cobra.Command) error {
	var cfg envelope.Config
	if a.opts.configPath != "" {
		loaded, err := envelope.LoadConfig(a.opts.configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	if a.opts.redisAddr != "" {
		cfg.Redis.Addr = a.opts.redisAddr
	}
	if a.opts.namespace != "" {
		cfg.Namespace = a.opts.namespace
	}
	if a.opts.diskDir != "" {
		cfg.Disk.Dir = a.opts.diskDir
	}
	// A short-lived process has nothing useful in memory.
	cfg.Memory.Disabled = true
	if c, _ := cmd.Flags().GetBool("compress"); cmd.Flags().Changed("compress") {
		cfg.Compress = c
	}

	c, err := envelope.Open(cfg)
	if err != nil {
		return fmt.Errorf("open cache: %w", err)
	}
	a.cache = c
	return nil
}
