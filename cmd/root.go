// Package cmd defines and implements the CLI commands for the thread-harvester executable.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/JakeFAU/thread-harvester/internal/config"
)

type rootOptions struct {
	cfgFile string
	v       *viper.Viper
}

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	opts := &rootOptions{v: config.NewViper()}
	cmd := &cobra.Command{
		Use:   "thread-harvester",
		Short: "Resumable harvester for forum submissions and their top comments.",
		Long: `thread-harvester walks a forum's submission history from newest to oldest,
attaches the top comments of every submission and checkpoints after each page
so an interrupted run resumes where it stopped.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&opts.cfgFile, "config", "", "config file (YAML, TOML or JSON)")
	cmd.AddCommand(newCrawlCmd(opts))
	return cmd
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
