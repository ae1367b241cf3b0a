package main

import (
	"github.com/spf13/cobra"
)

type rootOptions struct {
	configPath string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "totalsd",
		Short: "Resolve taxon ids to observation totals under the remote rate limit",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "path to a YAML config file; environment variables override it")

	cmd.AddCommand(newServeCmd(opts))
	cmd.AddCommand(newLookupCmd(opts))
	return cmd
}
