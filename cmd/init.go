package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gnoswap-labs/metapy/batch"
)

func newInitCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write a default configuration file",
		Args:  cobra.NoArgs,
		// the file may not parse yet, so skip loading it
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := batch.DefaultConfig().Write(o.cfgFile); err != nil {
				return fmt.Errorf("error initializing config file: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Configuration file created/updated: %s\n", o.cfgFile)
			return nil
		},
	}
}
