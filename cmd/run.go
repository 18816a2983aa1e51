package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gnoswap-labs/metapy/batch"
	"github.com/gnoswap-labs/metapy/internal"
	"github.com/gnoswap-labs/metapy/internal/diag"
	"github.com/gnoswap-labs/metapy/internal/host"
)

func newRunCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "run [file]",
		Short: "Expand a file and execute the result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := batch.NewEngine(o.config, o.logger,
				internal.WithExec(true),
				internal.WithHostOptions(
					host.WithContext(cmd.Context()),
					host.WithStdout(cmd.OutOrStdout())))
			if err != nil {
				return err
			}
			if _, err := engine.Run(args[0]); err != nil {
				fmt.Fprint(cmd.ErrOrStderr(), diag.Format(err))
				return errFailed
			}
			return nil
		},
	}
}
