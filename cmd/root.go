// Package cmd implements the metapy command line.
package cmd

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/gnoswap-labs/metapy/batch"
	"github.com/gnoswap-labs/metapy/internal/diag"
)

const defaultTimeout = 5 * time.Minute

// options holds the global flags and what PersistentPreRunE derives from
// them.
type options struct {
	cfgFile     string
	timeout     time.Duration
	verbose     bool
	searchPaths []string

	logger *zap.Logger
	config batch.Config
}

func newRootCmd() *cobra.Command {
	o := &options{}

	rootCmd := &cobra.Command{
		Use:           "metapy",
		Short:         "metapy - expand MetaPython-style macros into plain Starlark",
		Version:       batch.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return o.setup()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if o.logger != nil {
				_ = o.logger.Sync()
			}
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&o.cfgFile, "config", batch.DefaultConfigFile, "Path to the configuration file")
	flags.DurationVar(&o.timeout, "timeout", defaultTimeout, "Give up after this long")
	flags.BoolVarP(&o.verbose, "verbose", "v", false, "Enable development logging")
	flags.StringArrayVarP(&o.searchPaths, "path", "p", nil, "Directory to import modules from (repeatable)")

	rootCmd.AddCommand(
		newInitCmd(o),
		newExpandCmd(o),
		newRunCmd(o),
		newWatchCmd(o),
		newReplCmd(o),
	)
	return rootCmd
}

func (o *options) setup() error {
	var err error
	if o.verbose {
		o.logger, err = zap.NewDevelopment()
	} else {
		o.logger, err = zap.NewProduction()
	}
	if err != nil {
		return fmt.Errorf("error creating logger: %w", err)
	}

	o.config, err = batch.LoadConfig(o.cfgFile)
	if err != nil {
		return err
	}
	if len(o.searchPaths) > 0 {
		o.config.SearchPaths = append(append([]string(nil), o.searchPaths...), o.config.SearchPaths...)
	}
	return nil
}

// Execute runs the command line. Failures already reported by a command are
// not printed again.
func Execute() error {
	err := newRootCmd().Execute()
	if err != nil && !errors.Is(err, errFailed) {
		fmt.Fprint(os.Stderr, diag.Format(err))
	}
	return err
}
