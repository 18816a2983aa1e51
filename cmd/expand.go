package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/gnoswap-labs/metapy/batch"
	"github.com/gnoswap-labs/metapy/internal/diag"
)

var errFailed = errors.New("expansion failed")

func newExpandCmd(o *options) *cobra.Command {
	var (
		jsonOutput bool
		outputDir  string
	)

	cmd := &cobra.Command{
		Use:   "expand [paths...]",
		Short: "Expand files or directories and print or write the result",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), o.timeout)
			defer cancel()

			engine, err := batch.NewEngine(o.config, o.logger)
			if err != nil {
				return err
			}

			results, err := batch.ProcessFiles(ctx, o.logger, engine, args, batch.ProcessFile,
				batch.WithProgress(cmd.ErrOrStderr()))
			failed := reportFailures(cmd.ErrOrStderr(), results, err)

			if outputDir == "" {
				outputDir = o.config.OutputDir
			}
			switch {
			case jsonOutput:
				if err := printJSON(cmd.OutOrStdout(), results); err != nil {
					o.logger.Error("Error marshalling expansions to JSON", zap.Error(err))
					return err
				}
			case outputDir != "":
				written, err := batch.WriteOutputs(outputDir, results)
				for _, path := range written {
					fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
				}
				if err != nil {
					return err
				}
			default:
				for _, r := range results {
					if r.Expansion != nil {
						fmt.Fprint(cmd.OutOrStdout(), r.Expansion.Text)
					}
				}
			}

			if failed {
				return errFailed
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print expansions as JSON keyed by file")
	cmd.Flags().StringVarP(&outputDir, "output-dir", "o", "", "Write <name>.star files here instead of printing")
	return cmd
}

// reportFailures prints a diagnostic for every failed file, or for err when
// no file result carries it.
func reportFailures(w io.Writer, results []batch.Result, err error) bool {
	failed := false
	for _, r := range results {
		if r.Err != nil {
			fmt.Fprint(w, diag.Format(r.Err))
			failed = true
		}
	}
	if err != nil && !failed {
		fmt.Fprint(w, diag.Format(err))
		failed = true
	}
	return failed
}

func printJSON(w io.Writer, results []batch.Result) error {
	byFile := make(map[string]any, len(results))
	for _, r := range results {
		if r.Expansion != nil {
			byFile[r.Filename] = r.Expansion
		}
	}
	d, err := json.MarshalIndent(byFile, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(d))
	return err
}
