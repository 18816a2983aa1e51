package cmd

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"sync"

	"github.com/spf13/cobra"

	"github.com/gnoswap-labs/metapy/batch"
	"github.com/gnoswap-labs/metapy/internal"
	"github.com/gnoswap-labs/metapy/internal/diag"
)

func newWatchCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "watch [dirs...]",
		Short: "Re-expand files whenever they change",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				args = []string{"."}
			}
			config := o.config
			if config.CacheDir == "" {
				config.CacheDir = defaultCacheDir()
			}

			engine, err := batch.NewEngine(config, o.logger,
				internal.WithWatchDirs(args...),
				internal.WithResultHandler(printResult(cmd.OutOrStdout(), cmd.ErrOrStderr(), config.OutputDir)))
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			if err := engine.StartWatching(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "watching %v (interrupt to stop)\n", args)
			<-ctx.Done()
			return engine.StopWatching()
		},
	}
}

func defaultCacheDir() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "metapy")
}

// printResult reports each re-expansion, writing it to outputDir when set.
func printResult(out, errOut io.Writer, outputDir string) func(string, *internal.Expansion, error) {
	var mu sync.Mutex
	return func(filename string, exp *internal.Expansion, err error) {
		mu.Lock()
		defer mu.Unlock()

		if err != nil {
			fmt.Fprint(errOut, diag.Format(err))
			return
		}
		if outputDir == "" {
			fmt.Fprintf(out, "# %s\n%s", filename, exp.Text)
			return
		}
		written, err := batch.WriteOutputs(outputDir, []batch.Result{{Filename: filename, Expansion: exp}})
		if err != nil {
			fmt.Fprint(errOut, diag.Format(err))
			return
		}
		for _, path := range written {
			fmt.Fprintf(out, "wrote %s\n", path)
		}
	}
}
