package cmd

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/peterh/liner"
	"github.com/spf13/cobra"

	"github.com/gnoswap-labs/metapy/batch"
	"github.com/gnoswap-labs/metapy/internal/code"
	"github.com/gnoswap-labs/metapy/internal/diag"
	"github.com/gnoswap-labs/metapy/internal/host"
)

const (
	prompt         = ">>> "
	continuePrompt = "... "
	quitCommand    = ":quit"
)

// lineReader is the part of liner.State the loop uses.
type lineReader interface {
	Prompt(p string) (string, error)
	AppendHistory(item string)
}

var _ lineReader = (*liner.State)(nil)

func newReplCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "repl",
		Short: "Expand and run entries interactively",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := batch.NewEngine(o.config, o.logger)
			if err != nil {
				return err
			}
			s, h := engine.NewSession("<repl>", false,
				host.WithContext(cmd.Context()),
				host.WithStdout(cmd.OutOrStdout()))

			line := liner.NewLiner()
			defer line.Close()
			line.SetCtrlCAborts(true)

			return runREPL(line, cmd.OutOrStdout(), s, h)
		},
	}
}

// runREPL expands each entry in one session, prints the expansion and then
// executes it, so bindings carry over between entries.
func runREPL(in lineReader, out io.Writer, s *code.Session, h *host.Host) error {
	for {
		src, err := readEntry(in)
		if errors.Is(err, io.EOF) || errors.Is(err, liner.ErrPromptAborted) {
			return nil
		}
		if err != nil {
			return err
		}
		if strings.TrimSpace(src) == "" {
			continue
		}
		if strings.TrimSpace(src) == quitCommand {
			return nil
		}
		in.AppendHistory(strings.TrimRight(src, "\n"))

		res, err := s.ExpandString(src)
		if err != nil {
			fmt.Fprint(out, diag.Format(err))
			continue
		}
		if res.Text != "" {
			fmt.Fprint(out, res.Text)
		}
		if err := h.Exec(res.Text, s.Scope()); err != nil {
			fmt.Fprint(out, diag.Format(err))
		}
	}
}

// readEntry reads one line, and when it opens a suite, continuation lines
// up to the next blank one.
func readEntry(in lineReader) (string, error) {
	first, err := in.Prompt(prompt)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	b.WriteString(first)
	b.WriteString("\n")
	if !strings.HasSuffix(strings.TrimSpace(first), ":") {
		return b.String(), nil
	}
	for {
		next, err := in.Prompt(continuePrompt)
		if errors.Is(err, io.EOF) {
			return b.String(), nil
		}
		if err != nil {
			return "", err
		}
		if strings.TrimSpace(next) == "" {
			return b.String(), nil
		}
		b.WriteString(next)
		b.WriteString("\n")
	}
}
