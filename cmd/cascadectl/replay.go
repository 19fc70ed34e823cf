package main

import (
	"fmt"

	"github.com/evalgo/cascade/diagnostics"
	"github.com/evalgo/cascade/event"
	"github.com/spf13/cobra"
)

var replayCmd = &cobra.Command{
	Use:   "replay <diagnostics-file>",
	Short: "Summarize a recorded diagnostics event timeline",
	Long: `replay opens a bbolt file previously written by "serve" (or any other
diagnostics.Recorder) and prints a summary of the events it contains.`,
	Args: cobra.ExactArgs(1),
	RunE: runReplay,
}

var replayVerbose bool

func init() {
	replayCmd.Flags().BoolVar(&replayVerbose, "verbose", false, "print every recorded event, not just the summary")
}

func runReplay(cmd *cobra.Command, args []string) error {
	path := args[0]
	recorder, err := diagnostics.Open(path)
	if err != nil {
		return fmt.Errorf("cascadectl: opening %s: %w", path, err)
	}
	defer recorder.Close()

	if replayVerbose {
		err := recorder.ForEach(func(seq uint64, e event.Event) error {
			fmt.Fprintf(cmd.OutOrStdout(), "%6d  %-28s %-12s iter=%d at=%s\n",
				seq, e.Kind.String(), e.Key.String(), e.Iteration, e.At.Format("15:04:05.000"))
			return nil
		})
		if err != nil {
			return fmt.Errorf("cascadectl: replaying %s: %w", path, err)
		}
	}

	stats, err := recorder.Summarize()
	if err != nil {
		return fmt.Errorf("cascadectl: summarizing %s: %w", path, err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), stats.String())
	for kind, n := range stats.ByKind {
		fmt.Fprintf(cmd.OutOrStdout(), "  %-28s %d\n", kind, n)
	}
	return nil
}
