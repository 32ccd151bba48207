package root

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/coderena/validator/pkg/config"
	"github.com/coderena/validator/pkg/tracking"
)

// newTrackingCmd groups read-only queries against a competition's
// persisted state. `inspect` reads the SQLite score-history mirror
// pkg/tracking.History writes alongside the authoritative JSON store
// (SPEC_FULL.md §2.2's modernc.org/sqlite entry).
func newTrackingCmd(runConfig *config.RuntimeConfig) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tracking",
		Short: "Inspect persisted tracker state",
	}
	cmd.AddCommand(newTrackingInspectCmd(runConfig))
	return cmd
}

func newTrackingInspectCmd(runConfig *config.RuntimeConfig) *cobra.Command {
	var hotkey string
	var limit int

	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Print score history for a hotkey, or the current leaderboard",
		RunE: func(cmd *cobra.Command, _ []string) error {
			history, err := tracking.OpenHistory(runConfig.DataDir, runConfig.CompetitionID)
			if err != nil {
				return RuntimeError{Err: err}
			}
			defer history.Close()

			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			if hotkey != "" {
				samples, err := history.Recent(ctx, hotkey, limit)
				if err != nil {
					return RuntimeError{Err: err}
				}
				for _, s := range samples {
					fmt.Fprintf(out, "block=%d score=%.4f\n", s.Block, s.Score)
				}
				return nil
			}

			board, err := history.Leaderboard(ctx, limit)
			if err != nil {
				return RuntimeError{Err: err}
			}
			for _, t := range board {
				fmt.Fprintf(out, "uid=%d hotkey=%s score=%.4f\n", t.UID, t.Hotkey, t.Score)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&hotkey, "hotkey", "", "Show score-over-time for one hotkey instead of the leaderboard")
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum rows to print")

	return cmd
}
