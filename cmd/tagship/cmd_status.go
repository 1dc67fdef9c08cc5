package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/ochairo/tagship/internal/external-adapters/sqlite"
)

func newStatusCmd(a *app) *cobra.Command {
	var showPhases bool

	cmd := &cobra.Command{
		Use:   "status <tag>",
		Short: "Show the latest recorded run per platform for a tag",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tag := normalizeTag(args[0])

			ledger, err := sqlite.Open(a.cfg.Ledger.Path)
			if err != nil {
				return withExitCode(exitFailed, err)
			}
			defer func() { _ = ledger.Close() }()

			runs, err := ledger.LatestRuns(cmd.Context(), tag)
			if err != nil {
				return withExitCode(exitFailed, err)
			}
			if len(runs) == 0 {
				cmd.Printf("no runs recorded for %s\n", tag)
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			_, _ = fmt.Fprintln(w, "PLATFORM\tSTATUS\tRUN\tFINISHED\tKEY\tSHA256")
			for _, run := range runs {
				key, digest := dash(run.Key), dash(run.SHA256)
				_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
					run.Platform, run.Status, run.RunID, run.FinishedAt.Format(time.RFC3339), key, digest)
			}
			_ = w.Flush()

			for _, run := range runs {
				if run.Error != "" {
					cmd.Printf("%s: %s\n", run.Platform, run.Error)
				}
				if !showPhases {
					continue
				}
				phases, err := ledger.Phases(cmd.Context(), run.RunID)
				if err != nil {
					return withExitCode(exitFailed, err)
				}
				for _, ph := range phases {
					if ph.Platform != run.Platform {
						continue
					}
					cmd.Printf("  %s %-9s %-10s %s\n", run.Platform, ph.Phase, ph.Status, ph.Duration)
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&showPhases, "phases", false, "list the phase transitions of each run")
	return cmd
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
