package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"neuronudge-backend-go/internal/models"
	"neuronudge-backend-go/internal/services"
	"neuronudge-backend-go/internal/store"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

type storeOpener func(ctx context.Context) (store.Store, func(), error)

func newReplayCommand(open storeOpener) *cobra.Command {
	var (
		userID string
		write  bool
	)
	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Recompute a user's stats from the event log and compare with the stored row",
		RunE: func(cmd *cobra.Command, args []string) error {
			userID = strings.TrimSpace(userID)
			if userID == "" {
				return fmt.Errorf("--user is required")
			}
			st, closeStore, err := open(cmd.Context())
			if err != nil {
				return err
			}
			defer closeStore()

			svc := &services.StatsService{Store: st}
			report, err := svc.Replay(cmd.Context(), userID, write)
			if err != nil {
				return fmt.Errorf("Replay() > %w", err)
			}
			printReport(cmd.OutOrStdout(), report)
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "user id to replay")
	cmd.Flags().BoolVar(&write, "write", false, "overwrite the stored row when it drifted")
	return cmd
}

func printReport(w io.Writer, report services.ReplayReport) {
	drifted := map[string]bool{}
	for _, field := range report.Drift {
		drifted[field] = true
	}
	bold := color.New(color.Bold)
	red := color.New(color.FgRed)
	green := color.New(color.FgGreen)

	_, _ = bold.Fprintf(w, "%-28s %16s %16s\n", "field", "stored", "replayed")
	for _, row := range statsRows(report.Stored, report.Replayed) {
		line := fmt.Sprintf("%-28s %16s %16s\n", row.name, row.stored, row.replayed)
		if drifted[row.name] {
			_, _ = red.Fprint(w, line)
			continue
		}
		_, _ = fmt.Fprint(w, line)
	}
	_, _ = fmt.Fprintf(w, "events replayed: %d\n", report.Events)
	switch {
	case len(report.Drift) == 0:
		_, _ = green.Fprintln(w, "no drift")
	case report.Written:
		_, _ = green.Fprintf(w, "repaired %d field(s)\n", len(report.Drift))
	default:
		_, _ = red.Fprintf(w, "drift in %d field(s); rerun with --write to repair\n", len(report.Drift))
	}
}

type statsRow struct {
	name     string
	stored   string
	replayed string
}

func statsRows(stored, replayed models.UserStats) []statsRow {
	i := func(v int64) string { return fmt.Sprintf("%d", v) }
	f := func(v float64) string { return fmt.Sprintf("%.3f", v) }
	return []statsRow{
		{"idle_count", i(stored.IdleCount), i(replayed.IdleCount)},
		{"distraction_count", i(stored.DistractionCount), i(replayed.DistractionCount)},
		{"total_sustained_attention", f(stored.TotalSustainedAttention), f(replayed.TotalSustainedAttention)},
		{"total_refocus_within_60s", i(stored.TotalRefocusWithin60s), i(replayed.TotalRefocusWithin60s)},
		{"total_nudges_shown", i(stored.TotalNudgesShown), i(replayed.TotalNudgesShown)},
		{"total_sessions", i(stored.TotalSessions), i(replayed.TotalSessions)},
		{"avg_feedback_score", f(stored.AvgFeedbackScore), f(replayed.AvgFeedbackScore)},
	}
}
