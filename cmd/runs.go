package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/openvariant/tranchefilter/internal/model"
	"github.com/openvariant/tranchefilter/internal/store"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect filtering run history",
	Long:  "Commands for listing, viewing, and summarizing tracked filtering runs.",
}

// -- runs list --

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List filtering runs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		status, _ := cmd.Flags().GetString("status")
		mode, _ := cmd.Flags().GetString("mode")
		limit, _ := cmd.Flags().GetInt("limit")

		filter := store.RunFilter{
			Status: model.RunStatus(status),
			Mode:   mode,
			Limit:  limit,
		}

		runs, err := st.ListRuns(ctx, filter)
		if err != nil {
			return eris.Wrap(err, "runs list")
		}

		if len(runs) == 0 {
			fmt.Fprintln(os.Stderr, "No runs found.")
			return nil
		}

		formatRunsList(os.Stdout, runs)
		return nil
	},
}

// -- runs show --

var runsShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show full details of a run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		run, err := st.GetRun(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "runs show")
		}

		shards, err := st.ListShardCounts(ctx, run.ID)
		if err != nil {
			return eris.Wrap(err, "runs show")
		}

		out := struct {
			model.Run
			Shards []model.ShardCounts `json:"shards,omitempty"`
		}{Run: *run, Shards: shards}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	},
}

// -- runs stats --

var runsStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show aggregate run statistics",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		byStatus, err := st.StatusCounts(ctx)
		if err != nil {
			return eris.Wrap(err, "runs stats")
		}

		runs, err := st.ListRuns(ctx, store.RunFilter{Limit: 10000})
		if err != nil {
			return eris.Wrap(err, "runs stats")
		}

		formatRunStats(os.Stdout, computeRunStats(byStatus, runs))
		return nil
	},
}

func init() {
	runsListCmd.Flags().String("status", "", "filter by run status (queued, running, complete, failed)")
	runsListCmd.Flags().String("mode", "", "filter by recalibration mode (SNP, INDEL, BOTH)")
	runsListCmd.Flags().Int("limit", 50, "max number of runs to display")

	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsShowCmd)
	runsCmd.AddCommand(runsStatsCmd)
	rootCmd.AddCommand(runsCmd)
}

// runStats holds aggregate statistics computed from the run registry.
type runStats struct {
	Total      int
	Complete   int
	Failed     int
	Sites      int64
	Passed     int64
	Filtered   int64
	AvgDurSecs float64
}

// computeRunStats folds the per-status counts and the per-run results into
// one summary.
func computeRunStats(byStatus map[model.RunStatus]int, runs []model.Run) runStats {
	var s runStats
	for _, n := range byStatus {
		s.Total += n
	}
	s.Complete = byStatus[model.RunStatusComplete]
	s.Failed = byStatus[model.RunStatusFailed]

	var totalDur float64
	var durCount int
	for _, r := range runs {
		if r.Result == nil {
			continue
		}
		s.Sites += r.Result.Counts.Sites
		s.Passed += r.Result.Counts.Passed
		s.Filtered += r.Result.Counts.Filtered
		if r.Status == model.RunStatusComplete {
			totalDur += r.Result.DurationSecs
			durCount++
		}
	}
	if durCount > 0 {
		s.AvgDurSecs = totalDur / float64(durCount)
	}
	return s
}

// formatRunsList writes a tabular list of runs to out.
func formatRunsList(out io.Writer, runs []model.Run) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tMODE\tSTATUS\tINPUT\tSITES\tCREATED\tDURATION")
	_, _ = fmt.Fprintln(w, "--\t----\t------\t-----\t-----\t-------\t--------")

	for _, r := range runs {
		dur := ""
		sites := ""
		if r.Result != nil {
			dur = (time.Duration(r.Result.DurationSecs * float64(time.Second))).Round(time.Second).String()
			sites = fmt.Sprintf("%d", r.Result.Counts.Sites)
		}

		input := r.Params.Input
		if len(input) > 30 {
			input = "..." + input[len(input)-27:]
		}

		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			truncateID(r.ID),
			r.Params.Mode,
			r.Status,
			input,
			sites,
			r.CreatedAt.Format("2006-01-02 15:04"),
			dur,
		)
	}
	_ = w.Flush()
}

// formatRunStats writes aggregate stats to out.
func formatRunStats(out io.Writer, s runStats) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Total runs:\t%d\n", s.Total)
	_, _ = fmt.Fprintf(w, "Complete:\t%d\n", s.Complete)
	_, _ = fmt.Fprintf(w, "Failed:\t%d\n", s.Failed)
	_, _ = fmt.Fprintf(w, "Sites processed:\t%d\n", s.Sites)
	_, _ = fmt.Fprintf(w, "  Passed:\t%d\n", s.Passed)
	_, _ = fmt.Fprintf(w, "  Filtered:\t%d\n", s.Filtered)
	if s.AvgDurSecs > 0 {
		_, _ = fmt.Fprintf(w, "Avg duration:\t%.1fs\n", s.AvgDurSecs)
	}
	_ = w.Flush()
}

// truncateID returns the first 8 characters of a UUID for compact display.
func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
