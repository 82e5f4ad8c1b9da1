package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/openvariant/tranchefilter/internal/tranche"
	"github.com/openvariant/tranchefilter/internal/vcfio"
)

var tranchesLevel float64

var tranchesCmd = &cobra.Command{
	Use:   "tranches <file>",
	Short: "Inspect a tranches file",
	Long:  "Parses a tranches file and shows which tiers survive the retention level and the order the classifier scans them in.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		level := tranchesLevel
		if !cmd.Flags().Changed("ts-filter-level") {
			level = cfg.Apply.TSFilterLevel
		}

		rc, err := vcfio.Open(ctx, args[0])
		if err != nil {
			return err
		}
		defer rc.Close() //nolint:errcheck

		tranches, err := tranche.Parse(rc)
		if err != nil {
			return err
		}
		if len(tranches) == 0 {
			return eris.Errorf("tranches: %s contains no tranche rows", args[0])
		}

		table, err := tranche.NewTable(tranches, level)
		if err != nil {
			return eris.Wrapf(err, "tranches: %s", args[0])
		}

		formatTranches(os.Stdout, tranches, table)
		return nil
	},
}

func init() {
	tranchesCmd.Flags().Float64Var(&tranchesLevel, "ts-filter-level", 99.0, "truth sensitivity retention level (default from config)")
	rootCmd.AddCommand(tranchesCmd)
}

// formatTranches prints the parsed tiers and the retained classification
// order. Scan order runs from the last retained index down to 0; scores
// below index 0 get the "+" filter.
func formatTranches(out io.Writer, parsed []tranche.Tranche, table *tranche.Table) {
	retained := make(map[string]bool, table.Len())
	for _, tr := range table.Tranches() {
		retained[tr.Name] = true
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "NAME\tMODE\tTRUTH_SENS\tMIN_SCORE\tRETAINED")
	_, _ = fmt.Fprintln(w, "----\t----\t----------\t---------\t--------")
	for _, tr := range parsed {
		kept := ""
		if retained[tr.Name] {
			kept = "yes"
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%.2f\t%g\t%s\n",
			tr.Name, tr.Mode, tr.TruthSensitivity, tr.MinScore, kept)
	}
	_ = w.Flush()

	order := table.Tranches()
	_, _ = fmt.Fprintf(out, "\nRetention level: %.2f\n", table.Level())
	_, _ = fmt.Fprintf(out, "Scan order (first match wins):\n")
	for i := len(order) - 1; i >= 0; i-- {
		verdict := order[i].Name
		if i == len(order)-1 {
			verdict = "PASS"
		}
		_, _ = fmt.Fprintf(out, "  score >= %g\t-> %s\n", order[i].MinScore, verdict)
	}
	_, _ = fmt.Fprintf(out, "  otherwise\t-> %s\n", table.Lowest().Name+"+")
}
