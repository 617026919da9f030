package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/abourramouss/serverlessextract-sub000/internal/aggregate"
	apperrors "github.com/abourramouss/serverlessextract-sub000/internal/pkg/errors"
)

var (
	reportStep     string
	reportBaseline string
	reportJSON     bool
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Analyse the recorded runs of each step",
	Long: `Group the recorded runs of each step by resource configuration and report
mean and median duration and cost, speed-up against a baseline configuration
and the cost/duration Pareto frontier.

Example:
  extract report --step calibration --baseline 2048MB/1cpu/8workers`,
	RunE: runReport,
}

func init() {
	reportCmd.Flags().StringVar(&reportStep, "step", "", "Only analyse this step")
	reportCmd.Flags().StringVar(&reportBaseline, "baseline", "", "Baseline configuration (defaults to the smallest)")
	reportCmd.Flags().BoolVar(&reportJSON, "json", false, "Print the analysis as JSON")
}

func runReport(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	deps, cleanup, err := initDependencies(ctx, cfg, log, false)
	if err != nil {
		return err
	}
	defer cleanup()

	jobs, err := deps.Collection.Load(ctx)
	if err != nil {
		return err
	}

	names := jobs.Names()
	if reportStep != "" {
		if _, ok := jobs[reportStep]; !ok {
			return apperrors.NotFound("step").WithDetail("step", reportStep)
		}
		names = []string{reportStep}
	}

	reports := make([]aggregate.Report, 0, len(names))
	for _, name := range names {
		reports = append(reports, aggregate.Analyze(name, jobs[name], reportBaseline))
	}

	out := cmd.OutOrStdout()
	if reportJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(reports)
	}

	for _, r := range reports {
		fmt.Fprintf(out, "%s (baseline %s", r.Step, r.Baseline)
		if r.Skipped > 0 {
			fmt.Fprintf(out, ", %d runs skipped", r.Skipped)
		}
		fmt.Fprintln(out, ")")

		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "  CONFIG\tRUNS\tMEDIAN\tMEAN\tMEDIAN COST\tMEAN COST\tSPEED-UP\tPEAK RSS MB\tPARETO")
		for _, c := range r.Configs {
			pareto := ""
			if c.Pareto {
				pareto = "*"
			}
			fmt.Fprintf(w, "  %s\t%d\t%s\t%s\t%.6f\t%.6f\t%.2fx\t%d\t%s\n",
				c.Config, c.Runs, c.MedianDuration, c.MeanDuration, c.MedianCost, c.MeanCost, c.SpeedUp, c.PeakMemory>>20, pareto)
		}
		if err := w.Flush(); err != nil {
			return err
		}
		fmt.Fprintln(out)
	}
	return nil
}
