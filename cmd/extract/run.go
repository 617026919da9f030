package main

import (
	"encoding/json"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/abourramouss/serverlessextract-sub000/internal/domain"
	"github.com/abourramouss/serverlessextract-sub000/internal/pipeline"
	"github.com/abourramouss/serverlessextract-sub000/internal/pkg/id"
)

var (
	runID      string
	keyPrefix  string
	stepLimit  int
	jsonOutput bool
)

var runCmd = &cobra.Command{
	Use:   "run <pipeline.yaml>",
	Short: "Run a pipeline file",
	Long: `Run every step of a pipeline file in order. Each step fans out one worker
per partition of its designated input and is recorded in the job collection
once every worker has returned.

Examples:
  # Run locally with in-process workers
  extract run configs/pipeline.yaml

  # Dispatch to remote workers and scope outputs under a prefix
  extract run configs/pipeline.yaml --executor asynq --key-prefix runs/nightly`,
	Args: cobra.ExactArgs(1),
	RunE: runPipeline,
}

func init() {
	runCmd.Flags().StringVar(&runID, "run-id", "", "Run identifier (generated when empty)")
	runCmd.Flags().StringVar(&keyPrefix, "key-prefix", "", "Prefix for every key written by the run (defaults to run_key_prefix)")
	runCmd.Flags().IntVar(&stepLimit, "limit", 0, "Cap on partitions per step for steps without their own limit (defaults to run_limit)")
	runCmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the run report as JSON")
}

func runPipeline(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	def, err := pipeline.Load(args[0])
	if err != nil {
		return err
	}

	limit := cfg.Run.Limit
	if stepLimit > 0 {
		limit = stepLimit
	}
	for i := range def.Steps {
		if def.Steps[i].Limit == 0 {
			def.Steps[i].Limit = limit
		}
	}

	run := domain.RunContext{RunID: runID, KeyPrefix: cfg.Run.KeyPrefix}
	if run.RunID == "" {
		run.RunID = id.NewRunID()
	}
	if keyPrefix != "" {
		run.KeyPrefix = keyPrefix
	}

	deps, cleanup, err := initDependencies(ctx, cfg, log, true)
	if err != nil {
		return err
	}
	defer cleanup()

	log.Info("starting pipeline",
		zap.String("name", def.Name),
		zap.String("run_id", run.RunID),
		zap.String("executor", cfg.Executor.Backend),
		zap.Int("steps", len(def.Steps)),
	)

	p := pipeline.New(deps.Engine, deps.Runner, deps.Collection, log)
	report, runErr := p.Run(ctx, def, run)
	if report != nil {
		if err := printRunReport(cmd, report); err != nil {
			return err
		}
	}
	return runErr
}

func printRunReport(cmd *cobra.Command, report *pipeline.Report) error {
	out := cmd.OutOrStdout()
	if jsonOutput {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}

	fmt.Fprintf(out, "run %s\n", report.RunID)
	if report.Partitions != nil {
		fmt.Fprintf(out, "  partitions: %d at %s\n", len(report.Partitions.Partitions), report.Partitions.Location.String())
	}
	for _, step := range report.Steps {
		fmt.Fprintf(out, "  %-16s workers=%-4d duration=%-12s cost=%.6f ingested=%d",
			step.StepName, step.WorkerCount, step.Duration(), step.Cost, step.IngestedSize)
		if incomplete := step.IncompletePartitions(); len(incomplete) > 0 {
			fmt.Fprintf(out, " incomplete=%d", len(incomplete))
		}
		fmt.Fprintln(out)
	}
	if !report.End.IsZero() {
		fmt.Fprintf(out, "  total: %s\n", report.Duration())
	}
	return nil
}
