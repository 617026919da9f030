package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/abourramouss/serverlessextract-sub000/internal/config"
	"github.com/abourramouss/serverlessextract-sub000/internal/pkg/logger"
)

var (
	// Version is set at build time
	Version = "0.1.0"

	// Global flags
	configFile string
	verbose    bool

	v   = viper.New()
	cfg *config.Config
	log *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "extract",
	Short: "Serverless extraction pipelines for radio-astronomy datasets",
	Long: `extract partitions measurement sets held in object storage and runs
pipelines of domain binaries over every partition in parallel.

Commands:
  partition - Split a dataset into partitions
  run       - Run a pipeline file
  report    - Analyse the recorded runs of each step

Example:
  extract partition --container lofar --keys datasets/SB205.ms.zip -n 8 --destination partitions
  extract run configs/pipeline.yaml --executor asynq
  extract report --step rebinning`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if configFile != "" {
			v.SetConfigFile(configFile)
		}
		loaded, err := config.LoadWith(v)
		if err != nil {
			return err
		}
		if verbose {
			loaded.Log.Level = "debug"
		}
		cfg = loaded
		log = logger.Init(logger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.Sync()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Config file (defaults to ./config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().String("executor", "", "Executor backend: local or asynq")
	rootCmd.PersistentFlags().String("bucket", "", "Object storage bucket")
	_ = v.BindPFlag("executor_backend", rootCmd.PersistentFlags().Lookup("executor"))
	_ = v.BindPFlag("minio_bucket", rootCmd.PersistentFlags().Lookup("bucket"))

	rootCmd.AddCommand(partitionCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(reportCmd)
}

// Execute runs the CLI
func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "extract: %v\n", err)
		return err
	}
	return nil
}
