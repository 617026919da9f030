package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/abourramouss/serverlessextract-sub000/internal/domain"
)

var (
	datasetContainer string
	datasetKeys      []string
	partitionCount   int
	destinationKey   string
)

var partitionCmd = &cobra.Command{
	Use:   "partition",
	Short: "Split a dataset into partitions",
	Long: `Split the constituent datasets of an observation into n partitions along
the time axis and upload them as archives under the destination key.

Partitioning the same dataset into the same number of partitions again
reuses the existing partitions.

Example:
  extract partition --container lofar --keys datasets/SB205.ms.zip,datasets/SB206.ms.zip -n 8 --destination partitions`,
	RunE: runPartition,
}

func init() {
	partitionCmd.Flags().StringVar(&datasetContainer, "container", "", "Container holding the dataset (defaults to the configured bucket)")
	partitionCmd.Flags().StringSliceVar(&datasetKeys, "keys", nil, "Keys of the dataset archives")
	partitionCmd.Flags().IntVarP(&partitionCount, "partitions", "n", 0, "Number of partitions")
	partitionCmd.Flags().StringVar(&destinationKey, "destination", "partitions", "Key under which partitions are written")
	_ = partitionCmd.MarkFlagRequired("keys")
	_ = partitionCmd.MarkFlagRequired("partitions")
}

func runPartition(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	container := datasetContainer
	if container == "" {
		container = cfg.MinIO.Bucket
	}

	deps, cleanup, err := initDependencies(ctx, cfg, log, false)
	if err != nil {
		return err
	}
	defer cleanup()

	result, err := deps.Engine.Partition(ctx,
		domain.DatasetRef{Container: container, Keys: datasetKeys},
		partitionCount,
		domain.ReferencePath{Container: container, Key: destinationKey},
	)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if result.AlreadyExists {
		fmt.Fprintf(out, "partitions already exist at %s\n", result.Location.String())
	} else {
		fmt.Fprintf(out, "created %d partitions at %s\n", len(result.Partitions), result.Location.String())
	}
	for _, p := range result.Partitions {
		fmt.Fprintf(out, "  %s\t%d bytes\n", p.Key, p.Size)
	}
	return nil
}
