package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// newProcessCmd creates and configures the 'process' subcommand. It parses
// the file resources of one already-synced dataset into data records.
func newProcessCmd() *cobra.Command {
	var (
		datasetID string
		maxRows   int
	)

	cmd := &cobra.Command{
		Use:   "process",
		Short: "Parses the file resources of a synced dataset",
		Long: `Downloads and parses every file resource of a dataset already present
in the record store. Resources with unsupported formats are marked failed
and skipped; one resource's failure never stops its siblings.`,

		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}

			if maxRows <= 0 {
				maxRows = appInstance.Config().Sync.MaxRows
			}

			result, err := appInstance.Processor().ProcessDatasetResources(cmd.Context(), datasetID, maxRows)
			if err != nil {
				return fmt.Errorf("process dataset %s: %w", datasetID, err)
			}

			cmd.Printf("processed %d resources, %d records\n", result.ProcessedResources, result.TotalRecords)
			for _, resourceErr := range result.Errors {
				cmd.Printf("failed %s (%s): %s\n",
					resourceErr.ResourceTitle, resourceErr.ResourceExternalID, resourceErr.Error)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&datasetID, "dataset-id", "", "catalog identifier of the dataset to process")
	cmd.Flags().IntVar(&maxRows, "max-rows", 0, "per-resource record cap (default from config)")
	_ = cmd.MarkFlagRequired("dataset-id")

	return cmd
}
