package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// newSyncCmd creates and configures the 'sync' subcommand. It mirrors catalog
// dataset metadata into the record store and can optionally parse each synced
// dataset's file resources in the same run.
func newSyncCmd() *cobra.Command {
	var (
		query     string
		limit     int
		datasetID string
		process   bool
		maxRows   int
	)

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Syncs dataset metadata from the catalog",
		Long: `Pages through the catalog search API and upserts every dataset and
resource payload encountered. With --dataset-id a single dataset is synced
instead. With --process the file resources of each synced dataset are
downloaded and parsed into data records.`,

		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			logger := appInstance.Logger()

			if maxRows <= 0 {
				maxRows = appInstance.Config().Sync.MaxRows
			}

			var externalIDs []string
			if datasetID != "" {
				ds, err := appInstance.Syncer().SyncSingleDataset(cmd.Context(), datasetID)
				if err != nil {
					return fmt.Errorf("sync dataset %s: %w", datasetID, err)
				}
				externalIDs = append(externalIDs, ds.ExternalID)
				cmd.Printf("synced dataset %s (%s)\n", ds.Title, ds.ExternalID)
			} else {
				synced, err := appInstance.Syncer().SyncByQuery(cmd.Context(), query, limit)
				if err != nil {
					return fmt.Errorf("sync query %q: %w", query, err)
				}
				for _, ds := range synced {
					externalIDs = append(externalIDs, ds.ExternalID)
				}
				cmd.Printf("synced %d datasets\n", len(synced))
			}

			if !process {
				return nil
			}

			totalRecords := 0
			totalErrors := 0
			for _, externalID := range externalIDs {
				result, err := appInstance.Processor().ProcessDatasetResources(cmd.Context(), externalID, maxRows)
				if err != nil {
					logger.Error("process dataset resources",
						zap.String("dataset", externalID),
						zap.Error(err),
					)
					totalErrors++
					continue
				}
				totalRecords += result.TotalRecords
				totalErrors += len(result.Errors)
			}
			cmd.Printf("processed resources: %d records, %d errors\n", totalRecords, totalErrors)
			return nil
		},
	}

	cmd.Flags().StringVar(&query, "query", "", "catalog search query")
	cmd.Flags().IntVar(&limit, "limit", 100, "maximum number of datasets to sync")
	cmd.Flags().StringVar(&datasetID, "dataset-id", "", "sync a single dataset by its catalog identifier")
	cmd.Flags().BoolVar(&process, "process", false, "also download and parse file resources")
	cmd.Flags().IntVar(&maxRows, "max-rows", 0, "per-resource record cap (default from config)")

	return cmd
}
