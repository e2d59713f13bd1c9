package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/jonathan/companies-search/internal/db"
	"github.com/jonathan/companies-search/internal/ingest"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Run one dataset ingestion from the terminal",
	Long:  "Download the current Companies House snapshot, import it into the database, and print progress until the run finishes.",
	RunE:  runIngest,
}

func init() {
	ingestCmd.Flags().StringVar(&configPath, "config", "", "Path to JSON config file")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(_ *cobra.Command, _ []string) error {
	cfg, err := resolveConfig(0)
	if err != nil {
		return err
	}

	ctx := context.Background()
	database, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()

	if err := database.InitSchema(ctx); err != nil {
		return err
	}

	controller := ingest.NewController(ingest.Config{
		Open:      datasetOpener(cfg),
		Store:     database,
		BatchSize: cfg.BatchSize,
	})
	if err := controller.Start(); err != nil {
		return err
	}

	// The run is asynchronous; poll it the same way an API client would.
	for {
		time.Sleep(2 * time.Second)
		snap := controller.Status()
		switch snap.Status {
		case ingest.StatusDownloading:
			fmt.Fprintf(os.Stdout, "downloading...\n")
		case ingest.StatusProcessing:
			fmt.Fprintf(os.Stdout, "processed %d of ~%d records (%.1f%%), %d rows skipped\n",
				snap.ProcessedRecords, snap.TotalRecords, snap.CompletionPercentage, snap.ErrorRecords)
		case ingest.StatusFailed:
			return fmt.Errorf("ingestion failed: %s", snap.LastError)
		case ingest.StatusCompleted:
			total, err := database.CountCompanies(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(os.Stdout, "ingestion complete: %d records imported, %d rows skipped, %d companies stored\n",
				snap.ProcessedRecords, snap.ErrorRecords, total)
			return nil
		}
	}
}
