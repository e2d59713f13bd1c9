package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jonathan/companies-search/internal/db"
	"github.com/jonathan/companies-search/internal/match"
)

var (
	matchFile      string
	matchOutput    string
	matchThreshold float64
)

var matchCmd = &cobra.Command{
	Use:   "match",
	Short: "Match debtor names against ingested companies",
	Long:  "Load debtor names from a CSV file, shortlist candidates with full-text search, and score each name against the registered company names. Results are written to a CSV file.",
	RunE:  runMatch,
}

func init() {
	matchCmd.Flags().StringVar(&matchFile, "file", "", "Path to the debtor CSV (must have a CustomerName column)")
	matchCmd.Flags().StringVar(&matchOutput, "out", "matches.csv", "Path for the results CSV")
	matchCmd.Flags().Float64Var(&matchThreshold, "threshold", match.DefaultThreshold, "Minimum confidence for a match")
	matchCmd.Flags().StringVar(&configPath, "config", "", "Path to JSON config file")
	_ = matchCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(matchCmd)
}

func runMatch(_ *cobra.Command, _ []string) error {
	cfg, err := resolveConfig(0)
	if err != nil {
		return err
	}

	f, err := os.Open(matchFile)
	if err != nil {
		return fmt.Errorf("failed to open debtor file: %w", err)
	}
	defer func() { _ = f.Close() }()

	debtors, err := match.LoadDebtors(f)
	if err != nil {
		return err
	}
	if len(debtors) == 0 {
		return fmt.Errorf("debtor file %s contains no names", matchFile)
	}

	ctx := context.Background()
	database, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()

	results, err := match.MatchDebtors(ctx, database, match.NewMatcher(),
		debtors, matchThreshold, match.DefaultCandidates)
	if err != nil {
		return err
	}

	out, err := os.Create(matchOutput)
	if err != nil {
		return fmt.Errorf("failed to create results file: %w", err)
	}
	if err := match.WriteResults(out, results); err != nil {
		_ = out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}

	matched := 0
	for _, r := range results {
		if r.HighConfidence {
			matched++
		}
	}
	fmt.Fprintf(os.Stdout, "matched %d of %d debtor names (threshold %.2f), results written to %s\n",
		matched, len(results), matchThreshold, matchOutput)
	return nil
}
