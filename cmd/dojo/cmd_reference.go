package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"cyclesdojo/internal/config"
	"cyclesdojo/internal/pipeline"
)

// referenceCmd derives reference planting days
var referenceCmd = &cobra.Command{
	Use:   "reference",
	Short: "Select reference planting days and enrich the cropland table",
	Long: `Reads the sweep's result tables, selects each unit's reference planting
day per crop with a circular moving average over the candidate days, and
adds <crop>_pd and <crop>_grain_yield columns to the cropland table.
Units missing from any crop's references are dropped.`,
	RunE: runReference,
}

func init() {
	referenceCmd.Flags().StringSlice("countries", nil, "Override scenario.countries")
	referenceCmd.Flags().StringSlice("crops", nil, "Override scenario.crops")
}

func runReference(cmd *cobra.Command, args []string) error {
	if err := applyScenarioOverrides(cmd); err != nil {
		return err
	}
	if err := cfg.RequireFiles(config.StageReference); err != nil {
		return err
	}

	// The reference stage runs no simulator; only the ledger is wired.
	d, cleanup, err := newDriver()
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, cancel := commandContext()
	defer cancel()

	report, err := d.Reference(ctx)
	if err != nil {
		return err
	}
	printReference(report)
	logger.Info("Reference complete", zap.String("batch", report.BatchID), zap.Int("rows", report.Rows))
	return nil
}

func printReference(r pipeline.ReferenceReport) {
	for _, c := range r.Crops {
		line := fmt.Sprintf("%-12s references=%d rows %d -> %d", c.Crop, c.References, c.Merge.Before, c.Merge.After)
		if c.Merge.Mismatch() {
			line += fmt.Sprintf(" (dropped %d, unmatched %d)", c.Merge.Dropped, c.Merge.Unmatched)
		}
		if len(c.FailedCountries) > 0 {
			line += " skipped: " + strings.Join(c.FailedCountries, ", ")
		}
		fmt.Println(line)
	}
	fmt.Printf("Wrote %d rows to %s\n", r.Rows, r.Output)
}
