package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"cyclesdojo/internal/config"
)

// sweepCmd simulates every candidate day
var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Simulate every crop, country and candidate planting day",
	Long: `Runs the simulate stage once per crop x country x candidate day, using
each candidate day as the absolute planting day. The result tables are the
inputs of the reference stage. Failed scenarios are reported and skipped.`,
	RunE: runSweep,
}

func init() {
	sweepCmd.Flags().StringSlice("countries", nil, "Override scenario.countries")
	sweepCmd.Flags().StringSlice("crops", nil, "Override scenario.crops")
}

// applyScenarioOverrides replaces the configured countries and crops and
// re-validates.
func applyScenarioOverrides(cmd *cobra.Command) error {
	if v, _ := cmd.Flags().GetStringSlice("countries"); len(v) > 0 {
		cfg.Scenario.Countries = v
	}
	if v, _ := cmd.Flags().GetStringSlice("crops"); len(v) > 0 {
		cfg.Scenario.Crops = v
	}
	return cfg.Validate()
}

func runSweep(cmd *cobra.Command, args []string) error {
	if err := applyScenarioOverrides(cmd); err != nil {
		return err
	}
	if err := cfg.RequireFiles(config.StageSweep); err != nil {
		return err
	}

	d, cleanup, err := newDriver()
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, cancel := commandContext()
	defer cancel()

	logger.Info("Starting sweep",
		zap.Strings("crops", cfg.Scenario.Crops),
		zap.Strings("countries", cfg.Scenario.Countries),
		zap.Ints("days", cfg.Scenario.CandidateDays))
	report, err := d.Sweep(ctx)
	if err != nil {
		return err
	}
	for _, sc := range report.Scenarios {
		status := "ok"
		if sc.Succeeded == 0 {
			status = "FAILED"
		}
		fmt.Printf("%-40s %-7s %d/%d points\n", sc.Scenario.Label(), status, sc.Succeeded, sc.Points)
	}
	fmt.Printf("Sweep %s: %d scenarios, %d failed\n", report.BatchID, len(report.Scenarios), report.Failed)
	return nil
}
