package pipeline

import (
	"context"

	"cyclesdojo/internal/logging"
)

// SweepReport summarizes a sweep over every crop, country and candidate day.
type SweepReport struct {
	BatchID   string
	Scenarios []SimulateReport
	// Failed counts scenarios that wrote no result table.
	Failed int
}

// Sweep runs the simulate stage with each candidate day as an absolute
// planting day, producing the tables the reference stage reads. A failed
// scenario is logged and skipped.
func (d *Driver) Sweep(ctx context.Context) (SweepReport, error) {
	in, err := d.loadInputs(false)
	if err != nil {
		return SweepReport{}, err
	}
	report := SweepReport{BatchID: d.startBatch("sweep")}
	logging.Pipeline("Sweep %s: %d crops x %d countries x %d days", report.BatchID,
		len(d.cfg.Scenario.Crops), len(d.cfg.Scenario.Countries), len(d.cfg.Scenario.CandidateDays))

	for _, crop := range d.cfg.Scenario.Crops {
		for _, country := range d.cfg.Scenario.Countries {
			for _, day := range d.cfg.Scenario.CandidateDays {
				sc := d.Scenario(country, crop)
				sc.PlantingDay = day
				sc.Absolute = true

				r, err := d.simulate(ctx, report.BatchID, sc, in)
				if ctxErr := ctx.Err(); ctxErr != nil {
					return report, ctxErr
				}
				report.Scenarios = append(report.Scenarios, r)
				if err != nil {
					report.Failed++
					logging.PipelineError("Scenario %s: %v", sc.Label(), err)
				}
			}
		}
	}
	logging.Pipeline("Sweep %s finished: %d scenarios, %d failed", report.BatchID, len(report.Scenarios), report.Failed)
	return report, nil
}
