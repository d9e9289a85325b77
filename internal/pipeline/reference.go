package pipeline

import (
	"context"
	"fmt"

	"cyclesdojo/internal/aggregate"
	"cyclesdojo/internal/cropland"
	"cyclesdojo/internal/ledger"
	"cyclesdojo/internal/logging"
)

// CropReport is the outcome of one crop in the reference stage.
type CropReport struct {
	Crop            string
	References      int
	FailedCountries []string
	Merge           cropland.MergeStats
}

// ReferenceReport summarizes the reference stage.
type ReferenceReport struct {
	BatchID string
	Output  string
	Crops   []CropReport
	Rows    int
}

// Reference computes every unit's reference planting day per crop, merges
// the crops into the cropland table one after the other and writes the
// enriched table once. A country whose day tables cannot be aggregated
// contributes no references.
func (d *Driver) Reference(ctx context.Context) (ReferenceReport, error) {
	timer := logging.StartTimer(logging.CategoryPipeline, "reference")
	defer timer.StopWithInfo()

	base, err := cropland.LoadTable(d.cfg.Paths.Cropland)
	if err != nil {
		return ReferenceReport{}, err
	}
	report := ReferenceReport{BatchID: d.startBatch("reference"), Output: d.cfg.Paths.Enriched}
	logging.Pipeline("Reference %s: cropland %s has %d rows", report.BatchID, d.cfg.Paths.Cropland, base.Len())

	current := base
	for _, crop := range d.cfg.Scenario.Crops {
		cr := CropReport{Crop: crop}
		refs := make(aggregate.Results)
		for _, country := range d.cfg.Scenario.Countries {
			res, _, err := d.agg.Aggregate(ctx, country, crop, d.dayFiles(country, crop))
			if ctxErr := ctx.Err(); ctxErr != nil {
				return report, ctxErr
			}
			if err != nil {
				cr.FailedCountries = append(cr.FailedCountries, country)
				logging.PipelineWarn("Reference %s/%s skipped: %v", country, crop, err)
				continue
			}
			refs.Union(res)
		}
		cr.References = len(refs)

		var stats cropland.MergeStats
		current, stats = current.Merge(crop, refs)
		cr.Merge = stats
		d.recordMerge(ledger.MergeRecord{
			BatchID:    report.BatchID,
			Crop:       crop,
			Before:     stats.Before,
			After:      stats.After,
			References: stats.References,
			Dropped:    stats.Dropped,
			Unmatched:  stats.Unmatched,
		})
		if stats.Mismatch() {
			logging.PipelineWarn("Reference %s: inner join kept %d of %d rows", crop, stats.After, stats.Before)
		}
		report.Crops = append(report.Crops, cr)
	}

	if err := current.Write(report.Output); err != nil {
		return report, fmt.Errorf("write enriched cropland: %w", err)
	}
	report.Rows = current.Len()
	logging.Pipeline("Reference %s: wrote %d rows to %s", report.BatchID, report.Rows, report.Output)
	return report, nil
}

func (d *Driver) dayFiles(country, crop string) []aggregate.DayFile {
	days := d.cfg.Scenario.CandidateDays
	files := make([]aggregate.DayFile, len(days))
	for i, day := range days {
		files[i] = aggregate.DayFile{Day: day, Path: ResultPath(d.cfg.Paths.OutputDir, country, crop, day)}
	}
	return files
}
