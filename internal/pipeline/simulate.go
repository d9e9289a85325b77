package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"

	"golang.org/x/sync/errgroup"

	"cyclesdojo/internal/cropland"
	"cyclesdojo/internal/cyclesinput"
	"cyclesdojo/internal/ledger"
	"cyclesdojo/internal/logging"
	"cyclesdojo/internal/simulator"
	"cyclesdojo/internal/table"
)

// Scenario is one simulate-stage run over all points of a country.
type Scenario struct {
	Country   string
	Crop      string
	StartYear int
	EndYear   int
	// PlantingDay is added to each unit's agronomic planting day, or used
	// as is when Absolute is set.
	PlantingDay    int
	Absolute       bool
	FertilizerRate float64
	WeedFraction   float64
}

// Label identifies the scenario in logs and file names.
func (s Scenario) Label() string {
	return fmt.Sprintf("%s.%s.%d", s.Country, s.Crop, s.PlantingDay)
}

// Scenario returns the configured scenario for country and crop.
func (d *Driver) Scenario(country, crop string) Scenario {
	sc := d.cfg.Scenario
	return Scenario{
		Country:        country,
		Crop:           crop,
		StartYear:      sc.StartYear,
		EndYear:        sc.EndYear,
		PlantingDay:    sc.StartPlantingDay,
		FertilizerRate: sc.FertilizerRate,
		WeedFraction:   sc.WeedFraction,
	}
}

// ResultColumns is the layout of a simulate-stage result table.
var ResultColumns = []string{
	"date", "country", "admin1", "admin2", "admin3",
	"grain_yield", "nitrogen_stress", "crop_production", "water_stress", "relative_yield",
}

// Season file columns read from each run.
var seasonColumns = []string{"grain_yield", "cum._n_stress", "actual_tr", "potential_tr"}

// SimulateReport summarizes one scenario.
type SimulateReport struct {
	BatchID   string
	Scenario  Scenario
	Output    string
	Points    int
	Succeeded int
	Failed    int
	Rows      int
}

// ErrNoResults is returned when no point of a scenario produced output.
var ErrNoResults = errors.New("no successful simulator runs")

// Simulate runs the simulator for every resource point of the scenario's
// country and writes one result table. Failed points are logged, recorded
// and left out.
func (d *Driver) Simulate(ctx context.Context, sc Scenario) (SimulateReport, error) {
	in, err := d.loadInputs(!sc.Absolute)
	if err != nil {
		return SimulateReport{Scenario: sc}, err
	}
	return d.simulate(ctx, d.startBatch("simulate"), sc, in)
}

type inputs struct {
	resources []cropland.Resource
	agronomy  *cropland.Table
}

func (d *Driver) loadInputs(needAgronomy bool) (inputs, error) {
	if d.runner == nil {
		return inputs{}, errors.New("no simulator runner configured")
	}
	res, err := cropland.LoadResources(d.cfg.Paths.Resources)
	if err != nil {
		return inputs{}, err
	}
	agro, err := cropland.LoadTable(d.cfg.Paths.Agronomy)
	switch {
	case err == nil:
	case !needAgronomy && errors.Is(err, os.ErrNotExist):
		logging.PipelineWarn("No agronomy table at %s; using default yields and areas", d.cfg.Paths.Agronomy)
		agro = cropland.New(nil, nil)
	default:
		return inputs{}, err
	}
	return inputs{resources: res, agronomy: agro}, nil
}

type pointResult struct {
	rows [][]string
	err  error
}

func (d *Driver) simulate(ctx context.Context, batchID string, sc Scenario, in inputs) (SimulateReport, error) {
	timer := logging.StartTimer(logging.CategoryPipeline, "simulate "+sc.Label())
	defer timer.StopWithInfo()

	report := SimulateReport{BatchID: batchID, Scenario: sc, Output: ResultPath(d.cfg.Paths.OutputDir, sc.Country, sc.Crop, sc.PlantingDay)}
	points := cropland.ResourcesFor(in.resources, sc.Country)
	report.Points = len(points)
	if len(points) == 0 {
		logging.PipelineWarn("%s: no resource points", sc.Label())
		return report, fmt.Errorf("%s: %w", sc.Label(), ErrNoResults)
	}

	results := make([]pointResult, len(points))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.cfg.WorkerCount())
	for i, p := range points {
		i, p := i, p
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			rows, err := d.runPoint(gctx, batchID, sc, p, in.agronomy)
			if err != nil && gctx.Err() != nil {
				return gctx.Err()
			}
			results[i] = pointResult{rows: rows, err: err}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return report, err
	}

	log := logging.Get(logging.CategoryPipeline).With("batch", batchID, "scenario", sc.Label())
	var rows [][]string
	for i, r := range results {
		if r.err != nil {
			report.Failed++
			log.Warn("Point %s skipped: %v", points[i].Key, r.err)
			continue
		}
		report.Succeeded++
		rows = append(rows, r.rows...)
	}
	report.Rows = len(rows)
	log.Info("%d/%d points succeeded, %d rows", report.Succeeded, report.Points, report.Rows)

	if report.Succeeded == 0 {
		return report, fmt.Errorf("%s: %w", sc.Label(), ErrNoResults)
	}
	if err := table.WriteCSV(report.Output, ResultColumns, rows); err != nil {
		return report, err
	}
	return report, nil
}

func (d *Driver) runPoint(ctx context.Context, batchID string, sc Scenario, p cropland.Resource, agronomy *cropland.Table) ([][]string, error) {
	agro := agronomy.Agronomy(p.Key, sc.Crop)
	day := sc.PlantingDay
	if !sc.Absolute {
		day += agro.PlantingDay
	}
	day = cyclesinput.AdjustDOY(day)

	tmp := filepath.Join(d.cfg.Paths.TmpDir, sc.Label())
	run := simulator.Run{
		Point:          p.Key.String(),
		Input:          p.Filename,
		SeasonFile:     filepath.Join(tmp, p.Filename+".season"),
		SummaryFile:    filepath.Join(tmp, p.Filename+".summary"),
		StartYear:      sc.StartYear,
		EndYear:        sc.EndYear,
		Crop:           sc.Crop,
		PlantingDay:    day,
		FertilizerRate: sc.FertilizerRate,
		WeedFraction:   sc.WeedFraction,
	}
	rec := ledger.RunRecord{
		BatchID:     batchID,
		Country:     sc.Country,
		Crop:        sc.Crop,
		PlantingDay: day,
		Point:       run.Point,
		Status:      ledger.StatusOK,
	}

	res, err := d.runner.Run(ctx, run)
	if res != nil {
		rec.ExitCode = res.ExitCode
		rec.Duration = res.Duration
	}
	if err != nil {
		rec.Status = ledger.StatusFailed
		var ierr *simulator.InvocationError
		if errors.As(err, &ierr) && ierr.Killed {
			rec.Status = ledger.StatusKilled
		}
		rec.Message = err.Error()
		d.recordRun(rec)
		return nil, err
	}

	rows, err := seasonRows(run.SeasonFile, p, agro)
	if err != nil {
		rec.Status = ledger.StatusParseError
		rec.Message = err.Error()
		d.recordRun(rec)
		return nil, err
	}
	d.recordRun(rec)
	return rows, nil
}

// seasonRows loads a season file and derives the result columns.
func seasonRows(path string, p cropland.Resource, agro cropland.Agronomy) ([][]string, error) {
	season, err := table.LoadFile(path, table.SimulatorOutput())
	if err != nil {
		return nil, err
	}
	for _, col := range seasonColumns {
		if !season.Has(col) {
			return nil, &table.ParseError{Path: path, Reason: fmt.Sprintf("missing column %q", col)}
		}
	}
	if season.Dates == nil {
		return nil, &table.ParseError{Path: path, Reason: "missing column \"date\""}
	}

	key := p.Key.Fields()
	rows := make([][]string, 0, season.Len())
	for i := 0; i < season.Len(); i++ {
		date, _ := season.Date(i)
		gy, gyOK := season.Float(i, "grain_yield")
		ns, nsOK := season.Float(i, "cum._n_stress")
		actual, aOK := season.Float(i, "actual_tr")
		potential, pOK := season.Float(i, "potential_tr")

		row := make([]string, 0, len(ResultColumns))
		row = append(row, date.Format(table.DateLayout))
		row = append(row, key...)
		row = append(row,
			formatValue(gy, gyOK),
			formatValue(ns, nsOK),
			formatValue(gy*agro.FractionalArea, gyOK),
			formatValue(waterStress(actual, potential), aOK && pOK),
			formatValue(gy/agro.GrainYield, gyOK && agro.GrainYield != 0),
		)
		rows = append(rows, row)
	}
	return rows, nil
}

// waterStress is the unmet share of potential transpiration.
func waterStress(actual, potential float64) float64 {
	if potential == 0 {
		return 0
	}
	return 1 - actual/potential
}

func formatValue(v float64, ok bool) string {
	if !ok || math.IsNaN(v) || math.IsInf(v, 0) {
		return ""
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}
