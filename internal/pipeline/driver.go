// Package pipeline drives the three stages: simulate one scenario, sweep
// every candidate day, and derive reference planting days into the
// cropland table.
package pipeline

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/google/uuid"

	"cyclesdojo/internal/aggregate"
	"cyclesdojo/internal/config"
	"cyclesdojo/internal/ledger"
	"cyclesdojo/internal/logging"
	"cyclesdojo/internal/simulator"
)

// Runner executes one simulator run.
type Runner interface {
	Run(ctx context.Context, run simulator.Run) (*simulator.ExecutionResult, error)
}

// Recorder persists run and merge outcomes. *ledger.Ledger implements it.
type Recorder interface {
	StartBatch(kind string) (string, error)
	RecordRun(r ledger.RunRecord) error
	RecordMerge(m ledger.MergeRecord) error
}

// Deps are the collaborators of a Driver. Runner is required by the
// simulate and sweep stages; Recorder and Aggregator are optional.
type Deps struct {
	Runner     Runner
	Recorder   Recorder
	Aggregator *aggregate.Aggregator
}

// Driver runs pipeline stages with an immutable configuration.
type Driver struct {
	cfg      *config.Config
	runner   Runner
	recorder Recorder
	agg      *aggregate.Aggregator
}

// New creates a Driver. The configuration must already be validated.
func New(cfg *config.Config, deps Deps) *Driver {
	agg := deps.Aggregator
	if agg == nil {
		agg = aggregate.New(aggregate.Options{
			HalfWindow: cfg.Selection.HalfWindow,
			Workers:    cfg.WorkerCount(),
			Metric:     cfg.Selection.Metric,
		})
	}
	return &Driver{cfg: cfg, runner: deps.Runner, recorder: deps.Recorder, agg: agg}
}

// ResultPath is the result table of one (country, crop, day) scenario.
func ResultPath(dir, country, crop string, day int) string {
	return filepath.Join(dir, fmt.Sprintf("%s.%s.%d.csv", country, crop, day))
}

func (d *Driver) startBatch(kind string) string {
	if d.recorder != nil {
		id, err := d.recorder.StartBatch(kind)
		if err == nil {
			return id
		}
		logging.PipelineWarn("ledger: %v", err)
	}
	return uuid.NewString()
}

func (d *Driver) recordRun(r ledger.RunRecord) {
	if d.recorder == nil {
		return
	}
	if err := d.recorder.RecordRun(r); err != nil {
		logging.PipelineWarn("ledger: %v", err)
	}
}

func (d *Driver) recordMerge(m ledger.MergeRecord) {
	if d.recorder == nil {
		return
	}
	if err := d.recorder.RecordMerge(m); err != nil {
		logging.PipelineWarn("ledger: %v", err)
	}
}
