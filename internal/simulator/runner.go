package simulator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"cyclesdojo/internal/logging"
)

// InvocationError reports a simulator run that exited nonzero, was killed
// or could not be started. The run is skipped; the batch continues.
type InvocationError struct {
	Point    string
	ExitCode int
	Killed   bool
	Reason   string
	Err      error
}

func (e *InvocationError) Error() string {
	switch {
	case e.Killed:
		return fmt.Sprintf("simulator run %s killed: %s", e.Point, e.Reason)
	case e.Err != nil:
		return fmt.Sprintf("simulator run %s: %v", e.Point, e.Err)
	case e.Reason != "":
		return fmt.Sprintf("simulator run %s exited %d: %s", e.Point, e.ExitCode, e.Reason)
	default:
		return fmt.Sprintf("simulator run %s exited %d", e.Point, e.ExitCode)
	}
}

func (e *InvocationError) Unwrap() error { return e.Err }

// Run is one simulation of one point.
type Run struct {
	// Point labels the run in logs and errors.
	Point string
	// Input is the soil/weather file name, relative to the soil/weather dir.
	Input       string
	SeasonFile  string
	SummaryFile string

	StartYear      int
	EndYear        int
	Crop           string
	PlantingDay    int
	FertilizerRate float64
	WeedFraction   float64
	Baseline       bool
}

// RunnerConfig locates the run script and its shared inputs.
type RunnerConfig struct {
	Script         string
	SoilWeatherDir string
	CropsFile      string
	// Timeout bounds each run. Zero uses the executor default.
	Timeout time.Duration
	WorkDir string
}

// Runner invokes the simulator run script.
type Runner struct {
	exec Executor
	cfg  RunnerConfig
}

// NewRunner creates a Runner on top of exec.
func NewRunner(exec Executor, cfg RunnerConfig) *Runner {
	return &Runner{exec: exec, cfg: cfg}
}

// Args returns the run-script arguments for run.
func (r *Runner) Args(run Run) []string {
	return []string{
		"-i1", filepath.Join(r.cfg.SoilWeatherDir, run.Input),
		"-i2", r.cfg.CropsFile,
		"-o1", run.SeasonFile,
		"-o2", run.SummaryFile,
		"-p1", strconv.Itoa(run.StartYear),
		"-p2", strconv.Itoa(run.EndYear),
		"-p3", run.Crop,
		"-p4", strconv.Itoa(run.PlantingDay),
		"-p5", strconv.FormatFloat(run.FertilizerRate, 'f', 2, 64),
		"-p6", strconv.FormatFloat(run.WeedFraction, 'g', -1, 64),
		"-p7", boolFlag(run.Baseline),
	}
}

// Run executes one simulation. It returns the execution result together
// with an *InvocationError when the run failed.
func (r *Runner) Run(ctx context.Context, run Run) (*ExecutionResult, error) {
	for _, f := range []string{run.SeasonFile, run.SummaryFile} {
		if err := os.MkdirAll(filepath.Dir(f), 0755); err != nil {
			return nil, &InvocationError{Point: run.Point, ExitCode: -1, Err: fmt.Errorf("create output dir: %w", err)}
		}
	}

	cmd := Command{
		Binary:           r.cfg.Script,
		Arguments:        r.Args(run),
		WorkingDirectory: r.cfg.WorkDir,
		Point:            run.Point,
	}
	if r.cfg.Timeout > 0 {
		cmd.Limits = &ResourceLimits{TimeoutMs: r.cfg.Timeout.Milliseconds()}
	}

	logging.Simulator("Run %s: %s day %d", run.Point, run.Crop, run.PlantingDay)
	res, err := r.exec.Execute(ctx, cmd)
	if err != nil {
		return nil, &InvocationError{Point: run.Point, ExitCode: -1, Err: err}
	}
	if !res.Failed() {
		return res, nil
	}

	ierr := &InvocationError{Point: run.Point, ExitCode: res.ExitCode, Killed: res.Killed, Reason: res.KillReason}
	if res.Error != "" {
		ierr.Reason = res.Error
	} else if !res.Killed {
		ierr.Reason = lastLine(res.Stderr)
	}
	logging.SimulatorWarn("%v", ierr)
	return res, ierr
}

func boolFlag(b bool) string {
	if b {
		return "True"
	}
	return "False"
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}
