package cyclesinput

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"cyclesdojo/internal/logging"
	"cyclesdojo/internal/simulator"
)

// Simulation name shared by the generated input files.
const (
	RunName       = "cycles-run"
	ControlFile   = RunName + ".ctrl"
	OperationFile = RunName + ".operation"
)

// Files are the paths written by Generate.
type Files struct {
	Control   string
	Operation string
}

// ControlValues returns the placeholder values of the control template.
func ControlValues(p Params) map[string]string {
	return map[string]string{
		"start_year":     strconv.Itoa(p.StartYear),
		"end_year":       strconv.Itoa(p.EndYear),
		"rotation_size":  "1",
		"crop_file":      p.CropFile,
		"operation_file": OperationFile,
		"soil_file":      p.SoilFile,
		"weather_file":   p.WeatherFile,
		"reinit":         "0",
	}
}

// Generate writes the control and operation files into dir/input. An empty
// tmpl uses DefaultControlTemplate.
func Generate(dir, tmpl string, p Params) (Files, error) {
	if tmpl == "" {
		tmpl = DefaultControlTemplate
	}
	ctrl, err := RenderControl(tmpl, ControlValues(p))
	if err != nil {
		return Files{}, fmt.Errorf("render control file: %w", err)
	}
	ops := Operations(p)

	input := filepath.Join(dir, "input")
	if err := os.MkdirAll(input, 0755); err != nil {
		return Files{}, fmt.Errorf("create input dir: %w", err)
	}
	files := Files{
		Control:   filepath.Join(input, ControlFile),
		Operation: filepath.Join(input, OperationFile),
	}
	if err := os.WriteFile(files.Control, []byte(ctrl), 0644); err != nil {
		return Files{}, fmt.Errorf("write control file: %w", err)
	}
	if err := os.WriteFile(files.Operation, []byte(RenderOperations(ops)), 0644); err != nil {
		return Files{}, fmt.Errorf("write operation file: %w", err)
	}

	logging.Wrapper("Generated %s and %s: %s planted on day %d, %d operations",
		files.Control, files.Operation, p.Crop, AdjustDOY(p.StartPlantingDay), len(ops))
	return files, nil
}

// Launch runs "<bin> -s cycles-run" in dir. A failed run is returned as
// *simulator.InvocationError.
func Launch(ctx context.Context, exec simulator.Executor, bin, dir string) (*simulator.ExecutionResult, error) {
	cmd := simulator.Command{
		Binary:           bin,
		Arguments:        []string{"-s", RunName},
		WorkingDirectory: dir,
		Point:            dir,
	}
	logging.Wrapper("Launching %s", cmd)
	res, err := exec.Execute(ctx, cmd)
	if err != nil {
		return nil, &simulator.InvocationError{Point: dir, ExitCode: -1, Err: err}
	}
	if res.Failed() {
		ierr := &simulator.InvocationError{Point: dir, ExitCode: res.ExitCode, Killed: res.Killed, Reason: res.KillReason}
		if res.Error != "" {
			ierr.Reason = res.Error
		}
		return res, ierr
	}
	return res, nil
}
