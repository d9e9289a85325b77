package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"cyclesdojo/internal/table"
)

// Period is the number of candidate planting days in one cycle.
const Period = 12

// Validate rejects structurally invalid configuration. All problems are
// reported together.
func (c *Config) Validate() error {
	var errs []error

	s := c.Scenario
	if len(s.CandidateDays) != Period {
		errs = append(errs, fmt.Errorf("scenario.candidate_days: need %d days, got %d", Period, len(s.CandidateDays)))
	}
	seen := make(map[int]bool, len(s.CandidateDays))
	for i, d := range s.CandidateDays {
		if d < 1 || d > 365 {
			errs = append(errs, fmt.Errorf("scenario.candidate_days[%d]: %d outside 1..365", i, d))
		}
		switch {
		case seen[d]:
			errs = append(errs, fmt.Errorf("scenario.candidate_days[%d]: duplicate day %d", i, d))
		case i > 0 && d < s.CandidateDays[i-1]:
			errs = append(errs, fmt.Errorf("scenario.candidate_days[%d]: %d breaks ascending order", i, d))
		}
		seen[d] = true
	}
	if s.EndYear < s.StartYear {
		errs = append(errs, fmt.Errorf("scenario: end_year %d before start_year %d", s.EndYear, s.StartYear))
	}
	if len(s.Crops) == 0 {
		errs = append(errs, errors.New("scenario.crops: at least one crop required"))
	}
	crops := make(map[string]bool, len(s.Crops))
	for _, crop := range s.Crops {
		n := table.NormalizeColumn(crop)
		if n == "" {
			errs = append(errs, errors.New("scenario.crops: empty crop name"))
			continue
		}
		if crops[n] {
			errs = append(errs, fmt.Errorf("scenario.crops: duplicate crop %q", crop))
		}
		crops[n] = true
	}
	countries := make(map[string]bool, len(s.Countries))
	for _, country := range s.Countries {
		if strings.TrimSpace(country) == "" {
			errs = append(errs, errors.New("scenario.countries: empty country name"))
		}
		if countries[country] {
			errs = append(errs, fmt.Errorf("scenario.countries: duplicate country %q", country))
		}
		countries[country] = true
	}
	if s.WeedFraction < 0 {
		errs = append(errs, fmt.Errorf("scenario.weed_fraction: %g is negative", s.WeedFraction))
	}

	h := c.Selection.HalfWindow
	if h < 0 || 2*h+1 > Period {
		errs = append(errs, fmt.Errorf("selection.half_window: %d does not fit a %d-day cycle", h, Period))
	}
	if c.Execution.Workers < 0 {
		errs = append(errs, fmt.Errorf("execution.workers: %d is negative", c.Execution.Workers))
	}
	if c.Ledger.Enabled && c.Ledger.Path == "" {
		errs = append(errs, errors.New("ledger.path: required when the ledger is enabled"))
	}
	if !validLevel(c.Logging.Level) {
		errs = append(errs, fmt.Errorf("logging.level: invalid level %q (valid: %v)", c.Logging.Level, ValidLevels))
	}

	return errors.Join(errs...)
}

// Stage names a pipeline entry point for RequireFiles.
type Stage string

const (
	StageSimulate  Stage = "simulate"
	StageSweep     Stage = "sweep"
	StageReference Stage = "reference"
	StageWrapper   Stage = "wrapper"
)

// RequireFiles reports the required inputs of stage that do not exist.
func (c *Config) RequireFiles(stage Stage) error {
	var need map[string]string
	switch stage {
	case StageSimulate, StageSweep:
		need = map[string]string{
			"simulator.run_script":   c.Simulator.RunScript,
			"paths.resources":        c.Paths.Resources,
			"paths.crops_file":       c.Paths.CropsFile,
			"paths.soil_weather_dir": c.Paths.SoilWeatherDir,
		}
		if stage == StageSimulate {
			need["paths.agronomy"] = c.Paths.Agronomy
		}
	case StageReference:
		need = map[string]string{"paths.cropland": c.Paths.Cropland}
	case StageWrapper:
		need = map[string]string{"simulator.binary": c.Simulator.Binary}
		if c.Simulator.ControlTemplate != "" {
			need["simulator.control_template"] = c.Simulator.ControlTemplate
		}
	default:
		return fmt.Errorf("unknown stage %q", stage)
	}

	var errs []error
	for _, key := range sortedKeys(need) {
		path := need[key]
		if path == "" {
			errs = append(errs, fmt.Errorf("%s: not configured", key))
			continue
		}
		if _, err := os.Stat(path); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
		}
	}
	return errors.Join(errs...)
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
