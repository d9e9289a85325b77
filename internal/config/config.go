package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all cyclesdojo configuration.
type Config struct {
	// Input and output locations
	Paths PathsConfig `yaml:"paths"`

	// External simulator
	Simulator SimulatorConfig `yaml:"simulator"`

	// What to simulate
	Scenario ScenarioConfig `yaml:"scenario"`

	// Reference planting date selection
	Selection SelectionConfig `yaml:"selection"`

	// Worker pool and process settings
	Execution ExecutionConfig `yaml:"execution"`

	// Run ledger
	Ledger LedgerConfig `yaml:"ledger"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// PathsConfig locates the input tables and output directories.
type PathsConfig struct {
	Resources string `yaml:"resources"`

	// Reference stage input and output
	Cropland string `yaml:"cropland"`
	Enriched string `yaml:"enriched"`

	// Per-unit planting day and yield used by simulate
	Agronomy string `yaml:"agronomy"`

	CropsFile      string `yaml:"crops_file"`
	SoilWeatherDir string `yaml:"soil_weather_dir"`
	TmpDir         string `yaml:"tmp_dir"`
	OutputDir      string `yaml:"output_dir"`
}

// SimulatorConfig configures the external simulator.
type SimulatorConfig struct {
	RunScript string `yaml:"run_script"`
	// Binary is the simulator executable launched by the wrapper.
	Binary string `yaml:"binary"`
	// ControlTemplate is an optional control file template; empty uses the
	// built-in one.
	ControlTemplate string `yaml:"control_template"`
	Timeout         string `yaml:"timeout"`
	MaxOutputBytes  int64  `yaml:"max_output_bytes"`
}

// ScenarioConfig lists what the simulate and sweep stages run.
type ScenarioConfig struct {
	Countries        []string `yaml:"countries"`
	Crops            []string `yaml:"crops"`
	CandidateDays    []int    `yaml:"candidate_days"`
	StartYear        int      `yaml:"start_year"`
	EndYear          int      `yaml:"end_year"`
	StartPlantingDay int      `yaml:"start_planting_day"`
	FertilizerRate   float64  `yaml:"fertilizer_rate"`
	WeedFraction     float64  `yaml:"weed_fraction"`
}

// SelectionConfig configures the moving-average selection.
type SelectionConfig struct {
	HalfWindow int    `yaml:"half_window"`
	Metric     string `yaml:"metric"`
}

// LedgerConfig configures the run ledger.
type LedgerConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// DefaultConfig returns the Horn of Africa configuration.
func DefaultConfig() *Config {
	return &Config{
		Paths: PathsConfig{
			Resources:      "data/HOAResources.csv",
			Cropland:       "data/HOACropland.csv",
			Enriched:       "data/HOACropland_new.csv",
			Agronomy:       "data/HOACropland_new.csv",
			CropsFile:      "data/crops-horn-of-africa.crop",
			SoilWeatherDir: "data/soil_weather",
			TmpDir:         "tmp",
			OutputDir:      "outputs",
		},

		Simulator: SimulatorConfig{
			RunScript:      "bin/cycles/run",
			Binary:         "bin/cycles/Cycles",
			Timeout:        "10m",
			MaxOutputBytes: 4 * 1024 * 1024,
		},

		Scenario: ScenarioConfig{
			Countries: []string{
				"Djibouti", "Eritrea", "Kenya", "Ethiopia",
				"South Sudan", "Sudan", "Uganda", "Somalia",
			},
			Crops:            []string{"Maize"},
			CandidateDays:    []int{15, 46, 74, 105, 135, 166, 196, 227, 258, 288, 319, 345},
			StartYear:        2000,
			EndYear:          2020,
			StartPlantingDay: 103,
			FertilizerRate:   50.00,
			WeedFraction:     0.2,
		},

		Selection: SelectionConfig{
			HalfWindow: 2,
			Metric:     "grain_yield",
		},

		Execution: ExecutionConfig{
			Workers:          0,
			WorkingDirectory: ".",
			AllowedEnvVars:   []string{"PATH", "HOME", "USER", "LANG", "LC_ALL", "TMPDIR"},
		},

		Ledger: LedgerConfig{
			Enabled: true,
			Path:    ".dojo/ledger.db",
		},

		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load loads configuration from a YAML file. A missing file yields the
// defaults. A .env file next to the config is read first without
// overriding variables already set.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	envFile := filepath.Join(filepath.Dir(path), ".env")
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to read %s: %w", envFile, err)
	}

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
	case err != nil:
		return nil, fmt.Errorf("failed to read config: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	// Override with environment variables
	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() error {
	if v := os.Getenv("DOJO_RUN_SCRIPT"); v != "" {
		c.Simulator.RunScript = v
	}
	if v := os.Getenv("DOJO_OUTPUT_DIR"); v != "" {
		c.Paths.OutputDir = v
	}
	if v := os.Getenv("DOJO_LEDGER"); v != "" {
		c.Ledger.Path = v
		c.Ledger.Enabled = true
	}
	if v := os.Getenv("DOJO_TIMEOUT"); v != "" {
		if _, err := time.ParseDuration(v); err != nil {
			return fmt.Errorf("DOJO_TIMEOUT: %w", err)
		}
		c.Simulator.Timeout = v
	}
	if v := os.Getenv("DOJO_WORKERS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("DOJO_WORKERS: %w", err)
		}
		c.Execution.Workers = n
	}
	return nil
}

// GetSimulatorTimeout returns the per-run timeout as a duration.
func (c *Config) GetSimulatorTimeout() time.Duration {
	d, err := time.ParseDuration(c.Simulator.Timeout)
	if err != nil || d <= 0 {
		return 10 * time.Minute
	}
	return d
}
