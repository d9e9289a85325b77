package config

import (
	"runtime"

	"cyclesdojo/internal/simulator"
)

// ExecutionConfig configures the worker pools and simulator processes.
type ExecutionConfig struct {
	// Workers bounds concurrent simulator runs and file loads; 0 uses GOMAXPROCS.
	Workers int `yaml:"workers"`

	// Working directory for simulator processes
	WorkingDirectory string `yaml:"working_directory"`

	// Environment variables passed to the simulator
	AllowedEnvVars []string `yaml:"allowed_env_vars"`
}

// WorkerCount returns the effective worker count.
func (c *Config) WorkerCount() int {
	if c.Execution.Workers > 0 {
		return c.Execution.Workers
	}
	return runtime.GOMAXPROCS(0)
}

// ExecutorConfig builds the simulator executor configuration.
func (c *Config) ExecutorConfig() simulator.ExecutorConfig {
	ec := simulator.DefaultExecutorConfig()
	if c.Execution.WorkingDirectory != "" {
		ec.DefaultWorkingDir = c.Execution.WorkingDirectory
	}
	if len(c.Execution.AllowedEnvVars) > 0 {
		ec.AllowedEnvironment = c.Execution.AllowedEnvVars
	}
	if c.Simulator.MaxOutputBytes > 0 {
		ec.MaxOutputBytes = c.Simulator.MaxOutputBytes
	}
	ec.DefaultTimeout = c.GetSimulatorTimeout()
	if ec.MaxTimeout < ec.DefaultTimeout {
		ec.MaxTimeout = ec.DefaultTimeout
	}
	return ec
}
