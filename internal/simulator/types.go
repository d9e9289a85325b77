// Package simulator runs the external Cycles simulator as a subprocess.
//
// The executor layer is generic (a binary, its arguments, limits and a
// captured result); Runner builds the run-script invocation for one
// simulated point and turns failed runs into *InvocationError values.
package simulator

import (
	"strings"
	"time"
)

// Command is one process to start.
type Command struct {
	// Binary is the executable to run.
	Binary    string   `json:"binary"`
	Arguments []string `json:"arguments"`

	// WorkingDirectory defaults to the executor's directory when empty.
	WorkingDirectory string `json:"working_directory,omitempty"`

	// Environment holds extra KEY=VALUE pairs added to the allowed set.
	Environment []string `json:"environment,omitempty"`

	Limits *ResourceLimits `json:"limits,omitempty"`

	// BatchID and Point tie the process to a ledger entry.
	BatchID string `json:"batch_id,omitempty"`
	Point   string `json:"point,omitempty"`
}

// String renders the command line for logs.
func (c Command) String() string {
	if len(c.Arguments) == 0 {
		return c.Binary
	}
	return c.Binary + " " + strings.Join(c.Arguments, " ")
}

// ResourceLimits bounds one execution.
type ResourceLimits struct {
	// TimeoutMs is the wall-clock limit. Zero uses the executor default.
	TimeoutMs int64 `json:"timeout_ms,omitempty"`

	// MaxOutputBytes caps each of stdout and stderr. Zero uses the
	// executor default.
	MaxOutputBytes int64 `json:"max_output_bytes,omitempty"`
}

// ExecutionResult describes a finished process.
type ExecutionResult struct {
	// Success is false only when the process could not be run at all. A
	// nonzero exit or a kill still counts as Success.
	Success  bool   `json:"success"`
	ExitCode int    `json:"exit_code"`
	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr"`

	Duration   time.Duration `json:"duration"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`

	Killed     bool   `json:"killed"`
	KillReason string `json:"kill_reason,omitempty"`

	Truncated      bool  `json:"truncated"`
	TruncatedBytes int64 `json:"truncated_bytes,omitempty"`

	// Error holds the infrastructure failure, if any.
	Error string `json:"error,omitempty"`

	Command *Command `json:"command,omitempty"`
}

// Failed reports whether the run should be treated as a failed simulation.
func (r *ExecutionResult) Failed() bool {
	return !r.Success || r.Error != "" || r.Killed || r.ExitCode != 0
}

// Output joins stdout and stderr.
func (r *ExecutionResult) Output() string {
	switch {
	case r.Stderr == "":
		return r.Stdout
	case r.Stdout == "":
		return r.Stderr
	default:
		return r.Stdout + "\n" + r.Stderr
	}
}

// AuditEventType classifies audit events.
type AuditEventType string

const (
	AuditEventStart    AuditEventType = "start"
	AuditEventComplete AuditEventType = "complete"
	AuditEventKilled   AuditEventType = "killed"
	AuditEventError    AuditEventType = "error"
)

// AuditEvent is passed to ExecutorConfig.AuditCallback.
type AuditEvent struct {
	Type      AuditEventType   `json:"type"`
	Timestamp time.Time        `json:"timestamp"`
	Command   Command          `json:"command"`
	Result    *ExecutionResult `json:"result,omitempty"`
}

// ExecutorConfig configures a DirectExecutor.
type ExecutorConfig struct {
	DefaultWorkingDir string        `json:"default_working_dir"`
	DefaultTimeout    time.Duration `json:"default_timeout"`
	// MaxTimeout caps every per-command timeout.
	MaxTimeout time.Duration `json:"max_timeout"`

	// AllowedEnvironment lists the variables passed through from the
	// parent process.
	AllowedEnvironment []string `json:"allowed_environment"`

	MaxOutputBytes int64 `json:"max_output_bytes"`

	AuditCallback func(AuditEvent) `json:"-"`
}

// DefaultExecutorConfig returns the defaults for simulator runs.
func DefaultExecutorConfig() ExecutorConfig {
	return ExecutorConfig{
		DefaultWorkingDir:  ".",
		DefaultTimeout:     10 * time.Minute,
		MaxTimeout:         2 * time.Hour,
		MaxOutputBytes:     4 * 1024 * 1024,
		AllowedEnvironment: []string{"PATH", "HOME", "USER", "LANG", "LC_ALL", "TMPDIR"},
	}
}

// Merge fills unset command fields from the config and caps the timeout.
func (c ExecutorConfig) Merge(cmd Command) Command {
	out := cmd
	if out.WorkingDirectory == "" {
		out.WorkingDirectory = c.DefaultWorkingDir
	}

	limits := ResourceLimits{}
	if cmd.Limits != nil {
		limits = *cmd.Limits
	}
	if limits.TimeoutMs == 0 {
		limits.TimeoutMs = c.DefaultTimeout.Milliseconds()
	}
	if limits.MaxOutputBytes == 0 {
		limits.MaxOutputBytes = c.MaxOutputBytes
	}
	if c.MaxTimeout > 0 && limits.TimeoutMs > c.MaxTimeout.Milliseconds() {
		limits.TimeoutMs = c.MaxTimeout.Milliseconds()
	}
	out.Limits = &limits
	return out
}
