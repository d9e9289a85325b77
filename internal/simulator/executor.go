package simulator

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"cyclesdojo/internal/logging"
)

// Executor runs a command and reports how it finished. A returned error
// means the command was rejected before starting.
type Executor interface {
	Execute(ctx context.Context, cmd Command) (*ExecutionResult, error)
}

// DirectExecutor runs commands on the host with os/exec.
type DirectExecutor struct {
	mu     sync.RWMutex
	config ExecutorConfig
}

// NewDirectExecutor creates an executor with DefaultExecutorConfig.
func NewDirectExecutor() *DirectExecutor {
	return NewDirectExecutorWithConfig(DefaultExecutorConfig())
}

// NewDirectExecutorWithConfig creates an executor with config.
func NewDirectExecutorWithConfig(config ExecutorConfig) *DirectExecutor {
	logging.SimulatorDebug("DirectExecutor: timeout=%s max=%s output=%d bytes",
		config.DefaultTimeout, config.MaxTimeout, config.MaxOutputBytes)
	return &DirectExecutor{config: config}
}

// SetAuditCallback replaces the audit callback.
func (e *DirectExecutor) SetAuditCallback(cb func(AuditEvent)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.config.AuditCallback = cb
}

func (e *DirectExecutor) emit(t AuditEventType, cmd Command, res *ExecutionResult) {
	e.mu.RLock()
	cb := e.config.AuditCallback
	e.mu.RUnlock()
	if cb != nil {
		cb(AuditEvent{Type: t, Timestamp: time.Now(), Command: cmd, Result: res})
	}
}

// Execute runs cmd, killing it when its timeout elapses or ctx is done.
func (e *DirectExecutor) Execute(ctx context.Context, cmd Command) (*ExecutionResult, error) {
	if cmd.Binary == "" {
		return nil, fmt.Errorf("binary is required")
	}

	e.mu.RLock()
	cfg := e.config
	e.mu.RUnlock()
	cmd = cfg.Merge(cmd)
	timeout := time.Duration(cmd.Limits.TimeoutMs) * time.Millisecond

	logging.SimulatorDebug("Executing: %s (dir=%s, timeout=%s)", cmd, cmd.WorkingDirectory, timeout)
	res := &ExecutionResult{ExitCode: -1, Command: &cmd}
	e.emit(AuditEventStart, cmd, nil)

	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	proc := exec.CommandContext(execCtx, cmd.Binary, cmd.Arguments...)
	proc.Dir = cmd.WorkingDirectory
	proc.Env = e.environment(cfg, cmd.Environment)

	var stdout, stderr bytes.Buffer
	outW := &limitedWriter{w: &stdout, max: cmd.Limits.MaxOutputBytes}
	errW := &limitedWriter{w: &stderr, max: cmd.Limits.MaxOutputBytes}
	proc.Stdout = outW
	proc.Stderr = errW

	res.StartedAt = time.Now()
	err := proc.Run()
	res.FinishedAt = time.Now()
	res.Duration = res.FinishedAt.Sub(res.StartedAt)
	res.Stdout = stdout.String()
	res.Stderr = stderr.String()

	if outW.truncated || errW.truncated {
		res.Truncated = true
		res.TruncatedBytes = outW.discarded + errW.discarded
		logging.SimulatorWarn("Output of %s truncated: %d bytes discarded", cmd.Binary, res.TruncatedBytes)
	}

	var exitErr *exec.ExitError
	switch {
	case err == nil:
		res.Success = true
		res.ExitCode = 0
	case errors.Is(execCtx.Err(), context.DeadlineExceeded):
		res.Success = true
		res.Killed = true
		res.KillReason = fmt.Sprintf("timeout after %s", timeout)
		logging.SimulatorWarn("Killed %s: %s", cmd.Binary, res.KillReason)
		e.emit(AuditEventKilled, cmd, res)
		return res, nil
	case errors.Is(execCtx.Err(), context.Canceled):
		res.Success = true
		res.Killed = true
		res.KillReason = "context canceled"
		logging.SimulatorDebug("Canceled %s", cmd.Binary)
		e.emit(AuditEventKilled, cmd, res)
		return res, nil
	case errors.As(err, &exitErr):
		res.Success = true
		res.ExitCode = exitErr.ExitCode()
	default:
		res.Error = err.Error()
		logging.SimulatorError("Could not run %s: %v", cmd.Binary, err)
		e.emit(AuditEventError, cmd, res)
		return res, nil
	}

	e.emit(AuditEventComplete, cmd, res)
	logging.SimulatorDebug("%s exited %d after %s", cmd.Binary, res.ExitCode, res.Duration)
	return res, nil
}

func (e *DirectExecutor) environment(cfg ExecutorConfig, extra []string) []string {
	env := make([]string, 0, len(cfg.AllowedEnvironment)+len(extra))
	for _, key := range cfg.AllowedEnvironment {
		if val, ok := os.LookupEnv(key); ok && val != "" {
			env = append(env, key+"="+val)
		}
	}
	return append(env, extra...)
}

// limitedWriter keeps at most max bytes and silently discards the rest.
type limitedWriter struct {
	w         io.Writer
	max       int64
	written   int64
	truncated bool
	discarded int64
}

func (lw *limitedWriter) Write(p []byte) (int, error) {
	n := len(p)
	if lw.max <= 0 {
		written, err := lw.w.Write(p)
		lw.written += int64(written)
		return written, err
	}
	if lw.written >= lw.max {
		lw.truncated = true
		lw.discarded += int64(n)
		return n, nil
	}
	remaining := lw.max - lw.written
	if int64(n) > remaining {
		lw.truncated = true
		lw.discarded += int64(n) - remaining
		written, err := lw.w.Write(p[:remaining])
		lw.written += int64(written)
		return n, err
	}
	written, err := lw.w.Write(p)
	lw.written += int64(written)
	return written, err
}
