package simulator

import (
	"context"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func skipOnWindows(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}
}

func TestDirectExecutor_Success(t *testing.T) {
	skipOnWindows(t)
	e := NewDirectExecutor()
	res, err := e.Execute(context.Background(), Command{Binary: "echo", Arguments: []string{"hello", "cycles"}})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 0, res.ExitCode)
	assert.Equal(t, "hello cycles\n", res.Stdout)
	assert.False(t, res.Failed())
}

func TestDirectExecutor_NonZeroExit(t *testing.T) {
	skipOnWindows(t)
	e := NewDirectExecutor()
	res, err := e.Execute(context.Background(), Command{Binary: "sh", Arguments: []string{"-c", "echo boom >&2; exit 3"}})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 3, res.ExitCode)
	assert.Equal(t, "boom\n", res.Stderr)
	assert.True(t, res.Failed())
}

func TestDirectExecutor_Timeout(t *testing.T) {
	skipOnWindows(t)
	e := NewDirectExecutor()
	start := time.Now()
	res, err := e.Execute(context.Background(), Command{
		Binary:    "sleep",
		Arguments: []string{"5"},
		Limits:    &ResourceLimits{TimeoutMs: 100},
	})
	require.NoError(t, err)
	assert.True(t, res.Killed)
	assert.Contains(t, res.KillReason, "timeout")
	assert.Less(t, time.Since(start), 4*time.Second)
	assert.True(t, res.Failed())
}

func TestDirectExecutor_Canceled(t *testing.T) {
	skipOnWindows(t)
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	res, err := NewDirectExecutor().Execute(ctx, Command{Binary: "sleep", Arguments: []string{"5"}})
	require.NoError(t, err)
	assert.True(t, res.Killed)
	assert.Equal(t, "context canceled", res.KillReason)
}

func TestDirectExecutor_MissingBinary(t *testing.T) {
	res, err := NewDirectExecutor().Execute(context.Background(), Command{Binary: "/nonexistent/cycles-run"})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.NotEmpty(t, res.Error)
	assert.True(t, res.Failed())

	_, err = NewDirectExecutor().Execute(context.Background(), Command{})
	assert.Error(t, err)
}

func TestDirectExecutor_OutputLimit(t *testing.T) {
	skipOnWindows(t)
	cfg := DefaultExecutorConfig()
	cfg.MaxOutputBytes = 8
	res, err := NewDirectExecutorWithConfig(cfg).Execute(context.Background(), Command{
		Binary:    "sh",
		Arguments: []string{"-c", "printf 0123456789abcdef"},
	})
	require.NoError(t, err)
	assert.Equal(t, "01234567", res.Stdout)
	assert.True(t, res.Truncated)
	assert.Equal(t, int64(8), res.TruncatedBytes)
}

func TestDirectExecutor_Environment(t *testing.T) {
	skipOnWindows(t)
	t.Setenv("DOJO_SECRET", "leak")
	cfg := DefaultExecutorConfig()
	res, err := NewDirectExecutorWithConfig(cfg).Execute(context.Background(), Command{
		Binary:      "sh",
		Arguments:   []string{"-c", "echo \"[$DOJO_SECRET][$CYCLES_MODE]\""},
		Environment: []string{"CYCLES_MODE=batch"},
	})
	require.NoError(t, err)
	assert.Equal(t, "[][batch]", strings.TrimSpace(res.Stdout))
}

func TestDirectExecutor_Audit(t *testing.T) {
	skipOnWindows(t)
	var (
		mu     sync.Mutex
		events []AuditEventType
	)
	e := NewDirectExecutor()
	e.SetAuditCallback(func(ev AuditEvent) {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, ev.Type)
	})
	_, err := e.Execute(context.Background(), Command{Binary: "true"})
	require.NoError(t, err)
	assert.Equal(t, []AuditEventType{AuditEventStart, AuditEventComplete}, events)
}

func TestExecutorConfig_Merge(t *testing.T) {
	cfg := ExecutorConfig{
		DefaultWorkingDir: "/work",
		DefaultTimeout:    time.Second,
		MaxTimeout:        2 * time.Second,
		MaxOutputBytes:    1024,
	}

	got := cfg.Merge(Command{Binary: "x"})
	assert.Equal(t, "/work", got.WorkingDirectory)
	assert.Equal(t, ResourceLimits{TimeoutMs: 1000, MaxOutputBytes: 1024}, *got.Limits)

	orig := &ResourceLimits{TimeoutMs: 60000}
	got = cfg.Merge(Command{Binary: "x", WorkingDirectory: "/elsewhere", Limits: orig})
	assert.Equal(t, "/elsewhere", got.WorkingDirectory)
	assert.Equal(t, int64(2000), got.Limits.TimeoutMs, "capped at MaxTimeout")
	assert.Equal(t, int64(60000), orig.TimeoutMs, "caller's limits are not modified")
}
