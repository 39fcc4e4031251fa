package processexec

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunCapturesStdoutAndExitCode(t *testing.T) {
	result, err := Run(context.Background(), t.TempDir(), "sh", []string{"-c", "echo hello"}, time.Second)
	require.NoError(t, err)
	assert.Equal(t, 0, result.ExitCode)
	assert.Contains(t, result.Stdout, "hello")
}

func TestRunCapturesNonZeroExit(t *testing.T) {
	result, err := Run(context.Background(), t.TempDir(), "sh", []string{"-c", "exit 3"}, time.Second)
	require.NoError(t, err)
	assert.Equal(t, 3, result.ExitCode)
}

func TestRunTimesOut(t *testing.T) {
	result, err := Run(context.Background(), t.TempDir(), "sh", []string{"-c", "sleep 5"}, 20*time.Millisecond)
	require.NoError(t, err)
	assert.True(t, result.Killed)
}
