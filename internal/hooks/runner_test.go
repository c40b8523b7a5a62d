package hooks

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunEmptyCommand(t *testing.T) {
	res, err := NewRunner(0).Run(context.Background(), "   ")
	require.NoError(t, err)
	assert.Equal(t, 0, res.ExitCode)
}

func TestRunCapturesOutput(t *testing.T) {
	res, err := NewRunner(time.Second).Run(context.Background(), "echo out; echo err 1>&2")
	require.NoError(t, err)
	assert.Contains(t, res.Output, "out")
	assert.Contains(t, res.Output, "err")
}

func TestRunPassesEnv(t *testing.T) {
	r := NewRunner(time.Second)
	r.Env = []string{"BASE=1"}

	res, err := r.Run(context.Background(), `echo "$BASE-$RUN_ID"`, "RUN_ID=42")
	require.NoError(t, err)
	assert.Equal(t, "1-42", res.Output)
}

func TestRunNonZeroExit(t *testing.T) {
	res, err := NewRunner(time.Second).Run(context.Background(), "echo nope; exit 3")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrHookFailed))
	assert.Equal(t, 3, res.ExitCode)
	assert.Equal(t, "nope", res.Output)
}

func TestRunTimeout(t *testing.T) {
	_, err := NewRunner(50*time.Millisecond).Run(context.Background(), "sleep 5")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrHookFailed)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
