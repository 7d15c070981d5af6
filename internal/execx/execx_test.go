package execx

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunSuccess(t *testing.T) {
	r := NewOSRunner()

	require.NoError(t, r.Run(context.Background(), "sh", "-c", "exit 0"))
}

func TestRunCapturesStderr(t *testing.T) {
	r := NewOSRunner()

	err := r.Run(context.Background(), "sh", "-c", "echo boom >&2; exit 3")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
}

func TestCombinedOutputKeepsOutputOnFailure(t *testing.T) {
	r := NewOSRunner()

	out, err := r.CombinedOutput(context.Background(), "sh", "-c", "echo partial; exit 2")
	require.Error(t, err)
	assert.Contains(t, out, "partial")
}

func TestRunHonorsContext(t *testing.T) {
	r := NewOSRunner()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	started := time.Now()
	err := r.Run(ctx, "sleep", "5")
	require.Error(t, err)
	assert.Less(t, time.Since(started), 2*time.Second)
}
