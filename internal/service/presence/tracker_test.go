package presence

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryTrackerExpiresAfterTTL(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	tr := NewMemoryTracker(90 * time.Second)
	tr.clock = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, tr.Touch(ctx, "alice"))
	now = now.Add(60 * time.Second)
	require.NoError(t, tr.Touch(ctx, "bob"))

	online, err := tr.Online(ctx)
	require.NoError(t, err)
	assert.Len(t, online, 2)

	now = now.Add(31 * time.Second)
	online, err = tr.Online(ctx)
	require.NoError(t, err)
	assert.NotContains(t, online, "alice")
	assert.Contains(t, online, "bob")

	assert.Equal(t, 1, tr.Sweep())
}

func TestMemoryTrackerRemove(t *testing.T) {
	tr := NewMemoryTracker(time.Minute)
	ctx := context.Background()

	require.NoError(t, tr.Touch(ctx, "alice"))
	require.NoError(t, tr.Remove(ctx, "alice"))

	online, err := tr.Online(ctx)
	require.NoError(t, err)
	assert.Empty(t, online)
}
