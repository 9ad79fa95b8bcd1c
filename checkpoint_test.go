package lockbox_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kode4food/lockbox"
)

func TestAutomaticCheckpoint(t *testing.T) {
	cfg := lockbox.DefaultConfig()
	cfg.CheckpointEvery = 4
	cfg.BatchSize = 1

	h, err := lockbox.OpenMemory(
		context.Background(), cfg, counterModel(),
	)
	require.NoError(t, err)
	defer func() { _ = h.Close() }()

	sub, err := lockbox.Downcast[*lockbox.MemoryState](lockbox.TagMemory, h)
	require.NoError(t, err)

	ctx := context.Background()
	for i := 0; i < 8; i++ {
		_, err := h.Update(ctx, mustEvent(t, EventAdded, 1))
		assert.NoError(t, err)
	}

	assert.Eventually(t, func() bool {
		return sub.CheckpointSequence() > 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestManualCheckpointResetsCounter(t *testing.T) {
	h := openMemory(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := h.Update(ctx, mustEvent(t, EventAdded, 1))
		assert.NoError(t, err)
	}

	sub, err := lockbox.Downcast[*lockbox.MemoryState](lockbox.TagMemory, h)
	require.NoError(t, err)
	assert.Equal(t, 5, sub.JournalLen())

	assert.NoError(t, h.Checkpoint(ctx))
	assert.Equal(t, 0, sub.JournalLen())
	assert.Equal(t, int64(5), sub.CheckpointSequence())

	// state survives a checkpoint untouched
	assert.Equal(t, 5, queryValue(t, h))
}
