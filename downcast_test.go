package lockbox_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kode4food/lockbox"
)

func TestDowncastRoundTrip(t *testing.T) {
	h := openMemory(t)

	assert.Equal(t, lockbox.TagMemory, h.Tag())

	sub, err := lockbox.Downcast[*lockbox.MemoryState](lockbox.TagMemory, h)
	assert.NoError(t, err)
	require.NotNil(t, sub)

	_, err = h.Update(
		context.Background(), mustEvent(t, EventAdded, 1),
	)
	assert.NoError(t, err)
	assert.Equal(t, 1, sub.JournalLen())

	// repeated downcasts recover the same payload
	again, err := lockbox.Downcast[*lockbox.MemoryState](lockbox.TagMemory, h)
	assert.NoError(t, err)
	assert.Same(t, sub, again)
}

func TestDowncastMismatch(t *testing.T) {
	h := openMemory(t)

	_, err := lockbox.Downcast[*lockbox.BoltState](lockbox.TagBolt, h)
	assert.Error(t, err)

	var mismatch *lockbox.DowncastError
	require.True(t, errors.As(err, &mismatch))
	assert.Equal(t, lockbox.TagBolt, mismatch.Expected)
	assert.Equal(t, lockbox.TagMemory, mismatch.Actual)
	assert.Contains(t, mismatch.Error(), "downcast mismatch")
	assert.Contains(t, mismatch.Error(), `"bolt"`)
	assert.Contains(t, mismatch.Error(), `"memory"`)
}

func TestDowncastWrongShape(t *testing.T) {
	// a factory that pairs a tag with the wrong payload type reports as a
	// mismatch rather than returning a value
	backend := struct{ lockbox.Backend }{}
	h := lockbox.NewHandle("custom", backend, "not a sub handle")

	_, err := lockbox.Downcast[*lockbox.MemoryState]("custom", h)
	var mismatch *lockbox.DowncastError
	require.True(t, errors.As(err, &mismatch))
	assert.Equal(t, lockbox.Tag("custom"), mismatch.Expected)
	assert.Equal(t, lockbox.Tag("custom"), mismatch.Actual)
}
