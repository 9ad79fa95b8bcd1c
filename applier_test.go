package lockbox_test

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kode4food/lockbox"
)

func TestMakeQuerier(t *testing.T) {
	model := counterModel()
	model.Queriers["at_least"] = lockbox.MakeQuerier(
		func(s *CounterState, threshold int) (any, error) {
			return s.Value >= threshold, nil
		},
	)

	h, err := lockbox.OpenMemory(
		context.Background(), lockbox.DefaultConfig(), model,
	)
	require.NoError(t, err)
	defer func() { _ = h.Close() }()

	ctx := context.Background()
	_, err = h.Update(ctx, mustEvent(t, EventAdded, 5))
	assert.NoError(t, err)

	res, err := h.Query(ctx, mustEvent(t, "at_least", 3))
	assert.NoError(t, err)
	assert.Equal(t, true, res)

	res, err = h.Query(ctx, mustEvent(t, "at_least", 9))
	assert.NoError(t, err)
	assert.Equal(t, false, res)

	// decode failures surface as error values
	_, err = h.ColdQuery(ctx, "at_least", []byte(`"nope"`))
	assert.Error(t, err)
}

func TestModelCustomEncoding(t *testing.T) {
	type envelope struct {
		Doubled int `json:"doubled"`
	}

	model := counterModel()
	model.Encode = func(s *CounterState) ([]byte, error) {
		return json.Marshal(envelope{Doubled: s.Value * 2})
	}
	model.Restore = func(data []byte) (*CounterState, error) {
		var env envelope
		if err := json.Unmarshal(data, &env); err != nil {
			return nil, err
		}
		return &CounterState{Value: env.Doubled / 2}, nil
	}

	path := filepath.Join(t.TempDir(), "state.db")
	ctx := context.Background()

	h, err := lockbox.OpenBolt(
		ctx, lockbox.DefaultConfig(), lockbox.BoltConfig{Path: path}, model,
	)
	require.NoError(t, err)

	_, err = h.Update(ctx, mustEvent(t, EventAdded, 21))
	assert.NoError(t, err)
	assert.NoError(t, h.Checkpoint(ctx))
	assert.NoError(t, h.Close())

	// recovery goes through the custom Restore, not the default JSON shape
	h, err = lockbox.OpenBolt(
		ctx, lockbox.DefaultConfig(), lockbox.BoltConfig{Path: path}, model,
	)
	require.NoError(t, err)
	defer func() { _ = h.Close() }()
	assert.Equal(t, 21, queryValue(t, h))
}

func TestApplierStateIsolation(t *testing.T) {
	h := openMemory(t)
	ctx := context.Background()

	// a failing update leaves previously applied state untouched
	_, err := h.Update(ctx, mustEvent(t, EventAdded, 4))
	assert.NoError(t, err)
	_, err = h.ColdUpdate(ctx, EventAdded, []byte(`{}`))
	assert.Error(t, err)
	assert.Equal(t, 4, queryValue(t, h))

	_, err = h.Update(ctx, mustEvent(t, EventAdded, 1))
	assert.NoError(t, err)
	assert.Equal(t, 5, queryValue(t, h))
}
