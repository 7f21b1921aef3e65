package cache

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCache_SetThenGet(t *testing.T) {
	c := NewMemory()
	ctx := context.Background()

	_, ok, err := c.Get(ctx, "upload-1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Set(ctx, "upload-1", json.RawMessage(`{"phase":"completed"}`)))

	val, ok, err := c.Get(ctx, "upload-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.JSONEq(t, `{"phase":"completed"}`, string(val))
}

func TestMemoryCache_OverwritesOnSecondSet(t *testing.T) {
	c := NewMemory()
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "upload-1", json.RawMessage(`{"phase":"processing"}`)))
	require.NoError(t, c.Set(ctx, "upload-1", json.RawMessage(`{"phase":"completed"}`)))

	val, ok, err := c.Get(ctx, "upload-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.JSONEq(t, `{"phase":"completed"}`, string(val))
}
