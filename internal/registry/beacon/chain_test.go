package beacon

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"registrar/internal/registry/models"
)

func key(b byte) []byte { return bytes.Repeat([]byte{b}, KeySize) }

func TestNew_ValidatesKey(t *testing.T) {
	_, err := New(nil)
	assert.ErrorIs(t, err, models.ErrBeaconUnavailable)

	_, err = New(make([]byte, 16))
	assert.ErrorIs(t, err, models.ErrBeaconUnavailable)

	c, err := New(key(1))
	require.NoError(t, err)
	assert.NotNil(t, c)
}

func TestNewRandom_ProducesDistinctChains(t *testing.T) {
	ctx := context.Background()
	a, err := NewRandom()
	require.NoError(t, err)
	b, err := NewRandom()
	require.NoError(t, err)

	sa, err := a.Sample(ctx, []byte("tag"), 1)
	require.NoError(t, err)
	sb, err := b.Sample(ctx, []byte("tag"), 1)
	require.NoError(t, err)
	assert.NotEqual(t, sa, sb)
}

func TestSample(t *testing.T) {
	ctx := context.Background()

	t.Run("same key and history reproduce", func(t *testing.T) {
		a, _ := New(key(1))
		b, _ := New(key(1))
		for _, tick := range []models.Sequence{1, 5, 9} {
			sa, err := a.Sample(ctx, []byte("x"), tick)
			require.NoError(t, err)
			sb, err := b.Sample(ctx, []byte("x"), tick)
			require.NoError(t, err)
			assert.Equal(t, sa, sb)
		}
	})

	t.Run("repeated sample at one tick is stable", func(t *testing.T) {
		c, _ := New(key(1))
		first, err := c.Sample(ctx, []byte("x"), 3)
		require.NoError(t, err)
		second, err := c.Sample(ctx, []byte("x"), 3)
		require.NoError(t, err)
		assert.Equal(t, first, second)
	})

	t.Run("tag separates domains", func(t *testing.T) {
		c, _ := New(key(1))
		a, _ := c.Sample(ctx, []byte("a"), 3)
		b, _ := c.Sample(ctx, []byte("b"), 3)
		assert.NotEqual(t, a, b)
	})

	t.Run("later tick changes the output", func(t *testing.T) {
		c, _ := New(key(1))
		a, _ := c.Sample(ctx, []byte("a"), 3)
		b, _ := c.Sample(ctx, []byte("a"), 4)
		assert.NotEqual(t, a, b)
	})

	t.Run("different key changes the output", func(t *testing.T) {
		a, _ := New(key(1))
		b, _ := New(key(2))
		sa, _ := a.Sample(ctx, []byte("a"), 3)
		sb, _ := b.Sample(ctx, []byte("a"), 3)
		assert.NotEqual(t, sa, sb)
	})

	t.Run("ticks outside the window are unavailable", func(t *testing.T) {
		c, _ := New(key(1), WithWindow(2))
		_, err := c.Sample(ctx, []byte("a"), 10)
		require.NoError(t, err)

		_, err = c.Sample(ctx, []byte("a"), 7)
		assert.ErrorIs(t, err, models.ErrBeaconUnavailable, "behind the first head")

		_, err = c.Sample(ctx, []byte("a"), 20)
		require.NoError(t, err)
		_, err = c.Sample(ctx, []byte("a"), 17)
		assert.ErrorIs(t, err, models.ErrBeaconUnavailable, "pruned")
	})

	t.Run("unseen ticks inside the window are sampleable", func(t *testing.T) {
		c, _ := New(key(1), WithWindow(2))
		_, err := c.Sample(ctx, []byte("a"), 11)
		require.NoError(t, err)

		for _, tick := range []models.Sequence{10, 9} {
			_, err = c.Sample(ctx, []byte("a"), tick)
			assert.NoError(t, err, "tick %d", tick)
		}

		_, err = c.Sample(ctx, []byte("a"), 15)
		require.NoError(t, err)
		_, err = c.Sample(ctx, []byte("a"), 13)
		assert.NoError(t, err, "tick skipped while advancing")
	})

	t.Run("sampling a late tick does not change earlier ones", func(t *testing.T) {
		a, _ := New(key(1))
		b, _ := New(key(1))

		sa10, err := a.Sample(ctx, []byte("x"), 10)
		require.NoError(t, err)
		_, err = a.Sample(ctx, []byte("x"), 11)
		require.NoError(t, err)

		_, err = b.Sample(ctx, []byte("x"), 10)
		require.NoError(t, err)
		_, err = b.Sample(ctx, []byte("x"), 11)
		require.NoError(t, err)
		sb10, err := b.Sample(ctx, []byte("x"), 10)
		require.NoError(t, err)
		assert.Equal(t, sa10, sb10)
	})

	t.Run("first sample at tick zero", func(t *testing.T) {
		c, _ := New(key(1))
		_, err := c.Sample(ctx, []byte("a"), 0)
		assert.NoError(t, err)
	})

	t.Run("cancelled context", func(t *testing.T) {
		c, _ := New(key(1))
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, err := c.Sample(cctx, []byte("a"), 1)
		assert.Error(t, err)
	})
}
