package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCachedEmbedder_MemoizesByText(t *testing.T) {
	inner := newScriptedEmbedder()
	cached, err := NewCachedEmbedder(inner, 128)
	require.NoError(t, err)
	defer cached.Close()
	ctx := context.Background()

	first, err := cached.Embed(ctx, "hello")
	require.NoError(t, err)
	cached.wait()

	second, err := cached.Embed(ctx, "hello")
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, inner.calls, "second call must hit the cache")

	_, err = cached.Embed(ctx, "different")
	require.NoError(t, err)
	assert.Equal(t, 2, inner.calls)
}

func TestCachedEmbedder_PropagatesFailures(t *testing.T) {
	inner := newScriptedEmbedder()
	inner.fail = true
	cached, err := NewCachedEmbedder(inner, 0)
	require.NoError(t, err)
	defer cached.Close()

	_, err = cached.Embed(context.Background(), "hello")
	assert.Error(t, err, "failures are never cached")
}
