package memory

import (
	"context"
	"fmt"

	"github.com/dgraph-io/ristretto"

	"github.com/parleyhq/parley/core"
)

// CachedEmbedder memoizes an inner core.Embedder with a ristretto cache.
// Embeddings are deterministic for a fixed model version, so caching by text
// is safe and removes repeat network round-trips for recurring queries
// (recall runs the same recent-turn windows often).
type CachedEmbedder struct {
	inner core.Embedder
	cache *ristretto.Cache
}

// NewCachedEmbedder wraps inner with an embedding cache holding roughly
// maxEntries embeddings. maxEntries <= 0 selects a default of 4096.
func NewCachedEmbedder(inner core.Embedder, maxEntries int64) (*CachedEmbedder, error) {
	if maxEntries <= 0 {
		maxEntries = 4096
	}
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: maxEntries * 10,
		MaxCost:     maxEntries,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("create embedding cache: %w", err)
	}
	return &CachedEmbedder{inner: inner, cache: cache}, nil
}

// Embed returns the cached embedding for text or computes and caches it.
func (c *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if v, ok := c.cache.Get(text); ok {
		if emb, ok := v.([]float32); ok {
			return emb, nil
		}
	}
	emb, err := c.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	c.cache.Set(text, emb, 1)
	return emb, nil
}

// wait flushes pending cache writes. Test helper: ristretto applies Set
// asynchronously.
func (c *CachedEmbedder) wait() { c.cache.Wait() }

// Close releases cache resources.
func (c *CachedEmbedder) Close() { c.cache.Close() }
