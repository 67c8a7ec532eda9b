package capability

import (
	"context"
	"time"

	"github.com/jellydator/ttlcache/v3"
)

// CachedEmbedder wraps an Embedder with a TTL cache keyed by query text.
// Specialists rewrite queries per domain, but identical questions and
// regeneration passes re-embed the same text often enough that skipping
// the remote call is worthwhile.
type CachedEmbedder struct {
	inner Embedder
	cache *ttlcache.Cache[string, []float32]
}

// NewCachedEmbedder wraps inner with a cache holding entries for ttl.
func NewCachedEmbedder(inner Embedder, ttl time.Duration) *CachedEmbedder {
	cache := ttlcache.New(
		ttlcache.WithTTL[string, []float32](ttl),
	)
	go cache.Start()

	return &CachedEmbedder{inner: inner, cache: cache}
}

// Embed returns the cached vector for text, calling through on a miss.
// Failed calls are not cached.
func (e *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if item := e.cache.Get(text); item != nil {
		return item.Value(), nil
	}

	vector, err := e.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}

	e.cache.Set(text, vector, ttlcache.DefaultTTL)
	return vector, nil
}

// Stop halts the cache's expiration loop.
func (e *CachedEmbedder) Stop() {
	e.cache.Stop()
}
