package embedding

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// CachedEmbedder memoises successful embeddings of repeated texts. It is
// meant for user queries; corpus chunks are embedded once and persisted.
type CachedEmbedder struct {
	next  Embedder
	cache *expirable.LRU[string, []float64]
}

var _ Embedder = (*CachedEmbedder)(nil)

// NewCachedEmbedder wraps next with an LRU of the given size and TTL.
func NewCachedEmbedder(next Embedder, size int, ttl time.Duration) *CachedEmbedder {
	if size <= 0 {
		size = 128
	}
	return &CachedEmbedder{
		next:  next,
		cache: expirable.NewLRU[string, []float64](size, nil, ttl),
	}
}

func (c *CachedEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	if v, ok := c.cache.Get(text); ok {
		return v, nil
	}
	v, err := c.next.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	c.cache.Add(text, v)
	return v, nil
}

func (c *CachedEmbedder) Available() bool { return c.next.Available() }

func (c *CachedEmbedder) Model() string { return c.next.Model() }

// Len returns the number of cached vectors.
func (c *CachedEmbedder) Len() int { return c.cache.Len() }
