package llm

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"github.com/rahul/medcrew/internal/observability"
)

// CachedClient serves repeated identical prompts from memory for a while.
// Batch re-runs of the same dataset hit it; interactive use rarely does.
type CachedClient struct {
	next  Client
	cache *ttlcache.Cache[string, string]
}

// NewCachedClient wraps next with a response cache. Call Close to stop the
// expiry loop.
func NewCachedClient(next Client, ttl time.Duration) *CachedClient {
	cache := ttlcache.New(
		ttlcache.WithTTL[string, string](ttl),
	)
	go cache.Start()
	return &CachedClient{next: next, cache: cache}
}

func (c *CachedClient) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	key := cacheKey(systemPrompt, userPrompt)
	if item := c.cache.Get(key); item != nil {
		observability.CompletionCacheHits.Inc()
		return item.Value(), nil
	}
	out, err := c.next.Complete(ctx, systemPrompt, userPrompt)
	if err != nil {
		return "", err
	}
	// A blank reply is retried by the caller; it must reach the service again.
	if strings.TrimSpace(out) != "" {
		c.cache.Set(key, out, ttlcache.DefaultTTL)
	}
	return out, nil
}

// Len returns the number of cached responses.
func (c *CachedClient) Len() int {
	return c.cache.Len()
}

func (c *CachedClient) Close() {
	c.cache.Stop()
}

func cacheKey(systemPrompt, userPrompt string) string {
	h := sha256.New()
	h.Write([]byte(systemPrompt))
	h.Write([]byte{0})
	h.Write([]byte(userPrompt))
	return hex.EncodeToString(h.Sum(nil))
}
