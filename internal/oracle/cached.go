package oracle

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/solguard/riskengine/internal/cache"
	"github.com/solguard/riskengine/internal/schema"
)

// Cached wraps a MarketDataOracle with a cache.Store-backed response
// cache, so repeated lookups for the same mint within the TTL don't
// re-hit the vendor API.
type Cached struct {
	inner MarketDataOracle
	store *cache.Store
}

// NewCached returns a cache-fronted oracle. store may be nil, in which
// case Cached degrades to calling inner directly.
func NewCached(inner MarketDataOracle, store *cache.Store) *Cached {
	return &Cached{inner: inner, store: store}
}

func (c *Cached) Overview(ctx context.Context, mint string) (Overview, error) {
	key := "overview:" + mint
	if c.store != nil {
		if raw, ok := c.store.Get(key); ok {
			var ov Overview
			if json.Unmarshal([]byte(raw), &ov) == nil {
				return ov, nil
			}
		}
	}
	ov, err := c.inner.Overview(ctx, mint)
	if err != nil {
		return ov, err
	}
	c.store2(key, ov)
	return ov, nil
}

func (c *Cached) PriceHistory(ctx context.Context, mint string, days int) ([]PricePoint, error) {
	key := fmt.Sprintf("history:%s:%d", mint, days)
	if c.store != nil {
		if raw, ok := c.store.Get(key); ok {
			var pts []PricePoint
			if json.Unmarshal([]byte(raw), &pts) == nil {
				return pts, nil
			}
		}
	}
	pts, err := c.inner.PriceHistory(ctx, mint, days)
	if err != nil {
		return pts, err
	}
	c.store2(key, pts)
	return pts, nil
}

func (c *Cached) TopHolders(ctx context.Context, mint string) ([]schema.Holder, error) {
	key := "holders:" + mint
	if c.store != nil {
		if raw, ok := c.store.Get(key); ok {
			var holders []schema.Holder
			if json.Unmarshal([]byte(raw), &holders) == nil {
				return holders, nil
			}
		}
	}
	holders, err := c.inner.TopHolders(ctx, mint)
	if err != nil {
		return holders, err
	}
	c.store2(key, holders)
	return holders, nil
}

func (c *Cached) store2(key string, v interface{}) {
	if c.store == nil {
		return
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return
	}
	_ = c.store.Set(key, string(raw), cacheTTL)
}
