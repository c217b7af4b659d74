package llm

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/ppiankov/aem/internal/cache"
)

// CachedClient memoizes completions by model and prompt.
// Cache hits report zero tokens so they are never charged to a budget.
type CachedClient struct {
	next  Client
	cache cache.Cache
	ttl   time.Duration
}

// NewCachedClient wraps next with c
func NewCachedClient(next Client, c cache.Cache, ttl time.Duration) *CachedClient {
	return &CachedClient{next: next, cache: c, ttl: ttl}
}

// Name returns the wrapped provider name
func (c *CachedClient) Name() string {
	return c.next.Name()
}

// Complete serves from cache or calls through and stores the result
func (c *CachedClient) Complete(ctx context.Context, req Request) (*Response, error) {
	key := cache.Key("llm", c.next.Name(), req.Model, strconv.Itoa(req.MaxTokens), req.System, req.User)

	if data, ok := c.cache.Get(key); ok {
		var resp Response
		if err := json.Unmarshal(data, &resp); err == nil {
			resp.InputTokens, resp.OutputTokens = 0, 0
			resp.Cached = true
			return &resp, nil
		}
	}

	resp, err := c.next.Complete(ctx, req)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(resp); err == nil {
		_ = c.cache.Set(key, data, c.ttl)
	}
	return resp, nil
}
