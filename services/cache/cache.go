package cache

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/upb/legal-rag/models"
)

// Store is the byte-oriented key-value contract the response cache sits
// on. The in-memory implementation lives in this package; a distributed
// store (e.g. Redis) can be substituted without touching callers.
type Store interface {
	// Get returns the stored value and whether it was present and fresh.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores a value with a time-to-live.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// ResponseCache stores serialized AnswerResponse values keyed by request
// fingerprint. It is best-effort by design: failures are logged and
// reported as misses, never as request failures.
type ResponseCache struct {
	store  Store
	ttl    time.Duration
	logger *zap.Logger
}

// NewResponseCache creates a response cache with a fixed TTL.
func NewResponseCache(store Store, ttl time.Duration, logger *zap.Logger) *ResponseCache {
	return &ResponseCache{
		store:  store,
		ttl:    ttl,
		logger: logger,
	}
}

// Get returns the cached response for the fingerprint, or nil when
// absent, expired, or undecodable. The returned value is a fresh copy;
// callers may flip its Cached flag without affecting the stored entry.
func (c *ResponseCache) Get(ctx context.Context, fingerprint string) *models.AnswerResponse {
	data, ok, err := c.store.Get(ctx, fingerprint)
	if err != nil {
		c.logger.Warn("cache get failed", zap.Error(err), zap.String("fingerprint", short(fingerprint)))
		return nil
	}
	if !ok {
		return nil
	}

	var resp models.AnswerResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		c.logger.Warn("cache entry decode failed, treating as miss",
			zap.Error(err), zap.String("fingerprint", short(fingerprint)))
		return nil
	}
	return &resp
}

// Put stores the response under the fingerprint. The cost field is
// encoded as a decimal string and round-trips exactly.
func (c *ResponseCache) Put(ctx context.Context, fingerprint string, resp *models.AnswerResponse) {
	data, err := json.Marshal(resp)
	if err != nil {
		c.logger.Warn("cache encode failed", zap.Error(err), zap.String("fingerprint", short(fingerprint)))
		return
	}
	if err := c.store.Set(ctx, fingerprint, data, c.ttl); err != nil {
		c.logger.Warn("cache set failed", zap.Error(err), zap.String("fingerprint", short(fingerprint)))
		return
	}
	c.logger.Debug("cached response", zap.String("fingerprint", short(fingerprint)))
}

func short(fingerprint string) string {
	if len(fingerprint) > 16 {
		return fingerprint[:16]
	}
	return fingerprint
}
