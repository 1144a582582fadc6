// internal/workers/triage/retrieve-documents/cache.go
package retrievedocuments

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"time"

	apperrors "medical-triage/internal/common/errors"
	"medical-triage/internal/common/logger"
	"medical-triage/internal/common/metrics"
	"medical-triage/internal/models"

	"github.com/redis/go-redis/v9"
)

// CachedSearcher is a cache-aside wrapper around another Searcher. Redis
// failures are logged and the search goes to the wrapped backend.
type CachedSearcher struct {
	next   Searcher
	redis  redis.Cmdable
	ttl    time.Duration
	prefix string
	logger logger.Logger
}

func NewCachedSearcher(next Searcher, client redis.Cmdable, ttl time.Duration, prefix string, log logger.Logger) *CachedSearcher {
	return &CachedSearcher{
		next:   next,
		redis:  client,
		ttl:    ttl,
		prefix: prefix,
		logger: log,
	}
}

func (c *CachedSearcher) Name() string { return c.next.Name() }

// CacheKey hashes the full request so any change in hint, threshold or
// symptoms misses.
func CacheKey(prefix string, req models.SearchRequest) string {
	raw, _ := json.Marshal(req)
	sum := sha256.Sum256(raw)
	return prefix + hex.EncodeToString(sum[:])
}

func (c *CachedSearcher) Search(ctx context.Context, req models.SearchRequest) ([]models.RetrievedDocument, error) {
	key := CacheKey(c.prefix, req)

	cached, err := c.redis.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var docs []models.RetrievedDocument
		if jsonErr := json.Unmarshal(cached, &docs); jsonErr == nil {
			metrics.CacheRequests.WithLabelValues("hit").Inc()
			return docs, nil
		}
		c.logger.Warn("discarding unreadable cache entry", map[string]interface{}{"key": key})
		metrics.CacheRequests.WithLabelValues("error").Inc()
	case errors.Is(err, redis.Nil):
		metrics.CacheRequests.WithLabelValues("miss").Inc()
	default:
		c.logger.Warn("retrieval cache read failed", map[string]interface{}{
			"errorCode": apperrors.ErrCodeCacheUnavailable,
			"error":     err.Error(),
		})
		metrics.CacheRequests.WithLabelValues("error").Inc()
	}

	docs, err := c.next.Search(ctx, req)
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(docs)
	if err == nil {
		err = c.redis.Set(ctx, key, payload, c.ttl).Err()
	}
	if err != nil {
		c.logger.Warn("retrieval cache write failed", map[string]interface{}{
			"errorCode": apperrors.ErrCodeCacheUnavailable,
			"error":     err.Error(),
		})
	}
	return docs, nil
}
