package orchestrator

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/finsightai/finsight/types"
)

// AnswerCache memoizes composed answers in Redis, keyed by a hash of the
// normalized question. Degraded answers are never cached, so a later retry
// with healthier collaborators gets a fresh attempt.
type AnswerCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewAnswerCache creates a cache over an existing Redis client.
func NewAnswerCache(client *redis.Client, ttl time.Duration, logger *zap.Logger) *AnswerCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &AnswerCache{
		client: client,
		ttl:    ttl,
		logger: logger.With(zap.String("component", "answer_cache")),
	}
}

func cacheKey(question string) string {
	norm := strings.Join(strings.Fields(strings.ToLower(question)), " ")
	sum := sha256.Sum256([]byte(norm))
	return "finsight:answer:" + hex.EncodeToString(sum[:16])
}

// Get returns the cached answer for a question, or false on miss. Cache
// failures are logged and treated as misses.
func (c *AnswerCache) Get(ctx context.Context, question string) (types.FinalAnswer, bool) {
	raw, err := c.client.Get(ctx, cacheKey(question)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("answer cache read failed", zap.Error(err))
		}
		return types.FinalAnswer{}, false
	}

	var ans types.FinalAnswer
	if err := json.Unmarshal(raw, &ans); err != nil {
		c.logger.Warn("answer cache entry corrupt", zap.Error(err))
		return types.FinalAnswer{}, false
	}
	return ans, true
}

// Put stores a composed answer. Degraded answers are skipped.
func (c *AnswerCache) Put(ctx context.Context, question string, ans types.FinalAnswer) {
	if ans.Status != types.AnswerComposed {
		return
	}
	raw, err := json.Marshal(ans)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, cacheKey(question), raw, c.ttl).Err(); err != nil {
		c.logger.Warn("answer cache write failed", zap.Error(err))
	}
}
