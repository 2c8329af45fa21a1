package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/cicconel11/TeamNetwork-sub008/internal/models"
	"github.com/cicconel11/TeamNetwork-sub008/pkg/redis"
)

const (
	replayKeyPrefix  = "payments:replay:"
	accountKeyPrefix = "payments:account_ready:"
)

// KeyValueStore is the subset of the redis client the cache needs.
type KeyValueStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
}

// RedisCache caches replay responses and connected-account readiness.
type RedisCache struct {
	store      KeyValueStore
	replayTTL  time.Duration
	accountTTL time.Duration
	logger     *zap.Logger
}

type replayEntry struct {
	Fingerprint string                       `json:"fingerprint"`
	Response    *models.StartPaymentResponse `json:"response"`
}

func NewRedisCache(store KeyValueStore, replayTTL, accountTTL time.Duration, logger *zap.Logger) *RedisCache {
	return &RedisCache{
		store:      store,
		replayTTL:  replayTTL,
		accountTTL: accountTTL,
		logger:     logger,
	}
}

func (c *RedisCache) GetReplay(ctx context.Context, token string) (*models.StartPaymentResponse, string, bool) {
	data, err := c.store.Get(ctx, replayKeyPrefix+token)
	if err != nil {
		if !errors.Is(err, redis.ErrCacheMiss) {
			c.logger.Warn("replay cache read failed", zap.Error(err))
		}
		return nil, "", false
	}

	var entry replayEntry
	if err := json.Unmarshal([]byte(data), &entry); err != nil || entry.Response == nil {
		return nil, "", false
	}
	return entry.Response, entry.Fingerprint, true
}

func (c *RedisCache) SetReplay(ctx context.Context, token, fingerprint string, resp *models.StartPaymentResponse) {
	data, err := json.Marshal(replayEntry{Fingerprint: fingerprint, Response: resp})
	if err != nil {
		return
	}
	if err := c.store.Set(ctx, replayKeyPrefix+token, data, c.replayTTL); err != nil {
		c.logger.Warn("replay cache write failed", zap.Error(err))
	}
}

// AccountReady only ever caches the positive answer, so a disabled account
// is noticed on the next request.
func (c *RedisCache) AccountReady(ctx context.Context, accountID string) bool {
	val, err := c.store.Get(ctx, accountKeyPrefix+accountID)
	if err != nil {
		if !errors.Is(err, redis.ErrCacheMiss) {
			c.logger.Warn("account cache read failed", zap.Error(err))
		}
		return false
	}
	return val == "1"
}

func (c *RedisCache) MarkAccountReady(ctx context.Context, accountID string) {
	if err := c.store.Set(ctx, accountKeyPrefix+accountID, "1", c.accountTTL); err != nil {
		c.logger.Warn("account cache write failed", zap.Error(err))
	}
}
