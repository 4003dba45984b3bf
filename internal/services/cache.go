package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nexconsult/sri-invoices/internal/models"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const (
	lockKeyPrefix   = "sri:lock:"
	statusKeyPrefix = "sri:run:"
)

// ErrStatusNotFound is returned when no run of a taxpayer is known.
var ErrStatusNotFound = errors.New("run status not found")

// releaseScript deletes the lock only when it still belongs to the caller.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// CacheService keeps run locks and run statuses
type CacheService struct {
	client    *redis.Client
	statusTTL time.Duration
	logger    *logrus.Logger
	now       func() time.Time

	// In-memory fallback when Redis is not available
	memCache map[string]cacheItem
	memMutex sync.Mutex
}

type cacheItem struct {
	value     string
	expiresAt time.Time
}

// NewCacheService creates a new cache service. client may be nil.
func NewCacheService(client *redis.Client, statusTTL time.Duration, logger *logrus.Logger) *CacheService {
	return &CacheService{
		client:    client,
		statusTTL: statusTTL,
		logger:    logger,
		now:       time.Now,
		memCache:  make(map[string]cacheItem),
	}
}

// AcquireLock takes the run lock of ruc
func (c *CacheService) AcquireLock(ctx context.Context, ruc, owner string, ttl time.Duration) (bool, error) {
	key := lockKeyPrefix + ruc

	if c.client != nil {
		ok, err := c.client.SetNX(ctx, key, owner, ttl).Result()
		if err == nil {
			c.logger.WithFields(logrus.Fields{"key": key, "acquired": ok}).Debug("Run lock (Redis)")
			return ok, nil
		}
		c.logger.WithFields(logrus.Fields{
			"key":   key,
			"error": err.Error(),
		}).Warn("Redis lock error, falling back to memory cache")
	}

	c.memMutex.Lock()
	defer c.memMutex.Unlock()

	if item, exists := c.memCache[key]; exists && c.now().Before(item.expiresAt) {
		return false, nil
	}
	c.memCache[key] = cacheItem{value: owner, expiresAt: c.now().Add(ttl)}
	c.logger.WithField("key", key).Debug("Run lock (memory)")
	return true, nil
}

// ReleaseLock frees the lock of ruc held by owner
func (c *CacheService) ReleaseLock(ctx context.Context, ruc, owner string) error {
	key := lockKeyPrefix + ruc

	if c.client != nil {
		err := releaseScript.Run(ctx, c.client, []string{key}, owner).Err()
		if err != nil && err != redis.Nil {
			c.logger.WithFields(logrus.Fields{
				"key":   key,
				"error": err.Error(),
			}).Warn("Redis unlock error")
		}
	}

	c.memMutex.Lock()
	if item, exists := c.memCache[key]; exists && item.value == owner {
		delete(c.memCache, key)
	}
	c.memMutex.Unlock()

	c.logger.WithField("key", key).Debug("Run lock released")
	return nil
}

// SetStatus stores status under its RUC for the status TTL
func (c *CacheService) SetStatus(ctx context.Context, status *models.RunStatus) error {
	data, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("encode run status: %w", err)
	}
	key := statusKeyPrefix + status.RUC

	if c.client != nil {
		err := c.client.Set(ctx, key, data, c.statusTTL).Err()
		if err == nil {
			c.logger.WithField("key", key).Debug("Cache set (Redis)")
			return nil
		}
		c.logger.WithFields(logrus.Fields{
			"key":   key,
			"error": err.Error(),
		}).Warn("Redis set error, falling back to memory cache")
	}

	c.memMutex.Lock()
	c.memCache[key] = cacheItem{
		value:     string(data),
		expiresAt: c.now().Add(c.statusTTL),
	}
	c.memMutex.Unlock()

	c.logger.WithField("key", key).Debug("Cache set (memory)")
	return nil
}

// GetStatus returns the last run status of ruc or ErrStatusNotFound
func (c *CacheService) GetStatus(ctx context.Context, ruc string) (*models.RunStatus, error) {
	key := statusKeyPrefix + ruc

	raw, found := "", false
	if c.client != nil {
		val, err := c.client.Get(ctx, key).Result()
		switch {
		case err == nil:
			c.logger.WithField("key", key).Debug("Cache hit (Redis)")
			raw, found = val, true
		case err != redis.Nil:
			c.logger.WithFields(logrus.Fields{
				"key":   key,
				"error": err.Error(),
			}).Warn("Redis get error, falling back to memory cache")
		}
	}

	if !found {
		c.memMutex.Lock()
		item, exists := c.memCache[key]
		if exists && c.now().After(item.expiresAt) {
			delete(c.memCache, key)
			exists = false
		}
		c.memMutex.Unlock()

		if !exists {
			return nil, ErrStatusNotFound
		}
		c.logger.WithField("key", key).Debug("Cache hit (memory)")
		raw = item.value
	}

	var status models.RunStatus
	if err := json.Unmarshal([]byte(raw), &status); err != nil {
		return nil, fmt.Errorf("decode run status: %w", err)
	}
	return &status, nil
}

// Health returns cache service health status
func (c *CacheService) Health() map[string]interface{} {
	health := make(map[string]interface{})

	if c.client != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := c.client.Ping(ctx).Err(); err != nil {
			health["status"] = "degraded"
			health["redis"] = map[string]interface{}{
				"status": "unhealthy",
				"error":  err.Error(),
			}
		} else {
			health["status"] = "healthy"
			health["redis"] = map[string]interface{}{
				"status": "healthy",
			}
		}
	} else {
		health["status"] = "degraded"
		health["redis"] = map[string]interface{}{
			"status": "disabled",
		}
	}

	c.memMutex.Lock()
	health["memory"] = map[string]interface{}{
		"status": "healthy",
		"size":   len(c.memCache),
	}
	c.memMutex.Unlock()

	return health
}

// cleanupExpired removes expired items from memory cache
func (c *CacheService) cleanupExpired() {
	c.memMutex.Lock()
	defer c.memMutex.Unlock()

	now := c.now()
	for key, item := range c.memCache {
		if now.After(item.expiresAt) {
			delete(c.memCache, key)
		}
	}
}

// StartCleanupRoutine periodically cleans expired items until ctx is done
func (c *CacheService) StartCleanupRoutine(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				c.cleanupExpired()
			case <-ctx.Done():
				return
			}
		}
	}()
}
