package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"lostfound-chat/internal/models"
	"lostfound-chat/internal/observability"
	"lostfound-chat/internal/repositories"
)

const defaultKeyPrefix = "chat:profile:"

// ProfileCache is a cache-aside decorator over a UserRepository. Redis
// failures are logged and the lookup falls through to the repository.
type ProfileCache struct {
	next      repositories.UserRepository
	client    *redis.Client
	ttl       time.Duration
	keyPrefix string
	logger    *zap.Logger
}

// NewProfileCache wraps next with client.
func NewProfileCache(next repositories.UserRepository, client *redis.Client, ttl time.Duration, logger *zap.Logger) *ProfileCache {
	return &ProfileCache{
		next:      next,
		client:    client,
		ttl:       ttl,
		keyPrefix: defaultKeyPrefix,
		logger:    logger,
	}
}

// NewRedisClient builds a client for addr. It does not dial.
func NewRedisClient(addr, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
	})
}

func (c *ProfileCache) key(uid string) string {
	return c.keyPrefix + uid
}

// GetProfile serves found profiles from Redis and caches repository hits.
// Missing profiles are not cached.
func (c *ProfileCache) GetProfile(ctx context.Context, uid string) (models.UserProfile, bool, error) {
	raw, err := c.client.Get(ctx, c.key(uid)).Bytes()
	switch {
	case err == nil:
		var profile models.UserProfile
		if jsonErr := json.Unmarshal(raw, &profile); jsonErr == nil {
			observability.IncProfileCache("hit")
			return profile, true, nil
		}
		c.logger.Warn("discarding undecodable cached profile", zap.String("uid", uid))
	case errors.Is(err, redis.Nil):
	default:
		observability.IncProfileCache("error")
		c.logger.Warn("profile cache read failed", zap.String("uid", uid), zap.Error(err))
	}
	observability.IncProfileCache("miss")

	profile, found, err := c.next.GetProfile(ctx, uid)
	if err != nil || !found {
		return profile, found, err
	}
	if body, err := json.Marshal(profile); err == nil {
		if err := c.client.Set(ctx, c.key(uid), body, c.ttl).Err(); err != nil {
			c.logger.Warn("profile cache write failed", zap.String("uid", uid), zap.Error(err))
		}
	}
	return profile, true, nil
}

// UpsertProfile writes through and evicts the cached entry.
func (c *ProfileCache) UpsertProfile(ctx context.Context, profile models.UserProfile) (models.UserProfile, error) {
	saved, err := c.next.UpsertProfile(ctx, profile)
	if err != nil {
		return saved, err
	}
	if err := c.client.Del(ctx, c.key(profile.UID)).Err(); err != nil {
		c.logger.Warn("profile cache evict failed", zap.String("uid", profile.UID), zap.Error(err))
	}
	return saved, nil
}

var _ repositories.UserRepository = (*ProfileCache)(nil)
