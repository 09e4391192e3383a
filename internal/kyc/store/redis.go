package store

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"kycflow/internal/intake/models"
	"kycflow/internal/kyc/metrics"
	id "kycflow/pkg/domain"
)

const draftKeyPrefix = "kyc:draft:"

// Backend is the store a Cached decorator fronts.
type Backend interface {
	FindDraft(ctx context.Context, userID id.UserID, role id.Role) (*models.Draft, error)
	Execute(ctx context.Context, userID id.UserID, role id.Role, fn MutateFunc) (*models.Draft, error)
	ListByStatus(ctx context.Context, status models.Status, limit int) ([]*models.Draft, error)
}

// Cached is a cache-aside decorator that keeps recently read or written
// drafts in Redis. The backend stays the system of record: cache failures
// are logged and fall through, and writes refresh the cached copy after the
// backend commits.
type Cached struct {
	next    Backend
	client  *redis.Client
	ttl     time.Duration
	logger  *slog.Logger
	metrics *metrics.Metrics
}

type CachedOption func(*Cached)

func WithCacheLogger(logger *slog.Logger) CachedOption {
	return func(c *Cached) {
		c.logger = logger
	}
}

func WithCacheMetrics(m *metrics.Metrics) CachedOption {
	return func(c *Cached) {
		c.metrics = m
	}
}

func NewCached(next Backend, client *redis.Client, ttl time.Duration, opts ...CachedOption) *Cached {
	c := &Cached{next: next, client: client, ttl: ttl}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c
}

func cacheKey(userID id.UserID, role id.Role) string {
	return draftKeyPrefix + key{userID, role}.String()
}

func (c *Cached) FindDraft(ctx context.Context, userID id.UserID, role id.Role) (*models.Draft, error) {
	k := cacheKey(userID, role)
	raw, err := c.client.Get(ctx, k).Bytes()
	switch {
	case err == nil:
		var d models.Draft
		if jsonErr := json.Unmarshal(raw, &d); jsonErr == nil {
			c.metrics.RecordCacheLookup("hit")
			return &d, nil
		}
		c.logger.WarnContext(ctx, "discarding corrupt cached draft", "key", k)
		c.evict(ctx, k)
		c.metrics.RecordCacheLookup("error")
	case errors.Is(err, redis.Nil):
		c.metrics.RecordCacheLookup("miss")
	default:
		c.logger.WarnContext(ctx, "draft cache read failed", "key", k, "error", err)
		c.metrics.RecordCacheLookup("error")
	}

	d, err := c.next.FindDraft(ctx, userID, role)
	if err != nil {
		return nil, err
	}
	c.put(ctx, k, d)
	return d, nil
}

func (c *Cached) Execute(ctx context.Context, userID id.UserID, role id.Role, fn MutateFunc) (*models.Draft, error) {
	d, err := c.next.Execute(ctx, userID, role, fn)
	if err != nil {
		return nil, err
	}
	c.put(ctx, cacheKey(userID, role), d)
	return d, nil
}

// ListByStatus bypasses the cache; review queues must be current.
func (c *Cached) ListByStatus(ctx context.Context, status models.Status, limit int) ([]*models.Draft, error) {
	return c.next.ListByStatus(ctx, status, limit)
}

func (c *Cached) put(ctx context.Context, k string, d *models.Draft) {
	raw, err := json.Marshal(d)
	if err != nil {
		c.logger.WarnContext(ctx, "draft cache encode failed", "key", k, "error", err)
		return
	}
	if err := c.client.Set(ctx, k, raw, c.ttl).Err(); err != nil {
		c.logger.WarnContext(ctx, "draft cache write failed", "key", k, "error", err)
		// A stale entry would outlive the write it missed.
		c.evict(ctx, k)
	}
}

func (c *Cached) evict(ctx context.Context, k string) {
	if err := c.client.Del(ctx, k).Err(); err != nil {
		c.logger.WarnContext(ctx, "draft cache evict failed", "key", k, "error", err)
	}
}
