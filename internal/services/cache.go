package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"entitlement-api/pkg/logging"

	"github.com/redis/go-redis/v9"
)

// ErrCacheMiss is returned by a CacheStore when no entry exists for a key
var ErrCacheMiss = errors.New("cache miss")

// CacheStore is a string key to TTL'd value store. Connectivity problems must
// not raise past the wrapper; the Cache treats any store error as a miss.
type CacheStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
}

// RedisCacheStore backs the cache with a shared Redis instance
type RedisCacheStore struct {
	client *redis.Client
}

// NewRedisCacheStore creates a Redis-backed cache store
func NewRedisCacheStore(client *redis.Client) *RedisCacheStore {
	return &RedisCacheStore{client: client}
}

// Get fetches a cached value
func (s *RedisCacheStore) Get(ctx context.Context, key string) (string, error) {
	value, err := s.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrCacheMiss
		}
		return "", err
	}
	return value, nil
}

// Set stores a value with expiry
func (s *RedisCacheStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return s.client.Set(ctx, key, value, ttl).Err()
}

// Cache is the read-through wrapper protecting expensive provider calls.
// A nil store is the degraded always-miss mode: every call computes, nothing
// is stored, and no error surfaces. Availability is a constructor-injected
// capability queried per call, not a shared toggle.
type Cache struct {
	store CacheStore
}

// NewCache creates a read-through cache. Pass a nil store to run without one.
func NewCache(store CacheStore) *Cache {
	if store == nil {
		logging.Warnf("Cache store unavailable, running in pass-through mode")
	}
	return &Cache{store: store}
}

// Available reports whether a backing store was configured
func (c *Cache) Available() bool {
	return c.store != nil
}

// WithCache returns the cached value for key when present, otherwise calls
// compute, stores the result at ttl, and returns it. Store failures degrade
// to calling compute; they never fail the request.
func (c *Cache) WithCache(ctx context.Context, key string, ttl time.Duration, compute func() (string, error)) (string, error) {
	if c.store != nil {
		value, err := c.store.Get(ctx, key)
		if err == nil {
			return value, nil
		}
		if !errors.Is(err, ErrCacheMiss) {
			logging.Warnf("Cache get failed for %s, computing instead: %v", key, err)
		}
	}

	value, err := compute()
	if err != nil {
		return "", err
	}

	if c.store != nil {
		if err := c.store.Set(ctx, key, value, ttl); err != nil {
			logging.Warnf("Cache set failed for %s: %v", key, err)
		}
	}

	return value, nil
}

// RefreshKey suffixes a cache key with a uniqueness token so a forced-refresh
// request never reads a stale entry. The one-off entry it writes is orphaned
// and expires naturally.
func RefreshKey(key string) string {
	return fmt.Sprintf("%s:refresh:%d", key, time.Now().UnixNano())
}

// Cache keys are deterministic over every parameter that affects the result
// and intentionally exclude caller identity, so identical queries from
// different clients share one entry.

// GeocodeCacheKey builds the cache key for a geocode lookup
func GeocodeCacheKey(address string) string {
	return fmt.Sprintf("geocode:%s", strings.ToLower(strings.TrimSpace(address)))
}

// NearbyCacheKey builds the cache key for a nearby place search
func NearbyCacheKey(lat, lng float64, radius uint, keyword string, openNow bool) string {
	return fmt.Sprintf("nearby:%.5f:%.5f:%d:%s:%t", lat, lng, radius, strings.ToLower(strings.TrimSpace(keyword)), openNow)
}

// PhotoCacheKey builds the cache key for a place photo fetch
func PhotoCacheKey(photoReference string, maxWidth uint) string {
	return fmt.Sprintf("photo:%s:%d", photoReference, maxWidth)
}

// EventsCacheKey builds the cache key for an event search
func EventsCacheKey(lat, lng float64, radius int, keyword, startDate, endDate string, size int) string {
	return fmt.Sprintf("events:%.5f:%.5f:%d:%s:%s:%s:%d",
		lat, lng, radius, strings.ToLower(strings.TrimSpace(keyword)), startDate, endDate, size)
}
