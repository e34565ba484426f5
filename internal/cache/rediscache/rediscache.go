package rediscache

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/MarkoPoloResearchLab/tablebook/pkg/booking"
	"github.com/redis/go-redis/v9"
)

const (
	defaultPrefix = "tablebook"

	errorOperation   = "cache"
	errorSubjectGet  = "get"
	errorSubjectSet  = "set"
	errorSubjectDrop = "invalidate"
	errorCodeRedis   = "redis"
	errorCodeDecode  = "decode"
	errorCodeEncode  = "encode"
)

// Cache stores availability snapshots in Redis. Every snapshot key is also
// recorded in a set per (restaurant, service date) bucket so a mutation can
// drop the whole bucket at once.
type Cache struct {
	client redis.UniversalClient
	prefix string
}

// Option configures a Cache.
type Option func(*Cache)

// WithPrefix namespaces every key written by the cache.
func WithPrefix(prefix string) Option {
	return func(cache *Cache) {
		trimmed := strings.Trim(strings.TrimSpace(prefix), ":")
		if trimmed != "" {
			cache.prefix = trimmed
		}
	}
}

// New wraps a connected Redis client.
func New(client redis.UniversalClient, options ...Option) *Cache {
	cache := &Cache{client: client, prefix: defaultPrefix}
	for _, option := range options {
		option(cache)
	}
	return cache
}

// Get returns the cached snapshot for key, if present.
func (cache *Cache) Get(ctx context.Context, key string) (booking.AvailabilitySnapshot, bool, error) {
	payload, err := cache.client.Get(ctx, cache.snapshotKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return booking.AvailabilitySnapshot{}, false, nil
	}
	if err != nil {
		return booking.AvailabilitySnapshot{}, false, booking.WrapError(errorOperation, errorSubjectGet, errorCodeRedis, err)
	}
	var snapshot booking.AvailabilitySnapshot
	if err := json.Unmarshal(payload, &snapshot); err != nil {
		return booking.AvailabilitySnapshot{}, false, booking.WrapError(errorOperation, errorSubjectGet, errorCodeDecode, err)
	}
	return snapshot, true, nil
}

// Set stores a snapshot under key and indexes it in its bucket. The bucket
// index outlives its members by one TTL so late writers still get dropped.
func (cache *Cache) Set(ctx context.Context, key string, bucket booking.CacheBucket, snapshot booking.AvailabilitySnapshot, ttl time.Duration) error {
	payload, err := json.Marshal(snapshot)
	if err != nil {
		return booking.WrapError(errorOperation, errorSubjectSet, errorCodeEncode, err)
	}
	snapshotKey := cache.snapshotKey(key)
	bucketKey := cache.bucketKey(bucket)
	_, err = cache.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, snapshotKey, payload, ttl)
		pipe.SAdd(ctx, bucketKey, snapshotKey)
		pipe.Expire(ctx, bucketKey, 2*ttl)
		return nil
	})
	if err != nil {
		return booking.WrapError(errorOperation, errorSubjectSet, errorCodeRedis, err)
	}
	return nil
}

// InvalidateBucket drops every snapshot recorded for the bucket.
func (cache *Cache) InvalidateBucket(ctx context.Context, bucket booking.CacheBucket) error {
	bucketKey := cache.bucketKey(bucket)
	members, err := cache.client.SMembers(ctx, bucketKey).Result()
	if err != nil {
		return booking.WrapError(errorOperation, errorSubjectDrop, errorCodeRedis, err)
	}
	keys := append(members, bucketKey)
	if err := cache.client.Del(ctx, keys...).Err(); err != nil {
		return booking.WrapError(errorOperation, errorSubjectDrop, errorCodeRedis, err)
	}
	return nil
}

func (cache *Cache) snapshotKey(key string) string {
	return cache.prefix + ":" + key
}

func (cache *Cache) bucketKey(bucket booking.CacheBucket) string {
	return cache.prefix + ":bucket:" + bucket.RestaurantID.String() + ":" + bucket.ServiceDate
}
