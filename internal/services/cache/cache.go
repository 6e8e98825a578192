// Copyright (c) 2024, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package cache

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog/log"
)

var (
	ErrKeyNotFound = errors.New("cache: key not found")
	ErrClosed      = errors.New("cache: store is closed")
)

const (
	PrefixSnapshot = "requestarr:snapshot"
	PrefixSettings = "requestarr:settings:"
	PrefixRate     = "rate:"

	DefaultTimeout = 5 * time.Second
	RetryAttempts  = 2
	RetryDelay     = 50 * time.Millisecond

	// Cache durations
	DefaultTTL  = 15 * time.Minute
	SnapshotTTL = 24 * time.Hour
	SettingsTTL = 5 * time.Minute

	CleanupInterval = 1 * time.Minute
)

// ttlFor picks the expiration of keys stored without one.
func ttlFor(key string) time.Duration {
	switch {
	case strings.HasPrefix(key, PrefixSnapshot):
		return SnapshotTTL
	case strings.HasPrefix(key, PrefixSettings):
		return SettingsTTL
	default:
		return DefaultTTL
	}
}

// RedisStore is a Redis-backed Store with a local read-through cache
// in front of it.
type RedisStore struct {
	client *redis.Client
	local  *LocalCache
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	closed bool
	mu     sync.RWMutex
}

// LocalCache provides in-memory caching to reduce Redis hits
type LocalCache struct {
	sync.RWMutex
	items map[string]*localCacheItem
}

type localCacheItem struct {
	value      []byte
	expiration time.Time
}

func newLocalCache() *LocalCache {
	return &LocalCache{items: make(map[string]*localCacheItem)}
}

// NewCache connects to Redis and starts the local cache janitor.
func NewCache(opts *redis.Options) (*RedisStore, error) {
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), DefaultTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}

	storeCtx, storeCancel := context.WithCancel(context.Background())
	store := &RedisStore{
		client: client,
		local:  newLocalCache(),
		ctx:    storeCtx,
		cancel: storeCancel,
	}

	store.wg.Add(1)
	go func() {
		defer store.wg.Done()
		store.localCacheCleanup()
	}()

	log.Debug().Str("addr", opts.Addr).Msg("Redis cache connected")
	return store, nil
}

func (s *RedisStore) isClosed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}

// withRetry runs op up to RetryAttempts times with a per-attempt timeout.
// redis.Nil is final and returned immediately.
func withRetry(ctx context.Context, op func(ctx context.Context) error) error {
	var lastErr error
	for i := 0; i < RetryAttempts; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		attemptCtx, cancel := context.WithTimeout(ctx, DefaultTimeout)
		err := op(attemptCtx)
		cancel()

		if err == nil || errors.Is(err, redis.Nil) {
			return err
		}
		lastErr = err

		if i < RetryAttempts-1 {
			time.Sleep(RetryDelay)
		}
	}
	return lastErr
}

// Get retrieves a value, trying the local cache first.
func (s *RedisStore) Get(ctx context.Context, key string, value interface{}) error {
	if s.isClosed() {
		return ErrClosed
	}

	if data, ok := s.getFromLocalCache(key); ok {
		err := json.Unmarshal(data, value)
		if err == nil {
			return nil
		}
		log.Error().Err(err).Str("key", key).Msg("Failed to unmarshal local cached value")
	}

	var data []byte
	err := withRetry(ctx, func(ctx context.Context) error {
		var err error
		data, err = s.client.Get(ctx, key).Bytes()
		return err
	})
	if errors.Is(err, redis.Nil) {
		return ErrKeyNotFound
	}
	if err != nil {
		return err
	}

	ttl := s.client.TTL(ctx, key).Val()
	if ttl < 0 {
		ttl = ttlFor(key)
	}
	s.setInLocalCache(key, data, ttl)

	return json.Unmarshal(data, value)
}

// Set stores a value in both Redis and local cache
func (s *RedisStore) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	if s.isClosed() {
		return ErrClosed
	}

	if expiration == 0 {
		expiration = ttlFor(key)
	}

	data, err := json.Marshal(value)
	if err != nil {
		log.Error().Err(err).Str("key", key).Msg("Failed to marshal value for cache")
		return err
	}

	err = withRetry(ctx, func(ctx context.Context) error {
		return s.client.Set(ctx, key, data, expiration).Err()
	})
	if err != nil {
		return err
	}

	s.setInLocalCache(key, data, expiration)
	return nil
}

// Increment records a hit in the sorted set of a rate window.
func (s *RedisStore) Increment(ctx context.Context, key string, timestamp int64) error {
	if s.isClosed() {
		return ErrClosed
	}

	member := strconv.FormatInt(timestamp, 10)
	return withRetry(ctx, func(ctx context.Context) error {
		return s.client.ZAdd(ctx, key, &redis.Z{Score: float64(timestamp), Member: member}).Err()
	})
}

// CleanAndCount drops hits older than windowStart.
func (s *RedisStore) CleanAndCount(ctx context.Context, key string, windowStart int64) error {
	if s.isClosed() {
		return ErrClosed
	}

	return withRetry(ctx, func(ctx context.Context) error {
		return s.client.ZRemRangeByScore(ctx, key, "-inf", "("+strconv.FormatInt(windowStart, 10)).Err()
	})
}

func (s *RedisStore) GetCount(ctx context.Context, key string) (int64, error) {
	if s.isClosed() {
		return 0, ErrClosed
	}

	var count int64
	err := withRetry(ctx, func(ctx context.Context) error {
		var err error
		count, err = s.client.ZCard(ctx, key).Result()
		return err
	})
	return count, err
}

func (s *RedisStore) Expire(ctx context.Context, key string, expiration time.Duration) error {
	if s.isClosed() {
		return ErrClosed
	}

	if expiration == 0 {
		expiration = DefaultTTL
	}

	return withRetry(ctx, func(ctx context.Context) error {
		return s.client.Expire(ctx, key, expiration).Err()
	})
}

func (s *RedisStore) getFromLocalCache(key string) ([]byte, bool) {
	s.local.RLock()
	item, exists := s.local.items[key]
	s.local.RUnlock()

	if !exists || time.Now().After(item.expiration) {
		return nil, false
	}
	return item.value, true
}

func (s *RedisStore) setInLocalCache(key string, value []byte, ttl time.Duration) {
	s.local.Lock()
	defer s.local.Unlock()

	s.local.items[key] = &localCacheItem{
		value:      value,
		expiration: time.Now().Add(ttl),
	}
}

func (s *RedisStore) localCacheCleanup() {
	ticker := time.NewTicker(CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.local.evictExpired(time.Now())
		case <-s.ctx.Done():
			return
		}
	}
}

func (l *LocalCache) evictExpired(now time.Time) {
	l.Lock()
	defer l.Unlock()

	for key, item := range l.items {
		if now.After(item.expiration) {
			delete(l.items, key)
		}
	}
}

// Close closes the Redis connection and stops the cleanup goroutine
func (s *RedisStore) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.closed = true
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()

	s.local.Lock()
	s.local.items = make(map[string]*localCacheItem)
	s.local.Unlock()

	return s.client.Close()
}
