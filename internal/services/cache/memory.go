// Copyright (c) 2024, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package cache

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// MemoryStore implements Store interface using in-memory storage
type MemoryStore struct {
	local  *LocalCache
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	closed bool
	mu     sync.RWMutex

	rateLimits sync.Map // map[string]*rateWindow
}

type rateWindow struct {
	sync.Mutex
	timestamps map[string]int64
	expiration time.Time
}

// NewMemoryStore creates a new in-memory cache instance
func NewMemoryStore() *MemoryStore {
	ctx, cancel := context.WithCancel(context.Background())

	store := &MemoryStore{
		local:  newLocalCache(),
		ctx:    ctx,
		cancel: cancel,
	}

	store.wg.Add(1)
	go func() {
		defer store.wg.Done()
		store.localCacheCleanup()
	}()

	return store
}

func (s *MemoryStore) isClosed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}

// Get retrieves a value from cache
func (s *MemoryStore) Get(ctx context.Context, key string, value interface{}) error {
	if s.isClosed() {
		return ErrClosed
	}

	s.local.RLock()
	item, exists := s.local.items[key]
	s.local.RUnlock()

	if !exists || time.Now().After(item.expiration) {
		return ErrKeyNotFound
	}
	return json.Unmarshal(item.value, value)
}

// Set stores a value in cache
func (s *MemoryStore) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
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

	s.local.Lock()
	s.local.items[key] = &localCacheItem{
		value:      data,
		expiration: time.Now().Add(expiration),
	}
	s.local.Unlock()

	return nil
}

// Increment adds a timestamp to the rate limit window
func (s *MemoryStore) Increment(ctx context.Context, key string, timestamp int64) error {
	if s.isClosed() {
		return ErrClosed
	}

	window, _ := s.rateLimits.LoadOrStore(key, &rateWindow{
		timestamps: make(map[string]int64),
	})
	w := window.(*rateWindow)

	w.Lock()
	w.timestamps[strconv.FormatInt(timestamp, 10)] = timestamp
	w.Unlock()

	return nil
}

// CleanAndCount removes timestamps older than windowStart.
func (s *MemoryStore) CleanAndCount(ctx context.Context, key string, windowStart int64) error {
	if s.isClosed() {
		return ErrClosed
	}

	if window, ok := s.rateLimits.Load(key); ok {
		window.(*rateWindow).prune(windowStart)
	}
	return nil
}

// GetCount returns the number of timestamps in the current window
func (s *MemoryStore) GetCount(ctx context.Context, key string) (int64, error) {
	if s.isClosed() {
		return 0, ErrClosed
	}

	window, ok := s.rateLimits.Load(key)
	if !ok {
		return 0, nil
	}

	w := window.(*rateWindow)
	w.Lock()
	defer w.Unlock()
	if !w.expiration.IsZero() && time.Now().After(w.expiration) {
		w.timestamps = make(map[string]int64)
		w.expiration = time.Time{}
		return 0, nil
	}
	return int64(len(w.timestamps)), nil
}

// Expire updates the expiration of a cached value or rate window.
func (s *MemoryStore) Expire(ctx context.Context, key string, expiration time.Duration) error {
	if s.isClosed() {
		return ErrClosed
	}

	if expiration == 0 {
		expiration = DefaultTTL
	}
	deadline := time.Now().Add(expiration)

	s.local.Lock()
	if item, exists := s.local.items[key]; exists {
		item.expiration = deadline
	}
	s.local.Unlock()

	if window, ok := s.rateLimits.Load(key); ok {
		w := window.(*rateWindow)
		w.Lock()
		w.expiration = deadline
		w.Unlock()
	}
	return nil
}

// Close stops the janitor and drops every entry.
func (s *MemoryStore) Close() error {
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

	return nil
}

func (w *rateWindow) prune(windowStart int64) {
	w.Lock()
	defer w.Unlock()
	for ts, timestamp := range w.timestamps {
		if timestamp < windowStart {
			delete(w.timestamps, ts)
		}
	}
}

func (s *MemoryStore) localCacheCleanup() {
	ticker := time.NewTicker(CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case now := <-ticker.C:
			s.local.evictExpired(now)

			s.rateLimits.Range(func(key, value interface{}) bool {
				w := value.(*rateWindow)
				w.Lock()
				expired := !w.expiration.IsZero() && now.After(w.expiration)
				w.Unlock()
				if expired {
					s.rateLimits.Delete(key)
				}
				return true
			})

		case <-s.ctx.Done():
			return
		}
	}
}
