// Copyright (c) 2024, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package cache

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog/log"

	"github.com/autobrr/requestarr/internal/config"
)

// CacheType represents the type of cache to use
type CacheType string

const (
	CacheTypeRedis  CacheType = "redis"
	CacheTypeMemory CacheType = "memory"
)

// redisOptions returns Redis options tuned for the current gin mode.
func redisOptions(cfg config.RedisConfig) *redis.Options {
	isDev := os.Getenv("GIN_MODE") != "release"

	host := cfg.Host
	if host == "" {
		host = "localhost"
	}
	port := cfg.Port
	if port == 0 {
		port = 6379
	}

	opts := &redis.Options{
		Addr:            fmt.Sprintf("%s:%d", host, port),
		MinIdleConns:    2,
		MaxRetries:      RetryAttempts,
		MinRetryBackoff: RetryDelay,
		MaxRetryBackoff: time.Second,
	}

	if isDev {
		opts.PoolSize = 5
		opts.MaxConnAge = 30 * time.Second
		opts.ReadTimeout = 2 * time.Second
		opts.WriteTimeout = 2 * time.Second
		opts.PoolTimeout = 2 * time.Second
		opts.IdleTimeout = 30 * time.Second
	} else {
		opts.PoolSize = 10
		opts.MaxConnAge = 5 * time.Minute
		opts.ReadTimeout = DefaultTimeout
		opts.WriteTimeout = DefaultTimeout
		opts.PoolTimeout = DefaultTimeout * 2
		opts.IdleTimeout = time.Minute
	}

	return opts
}

// ParseType maps a configured cache type to a CacheType.
func ParseType(name string) CacheType {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "redis":
		return CacheTypeRedis
	case "", "memory":
		return CacheTypeMemory
	default:
		log.Warn().Str("type", name).Msg("Unknown cache type specified, defaulting to memory cache")
		return CacheTypeMemory
	}
}

// InitCache creates the configured store. Outside release mode an
// unreachable Redis falls back to the memory store.
func InitCache(cfg config.CacheConfig) (Store, error) {
	cacheType := ParseType(cfg.Type)

	log.Debug().Str("type", string(cacheType)).Msg("Initializing cache")

	if cacheType != CacheTypeRedis {
		return NewMemoryStore(), nil
	}

	opts := redisOptions(cfg.Redis)
	store, err := NewCache(opts)
	if err != nil {
		if os.Getenv("GIN_MODE") != "release" {
			log.Warn().Err(err).Str("addr", opts.Addr).Msg("Redis connection failed, falling back to memory cache")
			return NewMemoryStore(), nil
		}
		return nil, fmt.Errorf("redis %s: %w", opts.Addr, err)
	}
	return store, nil
}
