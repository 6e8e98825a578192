// Copyright (c) 2024, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/pelletier/go-toml/v2"
)

const envPrefix = "REQUESTARR__"

var ErrInvalidPollInterval = errors.New("poll interval must be positive")

// Config represents the main configuration structure
type Config struct {
	Server    ServerConfig    `toml:"server"`
	Poll      PollConfig      `toml:"poll"`
	Cache     CacheConfig     `toml:"cache"`
	Database  DatabaseConfig  `toml:"database"`
	MQTT      MQTTConfig      `toml:"mqtt"`
	Websocket WebsocketConfig `toml:"websocket"`
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	ListenAddr string `toml:"listen_addr"`
}

// PollConfig controls the library-count coordinator.
type PollConfig struct {
	// Interval between scheduled poll cycles, in seconds.
	Interval int `toml:"interval"`
	// Timeout for every outbound arr request, in seconds.
	Timeout int `toml:"timeout"`
}

// CacheConfig holds cache-related configuration
type CacheConfig struct {
	Type  string      `toml:"type"`
	Redis RedisConfig `toml:"redis"`
}

// RedisConfig holds Redis-specific configuration
type RedisConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// DatabaseConfig holds database-related configuration
type DatabaseConfig struct {
	Type     string `toml:"type"`
	Path     string `toml:"path"`
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	User     string `toml:"user"`
	Password string `toml:"password"`
	Name     string `toml:"name"`
}

// MQTTConfig enables publishing coordinator snapshots to a broker.
// Publishing is disabled when Broker is empty.
type MQTTConfig struct {
	Broker   string `toml:"broker"`
	ClientID string `toml:"client_id"`
	Topic    string `toml:"topic"`
	Username string `toml:"username"`
	Password string `toml:"password"`
}

// WebsocketConfig limits commands per websocket connection.
type WebsocketConfig struct {
	Rate  float64 `toml:"rate"`
	Burst int     `toml:"burst"`
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// PollInterval returns the poll interval as a duration.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Poll.Interval) * time.Second
}

// RequestTimeout returns the per-request arr timeout as a duration.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.Poll.Timeout) * time.Second
}

// LoadConfig loads the configuration from a TOML file
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	config := &Config{}
	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("error decoding config file: %w", err)
	}

	if err := LoadEnvOverrides(config); err != nil {
		return nil, fmt.Errorf("error loading environment variables: %w", err)
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// LoadFromEnv builds a configuration from defaults plus environment overrides,
// for deployments without a config file.
func LoadFromEnv() (*Config, error) {
	config := &Config{}
	if err := LoadEnvOverrides(config); err != nil {
		return nil, err
	}
	config.applyDefaults()
	return config, config.Validate()
}

// Validate reports configuration values that cannot work.
func (c *Config) Validate() error {
	if c.Poll.Interval <= 0 {
		return ErrInvalidPollInterval
	}
	if c.Poll.Timeout <= 0 {
		return fmt.Errorf("request timeout must be positive, got %d", c.Poll.Timeout)
	}
	return nil
}

// Save writes the configuration as TOML.
func (c *Config) Save(path string) error {
	data, err := toml.Marshal(c)
	if err != nil {
		return fmt.Errorf("error encoding config: %w", err)
	}
	return os.WriteFile(path, data, 0640)
}

func (c *Config) applyDefaults() {
	if c.Server.ListenAddr == "" {
		c.Server.ListenAddr = ":8080"
	}
	if c.Poll.Interval == 0 {
		c.Poll.Interval = 300
	}
	if c.Poll.Timeout == 0 {
		c.Poll.Timeout = 10
	}
	if c.Cache.Type == "" {
		c.Cache.Type = "memory"
	}
	if c.Cache.Redis.Host == "" {
		c.Cache.Redis.Host = "localhost"
	}
	if c.Cache.Redis.Port == 0 {
		c.Cache.Redis.Port = 6379
	}
	if c.Database.Type == "" {
		c.Database.Type = "sqlite"
	}
	if c.Database.Path == "" {
		c.Database.Path = "./data/requestarr.db"
	}
	if c.MQTT.Topic == "" {
		c.MQTT.Topic = "requestarr/status"
	}
	if c.Websocket.Rate == 0 {
		c.Websocket.Rate = 5
	}
	if c.Websocket.Burst == 0 {
		c.Websocket.Burst = 10
	}
}

// LoadEnvOverrides checks for environment variables and overrides config values
func LoadEnvOverrides(config *Config) error {
	if env := getEnv("LISTEN_ADDR"); env != "" {
		config.Server.ListenAddr = env
	}

	if env := getEnv("POLL_INTERVAL"); env != "" {
		v, err := strconv.Atoi(env)
		if err != nil {
			return fmt.Errorf("invalid %sPOLL_INTERVAL: %w", envPrefix, err)
		}
		config.Poll.Interval = v
	}
	if env := getEnv("REQUEST_TIMEOUT"); env != "" {
		v, err := strconv.Atoi(env)
		if err != nil {
			return fmt.Errorf("invalid %sREQUEST_TIMEOUT: %w", envPrefix, err)
		}
		config.Poll.Timeout = v
	}

	// Cache keeps the unprefixed names shared with other autobrr tools.
	if env := os.Getenv("CACHE_TYPE"); env != "" {
		config.Cache.Type = env
	}
	if env := os.Getenv("REDIS_HOST"); env != "" {
		config.Cache.Redis.Host = env
	}
	if env := os.Getenv("REDIS_PORT"); env != "" {
		if port, err := strconv.Atoi(env); err == nil {
			config.Cache.Redis.Port = port
		}
	}

	if env := getEnv("DB_TYPE"); env != "" {
		config.Database.Type = env
	}
	if env := getEnv("DB_PATH"); env != "" {
		config.Database.Path = env
	}
	if env := getEnv("DB_HOST"); env != "" {
		config.Database.Host = env
	}
	if env := getEnv("DB_PORT"); env != "" {
		if port, err := strconv.Atoi(env); err == nil {
			config.Database.Port = port
		}
	}
	if env := getEnv("DB_USER"); env != "" {
		config.Database.User = env
	}
	if env := getEnv("DB_PASSWORD"); env != "" {
		config.Database.Password = env
	}
	if env := getEnv("DB_NAME"); env != "" {
		config.Database.Name = env
	}

	if env := getEnv("MQTT_BROKER"); env != "" {
		config.MQTT.Broker = env
	}
	if env := getEnv("MQTT_CLIENT_ID"); env != "" {
		config.MQTT.ClientID = env
	}
	if env := getEnv("MQTT_TOPIC"); env != "" {
		config.MQTT.Topic = env
	}
	if env := getEnv("MQTT_USERNAME"); env != "" {
		config.MQTT.Username = env
	}
	if env := getEnv("MQTT_PASSWORD"); env != "" {
		config.MQTT.Password = env
	}

	return nil
}

// HasEnvConfig reports whether the environment carries enough to run without
// a config file.
func HasEnvConfig() bool {
	return getEnv("LISTEN_ADDR") != "" || getEnv("DB_TYPE") != ""
}

func getEnv(key string) string {
	return os.Getenv(envPrefix + key)
}
