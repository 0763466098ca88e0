// Package redis opens the Redis client used by the engine transport.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/animus-labs/animus-flow/internal/platform/env"
	goredis "github.com/redis/go-redis/v9"
)

type Config struct {
	Addr        string
	Password    string
	DB          int
	Prefix      string
	PingTimeout time.Duration
	// PollTimeout bounds each blocking pop of the engine consumer.
	PollTimeout time.Duration
}

func ConfigFromEnv() (Config, error) {
	db, err := env.Int("FLOW_REDIS_DB", 0)
	if err != nil {
		return Config{}, err
	}
	pingTimeout, err := env.Duration("FLOW_REDIS_PING_TIMEOUT", 2*time.Second)
	if err != nil {
		return Config{}, err
	}
	pollTimeout, err := env.Duration("FLOW_REDIS_POLL_TIMEOUT", time.Second)
	if err != nil {
		return Config{}, err
	}
	cfg := Config{
		Addr:        env.String("FLOW_REDIS_ADDR", "localhost:6379"),
		Password:    env.String("FLOW_REDIS_PASSWORD", ""),
		DB:          db,
		Prefix:      env.String("FLOW_REDIS_PREFIX", "animus-flow"),
		PingTimeout: pingTimeout,
		PollTimeout: pollTimeout,
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	switch {
	case c.Addr == "":
		return errors.New("FLOW_REDIS_ADDR is required")
	case c.DB < 0:
		return errors.New("FLOW_REDIS_DB must be >= 0")
	case c.PingTimeout <= 0:
		return errors.New("FLOW_REDIS_PING_TIMEOUT must be positive")
	case c.PollTimeout <= 0:
		return errors.New("FLOW_REDIS_POLL_TIMEOUT must be positive")
	}
	return nil
}

// Open returns a client that answered a ping within the configured timeout.
func Open(ctx context.Context, cfg Config) (*goredis.Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, cfg.PingTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return client, nil
}
