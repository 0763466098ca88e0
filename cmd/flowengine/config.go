package main

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/animus-labs/animus-flow/internal/platform/env"
	"github.com/animus-labs/animus-flow/internal/platform/httpserver"
	"github.com/animus-labs/animus-flow/internal/platform/postgres"
	"github.com/animus-labs/animus-flow/internal/platform/redis"
)

const serviceName = "flowengine"

type config struct {
	LogLevel     slog.Level
	ClaimLimit   int64
	ErrorBackoff time.Duration

	Database postgres.Config
	Redis    redis.Config
	Ops      httpserver.Config
}

func loadConfig() (config, error) {
	level, err := parseLevel(env.String("FLOW_LOG_LEVEL", "info"))
	if err != nil {
		return config{}, err
	}
	claimLimit, err := env.Int("FLOW_CLAIM_LIMIT", 100)
	if err != nil {
		return config{}, err
	}
	if claimLimit < 1 {
		return config{}, errors.New("FLOW_CLAIM_LIMIT must be >= 1")
	}
	backoff, err := env.Duration("FLOW_ERROR_BACKOFF", time.Second)
	if err != nil {
		return config{}, err
	}

	dbCfg, err := postgres.ConfigFromEnv()
	if err != nil {
		return config{}, fmt.Errorf("database config: %w", err)
	}
	redisCfg, err := redis.ConfigFromEnv()
	if err != nil {
		return config{}, fmt.Errorf("redis config: %w", err)
	}
	opsCfg, err := httpserver.ConfigFromEnv(serviceName)
	if err != nil {
		return config{}, fmt.Errorf("ops server config: %w", err)
	}
	return config{
		LogLevel:     level,
		ClaimLimit:   int64(claimLimit),
		ErrorBackoff: backoff,
		Database:     dbCfg,
		Redis:        redisCfg,
		Ops:          opsCfg,
	}, nil
}

func parseLevel(value string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(value))); err != nil {
		return 0, fmt.Errorf("parse FLOW_LOG_LEVEL: %w", err)
	}
	return level, nil
}
