package main

import (
	"log/slog"
	"testing"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := loadConfig()
	if err != nil {
		t.Fatalf("loadConfig() err=%v", err)
	}
	if cfg.LogLevel != slog.LevelInfo || cfg.ClaimLimit != 100 {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if cfg.Ops.Service != serviceName {
		t.Fatalf("ops service=%q", cfg.Ops.Service)
	}
}

func TestLoadConfigRejectsBadValues(t *testing.T) {
	t.Setenv("FLOW_LOG_LEVEL", "loud")
	if _, err := loadConfig(); err == nil {
		t.Fatalf("expected log level error")
	}
	t.Setenv("FLOW_LOG_LEVEL", "debug")
	t.Setenv("FLOW_CLAIM_LIMIT", "0")
	if _, err := loadConfig(); err == nil {
		t.Fatalf("expected claim limit error")
	}
}
