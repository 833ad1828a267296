package config

import (
	"log/slog"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("SCENEFLOW_JWT_SECRET", "s3cret")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	if cfg.Address != ":8080" {
		t.Errorf("Address = %q, want :8080", cfg.Address)
	}
	if cfg.HeartbeatInterval != 30*time.Second {
		t.Errorf("HeartbeatInterval = %v, want 30s", cfg.HeartbeatInterval)
	}
	if cfg.SendQueueSize != 256 {
		t.Errorf("SendQueueSize = %d, want 256", cfg.SendQueueSize)
	}
	if cfg.AllowAnyOrigin {
		t.Error("AllowAnyOrigin defaulted to true")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("SCENEFLOW_JWT_SECRET", "s3cret")
	t.Setenv("SCENEFLOW_ADDRESS", ":9999")
	t.Setenv("SCENEFLOW_HEARTBEAT_INTERVAL", "5s")
	t.Setenv("SCENEFLOW_LOG_LEVEL", "debug")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Address != ":9999" {
		t.Errorf("Address = %q, want :9999", cfg.Address)
	}
	if cfg.HeartbeatInterval != 5*time.Second {
		t.Errorf("HeartbeatInterval = %v, want 5s", cfg.HeartbeatInterval)
	}
	if cfg.SlogLevel() != slog.LevelDebug {
		t.Errorf("SlogLevel = %v, want debug", cfg.SlogLevel())
	}
}

func TestValidateMissingSecret(t *testing.T) {
	t.Setenv("SCENEFLOW_JWT_SECRET", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := cfg.Validate(); err == nil {
		t.Error("Validate accepted an empty JWT secret")
	}
}

func TestHubConfig(t *testing.T) {
	t.Setenv("SCENEFLOW_JWT_SECRET", "s3cret")
	t.Setenv("SCENEFLOW_ALLOW_ANY_ORIGIN", "true")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	hc := cfg.HubConfig()
	if string(hc.JWTSecret) != "s3cret" {
		t.Errorf("JWTSecret = %q", hc.JWTSecret)
	}
	if !hc.CheckOrigin(nil) {
		t.Error("CheckOrigin should accept any origin when configured")
	}
}
