package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("ESCROW_CONFIG_FILE", "")
	t.Setenv("ESCROW_FEE_BPS", "")
	t.Setenv("ESCROW_LISTEN_ADDR", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ListenAddr != ":8080" || cfg.EventsAddr != ":8081" {
		t.Fatalf("addr defaults = %q / %q", cfg.ListenAddr, cfg.EventsAddr)
	}
	if cfg.FeeBps != 100 || cfg.MinStake != 1 || cfg.DefaultTimeLimitSec != 300 {
		t.Fatalf("numeric defaults = %+v", cfg)
	}
	if cfg.FeeCollector != "treasury" {
		t.Fatalf("FeeCollector = %q", cfg.FeeCollector)
	}
}

func TestLoadRequiresRedis(t *testing.T) {
	t.Setenv("REDIS_URL", "")
	t.Setenv("ESCROW_CONFIG_FILE", "")
	if _, err := Load(); err == nil {
		t.Fatal("expected error without REDIS_URL")
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("REDIS_URL", "redis://localhost:6379/1")
	t.Setenv("ESCROW_CONFIG_FILE", "")
	t.Setenv("ESCROW_LISTEN_ADDR", ":9000")
	t.Setenv("ESCROW_FEE_BPS", "250")
	t.Setenv("ESCROW_MIN_STAKE", "10")
	t.Setenv("ESCROW_MAX_STAKE", "1000")
	t.Setenv("ESCROW_FEE_COLLECTOR", "house")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ListenAddr != ":9000" || cfg.FeeBps != 250 || cfg.MinStake != 10 || cfg.MaxStake != 1000 {
		t.Fatalf("overrides not applied: %+v", cfg)
	}
	if cfg.FeeCollector != "house" {
		t.Fatalf("FeeCollector = %q", cfg.FeeCollector)
	}
}

func TestLoadRejectsBadBounds(t *testing.T) {
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("ESCROW_CONFIG_FILE", "")
	t.Setenv("ESCROW_FEE_BPS", "10000")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for fee_bps >= 10000")
	}

	t.Setenv("ESCROW_FEE_BPS", "100")
	t.Setenv("ESCROW_MIN_STAKE", "50")
	t.Setenv("ESCROW_MAX_STAKE", "10")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for max_stake < min_stake")
	}
}

func TestLoadYAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "escrow.yaml")
	body := []byte("listen_addr: \":7777\"\nredis_url: \"redis://file:6379/0\"\nfee_bps: 200\n")
	if err := os.WriteFile(path, body, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("ESCROW_CONFIG_FILE", path)
	t.Setenv("REDIS_URL", "")
	t.Setenv("ESCROW_LISTEN_ADDR", "")
	t.Setenv("ESCROW_FEE_BPS", "")
	t.Setenv("ESCROW_MIN_STAKE", "")
	t.Setenv("ESCROW_MAX_STAKE", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ListenAddr != ":7777" || cfg.RedisURL != "redis://file:6379/0" || cfg.FeeBps != 200 {
		t.Fatalf("file values not applied: %+v", cfg)
	}

	// Env still wins over the file.
	t.Setenv("ESCROW_LISTEN_ADDR", ":8888")
	cfg, err = Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ListenAddr != ":8888" {
		t.Fatalf("env override lost: %q", cfg.ListenAddr)
	}
}
