package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type AppConfig struct {
	ListenAddr string `yaml:"listen_addr"`
	EventsAddr string `yaml:"events_addr"`

	RedisURL    string `yaml:"redis_url"`
	DatabaseURL string `yaml:"database_url"`

	FeeBps       int64  `yaml:"fee_bps"`
	FeeCollector string `yaml:"fee_collector"`
	MinStake     int64  `yaml:"min_stake"`
	MaxStake     int64  `yaml:"max_stake"`

	DefaultTimeLimitSec int64 `yaml:"default_time_limit_sec"`
}

// Load reads an optional YAML file (ESCROW_CONFIG_FILE), then lets
// environment variables override it.
func Load() (*AppConfig, error) {
	cfg := &AppConfig{
		ListenAddr:          ":8080",
		EventsAddr:          ":8081",
		FeeBps:              100,
		FeeCollector:        "treasury",
		MinStake:            1,
		DefaultTimeLimitSec: 300,
	}

	if path := strings.TrimSpace(os.Getenv("ESCROW_CONFIG_FILE")); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	if v := strings.TrimSpace(os.Getenv("ESCROW_LISTEN_ADDR")); v != "" {
		cfg.ListenAddr = v
	}
	if v := strings.TrimSpace(os.Getenv("ESCROW_EVENTS_ADDR")); v != "" {
		cfg.EventsAddr = v
	}
	if v := strings.TrimSpace(os.Getenv("REDIS_URL")); v != "" {
		cfg.RedisURL = v
	}
	if v := strings.TrimSpace(os.Getenv("DATABASE_URL")); v != "" {
		cfg.DatabaseURL = v
	}
	if v := strings.TrimSpace(os.Getenv("ESCROW_FEE_COLLECTOR")); v != "" {
		cfg.FeeCollector = v
	}

	if v := strings.TrimSpace(os.Getenv("ESCROW_FEE_BPS")); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n >= 0 {
			cfg.FeeBps = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("ESCROW_MIN_STAKE")); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			cfg.MinStake = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("ESCROW_MAX_STAKE")); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			cfg.MaxStake = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("ESCROW_DEFAULT_TIME_LIMIT")); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			cfg.DefaultTimeLimitSec = n
		}
	}

	if cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL is required")
	}
	if cfg.FeeBps >= 10_000 {
		return nil, errors.New("ESCROW_FEE_BPS must be below 10000")
	}
	if cfg.MaxStake > 0 && cfg.MaxStake < cfg.MinStake {
		return nil, errors.New("ESCROW_MAX_STAKE must be at least ESCROW_MIN_STAKE")
	}

	return cfg, nil
}
