package config

import (
	"os"
	"strconv"
)

// FromEnv overlays QUARRY_* environment variables onto cfg.
func FromEnv(cfg *Config) {
	if v := os.Getenv("QUARRY_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("QUARRY_HTTP_ADDR"); v != "" {
		cfg.HTTPAddr = v
	}
	if v := os.Getenv("QUARRY_FSYNC"); v != "" {
		cfg.Fsync = v
	}
	if v := os.Getenv("QUARRY_FSYNC_INTERVAL_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.FsyncIntervalMs = n
		}
	}
	if v := os.Getenv("QUARRY_DEFAULT_RETRIES"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Queue.DefaultRetries = n
		}
	}
	if v := os.Getenv("QUARRY_DEFAULT_LEASE_MS"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Queue.DefaultLeaseMs = n
		}
	}
	if v := os.Getenv("QUARRY_REQUEUE_PRESERVES_RETRIES"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Queue.RequeuePreservesRetries = b
		}
	}
	if v := os.Getenv("QUARRY_COMPLETED_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Queue.CompletedLimit = n
		}
	}
	if v := os.Getenv("QUARRY_SWEEPER_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Sweeper.Enabled = b
		}
	}
	if v := os.Getenv("QUARRY_SWEEPER_INTERVAL_MS"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Sweeper.IntervalMs = n
		}
	}
	if v := os.Getenv("QUARRY_RATE_LIMIT_RPS"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.HTTP.RateLimitRPS = f
		}
	}
	if v := os.Getenv("QUARRY_RATE_LIMIT_BURST"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.HTTP.RateLimitBurst = n
		}
	}
	if v := os.Getenv("QUARRY_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("QUARRY_LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
}
