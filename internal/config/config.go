package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration loaded from file/env.
type Config struct {
	DataDir         string `json:"dataDir" yaml:"dataDir"`
	HTTPAddr        string `json:"httpAddr" yaml:"httpAddr"`
	Fsync           string `json:"fsync" yaml:"fsync"` // always | interval | never
	FsyncIntervalMs int    `json:"fsyncIntervalMs" yaml:"fsyncIntervalMs"`

	Queue   QueueConfig   `json:"queue" yaml:"queue"`
	Sweeper SweeperConfig `json:"sweeper" yaml:"sweeper"`
	HTTP    HTTPConfig    `json:"http" yaml:"http"`
	Log     LogConfig     `json:"log" yaml:"log"`
}

// QueueConfig captures engine defaults and lifecycle policies.
type QueueConfig struct {
	DefaultRetries int64 `json:"defaultRetries" yaml:"defaultRetries"`
	DefaultLeaseMs int64 `json:"defaultLeaseMs" yaml:"defaultLeaseMs"`
	// RequeuePreservesRetries keeps the remaining retry counter when a
	// complete re-queues a job into another queue; off, the counter resets.
	RequeuePreservesRetries bool `json:"requeuePreservesRetries" yaml:"requeuePreservesRetries"`
	CompletedLimit          int  `json:"completedLimit" yaml:"completedLimit"`
}

// SweeperConfig controls the optional background lease sweeper. Expired
// leases are reclaimed lazily on queue access either way; the sweeper only
// bounds how long a stall can go unnoticed on an idle queue.
type SweeperConfig struct {
	Enabled    bool  `json:"enabled" yaml:"enabled"`
	IntervalMs int64 `json:"intervalMs" yaml:"intervalMs"`
}

// HTTPConfig holds transport-level limits for the HTTP API.
type HTTPConfig struct {
	// RateLimitRPS throttles requests per client address; 0 disables.
	RateLimitRPS   float64 `json:"rateLimitRps" yaml:"rateLimitRps"`
	RateLimitBurst int     `json:"rateLimitBurst" yaml:"rateLimitBurst"`
}

// LogConfig selects process-wide log behavior.
type LogConfig struct {
	Level  string `json:"level" yaml:"level"`
	Format string `json:"format" yaml:"format"` // text | json
}

// Default returns built-in defaults.
func Default() Config {
	return Config{
		HTTPAddr:        "127.0.0.1:8080",
		Fsync:           "always",
		FsyncIntervalMs: 5,
		Queue: QueueConfig{
			DefaultRetries: 5,
			DefaultLeaseMs: 60_000,
			CompletedLimit: 1000,
		},
		Sweeper: SweeperConfig{
			IntervalMs: 5000,
		},
		HTTP: HTTPConfig{
			RateLimitBurst: 100,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads configuration from a JSON or YAML file (by extension). If path
// is empty, returns defaults.
func Load(path string) (Config, error) {
	if path == "" {
		return Default(), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	cfg := Default()
	switch filepath.Ext(path) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", path, err)
		}
	default:
		if err := json.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", path, err)
		}
	}
	return cfg, nil
}
