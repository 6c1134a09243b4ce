package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.Queue.DefaultRetries != 5 {
		t.Fatalf("default retries")
	}
	if cfg.Queue.DefaultLeaseMs != 60_000 {
		t.Fatalf("default lease ms")
	}
	if cfg.HTTPAddr != "127.0.0.1:8080" {
		t.Fatalf("default http addr")
	}
	if cfg.Fsync != "always" {
		t.Fatalf("default fsync")
	}
}

func TestLoadJSON(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "quarry.json")
	data := []byte(`{"httpAddr":"0.0.0.0:9090","queue":{"defaultRetries":3,"defaultLeaseMs":30000,"requeuePreservesRetries":true}}`)
	if err := os.WriteFile(file, data, 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := Load(file)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.HTTPAddr != "0.0.0.0:9090" {
		t.Fatalf("expected addr override, got %s", cfg.HTTPAddr)
	}
	if cfg.Queue.DefaultRetries != 3 {
		t.Fatalf("expected 3 retries")
	}
	if !cfg.Queue.RequeuePreservesRetries {
		t.Fatalf("expected requeue preserve flag")
	}
	// Untouched fields keep their defaults.
	if cfg.Fsync != "always" {
		t.Fatalf("fsync default lost on load")
	}
}

func TestLoadYAML(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "quarry.yaml")
	data := []byte("httpAddr: 127.0.0.1:7070\nqueue:\n  defaultLeaseMs: 15000\nsweeper:\n  enabled: true\n  intervalMs: 2500\n")
	if err := os.WriteFile(file, data, 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := Load(file)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.HTTPAddr != "127.0.0.1:7070" {
		t.Fatalf("yaml addr override")
	}
	if cfg.Queue.DefaultLeaseMs != 15000 {
		t.Fatalf("yaml lease override")
	}
	if !cfg.Sweeper.Enabled || cfg.Sweeper.IntervalMs != 2500 {
		t.Fatalf("yaml sweeper override")
	}
	if cfg.Queue.DefaultRetries != 5 {
		t.Fatalf("default retries lost on yaml load")
	}
}

func TestLoadEmptyPath(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Queue.DefaultLeaseMs != Default().Queue.DefaultLeaseMs {
		t.Fatalf("empty path should return defaults")
	}
}

func TestFromEnv(t *testing.T) {
	cfg := Default()
	os.Setenv("QUARRY_HTTP_ADDR", "0.0.0.0:8888")
	os.Setenv("QUARRY_DEFAULT_RETRIES", "2")
	os.Setenv("QUARRY_SWEEPER_ENABLED", "true")
	os.Setenv("QUARRY_RATE_LIMIT_RPS", "50.5")
	t.Cleanup(func() {
		os.Unsetenv("QUARRY_HTTP_ADDR")
		os.Unsetenv("QUARRY_DEFAULT_RETRIES")
		os.Unsetenv("QUARRY_SWEEPER_ENABLED")
		os.Unsetenv("QUARRY_RATE_LIMIT_RPS")
	})
	FromEnv(&cfg)
	if cfg.HTTPAddr != "0.0.0.0:8888" {
		t.Fatalf("env override addr")
	}
	if cfg.Queue.DefaultRetries != 2 {
		t.Fatalf("env override retries")
	}
	if !cfg.Sweeper.Enabled {
		t.Fatalf("env override sweeper")
	}
	if cfg.HTTP.RateLimitRPS != 50.5 {
		t.Fatalf("env override rate limit")
	}
}

func TestFromEnvIgnoresMalformed(t *testing.T) {
	cfg := Default()
	os.Setenv("QUARRY_DEFAULT_RETRIES", "not-a-number")
	t.Cleanup(func() { os.Unsetenv("QUARRY_DEFAULT_RETRIES") })
	FromEnv(&cfg)
	if cfg.Queue.DefaultRetries != 5 {
		t.Fatalf("malformed env var should be ignored")
	}
}
