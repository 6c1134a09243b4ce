package serverrun

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestBuildConfigPrecedence(t *testing.T) {
	t.Setenv("QUARRY_HTTP_ADDR", "127.0.0.1:9999")
	t.Setenv("QUARRY_FSYNC", "interval")

	cfg, err := BuildConfig(Options{
		DataDir: "/custom/data",
		Fsync:   "never",
	})
	if err != nil {
		t.Fatalf("build config: %v", err)
	}
	if cfg.DataDir != "/custom/data" {
		t.Errorf("DataDir = %s, want /custom/data", cfg.DataDir)
	}
	// env applies when the flag is absent
	if cfg.HTTPAddr != "127.0.0.1:9999" {
		t.Errorf("HTTPAddr = %s, want env value", cfg.HTTPAddr)
	}
	// flag beats env
	if cfg.Fsync != "never" {
		t.Errorf("Fsync = %s, want never", cfg.Fsync)
	}
}

func TestBuildConfigDataDirFallback(t *testing.T) {
	cfg, err := BuildConfig(Options{})
	if err != nil {
		t.Fatalf("build config: %v", err)
	}
	if cfg.DataDir == "" {
		t.Fatal("expected DataDir to be set after fallback")
	}
	if !filepath.IsAbs(cfg.DataDir) && !strings.HasPrefix(cfg.DataDir, "./") {
		t.Errorf("expected DataDir to be absolute or start with ./, got %s", cfg.DataDir)
	}
}

func TestBuildConfigFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "quarry.yaml")
	if err := os.WriteFile(path, []byte("httpAddr: 127.0.0.1:7070\nqueue:\n  defaultRetries: 9\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := BuildConfig(Options{ConfigPath: path})
	if err != nil {
		t.Fatalf("build config: %v", err)
	}
	if cfg.HTTPAddr != "127.0.0.1:7070" {
		t.Errorf("HTTPAddr = %s, want file value", cfg.HTTPAddr)
	}
	if cfg.Queue.DefaultRetries != 9 {
		t.Errorf("DefaultRetries = %d, want 9", cfg.Queue.DefaultRetries)
	}
}

// TestRunShutsDownOnContextCancel starts a real server on an ephemeral port
// and verifies Run returns once the context ends.
func TestRunShutsDownOnContextCancel(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping server start in short mode")
	}

	opts := Options{
		DataDir:  t.TempDir(),
		HTTPAddr: "127.0.0.1:0",
		Fsync:    "never",
		LogLevel: "error",
	}

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	err := Run(ctx, opts)
	if err != nil && err != context.DeadlineExceeded && err != context.Canceled {
		t.Errorf("Run returned %v, want context end", err)
	}
}
