package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultDataDirXDG(t *testing.T) {
	originalXDG := os.Getenv("XDG_DATA_HOME")
	t.Cleanup(func() {
		if originalXDG != "" {
			os.Setenv("XDG_DATA_HOME", originalXDG)
		} else {
			os.Unsetenv("XDG_DATA_HOME")
		}
	})

	os.Setenv("XDG_DATA_HOME", "/custom/data")
	if got := DefaultDataDir(); got != "/custom/data/quarry" {
		t.Errorf("Expected /custom/data/quarry, got %s", got)
	}
}

func TestDefaultDataDirNoHome(t *testing.T) {
	originalHome := os.Getenv("HOME")
	os.Unsetenv("HOME")
	t.Cleanup(func() {
		if originalHome != "" {
			os.Setenv("HOME", originalHome)
		}
	})

	result := DefaultDataDir()
	if result != "./data" {
		t.Errorf("Expected fallback to './data', got %s", result)
	}
}

func TestIsDir(t *testing.T) {
	if !isDir(".") {
		t.Errorf("isDir(.) = false")
	}
	if isDir("/non/existent/path/that/does/not/exist") {
		t.Errorf("isDir on missing path = true")
	}
	if isDir(os.Args[0]) {
		t.Errorf("isDir on a file = true")
	}
}

func TestDefaultDataDirCrossPlatform(t *testing.T) {
	result := DefaultDataDir()
	if result == "" {
		t.Error("DefaultDataDir should not return empty string")
	}
	if !filepath.IsAbs(result) && !strings.HasPrefix(result, "./") {
		t.Errorf("DefaultDataDir should return absolute path or start with ./, got %s", result)
	}
	lower := strings.ToLower(result)
	if !strings.HasSuffix(lower, "quarry") && result != "./data" {
		t.Errorf("DefaultDataDir should end with 'quarry', got %s", result)
	}
}
