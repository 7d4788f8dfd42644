package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/blueherons/stattracker/internal/config"
)

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{"STATTRACKER_PORT", "STATTRACKER_CONFIG", "DATABASE_MAX_CONNECTIONS", "OTEL_ENABLED"} {
		t.Setenv(key, "")
	}

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Port != 8080 {
		t.Errorf("Port = %d, want 8080", cfg.Port)
	}
	if cfg.Database.MaxConnections != 25 {
		t.Errorf("MaxConnections = %d, want 25", cfg.Database.MaxConnections)
	}
	if cfg.Telemetry.Enabled {
		t.Error("telemetry should default off")
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("STATTRACKER_PORT", "9999")
	t.Setenv("DATABASE_URL", "postgres://x:y@db:5432/stats")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Port != 9999 {
		t.Errorf("Port = %d, want 9999", cfg.Port)
	}
	if cfg.Database.URL != "postgres://x:y@db:5432/stats" {
		t.Errorf("Database.URL = %q, want the env value", cfg.Database.URL)
	}
}

func TestLoad_YAMLOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("port: 7070\ntelemetry:\n  enabled: true\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("STATTRACKER_CONFIG", path)

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Port != 7070 {
		t.Errorf("Port = %d, want the file value 7070", cfg.Port)
	}
	if !cfg.Telemetry.Enabled {
		t.Error("Telemetry.Enabled = false, want the file value true")
	}
	// Keys the file omits keep their defaults.
	if cfg.Database.MaxConnections != 25 {
		t.Errorf("MaxConnections = %d, want default 25", cfg.Database.MaxConnections)
	}
}

func TestLoad_MissingConfigFile(t *testing.T) {
	t.Setenv("STATTRACKER_CONFIG", "/does/not/exist.yaml")

	if _, err := config.Load(); err == nil {
		t.Error("Load() with a missing config file should error")
	}
}
