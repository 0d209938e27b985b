package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadFile(t *testing.T) {
	yamlContent := []byte(`
backend:
  base_url: "http://backtest.local:9000"
  timeout: 10s
  requests_per_min: 120
polling:
  interval: 1500ms
jobs:
  page_size: 25
  fetch_limit: 80
  download_dir: "/tmp/results"
query:
  stale_time: 30s
chart:
  height: 420
  oscillator_height: 120
  theme: "light"
  time_zone: "America/New_York"
  output_dir: "/tmp/charts"
logging:
  level: "debug"
  file: "logs/dash.log"
notify:
  ntfy_url: "http://ntfy.local/jobs"
`)

	path := filepath.Join(t.TempDir(), "backtestdash.yaml")
	if err := os.WriteFile(path, yamlContent, 0o644); err != nil {
		t.Fatalf("failed to write temp file: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	// -- Backend --
	if cfg.Backend.BaseURL != "http://backtest.local:9000" {
		t.Errorf("Backend.BaseURL = %q, want %q", cfg.Backend.BaseURL, "http://backtest.local:9000")
	}
	if cfg.Backend.Timeout != 10*time.Second {
		t.Errorf("Backend.Timeout = %v, want %v", cfg.Backend.Timeout, 10*time.Second)
	}
	if cfg.Backend.RequestsPerMin != 120 {
		t.Errorf("Backend.RequestsPerMin = %d, want %d", cfg.Backend.RequestsPerMin, 120)
	}

	// -- Polling / Jobs / Query --
	if cfg.Polling.Interval != 1500*time.Millisecond {
		t.Errorf("Polling.Interval = %v, want %v", cfg.Polling.Interval, 1500*time.Millisecond)
	}
	if cfg.Jobs.PageSize != 25 || cfg.Jobs.FetchLimit != 80 {
		t.Errorf("Jobs = %+v, want page_size 25 fetch_limit 80", cfg.Jobs)
	}
	if cfg.Jobs.DownloadDir != "/tmp/results" {
		t.Errorf("Jobs.DownloadDir = %q, want %q", cfg.Jobs.DownloadDir, "/tmp/results")
	}
	if cfg.Query.StaleTime != 30*time.Second {
		t.Errorf("Query.StaleTime = %v, want %v", cfg.Query.StaleTime, 30*time.Second)
	}

	// -- Chart --
	if cfg.Chart.Height != 420 || cfg.Chart.OscillatorHeight != 120 {
		t.Errorf("Chart heights = %d/%d, want 420/120", cfg.Chart.Height, cfg.Chart.OscillatorHeight)
	}
	if cfg.Chart.Theme != "light" {
		t.Errorf("Chart.Theme = %q, want %q", cfg.Chart.Theme, "light")
	}
	if cfg.Chart.TimeZone != "America/New_York" {
		t.Errorf("Chart.TimeZone = %q, want %q", cfg.Chart.TimeZone, "America/New_York")
	}

	// -- Logging / Notify --
	if cfg.Logging.Level != "debug" || cfg.Logging.File != "logs/dash.log" {
		t.Errorf("Logging = %+v", cfg.Logging)
	}
	if cfg.Notify.NtfyURL != "http://ntfy.local/jobs" {
		t.Errorf("Notify.NtfyURL = %q", cfg.Notify.NtfyURL)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}
	def := Default()
	if cfg.Polling.Interval != def.Polling.Interval {
		t.Errorf("Polling.Interval = %v, want default %v", cfg.Polling.Interval, def.Polling.Interval)
	}
	if cfg.Jobs.PageSize != 20 {
		t.Errorf("Jobs.PageSize = %d, want 20", cfg.Jobs.PageSize)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	yamlContent := []byte(`
backend:
  base_url: "http://yaml-host:8000"
logging:
  level: "info"
polling:
  interval: 5s
`)

	path := filepath.Join(t.TempDir(), "env.yaml")
	if err := os.WriteFile(path, yamlContent, 0o644); err != nil {
		t.Fatalf("failed to write temp file: %v", err)
	}

	t.Setenv("BACKEND_URL", "http://env-host:8000")
	t.Setenv("POLL_INTERVAL", "750")
	t.Setenv("DOWNLOAD_DIR", "/env/downloads")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	if cfg.Backend.BaseURL != "http://env-host:8000" {
		t.Errorf("Backend.BaseURL = %q, want env override", cfg.Backend.BaseURL)
	}
	if cfg.Polling.Interval != 750*time.Millisecond {
		t.Errorf("Polling.Interval = %v, want 750ms (env override)", cfg.Polling.Interval)
	}
	if cfg.Jobs.DownloadDir != "/env/downloads" {
		t.Errorf("Jobs.DownloadDir = %q, want env override", cfg.Jobs.DownloadDir)
	}
	// logging.level should remain from YAML since no env override was set.
	if cfg.Logging.Level != "info" {
		t.Errorf("Logging.Level = %q, want %q (from YAML)", cfg.Logging.Level, "info")
	}
}

func TestLoadNormalizesInvalidValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("jobs:\n  page_size: -3\npolling:\n  interval: 0s\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}
	if cfg.Jobs.PageSize != 20 {
		t.Errorf("Jobs.PageSize = %d, want default 20", cfg.Jobs.PageSize)
	}
	if cfg.Polling.Interval != 2*time.Second {
		t.Errorf("Polling.Interval = %v, want default 2s", cfg.Polling.Interval)
	}
}
