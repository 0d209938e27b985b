package config

import (
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ---------------------------------------------------------------------------
// Configuration structs
// ---------------------------------------------------------------------------

// Config is the top-level configuration for the backtest dashboard clients.
type Config struct {
	Backend Backend `yaml:"backend"`
	Polling Polling `yaml:"polling"`
	Jobs    Jobs    `yaml:"jobs"`
	Query   Query   `yaml:"query"`
	Chart   Chart   `yaml:"chart"`
	Logging Logging `yaml:"logging"`
	Notify  Notify  `yaml:"notify"`
}

// Backend describes how to reach the backtesting API.
type Backend struct {
	BaseURL        string        `yaml:"base_url"`
	Timeout        time.Duration `yaml:"timeout"`
	RequestsPerMin int           `yaml:"requests_per_min"`
}

// Polling controls job status polling.
type Polling struct {
	Interval time.Duration `yaml:"interval"`
}

// Jobs controls the job list view and result downloads.
type Jobs struct {
	PageSize    int    `yaml:"page_size"`
	FetchLimit  int    `yaml:"fetch_limit"`
	DownloadDir string `yaml:"download_dir"`
}

// Query controls the request cache.
type Query struct {
	StaleTime time.Duration `yaml:"stale_time"`
}

// Chart holds rendering defaults for the price and oscillator panes.
type Chart struct {
	Height           int    `yaml:"height"`
	OscillatorHeight int    `yaml:"oscillator_height"`
	Theme            string `yaml:"theme"`
	TimeZone         string `yaml:"time_zone"`
	OutputDir        string `yaml:"output_dir"`
}

// Logging configures the application logger.
type Logging struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// Notify configures optional push notifications for finished jobs.
type Notify struct {
	NtfyURL string `yaml:"ntfy_url"`
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Backend: Backend{
			BaseURL:        "http://localhost:8000",
			Timeout:        30 * time.Second,
			RequestsPerMin: 600,
		},
		Polling: Polling{Interval: 2 * time.Second},
		Jobs: Jobs{
			PageSize:    20,
			FetchLimit:  100,
			DownloadDir: ".",
		},
		Query: Query{StaleTime: 5 * time.Second},
		Chart: Chart{
			Height:           500,
			OscillatorHeight: 160,
			Theme:            "dark",
			TimeZone:         "UTC",
			OutputDir:        ".",
		},
		Logging: Logging{Level: "info"},
	}
}

// Load reads a .env file if present, then the YAML configuration at path on
// top of the defaults, and finally applies environment variable overrides.
// A missing file is not an error.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("no .env file loaded", "error", err)
	}

	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	case os.IsNotExist(err):
		slog.Debug("config file not found, using defaults", "path", path)
	default:
		return nil, err
	}

	applyEnvOverrides(cfg)
	normalize(cfg)

	return cfg, nil
}

// applyEnvOverrides checks well-known environment variables and overrides the
// corresponding configuration fields when they are set.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("BACKEND_URL"); v != "" {
		cfg.Backend.BaseURL = v
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	if v := os.Getenv("LOG_FILE"); v != "" {
		cfg.Logging.File = v
	}

	if v := os.Getenv("POLL_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Polling.Interval = d
		} else if ms, err := strconv.Atoi(v); err == nil {
			cfg.Polling.Interval = time.Duration(ms) * time.Millisecond
		}
	}

	if v := os.Getenv("NTFY_URL"); v != "" {
		cfg.Notify.NtfyURL = v
	}

	if v := os.Getenv("DOWNLOAD_DIR"); v != "" {
		cfg.Jobs.DownloadDir = v
	}
}

// normalize replaces nonsensical values with defaults.
func normalize(cfg *Config) {
	def := Default()
	if cfg.Polling.Interval <= 0 {
		cfg.Polling.Interval = def.Polling.Interval
	}
	if cfg.Jobs.PageSize <= 0 {
		cfg.Jobs.PageSize = def.Jobs.PageSize
	}
	if cfg.Jobs.FetchLimit <= 0 {
		cfg.Jobs.FetchLimit = def.Jobs.FetchLimit
	}
	if cfg.Backend.Timeout <= 0 {
		cfg.Backend.Timeout = def.Backend.Timeout
	}
	if cfg.Chart.Height <= 0 {
		cfg.Chart.Height = def.Chart.Height
	}
	if cfg.Chart.OscillatorHeight <= 0 {
		cfg.Chart.OscillatorHeight = def.Chart.OscillatorHeight
	}
}

// Path returns the config file location, honouring BACKTESTDASH_CONFIG.
func Path() string {
	if p := os.Getenv("BACKTESTDASH_CONFIG"); p != "" {
		return p
	}
	return "config/backtestdash.yaml"
}
