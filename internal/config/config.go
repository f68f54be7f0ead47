// Package config loads applyq configuration from a JSON file backend at
// $XDG_CONFIG_HOME/applyq/config.json with APPLYQ_* environment overrides.
package config

import (
	"os"
	"path/filepath"
)

type Config struct {
	Server  ServerConfig
	Storage StorageConfig
	Browser BrowserConfig
	Queue   QueueConfig
	Log     LogConfig
}

type ServerConfig struct {
	Port int
}

type StorageConfig struct {
	DataDir string
}

// BrowserConfig points at the remote browser-automation service.
type BrowserConfig struct {
	BaseURL string
	APIKey  string
	// SessionBudgetSec bounds one actuation session; kept under the host's
	// ~60s execution ceiling.
	SessionBudgetSec int
	// BudgetBufferSec is how close to the budget strategies may run.
	BudgetBufferSec int
	// NavigateTimeoutSec is the page-settle timeout, distinct from the
	// session budget.
	NavigateTimeoutSec int
}

type QueueConfig struct {
	// BatchSecret authenticates the external scheduler's batch trigger.
	BatchSecret string
	// OwnerID identifies the applicant in this single-user deployment.
	OwnerID string
	// RunnerURL points the live driver at an external actuation endpoint.
	// Empty selects the in-process run service.
	RunnerURL string
	// LivePollIntervalMS / LivePollAttempts bound the live driver's
	// run-status poll loop (~2 minutes by default).
	LivePollIntervalMS int
	LivePollAttempts   int
	// WatchIntervalMS is how often the live driver checks for new
	// pending entries.
	WatchIntervalMS int
}

type LogConfig struct {
	Level string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port: 4600,
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Browser: BrowserConfig{
			BaseURL:            "http://localhost:7300",
			SessionBudgetSec:   55,
			BudgetBufferSec:    10,
			NavigateTimeoutSec: 15,
		},
		Queue: QueueConfig{
			OwnerID:            "default",
			LivePollIntervalMS: 1000,
			LivePollAttempts:   120,
			WatchIntervalMS:    2000,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from the file backend and applies APPLYQ_*
// environment overrides. A missing browser API key is not a load error:
// provisioning failures surface per-attempt, where they mark the entry
// failed without retry.
func Load() (Config, error) {
	return loadWith(newFileBackend())
}

func loadWith(b ConfigBackend) (Config, error) {
	cfg := defaults()
	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}
	applyEnvOverrides(&cfg)
	return cfg, nil
}

func defaultDataDir() string {
	dir := os.Getenv("XDG_DATA_HOME")
	if dir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			dir = filepath.Join(home, ".local", "share")
		} else {
			return "applyq-data"
		}
	}
	return filepath.Join(dir, "applyq")
}
