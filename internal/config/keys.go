package config

import (
	"fmt"
	"os"
	"strconv"
)

type keyType int

const (
	kString keyType = iota
	kInt
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	secret  bool
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "server.port", typ: kInt, env: "APPLYQ_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "storage.data_dir", typ: kString, env: "APPLYQ_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "browser.base_url", typ: kString, env: "APPLYQ_BROWSER_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Browser.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Browser.BaseURL },
	},
	{
		key: "browser.api_key", typ: kString, env: "APPLYQ_BROWSER_API_KEY",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Browser.APIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.Browser.APIKey },
	},
	{
		key: "browser.session_budget_sec", typ: kInt, env: "APPLYQ_BROWSER_SESSION_BUDGET_SEC",
		apply:   func(cfg *Config, v any) { cfg.Browser.SessionBudgetSec = v.(int) },
		extract: func(cfg Config) any { return cfg.Browser.SessionBudgetSec },
	},
	{
		key: "browser.budget_buffer_sec", typ: kInt, env: "APPLYQ_BROWSER_BUDGET_BUFFER_SEC",
		apply:   func(cfg *Config, v any) { cfg.Browser.BudgetBufferSec = v.(int) },
		extract: func(cfg Config) any { return cfg.Browser.BudgetBufferSec },
	},
	{
		key: "browser.navigate_timeout_sec", typ: kInt, env: "APPLYQ_BROWSER_NAVIGATE_TIMEOUT_SEC",
		apply:   func(cfg *Config, v any) { cfg.Browser.NavigateTimeoutSec = v.(int) },
		extract: func(cfg Config) any { return cfg.Browser.NavigateTimeoutSec },
	},
	{
		key: "queue.batch_secret", typ: kString, env: "APPLYQ_BATCH_SECRET",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Queue.BatchSecret = v.(string) },
		extract: func(cfg Config) any { return cfg.Queue.BatchSecret },
	},
	{
		key: "queue.owner_id", typ: kString, env: "APPLYQ_QUEUE_OWNER_ID",
		apply:   func(cfg *Config, v any) { cfg.Queue.OwnerID = v.(string) },
		extract: func(cfg Config) any { return cfg.Queue.OwnerID },
	},
	{
		key: "queue.runner_url", typ: kString, env: "APPLYQ_QUEUE_RUNNER_URL",
		apply:   func(cfg *Config, v any) { cfg.Queue.RunnerURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Queue.RunnerURL },
	},
	{
		key: "queue.live_poll_interval_ms", typ: kInt, env: "APPLYQ_QUEUE_LIVE_POLL_INTERVAL_MS",
		apply:   func(cfg *Config, v any) { cfg.Queue.LivePollIntervalMS = v.(int) },
		extract: func(cfg Config) any { return cfg.Queue.LivePollIntervalMS },
	},
	{
		key: "queue.live_poll_attempts", typ: kInt, env: "APPLYQ_QUEUE_LIVE_POLL_ATTEMPTS",
		apply:   func(cfg *Config, v any) { cfg.Queue.LivePollAttempts = v.(int) },
		extract: func(cfg Config) any { return cfg.Queue.LivePollAttempts },
	},
	{
		key: "queue.watch_interval_ms", typ: kInt, env: "APPLYQ_QUEUE_WATCH_INTERVAL_MS",
		apply:   func(cfg *Config, v any) { cfg.Queue.WatchIntervalMS = v.(int) },
		extract: func(cfg Config) any { return cfg.Queue.WatchIntervalMS },
	},
	{
		key: "log.level", typ: kString, env: "APPLYQ_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
}

func applyBackend(cfg *Config, b ConfigBackend) error {
	for _, s := range specs {
		if s.secret {
			// Secrets only ever come from the environment.
			continue
		}
		switch s.typ {
		case kString:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kInt:
			v, ok, err := b.GetInt(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		}
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		if s.env == "" {
			continue
		}
		raw := os.Getenv(s.env)
		if raw == "" {
			continue
		}
		switch s.typ {
		case kString:
			s.apply(cfg, raw)
		case kInt:
			if i, err := strconv.Atoi(raw); err == nil {
				s.apply(cfg, i)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse integer from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		}
	}
}

// KeyInfo describes a config key for display purposes.
type KeyInfo struct {
	Key    string
	EnvVar string
	Value  string
}

// ShowAll returns all non-secret config key/value pairs.
func ShowAll(cfg Config) []KeyInfo {
	var result []KeyInfo
	for _, s := range specs {
		if s.secret {
			continue
		}
		result = append(result, KeyInfo{
			Key:    s.key,
			EnvVar: s.env,
			Value:  fmt.Sprintf("%v", s.extract(cfg)),
		})
	}
	return result
}

// SetKey writes a config key to the file backend.
func SetKey(key, value string) error {
	b := newFileBackend()

	for _, s := range specs {
		if s.key != key {
			continue
		}
		if s.secret {
			return fmt.Errorf("cannot set secret %q via config; use environment variable %s", key, s.env)
		}
		switch s.typ {
		case kString:
			return b.SetString(key, value)
		case kInt:
			i, err := strconv.Atoi(value)
			if err != nil {
				return fmt.Errorf("invalid integer value for %s: %w", key, err)
			}
			return b.SetInt(key, i)
		}
	}
	return fmt.Errorf("unknown config key: %q", key)
}

// ValidKeys returns the list of valid non-secret config key names.
func ValidKeys() []string {
	var keys []string
	for _, s := range specs {
		if !s.secret {
			keys = append(keys, s.key)
		}
	}
	return keys
}
