// Package config loads viewer settings from YAML with an ARENAVIEW_* env overlay.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	jlconfig "github.com/JeremyLoy/config"
	"gopkg.in/yaml.v3"

	"arenaview.ai/internal/connmgr"
	"arenaview.ai/internal/engine"
	"arenaview.ai/internal/fallback"
	"arenaview.ai/internal/reconcile"
)

type Config struct {
	Connection ConnectionSpec `yaml:"connection"`
	Engine     EngineSpec     `yaml:"engine"`
	Fallback   FallbackSpec   `yaml:"fallback"`
	Recording  RecordingSpec  `yaml:"recording"`
}

type ConnectionSpec struct {
	Mode             string        `yaml:"mode"`
	URL              string        `yaml:"url"`
	RetryInterval    time.Duration `yaml:"retry_interval"`
	MaxRetryInterval time.Duration `yaml:"max_retry_interval"`
	DialTimeout      time.Duration `yaml:"dial_timeout"`
	ReadTimeout      time.Duration `yaml:"read_timeout"`
	InboxSize        int           `yaml:"inbox_size"`
}

type EngineSpec struct {
	TickInterval time.Duration `yaml:"tick_interval"`
	Transition   time.Duration `yaml:"transition"`
	AllowStale   bool          `yaml:"allow_stale"`
}

type FallbackSpec struct {
	Interval time.Duration `yaml:"interval"`
	Seed     int64         `yaml:"seed"`
}

type RecordingSpec struct {
	Enabled bool   `yaml:"enabled"`
	DataDir string `yaml:"data_dir"`
	Index   bool   `yaml:"index"`
	// RotateEvery is how often recording files roll over.
	RotateEvery time.Duration `yaml:"rotate_every"`
}

// env mirrors the overridable settings. Everything is a string so that an
// unset variable can be told apart from a zero value.
type env struct {
	Mode             string `config:"ARENAVIEW_MODE"`
	URL              string `config:"ARENAVIEW_URL"`
	RetryInterval    string `config:"ARENAVIEW_RETRY_INTERVAL"`
	MaxRetryInterval string `config:"ARENAVIEW_MAX_RETRY_INTERVAL"`
	DialTimeout      string `config:"ARENAVIEW_DIAL_TIMEOUT"`
	TickInterval     string `config:"ARENAVIEW_TICK_INTERVAL"`
	Seed             string `config:"ARENAVIEW_FALLBACK_SEED"`
	Record           string `config:"ARENAVIEW_RECORD"`
	DataDir          string `config:"ARENAVIEW_DATA_DIR"`
}

// Load reads path (optional), applies the environment and validates.
func Load(path string) (Config, error) {
	cfg := defaults()
	if strings.TrimSpace(path) != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return cfg, err
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("%s: %w", path, err)
		}
	}
	if err := cfg.ApplyEnv(); err != nil {
		return cfg, err
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

func Default() Config {
	c := defaults()
	c.Normalize()
	return c
}

func defaults() Config {
	return Config{
		Connection: ConnectionSpec{
			Mode:          "live",
			URL:           "ws://localhost:8080/ws",
			RetryInterval: connmgr.DefaultRetryInterval,
			DialTimeout:   connmgr.DefaultDialTimeout,
			InboxSize:     connmgr.DefaultInboxSize,
		},
		Engine: EngineSpec{
			TickInterval: 50 * time.Millisecond,
			Transition:   reconcile.DefaultTransition,
		},
		Fallback: FallbackSpec{
			Interval: fallback.DefaultInterval,
		},
		Recording: RecordingSpec{
			DataDir:     "./data",
			Index:       true,
			RotateEvery: time.Hour,
		},
	}
}

// ApplyEnv overlays ARENAVIEW_* variables on top of c.
func (c *Config) ApplyEnv() error {
	var e env
	if err := jlconfig.FromEnv().To(&e); err != nil {
		return fmt.Errorf("env: %w", err)
	}
	if e.Mode != "" {
		c.Connection.Mode = e.Mode
	}
	if e.URL != "" {
		c.Connection.URL = e.URL
	}
	durations := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"ARENAVIEW_RETRY_INTERVAL", e.RetryInterval, &c.Connection.RetryInterval},
		{"ARENAVIEW_MAX_RETRY_INTERVAL", e.MaxRetryInterval, &c.Connection.MaxRetryInterval},
		{"ARENAVIEW_DIAL_TIMEOUT", e.DialTimeout, &c.Connection.DialTimeout},
		{"ARENAVIEW_TICK_INTERVAL", e.TickInterval, &c.Engine.TickInterval},
	}
	for _, d := range durations {
		if d.raw == "" {
			continue
		}
		v, err := time.ParseDuration(d.raw)
		if err != nil {
			return fmt.Errorf("%s: %w", d.name, err)
		}
		*d.dst = v
	}
	if e.Seed != "" {
		v, err := strconv.ParseInt(e.Seed, 10, 64)
		if err != nil {
			return fmt.Errorf("ARENAVIEW_FALLBACK_SEED: %w", err)
		}
		c.Fallback.Seed = v
	}
	if e.Record != "" {
		v, err := strconv.ParseBool(e.Record)
		if err != nil {
			return fmt.Errorf("ARENAVIEW_RECORD: %w", err)
		}
		c.Recording.Enabled = v
	}
	if e.DataDir != "" {
		c.Recording.DataDir = e.DataDir
	}
	return nil
}

func (c *Config) Normalize() {
	if c == nil {
		return
	}
	c.Connection.Mode = strings.ToLower(strings.TrimSpace(c.Connection.Mode))
	c.Connection.URL = strings.TrimSpace(c.Connection.URL)
	if c.Connection.RetryInterval <= 0 {
		c.Connection.RetryInterval = connmgr.DefaultRetryInterval
	}
	if c.Connection.DialTimeout <= 0 {
		c.Connection.DialTimeout = connmgr.DefaultDialTimeout
	}
	if c.Connection.InboxSize <= 0 {
		c.Connection.InboxSize = connmgr.DefaultInboxSize
	}
	if c.Engine.TickInterval <= 0 {
		c.Engine.TickInterval = 50 * time.Millisecond
	}
	if c.Engine.Transition <= 0 {
		c.Engine.Transition = reconcile.DefaultTransition
	}
	if c.Fallback.Interval <= 0 {
		c.Fallback.Interval = fallback.DefaultInterval
	}
	c.Recording.DataDir = strings.TrimSpace(c.Recording.DataDir)
	if c.Recording.DataDir == "" {
		c.Recording.DataDir = "./data"
	}
	if c.Recording.RotateEvery <= 0 {
		c.Recording.RotateEvery = time.Hour
	}
}

func (c Config) Validate() error {
	mode, err := connmgr.ParseMode(c.Connection.Mode)
	if err != nil {
		return err
	}
	if mode == connmgr.ModeLive {
		u := c.Connection.URL
		if u == "" {
			return fmt.Errorf("connection.url must not be empty in live mode")
		}
		if !strings.HasPrefix(u, "ws://") && !strings.HasPrefix(u, "wss://") {
			return fmt.Errorf("connection.url must be ws:// or wss://: %q", u)
		}
	}
	if c.Connection.MaxRetryInterval < 0 {
		return fmt.Errorf("connection.max_retry_interval must be >= 0")
	}
	if c.Connection.ReadTimeout < 0 {
		return fmt.Errorf("connection.read_timeout must be >= 0")
	}
	if c.Engine.TickInterval > c.Fallback.Interval {
		return fmt.Errorf("engine.tick_interval (%s) must not exceed fallback.interval (%s)", c.Engine.TickInterval, c.Fallback.Interval)
	}
	return nil
}

func (c Config) Mode() connmgr.Mode {
	m, _ := connmgr.ParseMode(c.Connection.Mode)
	return m
}

// EngineConfig maps the file layout onto the engine's construction options.
func (c Config) EngineConfig() engine.Config {
	return engine.Config{
		Conn: connmgr.Config{
			Mode:             c.Mode(),
			URL:              c.Connection.URL,
			RetryInterval:    c.Connection.RetryInterval,
			MaxRetryInterval: c.Connection.MaxRetryInterval,
			DialTimeout:      c.Connection.DialTimeout,
			InboxSize:        c.Connection.InboxSize,
		},
		Reconcile: reconcile.Options{
			Transition: c.Engine.Transition,
			AllowStale: c.Engine.AllowStale,
		},
	}
}

func (c Config) FallbackConfig() fallback.Config {
	return fallback.Config{Interval: c.Fallback.Interval, Seed: c.Fallback.Seed}
}
