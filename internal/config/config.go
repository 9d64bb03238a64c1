/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Database backend selection.
type DatabaseBackend string

const (
	DatabasePostgres DatabaseBackend = "postgres"
	DatabaseMySQL    DatabaseBackend = "mysql"
	DatabaseSQLite   DatabaseBackend = "sqlite"
)

// Library backend selection.
const (
	LibraryFolder   = "folder"
	LibraryDatabase = "database"
)

// Player backend selection.
const (
	PlayerSimulated = "sim"
	PlayerYouTube   = "youtube"
	PlayerMPV       = "mpv"
)

// Event bus selection.
const (
	EventBusMemory = "memory"
	EventBusRedis  = "redis"
	EventBusNATS   = "nats"
)

// Config covers process level configuration. Values come from defaults, then
// an optional YAML file (LOOPLEARN_CONFIG), then environment variables.
type Config struct {
	Environment string `yaml:"environment"`
	HTTPBind    string `yaml:"http_bind"`
	HTTPPort    int    `yaml:"http_port"`
	BaseURL     string `yaml:"base_url"` // Public base URL; the player page is served below it

	// Library persistence
	LibraryBackend string          `yaml:"library_backend"`
	LibraryDir     string          `yaml:"library_dir"`
	LibraryWatch   bool            `yaml:"library_watch"`
	DBBackend      DatabaseBackend `yaml:"db_backend"`
	DBDSN          string          `yaml:"db_dsn"`

	// Player
	PlayerBackend     string  `yaml:"player_backend"`
	MPVSocket         string  `yaml:"mpv_socket"`
	BrowserHeadless   bool    `yaml:"browser_headless"`
	BrowserControlURL string  `yaml:"browser_control_url"` // DevTools URL of an already running browser
	SimDurationSecs   float64 `yaml:"sim_duration_seconds"`

	// Playback
	PollIntervalMS int     `yaml:"poll_interval_ms"`
	PlaybackRate   float64 `yaml:"playback_rate"`
	SkipStep       float64 `yaml:"skip_step"`

	// Event forwarding
	EventBus      string `yaml:"event_bus"`
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
	NATSURL       string `yaml:"nats_url"`
	InstanceID    string `yaml:"instance_id"`

	// Observability
	MetricsEnabled    bool    `yaml:"metrics_enabled"`
	TracingEnabled    bool    `yaml:"tracing_enabled"`
	OTLPEndpoint      string  `yaml:"otlp_endpoint"`
	TracingSampleRate float64 `yaml:"tracing_sample_rate"`
	LogFile           string  `yaml:"log_file"`

	// Source describes where values were read from, for the startup log.
	Source []string `yaml:"-"`
}

func defaults() *Config {
	return &Config{
		Environment:       "development",
		HTTPBind:          "127.0.0.1",
		HTTPPort:          8080,
		LibraryBackend:    LibraryFolder,
		LibraryDir:        "./loops",
		LibraryWatch:      true,
		DBBackend:         DatabaseSQLite,
		DBDSN:             "looplearn.db",
		PlayerBackend:     PlayerSimulated,
		MPVSocket:         "/tmp/looplearn-mpv.sock",
		BrowserHeadless:   true,
		SimDurationSecs:   600,
		PollIntervalMS:    150,
		PlaybackRate:      1.0,
		SkipStep:          5,
		EventBus:          EventBusMemory,
		RedisAddr:         "localhost:6379",
		NATSURL:           "nats://localhost:4222",
		MetricsEnabled:    true,
		OTLPEndpoint:      "localhost:4317",
		TracingSampleRate: 1.0,
	}
}

// Load reads .env, the optional YAML file and environment variables, applies
// defaults, and validates the result.
func Load() (*Config, error) {
	cfg := defaults()

	if err := godotenv.Load(); err == nil {
		cfg.Source = append(cfg.Source, ".env")
	} else if !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	if path := getEnvAny([]string{"LOOPLEARN_CONFIG"}, ""); path != "" {
		if err := cfg.overlayFile(path); err != nil {
			return nil, err
		}
		cfg.Source = append(cfg.Source, path)
	}

	cfg.Environment = getEnvAny([]string{"LOOPLEARN_ENV"}, cfg.Environment)
	cfg.HTTPBind = getEnvAny([]string{"LOOPLEARN_HTTP_BIND"}, cfg.HTTPBind)
	cfg.HTTPPort = getEnvIntAny([]string{"LOOPLEARN_HTTP_PORT", "PORT"}, cfg.HTTPPort)
	cfg.BaseURL = getEnvAny([]string{"LOOPLEARN_BASE_URL"}, cfg.BaseURL)

	cfg.LibraryBackend = getEnvAny([]string{"LOOPLEARN_LIBRARY_BACKEND"}, cfg.LibraryBackend)
	cfg.LibraryDir = getEnvAny([]string{"LOOPLEARN_LIBRARY_DIR"}, cfg.LibraryDir)
	cfg.LibraryWatch = getEnvBoolAny([]string{"LOOPLEARN_LIBRARY_WATCH"}, cfg.LibraryWatch)
	cfg.DBBackend = DatabaseBackend(getEnvAny([]string{"LOOPLEARN_DB_BACKEND"}, string(cfg.DBBackend)))
	cfg.DBDSN = getEnvAny([]string{"LOOPLEARN_DB_DSN", "DATABASE_URL"}, cfg.DBDSN)

	cfg.PlayerBackend = getEnvAny([]string{"LOOPLEARN_PLAYER"}, cfg.PlayerBackend)
	cfg.MPVSocket = getEnvAny([]string{"LOOPLEARN_MPV_SOCKET"}, cfg.MPVSocket)
	cfg.BrowserHeadless = getEnvBoolAny([]string{"LOOPLEARN_BROWSER_HEADLESS"}, cfg.BrowserHeadless)
	cfg.BrowserControlURL = getEnvAny([]string{"LOOPLEARN_BROWSER_CONTROL_URL"}, cfg.BrowserControlURL)
	cfg.SimDurationSecs = getEnvFloatAny([]string{"LOOPLEARN_SIM_DURATION_SECONDS"}, cfg.SimDurationSecs)

	cfg.PollIntervalMS = getEnvIntAny([]string{"LOOPLEARN_POLL_INTERVAL_MS"}, cfg.PollIntervalMS)
	cfg.PlaybackRate = getEnvFloatAny([]string{"LOOPLEARN_PLAYBACK_RATE"}, cfg.PlaybackRate)
	cfg.SkipStep = getEnvFloatAny([]string{"LOOPLEARN_SKIP_STEP"}, cfg.SkipStep)

	cfg.EventBus = getEnvAny([]string{"LOOPLEARN_EVENT_BUS"}, cfg.EventBus)
	cfg.RedisAddr = getEnvAny([]string{"LOOPLEARN_REDIS_ADDR"}, cfg.RedisAddr)
	cfg.RedisPassword = getEnvAny([]string{"LOOPLEARN_REDIS_PASSWORD"}, cfg.RedisPassword)
	cfg.RedisDB = getEnvIntAny([]string{"LOOPLEARN_REDIS_DB"}, cfg.RedisDB)
	cfg.NATSURL = getEnvAny([]string{"LOOPLEARN_NATS_URL", "NATS_URL"}, cfg.NATSURL)
	cfg.InstanceID = getEnvAny([]string{"LOOPLEARN_INSTANCE_ID"}, cfg.InstanceID)

	cfg.MetricsEnabled = getEnvBoolAny([]string{"LOOPLEARN_METRICS_ENABLED"}, cfg.MetricsEnabled)
	cfg.TracingEnabled = getEnvBoolAny([]string{"LOOPLEARN_TRACING_ENABLED"}, cfg.TracingEnabled)
	cfg.OTLPEndpoint = getEnvAny([]string{"LOOPLEARN_OTLP_ENDPOINT", "OTEL_EXPORTER_OTLP_ENDPOINT"}, cfg.OTLPEndpoint)
	cfg.TracingSampleRate = getEnvFloatAny([]string{"LOOPLEARN_TRACING_SAMPLE_RATE"}, cfg.TracingSampleRate)
	cfg.LogFile = getEnvAny([]string{"LOOPLEARN_LOG_FILE"}, cfg.LogFile)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) overlayFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

// Validate rejects unknown backends and non-positive intervals or rates.
func (c *Config) Validate() error {
	switch c.LibraryBackend {
	case LibraryFolder:
		if strings.TrimSpace(c.LibraryDir) == "" {
			return fmt.Errorf("LOOPLEARN_LIBRARY_DIR must be provided for the folder library")
		}
	case LibraryDatabase:
	default:
		return fmt.Errorf("unsupported library backend %q", c.LibraryBackend)
	}

	if c.DBBackend != DatabasePostgres && c.DBBackend != DatabaseMySQL && c.DBBackend != DatabaseSQLite {
		return fmt.Errorf("unsupported database backend %q", c.DBBackend)
	}
	if c.LibraryBackend == LibraryDatabase && c.DBDSN == "" {
		return fmt.Errorf("LOOPLEARN_DB_DSN must be provided for the database library")
	}

	switch c.PlayerBackend {
	case PlayerSimulated, PlayerYouTube, PlayerMPV:
	default:
		return fmt.Errorf("unsupported player backend %q", c.PlayerBackend)
	}

	switch c.EventBus {
	case EventBusMemory, EventBusRedis, EventBusNATS:
	default:
		return fmt.Errorf("unsupported event bus %q", c.EventBus)
	}

	if c.HTTPPort <= 0 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid http port %d", c.HTTPPort)
	}
	if c.PollIntervalMS <= 0 {
		return fmt.Errorf("poll interval must be positive, got %dms", c.PollIntervalMS)
	}
	if c.PlaybackRate <= 0 {
		return fmt.Errorf("playback rate must be positive, got %v", c.PlaybackRate)
	}
	if c.SkipStep <= 0 {
		return fmt.Errorf("skip step must be positive, got %v", c.SkipStep)
	}
	if c.TracingSampleRate < 0 || c.TracingSampleRate > 1 {
		return fmt.Errorf("tracing sample rate must be within [0,1], got %v", c.TracingSampleRate)
	}
	return nil
}

// PollInterval returns the scheduler poll period.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMS) * time.Millisecond
}

// ListenAddr returns host:port for the HTTP server.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.HTTPBind, c.HTTPPort)
}

// PublicURL returns BaseURL, or a URL derived from the listen address.
func (c *Config) PublicURL() string {
	if c.BaseURL != "" {
		return strings.TrimRight(c.BaseURL, "/")
	}
	host := c.HTTPBind
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	return fmt.Sprintf("http://%s:%d", host, c.HTTPPort)
}

// getEnvAny returns the first non-empty environment variable value from keys, or def if none set.
func getEnvAny(keys []string, def string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return def
}

// getEnvIntAny returns the first set integer environment variable value from keys, or def.
func getEnvIntAny(keys []string, def int) int {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			if parsed, err := strconv.Atoi(v); err == nil {
				return parsed
			}
		}
	}
	return def
}

// getEnvBoolAny returns the first set boolean environment variable value from keys, or def.
func getEnvBoolAny(keys []string, def bool) bool {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			v = strings.ToLower(strings.TrimSpace(v))
			if v == "true" || v == "1" || v == "yes" {
				return true
			}
			if v == "false" || v == "0" || v == "no" {
				return false
			}
		}
	}
	return def
}

// getEnvFloatAny returns the first set float environment variable value from keys, or def.
func getEnvFloatAny(keys []string, def float64) float64 {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			if parsed, err := strconv.ParseFloat(v, 64); err == nil {
				return parsed
			}
		}
	}
	return def
}
