package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.PollInterval() != 150*time.Millisecond {
		t.Fatalf("unexpected poll interval: %v", cfg.PollInterval())
	}
	if cfg.PlayerBackend != PlayerSimulated || cfg.LibraryBackend != LibraryFolder || cfg.EventBus != EventBusMemory {
		t.Fatalf("unexpected backends: %+v", cfg)
	}
	if cfg.PlaybackRate != 1.0 || cfg.SkipStep != 5 {
		t.Fatalf("unexpected playback defaults: rate=%v step=%v", cfg.PlaybackRate, cfg.SkipStep)
	}
}

func TestLoadReadsEnvKeys(t *testing.T) {
	t.Setenv("LOOPLEARN_HTTP_PORT", "9090")
	t.Setenv("LOOPLEARN_POLL_INTERVAL_MS", "40")
	t.Setenv("LOOPLEARN_PLAYER", "mpv")
	t.Setenv("LOOPLEARN_BROWSER_HEADLESS", "no")
	t.Setenv("LOOPLEARN_PLAYBACK_RATE", "0.75")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.HTTPPort != 9090 {
		t.Fatalf("unexpected port: %d", cfg.HTTPPort)
	}
	if cfg.PollInterval() != 40*time.Millisecond {
		t.Fatalf("unexpected poll interval: %v", cfg.PollInterval())
	}
	if cfg.PlayerBackend != PlayerMPV || cfg.BrowserHeadless {
		t.Fatalf("unexpected player settings: %+v", cfg)
	}
	if cfg.PlaybackRate != 0.75 {
		t.Fatalf("unexpected rate: %v", cfg.PlaybackRate)
	}
}

func TestLoadYAMLOverlayIsOverriddenByEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "looplearn.yaml")
	data := []byte("http_port: 7000\nplayer_backend: youtube\nskip_step: 2.5\nevent_bus: nats\n")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("LOOPLEARN_CONFIG", path)
	t.Setenv("LOOPLEARN_HTTP_PORT", "7001")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.HTTPPort != 7001 {
		t.Fatalf("env should win over yaml, got port %d", cfg.HTTPPort)
	}
	if cfg.PlayerBackend != PlayerYouTube || cfg.SkipStep != 2.5 || cfg.EventBus != EventBusNATS {
		t.Fatalf("yaml values not applied: %+v", cfg)
	}
	if len(cfg.Source) == 0 || cfg.Source[len(cfg.Source)-1] != path {
		t.Fatalf("expected source to include %s, got %v", path, cfg.Source)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{"unknown player", "LOOPLEARN_PLAYER", "vlc"},
		{"unknown library", "LOOPLEARN_LIBRARY_BACKEND", "s3"},
		{"unknown db", "LOOPLEARN_DB_BACKEND", "oracle"},
		{"unknown bus", "LOOPLEARN_EVENT_BUS", "kafka"},
		{"zero poll interval", "LOOPLEARN_POLL_INTERVAL_MS", "0"},
		{"negative rate", "LOOPLEARN_PLAYBACK_RATE", "-1"},
		{"zero skip step", "LOOPLEARN_SKIP_STEP", "0"},
		{"sample rate above one", "LOOPLEARN_TRACING_SAMPLE_RATE", "1.5"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.val)
			if _, err := Load(); err == nil {
				t.Fatalf("expected %s=%s to be rejected", tt.key, tt.val)
			}
		})
	}
}

func TestLoadMissingConfigFile(t *testing.T) {
	t.Setenv("LOOPLEARN_CONFIG", filepath.Join(t.TempDir(), "missing.yaml"))
	if _, err := Load(); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestPublicURL(t *testing.T) {
	cfg := &Config{HTTPBind: "0.0.0.0", HTTPPort: 8080}
	if got := cfg.PublicURL(); got != "http://127.0.0.1:8080" {
		t.Fatalf("unexpected public url: %s", got)
	}
	cfg.BaseURL = "https://loops.example.com/"
	if got := cfg.PublicURL(); got != "https://loops.example.com" {
		t.Fatalf("unexpected public url: %s", got)
	}
}
