package server

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/friendsincode/looplearn/internal/config"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	t.Setenv("LOOPLEARN_CONFIG", "")
	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	cfg.LibraryDir = filepath.Join(t.TempDir(), "loops")
	cfg.LibraryWatch = false
	cfg.PlayerBackend = config.PlayerSimulated
	cfg.EventBus = config.EventBusMemory
	cfg.MetricsEnabled = true
	return cfg
}

func newTestServer(t *testing.T, cfg *config.Config) *Server {
	t.Helper()
	srv, err := New(cfg, nil, zerolog.Nop())
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	t.Cleanup(func() { _ = srv.Close() })
	return srv
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
	return rr
}

func TestServerRoutes(t *testing.T) {
	srv := newTestServer(t, testConfig(t))
	h := srv.Router()

	tests := []struct {
		path     string
		status   int
		contains string
	}{
		{"/healthz", http.StatusOK, `"mode":"idle"`},
		{"/api/v1/health", http.StatusOK, `"library":"ok"`},
		{"/player", http.StatusOK, "window.looplearn"},
		{"/metrics", http.StatusOK, "looplearn_"},
		{"/api/v1/list", http.StatusOK, `"list"`},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rr := get(t, h, tt.path)
			if rr.Code != tt.status {
				t.Fatalf("status = %d, want %d", rr.Code, tt.status)
			}
			if !strings.Contains(rr.Body.String(), tt.contains) {
				t.Fatalf("body missing %q: %s", tt.contains, rr.Body.String())
			}
		})
	}
}

func TestServerMetricsDisabled(t *testing.T) {
	cfg := testConfig(t)
	cfg.MetricsEnabled = false
	srv := newTestServer(t, cfg)

	if rr := get(t, srv.Router(), "/metrics"); rr.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rr.Code)
	}
}

func TestServerDatabaseLibrary(t *testing.T) {
	cfg := testConfig(t)
	cfg.LibraryBackend = config.LibraryDatabase
	cfg.DBBackend = config.DatabaseSQLite
	cfg.DBDSN = filepath.Join(t.TempDir(), "looplearn.db")
	srv := newTestServer(t, cfg)

	rr := get(t, srv.Router(), "/api/v1/library")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d body %s", rr.Code, rr.Body.String())
	}
	if !strings.Contains(rr.Body.String(), `"entries":[]`) {
		t.Fatalf("expected empty entries, got %s", rr.Body.String())
	}
}

func TestServerUnknownPlayer(t *testing.T) {
	cfg := testConfig(t)
	cfg.PlayerBackend = "vlc"
	if _, err := New(cfg, nil, zerolog.Nop()); err == nil {
		t.Fatal("expected error for unknown player backend")
	}
}
