package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestLoad_FullConfig(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
node:
  id: node-a
recovery:
  max_concurrent: 5
  timeout: 45m
  sweep_interval: 15s
peers:
  - name: peer-b
    addr: peer-b:9000
redis:
  url: redis://localhost:6379/0
  channel: custom:events
logging:
  level: debug
database:
  url: postgres://localhost:5432/meshsync
  max_conns: 20
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("expected port 9090, got %d", cfg.Server.Port)
	}
	if cfg.Node.ID != "node-a" {
		t.Errorf("expected node id node-a, got %s", cfg.Node.ID)
	}
	if cfg.Recovery.MaxConcurrent != 5 {
		t.Errorf("expected max_concurrent 5, got %d", cfg.Recovery.MaxConcurrent)
	}
	if cfg.Recovery.Timeout != 45*time.Minute {
		t.Errorf("expected timeout 45m, got %v", cfg.Recovery.Timeout)
	}
	if len(cfg.Peers) != 1 || cfg.Peers[0].Addr != "peer-b:9000" {
		t.Errorf("unexpected peers: %+v", cfg.Peers)
	}
	if cfg.Redis.Channel != "custom:events" {
		t.Errorf("unexpected redis channel: %s", cfg.Redis.Channel)
	}
	if cfg.Database.MaxConns != 20 {
		t.Errorf("unexpected max_conns: %d", cfg.Database.MaxConns)
	}
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfig(t, `
logging:
  level: info
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("expected default port 8080, got %d", cfg.Server.Port)
	}
	host, _ := os.Hostname()
	if cfg.Node.ID != host {
		t.Errorf("expected hostname node id %q, got %q", host, cfg.Node.ID)
	}
	// Zero recovery tunables defer to the recovery package defaults.
	if cfg.Recovery.MaxConcurrent != 0 {
		t.Errorf("expected zero max_concurrent, got %d", cfg.Recovery.MaxConcurrent)
	}
}

func TestLoad_ExpandsEnvVars(t *testing.T) {
	t.Setenv("MESHSYNC_DB_URL", "postgres://db:5432/meshsync")
	path := writeConfig(t, `
node:
  id: node-a
database:
  url: ${MESHSYNC_DB_URL}
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Database.URL != "postgres://db:5432/meshsync" {
		t.Errorf("env var not expanded: %s", cfg.Database.URL)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeConfig(t, "server: [not a map")
	if _, err := Load(path); err == nil {
		t.Error("expected error for invalid YAML")
	}
}
