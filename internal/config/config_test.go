package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/DmitryOnishchenko/accounting-notebook/internal/config"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.Addr != ":8080" {
		t.Errorf("server addr = %q, want :8080", cfg.Server.Addr)
	}
	if cfg.Lock.TTL.Std() != 30*time.Second {
		t.Errorf("lock ttl = %v, want 30s", cfg.Lock.TTL.Std())
	}
	if cfg.Lock.RetryCount != -1 {
		t.Errorf("retry count = %d, want -1", cfg.Lock.RetryCount)
	}
	if cfg.Lock.DriftFactor != 0.01 {
		t.Errorf("drift factor = %v, want 0.01", cfg.Lock.DriftFactor)
	}
	if cfg.Storage.Backend != "memory" {
		t.Errorf("storage backend = %q, want memory", cfg.Storage.Backend)
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	data := `
server:
  addr: ":3000"
redis:
  addrs: ["redis-a:6379", "redis-b:6379", "redis-c:6379"]
lock:
  ttl: 10s
  retry_delay: 50ms
  retry_count: 5
storage:
  backend: postgres
  postgres_dsn: "postgres://ledger@db/ledger?sslmode=disable"
  seed_demo_data: true
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("writing temp config: %v", err)
	}

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.Addr != ":3000" {
		t.Errorf("server addr = %q, want :3000", cfg.Server.Addr)
	}
	if len(cfg.Redis.Addrs) != 3 {
		t.Errorf("redis addrs = %v, want 3 entries", cfg.Redis.Addrs)
	}
	if cfg.Lock.TTL.Std() != 10*time.Second {
		t.Errorf("lock ttl = %v, want 10s", cfg.Lock.TTL.Std())
	}
	if cfg.Lock.RetryDelay.Std() != 50*time.Millisecond {
		t.Errorf("retry delay = %v, want 50ms", cfg.Lock.RetryDelay.Std())
	}
	if cfg.Lock.RetryCount != 5 {
		t.Errorf("retry count = %d, want 5", cfg.Lock.RetryCount)
	}
	if !cfg.Storage.SeedDemoData {
		t.Error("seed_demo_data not picked up")
	}
	// Fields absent from the file keep their defaults.
	if cfg.Metrics.Addr != ":9090" {
		t.Errorf("metrics addr = %q, want default :9090", cfg.Metrics.Addr)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("SERVER_ADDR", ":4000")
	t.Setenv("REDIS_ADDRS", "r1:6379, r2:6379 ,r3:6379")
	t.Setenv("DATABASE_URL", "postgres://env@db/ledger")

	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.Addr != ":4000" {
		t.Errorf("server addr = %q, want :4000", cfg.Server.Addr)
	}
	if len(cfg.Redis.Addrs) != 3 || cfg.Redis.Addrs[1] != "r2:6379" {
		t.Errorf("redis addrs = %v, want trimmed 3-entry list", cfg.Redis.Addrs)
	}
	if cfg.Storage.PostgresDSN != "postgres://env@db/ledger" {
		t.Errorf("dsn = %q, want env value", cfg.Storage.PostgresDSN)
	}
}
