package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

func TestFromEnv_Defaults(t *testing.T) {
	for _, k := range []string{"ADDR", "BACKEND", "CARTO_DOMAIN", "CARTO_SCHEME", "CACHE_DRIVER", "CACHE_TTL", "H3_RES", "HTTP_TIMEOUT", "CARTO_NOT_FOUND"} {
		t.Setenv(k, "")
	}
	cfg := FromEnv()

	if cfg.Addr != ":8090" || cfg.Backend != "sqlapi" || cfg.HTTPTimeout != 30*time.Second {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if cfg.Carto.Domain != "cartodb.com" || cfg.Carto.Scheme != "https" || cfg.Carto.NotFound != "error" {
		t.Fatalf("unexpected carto defaults %+v", cfg.Carto)
	}
	if cfg.Cache.Driver != "none" || cfg.Cache.TTL != time.Minute || cfg.Events.H3Res != 9 {
		t.Fatalf("unexpected cache/events defaults %+v %+v", cfg.Cache, cfg.Events)
	}
}

func TestFromEnv_Overrides(t *testing.T) {
	t.Setenv("CARTO_ACCOUNT", "cspanring")
	t.Setenv("CARTO_TABLE_PREFIX", "boston")
	t.Setenv("BACKEND", "Postgres")
	t.Setenv("EVENTS_ENABLED", "yes")
	t.Setenv("H3_RES", "22")
	t.Setenv("RATE_LIMIT_RPS", "2.5")
	t.Setenv("CACHE_TTL", "not-a-duration")

	cfg := FromEnv()
	if cfg.Carto.Account != "cspanring" || cfg.Carto.TablePrefix != "boston" {
		t.Fatalf("carto=%+v", cfg.Carto)
	}
	if cfg.Backend != "postgres" || !cfg.Events.Enabled || cfg.RateLimit != 2.5 {
		t.Fatalf("cfg=%+v", cfg)
	}
	if cfg.Events.H3Res != 9 {
		t.Fatalf("out of range resolution must fall back, got %d", cfg.Events.H3Res)
	}
	if cfg.Cache.TTL != time.Minute {
		t.Fatalf("invalid duration must fall back, got %v", cfg.Cache.TTL)
	}
}

func TestLoad_YAMLOverlay(t *testing.T) {
	t.Setenv("CARTO_ACCOUNT", "from-env")
	t.Setenv("CARTO_API_KEY", "env-key")

	path := filepath.Join(t.TempDir(), "gateway.yaml")
	yml := `
addr: ":9000"
carto:
  account: from-file
  write_mode: requery
cache:
  driver: memory
  ttl: 5m
events:
  brokers: "k1:9092, k2:9092"
`
	if err := os.WriteFile(path, []byte(yml), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Addr != ":9000" || cfg.Carto.Account != "from-file" || cfg.Carto.WriteMode != "requery" {
		t.Fatalf("file values not applied: %+v", cfg)
	}
	if cfg.Carto.APIKey != "env-key" {
		t.Fatalf("env value lost: %q", cfg.Carto.APIKey)
	}
	if cfg.Cache.Driver != "memory" || cfg.Cache.TTL != 5*time.Minute {
		t.Fatalf("cache=%+v", cfg.Cache)
	}
	if got := cfg.Events.BrokerList(); !reflect.DeepEqual(got, []string{"k1:9092", "k2:9092"}) {
		t.Fatalf("brokers=%v", got)
	}
}

func TestLoad_Errors(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
	path := filepath.Join(t.TempDir(), "bad.yaml")
	_ = os.WriteFile(path, []byte("addr: [unterminated"), 0o600)
	if _, err := Load(path); err == nil {
		t.Fatalf("expected parse error")
	}
	if _, err := Load(""); err != nil {
		t.Fatalf("empty path must read env only: %v", err)
	}
}
