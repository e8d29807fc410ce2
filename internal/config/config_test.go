package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	c, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if c.Analysis.Window != time.Minute || c.Analysis.Sensitivity != 0.01 || c.Analysis.Model != "iforest" {
		t.Fatalf("analysis defaults %+v", c.Analysis)
	}
	if c.Analysis.MaxWindows != 1_000_000 {
		t.Fatalf("maxWindows default %d", c.Analysis.MaxWindows)
	}
	if c.Server.Addr != ":8080" || c.Cache.Backend != "bolt" || c.Log.Level != "info" {
		t.Fatalf("defaults %+v", c)
	}
}

func TestLoadFile(t *testing.T) {
	p := filepath.Join(t.TempDir(), "config.yaml")
	body := `
server:
  addr: ":9090"
analysis:
  window: 5m
  sensitivity: 0.02
  model: zscore
  syslogYear: 2019
cache:
  backend: none
`
	if err := os.WriteFile(p, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	c, err := Load(p)
	if err != nil {
		t.Fatal(err)
	}
	if c.Server.Addr != ":9090" || c.Analysis.Window != 5*time.Minute || c.Analysis.Sensitivity != 0.02 {
		t.Fatalf("config %+v", c)
	}
	if c.Analysis.Model != "zscore" || c.Analysis.SyslogYear != 2019 || c.Cache.Backend != "none" {
		t.Fatalf("config %+v", c)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LAD_REDIS_ADDR", "localhost:6379")
	t.Setenv("LAD_SENSITIVITY", "0.03")
	c, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if c.Log.Level != "debug" || c.Cache.Backend != "redis" || c.Analysis.Sensitivity != 0.03 {
		t.Fatalf("config %+v", c)
	}
}

func TestValidate(t *testing.T) {
	p := filepath.Join(t.TempDir(), "config.yaml")
	for _, body := range []string{
		"analysis:\n  sensitivity: 1.5\n",
		"analysis:\n  window: -1m\n",
		"analysis:\n  window: 1ns\n",
		"analysis:\n  window: 1500ms\n",
		"analysis:\n  maxWindows: -5\n",
		"cache:\n  backend: memcached\n",
		"cache:\n  backend: redis\n",
	} {
		if err := os.WriteFile(p, []byte(body), 0o600); err != nil {
			t.Fatal(err)
		}
		if _, err := Load(p); err == nil {
			t.Fatalf("config %q accepted", body)
		}
	}
}
