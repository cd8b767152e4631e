package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDefaults(t *testing.T) {
	cfg := Default()

	if !cfg.Match.BusFallback || !cfg.Match.PreferFunctionZero {
		t.Error("both match heuristics should default on")
	}
	if cfg.Render.Format != "dot" {
		t.Errorf("default format = %q, want dot", cfg.Render.Format)
	}
	if cfg.Cache.Enabled {
		t.Error("cache should default off")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults must validate: %v", err)
	}
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
[match]
bus_fallback = false
prefer_function_zero = true

[render]
format = "svg"
clusters = true

[cache]
enabled = true
ttl = "1h"

[server]
addr = ":9090"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Match.BusFallback {
		t.Error("bus_fallback should be off")
	}
	if cfg.Render.Format != "svg" || !cfg.Render.Clusters {
		t.Errorf("render section not applied: %+v", cfg.Render)
	}
	if ttl, _ := cfg.CacheTTL(); ttl != time.Hour {
		t.Errorf("ttl = %v, want 1h", ttl)
	}
	if cfg.Server.Addr != ":9090" {
		t.Errorf("addr = %q", cfg.Server.Addr)
	}

	policy := cfg.MatchPolicy()
	if policy.AllowBusFallback || !policy.PreferFunctionZero {
		t.Errorf("policy not derived from match section: %+v", policy)
	}
}

func TestLoadPartialKeepsDefaults(t *testing.T) {
	path := writeConfig(t, `
[render]
clusters = true
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Render.Format != "dot" {
		t.Errorf("unset format should keep default, got %q", cfg.Render.Format)
	}
	if !cfg.Match.BusFallback {
		t.Error("unset match section should keep defaults")
	}
}

func TestLoadRejectsBadFormat(t *testing.T) {
	path := writeConfig(t, `
[render]
format = "pdf"
`)
	if _, err := Load(path); err == nil {
		t.Error("invalid format must be rejected")
	}
}

func TestLoadRejectsBadTTL(t *testing.T) {
	path := writeConfig(t, `
[cache]
ttl = "yesterday"
`)
	if _, err := Load(path); err == nil {
		t.Error("invalid ttl must be rejected")
	}
}

func TestDiscoverMissingFileIsFine(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	cfg, err := Discover("")
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if cfg.Render.Format != "dot" {
		t.Error("missing file should yield defaults")
	}
}

func TestDiscoverExplicitMissingIsError(t *testing.T) {
	if _, err := Discover(filepath.Join(t.TempDir(), "nope.toml")); err == nil {
		t.Error("explicit missing path must error")
	}
}
