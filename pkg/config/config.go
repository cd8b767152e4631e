// Package config loads the optional TOML configuration file.
//
// Every setting has a flag equivalent; the file only changes defaults. The
// lookup order is: explicit --config path, then
// $XDG_CONFIG_HOME/pcigraph/config.toml, then built-in defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/hwblueprint/pcigraph/pkg/dot"
	"github.com/hwblueprint/pcigraph/pkg/topology"
)

// Config is the root of the TOML document.
type Config struct {
	Match  MatchConfig  `toml:"match"`
	Render RenderConfig `toml:"render"`
	Cache  CacheConfig  `toml:"cache"`
	Server ServerConfig `toml:"server"`
}

// MatchConfig tunes slot-to-device correlation.
type MatchConfig struct {
	// BusFallback lets a bus-only slot hint claim the single device on
	// that bus. Disable to require full device addresses.
	BusFallback bool `toml:"bus_fallback"`

	// PreferFunctionZero picks function 0 when a hint names a device with
	// several functions.
	PreferFunctionZero bool `toml:"prefer_function_zero"`
}

// RenderConfig sets output defaults.
type RenderConfig struct {
	// Format is the default output format: dot, svg, or png.
	Format string `toml:"format"`

	// Clusters enables locality clusters in the emitted graph.
	Clusters bool `toml:"clusters"`
}

// CacheConfig controls the render artifact cache.
type CacheConfig struct {
	// Enabled turns caching on. Off by default: graphs are cheap, renders
	// are not, so only the render and serve paths consult this.
	Enabled bool `toml:"enabled"`

	// Dir is the file cache directory. Empty means the default under the
	// user cache dir.
	Dir string `toml:"dir"`

	// RedisURL switches the backend from files to Redis when set, e.g.
	// "redis://localhost:6379/0".
	RedisURL string `toml:"redis_url"`

	// TTL is the entry lifetime, e.g. "24h". Empty means no expiry.
	TTL string `toml:"ttl"`
}

// ServerConfig configures the serve command.
type ServerConfig struct {
	// Addr is the listen address.
	Addr string `toml:"addr"`

	// RequestTimeout bounds a single request, e.g. "30s".
	RequestTimeout string `toml:"request_timeout"`

	// MaxBodyBytes caps request body size.
	MaxBodyBytes int64 `toml:"max_body_bytes"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Match: MatchConfig{
			BusFallback:        true,
			PreferFunctionZero: true,
		},
		Render: RenderConfig{
			Format: dot.FormatDOT,
		},
		Cache: CacheConfig{
			TTL: "168h",
		},
		Server: ServerConfig{
			Addr:           ":8080",
			RequestTimeout: "30s",
			MaxBodyBytes:   4 << 20,
		},
	}
}

// Load reads a config file and applies it over the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Discover loads the config from the given path, falling back to the user
// config dir. A missing file is not an error; defaults apply.
func Discover(explicit string) (Config, error) {
	if explicit != "" {
		return Load(explicit)
	}
	base, err := os.UserConfigDir()
	if err != nil {
		return Default(), nil
	}
	path := filepath.Join(base, "pcigraph", "config.toml")
	cfg, err := Load(path)
	if os.IsNotExist(err) {
		return Default(), nil
	}
	return cfg, err
}

// Validate checks field values that TOML decoding cannot.
func (c Config) Validate() error {
	if err := dot.ValidateFormat(c.Render.Format); err != nil {
		return err
	}
	if _, err := c.CacheTTL(); err != nil {
		return fmt.Errorf("cache.ttl: %w", err)
	}
	if _, err := c.Server.Timeout(); err != nil {
		return fmt.Errorf("server.request_timeout: %w", err)
	}
	return nil
}

// MatchPolicy converts the match section to the builder's policy type.
func (c Config) MatchPolicy() topology.MatchPolicy {
	return topology.MatchPolicy{
		AllowBusFallback:   c.Match.BusFallback,
		PreferFunctionZero: c.Match.PreferFunctionZero,
	}
}

// CacheTTL parses the cache TTL. Zero means entries never expire.
func (c Config) CacheTTL() (time.Duration, error) {
	if c.Cache.TTL == "" {
		return 0, nil
	}
	return time.ParseDuration(c.Cache.TTL)
}

// CacheDir resolves the file cache directory.
func (c Config) CacheDir() (string, error) {
	if c.Cache.Dir != "" {
		return c.Cache.Dir, nil
	}
	base, err := os.UserCacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, "pcigraph"), nil
}

// Timeout parses the request timeout.
func (s ServerConfig) Timeout() (time.Duration, error) {
	if s.RequestTimeout == "" {
		return 0, nil
	}
	return time.ParseDuration(s.RequestTimeout)
}
