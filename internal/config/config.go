// Package config loads BitPyStore's configuration from a JSONC file,
// following the teacher's config.go: defaults, a hujson-tolerant parser,
// and field-level validation.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/tailscale/hujson"
)

// Config holds the options recognized at open time (§6.4), plus the
// listen address used only by the TCP server front-end.
type Config struct {
	Path          string `json:"path"`
	CacheCapacity int    `json:"cache_capacity,omitempty"` //nolint:tagliatelle
	ListenAddr    string `json:"listen_addr,omitempty"`    //nolint:tagliatelle
}

// DefaultCacheCapacity mirrors internal/engine's default so a config file
// omitting cache_capacity still produces a documented value.
const DefaultCacheCapacity = 1000

// DefaultListenAddr is used when listen_addr is absent from the config
// file or overridden to empty on the command line.
const DefaultListenAddr = "127.0.0.1:8711"

var (
	// ErrPathRequired reports a config with no path set.
	ErrPathRequired = errors.New("config: path is required")

	// ErrInvalidJSON reports a config file that isn't valid JSONC.
	ErrInvalidJSON = errors.New("config: invalid JSON")
)

// DefaultConfig returns the zero-value config with its documented
// defaults filled in; Path is left empty since it is required.
func DefaultConfig() Config {
	return Config{
		CacheCapacity: DefaultCacheCapacity,
		ListenAddr:    DefaultListenAddr,
	}
}

// Load reads and parses the JSONC config file at path and merges it onto
// DefaultConfig. It does not validate the result: a file without a path
// key is accepted here, and callers run Validate after applying any
// overrides. Callers that allow a config-less invocation should skip Load
// and fill in Config.Path themselves before validating.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is operator-controlled, not attacker input
	if err != nil {
		return Config{}, fmt.Errorf("config: read %q: %w", path, err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return Config{}, fmt.Errorf("config: parse %q: %w", path, err)
	}

	return cfg, nil
}

// Parse standardizes JSONC to JSON via hujson and merges the result onto
// DefaultConfig. Fields absent from data keep their default value.
func Parse(data []byte) (Config, error) {
	standardized, err := hujson.Standardize(data)
	if err != nil {
		return Config{}, fmt.Errorf("%w: %w", ErrInvalidJSON, err)
	}

	cfg := DefaultConfig()

	if err := json.Unmarshal(standardized, &cfg); err != nil {
		return Config{}, fmt.Errorf("%w: %w", ErrInvalidJSON, err)
	}

	return cfg, nil
}

// Validate rejects a config missing its required Path and normalizes
// zero-value fields back to their defaults.
func Validate(cfg Config) (Config, error) {
	if cfg.Path == "" {
		return Config{}, ErrPathRequired
	}

	if cfg.CacheCapacity <= 0 {
		cfg.CacheCapacity = DefaultCacheCapacity
	}

	if cfg.ListenAddr == "" {
		cfg.ListenAddr = DefaultListenAddr
	}

	return cfg, nil
}
