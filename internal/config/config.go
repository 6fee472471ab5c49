// Package config resolves the amaranthine data directory and its optional
// JSONC settings file, in the teacher's precedence-chain style (defaults <
// config file < CLI override).
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/tailscale/hujson"
)

// DirEnvVar is the environment variable that overrides the default
// amaranthine data directory (spec §6).
const DirEnvVar = "AMARANTHINE_DIR"

// ConfigFileName is the settings file looked for inside the data directory.
const ConfigFileName = "config.jsonc"

var errConfigInvalid = errors.New("config: invalid config file")

// Config holds the tunables a user may override via config.jsonc.
type Config struct {
	// SearchLimit is the default --limit for `search` when unspecified.
	SearchLimit int `json:"search_limit,omitempty"`

	// DefaultDetail is the default --detail level for `search`.
	DefaultDetail string `json:"default_detail,omitempty"`

	// LogLevel controls the zap logger's minimum level ("debug", "info",
	// "warn", "error").
	LogLevel string `json:"log_level,omitempty"`
}

// Default returns the built-in defaults, used when no config file exists.
func Default() Config {
	return Config{
		SearchLimit:   10,
		DefaultDetail: "medium",
		LogLevel:      "info",
	}
}

// ResolveDir returns the amaranthine data directory: AMARANTHINE_DIR if
// set, otherwise "~/.amaranthine".
func ResolveDir() (string, error) {
	if dir := os.Getenv(DirEnvVar); dir != "" {
		return dir, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("config: resolving home directory: %w", err)
	}

	return filepath.Join(home, ".amaranthine"), nil
}

// Load reads dir's config.jsonc if present, merging it over Default(). A
// missing file is not an error.
func Load(dir string) (Config, error) {
	cfg := Default()

	path := filepath.Join(dir, ConfigFileName)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}

		return Config{}, fmt.Errorf("config: reading %s: %w", path, err)
	}

	standardized, err := hujson.Standardize(data)
	if err != nil {
		return Config{}, fmt.Errorf("%w %s: %w", errConfigInvalid, path, err)
	}

	var fileCfg Config
	if err := json.Unmarshal(standardized, &fileCfg); err != nil {
		return Config{}, fmt.Errorf("%w %s: %w", errConfigInvalid, path, err)
	}

	return merge(cfg, fileCfg), nil
}

func merge(base, override Config) Config {
	if override.SearchLimit != 0 {
		base.SearchLimit = override.SearchLimit
	}
	if override.DefaultDetail != "" {
		base.DefaultDetail = override.DefaultDetail
	}
	if override.LogLevel != "" {
		base.LogLevel = override.LogLevel
	}

	return base
}
