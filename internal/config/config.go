package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// Config represents the complete client configuration. It is resolved once at
// startup and passed explicitly into each component; nothing re-reads the
// environment after Load returns.
type Config struct {
	Backend    BackendConfig    `toml:"backend"`
	Storage    StorageConfig    `toml:"storage"`
	Checkpoint CheckpointConfig `toml:"checkpoint"`
	Chunk      ChunkConfig      `toml:"chunk"`
}

// BackendConfig holds settings for the remote execution backend.
type BackendConfig struct {
	BaseURL string `toml:"base_url"`
	// RateLimitPerMinute throttles outbound dispatches client-side.
	// 0 disables the limiter.
	RateLimitPerMinute int `toml:"rate_limit_per_minute"`
}

// StorageConfig holds local filesystem settings.
type StorageConfig struct {
	SaveDir string `toml:"save_dir"` // Where downloaded files land
}

// CheckpointBackend selects the checkpoint persistence medium.
type CheckpointBackend string

const (
	CheckpointBackendFile   CheckpointBackend = "file"
	CheckpointBackendSQLite CheckpointBackend = "sqlite"
)

// CheckpointConfig holds checkpoint store settings.
type CheckpointConfig struct {
	Dir     string            `toml:"dir"`
	Backend CheckpointBackend `toml:"backend"` // "file" (default) or "sqlite"
}

// ChunkConfig holds chunked execution defaults.
type ChunkConfig struct {
	DefaultBatchSize int `toml:"default_batch_size"`
	// RequireSuccess makes the engine advance its checkpoint only when the
	// batch dispatch succeeded. The default (false) reproduces the optimistic
	// accounting where an attempted range counts as completed even on failure.
	RequireSuccess bool `toml:"require_success"`
}

// Environment variable names recognized by applyEnvOverrides.
const (
	EnvBackendURL    = "REMEXEC_BACKEND_URL"
	EnvSaveDir       = "REMEXEC_SAVE_DIR"
	EnvCheckpointDir = "REMEXEC_CHECKPOINT_DIR"
)

// Validate checks if the configuration is usable.
func (c *Config) Validate() error {
	if c.Backend.BaseURL == "" {
		return fmt.Errorf("backend base_url is required (set backend.base_url or %s)", EnvBackendURL)
	}

	u, err := url.Parse(c.Backend.BaseURL)
	if err != nil {
		return fmt.Errorf("invalid backend base_url %q: %w", c.Backend.BaseURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("backend base_url must use http or https (got %q)", c.Backend.BaseURL)
	}

	if c.Backend.RateLimitPerMinute < 0 {
		return fmt.Errorf("backend rate_limit_per_minute must not be negative (got %d)", c.Backend.RateLimitPerMinute)
	}

	switch c.Checkpoint.Backend {
	case CheckpointBackendFile, CheckpointBackendSQLite:
	default:
		return fmt.Errorf("checkpoint backend must be %q or %q (got %q)",
			CheckpointBackendFile, CheckpointBackendSQLite, c.Checkpoint.Backend)
	}

	if c.Chunk.DefaultBatchSize <= 0 {
		return fmt.Errorf("chunk default_batch_size must be positive (got %d)", c.Chunk.DefaultBatchSize)
	}

	return nil
}

// NormalizedBaseURL returns the backend address without a trailing slash so
// endpoint paths can be concatenated directly.
func (c *Config) NormalizedBaseURL() string {
	return strings.TrimRight(c.Backend.BaseURL, "/")
}

func defaultDir(parts ...string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(append([]string{home}, parts...)...)
}
