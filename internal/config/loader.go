package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/pelletier/go-toml/v2"
)

// Load reads the optional configuration file, layers environment overrides on
// top, applies defaults, and validates the result. A missing config file is
// not an error: the original deployment surface is environment-only, and the
// file exists for the settings the environment does not cover.
func Load(configPath string) (*Config, error) {
	var cfg Config

	if configPath != "" {
		data, err := os.ReadFile(configPath)
		switch {
		case err == nil:
			if err := toml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
		case errors.Is(err, fs.ErrNotExist):
			// Fall through to env + defaults.
		default:
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// applyEnvOverrides layers the environment surface over file values. The
// environment wins: it is how the original agent was configured.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv(EnvBackendURL); v != "" {
		cfg.Backend.BaseURL = v
	}
	if v := os.Getenv(EnvSaveDir); v != "" {
		cfg.Storage.SaveDir = v
	}
	if v := os.Getenv(EnvCheckpointDir); v != "" {
		cfg.Checkpoint.Dir = v
	}
}

// applyDefaults sets default values for optional configuration fields.
func applyDefaults(cfg *Config) {
	if cfg.Storage.SaveDir == "" {
		cfg.Storage.SaveDir = defaultDir("remexec_results")
	}
	if cfg.Checkpoint.Dir == "" {
		cfg.Checkpoint.Dir = defaultDir(".cache", "remexec_checkpoints")
	}
	if cfg.Checkpoint.Backend == "" {
		cfg.Checkpoint.Backend = CheckpointBackendFile
	}
	if cfg.Chunk.DefaultBatchSize == 0 {
		cfg.Chunk.DefaultBatchSize = 10
	}
}

// EnsureDirs creates the local directories the client writes into.
func (c *Config) EnsureDirs() error {
	for _, dir := range []string{c.Storage.SaveDir, c.Checkpoint.Dir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}
