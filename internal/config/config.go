// Package config loads the layered service configuration: an optional base
// config.toml, an environment overlay (config.<env>.toml), and environment
// variable overrides, finalized with defaults and validation.
package config

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
)

const (
	BaseConfigFile       = "config.toml"
	OverlayConfigPattern = "config.%s.toml"

	EnvSwitchboardEnv     = "SWITCHBOARD_ENV"
	EnvSwitchboardVersion = "SWITCHBOARD_VERSION"
)

// Config is the root configuration for the switchboard service.
type Config struct {
	Server       ServerConfig     `toml:"server"`
	Engine       EngineConfig     `toml:"engine"`
	Retrieval    RetrievalConfig  `toml:"retrieval"`
	CrossRef     CrossRefConfig   `toml:"crossref"`
	Validate     ValidateConfig   `toml:"validate"`
	Capabilities CapabilityConfig `toml:"capabilities"`
	Generation   GenerationConfig `toml:"generation"`
	Checkpoint   CheckpointConfig `toml:"checkpoint"`
	Domains      DomainsConfig    `toml:"domains"`
	Version      string           `toml:"version"`
}

// Env returns the SWITCHBOARD_ENV value, defaulting to "local".
func (c *Config) Env() string {
	if env := os.Getenv(EnvSwitchboardEnv); env != "" {
		return env
	}
	return "local"
}

// Load reads the base config (if present), applies any environment
// overlay, and finalizes all values. With no config.toml, defaults and
// environment variables provide all configuration.
func Load() (*Config, error) {
	cfg := &Config{}

	if _, err := os.Stat(BaseConfigFile); err == nil {
		loaded, err := load(BaseConfigFile)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if path := overlayPath(); path != "" {
		overlay, err := load(path)
		if err != nil {
			return nil, fmt.Errorf("load overlay %s: %w", path, err)
		}
		cfg.Merge(overlay)
	}

	if err := cfg.finalize(); err != nil {
		return nil, fmt.Errorf("finalize config: %w", err)
	}

	return cfg, nil
}

// Merge overwrites non-zero fields from overlay across all sub-configs.
func (c *Config) Merge(overlay *Config) {
	if overlay.Version != "" {
		c.Version = overlay.Version
	}
	c.Server.Merge(&overlay.Server)
	c.Engine.Merge(&overlay.Engine)
	c.Retrieval.Merge(&overlay.Retrieval)
	c.CrossRef.Merge(&overlay.CrossRef)
	c.Validate.Merge(&overlay.Validate)
	c.Capabilities.Merge(&overlay.Capabilities)
	c.Generation.Merge(&overlay.Generation)
	c.Checkpoint.Merge(&overlay.Checkpoint)
	c.Domains.Merge(&overlay.Domains)
}

func (c *Config) finalize() error {
	if c.Version == "" {
		c.Version = "0.1.0"
	}
	if v := os.Getenv(EnvSwitchboardVersion); v != "" {
		c.Version = v
	}

	if err := c.Server.Finalize(); err != nil {
		return fmt.Errorf("server: %w", err)
	}
	if err := c.Engine.Finalize(); err != nil {
		return fmt.Errorf("engine: %w", err)
	}
	if err := c.Retrieval.Finalize(); err != nil {
		return fmt.Errorf("retrieval: %w", err)
	}
	if err := c.CrossRef.Finalize(); err != nil {
		return fmt.Errorf("crossref: %w", err)
	}
	if err := c.Validate.Finalize(); err != nil {
		return fmt.Errorf("validate: %w", err)
	}
	if err := c.Capabilities.Finalize(); err != nil {
		return fmt.Errorf("capabilities: %w", err)
	}
	if err := c.Generation.Finalize(); err != nil {
		return fmt.Errorf("generation: %w", err)
	}
	c.Checkpoint.Finalize()
	c.Domains.Finalize()
	return nil
}

func load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	cfg := &Config{}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

func overlayPath() string {
	env := os.Getenv(EnvSwitchboardEnv)
	if env == "" {
		return ""
	}

	path := fmt.Sprintf(OverlayConfigPattern, env)
	if _, err := os.Stat(path); err != nil {
		return ""
	}
	return path
}
