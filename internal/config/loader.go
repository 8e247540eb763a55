package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Conventional registry file locations.
const (
	GlobalDirName       = ".pmdispatch"
	RegistryFileName    = "config.json"
	ProjectRegistryFile = "pmdispatch.json"
)

// Load reads and merges registry configuration from global and project paths.
// Order of precedence (highest to lowest): project config, global config, defaults.
// Missing files are not errors; malformed JSON returns an error.
func Load(globalPath, projectPath string) (*Config, error) {
	cfg := DefaultConfig()

	if globalPath != "" {
		if err := mergeConfigFile(cfg, globalPath); err != nil {
			return nil, fmt.Errorf("loading global config: %w", err)
		}
	}

	if projectPath != "" {
		if err := mergeConfigFile(cfg, projectPath); err != nil {
			return nil, fmt.Errorf("loading project config: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Paths returns the conventional global and project registry paths for a PM root.
// Global: ~/.pmdispatch/config.json
// Project: <pm-root>/pmdispatch.json
func Paths(pmRoot string) (globalPath, projectPath string, err error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", "", fmt.Errorf("getting home directory: %w", err)
	}
	return filepath.Join(homeDir, GlobalDirName, RegistryFileName), filepath.Join(pmRoot, ProjectRegistryFile), nil
}

// LoadDefault loads registry configuration from the conventional paths for pmRoot.
func LoadDefault(pmRoot string) (*Config, error) {
	globalPath, projectPath, err := Paths(pmRoot)
	if err != nil {
		return nil, err
	}
	return Load(globalPath, projectPath)
}

// Validate checks that every agent points at a known provider and every
// workflow step at a known agent.
func (c *Config) Validate() error {
	for name, agent := range c.Agents {
		if _, ok := c.Providers[agent.Provider]; !ok {
			return fmt.Errorf("agent %q references unknown provider %q", name, agent.Provider)
		}
	}
	for name, wf := range c.Workflows {
		for i, step := range wf.Steps {
			if _, ok := c.Agents[step.Agent]; !ok {
				return fmt.Errorf("workflow %q step %d references unknown agent %q", name, i, step.Agent)
			}
		}
	}
	switch c.Sessions.Backend {
	case "", "json", "sqlite":
	default:
		return fmt.Errorf("unknown session backend %q", c.Sessions.Backend)
	}
	return nil
}

// mergeConfigFile reads a JSON config file and merges it into the base config.
// Missing files are silently skipped. Malformed JSON returns an error.
func mergeConfigFile(base *Config, path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	var loaded Config
	if err := json.Unmarshal(data, &loaded); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}

	for key, provider := range loaded.Providers {
		base.Providers[key] = provider
	}
	for key, agent := range loaded.Agents {
		base.Agents[key] = agent
	}
	for key, workflow := range loaded.Workflows {
		base.Workflows[key] = workflow
	}
	if loaded.Sessions.Backend != "" {
		base.Sessions.Backend = loaded.Sessions.Backend
	}
	if loaded.Sessions.Path != "" {
		base.Sessions.Path = loaded.Sessions.Path
	}

	return nil
}
