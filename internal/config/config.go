// Package config provides configuration loading and management for sniterm.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/sniterm/sniterm/internal/paths"
	"gopkg.in/yaml.v3"
)

// Config represents the complete sniterm configuration.
type Config struct {
	Listen  ListenConfig  `yaml:"listen"`
	CA      CAConfig      `yaml:"ca"`
	Docker  DockerConfig  `yaml:"docker"`
	DNS     DNSConfig     `yaml:"dns"`
	Logging LoggingConfig `yaml:"logging"`
}

// ListenConfig configures the front-end's accept socket and SNI policy.
type ListenConfig struct {
	Network                 string `yaml:"network"`
	Address                 string `yaml:"address"`
	RequireHostname         bool   `yaml:"require_hostname"`
	ValidatePublicDomainSNI bool   `yaml:"validate_public_domain_sni"`
}

// CAConfig configures the locally trusted signing CA used to mint
// per-hostname leaf certificates.
type CAConfig struct {
	Domains []string `yaml:"domains"`
}

// DockerConfig configures resolving hostnames to containers by label.
type DockerConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Socket      string `yaml:"socket"`
	LabelPrefix string `yaml:"label_prefix"`

	// Network is the preferred Docker network to read container IPs
	// from when a container is attached to more than one. Empty means
	// fall back to whichever network reports an address first.
	Network string `yaml:"network"`
}

// DNSConfig configures the built-in companion DNS server.
type DNSConfig struct {
	Enabled  bool     `yaml:"enabled"`
	Listen   string   `yaml:"listen"`
	Domains  []string `yaml:"domains"`
	Upstream string   `yaml:"upstream"`
}

// LoggingConfig configures logging behavior.
type LoggingConfig struct {
	Level     string `yaml:"level"`
	AccessLog bool   `yaml:"access_log"`
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Listen: ListenConfig{
			Network:                 "tcp",
			Address:                 ":8443",
			RequireHostname:         false,
			ValidatePublicDomainSNI: false,
		},
		CA: CAConfig{
			Domains: []string{"localhost", "*.localhost", "*.test"},
		},
		Docker: DockerConfig{
			Enabled:     true,
			Socket:      "unix:///var/run/docker.sock",
			LabelPrefix: "sniterm",
		},
		DNS: DNSConfig{
			Enabled:  true,
			Listen:   ":5353",
			Domains:  []string{"test"},
			Upstream: "8.8.8.8:53",
		},
		Logging: LoggingConfig{
			Level:     "info",
			AccessLog: false,
		},
	}
}

// Load reads the configuration from the default config file.
// If the file doesn't exist, it creates a default configuration file.
func Load() (*Config, error) {
	return LoadFromFile(paths.ConfigFile())
}

// LoadFromFile reads the configuration from the specified file path.
// If the file doesn't exist, it creates a default configuration file.
func LoadFromFile(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg := Default()
		if err := cfg.SaveToFile(path); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Save writes the configuration to the default config file.
func (c *Config) Save() error {
	return c.SaveToFile(paths.ConfigFile())
}

// SaveToFile writes the configuration to the specified file path.
func (c *Config) SaveToFile(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Listen.Network == "" {
		return fmt.Errorf("listen.network is required")
	}
	if c.Listen.Address == "" {
		return fmt.Errorf("listen.address is required")
	}

	if len(c.CA.Domains) == 0 {
		return fmt.Errorf("ca.domains must have at least one domain")
	}

	if c.Docker.Enabled && c.Docker.Socket == "" {
		return fmt.Errorf("docker.socket is required when docker is enabled")
	}
	if c.Docker.Enabled && c.Docker.LabelPrefix == "" {
		return fmt.Errorf("docker.label_prefix is required when docker is enabled")
	}

	if c.DNS.Enabled {
		if c.DNS.Listen == "" {
			return fmt.Errorf("dns.listen is required when dns is enabled")
		}
		if len(c.DNS.Domains) == 0 {
			return fmt.Errorf("dns.domains must have at least one domain when dns is enabled")
		}
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}

	return nil
}
