// Package config provides configuration loading and management for the
// approval workflow engine.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete engine configuration.
type Config struct {
	NATS       NATSConfig       `yaml:"nats"`
	Attachment AttachmentConfig `yaml:"attachment"`
	Catalog    CatalogConfig    `yaml:"catalog"`
	HTTP       HTTPConfig       `yaml:"http"`
}

// NATSConfig configures the JetStream connection backing the persistence
// layer.
type NATSConfig struct {
	// URL is the NATS server URL (empty = use an embedded server).
	URL string `yaml:"url"`
	// Embedded indicates whether to run an in-process NATS server instead
	// of dialing URL.
	Embedded bool `yaml:"embedded"`
	// ConnectTimeout bounds how long to wait for the initial connection.
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
}

// AttachmentConfig configures the attachment blob store.
type AttachmentConfig struct {
	// Dir is the filesystem directory attachments are written under.
	Dir string `yaml:"dir"`
	// MaxKeyRetries is validated and merged with the rest of the config,
	// but the attachment store does not read it: Dir.Put always tries a
	// fixed five generated keys before giving up with a storage error.
	MaxKeyRetries int `yaml:"max_key_retries"`
}

// CatalogConfig configures workflow variant catalog seeding.
type CatalogConfig struct {
	// SeedPath is an optional on-disk YAML file overriding/extending the
	// embedded seed catalog. Watched for changes when WatchForChanges is
	// set.
	SeedPath string `yaml:"seed_path"`
	// WatchForChanges enables fsnotify-based reconciliation of SeedPath.
	WatchForChanges bool `yaml:"watch_for_changes"`
}

// HTTPConfig configures the boundary HTTP listener's ambient concerns.
// The listener itself is out of scope for this module; only the knobs a
// composition root needs to wire one are modeled here.
type HTTPConfig struct {
	// CookieSecure controls whether session cookies are marked Secure.
	// Should be true in any deployment serving HTTPS.
	CookieSecure bool `yaml:"cookie_secure"`
}

// DefaultConfig returns a Config with sensible defaults for local/dev use.
func DefaultConfig() *Config {
	return &Config{
		NATS: NATSConfig{
			URL:            "",
			Embedded:       true,
			ConnectTimeout: 10 * time.Second,
		},
		Attachment: AttachmentConfig{
			Dir:           "./data/attachments",
			MaxKeyRetries: 5,
		},
		Catalog: CatalogConfig{
			SeedPath:        "",
			WatchForChanges: false,
		},
		HTTP: HTTPConfig{
			CookieSecure: true,
		},
	}
}

// Validate checks that the configuration is internally consistent.
func (c *Config) Validate() error {
	if c.Attachment.Dir == "" {
		return fmt.Errorf("attachment.dir is required")
	}
	if c.Attachment.MaxKeyRetries <= 0 {
		return fmt.Errorf("attachment.max_key_retries must be positive")
	}
	if c.Catalog.WatchForChanges && c.Catalog.SeedPath == "" {
		return fmt.Errorf("catalog.watch_for_changes requires catalog.seed_path")
	}
	return nil
}

// LoadFromFile loads configuration from a YAML file, overlaying it on
// DefaultConfig.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	return cfg, nil
}

// SaveToFile writes configuration to a YAML file, creating parent
// directories as needed.
func (c *Config) SaveToFile(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Merge overlays other's non-zero NATS, Attachment and Catalog values onto
// c. A non-empty NATS.URL also sets Embedded to false; other's
// NATS.Embedded and HTTP settings are not merged.
func (c *Config) Merge(other *Config) {
	if other == nil {
		return
	}

	if other.NATS.URL != "" {
		c.NATS.URL = other.NATS.URL
		c.NATS.Embedded = false
	}
	if other.NATS.ConnectTimeout != 0 {
		c.NATS.ConnectTimeout = other.NATS.ConnectTimeout
	}

	if other.Attachment.Dir != "" {
		c.Attachment.Dir = other.Attachment.Dir
	}
	if other.Attachment.MaxKeyRetries != 0 {
		c.Attachment.MaxKeyRetries = other.Attachment.MaxKeyRetries
	}

	if other.Catalog.SeedPath != "" {
		c.Catalog.SeedPath = other.Catalog.SeedPath
	}
	if other.Catalog.WatchForChanges {
		c.Catalog.WatchForChanges = true
	}
}
