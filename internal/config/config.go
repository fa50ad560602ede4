package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/AaronLay10/watermon/internal/alerts"
)

// Store drivers.
const (
	DriverMemory = "memory"
	DriverMQTT   = "mqtt"
)

// Account is a mechanic login: a roster entry plus a bcrypt hash.
type Account struct {
	alerts.Mechanic `yaml:",inline"`
	PasswordHash    string `yaml:"password_hash"`
}

type SiteConfig struct {
	Version int `yaml:"version"`
	Site    struct {
		ID          string `yaml:"id" validate:"required"`
		Name        string `yaml:"name"`
		Description string `yaml:"description"`
	} `yaml:"site"`
	Network struct {
		HTTPPort int `yaml:"http_port" validate:"omitempty,min=1,max=65535"`
	} `yaml:"network"`
	Store struct {
		Driver   string `yaml:"driver" validate:"omitempty,oneof=memory mqtt"`
		Broker   string `yaml:"broker"`
		Root     string `yaml:"root"`
		ClientID string `yaml:"client_id"`
		Username string `yaml:"username"`
	} `yaml:"store"`
	Monitor struct {
		Interval  time.Duration `yaml:"interval"`
		Threshold int           `yaml:"threshold" validate:"omitempty,min=1,max=100"`
	} `yaml:"monitor"`
	Stream struct {
		QueueSize int           `yaml:"queue_size" validate:"omitempty,min=1"`
		Keepalive time.Duration `yaml:"keepalive"`
	} `yaml:"stream"`
	Auth struct {
		AdminUser string        `yaml:"admin_user"`
		AdminHash string        `yaml:"admin_password_hash"`
		TokenTTL  time.Duration `yaml:"token_ttl"`
		Mechanics []Account     `yaml:"mechanics" validate:"dive"`
	} `yaml:"auth"`
	DevMode bool `yaml:"dev_mode"`
}

// HTTPPort returns the configured HTTP port, defaulting to 8080 if not set.
func (c *SiteConfig) HTTPPort() int {
	if c.Network.HTTPPort == 0 {
		return 8080
	}
	return c.Network.HTTPPort
}

// StoreDriver returns the store driver, defaulting to memory.
func (c *SiteConfig) StoreDriver() string {
	if c.Store.Driver == "" {
		return DriverMemory
	}
	return c.Store.Driver
}

// StoreRoot returns the MQTT root topic, defaulting to "watermon/<site id>".
func (c *SiteConfig) StoreRoot() string {
	if c.Store.Root != "" {
		return c.Store.Root
	}
	return "watermon/" + c.Site.ID
}

// ClientID returns the MQTT client id for the given role ("panel" or
// "dashboard").
func (c *SiteConfig) ClientID(role string) string {
	if c.Store.ClientID != "" {
		return c.Store.ClientID + "-" + role
	}
	return "watermon-" + c.Site.ID + "-" + role
}

// PollInterval returns the monitor poll interval, defaulting to 2s.
func (c *SiteConfig) PollInterval() time.Duration {
	if c.Monitor.Interval <= 0 {
		return alerts.DefaultPollInterval
	}
	return c.Monitor.Interval
}

// Threshold returns the low water threshold, defaulting to 20%.
func (c *SiteConfig) Threshold() int {
	if c.Monitor.Threshold == 0 {
		return alerts.DefaultThreshold
	}
	return c.Monitor.Threshold
}

// QueueSize returns the per-subscriber queue size, defaulting to 10.
func (c *SiteConfig) QueueSize() int {
	if c.Stream.QueueSize == 0 {
		return 10
	}
	return c.Stream.QueueSize
}

// Keepalive returns the stream keepalive interval, defaulting to 30s.
func (c *SiteConfig) Keepalive() time.Duration {
	if c.Stream.Keepalive <= 0 {
		return 30 * time.Second
	}
	return c.Stream.Keepalive
}

// TokenTTL returns the session lifetime, defaulting to 12h.
func (c *SiteConfig) TokenTTL() time.Duration {
	if c.Auth.TokenTTL <= 0 {
		return 12 * time.Hour
	}
	return c.Auth.TokenTTL
}

// AdminUser returns the admin login name, defaulting to "admin".
func (c *SiteConfig) AdminUser() string {
	if c.Auth.AdminUser == "" {
		return "admin"
	}
	return c.Auth.AdminUser
}

// Roster returns the mechanic roster in file order, or the stock roster
// when none is configured.
func (c *SiteConfig) Roster() []alerts.Mechanic {
	if len(c.Auth.Mechanics) == 0 {
		return alerts.DefaultRoster()
	}
	out := make([]alerts.Mechanic, len(c.Auth.Mechanics))
	for i, a := range c.Auth.Mechanics {
		out[i] = a.Mechanic
	}
	return out
}

// Default returns the configuration used when no site file is given.
func Default() *SiteConfig {
	cfg := &SiteConfig{Version: 1}
	cfg.Site.ID = "default"
	cfg.Site.Name = "Water Monitoring"
	return cfg
}

func LoadSiteConfig(path string) (*SiteConfig, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseSiteConfig(b)
}

// ParseSiteConfig decodes and validates a site file.
func ParseSiteConfig(b []byte) (*SiteConfig, error) {
	var cfg SiteConfig
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, err
	}

	if cfg.Version != 1 {
		return nil, fmt.Errorf("unsupported site.yaml version: %d", cfg.Version)
	}

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid site.yaml: %w", err)
	}

	seen := make(map[string]bool, len(cfg.Auth.Mechanics))
	for _, a := range cfg.Auth.Mechanics {
		if seen[a.ID] {
			return nil, fmt.Errorf("invalid site.yaml: duplicate mechanic id %s", a.ID)
		}
		seen[a.ID] = true
	}
	if cfg.StoreDriver() == DriverMQTT && cfg.Store.Broker == "" {
		return nil, fmt.Errorf("invalid site.yaml: store.broker is required for the mqtt driver")
	}

	return &cfg, nil
}
