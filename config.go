package satlens

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all satlens configuration.
type Config struct {
	DBPath string       `yaml:"db_path"`
	Rates  RatesConfig  `yaml:"rates"`
	Stats  StatsConfig  `yaml:"stats"`
	Server ServerConfig `yaml:"server"`
	Live   LiveConfig   `yaml:"live"`
}

// RatesConfig controls the price table supplier.
type RatesConfig struct {
	// Provider is "coingecko" or "fixed".
	Provider string             `yaml:"provider"`
	TTL      time.Duration      `yaml:"ttl"`
	Fixed    map[string]float64 `yaml:"fixed"`
}

// StatsConfig controls conversion-event recording.
type StatsConfig struct {
	Enabled       bool `yaml:"enabled"`
	RetentionDays int  `yaml:"retention_days"`
}

// ServerConfig controls the HTTP surface.
type ServerConfig struct {
	Addr string `yaml:"addr"`
	// MCP also serves the MCP tools on /mcp (streamable HTTP).
	MCP bool `yaml:"mcp"`
}

// LiveConfig controls the headless-browser engine.
type LiveConfig struct {
	Enabled bool `yaml:"enabled"`
	// AttachURL is the DevTools websocket of a running browser. Empty
	// means launch a managed one.
	AttachURL string        `yaml:"attach_url"`
	Headless  bool          `yaml:"headless"`
	Stealth   bool          `yaml:"stealth"`
	Debounce  time.Duration `yaml:"debounce"`
	// Pages are watched as soon as the daemon starts.
	Pages []string `yaml:"pages"`
}

func (c *Config) defaults() {
	if c.DBPath == "" {
		c.DBPath = "satlens.db"
	}
	if c.Rates.Provider == "" {
		c.Rates.Provider = "coingecko"
	}
	if c.Rates.TTL <= 0 {
		c.Rates.TTL = 5 * time.Minute
	}
	if c.Stats.RetentionDays <= 0 {
		c.Stats.RetentionDays = 90
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":8422"
	}
	if c.Live.Debounce <= 0 {
		c.Live.Debounce = 250 * time.Millisecond
	}
}

// LoadConfigFile reads a YAML config file.
func LoadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
