// Package config provides YAML-based configuration loading for PlanMesh.
package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/planmesh/planmesh/core"
)

// Config is the top-level PlanMesh configuration, loaded from config.yaml.
type Config struct {
	AutomationLevel string         `yaml:"automation_level"`
	SessionTTLHours int            `yaml:"session_ttl_hours"`
	HeartbeatCron   string         `yaml:"heartbeat_cron"`
	Log             LogConfig      `yaml:"log"`
	Database        DatabaseConfig `yaml:"database"`
	Search          SearchConfig   `yaml:"search"`
}

// LogConfig controls the structured logger.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// DatabaseConfig holds settings for the document store backend. An empty
// path selects the in-memory store.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// SearchConfig tunes the venue search layer.
type SearchConfig struct {
	BudgetPerPerson int                 `yaml:"budget_per_person"`
	Exclusions      map[string][]string `yaml:"exclusions"`
}

// Load reads a YAML config file from path and returns a validated Config.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse unmarshals YAML bytes into a validated Config.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the configuration used when no file is supplied.
func Default() *Config {
	var cfg Config
	cfg.applyDefaults()
	return &cfg
}

// Automation maps the configured level onto the core enum.
func (c *Config) Automation() core.AutomationLevel {
	return core.AutomationLevel(c.AutomationLevel)
}

// SourceExclusions converts the per-event-type exclusion lists into the
// typed map the search layer expects.
func (c *Config) SourceExclusions() map[core.EventType][]string {
	if len(c.Search.Exclusions) == 0 {
		return nil
	}
	out := make(map[core.EventType][]string, len(c.Search.Exclusions))
	for typ, names := range c.Search.Exclusions {
		out[core.EventType(typ)] = names
	}
	return out
}

// applyDefaults fills in derived and default values.
func (c *Config) applyDefaults() {
	if c.AutomationLevel == "" {
		c.AutomationLevel = string(core.AutomationSemiAuto)
	}
	if c.SessionTTLHours == 0 {
		c.SessionTTLHours = 24
	}
	if c.HeartbeatCron == "" {
		c.HeartbeatCron = "@every 30s"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
	if c.Search.BudgetPerPerson == 0 {
		c.Search.BudgetPerPerson = 3000
	}
}

// validate checks that all required fields are present and consistent.
func (c *Config) validate() error {
	var errs []string
	switch core.AutomationLevel(c.AutomationLevel) {
	case core.AutomationManual, core.AutomationSemiAuto, core.AutomationFullAuto:
	default:
		errs = append(errs, fmt.Sprintf("automation_level %q is not valid", c.AutomationLevel))
	}
	if c.SessionTTLHours < 0 {
		errs = append(errs, "session_ttl_hours must not be negative")
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Sprintf("log.level %q is not valid", c.Log.Level))
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Sprintf("log.format %q is not valid", c.Log.Format))
	}
	for typ := range c.Search.Exclusions {
		switch core.EventType(typ) {
		case core.EventDining, core.EventStudy, core.EventMeeting:
		default:
			errs = append(errs, fmt.Sprintf("search.exclusions key %q is not a known event type", typ))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}
