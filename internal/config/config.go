package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"schedcal/internal/fileutil"
	appLog "schedcal/internal/log"
)

// NOTE: This file provides the configuration model and full YAML-based
// load/save behavior, including first-run config creation and 0600
// permissions.

const (
	DefaultListen        = "127.0.0.1:8080"
	DefaultTimezone      = "Asia/Jakarta"
	DefaultRefreshCron   = "*/15 * * * *"
	DefaultHorizonMonths = 3
	DefaultListingDays   = 90
	DefaultStorePath     = "schedules.yaml"
	DefaultDedupeTTL     = 24 * time.Hour

	maxHorizonMonths = 12
)

// SourceConfig describes an ICS feed imported into the schedule store.
type SourceConfig struct {
	// ID is an internal identifier used for de-dup and logging.
	ID string `yaml:"id" json:"id"`
	// Name is a human-friendly label.
	Name string `yaml:"name" json:"name"`
	// URL is an http(s) URL or a local file path.
	URL string `yaml:"url" json:"url"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

type ReminderConfig struct {
	// Title replaces the default notification title when set.
	Title string `yaml:"title" json:"title"`
	// DefaultMinutesBefore is applied by `schedcal add` when no offset is
	// given on the command line. Zero leaves reminders off.
	DefaultMinutesBefore int `yaml:"default_minutes_before" json:"default_minutes_before"`
}

// DedupeConfig enables redis-backed suppression of duplicate notifications.
// An empty RedisURL disables it.
type DedupeConfig struct {
	RedisURL string        `yaml:"redis_url" json:"redis_url"`
	TTL      time.Duration `yaml:"ttl" json:"ttl"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the API.
	Listen string `yaml:"listen" json:"listen"`

	// Timezone is the IANA timezone schedules are interpreted in.
	Timezone string `yaml:"timezone" json:"timezone"`

	LogLevel string `yaml:"log_level" json:"log_level"`

	// RefreshCron is a standard 5-field cron expression. On every tick the
	// store is reloaded and reminders are re-armed, which also rolls the
	// planning horizon forward.
	RefreshCron string `yaml:"refresh" json:"refresh"`

	// HorizonMonths bounds reminder planning for open-ended recurrences.
	HorizonMonths int `yaml:"horizon_months" json:"horizon_months"`

	// ListingDays is the default window of /api/occurrences.
	ListingDays int `yaml:"listing_days" json:"listing_days"`

	StorePath string `yaml:"store_path" json:"store_path"`

	Reminder ReminderConfig `yaml:"reminder" json:"reminder"`
	Dedupe   DedupeConfig   `yaml:"dedupe" json:"dedupe"`

	Sources []SourceConfig `yaml:"sources" json:"sources"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all endpoints
	// except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:        DefaultListen,
		Timezone:      DefaultTimezone,
		LogLevel:      "info",
		RefreshCron:   DefaultRefreshCron,
		HorizonMonths: DefaultHorizonMonths,
		ListingDays:   DefaultListingDays,
		StorePath:     DefaultStorePath,
		Dedupe:        DedupeConfig{TTL: DefaultDedupeTTL},
		Sources:       []SourceConfig{},
	}
}

// Normalize fills in missing/zero values with sensible defaults so that
// partially-filled configs still behave correctly.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = DefaultListen
	}
	if c.Timezone == "" {
		c.Timezone = DefaultTimezone
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if strings.TrimSpace(c.RefreshCron) == "" {
		c.RefreshCron = DefaultRefreshCron
	}
	if c.HorizonMonths <= 0 {
		c.HorizonMonths = DefaultHorizonMonths
	}
	if c.HorizonMonths > maxHorizonMonths {
		c.HorizonMonths = maxHorizonMonths
	}
	if c.ListingDays <= 0 {
		c.ListingDays = DefaultListingDays
	}
	if c.StorePath == "" {
		c.StorePath = DefaultStorePath
	}
	if c.Reminder.DefaultMinutesBefore < 0 {
		c.Reminder.DefaultMinutesBefore = 0
	}
	if c.Dedupe.TTL <= 0 {
		c.Dedupe.TTL = DefaultDedupeTTL
	}
	if c.Sources == nil {
		c.Sources = []SourceConfig{}
	}
}

// Validate reports settings Normalize cannot repair.
func (c *Config) Validate() error {
	if _, err := cron.ParseStandard(c.RefreshCron); err != nil {
		return fmt.Errorf("config: refresh %q: %w", c.RefreshCron, err)
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("config: timezone %q: %w", c.Timezone, err)
	}
	seen := make(map[string]bool, len(c.Sources))
	for i, s := range c.Sources {
		if strings.TrimSpace(s.URL) == "" {
			return fmt.Errorf("config: sources[%d]: url is required", i)
		}
		if s.ID != "" {
			if seen[s.ID] {
				return fmt.Errorf("config: sources[%d]: duplicate id %q", i, s.ID)
			}
			seen[s.ID] = true
		}
	}
	return nil
}

// Location resolves Timezone, falling back to time.Local when the zone
// database does not know it.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		appLog.Error("config: unknown timezone, using local", err, "timezone", c.Timezone)
		return time.Local
	}
	return loc
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist:
//   - write a default config with 0600 perms
//   - return the default config
//   - If the file exists:
//   - read YAML and unmarshal into Config
//   - normalize defaults and validate
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// First run: create default config file.
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Even if save fails, return cfg with error so caller can decide.
				return cfg, err
			}
			appLog.Info("config: wrote defaults", "path", path)
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Save normalizes cfg and writes it atomically with 0600 permissions.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return fileutil.WriteAtomic(path, data, 0o600)
}

// Save is a convenience method on Config that delegates to the package-level
// Save function.
func (c *Config) Save(path string) error {
	return Save(path, c)
}
