// Package config loads the job configuration from flags, environment and an
// optional YAML file through viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aravindh-murugesan/autobackup-go/internal/cloud"
	"github.com/aravindh-murugesan/autobackup-go/internal/policy"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable, e.g. AUTOBACKUP_REGIONS.
const EnvPrefix = "AUTOBACKUP"

// RunDateLayout is the format of the run-date override.
const RunDateLayout = "2006-01-02"

const (
	ProviderOpenStack = "openstack"
	ProviderEC2       = "ec2"
)

// ErrMissingRegions is returned when neither a region list nor discovery is configured.
var ErrMissingRegions = errors.New("no regions configured; set regions or discover-regions")

// Config is the complete job configuration.
type Config struct {
	Provider        string   `mapstructure:"provider"`
	Cloud           string   `mapstructure:"cloud"`
	Regions         []string `mapstructure:"regions"`
	DiscoverRegions bool     `mapstructure:"discover-regions"`

	SelectionMode    string   `mapstructure:"selection-mode"`
	InstanceTagKey   string   `mapstructure:"instance-tag-key"`
	InstanceTagValue string   `mapstructure:"instance-tag-value"`
	InstanceStates   []string `mapstructure:"instance-states"`

	RetentionDays int    `mapstructure:"retention-days"`
	RunDate       string `mapstructure:"run-date"`

	Workers     int           `mapstructure:"workers"`
	ItemTimeout time.Duration `mapstructure:"item-timeout"`
	Timeout     int           `mapstructure:"timeout"`

	LogLevel string `mapstructure:"log-level"`

	WebhookURL      string `mapstructure:"webhook-url"`
	WebhookUsername string `mapstructure:"webhook-username"`
	WebhookPassword string `mapstructure:"webhook-password"`
}

// SetDefaults registers every key with its default so that environment
// variables are picked up by Unmarshal.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("provider", ProviderOpenStack)
	v.SetDefault("cloud", "")
	v.SetDefault("regions", []string{})
	v.SetDefault("discover-regions", false)
	v.SetDefault("selection-mode", string(policy.SelectByTag))
	v.SetDefault("instance-tag-key", policy.MarkerTag)
	v.SetDefault("instance-tag-value", policy.MarkerValue)
	v.SetDefault("instance-states", []string{string(cloud.InstanceRunning), string(cloud.InstanceStopped)})
	v.SetDefault("retention-days", policy.DefaultRetentionDays)
	v.SetDefault("run-date", "")
	v.SetDefault("workers", 4)
	v.SetDefault("item-timeout", 5*time.Minute)
	v.SetDefault("timeout", 0)
	v.SetDefault("log-level", "info")
	v.SetDefault("webhook-url", "")
	v.SetDefault("webhook-username", "")
	v.SetDefault("webhook-password", "")
}

// Load reads the optional config file, the environment and any bound flags
// into a validated Config.
func Load(v *viper.Viper, configFile string) (Config, error) {
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("reading config file %s: %w", configFile, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decoding configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports configuration that makes the run impossible.
func (c *Config) Validate() error {
	switch c.Provider {
	case ProviderOpenStack:
		if c.Cloud == "" {
			return fmt.Errorf("required setting \"cloud\" not set for provider %s", c.Provider)
		}
	case ProviderEC2:
	default:
		return fmt.Errorf("invalid provider '%s'; must be %s or %s", c.Provider, ProviderOpenStack, ProviderEC2)
	}

	c.Regions = compact(c.Regions)
	if len(c.Regions) == 0 && !c.DiscoverRegions {
		return ErrMissingRegions
	}

	retention := c.Retention()
	if err := retention.Normalize(); err != nil {
		return err
	}

	selection := c.Selection()
	if err := selection.Normalize(); err != nil {
		return err
	}

	if _, err := c.Today(); err != nil {
		return err
	}

	if c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1; got %d", c.Workers)
	}
	if c.ItemTimeout < 0 || c.Timeout < 0 {
		return errors.New("timeouts must not be negative")
	}
	return nil
}

// Selection returns the instance selection policy.
func (c Config) Selection() policy.Selection {
	states := make([]cloud.InstanceState, 0, len(c.InstanceStates))
	for _, s := range compact(c.InstanceStates) {
		states = append(states, cloud.InstanceState(strings.ToLower(s)))
	}
	return policy.Selection{
		Mode:     policy.SelectionMode(c.SelectionMode),
		TagKey:   c.InstanceTagKey,
		TagValue: c.InstanceTagValue,
		States:   states,
	}
}

// Retention returns the retention policy.
func (c Config) Retention() policy.RetentionPolicy {
	return policy.RetentionPolicy{BaseDays: c.RetentionDays}
}

// Today returns the run-date override, or the zero time when none is set.
func (c Config) Today() (time.Time, error) {
	if c.RunDate == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(RunDateLayout, c.RunDate)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid run-date '%s'; must be YYYY-MM-DD", c.RunDate)
	}
	return t, nil
}

// compact trims entries and drops empty ones. A single comma separated
// entry, as passed through the environment, is split.
func compact(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
