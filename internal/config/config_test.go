package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aravindh-murugesan/autobackup-go/internal/cloud"
	"github.com/aravindh-murugesan/autobackup-go/internal/policy"
	"github.com/spf13/viper"
)

func TestLoad_Defaults(t *testing.T) {
	v := viper.New()
	v.Set("cloud", "devstack")
	v.Set("regions", []string{"RegionOne"})

	cfg, err := Load(v, "")
	if err != nil {
		t.Fatalf("Load() unexpected error: %v", err)
	}

	if cfg.Provider != ProviderOpenStack || cfg.RetentionDays != 3 || cfg.Workers != 4 {
		t.Errorf("defaults = %+v", cfg)
	}
	if cfg.ItemTimeout != 5*time.Minute {
		t.Errorf("ItemTimeout = %s, want 5m", cfg.ItemTimeout)
	}
	sel := cfg.Selection()
	if sel.Mode != policy.SelectByTag || sel.TagKey != "AutoBackup" || sel.TagValue != "true" {
		t.Errorf("Selection() = %+v", sel)
	}
}

func TestLoad_Environment(t *testing.T) {
	t.Setenv("AUTOBACKUP_PROVIDER", "ec2")
	t.Setenv("AUTOBACKUP_REGIONS", "ap-northeast-2, eu-west-1")
	t.Setenv("AUTOBACKUP_RETENTION_DAYS", "7")
	t.Setenv("AUTOBACKUP_RUN_DATE", "2024-01-09")
	t.Setenv("AUTOBACKUP_SELECTION_MODE", "state")
	t.Setenv("AUTOBACKUP_INSTANCE_STATES", "Running")

	cfg, err := Load(viper.New(), "")
	if err != nil {
		t.Fatalf("Load() unexpected error: %v", err)
	}

	if cfg.Provider != ProviderEC2 || cfg.RetentionDays != 7 {
		t.Errorf("cfg = %+v", cfg)
	}
	if len(cfg.Regions) != 2 || cfg.Regions[0] != "ap-northeast-2" || cfg.Regions[1] != "eu-west-1" {
		t.Errorf("Regions = %q", cfg.Regions)
	}
	today, err := cfg.Today()
	if err != nil || !today.Equal(time.Date(2024, 1, 9, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("Today() = %s, %v", today, err)
	}
	sel := cfg.Selection()
	if sel.Mode != policy.SelectByState || len(sel.States) != 1 || sel.States[0] != cloud.InstanceRunning {
		t.Errorf("Selection() = %+v", sel)
	}
}

func TestLoad_ConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "autobackup.yaml")
	content := []byte("provider: ec2\nregions:\n  - ap-northeast-2\nretention-days: 10\nitem-timeout: 90s\n")
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(viper.New(), path)
	if err != nil {
		t.Fatalf("Load() unexpected error: %v", err)
	}
	if cfg.RetentionDays != 10 || cfg.ItemTimeout != 90*time.Second || cfg.Regions[0] != "ap-northeast-2" {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			Provider:      ProviderEC2,
			Regions:       []string{"ap-northeast-2"},
			RetentionDays: 3,
			Workers:       1,
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
		target  error
	}{
		{name: "Valid", mutate: func(c *Config) {}},
		{name: "Missing Regions", mutate: func(c *Config) { c.Regions = nil }, wantErr: true, target: ErrMissingRegions},
		{name: "Blank Regions", mutate: func(c *Config) { c.Regions = []string{" ", ""} }, wantErr: true, target: ErrMissingRegions},
		{name: "Discovery Without Regions", mutate: func(c *Config) { c.Regions = nil; c.DiscoverRegions = true }},
		{name: "Negative Retention", mutate: func(c *Config) { c.RetentionDays = -1 }, wantErr: true},
		{name: "Unknown Provider", mutate: func(c *Config) { c.Provider = "gce" }, wantErr: true},
		{name: "OpenStack Without Profile", mutate: func(c *Config) { c.Provider = ProviderOpenStack }, wantErr: true},
		{name: "Bad Run Date", mutate: func(c *Config) { c.RunDate = "2024/01/09" }, wantErr: true},
		{name: "Bad Selection Mode", mutate: func(c *Config) { c.SelectionMode = "all" }, wantErr: true},
		{name: "No Workers", mutate: func(c *Config) { c.Workers = 0 }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.target != nil && !errors.Is(err, tt.target) {
				t.Errorf("Validate() error = %v, want %v", err, tt.target)
			}
		})
	}
}
