package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Load reads and returns the typed configuration.
// It searches for configuration files in the same priority order as Init.
// A missing config file is not an error; defaults plus environment apply.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.SetEnvPrefix("DOCFOUNDRY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setViperDefaults(v)

	if envPath := os.Getenv("DOCFOUNDRY_CONFIG_DIR"); envPath != "" {
		v.AddConfigPath(envPath)
	}

	if home := os.Getenv("HOME"); home != "" {
		v.AddConfigPath(filepath.Join(home, ".docfoundry"))
	}

	v.AddConfigPath(".")

	err := v.ReadInConfig()
	if err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config; %w", err)
		}
	}

	return unmarshalConfig(v)
}

// LoadFromPath reads configuration from a specific file path.
func LoadFromPath(path string) (*Config, error) {
	v := viper.New()

	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.SetEnvPrefix("DOCFOUNDRY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setViperDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config from %s; %w", path, err)
	}

	return unmarshalConfig(v)
}

// unmarshalConfig converts viper config to a typed Config struct.
func unmarshalConfig(v *viper.Viper) (*Config, error) {
	cfg := &Config{}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config; %w", err)
	}

	expandPaths(cfg)

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// expandPaths expands ~ in every path-valued field.
func expandPaths(cfg *Config) {
	cfg.LogFile = ExpandHome(cfg.LogFile)
	cfg.Ingest.LibraryDir = ExpandHome(cfg.Ingest.LibraryDir)
	cfg.Ingest.ProcessedDir = ExpandHome(cfg.Ingest.ProcessedDir)
	cfg.VectorStore.Dir = ExpandHome(cfg.VectorStore.Dir)
	cfg.StatusStore.Path = ExpandHome(cfg.StatusStore.Path)
	cfg.Supervisor.BaseDir = ExpandHome(cfg.Supervisor.BaseDir)
	cfg.Supervisor.LogDir = ExpandHome(cfg.Supervisor.LogDir)
	cfg.Supervisor.PIDFile = ExpandHome(cfg.Supervisor.PIDFile)
}

// ScanIntervalDuration returns the manager scan cadence as a duration.
func (c *IngestConfig) ScanIntervalDuration() time.Duration {
	return time.Duration(c.ScanInterval) * time.Second
}

// LockTTLDuration returns the extraction claim lock TTL as a duration.
func (c *IngestConfig) LockTTLDuration() time.Duration {
	return time.Duration(c.LockTTL) * time.Second
}

// StaleAfterDuration returns the reclaim staleness window as a duration.
// Zero config value inherits the lock TTL.
func (c *IngestConfig) StaleAfterDuration() time.Duration {
	if c.StaleAfter > 0 {
		return time.Duration(c.StaleAfter) * time.Second
	}
	return c.LockTTLDuration()
}

// QueueTimeoutDuration returns the blocking-pop timeout as a duration.
func (c *IngestConfig) QueueTimeoutDuration() time.Duration {
	return time.Duration(c.QueueTimeout) * time.Second
}

// GracePeriodDuration returns the shutdown grace period as a duration.
func (c *SupervisorConfig) GracePeriodDuration() time.Duration {
	return time.Duration(c.GracePeriod) * time.Second
}
