package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// configFilePath stores the path to the loaded config file
var configFilePath string

// Init initializes the configuration subsystem.
// It searches for configuration files in priority order:
//  1. Directory specified by DOCFOUNDRY_CONFIG_DIR environment variable
//  2. ~/.docfoundry/
//  3. Current working directory (.)
//
// If no config file is found, sensible defaults are used.
// If a config file exists but is invalid or unreadable, Init returns an error.
func Init() error {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	viper.SetEnvPrefix("DOCFOUNDRY")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults()

	if envPath := os.Getenv("DOCFOUNDRY_CONFIG_DIR"); envPath != "" {
		viper.AddConfigPath(envPath)
	}

	if home := os.Getenv("HOME"); home != "" {
		viper.AddConfigPath(filepath.Join(home, ".docfoundry"))
	}

	viper.AddConfigPath(".")

	err := viper.ReadInConfig()
	if err != nil {
		// A missing config file is acceptable; run on defaults and env.
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			configFilePath = ""
			return nil
		}

		return fmt.Errorf("failed to read config; %w", err)
	}

	configFilePath = viper.ConfigFileUsed()

	slog.Debug("config initialized", "file", configFilePath)

	// SIGHUP re-reads the config file at runtime.
	SetupSignalHandler()

	return nil
}

// ConfigFilePath returns the path to the loaded config file,
// or empty string if using defaults only.
func ConfigFilePath() string {
	return configFilePath
}

// Reset clears the configuration state for testing purposes.
func Reset() {
	viper.Reset()
	configFilePath = ""
}

// GetString returns the string value for the given key.
// Returns empty string if key is not found.
func GetString(key string) string {
	return viper.GetString(key)
}

// GetInt returns the integer value for the given key.
// Returns 0 if key is not found or value cannot be converted to int.
func GetInt(key string) int {
	return viper.GetInt(key)
}

// GetBool returns the boolean value for the given key.
// Returns false if key is not found or value cannot be converted to bool.
func GetBool(key string) bool {
	return viper.GetBool(key)
}

// Set sets a value for the given key, overriding defaults and config file values.
// Primarily used for testing.
func Set(key string, value any) {
	viper.Set(key, value)
}

// GetPath returns the string value for the given key with ~ expanded to $HOME.
// Returns empty string if key is not found.
func GetPath(key string) string {
	return ExpandHome(viper.GetString(key))
}

// ExpandHome expands a leading ~ in path to the user's home directory.
// Only expands "~" alone or "~/..." patterns. Patterns like "~user" are not expanded.
// Returns the path unchanged if it doesn't start with ~/ or if home dir cannot be determined.
func ExpandHome(path string) string {
	if path == "" || path[0] != '~' {
		return path
	}

	if len(path) > 1 && path[1] != '/' {
		return path
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}

	if len(path) == 1 {
		return home
	}

	return filepath.Join(home, path[2:])
}

// GetConfigPath returns the path where the config file should be located.
// If a config file is loaded, returns its path. Otherwise returns the default path.
func GetConfigPath() string {
	if configFilePath != "" {
		return configFilePath
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".docfoundry", "config.yaml")
}

// GetAllSettings returns all configuration settings as a map.
func GetAllSettings() map[string]any {
	return viper.AllSettings()
}

// Reload re-reads the configuration from disk.
// On failure, the previous configuration is retained.
func Reload() error {
	currentSettings := viper.AllSettings()

	err := viper.ReadInConfig()
	if err != nil {
		for key, value := range currentSettings {
			viper.Set(key, value)
		}
		slog.Error("config reload failed; retaining previous values", "error", err)
		return fmt.Errorf("failed to reload config; %w", err)
	}

	slog.Info("config reloaded", "file", viper.ConfigFileUsed())
	return nil
}
