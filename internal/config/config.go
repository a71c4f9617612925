// Package config loads server configuration from a YAML file and the
// environment. Every field has a default so the server runs with no
// config file at all.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Config holds the tracksyncd runtime settings.
type Config struct {
	// ListenAddr is the address the HTTP server binds to.
	ListenAddr string `mapstructure:"listen_addr" yaml:"listen_addr"`

	// DBPath is the SQLite database file. Parent directories are
	// created on open.
	DBPath string `mapstructure:"db_path" yaml:"db_path"`

	// LogFile, when set, sends server logs to a rotating file
	// instead of stderr.
	LogFile string `mapstructure:"log_file" yaml:"log_file"`
}

// Default returns the configuration used when no file or environment
// overrides are present.
func Default() *Config {
	return &Config{
		ListenAddr: ":8787",
		DBPath:     defaultDBPath(),
		LogFile:    "",
	}
}

func defaultDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "tracksync.db"
	}
	return filepath.Join(home, ".tracksync", "tracksync.db")
}

// Load reads configuration from the given file path. An empty path
// searches the standard locations (current directory, then
// ~/.tracksync). Environment variables prefixed with TRACKSYNC_
// override file values, e.g. TRACKSYNC_LISTEN_ADDR=:9000.
func Load(path string) (*Config, error) {
	v := viper.New()

	defaults := Default()
	v.SetDefault("listen_addr", defaults.ListenAddr)
	v.SetDefault("db_path", defaults.DBPath)
	v.SetDefault("log_file", defaults.LogFile)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("tracksync")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".tracksync"))
		}
	}

	v.SetEnvPrefix("TRACKSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if path != "" {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
		// A missing file in the search path means run on defaults.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if cfg.ListenAddr == "" {
		return nil, fmt.Errorf("listen_addr must not be empty")
	}
	if cfg.DBPath == "" {
		return nil, fmt.Errorf("db_path must not be empty")
	}

	return &cfg, nil
}
