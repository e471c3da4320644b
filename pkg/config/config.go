package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete restitch configuration
type Config struct {
	Account  AccountConfig  `mapstructure:"account"`
	Solver   SolverConfig   `mapstructure:"solver"`
	Proxies  []string       `mapstructure:"proxies"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Server   ServerConfig   `mapstructure:"server"`
	Schedule ScheduleConfig `mapstructure:"schedule"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// AccountConfig points at the remote account service.
type AccountConfig struct {
	APIBaseURL string        `mapstructure:"api_base_url"`
	CDNBaseURL string        `mapstructure:"cdn_base_url"`
	Credential string        `mapstructure:"credential"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

// SolverConfig points at the challenge-solving service.
type SolverConfig struct {
	APIBaseURL string        `mapstructure:"api_base_url"`
	ClientKey  string        `mapstructure:"client_key"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

// StorageConfig contains record store configuration
type StorageConfig struct {
	Path string `mapstructure:"path"`
}

// ServerConfig contains the HTTP surface configuration
type ServerConfig struct {
	Addr       string        `mapstructure:"addr"`
	SessionTTL time.Duration `mapstructure:"session_ttl"`
}

// ScheduleConfig drives automatic periodic snapshots. Each credential is
// snapshotted as kind "full" on the cron expression; retention applies
// with eviction pre-confirmed.
type ScheduleConfig struct {
	Cron        string   `mapstructure:"cron"`
	Credentials []string `mapstructure:"credentials"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	homeDir, _ := os.UserHomeDir()
	return &Config{
		Account: AccountConfig{
			APIBaseURL: "https://discord.com/api/v9",
			CDNBaseURL: "https://cdn.discordapp.com",
			Timeout:    30 * time.Second,
		},
		Solver: SolverConfig{
			APIBaseURL: "https://api.capsolver.com",
			Timeout:    30 * time.Second,
		},
		Storage: StorageConfig{
			Path: filepath.Join(homeDir, ".restitch", "snapshots.db"),
		},
		Server: ServerConfig{
			Addr:       ":8080",
			SessionTTL: 15 * time.Minute,
		},
		Schedule: ScheduleConfig{
			Cron: "",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load loads configuration from file, environment and defaults
func Load(cfgFile string) (*Config, error) {
	config := DefaultConfig()

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		if home, err := os.UserHomeDir(); err == nil {
			viper.AddConfigPath(filepath.Join(home, ".restitch"))
		}
		viper.AddConfigPath(".")
	}

	viper.SetEnvPrefix("RESTITCH")
	viper.AutomaticEnv()

	viper.BindEnv("account.credential", "RESTITCH_CREDENTIAL")
	viper.BindEnv("solver.client_key", "RESTITCH_SOLVER_KEY")

	if err := viper.ReadInConfig(); err != nil {
		// Missing config file is fine; env and defaults still apply.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && cfgFile != "" {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if err := viper.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return config, nil
}

// Validate checks the loaded configuration for obvious mistakes.
func (c *Config) Validate() error {
	if c.Account.APIBaseURL == "" {
		return fmt.Errorf("account.api_base_url is required")
	}
	if c.Account.Timeout <= 0 {
		return fmt.Errorf("account.timeout must be positive")
	}
	if c.Schedule.Cron != "" && len(c.Schedule.Credentials) == 0 {
		return fmt.Errorf("schedule.cron is set but schedule.credentials is empty")
	}
	return nil
}
