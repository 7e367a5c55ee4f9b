package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

// Config represents the complete application configuration
type Config struct {
	Server  ServerConfig  `yaml:"server" envconfig:"SERVER"`
	License LicenseConfig `yaml:"license" envconfig:"LICENSE"`
	Logging LoggingConfig `yaml:"logging" envconfig:"LOGGING"`
}

// ServerConfig contains HTTP server configuration for the local license surface
type ServerConfig struct {
	Port            int           `yaml:"port" envconfig:"PORT" default:"8350"`
	ReadTimeout     time.Duration `yaml:"read_timeout" envconfig:"READ_TIMEOUT" default:"15s"`
	WriteTimeout    time.Duration `yaml:"write_timeout" envconfig:"WRITE_TIMEOUT" default:"15s"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" envconfig:"IDLE_TIMEOUT" default:"60s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT" default:"30s"`
}

// LicenseConfig contains the license policy knobs enumerated once at startup.
// All three values are fixed for the lifetime of the process.
type LicenseConfig struct {
	OfflineGraceDays         int    `yaml:"offline_grace_days" envconfig:"OFFLINE_GRACE_DAYS" default:"7"`
	OnlineCheckIntervalHours int    `yaml:"online_check_interval_hours" envconfig:"ONLINE_CHECK_INTERVAL_HOURS" default:"24"`
	AuthorityBaseURL         string `yaml:"authority_base_url" envconfig:"AUTHORITY_BASE_URL" default:"https://license.nexussky.io/api/v1"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level    string `yaml:"level" envconfig:"LEVEL" default:"info"`
	Output   string `yaml:"output" envconfig:"OUTPUT" default:"console"`
	FilePath string `yaml:"file_path" envconfig:"FILE_PATH" default:"logs/nexus.log"`
}

// Load loads configuration from environment variables and an optional YAML
// file next to the executable. Environment variables win.
func Load() (*Config, error) {
	var cfg Config

	if err := envconfig.Process("NEXUS", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	configFile := configFilePath()
	if _, err := os.Stat(configFile); err == nil {
		fileCfg, err := loadFromFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
		cfg = mergeConfigs(*fileCfg, cfg)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// loadFromFile loads configuration from a YAML file
func loadFromFile(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// mergeConfigs overlays env-provided values on top of file values. Env values
// that differ from the envconfig defaults take precedence.
func mergeConfigs(file, env Config) Config {
	merged := file

	if env.Server.Port != 8350 {
		merged.Server.Port = env.Server.Port
	}
	if merged.Server.Port == 0 {
		merged.Server.Port = env.Server.Port
	}
	if env.License.OfflineGraceDays != DefaultOfflineGraceDays {
		merged.License.OfflineGraceDays = env.License.OfflineGraceDays
	}
	if merged.License.OfflineGraceDays == 0 {
		merged.License.OfflineGraceDays = env.License.OfflineGraceDays
	}
	if env.License.OnlineCheckIntervalHours != DefaultOnlineCheckIntervalHours {
		merged.License.OnlineCheckIntervalHours = env.License.OnlineCheckIntervalHours
	}
	if merged.License.OnlineCheckIntervalHours == 0 {
		merged.License.OnlineCheckIntervalHours = env.License.OnlineCheckIntervalHours
	}
	if env.License.AuthorityBaseURL != DefaultAuthorityBaseURL {
		merged.License.AuthorityBaseURL = env.License.AuthorityBaseURL
	}
	if merged.License.AuthorityBaseURL == "" {
		merged.License.AuthorityBaseURL = env.License.AuthorityBaseURL
	}
	if merged.Logging.Level == "" {
		merged.Logging.Level = env.Logging.Level
	}
	if merged.Logging.Output == "" {
		merged.Logging.Output = env.Logging.Output
	}
	if merged.Logging.FilePath == "" {
		merged.Logging.FilePath = env.Logging.FilePath
	}
	if merged.Server.ReadTimeout == 0 {
		merged.Server.ReadTimeout = env.Server.ReadTimeout
	}
	if merged.Server.WriteTimeout == 0 {
		merged.Server.WriteTimeout = env.Server.WriteTimeout
	}
	if merged.Server.IdleTimeout == 0 {
		merged.Server.IdleTimeout = env.Server.IdleTimeout
	}
	if merged.Server.ShutdownTimeout == 0 {
		merged.Server.ShutdownTimeout = env.Server.ShutdownTimeout
	}

	return merged
}

// validate checks configuration invariants
func (c *Config) validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.License.OfflineGraceDays < 1 {
		return fmt.Errorf("offline grace period must be at least 1 day, got %d", c.License.OfflineGraceDays)
	}
	if c.License.OnlineCheckIntervalHours < 1 {
		return fmt.Errorf("online check interval must be at least 1 hour, got %d", c.License.OnlineCheckIntervalHours)
	}
	if c.License.AuthorityBaseURL == "" {
		return fmt.Errorf("authority base URL cannot be empty")
	}
	return nil
}

// OnlineCheckInterval returns the re-validation interval as a duration.
func (c LicenseConfig) OnlineCheckInterval() time.Duration {
	return time.Duration(c.OnlineCheckIntervalHours) * time.Hour
}

// OfflineGrace returns the offline grace period as a duration.
func (c LicenseConfig) OfflineGrace() time.Duration {
	return time.Duration(c.OfflineGraceDays) * 24 * time.Hour
}

// configFilePath returns the path of the optional YAML config file, resolved
// relative to the executable so behavior does not depend on the working dir.
func configFilePath() string {
	exe, err := os.Executable()
	if err != nil {
		return "nexus.yaml"
	}
	return filepath.Join(filepath.Dir(exe), "nexus.yaml")
}
