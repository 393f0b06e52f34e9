package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"chatterbox/pkg/errors"
)

// ServerConfig represents server configuration
type ServerConfig struct {
	Address  string         `yaml:"address"`
	Uploads  UploadsConfig  `yaml:"uploads"`
	Typing   TypingConfig   `yaml:"typing"`
	Calls    CallsConfig    `yaml:"calls"`
	Database DatabaseConfig `yaml:"database"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// UploadsConfig represents media upload settings
type UploadsConfig struct {
	Dir       string `yaml:"dir"`
	MaxSizeMB int64  `yaml:"max_size_mb"`
}

// TypingConfig represents typing indicator settings
type TypingConfig struct {
	TimeoutMS int `yaml:"timeout_ms"`
}

// CallsConfig represents call signaling settings
type CallsConfig struct {
	// RingTimeoutSeconds bounds how long a call may stay ringing before
	// the caller is told it failed. Zero disables the timeout and an
	// unanswered call to an offline callee rings forever, which matches
	// the original server's behavior.
	RingTimeoutSeconds int `yaml:"ring_timeout_seconds"`
}

// DatabaseConfig represents the upload index database settings
type DatabaseConfig struct {
	Type string `yaml:"type"` // sqlite | mysql
	Path string `yaml:"path"` // file path for sqlite, DSN for mysql
}

// LoggingConfig represents logging settings
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// DefaultConfig returns default configuration
func DefaultConfig() *ServerConfig {
	return &ServerConfig{
		Address: ":8000",
		Uploads: UploadsConfig{
			Dir:       "./uploads",
			MaxSizeMB: 50,
		},
		Typing: TypingConfig{
			TimeoutMS: 2000,
		},
		Calls: CallsConfig{
			RingTimeoutSeconds: 0,
		},
		Database: DatabaseConfig{
			Type: "sqlite",
			Path: "./chatterbox.db",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// LoadConfig loads configuration from file and environment variables
func LoadConfig(configPath string) (*ServerConfig, error) {
	config := DefaultConfig()

	if configPath != "" {
		if err := loadFromFile(configPath, config); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	applyEnvOverrides(config)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// loadFromFile loads configuration from a YAML file
func loadFromFile(path string, config *ServerConfig) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	return yaml.Unmarshal(data, config)
}

// applyEnvOverrides applies environment variable overrides
func applyEnvOverrides(config *ServerConfig) {
	if addr := os.Getenv("CHAT_ADDR"); addr != "" {
		config.Address = addr
	}

	if dir := os.Getenv("CHAT_UPLOAD_DIR"); dir != "" {
		config.Uploads.Dir = dir
	}

	if dbType := os.Getenv("CHAT_DB_TYPE"); dbType != "" {
		config.Database.Type = dbType
	}

	if dbPath := os.Getenv("CHAT_DB_PATH"); dbPath != "" {
		config.Database.Path = dbPath
	}

	if logLevel := os.Getenv("CHAT_LOG_LEVEL"); logLevel != "" {
		config.Logging.Level = logLevel
	}

	if logFormat := os.Getenv("CHAT_LOG_FORMAT"); logFormat != "" {
		config.Logging.Format = logFormat
	}

	if timeout := os.Getenv("CHAT_TYPING_TIMEOUT_MS"); timeout != "" {
		if val, err := strconv.Atoi(timeout); err == nil {
			config.Typing.TimeoutMS = val
		}
	}

	if timeout := os.Getenv("CHAT_RING_TIMEOUT_SECONDS"); timeout != "" {
		if val, err := strconv.Atoi(timeout); err == nil {
			config.Calls.RingTimeoutSeconds = val
		}
	}
}

// Validate validates the configuration. All failures wrap
// errors.ErrInvalidConfig so callers can classify them.
func (c *ServerConfig) Validate() error {
	if c.Address == "" {
		return fmt.Errorf("%w: server address cannot be empty", errors.ErrInvalidConfig)
	}

	if c.Uploads.Dir == "" {
		return fmt.Errorf("%w: upload directory cannot be empty", errors.ErrInvalidConfig)
	}

	if c.Uploads.MaxSizeMB < 1 {
		return fmt.Errorf("%w: upload max size must be at least 1 MB", errors.ErrInvalidConfig)
	}

	if c.Typing.TimeoutMS < 1 {
		return fmt.Errorf("%w: typing timeout must be positive", errors.ErrInvalidConfig)
	}

	if c.Calls.RingTimeoutSeconds < 0 {
		return fmt.Errorf("%w: ring timeout cannot be negative", errors.ErrInvalidConfig)
	}

	switch c.Database.Type {
	case "sqlite", "mysql", "":
	default:
		return fmt.Errorf("%w: unsupported database type: %s", errors.ErrInvalidConfig, c.Database.Type)
	}

	if !isValidLogLevel(c.Logging.Level) {
		return fmt.Errorf("%w: invalid log level: %s", errors.ErrInvalidConfig, c.Logging.Level)
	}

	return nil
}

// isValidLogLevel checks if the log level is valid
func isValidLogLevel(level string) bool {
	switch strings.ToLower(level) {
	case "debug", "info", "warn", "error":
		return true
	}
	return false
}

// TypingTimeout returns the typing inactivity window as a duration
func (c *ServerConfig) TypingTimeout() time.Duration {
	return time.Duration(c.Typing.TimeoutMS) * time.Millisecond
}

// RingTimeout returns the call ring timeout, zero when disabled
func (c *ServerConfig) RingTimeout() time.Duration {
	return time.Duration(c.Calls.RingTimeoutSeconds) * time.Second
}

// MaxUploadBytes returns the upload size cap in bytes
func (c *ServerConfig) MaxUploadBytes() int64 {
	return c.Uploads.MaxSizeMB * 1024 * 1024
}

// String returns a string representation of the configuration (for logging)
func (c *ServerConfig) String() string {
	return fmt.Sprintf("Config{Address: %s, Uploads: %s, DB: %s, LogLevel: %s}",
		c.Address, c.Uploads.Dir, c.Database.Type, c.Logging.Level)
}
