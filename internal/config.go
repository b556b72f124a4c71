package internal

import (
	"fmt"
	"log/slog"
	"net/url"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Config represents the application configuration.
type Config struct {
	App      ApplicationConfig `yaml:"app"`
	Database DatabaseConfig    `yaml:"database"`
	Emulator EmulatorConfig    `yaml:"emulator"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Database.Validate(); err != nil {
		return err
	}
	return c.Emulator.Validate()
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.LogLevel, validation.In(
			slog.LevelDebug, slog.LevelInfo, slog.LevelWarn, slog.LevelError,
		)),
	)
}

// DatabaseConfig points client commands at a remote database.
type DatabaseConfig struct {
	URL  string `yaml:"url"`
	Auth string `yaml:"auth"`
}

// Validate validates the database configuration. URL is optional (only
// client commands need it) but must be https when present.
func (c *DatabaseConfig) Validate() error {
	if c.URL == "" {
		return nil
	}
	u, err := url.Parse(c.URL)
	if err != nil {
		return fmt.Errorf("database: invalid url: %w", err)
	}
	if u.Scheme != "https" {
		return fmt.Errorf("database: url scheme must be https, got %q", u.Scheme)
	}
	return nil
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Address returns the HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// EmulatorConfig holds local emulator configuration.
//
// SQLitePath enables snapshot persistence when non-empty; Seed points at
// a JSON document loaded on startup and hot-reloaded on change; Auth,
// when non-empty, requires every request to carry a matching `auth`
// query parameter.
type EmulatorConfig struct {
	HTTP       HTTPConfig    `yaml:"http"`
	SQLitePath string        `yaml:"sqlite_path"`
	Seed       string        `yaml:"seed"`
	Auth       string        `yaml:"auth"`
	KeepAlive  time.Duration `yaml:"keep_alive"`
}

// Validate validates the emulator configuration.
func (c *EmulatorConfig) Validate() error {
	if err := c.HTTP.Validate(); err != nil {
		return err
	}
	return validation.ValidateStruct(c,
		validation.Field(&c.KeepAlive, validation.Min(time.Duration(0))),
	)
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
		},
		Emulator: EmulatorConfig{
			HTTP: HTTPConfig{
				Port: 9000,
			},
			KeepAlive: 30 * time.Second,
		},
	}
}
