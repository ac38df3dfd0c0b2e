package internal

import (
	"fmt"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/linkshot/internal/artifact"
	"github.com/starford/linkshot/internal/cachekey"
	"github.com/starford/linkshot/internal/capture"
	"github.com/starford/linkshot/internal/webframe"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Config represents the application configuration.
type Config struct {
	App     ApplicationConfig `yaml:"app"`
	Vault   VaultConfig       `yaml:"vault"`
	Cache   CacheConfig       `yaml:"cache"`
	SQLite  SQLiteConfig      `yaml:"sqlite"`
	Auth    AuthConfig        `yaml:"auth"`
	Fetch   FetchConfig       `yaml:"fetch"`
	Metrics MetricsConfig     `yaml:"metrics"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	validators := []interface{ Validate() error }{
		&c.App, &c.Vault, &c.Cache, &c.SQLite, &c.Auth, &c.Fetch,
	}
	for _, v := range validators {
		if err := v.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// VaultConfig holds the path to the canvas vault directory.
type VaultConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the vault configuration.
func (c *VaultConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// CacheConfig controls where previews live and how they are captured.
//
// KeyPolicy selects how a node maps to a cache key:
//   - "identity" (default): the node id.
//   - "content": a hash of the link address, so equal links share a preview.
type CacheConfig struct {
	Dir            string        `yaml:"dir"`
	KeyPolicy      string        `yaml:"key_policy"`
	SettleDelay    time.Duration `yaml:"settle_delay"`
	ResizeDebounce time.Duration `yaml:"resize_debounce"`
	ResourceBase   string        `yaml:"resource_base"`
}

// Validate validates the cache configuration.
func (c *CacheConfig) Validate() error {
	if c.KeyPolicy == "" {
		c.KeyPolicy = cachekey.PolicyIdentity
	}
	return validation.ValidateStruct(c,
		validation.Field(&c.Dir, validation.Required),
		validation.Field(&c.KeyPolicy, validation.Required, validation.In(cachekey.PolicyIdentity, cachekey.PolicyContent)),
		validation.Field(&c.SettleDelay, validation.Min(time.Duration(0))),
		validation.Field(&c.ResizeDebounce, validation.Min(time.Duration(0))),
	)
}

// SQLiteConfig holds SQLite database configuration.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the SQLite configuration.
func (c *SQLiteConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// AuthConfig holds authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local dev.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode"`
	Token string `yaml:"token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeToken && c.Token == "" {
		return fmt.Errorf("auth: mode is %q but token is empty", AuthModeToken)
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken
}

// FetchConfig tunes the headless page loader used by warm.
type FetchConfig struct {
	Timeout      time.Duration `yaml:"timeout"`
	UserAgent    string        `yaml:"user_agent"`
	MaxAttempts  int           `yaml:"max_attempts"`
	MaxBodyBytes int64         `yaml:"max_body_bytes"`
	Concurrency  int           `yaml:"concurrency"`

	// MaxImagePixels caps the declared width*height of preview images.
	MaxImagePixels int64 `yaml:"max_image_pixels"`
}

// Validate validates the fetch configuration.
func (c *FetchConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Timeout, validation.Required, validation.Min(time.Millisecond)),
		validation.Field(&c.MaxAttempts, validation.Required, validation.Min(1), validation.Max(10)),
		validation.Field(&c.MaxBodyBytes, validation.Required, validation.Min(int64(1024))),
		validation.Field(&c.Concurrency, validation.Required, validation.Min(1)),
		validation.Field(&c.MaxImagePixels, validation.Required, validation.Min(int64(1))),
	)
}

// MetricsConfig toggles the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		Vault: VaultConfig{
			Path: "./vault",
		},
		Cache: CacheConfig{
			Dir:            "./vault/.linkshot/previews",
			KeyPolicy:      cachekey.PolicyIdentity,
			SettleDelay:    capture.DefaultSettleDelay,
			ResizeDebounce: capture.DefaultResizeDebounce,
			ResourceBase:   artifact.DefaultResourceBase,
		},
		SQLite: SQLiteConfig{
			Path: "./linkshot.db",
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
		Fetch: FetchConfig{
			Timeout:        webframe.DefaultTimeout,
			UserAgent:      webframe.DefaultUserAgent,
			MaxAttempts:    webframe.DefaultMaxAttempts,
			MaxBodyBytes:   webframe.DefaultMaxBodyBytes,
			Concurrency:    webframe.DefaultConcurrency,
			MaxImagePixels: webframe.DefaultMaxImagePixels,
		},
	}
}
