// Package config loads the blogd configuration from defaults, an optional
// YAML file and BLOG_ prefixed environment variables, in that order.
package config

import (
	"os"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/goliatone/go-errors"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix marks environment overrides. BLOG_AUTH__SIGNING_KEY maps to
// auth.signing_key.
const EnvPrefix = "BLOG_"

const (
	DriverPostgres = "pgx"
	DriverSQLite   = "sqlite"
)

type Auth struct {
	SigningKey string `koanf:"signing_key"`
	TokenTTLMs int64  `koanf:"token_ttl_ms"`
	Issuer     string `koanf:"issuer"`
	ContextKey string `koanf:"context_key"`
	AuthScheme string `koanf:"auth_scheme"`
}

type RateLimit struct {
	WindowMs        int64 `koanf:"window_ms"`
	Limit           int   `koanf:"limit"`
	MaxKeys         int   `koanf:"max_keys"`
	SweepIntervalMs int64 `koanf:"sweep_interval_ms"`
}

type HTTP struct {
	Address string `koanf:"address"`
}

type Realtime struct {
	Address         string   `koanf:"address"`
	AllowedOrigins  []string `koanf:"allowed_origins"`
	SendQueue       int      `koanf:"send_queue"`
	HeartbeatMs     int64    `koanf:"heartbeat_ms"`
	FramesPerSecond float64  `koanf:"frames_per_second"`
}

type Database struct {
	Driver string `koanf:"driver"`
	DSN    string `koanf:"dsn"`
}

type Log struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// Seed creates an admin account on startup when both fields are set
type Seed struct {
	AdminUsername string `koanf:"admin_username"`
	AdminPassword string `koanf:"admin_password"`
}

// Config is the root configuration. It satisfies auth.Config.
type Config struct {
	Auth      Auth      `koanf:"auth"`
	RateLimit RateLimit `koanf:"ratelimit"`
	HTTP      HTTP      `koanf:"http"`
	Realtime  Realtime  `koanf:"realtime"`
	Database  Database  `koanf:"database"`
	Log       Log       `koanf:"log"`
	Seed      Seed      `koanf:"seed"`
}

// Defaults returns the flattened default values
func Defaults() map[string]any {
	return map[string]any{
		"auth.signing_key":            "",
		"auth.token_ttl_ms":           int64(24 * time.Hour / time.Millisecond),
		"auth.issuer":                 "quillhub",
		"auth.context_key":            "identity",
		"auth.auth_scheme":            "Bearer",
		"ratelimit.window_ms":         int64(60000),
		"ratelimit.limit":             100,
		"ratelimit.max_keys":          100000,
		"ratelimit.sweep_interval_ms": int64(60000),
		"http.address":                ":8080",
		"realtime.address":            ":8081",
		"realtime.allowed_origins":    []string{"localhost:*"},
		"realtime.send_queue":         64,
		"realtime.heartbeat_ms":       int64(25000),
		"realtime.frames_per_second":  20.0,
		"database.driver":             DriverPostgres,
		"database.dsn":                "",
		"log.level":                   "info",
		"log.format":                  "json",
		"seed.admin_username":         "",
		"seed.admin_password":         "",
	}
}

// Load reads configuration. An empty path, or a path that does not exist,
// skips the file layer.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(Defaults(), "."), nil); err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "load config defaults")
	}

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
				return nil, errors.Wrap(err, errors.CategoryBadInput, "load config file").
					WithMetadata(map[string]any{"path": path})
			}
		} else if !os.IsNotExist(err) {
			return nil, errors.Wrap(err, errors.CategoryInternal, "stat config file")
		}
	}

	if err := k.Load(env.ProviderWithValue(EnvPrefix, ".", envValue), nil); err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "load config environment")
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, errors.Wrap(err, errors.CategoryBadInput, "decode config")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// envValue maps BLOG_REALTIME__ALLOWED_ORIGINS to realtime.allowed_origins.
// List keys take comma separated values.
func envValue(key, value string) (string, any) {
	key = strings.TrimPrefix(key, EnvPrefix)
	key = strings.ReplaceAll(strings.ToLower(key), "__", ".")

	if _, ok := listKeys[key]; ok {
		parts := strings.Split(value, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		return key, out
	}
	return key, value
}

var listKeys = map[string]struct{}{
	"realtime.allowed_origins": {},
}

// Validate checks required values and ranges
func (c *Config) Validate() error {
	err := validation.Errors{
		"auth.signing_key":            validation.Validate(c.Auth.SigningKey, validation.Required, validation.Length(16, 0)),
		"auth.token_ttl_ms":           validation.Validate(c.Auth.TokenTTLMs, validation.Min(int64(1000))),
		"auth.auth_scheme":            validation.Validate(c.Auth.AuthScheme, validation.Required),
		"ratelimit.window_ms":         validation.Validate(c.RateLimit.WindowMs, validation.Min(int64(1))),
		"ratelimit.limit":             validation.Validate(c.RateLimit.Limit, validation.Min(1)),
		"ratelimit.max_keys":          validation.Validate(c.RateLimit.MaxKeys, validation.Min(1)),
		"ratelimit.sweep_interval_ms": validation.Validate(c.RateLimit.SweepIntervalMs, validation.Min(int64(1))),
		"http.address":                validation.Validate(c.HTTP.Address, validation.Required),
		"realtime.address":            validation.Validate(c.Realtime.Address, validation.Required),
		"database.driver":             validation.Validate(c.Database.Driver, validation.Required, validation.In(DriverPostgres, DriverSQLite)),
		"database.dsn":                validation.Validate(c.Database.DSN, validation.Required),
		"log.format":                  validation.Validate(c.Log.Format, validation.In("json", "text")),
	}.Filter()

	if err != nil {
		return errors.FromOzzoValidation(err, "invalid configuration")
	}
	return nil
}

func (c *Config) GetSigningKey() string {
	return c.Auth.SigningKey
}

func (c *Config) GetTokenTTL() time.Duration {
	return time.Duration(c.Auth.TokenTTLMs) * time.Millisecond
}

func (c *Config) GetIssuer() string {
	return c.Auth.Issuer
}

func (c *Config) GetContextKey() string {
	return c.Auth.ContextKey
}

func (c *Config) GetAuthScheme() string {
	return c.Auth.AuthScheme
}

func (c *Config) RateLimitWindow() time.Duration {
	return time.Duration(c.RateLimit.WindowMs) * time.Millisecond
}

func (c *Config) SweepInterval() time.Duration {
	return time.Duration(c.RateLimit.SweepIntervalMs) * time.Millisecond
}

func (c *Config) HeartbeatInterval() time.Duration {
	return time.Duration(c.Realtime.HeartbeatMs) * time.Millisecond
}
