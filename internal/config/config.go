// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package config loads authcore settings from a YAML file, command-line flags
// and environment variables.
//
// Precedence, highest first: flags set on the command line, environment
// variables, the config file, flag defaults.
package config

import (
	"errors"
	"io/fs"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"

	"github.com/holomush/authcore/internal/auth"
	"github.com/holomush/authcore/internal/store"
	"github.com/holomush/authcore/internal/xdg"
)

// Environment variables carrying secrets.
const (
	EnvSigningSecret = "AUTHCORE_SIGNING_SECRET"
	EnvDatabaseURL   = "DATABASE_URL"
)

// Store backends.
const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

// Config is the complete authcore configuration.
type Config struct {
	Store    string         `koanf:"store" jsonschema:"enum=postgres,enum=memory,description=Credential store backend"`
	Log      LogConfig      `koanf:"log"`
	Database DatabaseConfig `koanf:"database"`
	Token    TokenConfig    `koanf:"token"`
	Password PasswordConfig `koanf:"password"`
	Metrics  MetricsConfig  `koanf:"metrics"`
}

// LogConfig configures structured logging.
type LogConfig struct {
	Level  string `koanf:"level" jsonschema:"enum=debug,enum=info,enum=warn,enum=error"`
	Format string `koanf:"format" jsonschema:"enum=json,enum=text"`
}

// DatabaseConfig configures the PostgreSQL pool.
type DatabaseConfig struct {
	URL            string        `koanf:"url" jsonschema:"description=PostgreSQL URL; DATABASE_URL overrides it"`
	MaxConns       int32         `koanf:"max_conns" jsonschema:"minimum=1"`
	ConnectTimeout time.Duration `koanf:"connect_timeout"`
	ConnectRetries uint64        `koanf:"connect_retries"`
}

// TokenConfig configures access and refresh tokens.
type TokenConfig struct {
	Issuer        string        `koanf:"issuer"`
	SigningSecret string        `koanf:"signing_secret" jsonschema:"minLength=32,description=HS256 key; AUTHCORE_SIGNING_SECRET overrides it"`
	AccessTTL     time.Duration `koanf:"access_ttl"`
	RefreshTTL    time.Duration `koanf:"refresh_ttl"`
}

// PasswordConfig configures the password policy and hash cost.
type PasswordConfig struct {
	MinLength     int    `koanf:"min_length" jsonschema:"minimum=1"`
	MaxLength     int    `koanf:"max_length" jsonschema:"minimum=1"`
	Argon2Time    uint32 `koanf:"argon2_time" jsonschema:"minimum=1"`
	Argon2Memory  uint32 `koanf:"argon2_memory" jsonschema:"minimum=1,description=KiB"`
	Argon2Threads uint8  `koanf:"argon2_threads" jsonschema:"minimum=1"`
}

// MetricsConfig configures the observability server. An empty Addr disables it.
type MetricsConfig struct {
	Addr string `koanf:"addr"`
}

// flagKeys maps flag names to config keys.
var flagKeys = map[string]string{
	"store":               "store",
	"log-level":           "log.level",
	"log-format":          "log.format",
	"db-max-conns":        "database.max_conns",
	"db-connect-timeout":  "database.connect_timeout",
	"db-connect-retries":  "database.connect_retries",
	"issuer":              "token.issuer",
	"access-ttl":          "token.access_ttl",
	"refresh-ttl":         "token.refresh_ttl",
	"password-min-length": "password.min_length",
	"password-max-length": "password.max_length",
	"argon2-time":         "password.argon2_time",
	"argon2-memory":       "password.argon2_memory",
	"argon2-threads":      "password.argon2_threads",
	"metrics-addr":        "metrics.addr",
}

// RegisterFlags adds the configuration flags, with their defaults, to flags.
// Secrets have no flags.
func RegisterFlags(flags *pflag.FlagSet) {
	argon := auth.DefaultArgon2Params()

	flags.String("store", StorePostgres, "credential store backend (postgres or memory)")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
	flags.String("log-format", "json", "log format (json or text)")
	flags.Int32("db-max-conns", 10, "maximum database connections")
	flags.Duration("db-connect-timeout", store.DefaultConnectTimeout, "timeout of a single database connection attempt")
	flags.Uint64("db-connect-retries", store.DefaultConnectRetries, "database connection retries at startup")
	flags.String("issuer", "authcore", "access token issuer")
	flags.Duration("access-ttl", auth.DefaultAccessTokenTTL, "access token lifetime")
	flags.Duration("refresh-ttl", auth.DefaultRefreshTokenTTL, "refresh token lifetime")
	flags.Int("password-min-length", auth.MinPasswordLength, "minimum password length")
	flags.Int("password-max-length", auth.MaxPasswordLength, "maximum password length")
	flags.Uint32("argon2-time", argon.Time, "argon2id iterations")
	flags.Uint32("argon2-memory", argon.Memory, "argon2id memory in KiB")
	flags.Uint8("argon2-threads", argon.Threads, "argon2id parallelism")
	flags.String("metrics-addr", "127.0.0.1:9100", "metrics/health HTTP address (empty = disabled)")
}

// LoadOptions controls Load.
type LoadOptions struct {
	// Path is the config file. Empty means the XDG default, which may be absent.
	Path string
	// Flags holds flags registered with RegisterFlags. Nil skips flags.
	Flags *pflag.FlagSet
	// LookupEnv defaults to os.LookupEnv.
	LookupEnv func(string) (string, bool)
}

// Load reads and validates the configuration.
func Load(opts LoadOptions) (*Config, error) {
	if opts.LookupEnv == nil {
		opts.LookupEnv = os.LookupEnv
	}
	k := koanf.New(".")

	if err := loadFile(k, opts.Path); err != nil {
		return nil, err
	}

	for env, key := range map[string]string{EnvSigningSecret: "token.signing_secret", EnvDatabaseURL: "database.url"} {
		if v, ok := opts.LookupEnv(env); ok && v != "" {
			if err := k.Set(key, v); err != nil {
				return nil, oops.Code("CONFIG_ENV_FAILED").With("env", env).Wrap(err)
			}
		}
	}

	if opts.Flags != nil {
		provider := posflag.ProviderWithFlag(opts.Flags, ".", k, func(f *pflag.Flag) (string, any) {
			key, ok := flagKeys[f.Name]
			if !ok {
				return "", nil
			}
			return key, posflag.FlagVal(opts.Flags, f)
		})
		if err := k.Load(provider, nil); err != nil {
			return nil, oops.Code("CONFIG_FLAGS_FAILED").Wrap(err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, oops.Code("CONFIG_DECODE_FAILED").Wrap(err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func loadFile(k *koanf.Koanf, path string) error {
	explicit := path != ""
	if !explicit {
		var err error
		if path, err = xdg.ConfigFile(); err != nil {
			return nil //nolint:nilerr // no home directory means no default file
		}
	}

	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) && !explicit {
			return nil
		}
		return oops.Code("CONFIG_FILE_NOT_FOUND").With("path", path).Wrap(err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return oops.Code("CONFIG_FILE_NOT_FOUND").With("path", path).Wrap(err)
	}
	if err := ValidateDocument(data); err != nil {
		return oops.With("path", path).Wrap(err)
	}
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return oops.Code("CONFIG_FILE_INVALID").With("path", path).Wrap(err)
	}
	return nil
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	invalid := func(key, format string, args ...any) error {
		return oops.Code("CONFIG_INVALID").With("key", key).Errorf(format, args...)
	}

	if !slices.Contains([]string{StorePostgres, StoreMemory}, c.Store) {
		return invalid("store", "store must be %q or %q, got %q", StorePostgres, StoreMemory, c.Store)
	}
	if c.Store == StorePostgres && c.Database.URL == "" {
		return invalid("database.url", "%s is required for the postgres store", EnvDatabaseURL)
	}
	if !slices.Contains([]string{"debug", "info", "warn", "error"}, strings.ToLower(c.Log.Level)) {
		return invalid("log.level", "unknown log level %q", c.Log.Level)
	}
	if c.Log.Format != "json" && c.Log.Format != "text" {
		return invalid("log.format", "log format must be 'json' or 'text', got %q", c.Log.Format)
	}
	if len(c.Token.SigningSecret) < auth.MinSigningSecretLength {
		return invalid("token.signing_secret", "%s must be at least %d bytes", EnvSigningSecret, auth.MinSigningSecretLength)
	}
	if c.Token.Issuer == "" {
		return invalid("token.issuer", "issuer is required")
	}
	if c.Token.AccessTTL < time.Second {
		return invalid("token.access_ttl", "access token lifetime must be at least 1s, got %s", c.Token.AccessTTL)
	}
	if c.Token.RefreshTTL <= c.Token.AccessTTL {
		return invalid("token.refresh_ttl", "refresh token lifetime %s must exceed access token lifetime %s",
			c.Token.RefreshTTL, c.Token.AccessTTL)
	}
	if c.Password.MinLength < 1 || c.Password.MaxLength < c.Password.MinLength {
		return invalid("password.min_length", "password length bounds [%d, %d] are invalid",
			c.Password.MinLength, c.Password.MaxLength)
	}
	if c.Password.Argon2Time == 0 || c.Password.Argon2Memory == 0 || c.Password.Argon2Threads == 0 {
		return invalid("password.argon2", "argon2 parameters must be positive")
	}
	return nil
}

// PasswordPolicy returns the configured policy.
func (c *Config) PasswordPolicy() auth.PasswordPolicy {
	return auth.PasswordPolicy{MinLength: c.Password.MinLength, MaxLength: c.Password.MaxLength}
}

// Argon2Params returns the configured hash cost.
func (c *Config) Argon2Params() auth.Argon2Params {
	return auth.Argon2Params{
		Time:    c.Password.Argon2Time,
		Memory:  c.Password.Argon2Memory,
		Threads: c.Password.Argon2Threads,
	}
}

// PoolConfig returns the database pool settings.
func (c *Config) PoolConfig() store.PoolConfig {
	return store.PoolConfig{
		URL:            c.Database.URL,
		MaxConns:       c.Database.MaxConns,
		ConnectTimeout: c.Database.ConnectTimeout,
		ConnectRetries: c.Database.ConnectRetries,
	}
}
