// Package config contains code to set the default values and read
// config files to be used throughout the whole application
package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	v "github.com/spf13/viper"
)

var (
	validLogLevels     = []string{"debug", "info", "warn", "error", "fatal"}
	validDBDrivers     = []string{"sqlite", "postgres"}
	validMailBackends  = []string{"console", "smtp"}
	validCacheTypes    = []string{"memory", "redis"}
	validStorageTypes  = []string{"s3", "local"}
	ErrMissingSecret   = errors.New("security.secret_key is not set")
	ErrInvalidLogLevel = errors.New("invalid log level provided")
)

// Flags registers the flags Setup understands on fs
func Flags(fs *pflag.FlagSet) {
	fs.String("config", "", "Path to a config file, defaults to ./config.toml if present")
	fs.String("env-file", ".env", "Dotenv file loaded before reading the environment")
	fs.Int("port", 0, "Port to listen on, overrides host.port")
	fs.String("log-level", "", "Overrides app.log_level")
}

var envKeys = []string{
	"app.log_level",
	"app.base_url",
	"app.debug",

	"host.port",
	"host.cors_origins",
	"host.ssl.enabled",
	"host.ssl.certificate_path",
	"host.ssl.certificate_key_path",
	"host.max_body_size",

	"database.driver",
	"database.dsn",

	"security.secret_key",
	"security.rate_limit",
	"security.rate_burst",

	"accounts.confirmation_expiry",
	"accounts.reset_timeout",
	"accounts.mail_cooldown",

	"mail.backend",
	"mail.host",
	"mail.port",
	"mail.username",
	"mail.password",
	"mail.from",

	"cache.type",
	"cache.redis_addr",
	"cache.redis_password",
	"cache.redis_db",

	"storage.type",
	"storage.bucket",
	"storage.region",
	"storage.endpoint",
	"storage.access_key_id",
	"storage.secret_access_key",
	"storage.location",

	"social.facebook.client_id",
	"social.facebook.client_secret",
	"social.facebook.graph_url",
	"social.google.client_id",
	"social.google.issuer",

	"turnstile.enabled",
	"turnstile.secret_token",

	"metrics.enabled",
}

// Setup prepares everything config-related so that the app can
// start working. Function will return an error if something
// is critically wrong and the application can't run because of
// that.
func Setup(fs *pflag.FlagSet) error {
	envFile, _ := fs.GetString("env-file")
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to load %s, %w", envFile, err)
		}
	}

	v.SetConfigType("toml")
	if path, _ := fs.GetString("config"); path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
	}

	//
	// ENVS
	//
	for _, k := range envKeys {
		v.BindEnv(k, strings.ToUpper(strings.NewReplacer(".", "_").Replace(k)))
	}

	if f := fs.Lookup("port"); f != nil && f.Changed {
		v.BindPFlag("host.port", f)
	}
	if f := fs.Lookup("log-level"); f != nil && f.Changed {
		v.BindPFlag("app.log_level", f)
	}

	//
	// Defaults
	//
	v.SetDefault("app.log_level", "info")
	v.SetDefault("app.base_url", "http://localhost:8080")

	v.SetDefault("host.port", 8080)
	v.SetDefault("host.cors_origins", []string{"http://localhost:3000"})
	v.SetDefault("host.ssl.enabled", false)
	v.SetDefault("host.max_body_size", 1<<20)

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "database.db")

	v.SetDefault("security.rate_limit", 5)
	v.SetDefault("security.rate_burst", 10)

	v.SetDefault("accounts.confirmation_expiry", "72h")
	v.SetDefault("accounts.reset_timeout", "24h")
	v.SetDefault("accounts.mail_cooldown", "3m")

	v.SetDefault("mail.backend", "console")
	v.SetDefault("mail.port", 587)
	v.SetDefault("mail.from", "webmaster@localhost")

	v.SetDefault("cache.type", "memory")
	v.SetDefault("cache.redis_db", 0)

	v.SetDefault("storage.type", "local")
	v.SetDefault("storage.location", "static")

	v.SetDefault("social.facebook.graph_url", "https://graph.facebook.com/v19.0")
	v.SetDefault("social.google.issuer", "https://accounts.google.com")

	v.SetDefault("turnstile.enabled", false)
	v.SetDefault("metrics.enabled", true)

	if err := v.ReadInConfig(); err != nil {
		var notFound v.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("failed to read config file, %w", err)
		}
	}

	return validate()
}

func validate() error {
	if !slices.Contains(validLogLevels, v.GetString("app.log_level")) {
		return ErrInvalidLogLevel
	}

	if v.GetString("app.base_url") == "" {
		return errors.New("app.base_url can't be empty")
	}

	if v.GetInt("host.port") <= 0 || v.GetInt("host.port") > 65535 {
		return errors.New("invalid port provided")
	}

	if v.GetBool("host.ssl.enabled") {
		if v.GetString("host.ssl.certificate_path") == "" {
			return errors.New("no ssl certificate path provided")
		}

		if v.GetString("host.ssl.certificate_key_path") == "" {
			return errors.New("no ssl certificate key path provided")
		}
	}

	if v.GetInt64("host.max_body_size") <= 0 {
		return errors.New("host.max_body_size must be bigger than 0")
	}

	if !slices.Contains(validDBDrivers, v.GetString("database.driver")) {
		return errors.New("invalid database driver provided")
	}

	if v.GetString("database.dsn") == "" {
		return errors.New("database.dsn can't be empty")
	}

	if v.GetString("security.secret_key") == "" {
		return ErrMissingSecret
	}

	if v.GetInt("security.rate_limit") <= 0 {
		return errors.New("security.rate_limit must be bigger than 0")
	}

	for _, k := range []string{"accounts.confirmation_expiry", "accounts.reset_timeout", "accounts.mail_cooldown"} {
		if v.GetDuration(k) <= 0 {
			return fmt.Errorf("%s must be a positive duration", k)
		}
	}

	switch v.GetString("mail.backend") {
	case "smtp":
		if v.GetString("mail.host") == "" {
			return errors.New("mail.host can't be empty")
		}
		if v.GetInt("mail.port") <= 0 {
			return errors.New("invalid mail port provided")
		}
	case "console":
	default:
		return fmt.Errorf("invalid mail backend provided, expected one of %v", validMailBackends)
	}

	switch v.GetString("cache.type") {
	case "redis":
		if v.GetString("cache.redis_addr") == "" {
			return errors.New("cache.redis_addr can't be empty")
		}
	case "memory":
	default:
		return fmt.Errorf("invalid cache type provided, expected one of %v", validCacheTypes)
	}

	switch v.GetString("storage.type") {
	case "s3":
		if v.GetString("storage.bucket") == "" {
			return errors.New("bucket can't be empty")
		}
		if v.GetString("storage.region") == "" {
			return errors.New("region can't be empty")
		}
	case "local":
	default:
		return fmt.Errorf("invalid storage type provided, expected one of %v", validStorageTypes)
	}

	if v.GetString("social.facebook.client_id") != "" && v.GetString("social.facebook.client_secret") == "" {
		return errors.New("facebook client secret is missing")
	}

	if v.GetBool("turnstile.enabled") && v.GetString("turnstile.secret_token") == "" {
		return errors.New("turnstile secret token is missing")
	}

	return nil
}
