package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Storage backends.
const (
	BackendJSON     = "json"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

// Auth cookie plugins.
const (
	CookieSigned = "signed"
	CookieJWT    = "jwt"
	CookieToken  = "token"
)

// Config holds application level configuration aggregated from env/config files.
type Config struct {
	Server struct {
		Addr            string
		ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	}
	App struct {
		Name              string
		LoginLabel        string `mapstructure:"login_label"`
		HideAdmin         bool   `mapstructure:"hide_admin"`
		AllowRegistration bool   `mapstructure:"allow_registration"`
	}
	Auth struct {
		SessionSecret     string        `mapstructure:"session_secret"`
		CookiePlugin      string        `mapstructure:"cookie_plugin"`
		LoginExpire       time.Duration `mapstructure:"login_expire"`
		CookieSecure      bool          `mapstructure:"cookie_secure"`
		MinPasswordLength int           `mapstructure:"min_password_length"`
	}
	Storage struct {
		Backend string
		JSON    struct {
			Path     string
			Bucket   string
			Key      string
			Region   string
			Endpoint string
		} `mapstructure:"json"`
		SQLite struct {
			Path string
		} `mapstructure:"sqlite"`
		Postgres struct {
			DSN string
		} `mapstructure:"postgres"`
	}
	Sessions struct {
		Store string
		Redis struct {
			Addr     string
			Password string
			DB       int
		}
	}
	Mail struct {
		Provider string
		Workers  int
		SMTP     struct {
			Host               string
			Port               int
			Username           string
			Password           string
			Encryption         string
			InsecureSkipVerify bool   `mapstructure:"insecure_skip_verify"`
			FromEmail          string `mapstructure:"from_email"`
			FromName           string `mapstructure:"from_name"`
			Timeout            time.Duration
		} `mapstructure:"smtp"`
	}
	Log struct {
		Level  string
		Format string
	}
}

var defaults = map[string]any{
	"server.addr":                    "0.0.0.0:8080",
	"server.shutdown_timeout":        "10s",
	"app.name":                       "modauth",
	"app.login_label":                "Login",
	"app.hide_admin":                 false,
	"app.allow_registration":         true,
	"auth.session_secret":            "",
	"auth.cookie_plugin":             CookieSigned,
	"auth.login_expire":              "24h",
	"auth.cookie_secure":             false,
	"auth.min_password_length":       8,
	"storage.backend":                BackendJSON,
	"storage.json.path":              "data/users.json",
	"storage.json.bucket":            "",
	"storage.json.key":               "users.json",
	"storage.json.region":            "us-east-1",
	"storage.json.endpoint":          "",
	"storage.sqlite.path":            "data/modauth.db",
	"storage.postgres.dsn":           "",
	"sessions.store":                 "memory",
	"sessions.redis.addr":            "localhost:6379",
	"sessions.redis.password":        "",
	"sessions.redis.db":              0,
	"mail.provider":                  "log",
	"mail.workers":                   2,
	"mail.smtp.host":                 "",
	"mail.smtp.port":                 587,
	"mail.smtp.username":             "",
	"mail.smtp.password":             "",
	"mail.smtp.encryption":           "starttls",
	"mail.smtp.insecure_skip_verify": false,
	"mail.smtp.from_email":           "",
	"mail.smtp.from_name":            "",
	"mail.smtp.timeout":              "10s",
	"log.level":                      "info",
	"log.format":                     "text",
}

// Load reads configuration from environment variables and an optional config
// file. When path is empty, config.yaml in the working directory is used if
// present. A .env file is loaded first; variables already set win.
func Load(path string) (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("MODAUTH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.Storage.Backend = strings.ToLower(strings.TrimSpace(cfg.Storage.Backend))
	cfg.Auth.CookiePlugin = strings.ToLower(strings.TrimSpace(cfg.Auth.CookiePlugin))

	return cfg, nil
}

// Validate checks the settings the server cannot start without.
func (c Config) Validate() error {
	var errs []error
	if len(strings.TrimSpace(c.Auth.SessionSecret)) < 32 {
		errs = append(errs, errors.New("auth.session_secret must be at least 32 characters"))
	}
	switch c.Auth.CookiePlugin {
	case CookieSigned, CookieJWT, CookieToken:
	default:
		errs = append(errs, fmt.Errorf("unknown auth.cookie_plugin %q", c.Auth.CookiePlugin))
	}
	if c.Auth.LoginExpire <= 0 {
		errs = append(errs, errors.New("auth.login_expire must be positive"))
	}
	switch c.Storage.Backend {
	case BackendJSON:
		if c.Storage.JSON.Bucket == "" && c.Storage.JSON.Path == "" {
			errs = append(errs, errors.New("storage.json.path or storage.json.bucket is required"))
		}
	case BackendSQLite:
		if c.Storage.SQLite.Path == "" {
			errs = append(errs, errors.New("storage.sqlite.path is required"))
		}
	case BackendPostgres:
		if c.Storage.Postgres.DSN == "" {
			errs = append(errs, errors.New("storage.postgres.dsn is required"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage.backend %q", c.Storage.Backend))
	}
	switch c.Sessions.Store {
	case "memory", "redis":
	default:
		errs = append(errs, fmt.Errorf("unknown sessions.store %q", c.Sessions.Store))
	}
	switch c.Mail.Provider {
	case "log":
	case "smtp":
		if c.Mail.SMTP.Host == "" || c.Mail.SMTP.FromEmail == "" {
			errs = append(errs, errors.New("mail.smtp.host and mail.smtp.from_email are required for smtp"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown mail.provider %q", c.Mail.Provider))
	}
	return errors.Join(errs...)
}

// AdminEnabled reports whether the admin screens are served. The JSON
// backend has no group registry, so they are always off there.
func (c Config) AdminEnabled() bool {
	return !c.App.HideAdmin && c.Storage.Backend != BackendJSON
}
