// Package config loads runtime settings from a per-environment dotenv file
// overlaid with process environment variables.
package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

// Environment selectors.
const (
	EnvDev  = "dev"
	EnvTest = "test"
)

// Config is the full set of settings shared by the seeder and the API server.
type Config struct {
	Env      string `mapstructure:"ENV"`
	LogLevel string `mapstructure:"LOG_LEVEL"`
	LogMode  string `mapstructure:"LOG_MODE"`

	DBKind           string `mapstructure:"DB_KIND"`
	DatabaseURL      string `mapstructure:"DATABASE_URL"`
	PostgresHost     string `mapstructure:"POSTGRES_HOST"`
	PostgresPort     int    `mapstructure:"POSTGRES_PORT"`
	PostgresUser     string `mapstructure:"POSTGRES_USER"`
	PostgresPassword string `mapstructure:"POSTGRES_PASSWORD"`
	PostgresDB       string `mapstructure:"POSTGRES_DB"`

	ServerHost string `mapstructure:"SERVER_HOST"`
	ServerPort int    `mapstructure:"SERVER_PORT"`

	SecretKey                string `mapstructure:"SECRET_KEY"`
	AccessTokenExpireMinutes int    `mapstructure:"ACCESS_TOKEN_EXPIRE_MINUTES"`

	RedisAddr          string `mapstructure:"REDIS_ADDR"`
	RedisPassword      string `mapstructure:"REDIS_PASSWORD"`
	RedisDB            int    `mapstructure:"REDIS_DB"`
	RateLimitPerSecond int    `mapstructure:"RATE_LIMIT_PER_SECOND"`
	CacheTTLSeconds    int    `mapstructure:"CACHE_TTL_SECONDS"`
	CORSOrigins        string `mapstructure:"CORS_ORIGINS"`

	MetricsBackend string `mapstructure:"METRICS_BACKEND"`
	MetricsTags    string `mapstructure:"METRICS_TAGS"`

	SeedDataPath         string `mapstructure:"SEED_DATA_PATH"`
	SeedStrictAudit      bool   `mapstructure:"SEED_STRICT_AUDIT"`
	SeedHandoutLanguages string `mapstructure:"SEED_HANDOUT_LANGUAGES"`
	SeedStripHTML        bool   `mapstructure:"SEED_STRIP_HTML"`
}

var defaults = map[string]any{
	"LOG_LEVEL":                   "info",
	"LOG_MODE":                    "dev",
	"DB_KIND":                     "postgres",
	"POSTGRES_HOST":               "localhost",
	"POSTGRES_PORT":               5432,
	"SERVER_HOST":                 "0.0.0.0",
	"SERVER_PORT":                 8000,
	"ACCESS_TOKEN_EXPIRE_MINUTES": 30,
	"RATE_LIMIT_PER_SECOND":       1,
	"CACHE_TTL_SECONDS":           300,
	"METRICS_BACKEND":             "none",
	"SEED_DATA_PATH":              "data/courses.csv",
	"SEED_STRICT_AUDIT":           true,
	"SEED_STRIP_HTML":             false,
}

// keys lists every setting so AutomaticEnv sees them during Unmarshal.
var keys = []string{
	"ENV", "LOG_LEVEL", "LOG_MODE",
	"DB_KIND", "DATABASE_URL",
	"POSTGRES_HOST", "POSTGRES_PORT", "POSTGRES_USER", "POSTGRES_PASSWORD", "POSTGRES_DB",
	"SERVER_HOST", "SERVER_PORT",
	"SECRET_KEY", "ACCESS_TOKEN_EXPIRE_MINUTES",
	"REDIS_ADDR", "REDIS_PASSWORD", "REDIS_DB", "RATE_LIMIT_PER_SECOND", "CACHE_TTL_SECONDS", "CORS_ORIGINS",
	"METRICS_BACKEND", "METRICS_TAGS",
	"SEED_DATA_PATH", "SEED_STRICT_AUDIT", "SEED_HANDOUT_LANGUAGES", "SEED_STRIP_HTML",
}

// ResolveEnv maps an environment selector to EnvDev or EnvTest.
func ResolveEnv(env string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "dev", "development":
		return EnvDev, nil
	case "test", "testing":
		return EnvTest, nil
	default:
		return "", fmt.Errorf("invalid environment %q: must be dev or test", env)
	}
}

// Load reads <dir>/.env.<env> when it exists and overlays process
// environment variables. Every call uses its own viper instance.
func Load(env, dir string) (Config, error) {
	resolved, err := ResolveEnv(env)
	if err != nil {
		return Config{}, err
	}

	v := viper.New()
	for k, d := range defaults {
		v.SetDefault(k, d)
	}
	v.AutomaticEnv()
	for _, k := range keys {
		if err := v.BindEnv(k); err != nil {
			return Config{}, fmt.Errorf("config: bind %s: %w", k, err)
		}
	}

	path := filepath.Join(dir, ".env."+resolved)
	if _, err := os.Stat(path); err == nil {
		v.SetConfigFile(path)
		v.SetConfigType("env")
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("config: stat %s: %w", path, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: unmarshal: %w", err)
	}
	cfg.Env = resolved
	cfg.DBKind = strings.ToLower(strings.TrimSpace(cfg.DBKind))
	return cfg, nil
}

// DSN returns the connection string for DBKind. DATABASE_URL wins when set;
// otherwise a postgres URL is assembled from the POSTGRES_* parts.
func (c Config) DSN() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	if c.DBKind != "" && c.DBKind != "postgres" {
		return ""
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.PostgresUser, c.PostgresPassword),
		Host:     net.JoinHostPort(c.PostgresHost, strconv.Itoa(c.PostgresPort)),
		Path:     "/" + c.PostgresDB,
		RawQuery: "sslmode=disable",
	}
	return u.String()
}

// Validate reports every missing or invalid setting needed to reach the
// database.
func (c Config) Validate() error {
	var errs []error
	switch c.DBKind {
	case "postgres":
		if c.DatabaseURL == "" {
			if c.PostgresHost == "" {
				errs = append(errs, errors.New("POSTGRES_HOST is required"))
			}
			if c.PostgresUser == "" {
				errs = append(errs, errors.New("POSTGRES_USER is required"))
			}
			if c.PostgresDB == "" {
				errs = append(errs, errors.New("POSTGRES_DB is required"))
			}
			if c.PostgresPort <= 0 {
				errs = append(errs, errors.New("POSTGRES_PORT must be positive"))
			}
		}
	case "sqlite", "mssql":
		if c.DatabaseURL == "" {
			errs = append(errs, fmt.Errorf("DATABASE_URL is required for DB_KIND=%s", c.DBKind))
		}
	default:
		errs = append(errs, fmt.Errorf("DB_KIND %q is not one of postgres, sqlite, mssql", c.DBKind))
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

// ValidateServer additionally checks the settings the API server needs.
func (c Config) ValidateServer() error {
	err := c.Validate()
	var errs []error
	if err != nil {
		errs = append(errs, err)
	}
	if c.SecretKey == "" {
		errs = append(errs, errors.New("config: SECRET_KEY is required"))
	}
	if c.ServerPort <= 0 {
		errs = append(errs, errors.New("config: SERVER_PORT must be positive"))
	}
	return errors.Join(errs...)
}

// Addr is the API listen address.
func (c Config) Addr() string {
	return net.JoinHostPort(c.ServerHost, strconv.Itoa(c.ServerPort))
}

// HandoutLanguages splits SEED_HANDOUT_LANGUAGES. Nil means the default list.
func (c Config) HandoutLanguages() []string { return splitCSV(c.SeedHandoutLanguages) }

// CORSOriginList splits CORS_ORIGINS.
func (c Config) CORSOriginList() []string { return splitCSV(c.CORSOrigins) }

func splitCSV(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Summary returns the settings worth logging at startup, keyed by variable
// name. Pass it through logger.Redact before logging.
func (c Config) Summary() map[string]string {
	return map[string]string{
		"ENV":               c.Env,
		"LOG_LEVEL":         c.LogLevel,
		"DB_KIND":           c.DBKind,
		"DATABASE_URL":      c.DatabaseURL,
		"POSTGRES_HOST":     c.PostgresHost,
		"POSTGRES_PORT":     strconv.Itoa(c.PostgresPort),
		"POSTGRES_USER":     c.PostgresUser,
		"POSTGRES_PASSWORD": c.PostgresPassword,
		"POSTGRES_DB":       c.PostgresDB,
		"REDIS_ADDR":        c.RedisAddr,
		"METRICS_BACKEND":   c.MetricsBackend,
		"SEED_DATA_PATH":    c.SeedDataPath,
	}
}
