package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Environment variables that override file values. Secrets are only ever
// expected to arrive this way.
const (
	EnvPort           = "INFLUENCERFLOW_PORT"
	EnvDatabaseURL    = "INFLUENCERFLOW_DATABASE_URL"
	EnvMinioEndpoint  = "INFLUENCERFLOW_MINIO_ENDPOINT"
	EnvMinioAccessKey = "INFLUENCERFLOW_MINIO_ACCESS_KEY"
	EnvMinioSecretKey = "INFLUENCERFLOW_MINIO_SECRET_KEY"
	EnvMinioBucket    = "INFLUENCERFLOW_MINIO_BUCKET"
	EnvJWTSecret      = "INFLUENCERFLOW_JWT_SECRET"
	EnvLogLevel       = "INFLUENCERFLOW_LOG_LEVEL"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Log       LogConfig       `yaml:"log"`
	Store     StoreConfig     `yaml:"store"`
	Minio     MinioConfig     `yaml:"minio"`
	Auth      AuthConfig      `yaml:"auth"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Render    RenderConfig    `yaml:"render"`
}

type ServerConfig struct {
	Port int `yaml:"port"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// StoreConfig selects the contract row store
type StoreConfig struct {
	Driver      string `yaml:"driver"` // memory, postgres
	DatabaseURL string `yaml:"database_url"`
	MaxConns    int32  `yaml:"max_conns"`
}

type MinioConfig struct {
	Endpoint      string `yaml:"endpoint"`
	AccessKey     string `yaml:"access_key"`
	SecretKey     string `yaml:"secret_key"`
	Bucket        string `yaml:"bucket"`
	UseSSL        bool   `yaml:"use_ssl"`
	Region        string `yaml:"region"`
	PublicBaseURL string `yaml:"public_base_url"`
	// SkipBucketPolicy leaves the bucket private, for deployments where
	// public_base_url points at a proxy that reads with its own credentials.
	SkipBucketPolicy bool `yaml:"skip_bucket_policy"`
}

type AuthConfig struct {
	VerifyTokens     bool   `yaml:"verify_tokens"`
	JWTSecret        string `yaml:"jwt_secret"`
	TokenExpireHours int    `yaml:"token_expire_hours"`
}

type RateLimitConfig struct {
	Requests      int `yaml:"requests"`
	WindowSeconds int `yaml:"window_seconds"`
}

type RenderConfig struct {
	FetchTimeoutSeconds int `yaml:"fetch_timeout_seconds"`
}

const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
)

// Load reads the YAML file at path (optional when empty or absent), applies
// defaults and then environment overrides. A .env file in the working
// directory is loaded first if present.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
			}
		case errors.Is(err, os.ErrNotExist):
		default:
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	cfg.setDefaults()

	return &cfg, nil
}

func (c *Config) setDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
	if c.Store.Driver == "" {
		c.Store.Driver = DriverMemory
	}
	if c.Store.MaxConns == 0 {
		c.Store.MaxConns = 10
	}
	if c.Minio.Bucket == "" {
		c.Minio.Bucket = "contracts"
	}
	if c.Auth.TokenExpireHours == 0 {
		c.Auth.TokenExpireHours = 24
	}
	if c.RateLimit.Requests == 0 {
		c.RateLimit.Requests = 100
	}
	if c.RateLimit.WindowSeconds == 0 {
		c.RateLimit.WindowSeconds = 60
	}
	if c.Render.FetchTimeoutSeconds == 0 {
		c.Render.FetchTimeoutSeconds = 15
	}
}

func (c *Config) applyEnv() {
	if v := os.Getenv(EnvPort); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Server.Port = port
		}
	}
	overrideString(&c.Store.DatabaseURL, EnvDatabaseURL)
	overrideString(&c.Minio.Endpoint, EnvMinioEndpoint)
	overrideString(&c.Minio.AccessKey, EnvMinioAccessKey)
	overrideString(&c.Minio.SecretKey, EnvMinioSecretKey)
	overrideString(&c.Minio.Bucket, EnvMinioBucket)
	overrideString(&c.Auth.JWTSecret, EnvJWTSecret)
	overrideString(&c.Log.Level, EnvLogLevel)
}

func overrideString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		*dst = strings.TrimSpace(v)
	}
}

// Validate checks the settings required to serve traffic. Credentials have
// no built-in fallback and must be supplied explicitly.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port out of range: %d", c.Server.Port))
	}

	switch c.Store.Driver {
	case DriverMemory:
	case DriverPostgres:
		if c.Store.DatabaseURL == "" {
			errs = append(errs, fmt.Errorf("store.database_url is required for the postgres driver (or set %s)", EnvDatabaseURL))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown store.driver %q", c.Store.Driver))
	}

	if c.Minio.Endpoint == "" {
		errs = append(errs, fmt.Errorf("minio.endpoint is required (or set %s)", EnvMinioEndpoint))
	}
	if c.Minio.AccessKey == "" || c.Minio.SecretKey == "" {
		errs = append(errs, fmt.Errorf("minio credentials are required (set %s and %s)", EnvMinioAccessKey, EnvMinioSecretKey))
	}

	if c.Auth.VerifyTokens && c.Auth.JWTSecret == "" {
		errs = append(errs, fmt.Errorf("auth.jwt_secret is required when auth.verify_tokens is enabled (or set %s)", EnvJWTSecret))
	}

	return errors.Join(errs...)
}
