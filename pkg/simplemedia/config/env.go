package config

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// environment is the set of variables WithEnv understands.
type environment struct {
	Port        string `env:"PORT" env-default:"8080"`
	Environment string `env:"ENVIRONMENT" env-default:"development"`
	LogLevel    string `env:"LOG_LEVEL" env-default:"info"`
	LogFormat   string `env:"LOG_FORMAT" env-default:"json"`

	DatabaseURL string `env:"DATABASE_URL"`
	DBSchema    string `env:"DB_SCHEMA" env-default:"media"`

	StorageURL string `env:"STORAGE_URL"`

	URLStrategy string `env:"URL_STRATEGY" env-default:"content-based"`
	CDNBaseURL  string `env:"CDN_BASE_URL"`
	APIBaseURL  string `env:"API_BASE_URL" env-default:"/api/v1"`

	ObjectKeyGenerator string `env:"OBJECT_KEY_GENERATOR" env-default:"sharded"`
	ObjectKeyPrefix    string `env:"OBJECT_KEY_PREFIX" env-default:"media"`

	HashAlgorithm string `env:"HASH_ALGORITHM" env-default:"sha256"`

	MaxUploadBytes int64    `env:"MAX_UPLOAD_BYTES" env-default:"20971520"`
	AllowedTypes   []string `env:"ALLOWED_TYPES" env-separator:","`

	RedisURL       string        `env:"REDIS_URL"`
	IdempotencyTTL time.Duration `env:"IDEMPOTENCY_TTL" env-default:"24h"`

	APIKeySHA256 string `env:"API_KEY_SHA256"`
	JWTSecret    string `env:"JWT_SECRET"`

	AWSAccessKeyID     string `env:"AWS_ACCESS_KEY_ID"`
	AWSSecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY"`
	AWSRegion          string `env:"AWS_REGION"`
}

// WithEnv applies the process environment.
//
// Server:
//
//	PORT, ENVIRONMENT, LOG_LEVEL, LOG_FORMAT (json or console)
//
// Database:
//
//	DATABASE_URL - "postgres://..." or "postgresql://..." selects postgres;
//	               empty or "memory" selects the in-memory repository
//	DB_SCHEMA    - Postgres search_path (default: media)
//
// Storage:
//
//	STORAGE_URL - one of:
//	              "memory://" (default)
//	              "file:///path/to/data"
//	              "s3://bucket?region=us-east-1&endpoint=http://localhost:9000"
//
// Media:
//
//	URL_STRATEGY, CDN_BASE_URL, API_BASE_URL, OBJECT_KEY_GENERATOR,
//	OBJECT_KEY_PREFIX, HASH_ALGORITHM, MAX_UPLOAD_BYTES, ALLOWED_TYPES (comma separated),
//	REDIS_URL, IDEMPOTENCY_TTL, API_KEY_SHA256, JWT_SECRET
//
// Unset variables fall back to library defaults, so WithEnv overrides
// options applied before it.
func WithEnv() Option {
	return func(c *ServerConfig) error {
		var env environment
		if err := cleanenv.ReadEnv(&env); err != nil {
			return fmt.Errorf("reading environment: %w", err)
		}

		c.Port = env.Port
		c.Environment = env.Environment
		c.LogLevel = env.LogLevel
		c.LogFormat = env.LogFormat
		c.DBSchema = env.DBSchema
		c.URLStrategy = env.URLStrategy
		c.CDNBaseURL = env.CDNBaseURL
		c.APIBaseURL = env.APIBaseURL
		c.ObjectKeyGenerator = env.ObjectKeyGenerator
		c.ObjectKeyPrefix = env.ObjectKeyPrefix
		c.HashAlgorithm = env.HashAlgorithm
		c.MaxUploadBytes = env.MaxUploadBytes
		c.RedisURL = env.RedisURL
		c.IdempotencyTTL = env.IdempotencyTTL
		c.APIKeySHA256 = env.APIKeySHA256
		c.JWTSecret = env.JWTSecret

		if len(env.AllowedTypes) > 0 {
			c.AllowedTypes = trimAll(env.AllowedTypes)
		}

		if err := applyDatabaseEnv(&env, c); err != nil {
			return err
		}
		return applyStorageEnv(&env, c)
	}
}

func applyDatabaseEnv(env *environment, c *ServerConfig) error {
	dbURL := env.DatabaseURL
	if dbURL == "" || dbURL == "memory" {
		c.DatabaseType = "memory"
		c.DatabaseURL = ""
		return nil
	}

	if strings.HasPrefix(dbURL, "postgresql://") || strings.HasPrefix(dbURL, "postgres://") {
		c.DatabaseType = "postgres"
		c.DatabaseURL = dbURL
		return nil
	}

	return fmt.Errorf("unsupported DATABASE_URL format: %s (use 'memory' or 'postgresql://...')", dbURL)
}

func applyStorageEnv(env *environment, c *ServerConfig) error {
	storageURL := env.StorageURL

	switch {
	case storageURL == "" || storageURL == "memory" || storageURL == "memory://":
		c.DefaultStorageBackend = "memory"
		c.StorageBackends = upsertStorageBackend(c.StorageBackends, StorageBackendConfig{
			Name: "memory",
			Type: "memory",
		})
		return nil
	case strings.HasPrefix(storageURL, "file://"):
		return applyFilesystemStorage(storageURL, c)
	case strings.HasPrefix(storageURL, "s3://"):
		return applyS3Storage(storageURL, env, c)
	}

	return fmt.Errorf("unsupported STORAGE_URL format: %s (use 'memory://', 'file://...', or 's3://...')", storageURL)
}

// applyFilesystemStorage configures filesystem storage from file:///path/to/data
func applyFilesystemStorage(raw string, c *ServerConfig) error {
	path := strings.TrimPrefix(raw, "file://")
	if path == "" {
		return fmt.Errorf("filesystem path cannot be empty in STORAGE_URL")
	}

	c.DefaultStorageBackend = "fs"
	c.StorageBackends = upsertStorageBackend(c.StorageBackends, StorageBackendConfig{
		Name: "fs",
		Type: "fs",
		Config: map[string]interface{}{
			"base_dir": path,
		},
	})
	return nil
}

// applyS3Storage configures S3 storage from
// s3://bucket?region=us-east-1&endpoint=http://localhost:9000&create_bucket=true
func applyS3Storage(raw string, env *environment, c *ServerConfig) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid STORAGE_URL: %w", err)
	}
	if u.Host == "" {
		return fmt.Errorf("S3 bucket name cannot be empty in STORAGE_URL")
	}

	query := u.Query()
	backend := StorageBackendConfig{
		Name: "s3",
		Type: "s3",
		Config: map[string]interface{}{
			"bucket": u.Host,
			"region": "us-east-1",
		},
	}

	if env.AWSRegion != "" {
		backend.Config["region"] = env.AWSRegion
	}
	if region := query.Get("region"); region != "" {
		backend.Config["region"] = region
	}
	if endpoint := query.Get("endpoint"); endpoint != "" {
		backend.Config["endpoint"] = endpoint
		backend.Config["use_path_style"] = true
	}
	if create := query.Get("create_bucket"); create != "" {
		b, err := strconv.ParseBool(create)
		if err != nil {
			return fmt.Errorf("invalid create_bucket in STORAGE_URL: %w", err)
		}
		backend.Config["create_bucket_if_not_exist"] = b
	}
	if env.AWSAccessKeyID != "" {
		backend.Config["access_key_id"] = env.AWSAccessKeyID
	}
	if env.AWSSecretAccessKey != "" {
		backend.Config["secret_access_key"] = env.AWSSecretAccessKey
	}

	c.DefaultStorageBackend = "s3"
	c.StorageBackends = upsertStorageBackend(c.StorageBackends, backend)
	return nil
}

func trimAll(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
