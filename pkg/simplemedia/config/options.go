package config

import (
	"fmt"
	"time"

	"github.com/tendant/simple-media/pkg/simplemedia"
	"github.com/tendant/simple-media/pkg/simplemedia/objectkey"
	"github.com/tendant/simple-media/pkg/simplemedia/urlstrategy"
)

// WithPort sets the server port
func WithPort(port string) Option {
	return func(c *ServerConfig) error {
		if port == "" {
			return fmt.Errorf("port cannot be empty")
		}
		c.Port = port
		return nil
	}
}

// WithEnvironment sets the environment (development, production, testing)
func WithEnvironment(env string) Option {
	return func(c *ServerConfig) error {
		if env == "" {
			return fmt.Errorf("environment cannot be empty")
		}
		c.Environment = env
		return nil
	}
}

// WithDatabase configures the database backend
func WithDatabase(dbType, url string) Option {
	return func(c *ServerConfig) error {
		if dbType != "memory" && dbType != "postgres" {
			return fmt.Errorf("database type must be 'memory' or 'postgres', got: %s", dbType)
		}
		if dbType == "postgres" && url == "" {
			return fmt.Errorf("database URL is required for postgres")
		}
		c.DatabaseType = dbType
		c.DatabaseURL = url
		return nil
	}
}

// WithDatabaseSchema sets the database schema (for Postgres)
func WithDatabaseSchema(schema string) Option {
	return func(c *ServerConfig) error {
		c.DBSchema = schema
		return nil
	}
}

// WithDefaultStorage sets the default storage backend name
func WithDefaultStorage(name string) Option {
	return func(c *ServerConfig) error {
		if name == "" {
			return fmt.Errorf("default storage backend name cannot be empty")
		}
		c.DefaultStorageBackend = name
		return nil
	}
}

// WithMemoryStorage adds an in-memory storage backend
// If name is empty, defaults to "memory"
func WithMemoryStorage(name string) Option {
	return func(c *ServerConfig) error {
		if name == "" {
			name = "memory"
		}
		c.StorageBackends = upsertStorageBackend(c.StorageBackends, StorageBackendConfig{
			Name: name,
			Type: "memory",
		})
		return nil
	}
}

// WithFilesystemStorage adds a filesystem storage backend
// If name is empty, defaults to "fs"
func WithFilesystemStorage(name, baseDir, urlPrefix string) Option {
	return func(c *ServerConfig) error {
		if name == "" {
			name = "fs"
		}
		if baseDir == "" {
			return fmt.Errorf("filesystem base directory cannot be empty")
		}

		backend := StorageBackendConfig{
			Name: name,
			Type: "fs",
			Config: map[string]interface{}{
				"base_dir": baseDir,
			},
		}
		if urlPrefix != "" {
			backend.Config["url_prefix"] = urlPrefix
		}

		c.StorageBackends = upsertStorageBackend(c.StorageBackends, backend)
		return nil
	}
}

// S3Options are the optional settings of an S3 backend.
type S3Options struct {
	AccessKeyID     string
	SecretAccessKey string
	Endpoint        string
	UsePathStyle    bool
	PresignSeconds  int
	CreateBucket    bool
}

// WithS3Storage adds an S3 storage backend
// If name is empty, defaults to "s3"
func WithS3Storage(name, bucket, region string, opts S3Options) Option {
	return func(c *ServerConfig) error {
		if name == "" {
			name = "s3"
		}
		if bucket == "" {
			return fmt.Errorf("S3 bucket cannot be empty")
		}
		if region == "" {
			region = "us-east-1"
		}

		backend := StorageBackendConfig{
			Name: name,
			Type: "s3",
			Config: map[string]interface{}{
				"bucket": bucket,
				"region": region,
			},
		}
		if opts.AccessKeyID != "" {
			backend.Config["access_key_id"] = opts.AccessKeyID
			backend.Config["secret_access_key"] = opts.SecretAccessKey
		}
		if opts.Endpoint != "" {
			backend.Config["endpoint"] = opts.Endpoint
			backend.Config["use_path_style"] = opts.UsePathStyle
		}
		if opts.PresignSeconds > 0 {
			backend.Config["presign_duration"] = opts.PresignSeconds
		}
		if opts.CreateBucket {
			backend.Config["create_bucket_if_not_exist"] = true
		}

		c.StorageBackends = upsertStorageBackend(c.StorageBackends, backend)
		return nil
	}
}

// WithURLStrategy selects how retrieval URLs are built
func WithURLStrategy(strategy urlstrategy.StrategyType, cdnBaseURL, apiBaseURL string) Option {
	return func(c *ServerConfig) error {
		switch strategy {
		case urlstrategy.StrategyTypeContentBased, urlstrategy.StrategyTypeStorageDelegated:
		case urlstrategy.StrategyTypeCDN:
			if cdnBaseURL == "" {
				return fmt.Errorf("CDN base URL is required for the cdn strategy")
			}
		default:
			return fmt.Errorf("unknown URL strategy: %s", strategy)
		}
		c.URLStrategy = string(strategy)
		c.CDNBaseURL = cdnBaseURL
		if apiBaseURL != "" {
			c.APIBaseURL = apiBaseURL
		}
		return nil
	}
}

// WithObjectKeyGenerator selects the object key layout ("sharded" or "flat")
func WithObjectKeyGenerator(kind, prefix string) Option {
	return func(c *ServerConfig) error {
		if _, err := objectkey.New(kind, prefix); err != nil {
			return err
		}
		c.ObjectKeyGenerator = kind
		c.ObjectKeyPrefix = prefix
		return nil
	}
}

// WithHashAlgorithm selects the content digest ("sha256" or "sha512/256")
func WithHashAlgorithm(name string) Option {
	return func(c *ServerConfig) error {
		if _, err := simplemedia.NewHasherByName(name); err != nil {
			return err
		}
		c.HashAlgorithm = name
		return nil
	}
}

// WithMaxUploadBytes caps a single upload
func WithMaxUploadBytes(n int64) Option {
	return func(c *ServerConfig) error {
		if n <= 0 {
			return fmt.Errorf("max upload bytes must be positive, got: %d", n)
		}
		c.MaxUploadBytes = n
		return nil
	}
}

// WithAllowedTypes replaces the declared content type allow list
func WithAllowedTypes(types ...string) Option {
	return func(c *ServerConfig) error {
		if len(types) == 0 {
			return fmt.Errorf("allowed types cannot be empty")
		}
		c.AllowedTypes = append([]string(nil), types...)
		return nil
	}
}

// WithRedis stores idempotency records in Redis
func WithRedis(url string, ttl time.Duration) Option {
	return func(c *ServerConfig) error {
		if url == "" {
			return fmt.Errorf("redis URL cannot be empty")
		}
		c.RedisURL = url
		if ttl > 0 {
			c.IdempotencyTTL = ttl
		}
		return nil
	}
}

func upsertStorageBackend(backends []StorageBackendConfig, backend StorageBackendConfig) []StorageBackendConfig {
	if backend.Config == nil {
		backend.Config = map[string]interface{}{}
	}
	for i := range backends {
		if backends[i].Name == backend.Name {
			backends[i] = backend
			return backends
		}
	}
	return append(backends, backend)
}
