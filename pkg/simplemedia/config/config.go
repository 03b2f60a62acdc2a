package config

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/multierr"

	"github.com/tendant/simple-media/pkg/logger"
	"github.com/tendant/simple-media/pkg/simplemedia"
	"github.com/tendant/simple-media/pkg/simplemedia/idempotency"
	"github.com/tendant/simple-media/pkg/simplemedia/metrics"
	"github.com/tendant/simple-media/pkg/simplemedia/objectkey"
	"github.com/tendant/simple-media/pkg/simplemedia/repo/memory"
	repopg "github.com/tendant/simple-media/pkg/simplemedia/repo/postgres"
	fsstorage "github.com/tendant/simple-media/pkg/simplemedia/storage/fs"
	memorystorage "github.com/tendant/simple-media/pkg/simplemedia/storage/memory"
	s3storage "github.com/tendant/simple-media/pkg/simplemedia/storage/s3"
	"github.com/tendant/simple-media/pkg/simplemedia/urlstrategy"
)

// Option applies configuration to a ServerConfig instance.
type Option func(*ServerConfig) error

// Load constructs a ServerConfig by applying the supplied options on top of library defaults.
func Load(opts ...Option) (*ServerConfig, error) {
	cfg := defaults()

	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func defaults() ServerConfig {
	return ServerConfig{
		Port:                  "8080",
		Environment:           "development",
		LogLevel:              "info",
		LogFormat:             "json",
		DatabaseType:          "memory",
		DBSchema:              "media",
		DefaultStorageBackend: "memory",
		StorageBackends: []StorageBackendConfig{
			{
				Name:   "memory",
				Type:   "memory",
				Config: map[string]interface{}{},
			},
		},
		URLStrategy:        string(urlstrategy.StrategyTypeContentBased),
		APIBaseURL:         urlstrategy.DefaultAPIBaseURL,
		ObjectKeyGenerator: "sharded",
		ObjectKeyPrefix:    objectkey.DefaultPrefix,
		HashAlgorithm:      simplemedia.DefaultHashAlgorithm,
		MaxUploadBytes:     simplemedia.DefaultMaxUploadBytes,
		IdempotencyTTL:     idempotency.DefaultTTL,
		EnableEventLogging: true,
	}
}

// ServerConfig represents server configuration for the simple-media service
type ServerConfig struct {
	Port        string
	Environment string // development, production, testing
	LogLevel    string
	LogFormat   string // json, console

	// Database configuration
	DatabaseURL  string
	DatabaseType string // "memory", "postgres"
	DBSchema     string // Postgres schema to use (default: media)

	// Storage configuration
	DefaultStorageBackend string
	StorageBackends       []StorageBackendConfig

	// Retrieval URLs
	URLStrategy string // content-based, cdn, storage-delegated
	CDNBaseURL  string
	APIBaseURL  string

	// Object keys
	ObjectKeyGenerator string // sharded, flat
	ObjectKeyPrefix    string

	// HashAlgorithm is the content digest: sha256 or sha512/256
	HashAlgorithm string

	// Upload rules
	MaxUploadBytes int64
	AllowedTypes   []string

	// Idempotency records live in Redis when RedisURL is set, in memory otherwise.
	RedisURL       string
	IdempotencyTTL time.Duration

	// HTTP auth, both optional
	APIKeySHA256 string
	JWTSecret    string

	EnableEventLogging bool
}

// StorageBackendConfig represents configuration for a storage backend
type StorageBackendConfig struct {
	Name   string
	Type   string // "memory", "fs", "s3"
	Config map[string]interface{}
}

// Validate validates the server configuration
func (c *ServerConfig) Validate() error {
	if c.Port == "" {
		return errors.New("port is required")
	}

	if c.DatabaseType != "memory" && c.DatabaseType != "postgres" {
		return errors.New("database_type must be 'memory' or 'postgres'")
	}

	if c.DatabaseType == "postgres" && c.DatabaseURL == "" {
		return errors.New("database_url is required when using postgres")
	}

	found := false
	for _, backend := range c.StorageBackends {
		if backend.Name == c.DefaultStorageBackend {
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("default storage backend '%s' not found in configured backends", c.DefaultStorageBackend)
	}

	switch urlstrategy.StrategyType(c.URLStrategy) {
	case urlstrategy.StrategyTypeContentBased, urlstrategy.StrategyTypeStorageDelegated:
	case urlstrategy.StrategyTypeCDN:
		if c.CDNBaseURL == "" {
			return errors.New("cdn_base_url is required for the cdn url strategy")
		}
	default:
		return fmt.Errorf("unknown url strategy: %s", c.URLStrategy)
	}

	if _, err := objectkey.New(c.ObjectKeyGenerator, c.ObjectKeyPrefix); err != nil {
		return err
	}

	if _, err := simplemedia.NewHasherByName(c.HashAlgorithm); err != nil {
		return err
	}

	if c.MaxUploadBytes <= 0 {
		return fmt.Errorf("max upload bytes must be positive, got: %d", c.MaxUploadBytes)
	}

	if c.IdempotencyTTL <= 0 {
		return fmt.Errorf("idempotency ttl must be positive, got: %s", c.IdempotencyTTL)
	}

	return nil
}

// Logger builds the process logger from LogLevel and LogFormat.
func (c *ServerConfig) Logger(serviceName string) *logger.Logger {
	return logger.New(logger.Options{
		ServiceName: serviceName,
		Level:       logger.ParseLevel(c.LogLevel),
		Format:      c.LogFormat,
	})
}

// Runtime is everything BuildService wires together. Close releases the
// database pool and the Redis client.
type Runtime struct {
	Service     simplemedia.Service
	Idempotency idempotency.Store
	Stores      map[string]simplemedia.BlobStore
	Pool        *pgxpool.Pool

	closers []func() error
}

// Close releases every resource opened by BuildService.
func (r *Runtime) Close() error {
	var err error
	for i := len(r.closers) - 1; i >= 0; i-- {
		err = multierr.Append(err, r.closers[i]())
	}
	return err
}

// BuildService creates a Service instance from the server configuration.
// m may be nil, in which case blob stores and events are not instrumented.
func (c *ServerConfig) BuildService(ctx context.Context, log *logger.Logger, m *metrics.Metrics) (_ *Runtime, err error) {
	if log == nil {
		log = logger.Nop()
	}
	rt := &Runtime{Stores: make(map[string]simplemedia.BlobStore, len(c.StorageBackends))}
	defer func() {
		if err != nil {
			err = multierr.Append(err, rt.Close())
		}
	}()

	hasher, err := simplemedia.NewHasherByName(c.HashAlgorithm)
	if err != nil {
		return nil, err
	}

	options := []simplemedia.Option{
		simplemedia.WithLogger(log),
		simplemedia.WithHasher(hasher),
		simplemedia.WithUploadRules(simplemedia.NewUploadRules(c.MaxUploadBytes, c.AllowedTypes)),
	}

	repo, pool, err := c.buildRepository(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to build repository: %w", err)
	}
	if pool != nil {
		rt.Pool = pool
		rt.closers = append(rt.closers, func() error {
			pool.Close()
			return nil
		})
	}
	options = append(options, simplemedia.WithRepository(repo))

	stores := make(map[string]urlstrategy.BlobStore, len(c.StorageBackends))
	for _, backendConfig := range c.StorageBackends {
		store, err := c.buildStorageBackend(ctx, backendConfig)
		if err != nil {
			return nil, fmt.Errorf("failed to build storage backend %s: %w", backendConfig.Name, err)
		}
		if m != nil {
			store = metrics.InstrumentStore(backendConfig.Name, store, m)
		}
		stores[backendConfig.Name] = store
		rt.Stores[backendConfig.Name] = store
		options = append(options, simplemedia.WithBlobStore(backendConfig.Name, store))
	}
	options = append(options, simplemedia.WithDefaultBlobStore(c.DefaultStorageBackend))

	keys, err := objectkey.New(c.ObjectKeyGenerator, c.ObjectKeyPrefix)
	if err != nil {
		return nil, err
	}
	options = append(options, simplemedia.WithObjectKeyGenerator(keys))

	strategy, err := urlstrategy.NewURLStrategy(urlstrategy.Config{
		Type:       urlstrategy.StrategyType(c.URLStrategy),
		CDNBaseURL: c.CDNBaseURL,
		APIBaseURL: c.APIBaseURL,
		BlobStores: stores,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build url strategy: %w", err)
	}
	options = append(options, simplemedia.WithURLStrategy(strategy))

	var sinks simplemedia.MultiEventSink
	if c.EnableEventLogging {
		sinks = append(sinks, simplemedia.NewLogEventSink(log))
	}
	if m != nil {
		sinks = append(sinks, metrics.NewEventSink(m))
	}
	if len(sinks) > 0 {
		options = append(options, simplemedia.WithEventSink(sinks))
	}

	svc, err := simplemedia.New(options...)
	if err != nil {
		return nil, err
	}
	rt.Service = svc

	store, err := c.buildIdempotencyStore(ctx, rt)
	if err != nil {
		return nil, fmt.Errorf("failed to build idempotency store: %w", err)
	}
	rt.Idempotency = store

	return rt, nil
}

// buildRepository creates a Repository based on the configuration. The pool
// is nil for the memory repository.
func (c *ServerConfig) buildRepository(ctx context.Context) (simplemedia.Repository, *pgxpool.Pool, error) {
	switch c.DatabaseType {
	case "memory":
		return memory.New(), nil, nil
	case "postgres":
		pool, err := NewPool(ctx, c.DatabaseURL, c.DBSchema)
		if err != nil {
			return nil, nil, err
		}
		return repopg.NewWithPool(pool), pool, nil
	default:
		return nil, nil, fmt.Errorf("unsupported database type: %s", c.DatabaseType)
	}
}

// NewPool opens a pgx pool whose sessions use schema as search_path.
func NewPool(ctx context.Context, databaseURL, schema string) (*pgxpool.Pool, error) {
	if databaseURL == "" {
		return nil, errors.New("database_url is required")
	}
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse DATABASE_URL: %w", err)
	}
	if schema != "" {
		cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
			_, err := conn.Exec(ctx, "SET search_path TO "+pgx.Identifier{schema}.Sanitize())
			return err
		}
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create pgx pool: %w", err)
	}
	return pool, nil
}

// PingPostgres verifies connectivity to Postgres. It fails if the schema
// (when provided) cannot be selected.
func PingPostgres(ctx context.Context, databaseURL, schema string) error {
	pool, err := NewPool(ctx, databaseURL, schema)
	if err != nil {
		return err
	}
	defer pool.Close()
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	return nil
}

func (c *ServerConfig) buildIdempotencyStore(ctx context.Context, rt *Runtime) (idempotency.Store, error) {
	if c.RedisURL == "" {
		return idempotency.NewMemoryStore(), nil
	}
	client, err := idempotency.NewRedisClient(ctx, idempotency.RedisConfig{URL: c.RedisURL})
	if err != nil {
		return nil, err
	}
	rt.closers = append(rt.closers, client.Close)
	return idempotency.NewRedisStore(client, "simple-media"), nil
}

// buildStorageBackend creates a BlobStore based on the backend configuration
func (c *ServerConfig) buildStorageBackend(ctx context.Context, config StorageBackendConfig) (simplemedia.BlobStore, error) {
	switch config.Type {
	case "memory":
		return memorystorage.New(), nil

	case "fs":
		fsConfig := fsstorage.Config{
			BaseDir:   getString(config.Config, "base_dir", "./data/media"),
			URLPrefix: getString(config.Config, "url_prefix", ""),
		}
		return fsstorage.New(fsConfig)

	case "s3":
		s3Config := s3storage.Config{
			Region:                 getString(config.Config, "region", "us-east-1"),
			Bucket:                 getString(config.Config, "bucket", ""),
			AccessKeyID:            getString(config.Config, "access_key_id", ""),
			SecretAccessKey:        getString(config.Config, "secret_access_key", ""),
			Endpoint:               getString(config.Config, "endpoint", ""),
			UsePathStyle:           getBool(config.Config, "use_path_style", false),
			PresignDuration:        getInt(config.Config, "presign_duration", 3600),
			EnableSSE:              getBool(config.Config, "enable_sse", false),
			SSEAlgorithm:           getString(config.Config, "sse_algorithm", "AES256"),
			SSEKMSKeyID:            getString(config.Config, "sse_kms_key_id", ""),
			CreateBucketIfNotExist: getBool(config.Config, "create_bucket_if_not_exist", false),
		}
		return s3storage.New(ctx, s3Config)

	default:
		return nil, fmt.Errorf("unsupported storage backend type: %s", config.Type)
	}
}

func getString(config map[string]interface{}, key string, defaultValue string) string {
	if value, exists := config[key]; exists {
		if str, ok := value.(string); ok {
			return str
		}
	}
	return defaultValue
}

func getBool(config map[string]interface{}, key string, defaultValue bool) bool {
	if value, exists := config[key]; exists {
		switch v := value.(type) {
		case bool:
			return v
		case string:
			if b, err := strconv.ParseBool(v); err == nil {
				return b
			}
		}
	}
	return defaultValue
}

func getInt(config map[string]interface{}, key string, defaultValue int) int {
	if value, exists := config[key]; exists {
		switch v := value.(type) {
		case int:
			return v
		case float64:
			return int(v)
		case string:
			if i, err := strconv.Atoi(v); err == nil {
				return i
			}
		}
	}
	return defaultValue
}
