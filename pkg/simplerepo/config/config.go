// Package config builds configured service instances for the repository
// server.
package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tendant/simple-repo/pkg/simplerepo"
	"github.com/tendant/simple-repo/pkg/simplerepo/packaging"
	"github.com/tendant/simple-repo/pkg/simplerepo/repo/memory"
	repopg "github.com/tendant/simple-repo/pkg/simplerepo/repo/postgres"
	"github.com/tendant/simple-repo/pkg/simplerepo/storagepath"
	nonebackend "github.com/tendant/simple-repo/pkg/simplerepo/versioning/none"
	s3backend "github.com/tendant/simple-repo/pkg/simplerepo/versioning/s3"
	simplebackend "github.com/tendant/simple-repo/pkg/simplerepo/versioning/simple"
)

// Option applies configuration to a ServerConfig instance.
type Option func(*ServerConfig) error

// Load constructs a ServerConfig by applying the supplied options on top
// of library defaults.
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
		Port:              "8080",
		Environment:       "development",
		DatabaseType:      "memory",
		DBSchema:          "repo",
		Basepath:          "file:///var/lib/simple-repo",
		PathPattern:       "@{year}",
		VersioningService: "simple",
	}
}

// ServerConfig represents server configuration for the repository service
type ServerConfig struct {
	Port        string
	Environment string // development, production, testing

	// Database configuration
	DatabaseURL  string
	DatabaseType string // "memory", "postgres"
	DBSchema     string // Postgres schema to use (default: repo)

	// Content storage configuration
	Basepath          string // base URL for stored content, e.g. file:///data/repo
	PathPattern       string // date pattern expanded below the basepath
	VersioningService string // "simple", "none", "s3"

	// Server options
	ReadOnly  bool   // reject write operations at the API layer
	JWTSecret string // HMAC secret for bearer token verification

	// S3 backend options, used when VersioningService is "s3"
	S3 S3Config
}

// S3Config configures the S3 versioning backend.
type S3Config struct {
	Region                 string
	Bucket                 string
	AccessKeyID            string
	SecretAccessKey        string
	Endpoint               string
	UsePathStyle           bool
	EnableSSE              bool
	SSEAlgorithm           string
	SSEKMSKeyID            string
	CreateBucketIfNotExist bool
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
	switch c.VersioningService {
	case "simple", "none":
		if c.Basepath == "" {
			return errors.New("basepath is required")
		}
	case "s3":
		if c.S3.Bucket == "" {
			return errors.New("s3 bucket is required when using the s3 versioning service")
		}
	default:
		return fmt.Errorf("unsupported versioning service: %s", c.VersioningService)
	}
	return nil
}

// BuildService creates a Service instance from the server configuration
func (c *ServerConfig) BuildService(logger *slog.Logger) (simplerepo.Service, error) {
	repo, err := c.buildRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to build repository: %w", err)
	}

	backend, err := c.buildVersioningService()
	if err != nil {
		return nil, fmt.Errorf("failed to build versioning service %s: %w", c.VersioningService, err)
	}

	options := []simplerepo.Option{
		simplerepo.WithRepository(repo),
		simplerepo.WithVersioningService(backend.ServiceName(), backend),
		simplerepo.WithDefaultVersioningService(backend.ServiceName()),
		simplerepo.WithPackager(packaging.NewZip()),
	}
	if logger != nil {
		options = append(options, simplerepo.WithLogger(logger))
	}
	return simplerepo.New(options...)
}

// buildRepository creates a Repository based on the configuration
func (c *ServerConfig) buildRepository() (simplerepo.Repository, error) {
	switch c.DatabaseType {
	case "memory":
		return memory.New(), nil
	case "postgres":
		if c.DatabaseURL == "" {
			return nil, errors.New("database_url is required for postgres")
		}
		cfg, err := pgxpool.ParseConfig(c.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse DATABASE_URL: %w", err)
		}
		schema := c.DBSchema
		cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
			if schema == "" {
				return nil
			}
			_, err := conn.Exec(ctx, fmt.Sprintf("SET search_path TO %s", schema))
			return err
		}
		pool, err := pgxpool.NewWithConfig(context.Background(), cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create pgx pool: %w", err)
		}
		return repopg.NewWithPool(pool), nil
	default:
		return nil, fmt.Errorf("unsupported database type: %s", c.DatabaseType)
	}
}

// buildVersioningService creates the configured content backend.
func (c *ServerConfig) buildVersioningService() (simplerepo.VersioningService, error) {
	resolver, err := storagepath.New(c.basepathURL(), c.PathPattern)
	if err != nil {
		return nil, err
	}
	switch c.VersioningService {
	case "simple":
		return simplebackend.New(resolver)
	case "none":
		return nonebackend.New(resolver)
	case "s3":
		return s3backend.New(s3backend.Config{
			Region:                 c.S3.Region,
			Bucket:                 c.S3.Bucket,
			AccessKeyID:            c.S3.AccessKeyID,
			SecretAccessKey:        c.S3.SecretAccessKey,
			Endpoint:               c.S3.Endpoint,
			UsePathStyle:           c.S3.UsePathStyle,
			EnableSSE:              c.S3.EnableSSE,
			SSEAlgorithm:           c.S3.SSEAlgorithm,
			SSEKMSKeyID:            c.S3.SSEKMSKeyID,
			CreateBucketIfNotExist: c.S3.CreateBucketIfNotExist,
		}, resolver)
	default:
		return nil, fmt.Errorf("unsupported versioning service: %s", c.VersioningService)
	}
}

// basepathURL returns the base URL for the configured backend. The s3
// backend resolves keys relative to an s3 root.
func (c *ServerConfig) basepathURL() string {
	if c.VersioningService == "s3" {
		return fmt.Sprintf("s3://%s", c.S3.Bucket)
	}
	return c.Basepath
}

// PingPostgres verifies connectivity to Postgres and optionally sets
// search_path for the session. It fails if the schema (when provided)
// does not exist.
func PingPostgres(databaseURL, schema string) error {
	if databaseURL == "" {
		return errors.New("database_url is required")
	}
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return fmt.Errorf("failed to parse DATABASE_URL: %w", err)
	}
	if schema != "" {
		cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
			_, err := conn.Exec(ctx, fmt.Sprintf("SET search_path TO %s", schema))
			return err
		}
	}
	pool, err := pgxpool.NewWithConfig(context.Background(), cfg)
	if err != nil {
		return fmt.Errorf("failed to create pgx pool: %w", err)
	}
	defer pool.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := pool.Ping(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	return nil
}
