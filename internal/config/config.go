package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ragmag/ragmag/internal/log"
)

// IndexKind selects the index backend.
type IndexKind string

// IndexKind values.
const (
	IndexLocal IndexKind = "local"
	IndexRedis IndexKind = "redis"
)

// ImageKind selects the image storage backend.
type ImageKind string

// ImageKind values.
const (
	ImageLocal  ImageKind = "local"
	ImageObject ImageKind = "object"
	ImageInline ImageKind = "inline"
)

// ImageFormat selects the extra encoding produced by the image store.
type ImageFormat string

// ImageFormat values.
const (
	ImageFormatFile   ImageFormat = "file"
	ImageFormatBase64 ImageFormat = "base64"
	ImageFormatHybrid ImageFormat = "hybrid"
)

// Endpoint holds resolved configuration for an AI endpoint.
type Endpoint struct {
	BaseURL    string
	Model      string
	APIKey     string
	Timeout    time.Duration
	MaxRetries int
}

// IsConfigured reports whether the endpoint has a model and key.
func (e Endpoint) IsConfigured() bool {
	return e.Model != "" && e.APIKey != ""
}

// AppConfig holds the resolved application configuration.
type AppConfig struct {
	host      string
	port      int
	logLevel  string
	logFormat log.Format

	dataDir    string
	dbURL      string
	persistDir string
	imageDir   string

	indexKind       IndexKind
	redisURL        string
	redisPassword   string
	redisCollection string

	imageKind   ImageKind
	imageFormat ImageFormat
	s3          S3Env

	embedding Endpoint
	llm       Endpoint
	parser    Endpoint

	similarityTopK int
	chunkSize      int
	chunkOverlap   int
	maxUploadBytes int64
	workerCount    int
}

// Host returns the bind host.
func (c AppConfig) Host() string { return c.host }

// Port returns the bind port.
func (c AppConfig) Port() int { return c.port }

// Addr returns the host:port bind address.
func (c AppConfig) Addr() string { return fmt.Sprintf("%s:%d", c.host, c.port) }

// LogLevel returns the log level name.
func (c AppConfig) LogLevel() string { return c.logLevel }

// LogFormat returns the log output format.
func (c AppConfig) LogFormat() log.Format { return c.logFormat }

// DataDir returns the data directory.
func (c AppConfig) DataDir() string { return c.dataDir }

// DBURL returns the task-store database URL.
func (c AppConfig) DBURL() string { return c.dbURL }

// PersistDir returns the local index snapshot directory.
func (c AppConfig) PersistDir() string { return c.persistDir }

// ImageDir returns the local image root directory.
func (c AppConfig) ImageDir() string { return c.imageDir }

// IndexKind returns the configured index backend.
func (c AppConfig) IndexKind() IndexKind { return c.indexKind }

// RedisURL returns the Redis address for the remote backend.
func (c AppConfig) RedisURL() string { return c.redisURL }

// RedisPassword returns the Redis password.
func (c AppConfig) RedisPassword() string { return c.redisPassword }

// RedisCollection returns the remote collection name.
func (c AppConfig) RedisCollection() string { return c.redisCollection }

// ImageKind returns the configured image backend.
func (c AppConfig) ImageKind() ImageKind { return c.imageKind }

// ImageFormat returns the configured extra image encoding.
func (c AppConfig) ImageFormat() ImageFormat { return c.imageFormat }

// S3 returns the object storage settings.
func (c AppConfig) S3() S3Env { return c.s3 }

// Embedding returns the embedding endpoint.
func (c AppConfig) Embedding() Endpoint { return c.embedding }

// LLM returns the generation endpoint.
func (c AppConfig) LLM() Endpoint { return c.llm }

// Parser returns the parsing service endpoint.
func (c AppConfig) Parser() Endpoint { return c.parser }

// SimilarityTopK returns the default retrieval result count.
func (c AppConfig) SimilarityTopK() int { return c.similarityTopK }

// ChunkSize returns the reserved fragment size parameter.
func (c AppConfig) ChunkSize() int { return c.chunkSize }

// ChunkOverlap returns the reserved fragment overlap parameter.
func (c AppConfig) ChunkOverlap() int { return c.chunkOverlap }

// MaxUploadBytes returns the upload size bound in bytes.
func (c AppConfig) MaxUploadBytes() int64 { return c.maxUploadBytes }

// WorkerCount returns the number of background ingest workers.
func (c AppConfig) WorkerCount() int { return c.workerCount }

// ToAppConfig resolves an EnvConfig into an AppConfig, filling in derived
// defaults (data-dir-relative paths, sqlite URL).
func (e EnvConfig) ToAppConfig() (AppConfig, error) {
	dataDir := e.DataDir
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return AppConfig{}, fmt.Errorf("resolve home dir: %w", err)
		}
		dataDir = filepath.Join(home, ".ragmag")
	}

	dbURL := e.DBURL
	if dbURL == "" {
		dbURL = "sqlite:///" + filepath.Join(dataDir, "ragmag.db")
	}

	persistDir := e.PersistDir
	if persistDir == "" {
		persistDir = filepath.Join(dataDir, "storage")
	}

	imageDir := e.ImageDir
	if imageDir == "" {
		imageDir = filepath.Join(dataDir, "images")
	}

	cfg := AppConfig{
		host:            e.Host,
		port:            e.Port,
		logLevel:        e.LogLevel,
		logFormat:       log.ParseFormat(e.LogFormat),
		dataDir:         dataDir,
		dbURL:           dbURL,
		persistDir:      persistDir,
		imageDir:        imageDir,
		indexKind:       IndexKind(e.VectorDBType),
		redisURL:        e.Redis.URL,
		redisPassword:   e.Redis.Password,
		redisCollection: e.Redis.Collection,
		imageKind:       ImageKind(e.ImageStorageType),
		imageFormat:     ImageFormat(e.ImageStorageFormat),
		s3:              e.S3,
		embedding:       e.Embedding.toEndpoint(),
		llm:             e.LLM.toEndpoint(),
		parser:          e.Parser.toEndpoint(),
		similarityTopK:  e.SimilarityTopK,
		chunkSize:       e.ChunkSize,
		chunkOverlap:    e.ChunkOverlap,
		maxUploadBytes:  int64(e.MaxUploadMB) * 1024 * 1024,
		workerCount:     e.WorkerCount,
	}

	return cfg, cfg.Validate()
}

func (e EndpointEnv) toEndpoint() Endpoint {
	return Endpoint{
		BaseURL:    e.BaseURL,
		Model:      e.Model,
		APIKey:     e.APIKey,
		Timeout:    time.Duration(e.Timeout * float64(time.Second)),
		MaxRetries: e.MaxRetries,
	}
}

func (p ParserEnv) toEndpoint() Endpoint {
	return Endpoint{
		BaseURL: p.BaseURL,
		APIKey:  p.APIKey,
		Timeout: time.Duration(p.Timeout * float64(time.Second)),
	}
}

// Validate checks backend selections and their required settings.
func (c AppConfig) Validate() error {
	var errs []error

	switch c.indexKind {
	case IndexLocal:
	case IndexRedis:
		if c.redisURL == "" {
			errs = append(errs, errors.New("REDIS_URL is required when VECTOR_DB_TYPE=redis"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown VECTOR_DB_TYPE: %s", c.indexKind))
	}

	switch c.imageKind {
	case ImageLocal, ImageInline:
	case ImageObject:
		if c.s3.Bucket == "" {
			errs = append(errs, errors.New("S3_BUCKET is required when IMAGE_STORAGE_TYPE=object"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown IMAGE_STORAGE_TYPE: %s", c.imageKind))
	}

	switch c.imageFormat {
	case ImageFormatFile, ImageFormatBase64, ImageFormatHybrid:
	default:
		errs = append(errs, fmt.Errorf("unknown IMAGE_STORAGE_FORMAT: %s", c.imageFormat))
	}

	return errors.Join(errs...)
}

// PrepareDirs creates the directories the configuration points at.
func (c AppConfig) PrepareDirs() error {
	for _, dir := range []string{c.dataDir, c.persistDir, c.imageDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return nil
}
