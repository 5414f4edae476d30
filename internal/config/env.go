// Package config provides application configuration.
package config

import (
	"github.com/kelseyhightower/envconfig"
)

// EnvConfig holds all environment-based configuration. Field names map to
// plain environment variables; nested structs use an underscore delimiter
// (e.g. EMBEDDING_BASE_URL).
type EnvConfig struct {
	// Host is the server host to bind to.
	// Env: HOST (default: 0.0.0.0)
	Host string `envconfig:"HOST" default:"0.0.0.0"`

	// Port is the server port to listen on.
	// Env: PORT (default: 8000)
	Port int `envconfig:"PORT" default:"8000"`

	// LogLevel is the log verbosity level.
	// Env: LOG_LEVEL (default: INFO)
	LogLevel string `envconfig:"LOG_LEVEL" default:"INFO"`

	// LogFormat is the log output format (pretty or json).
	// Env: LOG_FORMAT (default: pretty)
	LogFormat string `envconfig:"LOG_FORMAT" default:"pretty"`

	// DataDir is the data directory path.
	// Env: DATA_DIR
	// Default: ~/.ragmag
	DataDir string `envconfig:"DATA_DIR"`

	// DBURL is the task-store database connection URL.
	// Env: DB_URL
	// Default: sqlite:///{data_dir}/ragmag.db
	DBURL string `envconfig:"DB_URL"`

	// VectorDBType selects the index backend (local or redis).
	// Env: VECTOR_DB_TYPE (default: local)
	VectorDBType string `envconfig:"VECTOR_DB_TYPE" default:"local"`

	// PersistDir is the snapshot directory for the local index backend.
	// Env: PERSIST_DIR
	// Default: {data_dir}/storage
	PersistDir string `envconfig:"PERSIST_DIR"`

	// Redis configures the remote index backend.
	Redis RedisEnv `envconfig:"REDIS"`

	// ImageDir is the root directory for locally stored page images.
	// Env: IMAGE_DIR
	// Default: {data_dir}/images
	ImageDir string `envconfig:"IMAGE_DIR"`

	// ImageStorageType selects the image backend (local, object or inline).
	// Env: IMAGE_STORAGE_TYPE (default: local)
	ImageStorageType string `envconfig:"IMAGE_STORAGE_TYPE" default:"local"`

	// ImageStorageFormat selects the extra encoding for local/object stores:
	// file (no encoding), base64 (inline copy in fragment metadata), or
	// hybrid (small thumbnail only).
	// Env: IMAGE_STORAGE_FORMAT (default: file)
	ImageStorageFormat string `envconfig:"IMAGE_STORAGE_FORMAT" default:"file"`

	// S3 configures the object-storage image backend.
	S3 S3Env `envconfig:"S3"`

	// Embedding configures the embedding provider endpoint.
	Embedding EndpointEnv `envconfig:"EMBEDDING"`

	// LLM configures the answer-generation provider endpoint.
	LLM EndpointEnv `envconfig:"LLM"`

	// Parser configures the external document-parsing service.
	Parser ParserEnv `envconfig:"PARSER"`

	// SimilarityTopK is the default retrieval result count.
	// Env: SIMILARITY_TOP_K (default: 3)
	SimilarityTopK int `envconfig:"SIMILARITY_TOP_K" default:"3"`

	// ChunkSize is the fragment size in characters. Reserved: fragmentation
	// is currently page-granular.
	// Env: CHUNK_SIZE (default: 1024)
	ChunkSize int `envconfig:"CHUNK_SIZE" default:"1024"`

	// ChunkOverlap is the fragment overlap in characters. Reserved.
	// Env: CHUNK_OVERLAP (default: 20)
	ChunkOverlap int `envconfig:"CHUNK_OVERLAP" default:"20"`

	// MaxUploadMB is the maximum accepted upload size in megabytes.
	// Env: MAX_UPLOAD_MB (default: 100)
	MaxUploadMB int `envconfig:"MAX_UPLOAD_MB" default:"100"`

	// WorkerCount is the number of background ingest workers.
	// Env: WORKER_COUNT (default: 1)
	WorkerCount int `envconfig:"WORKER_COUNT" default:"1"`
}

// RedisEnv holds environment configuration for the remote index backend.
type RedisEnv struct {
	// URL is the Redis address (host:port).
	// Env: REDIS_URL
	URL string `envconfig:"URL"`

	// Password is the Redis password.
	// Env: REDIS_PASSWORD
	Password string `envconfig:"PASSWORD"`

	// Collection is the index/collection name.
	// Env: REDIS_COLLECTION (default: ragmag)
	Collection string `envconfig:"COLLECTION" default:"ragmag"`
}

// S3Env holds environment configuration for S3-compatible object storage.
type S3Env struct {
	// Endpoint is the S3-compatible endpoint (host:port), required for R2
	// and MinIO; empty selects AWS S3 via region.
	// Env: S3_ENDPOINT
	Endpoint string `envconfig:"ENDPOINT"`

	// Bucket is the bucket name.
	// Env: S3_BUCKET
	Bucket string `envconfig:"BUCKET"`

	// AccessKey is the access key id.
	// Env: S3_ACCESS_KEY
	AccessKey string `envconfig:"ACCESS_KEY"`

	// SecretKey is the secret access key.
	// Env: S3_SECRET_KEY
	SecretKey string `envconfig:"SECRET_KEY"`

	// Region is the bucket region.
	// Env: S3_REGION (default: us-east-1)
	Region string `envconfig:"REGION" default:"us-east-1"`

	// UseSSL controls TLS for custom endpoints.
	// Env: S3_USE_SSL (default: true)
	UseSSL bool `envconfig:"USE_SSL" default:"true"`
}

// EndpointEnv holds environment configuration for an AI endpoint.
type EndpointEnv struct {
	// BaseURL is the base URL for the endpoint.
	// Env: *_BASE_URL
	BaseURL string `envconfig:"BASE_URL"`

	// Model is the model identifier.
	// Env: *_MODEL
	Model string `envconfig:"MODEL"`

	// APIKey is the API key for authentication.
	// Env: *_API_KEY
	APIKey string `envconfig:"API_KEY"`

	// Timeout is the request timeout in seconds.
	// Env: *_TIMEOUT (default: 60)
	Timeout float64 `envconfig:"TIMEOUT" default:"60"`

	// MaxRetries is the maximum number of retries.
	// Env: *_MAX_RETRIES (default: 5)
	MaxRetries int `envconfig:"MAX_RETRIES" default:"5"`
}

// ParserEnv holds environment configuration for the external parsing service.
type ParserEnv struct {
	// BaseURL is the parsing service base URL.
	// Env: PARSER_BASE_URL
	BaseURL string `envconfig:"BASE_URL"`

	// APIKey is the API key for the parsing service.
	// Env: PARSER_API_KEY
	APIKey string `envconfig:"API_KEY"`

	// Timeout is the end-to-end parse timeout in seconds.
	// Env: PARSER_TIMEOUT (default: 600)
	Timeout float64 `envconfig:"TIMEOUT" default:"600"`
}

// LoadFromEnv loads configuration from environment variables.
func LoadFromEnv() (EnvConfig, error) {
	var cfg EnvConfig
	if err := envconfig.Process("", &cfg); err != nil {
		return EnvConfig{}, err
	}
	return cfg, nil
}
