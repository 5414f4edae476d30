package ragmag

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/ragmag/ragmag/infrastructure/imagestore"
	"github.com/ragmag/ragmag/infrastructure/index"
	"github.com/ragmag/ragmag/infrastructure/parser"
	"github.com/ragmag/ragmag/infrastructure/provider"
	"github.com/ragmag/ragmag/internal/config"
)

// defaultTopK is the retrieval count when no option overrides it.
const defaultTopK = 3

// clientConfig holds configuration for Client construction.
type clientConfig struct {
	logger *slog.Logger

	dataDir    string
	dbURL      string
	persistDir string
	imageDir   string
	spoolDir   string

	indexOpen   index.OpenFunc
	redisIndex  *index.RedisConfig
	images      imagestore.Store
	imageFormat config.ImageFormat

	embedder  provider.Embedder
	generator provider.TextGenerator
	docParser parser.DocumentParser

	topK         int
	workerCount  int
	pollInterval time.Duration
}

func newClientConfig() *clientConfig {
	return &clientConfig{
		imageFormat: config.ImageFormatFile,
		topK:        defaultTopK,
		workerCount: 1,
	}
}

// resolvedDirs holds the derived filesystem layout after defaults are
// applied and the directories exist.
type resolvedDirs struct {
	dataDir    string
	dbURL      string
	persistDir string
	imageDir   string
	spoolDir   string
}

func (c *clientConfig) resolveDirs() (resolvedDirs, error) {
	dataDir := c.dataDir
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return resolvedDirs{}, fmt.Errorf("resolve home dir: %w", err)
		}
		dataDir = filepath.Join(home, ".ragmag")
	}

	dirs := resolvedDirs{
		dataDir:    dataDir,
		dbURL:      c.dbURL,
		persistDir: c.persistDir,
		imageDir:   c.imageDir,
		spoolDir:   c.spoolDir,
	}
	if dirs.dbURL == "" {
		dirs.dbURL = "sqlite:///" + filepath.Join(dataDir, "ragmag.db")
	}
	if dirs.persistDir == "" {
		dirs.persistDir = filepath.Join(dataDir, "storage")
	}
	if dirs.imageDir == "" {
		dirs.imageDir = filepath.Join(dataDir, "images")
	}
	if dirs.spoolDir == "" {
		dirs.spoolDir = filepath.Join(dataDir, "uploads")
	}

	for _, dir := range []string{dirs.dataDir, dirs.persistDir, dirs.imageDir, dirs.spoolDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return resolvedDirs{}, fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return dirs, nil
}

// Option configures the Client.
type Option func(*clientConfig)

// WithLogger sets the client logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *clientConfig) {
		c.logger = logger
	}
}

// WithDataDir sets the data directory. The database, index snapshot,
// images and upload spool default to subpaths of it.
func WithDataDir(dir string) Option {
	return func(c *clientConfig) {
		c.dataDir = dir
	}
}

// WithDatabaseURL sets the task-store database URL (sqlite:// or
// postgresql://).
func WithDatabaseURL(url string) Option {
	return func(c *clientConfig) {
		c.dbURL = url
	}
}

// WithLocalIndex stores the index in process with a JSON snapshot under
// dir.
func WithLocalIndex(dir string) Option {
	return func(c *clientConfig) {
		c.persistDir = dir
		c.redisIndex = nil
		c.indexOpen = nil
	}
}

// WithRedisIndex stores the index in Redis vector search.
func WithRedisIndex(cfg index.RedisConfig) Option {
	return func(c *clientConfig) {
		redisCfg := cfg
		c.redisIndex = &redisCfg
		c.indexOpen = nil
	}
}

// WithIndexOpen sets a custom index backend factory.
func WithIndexOpen(open index.OpenFunc) Option {
	return func(c *clientConfig) {
		c.indexOpen = open
	}
}

// WithImageStore sets a custom image store.
func WithImageStore(store imagestore.Store) Option {
	return func(c *clientConfig) {
		c.images = store
	}
}

// WithLocalImages stores page images on the local filesystem under dir.
func WithLocalImages(dir string, format config.ImageFormat) Option {
	return func(c *clientConfig) {
		c.imageDir = dir
		c.imageFormat = format
		c.images = nil
	}
}

// WithOpenAI sets an OpenAI-compatible endpoint for both embeddings and
// answer generation.
func WithOpenAI(apiKey, chatModel, embeddingModel string) Option {
	return func(c *clientConfig) {
		p := provider.NewOpenAIProvider(provider.OpenAIConfig{
			APIKey:         apiKey,
			ChatModel:      chatModel,
			EmbeddingModel: embeddingModel,
		})
		c.embedder = p
		c.generator = p
	}
}

// WithEmbedder sets a custom embedding provider.
func WithEmbedder(e provider.Embedder) Option {
	return func(c *clientConfig) {
		c.embedder = e
	}
}

// WithTextGenerator sets a custom answer-generation provider.
func WithTextGenerator(g provider.TextGenerator) Option {
	return func(c *clientConfig) {
		c.generator = g
	}
}

// WithParser sets a custom document parser.
func WithParser(p parser.DocumentParser) Option {
	return func(c *clientConfig) {
		c.docParser = p
	}
}

// WithTopK sets the default retrieval result count.
func WithTopK(n int) Option {
	return func(c *clientConfig) {
		if n > 0 {
			c.topK = n
		}
	}
}

// WithWorkerCount sets the number of background ingest workers.
func WithWorkerCount(n int) Option {
	return func(c *clientConfig) {
		if n > 0 {
			c.workerCount = n
		}
	}
}

// WithPollInterval sets how often idle ingest workers poll for tasks.
func WithPollInterval(d time.Duration) Option {
	return func(c *clientConfig) {
		c.pollInterval = d
	}
}

// WithSpoolDir sets the directory uploads are spooled to while an ingest
// task is pending.
func WithSpoolDir(dir string) Option {
	return func(c *clientConfig) {
		c.spoolDir = dir
	}
}
