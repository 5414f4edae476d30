package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/ragmag/ragmag"
	"github.com/ragmag/ragmag/infrastructure/api"
	apimiddleware "github.com/ragmag/ragmag/infrastructure/api/middleware"
	v1 "github.com/ragmag/ragmag/infrastructure/api/v1"
	"github.com/ragmag/ragmag/infrastructure/imagestore"
	"github.com/ragmag/ragmag/infrastructure/index"
	"github.com/ragmag/ragmag/infrastructure/parser"
	"github.com/ragmag/ragmag/infrastructure/provider"
	"github.com/ragmag/ragmag/internal/config"
	"github.com/ragmag/ragmag/internal/log"
)

func serveCmd() *cobra.Command {
	var (
		envFile string
		host    string
		port    int
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		Long: `Start the HTTP API server.

Configuration is loaded in the following order (later sources override earlier):
  1. Default values
  2. .env file (if --env-file specified or .env exists in current directory)
  3. Environment variables
  4. Command line flags

Environment variables:
  HOST                  Server host to bind to (default: 0.0.0.0)
  PORT                  Server port to listen on (default: 8000)
  DATA_DIR              Data directory (default: ~/.ragmag)
  DB_URL                Task database URL (default: sqlite:///{data_dir}/ragmag.db)
  LOG_LEVEL             Log level: DEBUG, INFO, WARN, ERROR (default: INFO)
  LOG_FORMAT            Log format: pretty, json (default: pretty)

  VECTOR_DB_TYPE        Index backend: local, redis (default: local)
  PERSIST_DIR           Local index snapshot directory (default: {data_dir}/storage)
  REDIS_URL             Redis address for the redis backend
  REDIS_PASSWORD        Redis password
  REDIS_COLLECTION      Redis collection name (default: ragmag)

  IMAGE_STORAGE_TYPE    Image backend: local, object, inline (default: local)
  IMAGE_STORAGE_FORMAT  Extra encoding: file, base64, hybrid (default: file)
  IMAGE_DIR             Local image root (default: {data_dir}/images)
  S3_*                  Object storage settings (ENDPOINT, BUCKET, ACCESS_KEY,
                        SECRET_KEY, REGION, USE_SSL)

  EMBEDDING_*           Embedding endpoint (BASE_URL, MODEL, API_KEY, TIMEOUT,
                        MAX_RETRIES) -- required
  LLM_*                 Generation endpoint (same fields)
  PARSER_*              Parsing service (BASE_URL, API_KEY, TIMEOUT)

  SIMILARITY_TOP_K      Default retrieval count (default: 3)
  MAX_UPLOAD_MB         Upload size bound in megabytes (default: 100)
  WORKER_COUNT          Background ingest workers (default: 1)`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(envFile, host, port)
		},
	}

	cmd.Flags().StringVar(&envFile, "env-file", "", "Path to .env file (default: .env in current directory)")
	cmd.Flags().StringVar(&host, "host", "", "Server host to bind to")
	cmd.Flags().IntVar(&port, "port", 0, "Server port to listen on")

	return cmd
}

func runServe(envFile, host string, port int) error {
	cfg, err := config.Load(envFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// Flags take precedence over env vars.
	addr := cfg.Addr()
	if host != "" || port != 0 {
		h := cfg.Host()
		if host != "" {
			h = host
		}
		p := cfg.Port()
		if port != 0 {
			p = port
		}
		addr = fmt.Sprintf("%s:%d", h, p)
	}

	if err := cfg.PrepareDirs(); err != nil {
		return fmt.Errorf("prepare directories: %w", err)
	}

	logger := log.New(cfg.LogFormat(), cfg.LogLevel())

	opts, err := clientOptions(cfg, logger)
	if err != nil {
		return err
	}

	logger.Info("starting ragmag",
		slog.String("version", version),
		slog.String("index_backend", string(cfg.IndexKind())),
		slog.String("image_backend", string(cfg.ImageKind())),
		slog.String("image_format", string(cfg.ImageFormat())),
		slog.String("data_dir", cfg.DataDir()),
		slog.Int("workers", cfg.WorkerCount()))

	client, err := ragmag.New(opts...)
	if err != nil {
		return fmt.Errorf("create ragmag client: %w", err)
	}
	defer func() {
		if err := client.Close(); err != nil {
			logger.Error("failed to close ragmag client", slog.Any("error", err))
		}
	}()

	server := api.NewServer(addr, logger)
	router := server.Router()
	router.Use(apimiddleware.Logging(logger))

	router.Mount("/api/v1/documents", v1.NewDocumentsRouter(client, cfg.MaxUploadBytes()).Routes())
	router.Mount("/api/v1/query", v1.NewQueryRouter(client).Routes())
	router.Mount("/api/v1/tasks", v1.NewTasksRouter(client).Routes())
	router.Mount("/api/v1/images", v1.NewImagesRouter(client).Routes())

	router.Handle("/metrics", promhttp.Handler())
	router.Get("/health", v1.HealthHandler(client))
	router.Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = fmt.Fprintf(w, `{"name":"ragmag","version":"%s"}`, version)
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		logger.Info("shutting down server")
		cancel()
		if err := server.Shutdown(ctx); err != nil {
			logger.Error("shutdown error", slog.Any("error", err))
		}
	}()

	if err := server.Start(); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// clientOptions maps the resolved configuration onto client options.
func clientOptions(cfg config.AppConfig, logger *slog.Logger) ([]ragmag.Option, error) {
	opts := []ragmag.Option{
		ragmag.WithLogger(logger),
		ragmag.WithDataDir(cfg.DataDir()),
		ragmag.WithDatabaseURL(cfg.DBURL()),
		ragmag.WithTopK(cfg.SimilarityTopK()),
		ragmag.WithWorkerCount(cfg.WorkerCount()),
	}

	switch cfg.IndexKind() {
	case config.IndexRedis:
		opts = append(opts, ragmag.WithRedisIndex(index.RedisConfig{
			Addr:       cfg.RedisURL(),
			Password:   cfg.RedisPassword(),
			Collection: cfg.RedisCollection(),
		}))
	default:
		opts = append(opts, ragmag.WithLocalIndex(cfg.PersistDir()))
	}

	switch cfg.ImageKind() {
	case config.ImageObject:
		store, err := imagestore.NewObjectStore(cfg.S3(), cfg.ImageFormat(), logger)
		if err != nil {
			return nil, fmt.Errorf("object image store: %w", err)
		}
		opts = append(opts, ragmag.WithImageStore(store))
	case config.ImageInline:
		opts = append(opts, ragmag.WithImageStore(imagestore.NewInlineStore()))
	default:
		opts = append(opts, ragmag.WithLocalImages(cfg.ImageDir(), cfg.ImageFormat()))
	}

	embedding := cfg.Embedding()
	if !embedding.IsConfigured() {
		return nil, fmt.Errorf("EMBEDDING_MODEL and EMBEDDING_API_KEY are required")
	}
	opts = append(opts, ragmag.WithEmbedder(provider.NewOpenAIProvider(provider.OpenAIConfig{
		APIKey:         embedding.APIKey,
		BaseURL:        embedding.BaseURL,
		EmbeddingModel: embedding.Model,
		Timeout:        embedding.Timeout,
		MaxRetries:     embedding.MaxRetries,
	})))

	if llm := cfg.LLM(); llm.IsConfigured() {
		opts = append(opts, ragmag.WithTextGenerator(provider.NewOpenAIProvider(provider.OpenAIConfig{
			APIKey:     llm.APIKey,
			BaseURL:    llm.BaseURL,
			ChatModel:  llm.Model,
			Timeout:    llm.Timeout,
			MaxRetries: llm.MaxRetries,
		})))
	}

	if parserCfg := cfg.Parser(); parserCfg.BaseURL != "" {
		opts = append(opts, ragmag.WithParser(parser.NewClient(parser.ClientConfig{
			BaseURL: parserCfg.BaseURL,
			APIKey:  parserCfg.APIKey,
			Timeout: parserCfg.Timeout,
		}, logger)))
	}

	return opts, nil
}
