// Package ragmag provides a library for indexing PDF documents and
// answering questions over them.
//
// Documents are parsed into page fragments, embedded and stored in a
// vector index (in-process with a JSON snapshot, or Redis). Page images
// are kept alongside the fragments and returned as provenance with every
// answer.
//
// Basic usage:
//
//	client, err := ragmag.New(
//	    ragmag.WithDataDir(".ragmag"),
//	    ragmag.WithOpenAI(os.Getenv("OPENAI_API_KEY"), "gpt-4o-mini", "text-embedding-3-small"),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	// Index a document
//	task, err := client.Ingest.EnqueueAdd(ctx, document.NewID(), "manual.pdf", file)
//
//	// Ask a question
//	answer, err := client.Query.Ask(ctx, "how do I reset the device?", 0)
package ragmag

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/ragmag/ragmag/application/service"
	"github.com/ragmag/ragmag/infrastructure/imagestore"
	"github.com/ragmag/ragmag/infrastructure/index"
	"github.com/ragmag/ragmag/infrastructure/parser"
	"github.com/ragmag/ragmag/infrastructure/persistence"
	"github.com/ragmag/ragmag/infrastructure/provider"
	"github.com/ragmag/ragmag/internal/database"
	"github.com/ragmag/ragmag/internal/metrics"
)

// ErrNoEmbedder is returned by New when no embedding provider is
// configured. Every index mutation and query needs one.
var ErrNoEmbedder = errors.New("no embedding provider configured")

// ErrClientClosed is returned when the client is used after Close.
var ErrClientClosed = errors.New("client is closed")

// Client is the main entry point for the ragmag library. The background
// ingest workers start automatically on creation.
//
// Access resources via struct fields:
//
//	client.Documents.List(ctx)
//	client.Ingest.EnqueueAdd(ctx, id, filename, file)
//	client.Query.Ask(ctx, "question", 0)
type Client struct {
	Documents *service.Document
	Ingest    *service.Ingest
	Query     *service.Query

	db      database.Database
	manager *index.Manager
	images  imagestore.Store
	logger  *slog.Logger

	workerCancel context.CancelFunc
	workerDone   chan struct{}
	closed       atomic.Bool
}

// New creates a Client with the given options and starts the ingest
// worker pool.
func New(opts ...Option) (*Client, error) {
	cfg := newClientConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	logger := cfg.logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.embedder == nil {
		return nil, ErrNoEmbedder
	}

	dirs, err := cfg.resolveDirs()
	if err != nil {
		return nil, err
	}

	ctx := context.Background()
	db, err := database.New(ctx, dirs.dbURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := persistence.AutoMigrate(db); err != nil {
		errClose := db.Close()
		return nil, errors.Join(fmt.Errorf("auto migrate: %w", err), errClose)
	}

	open := cfg.indexOpen
	if open == nil {
		if cfg.redisIndex != nil {
			open = index.RedisOpen(*cfg.redisIndex, logger)
		} else {
			open = index.LocalOpen(dirs.persistDir, logger)
		}
	}
	manager := index.NewManager(open, logger)

	images := cfg.images
	if images == nil {
		images = imagestore.NewLocalStore(dirs.imageDir, cfg.imageFormat, logger)
	}

	generator := cfg.generator
	if generator == nil {
		generator = unconfiguredGenerator{}
	}
	docParser := cfg.docParser
	if docParser == nil {
		docParser = unconfiguredParser{}
	}

	metrics.Register()

	documents := service.NewDocument(manager, images, cfg.embedder, logger)
	query := service.NewQuery(manager, cfg.embedder, generator, cfg.topK, logger)
	ingest := service.NewIngest(persistence.NewTaskStore(db), documents, docParser, service.IngestConfig{
		SpoolDir:     dirs.spoolDir,
		PollInterval: cfg.pollInterval,
		WorkerCount:  cfg.workerCount,
	}, logger)

	client := &Client{
		Documents: documents,
		Ingest:    ingest,
		Query:     query,
		db:        db,
		manager:   manager,
		images:    images,
		logger:    logger,
	}

	workerCtx, cancel := context.WithCancel(context.Background())
	client.workerCancel = cancel
	client.workerDone = make(chan struct{})
	go func() {
		defer close(client.workerDone)
		ingest.Run(workerCtx)
	}()

	return client, nil
}

// Close stops the ingest workers and releases the index and database
// handles.
func (c *Client) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return ErrClientClosed
	}

	c.workerCancel()
	<-c.workerDone

	var errs []error
	if err := c.manager.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close index: %w", err))
	}
	if err := c.db.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close database: %w", err))
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	c.logger.Info("ragmag client closed")
	return nil
}

// Logger returns the client's logger.
func (c *Client) Logger() *slog.Logger {
	return c.logger
}

// unconfiguredGenerator stands in when no generation provider is set, so
// query requests fail with a typed error instead of a nil dereference.
type unconfiguredGenerator struct{}

func (unconfiguredGenerator) Generate(context.Context, []provider.Message) (string, error) {
	return "", fmt.Errorf("text generation: %w", provider.ErrNotConfigured)
}

// unconfiguredParser stands in when no parsing service is set; enqueued
// tasks fail with a typed error the task record can carry.
type unconfiguredParser struct{}

func (unconfiguredParser) Parse(context.Context, string) ([]parser.Page, error) {
	return nil, fmt.Errorf("document parsing: %w", provider.ErrNotConfigured)
}
