package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/ragmag/ragmag/domain/task"
	"github.com/ragmag/ragmag/infrastructure/parser"
	"github.com/ragmag/ragmag/infrastructure/persistence"
	"github.com/ragmag/ragmag/internal/database"
)

// defaultPollInterval is how often idle workers look for pending tasks.
const defaultPollInterval = 500 * time.Millisecond

// Ingest runs background document ingestion: uploads are spooled to a
// temp file and recorded as persisted tasks, and workers claim tasks,
// parse the PDF and apply the add or update through the lifecycle
// service. Task state is queryable by id the whole way through.
type Ingest struct {
	store        persistence.TaskStore
	documents    *Document
	parser       parser.DocumentParser
	spoolDir     string
	pollInterval time.Duration
	workerCount  int
	logger       *slog.Logger
}

// IngestConfig holds construction parameters for the ingest service.
type IngestConfig struct {
	SpoolDir     string
	PollInterval time.Duration
	WorkerCount  int
}

// NewIngest creates the ingest service.
func NewIngest(store persistence.TaskStore, documents *Document, docParser parser.DocumentParser, cfg IngestConfig, logger *slog.Logger) *Ingest {
	pollInterval := cfg.PollInterval
	if pollInterval == 0 {
		pollInterval = defaultPollInterval
	}
	workerCount := cfg.WorkerCount
	if workerCount <= 0 {
		workerCount = 1
	}
	return &Ingest{
		store:        store,
		documents:    documents,
		parser:       docParser,
		spoolDir:     cfg.SpoolDir,
		pollInterval: pollInterval,
		workerCount:  workerCount,
		logger:       logger,
	}
}

// EnqueueAdd spools the uploaded PDF and records a pending add task for a
// fresh document id. The returned task carries both ids for the 202
// response.
func (s *Ingest) EnqueueAdd(ctx context.Context, documentID, filename string, content io.Reader) (task.Task, error) {
	return s.enqueue(ctx, task.OperationAdd, documentID, filename, content)
}

// EnqueueUpdate spools the uploaded PDF and records a pending update task
// for an existing document id. Existence is verified by the worker, not
// here: the 202 contract defers all heavy work.
func (s *Ingest) EnqueueUpdate(ctx context.Context, documentID, filename string, content io.Reader) (task.Task, error) {
	return s.enqueue(ctx, task.OperationUpdate, documentID, filename, content)
}

func (s *Ingest) enqueue(ctx context.Context, op task.Operation, documentID, filename string, content io.Reader) (task.Task, error) {
	spool, err := os.CreateTemp(s.spoolDir, "upload-*.pdf")
	if err != nil {
		return task.Task{}, fmt.Errorf("create spool file: %w", err)
	}
	if _, err := io.Copy(spool, content); err != nil {
		_ = spool.Close()
		_ = os.Remove(spool.Name())
		return task.Task{}, fmt.Errorf("spool upload: %w", err)
	}
	if err := spool.Close(); err != nil {
		_ = os.Remove(spool.Name())
		return task.Task{}, fmt.Errorf("close spool file: %w", err)
	}

	t := task.New(op, documentID, filename, spool.Name())
	if err := s.store.Save(ctx, t); err != nil {
		_ = os.Remove(spool.Name())
		return task.Task{}, err
	}

	s.logger.Info("ingest task enqueued",
		slog.String("task_id", t.ID()),
		slog.String("operation", string(op)),
		slog.String("document_id", documentID),
		slog.String("filename", filename))
	return t, nil
}

// Task returns the current state of an ingest task.
func (s *Ingest) Task(ctx context.Context, taskID string) (task.Task, error) {
	t, err := s.store.Get(ctx, taskID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return task.Task{}, fmt.Errorf("task %s: %w", taskID, ErrTaskNotFound)
		}
		return task.Task{}, err
	}
	return t, nil
}

// TasksForDocument returns a document's ingest history, newest first.
func (s *Ingest) TasksForDocument(ctx context.Context, documentID string) ([]task.Task, error) {
	return s.store.FindByDocument(ctx, documentID)
}

// PendingCount returns the number of tasks waiting for a worker.
func (s *Ingest) PendingCount(ctx context.Context) (int64, error) {
	return s.store.CountPending(ctx)
}

// Run starts the worker pool and blocks until ctx is cancelled.
func (s *Ingest) Run(ctx context.Context) {
	done := make(chan struct{})
	for i := 0; i < s.workerCount; i++ {
		go func(n int) {
			defer func() { done <- struct{}{} }()
			s.workerLoop(ctx, n)
		}(i)
	}
	for i := 0; i < s.workerCount; i++ {
		<-done
	}
}

func (s *Ingest) workerLoop(ctx context.Context, n int) {
	logger := s.logger.With(slog.Int("worker", n))
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		for {
			claimed, ok, err := s.store.Claim(ctx)
			if err != nil {
				if ctx.Err() == nil {
					logger.Error("claim task", slog.String("error", err.Error()))
				}
				break
			}
			if !ok {
				break
			}
			s.process(ctx, logger, claimed)
		}
	}
}

// process runs one claimed task to a terminal state. The spool file is
// removed on every exit path.
func (s *Ingest) process(ctx context.Context, logger *slog.Logger, t task.Task) {
	defer func() {
		if err := os.Remove(t.InputPath()); err != nil && !os.IsNotExist(err) {
			logger.Warn("failed to remove spool file",
				slog.String("path", t.InputPath()),
				slog.String("error", err.Error()))
		}
	}()

	logger.Info("processing ingest task",
		slog.String("task_id", t.ID()),
		slog.String("operation", string(t.Operation())),
		slog.String("document_id", t.DocumentID()))

	pages, err := s.parser.Parse(ctx, t.InputPath())
	if err != nil {
		s.finish(ctx, logger, t.Failed(fmt.Sprintf("parse: %v", err)))
		return
	}

	switch t.Operation() {
	case task.OperationAdd:
		result, err := s.documents.Add(ctx, t.DocumentID(), t.Filename(), pages)
		if err != nil {
			s.finish(ctx, logger, t.Failed(err.Error()))
			return
		}
		s.finish(ctx, logger, t.Succeeded(result.PageCount, 0))

	case task.OperationUpdate:
		result, err := s.documents.Update(ctx, t.DocumentID(), t.Filename(), pages)
		if err != nil {
			s.finish(ctx, logger, t.Failed(err.Error()))
			return
		}
		s.finish(ctx, logger, t.Succeeded(result.PageCount, result.ImagesDeleted))

	default:
		s.finish(ctx, logger, t.Failed(fmt.Sprintf("unknown operation %q", t.Operation())))
	}
}

func (s *Ingest) finish(ctx context.Context, logger *slog.Logger, t task.Task) {
	if err := s.store.Save(ctx, t); err != nil {
		logger.Error("failed to record task state",
			slog.String("task_id", t.ID()),
			slog.String("state", string(t.State())),
			slog.String("error", err.Error()))
		return
	}
	logger.Info("ingest task finished",
		slog.String("task_id", t.ID()),
		slog.String("state", string(t.State())),
		slog.String("error_message", t.ErrorMessage()))
}
