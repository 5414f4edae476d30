package service

import (
	"bytes"
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ragmag/ragmag/domain/task"
	"github.com/ragmag/ragmag/infrastructure/parser"
	"github.com/ragmag/ragmag/infrastructure/persistence"
	"github.com/ragmag/ragmag/internal/database"
)

// fakeParser returns canned pages and records the path it was given.
type fakeParser struct {
	pages    []parser.Page
	err      error
	lastPath string
}

func (f *fakeParser) Parse(_ context.Context, pdfPath string) ([]parser.Page, error) {
	f.lastPath = pdfPath
	if f.err != nil {
		return nil, f.err
	}
	return f.pages, nil
}

type ingestEnv struct {
	ingest    *Ingest
	documents *documentEnv
	parser    *fakeParser
	store     persistence.TaskStore
}

func newIngestEnv(t *testing.T) *ingestEnv {
	t.Helper()
	db, err := database.New(context.Background(), "sqlite::memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, persistence.AutoMigrate(db))

	documents := newDocumentEnv(t)
	docParser := &fakeParser{pages: []parser.Page{testPage(1, "one"), testPage(2, "two")}}
	store := persistence.NewTaskStore(db)
	ingest := NewIngest(store, documents.svc, docParser, IngestConfig{
		SpoolDir:     t.TempDir(),
		PollInterval: 10 * time.Millisecond,
		WorkerCount:  2,
	}, discardLogger())
	return &ingestEnv{ingest: ingest, documents: documents, parser: docParser, store: store}
}

// startWorkers runs the worker pool until the test ends.
func (e *ingestEnv) startWorkers(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		e.ingest.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

// waitTerminal polls until the task reaches a terminal state.
func (e *ingestEnv) waitTerminal(t *testing.T, taskID string) task.Task {
	t.Helper()
	var got task.Task
	require.Eventually(t, func() bool {
		current, err := e.ingest.Task(context.Background(), taskID)
		if err != nil {
			return false
		}
		got = current
		return current.State().IsTerminal()
	}, 5*time.Second, 10*time.Millisecond)
	return got
}

func TestIngest_EnqueueSpoolsUpload(t *testing.T) {
	env := newIngestEnv(t)
	ctx := context.Background()

	enqueued, err := env.ingest.EnqueueAdd(ctx, "doc-1", "manual.pdf", bytes.NewReader([]byte("%PDF-1.7 payload")))
	require.NoError(t, err)
	assert.Equal(t, task.StatePending, enqueued.State())
	assert.Equal(t, task.OperationAdd, enqueued.Operation())

	data, err := os.ReadFile(enqueued.InputPath())
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.7 payload", string(data))

	got, err := env.ingest.Task(ctx, enqueued.ID())
	require.NoError(t, err)
	assert.Equal(t, enqueued.ID(), got.ID())
}

func TestIngest_TaskUnknown(t *testing.T) {
	env := newIngestEnv(t)

	_, err := env.ingest.Task(context.Background(), "no-such-task")
	require.ErrorIs(t, err, ErrTaskNotFound)
}

func TestIngest_WorkerProcessesAdd(t *testing.T) {
	env := newIngestEnv(t)
	env.startWorkers(t)
	ctx := context.Background()

	enqueued, err := env.ingest.EnqueueAdd(ctx, "doc-1", "manual.pdf", bytes.NewReader([]byte("pdf")))
	require.NoError(t, err)

	done := env.waitTerminal(t, enqueued.ID())
	assert.Equal(t, task.StateSucceeded, done.State())
	assert.Equal(t, 2, done.PageCount())
	assert.Empty(t, done.ErrorMessage())

	// The worker parsed the spool file and removed it afterwards.
	assert.Equal(t, enqueued.InputPath(), env.parser.lastPath)
	_, err = os.Stat(enqueued.InputPath())
	assert.True(t, os.IsNotExist(err))

	detail, err := env.documents.svc.Get(ctx, "doc-1")
	require.NoError(t, err)
	assert.Len(t, detail.Pages, 2)
}

func TestIngest_WorkerProcessesUpdate(t *testing.T) {
	env := newIngestEnv(t)
	ctx := context.Background()

	_, err := env.documents.svc.Add(ctx, "doc-1", "v1.pdf", []parser.Page{testPage(1, "old one"), testPage(2, "old two")})
	require.NoError(t, err)

	env.parser.pages = []parser.Page{testPage(1, "new one")}
	env.startWorkers(t)

	enqueued, err := env.ingest.EnqueueUpdate(ctx, "doc-1", "v2.pdf", bytes.NewReader([]byte("pdf")))
	require.NoError(t, err)

	done := env.waitTerminal(t, enqueued.ID())
	assert.Equal(t, task.StateSucceeded, done.State())
	assert.Equal(t, 1, done.PageCount())
	assert.Equal(t, 2, done.ImagesDeleted())

	detail, err := env.documents.svc.Get(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, "v2.pdf", detail.Filename)
	assert.Len(t, detail.Pages, 1)
}

func TestIngest_WorkerRecordsParseFailure(t *testing.T) {
	env := newIngestEnv(t)
	env.parser.err = errors.New("corrupt file")
	env.startWorkers(t)

	enqueued, err := env.ingest.EnqueueAdd(context.Background(), "doc-1", "broken.pdf", bytes.NewReader([]byte("pdf")))
	require.NoError(t, err)

	done := env.waitTerminal(t, enqueued.ID())
	assert.Equal(t, task.StateFailed, done.State())
	assert.Contains(t, done.ErrorMessage(), "corrupt file")

	// The spool file is removed on failure too.
	_, err = os.Stat(enqueued.InputPath())
	assert.True(t, os.IsNotExist(err))

	// Nothing was indexed.
	count, err := env.documents.svc.Count(context.Background())
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestIngest_WorkerRecordsUpdateOfUnknownDocument(t *testing.T) {
	env := newIngestEnv(t)
	env.startWorkers(t)

	enqueued, err := env.ingest.EnqueueUpdate(context.Background(), "no-such-doc", "a.pdf", bytes.NewReader([]byte("pdf")))
	require.NoError(t, err)

	done := env.waitTerminal(t, enqueued.ID())
	assert.Equal(t, task.StateFailed, done.State())
	assert.Contains(t, done.ErrorMessage(), "not found")
}
