package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ragmag/ragmag/domain/document"
	"github.com/ragmag/ragmag/infrastructure/imagestore"
	"github.com/ragmag/ragmag/infrastructure/index"
	"github.com/ragmag/ragmag/infrastructure/provider"
)

// fakeGenerator records the messages it is asked to complete.
type fakeGenerator struct {
	answer   string
	err      error
	messages []provider.Message
}

func (f *fakeGenerator) Generate(_ context.Context, messages []provider.Message) (string, error) {
	f.messages = messages
	if f.err != nil {
		return "", f.err
	}
	return f.answer, nil
}

type queryEnv struct {
	svc       *Query
	manager   *index.Manager
	embedder  *fakeEmbedder
	generator *fakeGenerator
}

func newQueryEnv(t *testing.T, defaultTopK int) *queryEnv {
	t.Helper()
	logger := discardLogger()
	indexDir := t.TempDir()
	manager := index.NewManager(func(ctx context.Context, fresh bool) (index.Backend, error) {
		return index.NewLocalBackend(indexDir, logger)
	}, logger)
	t.Cleanup(func() { _ = manager.Close() })

	embedder := &fakeEmbedder{vector: []float64{1, 0, 0}}
	generator := &fakeGenerator{answer: "the answer"}
	return &queryEnv{
		svc:       NewQuery(manager, embedder, generator, defaultTopK, logger),
		manager:   manager,
		embedder:  embedder,
		generator: generator,
	}
}

// seedFragment indexes one single-page document with a chosen vector, so
// retrieval order is fully determined by the test.
func (e *queryEnv) seedFragment(t *testing.T, docID, filename, text string, vector []float64) {
	t.Helper()
	fragment := document.NewFragment(docID, filename, 1, text, document.Asset{})
	err := e.manager.WithMutation(context.Background(), func(b index.Backend) error {
		return b.Insert(context.Background(), []document.Fragment{fragment}, [][]float64{vector})
	})
	require.NoError(t, err)
}

func TestQuery_AskEmptyQuestion(t *testing.T) {
	env := newQueryEnv(t, 5)

	_, err := env.svc.Ask(context.Background(), "   ", 5)
	require.ErrorIs(t, err, ErrValidation)
	assert.Zero(t, env.embedder.calls)
	assert.Nil(t, env.generator.messages)
}

func TestQuery_Ask(t *testing.T) {
	env := newQueryEnv(t, 5)
	longText := strings.Repeat("w", 250)
	env.seedFragment(t, "doc-1", "manual.pdf", longText, []float64{1, 0, 0})
	env.seedFragment(t, "doc-2", "other.pdf", "unrelated content", []float64{0, 1, 0})

	answer, err := env.svc.Ask(context.Background(), "how do I install it?", 2)
	require.NoError(t, err)
	assert.Equal(t, "the answer", answer.Text)
	assert.Positive(t, answer.ProcessingTime)

	require.Len(t, answer.Sources, 2)
	best := answer.Sources[0]
	assert.Equal(t, "doc-1", best.DocumentID)
	assert.Equal(t, "manual.pdf", best.Filename)
	assert.Equal(t, 1, best.PageNumber)
	assert.Equal(t, imagestore.PageKey("doc-1", 1), best.ImageRef)
	assert.InDelta(t, 1.0, best.Score, 1e-9)
	assert.Greater(t, best.Score, answer.Sources[1].Score)

	// The provenance preview is bounded, longer than the detail preview.
	assert.True(t, strings.HasSuffix(best.Preview, "..."))
	assert.Len(t, []rune(best.Preview), provenancePreviewLength+3)

	// The prompt carries the retrieved context and the question.
	require.Len(t, env.generator.messages, 2)
	assert.Equal(t, "system", env.generator.messages[0].Role())
	user := env.generator.messages[1].Content()
	assert.Contains(t, user, "manual.pdf")
	assert.Contains(t, user, "Question: how do I install it?")
}

func TestQuery_AskDefaultTopK(t *testing.T) {
	env := newQueryEnv(t, 1)
	env.seedFragment(t, "doc-1", "a.pdf", "first", []float64{1, 0, 0})
	env.seedFragment(t, "doc-2", "b.pdf", "second", []float64{0.9, 0.1, 0})

	answer, err := env.svc.Ask(context.Background(), "question", 0)
	require.NoError(t, err)
	assert.Len(t, answer.Sources, 1)
}

func TestQuery_AskEmbedFailure(t *testing.T) {
	env := newQueryEnv(t, 5)
	env.embedder.err = errors.New("provider down")

	_, err := env.svc.Ask(context.Background(), "question", 5)
	require.Error(t, err)
	assert.Nil(t, env.generator.messages)
}

func TestQuery_AskGenerateFailure(t *testing.T) {
	env := newQueryEnv(t, 5)
	env.seedFragment(t, "doc-1", "a.pdf", "text", []float64{1, 0, 0})
	env.generator.err = errors.New("model overloaded")

	_, err := env.svc.Ask(context.Background(), "question", 5)
	require.Error(t, err)
}
