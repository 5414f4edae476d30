package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ragmag/ragmag/domain/document"
	"github.com/ragmag/ragmag/infrastructure/imagestore"
	"github.com/ragmag/ragmag/infrastructure/index"
	"github.com/ragmag/ragmag/infrastructure/provider"
	"github.com/ragmag/ragmag/internal/metrics"
)

// provenancePreviewLength is the rune bound for source previews in query
// responses. Longer than the document-detail preview so the source is
// recognizable next to the answer.
const provenancePreviewLength = 200

const systemPrompt = "You are a helpful assistant answering questions about indexed documents. " +
	"Answer using only the provided context. " +
	"If the context does not contain the answer, say so instead of guessing."

// Source is one retrieved fragment backing an answer.
type Source struct {
	DocumentID string
	Filename   string
	PageNumber int
	ImageRef   string
	Score      float64
	Preview    string
}

// Answer is the result of a query: the generated text, its sources and
// the end-to-end processing time.
type Answer struct {
	Text           string
	Sources        []Source
	ProcessingTime time.Duration
}

// Query answers questions over the indexed documents: embed the question,
// retrieve the nearest fragments, and generate an answer from them.
type Query struct {
	manager   *index.Manager
	embedder  provider.Embedder
	generator provider.TextGenerator
	topK      int
	logger    *slog.Logger
}

// NewQuery creates the query service. topK is the default retrieval count
// when the request does not specify one.
func NewQuery(manager *index.Manager, embedder provider.Embedder, generator provider.TextGenerator, topK int, logger *slog.Logger) *Query {
	return &Query{
		manager:   manager,
		embedder:  embedder,
		generator: generator,
		topK:      topK,
		logger:    logger,
	}
}

// Ask runs one retrieval-augmented query. topK <= 0 selects the
// configured default.
func (s *Query) Ask(ctx context.Context, question string, topK int) (Answer, error) {
	start := time.Now()

	if strings.TrimSpace(question) == "" {
		return Answer{}, fmt.Errorf("empty question: %w", ErrValidation)
	}
	if topK <= 0 {
		topK = s.topK
	}

	backend, err := s.manager.Get(ctx, false)
	if err != nil {
		return Answer{}, err
	}

	vectors, err := s.embedder.Embed(ctx, []string{question})
	if err != nil {
		return Answer{}, fmt.Errorf("embed question: %w", err)
	}

	results, err := backend.Search(ctx, vectors[0], topK)
	if err != nil {
		return Answer{}, fmt.Errorf("search index: %w", err)
	}

	answer, err := s.generator.Generate(ctx, buildMessages(question, results))
	if err != nil {
		return Answer{}, fmt.Errorf("generate answer: %w", err)
	}

	sources := make([]Source, len(results))
	for i, r := range results {
		f := r.Fragment
		sources[i] = Source{
			DocumentID: f.DocumentID(),
			Filename:   f.Filename(),
			PageNumber: f.PageNumber(),
			ImageRef:   imagestore.PageKey(f.DocumentID(), f.PageNumber()),
			Score:      r.Score,
			Preview:    document.Preview(f.Text(), provenancePreviewLength),
		}
	}

	elapsed := time.Since(start)
	metrics.QueryDuration.Observe(elapsed.Seconds())
	s.logger.Info("query answered",
		slog.Int("sources", len(sources)),
		slog.Duration("elapsed", elapsed))

	return Answer{Text: answer, Sources: sources, ProcessingTime: elapsed}, nil
}

// buildMessages assembles the generation prompt: the retrieved fragments
// as a context block, then the question.
func buildMessages(question string, results []document.ScoredFragment) []provider.Message {
	var b strings.Builder
	b.WriteString("Context:\n\n")
	for i, r := range results {
		if i > 0 {
			b.WriteString("\n---\n\n")
		}
		b.WriteString(r.Fragment.GenerationText())
		b.WriteString("\n")
	}
	b.WriteString("\nQuestion: ")
	b.WriteString(question)

	return []provider.Message{
		provider.SystemMessage(systemPrompt),
		provider.UserMessage(b.String()),
	}
}
