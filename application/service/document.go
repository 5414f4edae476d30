// Package service implements the application services: the document
// lifecycle, background ingestion and query answering.
package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"

	"github.com/ragmag/ragmag/domain/document"
	"github.com/ragmag/ragmag/infrastructure/imagestore"
	"github.com/ragmag/ragmag/infrastructure/index"
	"github.com/ragmag/ragmag/infrastructure/parser"
	"github.com/ragmag/ragmag/infrastructure/provider"
	"github.com/ragmag/ragmag/internal/metrics"
)

// DocumentSummary is one row of the document listing.
type DocumentSummary struct {
	DocumentID string
	Filename   string
	PageCount  int
}

// PageDetail is one page in the document detail view.
type PageDetail struct {
	PageNumber int
	Preview    string
	ImageRef   string
}

// DocumentDetail is the full view of one indexed document.
type DocumentDetail struct {
	DocumentID  string
	Filename    string
	FragmentIDs []string
	Pages       []PageDetail
}

// AddResult reports a completed add.
type AddResult struct {
	PageCount int
}

// DeleteResult reports a completed delete.
type DeleteResult struct {
	ImagesDeleted int
}

// UpdateResult reports a completed update.
type UpdateResult struct {
	PageCount     int
	ImagesDeleted int
}

// Document implements the document lifecycle: add, delete, update, list
// and get. One instance is shared by the HTTP surface and the background
// worker; mutations serialize through the index manager's single-writer
// scope.
type Document struct {
	manager  *index.Manager
	images   imagestore.Store
	embedder provider.Embedder
	logger   *slog.Logger
}

// NewDocument creates the document lifecycle service.
func NewDocument(manager *index.Manager, images imagestore.Store, embedder provider.Embedder, logger *slog.Logger) *Document {
	return &Document{
		manager:  manager,
		images:   images,
		embedder: embedder,
		logger:   logger,
	}
}

// Add indexes parsed pages under the given document id. Zero pages is a
// parse failure and is rejected before any mutation. Page images are
// stored first, then all fragments are embedded and inserted in one
// mutation scope, so the document becomes visible atomically.
func (s *Document) Add(ctx context.Context, documentID, filename string, pages []parser.Page) (AddResult, error) {
	fragments, vectors, err := s.prepare(ctx, documentID, filename, pages)
	if err != nil {
		metrics.DocumentsIngestedTotal.WithLabelValues("add", "error").Inc()
		return AddResult{}, err
	}

	err = s.manager.WithMutation(ctx, func(b index.Backend) error {
		if err := b.Insert(ctx, fragments, vectors); err != nil {
			return fmt.Errorf("insert document %s: %w", documentID, err)
		}
		if err := b.Persist(ctx); err != nil {
			return fmt.Errorf("persist index: %w", err)
		}
		return nil
	})
	if err != nil {
		metrics.DocumentsIngestedTotal.WithLabelValues("add", "error").Inc()
		return AddResult{}, err
	}

	metrics.DocumentsIngestedTotal.WithLabelValues("add", "ok").Inc()
	metrics.DocumentPagesIngestedTotal.Add(float64(len(fragments)))
	s.logger.Info("document indexed",
		slog.String("document_id", documentID),
		slog.String("filename", filename),
		slog.Int("pages", len(fragments)))
	return AddResult{PageCount: len(fragments)}, nil
}

// prepare stores page images, builds fragments and embeds them. No index
// mutation happens here; a failure leaves at most orphaned images, which
// the delete sweep removes.
func (s *Document) prepare(ctx context.Context, documentID, filename string, pages []parser.Page) ([]document.Fragment, [][]float64, error) {
	if len(pages) == 0 {
		return nil, nil, fmt.Errorf("%s: %w", filename, document.ErrNoFragments)
	}

	fragments := make([]document.Fragment, 0, len(pages))
	texts := make([]string, 0, len(pages))
	for _, page := range pages {
		var asset document.Asset
		if page.Image != nil {
			stored, err := s.images.Save(ctx, documentID, page.Number, page.Image)
			if err != nil {
				return nil, nil, fmt.Errorf("store page image %d: %w", page.Number, err)
			}
			asset = stored
		}

		fragment := document.NewFragment(documentID, filename, page.Number, page.Text, asset)
		fragments = append(fragments, fragment)
		texts = append(texts, fragment.EmbeddingText())
	}

	vectors, err := s.embedder.Embed(ctx, texts)
	if err != nil {
		return nil, nil, fmt.Errorf("embed %s: %w", filename, err)
	}
	return fragments, vectors, nil
}

// Delete removes a document: its fragments exactly, then its stored
// images best-effort. Unknown ids return document.ErrNotFound. Image
// removal failures are logged and never fail the delete.
func (s *Document) Delete(ctx context.Context, documentID string) (DeleteResult, error) {
	err := s.manager.WithMutation(ctx, func(b index.Backend) error {
		if err := b.DeleteByDocument(ctx, documentID); err != nil {
			return err
		}
		if err := b.Persist(ctx); err != nil {
			return fmt.Errorf("persist index: %w", err)
		}
		return nil
	})
	if err != nil {
		return DeleteResult{}, err
	}

	deleted := s.sweepImages(ctx, documentID)
	s.logger.Info("document deleted",
		slog.String("document_id", documentID),
		slog.Int("images_deleted", deleted))
	return DeleteResult{ImagesDeleted: deleted}, nil
}

// sweepImages removes a document's stored images, logging failures.
func (s *Document) sweepImages(ctx context.Context, documentID string) int {
	deleted, err := s.images.DeleteDocument(ctx, documentID)
	if err != nil {
		s.logger.Warn("image cleanup incomplete",
			slog.String("document_id", documentID),
			slog.Int("images_deleted", deleted),
			slog.String("error", err.Error()))
	}
	metrics.ImagesDeletedTotal.Add(float64(deleted))
	return deleted
}

// Update replaces a document's content while keeping its id. The new
// pages are staged under a shadow id and fully built (images stored,
// fragments embedded and inserted) before the old content is touched;
// the swap deletes the old fragments and reassigns the staged ones in
// the same mutation scope. A failure before the swap leaves the old
// document intact.
func (s *Document) Update(ctx context.Context, documentID, filename string, pages []parser.Page) (UpdateResult, error) {
	// Fail fast on unknown ids before doing any expensive work.
	backend, err := s.manager.Get(ctx, false)
	if err != nil {
		return UpdateResult{}, err
	}
	if _, err := backend.FragmentsByDocument(ctx, documentID); err != nil {
		metrics.DocumentsIngestedTotal.WithLabelValues("update", "error").Inc()
		return UpdateResult{}, err
	}

	stagingID := document.NewID()
	fragments, vectors, err := s.prepare(ctx, stagingID, filename, pages)
	if err != nil {
		metrics.DocumentsIngestedTotal.WithLabelValues("update", "error").Inc()
		s.sweepImages(ctx, stagingID)
		return UpdateResult{}, err
	}

	err = s.manager.WithMutation(ctx, func(b index.Backend) error {
		if err := b.Insert(ctx, fragments, vectors); err != nil {
			return fmt.Errorf("stage document %s: %w", documentID, err)
		}
		if err := b.DeleteByDocument(ctx, documentID); err != nil {
			s.unstage(ctx, b, stagingID)
			return err
		}
		if err := b.ReassignDocument(ctx, stagingID, documentID); err != nil {
			// The old fragments are already gone; removing the staged ones
			// keeps the listing free of a document under the staging id.
			s.unstage(ctx, b, stagingID)
			return fmt.Errorf("swap document %s: %w", documentID, err)
		}
		if err := b.Persist(ctx); err != nil {
			return fmt.Errorf("persist index: %w", err)
		}
		return nil
	})
	if err != nil {
		metrics.DocumentsIngestedTotal.WithLabelValues("update", "error").Inc()
		s.sweepImages(ctx, stagingID)
		return UpdateResult{}, err
	}

	// Old images out, staged images into place. Both are best-effort: the
	// path-recovery heuristic still finds staged files at their recorded
	// locations if promotion fails.
	imagesDeleted := s.sweepImages(ctx, documentID)
	if err := s.images.PromoteDocument(ctx, stagingID, documentID); err != nil {
		s.logger.Warn("staged image promotion failed",
			slog.String("document_id", documentID),
			slog.String("error", err.Error()))
	}

	metrics.DocumentsIngestedTotal.WithLabelValues("update", "ok").Inc()
	metrics.DocumentPagesIngestedTotal.Add(float64(len(fragments)))
	s.logger.Info("document replaced",
		slog.String("document_id", documentID),
		slog.Int("pages", len(fragments)),
		slog.Int("images_deleted", imagesDeleted))
	return UpdateResult{PageCount: len(fragments), ImagesDeleted: imagesDeleted}, nil
}

// unstage removes staged fragments after a failed swap, best-effort.
func (s *Document) unstage(ctx context.Context, b index.Backend, stagingID string) {
	if err := b.DeleteByDocument(ctx, stagingID); err != nil {
		s.logger.Warn("failed to remove staged fragments",
			slog.String("staging_id", stagingID),
			slog.String("error", err.Error()))
	}
}

// List returns a summary of every indexed document. The filename comes
// from the document's first fragment; documents whose fragments cannot be
// resolved are skipped rather than failing the whole listing.
func (s *Document) List(ctx context.Context) ([]DocumentSummary, error) {
	backend, err := s.manager.Get(ctx, false)
	if err != nil {
		return nil, err
	}

	grouped, err := backend.ListDocuments(ctx)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}

	summaries := make([]DocumentSummary, 0, len(grouped))
	for documentID, fragmentIDs := range grouped {
		if len(fragmentIDs) == 0 {
			continue
		}
		first, err := backend.GetFragment(ctx, fragmentIDs[0])
		if err != nil {
			s.logger.Warn("skipping document with unresolvable fragment",
				slog.String("document_id", documentID),
				slog.String("fragment_id", fragmentIDs[0]))
			continue
		}
		doc := document.NewDocument(documentID, first.Filename(), fragmentIDs)
		summaries = append(summaries, DocumentSummary{
			DocumentID: doc.ID(),
			Filename:   doc.Filename(),
			PageCount:  doc.PageCount(),
		})
	}

	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].DocumentID < summaries[j].DocumentID
	})
	return summaries, nil
}

// Get returns one document's detail with pages sorted by page number and
// text previews truncated to the preview length.
func (s *Document) Get(ctx context.Context, documentID string) (DocumentDetail, error) {
	backend, err := s.manager.Get(ctx, false)
	if err != nil {
		return DocumentDetail{}, err
	}

	fragments, err := backend.FragmentsByDocument(ctx, documentID)
	if err != nil {
		return DocumentDetail{}, err
	}

	sort.Slice(fragments, func(i, j int) bool {
		return fragments[i].PageNumber() < fragments[j].PageNumber()
	})

	ids := make([]string, len(fragments))
	for i, f := range fragments {
		ids[i] = f.ID()
	}
	var filename string
	if len(fragments) > 0 {
		filename = fragments[0].Filename()
	}
	doc := document.NewDocument(documentID, filename, ids)

	detail := DocumentDetail{
		DocumentID:  doc.ID(),
		Filename:    doc.Filename(),
		FragmentIDs: doc.FragmentIDs(),
		Pages:       make([]PageDetail, doc.PageCount()),
	}
	for i, f := range fragments {
		detail.Pages[i] = PageDetail{
			PageNumber: f.PageNumber(),
			Preview:    document.Preview(f.Text(), document.PreviewLength),
			ImageRef:   imagestore.PageKey(documentID, f.PageNumber()),
		}
	}
	return detail, nil
}

// Count returns the number of indexed documents.
func (s *Document) Count(ctx context.Context) (int, error) {
	backend, err := s.manager.Get(ctx, false)
	if err != nil {
		return 0, err
	}
	grouped, err := backend.ListDocuments(ctx)
	if err != nil {
		return 0, err
	}
	return len(grouped), nil
}

// OpenImage streams a stored page image. The page's fragment is resolved
// first: its recorded asset lets the store recover a file whose canonical
// location went stale, or serve an inline copy restored from the index
// snapshot.
func (s *Document) OpenImage(ctx context.Context, documentID string, page int) (io.ReadCloser, error) {
	backend, err := s.manager.Get(ctx, false)
	if err != nil {
		return nil, err
	}
	fragments, err := backend.FragmentsByDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}
	for _, f := range fragments {
		if f.PageNumber() == page {
			return s.images.Open(ctx, documentID, page, f.Image())
		}
	}
	return nil, fmt.Errorf("image %s/%d: %w", documentID, page, document.ErrNotFound)
}
