// Package imagestore persists page images rendered from uploaded PDFs.
// Backends share the same layout: one object per page, keyed by document
// id and page number, so a document's images can be removed as a unit.
package imagestore

import (
	"context"
	"fmt"
	"image"
	"io"

	"github.com/ragmag/ragmag/domain/document"
)

// Store persists and serves page images.
type Store interface {
	// Save writes the image for one page and returns the asset recorded on
	// the fragment.
	Save(ctx context.Context, documentID string, page int, img image.Image) (document.Asset, error)

	// Open returns the stored JPEG bytes for one page. asset is the
	// fragment's recorded image asset; backends use it to recover content
	// whose canonical location went stale (a relocated data directory, an
	// inline copy surviving a restart).
	Open(ctx context.Context, documentID string, page int, asset document.Asset) (io.ReadCloser, error)

	// DeleteDocument removes every stored image for a document. Individual
	// failures do not stop the sweep; the count of removed images is
	// returned alongside the first error encountered.
	DeleteDocument(ctx context.Context, documentID string) (int, error)

	// PromoteDocument moves every image from one document id to another.
	// Used to put staged images in place when a document is replaced.
	PromoteDocument(ctx context.Context, fromID, toID string) error
}

// PageKey returns the canonical storage key for a page image.
func PageKey(documentID string, page int) string {
	return fmt.Sprintf("%s/page_%d.jpg", documentID, page)
}

// PageFilename returns the file name portion of a page key.
func PageFilename(page int) string {
	return fmt.Sprintf("page_%d.jpg", page)
}
