// Package document provides the core types for PDF-derived documents:
// a Document with a stable identity, the page-granular Fragments derived
// from it, and the ImageAsset attached to each fragment.
package document

import "github.com/google/uuid"

// PreviewLength is the maximum number of runes in a page text preview.
const PreviewLength = 100

// Document is a logical PDF-derived unit with a stable identity.
// Its fragment ids must exactly equal the set of fragments whose
// DocumentID back-reference equals its ID. It is assembled from the
// index on read; the ingest task history carries its timestamps.
type Document struct {
	id          string
	filename    string
	fragmentIDs []string
}

// NewDocument creates a Document from its fragments. The fragment order is
// preserved as given (page order for display).
func NewDocument(id, filename string, fragmentIDs []string) Document {
	return Document{
		id:          id,
		filename:    filename,
		fragmentIDs: append([]string(nil), fragmentIDs...),
	}
}

// ID returns the stable document identity.
func (d Document) ID() string { return d.id }

// Filename returns the original upload filename.
func (d Document) Filename() string { return d.filename }

// FragmentIDs returns the ordered fragment ids.
func (d Document) FragmentIDs() []string {
	return append([]string(nil), d.fragmentIDs...)
}

// PageCount returns the number of fragments (one per page).
func (d Document) PageCount() int { return len(d.fragmentIDs) }

// NewID generates a fresh document id.
func NewID() string {
	return uuid.NewString()
}

// Preview truncates text to PreviewLength runes, appending an ellipsis
// marker when the text was cut.
func Preview(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit]) + "..."
}
