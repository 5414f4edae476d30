package imagestore

import (
	"context"
	"encoding/base64"
	"fmt"
	"image"
	"io"
	"strings"
	"sync"

	"github.com/ragmag/ragmag/domain/document"
)

// InlineStore keeps no files at all: every page image lives as a base64
// data URI on the fragment's asset. Useful for small corpora where the
// index snapshot should be self-contained.
type InlineStore struct {
	mu     sync.RWMutex
	inline map[string]string // page key -> data URI
}

// NewInlineStore creates an InlineStore.
func NewInlineStore() *InlineStore {
	return &InlineStore{inline: make(map[string]string)}
}

// Save encodes the page image inline and keeps a copy for Open.
func (s *InlineStore) Save(_ context.Context, documentID string, page int, img image.Image) (document.Asset, error) {
	inline, err := EncodeInline(img)
	if err != nil {
		return document.Asset{}, err
	}
	thumb, err := EncodeThumbnail(img)
	if err != nil {
		return document.Asset{}, err
	}

	s.mu.Lock()
	s.inline[PageKey(documentID, page)] = inline
	s.mu.Unlock()

	return document.Asset{
		Kind:      document.StorageInline,
		Inline:    inline,
		Thumbnail: thumb,
	}, nil
}

// Open decodes the inline copy back into JPEG bytes. A miss falls back to
// the asset's inline payload: after a restart the in-memory map is empty,
// but the data URI survives on the fragment in the index snapshot.
func (s *InlineStore) Open(_ context.Context, documentID string, page int, asset document.Asset) (io.ReadCloser, error) {
	s.mu.RLock()
	uri, ok := s.inline[PageKey(documentID, page)]
	s.mu.RUnlock()
	if !ok && asset.Inline != "" {
		s.Restore(documentID, page, asset)
		uri, ok = asset.Inline, true
	}
	if !ok {
		return nil, fmt.Errorf("image %s/%d: %w", documentID, page, document.ErrNotFound)
	}

	data, err := DecodeDataURI(uri)
	if err != nil {
		return nil, err
	}
	return io.NopCloser(strings.NewReader(string(data))), nil
}

// DeleteDocument drops every inline copy for the document.
func (s *InlineStore) DeleteDocument(_ context.Context, documentID string) (int, error) {
	prefix := documentID + "/"

	s.mu.Lock()
	defer s.mu.Unlock()

	deleted := 0
	for key := range s.inline {
		if strings.HasPrefix(key, prefix) {
			delete(s.inline, key)
			deleted++
		}
	}
	return deleted, nil
}

// Restore re-registers an inline asset loaded from an index snapshot so
// later opens hit the in-memory copy directly.
func (s *InlineStore) Restore(documentID string, page int, asset document.Asset) {
	if asset.Inline == "" {
		return
	}
	s.mu.Lock()
	s.inline[PageKey(documentID, page)] = asset.Inline
	s.mu.Unlock()
}

// PromoteDocument re-keys every staged inline copy to the target id.
func (s *InlineStore) PromoteDocument(_ context.Context, fromID, toID string) error {
	fromPrefix := fromID + "/"

	s.mu.Lock()
	defer s.mu.Unlock()

	for key, uri := range s.inline {
		if strings.HasPrefix(key, fromPrefix) {
			s.inline[toID+"/"+strings.TrimPrefix(key, fromPrefix)] = uri
			delete(s.inline, key)
		}
	}
	return nil
}

// DecodeDataURI strips the data URI header and decodes the base64 payload.
func DecodeDataURI(uri string) ([]byte, error) {
	_, payload, found := strings.Cut(uri, ",")
	if !found {
		return nil, fmt.Errorf("malformed data uri")
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("decode data uri: %w", err)
	}
	return data, nil
}

var _ Store = (*InlineStore)(nil)
