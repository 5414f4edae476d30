package imagestore

import (
	"context"
	"fmt"
	"image"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/ragmag/ragmag/domain/document"
	"github.com/ragmag/ragmag/internal/config"
)

// LocalStore writes page images to a directory tree rooted at root, one
// subdirectory per document.
type LocalStore struct {
	root   string
	format config.ImageFormat
	logger *slog.Logger
}

// NewLocalStore creates a LocalStore rooted at root. format selects the
// extra encodings recorded on the asset alongside the file path.
func NewLocalStore(root string, format config.ImageFormat, logger *slog.Logger) *LocalStore {
	return &LocalStore{root: root, format: format, logger: logger}
}

// Save writes the page image to {root}/{documentID}/page_{n}.jpg.
func (s *LocalStore) Save(_ context.Context, documentID string, page int, img image.Image) (document.Asset, error) {
	dir := filepath.Join(s.root, documentID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return document.Asset{}, fmt.Errorf("create image dir: %w", err)
	}

	data, err := EncodeJPEG(img)
	if err != nil {
		return document.Asset{}, err
	}

	path := filepath.Join(dir, PageFilename(page))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return document.Asset{}, fmt.Errorf("write image: %w", err)
	}

	asset := document.Asset{Kind: document.StorageLocal, Location: path}
	return s.withEncodings(asset, img)
}

// withEncodings adds inline and thumbnail encodings per the configured
// format.
func (s *LocalStore) withEncodings(asset document.Asset, img image.Image) (document.Asset, error) {
	if s.format == config.ImageFormatBase64 || s.format == config.ImageFormatHybrid {
		inline, err := EncodeInline(img)
		if err != nil {
			return document.Asset{}, err
		}
		asset.Inline = inline
	}
	if s.format == config.ImageFormatHybrid {
		thumb, err := EncodeThumbnail(img)
		if err != nil {
			return document.Asset{}, err
		}
		asset.Thumbnail = thumb
	}
	return asset, nil
}

// Open returns the stored JPEG for one page, resolving stale recorded
// paths through ResolveLocalPath.
func (s *LocalStore) Open(_ context.Context, documentID string, page int, asset document.Asset) (io.ReadCloser, error) {
	path, err := ResolveLocalPath(s.root, asset, documentID, page)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("image %s/%d: %w", documentID, page, document.ErrNotFound)
		}
		return nil, fmt.Errorf("open image: %w", err)
	}
	return f, nil
}

// DeleteDocument removes every page image for a document and then the
// document directory itself. Individual removal failures are logged and
// counted past; the first error is returned with the count of images that
// were removed.
func (s *LocalStore) DeleteDocument(_ context.Context, documentID string) (int, error) {
	dir := filepath.Join(s.root, documentID)

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("read image dir: %w", err)
	}

	deleted := 0
	var firstErr error
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".jpg") {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			s.logger.Warn("failed to remove page image",
				slog.String("path", path), slog.String("error", err.Error()))
			if firstErr == nil {
				firstErr = fmt.Errorf("remove %s: %w", path, err)
			}
			continue
		}
		deleted++
	}

	if err := os.RemoveAll(dir); err != nil {
		s.logger.Warn("failed to remove document image dir",
			slog.String("dir", dir), slog.String("error", err.Error()))
		if firstErr == nil {
			firstErr = fmt.Errorf("remove %s: %w", dir, err)
		}
	}

	return deleted, firstErr
}

// PromoteDocument renames the staged document directory into place.
func (s *LocalStore) PromoteDocument(_ context.Context, fromID, toID string) error {
	from := filepath.Join(s.root, fromID)
	to := filepath.Join(s.root, toID)

	if _, err := os.Stat(from); err != nil {
		if os.IsNotExist(err) {
			return nil // staged document had no images
		}
		return fmt.Errorf("stat staged image dir: %w", err)
	}
	if err := os.RemoveAll(to); err != nil {
		return fmt.Errorf("clear image dir %s: %w", to, err)
	}
	if err := os.Rename(from, to); err != nil {
		return fmt.Errorf("promote image dir %s: %w", from, err)
	}
	return nil
}

var _ Store = (*LocalStore)(nil)
