package imagestore

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/ragmag/ragmag/domain/document"
)

// ResolveLocalPath finds the on-disk file for a locally stored asset. The
// recorded path can go stale when the data directory moves between runs,
// so resolution tries, in order:
//
//  1. the recorded path as stored,
//  2. the recorded file name relocated under {root}/{documentID}/,
//  3. the canonical {root}/{documentID}/page_{n}.jpg,
//  4. the file name anywhere in an immediate subdirectory of root.
func ResolveLocalPath(root string, asset document.Asset, documentID string, page int) (string, error) {
	name := PageFilename(page)
	candidates := make([]string, 0, 3)
	if asset.Location != "" {
		name = filepath.Base(asset.Location)
		candidates = append(candidates,
			asset.Location,
			filepath.Join(root, documentID, name),
		)
	}
	candidates = append(candidates, filepath.Join(root, documentID, PageFilename(page)))

	for _, path := range candidates {
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path, nil
		}
	}

	if path, ok := scanSubdirectories(root, name); ok {
		return path, nil
	}
	return "", fmt.Errorf("image %s/%d: %w", documentID, page, document.ErrNotFound)
}

// scanSubdirectories looks for name in each immediate subdirectory of
// root, in directory order. This is the last-resort step: it can cross
// document boundaries, so it only runs after the scoped candidates miss.
func scanSubdirectories(root, name string) (string, bool) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return "", false
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		path := filepath.Join(root, entry.Name(), name)
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path, true
		}
	}
	return "", false
}
