// Package store manages the content-addressed tree namespace (§4.6):
// each digest's extracted bottle contents live under store/<digest>,
// interned exactly once regardless of how many formula versions share
// that digest.
package store

import (
	"os"
	"path/filepath"

	"github.com/zerobrew/zerobrew/internal/extract"
	"github.com/zerobrew/zerobrew/internal/zberr"
)

// Store is the content-addressed extraction namespace rooted at
// store/.
type Store struct {
	root   string
	tmpDir string
}

// New creates a Store rooted at root, ensuring its tmp subdirectory
// exists.
func New(root string) (*Store, error) {
	tmpDir := filepath.Join(root, "tmp")
	if err := os.MkdirAll(tmpDir, 0755); err != nil {
		return nil, &zberr.StoreCorruption{Message: "creating store tmp directory", Err: err}
	}
	return &Store{root: root, tmpDir: tmpDir}, nil
}

// Has reports whether digest has already been interned.
func (s *Store) Has(digest string) bool {
	_, err := os.Stat(s.PathOf(digest))
	return err == nil
}

// PathOf returns the path an interned digest's tree lives at,
// regardless of whether it has been interned yet.
func (s *Store) PathOf(digest string) string {
	return filepath.Join(s.root, digest)
}

// Intern extracts archivePath into the store under digest, unless
// digest is already present, in which case archivePath is not
// re-extracted. Extraction happens into a temporary sibling directory
// that is renamed into place atomically, so a crash mid-extraction
// never leaves a partial tree visible under PathOf(digest).
func (s *Store) Intern(archivePath, digest string) (string, error) {
	dest := s.PathOf(digest)
	if s.Has(digest) {
		return dest, nil
	}

	tmpDest, err := os.MkdirTemp(s.tmpDir, digest+"-*")
	if err != nil {
		return "", &zberr.StoreCorruption{Message: "creating store staging directory", Err: err}
	}
	// Extract itself creates tmpDest's contents fresh; remove the
	// placeholder so Extract's own MkdirAll starts clean.
	if err := os.Remove(tmpDest); err != nil {
		return "", &zberr.StoreCorruption{Message: "clearing store staging directory", Err: err}
	}

	if err := extract.Extract(archivePath, tmpDest); err != nil {
		os.RemoveAll(tmpDest)
		return "", err
	}

	if err := os.Rename(tmpDest, dest); err != nil {
		if s.Has(digest) {
			// Another Intern of the same digest won the race.
			os.RemoveAll(tmpDest)
			return dest, nil
		}
		os.RemoveAll(tmpDest)
		return "", &zberr.StoreCorruption{Message: "committing extracted tree", Err: err}
	}

	return dest, nil
}

// Delete removes digest's extracted tree, if present. Deleting an
// absent digest is not an error.
func (s *Store) Delete(digest string) error {
	if err := os.RemoveAll(s.PathOf(digest)); err != nil {
		return &zberr.StoreCorruption{Message: "deleting store entry", Err: err}
	}
	return nil
}

// ListDigests returns the digests currently interned in the store.
func (s *Store) ListDigests() ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, &zberr.StoreCorruption{Message: "listing store entries", Err: err}
	}

	var digests []string
	for _, entry := range entries {
		if entry.Name() == "tmp" || !entry.IsDir() {
			continue
		}
		digests = append(digests, entry.Name())
	}
	return digests, nil
}
