// Package blob implements the content-addressed archive cache (§4.1):
// a directory namespace keyed by SHA-256 digest, with atomic
// temp-then-rename commits and no filename metadata leaking from
// upstream URLs.
package blob

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/zerobrew/zerobrew/internal/zberr"
)

// Cache is a content-addressed store of downloaded bottle archives
// rooted at root/cache.
type Cache struct {
	blobsDir string
	tmpDir   string
}

// New creates a Cache rooted at the given root directory, creating
// cache/blobs and cache/tmp if they don't already exist.
func New(root string) (*Cache, error) {
	c := &Cache{
		blobsDir: filepath.Join(root, "cache", "blobs"),
		tmpDir:   filepath.Join(root, "cache", "tmp"),
	}
	if err := os.MkdirAll(c.blobsDir, 0755); err != nil {
		return nil, &zberr.StoreCorruption{Message: "creating blob cache directory", Err: err}
	}
	if err := os.MkdirAll(c.tmpDir, 0755); err != nil {
		return nil, &zberr.StoreCorruption{Message: "creating blob tmp directory", Err: err}
	}
	return c, nil
}

// Has reports whether a blob with the given digest is present.
func (c *Cache) Has(digest string) bool {
	_, err := os.Stat(c.PathOf(digest))
	return err == nil
}

// PathOf returns the canonical on-disk path for a digest, whether or
// not the blob currently exists there.
func (c *Cache) PathOf(digest string) string {
	return filepath.Join(c.blobsDir, digest+".tar.gz")
}

func (c *Cache) tmpPathOf(digest string) string {
	return filepath.Join(c.tmpDir, digest+".part")
}

// Delete removes a blob, if present. Deleting an absent blob is not
// an error.
func (c *Cache) Delete(digest string) error {
	if err := os.Remove(c.PathOf(digest)); err != nil && !os.IsNotExist(err) {
		return &zberr.StoreCorruption{Message: fmt.Sprintf("deleting blob %s", digest), Err: err}
	}
	return nil
}

// ListDigests returns the digests of every blob currently cached.
func (c *Cache) ListDigests() ([]string, error) {
	entries, err := os.ReadDir(c.blobsDir)
	if err != nil {
		return nil, &zberr.StoreCorruption{Message: "listing blob cache", Err: err}
	}

	var digests []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		const suffix = ".tar.gz"
		if len(name) > len(suffix) && name[len(name)-len(suffix):] == suffix {
			digests = append(digests, name[:len(name)-len(suffix)])
		}
	}
	return digests, nil
}

// Writer streams bytes to a temporary file under cache/tmp and
// commits or aborts atomically.
type Writer struct {
	cache    *Cache
	digest   string
	file     *os.File
	tmpPath  string
	finished bool
}

// StartWrite opens a fresh writer for digest. A second concurrent
// writer for the same digest fails with AlreadyInFlight because the
// temp file is opened O_CREATE|O_EXCL.
func (c *Cache) StartWrite(digest string) (*Writer, error) {
	tmpPath := c.tmpPathOf(digest)
	f, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		if os.IsExist(err) {
			return nil, ErrAlreadyInFlight
		}
		return nil, &zberr.StoreCorruption{Message: "opening blob write target", Err: err}
	}
	return &Writer{cache: c, digest: digest, file: f, tmpPath: tmpPath}, nil
}

// Write implements io.Writer.
func (w *Writer) Write(p []byte) (int, error) {
	return w.file.Write(p)
}

// Commit atomically renames the temp file to the canonical blob path.
// Idempotent: if the destination already exists, the temp file is
// discarded and the existing blob is kept.
func (w *Writer) Commit() (string, error) {
	if w.finished {
		return "", &zberr.StoreCorruption{Message: "writer already finished"}
	}
	w.finished = true
	if err := w.file.Close(); err != nil {
		os.Remove(w.tmpPath)
		return "", &zberr.StoreCorruption{Message: "closing blob writer", Err: err}
	}

	dest := w.cache.PathOf(w.digest)
	if _, err := os.Stat(dest); err == nil {
		os.Remove(w.tmpPath)
		return dest, nil
	}

	if err := os.Rename(w.tmpPath, dest); err != nil {
		os.Remove(w.tmpPath)
		return "", &zberr.StoreCorruption{Message: "committing blob", Err: err}
	}
	return dest, nil
}

// Abort discards the partial write. Safe to call after Commit (no-op).
func (w *Writer) Abort() error {
	if w.finished {
		return nil
	}
	w.finished = true
	w.file.Close()
	if err := os.Remove(w.tmpPath); err != nil && !os.IsNotExist(err) {
		return &zberr.StoreCorruption{Message: "removing partial blob", Err: err}
	}
	return nil
}

// ErrAlreadyInFlight is returned by StartWrite when another writer
// already holds the temp file for this digest.
var ErrAlreadyInFlight = fmt.Errorf("blob: write already in flight for this digest")
