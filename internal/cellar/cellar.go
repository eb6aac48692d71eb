// Package cellar manages per-(name,version) materialized kegs (§4.7):
// the Cellar copies a store entry's extracted tree into
// cellar/<name>/<version>, the only directories the linker ever points
// into.
package cellar

import (
	"io"
	"os"
	"path/filepath"

	"github.com/zerobrew/zerobrew/internal/zberr"
)

// Cellar is the materialized-keg namespace rooted at cellar/.
type Cellar struct {
	cellarDir string
	tmpDir    string
}

// New creates a Cellar rooted at root, ensuring cellar/ and its tmp
// subdirectory exist.
func New(root string) (*Cellar, error) {
	cellarDir := filepath.Join(root, "cellar")
	tmpDir := filepath.Join(cellarDir, "tmp")
	if err := os.MkdirAll(tmpDir, 0755); err != nil {
		return nil, &zberr.StoreCorruption{Message: "creating cellar tmp directory", Err: err}
	}
	return &Cellar{cellarDir: cellarDir, tmpDir: tmpDir}, nil
}

// KegPath returns the path a (name, version) keg lives at, regardless
// of whether it has been materialized yet.
func (c *Cellar) KegPath(name, version string) string {
	return filepath.Join(c.cellarDir, name, version)
}

// HasKeg reports whether (name, version) has already been
// materialized.
func (c *Cellar) HasKeg(name, version string) bool {
	_, err := os.Stat(c.KegPath(name, version))
	return err == nil
}

// Materialize copies storeEntry's tree into the keg for (name,
// version), unless that keg already exists, in which case it is
// returned unchanged. Materialize is therefore idempotent: a second
// call against an already-populated keg is a no-op even if the keg has
// since been modified. The copy happens into a temporary sibling
// directory under cellar/tmp that is renamed into place atomically,
// so a crash mid-copy never leaves a partial tree visible under
// KegPath.
func (c *Cellar) Materialize(name, version, storeEntry string) (string, error) {
	kegPath := c.KegPath(name, version)
	if c.HasKeg(name, version) {
		return kegPath, nil
	}

	if err := os.MkdirAll(filepath.Dir(kegPath), 0755); err != nil {
		return "", &zberr.StoreCorruption{Message: "creating keg parent directory", Err: err}
	}

	tmpDest, err := os.MkdirTemp(c.tmpDir, name+"-"+version+"-*")
	if err != nil {
		return "", &zberr.StoreCorruption{Message: "creating cellar staging directory", Err: err}
	}
	// copyTree creates tmpDest's contents fresh; remove the placeholder
	// so its own MkdirAll starts clean.
	if err := os.Remove(tmpDest); err != nil {
		return "", &zberr.StoreCorruption{Message: "clearing cellar staging directory", Err: err}
	}

	if err := copyTree(storeEntry, tmpDest); err != nil {
		os.RemoveAll(tmpDest)
		return "", err
	}

	if err := os.Rename(tmpDest, kegPath); err != nil {
		if c.HasKeg(name, version) {
			// Another Materialize of the same keg won the race.
			os.RemoveAll(tmpDest)
			return kegPath, nil
		}
		os.RemoveAll(tmpDest)
		return "", &zberr.StoreCorruption{Message: "committing materialized keg", Err: err}
	}

	return kegPath, nil
}

// RemoveKeg deletes the (name, version) keg, if present, and then
// attempts to remove its now-possibly-empty name directory (ignoring
// failure, since sibling versions commonly remain).
func (c *Cellar) RemoveKeg(name, version string) error {
	kegPath := c.KegPath(name, version)
	if !c.HasKeg(name, version) {
		return nil
	}

	if err := os.RemoveAll(kegPath); err != nil {
		return &zberr.StoreCorruption{Message: "removing keg", Err: err}
	}

	os.Remove(filepath.Dir(kegPath))
	return nil
}

// copyTree recursively copies src into dst, preserving symlinks as
// symlinks (never resolving them into copies of their targets) and
// preserving each regular file's permission bits, in particular the
// executable bit.
func copyTree(src, dst string) error {
	if err := os.MkdirAll(dst, 0755); err != nil {
		return &zberr.StoreCorruption{Message: "creating directory " + dst, Err: err}
	}

	entries, err := os.ReadDir(src)
	if err != nil {
		return &zberr.StoreCorruption{Message: "reading directory " + src, Err: err}
	}

	for _, entry := range entries {
		srcPath := filepath.Join(src, entry.Name())
		dstPath := filepath.Join(dst, entry.Name())

		info, err := entry.Info()
		if err != nil {
			return &zberr.StoreCorruption{Message: "reading file info", Err: err}
		}

		switch {
		case info.Mode()&os.ModeSymlink != 0:
			if err := copySymlink(srcPath, dstPath); err != nil {
				return err
			}
		case entry.IsDir():
			if err := copyTree(srcPath, dstPath); err != nil {
				return err
			}
		default:
			if err := copyFile(srcPath, dstPath, info.Mode()); err != nil {
				return err
			}
		}
	}

	return nil
}

func copySymlink(src, dst string) error {
	target, err := os.Readlink(src)
	if err != nil {
		return &zberr.StoreCorruption{Message: "reading symlink " + src, Err: err}
	}
	if err := os.Symlink(target, dst); err != nil {
		return &zberr.StoreCorruption{Message: "creating symlink " + dst, Err: err}
	}
	return nil
}

func copyFile(src, dst string, mode os.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return &zberr.StoreCorruption{Message: "opening " + src, Err: err}
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, mode)
	if err != nil {
		return &zberr.StoreCorruption{Message: "creating " + dst, Err: err}
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return &zberr.StoreCorruption{Message: "copying " + src, Err: err}
	}

	// OpenFile's mode is masked by umask; chmod explicitly so the
	// executable bit survives the copy.
	if err := os.Chmod(dst, mode); err != nil {
		return &zberr.StoreCorruption{Message: "setting permissions on " + dst, Err: err}
	}
	return nil
}
