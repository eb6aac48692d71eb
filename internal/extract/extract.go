// Package extract unpacks a gzip-compressed tar bottle archive into a
// destination directory (§4.5), preserving file modes and symlink
// topology and rejecting any entry that would escape the destination.
package extract

import (
	"archive/tar"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"

	"github.com/zerobrew/zerobrew/internal/zberr"
)

// Extract decompresses and unpacks the gzip-tar archive at
// archivePath into destDir. On any error destDir is removed before
// returning, so a caller never observes a partially-extracted tree.
func Extract(archivePath, destDir string) error {
	if err := os.MkdirAll(destDir, 0755); err != nil {
		return &zberr.StoreCorruption{Message: "creating extraction destination", Err: err}
	}

	if err := extract(archivePath, destDir); err != nil {
		os.RemoveAll(destDir)
		return err
	}
	return nil
}

func extract(archivePath, destDir string) error {
	f, err := os.Open(archivePath)
	if err != nil {
		return &zberr.StoreCorruption{Message: "opening archive", Err: err}
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return &zberr.StoreCorruption{Message: "opening gzip stream", Err: err}
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	for {
		header, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return &zberr.StoreCorruption{Message: "reading tar entry", Err: err}
		}

		target := filepath.Join(destDir, header.Name)
		if !isWithinDir(destDir, target) {
			return &zberr.StoreCorruption{Message: "archive entry escapes destination: " + header.Name}
		}

		switch header.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, os.FileMode(header.Mode)); err != nil {
				return &zberr.StoreCorruption{Message: "creating directory from archive", Err: err}
			}

		case tar.TypeSymlink:
			if err := extractSymlink(destDir, target, header.Linkname); err != nil {
				return err
			}

		case tar.TypeReg:
			if err := extractRegular(target, header, tr); err != nil {
				return err
			}

		default:
			// Skip device nodes, fifos, and other entry types a
			// bottle archive has no legitimate reason to contain.
		}
	}
}

func extractRegular(target string, header *tar.Header, tr *tar.Reader) error {
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return &zberr.StoreCorruption{Message: "creating parent directory", Err: err}
	}

	out, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, os.FileMode(header.Mode))
	if err != nil {
		return &zberr.StoreCorruption{Message: "creating file from archive", Err: err}
	}
	defer out.Close()

	if _, err := io.Copy(out, tr); err != nil {
		return &zberr.StoreCorruption{Message: "writing file from archive", Err: err}
	}

	// Explicit chmod: the file mode passed to OpenFile is masked by
	// umask, so the executable bit isn't reliably preserved without it.
	if err := os.Chmod(target, os.FileMode(header.Mode)); err != nil {
		return &zberr.StoreCorruption{Message: "setting file mode from archive", Err: err}
	}
	return nil
}

func extractSymlink(destDir, target, linkname string) error {
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return &zberr.StoreCorruption{Message: "creating parent directory for symlink", Err: err}
	}

	if err := validateSymlinkTarget(destDir, target, linkname); err != nil {
		return err
	}

	os.Remove(target)
	if err := os.Symlink(linkname, target); err != nil {
		return &zberr.StoreCorruption{Message: "creating symlink from archive", Err: err}
	}
	return nil
}

// validateSymlinkTarget rejects absolute symlink targets and any
// relative target that, resolved against the symlink's own directory,
// would escape destDir.
func validateSymlinkTarget(destDir, symlinkPath, linkTarget string) error {
	if filepath.IsAbs(linkTarget) {
		return &zberr.StoreCorruption{Message: "archive symlink has absolute target: " + linkTarget}
	}

	resolved := filepath.Join(filepath.Dir(symlinkPath), linkTarget)
	if !isWithinDir(destDir, resolved) {
		return &zberr.StoreCorruption{Message: "archive symlink escapes destination: " + linkTarget}
	}
	return nil
}

// isWithinDir reports whether target is equal to or nested under dir,
// after cleaning both paths (so "../" components can't slip past a
// naive prefix check).
func isWithinDir(dir, target string) bool {
	dir = filepath.Clean(dir)
	target = filepath.Clean(target)
	if target == dir {
		return true
	}
	return strings.HasPrefix(target, dir+string(filepath.Separator))
}
