// Package linker exposes a materialized keg's binaries under
// prefix/bin (§4.8). Conflicts with an existing, differently-targeted
// link are reported rather than overwritten.
package linker

import (
	"os"
	"path/filepath"

	"github.com/zerobrew/zerobrew/internal/cellar"
	"github.com/zerobrew/zerobrew/internal/zberr"
)

// LinkConflict records a basename that LinkKeg could not claim
// because prefix/bin already has something else there.
type LinkConflict struct {
	Basename       string
	ExistingTarget string
}

// Linker manages the prefix/bin symlink namespace for kegs held in a
// Cellar.
type Linker struct {
	binDir string
	cellar *cellar.Cellar
}

// New creates a Linker exposing c's kegs under prefix/bin, ensuring
// that directory exists.
func New(prefix string, c *cellar.Cellar) (*Linker, error) {
	binDir := filepath.Join(prefix, "bin")
	if err := os.MkdirAll(binDir, 0755); err != nil {
		return nil, &zberr.StoreCorruption{Message: "creating prefix bin directory", Err: err}
	}
	return &Linker{binDir: binDir, cellar: c}, nil
}

// LinkKeg enumerates cellar/<name>/<version>/bin/* and creates one
// symlink per basename at prefix/bin/<basename> pointing at the
// absolute target. A prior link already pointing at the same target
// is left alone. Any other occupant of that basename — a link to a
// different target, or a non-symlink file — is reported as a
// LinkConflict and skipped; LinkKeg never overwrites it.
func (l *Linker) LinkKeg(name, version string) ([]LinkConflict, error) {
	kegPath := l.cellar.KegPath(name, version)
	kegBinDir := filepath.Join(kegPath, "bin")

	entries, err := os.ReadDir(kegBinDir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, &zberr.StoreCorruption{Message: "reading keg bin directory", Err: err}
	}

	var conflicts []LinkConflict
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		target := filepath.Join(kegBinDir, entry.Name())
		linkPath := filepath.Join(l.binDir, entry.Name())

		existingTarget, err := os.Readlink(linkPath)
		switch {
		case err == nil:
			if existingTarget == target {
				continue
			}
			conflicts = append(conflicts, LinkConflict{Basename: entry.Name(), ExistingTarget: existingTarget})
			continue
		case os.IsNotExist(err):
			// Nothing at linkPath yet.
		default:
			// Exists but isn't a symlink (Readlink on a regular file
			// returns an error distinct from not-exist).
			conflicts = append(conflicts, LinkConflict{Basename: entry.Name(), ExistingTarget: linkPath})
			continue
		}

		if err := os.Symlink(target, linkPath); err != nil {
			return conflicts, &zberr.StoreCorruption{Message: "creating bin symlink for " + entry.Name(), Err: err}
		}
	}

	return conflicts, nil
}

// UnlinkKeg removes every prefix/bin symlink whose resolved target
// lies inside cellar/<name>/<version>, leaving symlinks belonging to
// other kegs untouched.
func (l *Linker) UnlinkKeg(name, version string) error {
	kegPath, err := filepath.EvalSymlinks(l.cellar.KegPath(name, version))
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return &zberr.StoreCorruption{Message: "resolving keg path", Err: err}
	}

	entries, err := os.ReadDir(l.binDir)
	if err != nil {
		return &zberr.StoreCorruption{Message: "reading prefix bin directory", Err: err}
	}

	for _, entry := range entries {
		linkPath := filepath.Join(l.binDir, entry.Name())

		resolved, err := filepath.EvalSymlinks(linkPath)
		if err != nil {
			// Broken or non-symlink entry — not ours to manage.
			continue
		}

		if !isWithinDir(kegPath, resolved) {
			continue
		}

		if err := os.Remove(linkPath); err != nil {
			return &zberr.StoreCorruption{Message: "removing bin symlink " + entry.Name(), Err: err}
		}
	}

	return nil
}

func isWithinDir(dir, target string) bool {
	dir = filepath.Clean(dir)
	target = filepath.Clean(target)
	if target == dir {
		return true
	}
	return len(target) > len(dir) && target[:len(dir)] == dir && target[len(dir)] == filepath.Separator
}
