package db

import (
	"encoding/json"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"github.com/zerobrew/zerobrew/internal/zberr"
)

// lockMetadata records who holds locks/db.lock, so a concurrent
// process can tell whether a held lock is live or orphaned.
type lockMetadata struct {
	PID        int       `json:"pid"`
	AcquiredAt time.Time `json:"acquired_at"`
}

// writerLock is the single held flock on locks/db.lock enforcing the
// database's single-writer invariant (§4.10).
type writerLock struct {
	file *os.File
	path string
}

// acquireWriterLock takes the exclusive, non-blocking flock on
// lockDir/db.lock. Acquisition never blocks: concurrent installs from
// multiple processes are unsupported, so a held lock fails fast with
// *zberr.LockBusy rather than queuing.
func acquireWriterLock(lockDir string) (*writerLock, error) {
	if err := os.MkdirAll(lockDir, 0755); err != nil {
		return nil, &zberr.StoreCorruption{Message: "creating lock directory", Err: err}
	}

	lockPath := filepath.Join(lockDir, "db.lock")
	file, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, &zberr.StoreCorruption{Message: "opening lock file", Err: err}
	}

	if err := syscall.Flock(int(file.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		file.Close()
		if err == syscall.EWOULDBLOCK {
			if cleaned := tryCleanupStale(lockPath); cleaned {
				return acquireWriterLockOnce(lockPath)
			}
			return nil, &zberr.LockBusy{}
		}
		return nil, &zberr.StoreCorruption{Message: "acquiring writer lock", Err: err}
	}

	l := &writerLock{file: file, path: lockPath}
	if err := l.writeMetadata(); err != nil {
		l.release()
		return nil, err
	}
	return l, nil
}

// acquireWriterLockOnce retries the non-blocking acquisition exactly
// once, used right after a stale holder has been cleaned up.
func acquireWriterLockOnce(lockPath string) (*writerLock, error) {
	file, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, &zberr.StoreCorruption{Message: "opening lock file", Err: err}
	}
	if err := syscall.Flock(int(file.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		file.Close()
		if err == syscall.EWOULDBLOCK {
			return nil, &zberr.LockBusy{}
		}
		return nil, &zberr.StoreCorruption{Message: "acquiring writer lock", Err: err}
	}
	l := &writerLock{file: file, path: lockPath}
	if err := l.writeMetadata(); err != nil {
		l.release()
		return nil, err
	}
	return l, nil
}

func (l *writerLock) writeMetadata() error {
	if err := l.file.Truncate(0); err != nil {
		return &zberr.StoreCorruption{Message: "truncating lock file", Err: err}
	}
	if _, err := l.file.Seek(0, 0); err != nil {
		return &zberr.StoreCorruption{Message: "seeking lock file", Err: err}
	}

	metadata := lockMetadata{PID: os.Getpid(), AcquiredAt: time.Now()}
	encoder := json.NewEncoder(l.file)
	if err := encoder.Encode(metadata); err != nil {
		return &zberr.StoreCorruption{Message: "writing lock metadata", Err: err}
	}
	return nil
}

// release unlocks and closes the lock file, leaving the file itself
// on disk so a subsequent acquisition can reuse it.
func (l *writerLock) release() error {
	if l.file == nil {
		return nil
	}
	syscall.Flock(int(l.file.Fd()), syscall.LOCK_UN)
	err := l.file.Close()
	l.file = nil
	if err != nil {
		return &zberr.StoreCorruption{Message: "closing lock file", Err: err}
	}
	return nil
}

// tryCleanupStale checks whether the process recorded in lockPath's
// metadata is still alive, via signal 0, and if not, clears the file
// so the caller can retry acquisition. Returns false if the holder is
// live or the metadata can't be read.
func tryCleanupStale(lockPath string) bool {
	data, err := os.ReadFile(lockPath)
	if err != nil {
		return false
	}

	var metadata lockMetadata
	if err := json.Unmarshal(data, &metadata); err != nil {
		return false
	}

	if isProcessRunning(metadata.PID) {
		return false
	}

	return os.Truncate(lockPath, 0) == nil
}

// isProcessRunning reports whether pid names a live process, by
// sending signal 0 (which performs existence and permission checks
// without actually signalling anything).
func isProcessRunning(pid int) bool {
	return unix.Kill(pid, 0) == nil
}
