package installer

import "sync"

// Event is published to a caller-supplied ProgressFunc during
// Execute. Every concrete event carries the formula name it concerns.
type Event interface {
	isEvent()
}

// ProgressFunc receives Execute's progress events. Invocations are
// serialized by the installer, so a ProgressFunc need not be
// re-entrant.
type ProgressFunc func(Event)

// DownloadStarted is published before a formula's bottle download
// begins. TotalBytes is nil when the content length isn't known in
// advance.
type DownloadStarted struct {
	Name       string
	TotalBytes *int64
}

func (DownloadStarted) isEvent() {}

// DownloadProgress is published periodically while a bottle downloads.
type DownloadProgress struct {
	Name       string
	Downloaded int64
	TotalBytes *int64
}

func (DownloadProgress) isEvent() {}

// DownloadCompleted is published once a bottle's bytes are fully
// written and checksum-verified.
type DownloadCompleted struct {
	Name       string
	TotalBytes int64
}

func (DownloadCompleted) isEvent() {}

// UnpackStarted is published before a formula's archive is extracted
// and materialized.
type UnpackStarted struct {
	Name string
}

func (UnpackStarted) isEvent() {}

// UnpackCompleted is published once a formula's keg is materialized.
type UnpackCompleted struct {
	Name string
}

func (UnpackCompleted) isEvent() {}

// LinkStarted is published before a formula's binaries are linked
// into the prefix.
type LinkStarted struct {
	Name string
}

func (LinkStarted) isEvent() {}

// LinkCompleted is published once a formula's binaries are linked.
type LinkCompleted struct {
	Name string
}

func (LinkCompleted) isEvent() {}

// InstallCompleted is published once a formula's installed row has
// been recorded.
type InstallCompleted struct {
	Name string
}

func (InstallCompleted) isEvent() {}

// progressSink serializes ProgressFunc invocations behind a mutex so
// Execute's per-formula goroutines can publish concurrently.
type progressSink struct {
	mu sync.Mutex
	fn ProgressFunc
}

func newProgressSink(fn ProgressFunc) *progressSink {
	if fn == nil {
		fn = func(Event) {}
	}
	return &progressSink{fn: fn}
}

func (s *progressSink) publish(e Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fn(e)
}
