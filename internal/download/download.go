// Package download implements the single-request downloader (§4.3):
// a streaming GET that hashes bytes as they're written to the blob
// cache, never exposing an unverified path under a blob's canonical
// name.
package download

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"

	"github.com/zerobrew/zerobrew/internal/blob"
	"github.com/zerobrew/zerobrew/internal/zberr"
)

// Downloader performs single-request, digest-verified downloads into
// a blob cache.
type Downloader struct {
	cache      *blob.Cache
	httpClient *http.Client
}

// New creates a Downloader writing into cache and fetching with
// httpClient.
func New(cache *blob.Cache, httpClient *http.Client) *Downloader {
	return &Downloader{cache: cache, httpClient: httpClient}
}

// ProgressFunc is invoked as a download's bytes stream in, carrying
// the running byte count and the total if the server advertised a
// content length (nil otherwise).
type ProgressFunc func(downloaded int64, total *int64)

// Download fetches url, verifying the downloaded bytes hash to
// expectedDigest, and returns the path of the committed blob.
//
// If the cache already has expectedDigest, no network request is
// made. On a checksum mismatch the partial blob is removed and
// ChecksumMismatch is returned; the core never retries.
func (d *Downloader) Download(ctx context.Context, url, expectedDigest string) (string, error) {
	return d.DownloadWithProgress(ctx, url, expectedDigest, nil)
}

// DownloadWithProgress is Download with an additional onProgress hook
// invoked periodically as bytes stream in; pass nil to skip progress
// reporting entirely.
func (d *Downloader) DownloadWithProgress(ctx context.Context, url, expectedDigest string, onProgress ProgressFunc) (string, error) {
	if d.cache.Has(expectedDigest) {
		return d.cache.PathOf(expectedDigest), nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", &zberr.NetworkFailure{Message: "constructing download request", Err: err}
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return "", &zberr.NetworkFailure{Message: fmt.Sprintf("downloading %s", url), Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &zberr.NetworkFailure{Message: fmt.Sprintf("downloading %s: status %d", url, resp.StatusCode)}
	}

	w, err := d.cache.StartWrite(expectedDigest)
	if err != nil {
		return "", &zberr.NetworkFailure{Message: "starting blob write", Err: err}
	}

	var total *int64
	if resp.ContentLength >= 0 {
		total = &resp.ContentLength
	}

	hasher := sha256.New()
	dest := io.Writer(io.MultiWriter(hasher, w))
	if onProgress != nil {
		dest = &progressWriter{w: dest, total: total, onProgress: onProgress}
	}

	if _, err := io.Copy(dest, resp.Body); err != nil {
		w.Abort()
		return "", &zberr.NetworkFailure{Message: fmt.Sprintf("streaming %s", url), Err: err}
	}

	actual := hex.EncodeToString(hasher.Sum(nil))
	if actual != expectedDigest {
		w.Abort()
		return "", &zberr.ChecksumMismatch{Expected: expectedDigest, Actual: actual}
	}

	return w.Commit()
}

// progressWriter wraps the hash/blob fan-out writer, reporting the
// running byte count to onProgress as chunks are streamed through.
type progressWriter struct {
	w          io.Writer
	downloaded int64
	total      *int64
	onProgress ProgressFunc
}

func (p *progressWriter) Write(b []byte) (int, error) {
	n, err := p.w.Write(b)
	if n > 0 {
		p.downloaded += int64(n)
		p.onProgress(p.downloaded, p.total)
	}
	return n, err
}
