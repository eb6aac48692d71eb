// Package paralleldownload coordinates a batch of downloads against a
// fixed concurrency limit, deduplicating concurrent requests for the
// same digest (§4.4).
package paralleldownload

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/zerobrew/zerobrew/internal/download"
	"github.com/zerobrew/zerobrew/internal/zberr"
)

// Request is a single (url, digest) pair to fetch.
type Request struct {
	URL    string
	Digest string
	// OnProgress, if set, is invoked as this request's bytes stream
	// in. When a request is deduplicated against an in-flight
	// download for the same digest (§4.4), only the winner's
	// OnProgress is driven by the network read; subscribers still
	// receive the winner's final result but no intermediate progress.
	OnProgress download.ProgressFunc
}

// result is published once per digest to every subscriber waiting on
// it.
type result struct {
	path string
	err  error
	done chan struct{}
}

// Downloader coordinates bounded-concurrency downloads with in-flight
// deduplication by digest.
type Downloader struct {
	single      *download.Downloader
	sem         *semaphore.Weighted
	mu          sync.Mutex
	inFlight    map[string]*result
	concurrency int64
}

// New creates a Downloader that issues at most concurrency
// simultaneous network downloads via single.
func New(single *download.Downloader, concurrency int) *Downloader {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Downloader{
		single:      single,
		sem:         semaphore.NewWeighted(int64(concurrency)),
		inFlight:    make(map[string]*result),
		concurrency: int64(concurrency),
	}
}

// DownloadAll fetches every request, returning paths in the same
// order as requests. A single hard failure cancels the remaining
// in-flight downloads and DownloadAll returns that error; downloads
// that already completed remain on disk since they are
// content-addressed and safe to reuse on a later retry.
func (d *Downloader) DownloadAll(ctx context.Context, requests []Request) ([]string, error) {
	paths := make([]string, len(requests))

	g, gctx := errgroup.WithContext(ctx)
	for i, req := range requests {
		i, req := i, req
		g.Go(func() error {
			path, err := d.downloadWithDedup(gctx, req)
			if err != nil {
				return err
			}
			paths[i] = path
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return paths, nil
}

// downloadWithDedup implements the per-request protocol from §4.4: a
// late arrival for a digest already being fetched subscribes to the
// in-flight result instead of taking a semaphore permit.
func (d *Downloader) downloadWithDedup(ctx context.Context, req Request) (string, error) {
	d.mu.Lock()
	if existing, ok := d.inFlight[req.Digest]; ok {
		d.mu.Unlock()
		return waitFor(ctx, existing)
	}

	r := &result{done: make(chan struct{})}
	d.inFlight[req.Digest] = r
	d.mu.Unlock()

	if err := d.sem.Acquire(ctx, 1); err != nil {
		nf := &zberr.NetworkFailure{Message: "waiting for download permit", Err: err}
		d.publish(req.Digest, r, "", nf)
		return "", nf
	}
	path, err := d.single.DownloadWithProgress(ctx, req.URL, req.Digest, req.OnProgress)
	d.sem.Release(1)

	d.publish(req.Digest, r, path, err)
	if err != nil {
		return "", err
	}
	return path, nil
}

func (d *Downloader) publish(digest string, r *result, path string, err error) {
	r.path = path
	r.err = err
	close(r.done)

	d.mu.Lock()
	delete(d.inFlight, digest)
	d.mu.Unlock()
}

// waitFor blocks until r is published or ctx is cancelled, whichever
// comes first. A subscriber that loses the race to cancellation
// rewraps it as a NetworkFailure so callers observe a single taxonomy
// regardless of which side of the subscription they were on.
func waitFor(ctx context.Context, r *result) (string, error) {
	select {
	case <-r.done:
		return r.path, r.err
	case <-ctx.Done():
		return "", &zberr.NetworkFailure{Message: "download cancelled", Err: ctx.Err()}
	}
}
