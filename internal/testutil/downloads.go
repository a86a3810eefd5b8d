package testutil

import (
	"context"
	"path"
	"sync"

	"github.com/vonshlovens/threadnotes/internal/downloads"
)

// RecordingDownloader keeps every download in memory. Set Err to make
// downloads fail. Safe for concurrent use.
type RecordingDownloader struct {
	mu       sync.Mutex
	requests []downloads.Request
	files    map[string][]byte
	Err      error
}

func NewRecordingDownloader() *RecordingDownloader {
	return &RecordingDownloader{files: make(map[string][]byte)}
}

func (d *RecordingDownloader) Download(_ context.Context, req downloads.Request) (downloads.Result, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.Err != nil {
		return downloads.Result{}, d.Err
	}

	d.requests = append(d.requests, req)
	p := path.Join("/downloads", req.Filename)
	d.files[p] = append([]byte(nil), req.Data...)
	return downloads.Result{ID: len(d.requests), Path: p}, nil
}

// Requests returns a copy of all successful requests in order
func (d *RecordingDownloader) Requests() []downloads.Request {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]downloads.Request(nil), d.requests...)
}

// Count returns the number of successful downloads for filename
func (d *RecordingDownloader) Count(filename string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, r := range d.requests {
		if r.Filename == filename {
			n++
		}
	}
	return n
}

// Last returns the most recent request for filename
func (d *RecordingDownloader) Last(filename string) (downloads.Request, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i := len(d.requests) - 1; i >= 0; i-- {
		if d.requests[i].Filename == filename {
			return d.requests[i], true
		}
	}
	return downloads.Request{}, false
}
