// Package downloads writes export and sync files the way a browser's
// downloads API would: relative filenames under a downloads directory,
// with a conflict policy and an optional save-as prompt.
package downloads

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
)

// ConflictAction decides what happens when the target file exists
type ConflictAction int

const (
	ConflictUniquify ConflictAction = iota
	ConflictOverwrite
)

func (c ConflictAction) String() string {
	switch c {
	case ConflictUniquify:
		return "uniquify"
	case ConflictOverwrite:
		return "overwrite"
	default:
		return "unknown"
	}
}

// ErrInvalidFilename is returned for absolute paths and paths escaping the downloads directory
var ErrInvalidFilename = errors.New("invalid download filename")

// Request describes a single download
type Request struct {
	Filename       string
	Data           []byte
	SaveAs         bool
	ConflictAction ConflictAction
}

// Result reports where a download landed
type Result struct {
	ID   int
	Path string
}

// Downloader stores the bytes of a Request somewhere the user can reach them
type Downloader interface {
	Download(ctx context.Context, req Request) (Result, error)
}

// SaveAsFunc picks the final location for a save-as download given the suggested filename.
type SaveAsFunc func(suggested string) (string, error)

// FileDownloader writes downloads to the local filesystem
type FileDownloader struct {
	dir    string
	saveAs SaveAsFunc
	nextID atomic.Int64
}

// NewFileDownloader creates a downloader rooted at dir
func NewFileDownloader(dir string) *FileDownloader {
	return &FileDownloader{dir: dir}
}

// SetSaveAs installs the location picker used for SaveAs requests
func (d *FileDownloader) SetSaveAs(fn SaveAsFunc) {
	d.saveAs = fn
}

// Dir returns the downloads directory
func (d *FileDownloader) Dir() string {
	return d.dir
}

// Download writes req.Data and returns the assigned download id and path
func (d *FileDownloader) Download(ctx context.Context, req Request) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	target, err := d.resolve(req)
	if err != nil {
		return Result{}, err
	}

	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return Result{}, fmt.Errorf("failed to create download directory: %w", err)
	}

	if req.ConflictAction == ConflictUniquify {
		target = uniquePath(target)
	}

	if err := writeAtomic(target, req.Data); err != nil {
		return Result{}, fmt.Errorf("failed to write %s: %w", target, err)
	}

	id := int(d.nextID.Add(1))
	slog.Debug("download complete", "id", id, "path", target, "bytes", len(req.Data), "conflict", req.ConflictAction)

	return Result{ID: id, Path: target}, nil
}

// resolve maps the request filename to an absolute target path
func (d *FileDownloader) resolve(req Request) (string, error) {
	if err := ValidateFilename(req.Filename); err != nil {
		return "", err
	}

	if req.SaveAs && d.saveAs != nil {
		chosen, err := d.saveAs(filepath.Base(req.Filename))
		if err != nil {
			return "", fmt.Errorf("save as: %w", err)
		}
		if chosen != "" {
			return chosen, nil
		}
	}

	return filepath.Join(d.dir, filepath.FromSlash(req.Filename)), nil
}

// ValidateFilename rejects absolute paths and ".." segments
func ValidateFilename(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty", ErrInvalidFilename)
	}
	slashed := filepath.ToSlash(name)
	if strings.HasPrefix(slashed, "/") || filepath.IsAbs(name) {
		return fmt.Errorf("%w: %q is absolute", ErrInvalidFilename, name)
	}
	for _, part := range strings.Split(slashed, "/") {
		if part == ".." {
			return fmt.Errorf("%w: %q leaves the downloads directory", ErrInvalidFilename, name)
		}
	}
	return nil
}

// uniquePath appends " (n)" before the extension until the path is free
func uniquePath(path string) string {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return path
	}

	ext := filepath.Ext(path)
	base := strings.TrimSuffix(path, ext)
	for i := 1; ; i++ {
		candidate := fmt.Sprintf("%s (%d)%s", base, i, ext)
		if _, err := os.Stat(candidate); os.IsNotExist(err) {
			return candidate
		}
	}
}

// writeAtomic replaces path with data via a temp file in the same directory
func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".download-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Chmod(tmpName, 0644); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, path)
}
