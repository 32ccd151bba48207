// Package logging backs the validator's --debug file sink: a
// size-bounded, gzip-compressed rotating log so a long-running `validator
// run` loop never fills the disk with an unbounded validator.debug.log.
package logging

import (
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
)

const (
	// DefaultMaxSize is the uncompressed size, in bytes, at which the
	// active log file rotates.
	DefaultMaxSize = 10 * 1024 * 1024 // 10MB
	// DefaultMaxBackups bounds how many compressed generations
	// (validator.debug.log.1.gz, .2.gz, ...) are retained.
	DefaultMaxBackups = 3
)

// RotatingFile is an io.WriteCloser that rotates its backing file once it
// exceeds a size limit, gzip-compressing the rotated generation so a
// multi-day validator run doesn't accumulate uncompressed history.
type RotatingFile struct {
	path       string
	maxSize    int64
	maxBackups int

	mu   sync.Mutex
	file *os.File
	size int64
}

// Option configures a RotatingFile at construction time.
type Option func(*RotatingFile)

// WithMaxSize overrides DefaultMaxSize.
func WithMaxSize(size int64) Option {
	return func(r *RotatingFile) {
		r.maxSize = size
	}
}

// WithMaxBackups overrides DefaultMaxBackups.
func WithMaxBackups(count int) Option {
	return func(r *RotatingFile) {
		r.maxBackups = count
	}
}

// NewRotatingFile opens (creating if needed) the log file at path.
func NewRotatingFile(path string, opts ...Option) (*RotatingFile, error) {
	r := &RotatingFile{
		path:       path,
		maxSize:    DefaultMaxSize,
		maxBackups: DefaultMaxBackups,
	}

	for _, opt := range opts {
		opt(r)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, err
	}

	if err := r.openFile(); err != nil {
		return nil, err
	}

	return r, nil
}

// Path returns the active (uncompressed, currently-written) log path.
func (r *RotatingFile) Path() string {
	return r.path
}

func (r *RotatingFile) openFile() error {
	file, err := os.OpenFile(r.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return err
	}

	r.file = file
	r.size = info.Size()
	return nil
}

func (r *RotatingFile) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.size+int64(len(p)) > r.maxSize {
		if err := r.rotate(); err != nil {
			return 0, err
		}
	}

	n, err := r.file.Write(p)
	r.size += int64(n)
	return n, err
}

func (r *RotatingFile) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.file != nil {
		return r.file.Close()
	}
	return nil
}

// backupPath returns the gzip-compressed generation-n path for the log.
func (r *RotatingFile) backupPath(generation int) string {
	return fmt.Sprintf("%s.%d.gz", r.path, generation)
}

func (r *RotatingFile) rotate() error {
	if err := r.file.Close(); err != nil {
		return err
	}

	_ = os.Remove(r.backupPath(r.maxBackups))

	for i := r.maxBackups - 1; i >= 1; i-- {
		_ = os.Rename(r.backupPath(i), r.backupPath(i+1))
	}

	if err := r.compressInto(r.path, r.backupPath(1)); err != nil {
		return fmt.Errorf("compressing rotated log: %w", err)
	}
	if err := os.Remove(r.path); err != nil && !os.IsNotExist(err) {
		return err
	}

	r.size = 0
	return r.openFile()
}

// compressInto gzips src into dst, leaving src untouched; the caller
// removes src once this succeeds.
func (r *RotatingFile) compressInto(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}

	gz := gzip.NewWriter(out)
	if _, err := io.Copy(gz, in); err != nil {
		gz.Close()
		out.Close()
		return err
	}
	if err := gz.Close(); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
