// Package source abstracts the backing store behind an Image (spec
// §4.A): a single UDIF/sparse-image file, or a sparse-bundle directory
// of per-band files. All positioning is explicit; sources carry no
// seek cursor of their own, matching §4.A's "position-agnostic".
package source

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
)

// Kind labels the I/O failure mode, matching spec §4.A / §7's Io domain.
type Kind int

const (
	KindSeek Kind = iota
	KindRead
	KindOpen
	KindInvalidResource
	KindAccessDenied
)

// Error is returned by Source operations; callers map it to modi.Error.
type Error struct {
	Kind Kind
	Path string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("source: %v %s: %v", e.Kind, e.Path, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Source is a positioned byte store (spec §4.A).
type Source interface {
	// Size returns the total byte length of this source.
	Size() int64

	// ReadAt fills buf starting at offset. A short read (n < len(buf)
	// with err == nil) is never returned; if fewer bytes are available
	// an error is returned instead, per spec §4.A "a short read is an
	// error, not a silent success".
	ReadAt(buf []byte, offset int64) (int, error)

	// Close releases any file descriptors held by the source.
	Close() error
}

// fileSource wraps a single backing file (a UDIF or sparse image).
type fileSource struct {
	f    *os.File
	size int64
}

// OpenFile opens path as a single-file backing store.
func OpenFile(path string) (Source, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) || os.IsPermission(err) {
			kind := KindOpen
			if os.IsPermission(err) {
				kind = KindAccessDenied
			}
			return nil, &Error{Kind: kind, Path: path, Err: err}
		}
		return nil, &Error{Kind: KindOpen, Path: path, Err: err}
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, &Error{Kind: KindInvalidResource, Path: path, Err: err}
	}
	return &fileSource{f: f, size: st.Size()}, nil
}

func (s *fileSource) Size() int64 { return s.size }

func (s *fileSource) ReadAt(buf []byte, offset int64) (int, error) {
	n, err := preadFull(s.f, buf, offset)
	if err != nil {
		return n, &Error{Kind: KindRead, Path: s.f.Name(), Err: err}
	}
	return n, nil
}

func (s *fileSource) Close() error {
	if err := s.f.Close(); err != nil {
		return &Error{Kind: KindInvalidResource, Path: s.f.Name(), Err: err}
	}
	return nil
}

// preadFull reads exactly len(buf) bytes at offset, treating a short
// read as io.ErrUnexpectedEOF rather than silently returning fewer
// bytes, per §4.A.
func preadFull(f *os.File, buf []byte, offset int64) (int, error) {
	n := 0
	for n < len(buf) {
		m, err := preadRaw(f, buf[n:], offset+int64(n))
		n += m
		if err != nil {
			if err == io.EOF && n == len(buf) {
				return n, nil
			}
			if err == io.EOF {
				return n, io.ErrUnexpectedEOF
			}
			return n, err
		}
		if m == 0 {
			return n, io.ErrUnexpectedEOF
		}
	}
	return n, nil
}

// BundleSource reads per-band files out of a sparse-bundle's bands/
// directory (spec §4.E). Band files are opened lazily and cached
// until Close.
type BundleSource struct {
	bandsDir string
	bandSize int64

	mu    sync.Mutex
	files map[int]*os.File
}

// OpenBundle prepares a BundleSource rooted at a sparse bundle's
// bands/ subdirectory.
func OpenBundle(bandsDir string, bandSize int64) *BundleSource {
	return &BundleSource{bandsDir: bandsDir, bandSize: bandSize, files: make(map[int]*os.File)}
}

// ReadBand fills buf from band bandNumber starting at offsetWithinBand.
// A missing band file means "absent" (§3 "band descriptor"): ReadBand
// zero-fills buf and returns (len(buf), nil) rather than an error.
func (b *BundleSource) ReadBand(bandNumber int, offsetWithinBand int64, buf []byte) (int, error) {
	f, ok, err := b.bandFile(bandNumber)
	if err != nil {
		return 0, err
	}
	if !ok {
		for i := range buf {
			buf[i] = 0
		}
		return len(buf), nil
	}
	n, err := preadFull(f, buf, offsetWithinBand)
	if err != nil {
		return n, &Error{Kind: KindRead, Path: bandFileName(bandNumber), Err: err}
	}
	return n, nil
}

func (b *BundleSource) bandFile(bandNumber int) (*os.File, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if f, ok := b.files[bandNumber]; ok {
		return f, f != nil, nil
	}
	path := filepath.Join(b.bandsDir, bandFileName(bandNumber))
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			b.files[bandNumber] = nil
			return nil, false, nil
		}
		return nil, false, &Error{Kind: KindOpen, Path: path, Err: err}
	}
	b.files[bandNumber] = f
	return f, true, nil
}

func bandFileName(bandNumber int) string {
	return fmt.Sprintf("%x", bandNumber)
}

// Close closes every band file opened so far.
func (b *BundleSource) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	var firstErr error
	for _, f := range b.files {
		if f == nil {
			continue
		}
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
