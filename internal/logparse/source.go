package logparse

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz"
)

// CompressedExtensions lists the archive suffixes OpenSource decompresses.
var CompressedExtensions = []string{".xz", ".zst", ".gz"}

// OpenSource opens a raw log, decompressing it when the extension names a
// supported single-stream archive.
func OpenSource(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open log: %w", err)
	}
	rc, err := Decompress(f, filepath.Ext(path))
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("open log %s: %w", path, err)
	}
	return rc, nil
}

// Decompress wraps r according to ext. Unknown extensions are read as plain
// text. Closing the result closes r when r is an io.Closer.
func Decompress(r io.Reader, ext string) (io.ReadCloser, error) {
	var inner io.Reader
	var closeInner func() error

	switch strings.ToLower(ext) {
	case ".xz":
		xr, err := xz.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("xz: %w", err)
		}
		inner = xr
	case ".zst":
		zr, err := zstd.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("zstd: %w", err)
		}
		inner = zr
		closeInner = func() error { zr.Close(); return nil }
	case ".gz":
		gr, err := gzip.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("gzip: %w", err)
		}
		inner = gr
		closeInner = gr.Close
	default:
		inner = r
	}
	return &sourceReader{Reader: inner, closeInner: closeInner, outer: r}, nil
}

// IsCompressed reports whether path has a supported archive extension.
func IsCompressed(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, c := range CompressedExtensions {
		if ext == c {
			return true
		}
	}
	return false
}

type sourceReader struct {
	io.Reader
	closeInner func() error
	outer      io.Reader
}

func (s *sourceReader) Close() error {
	var err error
	if s.closeInner != nil {
		err = s.closeInner()
	}
	if c, ok := s.outer.(io.Closer); ok {
		if cerr := c.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
