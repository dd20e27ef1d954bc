// Package source adapts concrete inputs (buffers, streams, files) into the
// single io.Reader the pipeline consumes.
package source

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/agenthands/cidsum/pkg/core"
	"github.com/klauspost/compress/zstd"
)

// Transform wraps a raw input stream before it is chunked.
type Transform interface {
	Name() string
	Wrap(r io.Reader) (io.ReadCloser, error)
}

type noneTransform struct{}

// NewNone returns a Transform that passes input through unchanged.
func NewNone() Transform {
	return &noneTransform{}
}

func (t *noneTransform) Name() string { return "none" }

func (t *noneTransform) Wrap(r io.Reader) (io.ReadCloser, error) {
	if rc, ok := r.(io.ReadCloser); ok {
		return rc, nil
	}
	return io.NopCloser(r), nil
}

// zstdTransform hashes the decompressed content of a zstd stream.
type zstdTransform struct {
	maxWindow uint64
}

// NewZstd returns a Transform that decompresses zstd input.
func NewZstd() Transform {
	return &zstdTransform{maxWindow: 1 << 30}
}

func (t *zstdTransform) Name() string { return "zstd" }

func (t *zstdTransform) Wrap(r io.Reader) (io.ReadCloser, error) {
	dec, err := zstd.NewReader(r, zstd.WithDecoderConcurrency(1), zstd.WithDecoderMaxWindow(t.maxWindow))
	if err != nil {
		return nil, fmt.Errorf("%w: zstd reader: %v", core.ErrIO, err)
	}
	return &zstdReadCloser{dec: dec, inner: r}, nil
}

type zstdReadCloser struct {
	dec   *zstd.Decoder
	inner io.Reader
}

func (z *zstdReadCloser) Read(p []byte) (int, error) {
	return z.dec.Read(p)
}

func (z *zstdReadCloser) Close() error {
	z.dec.Close()
	if c, ok := z.inner.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// ForName resolves a configured transform name.
func ForName(name string) (Transform, error) {
	switch name {
	case "", "none":
		return NewNone(), nil
	case "zstd":
		return NewZstd(), nil
	default:
		return nil, fmt.Errorf("%w: unsupported transform %q", core.ErrInvalidArgument, name)
	}
}

// Bytes adapts an in-memory buffer.
func Bytes(b []byte) io.Reader {
	return bytes.NewReader(b)
}

// Reader adapts an arbitrary stream through tr.
func Reader(r io.Reader, tr Transform) (io.ReadCloser, error) {
	if tr == nil {
		tr = NewNone()
	}
	return tr.Wrap(r)
}

// File opens path and adapts it through tr. The returned ReadCloser closes
// the file as well.
func File(path string, tr Transform) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrIO, err)
	}
	rc, err := Reader(f, tr)
	if err != nil {
		f.Close()
		return nil, err
	}
	return rc, nil
}
