package chunker

import (
	"fmt"
	"io"

	"github.com/agenthands/cidsum/pkg/core"
)

// Chunk represents a single fixed-size window of the input.
type Chunk struct {
	Buf   []byte // owned by the chunker; valid until the next call to Next
	N     int
	Index int
}

// Bytes returns the chunk payload.
func (c Chunk) Bytes() []byte {
	return c.Buf[:c.N]
}

// Config defines the chunking parameters.
type Config struct {
	Size int // 0 means core.DefaultChunkSize
}

// Chunker splits an io.Reader into ordered fixed-size chunks.
type Chunker interface {
	// Next returns the next chunk, or io.EOF once the input is exhausted.
	// An empty input yields exactly one empty chunk before io.EOF.
	Next() (Chunk, error)
}

type fixedChunker struct {
	r     io.Reader
	buf   []byte
	index int
	done  bool
}

// NewChunker returns a Chunker reading r in cfg.Size windows.
func NewChunker(r io.Reader, cfg Config) Chunker {
	size := cfg.Size
	if size <= 0 {
		size = core.DefaultChunkSize
	}
	return &fixedChunker{
		r:   r,
		buf: make([]byte, size),
	}
}

func (c *fixedChunker) Next() (Chunk, error) {
	if c.done {
		return Chunk{}, io.EOF
	}

	n, err := c.fill()
	switch {
	case err == nil:
	case err == io.EOF:
		c.done = true
		if n == 0 && c.index > 0 {
			return Chunk{}, io.EOF
		}
	default:
		c.done = true
		return Chunk{}, fmt.Errorf("%w: read chunk %d: %w", core.ErrIO, c.index, err)
	}

	chunk := Chunk{Buf: c.buf, N: n, Index: c.index}
	c.index++
	return chunk, nil
}

// maxEmptyReads bounds consecutive (0, nil) reads before giving up.
const maxEmptyReads = 100

// fill reads until the buffer is full. Only a bare io.EOF ends the input;
// io.ErrUnexpectedEOF from the source means it was cut short and is
// returned like any other failure.
func (c *fixedChunker) fill() (int, error) {
	n, empty := 0, 0
	for n < len(c.buf) {
		m, err := c.r.Read(c.buf[n:])
		n += m
		if err != nil {
			return n, err
		}
		if m > 0 {
			empty = 0
			continue
		}
		empty++
		if empty >= maxEmptyReads {
			return n, io.ErrNoProgress
		}
	}
	return n, nil
}
