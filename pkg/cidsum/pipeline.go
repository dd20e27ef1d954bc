// Package cidsum computes the CID an IPFS node would assign to a byte stream
// under its default settings: 256 KiB fixed-size chunks, UnixFS file leaves
// in dag-pb nodes and a single flat root when there is more than one chunk.
package cidsum

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/agenthands/cidsum/pkg/chunker"
	"github.com/agenthands/cidsum/pkg/cidutil"
	"github.com/agenthands/cidsum/pkg/core"
	"github.com/agenthands/cidsum/pkg/dag"
	"github.com/agenthands/cidsum/pkg/source"
	"github.com/ipfs/go-cid"
)

// Pipeline drives one or more independent CID computations. It holds no
// per-input state and is safe for concurrent use.
type Pipeline struct {
	cids    cidutil.Builder
	version int
	sink    BlockSink
	logger  *slog.Logger
}

// New validates opts and returns a Pipeline.
func New(opts Options) (*Pipeline, error) {
	if opts.Version != core.CIDv0 && opts.Version != core.CIDv1 {
		return nil, fmt.Errorf("%w: unsupported cid version %d", core.ErrInvalidArgument, opts.Version)
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &Pipeline{
		cids:    cidutil.NewBuilder(),
		version: opts.Version,
		sink:    opts.Sink,
		logger:  logger,
	}, nil
}

// Sum reads r to the end and returns its content address. Any read failure
// aborts the pass; there is no partial result.
func (p *Pipeline) Sum(ctx context.Context, r io.Reader) (Result, error) {
	ch := chunker.NewChunker(r, chunker.Config{Size: core.DefaultChunkSize})

	var (
		results []ChunkResult
		length  uint64
	)

	p.transition(ctx, StateReading)
	for {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}

		chunk, err := ch.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return Result{}, err
		}

		p.transition(ctx, StateAccumulatingChunk, slog.Int("index", chunk.Index), slog.Int("bytes", chunk.N))
		node, err := dag.Leaf(chunk.Bytes())
		if err != nil {
			return Result{}, fmt.Errorf("chunk %d: %w", chunk.Index, err)
		}

		p.transition(ctx, StateEmitting, slog.Int("index", chunk.Index))
		c, err := p.emit(ctx, node)
		if err != nil {
			return Result{}, fmt.Errorf("chunk %d: %w", chunk.Index, err)
		}

		results = append(results, ChunkResult{
			CID:     c,
			Size:    uint64(len(node)),
			DataLen: uint64(chunk.N),
		})
		length += uint64(chunk.N)
	}

	if len(results) == 1 {
		p.transition(ctx, StateSingleChunkDone, slog.String("cid", results[0].CID.String()))
		return Result{
			CID:      results[0].CID,
			Length:   length,
			NodeSize: results[0].Size,
			Chunks:   results,
			State:    StateSingleChunkDone,
		}, nil
	}

	p.transition(ctx, StateBuildingRoot, slog.Int("links", len(results)))
	root, err := dag.WrapRoot(results)
	if err != nil {
		return Result{}, err
	}
	node, err := root.Marshal()
	if err != nil {
		return Result{}, err
	}
	c, err := p.emit(ctx, node)
	if err != nil {
		return Result{}, fmt.Errorf("root: %w", err)
	}

	p.transition(ctx, StateRootDone, slog.String("cid", c.String()))
	return Result{
		CID:      c,
		Length:   length,
		NodeSize: uint64(len(node)),
		Chunks:   results,
		State:    StateRootDone,
	}, nil
}

// emit hashes a serialized node and hands it to the sink, if any.
func (p *Pipeline) emit(ctx context.Context, node []byte) (cid.Cid, error) {
	c, err := p.cids.NodeCID(node, p.version)
	if err != nil {
		return cid.Undef, err
	}
	if p.sink != nil {
		if err := p.sink.PutBlock(ctx, c, node); err != nil {
			return cid.Undef, fmt.Errorf("export block %s: %w", c, err)
		}
	}
	return c, nil
}

func (p *Pipeline) transition(ctx context.Context, s State, attrs ...slog.Attr) {
	p.logger.LogAttrs(ctx, slog.LevelDebug, "pipeline "+s.String(), attrs...)
}

// ComputeCID returns the textual CID of everything readable from r.
func ComputeCID(ctx context.Context, r io.Reader, version int) (string, error) {
	p, err := New(Options{Version: version})
	if err != nil {
		return "", err
	}
	res, err := p.Sum(ctx, r)
	if err != nil {
		return "", err
	}
	return cidutil.String(res.CID)
}

// SumBytes returns the textual CID of b.
func SumBytes(ctx context.Context, b []byte, version int) (string, error) {
	return ComputeCID(ctx, source.Bytes(b), version)
}

// SumFile returns the textual CID of the file at path.
func SumFile(ctx context.Context, path string, version int) (string, error) {
	rc, err := source.File(path, nil)
	if err != nil {
		return "", err
	}
	defer rc.Close()
	return ComputeCID(ctx, rc, version)
}
