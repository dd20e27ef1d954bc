// Package carexport writes the blocks a pipeline pass produces into a CARv2
// file rooted at the final CID, and reads such files back for inspection.
package carexport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/agenthands/cidsum/pkg/cidutil"
	"github.com/agenthands/cidsum/pkg/core"
	"github.com/agenthands/cidsum/pkg/pb"
	blocks "github.com/ipfs/go-block-format"
	"github.com/ipfs/go-cid"
	carv2 "github.com/ipld/go-car/v2"
	"github.com/ipld/go-car/v2/blockstore"
)

// Writer is a cidsum.BlockSink backed by a CARv2 file.
type Writer struct {
	path    string
	version int

	mu     sync.Mutex
	bs     *blockstore.ReadWrite
	blocks int
	done   bool
}

// NewWriter creates (or truncates) a CARv2 file at path for CIDs of the
// given version. The root is only known once the pass completes, so the
// header starts with a placeholder of identical encoded length that
// Finalize replaces in place.
func NewWriter(path string, version int) (*Writer, error) {
	placeholder, err := cidutil.NewBuilder().NodeCID(nil, version)
	if err != nil {
		return nil, err
	}

	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %v", core.ErrIO, err)
	}

	bs, err := blockstore.OpenReadWrite(path, []cid.Cid{placeholder})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create car %s: %v", core.ErrIO, path, err)
	}

	return &Writer{path: path, version: version, bs: bs}, nil
}

// Path returns the file being written.
func (w *Writer) Path() string {
	return w.path
}

// Blocks returns how many distinct blocks have been written.
func (w *Writer) Blocks() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.blocks
}

func (w *Writer) PutBlock(ctx context.Context, c cid.Cid, node []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.done {
		return fmt.Errorf("%w: car %s already finalized", core.ErrInvalidArgument, w.path)
	}

	// Identical chunks produce identical leaves; store them once.
	has, err := w.bs.Has(ctx, c)
	if err != nil {
		return err
	}
	if has {
		return nil
	}

	blk, err := blocks.NewBlockWithCid(node, c)
	if err != nil {
		return err
	}

	if err := w.bs.Put(ctx, blk); err != nil {
		return fmt.Errorf("%w: %v", core.ErrIO, err)
	}
	w.blocks++
	return nil
}

// Finalize seals the file and records root in its header.
func (w *Writer) Finalize(root cid.Cid) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.done {
		return fmt.Errorf("%w: car %s already finalized", core.ErrInvalidArgument, w.path)
	}
	if int(root.Version()) != w.version {
		return fmt.Errorf("%w: root is CIDv%d, car was opened for v%d", core.ErrInvalidArgument, root.Version(), w.version)
	}
	w.done = true

	if err := w.bs.Finalize(); err != nil {
		return fmt.Errorf("%w: failed to finalize car: %v", core.ErrIO, err)
	}
	if err := carv2.ReplaceRootsInFile(w.path, []cid.Cid{root}); err != nil {
		return fmt.Errorf("%w: failed to set car root: %v", core.ErrIO, err)
	}
	return nil
}

// Abort closes the file and removes it.
func (w *Writer) Abort() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.done {
		w.done = true
		_ = w.bs.Finalize()
	}
	if err := os.Remove(w.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// BlockInfo summarizes one decoded block.
type BlockInfo struct {
	CID        cid.Cid
	Size       int
	Valid      bool // block bytes hash to CID
	Type       pb.DataType
	DataLen    int
	Filesize   *uint64
	Blocksizes []uint64
	Links      []pb.PBLink
}

// Summary is the content of a CAR file.
type Summary struct {
	Roots  []cid.Cid
	Blocks []BlockInfo
}

// Inspect reads the CAR at path linearly and decodes every block as UnixFS
// in dag-pb.
func Inspect(ctx context.Context, path string) (Summary, error) {
	f, err := os.Open(path)
	if err != nil {
		return Summary{}, fmt.Errorf("%w: %v", core.ErrIO, err)
	}
	defer f.Close()

	br, err := carv2.NewBlockReader(f, carv2.WithTrustedCAR(true))
	if err != nil {
		return Summary{}, fmt.Errorf("%w: failed to create block reader for %s: %v", core.ErrCorrupt, path, err)
	}

	cids := cidutil.NewBuilder()
	sum := Summary{Roots: br.Roots}

	for {
		if ctx.Err() != nil {
			return Summary{}, ctx.Err()
		}
		blk, err := br.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return sum, nil
			}
			return Summary{}, fmt.Errorf("%w: failed to read block from %s: %v", core.ErrCorrupt, path, err)
		}

		info, err := describe(blk)
		if err != nil {
			return Summary{}, err
		}
		info.Valid = cids.Verify(blk.Cid(), blk.RawData()) == nil
		sum.Blocks = append(sum.Blocks, info)
	}
}

func describe(blk blocks.Block) (BlockInfo, error) {
	raw := blk.RawData()
	node, err := pb.UnmarshalNode(raw)
	if err != nil {
		return BlockInfo{}, fmt.Errorf("block %s: %w", blk.Cid(), err)
	}
	data, err := pb.UnmarshalData(node.Data)
	if err != nil {
		return BlockInfo{}, fmt.Errorf("block %s: %w", blk.Cid(), err)
	}

	return BlockInfo{
		CID:        blk.Cid(),
		Size:       len(raw),
		Type:       data.Type,
		DataLen:    len(data.Data),
		Filesize:   data.Filesize,
		Blocksizes: data.Blocksizes,
		Links:      node.Links,
	}, nil
}
