package cidsum

import (
	"context"
	"log/slog"

	"github.com/agenthands/cidsum/pkg/cidutil"
	"github.com/agenthands/cidsum/pkg/core"
	"github.com/ipfs/go-cid"
)

type ChunkResult = core.ChunkResult

// State is a step of one pipeline pass.
type State int

const (
	StateReading State = iota
	StateAccumulatingChunk
	StateEmitting
	StateSingleChunkDone
	StateBuildingRoot
	StateRootDone
)

func (s State) String() string {
	switch s {
	case StateReading:
		return "reading"
	case StateAccumulatingChunk:
		return "accumulating-chunk"
	case StateEmitting:
		return "emitting"
	case StateSingleChunkDone:
		return "single-chunk-done"
	case StateBuildingRoot:
		return "building-root"
	case StateRootDone:
		return "root-done"
	default:
		return "unknown"
	}
}

// BlockSink receives every node the pipeline serializes, leaves first and
// the root last.
type BlockSink interface {
	PutBlock(ctx context.Context, c cid.Cid, node []byte) error
}

// Options configures a Pipeline.
type Options struct {
	Version int          // 0 or 1
	Sink    BlockSink    // optional
	Logger  *slog.Logger // optional; debug records per state transition
}

// Result describes one completed pass.
type Result struct {
	CID      cid.Cid
	Length   uint64        // input bytes consumed
	NodeSize uint64        // serialized size of the node CID addresses
	Chunks   []ChunkResult // in input order
	State    State         // StateSingleChunkDone or StateRootDone
}

// String returns the textual CID.
func (r Result) String() string {
	s, err := cidutil.String(r.CID)
	if err != nil {
		return r.CID.String()
	}
	return s
}
