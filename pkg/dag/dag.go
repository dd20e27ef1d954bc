// Package dag builds the UnixFS-in-dag-pb nodes an IPFS node produces for a
// flat, fixed-size chunked file.
package dag

import (
	"fmt"

	"github.com/agenthands/cidsum/pkg/cidutil"
	"github.com/agenthands/cidsum/pkg/core"
	"github.com/agenthands/cidsum/pkg/pb"
)

// WrapLeaf returns the UnixFS file envelope for one chunk.
func WrapLeaf(chunk []byte) *pb.Data {
	size := uint64(len(chunk))
	return &pb.Data{
		Type:     pb.DataFile,
		Data:     chunk,
		Filesize: &size,
	}
}

// WrapNode returns a link-less dag-pb node carrying a serialized envelope.
func WrapNode(envelope []byte) *pb.PBNode {
	if envelope == nil {
		envelope = []byte{}
	}
	return &pb.PBNode{Data: envelope}
}

// WrapRoot links every chunk in order. Link names are always empty, and the
// envelope lists each child's serialized size as its blocksize.
func WrapRoot(results []core.ChunkResult) (*pb.PBNode, error) {
	if len(results) == 0 {
		return nil, fmt.Errorf("%w: root node needs at least one chunk", core.ErrInvalidArgument)
	}

	envelope := &pb.Data{
		Type:       pb.DataFile,
		Blocksizes: make([]uint64, len(results)),
	}
	links := make([]pb.PBLink, len(results))

	for i, r := range results {
		if !r.CID.Defined() {
			return nil, fmt.Errorf("%w: chunk %d has no CID", core.ErrInvalidArgument, i)
		}
		envelope.Blocksizes[i] = r.Size
		links[i] = pb.PBLink{
			Hash:  cidutil.Multihash(r.CID),
			Name:  "",
			Tsize: r.Size,
		}
	}

	data, err := envelope.Marshal()
	if err != nil {
		return nil, err
	}

	return &pb.PBNode{Data: data, Links: links}, nil
}

// Leaf wraps and serializes one chunk into leaf node bytes.
func Leaf(chunk []byte) ([]byte, error) {
	envelope, err := WrapLeaf(chunk).Marshal()
	if err != nil {
		return nil, err
	}
	return WrapNode(envelope).Marshal()
}
