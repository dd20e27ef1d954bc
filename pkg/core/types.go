package core

import (
	"github.com/ipfs/go-cid"
)

// DefaultChunkSize is the fixed window used to split input, matching the
// default "size-262144" chunker of an IPFS node.
const DefaultChunkSize = 262144

// Supported CID versions.
const (
	CIDv0 = 0
	CIDv1 = 1
)

// ChunkResult records one hashed leaf node.
type ChunkResult struct {
	CID     cid.Cid
	Size    uint64 // serialized length of the leaf node
	DataLen uint64 // payload bytes carried by the leaf
}

// ChunkCount returns how many chunks an input of n bytes splits into.
func ChunkCount(n uint64) uint64 {
	if n == 0 {
		return 1
	}
	return (n + DefaultChunkSize - 1) / DefaultChunkSize
}
