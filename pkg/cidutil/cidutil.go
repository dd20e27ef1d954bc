package cidutil

import (
	"bytes"
	"fmt"

	"github.com/agenthands/cidsum/pkg/core"
	"github.com/ipfs/go-cid"
	mbase "github.com/multiformats/go-multibase"
	mc "github.com/multiformats/go-multicodec"
	"github.com/multiformats/go-multihash"
)

// DagProtobuf is the multicodec tag carried by CIDv1 dag-pb identifiers.
const DagProtobuf = uint64(mc.DagPb)

// Builder defines the interface for creating and verifying node CIDs.
type Builder interface {
	NodeCID(node []byte, version int) (cid.Cid, error)
	Verify(c cid.Cid, node []byte) error
}

type builder struct{}

// NewBuilder returns a new CID builder implementation.
func NewBuilder() Builder {
	return &builder{}
}

// NodeCID hashes a serialized dag-pb node with sha2-256 and wraps the
// multihash as a CIDv0 or a dag-pb CIDv1.
func (b *builder) NodeCID(node []byte, version int) (cid.Cid, error) {
	if version != core.CIDv0 && version != core.CIDv1 {
		return cid.Undef, fmt.Errorf("%w: unsupported cid version %d", core.ErrInvalidArgument, version)
	}

	hash, err := multihash.Sum(node, multihash.SHA2_256, -1)
	if err != nil {
		return cid.Undef, fmt.Errorf("failed to compute multihash: %w", err)
	}

	if version == core.CIDv0 {
		return cid.NewCidV0(hash), nil
	}
	return cid.NewCidV1(DagProtobuf, hash), nil
}

func (b *builder) Verify(c cid.Cid, node []byte) error {
	if !c.Defined() {
		return fmt.Errorf("%w: undefined CID", core.ErrCorrupt)
	}

	prefix := c.Prefix()
	hash, err := multihash.Sum(node, prefix.MhType, prefix.MhLength)
	if err != nil {
		return fmt.Errorf("failed to compute multihash for verification: %w", err)
	}

	if !bytes.Equal(c.Hash(), hash) {
		return fmt.Errorf("%w: CID mismatch for %s", core.ErrCorrupt, c)
	}

	return nil
}

// String renders c the way an IPFS node prints it: bare base58btc for v0,
// multibase base32 ("b" prefix) for v1.
func String(c cid.Cid) (string, error) {
	switch c.Version() {
	case core.CIDv0:
		return c.String(), nil
	case core.CIDv1:
		s, err := c.StringOfBase(mbase.Base32)
		if err != nil {
			return "", fmt.Errorf("%w: %v", core.ErrSerialization, err)
		}
		return s, nil
	default:
		return "", fmt.Errorf("%w: unsupported cid version %d", core.ErrInvalidArgument, c.Version())
	}
}

// HashToCID hashes a serialized node and returns its textual CID.
func HashToCID(node []byte, version int) (string, error) {
	c, err := NewBuilder().NodeCID(node, version)
	if err != nil {
		return "", err
	}
	return String(c)
}

// Multihash returns the raw multihash of c, the value dag-pb links carry.
func Multihash(c cid.Cid) []byte {
	return []byte(c.Hash())
}

// Parse decodes a textual CID of either version.
func Parse(s string) (cid.Cid, error) {
	c, err := cid.Decode(s)
	if err != nil {
		return cid.Undef, fmt.Errorf("%w: %v", core.ErrInvalidArgument, err)
	}
	return c, nil
}
