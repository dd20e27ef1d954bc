package manifest

import (
	"bytes"
	"fmt"

	"github.com/agenthands/cidsum/pkg/core"
	"github.com/fxamacker/cbor/v2"
	"github.com/ipfs/go-cid"
)

// ChunkRef references a leaf by its CID, serialized node size and payload length.
type ChunkRef struct {
	CID  []byte `cbor:"cid"`
	Size uint64 `cbor:"size"`
	Len  uint64 `cbor:"len"`
}

// Cid decodes the chunk's CID.
func (r ChunkRef) Cid() (cid.Cid, error) {
	c, err := cid.Cast(r.CID)
	if err != nil {
		return cid.Undef, fmt.Errorf("%w: invalid chunk CID: %v", core.ErrCorrupt, err)
	}
	return c, nil
}

// ManifestV1 records the outcome of one CID computation.
type ManifestV1 struct {
	Version    uint16     `cbor:"version"`
	CIDVersion uint64     `cbor:"cid_version"`
	Root       []byte     `cbor:"root"`
	Length     uint64     `cbor:"length"`
	NodeSize   uint64     `cbor:"node_size"`
	Chunks     []ChunkRef `cbor:"chunks"`
}

// New builds a manifest from a finished pipeline pass.
func New(root cid.Cid, length, nodeSize uint64, chunks []core.ChunkResult) *ManifestV1 {
	m := &ManifestV1{
		Version:    1,
		CIDVersion: root.Version(),
		Root:       root.Bytes(),
		Length:     length,
		NodeSize:   nodeSize,
		Chunks:     make([]ChunkRef, len(chunks)),
	}
	for i, c := range chunks {
		m.Chunks[i] = ChunkRef{CID: c.CID.Bytes(), Size: c.Size, Len: c.DataLen}
	}
	return m
}

// RootCID returns the decoded root CID.
func (m *ManifestV1) RootCID() (cid.Cid, error) {
	c, err := cid.Cast(m.Root)
	if err != nil {
		return cid.Undef, fmt.Errorf("%w: invalid root CID: %v", core.ErrCorrupt, err)
	}
	return c, nil
}

// Codec defines the interface for manifest encoding/decoding and validation.
type Codec interface {
	Encode(m *ManifestV1) ([]byte, error)
	Decode(b []byte) (*ManifestV1, error)
}

type codec struct {
	encMode cbor.EncMode
	decMode cbor.DecMode
}

// NewCodec returns a new Codec implementation.
func NewCodec() Codec {
	// Use canonical CBOR encoding (Core Deterministic Encoding Requirements)
	em, _ := cbor.CanonicalEncOptions().EncMode()
	dm, _ := cbor.DecOptions{
		DupMapKey:        cbor.DupMapKeyEnforcedAPF,
		IndefLength:      cbor.IndefLengthForbidden,
		MaxArrayElements: 1 << 24,
	}.DecMode()
	return &codec{
		encMode: em,
		decMode: dm,
	}
}

func (c *codec) Encode(m *ManifestV1) ([]byte, error) {
	if err := c.validate(m); err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrInvalidArgument, err)
	}

	b, err := c.encMode.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrSerialization, err)
	}
	return b, nil
}

func (c *codec) Decode(b []byte) (*ManifestV1, error) {
	var m ManifestV1
	if err := c.decMode.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("%w: failed to unmarshal manifest: %v", core.ErrCorrupt, err)
	}

	if err := c.validate(&m); err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrCorrupt, err)
	}

	return &m, nil
}

func (c *codec) validate(m *ManifestV1) error {
	if m == nil {
		return fmt.Errorf("nil manifest")
	}
	if m.Version != 1 {
		return fmt.Errorf("unsupported manifest version %d", m.Version)
	}

	root, err := cid.Cast(m.Root)
	if err != nil {
		return fmt.Errorf("invalid root CID: %v", err)
	}
	if root.Version() != m.CIDVersion {
		return fmt.Errorf("root is CIDv%d, manifest says v%d", root.Version(), m.CIDVersion)
	}

	if want := core.ChunkCount(m.Length); uint64(len(m.Chunks)) != want {
		return fmt.Errorf("chunk count mismatch: %d bytes need %d chunks, manifest has %d", m.Length, want, len(m.Chunks))
	}

	var sumLength uint64
	for i, chunk := range m.Chunks {
		if len(chunk.CID) == 0 {
			return fmt.Errorf("chunk %d has empty CID", i)
		}
		if chunk.Len > core.DefaultChunkSize {
			return fmt.Errorf("chunk %d carries %d bytes", i, chunk.Len)
		}
		sumLength += chunk.Len
	}

	if sumLength != m.Length {
		return fmt.Errorf("length mismatch: manifest says %d, chunks sum to %d", m.Length, sumLength)
	}

	if len(m.Chunks) == 1 && !bytes.Equal(m.Chunks[0].CID, m.Root) {
		return fmt.Errorf("single-chunk manifest root differs from its chunk")
	}

	return nil
}
