// Package pb implements the UnixFS and dag-pb protobuf messages directly on
// the protobuf wire format. Field numbers and ordering follow unixfs.proto and
// merkledag.proto; any change here changes every hash downstream.
package pb

import (
	"fmt"

	"github.com/agenthands/cidsum/pkg/core"
	"google.golang.org/protobuf/encoding/protowire"
)

// DataType is the UnixFS node kind.
type DataType int32

const (
	DataRaw       DataType = 0
	DataDirectory DataType = 1
	DataFile      DataType = 2
	DataMetadata  DataType = 3
	DataSymlink   DataType = 4
	DataHAMTShard DataType = 5
)

func (t DataType) String() string {
	switch t {
	case DataRaw:
		return "Raw"
	case DataDirectory:
		return "Directory"
	case DataFile:
		return "File"
	case DataMetadata:
		return "Metadata"
	case DataSymlink:
		return "Symlink"
	case DataHAMTShard:
		return "HAMTShard"
	default:
		return fmt.Sprintf("DataType(%d)", int32(t))
	}
}

const (
	dataFieldType       protowire.Number = 1
	dataFieldData       protowire.Number = 2
	dataFieldFilesize   protowire.Number = 3
	dataFieldBlocksizes protowire.Number = 4
	dataFieldHashType   protowire.Number = 5
	dataFieldFanout     protowire.Number = 6
)

// Data is the UnixFS envelope carried in the Data field of a dag-pb node.
type Data struct {
	Type       DataType
	Data       []byte
	Filesize   *uint64 // nil when absent
	Blocksizes []uint64

	// Only populated when decoding HAMT shards; never written by cidsum.
	HashType *uint64
	Fanout   *uint64
}

// Marshal serializes d in field-number order. An empty Data payload is
// omitted, the form an IPFS node writes for empty leaves.
func (d *Data) Marshal() ([]byte, error) {
	if d == nil {
		return nil, fmt.Errorf("%w: nil unixfs data", core.ErrSerialization)
	}
	if d.Type < DataRaw || d.Type > DataHAMTShard {
		return nil, fmt.Errorf("%w: unknown unixfs type %d", core.ErrSerialization, d.Type)
	}

	b := make([]byte, 0, 16+len(d.Data)+len(d.Blocksizes)*4)
	b = protowire.AppendTag(b, dataFieldType, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(d.Type))
	if len(d.Data) > 0 {
		b = protowire.AppendTag(b, dataFieldData, protowire.BytesType)
		b = protowire.AppendBytes(b, d.Data)
	}
	if d.Filesize != nil {
		b = protowire.AppendTag(b, dataFieldFilesize, protowire.VarintType)
		b = protowire.AppendVarint(b, *d.Filesize)
	}
	for _, bs := range d.Blocksizes {
		b = protowire.AppendTag(b, dataFieldBlocksizes, protowire.VarintType)
		b = protowire.AppendVarint(b, bs)
	}
	if d.HashType != nil {
		b = protowire.AppendTag(b, dataFieldHashType, protowire.VarintType)
		b = protowire.AppendVarint(b, *d.HashType)
	}
	if d.Fanout != nil {
		b = protowire.AppendTag(b, dataFieldFanout, protowire.VarintType)
		b = protowire.AppendVarint(b, *d.Fanout)
	}
	return b, nil
}

// UnmarshalData decodes a UnixFS envelope. Unknown fields are skipped.
func UnmarshalData(b []byte) (*Data, error) {
	d := &Data{}
	seenType := false

	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, fmt.Errorf("%w: unixfs tag: %v", core.ErrCorrupt, protowire.ParseError(n))
		}
		b = b[n:]

		switch {
		case num == dataFieldType && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return nil, fmt.Errorf("%w: unixfs type: %v", core.ErrCorrupt, protowire.ParseError(n))
			}
			d.Type = DataType(v)
			seenType = true
			b = b[n:]
		case num == dataFieldData && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, fmt.Errorf("%w: unixfs data: %v", core.ErrCorrupt, protowire.ParseError(n))
			}
			d.Data = append([]byte(nil), v...)
			b = b[n:]
		case num == dataFieldFilesize && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return nil, fmt.Errorf("%w: unixfs filesize: %v", core.ErrCorrupt, protowire.ParseError(n))
			}
			d.Filesize = &v
			b = b[n:]
		case num == dataFieldBlocksizes && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return nil, fmt.Errorf("%w: unixfs blocksize: %v", core.ErrCorrupt, protowire.ParseError(n))
			}
			d.Blocksizes = append(d.Blocksizes, v)
			b = b[n:]
		case num == dataFieldBlocksizes && typ == protowire.BytesType:
			// packed encoding, accepted on read
			packed, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, fmt.Errorf("%w: unixfs blocksizes: %v", core.ErrCorrupt, protowire.ParseError(n))
			}
			for len(packed) > 0 {
				v, m := protowire.ConsumeVarint(packed)
				if m < 0 {
					return nil, fmt.Errorf("%w: unixfs blocksizes: %v", core.ErrCorrupt, protowire.ParseError(m))
				}
				d.Blocksizes = append(d.Blocksizes, v)
				packed = packed[m:]
			}
			b = b[n:]
		case num == dataFieldHashType && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return nil, fmt.Errorf("%w: unixfs hashType: %v", core.ErrCorrupt, protowire.ParseError(n))
			}
			d.HashType = &v
			b = b[n:]
		case num == dataFieldFanout && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return nil, fmt.Errorf("%w: unixfs fanout: %v", core.ErrCorrupt, protowire.ParseError(n))
			}
			d.Fanout = &v
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return nil, fmt.Errorf("%w: unixfs field %d: %v", core.ErrCorrupt, num, protowire.ParseError(n))
			}
			b = b[n:]
		}
	}

	if !seenType {
		return nil, fmt.Errorf("%w: unixfs data without Type", core.ErrCorrupt)
	}
	return d, nil
}
