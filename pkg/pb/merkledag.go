package pb

import (
	"fmt"

	"github.com/agenthands/cidsum/pkg/core"
	"google.golang.org/protobuf/encoding/protowire"
)

const (
	linkFieldHash  protowire.Number = 1
	linkFieldName  protowire.Number = 2
	linkFieldTsize protowire.Number = 3

	nodeFieldData  protowire.Number = 1
	nodeFieldLinks protowire.Number = 2
)

// PBLink points at a child node by its binary multihash.
type PBLink struct {
	Hash  []byte
	Name  string
	Tsize uint64
}

// PBNode is a dag-pb node.
type PBNode struct {
	Data  []byte
	Links []PBLink
}

func (l *PBLink) marshal(b []byte) []byte {
	b = protowire.AppendTag(b, linkFieldHash, protowire.BytesType)
	b = protowire.AppendBytes(b, l.Hash)
	b = protowire.AppendTag(b, linkFieldName, protowire.BytesType)
	b = protowire.AppendString(b, l.Name)
	b = protowire.AppendTag(b, linkFieldTsize, protowire.VarintType)
	b = protowire.AppendVarint(b, l.Tsize)
	return b
}

func (l *PBLink) size() int {
	return protowire.SizeTag(linkFieldHash) + protowire.SizeBytes(len(l.Hash)) +
		protowire.SizeTag(linkFieldName) + protowire.SizeBytes(len(l.Name)) +
		protowire.SizeTag(linkFieldTsize) + protowire.SizeVarint(l.Tsize)
}

// Marshal serializes n in canonical dag-pb form: every link in order, then
// the data field. For leaves this is identical to field-number order.
func (n *PBNode) Marshal() ([]byte, error) {
	if n == nil {
		return nil, fmt.Errorf("%w: nil dag-pb node", core.ErrSerialization)
	}

	size := protowire.SizeTag(nodeFieldData) + protowire.SizeBytes(len(n.Data))
	for i := range n.Links {
		if len(n.Links[i].Hash) == 0 {
			return nil, fmt.Errorf("%w: link %d has no hash", core.ErrSerialization, i)
		}
		size += protowire.SizeTag(nodeFieldLinks) + protowire.SizeBytes(n.Links[i].size())
	}

	b := make([]byte, 0, size)
	for i := range n.Links {
		l := &n.Links[i]
		b = protowire.AppendTag(b, nodeFieldLinks, protowire.BytesType)
		b = protowire.AppendVarint(b, uint64(l.size()))
		b = l.marshal(b)
	}
	if n.Data != nil {
		b = protowire.AppendTag(b, nodeFieldData, protowire.BytesType)
		b = protowire.AppendBytes(b, n.Data)
	}
	return b, nil
}

// UnmarshalNode decodes a dag-pb node. Field order is not enforced on read.
func UnmarshalNode(b []byte) (*PBNode, error) {
	n := &PBNode{}
	for len(b) > 0 {
		num, typ, m := protowire.ConsumeTag(b)
		if m < 0 {
			return nil, fmt.Errorf("%w: dag-pb tag: %v", core.ErrCorrupt, protowire.ParseError(m))
		}
		b = b[m:]

		if typ != protowire.BytesType || (num != nodeFieldData && num != nodeFieldLinks) {
			return nil, fmt.Errorf("%w: unexpected dag-pb field %d (wire type %d)", core.ErrCorrupt, num, typ)
		}

		v, m := protowire.ConsumeBytes(b)
		if m < 0 {
			return nil, fmt.Errorf("%w: dag-pb field %d: %v", core.ErrCorrupt, num, protowire.ParseError(m))
		}
		b = b[m:]

		if num == nodeFieldData {
			n.Data = append([]byte{}, v...)
			continue
		}
		l, err := unmarshalLink(v)
		if err != nil {
			return nil, fmt.Errorf("link %d: %w", len(n.Links), err)
		}
		n.Links = append(n.Links, l)
	}
	return n, nil
}

func unmarshalLink(b []byte) (PBLink, error) {
	var l PBLink
	for len(b) > 0 {
		num, typ, m := protowire.ConsumeTag(b)
		if m < 0 {
			return l, fmt.Errorf("%w: link tag: %v", core.ErrCorrupt, protowire.ParseError(m))
		}
		b = b[m:]

		switch {
		case num == linkFieldHash && typ == protowire.BytesType:
			v, m := protowire.ConsumeBytes(b)
			if m < 0 {
				return l, fmt.Errorf("%w: link hash: %v", core.ErrCorrupt, protowire.ParseError(m))
			}
			l.Hash = append([]byte(nil), v...)
			b = b[m:]
		case num == linkFieldName && typ == protowire.BytesType:
			v, m := protowire.ConsumeString(b)
			if m < 0 {
				return l, fmt.Errorf("%w: link name: %v", core.ErrCorrupt, protowire.ParseError(m))
			}
			l.Name = v
			b = b[m:]
		case num == linkFieldTsize && typ == protowire.VarintType:
			v, m := protowire.ConsumeVarint(b)
			if m < 0 {
				return l, fmt.Errorf("%w: link tsize: %v", core.ErrCorrupt, protowire.ParseError(m))
			}
			l.Tsize = v
			b = b[m:]
		default:
			return l, fmt.Errorf("%w: unexpected link field %d (wire type %d)", core.ErrCorrupt, num, typ)
		}
	}
	if len(l.Hash) == 0 {
		return l, fmt.Errorf("%w: link without hash", core.ErrCorrupt)
	}
	return l, nil
}
