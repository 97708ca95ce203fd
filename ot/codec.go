package ot

import (
	"encoding/binary"
	"fmt"
)

// Wire format: a uvarint operation count, then per operation a discriminator
// byte (1=Retain, 2=Insert, 3=Delete) and its payload. Retain and Delete
// carry a uvarint count; Insert carries a uvarint unit count followed by each
// UTF-16 code unit as a uvarint-encoded 32-bit value. The top 16 bits of
// every insert value must be zero; any other encoding is rejected.
const (
	wireRetain = 1
	wireInsert = 2
	wireDelete = 3
)

// maxWireOps bounds decoder allocations against hostile length prefixes.
const maxWireOps = 1 << 20

// EncodeChangeSet serializes a change set to its wire form.
func EncodeChangeSet(cs ChangeSet) ([]byte, error) {
	if err := cs.Validate(); err != nil {
		return nil, err
	}
	buf := binary.AppendUvarint(nil, uint64(len(cs.Ops)))
	for _, o := range cs.Ops {
		switch {
		case o.IsRetain():
			buf = append(buf, wireRetain)
			buf = binary.AppendUvarint(buf, uint64(o.Retain))
		case o.IsInsert():
			buf = append(buf, wireInsert)
			buf = binary.AppendUvarint(buf, uint64(len(o.Insert)))
			for _, u := range o.Insert {
				buf = binary.AppendUvarint(buf, uint64(u))
			}
		case o.IsDelete():
			buf = append(buf, wireDelete)
			buf = binary.AppendUvarint(buf, uint64(o.Delete))
		}
	}
	return buf, nil
}

// DecodeChangeSet parses the wire form. Unknown discriminators, zero counts,
// insert values above 0xFFFF, truncated input, and trailing bytes are all
// rejected with ErrMalformedChangeSet. The result is canonical: adjacent
// operations are coalesced and Insert-before-Delete ordering restored.
func DecodeChangeSet(data []byte) (ChangeSet, error) {
	pos := 0
	readUvarint := func() (uint64, error) {
		v, n := binary.Uvarint(data[pos:])
		if n <= 0 {
			return 0, fmt.Errorf("decode: truncated varint at byte %d: %w", pos, ErrMalformedChangeSet)
		}
		pos += n
		return v, nil
	}

	count, err := readUvarint()
	if err != nil {
		return ChangeSet{}, err
	}
	if count > maxWireOps {
		return ChangeSet{}, fmt.Errorf("decode: %d operations exceeds limit: %w", count, ErrMalformedChangeSet)
	}

	var cs ChangeSet
	for i := uint64(0); i < count; i++ {
		if pos >= len(data) {
			return ChangeSet{}, fmt.Errorf("decode: truncated at op %d: %w", i, ErrMalformedChangeSet)
		}
		tag := data[pos]
		pos++
		switch tag {
		case wireRetain, wireDelete:
			n, err := readUvarint()
			if err != nil {
				return ChangeSet{}, err
			}
			if n == 0 || n > maxWireOps {
				return ChangeSet{}, fmt.Errorf("decode: op %d: invalid count %d: %w", i, n, ErrMalformedChangeSet)
			}
			if tag == wireRetain {
				cs.Retain(int(n))
			} else {
				cs.Delete(int(n))
			}
		case wireInsert:
			n, err := readUvarint()
			if err != nil {
				return ChangeSet{}, err
			}
			if n == 0 || n > maxWireOps {
				return ChangeSet{}, fmt.Errorf("decode: op %d: invalid insert length %d: %w", i, n, ErrMalformedChangeSet)
			}
			units := make([]uint16, n)
			for j := range units {
				v, err := readUvarint()
				if err != nil {
					return ChangeSet{}, err
				}
				if v > 0xFFFF {
					return ChangeSet{}, fmt.Errorf("decode: op %d: insert value 0x%X exceeds UTF-16 code unit range: %w",
						i, v, ErrMalformedChangeSet)
				}
				units[j] = uint16(v)
			}
			cs.Insert(units)
		default:
			return ChangeSet{}, fmt.Errorf("decode: op %d: unknown discriminator %d: %w", i, tag, ErrMalformedChangeSet)
		}
	}
	if pos != len(data) {
		return ChangeSet{}, fmt.Errorf("decode: %d trailing bytes: %w", len(data)-pos, ErrMalformedChangeSet)
	}
	return cs, nil
}
