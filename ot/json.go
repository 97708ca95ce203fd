package ot

import (
	"encoding/json"
	"fmt"
)

// JSON form of an operation, mirroring the wire rules: exactly one field set,
// insert content as 32-bit values holding UTF-16 code units.
type opJSON struct {
	Retain *int     `json:"retain,omitempty"`
	Insert []uint32 `json:"insert,omitempty"`
	Delete *int     `json:"delete,omitempty"`
}

func (o Op) MarshalJSON() ([]byte, error) {
	var j opJSON
	switch {
	case o.IsRetain():
		j.Retain = &o.Retain
	case o.IsInsert():
		j.Insert = make([]uint32, len(o.Insert))
		for i, u := range o.Insert {
			j.Insert[i] = uint32(u)
		}
	case o.IsDelete():
		j.Delete = &o.Delete
	default:
		return nil, fmt.Errorf("marshal op: %w", ErrMalformedChangeSet)
	}
	return json.Marshal(j)
}

func (o *Op) UnmarshalJSON(data []byte) error {
	var j opJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return fmt.Errorf("unmarshal op: %v: %w", err, ErrMalformedChangeSet)
	}
	set := 0
	if j.Retain != nil {
		set++
	}
	if j.Insert != nil {
		set++
	}
	if j.Delete != nil {
		set++
	}
	if set != 1 {
		return fmt.Errorf("unmarshal op: exactly one of retain/insert/delete must be set: %w", ErrMalformedChangeSet)
	}
	*o = Op{}
	switch {
	case j.Retain != nil:
		if *j.Retain <= 0 {
			return fmt.Errorf("unmarshal op: retain %d: %w", *j.Retain, ErrMalformedChangeSet)
		}
		o.Retain = *j.Retain
	case j.Delete != nil:
		if *j.Delete <= 0 {
			return fmt.Errorf("unmarshal op: delete %d: %w", *j.Delete, ErrMalformedChangeSet)
		}
		o.Delete = *j.Delete
	default:
		if len(j.Insert) == 0 {
			return fmt.Errorf("unmarshal op: empty insert: %w", ErrMalformedChangeSet)
		}
		o.Insert = make([]uint16, len(j.Insert))
		for i, v := range j.Insert {
			if v > 0xFFFF {
				return fmt.Errorf("unmarshal op: insert value 0x%X exceeds UTF-16 code unit range: %w",
					v, ErrMalformedChangeSet)
			}
			o.Insert[i] = uint16(v)
		}
	}
	return nil
}

func (cs ChangeSet) MarshalJSON() ([]byte, error) {
	type wire struct {
		Ops []Op `json:"ops"`
	}
	return json.Marshal(wire{Ops: cs.Ops})
}

func (cs *ChangeSet) UnmarshalJSON(data []byte) error {
	type wire struct {
		Ops []Op `json:"ops"`
	}
	var w wire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	// Rebuild through the builder so decoded change sets are canonical.
	*cs = ChangeSet{Ops: w.Ops}.Canonical()
	return nil
}
