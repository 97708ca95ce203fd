package server

import (
	"github.com/cespare/xxhash/v2"

	"github.com/lhoward/cowrite/ot"
)

// changeSetDigest hashes a change set's wire encoding. Used to recognize a
// retried submission without holding the payload.
func changeSetDigest(cs ot.ChangeSet) (uint64, error) {
	blob, err := ot.EncodeChangeSet(cs)
	if err != nil {
		return 0, err
	}
	return xxhash.Sum64(blob), nil
}
