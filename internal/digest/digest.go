// Package digest implements the KeySetDigest abstraction from spec.md §4.3:
// a probabilistic set-membership structure over a chunk's keys with no false
// negatives, used to prefilter candidate override chunks before the exact
// key-equality pass in the flush protocol.
package digest

import (
	"github.com/golang/snappy"

	"github.com/vaultds/segmentstore/internal/bloom"
	"github.com/vaultds/segmentstore/pkg/types"
)

// KeySetDigest is a probabilistic membership structure over a set of row
// keys. False positives are allowed; false negatives are never allowed
// (testable property 4 in spec.md §8).
type KeySetDigest interface {
	// Contains reports whether key might be a member. False means key is
	// definitely absent.
	Contains(key types.RowKey) bool
	// Serialize returns the digest's wire bytes.
	Serialize() ([]byte, error)
	// SizeBytes is an upper bound on the serialized size, used by
	// SegmentSummary.Size for storage provisioning.
	SizeBytes() int
}

// TargetFalsePositiveRate is the default FPR used when building a digest
// from a key set, matching the teacher's compaction merger default.
const TargetFalsePositiveRate = 0.01

// BloomDigest is the KeySetDigest implementation backed by internal/bloom's
// murmur3 bloom filter.
type BloomDigest struct {
	filter *bloom.BloomFilter
}

// NewBloomDigest builds a digest sized for len(keys) at the default target
// false-positive rate and populates it with every key.
func NewBloomDigest(keys []types.RowKey) *BloomDigest {
	bf := bloom.NewWithEstimates(len(keys), TargetFalsePositiveRate)
	for _, k := range keys {
		bf.Add([]byte(k))
	}
	return &BloomDigest{filter: bf}
}

// BloomDigestFromBytes restores a digest previously produced by Serialize.
func BloomDigestFromBytes(data []byte) (*BloomDigest, error) {
	bf, err := bloom.DeserializeCompressed(data)
	if err != nil {
		return nil, err
	}
	return &BloomDigest{filter: bf}, nil
}

// Contains reports whether key might be present in the digested key set.
func (d *BloomDigest) Contains(key types.RowKey) bool {
	return d.filter.Contains([]byte(key))
}

// Serialize returns the Snappy-compressed wire form of the underlying bloom
// filter (see internal/bloom.SerializeCompressed).
func (d *BloomDigest) Serialize() ([]byte, error) {
	return bloom.SerializeCompressed(d.filter)
}

// SizeBytes returns the fixed 24-byte header plus snappy's worst-case encoded
// length of the bit array, an upper bound on the length of Serialize's output.
func (d *BloomDigest) SizeBytes() int {
	return 24 + snappy.MaxEncodedLen(d.filter.NumBits()/8)
}
