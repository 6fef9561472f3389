// Package bloom implements the probabilistic set-membership structure backing
// internal/digest's KeySetDigest: a bloom filter with murmur3 double hashing,
// no false negatives, and a tunable false-positive rate. The surface here is
// pared to what a key-set digest needs (build from an expected item count,
// add, test, serialize); the parameter-tuning and inspection surface a
// general-purpose bloom filter library would expose (raw bit/hash-count
// constructors, fill-ratio estimation, bit-array introspection) is dropped
// because nothing in this segment store's flush/read path needs it.
package bloom

import (
	"math"
	"sync"

	"github.com/spaolacci/murmur3"
)

// BloomFilter is a fixed-size bloom filter over byte-slice keys. It
// guarantees no false negatives: once a key is added, Contains for that key
// always returns true.
type BloomFilter struct {
	mu        sync.RWMutex
	bits      []uint64
	numBits   uint64
	numHashes uint64
	count     uint64
}

// newFilter allocates a filter with numBits rounded up to a whole number of
// 64-bit words and numHashes hash rounds.
func newFilter(numBits, numHashes int) *BloomFilter {
	if numBits <= 0 {
		numBits = 1024
	}
	if numHashes <= 0 {
		numHashes = 7
	}

	numWords := (numBits + 63) / 64
	actualBits := uint64(numWords * 64)

	return &BloomFilter{
		bits:      make([]uint64, numWords),
		numBits:   actualBits,
		numHashes: uint64(numHashes),
	}
}

// NewWithEstimates sizes a filter for expectedItems keys at targetFPR false
// positive rate, per optimalParameters.
func NewWithEstimates(expectedItems int, targetFPR float64) *BloomFilter {
	if expectedItems <= 0 {
		expectedItems = 1000
	}
	if targetFPR <= 0 || targetFPR >= 1 {
		targetFPR = 0.01
	}

	numBits, numHashes := optimalParameters(expectedItems, targetFPR)
	return newFilter(numBits, numHashes)
}

// optimalParameters derives bit count and hash-function count for the
// expected number of items and target false positive rate:
//
//	m = -n * ln(p) / (ln(2)^2)  where m = bits, n = items, p = FPR
//	k = (m/n) * ln(2)           where k = hash functions
func optimalParameters(expectedItems int, targetFPR float64) (numBits, numHashes int) {
	n := float64(expectedItems)
	p := targetFPR
	ln2Sq := math.Ln2 * math.Ln2

	m := -n * math.Log(p) / ln2Sq
	numBits = int(math.Ceil(m))

	k := (m / n) * math.Ln2
	numHashes = int(math.Ceil(k))

	if numBits < 64 {
		numBits = 64
	}
	if numHashes < 1 {
		numHashes = 1
	}

	return numBits, numHashes
}

// Add adds an item to the filter.
func (bf *BloomFilter) Add(item []byte) {
	bf.mu.Lock()
	defer bf.mu.Unlock()

	h1, h2 := bf.hash128(item)
	for i := uint64(0); i < bf.numHashes; i++ {
		pos := (h1 + i*h2) % bf.numBits
		bf.setBit(pos)
	}
	bf.count++
}

// Contains tests whether item might be in the filter. false means item is
// definitely absent; true means it might be present.
func (bf *BloomFilter) Contains(item []byte) bool {
	bf.mu.RLock()
	defer bf.mu.RUnlock()

	h1, h2 := bf.hash128(item)
	for i := uint64(0); i < bf.numHashes; i++ {
		pos := (h1 + i*h2) % bf.numBits
		if !bf.getBit(pos) {
			return false
		}
	}
	return true
}

// hash128 computes the murmur3 128-bit hash of item as two 64-bit halves,
// used as the double-hashing basis h(i) = h1 + i*h2.
func (bf *BloomFilter) hash128(item []byte) (uint64, uint64) {
	h := murmur3.New128()
	h.Write(item)
	return h.Sum128()
}

func (bf *BloomFilter) setBit(pos uint64) {
	bf.bits[pos/64] |= 1 << (pos % 64)
}

func (bf *BloomFilter) getBit(pos uint64) bool {
	return bf.bits[pos/64]&(1<<(pos%64)) != 0
}

// NumBits returns the number of bits allocated to the filter, used by
// KeySetDigest.SizeBytes to bound the serialized size.
func (bf *BloomFilter) NumBits() int {
	return int(bf.numBits)
}
