// Package summary implements the segment summary (spec.md §4.3): an ordered
// index of a segment's committed chunks, each carrying a probabilistic key
// digest, plus the override-detection helpers the flush protocol drives.
package summary

import (
	"github.com/vaultds/segmentstore/internal/digest"
	"github.com/vaultds/segmentstore/pkg/types"
)

// ChunkSummary is a compact per-chunk record: a probabilistic membership
// digest over the chunk's keys and its row count.
type ChunkSummary struct {
	Digest  digest.KeySetDigest
	NumRows int
}

// entry pairs a chunk id with its summary, preserving commit order.
type entry struct {
	ChunkID types.ChunkID
	Summary ChunkSummary
}

// SegmentSummary is an ordered sequence of (ChunkID, ChunkSummary) for every
// committed chunk of a segment. It is immutable: WithKeys returns a new
// SegmentSummary rather than mutating the receiver, which is what lets a
// flush attempt build a candidate summary without disturbing the version
// other concurrent readers/flushers see.
type SegmentSummary struct {
	entries []entry
}

// Empty is the summary of a segment with no committed chunks.
func Empty() *SegmentSummary {
	return &SegmentSummary{}
}

// NumChunks returns the number of committed chunks in the summary.
func (s *SegmentSummary) NumChunks() int {
	if s == nil {
		return 0
	}
	return len(s.entries)
}

// Chunks returns the chunk ids in write (commit) order.
func (s *SegmentSummary) Chunks() []types.ChunkID {
	if s == nil {
		return nil
	}
	ids := make([]types.ChunkID, len(s.entries))
	for i, e := range s.entries {
		ids[i] = e.ChunkID
	}
	return ids
}

// ChunkSummaryFor returns the ChunkSummary for id, if present.
func (s *SegmentSummary) ChunkSummaryFor(id types.ChunkID) (ChunkSummary, bool) {
	if s == nil {
		return ChunkSummary{}, false
	}
	for _, e := range s.entries {
		if e.ChunkID == id {
			return e.Summary, true
		}
	}
	return ChunkSummary{}, false
}

// PossibleOverrides returns the ids of chunks whose digest claims membership
// for at least one of incomingKeys. Any digest hit, however small the count,
// triggers the exact check; there is no lower bound on the hit count.
func (s *SegmentSummary) PossibleOverrides(incomingKeys []types.RowKey) []types.ChunkID {
	if s == nil {
		return nil
	}
	var candidates []types.ChunkID
	for _, e := range s.entries {
		count := 0
		for _, k := range incomingKeys {
			if e.Summary.Digest.Contains(k) {
				count++
			}
		}
		if count > 0 {
			candidates = append(candidates, e.ChunkID)
		}
	}
	return candidates
}

// FetchedChunk carries the decoded keys of an already-committed chunk, in
// that chunk's own key order, for use by ActualOverrides.
type FetchedChunk struct {
	ChunkID types.ChunkID
	Keys    []types.RowKey
}

// Override is a (priorChunkId, positions) pair: the positions in priorChunkId
// that a new chunk supersedes.
type Override struct {
	ChunkID   types.ChunkID
	Positions []int
}

// ActualOverrides computes, for each fetched chunk, the ascending positions
// (in that chunk's own key order) whose key equals any of incomingKeys.
// Chunks with no overridden positions are omitted from the result, matching
// the flush protocol's "omitting entries with empty position lists" rule.
func (s *SegmentSummary) ActualOverrides(incomingKeys []types.RowKey, fetched []FetchedChunk) []Override {
	incoming := make(map[string]struct{}, len(incomingKeys))
	for _, k := range incomingKeys {
		incoming[k.String()] = struct{}{}
	}

	var overrides []Override
	for _, fc := range fetched {
		var positions []int
		for pos, k := range fc.Keys {
			if _, hit := incoming[k.String()]; hit {
				positions = append(positions, pos)
			}
		}
		if len(positions) > 0 {
			overrides = append(overrides, Override{ChunkID: fc.ChunkID, Positions: positions})
		}
	}
	return overrides
}

// WithKeys returns a new SegmentSummary with (chunkId, ChunkSummary) appended
// to the end. The receiver is not mutated.
func (s *SegmentSummary) WithKeys(chunkID types.ChunkID, keys []types.RowKey) *SegmentSummary {
	next := &SegmentSummary{entries: make([]entry, 0, s.NumChunks()+1)}
	if s != nil {
		next.entries = append(next.entries, s.entries...)
	}
	next.entries = append(next.entries, entry{
		ChunkID: chunkID,
		Summary: ChunkSummary{
			Digest:  digest.NewBloomDigest(keys),
			NumRows: len(keys),
		},
	})
	return next
}

// Size returns an upper-bound byte size for storage provisioning: the sum of
// each chunk's digest size plus a fixed per-entry header.
func (s *SegmentSummary) Size() int {
	if s == nil {
		return 4 // just the count prefix
	}
	total := 4
	for _, e := range s.entries {
		total += 16 + 4 + e.Summary.Digest.SizeBytes() + 4
	}
	return total
}
