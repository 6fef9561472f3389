// Package chunk implements the chunk model (spec.md §4.2): an immutable
// append-only batch of rows with per-column byte-vector payloads and an
// override map declaring which positions in earlier chunks this chunk
// supersedes.
package chunk

import (
	"fmt"
	"sort"

	"github.com/vaultds/segmentstore/pkg/types"
)

// Overrides maps a prior chunk id to the list of row positions in that chunk
// which this chunk supersedes. New sorts each list ascending; it does not
// remove duplicate positions.
type Overrides map[types.ChunkID][]int

// Chunk is a set of numRows rows appended in one flush. It is immutable
// after construction: nothing in this package mutates a Chunk's fields
// post-New.
type Chunk struct {
	ChunkID        types.ChunkID
	Keys           []types.RowKey
	Columns        []string
	ColumnVectors  [][]byte
	NumRows        int
	ChunkOverrides Overrides
}

// New constructs a Chunk, validating the contract from spec.md §4.2:
// len(columns) == len(columnVectors), len(keys) == numRows, and every
// override refers to a chunk id strictly earlier than id. Override positions
// are not range-checked.
func New(id types.ChunkID, keys []types.RowKey, columns []string, columnVectors [][]byte, numRows int, overrides Overrides) (*Chunk, error) {
	if len(columns) != len(columnVectors) {
		return nil, fmt.Errorf("chunk: columns/columnVectors length mismatch: %d vs %d", len(columns), len(columnVectors))
	}
	if len(keys) != numRows {
		return nil, fmt.Errorf("chunk: keys length %d does not match numRows %d", len(keys), numRows)
	}

	normalized := make(Overrides, len(overrides))
	for priorID, positions := range overrides {
		if priorID.Compare(id) >= 0 {
			return nil, fmt.Errorf("chunk: override references chunk %s which is not strictly earlier than %s", priorID, id)
		}
		if len(positions) == 0 {
			continue
		}
		sorted := append([]int(nil), positions...)
		sort.Ints(sorted)
		normalized[priorID] = sorted
	}

	return &Chunk{
		ChunkID:        id,
		Keys:           keys,
		Columns:        columns,
		ColumnVectors:  columnVectors,
		NumRows:        numRows,
		ChunkOverrides: normalized,
	}, nil
}

// OverridesFor returns the sorted position list this chunk declares against
// priorID, or nil if it declares no overrides against that chunk.
func (c *Chunk) OverridesFor(priorID types.ChunkID) []int {
	return c.ChunkOverrides[priorID]
}
