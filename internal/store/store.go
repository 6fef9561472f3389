// Package store defines the persistent-store contract the flush and read
// paths are written against (spec.md §6), plus the backends that implement
// it: an in-process local backend for tests and single-node deployments,
// and an S3 backend for production use.
package store

import "context"

// ColumnBytes is a column name paired with its encoded byte vector.
type ColumnBytes struct {
	Column string
	Bytes  []byte
}

// Split describes a contiguous, independently scannable slice of a segment
// produced by ScanSplits.
type Split struct {
	Partition   string
	Segment     string
	MinKey      []byte
	MaxKey      []byte
	ChunkIDs    [][16]byte
	SizeBytes   int64
}

// ScanSplitsOptions bounds a split-planning request.
type ScanSplitsOptions struct {
	MinTokensPerSplit int
	MaxTokensPerSplit int
	Projection        string
	ColumnSubset      []string
	PartitionFilter   string
	KeyRangeMin       []byte
	KeyRangeMax       []byte
}

// PersistentStore is the storage substrate the flush and read paths are
// written against (spec.md §6). Every method is scoped to a single
// (partition, segment); the store itself does not know about schemas.
type PersistentStore interface {
	// LoadSummary fetches the current (version, summaryBytes) for
	// (partition, segment). found is false when no summary has ever been
	// committed, in which case the caller should treat version as the zero
	// value and summary as empty.
	LoadSummary(ctx context.Context, partition, segment string) (version int64, summaryBytes []byte, found bool, err error)

	// WriteChunk durably stores a chunk's metadata, keys, and column
	// vectors. It does not affect the segment's summary; the caller commits
	// the chunk into view with a subsequent CASSummary.
	WriteChunk(ctx context.Context, partition, segment string, chunkID [16]byte, metaBytes, keyBytes []byte, columnBytes []ColumnBytes) error

	// CASSummary atomically replaces (version, summary) with
	// (newVersion, newSummaryBytes) iff the store's current version equals
	// expectedVersion. It returns false, not an error, on a lost race.
	CASSummary(ctx context.Context, partition, segment string, expectedVersion, newVersion int64, newSummaryBytes []byte) (bool, error)

	// LoadChunkKeys returns the raw key buffer for a committed chunk.
	LoadChunkKeys(ctx context.Context, partition, segment string, chunkID [16]byte) ([]byte, error)

	// LoadChunkColumns returns the raw column byte vectors for the given
	// column subset of a committed chunk.
	LoadChunkColumns(ctx context.Context, partition, segment string, chunkID [16]byte, columnSubset []string) ([]ColumnBytes, error)

	// LoadChunkMeta returns the raw metadata buffer for a committed chunk.
	LoadChunkMeta(ctx context.Context, partition, segment string, chunkID [16]byte) ([]byte, error)

	// Initialize prepares the store for use (creating buckets/directories).
	Initialize(ctx context.Context) error

	// ClearAll removes every partition/segment/chunk the store holds. It is
	// intended for test teardown, not production use.
	ClearAll(ctx context.Context) error

	// DeleteProjection removes a single (partition, segment)'s summary and
	// all its chunks.
	DeleteProjection(ctx context.Context, partition, segment string) error

	// ScanSplits partitions a segment's key range into independently
	// scannable splits sized between the given token bounds.
	ScanSplits(ctx context.Context, opts ScanSplitsOptions) ([]Split, error)
}
