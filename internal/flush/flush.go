// Package flush implements the flush protocol: the sole write path into a
// segment, and the sole point of MVCC concurrency control (a
// compare-and-swap on the segment's summary version).
package flush

import (
	"context"
	"fmt"
	"time"

	"github.com/vaultds/segmentstore/internal/chunk"
	"github.com/vaultds/segmentstore/internal/keycodec"
	"github.com/vaultds/segmentstore/internal/router"
	"github.com/vaultds/segmentstore/internal/store"
	"github.com/vaultds/segmentstore/internal/summary"
	"github.com/vaultds/segmentstore/internal/wal"
	"github.com/vaultds/segmentstore/pkg/types"
)

// Batch is a prepared batch of incoming rows for a single (partition,
// segment): distinct keys and their already-vectorized column payloads,
// with len(Keys) rows encoded into each entry of ColumnVectors. Building a
// Batch from raw rows is PrepareBatch's job, not Attempt's: the column
// value codec is an external collaborator, so only the row-level stage,
// before vectorization, can apply "last write wins within batch".
type Batch struct {
	Partition     types.PartitionID
	Segment       types.SegmentID
	Keys          []types.RowKey
	Columns       []string
	ColumnVectors [][]byte
}

// Row is a single incoming row prior to column-vector encoding.
type Row struct {
	Key    types.RowKey
	Values map[string]interface{}
}

// ColumnEncoder packs one column's values, across all rows of a batch in
// row order, into the opaque byte-vector form the persistent store and
// chunk model deal in. It is the external "columnar value codec"
// collaborator; this package never interprets column bytes itself.
type ColumnEncoder func(column string, values []interface{}) ([]byte, error)

// DedupeRowsLastWriteWins applies the flush protocol's intra-batch
// deduplication rule: among rows sharing a key, only the last one survives,
// and survivors keep the order of each key's last occurrence.
func DedupeRowsLastWriteWins(rows []Row) []Row {
	lastIndexOf := make(map[string]int, len(rows))
	for i, r := range rows {
		lastIndexOf[r.Key.String()] = i
	}
	deduped := make([]Row, 0, len(rows))
	for i, r := range rows {
		if lastIndexOf[r.Key.String()] == i {
			deduped = append(deduped, r)
		}
	}
	return deduped
}

// PrepareBatch deduplicates rows last-write-wins, then encodes each column
// via encode to produce a Batch ready for Attempt.
func PrepareBatch(partition types.PartitionID, segment types.SegmentID, rows []Row, columns []string, encode ColumnEncoder) (Batch, error) {
	deduped := DedupeRowsLastWriteWins(rows)

	keys := make([]types.RowKey, len(deduped))
	for i, r := range deduped {
		keys[i] = r.Key
	}

	columnVectors := make([][]byte, len(columns))
	for i, col := range columns {
		values := make([]interface{}, len(deduped))
		for j, r := range deduped {
			values[j] = r.Values[col]
		}
		encoded, err := encode(col, values)
		if err != nil {
			return Batch{}, fmt.Errorf("flush: failed to encode column %q: %w", col, err)
		}
		columnVectors[i] = encoded
	}

	return Batch{
		Partition:     partition,
		Segment:       segment,
		Keys:          keys,
		Columns:       columns,
		ColumnVectors: columnVectors,
	}, nil
}

// Flusher runs Attempt against a PersistentStore, staging each attempt to a
// WAL first when one is configured.
type Flusher struct {
	store    store.PersistentStore
	keyType  keycodec.KeyType
	idGen    *types.ChunkIDGenerator
	stage    *wal.WAL
	notifier *router.Notifier
}

// New creates a Flusher. stage may be nil to disable WAL staging.
func New(persistentStore store.PersistentStore, keyType keycodec.KeyType, stage *wal.WAL) *Flusher {
	return &Flusher{
		store:   persistentStore,
		keyType: keyType,
		idGen:   types.NewChunkIDGenerator(),
		stage:   stage,
	}
}

// WithNotifier attaches a router.Notifier that publishes a ChunkCommitted
// notification after every successful CAS commit, letting other in-process
// collaborators (a cache, a subscriber waiting on a partition) observe write
// visibility without polling the store. Returns f for chaining.
func (f *Flusher) WithNotifier(n *router.Notifier) *Flusher {
	f.notifier = n
	return f
}

// Attempt runs one pass of the flush protocol (load, prefilter, fetch keys,
// exact compute, assemble, extend summary, CAS commit) and returns true iff
// the CAS commit succeeded. On false the caller should retry Attempt with
// the same batch: the assembled chunk was never made visible and its id is
// never reused.
func (f *Flusher) Attempt(ctx context.Context, batch Batch) (bool, error) {
	keys, columnVectors := batch.Keys, batch.ColumnVectors
	partition, segment := string(batch.Partition), string(batch.Segment)

	// 1. Load.
	version, summaryBytes, found, err := f.store.LoadSummary(ctx, partition, segment)
	if err != nil {
		return false, err
	}
	current := summary.Empty()
	if found {
		current, err = summary.Deserialize(summaryBytes)
		if err != nil {
			return false, err
		}
	} else {
		version = 0
	}

	// 2. Prefilter.
	candidates := current.PossibleOverrides(keys)

	// 3. Fetch keys.
	fetched, err := f.fetchCandidateKeys(ctx, partition, segment, candidates)
	if err != nil {
		return false, err
	}

	// 4. Exact compute.
	overrides := toChunkOverrides(current.ActualOverrides(keys, fetched))

	// 5. Assemble.
	chunkID, err := f.nextChunkID(current)
	if err != nil {
		return false, err
	}
	newChunk, err := chunk.New(chunkID, keys, batch.Columns, columnVectors, len(keys), overrides)
	if err != nil {
		return false, err
	}

	if f.stage != nil {
		entry := &wal.Entry{
			Partition:     batch.Partition,
			Segment:       batch.Segment,
			ChunkID:       chunkID,
			Keys:          keys,
			Columns:       batch.Columns,
			ColumnVectors: columnVectors,
		}
		if _, err := f.stage.Stage(entry); err != nil {
			return false, err
		}
	}

	if err := f.writeChunk(ctx, partition, segment, newChunk); err != nil {
		return false, err
	}

	// 6. Extend summary.
	newSummary := current.WithKeys(chunkID, keys)
	newSummaryBytes, err := newSummary.Serialize()
	if err != nil {
		return false, err
	}

	// 7. Commit.
	committed, err := f.store.CASSummary(ctx, partition, segment, version, version+1, newSummaryBytes)
	if err != nil || !committed {
		return committed, err
	}

	if f.notifier != nil {
		f.notifier.Publish(router.Notification{
			Type:      router.ChunkCommitted,
			Partition: batch.Partition,
			Segment:   batch.Segment,
			ChunkID:   chunkID,
			Version:   version + 1,
			Timestamp: time.Now().UnixNano(),
		})
	}
	return true, nil
}

func (f *Flusher) fetchCandidateKeys(ctx context.Context, partition, segment string, candidates []types.ChunkID) ([]summary.FetchedChunk, error) {
	fetched := make([]summary.FetchedChunk, 0, len(candidates))
	for _, cid := range candidates {
		keyBytes, err := f.store.LoadChunkKeys(ctx, partition, segment, idBytes(cid))
		if err != nil {
			return nil, err
		}
		priorKeys, err := chunk.DecodeKeys(keyBytes, f.keyType)
		if err != nil {
			return nil, err
		}
		fetched = append(fetched, summary.FetchedChunk{ChunkID: cid, Keys: priorKeys})
	}
	return fetched, nil
}

func (f *Flusher) writeChunk(ctx context.Context, partition, segment string, c *chunk.Chunk) error {
	metaBytes := chunk.EncodeMeta(c.ChunkOverrides, c.NumRows)
	keyBytes, err := chunk.EncodeKeys(c.Keys, f.keyType)
	if err != nil {
		return err
	}
	columnBytes := make([]store.ColumnBytes, len(c.Columns))
	for i, col := range c.Columns {
		columnBytes[i] = store.ColumnBytes{Column: col, Bytes: c.ColumnVectors[i]}
	}
	return f.store.WriteChunk(ctx, partition, segment, idBytes(c.ChunkID), metaBytes, keyBytes, columnBytes)
}

// nextChunkID mints a chunk id strictly greater than every chunk already in
// the summary, falling back to a deterministic bump past the last chunk's
// timestamp if the generator's wall-clock id doesn't already clear it (a
// clock skew or backdated-replay edge case).
func (f *Flusher) nextChunkID(current *summary.SegmentSummary) (types.ChunkID, error) {
	id, err := f.idGen.Generate()
	if err != nil {
		return types.ChunkID{}, err
	}

	chunks := current.Chunks()
	if len(chunks) == 0 {
		return id, nil
	}
	last := chunks[len(chunks)-1]
	if id.After(last) {
		return id, nil
	}
	return types.NewULIDFromTimestamp(last.Timestamp()+1, make([]byte, 10)), nil
}

func idBytes(id types.ChunkID) [16]byte {
	var b [16]byte
	copy(b[:], id.Bytes())
	return b
}

func toChunkOverrides(overrides []summary.Override) chunk.Overrides {
	result := make(chunk.Overrides, len(overrides))
	for _, ov := range overrides {
		result[ov.ChunkID] = ov.Positions
	}
	return result
}
