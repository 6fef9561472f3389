// Package read implements the segment read path: reconstructing the
// current logical view of a segment by streaming its chunks in write order
// and skipping rows later chunks have overridden.
package read

import (
	"context"

	"github.com/vaultds/segmentstore/internal/chunk"
	"github.com/vaultds/segmentstore/internal/keycodec"
	"github.com/vaultds/segmentstore/internal/store"
	"github.com/vaultds/segmentstore/internal/summary"
	"github.com/vaultds/segmentstore/pkg/types"
)

// Row is a single row surfaced by Read, projected to the requested column
// subset and already past override masking.
type Row struct {
	Key    types.RowKey
	Values map[string]interface{}
}

// ColumnDecoder unpacks one chunk's column byte vector, in that chunk's own
// row order, into per-row values. It is the external "columnar value codec"
// collaborator; this package never interprets column bytes itself.
type ColumnDecoder func(column string, vector []byte, numRows int) ([]interface{}, error)

// Read streams the current logical rows of (partition, segment), projected
// to columnSubset, in chunk-write order and ascending position order within
// each chunk. The returned channel is closed when the scan completes or the
// context is cancelled; at most one error is ever sent on the error channel,
// after which the row channel closes.
func Read(ctx context.Context, persistentStore store.PersistentStore, keyType keycodec.KeyType, partition, segment string, columnSubset []string, decode ColumnDecoder) (<-chan Row, <-chan error) {
	rows := make(chan Row)
	errs := make(chan error, 1)

	go func() {
		defer close(rows)
		defer close(errs)

		_, summaryBytes, found, err := persistentStore.LoadSummary(ctx, partition, segment)
		if err != nil {
			errs <- err
			return
		}
		if !found {
			return
		}
		sum, err := summary.Deserialize(summaryBytes)
		if err != nil {
			errs <- err
			return
		}

		chunkIDs := sum.Chunks()
		if len(chunkIDs) == 0 {
			return
		}

		metas := make([]chunk.Overrides, len(chunkIDs))
		numRows := make([]int, len(chunkIDs))
		for i, id := range chunkIDs {
			metaBytes, err := persistentStore.LoadChunkMeta(ctx, partition, segment, idBytes(id))
			if err != nil {
				errs <- err
				return
			}
			overrides, n, err := chunk.DecodeMeta(metaBytes)
			if err != nil {
				errs <- err
				return
			}
			metas[i] = overrides
			numRows[i] = n
		}

		masked := computeMasks(chunkIDs, metas, numRows)

		for i, id := range chunkIDs {
			if ctx.Err() != nil {
				errs <- ctx.Err()
				return
			}
			if err := emitChunk(ctx, persistentStore, keyType, decode, partition, segment, id, numRows[i], masked[i], columnSubset, rows); err != nil {
				errs <- err
				return
			}
		}
	}()

	return rows, errs
}

// computeMasks returns, for each chunk index i, the set of positions within
// chunk i superseded by any later chunk's overrides entry against it.
func computeMasks(chunkIDs []types.ChunkID, metas []chunk.Overrides, numRows []int) []map[int]struct{} {
	masked := make([]map[int]struct{}, len(chunkIDs))
	for i := range masked {
		masked[i] = make(map[int]struct{})
	}

	indexOf := make(map[types.ChunkID]int, len(chunkIDs))
	for i, id := range chunkIDs {
		indexOf[id] = i
	}

	for j, overrides := range metas {
		for priorID, positions := range overrides {
			i, ok := indexOf[priorID]
			if !ok || i >= j {
				continue
			}
			for _, p := range positions {
				masked[i][p] = struct{}{}
			}
		}
	}
	return masked
}

func emitChunk(ctx context.Context, persistentStore store.PersistentStore, keyType keycodec.KeyType, decode ColumnDecoder, partition, segment string, id types.ChunkID, numRows int, masked map[int]struct{}, columnSubset []string, out chan<- Row) error {
	if numRows == len(masked) {
		return nil
	}

	keyBytes, err := persistentStore.LoadChunkKeys(ctx, partition, segment, idBytes(id))
	if err != nil {
		return err
	}
	keys, err := chunk.DecodeKeys(keyBytes, keyType)
	if err != nil {
		return err
	}

	columnBytes, err := persistentStore.LoadChunkColumns(ctx, partition, segment, idBytes(id), columnSubset)
	if err != nil {
		return err
	}
	decoded := make(map[string][]interface{}, len(columnBytes))
	for _, cb := range columnBytes {
		values, err := decode(cb.Column, cb.Bytes, numRows)
		if err != nil {
			return err
		}
		decoded[cb.Column] = values
	}

	for pos := 0; pos < numRows; pos++ {
		if _, skip := masked[pos]; skip {
			continue
		}
		values := make(map[string]interface{}, len(columnSubset))
		for _, col := range columnSubset {
			if colValues, ok := decoded[col]; ok && pos < len(colValues) {
				values[col] = colValues[pos]
			}
		}
		select {
		case out <- Row{Key: keys[pos], Values: values}:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func idBytes(id types.ChunkID) [16]byte {
	var b [16]byte
	copy(b[:], id.Bytes())
	return b
}
