package store

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/golang/snappy"
	"github.com/google/uuid"

	"github.com/vaultds/segmentstore/internal/segerr"
)

// LocalStore implements PersistentStore on the local filesystem. It is
// primarily used for tests and single-node deployments.
type LocalStore struct {
	basePath string

	mu       sync.Mutex
	versions map[string]int64 // (partition,segment) -> current summary version
}

// NewLocalStore creates a filesystem-backed store rooted at basePath.
func NewLocalStore(basePath string) (*LocalStore, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("store: failed to create base directory: %w", err)
	}
	return &LocalStore{basePath: basePath, versions: make(map[string]int64)}, nil
}

func segmentKey(partition, segment string) string {
	return partition + "/" + segment
}

func (l *LocalStore) segmentDir(partition, segment string) string {
	return filepath.Join(l.basePath, partition, segment)
}

func (l *LocalStore) chunkDir(partition, segment string, chunkID [16]byte) string {
	return filepath.Join(l.segmentDir(partition, segment), "chunks", hex.EncodeToString(chunkID[:]))
}

func (l *LocalStore) summaryPath(partition, segment string) string {
	return filepath.Join(l.segmentDir(partition, segment), "summary.bin")
}

// LoadSummary reads the current summary bytes and its version. Versions are
// kept in memory only: after a process restart, an existing summary file is
// reported at version 0 until the next successful CASSummary on it.
func (l *LocalStore) LoadSummary(ctx context.Context, partition, segment string) (int64, []byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return 0, nil, false, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	key := segmentKey(partition, segment)
	data, err := os.ReadFile(l.summaryPath(partition, segment))
	if os.IsNotExist(err) {
		return 0, nil, false, nil
	}
	if err != nil {
		return 0, nil, false, segerr.StoreError("store: failed to read summary", err)
	}

	version := l.versions[key]
	return version, data, true, nil
}

// WriteChunk stages each column vector via a temp-file-then-rename so a
// crash mid-write never leaves a partially written column visible.
func (l *LocalStore) WriteChunk(ctx context.Context, partition, segment string, chunkID [16]byte, metaBytes, keyBytes []byte, columnBytes []ColumnBytes) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	dir := l.chunkDir(partition, segment, chunkID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return segerr.StoreError("store: failed to create chunk directory", err)
	}

	if err := l.writeAtomic(filepath.Join(dir, "meta.bin"), metaBytes); err != nil {
		return err
	}
	if err := l.writeAtomic(filepath.Join(dir, "keys.bin"), keyBytes); err != nil {
		return err
	}
	for _, col := range columnBytes {
		compressed := snappy.Encode(nil, col.Bytes)
		if err := l.writeAtomic(filepath.Join(dir, "col_"+col.Column+".bin"), compressed); err != nil {
			return err
		}
	}

	return nil
}

func (l *LocalStore) writeAtomic(finalPath string, data []byte) error {
	stagePath := finalPath + ".staging-" + uuid.New().String()
	if err := os.WriteFile(stagePath, data, 0644); err != nil {
		return segerr.StoreError("store: failed to write staged file", err)
	}
	if err := os.Rename(stagePath, finalPath); err != nil {
		os.Remove(stagePath)
		return segerr.StoreError("store: failed to commit staged file", err)
	}
	return nil
}

// CASSummary is a true compare-and-swap: it holds the store's lock for the
// entire check-then-write, so no external race window exists.
func (l *LocalStore) CASSummary(ctx context.Context, partition, segment string, expectedVersion, newVersion int64, newSummaryBytes []byte) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	key := segmentKey(partition, segment)
	if l.versions[key] != expectedVersion {
		return false, nil
	}

	dir := l.segmentDir(partition, segment)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return false, segerr.StoreError("store: failed to create segment directory", err)
	}
	stagePath := l.summaryPath(partition, segment) + ".staging-" + uuid.New().String()
	if err := os.WriteFile(stagePath, newSummaryBytes, 0644); err != nil {
		return false, segerr.StoreError("store: failed to stage summary", err)
	}
	if err := os.Rename(stagePath, l.summaryPath(partition, segment)); err != nil {
		os.Remove(stagePath)
		return false, segerr.StoreError("store: failed to commit summary", err)
	}

	l.versions[key] = newVersion
	return true, nil
}

func (l *LocalStore) LoadChunkKeys(ctx context.Context, partition, segment string, chunkID [16]byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(l.chunkDir(partition, segment, chunkID), "keys.bin"))
	if os.IsNotExist(err) {
		return nil, segerr.NotFound(segerr.CodeSegmentNotFound, "store: chunk keys not found")
	}
	if err != nil {
		return nil, segerr.StoreError("store: failed to read chunk keys", err)
	}
	return data, nil
}

func (l *LocalStore) LoadChunkColumns(ctx context.Context, partition, segment string, chunkID [16]byte, columnSubset []string) ([]ColumnBytes, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	dir := l.chunkDir(partition, segment, chunkID)

	result := make([]ColumnBytes, 0, len(columnSubset))
	for _, col := range columnSubset {
		raw, err := os.ReadFile(filepath.Join(dir, "col_"+col+".bin"))
		if os.IsNotExist(err) {
			return nil, segerr.NotFound(segerr.CodeSegmentNotFound, "store: chunk column not found: "+col)
		}
		if err != nil {
			return nil, segerr.StoreError("store: failed to read chunk column", err)
		}
		decoded, err := snappy.Decode(nil, raw)
		if err != nil {
			return nil, segerr.StoreError("store: failed to decompress chunk column", err)
		}
		result = append(result, ColumnBytes{Column: col, Bytes: decoded})
	}
	return result, nil
}

func (l *LocalStore) LoadChunkMeta(ctx context.Context, partition, segment string, chunkID [16]byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(l.chunkDir(partition, segment, chunkID), "meta.bin"))
	if os.IsNotExist(err) {
		return nil, segerr.NotFound(segerr.CodeSegmentNotFound, "store: chunk metadata not found")
	}
	if err != nil {
		return nil, segerr.StoreError("store: failed to read chunk metadata", err)
	}
	return data, nil
}

func (l *LocalStore) Initialize(ctx context.Context) error {
	return os.MkdirAll(l.basePath, 0755)
}

func (l *LocalStore) ClearAll(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := os.RemoveAll(l.basePath); err != nil {
		return segerr.StoreError("store: failed to clear", err)
	}
	if err := os.MkdirAll(l.basePath, 0755); err != nil {
		return segerr.StoreError("store: failed to recreate base directory", err)
	}
	l.versions = make(map[string]int64)
	return nil
}

func (l *LocalStore) DeleteProjection(ctx context.Context, partition, segment string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := os.RemoveAll(l.segmentDir(partition, segment)); err != nil {
		return segerr.StoreError("store: failed to delete projection", err)
	}
	delete(l.versions, segmentKey(partition, segment))
	return nil
}

// ScanSplits is unimplemented for the local backend: split planning is
// query-execution machinery, and this segment model is explicitly scoped
// away from SQL/query planning (spec.md Non-goals).
func (l *LocalStore) ScanSplits(ctx context.Context, opts ScanSplitsOptions) ([]Split, error) {
	return nil, segerr.InternalError("store: ScanSplits is not implemented by LocalStore", nil)
}
