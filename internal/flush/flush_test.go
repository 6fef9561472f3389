package flush

import (
	"context"
	"testing"
	"time"

	"github.com/vaultds/segmentstore/internal/chunk"
	"github.com/vaultds/segmentstore/internal/keycodec"
	"github.com/vaultds/segmentstore/internal/router"
	"github.com/vaultds/segmentstore/internal/store"
	"github.com/vaultds/segmentstore/internal/summary"
	"github.com/vaultds/segmentstore/pkg/types"
)

func newTestFlusher(t *testing.T) (*Flusher, store.PersistentStore) {
	t.Helper()
	s, err := store.NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalStore failed: %v", err)
	}
	return New(s, keycodec.String{}, nil), s
}

func batchOf(partition types.PartitionID, segment types.SegmentID, column string, kv map[string]string) Batch {
	keys := make([]types.RowKey, 0, len(kv))
	values := make([]string, 0, len(kv))
	for k, v := range kv {
		keys = append(keys, types.RowKey(k))
		values = append(values, v)
	}
	vectors := make([]byte, 0)
	for _, v := range values {
		vectors = append(vectors, []byte(v+"|")...)
	}
	return Batch{
		Partition:     partition,
		Segment:       segment,
		Keys:          keys,
		Columns:       []string{column},
		ColumnVectors: [][]byte{vectors},
	}
}

func TestAttempt_FirstFlushOnEmptySegmentSkipsOverrideSteps(t *testing.T) {
	f, _ := newTestFlusher(t)
	batch := batchOf("p1", "s1", "v", map[string]string{"a": "1", "b": "2"})

	ok, err := f.Attempt(context.Background(), batch)
	if err != nil {
		t.Fatalf("Attempt failed: %v", err)
	}
	if !ok {
		t.Fatalf("expected first flush against an empty segment to succeed")
	}
}

// TestScenarioS2_OverwriteWithTwoChunks grounds scenario S2: a second flush
// with overlapping keys records an override entry against the first chunk.
func TestScenarioS2_OverwriteWithTwoChunks(t *testing.T) {
	f, s := newTestFlusher(t)
	ctx := context.Background()

	first := batchOf("p1", "s1", "v", map[string]string{"a": "1", "b": "2"})
	ok, err := f.Attempt(ctx, first)
	if err != nil || !ok {
		t.Fatalf("first Attempt: ok=%v err=%v", ok, err)
	}

	second := batchOf("p1", "s1", "v", map[string]string{"a": "1-updated"})
	ok, err = f.Attempt(ctx, second)
	if err != nil || !ok {
		t.Fatalf("second Attempt: ok=%v err=%v", ok, err)
	}

	_, summaryBytes, found, err := s.LoadSummary(ctx, "p1", "s1")
	if err != nil || !found {
		t.Fatalf("LoadSummary: found=%v err=%v", found, err)
	}
	sum, err := summary.Deserialize(summaryBytes)
	if err != nil {
		t.Fatalf("deserialize failed: %v", err)
	}
	if sum.NumChunks() != 2 {
		t.Fatalf("expected 2 chunks after the overwrite, got %d", sum.NumChunks())
	}

	ids := sum.Chunks()
	metaBytes, err := s.LoadChunkMeta(ctx, "p1", "s1", idBytes(ids[1]))
	if err != nil {
		t.Fatalf("LoadChunkMeta failed: %v", err)
	}
	overrides, _, err := chunk.DecodeMeta(metaBytes)
	if err != nil {
		t.Fatalf("DecodeMeta failed: %v", err)
	}
	if len(overrides) != 1 || len(overrides[ids[0]]) != 1 {
		t.Fatalf("expected the second chunk to override one position of the first, got %v", overrides)
	}
}

// TestScenarioS3_ConcurrentFlushCAS grounds scenario S3 sequentially: both
// flushers start from the same version, A commits first, B's commit at that
// stale version loses, and B's retry commits with a strictly greater chunk id.
func TestScenarioS3_ConcurrentFlushCAS(t *testing.T) {
	f, s := newTestFlusher(t)
	ctx := context.Background()

	batchA := batchOf("p1", "s1", "v", map[string]string{"a": "1"})
	batchB := batchOf("p1", "s1", "v", map[string]string{"b": "2"})

	// Both flushers load the same starting state (no summary, version 0);
	// A commits first.
	okA, err := f.Attempt(ctx, batchA)
	if err != nil || !okA {
		t.Fatalf("batch A Attempt: ok=%v err=%v", okA, err)
	}

	// B's commit against the version it loaded before A committed loses.
	_, summaryA, _, err := s.LoadSummary(ctx, "p1", "s1")
	if err != nil {
		t.Fatalf("LoadSummary failed: %v", err)
	}
	if ok, err := s.CASSummary(ctx, "p1", "s1", 0, 1, summaryA); err != nil || ok {
		t.Fatalf("expected a CAS at the pre-A version to fail: ok=%v err=%v", ok, err)
	}

	// B retries with a fresh Attempt call, which re-loads the current
	// summary/version rather than assuming the stale one.
	okB, err := f.Attempt(ctx, batchB)
	if err != nil {
		t.Fatalf("batch B Attempt failed: %v", err)
	}
	if !okB {
		t.Fatalf("expected batch B's retried Attempt to succeed against the current version")
	}

	_, summaryBytes, _, err := s.LoadSummary(ctx, "p1", "s1")
	if err != nil {
		t.Fatalf("LoadSummary failed: %v", err)
	}
	sum, err := summary.Deserialize(summaryBytes)
	if err != nil {
		t.Fatalf("deserialize failed: %v", err)
	}
	ids := sum.Chunks()
	if len(ids) != 2 || !ids[1].After(ids[0]) {
		t.Fatalf("expected B's chunk id to sort strictly after A's, got %v", ids)
	}
}

func TestDedupeRowsLastWriteWins_KeepsLastOccurrence(t *testing.T) {
	rows := []Row{
		{Key: types.RowKey("a"), Values: map[string]interface{}{"v": "1"}},
		{Key: types.RowKey("b"), Values: map[string]interface{}{"v": "2"}},
		{Key: types.RowKey("a"), Values: map[string]interface{}{"v": "3"}},
	}
	deduped := DedupeRowsLastWriteWins(rows)
	if len(deduped) != 2 {
		t.Fatalf("expected 2 rows after dedup, got %d", len(deduped))
	}
	var gotA string
	for _, r := range deduped {
		if r.Key.Equal(types.RowKey("a")) {
			gotA = r.Values["v"].(string)
		}
	}
	if gotA != "3" {
		t.Fatalf("expected last-write-wins value '3' for key 'a', got %q", gotA)
	}
}

func TestPrepareBatch_EncodesDedupedRowsPerColumn(t *testing.T) {
	rows := []Row{
		{Key: types.RowKey("a"), Values: map[string]interface{}{"v": "1"}},
		{Key: types.RowKey("a"), Values: map[string]interface{}{"v": "2"}},
	}
	var sawValues []interface{}
	encode := func(column string, values []interface{}) ([]byte, error) {
		sawValues = values
		return []byte(column), nil
	}

	batch, err := PrepareBatch("p1", "s1", rows, []string{"v"}, encode)
	if err != nil {
		t.Fatalf("PrepareBatch failed: %v", err)
	}
	if len(batch.Keys) != 1 {
		t.Fatalf("expected 1 deduped key, got %d", len(batch.Keys))
	}
	if len(sawValues) != 1 || sawValues[0] != "2" {
		t.Fatalf("expected encoder to see the last-write-wins value, got %v", sawValues)
	}
}

// TestAttempt_NotifiesSubscriberOnCommit grounds the flusher's write
// visibility notification: a successful CAS publishes ChunkCommitted for the
// committed partition, segment and version.
func TestAttempt_NotifiesSubscriberOnCommit(t *testing.T) {
	s, err := store.NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalStore failed: %v", err)
	}
	notifier := router.NewNotifier(4)
	f := New(s, keycodec.String{}, nil).WithNotifier(notifier)
	sub := notifier.Subscribe("test", nil)

	batch := batchOf("p1", "s1", "v", map[string]string{"a": "1"})
	ok, err := f.Attempt(context.Background(), batch)
	if err != nil || !ok {
		t.Fatalf("Attempt: ok=%v err=%v", ok, err)
	}

	select {
	case notif := <-sub.Ch:
		if notif.Type != router.ChunkCommitted {
			t.Fatalf("expected ChunkCommitted, got %v", notif.Type)
		}
		if notif.Partition != "p1" || notif.Segment != "s1" {
			t.Fatalf("unexpected notification target: %+v", notif)
		}
		if notif.Version != 1 {
			t.Fatalf("expected version 1 after the first commit, got %d", notif.Version)
		}
	case <-time.After(time.Second):
		t.Fatal("expected a ChunkCommitted notification after a successful Attempt")
	}
}

func TestAttempt_EmptyBatchCandidatesSkipsOverrideSteps(t *testing.T) {
	f, _ := newTestFlusher(t)
	ctx := context.Background()

	first := batchOf("p1", "s1", "v", map[string]string{"a": "1"})
	if ok, err := f.Attempt(ctx, first); err != nil || !ok {
		t.Fatalf("first Attempt: ok=%v err=%v", ok, err)
	}

	disjoint := batchOf("p1", "s1", "v", map[string]string{"z": "9"})
	ok, err := f.Attempt(ctx, disjoint)
	if err != nil {
		t.Fatalf("second Attempt failed: %v", err)
	}
	if !ok {
		t.Fatalf("expected a disjoint-key batch to commit with no overrides")
	}
}
