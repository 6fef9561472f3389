package read

import (
	"context"
	"testing"

	"github.com/vaultds/segmentstore/internal/flush"
	"github.com/vaultds/segmentstore/internal/keycodec"
	"github.com/vaultds/segmentstore/internal/store"
)

func identityDecoder(column string, vector []byte, numRows int) ([]interface{}, error) {
	values := make([]interface{}, numRows)
	parts := splitPipe(vector)
	for i := 0; i < numRows && i < len(parts); i++ {
		values[i] = parts[i]
	}
	return values, nil
}

func splitPipe(b []byte) []string {
	var out []string
	start := 0
	for i, c := range b {
		if c == '|' {
			out = append(out, string(b[start:i]))
			start = i + 1
		}
	}
	return out
}

func drain(t *testing.T, rows <-chan Row, errs <-chan error) ([]Row, error) {
	t.Helper()
	var collected []Row
	for r := range rows {
		collected = append(collected, r)
	}
	select {
	case err := <-errs:
		return collected, err
	default:
		return collected, nil
	}
}

// TestScenarioS1_OutOfOrderInsertInOrderRead grounds scenario S1: rows
// inserted across batches in any order are read back with the latest
// version of each key and no duplicates.
func TestScenarioS1_OutOfOrderInsertInOrderRead(t *testing.T) {
	s, err := store.NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalStore failed: %v", err)
	}
	f := flush.New(s, keycodec.String{}, nil)
	ctx := context.Background()

	encode := func(column string, values []interface{}) ([]byte, error) {
		var b []byte
		for _, v := range values {
			b = append(b, []byte(v.(string)+"|")...)
		}
		return b, nil
	}

	batch1, err := flush.PrepareBatch("p1", "s1", []flush.Row{
		{Key: []byte("b"), Values: map[string]interface{}{"v": "b1"}},
		{Key: []byte("a"), Values: map[string]interface{}{"v": "a1"}},
	}, []string{"v"}, encode)
	if err != nil {
		t.Fatalf("PrepareBatch failed: %v", err)
	}
	if ok, err := f.Attempt(ctx, batch1); err != nil || !ok {
		t.Fatalf("first Attempt: ok=%v err=%v", ok, err)
	}

	batch2, err := flush.PrepareBatch("p1", "s1", []flush.Row{
		{Key: []byte("a"), Values: map[string]interface{}{"v": "a2"}},
	}, []string{"v"}, encode)
	if err != nil {
		t.Fatalf("PrepareBatch failed: %v", err)
	}
	if ok, err := f.Attempt(ctx, batch2); err != nil || !ok {
		t.Fatalf("second Attempt: ok=%v err=%v", ok, err)
	}

	rowsCh, errsCh := Read(ctx, s, keycodec.String{}, "p1", "s1", []string{"v"}, identityDecoder)
	rows, err := drain(t, rowsCh, errsCh)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}

	got := map[string]string{}
	for _, r := range rows {
		got[r.Key.String()] = r.Values["v"].(string)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 distinct keys, got %d: %v", len(got), got)
	}
	if got["a"] != "a2" {
		t.Fatalf("expected key 'a' to read back the latest value 'a2', got %q", got["a"])
	}
	if got["b"] != "b1" {
		t.Fatalf("expected key 'b' to read back 'b1', got %q", got["b"])
	}
}

func TestRead_AbsentSegmentYieldsNoRows(t *testing.T) {
	s, err := store.NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalStore failed: %v", err)
	}
	rowsCh, errsCh := Read(context.Background(), s, keycodec.String{}, "p1", "missing", []string{"v"}, identityDecoder)
	rows, err := drain(t, rowsCh, errsCh)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if len(rows) != 0 {
		t.Fatalf("expected no rows for an absent segment, got %d", len(rows))
	}
}
