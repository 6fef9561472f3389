package flush

import (
	"context"
	"fmt"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/vaultds/segmentstore/internal/keycodec"
	"github.com/vaultds/segmentstore/internal/read"
	"github.com/vaultds/segmentstore/internal/store"
)

func propEncode(_ string, values []interface{}) ([]byte, error) {
	var b []byte
	for _, v := range values {
		b = append(b, []byte(fmt.Sprintf("%v|", v))...)
	}
	return b, nil
}

func propDecode(_ string, vector []byte, numRows int) ([]interface{}, error) {
	values := make([]interface{}, numRows)
	var parts []string
	start := 0
	for i, c := range vector {
		if c == '|' {
			parts = append(parts, string(vector[start:i]))
			start = i + 1
		}
	}
	for i := 0; i < numRows && i < len(parts); i++ {
		values[i] = parts[i]
	}
	return values, nil
}

// TestProperty_OverrideDetectionSoundAndComplete grounds override soundness
// and completeness: flushing a sequence of batches and reading the segment
// back must yield exactly the last value written per key across the whole
// sequence (last-write-wins across batches, not just within one), with no
// duplicate or stale rows surviving.
func TestProperty_OverrideDetectionSoundAndComplete(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 30
	properties := gopter.NewProperties(parameters)

	keyGen := gen.IntRange(0, 5).Map(func(i int) string { return fmt.Sprintf("k%d", i) })
	rowGen := keyGen.Map(func(k string) [2]string { return [2]string{k, k + "-v"} })
	batchGen := gen.SliceOfN(3, rowGen)
	batchesGen := gen.SliceOfN(5, batchGen)

	properties.Property("read reflects exactly the last value written per key across all batches", prop.ForAll(
		func(batches [][][2]string) bool {
			s, err := store.NewLocalStore(t.TempDir())
			if err != nil {
				return false
			}
			f := New(s, keycodec.String{}, nil)
			ctx := context.Background()

			reference := map[string]string{}
			for batchIdx, kvs := range batches {
				rows := make([]Row, len(kvs))
				for i, kv := range kvs {
					value := fmt.Sprintf("%s#%d", kv[1], batchIdx)
					rows[i] = Row{Key: []byte(kv[0]), Values: map[string]interface{}{"v": value}}
				}
				batch, err := PrepareBatch("p", "s", rows, []string{"v"}, propEncode)
				if err != nil {
					return false
				}
				ok, err := f.Attempt(ctx, batch)
				if err != nil || !ok {
					return false
				}
				deduped := DedupeRowsLastWriteWins(rows)
				for _, r := range deduped {
					reference[string(r.Key)] = r.Values["v"].(string)
				}
			}

			rowsCh, errsCh := read.Read(ctx, s, keycodec.String{}, "p", "s", []string{"v"}, propDecode)
			got := map[string]string{}
			for r := range rowsCh {
				if v, ok := r.Values["v"].(string); ok {
					got[r.Key.String()] = v
				}
			}
			if err := <-errsCh; err != nil {
				return false
			}

			if len(got) != len(reference) {
				return false
			}
			for k, want := range reference {
				if got[k] != want {
					return false
				}
			}
			return true
		},
		batchesGen,
	))

	properties.TestingRun(t)
}
