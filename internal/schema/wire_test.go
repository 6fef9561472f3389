package schema

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/vaultds/segmentstore/pkg/types"
)

func TestSerializeDeserialize_RoundTrip(t *testing.T) {
	columns := []types.Column{
		types.NewColumn("first", "foo", 1, types.ColumnString),
		types.NewColumn("age", "foo", 2, types.ColumnInt),
		types.NewColumn(":deleted", "foo", 3, types.ColumnBitmap),
	}

	data, err := Serialize(columns)
	if err != nil {
		t.Fatalf("Serialize failed: %v", err)
	}

	decoded, err := Deserialize(data, nil)
	if err != nil {
		t.Fatalf("Deserialize failed: %v", err)
	}
	if len(decoded) != len(columns) {
		t.Fatalf("expected %d columns, got %d", len(columns), len(decoded))
	}
	for i, c := range columns {
		got := decoded[i]
		if got.Name != c.Name || got.Dataset != c.Dataset || got.Version != c.Version || got.ColumnType != c.ColumnType {
			t.Fatalf("round-trip mismatch at %d: want %+v, got %+v", i, c, got)
		}
		if got.IsSystem != types.IsSystemName(c.Name) {
			t.Fatalf("expected IsSystem derived from name prefix for %q", c.Name)
		}
	}

	// Re-folding the round-tripped columns must reproduce the same effective
	// schema (testable property 6, "round-trip").
	before := Fold(columns)
	after := Fold(decoded)
	if len(before) != len(after) {
		t.Fatalf("re-fold diverged in size: %d vs %d", len(before), len(after))
	}
	for name, c := range before {
		if after[name] != c {
			t.Fatalf("re-fold diverged for %q: %+v vs %+v", name, c, after[name])
		}
	}
}

// TestScenarioS6_CorruptColumnType covers spec.md scenario S6.
func TestScenarioS6_CorruptColumnType(t *testing.T) {
	// Hand-craft a wire record with an unknown column type tag.
	buf, err := Serialize([]types.Column{types.NewColumn("x", "foo", 1, types.ColumnString)})
	if err != nil {
		t.Fatalf("Serialize failed: %v", err)
	}
	corrupted := corruptTag(t, buf, "string", "_so_not_a_real_type")

	if _, err := Deserialize(corrupted, nil); err == nil {
		t.Fatalf("expected MetadataException for unknown column type tag")
	}
}

// corruptTag rewrites a length-prefixed occurrence of `from` to `to` in a
// wire-encoded buffer, fixing up its length prefix. Test helper only.
func corruptTag(t *testing.T, data []byte, from, to string) []byte {
	t.Helper()
	idx := indexOf(data, []byte(from))
	if idx < 0 {
		t.Fatalf("could not find tag %q in wire data", from)
	}
	out := make([]byte, 0, len(data)+len(to)-len(from))
	out = append(out, data[:idx-4]...)
	lengthBuf := []byte{0, 0, 0, byte(len(to))}
	out = append(out, lengthBuf...)
	out = append(out, []byte(to)...)
	out = append(out, data[idx+len(from):]...)
	return out
}

func indexOf(haystack, needle []byte) int {
	for i := 0; i+len(needle) <= len(haystack); i++ {
		match := true
		for j := range needle {
			if haystack[i+j] != needle[j] {
				match = false
				break
			}
		}
		if match {
			return i
		}
	}
	return -1
}

// TestProperty_FoldDeterminism checks that folding the same list of Columns,
// ordered by ascending version, twice yields the same schema. Independence
// from batching is checked by TestFold_OrderIndependentOfBatching.
func TestProperty_FoldDeterminism(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	properties.Property("folding twice yields the same schema", prop.ForAll(
		func(names []string) bool {
			var columns []types.Column
			for i, name := range names {
				if name == "" {
					continue
				}
				columns = append(columns, types.NewColumn(name, "ds", i+1, types.ColumnString))
			}
			a := Fold(columns)
			b := Fold(columns)
			if len(a) != len(b) {
				return false
			}
			for k, v := range a {
				if b[k] != v {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.AlphaString()),
	))

	properties.TestingRun(t)
}
