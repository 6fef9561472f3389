package summary

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/vaultds/segmentstore/pkg/types"
)

func mustID(t *testing.T, tm uint64, entropy byte) types.ChunkID {
	t.Helper()
	e := make([]byte, 10)
	for i := range e {
		e[i] = entropy
	}
	return types.NewULIDFromTimestamp(tm, e)
}

func keys(ss ...string) []types.RowKey {
	out := make([]types.RowKey, len(ss))
	for i, s := range ss {
		out[i] = types.RowKey(s)
	}
	return out
}

func TestEmpty_HasNoChunks(t *testing.T) {
	s := Empty()
	if s.NumChunks() != 0 {
		t.Fatalf("expected 0 chunks, got %d", s.NumChunks())
	}
	if len(s.Chunks()) != 0 {
		t.Fatalf("expected no chunk ids")
	}
}

func TestWithKeys_DoesNotMutateReceiver(t *testing.T) {
	s0 := Empty()
	id1 := mustID(t, 1000, 0)
	s1 := s0.WithKeys(id1, keys("a", "b"))

	if s0.NumChunks() != 0 {
		t.Fatalf("original summary was mutated: now has %d chunks", s0.NumChunks())
	}
	if s1.NumChunks() != 1 {
		t.Fatalf("expected new summary to have 1 chunk, got %d", s1.NumChunks())
	}

	id2 := mustID(t, 2000, 0)
	s2 := s1.WithKeys(id2, keys("c"))
	if s1.NumChunks() != 1 {
		t.Fatalf("s1 was mutated by deriving s2: now has %d chunks", s1.NumChunks())
	}
	if s2.NumChunks() != 2 {
		t.Fatalf("expected s2 to have 2 chunks, got %d", s2.NumChunks())
	}
}

func TestChunks_PreservesWriteOrder(t *testing.T) {
	id1 := mustID(t, 1000, 0)
	id2 := mustID(t, 2000, 0)
	id3 := mustID(t, 3000, 0)

	s := Empty().WithKeys(id1, keys("a")).WithKeys(id2, keys("b")).WithKeys(id3, keys("c"))
	got := s.Chunks()
	if len(got) != 3 || got[0] != id1 || got[1] != id2 || got[2] != id3 {
		t.Fatalf("expected write order [id1 id2 id3], got %v", got)
	}
}

func TestPossibleOverrides_DetectsDigestHits(t *testing.T) {
	id1 := mustID(t, 1000, 0)
	s := Empty().WithKeys(id1, keys("alpha", "beta", "gamma"))

	candidates := s.PossibleOverrides(keys("beta"))
	if len(candidates) != 1 || candidates[0] != id1 {
		t.Fatalf("expected id1 as candidate, got %v", candidates)
	}

	none := s.PossibleOverrides(keys("zzz-definitely-absent-key"))
	if len(none) != 0 {
		t.Fatalf("expected no candidates for an absent key, got %v", none)
	}
}

func TestActualOverrides_ComputesExactPositions(t *testing.T) {
	s := Empty()
	id1 := mustID(t, 1000, 0)

	overrides := s.ActualOverrides(keys("b", "d"), []FetchedChunk{
		{ChunkID: id1, Keys: keys("a", "b", "c", "d")},
	})

	if len(overrides) != 1 {
		t.Fatalf("expected 1 override entry, got %d", len(overrides))
	}
	if overrides[0].ChunkID != id1 {
		t.Fatalf("unexpected chunk id in override")
	}
	if got := overrides[0].Positions; len(got) != 2 || got[0] != 1 || got[1] != 3 {
		t.Fatalf("expected positions [1 3], got %v", got)
	}
}

func TestActualOverrides_OmitsChunksWithNoHits(t *testing.T) {
	s := Empty()
	id1 := mustID(t, 1000, 0)

	overrides := s.ActualOverrides(keys("nowhere"), []FetchedChunk{
		{ChunkID: id1, Keys: keys("a", "b", "c")},
	})
	if len(overrides) != 0 {
		t.Fatalf("expected no override entries, got %v", overrides)
	}
}

func TestSerializeDeserialize_RoundTrip(t *testing.T) {
	id1 := mustID(t, 1000, 0)
	id2 := mustID(t, 2000, 0)
	s := Empty().WithKeys(id1, keys("a", "b", "c")).WithKeys(id2, keys("d"))

	data, err := s.Serialize()
	if err != nil {
		t.Fatalf("Serialize failed: %v", err)
	}

	restored, err := Deserialize(data)
	if err != nil {
		t.Fatalf("Deserialize failed: %v", err)
	}
	if restored.NumChunks() != 2 {
		t.Fatalf("expected 2 chunks restored, got %d", restored.NumChunks())
	}

	cs1, ok := restored.ChunkSummaryFor(id1)
	if !ok {
		t.Fatalf("missing chunk summary for id1")
	}
	if cs1.NumRows != 3 {
		t.Fatalf("expected numRows 3 for id1, got %d", cs1.NumRows)
	}
	if !cs1.Digest.Contains(types.RowKey("b")) {
		t.Fatalf("restored digest for id1 should contain key 'b'")
	}

	cs2, ok := restored.ChunkSummaryFor(id2)
	if !ok {
		t.Fatalf("missing chunk summary for id2")
	}
	if cs2.NumRows != 1 {
		t.Fatalf("expected numRows 1 for id2, got %d", cs2.NumRows)
	}
}

func TestSerializeDeserialize_EmptySummary(t *testing.T) {
	data, err := Empty().Serialize()
	if err != nil {
		t.Fatalf("Serialize failed: %v", err)
	}
	restored, err := Deserialize(data)
	if err != nil {
		t.Fatalf("Deserialize failed: %v", err)
	}
	if restored.NumChunks() != 0 {
		t.Fatalf("expected 0 chunks restored, got %d", restored.NumChunks())
	}
}

func TestDeserialize_CorruptDataFailsClosed(t *testing.T) {
	if _, err := Deserialize([]byte{0x00, 0x00}); err == nil {
		t.Fatalf("expected an error for truncated summary data")
	}
}

// TestProperty_DigestNeverFalseNegative grounds testable property 4: a
// bloom digest never denies membership for a key it was built from.
func TestProperty_DigestNeverFalseNegative(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	properties := gopter.NewProperties(parameters)

	properties.Property("every inserted key is reported as contained", prop.ForAll(
		func(rawKeys []string) bool {
			if len(rawKeys) == 0 {
				return true
			}
			ks := make([]types.RowKey, len(rawKeys))
			for i, s := range rawKeys {
				ks[i] = types.RowKey(s)
			}
			s := Empty().WithKeys(mustID(t, 1000, 0), ks)
			for _, k := range ks {
				if len(s.PossibleOverrides([]types.RowKey{k})) == 0 {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.AlphaString()),
	))

	properties.TestingRun(t)
}
