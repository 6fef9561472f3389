package router

import (
	"testing"

	"github.com/vaultds/segmentstore/internal/segerr"
)

func TestRoute_UsesPartitionColumnValue(t *testing.T) {
	r := New(Config{PartitionColumn: "league"})
	id, err := r.Route(Row{"league": "AFC"})
	if err != nil {
		t.Fatalf("Route failed: %v", err)
	}
	if id != "AFC" {
		t.Fatalf("expected partition AFC, got %q", id)
	}
}

func TestRoute_NullWithoutDefaultFails(t *testing.T) {
	r := New(Config{PartitionColumn: "league"})
	_, err := r.Route(Row{"league": nil})
	if segerr.GetCategory(err) != segerr.CategoryPartition {
		t.Fatalf("expected a partition category error, got %v", err)
	}
}

func TestRoute_MissingColumnWithoutDefaultFails(t *testing.T) {
	r := New(Config{PartitionColumn: "league"})
	_, err := r.Route(Row{})
	if err == nil {
		t.Fatalf("expected an error for missing partition column")
	}
}

func TestRoute_NullWithDefaultFallsBack(t *testing.T) {
	r := New(Config{PartitionColumn: "league", DefaultPartitionKey: "foobar"})
	id, err := r.Route(Row{"league": nil})
	if err != nil {
		t.Fatalf("Route failed: %v", err)
	}
	if id != "foobar" {
		t.Fatalf("expected default partition foobar, got %q", id)
	}
}

// TestScenarioS4 grounds spec.md scenario S4: null league with no default
// raises NullPartitionValue; with a default, the row routes to it.
func TestScenarioS4_PartitionRoutingWithNull(t *testing.T) {
	noDefault := New(Config{PartitionColumn: "league"})
	if _, err := noDefault.Route(Row{"league": nil}); segerr.GetCategory(err) != segerr.CategoryPartition {
		t.Fatalf("expected NullPartitionValue error, got %v", err)
	}

	withDefault := New(Config{PartitionColumn: "league", DefaultPartitionKey: "foobar"})
	id, err := withDefault.Route(Row{"league": nil})
	if err != nil {
		t.Fatalf("Route failed: %v", err)
	}
	if id != "foobar" {
		t.Fatalf("expected partition foobar, got %q", id)
	}
}

func TestRouteBatch_GroupsPreservingOrder(t *testing.T) {
	r := New(Config{PartitionColumn: "league"})
	rows := []Row{
		{"league": "AFC"},
		{"league": "NFC"},
		{"league": "AFC"},
	}
	groups, err := r.RouteBatch(rows)
	if err != nil {
		t.Fatalf("RouteBatch failed: %v", err)
	}
	if len(groups["AFC"]) != 2 {
		t.Fatalf("expected 2 rows in AFC, got %d", len(groups["AFC"]))
	}
	if len(groups["NFC"]) != 1 {
		t.Fatalf("expected 1 row in NFC, got %d", len(groups["NFC"]))
	}
}
