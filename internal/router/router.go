// Package router assigns incoming rows to a partition, derived from a
// configured column with an optional default fallback (spec.md §3).
package router

import (
	"fmt"

	"github.com/vaultds/segmentstore/internal/segerr"
	"github.com/vaultds/segmentstore/pkg/types"
)

// Config describes how to derive a row's partition.
type Config struct {
	// PartitionColumn is the column whose value routes a row to a partition.
	PartitionColumn string

	// DefaultPartitionKey is used when PartitionColumn is null/absent on a
	// row. Empty means no fallback is configured.
	DefaultPartitionKey string
}

// Row is the minimal shape a router needs: a lookup from column name to a
// raw value. nil or a missing key both mean "null".
type Row map[string]interface{}

// Router assigns rows to partitions per Config.
type Router struct {
	config Config
}

// New creates a Router for the given configuration.
func New(config Config) *Router {
	return &Router{config: config}
}

// Route computes the PartitionID for a single row. It returns
// segerr.NullPartitionValue when the partition column is null/absent and no
// default partition key is configured.
func (r *Router) Route(row Row) (types.PartitionID, error) {
	value, present := row[r.config.PartitionColumn]
	if !present || value == nil {
		if r.config.DefaultPartitionKey != "" {
			return types.PartitionID(r.config.DefaultPartitionKey), nil
		}
		return "", segerr.NullPartitionValue(
			"router: row has null value for partition column " + r.config.PartitionColumn,
		)
	}

	return types.PartitionID(toPartitionKey(value)), nil
}

// RouteBatch groups rows by their computed partition, preserving each
// partition's row order. It fails on the first NullPartitionValue rather
// than partially routing the batch.
func (r *Router) RouteBatch(rows []Row) (map[types.PartitionID][]Row, error) {
	groups := make(map[types.PartitionID][]Row)
	for _, row := range rows {
		key, err := r.Route(row)
		if err != nil {
			return nil, err
		}
		groups[key] = append(groups[key], row)
	}
	return groups, nil
}

func toPartitionKey(value interface{}) string {
	switch v := value.(type) {
	case string:
		return v
	case []byte:
		return string(v)
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprintf("%v", v)
	}
}
