// Package types provides core data types shared across the segment store:
// columns and effective schemas, chunk identifiers, and row keys.
package types

import "strings"

// ColumnType is one of the value types a column may hold.
type ColumnType string

const (
	ColumnInt    ColumnType = "int"
	ColumnLong   ColumnType = "long"
	ColumnDouble ColumnType = "double"
	ColumnString ColumnType = "string"
	ColumnBitmap ColumnType = "bitmap"
)

// columnTypeTags maps the wire tag used in serialized schemas to a ColumnType,
// and back. Unknown tags on read must fail with MetadataException (see
// internal/schema).
var columnTypeTags = map[string]ColumnType{
	"int":    ColumnInt,
	"long":   ColumnLong,
	"double": ColumnDouble,
	"string": ColumnString,
	"bitmap": ColumnBitmap,
}

// ColumnTypeTag returns the wire tag for t.
func ColumnTypeTag(t ColumnType) string {
	return string(t)
}

// ColumnTypeFromTag resolves a wire tag to a ColumnType. ok is false for an
// unrecognized tag.
func ColumnTypeFromTag(tag string) (ColumnType, bool) {
	ct, ok := columnTypeTags[tag]
	return ct, ok
}

// DefaultSerializer is used when a Column does not specify one.
const DefaultSerializer = "Filo"

// SystemColumnPrefix marks a column name as reserved for system use.
const SystemColumnPrefix = ":"

// Reserved system column names. Nothing in internal/read refers to them.
const (
	ColumnDeleted   = ":deleted"
	ColumnInherited = ":inherited"
)

// Column is a named, typed column belonging to a (dataset, version) pair.
type Column struct {
	Name       string
	Dataset    string
	Version    int
	ColumnType ColumnType
	Serializer string
	IsDeleted  bool
	IsSystem   bool
}

// IsSystemName reports whether name is reserved for system columns.
func IsSystemName(name string) bool {
	return strings.HasPrefix(name, SystemColumnPrefix)
}

// NewColumn builds a Column with defaults filled in (Serializer, IsSystem
// derived from the name prefix).
func NewColumn(name, dataset string, version int, columnType ColumnType) Column {
	return Column{
		Name:       name,
		Dataset:    dataset,
		Version:    version,
		ColumnType: columnType,
		Serializer: DefaultSerializer,
		IsSystem:   IsSystemName(name),
	}
}

// PropertyEqual reports whether c and other are property-equal: their
// ColumnType, Serializer, and IsDeleted fields all match. Name, Dataset, and
// Version are excluded — a column re-declared at a higher version with the
// same properties is redundant, not different.
func (c Column) PropertyEqual(other Column) bool {
	return c.ColumnType == other.ColumnType &&
		c.Serializer == other.Serializer &&
		c.IsDeleted == other.IsDeleted
}

// Schema is the effective set of columns for a dataset at a version horizon:
// a mapping from column name to its current Column definition.
type Schema map[string]Column

// Clone returns a shallow copy of s (Column is a value type, so this is a
// full copy of the mapping).
func (s Schema) Clone() Schema {
	out := make(Schema, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}
