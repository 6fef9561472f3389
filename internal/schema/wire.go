package schema

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/vaultds/segmentstore/internal/segerr"
	"github.com/vaultds/segmentstore/pkg/types"
)

// Serialize encodes a list of Column records (NOT a folded Schema — the
// metadata store is the source of truth for column history) per spec.md
// §4.1's wire format:
//
//	int32 count
//	count x { utf(name) | utf(dataset) | utf(columnTypeTag) | int32(version) }
//
// serializer, isDeleted, and isSystem are intentionally not written: readers
// reconstruct the default serializer and the system flag from the name
// prefix. isDeleted is carried out-of-band by the metadata store (it governs
// whether a record folds as a tombstone), not by this wire form.
func Serialize(columns []types.Column) ([]byte, error) {
	buf := &bytes.Buffer{}
	if err := binary.Write(buf, binary.BigEndian, int32(len(columns))); err != nil {
		return nil, err
	}
	for _, c := range columns {
		if err := writeString(buf, c.Name); err != nil {
			return nil, err
		}
		if err := writeString(buf, c.Dataset); err != nil {
			return nil, err
		}
		if err := writeString(buf, types.ColumnTypeTag(c.ColumnType)); err != nil {
			return nil, err
		}
		if err := binary.Write(buf, binary.BigEndian, int32(c.Version)); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

// Deserialize decodes the wire form produced by Serialize. isDeleted must be
// supplied by the caller per record (the metadata store tracks tombstones
// out-of-band); deletedLookup may be nil, meaning no record is deleted.
// Unknown column type tags fail with a MetadataException, per spec.md §7.
func Deserialize(data []byte, deletedLookup func(name string, version int) bool) ([]types.Column, error) {
	r := bytes.NewReader(data)

	var count int32
	if err := binary.Read(r, binary.BigEndian, &count); err != nil {
		return nil, segerr.MetadataException(fmt.Sprintf("schema: failed to read column count: %v", err))
	}
	if count < 0 {
		return nil, segerr.MetadataException("schema: negative column count")
	}

	columns := make([]types.Column, 0, count)
	for i := int32(0); i < count; i++ {
		name, err := readString(r)
		if err != nil {
			return nil, segerr.MetadataException(fmt.Sprintf("schema: failed to read column name: %v", err))
		}
		dataset, err := readString(r)
		if err != nil {
			return nil, segerr.MetadataException(fmt.Sprintf("schema: failed to read dataset: %v", err))
		}
		tag, err := readString(r)
		if err != nil {
			return nil, segerr.MetadataException(fmt.Sprintf("schema: failed to read column type tag: %v", err))
		}
		var version int32
		if err := binary.Read(r, binary.BigEndian, &version); err != nil {
			return nil, segerr.MetadataException(fmt.Sprintf("schema: failed to read version: %v", err))
		}

		columnType, ok := types.ColumnTypeFromTag(tag)
		if !ok {
			return nil, segerr.MetadataException(fmt.Sprintf("schema: unknown column type tag %q for column %q", tag, name))
		}

		isDeleted := false
		if deletedLookup != nil {
			isDeleted = deletedLookup(name, int(version))
		}

		columns = append(columns, types.Column{
			Name:       name,
			Dataset:    dataset,
			Version:    int(version),
			ColumnType: columnType,
			Serializer: types.DefaultSerializer,
			IsDeleted:  isDeleted,
			IsSystem:   types.IsSystemName(name),
		})
	}

	return columns, nil
}

func writeString(w io.Writer, s string) error {
	if err := binary.Write(w, binary.BigEndian, int32(len(s))); err != nil {
		return err
	}
	_, err := w.Write([]byte(s))
	return err
}

func readString(r io.Reader) (string, error) {
	var length int32
	if err := binary.Read(r, binary.BigEndian, &length); err != nil {
		return "", err
	}
	if length < 0 {
		return "", fmt.Errorf("schema: negative string length")
	}
	buf := make([]byte, length)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}
