// Package keycodec provides the pluggable KeyType codecs referenced by
// spec.md §4.2's chunk key buffer ("encoded via a pluggable KeyType codec").
// A KeyType only needs to round-trip types.RowKey to and from bytes; the
// segment model never interprets key contents beyond byte equality.
package keycodec

import (
	"encoding/binary"
	"fmt"

	"github.com/vaultds/segmentstore/pkg/types"
)

// KeyType encodes and decodes row keys for the chunk key buffer.
type KeyType interface {
	// Tag identifies the codec in logs and diagnostics.
	Tag() string
	// Encode returns the byte payload to store for a key. For codecs that
	// encode losslessly (Raw, String) this is an identity/reinterpretation;
	// for fixed-width codecs (Uint64BE) it validates and packs the value.
	Encode(key types.RowKey) ([]byte, error)
	// Decode reconstructs a RowKey from a previously encoded payload.
	Decode(payload []byte) (types.RowKey, error)
}

// Raw is the identity codec: the key IS the byte payload.
type Raw struct{}

func (Raw) Tag() string                             { return "raw" }
func (Raw) Encode(key types.RowKey) ([]byte, error) { return []byte(key), nil }
func (Raw) Decode(payload []byte) (types.RowKey, error) {
	out := make(types.RowKey, len(payload))
	copy(out, payload)
	return out, nil
}

// String treats the key as a UTF-8 string; this is the same byte
// representation as Raw but documents intent for string-keyed segments.
type String struct{}

func (String) Tag() string                             { return "string" }
func (String) Encode(key types.RowKey) ([]byte, error) { return []byte(key), nil }
func (String) Decode(payload []byte) (types.RowKey, error) {
	out := make(types.RowKey, len(payload))
	copy(out, payload)
	return out, nil
}

// Uint64BE encodes keys as 8-byte big-endian unsigned integers, preserving
// numeric ordering in the lexicographic byte ordering used by key buffers.
type Uint64BE struct{}

func (Uint64BE) Tag() string { return "uint64be" }

func (Uint64BE) Encode(key types.RowKey) ([]byte, error) {
	if len(key) != 8 {
		return nil, fmt.Errorf("keycodec: uint64be requires an 8-byte key, got %d", len(key))
	}
	out := make([]byte, 8)
	copy(out, key)
	return out, nil
}

func (Uint64BE) Decode(payload []byte) (types.RowKey, error) {
	if len(payload) != 8 {
		return nil, fmt.Errorf("keycodec: uint64be requires an 8-byte payload, got %d", len(payload))
	}
	out := make(types.RowKey, 8)
	copy(out, payload)
	return out, nil
}

// EncodeUint64 is a convenience constructor producing a RowKey for a uint64
// value, suitable for use with Uint64BE.
func EncodeUint64(v uint64) types.RowKey {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, v)
	return types.RowKey(buf)
}

// ByTag resolves a codec by its wire tag. Unknown tags fail closed.
func ByTag(tag string) (KeyType, error) {
	switch tag {
	case "raw":
		return Raw{}, nil
	case "string":
		return String{}, nil
	case "uint64be":
		return Uint64BE{}, nil
	default:
		return nil, fmt.Errorf("keycodec: unknown key type tag %q", tag)
	}
}
