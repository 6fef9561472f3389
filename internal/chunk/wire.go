package chunk

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/vaultds/segmentstore/internal/keycodec"
	"github.com/vaultds/segmentstore/internal/segerr"
	"github.com/vaultds/segmentstore/pkg/types"
)

// EncodeMeta produces the metadata buffer (spec.md §4.2):
//
//	int32 overridesCount
//	overridesCount x { bytes[16] priorChunkId, int32 posCount, int32[posCount] positions }
//	int32 numRows
//
// It can be read independently of the key buffer and column vectors, which
// is what lets the read path compute masks without decoding column data.
func EncodeMeta(overrides Overrides, numRows int) []byte {
	buf := &bytes.Buffer{}
	binary.Write(buf, binary.BigEndian, int32(len(overrides)))
	for priorID, positions := range overrides {
		buf.Write(priorID.Bytes())
		binary.Write(buf, binary.BigEndian, int32(len(positions)))
		for _, p := range positions {
			binary.Write(buf, binary.BigEndian, int32(p))
		}
	}
	binary.Write(buf, binary.BigEndian, int32(numRows))
	return buf.Bytes()
}

// DecodeMeta parses a metadata buffer produced by EncodeMeta.
func DecodeMeta(data []byte) (Overrides, int, error) {
	r := bytes.NewReader(data)

	var overridesCount int32
	if err := binary.Read(r, binary.BigEndian, &overridesCount); err != nil {
		return nil, 0, segerr.MetadataException(fmt.Sprintf("chunk: failed to read overrides count: %v", err))
	}
	if overridesCount < 0 {
		return nil, 0, segerr.MetadataException("chunk: negative overrides count")
	}

	overrides := make(Overrides, overridesCount)
	for i := int32(0); i < overridesCount; i++ {
		var idBytes [16]byte
		if _, err := io.ReadFull(r, idBytes[:]); err != nil {
			return nil, 0, segerr.MetadataException(fmt.Sprintf("chunk: failed to read prior chunk id: %v", err))
		}
		priorID, err := types.ULIDFromBytes(idBytes[:])
		if err != nil {
			return nil, 0, segerr.MetadataException(fmt.Sprintf("chunk: invalid prior chunk id: %v", err))
		}

		var posCount int32
		if err := binary.Read(r, binary.BigEndian, &posCount); err != nil {
			return nil, 0, segerr.MetadataException(fmt.Sprintf("chunk: failed to read position count: %v", err))
		}
		if posCount < 0 {
			return nil, 0, segerr.MetadataException("chunk: negative position count")
		}
		positions := make([]int, posCount)
		for j := int32(0); j < posCount; j++ {
			var p int32
			if err := binary.Read(r, binary.BigEndian, &p); err != nil {
				return nil, 0, segerr.MetadataException(fmt.Sprintf("chunk: failed to read position: %v", err))
			}
			positions[j] = int(p)
		}
		overrides[priorID] = positions
	}

	var numRows int32
	if err := binary.Read(r, binary.BigEndian, &numRows); err != nil {
		return nil, 0, segerr.MetadataException(fmt.Sprintf("chunk: failed to read numRows: %v", err))
	}

	return overrides, int(numRows), nil
}

// EncodeKeys produces the key buffer (spec.md §4.2):
//
//	int32 keyCount
//	keyCount x { int32 byteLen, bytes[byteLen] keyPayload }
//
// Payloads are produced by the given pluggable KeyType codec.
func EncodeKeys(keys []types.RowKey, codec keycodec.KeyType) ([]byte, error) {
	buf := &bytes.Buffer{}
	binary.Write(buf, binary.BigEndian, int32(len(keys)))
	for _, k := range keys {
		payload, err := codec.Encode(k)
		if err != nil {
			return nil, fmt.Errorf("chunk: failed to encode key: %w", err)
		}
		binary.Write(buf, binary.BigEndian, int32(len(payload)))
		buf.Write(payload)
	}
	return buf.Bytes(), nil
}

// DecodeKeys parses a key buffer produced by EncodeKeys.
func DecodeKeys(data []byte, codec keycodec.KeyType) ([]types.RowKey, error) {
	r := bytes.NewReader(data)

	var keyCount int32
	if err := binary.Read(r, binary.BigEndian, &keyCount); err != nil {
		return nil, segerr.MetadataException(fmt.Sprintf("chunk: failed to read key count: %v", err))
	}
	if keyCount < 0 {
		return nil, segerr.MetadataException("chunk: negative key count")
	}

	keys := make([]types.RowKey, keyCount)
	for i := int32(0); i < keyCount; i++ {
		var byteLen int32
		if err := binary.Read(r, binary.BigEndian, &byteLen); err != nil {
			return nil, segerr.MetadataException(fmt.Sprintf("chunk: failed to read key length: %v", err))
		}
		if byteLen < 0 {
			return nil, segerr.MetadataException("chunk: negative key length")
		}
		payload := make([]byte, byteLen)
		if _, err := io.ReadFull(r, payload); err != nil {
			return nil, segerr.MetadataException(fmt.Sprintf("chunk: failed to read key payload: %v", err))
		}
		key, err := codec.Decode(payload)
		if err != nil {
			return nil, segerr.MetadataException(fmt.Sprintf("chunk: failed to decode key: %v", err))
		}
		keys[i] = key
	}

	return keys, nil
}
