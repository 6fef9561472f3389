package summary

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/vaultds/segmentstore/internal/digest"
	"github.com/vaultds/segmentstore/internal/segerr"
	"github.com/vaultds/segmentstore/pkg/types"
)

// Serialize encodes the summary per spec.md §4.3:
//
//	int32 count
//	count x { bytes[16] chunkId, int32 digestLen, bytes[digestLen] digest, int32 numRows }
//
// An empty summary serializes as count = 0.
func (s *SegmentSummary) Serialize() ([]byte, error) {
	buf := &bytes.Buffer{}
	binary.Write(buf, binary.BigEndian, int32(s.NumChunks()))

	if s != nil {
		for _, e := range s.entries {
			buf.Write(e.ChunkID.Bytes())
			digestBytes, err := e.Summary.Digest.Serialize()
			if err != nil {
				return nil, fmt.Errorf("summary: failed to serialize digest for %s: %w", e.ChunkID, err)
			}
			binary.Write(buf, binary.BigEndian, int32(len(digestBytes)))
			buf.Write(digestBytes)
			binary.Write(buf, binary.BigEndian, int32(e.Summary.NumRows))
		}
	}

	return buf.Bytes(), nil
}

// Deserialize restores a SegmentSummary from the wire form produced by Serialize.
func Deserialize(data []byte) (*SegmentSummary, error) {
	r := bytes.NewReader(data)

	var count int32
	if err := binary.Read(r, binary.BigEndian, &count); err != nil {
		return nil, segerr.MetadataException(fmt.Sprintf("summary: failed to read count: %v", err))
	}
	if count < 0 {
		return nil, segerr.MetadataException("summary: negative chunk count")
	}

	s := &SegmentSummary{entries: make([]entry, 0, count)}
	for i := int32(0); i < count; i++ {
		var idBytes [16]byte
		if _, err := io.ReadFull(r, idBytes[:]); err != nil {
			return nil, segerr.MetadataException(fmt.Sprintf("summary: failed to read chunk id: %v", err))
		}
		chunkID, err := types.ULIDFromBytes(idBytes[:])
		if err != nil {
			return nil, segerr.MetadataException(fmt.Sprintf("summary: invalid chunk id: %v", err))
		}

		var digestLen int32
		if err := binary.Read(r, binary.BigEndian, &digestLen); err != nil {
			return nil, segerr.MetadataException(fmt.Sprintf("summary: failed to read digest length: %v", err))
		}
		if digestLen < 0 {
			return nil, segerr.MetadataException("summary: negative digest length")
		}
		digestBytes := make([]byte, digestLen)
		if _, err := io.ReadFull(r, digestBytes); err != nil {
			return nil, segerr.MetadataException(fmt.Sprintf("summary: failed to read digest: %v", err))
		}
		bloomDigest, err := digest.BloomDigestFromBytes(digestBytes)
		if err != nil {
			return nil, segerr.MetadataException(fmt.Sprintf("summary: failed to decode digest: %v", err))
		}

		var numRows int32
		if err := binary.Read(r, binary.BigEndian, &numRows); err != nil {
			return nil, segerr.MetadataException(fmt.Sprintf("summary: failed to read numRows: %v", err))
		}

		s.entries = append(s.entries, entry{
			ChunkID: chunkID,
			Summary: ChunkSummary{Digest: bloomDigest, NumRows: int(numRows)},
		})
	}

	return s, nil
}
