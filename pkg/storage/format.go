package storage

import (
	"encoding/binary"
	"hash/crc32"
)

// Magic identifies a sutramem segment file. Version 2 per spec §3 invariants.
var Magic = [8]byte{'S', 'U', 'T', 'R', 'A', 'D', 'A', 'T'}

const (
	Version = 2

	// HeaderSize is the fixed size of the segment header in bytes.
	HeaderSize = 64

	// crcCoverage is the number of leading header bytes the CRC-32 covers:
	// magic through feature_flags, not the CRC field itself or the reserved
	// tail.
	crcCoverage = 36

	// edgeRecordSize is the fixed size of an edge record: 16-byte source id,
	// 16-byte target id, f32 confidence.
	edgeRecordSize = 36

	// conceptFixedSize is the fixed portion of a concept record, before the
	// variable-length content bytes: id(16) + content_len(4) + strength(4) +
	// confidence(4) + access_count(4) + created_seconds(4).
	conceptFixedSize = 36

	// vectorFixedSize is the fixed portion of a vector record, before the
	// dimension*4 component bytes: concept_id(16) + dimension(4).
	vectorFixedSize = 20
)

// Header is the 64-byte segment header, decoded in memory.
type Header struct {
	Version           uint32
	ConceptCount      uint32
	EdgeCount         uint32
	VectorCount       uint32
	CreationTimestamp uint64 // microseconds since epoch
	FeatureFlags      uint32
	CRC32             uint32
}

// encode serializes h into a 64-byte array, computing CRC32 over the first
// crcCoverage bytes as it goes.
func (h Header) encode() [HeaderSize]byte {
	var buf [HeaderSize]byte
	copy(buf[0:8], Magic[:])
	binary.LittleEndian.PutUint32(buf[8:12], h.Version)
	binary.LittleEndian.PutUint32(buf[12:16], h.ConceptCount)
	binary.LittleEndian.PutUint32(buf[16:20], h.EdgeCount)
	binary.LittleEndian.PutUint32(buf[20:24], h.VectorCount)
	binary.LittleEndian.PutUint64(buf[24:32], h.CreationTimestamp)
	binary.LittleEndian.PutUint32(buf[32:36], h.FeatureFlags)

	crc := crc32.ChecksumIEEE(buf[0:crcCoverage])
	binary.LittleEndian.PutUint32(buf[36:40], crc)
	// buf[40:64] stays zero (reserved).
	return buf
}

// decodeHeader parses a 64-byte array into a Header, reporting whether the
// magic, version and CRC all validate. A false result means the caller
// should treat the segment as Corrupt (spec §4.1).
func decodeHeader(buf [HeaderSize]byte) (Header, bool) {
	var h Header
	if [8]byte(buf[0:8]) != Magic {
		return h, false
	}
	h.Version = binary.LittleEndian.Uint32(buf[8:12])
	if h.Version == 0 || h.Version > Version {
		return h, false
	}
	h.ConceptCount = binary.LittleEndian.Uint32(buf[12:16])
	h.EdgeCount = binary.LittleEndian.Uint32(buf[16:20])
	h.VectorCount = binary.LittleEndian.Uint32(buf[20:24])
	h.CreationTimestamp = binary.LittleEndian.Uint64(buf[24:32])
	h.FeatureFlags = binary.LittleEndian.Uint32(buf[32:36])
	h.CRC32 = binary.LittleEndian.Uint32(buf[36:40])

	want := crc32.ChecksumIEEE(buf[0:crcCoverage])
	return h, want == h.CRC32
}
