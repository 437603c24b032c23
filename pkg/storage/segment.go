package storage

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/cuemby/sutramem/pkg/types"
)

// WriteSegment streams a header followed by concept, edge, and vector
// records to w, in that order, with no in-file index (spec §4.1). Vector
// records are derived from concepts whose Vector field is non-nil; callers
// do not pass vectors separately.
func WriteSegment(w io.Writer, concepts []*types.Concept, edges []types.Association, createdAt time.Time) error {
	vectorCount := 0
	for _, c := range concepts {
		if len(c.Vector) > 0 {
			vectorCount++
		}
	}

	h := Header{
		Version:           Version,
		ConceptCount:      uint32(len(concepts)),
		EdgeCount:         uint32(len(edges)),
		VectorCount:       uint32(vectorCount),
		CreationTimestamp: uint64(createdAt.UnixMicro()),
	}
	hdr := h.encode()
	if _, err := w.Write(hdr[:]); err != nil {
		return types.NewError("storage.WriteSegment", types.KindIO, err)
	}

	bw := bufio.NewWriter(w)
	for _, c := range concepts {
		if err := writeConcept(bw, c); err != nil {
			return types.NewError("storage.WriteSegment", types.KindIO, err)
		}
	}
	for _, e := range edges {
		if err := writeEdge(bw, e); err != nil {
			return types.NewError("storage.WriteSegment", types.KindIO, err)
		}
	}
	for _, c := range concepts {
		if len(c.Vector) == 0 {
			continue
		}
		if err := writeVector(bw, c.ID, c.Vector); err != nil {
			return types.NewError("storage.WriteSegment", types.KindIO, err)
		}
	}
	if err := bw.Flush(); err != nil {
		return types.NewError("storage.WriteSegment", types.KindIO, err)
	}
	return nil
}

func writeConcept(w io.Writer, c *types.Concept) error {
	var fixed [conceptFixedSize]byte
	copy(fixed[0:16], c.ID[:])
	binary.LittleEndian.PutUint32(fixed[16:20], uint32(len(c.Content)))
	binary.LittleEndian.PutUint32(fixed[20:24], math.Float32bits(c.Strength))
	binary.LittleEndian.PutUint32(fixed[24:28], math.Float32bits(c.Confidence))
	binary.LittleEndian.PutUint32(fixed[28:32], c.AccessCount)
	binary.LittleEndian.PutUint32(fixed[32:36], uint32(c.CreatedAt.Unix()))
	if _, err := w.Write(fixed[:]); err != nil {
		return err
	}
	_, err := w.Write(c.Content)
	return err
}

func writeEdge(w io.Writer, e types.Association) error {
	var buf [edgeRecordSize]byte
	copy(buf[0:16], e.Source[:])
	copy(buf[16:32], e.Target[:])
	binary.LittleEndian.PutUint32(buf[32:36], math.Float32bits(e.Weight))
	_, err := w.Write(buf[:])
	return err
}

func writeVector(w io.Writer, id types.ConceptID, v []float32) error {
	var fixed [vectorFixedSize]byte
	copy(fixed[0:16], id[:])
	binary.LittleEndian.PutUint32(fixed[16:20], uint32(len(v)))
	if _, err := w.Write(fixed[:]); err != nil {
		return err
	}
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:i*4+4], math.Float32bits(f))
	}
	_, err := w.Write(buf)
	return err
}

// LoadSegment reads a segment written by WriteSegment, validating the
// header magic, version, and CRC first. Any header failure returns a
// Corrupt error; callers should fall back to rebuilding from the WAL
// (spec §4.1, §4.2).
func LoadSegment(r io.Reader) ([]*types.Concept, []types.Association, error) {
	var hdrBuf [HeaderSize]byte
	if _, err := io.ReadFull(r, hdrBuf[:]); err != nil {
		return nil, nil, types.NewError("storage.LoadSegment", types.KindCorrupt, err)
	}
	h, ok := decodeHeader(hdrBuf)
	if !ok {
		return nil, nil, types.NewError("storage.LoadSegment", types.KindCorrupt,
			fmt.Errorf("invalid magic, version, or header CRC"))
	}

	br := bufio.NewReader(r)

	concepts := make([]*types.Concept, 0, h.ConceptCount)
	byID := make(map[types.ConceptID]*types.Concept, h.ConceptCount)
	for i := uint32(0); i < h.ConceptCount; i++ {
		c, err := readConcept(br)
		if err != nil {
			return nil, nil, types.NewError("storage.LoadSegment", types.KindCorrupt, err)
		}
		concepts = append(concepts, c)
		byID[c.ID] = c
	}

	edges := make([]types.Association, 0, h.EdgeCount)
	for i := uint32(0); i < h.EdgeCount; i++ {
		e, err := readEdge(br)
		if err != nil {
			return nil, nil, types.NewError("storage.LoadSegment", types.KindCorrupt, err)
		}
		edges = append(edges, e)
	}

	for i := uint32(0); i < h.VectorCount; i++ {
		id, v, err := readVector(br)
		if err != nil {
			return nil, nil, types.NewError("storage.LoadSegment", types.KindCorrupt, err)
		}
		if c, found := byID[id]; found {
			c.Vector = v
		}
	}

	return concepts, edges, nil
}

func readConcept(r io.Reader) (*types.Concept, error) {
	var fixed [conceptFixedSize]byte
	if _, err := io.ReadFull(r, fixed[:]); err != nil {
		return nil, err
	}
	c := &types.Concept{}
	copy(c.ID[:], fixed[0:16])
	contentLen := binary.LittleEndian.Uint32(fixed[16:20])
	c.Strength = math.Float32frombits(binary.LittleEndian.Uint32(fixed[20:24]))
	c.Confidence = math.Float32frombits(binary.LittleEndian.Uint32(fixed[24:28]))
	c.AccessCount = binary.LittleEndian.Uint32(fixed[28:32])
	c.CreatedAt = time.Unix(int64(binary.LittleEndian.Uint32(fixed[32:36])), 0).UTC()

	if contentLen > 0 {
		c.Content = make([]byte, contentLen)
		if _, err := io.ReadFull(r, c.Content); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func readEdge(r io.Reader) (types.Association, error) {
	var buf [edgeRecordSize]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return types.Association{}, err
	}
	var e types.Association
	copy(e.Source[:], buf[0:16])
	copy(e.Target[:], buf[16:32])
	e.Weight = math.Float32frombits(binary.LittleEndian.Uint32(buf[32:36]))
	// Association type is not persisted in the segment (spec §4.1); it is
	// reconstructed from the WAL at boot, or defaults to semantic here.
	e.Type = types.AssocSemantic
	return e, nil
}

func readVector(r io.Reader) (types.ConceptID, []float32, error) {
	var fixed [vectorFixedSize]byte
	if _, err := io.ReadFull(r, fixed[:]); err != nil {
		return types.ConceptID{}, nil, err
	}
	var id types.ConceptID
	copy(id[:], fixed[0:16])
	dim := binary.LittleEndian.Uint32(fixed[16:20])

	buf := make([]byte, 4*dim)
	if _, err := io.ReadFull(r, buf); err != nil {
		return types.ConceptID{}, nil, err
	}
	v := make([]float32, dim)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4 : i*4+4]))
	}
	return id, v, nil
}
