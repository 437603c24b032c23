package ann

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"

	"go.etcd.io/bbolt"

	"github.com/cuemby/sutramem/pkg/types"
)

var indexMagic = [8]byte{'S', 'U', 'H', 'N', 'S', 'W', 'V', '1'}

const (
	indexFileName  = "storage.usearch"
	metaFileName   = "storage.hnsw.meta"
	idMapBucket    = "idmap"
)

// Save writes the graph to storage.usearch and the internal-id -> concept-id
// map to storage.hnsw.meta under dir. The usearch file is a flat,
// sequentially-readable layout rather than a true mmap structure; no
// third-party mmap library appears anywhere in the retrieval pack, so
// Load reads the whole file into memory; it still honors
// the "eagerly reload the id map, don't rebuild the graph" persistence
// contract (spec §4.6).
func (x *Index) Save(dir string) error {
	x.mu.Lock()
	defer x.mu.Unlock()

	if err := x.saveGraph(filepath.Join(dir, indexFileName)); err != nil {
		return err
	}
	if err := x.saveIDMap(filepath.Join(dir, metaFileName)); err != nil {
		return err
	}
	x.dirty = false
	return nil
}

func (x *Index) saveGraph(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return types.NewError("ann.Save", types.KindIO, err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	header := make([]byte, 8+4*6)
	copy(header[0:8], indexMagic[:])
	binary.LittleEndian.PutUint32(header[8:12], uint32(x.dim))
	binary.LittleEndian.PutUint32(header[12:16], uint32(x.params.M))
	binary.LittleEndian.PutUint32(header[16:20], uint32(x.params.EfConstruction))
	binary.LittleEndian.PutUint32(header[20:24], uint32(x.params.EfSearch))
	binary.LittleEndian.PutUint32(header[24:28], uint32(len(x.nodes)))
	binary.LittleEndian.PutUint32(header[28:32], uint32(int32(x.entryPoint)))
	if _, err := w.Write(header); err != nil {
		return types.NewError("ann.Save", types.KindIO, err)
	}
	var maxLayerBuf [4]byte
	binary.LittleEndian.PutUint32(maxLayerBuf[:], uint32(int32(x.maxLayer)))
	if _, err := w.Write(maxLayerBuf[:]); err != nil {
		return types.NewError("ann.Save", types.KindIO, err)
	}

	for _, n := range x.nodes {
		vecBuf := make([]byte, 4*len(n.vector))
		for i, f32 := range n.vector {
			binary.LittleEndian.PutUint32(vecBuf[i*4:i*4+4], math.Float32bits(f32))
		}
		if _, err := w.Write(vecBuf); err != nil {
			return types.NewError("ann.Save", types.KindIO, err)
		}

		var numLayers [4]byte
		binary.LittleEndian.PutUint32(numLayers[:], uint32(len(n.links)))
		if _, err := w.Write(numLayers[:]); err != nil {
			return types.NewError("ann.Save", types.KindIO, err)
		}
		for _, layerLinks := range n.links {
			var numLinks [4]byte
			binary.LittleEndian.PutUint32(numLinks[:], uint32(len(layerLinks)))
			if _, err := w.Write(numLinks[:]); err != nil {
				return types.NewError("ann.Save", types.KindIO, err)
			}
			linkBuf := make([]byte, 4*len(layerLinks))
			for i, l := range layerLinks {
				binary.LittleEndian.PutUint32(linkBuf[i*4:i*4+4], uint32(l))
			}
			if _, err := w.Write(linkBuf); err != nil {
				return types.NewError("ann.Save", types.KindIO, err)
			}
		}
	}
	return w.Flush()
}

func (x *Index) saveIDMap(path string) error {
	db, err := bbolt.Open(path, 0o644, nil)
	if err != nil {
		return types.NewError("ann.Save", types.KindIO, err)
	}
	defer db.Close()

	return db.Update(func(tx *bbolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(idMapBucket))
		if err != nil {
			return err
		}
		if err := b.ForEach(func(k, v []byte) error { return b.Delete(k) }); err != nil {
			return err
		}
		for internal, n := range x.nodes {
			var key [4]byte
			binary.BigEndian.PutUint32(key[:], uint32(internal))
			if err := b.Put(key[:], n.id[:]); err != nil {
				return err
			}
		}
		return nil
	})
}

// Load reconstructs an Index from storage.usearch and storage.hnsw.meta
// under dir. A missing sidecar or a dimension mismatch against dim is
// reported as a Corrupt or DimensionMismatch error respectively so the
// caller can fall back to rebuilding from the snapshot (spec §4.6).
func Load(dir string, dim int) (*Index, error) {
	graphPath := filepath.Join(dir, indexFileName)
	metaPath := filepath.Join(dir, metaFileName)

	gf, err := os.Open(graphPath)
	if err != nil {
		return nil, types.NewError("ann.Load", types.KindCorrupt, err)
	}
	defer gf.Close()

	idByInternal, err := loadIDMap(metaPath)
	if err != nil {
		return nil, types.NewError("ann.Load", types.KindCorrupt, err)
	}

	r := bufio.NewReader(gf)
	header := make([]byte, 8+4*6)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, types.NewError("ann.Load", types.KindCorrupt, err)
	}
	if [8]byte(header[0:8]) != indexMagic {
		return nil, types.NewError("ann.Load", types.KindCorrupt, fmt.Errorf("bad index magic"))
	}
	fileDim := int(binary.LittleEndian.Uint32(header[8:12]))
	if fileDim != dim {
		return nil, types.NewError("ann.Load", types.KindDimensionMismatch, nil)
	}
	params := Params{
		M:              int(binary.LittleEndian.Uint32(header[12:16])),
		EfConstruction: int(binary.LittleEndian.Uint32(header[16:20])),
		EfSearch:       int(binary.LittleEndian.Uint32(header[20:24])),
	}
	nodeCount := int(binary.LittleEndian.Uint32(header[24:28]))
	entryPoint := int(int32(binary.LittleEndian.Uint32(header[28:32])))

	var maxLayerBuf [4]byte
	if _, err := io.ReadFull(r, maxLayerBuf[:]); err != nil {
		return nil, types.NewError("ann.Load", types.KindCorrupt, err)
	}
	maxLayer := int(int32(binary.LittleEndian.Uint32(maxLayerBuf[:])))

	x := New(dim, params)
	x.entryPoint = entryPoint
	x.maxLayer = maxLayer
	x.nodes = make([]*node, 0, nodeCount)

	for i := 0; i < nodeCount; i++ {
		vecBuf := make([]byte, 4*dim)
		if _, err := io.ReadFull(r, vecBuf); err != nil {
			return nil, types.NewError("ann.Load", types.KindCorrupt, err)
		}
		vec := make([]float32, dim)
		for j := range vec {
			vec[j] = math.Float32frombits(binary.LittleEndian.Uint32(vecBuf[j*4 : j*4+4]))
		}

		var numLayersBuf [4]byte
		if _, err := io.ReadFull(r, numLayersBuf[:]); err != nil {
			return nil, types.NewError("ann.Load", types.KindCorrupt, err)
		}
		numLayers := int(binary.LittleEndian.Uint32(numLayersBuf[:]))
		links := make([][]int, numLayers)
		for layer := 0; layer < numLayers; layer++ {
			var numLinksBuf [4]byte
			if _, err := io.ReadFull(r, numLinksBuf[:]); err != nil {
				return nil, types.NewError("ann.Load", types.KindCorrupt, err)
			}
			numLinks := int(binary.LittleEndian.Uint32(numLinksBuf[:]))
			linkBuf := make([]byte, 4*numLinks)
			if _, err := io.ReadFull(r, linkBuf); err != nil {
				return nil, types.NewError("ann.Load", types.KindCorrupt, err)
			}
			layerLinks := make([]int, numLinks)
			for j := range layerLinks {
				layerLinks[j] = int(binary.LittleEndian.Uint32(linkBuf[j*4 : j*4+4]))
			}
			links[layer] = layerLinks
		}

		id, ok := idByInternal[i]
		if !ok {
			return nil, types.NewError("ann.Load", types.KindCorrupt, fmt.Errorf("missing id map entry for internal id %d", i))
		}
		x.nodes = append(x.nodes, &node{id: id, vector: vec, links: links})
		x.extToInt[id] = i
	}

	return x, nil
}

func loadIDMap(path string) (map[int]types.ConceptID, error) {
	db, err := bbolt.Open(path, 0o644, &bbolt.Options{ReadOnly: true})
	if err != nil {
		return nil, err
	}
	defer db.Close()

	out := make(map[int]types.ConceptID)
	err = db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(idMapBucket))
		if b == nil {
			return fmt.Errorf("missing %s bucket", idMapBucket)
		}
		return b.ForEach(func(k, v []byte) error {
			internal := int(binary.BigEndian.Uint32(k))
			out[internal] = types.IDFromBytes(v)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
