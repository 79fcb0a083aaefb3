package hnsw

import (
	"encoding/binary"
	"hash/crc32"
	"os"

	"github.com/google/uuid"
	"github.com/velesdb/velesdb/internal/kernel"
	"github.com/velesdb/velesdb/internal/veleserr"
)

var snapMagic = [4]byte{'H', 'N', 'S', 'W'}

const snapVersion = 1

// Save writes a versioned snapshot of the graph structure (level
// assignments, neighbor lists, entry point) to path. The vectors
// themselves are not included — the graph is reconstructable from the
// vector store plus this snapshot. A fresh uuid version tag is stamped into
// the header on every save and returned here and by LoadSnapshot; nothing in
// this package compares one tag against another.
func (idx *Index) Save(path string) (string, error) {
	idx.edgesMu.Lock()
	defer idx.edgesMu.Unlock()
	idx.nodesMu.RLock()
	defer idx.nodesMu.RUnlock()

	buf := make([]byte, 0, 4096)
	buf = append(buf, snapMagic[:]...)
	buf = appendU32(buf, snapVersion)
	buf = appendU32(buf, uint32(idx.config.M))

	versionTag := uuid.NewString()
	tagBytes := []byte(versionTag)
	buf = appendU32(buf, uint32(len(tagBytes)))
	buf = append(buf, tagBytes...)

	idx.layerMu.Lock()
	buf = appendU64(buf, idx.entryPoint)
	buf = appendU32(buf, uint32(idx.maxLevel))
	hasEntry := idx.hasEntry
	idx.layerMu.Unlock()
	if hasEntry {
		buf = append(buf, 1)
	} else {
		buf = append(buf, 0)
	}

	buf = appendU32(buf, uint32(len(idx.nodes)))
	for id, n := range idx.nodes {
		n.neighborsMu.RLock()
		buf = appendU64(buf, id)
		buf = appendU32(buf, uint32(n.level))
		for l := 0; l <= n.level; l++ {
			peers := n.neighbors[l]
			buf = appendU32(buf, uint32(len(peers)))
			for _, p := range peers {
				buf = appendU64(buf, p)
			}
		}
		n.neighborsMu.RUnlock()
	}

	buf = appendU32(buf, uint32(len(idx.tombstoned)))
	for id := range idx.tombstoned {
		buf = appendU64(buf, id)
	}

	crc := crc32.ChecksumIEEE(buf)
	buf = appendU32(buf, crc)

	if err := os.WriteFile(path, buf, 0666); err != nil {
		return "", err
	}
	return versionTag, nil
}

// LoadSnapshot restores a graph from a snapshot written by Save. If the
// trailing CRC32 does not match, it returns a Corruption error; the caller
// is expected to fall back to rebuilding the index from the vector store
// by WAL replay rather than trust a torn snapshot. dim/metric/config
// describe the collection the snapshot belongs to (not re-derived from the
// file, since the snapshot stores only graph structure, not vector
// metadata).
func LoadSnapshot(path string, dim int, metric kernel.Metric, cfg Config, source VectorSource) (*Index, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", err
	}
	if len(data) < 4+4+4 {
		return nil, "", veleserr.New(veleserr.Corruption, "hnsw: snapshot too short")
	}
	body := data[:len(data)-4]
	wantCRC := binary.LittleEndian.Uint32(data[len(data)-4:])
	if crc32.ChecksumIEEE(body) != wantCRC {
		return nil, "", veleserr.New(veleserr.Corruption, "hnsw: snapshot checksum mismatch")
	}

	off := 0
	if off+4 > len(body) || string(body[off:off+4]) != string(snapMagic[:]) {
		return nil, "", veleserr.New(veleserr.Corruption, "hnsw: bad snapshot magic")
	}
	off += 4
	_, off = readU32(body, off) // version, ignored for v1
	m, off2 := readU32(body, off)
	off = off2

	tagLen, o := readU32(body, off)
	off = o
	versionTag := string(body[off : off+int(tagLen)])
	off += int(tagLen)

	entryPoint, o2 := readU64(body, off)
	off = o2
	maxLevel, o3 := readU32(body, off)
	off = o3
	hasEntry := body[off] == 1
	off++

	nodeCount, o4 := readU32(body, off)
	off = o4

	idx := &Index{dim: dim, metric: metric, config: Config{M: int(m), EfConstruction: cfg.EfConstruction}, source: source, nodes: make(map[uint64]*node)}
	idx.entryPoint = entryPoint
	idx.maxLevel = int(maxLevel)
	idx.hasEntry = hasEntry

	for i := uint32(0); i < nodeCount; i++ {
		id, o := readU64(body, off)
		off = o
		level, o2 := readU32(body, off)
		off = o2
		n := &node{id: id, level: int(level), neighbors: make([][]uint64, level+1)}
		for l := 0; l <= int(level); l++ {
			cnt, o3 := readU32(body, off)
			off = o3
			peers := make([]uint64, cnt)
			for j := uint32(0); j < cnt; j++ {
				p, o4 := readU64(body, off)
				off = o4
				peers[j] = p
			}
			n.neighbors[l] = peers
		}
		idx.nodes[id] = n
	}

	tombCount, o5 := readU32(body, off)
	off = o5
	if tombCount > 0 {
		idx.tombstoned = make(map[uint64]bool, tombCount)
		for i := uint32(0); i < tombCount; i++ {
			id, o := readU64(body, off)
			off = o
			idx.tombstoned[id] = true
		}
	}

	return idx, versionTag, nil
}

func appendU32(buf []byte, v uint32) []byte {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], v)
	return append(buf, tmp[:]...)
}

func appendU64(buf []byte, v uint64) []byte {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], v)
	return append(buf, tmp[:]...)
}

func readU32(buf []byte, off int) (uint32, int) {
	return binary.LittleEndian.Uint32(buf[off : off+4]), off + 4
}

func readU64(buf []byte, off int) (uint64, int) {
	return binary.LittleEndian.Uint64(buf[off : off+8]), off + 8
}
