package quant

import (
	"encoding/binary"
	"hash/crc32"
	"os"

	"github.com/velesdb/velesdb/internal/veleserr"
)

// vectors.dat layout (spec.md §6): a slot table header, per-slot vector
// bytes in the collection's storage mode, and the freelist, trailed by a
// CRC32 over everything before it — the same snapshot-plus-checksum shape
// as internal/hnsw/snapshot.go's hnsw.snap, so a reader opening a
// collection directory learns the same way whether either file survived
// the last fsync intact.
var dataMagic = [4]byte{'V', 'D', 'A', 'T'}

const dataVersion = 1

// Save writes the store's full contents (mode, dim, slot count, id->slot
// table, raw per-mode bytes, freelist) to path. Callers (Collection.Flush)
// already serialize checkpoints against other writers behind the storage
// engine's single write lock, but Save still takes s.mu for read the same
// way any other reader of this Store does, so it is never the one
// unsynchronized access to these fields.
func (s *Store) Save(path string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	slotCount := len(s.slotIDs)

	buf := make([]byte, 0, 4096)
	buf = append(buf, dataMagic[:]...)
	buf = appendU32(buf, dataVersion)
	buf = appendU32(buf, uint32(s.mode))
	buf = appendU32(buf, uint32(s.dim))
	buf = appendU32(buf, uint32(slotCount))

	// id->slot table: only live slots, since s.index is the sole source of
	// truth for which slots are live (slotIDs/freelist are Store-internal
	// bookkeeping, not independently authoritative).
	buf = appendU32(buf, uint32(len(s.index)))
	for id, slot := range s.index {
		buf = appendU64(buf, id)
		buf = appendU32(buf, slot)
	}

	var raw []byte
	switch s.mode {
	case Full:
		raw = s.full.bytes(slotCount)
	case SQ8:
		raw = s.sq8
	case Binary:
		raw = s.binary
	}
	buf = appendU32(buf, uint32(len(raw)))
	buf = append(buf, raw...)

	buf = appendU32(buf, uint32(len(s.freelist)))
	for _, slot := range s.freelist {
		buf = appendU32(buf, slot)
	}

	crc := crc32.ChecksumIEEE(buf)
	buf = appendU32(buf, crc)
	return os.WriteFile(path, buf, 0666)
}

// Load restores a Store previously written by Save. mode/dim must match the
// collection's configured values (they are not re-derived from the file,
// the way LoadSnapshot takes its caller-supplied dim/metric/config rather
// than trusting a torn or foreign file to describe itself). A checksum
// mismatch returns Corruption; the caller falls back to an empty store plus
// full WAL replay.
func Load(path string, mode Mode, dim int) (*Store, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if len(data) < 4+4+4+4+4 {
		return nil, veleserr.New(veleserr.Corruption, "quant: vectors.dat too short")
	}
	body := data[:len(data)-4]
	wantCRC := binary.LittleEndian.Uint32(data[len(data)-4:])
	if crc32.ChecksumIEEE(body) != wantCRC {
		return nil, veleserr.New(veleserr.Corruption, "quant: vectors.dat checksum mismatch")
	}

	off := 0
	if off+4 > len(body) || string(body[off:off+4]) != string(dataMagic[:]) {
		return nil, veleserr.New(veleserr.Corruption, "quant: bad vectors.dat magic")
	}
	off += 4
	_, off = readU32(body, off) // version, ignored for v1
	fileMode, off2 := readU32(body, off)
	off = off2
	fileDim, off3 := readU32(body, off)
	off = off3
	if Mode(fileMode) != mode || int(fileDim) != dim {
		return nil, veleserr.New(veleserr.Corruption, "quant: vectors.dat mode/dim mismatch")
	}

	slotCount, o := readU32(body, off)
	off = o

	s := &Store{mode: mode, dim: dim}
	s.slotIDs = make([]PointID, slotCount)

	entryCount, o2 := readU32(body, off)
	off = o2
	s.index = make(map[PointID]uint32, entryCount)
	for i := uint32(0); i < entryCount; i++ {
		id, o3 := readU64(body, off)
		off = o3
		slot, o4 := readU32(body, off)
		off = o4
		s.index[id] = slot
		s.slotIDs[slot] = id
	}

	rawLen, o5 := readU32(body, off)
	off = o5
	if off+int(rawLen) > len(body) {
		return nil, veleserr.New(veleserr.Corruption, "quant: vectors.dat truncated data region")
	}
	raw := body[off : off+int(rawLen)]
	off += int(rawLen)
	switch mode {
	case Full:
		s.full = newAlignedF32(0, dim)
		s.full.setBytes(raw, int(slotCount))
	case SQ8:
		s.sq8 = append([]byte(nil), raw...)
	case Binary:
		s.binary = append([]byte(nil), raw...)
	}

	freeCount, o6 := readU32(body, off)
	off = o6
	s.freelist = make([]uint32, freeCount)
	for i := uint32(0); i < freeCount; i++ {
		v, o7 := readU32(body, off)
		off = o7
		s.freelist[i] = v
	}

	return s, nil
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
