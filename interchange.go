package velesdb

import (
	"bufio"
	"encoding/binary"
	"io"
	"math"
	"sort"

	"github.com/velesdb/velesdb/internal/kernel"
	"github.com/velesdb/velesdb/internal/veleserr"
)

// Binary interchange format (spec.md §6), used by browser persistence
// import/export: "VELS"(4) | version u8 | dim u32 | metric u8 | count u64 |
// count×(id u64, dim×f32 LE). This is a full-fidelity vector dump —
// reconstructed float32 components, not the collection's internal
// quantized bytes — so it round-trips across collections with different
// storage_mode settings.
var interchangeMagic = [4]byte{'V', 'E', 'L', 'S'}

const interchangeVersion = 1

// Export writes every live point's id and reconstructed vector to w in
// interchange order (ascending PointId, matching every other ordering
// layer's tie-break rule so Export is deterministic across runs).
func (c *Collection) Export(w io.Writer) error {
	bw := bufio.NewWriter(w)

	if _, err := bw.Write(interchangeMagic[:]); err != nil {
		return err
	}
	if err := bw.WriteByte(interchangeVersion); err != nil {
		return err
	}
	if err := writeU32(bw, uint32(c.cfg.Dim)); err != nil {
		return err
	}
	if err := bw.WriteByte(byte(c.cfg.Metric)); err != nil {
		return err
	}

	ids := c.points.IDs()
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	if err := writeU64(bw, uint64(len(ids))); err != nil {
		return err
	}
	for _, id := range ids {
		vec, err := c.points.Get(id)
		if err != nil {
			return err
		}
		if err := writeU64(bw, id); err != nil {
			return err
		}
		for _, v := range vec {
			if err := writeU32(bw, math.Float32bits(v)); err != nil {
				return err
			}
		}
	}
	return bw.Flush()
}

// Import reads an interchange stream written by Export and upserts every
// point into this collection. dim and metric in the stream must match the
// collection's own (this is a vector-data import, not a schema migration);
// a dim mismatch fails with DimensionMismatch and a metric mismatch with
// Corruption, both before any point is upserted.
func (c *Collection) Import(r io.Reader) error {
	br := bufio.NewReader(r)

	var magic [4]byte
	if _, err := io.ReadFull(br, magic[:]); err != nil {
		return err
	}
	if magic != interchangeMagic {
		return veleserr.New(veleserr.Corruption, "velesdb: bad interchange magic")
	}
	if _, err := br.ReadByte(); err != nil { // version, ignored for v1
		return err
	}
	dim, err := readU32(br)
	if err != nil {
		return err
	}
	if int(dim) != c.cfg.Dim {
		return veleserr.New(veleserr.DimensionMismatch, "velesdb: interchange dim does not match collection")
	}
	metricByte, err := br.ReadByte()
	if err != nil {
		return err
	}
	if kernel.Metric(metricByte) != c.cfg.Metric {
		return veleserr.New(veleserr.Corruption, "velesdb: interchange metric does not match collection")
	}

	count, err := readU64(br)
	if err != nil {
		return err
	}
	for i := uint64(0); i < count; i++ {
		id, err := readU64(br)
		if err != nil {
			return err
		}
		vec := make([]float32, dim)
		for j := range vec {
			bits, err := readU32(br)
			if err != nil {
				return err
			}
			vec[j] = math.Float32frombits(bits)
		}
		if err := c.Upsert(id, vec, nil); err != nil {
			return err
		}
	}
	return nil
}

func writeU32(w io.ByteWriter, v uint32) error {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], v)
	for _, b := range tmp {
		if err := w.WriteByte(b); err != nil {
			return err
		}
	}
	return nil
}

func writeU64(w io.ByteWriter, v uint64) error {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], v)
	for _, b := range tmp {
		if err := w.WriteByte(b); err != nil {
			return err
		}
	}
	return nil
}

func readU32(r io.Reader) (uint32, error) {
	var tmp [4]byte
	if _, err := io.ReadFull(r, tmp[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(tmp[:]), nil
}

func readU64(r io.Reader) (uint64, error) {
	var tmp [8]byte
	if _, err := io.ReadFull(r, tmp[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(tmp[:]), nil
}
