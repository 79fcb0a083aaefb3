package velesdb

import (
	"encoding/binary"
	"encoding/json"
	"math"

	"github.com/velesdb/velesdb/internal/graph"
	"github.com/velesdb/velesdb/internal/veleserr"
)

// Payload encodings for the six storage.Op kinds, matching the on-disk WAL
// wire format: every multi-byte field little-endian, length-prefixed
// variable data. These are the only place a WAL record's bytes are given
// meaning; storage.Engine itself treats payloads as opaque (see
// internal/storage/engine.go).

// encodeUpsertPoint lays out [id u64][payloadOffset i64][dim u32][dim x f32].
// payloadOffset is -1 when the point carries no payload blob.
func encodeUpsertPoint(id uint64, vec []float32, payloadOffset int64) []byte {
	buf := make([]byte, 8+8+4+4*len(vec))
	binary.LittleEndian.PutUint64(buf[0:8], id)
	binary.LittleEndian.PutUint64(buf[8:16], uint64(payloadOffset))
	binary.LittleEndian.PutUint32(buf[16:20], uint32(len(vec)))
	off := 20
	for _, v := range vec {
		binary.LittleEndian.PutUint32(buf[off:off+4], math.Float32bits(v))
		off += 4
	}
	return buf
}

func decodeUpsertPoint(b []byte) (id uint64, vec []float32, payloadOffset int64, err error) {
	if len(b) < 20 {
		return 0, nil, 0, veleserr.New(veleserr.Corruption, "velesdb: upsert_point record too short")
	}
	id = binary.LittleEndian.Uint64(b[0:8])
	payloadOffset = int64(binary.LittleEndian.Uint64(b[8:16]))
	dim := int(binary.LittleEndian.Uint32(b[16:20]))
	if len(b) != 20+4*dim {
		return 0, nil, 0, veleserr.New(veleserr.Corruption, "velesdb: upsert_point record length mismatch")
	}
	vec = make([]float32, dim)
	off := 20
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[off : off+4]))
		off += 4
	}
	return id, vec, payloadOffset, nil
}

// encodeDeletePoint lays out [id u64].
func encodeDeletePoint(id uint64) []byte {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, id)
	return buf
}

func decodeDeletePoint(b []byte) (uint64, error) {
	if len(b) != 8 {
		return 0, veleserr.New(veleserr.Corruption, "velesdb: delete_point record length mismatch")
	}
	return binary.LittleEndian.Uint64(b), nil
}

// encodeAddEdge lays out
// [edgeID u64][src u64][dst u64][labelLen u16][label][propsLen u32][props json].
func encodeAddEdge(edgeID, src, dst uint64, label string, props map[string]any) ([]byte, error) {
	propsJSON, err := marshalProps(props)
	if err != nil {
		return nil, err
	}
	labelBytes := []byte(label)
	buf := make([]byte, 8+8+8+2+len(labelBytes)+4+len(propsJSON))
	off := 0
	binary.LittleEndian.PutUint64(buf[off:off+8], edgeID)
	off += 8
	binary.LittleEndian.PutUint64(buf[off:off+8], src)
	off += 8
	binary.LittleEndian.PutUint64(buf[off:off+8], dst)
	off += 8
	binary.LittleEndian.PutUint16(buf[off:off+2], uint16(len(labelBytes)))
	off += 2
	copy(buf[off:off+len(labelBytes)], labelBytes)
	off += len(labelBytes)
	binary.LittleEndian.PutUint32(buf[off:off+4], uint32(len(propsJSON)))
	off += 4
	copy(buf[off:], propsJSON)
	return buf, nil
}

func decodeAddEdge(b []byte) (edgeID, src, dst uint64, label string, props map[string]any, err error) {
	if len(b) < 8+8+8+2 {
		return 0, 0, 0, "", nil, veleserr.New(veleserr.Corruption, "velesdb: add_edge record too short")
	}
	off := 0
	edgeID = binary.LittleEndian.Uint64(b[off : off+8])
	off += 8
	src = binary.LittleEndian.Uint64(b[off : off+8])
	off += 8
	dst = binary.LittleEndian.Uint64(b[off : off+8])
	off += 8
	labelLen := int(binary.LittleEndian.Uint16(b[off : off+2]))
	off += 2
	if len(b) < off+labelLen+4 {
		return 0, 0, 0, "", nil, veleserr.New(veleserr.Corruption, "velesdb: add_edge record truncated label")
	}
	label = string(b[off : off+labelLen])
	off += labelLen
	propsLen := int(binary.LittleEndian.Uint32(b[off : off+4]))
	off += 4
	if len(b) != off+propsLen {
		return 0, 0, 0, "", nil, veleserr.New(veleserr.Corruption, "velesdb: add_edge record truncated props")
	}
	props, err = unmarshalProps(b[off : off+propsLen])
	if err != nil {
		return 0, 0, 0, "", nil, err
	}
	return edgeID, src, dst, label, props, nil
}

// encodeRemoveEdge lays out [edgeID u64].
func encodeRemoveEdge(id uint64) []byte {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, id)
	return buf
}

func decodeRemoveEdge(b []byte) (uint64, error) {
	if len(b) != 8 {
		return 0, veleserr.New(veleserr.Corruption, "velesdb: remove_edge record length mismatch")
	}
	return binary.LittleEndian.Uint64(b), nil
}

// encodeCreateIndex lays out [kind u8][labelLen u16][label][propLen u16][prop].
func encodeCreateIndex(kind graph.IndexKind, label, prop string) []byte {
	labelBytes, propBytes := []byte(label), []byte(prop)
	buf := make([]byte, 1+2+len(labelBytes)+2+len(propBytes))
	off := 0
	buf[off] = byte(kind)
	off++
	binary.LittleEndian.PutUint16(buf[off:off+2], uint16(len(labelBytes)))
	off += 2
	copy(buf[off:off+len(labelBytes)], labelBytes)
	off += len(labelBytes)
	binary.LittleEndian.PutUint16(buf[off:off+2], uint16(len(propBytes)))
	off += 2
	copy(buf[off:], propBytes)
	return buf
}

func decodeCreateIndex(b []byte) (graph.IndexKind, string, string, error) {
	if len(b) < 1+2 {
		return 0, "", "", veleserr.New(veleserr.Corruption, "velesdb: create_index record too short")
	}
	off := 0
	kind := graph.IndexKind(b[off])
	off++
	labelLen := int(binary.LittleEndian.Uint16(b[off : off+2]))
	off += 2
	if len(b) < off+labelLen+2 {
		return 0, "", "", veleserr.New(veleserr.Corruption, "velesdb: create_index record truncated label")
	}
	label := string(b[off : off+labelLen])
	off += labelLen
	propLen := int(binary.LittleEndian.Uint16(b[off : off+2]))
	off += 2
	if len(b) != off+propLen {
		return 0, "", "", veleserr.New(veleserr.Corruption, "velesdb: create_index record truncated property")
	}
	return kind, label, string(b[off : off+propLen]), nil
}

// encodeDropIndex lays out [labelLen u16][label][propLen u16][prop].
func encodeDropIndex(label, prop string) []byte {
	labelBytes, propBytes := []byte(label), []byte(prop)
	buf := make([]byte, 2+len(labelBytes)+2+len(propBytes))
	off := 0
	binary.LittleEndian.PutUint16(buf[off:off+2], uint16(len(labelBytes)))
	off += 2
	copy(buf[off:off+len(labelBytes)], labelBytes)
	off += len(labelBytes)
	binary.LittleEndian.PutUint16(buf[off:off+2], uint16(len(propBytes)))
	off += 2
	copy(buf[off:], propBytes)
	return buf
}

func decodeDropIndex(b []byte) (string, string, error) {
	if len(b) < 2 {
		return "", "", veleserr.New(veleserr.Corruption, "velesdb: drop_index record too short")
	}
	off := 0
	labelLen := int(binary.LittleEndian.Uint16(b[off : off+2]))
	off += 2
	if len(b) < off+labelLen+2 {
		return "", "", veleserr.New(veleserr.Corruption, "velesdb: drop_index record truncated label")
	}
	label := string(b[off : off+labelLen])
	off += labelLen
	propLen := int(binary.LittleEndian.Uint16(b[off : off+2]))
	off += 2
	if len(b) != off+propLen {
		return "", "", veleserr.New(veleserr.Corruption, "velesdb: drop_index record truncated property")
	}
	return label, string(b[off : off+propLen]), nil
}

func marshalProps(props map[string]any) ([]byte, error) {
	if props == nil {
		return []byte("null"), nil
	}
	return json.Marshal(props)
}

func unmarshalProps(b []byte) (map[string]any, error) {
	if string(b) == "null" {
		return nil, nil
	}
	var props map[string]any
	if err := json.Unmarshal(b, &props); err != nil {
		return nil, veleserr.Wrap(veleserr.Corruption, "velesdb: malformed edge props json", err)
	}
	return props, nil
}
